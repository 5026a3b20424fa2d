// Package notify forwards safety alerts raised by the backend to operator
// channels outside the dashboard (Telegram, MQTT, shoutrrr URLs).
package notify

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"terra-eye/internal/metrics"
	"terra-eye/internal/models"
	"terra-eye/internal/realtime"
	"terra-eye/internal/services"
	"terra-eye/internal/toast"
)

const source = "forwarder"

// Sink delivers one alert to an external channel
type Sink interface {
	Name() string
	Send(ctx context.Context, t *toast.Toast) error
}

// CameraLister loads the camera list used to name alert sources
type CameraLister interface {
	List(ctx context.Context) ([]models.Camera, error)
}

// Subscriber opens realtime channels
type Subscriber interface {
	Subscribe(ctx context.Context, name string, tables []string, onEvent realtime.Handler) (*realtime.Channel, error)
}

// Options tune the forwarder. Zero values select the defaults.
type Options struct {
	// Rate and Burst bound how many alerts reach the sinks
	Rate  rate.Limit
	Burst int
	// QueueSize is the number of alerts held while sinks are slow
	QueueSize int
	// SendTimeout bounds one sink delivery
	SendTimeout time.Duration
	// RetryMin and RetryMax bound the resubscribe backoff
	RetryMin time.Duration
	RetryMax time.Duration
}

func (o *Options) defaults() {
	if o.Rate == 0 {
		o.Rate = rate.Every(2 * time.Second)
	}
	if o.Burst <= 0 {
		o.Burst = 5
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = 10 * time.Second
	}
	if o.RetryMin <= 0 {
		o.RetryMin = time.Second
	}
	if o.RetryMax < o.RetryMin {
		o.RetryMax = 5 * time.Minute
	}
}

// Forwarder keeps one server-lifetime subscription on the safety tables and
// hands error-severity toasts to its sinks
type Forwarder struct {
	rt       Subscriber
	notifier *services.AlertNotifier
	lister   CameraLister
	sinks    []Sink
	metrics  *metrics.Metrics
	opts     Options
	limiter  *rate.Limiter
	queue    chan *toast.Toast

	mu      sync.RWMutex
	cameras services.CameraList
}

// NewForwarder creates a forwarder. m may be nil.
func NewForwarder(rt Subscriber, notifier *services.AlertNotifier, lister CameraLister, sinks []Sink, m *metrics.Metrics, opts Options) *Forwarder {
	opts.defaults()
	return &Forwarder{
		rt:       rt,
		notifier: notifier,
		lister:   lister,
		sinks:    sinks,
		metrics:  m,
		opts:     opts,
		limiter:  rate.NewLimiter(opts.Rate, opts.Burst),
		queue:    make(chan *toast.Toast, opts.QueueSize),
	}
}

// Tables returns the backend tables the forwarder listens on
func (f *Forwarder) Tables() []string {
	return []string{services.TableFire, services.TableHelmet, services.TableCameras}
}

// Camera looks id up in the forwarder's camera list
func (f *Forwarder) Camera(id string) (models.Camera, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.cameras.Camera(id)
}

// ReloadCameras refreshes the camera list from the backend
func (f *Forwarder) ReloadCameras(ctx context.Context) error {
	cameras, err := f.lister.List(ctx)
	if err != nil {
		f.metrics.ObserveBackendError("forwarder_cameras")
		return err
	}
	f.mu.Lock()
	f.cameras = cameras
	f.mu.Unlock()
	log.Debugf("forwarder camera list reloaded (%d cameras)", len(cameras))
	return nil
}

// Push queues an alert for delivery. Only error toasts are forwarded; a
// full queue drops the alert.
func (f *Forwarder) Push(t *toast.Toast) {
	if t == nil || t.Type != toast.TypeError {
		return
	}
	select {
	case f.queue <- t:
	default:
		log.Warnf("⚠️ forwarder queue full, dropping alert: %s", t.Message)
	}
}

func (f *Forwarder) handler() realtime.Handler {
	alerts := f.notifier.Handler(source, f, f)
	return func(ctx context.Context, ev realtime.ChangeEvent) {
		if ev.Table == services.TableCameras {
			if err := f.ReloadCameras(ctx); err != nil && ctx.Err() == nil {
				log.Printf("❌ Error reloading cameras: %v", err)
			}
			return
		}
		alerts(ctx, ev)
	}
}

// Run subscribes and delivers alerts until ctx is cancelled. A dropped
// subscription is reopened with exponential backoff.
func (f *Forwarder) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.deliver(ctx)
	}()
	defer wg.Wait()

	names := make([]string, 0, len(f.sinks))
	for _, s := range f.sinks {
		names = append(names, s.Name())
	}
	log.WithField("sinks", names).Info("📣 alert forwarder started")

	backoff := f.opts.RetryMin
	for {
		if err := f.ReloadCameras(ctx); err != nil && ctx.Err() == nil {
			log.Printf("❌ Error loading cameras for forwarder: %v", err)
		}

		ch, err := f.rt.Subscribe(ctx, source, f.Tables(), f.handler())
		if err == nil {
			backoff = f.opts.RetryMin
			select {
			case <-ch.Done():
				log.Warn("⚠️ forwarder subscription dropped, reconnecting")
			case <-ctx.Done():
			}
			ch.Close()
		} else if ctx.Err() == nil {
			f.metrics.ObserveBackendError("forwarder_subscribe")
			log.Printf("❌ Forwarder subscribe failed, retrying in %v: %v", backoff, err)
		}

		if ctx.Err() != nil {
			log.Info("📣 alert forwarder stopped")
			return nil
		}

		select {
		case <-time.After(backoff):
			backoff *= 2
			if backoff > f.opts.RetryMax {
				backoff = f.opts.RetryMax
			}
		case <-ctx.Done():
			log.Info("📣 alert forwarder stopped")
			return nil
		}
	}
}

func (f *Forwarder) deliver(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-f.queue:
			if err := f.limiter.Wait(ctx); err != nil {
				return
			}
			for _, s := range f.sinks {
				sendCtx, cancel := context.WithTimeout(ctx, f.opts.SendTimeout)
				err := s.Send(sendCtx, t)
				cancel()
				f.metrics.ObserveForward(s.Name(), err)
				if err != nil {
					log.WithField("sink", s.Name()).Errorf("❌ alert forward failed: %v", err)
				}
			}
		}
	}
}
