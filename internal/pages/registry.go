// Package pages tracks operator page visits. A visit is created when a page
// is rendered, attached when the page's event stream connects, and disposed
// when the stream goes away or the visit expires unattached. Realtime
// subscriptions live exactly as long as the attached visit.
package pages

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"

	"terra-eye/internal/capture"
	"terra-eye/internal/metrics"
	"terra-eye/internal/models"
	"terra-eye/internal/realtime"
	"terra-eye/internal/services"
	"terra-eye/internal/toast"
)

var (
	ErrVisitNotFound   = errors.New("page visit not found or expired")
	ErrAlreadyAttached = errors.New("page visit already has an event stream")
)

// Page identifies an operator page
type Page string

const (
	Dashboard  Page = "dashboard"
	CameraGrid Page = "camera-grid"
	Employees  Page = "employees"
	AddCamera  Page = "add-camera"
)

// Tables returns the backend tables the page listens to
func (p Page) Tables() []string {
	switch p {
	case Dashboard:
		return []string{services.TableNotifications}
	case CameraGrid:
		return []string{services.TableFire, services.TableHelmet, services.TableAttendance}
	case Employees:
		return []string{services.TableAttendance}
	}
	return nil
}

// Subscriber opens realtime channels
type Subscriber interface {
	Subscribe(ctx context.Context, name string, tables []string, onEvent realtime.Handler) (*realtime.Channel, error)
}

// Options tunes a Registry
type Options struct {
	// TTL is how long an unattached visit lives
	TTL time.Duration
	// CleanupInterval is how often expired visits are disposed
	CleanupInterval time.Duration
	// StreamSize is the toast buffer per visit
	StreamSize int
	// MaxUploadBytes is passed to each visit's capture workflow
	MaxUploadBytes int64
}

func (o *Options) defaults() {
	if o.TTL <= 0 {
		o.TTL = 2 * time.Minute
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = o.TTL / 2
	}
	if o.StreamSize <= 0 {
		o.StreamSize = 32
	}
}

// Registry holds the live page visits
type Registry struct {
	visits   *cache.Cache
	rt       Subscriber
	notifier *services.AlertNotifier
	frames   capture.FrameSource
	metrics  *metrics.Metrics
	opts     Options
}

// NewRegistry creates a registry. frames and m may be nil.
func NewRegistry(rt Subscriber, notifier *services.AlertNotifier, frames capture.FrameSource, m *metrics.Metrics, opts Options) *Registry {
	opts.defaults()
	r := &Registry{
		visits:   cache.New(opts.TTL, opts.CleanupInterval),
		rt:       rt,
		notifier: notifier,
		frames:   frames,
		metrics:  m,
		opts:     opts,
	}
	r.visits.OnEvicted(func(id string, v interface{}) {
		if visit, ok := v.(*Visit); ok {
			visit.Close()
		}
	})
	return r
}

// Mount creates a visit for page
func (r *Registry) Mount(page Page) *Visit {
	ctx, cancel := context.WithCancel(context.Background())
	v := &Visit{
		ID:      uuid.NewString(),
		Page:    page,
		Created: time.Now(),
		ctx:     ctx,
		cancel:  cancel,
		stream:  toast.NewStream(r.opts.StreamSize),
		metrics: r.metrics,
	}
	if r.frames != nil {
		v.workflow = capture.New(r.frames, r.opts.MaxUploadBytes)
	}
	v.onClose = func() { r.visits.Delete(v.ID) }

	r.visits.SetDefault(v.ID, v)
	r.metrics.VisitMounted()
	log.WithFields(log.Fields{"visit": v.ID, "page": page}).Debug("page visit mounted")
	return v
}

// Get returns an open visit
func (r *Registry) Get(id string) (*Visit, error) {
	item, ok := r.visits.Get(id)
	if !ok {
		return nil, ErrVisitNotFound
	}
	v := item.(*Visit)
	if v.Closed() {
		return nil, ErrVisitNotFound
	}
	return v, nil
}

// Attach opens the visit's realtime subscription and returns its toast
// stream. The subscription ends when ctx is done or the visit is closed;
// callers close the visit when their stream goes away. Attached visits do
// not expire.
func (r *Registry) Attach(ctx context.Context, id string) (*Visit, <-chan *toast.Toast, error) {
	v, err := r.Get(id)
	if err != nil {
		return nil, nil, err
	}

	v.mu.Lock()
	if v.attached {
		v.mu.Unlock()
		return nil, nil, ErrAlreadyAttached
	}
	v.attached = true
	v.mu.Unlock()

	r.visits.Set(v.ID, v, cache.NoExpiration)

	tables := v.Page.Tables()
	if len(tables) == 0 {
		return v, v.stream.C(), nil
	}

	handler := r.notifier.Handler(string(v.Page), v, v.stream)
	ch, err := r.rt.Subscribe(ctx, fmt.Sprintf("%s:%s", v.Page, v.ID), tables, handler)
	if err != nil {
		v.mu.Lock()
		v.attached = false
		v.mu.Unlock()
		r.visits.SetDefault(v.ID, v)
		return nil, nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		ch.Close()
		r.visits.Delete(v.ID)
		return nil, nil, ErrVisitNotFound
	}
	v.channel = ch
	v.mu.Unlock()
	r.metrics.SubscriptionOpened()

	return v, v.stream.C(), nil
}

// Dispose closes a visit by id. Unknown ids are ignored.
func (r *Registry) Dispose(id string) {
	if item, ok := r.visits.Get(id); ok {
		item.(*Visit).Close()
	}
}

// Len returns the number of tracked visits
func (r *Registry) Len() int {
	return r.visits.ItemCount()
}

// Close disposes every visit
func (r *Registry) Close() {
	for _, item := range r.visits.Items() {
		item.Object.(*Visit).Close()
	}
}

// Visit is one rendering of a page
type Visit struct {
	ID      string
	Page    Page
	Created time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	stream   *toast.Stream
	workflow *capture.Workflow
	metrics  *metrics.Metrics
	onClose  func()

	mu       sync.RWMutex
	cameras  []models.Camera
	attached bool
	closed   bool
	channel  *realtime.Channel
}

// Context is cancelled when the visit is closed. Results of backend calls
// made for the visit are applied only while it is live.
func (v *Visit) Context() context.Context {
	return v.ctx
}

// Closed reports whether the visit was disposed
func (v *Visit) Closed() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.closed
}

// SetCameras replaces the local camera list. It is a no-op once the visit is
// closed.
func (v *Visit) SetCameras(cameras []models.Camera) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.cameras = append([]models.Camera(nil), cameras...)
}

// Cameras returns a copy of the local camera list
func (v *Visit) Cameras() []models.Camera {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]models.Camera(nil), v.cameras...)
}

// Camera looks id up in the local camera list
func (v *Visit) Camera(id string) (models.Camera, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return services.CameraList(v.cameras).Camera(id)
}

// Workflow returns the visit's capture workflow, nil when capture is not
// configured
func (v *Visit) Workflow() *capture.Workflow {
	return v.workflow
}

// Push delivers an action toast to the visit's stream
func (v *Visit) Push(t *toast.Toast) {
	v.stream.Push(t)
}

// Close disposes the visit: the subscription is closed before the toast
// stream so no toast is delivered afterwards. Safe to call more than once.
func (v *Visit) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	ch := v.channel
	v.channel = nil
	v.mu.Unlock()

	v.cancel()
	if ch != nil {
		ch.Close()
		v.metrics.SubscriptionClosed()
	}
	v.stream.Close()
	if v.workflow != nil {
		v.workflow.Reset()
	}
	v.metrics.VisitDisposed()
	if v.onClose != nil {
		v.onClose()
	}
	log.WithFields(log.Fields{"visit": v.ID, "page": v.Page}).Debug("page visit disposed")
}
