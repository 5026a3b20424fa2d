package notify

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/time/rate"

	"terra-eye/internal/models"
	"terra-eye/internal/realtime"
	"terra-eye/internal/realtime/realtimetest"
	"terra-eye/internal/services"
	"terra-eye/internal/toast"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type chanSink struct {
	name string
	got  chan *toast.Toast
	err  error
}

func newChanSink(name string) *chanSink {
	return &chanSink{name: name, got: make(chan *toast.Toast, 16)}
}

func (s *chanSink) Name() string { return s.name }

func (s *chanSink) Send(ctx context.Context, t *toast.Toast) error {
	s.got <- t
	return s.err
}

type stubCameras struct {
	mu      sync.Mutex
	cameras []models.Camera
	err     error
}

func (s *stubCameras) List(ctx context.Context) ([]models.Camera, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Camera(nil), s.cameras...), s.err
}

func (s *stubCameras) set(cameras ...models.Camera) {
	s.mu.Lock()
	s.cameras = cameras
	s.mu.Unlock()
}

type harness struct {
	rt      *realtimetest.Server
	cameras *stubCameras
	sink    *chanSink
	fwd     *Forwarder
	cancel  context.CancelFunc
	done    chan error
}

func startForwarder(t *testing.T, cameras ...models.Camera) *harness {
	t.Helper()
	rt := realtimetest.NewServer()
	t.Cleanup(rt.Close)

	tr := &http.Transport{}
	t.Cleanup(tr.CloseIdleConnections)
	client := realtime.NewClient(rt.URL, "", &http.Client{Transport: tr})

	h := &harness{
		rt:      rt,
		cameras: &stubCameras{cameras: cameras},
		sink:    newChanSink("test"),
		done:    make(chan error, 1),
	}
	notifier := services.NewAlertNotifier(services.DefaultAlertPolicy(), nil, nil)
	h.fwd = NewForwarder(client, notifier, h.cameras, []Sink{h.sink}, nil, Options{
		Rate:     rate.Inf,
		RetryMin: 10 * time.Millisecond,
		RetryMax: 50 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.fwd.Run(ctx) }()
	t.Cleanup(h.stop)

	h.waitSubscribed(t)
	return h
}

func (h *harness) stop() {
	h.cancel()
	<-h.done
}

func (h *harness) waitSubscribed(t *testing.T) {
	t.Helper()
	select {
	case topics := <-h.rt.Subscribed():
		assert.ElementsMatch(t, []string{"fire_detections/*", "helmet_violations/*", "cameras/*"}, topics)
	case <-time.After(2 * time.Second):
		t.Fatal("forwarder never subscribed")
	}
}

func (h *harness) next(t *testing.T) *toast.Toast {
	t.Helper()
	select {
	case got := <-h.sink.got:
		return got
	case <-time.After(2 * time.Second):
		t.Fatal("no alert forwarded")
		return nil
	}
}

func (h *harness) none(t *testing.T) {
	t.Helper()
	select {
	case got := <-h.sink.got:
		t.Fatalf("unexpected alert %q", got.Message)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestForwarder_ForwardsSafetyAlerts(t *testing.T) {
	h := startForwarder(t, models.Camera{ID: "c1", Name: "Gate"})

	h.rt.Publish(services.TableFire, "create", models.DetectionLog{CameraID: "c1", Detected: "Fire detected"})
	assert.Equal(t, "Fire detected in camera Gate!", h.next(t).Message)

	h.rt.Publish(services.TableHelmet, "create", models.DetectionLog{CameraID: "c1", Detected: "No helmet detected"})
	assert.Equal(t, "No helmet detected in camera Gate!", h.next(t).Message)
}

func TestForwarder_SuppressesUnknownAndNegative(t *testing.T) {
	h := startForwarder(t, models.Camera{ID: "c1", Name: "Gate"})

	h.rt.Publish(services.TableFire, "create", models.DetectionLog{CameraID: "c9", Detected: "Fire detected"})
	h.rt.Publish(services.TableFire, "create", models.DetectionLog{CameraID: "c1", Detected: "No fire"})
	h.rt.Publish(services.TableFire, "update", models.DetectionLog{CameraID: "c1", Detected: "Fire detected"})
	h.none(t)
}

func TestForwarder_CameraChangeReloadsList(t *testing.T) {
	h := startForwarder(t)

	h.cameras.set(models.Camera{ID: "c2", Name: "Dock"})
	h.rt.Publish(services.TableCameras, "create", models.Camera{ID: "c2", Name: "Dock"})
	h.rt.Publish(services.TableFire, "create", models.DetectionLog{CameraID: "c2", Detected: "Fire detected"})

	assert.Equal(t, "Fire detected in camera Dock!", h.next(t).Message)
	_, ok := h.fwd.Camera("c2")
	assert.True(t, ok)
}

func TestForwarder_ResubscribesAfterDrop(t *testing.T) {
	h := startForwarder(t, models.Camera{ID: "c1", Name: "Gate"})

	h.rt.DropAll()
	h.waitSubscribed(t)

	h.rt.Publish(services.TableFire, "create", models.DetectionLog{CameraID: "c1", Detected: "Fire detected"})
	assert.Equal(t, "Fire detected in camera Gate!", h.next(t).Message)
}

func TestForwarder_SinkErrorDoesNotStopDelivery(t *testing.T) {
	h := startForwarder(t, models.Camera{ID: "c1", Name: "Gate"})
	h.sink.err = errors.New("chat unreachable")

	h.rt.Publish(services.TableFire, "create", models.DetectionLog{CameraID: "c1", Detected: "Fire detected"})
	h.next(t)
	h.rt.Publish(services.TableHelmet, "create", models.DetectionLog{CameraID: "c1", Detected: "No helmet detected"})
	h.next(t)
}

func TestForwarder_PushOnlyQueuesErrors(t *testing.T) {
	f := NewForwarder(nil, nil, &stubCameras{}, nil, nil, Options{QueueSize: 1})

	f.Push(toast.Success("Asha checked in"))
	f.Push(nil)
	assert.Empty(t, f.queue)

	f.Push(toast.Error("Fire detected in camera Gate!"))
	f.Push(toast.Error("dropped when full"))
	require.Len(t, f.queue, 1)
	assert.Equal(t, "Fire detected in camera Gate!", (<-f.queue).Message)
}

func TestForwarder_ReloadCamerasError(t *testing.T) {
	cams := &stubCameras{cameras: []models.Camera{{ID: "c1"}}}
	f := NewForwarder(nil, nil, cams, nil, nil, Options{})
	require.NoError(t, f.ReloadCameras(context.Background()))

	cams.err = errors.New("backend down")
	assert.Error(t, f.ReloadCameras(context.Background()))
	_, ok := f.Camera("c1")
	assert.True(t, ok, "failed reload keeps the previous list")
}
