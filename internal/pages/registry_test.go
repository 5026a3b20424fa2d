package pages

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"terra-eye/internal/models"
	"terra-eye/internal/realtime"
	"terra-eye/internal/realtime/realtimetest"
	"terra-eye/internal/services"
	"terra-eye/internal/toast"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
	)
}

type staticNames map[string]string

func (s staticNames) Name(ctx context.Context, id string) string {
	if n, ok := s[id]; ok {
		return n
	}
	return "Unknown"
}

func newTestRegistry(t *testing.T, srv *realtimetest.Server, opts Options) *Registry {
	t.Helper()
	tr := &http.Transport{}
	t.Cleanup(tr.CloseIdleConnections)
	rt := realtime.NewClient(srv.URL, "", &http.Client{Transport: tr})
	notifier := services.NewAlertNotifier(services.DefaultAlertPolicy(), staticNames{"e1": "Asha"}, nil)
	r := NewRegistry(rt, notifier, nil, nil, opts)
	t.Cleanup(r.Close)
	return r
}

func waitTopics(t *testing.T, srv *realtimetest.Server) []string {
	t.Helper()
	select {
	case topics := <-srv.Subscribed():
		return topics
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscription")
		return nil
	}
}

func nextToast(t *testing.T, c <-chan *toast.Toast) *toast.Toast {
	t.Helper()
	select {
	case tst := <-c:
		return tst
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for toast")
		return nil
	}
}

func TestPageTables(t *testing.T) {
	assert.Equal(t, []string{"notifications"}, Dashboard.Tables())
	assert.ElementsMatch(t, []string{"fire_detections", "helmet_violations", "attendance_logs"}, CameraGrid.Tables())
	assert.Equal(t, []string{"attendance_logs"}, Employees.Tables())
	assert.Empty(t, AddCamera.Tables())
}

func TestRegistry_CameraGridToasts(t *testing.T) {
	srv := realtimetest.NewServer()
	t.Cleanup(srv.Close)
	r := newTestRegistry(t, srv, Options{})

	v := r.Mount(CameraGrid)
	v.SetCameras([]models.Camera{{ID: "c1", Name: "Gate"}})

	_, toasts, err := r.Attach(context.Background(), v.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{"fire_detections/*", "helmet_violations/*", "attendance_logs/*"},
		waitTopics(t, srv))

	srv.Publish("fire_detections", "create", map[string]any{"camera_id": "c9", "detected": "Fire detected"})
	srv.Publish("fire_detections", "create", map[string]any{"camera_id": "c1", "detected": "Fire detected"})
	got := nextToast(t, toasts)
	assert.Equal(t, "Fire detected in camera Gate!", got.Message)
	assert.Equal(t, toast.BottomRight, got.Position)

	srv.Publish("attendance_logs", "create", map[string]any{"employee_id": "e1", "gesture_detected": "thumb_up"})
	assert.Equal(t, "Asha checked in", nextToast(t, toasts).Message)
}

func TestRegistry_AttachTwice(t *testing.T) {
	srv := realtimetest.NewServer()
	t.Cleanup(srv.Close)
	r := newTestRegistry(t, srv, Options{})

	v := r.Mount(Employees)
	_, _, err := r.Attach(context.Background(), v.ID)
	require.NoError(t, err)

	_, _, err = r.Attach(context.Background(), v.ID)
	assert.ErrorIs(t, err, ErrAlreadyAttached)
}

func TestRegistry_CloseStopsToasts(t *testing.T) {
	srv := realtimetest.NewServer()
	t.Cleanup(srv.Close)
	r := newTestRegistry(t, srv, Options{})

	v := r.Mount(Dashboard)
	_, toasts, err := r.Attach(context.Background(), v.ID)
	require.NoError(t, err)
	waitTopics(t, srv)

	r.Dispose(v.ID)
	v.Close()
	assert.True(t, v.Closed())
	assert.ErrorIs(t, v.Context().Err(), context.Canceled)

	srv.Publish("notifications", "create", map[string]any{"message": "late"})
	for tst := range toasts {
		t.Fatalf("toast after dispose: %s", tst.Message)
	}

	_, err = r.Get(v.ID)
	assert.ErrorIs(t, err, ErrVisitNotFound)
	assert.Eventually(t, func() bool { return srv.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRegistry_UnattachedVisitExpires(t *testing.T) {
	srv := realtimetest.NewServer()
	t.Cleanup(srv.Close)
	r := newTestRegistry(t, srv, Options{TTL: 20 * time.Millisecond, CleanupInterval: 5 * time.Millisecond})

	v := r.Mount(CameraGrid)
	assert.Eventually(t, v.Closed, time.Second, 5*time.Millisecond)

	_, _, err := r.Attach(context.Background(), v.ID)
	assert.ErrorIs(t, err, ErrVisitNotFound)
}

func TestRegistry_AttachedVisitDoesNotExpire(t *testing.T) {
	srv := realtimetest.NewServer()
	t.Cleanup(srv.Close)
	r := newTestRegistry(t, srv, Options{TTL: 20 * time.Millisecond, CleanupInterval: 5 * time.Millisecond})

	v := r.Mount(AddCamera)
	_, _, err := r.Attach(context.Background(), v.ID)
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)
	assert.False(t, v.Closed())
	got, err := r.Get(v.ID)
	require.NoError(t, err)
	assert.Same(t, v, got)
}

func TestVisit_SetCamerasAfterClose(t *testing.T) {
	srv := realtimetest.NewServer()
	t.Cleanup(srv.Close)
	r := newTestRegistry(t, srv, Options{})

	v := r.Mount(CameraGrid)
	v.SetCameras([]models.Camera{{ID: "c1", Name: "Gate"}})
	_, ok := v.Camera("c1")
	assert.True(t, ok)

	v.Close()
	v.SetCameras([]models.Camera{{ID: "c2"}})
	assert.Len(t, v.Cameras(), 1, "closed visits ignore late results")
}
