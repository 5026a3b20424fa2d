package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"terra-eye/internal/capture"
	"terra-eye/internal/models"
	"terra-eye/internal/pages"
	"terra-eye/internal/realtime"
	"terra-eye/internal/realtime/realtimetest"
	"terra-eye/internal/services"
	"terra-eye/internal/toast"
)

// mockCameraService is a mock implementation for testing
type mockCameraService struct {
	mu      sync.Mutex
	cameras []models.Camera
	listErr error
	addErr  error
	delErr  error
	added   []services.CameraForm
}

func (m *mockCameraService) List(ctx context.Context) ([]models.Camera, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]models.Camera(nil), m.cameras...), nil
}

func (m *mockCameraService) Add(ctx context.Context, form services.CameraForm) (*models.Camera, *toast.Toast, error) {
	if err := form.Validate(); err != nil {
		return nil, toast.Error("Please fix the form"), err
	}
	if m.addErr != nil {
		return nil, toast.Error("Failed to add camera"), m.addErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.added = append(m.added, form)
	cam := models.Camera{ID: "new", Name: form.Name}
	m.cameras = append(m.cameras, cam)
	return &cam, toast.Success("Camera added successfully"), nil
}

func (m *mockCameraService) Delete(ctx context.Context, id string) (*toast.Toast, error) {
	if m.delErr != nil {
		return toast.Error("Failed to delete camera"), m.delErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.cameras[:0]
	for _, c := range m.cameras {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	m.cameras = kept
	return toast.Success("Camera deleted successfully"), nil
}

type mockEmployeeService struct {
	roster    []services.EmployeeWithStatus
	logs      []models.AttendanceLog
	err       error
	registers int
}

func (m *mockEmployeeService) Roster(ctx context.Context) ([]services.EmployeeWithStatus, []models.AttendanceLog, error) {
	return m.roster, m.logs, m.err
}

func (m *mockEmployeeService) Register(ctx context.Context, form services.EmployeeForm, wf *capture.Workflow) (*models.Employee, *toast.Toast, error) {
	m.registers++
	if form.Name == "" || wf.Encoding() == "" {
		return nil, toast.Error(services.ErrIncompleteEmployee.Error()), services.ErrIncompleteEmployee
	}
	return &models.Employee{ID: "e1", Name: form.Name, FaceEncoding: wf.Encoding()},
		toast.Success("Employee added successfully"), nil
}

type mockDashboard struct {
	stats models.DashboardStats
	err   error
}

func (m *mockDashboard) Stats(ctx context.Context) (models.DashboardStats, error) {
	return m.stats, m.err
}

type mockModelService struct {
	mu        sync.Mutex
	lastToken string
	err       error
}

func (m *mockModelService) Run(ctx context.Context, token, cameraID, modelID string, action models.ModelAction) (*toast.Toast, error) {
	m.mu.Lock()
	m.lastToken = token
	m.mu.Unlock()
	if m.err != nil {
		return toast.Error("Failed to " + string(action) + " model: " + m.err.Error()), m.err
	}
	return toast.Success("Model " + string(action) + "ed successfully"), nil
}

type mockCatalog struct{ models []models.DetectionModel }

func (m *mockCatalog) List(ctx context.Context) ([]models.DetectionModel, error) {
	return m.models, nil
}

type mockAuth struct{ token string }

func (m *mockAuth) AuthWithPassword(ctx context.Context, identity, password string) (string, error) {
	if password != "secret" {
		return "", errors.New("failed to authenticate: 400")
	}
	return m.token, nil
}

type mockHealth struct{ err error }

func (m *mockHealth) Health(ctx context.Context) error { return m.err }

type fakeFrames struct{}

func (fakeFrames) CaptureFrame(ctx context.Context, cameraID string) ([]byte, string, error) {
	return []byte("jpeg"), "image/jpeg", nil
}

func (fakeFrames) GenerateFaceEncoding(ctx context.Context, image []byte, filename string) (string, error) {
	return "AQID", nil
}

// Ensure mocks implement the interfaces
var (
	_ CameraService    = (*mockCameraService)(nil)
	_ EmployeeService  = (*mockEmployeeService)(nil)
	_ DashboardService = (*mockDashboard)(nil)
	_ ModelService     = (*mockModelService)(nil)
	_ ModelCatalog     = (*mockCatalog)(nil)
	_ Authenticator    = (*mockAuth)(nil)
	_ HealthChecker    = (*mockHealth)(nil)
)

type fixture struct {
	srv       *Server
	router    http.Handler
	visits    *pages.Registry
	rt        *realtimetest.Server
	cameras   *mockCameraService
	employees *mockEmployeeService
	dashboard *mockDashboard
	models    *mockModelService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	rt := realtimetest.NewServer()
	t.Cleanup(rt.Close)

	tr := &http.Transport{}
	t.Cleanup(tr.CloseIdleConnections)
	client := realtime.NewClient(rt.URL, "", &http.Client{Transport: tr})
	notifier := services.NewAlertNotifier(services.DefaultAlertPolicy(), nil, nil)
	visits := pages.NewRegistry(client, notifier, fakeFrames{}, nil, pages.Options{})
	t.Cleanup(visits.Close)

	f := &fixture{
		visits:    visits,
		rt:        rt,
		cameras:   &mockCameraService{},
		employees: &mockEmployeeService{},
		dashboard: &mockDashboard{},
		models:    &mockModelService{},
	}
	srv, err := New(Deps{
		Cameras:        f.cameras,
		Employees:      f.employees,
		Dashboard:      f.dashboard,
		Models:         f.models,
		Catalog:        &mockCatalog{models: []models.DetectionModel{{ID: "m1", Name: "Fire"}}},
		Auth:           &mockAuth{token: "tok-123"},
		ModelHost:      &mockHealth{},
		Visits:         visits,
		Sessions:       NewSessionStore("0123456789abcdef0123456789abcdef", false),
		VideoFeedURL:   func(id string) string { return "http://models.test/video_feed/" + id },
		CheckInGesture: "thumb_up",
		Heartbeat:      50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	f.srv = srv
	f.router = srv.Router()
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

var visitPattern = regexp.MustCompile(`const VISIT = "([0-9a-f-]{36})"`)

// visitID extracts the page visit id rendered into a page
func visitID(t *testing.T, body string) string {
	t.Helper()
	m := visitPattern.FindStringSubmatch(body)
	if m == nil {
		t.Fatalf("no visit id in page")
	}
	return m[1]
}

// drain reads the toasts already queued on an attached visit
func drain(c <-chan *toast.Toast, wait time.Duration) []string {
	var out []string
	timeout := time.After(wait)
	for {
		select {
		case t, ok := <-c:
			if !ok {
				return out
			}
			out = append(out, t.Message)
		case <-timeout:
			return out
		}
	}
}
