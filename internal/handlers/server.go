// Package handlers serves the operator pages, the JSON action API and the
// per-visit toast event streams
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	log "github.com/sirupsen/logrus"

	"terra-eye/internal/capture"
	"terra-eye/internal/metrics"
	"terra-eye/internal/middleware"
	"terra-eye/internal/models"
	"terra-eye/internal/pages"
	"terra-eye/internal/services"
	"terra-eye/internal/toast"
)

// CameraService registers and removes cameras
type CameraService interface {
	List(ctx context.Context) ([]models.Camera, error)
	Add(ctx context.Context, form services.CameraForm) (*models.Camera, *toast.Toast, error)
	Delete(ctx context.Context, id string) (*toast.Toast, error)
}

// EmployeeService lists and registers employees
type EmployeeService interface {
	Roster(ctx context.Context) ([]services.EmployeeWithStatus, []models.AttendanceLog, error)
	Register(ctx context.Context, form services.EmployeeForm, wf *capture.Workflow) (*models.Employee, *toast.Toast, error)
}

// DashboardService computes the dashboard counters
type DashboardService interface {
	Stats(ctx context.Context) (models.DashboardStats, error)
}

// ModelService starts and stops detection models
type ModelService interface {
	Run(ctx context.Context, token, cameraID, modelID string, action models.ModelAction) (*toast.Toast, error)
}

// ModelCatalog lists the available detection models
type ModelCatalog interface {
	List(ctx context.Context) ([]models.DetectionModel, error)
}

// Authenticator exchanges operator credentials for a bearer token
type Authenticator interface {
	AuthWithPassword(ctx context.Context, identity, password string) (string, error)
}

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Deps are the collaborators of the HTTP layer
type Deps struct {
	Cameras   CameraService
	Employees EmployeeService
	Dashboard DashboardService
	Models    ModelService
	Catalog   ModelCatalog
	Auth      Authenticator
	ModelHost HealthChecker
	Visits    *pages.Registry
	Sessions  sessions.Store
	Metrics   *metrics.Metrics

	// VideoFeedURL returns the browser-facing live feed of a camera
	VideoFeedURL func(cameraID string) string
	// CheckInGesture labels attendance rows as Check In
	CheckInGesture string
	// Heartbeat is the event stream keep-alive period
	Heartbeat time.Duration
	// MaxUploadBytes bounds photo uploads
	MaxUploadBytes int64
}

// Server holds the HTTP handlers
type Server struct {
	Deps
	views *views
}

// New creates the HTTP layer
func New(d Deps) (*Server, error) {
	if d.Heartbeat <= 0 {
		d.Heartbeat = 30 * time.Second
	}
	if d.VideoFeedURL == nil {
		d.VideoFeedURL = func(string) string { return "" }
	}
	v, err := loadViews(d.CheckInGesture)
	if err != nil {
		return nil, err
	}
	return &Server{Deps: d, views: v}, nil
}

// Router builds the route table
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.Recover)
	r.Use(middleware.Logger)

	// Pages
	r.HandleFunc("/", s.HandleDashboard).Methods(http.MethodGet)
	r.HandleFunc("/camera-grid", s.HandleCameraGrid).Methods(http.MethodGet)
	r.HandleFunc("/employees", s.HandleEmployees).Methods(http.MethodGet)
	r.HandleFunc("/add-camera", s.HandleAddCameraForm).Methods(http.MethodGet)
	r.HandleFunc("/add-camera", s.HandleAddCamera).Methods(http.MethodPost)

	// Operator session
	r.HandleFunc("/session", s.HandleLogin).Methods(http.MethodPost)
	r.HandleFunc("/session/logout", s.HandleLogout).Methods(http.MethodPost)

	// Toast stream
	r.HandleFunc("/events/{visit}", s.HandleEvents).Methods(http.MethodGet)

	// JSON API
	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.CORS)
	api.HandleFunc("/cameras/{id}", s.HandleDeleteCamera).Methods(http.MethodDelete, http.MethodOptions)
	api.HandleFunc("/model-control", s.HandleModelControl).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/capture/{visit}/image", s.HandleCaptureImage).Methods(http.MethodGet)
	api.HandleFunc("/capture/{visit}/{step:camera|frame|upload|encode|retake}", s.HandleCapture).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/employees", s.HandleAddEmployee).Methods(http.MethodPost, http.MethodOptions)

	// Health check endpoint (no session required)
	r.HandleFunc("/health", s.HandleHealth).Methods(http.MethodGet)
	if s.Metrics != nil {
		r.Handle("/metrics", s.Metrics.Handler()).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	return r
}

// HandleHealth reports process and model server health
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":  "ok",
		"service": "terra-eye",
	}
	if s.Visits != nil {
		body["visits"] = s.Visits.Len()
	}
	if s.ModelHost != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.ModelHost.Health(ctx); err != nil {
			body["model_server"] = "unreachable"
			body["status"] = "degraded"
		} else {
			body["model_server"] = "ok"
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	log.WithFields(log.Fields{"method": r.Method, "path": r.URL.Path}).Warn("404 unmatched route")
	writeJSON(w, http.StatusNotFound, map[string]any{
		"error":  "Not Found",
		"path":   r.URL.Path,
		"method": r.Method,
	})
}

// apiResponse is the envelope of every JSON action
type apiResponse struct {
	OK    bool         `json:"ok"`
	Toast *toast.Toast `json:"toast,omitempty"`
	Data  any          `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("❌ Error encoding response: %v", err)
	}
}

func writeResult(w http.ResponseWriter, status int, t *toast.Toast, data any) {
	writeJSON(w, status, apiResponse{OK: status < http.StatusBadRequest, Toast: t, Data: data})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
