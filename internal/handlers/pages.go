package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	log "github.com/sirupsen/logrus"

	"terra-eye/internal/capture"
	"terra-eye/internal/models"
	"terra-eye/internal/pages"
	"terra-eye/internal/services"
	"terra-eye/internal/toast"
)

type dashboardPage struct {
	Stats  models.DashboardStats
	Loaded bool
}

type cameraView struct {
	models.Camera
	FeedURL string
}

type cameraGridPage struct {
	Cameras []cameraView
	Models  []models.DetectionModel
}

type employeesPage struct {
	Employees []services.EmployeeWithStatus
	Logs      []models.AttendanceLog
	Cameras   []models.Camera
	MaxUpload string
}

type addCameraPage struct {
	Form            services.CameraForm
	Errors          map[string]string
	StorageTypes    []string
	Protocols       []string
	ConnectionTypes []string
	RecordingModes  []string
	Statuses        []string
	AccessLevels    []string
}

// mount starts a page visit and queues any flashed toasts on it
func (s *Server) mount(w http.ResponseWriter, r *http.Request, page pages.Page) *pages.Visit {
	v := s.Visits.Mount(page)
	for _, t := range s.takeFlashes(w, r) {
		v.Push(t)
	}
	return v
}

// loadFailed reports a failed page fetch as a toast on the visit
func (s *Server) loadFailed(v *pages.Visit, op, message string, err error) {
	log.WithFields(log.Fields{"page": v.Page, "op": op}).Errorf("❌ %s: %v", message, err)
	s.Metrics.ObserveBackendError(op)
	v.Push(toast.Error(message))
}

func (s *Server) layout(r *http.Request, v *pages.Visit, title string, page any) layoutData {
	return layoutData{
		Title:    title,
		Active:   r.URL.Path,
		VisitID:  v.ID,
		Operator: s.operator(r),
		Page:     page,
	}
}

// HandleDashboard renders the counters page
func (s *Server) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	v := s.mount(w, r, pages.Dashboard)

	data := dashboardPage{}
	stats, err := s.Dashboard.Stats(r.Context())
	if err != nil {
		s.loadFailed(v, "dashboard_stats", "Failed to fetch dashboard stats", err)
	} else {
		data.Stats, data.Loaded = stats, true
	}

	s.views.render(w, http.StatusOK, "dashboard", s.layout(r, v, "Dashboard", data))
}

// HandleCameraGrid renders the live camera wall
func (s *Server) HandleCameraGrid(w http.ResponseWriter, r *http.Request) {
	v := s.mount(w, r, pages.CameraGrid)
	ctx := r.Context()

	data := cameraGridPage{}
	cameras, err := s.Cameras.List(ctx)
	if err != nil {
		s.loadFailed(v, "list_cameras", "Failed to fetch cameras", err)
	}
	v.SetCameras(cameras)
	for _, c := range cameras {
		data.Cameras = append(data.Cameras, cameraView{Camera: c, FeedURL: s.VideoFeedURL(c.ID)})
	}

	if s.Catalog != nil {
		if data.Models, err = s.Catalog.List(ctx); err != nil {
			s.loadFailed(v, "list_models", "Failed to fetch models", err)
		}
	}

	s.views.render(w, http.StatusOK, "camera_grid", s.layout(r, v, "Camera Grid", data))
}

// HandleEmployees renders the employee registry
func (s *Server) HandleEmployees(w http.ResponseWriter, r *http.Request) {
	v := s.mount(w, r, pages.Employees)
	ctx := r.Context()

	data := employeesPage{MaxUpload: humanize.IBytes(uint64(s.maxUpload()))}
	roster, logs, err := s.Employees.Roster(ctx)
	if err != nil {
		s.loadFailed(v, "list_employees", "Failed to fetch employees", err)
	}
	data.Employees, data.Logs = roster, logs

	cameras, err := s.Cameras.List(ctx)
	if err != nil {
		s.loadFailed(v, "list_cameras", "Failed to fetch cameras", err)
	}
	v.SetCameras(cameras)
	data.Cameras = cameras

	s.views.render(w, http.StatusOK, "employees", s.layout(r, v, "Employees", data))
}

func newAddCameraPage(form services.CameraForm) addCameraPage {
	return addCameraPage{
		Form:            form,
		Errors:          map[string]string{},
		StorageTypes:    services.StorageTypes,
		Protocols:       services.Protocols,
		ConnectionTypes: services.ConnectionTypes,
		RecordingModes:  services.RecordingModes,
		Statuses:        services.CameraStatuses,
		AccessLevels:    services.AccessLevels,
	}
}

// HandleAddCameraForm renders the empty camera form
func (s *Server) HandleAddCameraForm(w http.ResponseWriter, r *http.Request) {
	v := s.mount(w, r, pages.AddCamera)
	data := newAddCameraPage(services.DefaultCameraForm(time.Now()))
	s.views.render(w, http.StatusOK, "add_camera", s.layout(r, v, "Add Camera", data))
}

// HandleAddCamera stores a camera and returns to the camera grid
func (s *Server) HandleAddCamera(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	form, err := services.ParseCameraForm(r.PostForm, time.Now())
	var result *toast.Toast
	status := http.StatusUnprocessableEntity
	if err == nil {
		_, result, err = s.Cameras.Add(r.Context(), form)
		if err == nil {
			s.flash(w, r, result)
			http.Redirect(w, r, "/camera-grid", http.StatusSeeOther)
			return
		}
	} else {
		result = toast.Error("Please fix the highlighted fields")
	}

	data := newAddCameraPage(form)
	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		for field, fe := range fieldErrs {
			data.Errors[field] = fe.Error()
		}
	} else {
		status = http.StatusBadGateway
	}

	v := s.mount(w, r, pages.AddCamera)
	v.Push(result)
	s.views.render(w, status, "add_camera", s.layout(r, v, "Add Camera", data))
}

func (s *Server) maxUpload() int64 {
	if s.MaxUploadBytes > 0 {
		return s.MaxUploadBytes
	}
	return capture.DefaultMaxUploadBytes
}
