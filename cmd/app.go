package cmd

import (
	"net/http"

	"terra-eye/config"
	"terra-eye/internal/metrics"
	"terra-eye/internal/modelcontrol"
	"terra-eye/internal/realtime"
	"terra-eye/internal/repository"
	"terra-eye/internal/services"
)

// application holds the dependencies shared by every command
type application struct {
	cfg *config.Config

	cameraRepo     *repository.PocketBaseRESTCameraRepository
	employeeRepo   *repository.PocketBaseRESTEmployeeRepository
	modelRepo      *repository.PocketBaseRESTModelRepository
	attendanceRepo *repository.PocketBaseRESTAttendanceRepository
	storage        *repository.PocketBaseFileStorage
	auth           *repository.PocketBaseRESTAuthRepository

	modelServer *modelcontrol.Client
	realtime    *realtime.Client
	metrics     *metrics.Metrics
	notifier    *services.AlertNotifier

	cameras   *services.CameraService
	employees *services.EmployeeService
	dashboard *services.DashboardService
	modelCtl  *services.ModelControlService
}

// initApplication initializes all application dependencies
func initApplication(cfg *config.Config) *application {
	a := &application{cfg: cfg, metrics: metrics.New()}

	// Initialize repositories with PocketBase REST API
	a.cameraRepo = repository.NewPocketBaseRESTCameraRepository(cfg.PocketBaseURL, cfg.PocketBaseToken)
	a.employeeRepo = repository.NewPocketBaseRESTEmployeeRepository(cfg.PocketBaseURL, cfg.PocketBaseToken)
	a.modelRepo = repository.NewPocketBaseRESTModelRepository(cfg.PocketBaseURL, cfg.PocketBaseToken)
	a.attendanceRepo = repository.NewPocketBaseRESTAttendanceRepository(cfg.PocketBaseURL, cfg.PocketBaseToken)
	a.storage = repository.NewPocketBaseFileStorage(cfg.PocketBaseURL, cfg.PocketBaseToken)
	a.auth = repository.NewPocketBaseRESTAuthRepository(cfg.PocketBaseURL)

	a.modelServer = modelcontrol.New(modelcontrol.Config{
		BaseURL:   cfg.ModelServerURL,
		PublicURL: cfg.ModelServerPublicURL,
	})
	// no client timeout: realtime streams are long-lived
	a.realtime = realtime.NewClient(cfg.PocketBaseURL, cfg.PocketBaseToken, &http.Client{})

	policy := services.AlertPolicy{
		FireLabel:      cfg.FireLabel,
		HelmetLabel:    cfg.HelmetLabel,
		CheckInGesture: cfg.CheckInGesture,
	}
	names := services.NewEmployeeDirectory(a.employeeRepo, services.DefaultNameTTL)
	a.notifier = services.NewAlertNotifier(policy, names, a.metrics)

	// Initialize services
	a.cameras = services.NewCameraService(a.cameraRepo)
	a.employees = services.NewEmployeeService(a.employeeRepo, a.attendanceRepo, a.storage, cfg.CheckInGesture)
	a.dashboard = services.NewDashboardService(a.cameraRepo, a.employeeRepo, a.attendanceRepo, cfg.CheckInGesture)
	a.modelCtl = services.NewModelControlService(a.modelRepo, a.employeeRepo, a.modelServer, a.metrics)

	return a
}
