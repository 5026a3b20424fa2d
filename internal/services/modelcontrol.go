package services

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"terra-eye/internal/metrics"
	"terra-eye/internal/models"
	"terra-eye/internal/repository"
	"terra-eye/internal/toast"
)

var (
	ErrNoEmployees       = errors.New("No employees registered. Please add employees before starting the attendance model.")
	ErrSelectionRequired = errors.New("Please select a camera and a model")
	ErrInvalidAction     = errors.New("Invalid action")
)

// ModelController sends start/stop commands to the model server
type ModelController interface {
	Control(ctx context.Context, token string, req models.ModelControlRequest) (string, error)
}

// ModelControlService validates and issues model control commands
type ModelControlService struct {
	models     repository.ModelRepository
	employees  repository.EmployeeRepository
	controller ModelController
	metrics    *metrics.Metrics
}

// NewModelControlService creates a new model control service
func NewModelControlService(
	modelRepo repository.ModelRepository,
	employeeRepo repository.EmployeeRepository,
	controller ModelController,
	m *metrics.Metrics,
) *ModelControlService {
	return &ModelControlService{
		models:     modelRepo,
		employees:  employeeRepo,
		controller: controller,
		metrics:    m,
	}
}

// Run validates and sends the command. The returned toast describes the
// outcome in both cases; err is non-nil when the command was not applied.
func (s *ModelControlService) Run(ctx context.Context, token, cameraID, modelID string, action models.ModelAction) (*toast.Toast, error) {
	if action != models.ActionStart && action != models.ActionStop {
		return toast.Error(ErrInvalidAction.Error()), ErrInvalidAction
	}
	if cameraID == "" || modelID == "" {
		return toast.Error(ErrSelectionRequired.Error()), ErrSelectionRequired
	}

	if action == models.ActionStart {
		if err := s.preflight(ctx, modelID); err != nil {
			if errors.Is(err, ErrNoEmployees) {
				return toast.Error(err.Error()), err
			}
			return toast.Error(fmt.Sprintf("Failed to %s model: %v", action, err)), err
		}
	}

	msg, err := s.controller.Control(ctx, token, models.ModelControlRequest{
		CameraID: cameraID,
		ModelID:  modelID,
		Action:   action,
	})
	s.metrics.ObserveModelControl(string(action), err)
	if err != nil {
		log.WithFields(log.Fields{"camera_id": cameraID, "model_id": modelID, "action": action}).
			Errorf("❌ model control failed: %v", err)
		return toast.Error(fmt.Sprintf("Failed to %s model: %v", action, err)), err
	}

	if msg != "" {
		return toast.Success(fmt.Sprintf("Model %sed successfully: %s", action, msg)), nil
	}
	return toast.Success(fmt.Sprintf("Model %sed successfully", action)), nil
}

// preflight refuses to start an attendance model while no employee is registered
func (s *ModelControlService) preflight(ctx context.Context, modelID string) error {
	model, err := s.models.GetByID(ctx, modelID)
	if err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}
	if model.Type != models.ModelTypeAttendance {
		return nil
	}

	count, err := s.employees.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count employees: %w", err)
	}
	if count == 0 {
		log.WithField("model_id", modelID).Warn("⚠️ attendance model start refused: no employees registered")
		return ErrNoEmployees
	}
	return nil
}
