package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	log "github.com/sirupsen/logrus"

	"terra-eye/internal/capture"
	"terra-eye/internal/models"
	"terra-eye/internal/repository"
	"terra-eye/internal/toast"
)

var ErrIncompleteEmployee = errors.New("Please fill all required fields and generate face encoding")

// EmployeeForm is the add-employee form
type EmployeeForm struct {
	Name        string `json:"name"`
	Department  string `json:"department"`
	Designation string `json:"designation"`
}

// Validate checks the required fields
func (f EmployeeForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Name, validation.Required, validation.Length(1, 100)),
		validation.Field(&f.Department, validation.Required),
		validation.Field(&f.Designation, validation.Required),
	)
}

// EmployeeService registers employees and lists them with their attendance
type EmployeeService struct {
	employees  repository.EmployeeRepository
	attendance repository.AttendanceRepository
	storage    repository.FileStorage
	checkIn    string
	now        func() time.Time
}

// NewEmployeeService creates a new employee service
func NewEmployeeService(
	employees repository.EmployeeRepository,
	attendance repository.AttendanceRepository,
	storage repository.FileStorage,
	checkInGesture string,
) *EmployeeService {
	return &EmployeeService{
		employees:  employees,
		attendance: attendance,
		storage:    storage,
		checkIn:    checkInGesture,
		now:        time.Now,
	}
}

// Roster loads employees and today's attendance and derives each status
func (s *EmployeeService) Roster(ctx context.Context) ([]EmployeeWithStatus, []models.AttendanceLog, error) {
	employees, err := s.employees.List(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch employees: %w", err)
	}
	logs, err := s.attendance.List(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch attendance logs: %w", err)
	}
	return WithStatuses(employees, logs, s.now(), s.checkIn), logs, nil
}

// Register stores the captured photo and inserts the employee. The form and
// the workflow's encoding are checked before any backend call. On success the
// workflow is reset.
func (s *EmployeeService) Register(ctx context.Context, form EmployeeForm, wf *capture.Workflow) (*models.Employee, *toast.Toast, error) {
	form.Name = strings.TrimSpace(form.Name)
	form.Department = strings.TrimSpace(form.Department)
	form.Designation = strings.TrimSpace(form.Designation)

	encoding := wf.Encoding()
	image, contentType, hasImage := wf.Image()
	if err := form.Validate(); err != nil || encoding == "" || !hasImage {
		if err == nil {
			err = ErrIncompleteEmployee
		}
		return nil, toast.Error(ErrIncompleteEmployee.Error()), fmt.Errorf("%w: %v", ErrIncompleteEmployee, err)
	}

	filename := fmt.Sprintf("%s-%d.jpg", form.Name, s.now().UnixMilli())
	imageURL, err := s.storage.Upload(ctx, filename, contentType, image)
	if err != nil {
		log.Printf("❌ Image upload failed for %s: %v", form.Name, err)
		return nil, toast.Error("Image upload failed"), err
	}
	log.Printf("📤 Uploaded %s (%s)", filename, humanize.IBytes(uint64(len(image))))

	emp := models.Employee{
		Name:         form.Name,
		Department:   form.Department,
		Designation:  form.Designation,
		FaceEncoding: encoding,
		ImageURL:     imageURL,
	}
	if err := s.employees.Create(ctx, &emp); err != nil {
		log.Printf("❌ Error adding employee %s: %v", form.Name, err)
		return nil, toast.Error("Failed to add employee"), err
	}

	wf.Reset()
	log.Printf("✅ Employee registered: %s (%s)", emp.Name, emp.ID)
	return &emp, toast.Success("Employee added successfully"), nil
}
