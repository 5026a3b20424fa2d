// Package repository defines repository interfaces for data access
package repository

import (
	"context"
	"errors"
	"time"

	"terra-eye/internal/models"
)

// ErrNotFound is returned when a single record lookup finds nothing
var ErrNotFound = errors.New("record not found")

// CameraRepository defines the interface for camera data access
type CameraRepository interface {
	// List returns every registered camera
	List(ctx context.Context) ([]models.Camera, error)
	// Count returns the number of cameras
	Count(ctx context.Context) (int, error)
	// Create inserts a camera and fills its ID
	Create(ctx context.Context, camera *models.Camera) error
	// Delete removes a camera by ID
	Delete(ctx context.Context, id string) error
}

// EmployeeRepository defines the interface for employee data access
type EmployeeRepository interface {
	List(ctx context.Context) ([]models.Employee, error)
	Count(ctx context.Context) (int, error)
	GetByID(ctx context.Context, id string) (*models.Employee, error)
	Create(ctx context.Context, employee *models.Employee) error
}

// ModelRepository defines the interface for detection model lookups
type ModelRepository interface {
	List(ctx context.Context) ([]models.DetectionModel, error)
	GetByID(ctx context.Context, id string) (*models.DetectionModel, error)
}

// AttendanceRepository defines the interface for attendance log access
type AttendanceRepository interface {
	// List returns logs newest first with EmployeeName resolved ("Unknown" when missing)
	List(ctx context.Context) ([]models.AttendanceLog, error)
	Count(ctx context.Context) (int, error)
	// CountGestureSince counts logs with the given gesture at or after since
	CountGestureSince(ctx context.Context, gesture string, since time.Time) (int, error)
}

// FileStorage stores raw objects and returns their public URL
type FileStorage interface {
	Upload(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// AuthRepository exchanges operator credentials for a bearer token
type AuthRepository interface {
	AuthWithPassword(ctx context.Context, identity, password string) (string, error)
}
