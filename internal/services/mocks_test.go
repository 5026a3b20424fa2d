package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"terra-eye/internal/models"
	"terra-eye/internal/repository"
)

type mockEmployeeRepo struct {
	mu        sync.Mutex
	employees []models.Employee
	err       error
	getCalls  int
	created   []models.Employee
}

func (m *mockEmployeeRepo) List(ctx context.Context) ([]models.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Employee(nil), m.employees...), m.err
}

func (m *mockEmployeeRepo) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.employees), m.err
}

func (m *mockEmployeeRepo) GetByID(ctx context.Context, id string) (*models.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.err != nil {
		return nil, m.err
	}
	for _, e := range m.employees {
		if e.ID == id {
			e := e
			return &e, nil
		}
	}
	return nil, fmt.Errorf("get employee: %w", repository.ErrNotFound)
}

func (m *mockEmployeeRepo) Create(ctx context.Context, employee *models.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	employee.ID = fmt.Sprintf("emp%d", len(m.employees)+1)
	m.employees = append(m.employees, *employee)
	m.created = append(m.created, *employee)
	return nil
}

type mockCameraRepo struct {
	mu      sync.Mutex
	cameras []models.Camera
	err     error
	deleted []string
}

func (m *mockCameraRepo) List(ctx context.Context) ([]models.Camera, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Camera(nil), m.cameras...), m.err
}

func (m *mockCameraRepo) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cameras), m.err
}

func (m *mockCameraRepo) Create(ctx context.Context, camera *models.Camera) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	camera.ID = fmt.Sprintf("cam%d", len(m.cameras)+1)
	m.cameras = append(m.cameras, *camera)
	return nil
}

func (m *mockCameraRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.deleted = append(m.deleted, id)
	kept := m.cameras[:0]
	for _, c := range m.cameras {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	m.cameras = kept
	return nil
}

type mockModelRepo struct {
	models []models.DetectionModel
	err    error
}

func (m *mockModelRepo) List(ctx context.Context) ([]models.DetectionModel, error) {
	return m.models, m.err
}

func (m *mockModelRepo) GetByID(ctx context.Context, id string) (*models.DetectionModel, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, md := range m.models {
		if md.ID == id {
			md := md
			return &md, nil
		}
	}
	return nil, fmt.Errorf("get model: %w", repository.ErrNotFound)
}

type mockAttendanceRepo struct {
	logs       []models.AttendanceLog
	err        error
	gestureArg string
	sinceArg   time.Time
}

func (m *mockAttendanceRepo) List(ctx context.Context) ([]models.AttendanceLog, error) {
	return m.logs, m.err
}

func (m *mockAttendanceRepo) Count(ctx context.Context) (int, error) {
	return len(m.logs), m.err
}

func (m *mockAttendanceRepo) CountGestureSince(ctx context.Context, gesture string, since time.Time) (int, error) {
	m.gestureArg, m.sinceArg = gesture, since
	n := 0
	for _, l := range m.logs {
		if l.GestureDetected == gesture && !l.Timestamp.Before(since) {
			n++
		}
	}
	return n, m.err
}

type mockFileStorage struct {
	name        string
	contentType string
	data        []byte
	err         error
}

func (m *mockFileStorage) Upload(ctx context.Context, name, contentType string, data []byte) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.name, m.contentType, m.data = name, contentType, data
	return "http://files.test/" + name, nil
}

var (
	_ repository.EmployeeRepository   = (*mockEmployeeRepo)(nil)
	_ repository.CameraRepository     = (*mockCameraRepo)(nil)
	_ repository.ModelRepository      = (*mockModelRepo)(nil)
	_ repository.AttendanceRepository = (*mockAttendanceRepo)(nil)
	_ repository.FileStorage          = (*mockFileStorage)(nil)
)
