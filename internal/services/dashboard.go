package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"terra-eye/internal/models"
	"terra-eye/internal/repository"
)

// DashboardService computes the dashboard counters
type DashboardService struct {
	cameras    repository.CameraRepository
	employees  repository.EmployeeRepository
	attendance repository.AttendanceRepository
	checkIn    string
	now        func() time.Time
}

// NewDashboardService creates a new dashboard service
func NewDashboardService(
	cameras repository.CameraRepository,
	employees repository.EmployeeRepository,
	attendance repository.AttendanceRepository,
	checkInGesture string,
) *DashboardService {
	return &DashboardService{
		cameras:    cameras,
		employees:  employees,
		attendance: attendance,
		checkIn:    checkInGesture,
		now:        time.Now,
	}
}

// Stats fetches the four counters concurrently. Any failure fails the whole
// batch.
func (s *DashboardService) Stats(ctx context.Context) (models.DashboardStats, error) {
	var stats models.DashboardStats
	since := DayStart(s.now())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats.TotalCameras, err = s.cameras.Count(ctx)
		return wrapCount("cameras", err)
	})
	g.Go(func() (err error) {
		stats.TotalEmployees, err = s.employees.Count(ctx)
		return wrapCount("employees", err)
	})
	g.Go(func() (err error) {
		stats.TotalLogs, err = s.attendance.Count(ctx)
		return wrapCount("attendance logs", err)
	})
	g.Go(func() (err error) {
		stats.ActiveToday, err = s.attendance.CountGestureSince(ctx, s.checkIn, since)
		return wrapCount("check-ins", err)
	})

	if err := g.Wait(); err != nil {
		return models.DashboardStats{}, err
	}
	return stats, nil
}

func wrapCount(what string, err error) error {
	if err != nil {
		return fmt.Errorf("failed to count %s: %w", what, err)
	}
	return nil
}
