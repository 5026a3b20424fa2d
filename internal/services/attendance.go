// Package services implements business logic for the application
package services

import (
	"time"

	"terra-eye/internal/models"
)

// EmployeeWithStatus pairs an employee with today's derived status
type EmployeeWithStatus struct {
	models.Employee
	Status models.AttendanceStatus
}

// DayStart returns midnight of now's calendar day in now's location
func DayStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

// AttendanceStatus derives an employee's status for the day containing now.
// Present when there is a check-in today with no later check-out,
// Checked Out when a check-out follows the latest check-in, Absent otherwise.
func AttendanceStatus(logs []models.AttendanceLog, employeeID string, now time.Time, checkInGesture string) models.AttendanceStatus {
	start := DayStart(now)
	end := start.AddDate(0, 0, 1)

	var lastIn, lastOut time.Time
	for _, l := range logs {
		if l.EmployeeID != employeeID {
			continue
		}
		ts := l.Timestamp.In(now.Location())
		if ts.Before(start) || !ts.Before(end) {
			continue
		}

		if l.GestureDetected == checkInGesture {
			if ts.After(lastIn) {
				lastIn = ts
			}
		} else if ts.After(lastOut) {
			lastOut = ts
		}
	}

	switch {
	case lastIn.IsZero():
		return models.StatusAbsent
	case lastOut.After(lastIn):
		return models.StatusCheckedOut
	default:
		return models.StatusPresent
	}
}

// WithStatuses derives today's status for every employee
func WithStatuses(employees []models.Employee, logs []models.AttendanceLog, now time.Time, checkInGesture string) []EmployeeWithStatus {
	out := make([]EmployeeWithStatus, 0, len(employees))
	for _, e := range employees {
		out = append(out, EmployeeWithStatus{
			Employee: e,
			Status:   AttendanceStatus(logs, e.ID, now, checkInGesture),
		})
	}
	return out
}

// GestureLabel is the attendance table's event column
func GestureLabel(gesture, checkInGesture string) string {
	if gesture == checkInGesture {
		return "Check In"
	}
	return "Check Out"
}
