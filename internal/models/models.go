// Package models contains data structures for the application
package models

import (
	"encoding/json"
	"strings"
	"time"
)

// DateTimeLayout is the format the backend uses for date fields
const DateTimeLayout = "2006-01-02 15:04:05.000Z"

// DateTime wraps time.Time with the backend's date encoding.
// Empty strings decode to the zero time.
type DateTime struct {
	time.Time
}

// NewDateTime returns a DateTime for t
func NewDateTime(t time.Time) DateTime {
	return DateTime{Time: t}
}

func (d DateTime) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(d.UTC().Format(DateTimeLayout))
}

func (d *DateTime) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		d.Time = time.Time{}
		return nil
	}

	for _, layout := range []string{DateTimeLayout, "2006-01-02 15:04:05Z07:00", time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			d.Time = t
			return nil
		}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// Camera represents a registered CCTV camera
type Camera struct {
	ID                  string   `json:"id,omitempty"`
	Name                string   `json:"name"`
	Location            string   `json:"location"`
	RTSPURL             string   `json:"rtsp_url"`
	Brand               string   `json:"brand"`
	Model               string   `json:"model"`
	Resolution          string   `json:"resolution"`
	FrameRate           int      `json:"frame_rate"`
	LensType            string   `json:"lens_type"`
	NightVision         bool     `json:"night_vision"`
	ViewingAngle        int      `json:"viewing_angle"`
	IPAddress           string   `json:"ip_address"`
	MACAddress          string   `json:"mac_address"`
	Port                int      `json:"port"`
	Protocol            string   `json:"protocol"`
	ConnectionType      string   `json:"connection_type"`
	StorageType         string   `json:"storage_type"`
	StorageCapacity     string   `json:"storage_capacity"`
	RecordingMode       string   `json:"recording_mode"`
	RetentionPeriod     int      `json:"retention_period"`
	InstallationDate    DateTime `json:"installation_date"`
	LastMaintenanceDate DateTime `json:"last_maintenance_date"`
	Status              string   `json:"status"`
	FirmwareVersion     string   `json:"firmware_version"`
	Username            string   `json:"username"`
	PasswordHash        string   `json:"password_hash,omitempty"`
	AccessLevel         string   `json:"access_level"`
}

// Employee represents a registered employee with a face encoding
type Employee struct {
	ID           string   `json:"id,omitempty"`
	Name         string   `json:"name"`
	Department   string   `json:"department"`
	Designation  string   `json:"designation"`
	FaceEncoding string   `json:"face_encoding"`
	ImageURL     string   `json:"image_url"`
	Created      DateTime `json:"created,omitempty"`
}

// DetectionModel is a detection model that can run against a camera
type DetectionModel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Known model types
const (
	ModelTypeAttendance = "attendance"
	ModelTypeFire       = "fire"
	ModelTypeHelmet     = "helmet"
)

// AttendanceLog is one gesture event written by the attendance model
type AttendanceLog struct {
	ID              string   `json:"id,omitempty"`
	EmployeeID      string   `json:"employee_id"`
	CameraID        string   `json:"camera_id"`
	Timestamp       DateTime `json:"timestamp"`
	GestureDetected string   `json:"gesture_detected"`

	// EmployeeName is resolved from the employee relation, not stored
	EmployeeName string `json:"-"`
}

// DetectionLog is a row of fire_detections or helmet_violations
type DetectionLog struct {
	ID         string   `json:"id,omitempty"`
	CameraID   string   `json:"camera_id"`
	Detected   string   `json:"detected"`
	Confidence float64  `json:"confidence"`
	Created    DateTime `json:"created"`
}

// Notification is a free-form message row pushed by backend jobs
type Notification struct {
	ID      string `json:"id,omitempty"`
	Message string `json:"message"`
}

// AttendanceStatus is the derived presence of an employee for a day
type AttendanceStatus string

const (
	StatusAbsent     AttendanceStatus = "Absent"
	StatusPresent    AttendanceStatus = "Present"
	StatusCheckedOut AttendanceStatus = "Checked Out"
)

// ModelAction is a model-control action
type ModelAction string

const (
	ActionStart ModelAction = "start"
	ActionStop  ModelAction = "stop"
)

// ModelControlRequest is the body sent to the model server
type ModelControlRequest struct {
	CameraID string      `json:"camera_id"`
	ModelID  string      `json:"model_id"`
	Action   ModelAction `json:"action"`
}

// DashboardStats holds the headline counts of the dashboard
type DashboardStats struct {
	TotalCameras   int
	TotalEmployees int
	TotalLogs      int
	ActiveToday    int
}
