package services

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"

	"terra-eye/internal/metrics"
	"terra-eye/internal/models"
	"terra-eye/internal/realtime"
	"terra-eye/internal/repository"
	"terra-eye/internal/toast"
)

// Backend tables that produce realtime toasts
const (
	TableAttendance    = "attendance_logs"
	TableFire          = "fire_detections"
	TableHelmet        = "helmet_violations"
	TableNotifications = "notifications"
	TableCameras       = "cameras"
)

const unknownEmployee = "Unknown"

// AlertPolicy holds the strings that decide which rows become toasts
type AlertPolicy struct {
	// FireLabel is the detected value that raises a fire alert
	FireLabel string
	// HelmetLabel is the detected value that raises a helmet alert
	HelmetLabel string
	// CheckInGesture marks a check-in; any other gesture is a check-out
	CheckInGesture string
}

// DefaultAlertPolicy returns the stock labels
func DefaultAlertPolicy() AlertPolicy {
	return AlertPolicy{
		FireLabel:      "Fire detected",
		HelmetLabel:    "No helmet detected",
		CheckInGesture: "thumb_up",
	}
}

// CameraLookup resolves a camera id against a locally held camera list
type CameraLookup interface {
	Camera(id string) (models.Camera, bool)
}

// CameraList is a CameraLookup over a fixed slice
type CameraList []models.Camera

// Camera performs a linear lookup by id
func (l CameraList) Camera(id string) (models.Camera, bool) {
	for _, c := range l {
		if c.ID == id {
			return c, true
		}
	}
	return models.Camera{}, false
}

// NameResolver maps an employee id to a display name
type NameResolver interface {
	Name(ctx context.Context, employeeID string) string
}

// EmployeeDirectory resolves employee names through the repository with a short-lived cache
type EmployeeDirectory struct {
	repo  repository.EmployeeRepository
	cache *cache.Cache
}

// DefaultNameTTL is how long a resolved employee name is reused
const DefaultNameTTL = time.Minute

// NewEmployeeDirectory creates a directory caching names for ttl
// (DefaultNameTTL when ttl <= 0)
func NewEmployeeDirectory(repo repository.EmployeeRepository, ttl time.Duration) *EmployeeDirectory {
	if ttl <= 0 {
		ttl = DefaultNameTTL
	}
	return &EmployeeDirectory{
		repo:  repo,
		cache: cache.New(ttl, 2*ttl),
	}
}

// Name returns the employee's name, or "Unknown" when it cannot be resolved
func (d *EmployeeDirectory) Name(ctx context.Context, employeeID string) string {
	if employeeID == "" {
		return unknownEmployee
	}
	if name, ok := d.cache.Get(employeeID); ok {
		return name.(string)
	}

	employee, err := d.repo.GetByID(ctx, employeeID)
	if err != nil || employee.Name == "" {
		log.WithField("employee_id", employeeID).Debugf("employee name lookup failed: %v", err)
		return unknownEmployee
	}
	d.cache.Set(employeeID, employee.Name, cache.DefaultExpiration)
	return employee.Name
}

// AlertNotifier turns backend change events into toasts
type AlertNotifier struct {
	policy  AlertPolicy
	names   NameResolver
	metrics *metrics.Metrics
}

// NewAlertNotifier creates a notifier. metrics may be nil.
func NewAlertNotifier(policy AlertPolicy, names NameResolver, m *metrics.Metrics) *AlertNotifier {
	return &AlertNotifier{policy: policy, names: names, metrics: m}
}

// AttendanceToast classifies an attendance row. Exactly one of
// "checked in" or "checked out" is produced.
func (n *AlertNotifier) AttendanceToast(employeeName, gesture string) *toast.Toast {
	if gesture == n.policy.CheckInGesture {
		return toast.Success(fmt.Sprintf("%s checked in", employeeName)).
			WithIcon("👍").WithPosition(toast.BottomRight)
	}
	return toast.Success(fmt.Sprintf("%s checked out", employeeName)).
		WithIcon("👋").WithPosition(toast.BottomRight)
}

// DetectionToast classifies a fire or helmet row. It returns nil when the
// label is not the positive one or the camera is not in cameras.
func (n *AlertNotifier) DetectionToast(table string, row models.DetectionLog, cameras CameraLookup) *toast.Toast {
	var label, icon, what string
	switch table {
	case TableFire:
		label, icon, what = n.policy.FireLabel, "🔥", "Fire detected"
	case TableHelmet:
		label, icon, what = n.policy.HelmetLabel, "⛑️", "No helmet detected"
	default:
		return nil
	}
	if row.Detected != label {
		return nil
	}

	camera, ok := cameras.Camera(row.CameraID)
	if !ok {
		log.WithFields(log.Fields{"table": table, "camera_id": row.CameraID}).
			Debug("suppressing alert for camera not in the local list")
		return nil
	}
	return toast.Error(fmt.Sprintf("%s in camera %s!", what, camera.Name)).
		WithIcon(icon).WithPosition(toast.BottomRight)
}

// Handler returns the realtime handler that classifies inserts on the
// subscribed tables and pushes the resulting toasts into sink. source
// labels the toasts in metrics and logs.
func (n *AlertNotifier) Handler(source string, cameras CameraLookup, sink toast.Sink) realtime.Handler {
	return func(ctx context.Context, ev realtime.ChangeEvent) {
		n.metrics.ObserveEvent(ev.Table)
		if ev.Action != realtime.ActionCreate {
			return
		}

		t, err := n.classify(ctx, ev, cameras)
		if err != nil {
			log.WithFields(log.Fields{"source": source, "table": ev.Table}).Warnf("⚠️ undecodable row: %v", err)
			return
		}
		if t == nil || ctx.Err() != nil {
			return
		}

		log.WithFields(log.Fields{"source": source, "table": ev.Table, "type": t.Type}).Infof("🔔 %s", t.Message)
		n.metrics.ObserveToast(source, string(t.Type))
		sink.Push(t)
	}
}

func (n *AlertNotifier) classify(ctx context.Context, ev realtime.ChangeEvent, cameras CameraLookup) (*toast.Toast, error) {
	switch ev.Table {
	case TableAttendance:
		var row models.AttendanceLog
		if err := ev.Decode(&row); err != nil {
			return nil, err
		}
		name := unknownEmployee
		if n.names != nil {
			name = n.names.Name(ctx, row.EmployeeID)
		}
		return n.AttendanceToast(name, row.GestureDetected), nil

	case TableFire, TableHelmet:
		var row models.DetectionLog
		if err := ev.Decode(&row); err != nil {
			return nil, err
		}
		return n.DetectionToast(ev.Table, row, cameras), nil

	case TableNotifications:
		var row models.Notification
		if err := ev.Decode(&row); err != nil {
			return nil, err
		}
		if row.Message == "" {
			return nil, nil
		}
		return toast.Success(row.Message).WithIcon("🔔").WithPosition(toast.BottomRight), nil
	}
	return nil, nil
}
