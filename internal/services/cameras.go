package services

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"golang.org/x/crypto/bcrypt"

	"terra-eye/internal/models"
	"terra-eye/internal/repository"
	"terra-eye/internal/toast"
)

const dateLayout = "2006-01-02"

var rtspPattern = regexp.MustCompile(`^(rtsps?|https?)://\S+$`)

// Form option lists
var (
	StorageTypes    = []string{"Local", "Cloud", "NAS"}
	Protocols       = []string{"RTSP", "HTTP", "ONVIF"}
	ConnectionTypes = []string{"Wired", "Wireless"}
	RecordingModes  = []string{"Continuous", "Motion", "Scheduled"}
	CameraStatuses  = []string{"Active", "Inactive", "Maintenance"}
	AccessLevels    = []string{"Admin", "Operator", "Viewer"}
)

// CameraForm is the Add Camera form
type CameraForm struct {
	Name                string `json:"name"`
	Location            string `json:"location"`
	RTSPURL             string `json:"rtsp_url"`
	Brand               string `json:"brand"`
	Model               string `json:"model"`
	Resolution          string `json:"resolution"`
	FrameRate           int    `json:"frame_rate"`
	LensType            string `json:"lens_type"`
	NightVision         bool   `json:"night_vision"`
	ViewingAngle        int    `json:"viewing_angle"`
	IPAddress           string `json:"ip_address"`
	MACAddress          string `json:"mac_address"`
	Port                int    `json:"port"`
	Protocol            string `json:"protocol"`
	ConnectionType      string `json:"connection_type"`
	StorageType         string `json:"storage_type"`
	StorageCapacity     string `json:"storage_capacity"`
	RecordingMode       string `json:"recording_mode"`
	RetentionPeriod     int    `json:"retention_period"`
	InstallationDate    string `json:"installation_date"`
	LastMaintenanceDate string `json:"last_maintenance_date"`
	Status              string `json:"status"`
	FirmwareVersion     string `json:"firmware_version"`
	Username            string `json:"username"`
	Password            string `json:"password"`
	AccessLevel         string `json:"access_level"`
}

// DefaultCameraForm returns the form pre-filled for a new camera
func DefaultCameraForm(now time.Time) CameraForm {
	today := now.Format(dateLayout)
	return CameraForm{
		FrameRate:           30,
		ViewingAngle:        90,
		Port:                554,
		Protocol:            "RTSP",
		ConnectionType:      "Wired",
		StorageType:         "Local",
		RecordingMode:       "Continuous",
		RetentionPeriod:     30,
		InstallationDate:    today,
		LastMaintenanceDate: today,
		Status:              "Active",
		AccessLevel:         "Admin",
	}
}

// ParseCameraForm reads a submitted form over the defaults. Absent fields
// keep their default value.
func ParseCameraForm(values url.Values, now time.Time) (CameraForm, error) {
	f := DefaultCameraForm(now)

	str := func(key string, dst *string) {
		if v, ok := values[key]; ok && len(v) > 0 {
			*dst = strings.TrimSpace(v[0])
		}
	}
	num := func(key string, dst *int) error {
		v, ok := values[key]
		if !ok || len(v) == 0 || strings.TrimSpace(v[0]) == "" {
			return nil
		}
		n, err := cast.ToIntE(strings.TrimSpace(v[0]))
		if err != nil {
			return validation.Errors{key: validation.NewError("validation_is_int", "must be a number")}
		}
		*dst = n
		return nil
	}

	str("name", &f.Name)
	str("location", &f.Location)
	str("rtsp_url", &f.RTSPURL)
	str("brand", &f.Brand)
	str("model", &f.Model)
	str("resolution", &f.Resolution)
	str("lens_type", &f.LensType)
	str("ip_address", &f.IPAddress)
	str("mac_address", &f.MACAddress)
	str("protocol", &f.Protocol)
	str("connection_type", &f.ConnectionType)
	str("storage_type", &f.StorageType)
	str("storage_capacity", &f.StorageCapacity)
	str("recording_mode", &f.RecordingMode)
	str("installation_date", &f.InstallationDate)
	str("last_maintenance_date", &f.LastMaintenanceDate)
	str("status", &f.Status)
	str("firmware_version", &f.FirmwareVersion)
	str("username", &f.Username)
	str("password", &f.Password)
	str("access_level", &f.AccessLevel)

	for key, dst := range map[string]*int{
		"frame_rate":       &f.FrameRate,
		"viewing_angle":    &f.ViewingAngle,
		"port":             &f.Port,
		"retention_period": &f.RetentionPeriod,
	} {
		if err := num(key, dst); err != nil {
			return f, err
		}
	}

	if v := values.Get("night_vision"); v != "" {
		f.NightVision = cast.ToBool(v) || v == "on"
	}
	return f, nil
}

// Validate checks required fields and formats
func (f CameraForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Name, validation.Required.Error("Camera name is required"), validation.Length(1, 100)),
		validation.Field(&f.RTSPURL, validation.Required.Error("RTSP URL is required"),
			validation.Match(rtspPattern).Error("must be an rtsp:// or http(s):// URL")),
		validation.Field(&f.IPAddress, is.IP),
		validation.Field(&f.MACAddress, is.MAC),
		validation.Field(&f.Port, validation.Min(1), validation.Max(65535)),
		validation.Field(&f.FrameRate, validation.Min(1), validation.Max(240)),
		validation.Field(&f.ViewingAngle, validation.Min(0), validation.Max(360)),
		validation.Field(&f.RetentionPeriod, validation.Min(0)),
		validation.Field(&f.StorageType, validation.In(toAny(StorageTypes)...)),
		validation.Field(&f.InstallationDate, validation.Date(dateLayout)),
		validation.Field(&f.LastMaintenanceDate, validation.Date(dateLayout)),
	)
}

// Camera converts the form to a record, hashing the device password
func (f CameraForm) Camera() (models.Camera, error) {
	cam := models.Camera{
		Name:            f.Name,
		Location:        f.Location,
		RTSPURL:         f.RTSPURL,
		Brand:           f.Brand,
		Model:           f.Model,
		Resolution:      f.Resolution,
		FrameRate:       f.FrameRate,
		LensType:        f.LensType,
		NightVision:     f.NightVision,
		ViewingAngle:    f.ViewingAngle,
		IPAddress:       f.IPAddress,
		MACAddress:      f.MACAddress,
		Port:            f.Port,
		Protocol:        f.Protocol,
		ConnectionType:  f.ConnectionType,
		StorageType:     f.StorageType,
		StorageCapacity: f.StorageCapacity,
		RecordingMode:   f.RecordingMode,
		RetentionPeriod: f.RetentionPeriod,
		Status:          f.Status,
		FirmwareVersion: f.FirmwareVersion,
		Username:        f.Username,
		AccessLevel:     f.AccessLevel,
	}
	if d, err := time.Parse(dateLayout, f.InstallationDate); err == nil {
		cam.InstallationDate = models.NewDateTime(d)
	}
	if d, err := time.Parse(dateLayout, f.LastMaintenanceDate); err == nil {
		cam.LastMaintenanceDate = models.NewDateTime(d)
	}
	if f.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(f.Password), bcrypt.DefaultCost)
		if err != nil {
			return cam, fmt.Errorf("failed to hash camera password: %w", err)
		}
		cam.PasswordHash = string(hash)
	}
	return cam, nil
}

// CameraService handles camera registration and removal
type CameraService struct {
	cameras repository.CameraRepository
}

// NewCameraService creates a new camera service
func NewCameraService(cameras repository.CameraRepository) *CameraService {
	return &CameraService{cameras: cameras}
}

// List returns all cameras
func (s *CameraService) List(ctx context.Context) ([]models.Camera, error) {
	return s.cameras.List(ctx)
}

// Add validates and stores a camera. Validation failures are returned
// before any backend call.
func (s *CameraService) Add(ctx context.Context, form CameraForm) (*models.Camera, *toast.Toast, error) {
	if err := form.Validate(); err != nil {
		return nil, toast.Error(fmt.Sprintf("Please fix the form: %v", err)), err
	}
	cam, err := form.Camera()
	if err != nil {
		return nil, toast.Error("Failed to add camera"), err
	}
	if err := s.cameras.Create(ctx, &cam); err != nil {
		log.Printf("❌ Error adding camera: %v", err)
		return nil, toast.Error("Failed to add camera"), err
	}
	return &cam, toast.Success("Camera added successfully"), nil
}

// Delete removes a camera. Callers reload their camera list on success.
func (s *CameraService) Delete(ctx context.Context, id string) (*toast.Toast, error) {
	if err := s.cameras.Delete(ctx, id); err != nil {
		log.Printf("❌ Error deleting camera %s: %v", id, err)
		return toast.Error("Failed to delete camera"), err
	}
	return toast.Success("Camera deleted successfully"), nil
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
