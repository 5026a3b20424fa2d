package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
)

const authenticated = "@request.auth.id != ''"

func init() {
	core.AppMigrations.Register(func(app core.App) error {
		cameras := core.NewBaseCollection("cameras")
		publicRead(cameras)
		cameras.CreateRule = types.Pointer(authenticated)
		cameras.UpdateRule = types.Pointer(authenticated)
		cameras.DeleteRule = types.Pointer(authenticated)
		cameras.Fields.Add(
			&core.TextField{Name: "name", Required: true, Max: 255},
			&core.TextField{Name: "location", Max: 255},
			&core.TextField{Name: "rtsp_url", Required: true},
			&core.TextField{Name: "brand"},
			&core.TextField{Name: "model"},
			&core.TextField{Name: "resolution"},
			&core.NumberField{Name: "frame_rate", OnlyInt: true},
			&core.TextField{Name: "lens_type"},
			&core.BoolField{Name: "night_vision"},
			&core.NumberField{Name: "viewing_angle", OnlyInt: true},
			&core.TextField{Name: "ip_address"},
			&core.TextField{Name: "mac_address"},
			&core.NumberField{Name: "port", OnlyInt: true, Min: types.Pointer(1.0), Max: types.Pointer(65535.0)},
			&core.TextField{Name: "protocol"},
			&core.TextField{Name: "connection_type"},
			&core.TextField{Name: "storage_type"},
			&core.TextField{Name: "storage_capacity"},
			&core.TextField{Name: "recording_mode"},
			&core.NumberField{Name: "retention_period", OnlyInt: true},
			&core.DateField{Name: "installation_date"},
			&core.DateField{Name: "last_maintenance_date"},
			&core.TextField{Name: "status"},
			&core.TextField{Name: "firmware_version"},
			&core.TextField{Name: "username"},
			&core.TextField{Name: "password_hash", Hidden: true},
			&core.TextField{Name: "access_level"},
		)
		withTimestamps(cameras)
		if err := app.Save(cameras); err != nil {
			return err
		}

		employees := core.NewBaseCollection("employees")
		publicRead(employees)
		employees.CreateRule = types.Pointer(authenticated)
		employees.Fields.Add(
			&core.TextField{Name: "name", Required: true, Max: 255},
			&core.TextField{Name: "department", Required: true},
			&core.TextField{Name: "designation", Required: true},
			&core.TextField{Name: "face_encoding", Required: true},
			&core.URLField{Name: "image_url"},
		)
		withTimestamps(employees)
		if err := app.Save(employees); err != nil {
			return err
		}

		images := core.NewBaseCollection("employee_images")
		publicRead(images)
		images.CreateRule = types.Pointer(authenticated)
		images.Fields.Add(
			&core.TextField{Name: "name"},
			&core.FileField{
				Name:      "file",
				Required:  true,
				MaxSelect: 1,
				MaxSize:   5 << 20,
				MimeTypes: []string{"image/jpeg", "image/png", "image/gif", "image/webp"},
			},
		)
		withTimestamps(images)
		if err := app.Save(images); err != nil {
			return err
		}

		detectionModels := core.NewBaseCollection("models")
		publicRead(detectionModels)
		detectionModels.Fields.Add(
			&core.TextField{Name: "name", Required: true},
			&core.SelectField{Name: "type", Required: true, MaxSelect: 1, Values: []string{"attendance", "fire", "helmet"}},
		)
		withTimestamps(detectionModels)
		if err := app.Save(detectionModels); err != nil {
			return err
		}
		for name, typ := range map[string]string{
			"Attendance":       "attendance",
			"Fire Detection":   "fire",
			"Helmet Detection": "helmet",
		} {
			record := core.NewRecord(detectionModels)
			record.Set("name", name)
			record.Set("type", typ)
			if err := app.Save(record); err != nil {
				return err
			}
		}

		attendance := core.NewBaseCollection("attendance_logs")
		publicRead(attendance)
		attendance.Fields.Add(
			&core.RelationField{Name: "employee_id", Required: true, MaxSelect: 1, CollectionId: employees.Id, CascadeDelete: true},
			&core.TextField{Name: "camera_id"},
			&core.DateField{Name: "timestamp", Required: true},
			&core.TextField{Name: "gesture_detected", Required: true},
		)
		withTimestamps(attendance)
		attendance.AddIndex("idx_attendance_gesture_ts", false, "gesture_detected, timestamp", "")
		if err := app.Save(attendance); err != nil {
			return err
		}

		for _, name := range []string{"fire_detections", "helmet_violations"} {
			c := core.NewBaseCollection(name)
			publicRead(c)
			c.Fields.Add(
				&core.TextField{Name: "camera_id", Required: true},
				&core.TextField{Name: "detected", Required: true},
				&core.NumberField{Name: "confidence"},
			)
			withTimestamps(c)
			if err := app.Save(c); err != nil {
				return err
			}
		}

		notifications := core.NewBaseCollection("notifications")
		publicRead(notifications)
		notifications.Fields.Add(&core.TextField{Name: "message", Required: true})
		withTimestamps(notifications)
		return app.Save(notifications)
	}, func(app core.App) error {
		for _, name := range []string{
			"notifications", "helmet_violations", "fire_detections",
			"attendance_logs", "models", "employee_images", "employees", "cameras",
		} {
			collection, err := app.FindCollectionByNameOrId(name)
			if err != nil {
				continue
			}
			if err := app.Delete(collection); err != nil {
				return err
			}
		}
		return nil
	})
}

// publicRead lets the dashboard and the model server list and watch the collection
func publicRead(c *core.Collection) {
	c.ListRule = types.Pointer("")
	c.ViewRule = types.Pointer("")
}

func withTimestamps(c *core.Collection) {
	c.Fields.Add(
		&core.AutodateField{Name: "created", OnCreate: true},
		&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
	)
}
