// Command setup_collections creates the terra-eye collections on an external
// PocketBase over its REST API and seeds the detection model catalog. It
// mirrors migrations/ for servers that do not run the embedded backend.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"terra-eye/config"
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

type field map[string]any

func text(name string, required bool) field {
	return field{"name": name, "type": "text", "required": required}
}

func number(name string, onlyInt bool) field {
	return field{"name": name, "type": "number", "onlyInt": onlyInt}
}

func date(name string, required bool) field {
	return field{"name": name, "type": "date", "required": required}
}

func boolean(name string) field {
	return field{"name": name, "type": "bool"}
}

func timestamps() []field {
	return []field{
		{"name": "created", "type": "autodate", "onCreate": true},
		{"name": "updated", "type": "autodate", "onCreate": true, "onUpdate": true},
	}
}

type collection struct {
	name   string
	fields func(ids map[string]string) []field
}

var collections = []collection{
	{"cameras", func(map[string]string) []field {
		return []field{
			text("name", true), text("location", false), text("rtsp_url", true),
			text("brand", false), text("model", false), text("resolution", false),
			number("frame_rate", true), text("lens_type", false), boolean("night_vision"),
			number("viewing_angle", true), text("ip_address", false), text("mac_address", false),
			number("port", true), text("protocol", false), text("connection_type", false),
			text("storage_type", false), text("storage_capacity", false), text("recording_mode", false),
			number("retention_period", true), date("installation_date", false),
			date("last_maintenance_date", false), text("status", false), text("firmware_version", false),
			text("username", false), {"name": "password_hash", "type": "text", "hidden": true},
			text("access_level", false),
		}
	}},
	{"employees", func(map[string]string) []field {
		return []field{
			text("name", true), text("department", true), text("designation", true),
			text("face_encoding", true), {"name": "image_url", "type": "url"},
		}
	}},
	{"employee_images", func(map[string]string) []field {
		return []field{
			text("name", false),
			{"name": "file", "type": "file", "required": true, "maxSelect": 1, "maxSize": 5 << 20,
				"mimeTypes": []string{"image/jpeg", "image/png", "image/gif", "image/webp"}},
		}
	}},
	{"models", func(map[string]string) []field {
		return []field{
			text("name", true),
			{"name": "type", "type": "select", "required": true, "maxSelect": 1,
				"values": []string{"attendance", "fire", "helmet"}},
		}
	}},
	{"attendance_logs", func(ids map[string]string) []field {
		return []field{
			{"name": "employee_id", "type": "relation", "required": true, "maxSelect": 1,
				"collectionId": ids["employees"], "cascadeDelete": true},
			text("camera_id", false), date("timestamp", true), text("gesture_detected", true),
		}
	}},
	{"fire_detections", detectionFields},
	{"helmet_violations", detectionFields},
	{"notifications", func(map[string]string) []field {
		return []field{text("message", true)}
	}},
}

func detectionFields(map[string]string) []field {
	return []field{text("camera_id", true), text("detected", true), number("confidence", false)}
}

// defaultModels seeds the model catalog when it is empty
var defaultModels = []map[string]string{
	{"name": "Attendance", "type": "attendance"},
	{"name": "Fire Detection", "type": "fire"},
	{"name": "Helmet Detection", "type": "helmet"},
}

func main() {
	log.Println("🚀 PocketBase Collection Setup Script")

	cfg, err := config.LoadConfig(os.Getenv("TERRA_CONFIG"))
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}
	url, token := cfg.PocketBaseURL, cfg.PocketBaseToken
	log.Printf("Connecting to: %s", url)

	if err := checkHealth(url); err != nil {
		log.Fatalf("❌ Cannot connect to PocketBase: %v", err)
	}
	if token == "" {
		log.Fatal("❌ POCKETBASE_TOKEN not set (a superuser token is required to create collections)")
	}

	ids := map[string]string{}
	for _, c := range collections {
		log.Printf("📦 Creating collection: %s", c.name)
		id, err := ensureCollection(url, token, c.name, c.fields(ids))
		if err != nil {
			log.Warnf("   ⚠️  %v", err)
			continue
		}
		ids[c.name] = id
	}

	if err := seedModels(url, token); err != nil {
		log.Warnf("⚠️  Seeding models failed: %v", err)
	}

	log.Println("🎉 Setup complete!")
	log.Printf("Access Admin UI: %s/_/", url)
}

func request(method, url, token string, body any) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", token)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	return data, resp.StatusCode, err
}

// ensureCollection creates the collection, or adds the missing fields to an
// existing one, and returns its id
func ensureCollection(baseURL, token, name string, fields []field) (string, error) {
	fields = append(fields, timestamps()...)
	body, status, err := request(http.MethodGet, fmt.Sprintf("%s/api/collections/%s", baseURL, name), token, nil)
	if err != nil {
		return "", err
	}

	var existing struct {
		ID     string  `json:"id"`
		Fields []field `json:"fields"`
	}
	if status == http.StatusNotFound {
		body, status, err = request(http.MethodPost, baseURL+"/api/collections", token, map[string]any{
			"name":     name,
			"type":     "base",
			"fields":   fields,
			"listRule": "",
			"viewRule": "",
		})
		if err != nil {
			return "", err
		}
		if status != http.StatusOK && status != http.StatusCreated {
			return "", fmt.Errorf("create failed: %d - %s", status, body)
		}
		if err := json.Unmarshal(body, &existing); err != nil {
			return "", err
		}
		log.Printf("   ✅ Created with %d fields", len(fields))
		return existing.ID, nil
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("lookup failed: %d - %s", status, body)
	}
	if err := json.Unmarshal(body, &existing); err != nil {
		return "", fmt.Errorf("failed to parse collection: %w", err)
	}

	have := map[string]bool{}
	for _, f := range existing.Fields {
		if n, ok := f["name"].(string); ok {
			have[n] = true
		}
	}
	var missing []field
	for _, f := range fields {
		if !have[f["name"].(string)] {
			missing = append(missing, f)
		}
	}
	if len(missing) == 0 {
		log.Printf("   All fields already exist")
		return existing.ID, nil
	}

	body, status, err = request(http.MethodPatch, fmt.Sprintf("%s/api/collections/%s", baseURL, name), token,
		map[string]any{"fields": append(existing.Fields, missing...)})
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("update failed: %d - %s", status, body)
	}
	log.Printf("   ➕ Added %d new fields", len(missing))
	return existing.ID, nil
}

func seedModels(baseURL, token string) error {
	body, status, err := request(http.MethodGet, baseURL+"/api/collections/models/records?perPage=1", token, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("list models: %d - %s", status, body)
	}
	var page struct {
		TotalItems int `json:"totalItems"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return err
	}
	if page.TotalItems > 0 {
		log.Printf("🧠 Model catalog already has %d entries", page.TotalItems)
		return nil
	}

	for _, m := range defaultModels {
		body, status, err := request(http.MethodPost, baseURL+"/api/collections/models/records", token, m)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("seed %s: %d - %s", m["name"], status, body)
		}
		log.Printf("🧠 Seeded model %s", m["name"])
	}
	return nil
}

func checkHealth(baseURL string) error {
	resp, err := httpClient.Get(baseURL + "/api/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %s", resp.Status)
	}
	log.Println("✅ PocketBase is running")
	return nil
}
