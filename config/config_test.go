package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "0123456789abcdef0123456789abcdef")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8090", cfg.PocketBaseURL)
	assert.Equal(t, "http://localhost:8000", cfg.ModelServerURL)
	assert.Equal(t, cfg.ModelServerURL, cfg.ModelServerPublicURL, "public URL falls back to the model server URL")
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 2*time.Minute, cfg.VisitTTL)
	assert.Equal(t, int64(5<<20), cfg.UploadMaxBytes)
	assert.Equal(t, "Fire detected", cfg.FireLabel)
	assert.Equal(t, "No helmet detected", cfg.HelmetLabel)
	assert.Equal(t, "thumb_up", cfg.CheckInGesture)
	assert.Empty(t, cfg.ShoutrrrURLs)
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("POCKETBASE_URL", "http://pb.example.com:8090/")
	t.Setenv("MODEL_SERVER_URL", "http://models.internal:8000")
	t.Setenv("MODEL_SERVER_PUBLIC_URL", "https://models.example.com")
	t.Setenv("TERRA_VISIT_TTL", "90s")
	t.Setenv("TERRA_UPLOAD_MAX_BYTES", "2 MB")
	t.Setenv("TERRA_FIRE_LABEL", "fire")
	t.Setenv("SHOUTRRR_URLS", "telegram://token@telegram?chats=1, discord://t@id")
	t.Setenv("SESSION_SECRET", "0123456789abcdef")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "http://pb.example.com:8090", cfg.PocketBaseURL, "trailing slash trimmed")
	assert.Equal(t, "https://models.example.com", cfg.ModelServerPublicURL)
	assert.Equal(t, 90*time.Second, cfg.VisitTTL)
	assert.Equal(t, int64(2_000_000), cfg.UploadMaxBytes)
	assert.Equal(t, "fire", cfg.FireLabel)
	assert.Equal(t, []string{"telegram://token@telegram?chats=1", "discord://t@id"}, cfg.ShoutrrrURLs)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terra-eye.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pocketbase_url: http://file.example.com:8090
listen_addr: ":9090"
mqtt_broker: tcp://broker.example.com:1883
shoutrrr_urls:
  - generic://hooks.example.com/alerts
`), 0o600))
	t.Setenv("LISTEN_ADDR", ":7070")
	t.Setenv("SESSION_SECRET", "0123456789abcdef")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://file.example.com:8090", cfg.PocketBaseURL)
	assert.Equal(t, ":7070", cfg.ListenAddr, "environment overrides the file")
	assert.Equal(t, "tcp://broker.example.com:1883", cfg.MQTTBroker)
	assert.Equal(t, "terra-eye/alerts", cfg.MQTTTopic)
	assert.Equal(t, []string{"generic://hooks.example.com/alerts"}, cfg.ShoutrrrURLs)
}

func TestLoadConfig_GeneratesSessionSecret(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Len(t, cfg.SessionSecret, 64)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"Bad backend URL", "POCKETBASE_URL", "not a url"},
		{"Bad upload size", "TERRA_UPLOAD_MAX_BYTES", "lots"},
		{"Short session secret", "SESSION_SECRET", "short"},
		{"Empty gesture", "TERRA_CHECKIN_GESTURE", " "},
		{"Tiny visit TTL", "TERRA_VISIT_TTL", "10ms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SESSION_SECRET", "0123456789abcdef")
			t.Setenv(tt.key, tt.value)

			_, err := LoadConfig("")
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
