package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/gorilla/securecookie"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

type Config struct {
	// PocketBase External Server
	PocketBaseURL   string // PocketBase server URL (e.g., http://127.0.0.1:8090)
	PocketBaseToken string // Auth token for server-side reads

	// Model server
	ModelServerURL       string // where this process reaches the model server
	ModelServerPublicURL string // where browsers load live feeds from

	// Dashboard
	ListenAddr     string
	SessionSecret  string
	SecureCookies  bool
	VisitTTL       time.Duration
	UploadMaxBytes int64

	// Alert policy
	FireLabel      string
	HelmetLabel    string
	CheckInGesture string

	// Telegram Bot
	TelegramBotToken string
	AuthorizedChatID string

	// Other alert sinks
	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string
	MQTTTopic    string
	ShoutrrrURLs []string

	LogLevel  string
	LogFormat string
}

// Keys are the environment variable names; config files use the same
// names in any case.
func setDefaults(v *viper.Viper) {
	v.SetDefault("POCKETBASE_URL", "http://127.0.0.1:8090")
	v.SetDefault("MODEL_SERVER_URL", "http://localhost:8000")
	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("SESSION_SECURE", false)
	v.SetDefault("TERRA_VISIT_TTL", 2*time.Minute)
	v.SetDefault("TERRA_UPLOAD_MAX_BYTES", "5MiB")
	v.SetDefault("TERRA_FIRE_LABEL", "Fire detected")
	v.SetDefault("TERRA_HELMET_LABEL", "No helmet detected")
	v.SetDefault("TERRA_CHECKIN_GESTURE", "thumb_up")
	v.SetDefault("MQTT_CLIENT_ID", "terra-eye")
	v.SetDefault("MQTT_TOPIC", "terra-eye/alerts")
	v.SetDefault("TERRA_LOG_LEVEL", "info")
	v.SetDefault("TERRA_LOG_FORMAT", "text")
}

// LoadConfig reads .env, the optional config file and the environment, in
// increasing precedence
func LoadConfig(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("godotenv.Load() error: %v", err)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
		log.Printf("📄 Config file loaded: %s", v.ConfigFileUsed())
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	uploadMax, err := humanize.ParseBytes(v.GetString("TERRA_UPLOAD_MAX_BYTES"))
	if err != nil {
		return nil, fmt.Errorf("invalid TERRA_UPLOAD_MAX_BYTES: %w", err)
	}

	cfg := &Config{
		PocketBaseURL:        strings.TrimRight(v.GetString("POCKETBASE_URL"), "/"),
		PocketBaseToken:      v.GetString("POCKETBASE_TOKEN"),
		ModelServerURL:       strings.TrimRight(v.GetString("MODEL_SERVER_URL"), "/"),
		ModelServerPublicURL: strings.TrimRight(v.GetString("MODEL_SERVER_PUBLIC_URL"), "/"),
		ListenAddr:           v.GetString("LISTEN_ADDR"),
		SessionSecret:        v.GetString("SESSION_SECRET"),
		SecureCookies:        v.GetBool("SESSION_SECURE"),
		VisitTTL:             v.GetDuration("TERRA_VISIT_TTL"),
		UploadMaxBytes:       int64(uploadMax),
		FireLabel:            strings.TrimSpace(v.GetString("TERRA_FIRE_LABEL")),
		HelmetLabel:          strings.TrimSpace(v.GetString("TERRA_HELMET_LABEL")),
		CheckInGesture:       strings.TrimSpace(v.GetString("TERRA_CHECKIN_GESTURE")),
		TelegramBotToken:     v.GetString("TELEGRAM_BOT_TOKEN"),
		AuthorizedChatID:     v.GetString("AUTHORIZED_CHAT_ID"),
		MQTTBroker:           v.GetString("MQTT_BROKER"),
		MQTTClientID:         v.GetString("MQTT_CLIENT_ID"),
		MQTTUsername:         v.GetString("MQTT_USERNAME"),
		MQTTPassword:         v.GetString("MQTT_PASSWORD"),
		MQTTTopic:            v.GetString("MQTT_TOPIC"),
		ShoutrrrURLs:         splitList(v.Get("SHOUTRRR_URLS")),
		LogLevel:             v.GetString("TERRA_LOG_LEVEL"),
		LogFormat:            v.GetString("TERRA_LOG_FORMAT"),
	}
	if cfg.ModelServerPublicURL == "" {
		cfg.ModelServerPublicURL = cfg.ModelServerURL
	}
	if cfg.SessionSecret == "" {
		log.Warn("⚠️ SESSION_SECRET not set, sessions will not survive a restart")
		cfg.SessionSecret = hex.EncodeToString(securecookie.GenerateRandomKey(32))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the URLs and limits
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.PocketBaseURL, validation.Required, is.URL),
		validation.Field(&c.ModelServerURL, validation.Required, is.URL),
		validation.Field(&c.ModelServerPublicURL, is.URL),
		validation.Field(&c.ListenAddr, validation.Required),
		validation.Field(&c.SessionSecret, validation.Length(16, 0)),
		validation.Field(&c.VisitTTL, validation.Min(time.Second)),
		validation.Field(&c.UploadMaxBytes, validation.Min(int64(1))),
		validation.Field(&c.FireLabel, validation.Required),
		validation.Field(&c.HelmetLabel, validation.Required),
		validation.Field(&c.CheckInGesture, validation.Required),
		validation.Field(&c.MQTTTopic, validation.When(c.MQTTBroker != "", validation.Required)),
	)
}

// splitList accepts a YAML list or a comma/space separated string
func splitList(raw any) []string {
	var out []string
	for _, item := range cast.ToStringSlice(raw) {
		for _, part := range strings.FieldsFunc(item, func(r rune) bool { return r == ',' || r == ' ' }) {
			out = append(out, part)
		}
	}
	return out
}
