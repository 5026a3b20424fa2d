// Package modelcontrol talks to the model-serving service: it starts and
// stops detection models on cameras, grabs still frames and computes face
// encodings.
package modelcontrol

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"

	"terra-eye/internal/models"
)

// ErrFaceEncoding is the fallback when the server gives no reason
var ErrFaceEncoding = errors.New("Face encoding failed")

// Config configures the client
type Config struct {
	// BaseURL is where this process reaches the model server
	BaseURL string
	// PublicURL is where browsers reach it; defaults to BaseURL
	PublicURL string
	Timeout   time.Duration
	// Transport overrides the HTTP transport, mainly for tests
	Transport http.RoundTripper
}

// Client is the model server client
type Client struct {
	HTTP   *resty.Client
	Config Config
}

// New creates a client
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.PublicURL == "" {
		cfg.PublicURL = cfg.BaseURL
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")

	r := resty.New()
	r.SetBaseURL(cfg.BaseURL)
	r.SetTimeout(cfg.Timeout)
	r.SetHeader("Accept", "application/json")
	if cfg.Transport != nil {
		r.SetTransport(cfg.Transport)
	}

	return &Client{HTTP: r, Config: cfg}
}

// controlResponse is the model server's success body
type controlResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	CameraID string `json:"camera_id"`
	ModelID  string `json:"model_id"`
	Action   string `json:"action"`
}

// errorBody is the model server's failure body
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// errorMessage extracts the server's reason from a failed response
func errorMessage(resp *resty.Response) string {
	var body errorBody
	if err := json.Unmarshal(resp.Body(), &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return fmt.Sprintf("HTTP error! status: %d", resp.StatusCode())
}

// Control sends a start/stop command. The token is sent as a bearer
// credential even when empty. On success it returns the server's message,
// which may be empty.
func (c *Client) Control(ctx context.Context, token string, req models.ModelControlRequest) (string, error) {
	log.Printf("🎛️ Model control: %s model %s on camera %s", req.Action, req.ModelID, req.CameraID)

	resp, err := c.HTTP.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+token).
		SetBody(req).
		Post("/model-control")
	if err != nil {
		return "", err
	}

	if resp.IsError() {
		return "", errors.New(errorMessage(resp))
	}

	var result controlResponse
	if len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), &result); err != nil {
			log.Debugf("model control response is not JSON: %v", err)
		}
	}
	return result.Message, nil
}

// CaptureFrame grabs a single still frame from a camera
func (c *Client) CaptureFrame(ctx context.Context, cameraID string) ([]byte, string, error) {
	resp, err := c.HTTP.R().
		SetContext(ctx).
		SetHeader("Accept", "image/jpeg").
		Get("/capture_frame/" + url.PathEscape(cameraID))
	if err != nil {
		return nil, "", err
	}
	if resp.IsError() {
		return nil, "", fmt.Errorf("failed to capture frame: %s", errorMessage(resp))
	}
	if len(resp.Body()) == 0 {
		return nil, "", errors.New("failed to capture frame: empty response")
	}

	contentType := resp.Header().Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	log.Debugf("captured frame from camera %s: %s, %d bytes", cameraID, contentType, len(resp.Body()))
	return resp.Body(), contentType, nil
}

// GenerateFaceEncoding uploads an image and returns the base64 face encoding
func (c *Client) GenerateFaceEncoding(ctx context.Context, image []byte, filename string) (string, error) {
	resp, err := c.HTTP.R().
		SetContext(ctx).
		SetFileReader("image", filename, bytes.NewReader(image)).
		Post("/generate_face_encoding")
	if err != nil {
		return "", err
	}

	var body struct {
		FaceEncoding string `json:"face_encoding"`
		Message      string `json:"message"`
		Error        string `json:"error"`
	}
	_ = json.Unmarshal(resp.Body(), &body)

	if resp.IsError() || body.FaceEncoding == "" {
		if body.Error != "" {
			return "", errors.New(body.Error)
		}
		return "", ErrFaceEncoding
	}
	return body.FaceEncoding, nil
}

// Health checks the model server
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.HTTP.R().SetContext(ctx).Get("/health")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("model server unhealthy: %s", resp.Status())
	}
	return nil
}

// VideoFeedURL is the browser-facing live feed address of a camera
func (c *Client) VideoFeedURL(cameraID string) string {
	return fmt.Sprintf("%s/video_feed/%s", c.Config.PublicURL, url.PathEscape(cameraID))
}
