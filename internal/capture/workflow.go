// Package capture implements the face-capture workflow used when
// registering an employee: pick a camera, grab or upload a photo, turn it
// into a face encoding.
//
//	idle -> liveFeed -> captured -> ready
//	retake: captured|ready -> liveFeed
package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strconv"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	log "github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// State is a workflow state
type State string

const (
	StateIdle     State = "idle"
	StateLiveFeed State = "liveFeed"
	StateCaptured State = "captured"
	StateReady    State = "ready"
)

// Operator-facing outcomes
const (
	MsgCaptured         = "Image captured successfully"
	MsgCaptureFailed    = "Failed to capture image"
	MsgEncoded          = "Face encoding generated successfully"
	MsgEncodingFailed   = "Face encoding failed"
	MsgUnsupportedImage = "Unsupported image format"
)

// DefaultMaxUploadBytes is the upload size limit
const DefaultMaxUploadBytes = 5 << 20

var (
	ErrInvalidState = errors.New("operation not allowed in current capture state")
	ErrNotImage     = errors.New("Only image files are allowed")
	ErrFileTooLarge = errors.New("file too large")
)

// SizeError reports an upload over the limit
type SizeError struct {
	Limit int64
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("File size exceeds %s limit", humanize.IBytes(uint64(e.Limit)))
}

func (e *SizeError) Is(target error) bool { return target == ErrFileTooLarge }

// FrameSource is the model server side of the workflow
type FrameSource interface {
	CaptureFrame(ctx context.Context, cameraID string) ([]byte, string, error)
	GenerateFaceEncoding(ctx context.Context, image []byte, filename string) (string, error)
}

// Snapshot is a read-only view of the workflow
type Snapshot struct {
	State        State  `json:"state"`
	CameraID     string `json:"camera_id,omitempty"`
	HasImage     bool   `json:"has_image"`
	FaceEncoding string `json:"face_encoding,omitempty"`
}

// Workflow is the capture state machine of one page visit
type Workflow struct {
	src      FrameSource
	maxBytes int64

	mu          sync.Mutex
	state       State
	cameraID    string
	image       []byte
	contentType string
	encoding    string
}

// New creates an idle workflow. maxUploadBytes <= 0 selects the default.
func New(src FrameSource, maxUploadBytes int64) *Workflow {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &Workflow{src: src, maxBytes: maxUploadBytes, state: StateIdle}
}

// SelectCamera shows the live feed of cameraID, or goes idle for an empty id.
// Any previous image and encoding are discarded.
func (w *Workflow) SelectCamera(cameraID string) Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.cameraID = cameraID
	w.image, w.contentType, w.encoding = nil, "", ""
	if cameraID == "" {
		w.state = StateIdle
	} else {
		w.state = StateLiveFeed
	}
	return w.snapshotLocked()
}

// Capture grabs a still frame from the selected camera
func (w *Workflow) Capture(ctx context.Context) (Snapshot, error) {
	w.mu.Lock()
	if w.state != StateLiveFeed {
		snap := w.snapshotLocked()
		w.mu.Unlock()
		return snap, ErrInvalidState
	}
	cameraID := w.cameraID
	w.mu.Unlock()

	data, contentType, err := w.src.CaptureFrame(ctx, cameraID)
	if err != nil {
		log.WithField("camera_id", cameraID).Warnf("❌ capture failed: %v", err)
		return w.Snapshot(), fmt.Errorf("%s: %w", MsgCaptureFailed, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateLiveFeed || w.cameraID != cameraID {
		// camera changed while the frame was in flight
		return w.snapshotLocked(), ErrInvalidState
	}
	w.image, w.contentType, w.encoding = data, contentType, ""
	w.state = StateCaptured
	return w.snapshotLocked(), nil
}

// Upload uses an operator-supplied photo instead of a captured frame
func (w *Workflow) Upload(data []byte) (Snapshot, error) {
	if int64(len(data)) > w.maxBytes {
		return w.Snapshot(), &SizeError{Limit: w.maxBytes}
	}
	contentType, err := validateImage(data)
	if err != nil {
		return w.Snapshot(), err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.image, w.contentType, w.encoding = data, contentType, ""
	w.state = StateCaptured
	return w.snapshotLocked(), nil
}

// GenerateEncoding sends the current image to the model server
func (w *Workflow) GenerateEncoding(ctx context.Context) (Snapshot, error) {
	w.mu.Lock()
	if (w.state != StateCaptured && w.state != StateReady) || len(w.image) == 0 {
		snap := w.snapshotLocked()
		w.mu.Unlock()
		return snap, ErrInvalidState
	}
	img := w.image
	w.mu.Unlock()

	b64, err := w.src.GenerateFaceEncoding(ctx, img, "face.jpg")
	if err != nil {
		return w.Snapshot(), err
	}
	encoding, err := DecodeEncoding(b64)
	if err != nil {
		return w.Snapshot(), fmt.Errorf("%s: %w", MsgEncodingFailed, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !bytes.Equal(w.image, img) {
		// a retake or new upload replaced the image meanwhile
		return w.snapshotLocked(), ErrInvalidState
	}
	w.encoding = encoding
	w.state = StateReady
	return w.snapshotLocked(), nil
}

// Retake discards the image and encoding and returns to the live feed
// (or idle when the photo was uploaded without a camera)
func (w *Workflow) Retake() (Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateCaptured && w.state != StateReady {
		return w.snapshotLocked(), ErrInvalidState
	}
	w.image, w.contentType, w.encoding = nil, "", ""
	if w.cameraID == "" {
		w.state = StateIdle
	} else {
		w.state = StateLiveFeed
	}
	return w.snapshotLocked(), nil
}

// Reset returns to idle after a successful registration
func (w *Workflow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state, w.cameraID = StateIdle, ""
	w.image, w.contentType, w.encoding = nil, "", ""
}

// Ready reports whether an encoding is available
func (w *Workflow) Ready() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.encoding != ""
}

// Image returns the current photo
func (w *Workflow) Image() ([]byte, string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.image, w.contentType, len(w.image) > 0
}

// Encoding returns the comma-joined face encoding, empty until ready
func (w *Workflow) Encoding() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.encoding
}

// Snapshot returns the current view
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Workflow) snapshotLocked() Snapshot {
	return Snapshot{
		State:        w.state,
		CameraID:     w.cameraID,
		HasImage:     len(w.image) > 0,
		FaceEncoding: w.encoding,
	}
}

// DecodeEncoding turns the server's base64 encoding into the stored
// textual form: the decoded bytes as comma-joined decimals.
func DecodeEncoding(b64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
	if err != nil {
		return "", err
	}
	if len(raw) == 0 {
		return "", errors.New("empty face encoding")
	}
	parts := make([]string, len(raw))
	for i, b := range raw {
		parts[i] = strconv.Itoa(int(b))
	}
	return strings.Join(parts, ","), nil
}

// validateImage sniffs the content type and checks the image decodes
func validateImage(data []byte) (string, error) {
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", ErrNotImage
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("%s: %w", MsgUnsupportedImage, err)
	}
	return mt.String(), nil
}
