package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"terra-eye/internal/capture"
	"terra-eye/internal/models"
	"terra-eye/internal/pages"
	"terra-eye/internal/services"
	"terra-eye/internal/toast"
)

const msgVisitExpired = "This page has expired. Please reload."

// visit resolves the page visit named in the route, answering 404 itself
func (s *Server) visit(w http.ResponseWriter, r *http.Request) (*pages.Visit, bool) {
	v, err := s.Visits.Get(mux.Vars(r)["visit"])
	if err != nil {
		writeResult(w, http.StatusNotFound, toast.Error(msgVisitExpired), nil)
		return nil, false
	}
	return v, true
}

// HandleDeleteCamera removes a camera and reloads the visit's camera list
func (s *Server) HandleDeleteCamera(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		return
	}
	id := mux.Vars(r)["id"]
	ctx := r.Context()

	result, err := s.Cameras.Delete(ctx, id)
	if err != nil {
		s.Metrics.ObserveBackendError("delete_camera")
		writeResult(w, http.StatusBadGateway, result, nil)
		return
	}

	cameras, err := s.Cameras.List(ctx)
	if err != nil {
		log.Printf("❌ Error reloading cameras after delete: %v", err)
		writeResult(w, http.StatusOK, result, nil)
		return
	}
	if visitID := r.URL.Query().Get("visit"); visitID != "" {
		if v, err := s.Visits.Get(visitID); err == nil {
			v.SetCameras(cameras)
		}
	}
	writeResult(w, http.StatusOK, result, cameras)
}

type modelControlBody struct {
	CameraID string             `json:"camera_id"`
	ModelID  string             `json:"model_id"`
	Action   models.ModelAction `json:"action"`
}

// HandleModelControl starts or stops a model on a camera with the operator's token
func (s *Server) HandleModelControl(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		return
	}
	var body modelControlBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeResult(w, http.StatusBadRequest, toast.Error("Invalid request body"), nil)
		return
	}

	result, err := s.Models.Run(r.Context(), s.token(r), body.CameraID, body.ModelID, body.Action)
	switch {
	case err == nil:
		writeResult(w, http.StatusOK, result, nil)
	case errors.Is(err, services.ErrNoEmployees),
		errors.Is(err, services.ErrSelectionRequired),
		errors.Is(err, services.ErrInvalidAction):
		writeResult(w, http.StatusUnprocessableEntity, result, nil)
	default:
		writeResult(w, http.StatusBadGateway, result, nil)
	}
}

type captureResponse struct {
	capture.Snapshot
	FeedURL string `json:"feed_url,omitempty"`
}

// HandleCapture drives the visit's face capture workflow
func (s *Server) HandleCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		return
	}
	v, ok := s.visit(w, r)
	if !ok {
		return
	}
	wf := v.Workflow()
	if wf == nil {
		writeResult(w, http.StatusServiceUnavailable, toast.Error("Face capture is not available"), nil)
		return
	}
	ctx := r.Context()

	var (
		snap   capture.Snapshot
		result *toast.Toast
		err    error
	)
	switch step := mux.Vars(r)["step"]; step {
	case "camera":
		var body struct {
			CameraID string `json:"camera_id"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			writeResult(w, http.StatusBadRequest, toast.Error("Invalid request body"), nil)
			return
		}
		snap = wf.SelectCamera(body.CameraID)

	case "frame":
		snap, err = wf.Capture(ctx)
		if err == nil {
			result = toast.Success(capture.MsgCaptured)
		} else if !errors.Is(err, capture.ErrInvalidState) {
			result = toast.Error(capture.MsgCaptureFailed)
		}

	case "upload":
		var data []byte
		data, err = s.readUpload(w, r)
		if err == nil {
			snap, err = wf.Upload(data)
		}
		if err != nil {
			result = toast.Error(uploadMessage(err))
		}

	case "encode":
		snap, err = wf.GenerateEncoding(ctx)
		if err == nil {
			result = toast.Success(capture.MsgEncoded)
		} else if !errors.Is(err, capture.ErrInvalidState) {
			result = toast.Error(err.Error())
		}

	case "retake":
		snap, err = wf.Retake()

	default:
		writeResult(w, http.StatusNotFound, nil, nil)
		return
	}

	if errors.Is(err, capture.ErrInvalidState) {
		result = toast.Error("Capture or upload a photo first")
	}
	if v.Closed() {
		writeResult(w, http.StatusNotFound, toast.Error(msgVisitExpired), nil)
		return
	}

	resp := captureResponse{Snapshot: snap}
	if snap.State == capture.StateLiveFeed {
		resp.FeedURL = s.VideoFeedURL(snap.CameraID)
	}
	writeResult(w, captureStatus(err), result, resp)
}

func captureStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, capture.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, capture.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, capture.ErrNotImage), strings.HasPrefix(err.Error(), capture.MsgUnsupportedImage):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, errBadUpload):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

var errBadUpload = errors.New("No image file in request")

// readUpload reads the "image" file of a multipart request
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	limit := s.maxUpload()
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	if err := r.ParseMultipartForm(limit + 1<<20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, &capture.SizeError{Limit: limit}
		}
		return nil, fmt.Errorf("%w: %v", errBadUpload, err)
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		return nil, errBadUpload
	}
	defer file.Close()
	return io.ReadAll(file)
}

func uploadMessage(err error) string {
	var sizeErr *capture.SizeError
	switch {
	case errors.As(err, &sizeErr):
		return sizeErr.Error()
	case errors.Is(err, capture.ErrNotImage):
		return capture.ErrNotImage.Error()
	case errors.Is(err, errBadUpload):
		return errBadUpload.Error()
	default:
		return capture.MsgUnsupportedImage
	}
}

// HandleCaptureImage serves the visit's current photo
func (s *Server) HandleCaptureImage(w http.ResponseWriter, r *http.Request) {
	v, ok := s.visit(w, r)
	if !ok {
		return
	}
	wf := v.Workflow()
	if wf == nil {
		http.NotFound(w, r)
		return
	}
	data, contentType, ok := wf.Image()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

type employeeBody struct {
	VisitID string `json:"visit_id"`
	services.EmployeeForm
}

// HandleAddEmployee registers an employee from the visit's captured photo
func (s *Server) HandleAddEmployee(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		return
	}
	var body employeeBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeResult(w, http.StatusBadRequest, toast.Error("Invalid request body"), nil)
		return
	}
	v, err := s.Visits.Get(body.VisitID)
	if err != nil {
		writeResult(w, http.StatusNotFound, toast.Error(msgVisitExpired), nil)
		return
	}
	wf := v.Workflow()
	if wf == nil {
		writeResult(w, http.StatusServiceUnavailable, toast.Error("Face capture is not available"), nil)
		return
	}

	emp, result, err := s.Employees.Register(r.Context(), body.EmployeeForm, wf)
	switch {
	case err == nil:
		writeResult(w, http.StatusCreated, result, emp)
	case errors.Is(err, services.ErrIncompleteEmployee):
		writeResult(w, http.StatusUnprocessableEntity, result, nil)
	default:
		s.Metrics.ObserveBackendError("create_employee")
		writeResult(w, http.StatusBadGateway, result, nil)
	}
}
