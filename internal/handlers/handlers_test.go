package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"terra-eye/internal/capture"
	"terra-eye/internal/models"
	"terra-eye/internal/services"
	"terra-eye/internal/toast"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
	)
}

func decodeResult(t *testing.T, rr *httptest.ResponseRecorder) apiResponse {
	t.Helper()
	var out apiResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func jsonRequest(method, target string, body any) *http.Request {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(method, target, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHandleDashboard(t *testing.T) {
	f := newFixture(t)
	f.dashboard.stats = models.DashboardStats{TotalCameras: 3, TotalEmployees: 7, TotalLogs: 42, ActiveToday: 5}

	rr := f.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body := rr.Body.String()
	assert.Contains(t, body, "Total Cameras<b>3</b>")
	assert.Contains(t, body, "Checked In Today<b>5</b>")
	assert.Contains(t, body, `class="active"`)
	assert.Equal(t, 1, f.visits.Len())
	visitID(t, body)
}

func TestHandleDashboard_StatsFailureBecomesToast(t *testing.T) {
	f := newFixture(t)
	f.dashboard.err = errors.New("backend down")

	rr := f.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	_, toasts, err := f.visits.Attach(context.Background(), visitID(t, rr.Body.String()))
	require.NoError(t, err)
	assert.Equal(t, []string{"Failed to fetch dashboard stats"}, drain(toasts, 100*time.Millisecond))
}

func TestHandleCameraGrid(t *testing.T) {
	tests := []struct {
		name     string
		cameras  []models.Camera
		contains []string
	}{
		{
			name:     "Empty state",
			contains: []string{"0 Cameras Connected", "No cameras found"},
		},
		{
			name:     "Single camera",
			cameras:  []models.Camera{{ID: "c1", Name: "Gate"}},
			contains: []string{"1 Camera Connected", "http://models.test/video_feed/c1", "Gate"},
		},
		{
			name:     "Several cameras",
			cameras:  []models.Camera{{ID: "c1", Name: "Gate"}, {ID: "c2", Name: "Dock"}},
			contains: []string{"2 Cameras Connected", "Dock", `<option value="m1">Fire</option>`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.cameras.cameras = tt.cameras

			rr := f.do(httptest.NewRequest(http.MethodGet, "/camera-grid", nil))
			require.Equal(t, http.StatusOK, rr.Code)
			for _, want := range tt.contains {
				assert.Contains(t, rr.Body.String(), want)
			}

			v, err := f.visits.Get(visitID(t, rr.Body.String()))
			require.NoError(t, err)
			assert.Len(t, v.Cameras(), len(tt.cameras), "visit holds the camera list for alert lookups")
		})
	}
}

func TestHandleEmployees(t *testing.T) {
	f := newFixture(t)
	f.employees.roster = []services.EmployeeWithStatus{
		{Employee: models.Employee{ID: "e1", Name: "Asha"}, Status: models.StatusPresent},
		{Employee: models.Employee{ID: "e2", Name: "Ravi"}, Status: models.StatusCheckedOut},
	}
	f.employees.logs = []models.AttendanceLog{
		{EmployeeID: "e1", EmployeeName: "Asha", GestureDetected: "thumb_up", Timestamp: models.NewDateTime(time.Now().Add(-time.Hour))},
		{EmployeeID: "e2", EmployeeName: "Ravi", GestureDetected: "thumb_down", Timestamp: models.NewDateTime(time.Now())},
	}

	rr := f.do(httptest.NewRequest(http.MethodGet, "/employees", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body := rr.Body.String()
	assert.Contains(t, body, "Checked Out")
	assert.Contains(t, body, "Check In")
	assert.Contains(t, body, "Check Out")
	assert.Contains(t, body, "5.0 MiB")
}

func TestHandleAddCamera_RedirectsWithFlash(t *testing.T) {
	f := newFixture(t)

	form := url.Values{"name": {"Gate"}, "rtsp_url": {"rtsp://10.0.0.2/live"}}
	req := httptest.NewRequest(http.MethodPost, "/add-camera", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := f.do(req)

	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/camera-grid", rr.Header().Get("Location"))
	require.Len(t, f.cameras.added, 1)
	assert.Equal(t, 554, f.cameras.added[0].Port, "defaults fill absent fields")

	next := httptest.NewRequest(http.MethodGet, "/camera-grid", nil)
	for _, c := range rr.Result().Cookies() {
		next.AddCookie(c)
	}
	page := f.do(next)
	require.Equal(t, http.StatusOK, page.Code)

	_, toasts, err := f.visits.Attach(context.Background(), visitID(t, page.Body.String()))
	require.NoError(t, err)
	assert.Contains(t, drain(toasts, 100*time.Millisecond), "Camera added successfully")
}

func TestHandleAddCamera_InvalidRerenders(t *testing.T) {
	f := newFixture(t)

	form := url.Values{"name": {""}, "rtsp_url": {"not a url"}, "ip_address": {"300.1.1.1"}}
	req := httptest.NewRequest(http.MethodPost, "/add-camera", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := f.do(req)

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), `class="error"`)
	assert.Contains(t, rr.Body.String(), `value="300.1.1.1"`)
	assert.Empty(t, f.cameras.added)
}

func TestHandleDeleteCamera(t *testing.T) {
	f := newFixture(t)
	f.cameras.cameras = []models.Camera{{ID: "c1", Name: "Gate"}, {ID: "c2", Name: "Dock"}}

	page := f.do(httptest.NewRequest(http.MethodGet, "/camera-grid", nil))
	id := visitID(t, page.Body.String())

	rr := f.do(httptest.NewRequest(http.MethodDelete, "/api/cameras/c1?visit="+id, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	out := decodeResult(t, rr)
	assert.True(t, out.OK)
	assert.Equal(t, "Camera deleted successfully", out.Toast.Message)

	v, err := f.visits.Get(id)
	require.NoError(t, err)
	_, ok := v.Camera("c1")
	assert.False(t, ok, "deleted camera is gone from the visit after reload")

	f.cameras.delErr = errors.New("boom")
	rr = f.do(httptest.NewRequest(http.MethodDelete, "/api/cameras/c2", nil))
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Equal(t, "Failed to delete camera", decodeResult(t, rr).Toast.Message)
}

func TestHandleModelControl(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		err        error
		wantStatus int
		wantOK     bool
	}{
		{
			name:       "Start succeeds",
			body:       modelControlBody{CameraID: "c1", ModelID: "m1", Action: models.ActionStart},
			wantStatus: http.StatusOK,
			wantOK:     true,
		},
		{
			name:       "No employees",
			body:       modelControlBody{CameraID: "c1", ModelID: "m1", Action: models.ActionStart},
			err:        services.ErrNoEmployees,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "Model server failure",
			body:       modelControlBody{CameraID: "c1", ModelID: "m1", Action: models.ActionStop},
			err:        errors.New("HTTP error! status: 500"),
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "Invalid JSON body",
			body:       "invalid json",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.models.err = tt.err

			var req *http.Request
			if s, ok := tt.body.(string); ok {
				req = httptest.NewRequest(http.MethodPost, "/api/model-control", strings.NewReader(s))
			} else {
				req = jsonRequest(http.MethodPost, "/api/model-control", tt.body)
			}
			rr := f.do(req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			out := decodeResult(t, rr)
			assert.Equal(t, tt.wantOK, out.OK)
			assert.NotNil(t, out.Toast)
		})
	}
}

func TestSession_TokenReachesModelControl(t *testing.T) {
	f := newFixture(t)

	form := url.Values{"identity": {"ops@example.com"}, "password": {"secret"}}
	req := httptest.NewRequest(http.MethodPost, "/session", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", "http://example.com/camera-grid")
	rr := f.do(req)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/camera-grid", rr.Header().Get("Location"))

	mc := jsonRequest(http.MethodPost, "/api/model-control",
		modelControlBody{CameraID: "c1", ModelID: "m1", Action: models.ActionStart})
	for _, c := range rr.Result().Cookies() {
		mc.AddCookie(c)
	}
	require.Equal(t, http.StatusOK, f.do(mc).Code)
	assert.Equal(t, "tok-123", f.models.lastToken)
}

func TestSession_BadPassword(t *testing.T) {
	f := newFixture(t)

	form := url.Values{"identity": {"ops@example.com"}, "password": {"wrong"}}
	req := httptest.NewRequest(http.MethodPost, "/session", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := f.do(req)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))

	mc := jsonRequest(http.MethodPost, "/api/model-control",
		modelControlBody{CameraID: "c1", ModelID: "m1", Action: models.ActionStart})
	for _, c := range rr.Result().Cookies() {
		mc.AddCookie(c)
	}
	f.do(mc)
	assert.Empty(t, f.models.lastToken)
}

func TestCaptureAndRegisterEmployee(t *testing.T) {
	f := newFixture(t)
	f.cameras.cameras = []models.Camera{{ID: "c1", Name: "Gate"}}

	page := f.do(httptest.NewRequest(http.MethodGet, "/employees", nil))
	id := visitID(t, page.Body.String())
	base := "/api/capture/" + id + "/"

	rr := f.do(jsonRequest(http.MethodPost, base+"camera", map[string]string{"camera_id": "c1"}))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(httptest.NewRequest(http.MethodPost, base+"encode", nil))
	assert.Equal(t, http.StatusConflict, rr.Code, "encoding needs a photo")

	rr = f.do(httptest.NewRequest(http.MethodPost, base+"frame", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, capture.MsgCaptured, decodeResult(t, rr).Toast.Message)

	img := f.do(httptest.NewRequest(http.MethodGet, base+"image", nil))
	require.Equal(t, http.StatusOK, img.Code)
	assert.Equal(t, "image/jpeg", img.Header().Get("Content-Type"))

	rr = f.do(httptest.NewRequest(http.MethodPost, base+"encode", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, capture.MsgEncoded, decodeResult(t, rr).Toast.Message)

	rr = f.do(jsonRequest(http.MethodPost, "/api/employees", map[string]string{
		"visit_id": id, "name": "Asha", "department": "Ops", "designation": "Lead",
	}))
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "Employee added successfully", decodeResult(t, rr).Toast.Message)
}

func TestCaptureUpload(t *testing.T) {
	f := newFixture(t)
	page := f.do(httptest.NewRequest(http.MethodGet, "/employees", nil))
	id := visitID(t, page.Body.String())

	upload := func(data []byte) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("image", "face.png")
		require.NoError(t, err)
		_, _ = fw.Write(data)
		require.NoError(t, mw.Close())
		req := httptest.NewRequest(http.MethodPost, "/api/capture/"+id+"/upload", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return f.do(req)
	}

	rr := upload([]byte("definitely not an image"))
	assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
	assert.Equal(t, "Only image files are allowed", decodeResult(t, rr).Toast.Message)

	var pic bytes.Buffer
	require.NoError(t, encodePNG(&pic))
	rr = upload(pic.Bytes())
	require.Equal(t, http.StatusOK, rr.Code)
}

func encodePNG(buf *bytes.Buffer) error {
	return png.Encode(buf, image.NewGray(image.Rect(0, 0, 4, 4)))
}

func TestCapture_ExpiredVisit(t *testing.T) {
	f := newFixture(t)
	rr := f.do(httptest.NewRequest(http.MethodPost, "/api/capture/nope/frame", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, msgVisitExpired, decodeResult(t, rr).Toast.Message)
}

func TestHandleEvents(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.router)
	t.Cleanup(ts.Close)

	page := f.do(httptest.NewRequest(http.MethodGet, "/add-camera", nil))
	id := visitID(t, page.Body.String())
	v, err := f.visits.Get(id)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events/"+id, nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream; charset=utf-8", resp.Header.Get("Content-Type"))

	events := make(chan string, 16)
	go func() {
		defer close(events)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			if name, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
				events <- name
			}
		}
	}()

	waitFor := func(name string) {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case e, ok := <-events:
				if !ok {
					t.Fatalf("stream ended before %q", name)
				}
				if e == name {
					return
				}
			case <-deadline:
				t.Fatalf("timed out waiting for %q", name)
			}
		}
	}

	waitFor("connected")
	v.Push(toast.Success("Camera added successfully"))
	waitFor("toast")
	waitFor("heartbeat")

	// a second stream for the same visit is refused
	dup := f.do(httptest.NewRequest(http.MethodGet, "/events/"+id, nil))
	assert.Equal(t, http.StatusConflict, dup.Code)

	cancel()
	assert.Eventually(t, v.Closed, 2*time.Second, 10*time.Millisecond, "visit disposed when the stream ends")
	for range events {
	}
}

func TestHandleEvents_UnknownVisit(t *testing.T) {
	f := newFixture(t)
	rr := f.do(httptest.NewRequest(http.MethodGet, "/events/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleHealth(t *testing.T) {
	f := newFixture(t)
	rr := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["model_server"])
}

func TestNotFound(t *testing.T) {
	f := newFixture(t)
	rr := f.do(httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
