// Package repository provides PocketBase REST API implementations
package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"terra-eye/internal/models"
)

const (
	collectionCameras    = "cameras"
	collectionEmployees  = "employees"
	collectionModels     = "models"
	collectionAttendance = "attendance_logs"
	collectionImages     = "employee_images"
	collectionUsers      = "users"

	perPage = 500
)

// pbClient holds the connection details shared by every REST repository
type pbClient struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

func newPBClient(baseURL, authToken string) pbClient {
	return pbClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		authToken:  authToken,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *pbClient) addAuthHeader(req *http.Request) {
	if c.authToken != "" {
		req.Header.Set("Authorization", c.authToken)
	}
}

func (c *pbClient) recordsURL(collection string) string {
	return fmt.Sprintf("%s/api/collections/%s/records", c.baseURL, collection)
}

// do sends the request and decodes a 2xx JSON body into out (when non-nil)
func (c *pbClient) do(req *http.Request, op string, out any) error {
	c.addAuthHeader(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("❌ HTTP error during %s: %v", op, err)
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	log.Debugf("🔍 %s %s -> %d", req.Method, req.URL.Path, resp.StatusCode)

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("failed to %s: %w", op, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("failed to %s: %s - %s", op, resp.Status, string(body))
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

type listEnvelope[T any] struct {
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	TotalItems int `json:"totalItems"`
	TotalPages int `json:"totalPages"`
	Items      []T `json:"items"`
}

// listAll follows the paginated list endpoint until every page is read
func listAll[T any](ctx context.Context, c *pbClient, collection string, query url.Values) ([]T, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("perPage", fmt.Sprint(perPage))

	var items []T
	for page := 1; ; page++ {
		query.Set("page", fmt.Sprint(page))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.recordsURL(collection)+"?"+query.Encode(), nil)
		if err != nil {
			return nil, err
		}

		var env listEnvelope[T]
		if err := c.do(req, "list "+collection, &env); err != nil {
			return nil, err
		}
		items = append(items, env.Items...)
		if page >= env.TotalPages || len(env.Items) == 0 {
			break
		}
	}
	return items, nil
}

// count returns totalItems for the optional filter
func (c *pbClient) count(ctx context.Context, collection, filter string) (int, error) {
	query := url.Values{}
	query.Set("perPage", "1")
	query.Set("fields", "id")
	if filter != "" {
		query.Set("filter", filter)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.recordsURL(collection)+"?"+query.Encode(), nil)
	if err != nil {
		return 0, err
	}
	var env listEnvelope[json.RawMessage]
	if err := c.do(req, "count "+collection, &env); err != nil {
		return 0, err
	}
	return env.TotalItems, nil
}

func (c *pbClient) getOne(ctx context.Context, collection, id string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.recordsURL(collection)+"/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	return c.do(req, "get "+collection, out)
}

func (c *pbClient) create(ctx context.Context, collection string, payload, out any) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.recordsURL(collection), bytes.NewReader(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, "create "+collection, out)
}

func (c *pbClient) delete(ctx context.Context, collection, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.recordsURL(collection)+"/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	return c.do(req, "delete "+collection, nil)
}

// quote renders a string literal for a PocketBase filter expression
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}

// PocketBaseRESTCameraRepository implements CameraRepository
type PocketBaseRESTCameraRepository struct {
	pbClient
}

// NewPocketBaseRESTCameraRepository creates repository
func NewPocketBaseRESTCameraRepository(baseURL, authToken string) *PocketBaseRESTCameraRepository {
	return &PocketBaseRESTCameraRepository{pbClient: newPBClient(baseURL, authToken)}
}

func (r *PocketBaseRESTCameraRepository) List(ctx context.Context) ([]models.Camera, error) {
	return listAll[models.Camera](ctx, &r.pbClient, collectionCameras, url.Values{"sort": {"created"}})
}

func (r *PocketBaseRESTCameraRepository) Count(ctx context.Context) (int, error) {
	return r.count(ctx, collectionCameras, "")
}

func (r *PocketBaseRESTCameraRepository) Create(ctx context.Context, camera *models.Camera) error {
	var created models.Camera
	if err := r.create(ctx, collectionCameras, camera, &created); err != nil {
		return err
	}
	camera.ID = created.ID
	log.Printf("💾 Saved camera %q (%s)", camera.Name, camera.ID)
	return nil
}

func (r *PocketBaseRESTCameraRepository) Delete(ctx context.Context, id string) error {
	if err := r.delete(ctx, collectionCameras, id); err != nil {
		return err
	}
	log.Printf("🗑️ Deleted camera %s", id)
	return nil
}

// PocketBaseRESTEmployeeRepository implements EmployeeRepository
type PocketBaseRESTEmployeeRepository struct {
	pbClient
}

// NewPocketBaseRESTEmployeeRepository creates repository
func NewPocketBaseRESTEmployeeRepository(baseURL, authToken string) *PocketBaseRESTEmployeeRepository {
	return &PocketBaseRESTEmployeeRepository{pbClient: newPBClient(baseURL, authToken)}
}

func (r *PocketBaseRESTEmployeeRepository) List(ctx context.Context) ([]models.Employee, error) {
	return listAll[models.Employee](ctx, &r.pbClient, collectionEmployees, url.Values{"sort": {"name"}})
}

func (r *PocketBaseRESTEmployeeRepository) Count(ctx context.Context) (int, error) {
	return r.count(ctx, collectionEmployees, "")
}

func (r *PocketBaseRESTEmployeeRepository) GetByID(ctx context.Context, id string) (*models.Employee, error) {
	var employee models.Employee
	if err := r.getOne(ctx, collectionEmployees, id, &employee); err != nil {
		return nil, err
	}
	return &employee, nil
}

func (r *PocketBaseRESTEmployeeRepository) Create(ctx context.Context, employee *models.Employee) error {
	payload := map[string]any{
		"name":          employee.Name,
		"department":    employee.Department,
		"designation":   employee.Designation,
		"face_encoding": employee.FaceEncoding,
		"image_url":     employee.ImageURL,
	}
	var created models.Employee
	if err := r.create(ctx, collectionEmployees, payload, &created); err != nil {
		return err
	}
	employee.ID = created.ID
	employee.Created = created.Created
	log.Printf("💾 Saved employee %q (%s)", employee.Name, employee.ID)
	return nil
}

// PocketBaseRESTModelRepository implements ModelRepository
type PocketBaseRESTModelRepository struct {
	pbClient
}

// NewPocketBaseRESTModelRepository creates repository
func NewPocketBaseRESTModelRepository(baseURL, authToken string) *PocketBaseRESTModelRepository {
	return &PocketBaseRESTModelRepository{pbClient: newPBClient(baseURL, authToken)}
}

func (r *PocketBaseRESTModelRepository) List(ctx context.Context) ([]models.DetectionModel, error) {
	return listAll[models.DetectionModel](ctx, &r.pbClient, collectionModels, url.Values{"sort": {"name"}})
}

func (r *PocketBaseRESTModelRepository) GetByID(ctx context.Context, id string) (*models.DetectionModel, error) {
	var model models.DetectionModel
	if err := r.getOne(ctx, collectionModels, id, &model); err != nil {
		return nil, err
	}
	return &model, nil
}

// PocketBaseRESTAttendanceRepository implements AttendanceRepository
type PocketBaseRESTAttendanceRepository struct {
	pbClient
}

// NewPocketBaseRESTAttendanceRepository creates repository
func NewPocketBaseRESTAttendanceRepository(baseURL, authToken string) *PocketBaseRESTAttendanceRepository {
	return &PocketBaseRESTAttendanceRepository{pbClient: newPBClient(baseURL, authToken)}
}

type attendanceRecord struct {
	models.AttendanceLog
	Expand struct {
		EmployeeID *models.Employee `json:"employee_id"`
	} `json:"expand"`
}

func (r *PocketBaseRESTAttendanceRepository) List(ctx context.Context) ([]models.AttendanceLog, error) {
	records, err := listAll[attendanceRecord](ctx, &r.pbClient, collectionAttendance, url.Values{
		"sort":   {"-timestamp"},
		"expand": {"employee_id"},
	})
	if err != nil {
		return nil, err
	}

	logs := make([]models.AttendanceLog, 0, len(records))
	for _, rec := range records {
		entry := rec.AttendanceLog
		entry.EmployeeName = "Unknown"
		if rec.Expand.EmployeeID != nil && rec.Expand.EmployeeID.Name != "" {
			entry.EmployeeName = rec.Expand.EmployeeID.Name
		}
		logs = append(logs, entry)
	}
	return logs, nil
}

func (r *PocketBaseRESTAttendanceRepository) Count(ctx context.Context) (int, error) {
	return r.count(ctx, collectionAttendance, "")
}

func (r *PocketBaseRESTAttendanceRepository) CountGestureSince(ctx context.Context, gesture string, since time.Time) (int, error) {
	filter := fmt.Sprintf("gesture_detected=%s && timestamp>=%s",
		quote(gesture), quote(since.UTC().Format(models.DateTimeLayout)))
	return r.count(ctx, collectionAttendance, filter)
}

// PocketBaseFileStorage implements FileStorage on a file-field collection
type PocketBaseFileStorage struct {
	pbClient
}

// NewPocketBaseFileStorage creates storage
func NewPocketBaseFileStorage(baseURL, authToken string) *PocketBaseFileStorage {
	return &PocketBaseFileStorage{pbClient: newPBClient(baseURL, authToken)}
}

// Upload stores data in the employee_images collection and returns its public URL
func (s *PocketBaseFileStorage) Upload(ctx context.Context, name, contentType string, data []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("name", name); err != nil {
		return "", err
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.recordsURL(collectionImages), &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var created struct {
		ID             string `json:"id"`
		CollectionName string `json:"collectionName"`
		File           string `json:"file"`
	}
	if err := s.do(req, "upload image", &created); err != nil {
		return "", err
	}
	if created.CollectionName == "" {
		created.CollectionName = collectionImages
	}

	publicURL := fmt.Sprintf("%s/api/files/%s/%s/%s",
		s.baseURL, created.CollectionName, created.ID, url.PathEscape(created.File))
	log.Printf("💾 Uploaded %s (%d bytes) -> %s", name, len(data), publicURL)
	return publicURL, nil
}

// PocketBaseRESTAuthRepository implements AuthRepository against the users collection
type PocketBaseRESTAuthRepository struct {
	pbClient
}

// NewPocketBaseRESTAuthRepository creates repository
func NewPocketBaseRESTAuthRepository(baseURL string) *PocketBaseRESTAuthRepository {
	return &PocketBaseRESTAuthRepository{pbClient: newPBClient(baseURL, "")}
}

func (r *PocketBaseRESTAuthRepository) AuthWithPassword(ctx context.Context, identity, password string) (string, error) {
	jsonData, _ := json.Marshal(map[string]string{"identity": identity, "password": password})
	apiURL := fmt.Sprintf("%s/api/collections/%s/auth-with-password", r.baseURL, collectionUsers)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var result struct {
		Token string `json:"token"`
	}
	if err := r.do(req, "authenticate", &result); err != nil {
		return "", err
	}
	return result.Token, nil
}
