package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"terra-eye/internal/capture"
	"terra-eye/internal/models"
	"terra-eye/internal/toast"
)

type stubFrames struct{}

func (stubFrames) CaptureFrame(ctx context.Context, cameraID string) ([]byte, string, error) {
	return []byte("jpeg-bytes"), "image/jpeg", nil
}

func (stubFrames) GenerateFaceEncoding(ctx context.Context, image []byte, filename string) (string, error) {
	return "AQID", nil
}

func readyWorkflow(t *testing.T) *capture.Workflow {
	t.Helper()
	wf := capture.New(stubFrames{}, 0)
	wf.SelectCamera("c1")
	_, err := wf.Capture(context.Background())
	require.NoError(t, err)
	_, err = wf.GenerateEncoding(context.Background())
	require.NoError(t, err)
	return wf
}

func newEmployeeFixture() (*EmployeeService, *mockEmployeeRepo, *mockFileStorage) {
	repo := &mockEmployeeRepo{}
	files := &mockFileStorage{}
	svc := NewEmployeeService(repo, &mockAttendanceRepo{}, files, "thumb_up")
	svc.now = func() time.Time { return time.UnixMilli(1700000000123) }
	return svc, repo, files
}

var asha = EmployeeForm{Name: "Asha", Department: "Ops", Designation: "Supervisor"}

func TestEmployeeService_Register(t *testing.T) {
	svc, repo, files := newEmployeeFixture()
	wf := readyWorkflow(t)

	emp, tst, err := svc.Register(context.Background(), asha, wf)
	require.NoError(t, err)
	assert.Equal(t, "Employee added successfully", tst.Message)
	assert.Equal(t, toast.TypeSuccess, tst.Type)

	assert.Equal(t, "Asha-1700000000123.jpg", files.name)
	assert.Equal(t, "image/jpeg", files.contentType)
	assert.Equal(t, []byte("jpeg-bytes"), files.data)

	require.Len(t, repo.created, 1)
	assert.Equal(t, "1,2,3", emp.FaceEncoding)
	assert.Equal(t, "http://files.test/Asha-1700000000123.jpg", emp.ImageURL)
	assert.Equal(t, capture.StateIdle, wf.Snapshot().State, "workflow resets after registration")
}

func TestEmployeeService_RegisterIncomplete(t *testing.T) {
	tests := []struct {
		name string
		form EmployeeForm
		wf   func(t *testing.T) *capture.Workflow
	}{
		{
			name: "no encoding",
			form: asha,
			wf:   func(t *testing.T) *capture.Workflow { return capture.New(stubFrames{}, 0) },
		},
		{
			name: "missing department",
			form: EmployeeForm{Name: "Asha", Designation: "Supervisor"},
			wf:   readyWorkflow,
		},
		{
			name: "blank name",
			form: EmployeeForm{Name: "   ", Department: "Ops", Designation: "Supervisor"},
			wf:   readyWorkflow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, files := newEmployeeFixture()

			_, tst, err := svc.Register(context.Background(), tt.form, tt.wf(t))
			require.ErrorIs(t, err, ErrIncompleteEmployee)
			assert.Equal(t, "Please fill all required fields and generate face encoding", tst.Message)
			assert.Empty(t, files.name, "no upload")
			assert.Empty(t, repo.created, "no insert")
		})
	}
}

func TestEmployeeService_RegisterFailures(t *testing.T) {
	t.Run("upload fails", func(t *testing.T) {
		svc, repo, files := newEmployeeFixture()
		files.err = errors.New("storage down")
		wf := readyWorkflow(t)

		_, tst, err := svc.Register(context.Background(), asha, wf)
		require.Error(t, err)
		assert.Equal(t, "Image upload failed", tst.Message)
		assert.Empty(t, repo.created)
		assert.True(t, wf.Ready(), "workflow kept for a retry")
	})

	t.Run("insert fails", func(t *testing.T) {
		svc, repo, _ := newEmployeeFixture()
		repo.err = errors.New("db down")

		_, tst, err := svc.Register(context.Background(), asha, readyWorkflow(t))
		require.Error(t, err)
		assert.Equal(t, "Failed to add employee", tst.Message)
	})
}

func TestEmployeeService_Roster(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	repo := &mockEmployeeRepo{employees: []models.Employee{{ID: "e1", Name: "Asha"}, {ID: "e2", Name: "Ravi"}}}
	logs := &mockAttendanceRepo{logs: []models.AttendanceLog{logAt("e1", "thumb_up", now.Add(-time.Hour))}}
	svc := NewEmployeeService(repo, logs, &mockFileStorage{}, "thumb_up")
	svc.now = func() time.Time { return now }

	roster, got, err := svc.Roster(context.Background())
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Equal(t, models.StatusPresent, roster[0].Status)
	assert.Equal(t, models.StatusAbsent, roster[1].Status)
	assert.Len(t, got, 1)
}
