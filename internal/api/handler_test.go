package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"repair-tracker-backend/internal/metrics"
	"repair-tracker-backend/internal/model"
	"repair-tracker-backend/internal/photo"
	"repair-tracker-backend/internal/store"
	"repair-tracker-backend/internal/timer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testServer struct {
	router   *gin.Engine
	store    store.Store
	clock    *fakeClock
	imageDir string
	registry *prometheus.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, gormDB.AutoMigrate(&model.Machine{}, &model.Issue{}, &model.PushSubscription{}))

	dir := t.TempDir()
	imageDir := filepath.Join(dir, "images")
	photos, err := photo.NewLocalStore(imageDir, "/images")
	require.NoError(t, err)

	issuesFile := filepath.Join(dir, "issues_file.json")
	require.NoError(t, os.WriteFile(issuesFile, []byte(`{"common":["Oil leak","Worn belt"]}`), 0o644))

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	s := store.NewGormStore(gormDB)
	clock := &fakeClock{now: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
	tracker := timer.NewTracker(s, clock.Now, m)
	h := NewHandler(s, tracker, Options{
		Photos:        photos,
		MaxPhotoBytes: 1024,
		IssuesFile:    issuesFile,
		WebPush:       &webpush.Options{VAPIDPublicKey: "public-key"},
	})
	router := NewRouter(h, RouterConfig{
		RateLimitPerSec: 1000,
		RateLimitBurst:  1000,
		ImagesDir:       imageDir,
		ImagesURLPrefix: "/images",
		Requests:        m,
		Gatherer:        reg,
	})
	return &testServer{router: router, store: s, clock: clock, imageDir: imageDir, registry: reg}
}

func (ts *testServer) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) createMachine(t *testing.T, name string) uint {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/machines", gin.H{"name": name, "worker_name": "Dana"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		ID uint `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotZero(t, resp.ID)
	return resp.ID
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestCreateMachine(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createMachine(t, "Forklift 1")

	w := ts.do(t, http.MethodGet, "/machines/"+itoa(id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	m := decode[machineDetailResponse](t, w)
	assert.Equal(t, "Forklift 1", m.Name)
	assert.Equal(t, "Dana", m.WorkerName)
	assert.Equal(t, "Pending", m.Status)
	assert.Equal(t, "0:00", m.TotalTime)
	assert.Equal(t, "0:00", m.InspectionTotalTime)
	assert.Equal(t, "0:00", m.ServicingTotalTime)
	assert.Nil(t, m.StartTime)
	assert.NotNil(t, m.Issues)
	assert.Empty(t, m.Issues)
	assert.Equal(t, map[timer.Phase]bool{timer.General: false, timer.Inspection: false, timer.Servicing: false}, m.Running)
}

func TestCreateMachine_Validation(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/machines", gin.H{"name": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "name is required")

	w = ts.do(t, http.MethodPost, "/machines", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid request"}`, w.Body.String())
}

func TestListMachines(t *testing.T) {
	ts := newTestServer(t)
	ts.createMachine(t, "Forklift 1")
	ts.createMachine(t, "Loader 2")

	w := ts.do(t, http.MethodGet, "/machines", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]machineResponse](t, w)
	require.Len(t, list, 2)
	assert.Equal(t, "Forklift 1", list[0].Name)
	assert.Equal(t, "Loader 2", list[1].Name)
}

func TestGetMachine_Errors(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/machines/99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodGet, "/machines/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Invalid machine ID"}`, w.Body.String())
}

func TestInspectionTimerScenario(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createMachine(t, "Forklift 1")
	base := "/machines/" + itoa(id) + "/inspection/"

	w := ts.do(t, http.MethodPost, base+"start", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	m := decode[machineResponse](t, w)
	assert.Equal(t, "Started", m.Status)
	assert.True(t, m.Running[timer.Inspection])
	require.NotNil(t, m.InspectionStartTime)

	ts.clock.Advance(90 * time.Second)
	w = ts.do(t, http.MethodPost, base+"pause", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	m = decode[machineResponse](t, w)
	assert.Equal(t, "Paused", m.Status)
	assert.Equal(t, "0:01", m.InspectionTotalTime)
	assert.Nil(t, m.InspectionStartTime)

	ts.clock.Advance(110 * time.Second)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, base+"start", nil).Code)
	ts.clock.Advance(60 * time.Second)
	w = ts.do(t, http.MethodPut, base+"stop", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	m = decode[machineResponse](t, w)
	assert.Equal(t, "Finished", m.Status)
	assert.Equal(t, "0:02", m.InspectionTotalTime)
	assert.False(t, m.Running[timer.Inspection])

	stored, err := ts.store.GetMachine(context.Background(), id)
	require.NoError(t, err)
	assert.InDelta(t, 150, stored.Inspection.TotalTime, 0.001)
	assert.Zero(t, stored.General.TotalTime)
	assert.Zero(t, stored.Servicing.TotalTime)
}

func TestGeneralTimer(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createMachine(t, "Forklift 1")
	base := "/machines/" + itoa(id) + "/"

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, base+"start", nil).Code)
	ts.clock.Advance(3661 * time.Second)
	w := ts.do(t, http.MethodPost, base+"stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	m := decode[machineResponse](t, w)
	assert.Equal(t, "1:01", m.TotalTime)
	assert.Equal(t, "0:00", m.InspectionTotalTime)
}

func TestTimer_InvalidState(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createMachine(t, "Forklift 1")

	w := ts.do(t, http.MethodPost, "/machines/"+itoa(id)+"/servicing/pause", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "invalid timer state")

	w = ts.do(t, http.MethodPost, "/machines/404/servicing/start", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	stored, err := ts.store.GetMachine(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Pending", stored.Status)
	assert.Zero(t, stored.Servicing.TotalTime)
}

func TestUpdateMachineStatus(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createMachine(t, "Forklift 1")
	target := "/machines/" + itoa(id) + "/status"

	// Prime the cache so the write must invalidate it.
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/machines/"+itoa(id), nil).Code)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, target, gin.H{"status": "Awaiting parts"}).Code)
	m := decode[machineDetailResponse](t, ts.do(t, http.MethodGet, "/machines/"+itoa(id), nil))
	assert.Equal(t, "Awaiting parts", m.Status)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPut, target, gin.H{"status": ""}).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPut, "/machines/77/status", gin.H{"status": "x"}).Code)
}

func TestDeleteMachine(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createMachine(t, "Forklift 1")
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/machines/"+itoa(id)+"/issues", gin.H{"issue": "Oil leak"}).Code)

	w := ts.do(t, http.MethodDelete, "/machines/"+itoa(id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Machine deleted"}`, w.Body.String())

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/machines/"+itoa(id), nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, "/machines/"+itoa(id), nil).Code)

	issues, err := ts.store.ListIssues(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestIssues(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createMachine(t, "Forklift 1")
	other := ts.createMachine(t, "Loader 2")
	base := "/machines/" + itoa(id) + "/issues"

	w := ts.do(t, http.MethodPost, base, gin.H{"issue": "Oil leak", "note": "rear axle", "severity": "high"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	issues := decode[[]model.Issue](t, w)
	require.Len(t, issues, 1)
	assert.Equal(t, "Oil leak", issues[0].Issue)
	assert.Equal(t, "Pending", issues[0].Status)
	assert.Equal(t, "high", issues[0].Severity)
	issueURL := base + "/" + itoa(issues[0].ID)

	w = ts.do(t, http.MethodPost, base, gin.H{"issue": "Worn belt"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, decode[[]model.Issue](t, w), 2)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, base, gin.H{"note": "no issue"}).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/machines/999/issues", gin.H{"issue": "x"}).Code)

	w = ts.do(t, http.MethodPut, issueURL+"/note", gin.H{"note": "front axle"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "front axle", decode[[]model.Issue](t, w)[0].Note)

	w = ts.do(t, http.MethodPut, issueURL+"/severity", gin.H{"severity": "low"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "low", decode[[]model.Issue](t, w)[0].Severity)

	w = ts.do(t, http.MethodPut, issueURL+"/status", gin.H{"status": "Resolved"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Resolved", decode[[]model.Issue](t, w)[0].Status)

	w = ts.do(t, http.MethodPut, issueURL+"/note", gin.H{"severity": "wrong key"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"note is required"}`, w.Body.String())

	w = ts.do(t, http.MethodPut, issueURL+"/tracking", gin.H{"tracking_number": "1Z999", "carrier_code": "ups"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1Z999", decode[[]model.Issue](t, w)[0].TrackingNumber)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPut, issueURL+"/tracking", gin.H{"tracking_number": "1Z999"}).Code)

	// The issue belongs to id, not other.
	wrongOwner := "/machines/" + itoa(other) + "/issues/" + itoa(issues[0].ID)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPut, wrongOwner+"/note", gin.H{"note": "x"}).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, wrongOwner, nil).Code)

	w = ts.do(t, http.MethodDelete, issueURL, nil)
	require.Equal(t, http.StatusOK, w.Code)
	remaining := decode[[]model.Issue](t, w)
	require.Len(t, remaining, 1)
	assert.Equal(t, "Worn belt", remaining[0].Issue)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodDelete, base+"/zero", nil).Code)
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func uploadRequest(t *testing.T, target, field, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	return req
}

func TestUploadPhoto(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createMachine(t, "Forklift 1")
	target := "/machines/" + itoa(id) + "/photo"

	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, uploadRequest(t, target, "photo", "forklift.png", pngHeader))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[map[string]string](t, w)
	ref := resp["photo"]
	require.True(t, strings.HasPrefix(ref, "/images/machines/"+itoa(id)+"/"), ref)
	assert.True(t, strings.HasSuffix(ref, ".png"), ref)

	m := decode[machineDetailResponse](t, ts.do(t, http.MethodGet, "/machines/"+itoa(id), nil))
	assert.Equal(t, ref, m.Photo)

	w = ts.do(t, http.MethodGet, ref, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, pngHeader, w.Body.Bytes())
}

func TestUploadPhoto_ReplaceRemovesOldFile(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createMachine(t, "Forklift 1")
	target := "/machines/" + itoa(id) + "/photo"

	upload := func() string {
		w := httptest.NewRecorder()
		ts.router.ServeHTTP(w, uploadRequest(t, target, "photo", "forklift.png", pngHeader))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		return decode[map[string]string](t, w)["photo"]
	}
	localPath := func(ref string) string {
		return filepath.Join(ts.imageDir, filepath.FromSlash(strings.TrimPrefix(ref, "/images/")))
	}

	first := upload()
	require.FileExists(t, localPath(first))
	second := upload()
	require.NotEqual(t, first, second)

	assert.NoFileExists(t, localPath(first))
	assert.FileExists(t, localPath(second))
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, first, nil).Code)
}

// failingPhotoRefStore refuses to record photo references.
type failingPhotoRefStore struct {
	store.Store
}

func (failingPhotoRefStore) SetMachinePhoto(ctx context.Context, id uint, ref string) error {
	return errors.New("disk full")
}

func TestUploadPhoto_RecordFailureRemovesFile(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createMachine(t, "Forklift 1")

	photos, err := photo.NewLocalStore(ts.imageDir, "/images")
	require.NoError(t, err)
	s := failingPhotoRefStore{Store: ts.store}
	h := NewHandler(s, timer.NewTracker(s, ts.clock.Now), Options{Photos: photos, MaxPhotoBytes: 1024})
	router := NewRouter(h, RouterConfig{RateLimitPerSec: 1000, RateLimitBurst: 1000})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, "/machines/"+itoa(id)+"/photo", "photo", "forklift.png", pngHeader))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var files []string
	require.NoError(t, filepath.WalkDir(ts.imageDir, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			files = append(files, path)
		}
		return err
	}))
	assert.Empty(t, files)
}

func TestUploadPhoto_Rejected(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createMachine(t, "Forklift 1")
	target := "/machines/" + itoa(id) + "/photo"

	cases := []struct {
		name    string
		req     *http.Request
		code    int
		message string
	}{
		{"not an image", uploadRequest(t, target, "photo", "notes.txt", []byte("just some text")), http.StatusBadRequest, "photo must be an image"},
		{"wrong field", uploadRequest(t, target, "file", "forklift.png", pngHeader), http.StatusBadRequest, "photo file is required"},
		{"too large", uploadRequest(t, target, "photo", "big.png", append(append([]byte{}, pngHeader...), make([]byte, 2048)...)), http.StatusBadRequest, "photo exceeds"},
		{"missing machine", uploadRequest(t, "/machines/999/photo", "photo", "forklift.png", pngHeader), http.StatusNotFound, "not found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			ts.router.ServeHTTP(w, tc.req)
			assert.Equal(t, tc.code, w.Code)
			assert.Contains(t, w.Body.String(), tc.message)
		})
	}

	m, err := ts.store.GetMachine(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, m.Photo)
}

func TestGetIssuesFile(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/issues-file", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"common":["Oil leak","Worn belt"]}`, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
}

func TestGetIssuesFile_Missing(t *testing.T) {
	h := NewHandler(nil, nil, Options{IssuesFile: filepath.Join(t.TempDir(), "missing.json")})
	r := gin.New()
	r.GET("/issues-file", h.GetIssuesFile)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/issues-file", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Error reading issues file"}`, w.Body.String())
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createMachine(t, "Forklift 1")
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/machines/"+itoa(id)+"/start", nil).Code)

	w := ts.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `repair_tracker_timer_commands_total{action="start",phase="general",result="ok"} 1`)
	assert.Contains(t, body, `repair_tracker_http_requests_total{code="201",method="POST",route="/machines"} 1`)
}

func TestGetVAPIDPublicKey(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/vapid_public_key", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"public_key":"public-key"}`, w.Body.String())

	h := NewHandler(nil, nil, Options{})
	r := gin.New()
	r.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/vapid_public_key", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
