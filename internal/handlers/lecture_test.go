package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/neka-nat/lecturia/internal/domain"
	"github.com/neka-nat/lecturia/internal/platform/logger"
	"github.com/neka-nat/lecturia/internal/storage"
)

type memStatusRepo struct {
	rows map[string]*domain.TaskStatus
}

func newMemStatusRepo() *memStatusRepo {
	return &memStatusRepo{rows: map[string]*domain.TaskStatus{}}
}

func (r *memStatusRepo) Upsert(_ context.Context, st *domain.TaskStatus) error {
	cp := *st
	r.rows[st.LectureID] = &cp
	return nil
}

func (r *memStatusRepo) GetByLectureID(_ context.Context, lectureID string) (*domain.TaskStatus, error) {
	st, ok := r.rows[lectureID]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (r *memStatusRepo) Delete(_ context.Context, lectureID string) error {
	delete(r.rows, lectureID)
	return nil
}

type pipelineCall struct {
	lectureID string
	cfg       domain.MovieConfig
}

// fakePipeline records dispatched runs on a channel so tests can wait for
// the background goroutine.
type fakePipeline struct {
	created chan pipelineCall
	deleted chan string
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{
		created: make(chan pipelineCall, 4),
		deleted: make(chan string, 4),
	}
}

func (f *fakePipeline) CreateLecture(_ context.Context, lectureID string, cfg domain.MovieConfig) error {
	f.created <- pipelineCall{lectureID: lectureID, cfg: cfg}
	return nil
}

func (f *fakePipeline) DeleteLecture(_ context.Context, lectureID string) error {
	f.deleted <- lectureID
	return nil
}

func (f *fakePipeline) waitForCreate(t *testing.T) pipelineCall {
	t.Helper()
	select {
	case call := <-f.created:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline run never dispatched")
		return pipelineCall{}
	}
}

func newTestRouter(store storage.ArtifactStore, status *memStatusRepo, pipe LecturePipeline) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewLectureHandler(logger.NewNop(), store, status, pipe, map[string]domain.Character{
		"woman": {Name: "Sara", SpriteName: "sprite_woman.png", VoiceType: "sage"},
	})
	r := gin.New()
	api := r.Group("/api")
	api.POST("/lectures", h.Create)
	api.GET("/lectures/:id/status", h.GetStatus)
	api.GET("/lectures/:id/manifest", h.GetManifest)
	return r
}

func TestGetStatusUnknownLecture(t *testing.T) {
	r := newTestRouter(storage.NewMemoryStore(), newMemStatusRepo(), newFakePipeline())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/lectures/nope/status", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	var env ErrorEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if env.Error.Code != "not_found" {
		t.Fatalf("error code = %q, want not_found", env.Error.Code)
	}
}

func TestGetStatusReportsProgress(t *testing.T) {
	status := newMemStatusRepo()
	status.rows["lec-1"] = &domain.TaskStatus{
		LectureID: "lec-1",
		Status:    domain.StatusRunning,
		Progress:  50,
		Phase:     "audio",
	}
	r := newTestRouter(storage.NewMemoryStore(), status, newFakePipeline())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/lectures/lec-1/status", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got domain.TaskStatus
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got.Status != domain.StatusRunning || got.Progress != 50 || got.Phase != "audio" {
		t.Fatalf("unexpected status payload: %+v", got)
	}
}

func TestGetManifestBeforeTimelineExists(t *testing.T) {
	r := newTestRouter(storage.NewMemoryStore(), newMemStatusRepo(), newFakePipeline())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/lectures/lec-1/manifest", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	var env ErrorEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if env.Error.Code != "not_ready" {
		t.Fatalf("error code = %q, want not_ready", env.Error.Code)
	}
}

func TestGetManifestAfterRun(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	put := func(name string, data []byte, mime string) {
		key := storage.Key{LectureID: "lec-1", Name: name}
		if err := store.Put(ctx, key, data, mime); err != nil {
			t.Fatalf("put %s: %v", name, err)
		}
	}
	cfg, _ := json.Marshal(domain.MovieConfig{Topic: "Fourier transforms"})
	put(storage.ArtifactMovieConfig, cfg, "application/json")
	put(storage.ArtifactEvents, []byte("[]"), "application/json")
	put(storage.ArtifactMovie, []byte("mp4"), "video/mp4")
	put(storage.SpriteArtifact(domain.SideRight), []byte{1, 2, 3}, "image/png")

	r := newTestRouter(store, newMemStatusRepo(), newFakePipeline())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/lectures/lec-1/manifest", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var m domain.Manifest
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if m.Title != "Fourier transforms" {
		t.Fatalf("title = %q, want config topic", m.Title)
	}
	if m.EventsURL != "memory://lectures/lec-1/events.json" {
		t.Fatalf("events url = %q", m.EventsURL)
	}
	if m.MovieURL == "" {
		t.Fatal("movie url missing despite stored movie")
	}
	if m.QuizURL != "" {
		t.Fatalf("quiz url = %q, want empty without a jingle", m.QuizURL)
	}
	want := base64.StdEncoding.EncodeToString([]byte{1, 2, 3})
	if m.Sprites[string(domain.SideRight)] != want {
		t.Fatalf("sprite payload = %q, want base64 of stored bytes", m.Sprites[string(domain.SideRight)])
	}
	if _, ok := m.Sprites[string(domain.SideLeft)]; ok {
		t.Fatal("left sprite reported but never stored")
	}
}

func TestCreateDispatchesPipelineRun(t *testing.T) {
	store := storage.NewMemoryStore()
	status := newMemStatusRepo()
	pipe := newFakePipeline()
	r := newTestRouter(store, status, pipe)

	body := strings.NewReader(`{"topic": "entropy", "character_presets": ["woman"]}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/lectures", body)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	var resp struct {
		LectureID string `json:"lecture_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.LectureID == "" {
		t.Fatal("response carries no lecture id")
	}

	st, err := status.GetByLectureID(context.Background(), resp.LectureID)
	if err != nil || st == nil {
		t.Fatalf("no status row for %s (err=%v)", resp.LectureID, err)
	}
	if st.Status != domain.StatusPending || st.Phase != "queued" {
		t.Fatalf("status row %+v, want pending/queued", st)
	}

	call := pipe.waitForCreate(t)
	if call.lectureID != resp.LectureID {
		t.Fatalf("pipeline ran %s, response said %s", call.lectureID, resp.LectureID)
	}
	if call.cfg.Topic != "entropy" {
		t.Fatalf("config topic = %q", call.cfg.Topic)
	}
	if len(call.cfg.Characters) != 1 || call.cfg.Characters[0].Name != "Sara" {
		t.Fatalf("preset not resolved into config: %+v", call.cfg.Characters)
	}
	if call.cfg.FPS != domain.DefaultFPS {
		t.Fatalf("fps = %d, want default %d", call.cfg.FPS, domain.DefaultFPS)
	}
	if call.cfg.PageTransitionDurationSec != domain.DefaultPageTransitionSeconds {
		t.Fatalf("gap = %v, want default %v when the field is absent",
			call.cfg.PageTransitionDurationSec, domain.DefaultPageTransitionSeconds)
	}
}

func TestCreateHonorsExplicitZeroGap(t *testing.T) {
	pipe := newFakePipeline()
	r := newTestRouter(storage.NewMemoryStore(), newMemStatusRepo(), pipe)

	body := strings.NewReader(`{"topic": "entropy", "page_transition_duration_sec": 0, "character_presets": ["woman"]}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/lectures", body)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	call := pipe.waitForCreate(t)
	if call.cfg.PageTransitionDurationSec != 0 {
		t.Fatalf("gap = %v, an explicit 0 must not be replaced by the default",
			call.cfg.PageTransitionDurationSec)
	}
}

func TestCreateRejectsUnknownPreset(t *testing.T) {
	r := newTestRouter(storage.NewMemoryStore(), newMemStatusRepo(), newFakePipeline())

	body := strings.NewReader(`{"topic": "entropy", "character_presets": ["ghost"]}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/lectures", body)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestCreateRequiresCharacters(t *testing.T) {
	r := newTestRouter(storage.NewMemoryStore(), newMemStatusRepo(), newFakePipeline())

	body := strings.NewReader(`{"topic": "entropy"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/lectures", body)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var env ErrorEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if env.Error.Code != "no_characters" {
		t.Fatalf("error code = %q, want no_characters", env.Error.Code)
	}
}
