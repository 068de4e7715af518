package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/neka-nat/lecturia/internal/data/repos"
	"github.com/neka-nat/lecturia/internal/domain"
	"github.com/neka-nat/lecturia/internal/platform/logger"
	"github.com/neka-nat/lecturia/internal/storage"
)

// LecturePipeline is the slice of the generation pipeline the HTTP layer
// drives.
type LecturePipeline interface {
	CreateLecture(ctx context.Context, lectureID string, cfg domain.MovieConfig) error
	DeleteLecture(ctx context.Context, lectureID string) error
}

type LectureHandler struct {
	log     *logger.Logger
	store   storage.ArtifactStore
	status  repos.TaskStatusRepo
	pipe    LecturePipeline
	presets map[string]domain.Character
}

func NewLectureHandler(
	log *logger.Logger,
	store storage.ArtifactStore,
	status repos.TaskStatusRepo,
	pipe LecturePipeline,
	presets map[string]domain.Character,
) *LectureHandler {
	return &LectureHandler{
		log:     log.With("handler", "LectureHandler"),
		store:   store,
		status:  status,
		pipe:    pipe,
		presets: presets,
	}
}

type CreateLectureRequest struct {
	Topic  string `json:"topic" binding:"required"`
	Detail string `json:"detail"`
	FPS    int    `json:"fps"`
	// Pointer so an explicit 0 (hard cuts between slides) survives the
	// default that fills the absent case.
	PageTransitionDurationSec *float64           `json:"page_transition_duration_sec"`
	ExtraSlideRules           []string           `json:"extra_slide_rules"`
	WebSearch                 bool               `json:"web_search"`
	Characters                []domain.Character `json:"characters"`
	CharacterPresets          []string           `json:"character_presets"`
}

// POST /api/lectures
// Accept a generation request, assign a lecture id and run the pipeline
// in the background. The caller polls the status endpoint.
func (h *LectureHandler) Create(c *gin.Context) {
	var req CreateLectureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	characters := req.Characters
	for _, name := range req.CharacterPresets {
		preset, ok := h.presets[name]
		if !ok {
			RespondError(c, http.StatusBadRequest, "unknown_preset", fmt.Errorf("unknown character preset %q", name))
			return
		}
		characters = append(characters, preset)
	}
	if len(characters) == 0 {
		RespondError(c, http.StatusBadRequest, "no_characters", fmt.Errorf("at least one character or preset is required"))
		return
	}

	cfg := domain.MovieConfig{
		Topic:                     req.Topic,
		Detail:                    req.Detail,
		FPS:                       req.FPS,
		PageTransitionDurationSec: domain.DefaultPageTransitionSeconds,
		ExtraSlideRules:           req.ExtraSlideRules,
		WebSearch:                 req.WebSearch,
		Characters:                characters,
	}
	if req.PageTransitionDurationSec != nil {
		cfg.PageTransitionDurationSec = *req.PageTransitionDurationSec
	}
	cfg.ApplyDefaults()

	lectureID := uuid.NewString()
	err := h.status.Upsert(c.Request.Context(), &domain.TaskStatus{
		LectureID: lectureID,
		Status:    domain.StatusPending,
		Phase:     "queued",
	})
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "status_write_failed", err)
		return
	}

	go h.runPipeline(lectureID, cfg)

	c.JSON(http.StatusAccepted, gin.H{"lecture_id": lectureID})
}

// POST /api/lectures/:id/regenerate
// Re-enter the pipeline with the stored movie config. Stages whose
// artifacts survived are skipped by the cache gate.
func (h *LectureHandler) Regenerate(c *gin.Context) {
	lectureID := c.Param("id")
	key := storage.Key{LectureID: lectureID, Name: storage.ArtifactMovieConfig}
	data, err := h.store.Get(c.Request.Context(), key)
	if err != nil {
		RespondError(c, http.StatusNotFound, "not_found", fmt.Errorf("lecture %s has no stored config", lectureID))
		return
	}
	var cfg domain.MovieConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		RespondError(c, http.StatusInternalServerError, "config_corrupt", err)
		return
	}

	go h.runPipeline(lectureID, cfg)

	c.JSON(http.StatusAccepted, gin.H{"lecture_id": lectureID})
}

// GET /api/lectures/:id/status
func (h *LectureHandler) GetStatus(c *gin.Context) {
	st, err := h.status.GetByLectureID(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "status_read_failed", err)
		return
	}
	if st == nil {
		RespondError(c, http.StatusNotFound, "not_found", fmt.Errorf("unknown lecture id"))
		return
	}
	RespondOK(c, st)
}

// GET /api/lectures/:id/manifest
// Everything the web player needs to replay a finished lecture.
func (h *LectureHandler) GetManifest(c *gin.Context) {
	ctx := c.Request.Context()
	lectureID := c.Param("id")

	eventsKey := storage.Key{LectureID: lectureID, Name: storage.ArtifactEvents}
	if ok, err := h.store.Exists(ctx, eventsKey); err != nil || !ok {
		RespondError(c, http.StatusNotFound, "not_ready", fmt.Errorf("lecture %s has no timeline yet", lectureID))
		return
	}

	title := lectureID
	cfgKey := storage.Key{LectureID: lectureID, Name: storage.ArtifactMovieConfig}
	if data, err := h.store.Get(ctx, cfgKey); err == nil {
		var cfg domain.MovieConfig
		if json.Unmarshal(data, &cfg) == nil && cfg.Topic != "" {
			title = cfg.Topic
		}
	}

	manifest := domain.Manifest{
		ID:        lectureID,
		Title:     title,
		SlideURL:  h.store.PublicURL(storage.Key{LectureID: lectureID, Name: storage.ArtifactSlide}),
		AudioURL:  h.store.PublicURL(storage.Key{LectureID: lectureID, Name: storage.ArtifactCombinedAudio}),
		EventsURL: h.store.PublicURL(eventsKey),
		Sprites:   map[string]string{},
	}
	movieKey := storage.Key{LectureID: lectureID, Name: storage.ArtifactMovie}
	if ok, err := h.store.Exists(ctx, movieKey); err == nil && ok {
		manifest.MovieURL = h.store.PublicURL(movieKey)
	}
	jingleKey := storage.Key{LectureID: lectureID, Name: storage.ArtifactQuizJingle}
	if ok, err := h.store.Exists(ctx, jingleKey); err == nil && ok {
		manifest.QuizURL = h.store.PublicURL(jingleKey)
	}
	for _, side := range []domain.Side{domain.SideLeft, domain.SideRight} {
		key := storage.Key{LectureID: lectureID, Name: storage.SpriteArtifact(side)}
		if ok, err := h.store.Exists(ctx, key); err != nil || !ok {
			continue
		}
		data, err := h.store.Get(ctx, key)
		if err != nil {
			h.log.Warn("could not load sprite for manifest", "key", key.Object(), "error", err)
			continue
		}
		manifest.Sprites[string(side)] = base64.StdEncoding.EncodeToString(data)
	}

	RespondOK(c, manifest)
}

// DELETE /api/lectures/:id
func (h *LectureHandler) Delete(c *gin.Context) {
	if err := h.pipe.DeleteLecture(c.Request.Context(), c.Param("id")); err != nil {
		RespondError(c, http.StatusInternalServerError, "delete_failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *LectureHandler) runPipeline(lectureID string, cfg domain.MovieConfig) {
	// The request context dies with the HTTP response; the run does not.
	if err := h.pipe.CreateLecture(context.Background(), lectureID, cfg); err != nil {
		h.log.Error("background lecture run failed", "lecture_id", lectureID, "error", err)
	}
}
