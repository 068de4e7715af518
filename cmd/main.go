package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/neka-nat/lecturia/internal/chains"
	"github.com/neka-nat/lecturia/internal/config"
	"github.com/neka-nat/lecturia/internal/data/repos"
	"github.com/neka-nat/lecturia/internal/handlers"
	"github.com/neka-nat/lecturia/internal/media"
	"github.com/neka-nat/lecturia/internal/pipeline"
	"github.com/neka-nat/lecturia/internal/platform/db"
	"github.com/neka-nat/lecturia/internal/platform/envutil"
	"github.com/neka-nat/lecturia/internal/platform/gcp"
	"github.com/neka-nat/lecturia/internal/platform/logger"
	"github.com/neka-nat/lecturia/internal/platform/openai"
	"github.com/neka-nat/lecturia/internal/renderer"
	"github.com/neka-nat/lecturia/internal/server"
	"github.com/neka-nat/lecturia/internal/storage"
)

func main() {
	_ = godotenv.Load()

	logMode := envutil.Str("LOG_MODE", "development")
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()

	gormDB, err := db.Open(log)
	if err != nil {
		log.Error("Could not open status database", "error", err)
		os.Exit(1)
	}
	statusRepo := repos.NewTaskStatusRepo(gormDB, log)

	var store storage.ArtifactStore
	if envutil.Str("LECTURIA_GCS_BUCKET", "") != "" {
		store, err = gcp.NewBucketStore(ctx, log)
		if err != nil {
			log.Error("Could not init bucket store", "error", err)
			os.Exit(1)
		}
	} else {
		log.Warn("LECTURIA_GCS_BUCKET not set, artifacts will live in process memory")
		store = storage.NewMemoryStore()
	}

	openaiClient, err := openai.NewClient(log)
	if err != nil {
		log.Error("Could not init OpenAI client", "error", err)
		os.Exit(1)
	}

	mediaService := media.NewService(log)
	if err := mediaService.AssertReady(ctx); err != nil {
		log.Error("Media tooling unavailable", "error", err)
		os.Exit(1)
	}

	presets, err := config.LoadCharacterPresets(envutil.Str("LECTURIA_CHARACTERS_YAML", ""))
	if err != nil {
		log.Error("Could not load character presets", "error", err)
		os.Exit(1)
	}

	slideMaker := chains.NewSlideMaker(log, openaiClient)
	scriptWriter := chains.NewScriptWriter(log, openaiClient)
	quizWriter := chains.NewQuizWriter(log, openaiClient)
	eventExtractor := chains.NewEventExtractor(log, openaiClient)
	tts := chains.NewSpeechSynthesizer(log, openaiClient, mediaService)

	movieRenderer := renderer.New(log, renderer.NewChromeSurface(), renderer.Options{
		Width:  envutil.Int("LECTURIA_FRAME_WIDTH", 1280),
		Height: envutil.Int("LECTURIA_FRAME_HEIGHT", 720),
	})

	pipe := pipeline.New(
		log,
		store,
		statusRepo,
		slideMaker,
		scriptWriter,
		quizWriter,
		eventExtractor,
		tts,
		mediaService,
		movieRenderer,
		pipeline.Config{
			MaxParallel: envutil.Int("LECTURIA_MAX_PARALLEL", 3),
			AssetDir:    envutil.Str("LECTURIA_ASSET_DIR", "assets"),
		},
	)

	lectureHandler := handlers.NewLectureHandler(log, store, statusRepo, pipe, presets)

	router := server.NewRouter(server.RouterConfig{
		LectureHandler: lectureHandler,
	})

	addr := ":" + envutil.Str("PORT", "8080")
	log.Info("Starting server", "addr", addr)
	if err := router.Run(addr); err != nil {
		log.Error("Server exited", "error", err)
		os.Exit(1)
	}
}
