package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/neka-nat/lecturia/internal/chains"
	"github.com/neka-nat/lecturia/internal/data/repos"
	"github.com/neka-nat/lecturia/internal/domain"
	"github.com/neka-nat/lecturia/internal/media"
	"github.com/neka-nat/lecturia/internal/platform/logger"
	"github.com/neka-nat/lecturia/internal/sprites"
	"github.com/neka-nat/lecturia/internal/storage"
)

// MovieRenderer replays a lecture timeline against a slide surface and
// writes the numbered frame sequence to disk.
type MovieRenderer interface {
	Render(ctx context.Context, in RenderInput) (*RenderOutput, error)
}

type RenderInput struct {
	SlideHTML string
	Events    *domain.EventList
	FPS       int
	Sprites   map[domain.Side][]byte
	OutputDir string
}

type RenderOutput struct {
	FramePattern string
	FrameCount   int
}

type Config struct {
	// MaxParallel bounds concurrent TTS and cue-extraction calls per run.
	MaxParallel int
	// AssetDir holds bundled sprite sheets and quiz jingles.
	AssetDir string
}

// Pipeline drives one lecture run end to end: slide, script, quiz, audio,
// event timeline, frames, final video. Every stage goes through the
// artifact cache gate, so re-running a lecture id resumes at the first
// missing artifact.
type Pipeline struct {
	log     *logger.Logger
	store   storage.ArtifactStore
	status  repos.TaskStatusRepo
	slides  chains.SlideMaker
	scripts chains.ScriptWriter
	quizzes chains.QuizWriter
	cues    chains.EventExtractor
	tts     chains.SpeechSynthesizer
	media   media.Service
	render  MovieRenderer
	cfg     Config
}

func New(
	log *logger.Logger,
	store storage.ArtifactStore,
	status repos.TaskStatusRepo,
	slides chains.SlideMaker,
	scripts chains.ScriptWriter,
	quizzes chains.QuizWriter,
	cues chains.EventExtractor,
	tts chains.SpeechSynthesizer,
	mediaSvc media.Service,
	render MovieRenderer,
	cfg Config,
) *Pipeline {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 3
	}
	return &Pipeline{
		log:     log.With("service", "Pipeline"),
		store:   store,
		status:  status,
		slides:  slides,
		scripts: scripts,
		quizzes: quizzes,
		cues:    cues,
		tts:     tts,
		media:   mediaSvc,
		render:  render,
		cfg:     cfg,
	}
}

type slideAudio struct {
	data     []byte
	path     string
	duration float64
}

// tempCleanups collects temp-file removals from concurrent ops so the
// files are released even when the batch that created them fails and its
// results are discarded.
type tempCleanups struct {
	mu  sync.Mutex
	fns []func()
}

func (c *tempCleanups) add(fn func()) {
	c.mu.Lock()
	c.fns = append(c.fns, fn)
	c.mu.Unlock()
}

func (c *tempCleanups) run() {
	c.mu.Lock()
	fns := c.fns
	c.fns = nil
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// CreateLecture runs the full generation pipeline for one lecture id. On
// failure the run status is recorded as failed and the error returned to
// the caller, which decides on redelivery.
func (p *Pipeline) CreateLecture(ctx context.Context, lectureID string, cfg domain.MovieConfig) (err error) {
	log := p.log.With("lecture_id", lectureID)
	cfg.ApplyDefaults()
	if len(cfg.Characters) == 0 {
		err = fmt.Errorf("movie config has no characters")
		p.setStatus(ctx, lectureID, domain.StatusFailed, 0, "error", err.Error())
		return err
	}

	p.setStatus(ctx, lectureID, domain.StatusRunning, 0, "initializing", "")
	defer func() {
		if err != nil {
			log.Error("lecture run failed", "error", err)
			p.setStatus(context.WithoutCancel(ctx), lectureID, domain.StatusFailed, 0, "error", err.Error())
		}
	}()

	cfgData, err := json.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("encode movie config: %w", err)
	}
	if err = p.store.Put(ctx, storage.Key{LectureID: lectureID, Name: storage.ArtifactMovieConfig}, cfgData, "application/json"); err != nil {
		return fmt.Errorf("store movie config: %w", err)
	}
	if err = p.uploadPresentationAssets(ctx, lectureID, cfg); err != nil {
		return err
	}

	p.setStatus(ctx, lectureID, domain.StatusRunning, 10, "generating slides", "")
	slideHTML, err := RunStage(ctx, log, p.store,
		storage.Key{LectureID: lectureID, Name: storage.ArtifactSlide}, "text/html",
		DecodeText, EncodeText,
		func(ctx context.Context) (string, error) {
			slide, err := p.slides.Produce(ctx, cfg.Topic, cfg.Detail, cfg.ExtraSlideRules)
			if err != nil {
				return "", err
			}
			return slide.HTML, nil
		})
	if err != nil {
		return err
	}

	p.setStatus(ctx, lectureID, domain.StatusRunning, 25, "writing script", "")
	scriptList, err := RunStage(ctx, log, p.store,
		storage.Key{LectureID: lectureID, Name: storage.ArtifactScript}, "application/json",
		DecodeJSON[domain.ScriptList], EncodeJSON[domain.ScriptList],
		func(ctx context.Context) (*domain.ScriptList, error) {
			return p.scripts.Produce(ctx, slideHTML, cfg.Characters)
		})
	if err != nil {
		return err
	}
	if len(scriptList.Scripts) == 0 {
		return fmt.Errorf("script stage produced no slides")
	}

	// Quiz authoring and audio synthesis have no data dependency on each
	// other, so they run side by side.
	var (
		quizList *domain.QuizSectionList
		audio    []slideAudio
		offsets  []float64
	)
	clips := &tempCleanups{}
	defer clips.run()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var qerr error
		quizList, qerr = RunStage(gctx, log, p.store,
			storage.Key{LectureID: lectureID, Name: storage.ArtifactQuiz}, "application/json",
			DecodeJSON[domain.QuizSectionList], EncodeJSON[domain.QuizSectionList],
			func(ctx context.Context) (*domain.QuizSectionList, error) {
				return p.quizzes.Produce(ctx, slideHTML)
			})
		return qerr
	})
	g.Go(func() error {
		p.setStatus(gctx, lectureID, domain.StatusRunning, 50, "synthesizing audio", "")
		var aerr error
		audio, aerr = p.audioPhase(gctx, lectureID, cfg, scriptList, clips)
		return aerr
	})
	if err = g.Wait(); err != nil {
		return err
	}

	durations := make([]float64, len(audio))
	for i, a := range audio {
		durations[i] = a.duration
	}
	offsets, err = CumulativeOffsets(durations, cfg.PageTransitionDurationSec)
	if err != nil {
		return err
	}

	combinedPath, err := p.combineAudio(ctx, lectureID, audio, cfg.PageTransitionDurationSec)
	if err != nil {
		return err
	}
	defer os.Remove(combinedPath)

	p.setStatus(ctx, lectureID, domain.StatusRunning, 75, "extracting events", "")
	events, err := RunStage(ctx, log, p.store,
		storage.Key{LectureID: lectureID, Name: storage.ArtifactEvents}, "application/json",
		DecodeJSON[domain.EventList], EncodeJSON[domain.EventList],
		func(ctx context.Context) (*domain.EventList, error) {
			return p.eventPhase(ctx, cfg, slideHTML, scriptList, quizList, audio, offsets)
		})
	if err != nil {
		return err
	}

	p.setStatus(ctx, lectureID, domain.StatusRunning, 85, "rendering video", "")
	if err = p.renderPhase(ctx, lectureID, cfg, slideHTML, events, combinedPath); err != nil {
		return err
	}

	p.setStatus(ctx, lectureID, domain.StatusRunning, 95, "finalizing", "")
	p.setStatus(ctx, lectureID, domain.StatusCompleted, 100, "done", "")
	log.Info("lecture run completed")
	return nil
}

// DeleteLecture removes every stored artifact and the run status.
func (p *Pipeline) DeleteLecture(ctx context.Context, lectureID string) error {
	if err := p.store.DeleteLecture(ctx, lectureID); err != nil {
		return fmt.Errorf("delete artifacts: %w", err)
	}
	if err := p.status.Delete(ctx, lectureID); err != nil {
		return fmt.Errorf("delete status: %w", err)
	}
	return nil
}

func (p *Pipeline) uploadPresentationAssets(ctx context.Context, lectureID string, cfg domain.MovieConfig) error {
	for i, ch := range cfg.Characters {
		raw, err := os.ReadFile(filepath.Join(p.cfg.AssetDir, ch.SpriteName))
		if err != nil {
			return fmt.Errorf("read sprite %s: %w", ch.SpriteName, err)
		}
		img, err := png.Decode(bytes.NewReader(raw))
		if err != nil {
			return fmt.Errorf("decode sprite %s: %w", ch.SpriteName, err)
		}
		aligned, err := sprites.AlignBaseline(img, sprites.Cols, sprites.Rows)
		if err != nil {
			return fmt.Errorf("align sprite %s: %w", ch.SpriteName, err)
		}
		data, err := sprites.EncodePNG(aligned)
		if err != nil {
			return err
		}
		side := domain.SideLeft
		if i == 0 {
			side = domain.SideRight
		}
		key := storage.Key{LectureID: lectureID, Name: storage.SpriteArtifact(side)}
		if err := p.store.Put(ctx, key, data, "image/png"); err != nil {
			return fmt.Errorf("store sprite %s: %w", key.Object(), err)
		}
	}

	jingle := filepath.Join(p.cfg.AssetDir, "quiz_"+cfg.Characters[0].VoiceType+".mp3")
	data, err := os.ReadFile(jingle)
	if err != nil {
		p.log.Warn("quiz jingle missing, interludes will be silent", "path", jingle)
		return nil
	}
	key := storage.Key{LectureID: lectureID, Name: storage.ArtifactQuizJingle}
	if err := p.store.Put(ctx, key, data, "audio/mpeg"); err != nil {
		return fmt.Errorf("store quiz jingle: %w", err)
	}
	return nil
}

func (p *Pipeline) audioPhase(ctx context.Context, lectureID string, cfg domain.MovieConfig, scriptList *domain.ScriptList, clips *tempCleanups) ([]slideAudio, error) {
	log := p.log.With("lecture_id", lectureID)

	ops := make([]func(context.Context) (slideAudio, error), len(scriptList.Scripts))
	for i, sc := range scriptList.Scripts {
		i, sc := i, sc
		ops[i] = func(ctx context.Context) (slideAudio, error) {
			key := storage.Key{LectureID: lectureID, Name: storage.AudioArtifact(sc.SlideNo)}
			data, err := RunStage(ctx, log, p.store, key, "audio/mpeg",
				RawBytes, RawBytes,
				func(ctx context.Context) ([]byte, error) {
					return p.synthesizeSlide(ctx, cfg, sc)
				})
			if err != nil {
				return slideAudio{}, err
			}

			path, cleanup, err := p.media.WriteTempFile(data, ".mp3")
			if err != nil {
				return slideAudio{}, err
			}
			clips.add(cleanup)
			dur, err := p.media.ProbeDuration(ctx, path)
			if err != nil {
				return slideAudio{}, fmt.Errorf("probe %s: %w", key.Object(), err)
			}
			return slideAudio{data: data, path: path, duration: dur}, nil
		}
	}
	return RunLimited(ctx, p.cfg.MaxParallel, ops)
}

func (p *Pipeline) synthesizeSlide(ctx context.Context, cfg domain.MovieConfig, sc domain.Script) ([]byte, error) {
	if len(sc.Script) == 0 {
		return nil, fmt.Errorf("slide %d has an empty script", sc.SlideNo)
	}

	var raw []byte
	var err error
	if len(cfg.Characters) == 1 {
		raw, err = p.tts.Synthesize(ctx, sc.Script[0].Content, cfg.Characters[0].VoiceType)
	} else {
		talks := make([]chains.Talk, len(sc.Script))
		for i, line := range sc.Script {
			talks[i] = chains.Talk{
				SpeakerName: line.Name,
				Text:        line.Content,
				VoiceType:   cfg.VoiceTypeFor(line.Name),
			}
		}
		raw, err = p.tts.SynthesizeMulti(ctx, talks)
	}
	if err != nil {
		return nil, fmt.Errorf("synthesize slide %d: %w", sc.SlideNo, err)
	}

	// Long dead air in the synthesized narration throws off the timeline,
	// so it is trimmed before the duration is ever measured.
	inPath, inCleanup, err := p.media.WriteTempFile(raw, ".mp3")
	if err != nil {
		return nil, err
	}
	defer inCleanup()
	outPath := inPath + ".trimmed.mp3"
	defer os.Remove(outPath)
	if err := p.media.RemoveLongSilence(ctx, inPath, outPath); err != nil {
		return nil, fmt.Errorf("trim silence for slide %d: %w", sc.SlideNo, err)
	}
	return os.ReadFile(outPath)
}

func (p *Pipeline) combineAudio(ctx context.Context, lectureID string, audio []slideAudio, gapSec float64) (string, error) {
	paths := make([]string, len(audio))
	for i, a := range audio {
		paths[i] = a.path
	}
	outPath := filepath.Join(os.TempDir(), "combined_"+lectureID+".mp3")
	if err := p.media.ConcatWithGaps(ctx, paths, gapSec, outPath); err != nil {
		return "", err
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		return "", fmt.Errorf("read combined audio: %w", err)
	}
	key := storage.Key{LectureID: lectureID, Name: storage.ArtifactCombinedAudio}
	if err := p.store.Put(ctx, key, data, "audio/mpeg"); err != nil {
		return "", fmt.Errorf("store combined audio: %w", err)
	}
	return outPath, nil
}

func (p *Pipeline) eventPhase(
	ctx context.Context,
	cfg domain.MovieConfig,
	slideHTML string,
	scriptList *domain.ScriptList,
	quizList *domain.QuizSectionList,
	audio []slideAudio,
	offsets []float64,
) (*domain.EventList, error) {
	sides := cfg.SpeakerSides()

	// Quiz sections reference slides by 1-based page number.
	quizNames := make(map[int]string)
	if quizList != nil {
		for _, qs := range quizList.QuizSections {
			if qs.SlideNo >= 1 && qs.SlideNo <= len(audio) {
				quizNames[qs.SlideNo-1] = qs.Name
			}
		}
	}

	ops := make([]func(context.Context) ([]domain.Event, error), len(audio))
	for i := range audio {
		i := i
		ops[i] = func(ctx context.Context) ([]domain.Event, error) {
			var firstSpeaker domain.Side
			if len(sides) > 1 && len(scriptList.Scripts[i].Script) > 0 {
				firstSpeaker = sides[scriptList.Scripts[i].Script[0].Name]
			}
			ev, err := p.cues.Extract(ctx, slideHTML, i+1, audio[i].data, firstSpeaker)
			if err != nil {
				return nil, fmt.Errorf("extract cues for slide %d: %w", i, err)
			}
			if len(sides) == 1 {
				ranges, err := p.media.DetectNonSilentRanges(ctx, audio[i].path)
				if err != nil {
					return nil, fmt.Errorf("detect speech for slide %d: %w", i, err)
				}
				ivs := make([]Interval, len(ranges))
				for j, r := range ranges {
					ivs[j] = Interval{Start: r.StartSec, End: r.EndSec}
				}
				ev = RewriteTalkIntervals(ev, ivs, []domain.Side{domain.SideRight}, audio[i].duration)
			}
			return ev.Events, nil
		}
	}

	slides, err := RunLimited(ctx, p.cfg.MaxParallel, ops)
	if err != nil {
		return nil, err
	}
	return NormalizeEvents(slides, offsets, quizNames)
}

func (p *Pipeline) renderPhase(ctx context.Context, lectureID string, cfg domain.MovieConfig, slideHTML string, events *domain.EventList, combinedPath string) error {
	movieKey := storage.Key{LectureID: lectureID, Name: storage.ArtifactMovie}
	if ok, err := p.store.Exists(ctx, movieKey); err == nil && ok {
		p.log.Info("reusing cached artifact", "key", movieKey.Object())
		return nil
	}

	spriteSheets := make(map[domain.Side][]byte)
	for _, side := range []domain.Side{domain.SideRight, domain.SideLeft} {
		key := storage.Key{LectureID: lectureID, Name: storage.SpriteArtifact(side)}
		if ok, err := p.store.Exists(ctx, key); err != nil || !ok {
			continue
		}
		data, err := p.store.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("load sprite %s: %w", key.Object(), err)
		}
		spriteSheets[side] = data
	}

	framesDir, err := os.MkdirTemp("", "lecturia-frames-")
	if err != nil {
		return fmt.Errorf("create frames dir: %w", err)
	}
	defer os.RemoveAll(framesDir)

	out, err := p.render.Render(ctx, RenderInput{
		SlideHTML: slideHTML,
		Events:    events,
		FPS:       cfg.FPS,
		Sprites:   spriteSheets,
		OutputDir: framesDir,
	})
	if err != nil {
		return fmt.Errorf("render frames: %w", err)
	}

	moviePath := filepath.Join(os.TempDir(), "movie_"+lectureID+".mp4")
	defer os.Remove(moviePath)
	if err := p.media.MuxFramesWithAudio(ctx, out.FramePattern, cfg.FPS, combinedPath, moviePath); err != nil {
		return err
	}
	data, err := os.ReadFile(moviePath)
	if err != nil {
		return fmt.Errorf("read movie: %w", err)
	}
	if err := p.store.Put(ctx, movieKey, data, "video/mp4"); err != nil {
		return fmt.Errorf("store movie: %w", err)
	}
	return nil
}

func (p *Pipeline) setStatus(ctx context.Context, lectureID string, st domain.StatusType, progress int, phase, errMsg string) {
	err := p.status.Upsert(ctx, &domain.TaskStatus{
		LectureID: lectureID,
		Status:    st,
		Progress:  progress,
		Phase:     phase,
		Error:     errMsg,
	})
	if err != nil {
		p.log.Warn("status upsert failed", "lecture_id", lectureID, "error", err)
	}
}
