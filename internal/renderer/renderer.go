package renderer

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"

	"github.com/neka-nat/lecturia/internal/domain"
	"github.com/neka-nat/lecturia/internal/pipeline"
	"github.com/neka-nat/lecturia/internal/platform/envutil"
	"github.com/neka-nat/lecturia/internal/platform/logger"
	"github.com/neka-nat/lecturia/internal/sprites"
)

type Options struct {
	Width  int
	Height int
	// Settle is how long the surface gets to play its transition after a
	// key press before capture resumes.
	Settle time.Duration
}

// Renderer replays a normalized event timeline against a slide surface,
// capturing floor(gap x fps) frames of the pre-transition state for every
// inter-event gap. Capture is strictly sequential: the surface is stateful
// and shared, so nothing else may drive it during a run.
type Renderer struct {
	log      *logger.Logger
	surface  Surface
	opts     Options
	fontFace font.Face
}

func New(log *logger.Logger, surface Surface, opts Options) *Renderer {
	if opts.Width <= 0 {
		opts.Width = 1280
	}
	if opts.Height <= 0 {
		opts.Height = 720
	}
	if opts.Settle <= 0 {
		opts.Settle = 100 * time.Millisecond
	}
	r := &Renderer{
		log:     log.With("service", "Renderer"),
		surface: surface,
		opts:    opts,
	}
	if fontPath := envutil.Str("LECTURIA_FONT", ""); fontPath != "" {
		face, err := loadFontFace(fontPath, 42)
		if err != nil {
			r.log.Warn("could not load overlay font, quiz cards will have no text", "font", fontPath, "error", err)
		} else {
			r.fontFace = face
		}
	}
	return r
}

func (r *Renderer) Render(ctx context.Context, in pipeline.RenderInput) (*pipeline.RenderOutput, error) {
	if in.FPS <= 0 {
		return nil, fmt.Errorf("fps must be positive, got %d", in.FPS)
	}
	if in.Events == nil || len(in.Events.Events) == 0 {
		return nil, fmt.Errorf("empty event timeline")
	}

	sheets := make(map[domain.Side]*sprites.Sheet, len(in.Sprites))
	for side, data := range in.Sprites {
		sheet, err := sprites.Load(data)
		if err != nil {
			return nil, fmt.Errorf("load %s sprite: %w", side, err)
		}
		sheets[side] = sheet
	}
	ov := newOverlay(sheets, r.opts.Width, r.opts.Height, r.fontFace)

	if err := r.surface.Open(ctx, in.SlideHTML, r.opts.Width, r.opts.Height); err != nil {
		return nil, err
	}
	defer r.surface.Close()

	poses := make(map[domain.Side]string)
	quizName := ""
	frameIdx := 0
	prev := 0.0

	for _, ev := range in.Events.Events {
		gap := ev.TimeSec - prev
		if gap < 0 {
			return nil, fmt.Errorf("event %s at %f precedes previous event at %f", ev.Type, ev.TimeSec, prev)
		}

		n := int(math.Floor(gap * float64(in.FPS)))
		for k := 0; k < n; k++ {
			t := prev + float64(k)/float64(in.FPS)
			shot, err := r.surface.Screenshot(ctx)
			if err != nil {
				return nil, err
			}
			frame := ov.Compose(shot, poses, quizName, t)
			if err := writeFrame(in.OutputDir, frameIdx, frame); err != nil {
				return nil, err
			}
			frameIdx++
		}

		if err := r.apply(ctx, ev, poses, &quizName); err != nil {
			return nil, err
		}
		prev = ev.TimeSec
	}

	r.log.Info("timeline rendered", "frames", frameIdx, "fps", in.FPS, "duration_sec", prev)
	return &pipeline.RenderOutput{
		FramePattern: filepath.Join(in.OutputDir, "frame_%05d.png"),
		FrameCount:   frameIdx,
	}, nil
}

func (r *Renderer) apply(ctx context.Context, ev domain.Event, poses map[domain.Side]string, quizName *string) error {
	switch ev.Type {
	case domain.EventSlideNext:
		*quizName = ""
		return r.press(ctx, KeyNextPage)
	case domain.EventSlidePrev:
		*quizName = ""
		return r.press(ctx, KeyPrevPage)
	case domain.EventSlideStep:
		return r.press(ctx, KeyStep)
	case domain.EventPose:
		target := ev.Target
		if target == "" {
			target = domain.SideRight
		}
		poses[target] = ev.Name
	case domain.EventQuiz:
		*quizName = ev.Name
	case domain.EventSprite:
		// Sheet swaps mid-lecture are a player feature; the offline
		// render keeps the initial sheets.
		r.log.Warn("ignoring sprite swap event", "name", ev.Name, "time_sec", ev.TimeSec)
	case domain.EventStart, domain.EventEnd:
	default:
		r.log.Warn("unknown event type", "type", ev.Type, "time_sec", ev.TimeSec)
	}
	return nil
}

func (r *Renderer) press(ctx context.Context, key string) error {
	if err := r.surface.SendKey(ctx, key); err != nil {
		return err
	}
	select {
	case <-time.After(r.opts.Settle):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func writeFrame(dir string, idx int, frame image.Image) error {
	path := filepath.Join(dir, fmt.Sprintf("frame_%05d.png", idx))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create frame file: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, frame); err != nil {
		return fmt.Errorf("encode frame %d: %w", idx, err)
	}
	return nil
}

func loadFontFace(fontPath string, size float64) (font.Face, error) {
	fontBytes, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read font file: %w", err)
	}
	parsed, err := truetype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	return truetype.NewFace(parsed, &truetype.Options{
		Size:    size,
		Hinting: font.HintingNone,
	}), nil
}
