package renderer

import (
	"context"
	"image"
	"image/color"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/neka-nat/lecturia/internal/domain"
	"github.com/neka-nat/lecturia/internal/pipeline"
	"github.com/neka-nat/lecturia/internal/platform/logger"
	"github.com/neka-nat/lecturia/internal/sprites"
)

type fakeSurface struct {
	mu        sync.Mutex
	opened    bool
	closed    bool
	keys      []string
	shotCount int
}

func (f *fakeSurface) Open(_ context.Context, html string, w, h int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = true
	return nil
}

func (f *fakeSurface) Screenshot(context.Context) (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shotCount++
	img := image.NewRGBA(image.Rect(0, 0, 64, 36))
	for y := 0; y < 36; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{30, 30, 60, 255})
		}
	}
	return img, nil
}

func (f *fakeSurface) SendKey(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return nil
}

func (f *fakeSurface) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func newTestRenderer(surface Surface) *Renderer {
	return New(logger.NewNop(), surface, Options{Width: 64, Height: 36, Settle: time.Millisecond})
}

func TestRenderFrameCount(t *testing.T) {
	surface := &fakeSurface{}
	r := newTestRenderer(surface)

	// Gaps of 2.0s and 1.5s at 10 fps give exactly 20 + 15 frames.
	events := &domain.EventList{Events: []domain.Event{
		{Type: domain.EventSlideStep, TimeSec: 2.0},
		{Type: domain.EventSlideNext, TimeSec: 3.5},
	}}

	out, err := r.Render(context.Background(), pipeline.RenderInput{
		SlideHTML: "<html></html>",
		Events:    events,
		FPS:       10,
		OutputDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out.FrameCount != 35 {
		t.Fatalf("frame count %d, want 35", out.FrameCount)
	}
	if surface.shotCount != 35 {
		t.Fatalf("surface captured %d times, want 35", surface.shotCount)
	}
	if !surface.closed {
		t.Fatal("surface left open after render")
	}
}

func TestRenderWritesSequentialFrames(t *testing.T) {
	surface := &fakeSurface{}
	r := newTestRenderer(surface)
	dir := t.TempDir()

	events := &domain.EventList{Events: []domain.Event{
		{Type: domain.EventSlideNext, TimeSec: 0.5},
	}}
	out, err := r.Render(context.Background(), pipeline.RenderInput{
		SlideHTML: "<html></html>",
		Events:    events,
		FPS:       10,
		OutputDir: dir,
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out.FrameCount != 5 {
		t.Fatalf("frame count %d, want 5", out.FrameCount)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read frames dir: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("%d files on disk, want 5", len(entries))
	}
	if entries[0].Name() != "frame_00000.png" {
		t.Fatalf("first frame named %s", entries[0].Name())
	}
	if !strings.Contains(out.FramePattern, "frame_%05d.png") {
		t.Fatalf("frame pattern %q", out.FramePattern)
	}
}

func TestRenderKeySignals(t *testing.T) {
	surface := &fakeSurface{}
	r := newTestRenderer(surface)

	events := &domain.EventList{Events: []domain.Event{
		{Type: domain.EventSlideStep, TimeSec: 0.1},
		{Type: domain.EventSlideNext, TimeSec: 0.2},
		{Type: domain.EventSlidePrev, TimeSec: 0.3},
		{Type: domain.EventPose, Name: domain.PoseTalk, TimeSec: 0.4},
	}}
	if _, err := r.Render(context.Background(), pipeline.RenderInput{
		SlideHTML: "<html></html>",
		Events:    events,
		FPS:       1,
		OutputDir: t.TempDir(),
	}); err != nil {
		t.Fatalf("Render: %v", err)
	}

	want := []string{KeyStep, KeyNextPage, KeyPrevPage}
	if len(surface.keys) != len(want) {
		t.Fatalf("keys %v, want %v", surface.keys, want)
	}
	for i, k := range want {
		if surface.keys[i] != k {
			t.Fatalf("key %d = %s, want %s", i, surface.keys[i], k)
		}
	}
}

func TestRenderRejectsOutOfOrderEvents(t *testing.T) {
	r := newTestRenderer(&fakeSurface{})
	events := &domain.EventList{Events: []domain.Event{
		{Type: domain.EventSlideNext, TimeSec: 2.0},
		{Type: domain.EventSlideNext, TimeSec: 1.0},
	}}
	if _, err := r.Render(context.Background(), pipeline.RenderInput{
		SlideHTML: "<html></html>",
		Events:    events,
		FPS:       10,
		OutputDir: t.TempDir(),
	}); err == nil {
		t.Fatal("out-of-order timeline must be rejected")
	}
}

func TestRenderWithSpriteOverlay(t *testing.T) {
	surface := &fakeSurface{}
	r := newTestRenderer(surface)

	sheet := image.NewRGBA(image.Rect(0, 0, 90, 90))
	for i := 0; i < 9; i++ {
		sheet.Set((i%3)*30+15, (i/3)*30+15, color.RGBA{255, 0, 0, 255})
	}
	data, err := sprites.EncodePNG(sheet)
	if err != nil {
		t.Fatalf("encode sheet: %v", err)
	}

	events := &domain.EventList{Events: []domain.Event{
		{Type: domain.EventPose, Name: domain.PoseTalk, TimeSec: 0.0, Target: domain.SideRight},
		{Type: domain.EventSlideNext, TimeSec: 1.0},
	}}
	out, err := r.Render(context.Background(), pipeline.RenderInput{
		SlideHTML: "<html></html>",
		Events:    events,
		FPS:       4,
		Sprites:   map[domain.Side][]byte{domain.SideRight: data},
		OutputDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out.FrameCount != 4 {
		t.Fatalf("frame count %d, want 4", out.FrameCount)
	}
}

func TestRenderRejectsBadInput(t *testing.T) {
	r := newTestRenderer(&fakeSurface{})
	if _, err := r.Render(context.Background(), pipeline.RenderInput{
		SlideHTML: "<html></html>",
		Events:    &domain.EventList{},
		FPS:       10,
		OutputDir: t.TempDir(),
	}); err == nil {
		t.Fatal("empty timeline must be rejected")
	}
	if _, err := r.Render(context.Background(), pipeline.RenderInput{
		SlideHTML: "<html></html>",
		Events:    &domain.EventList{Events: []domain.Event{{Type: domain.EventSlideNext, TimeSec: 1}}},
		FPS:       0,
		OutputDir: t.TempDir(),
	}); err == nil {
		t.Fatal("zero fps must be rejected")
	}
}
