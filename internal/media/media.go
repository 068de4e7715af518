package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/neka-nat/lecturia/internal/platform/logger"
)

// Range is a non-silent audio span in seconds, half-open [Start, End).
type Range struct {
	StartSec float64
	EndSec   float64
}

// Service wraps the ffmpeg binary for the audio/video plumbing the
// pipeline needs: duration probing, silence handling, per-slide audio
// concatenation and the final frame/audio mux.
//
// Requires ffmpeg (and its bundled ffprobe) in PATH of the worker runtime.
type Service interface {
	AssertReady(ctx context.Context) error

	ProbeDuration(ctx context.Context, path string) (float64, error)
	DetectNonSilentRanges(ctx context.Context, path string) ([]Range, error)
	RemoveLongSilence(ctx context.Context, inPath, outPath string) error
	ConcatWithGaps(ctx context.Context, files []string, gapSec float64, outPath string) error
	JoinAudio(ctx context.Context, clips [][]byte) ([]byte, error)
	MuxFramesWithAudio(ctx context.Context, framePattern string, fps int, audioPath, outPath string) error

	WriteTempFile(data []byte, suffix string) (string, func(), error)
}

type service struct {
	log        *logger.Logger
	ffmpegPath string
	workRoot   string

	// silencedetect tuning
	silenceThreshDB  int
	minSilenceSec    float64
	longSilenceSec   float64
	keptSilenceSec   float64
	defaultTimeout   time.Duration
}

func NewService(log *logger.Logger) Service {
	return &service{
		log:             log.With("service", "MediaService"),
		ffmpegPath:      "ffmpeg",
		workRoot:        filepath.Join(os.TempDir(), "lecturia-media"),
		silenceThreshDB: -40,
		minSilenceSec:   0.5,
		longSilenceSec:  4.0,
		keptSilenceSec:  1.0,
		defaultTimeout:  10 * time.Minute,
	}
}

func (s *service) AssertReady(ctx context.Context) error {
	if _, err := exec.LookPath(s.ffmpegPath); err != nil {
		return fmt.Errorf("missing required binary %q in PATH: %w", s.ffmpegPath, err)
	}
	if err := os.MkdirAll(s.workRoot, 0o755); err != nil {
		return fmt.Errorf("create workRoot: %w", err)
	}
	return nil
}

func (s *service) WriteTempFile(data []byte, suffix string) (string, func(), error) {
	if err := os.MkdirAll(s.workRoot, 0o755); err != nil {
		return "", func() {}, fmt.Errorf("mkdir workRoot: %w", err)
	}
	if suffix != "" && !strings.HasPrefix(suffix, ".") {
		suffix = "." + suffix
	}
	f, err := os.CreateTemp(s.workRoot, "clip_*"+suffix)
	if err != nil {
		return "", func() {}, fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", func() {}, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", func() {}, fmt.Errorf("close temp file: %w", err)
	}
	return path, func() { _ = os.Remove(path) }, nil
}

func (s *service) ProbeDuration(ctx context.Context, path string) (float64, error) {
	raw, err := ffmpeg.Probe(path)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	var payload struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return 0, fmt.Errorf("decode ffprobe output: %w", err)
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(payload.Format.Duration), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", payload.Format.Duration, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("negative duration %f for %s", dur, path)
	}
	return dur, nil
}

func (s *service) DetectNonSilentRanges(ctx context.Context, path string) ([]Range, error) {
	total, err := s.ProbeDuration(ctx, path)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.defaultTimeout)
	defer cancel()

	filter := fmt.Sprintf("silencedetect=noise=%ddB:d=%g", s.silenceThreshDB, s.minSilenceSec)
	cmd := exec.CommandContext(ctx, s.ffmpegPath,
		"-hide_banner",
		"-i", path,
		"-af", filter,
		"-f", "null", "-",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg silencedetect failed: %w; out=%s", err, truncateOutput(out))
	}
	return nonSilentRanges(string(out), total), nil
}

// RemoveLongSilence trims silences longer than longSilenceSec down to
// keptSilenceSec, matching what the narration pacing expects.
func (s *service) RemoveLongSilence(ctx context.Context, inPath, outPath string) error {
	ctx, cancel := context.WithTimeout(ctx, s.defaultTimeout)
	defer cancel()

	filter := fmt.Sprintf("silenceremove=stop_periods=-1:stop_duration=%g:stop_threshold=%ddB:stop_silence=%g",
		s.longSilenceSec, s.silenceThreshDB, s.keptSilenceSec)
	cmd := exec.CommandContext(ctx, s.ffmpegPath,
		"-y",
		"-i", inPath,
		"-af", filter,
		outPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg silenceremove failed: %w; out=%s", err, truncateOutput(out))
	}
	return nil
}

// ConcatWithGaps appends gapSec of padding after every input, then
// concatenates them into outPath. The result is the combined narration
// track whose slide boundaries line up with the timeline offsets.
func (s *service) ConcatWithGaps(ctx context.Context, files []string, gapSec float64, outPath string) error {
	if len(files) == 0 {
		return fmt.Errorf("no audio files to concat")
	}
	streams := make([]*ffmpeg.Stream, 0, len(files))
	for _, f := range files {
		streams = append(streams, ffmpeg.Input(f).Filter("apad", ffmpeg.Args{fmt.Sprintf("pad_dur=%g", gapSec)}))
	}
	var errBuf bytes.Buffer
	err := ffmpeg.Concat(streams, ffmpeg.KwArgs{"v": 0, "a": 1}).
		Output(outPath, ffmpeg.KwArgs{"c:a": "libmp3lame"}).
		OverWriteOutput().
		WithErrorOutput(&errBuf).
		Run()
	if err != nil {
		return fmt.Errorf("ffmpeg concat failed: %w; out=%s", err, truncateOutput(errBuf.Bytes()))
	}
	return nil
}

// JoinAudio splices in-memory clips back to back with no gap (multi-speaker
// turns within one slide).
func (s *service) JoinAudio(ctx context.Context, clips [][]byte) ([]byte, error) {
	if len(clips) == 0 {
		return nil, fmt.Errorf("no clips to join")
	}

	paths := make([]string, 0, len(clips))
	cleanups := make([]func(), 0, len(clips)+2)
	defer func() {
		for _, c := range cleanups {
			c()
		}
	}()
	for _, clip := range clips {
		p, cleanup, err := s.WriteTempFile(clip, ".mp3")
		if err != nil {
			return nil, err
		}
		cleanups = append(cleanups, cleanup)
		paths = append(paths, p)
	}

	var list strings.Builder
	for _, p := range paths {
		fmt.Fprintf(&list, "file '%s'\n", p)
	}
	listPath, cleanup, err := s.WriteTempFile([]byte(list.String()), ".txt")
	if err != nil {
		return nil, err
	}
	cleanups = append(cleanups, cleanup)

	outPath := listPath + ".out.mp3"
	cleanups = append(cleanups, func() { _ = os.Remove(outPath) })

	ctx, cancel := context.WithTimeout(ctx, s.defaultTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, s.ffmpegPath,
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg join failed: %w; out=%s", err, truncateOutput(out))
	}
	return os.ReadFile(outPath)
}

// MuxFramesWithAudio combines the captured frame sequence with the
// combined narration track into the final video container.
func (s *service) MuxFramesWithAudio(ctx context.Context, framePattern string, fps int, audioPath, outPath string) error {
	if fps <= 0 {
		return fmt.Errorf("fps must be positive, got %d", fps)
	}
	video := ffmpeg.Input(framePattern, ffmpeg.KwArgs{"framerate": fps})
	audio := ffmpeg.Input(audioPath)

	var errBuf bytes.Buffer
	err := ffmpeg.Output([]*ffmpeg.Stream{video, audio}, outPath, ffmpeg.KwArgs{
		"c:v":     "libx264",
		"pix_fmt": "yuv420p",
		"c:a":     "aac",
	}).OverWriteOutput().WithErrorOutput(&errBuf).Run()
	if err != nil {
		return fmt.Errorf("ffmpeg mux failed: %w; out=%s", err, truncateOutput(errBuf.Bytes()))
	}
	return nil
}

func truncateOutput(out []byte) string {
	const max = 1024
	trimmed := strings.TrimSpace(string(out))
	if len(trimmed) <= max {
		return trimmed
	}
	return trimmed[len(trimmed)-max:]
}
