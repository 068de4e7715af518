package storage

import (
	"context"
	"fmt"
	"path"

	"github.com/neka-nat/lecturia/internal/domain"
)

// Stage artifact file names. Other systems (the web player, regenerate
// requests) rely on these staying stable.
const (
	ArtifactSlide         = "result_slide.html"
	ArtifactScript        = "result_script.json"
	ArtifactQuiz          = "result_quiz.json"
	ArtifactEvents        = "events.json"
	ArtifactMovieConfig   = "movie_config.json"
	ArtifactCombinedAudio = "combined_audio.mp3"
	ArtifactMovie         = "movie.mp4"
	ArtifactQuizJingle    = "quiz.mp3"
)

func AudioArtifact(slideNo int) string {
	return fmt.Sprintf("audio_%d.mp3", slideNo)
}

func SpriteArtifact(side domain.Side) string {
	return "sprites/" + string(side) + ".png"
}

// Key addresses one stage artifact. Keeping the pair typed (rather than
// concatenating paths ad hoc) is what makes the cache-gate idempotence
// contract checkable.
type Key struct {
	LectureID string
	Name      string
}

func (k Key) Object() string {
	return path.Join("lectures", k.LectureID, k.Name)
}

func (k Key) String() string { return k.Object() }

// ArtifactStore is the blob backend for stage artifacts. Artifacts are
// created once and never mutated; DeleteLecture is the only way to remove
// them.
type ArtifactStore interface {
	Exists(ctx context.Context, key Key) (bool, error)
	Get(ctx context.Context, key Key) ([]byte, error)
	Put(ctx context.Context, key Key, data []byte, mimeType string) error
	DeleteLecture(ctx context.Context, lectureID string) error
	PublicURL(key Key) string
}
