package repos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/neka-nat/lecturia/internal/domain"
	"github.com/neka-nat/lecturia/internal/platform/logger"
)

// TaskStatusRepo persists per-lecture run status. Writes happen at phase
// boundaries; reads serve the status endpoint.
type TaskStatusRepo interface {
	Upsert(ctx context.Context, status *domain.TaskStatus) error
	GetByLectureID(ctx context.Context, lectureID string) (*domain.TaskStatus, error)
	Delete(ctx context.Context, lectureID string) error
}

type taskStatusRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskStatusRepo(db *gorm.DB, log *logger.Logger) TaskStatusRepo {
	return &taskStatusRepo{db: db, log: log.With("repo", "TaskStatusRepo")}
}

func (r *taskStatusRepo) Upsert(ctx context.Context, status *domain.TaskStatus) error {
	if status == nil || status.LectureID == "" {
		return fmt.Errorf("lecture id required")
	}
	now := time.Now()
	status.UpdatedAt = now
	if status.CreatedAt.IsZero() {
		status.CreatedAt = now
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "lecture_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "progress", "phase", "error", "updated_at",
		}),
	}).Create(status).Error
	if err != nil {
		return fmt.Errorf("upsert task status: %w", err)
	}
	return nil
}

func (r *taskStatusRepo) GetByLectureID(ctx context.Context, lectureID string) (*domain.TaskStatus, error) {
	var status domain.TaskStatus
	err := r.db.WithContext(ctx).First(&status, "lecture_id = ?", lectureID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task status: %w", err)
	}
	return &status, nil
}

func (r *taskStatusRepo) Delete(ctx context.Context, lectureID string) error {
	err := r.db.WithContext(ctx).Delete(&domain.TaskStatus{}, "lecture_id = ?", lectureID).Error
	if err != nil {
		return fmt.Errorf("delete task status: %w", err)
	}
	return nil
}
