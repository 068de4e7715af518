package domain

import "time"

type StatusType string

const (
	StatusNotStarted StatusType = "not_started"
	StatusPending    StatusType = "pending"
	StatusRunning    StatusType = "running"
	StatusCompleted  StatusType = "completed"
	StatusFailed     StatusType = "failed"
)

// TaskStatus records the coarse-grained progress of one lecture run. It is
// written at phase boundaries for observability only; the pipeline never
// consults it for control flow.
type TaskStatus struct {
	LectureID string     `json:"lecture_id" gorm:"primaryKey;column:lecture_id"`
	Status    StatusType `json:"status" gorm:"column:status"`
	Progress  int        `json:"progress" gorm:"column:progress"`
	Phase     string     `json:"phase" gorm:"column:phase"`
	Error     string     `json:"error,omitempty" gorm:"column:error"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (TaskStatus) TableName() string { return "task_status" }
