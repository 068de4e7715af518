package domain

type EventType string

const (
	EventStart     EventType = "start"
	EventPose      EventType = "pose"
	EventSlideNext EventType = "slideNext"
	EventSlidePrev EventType = "slidePrev"
	EventSlideStep EventType = "slideStep"
	EventSprite    EventType = "sprite"
	EventQuiz      EventType = "quiz"
	EventEnd       EventType = "end"
)

// Side identifies which on-screen character an event applies to.
// Single-speaker lectures leave it empty.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

const (
	PoseIdle  = "idle"
	PoseTalk  = "talk"
	PosePoint = "point"
)

// Event is one timestamped state change on the global lecture timeline.
type Event struct {
	Type    EventType `json:"type"`
	TimeSec float64   `json:"time_sec"`
	Name    string    `json:"name,omitempty"`
	Target  Side      `json:"target,omitempty"`
}

// EventList is the canonical timeline artifact, ordered by TimeSec
// ascending with ties kept in insertion order.
type EventList struct {
	Events []Event `json:"events"`
}
