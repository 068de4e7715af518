package domain

// Manifest is what the web player needs to replay a finished lecture:
// public URLs for the persisted artifacts plus base64-encoded sprites.
type Manifest struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	SlideURL  string            `json:"slide_url"`
	AudioURL  string            `json:"audio_url"`
	EventsURL string            `json:"events_url"`
	MovieURL  string            `json:"movie_url,omitempty"`
	QuizURL   string            `json:"quiz_url,omitempty"`
	Sprites   map[string]string `json:"sprites,omitempty"`
}
