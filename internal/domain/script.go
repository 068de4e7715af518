package domain

// SpeakerLine is one utterance within a slide's script. Name is empty for
// single-speaker lectures.
type SpeakerLine struct {
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

// Script is the ordered narration for one slide.
type Script struct {
	SlideNo int           `json:"slide_no"`
	Script  []SpeakerLine `json:"script"`
}

type ScriptList struct {
	Scripts []Script `json:"scripts"`
}

// HTMLSlide is the single-file slide deck produced by the slide maker.
type HTMLSlide struct {
	HTML string `json:"html"`
}
