package domain

// Character is one presenter: its sprite sheet and synthesized voice.
type Character struct {
	Name       string `json:"name" yaml:"name"`
	SpriteName string `json:"sprite_name" yaml:"sprite_name"`
	VoiceType  string `json:"voice_type" yaml:"voice_type"`
}

// MovieConfig is the request payload for one lecture run. It is persisted
// verbatim as movie_config.json so regenerate requests replay the same
// parameters.
type MovieConfig struct {
	Topic                     string      `json:"topic"`
	Detail                    string      `json:"detail,omitempty"`
	FPS                       int         `json:"fps"`
	PageTransitionDurationSec float64     `json:"page_transition_duration_sec"`
	ExtraSlideRules           []string    `json:"extra_slide_rules,omitempty"`
	WebSearch                 bool        `json:"web_search,omitempty"`
	Characters                []Character `json:"characters"`
}

const (
	DefaultFPS                   = 30
	DefaultPageTransitionSeconds = 0.5
)

// ApplyDefaults fills the frame rate and clamps a negative page gap. A zero
// gap is a valid request (slides cut without a pause), so the 0.5s default
// is applied where the request is decoded and the field can be told apart
// from an absent one.
func (c *MovieConfig) ApplyDefaults() {
	if c.FPS <= 0 {
		c.FPS = DefaultFPS
	}
	if c.PageTransitionDurationSec < 0 {
		c.PageTransitionDurationSec = 0
	}
}

func (c *MovieConfig) VoiceTypeFor(speakerName string) string {
	for _, ch := range c.Characters {
		if ch.Name == speakerName {
			return ch.VoiceType
		}
	}
	if len(c.Characters) > 0 {
		return c.Characters[0].VoiceType
	}
	return ""
}

// SpeakerSides maps speaker names onto screen sides. The first configured
// character always presents from the right; the second from the left.
func (c *MovieConfig) SpeakerSides() map[string]Side {
	sides := make(map[string]Side, len(c.Characters))
	for i, ch := range c.Characters {
		if i == 0 {
			sides[ch.Name] = SideRight
		} else {
			sides[ch.Name] = SideLeft
		}
	}
	return sides
}
