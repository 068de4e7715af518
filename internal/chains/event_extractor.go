package chains

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/neka-nat/lecturia/internal/domain"
	"github.com/neka-nat/lecturia/internal/platform/logger"
	"github.com/neka-nat/lecturia/internal/platform/openai"
)

// EventExtractor listens to one slide's narration audio and estimates when
// in-slide animations and character pose changes should fire. Times are
// local to the slide's audio; the pipeline offsets them onto the global
// timeline afterwards.
type EventExtractor interface {
	Extract(ctx context.Context, slideHTML string, slideNo int, audio []byte, firstSpeaker domain.Side) (*domain.EventList, error)
}

const eventExtractorSystem = "You align slide and character animations with " +
	"narration audio, emitting each event's trigger time in seconds."

const eventExtractorPrompt = `The attached audio narrates page %d of the slides below.
A character animation explaining the slides will be overlaid later.
From the audio, work out when each in-slide animation and character animation
should fire, and output the trigger time of every event in seconds.
Set in-slide animation events to the moment the narration starts explaining
the animated part. If the slide has no animations, output an empty "events" list.
%s
Event kinds:

` + "```json" + `
{"type": "slideStep"}                 // advance the in-slide animation one step
{"type": "pose", "name": "idle"}      // character switches to idle
{"type": "pose", "name": "talk"}      // character switches to talking
{"type": "pose", "name": "point"}     // character emphasizes (pointing)
` + "```" + `

### Slides
` + "```html\n%s\n```" + `

### Output format
` + "```json" + `
{
  "events": [
    {"type": "pose", "name": "idle", "time_sec": 0.0},
    {"type": "slideStep", "time_sec": 10.5},
    {"type": "pose", "name": "talk", "time_sec": 15.0}
  ]
}
` + "```" + `

Wrap the output in a ` + "```json```" + ` block.
Output:`

type eventExtractor struct {
	log    *logger.Logger
	client openai.Client
}

func NewEventExtractor(log *logger.Logger, client openai.Client) EventExtractor {
	return &eventExtractor{log: log.With("chain", "EventExtractor"), client: client}
}

func (e *eventExtractor) Extract(ctx context.Context, slideHTML string, slideNo int, audio []byte, firstSpeaker domain.Side) (*domain.EventList, error) {
	if strings.TrimSpace(slideHTML) == "" {
		return nil, fmt.Errorf("slide html required")
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("audio required")
	}

	speakerHint := ""
	if firstSpeaker != "" {
		speakerHint = fmt.Sprintf(
			"Two characters are on screen (targets \"left\" and \"right\"); the %q character speaks first. Set each pose event's \"target\" field accordingly.\n",
			firstSpeaker,
		)
	}

	text, err := e.client.GenerateTextWithAudio(ctx, eventExtractorSystem,
		fmt.Sprintf(eventExtractorPrompt, slideNo, speakerHint, slideHTML), audio, "mp3")
	if err != nil {
		return nil, fmt.Errorf("event extractor: %w", err)
	}
	var list domain.EventList
	if err := decodeJSONFence(text, &list); err != nil {
		return nil, fmt.Errorf("event extractor: %w", err)
	}
	for _, ev := range list.Events {
		if ev.TimeSec < 0 {
			return nil, fmt.Errorf("event extractor: negative time %.3f for %s event", ev.TimeSec, ev.Type)
		}
	}
	// The model largely emits events in order, but it is not guaranteed.
	sort.SliceStable(list.Events, func(i, j int) bool {
		return list.Events[i].TimeSec < list.Events[j].TimeSec
	})
	e.log.Debug("Cues extracted", "slide_no", slideNo, "events", len(list.Events))
	return &list, nil
}
