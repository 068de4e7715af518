package chains

import (
	"context"
	"fmt"
	"strings"

	"github.com/neka-nat/lecturia/internal/domain"
	"github.com/neka-nat/lecturia/internal/platform/logger"
	"github.com/neka-nat/lecturia/internal/platform/openai"
)

// ScriptWriter turns the slide deck into a per-slide narration script,
// split into speaker turns when more than one character presents.
type ScriptWriter interface {
	Produce(ctx context.Context, slideHTML string, speakers []domain.Character) (*domain.ScriptList, error)
}

const scriptWriterSystem = "You are a professional presentation script writer. " +
	"Write the narration script for the given HTML slide deck."

const scriptWriterPrompt = `* Split the script per slide page.
* Match the tone of the slides.
* Escape any double quotes inside script strings.
* Write the script so it can be fed directly to machine speech synthesis.
%s
## Slides
` + "```html\n%s\n```" + `

## Output format
` + "```json" + `
{
  "scripts": [
    {"slide_no": 1, "script": [{"name": "<speaker name or empty>", "content": "<narration for slide 1>"}]},
    {"slide_no": 2, "script": [{"name": "<speaker name or empty>", "content": "<narration for slide 2>"}]}
  ]
}
` + "```" + `

Wrap the output in a ` + "```json```" + ` block.
Output:`

type scriptWriter struct {
	log    *logger.Logger
	client openai.Client
}

func NewScriptWriter(log *logger.Logger, client openai.Client) ScriptWriter {
	return &scriptWriter{log: log.With("chain", "ScriptWriter"), client: client}
}

func (s *scriptWriter) Produce(ctx context.Context, slideHTML string, speakers []domain.Character) (*domain.ScriptList, error) {
	if strings.TrimSpace(slideHTML) == "" {
		return nil, fmt.Errorf("slide html required")
	}

	speakerNote := ""
	if len(speakers) > 1 {
		names := make([]string, 0, len(speakers))
		for _, sp := range speakers {
			names = append(names, sp.Name)
		}
		speakerNote = fmt.Sprintf("* The lecture is a dialogue between the speakers %s; alternate turns naturally and set each turn's \"name\" field.\n", strings.Join(names, " and "))
	}

	text, err := s.client.GenerateText(ctx, scriptWriterSystem, fmt.Sprintf(scriptWriterPrompt, speakerNote, slideHTML))
	if err != nil {
		return nil, fmt.Errorf("script writer: %w", err)
	}
	var list domain.ScriptList
	if err := decodeJSONFence(text, &list); err != nil {
		return nil, fmt.Errorf("script writer: %w", err)
	}
	if len(list.Scripts) == 0 {
		return nil, fmt.Errorf("script writer: empty script list")
	}
	for _, sc := range list.Scripts {
		if len(sc.Script) == 0 {
			return nil, fmt.Errorf("script writer: slide %d has no narration", sc.SlideNo)
		}
	}
	s.log.Info("Script produced", "slides", len(list.Scripts))
	return &list, nil
}
