package chains

import (
	"context"
	"fmt"
	"strings"

	"github.com/neka-nat/lecturia/internal/domain"
	"github.com/neka-nat/lecturia/internal/platform/logger"
	"github.com/neka-nat/lecturia/internal/platform/openai"
)

// SlideMaker authors the single-file HTML slide deck for a topic. Slow
// (tens of seconds); the pipeline's cache gate keeps it at-most-once per
// lecture.
type SlideMaker interface {
	Produce(ctx context.Context, topic, detail string, extraRules []string) (*domain.HTMLSlide, error)
}

const slideMakerSystem = "You are a professional author of lecture slides. " +
	"Create lecture slides in HTML form based on the given title."

const slideMakerPrompt = `## Slide rules
* Produce the whole deck as one self-contained HTML file.
* Put a page number somewhere on every slide.
* Separate the input keys that trigger in-slide events:
  * Page advance must react to the "ArrowRight" key only.
  * Consider adding animations to make the slides clearer. Animations must be triggered by the "Enter" key only.
* For mathematical animations, embed <canvas> or <svg> elements.
%s
## Slide content
Title: %s
%s

Wrap the output in a ` + "```html```" + ` block.
Output:`

type slideMaker struct {
	log    *logger.Logger
	client openai.Client
}

func NewSlideMaker(log *logger.Logger, client openai.Client) SlideMaker {
	return &slideMaker{log: log.With("chain", "SlideMaker"), client: client}
}

func (s *slideMaker) Produce(ctx context.Context, topic, detail string, extraRules []string) (*domain.HTMLSlide, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, fmt.Errorf("topic required")
	}

	rules := ""
	if len(extraRules) > 0 {
		var b strings.Builder
		b.WriteString("\n## Extra rules\n")
		for _, rule := range extraRules {
			fmt.Fprintf(&b, "- %s\n", rule)
		}
		rules = b.String()
	}

	text, err := s.client.GenerateText(ctx, slideMakerSystem, fmt.Sprintf(slideMakerPrompt, rules, topic, detail))
	if err != nil {
		return nil, fmt.Errorf("slide maker: %w", err)
	}
	html, err := ExtractHTMLFence(text)
	if err != nil {
		return nil, fmt.Errorf("slide maker: %w", err)
	}
	s.log.Info("Slide deck produced", "topic", topic, "bytes", len(html))
	return &domain.HTMLSlide{HTML: html}, nil
}
