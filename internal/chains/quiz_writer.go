package chains

import (
	"context"
	"fmt"
	"strings"

	"github.com/neka-nat/lecturia/internal/domain"
	"github.com/neka-nat/lecturia/internal/platform/logger"
	"github.com/neka-nat/lecturia/internal/platform/openai"
)

// QuizWriter invents quiz interludes to slot between slide pages.
type QuizWriter interface {
	Produce(ctx context.Context, slideHTML string) (*domain.QuizSectionList, error)
}

const quizWriterSystem = "You are a professional quiz author. Create quizzes " +
	"to insert between the pages of the given HTML slide deck."

const quizWriterPrompt = `* Think of quizzes to place between slide pages.
* For each quiz section, record the number of the slide page shown before the quiz.

## Slides
` + "```html\n%s\n```" + `

## Output format
` + "```json" + `
{
  "quiz_sections": [
    {
      "name": "<section name>",
      "slide_no": <slide number before the quiz>,
      "quizzes": [
        {"question": "<question>", "choices": ["<choice 1>", "<choice 2>", "<choice 3>"], "answer_index": <index of the correct choice>}
      ]
    }
  ]
}
` + "```" + `

Wrap the output in a ` + "```json```" + ` block.
Output:`

type quizWriter struct {
	log    *logger.Logger
	client openai.Client
}

func NewQuizWriter(log *logger.Logger, client openai.Client) QuizWriter {
	return &quizWriter{log: log.With("chain", "QuizWriter"), client: client}
}

func (q *quizWriter) Produce(ctx context.Context, slideHTML string) (*domain.QuizSectionList, error) {
	if strings.TrimSpace(slideHTML) == "" {
		return nil, fmt.Errorf("slide html required")
	}
	text, err := q.client.GenerateText(ctx, quizWriterSystem, fmt.Sprintf(quizWriterPrompt, slideHTML))
	if err != nil {
		return nil, fmt.Errorf("quiz writer: %w", err)
	}
	var list domain.QuizSectionList
	if err := decodeJSONFence(text, &list); err != nil {
		return nil, fmt.Errorf("quiz writer: %w", err)
	}
	for _, sec := range list.QuizSections {
		if sec.Name == "" {
			return nil, fmt.Errorf("quiz writer: section without a name")
		}
		for _, quiz := range sec.Quizzes {
			if quiz.AnswerIndex < 0 || quiz.AnswerIndex >= len(quiz.Choices) {
				return nil, fmt.Errorf("quiz writer: answer index %d out of range in section %q", quiz.AnswerIndex, sec.Name)
			}
		}
	}
	q.log.Info("Quiz produced", "sections", len(list.QuizSections))
	return &list, nil
}
