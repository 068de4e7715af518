package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/neka-nat/lecturia/internal/platform/envutil"
	"github.com/neka-nat/lecturia/internal/platform/logger"
)

// Client is the LLM/TTS boundary used by the content chains. Responses are
// plain text; JSON-fence parsing stays with the callers so response-shape
// validation lives at the chain boundary.
type Client interface {
	GenerateText(ctx context.Context, system, user string) (string, error)

	// GenerateTextWithAudio sends the prompt together with an encoded audio
	// clip (multimodal input). Used by the animation-cue extractor.
	GenerateTextWithAudio(ctx context.Context, system, user string, audio []byte, format string) (string, error)

	// Speech synthesizes speech for text and returns encoded MP3 bytes.
	Speech(ctx context.Context, text, voice, instructions string) ([]byte, error)
}

type client struct {
	log         *logger.Logger
	baseURL     string
	apiKey      string
	model       string
	audioModel  string
	speechModel string
	httpClient  *http.Client
	maxRetries  int
}

func NewClient(log *logger.Logger) (Client, error) {
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}

	baseURL := strings.TrimRight(envutil.Str("OPENAI_BASE_URL", "https://api.openai.com"), "/")
	timeout := time.Duration(envutil.Int("OPENAI_TIMEOUT_SECONDS", 180)) * time.Second

	return &client{
		log:         log.With("service", "OpenAIClient"),
		baseURL:     baseURL,
		apiKey:      apiKey,
		model:       envutil.Str("OPENAI_MODEL", "gpt-4.1"),
		audioModel:  envutil.Str("OPENAI_AUDIO_MODEL", "gpt-4o-audio-preview"),
		speechModel: envutil.Str("OPENAI_SPEECH_MODEL", "gpt-4o-mini-tts"),
		httpClient:  &http.Client{Timeout: timeout},
		maxRetries:  envutil.Int("OPENAI_MAX_RETRIES", 4),
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type       string      `json:"type"`
	Text       string      `json:"text,omitempty"`
	InputAudio *inputAudio `json:"input_audio,omitempty"`
}

type inputAudio struct {
	Data   string `json:"data"`
	Format string `json:"format"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *client) GenerateText(ctx context.Context, system, user string) (string, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	return c.chat(ctx, req)
}

func (c *client) GenerateTextWithAudio(ctx context.Context, system, user string, audio []byte, format string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("audio payload is empty")
	}
	if format == "" {
		format = "mp3"
	}
	req := chatRequest{
		Model: c.audioModel,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: []contentPart{
				{Type: "text", Text: user},
				{Type: "input_audio", InputAudio: &inputAudio{
					Data:   base64.StdEncoding.EncodeToString(audio),
					Format: format,
				}},
			}},
		},
	}
	return c.chat(ctx, req)
}

func (c *client) chat(ctx context.Context, req chatRequest) (string, error) {
	var resp chatResponse
	if err := c.do(ctx, "/v1/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat returned no choices (model=%s)", req.Model)
	}
	return resp.Choices[0].Message.Content, nil
}

type speechRequest struct {
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	Input          string `json:"input"`
	Instructions   string `json:"instructions,omitempty"`
	ResponseFormat string `json:"response_format"`
}

func (c *client) Speech(ctx context.Context, text, voice, instructions string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("speech input is empty")
	}
	if voice == "" {
		voice = "sage"
	}
	req := speechRequest{
		Model:          c.speechModel,
		Voice:          voice,
		Input:          text,
		Instructions:   instructions,
		ResponseFormat: "mp3",
	}
	var raw []byte
	err := c.doRaw(ctx, "/v1/audio/speech", req, &raw)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("openai speech returned empty audio")
	}
	return raw, nil
}

func (c *client) do(ctx context.Context, path string, body any, out any) error {
	var raw []byte
	if err := c.doRaw(ctx, path, body, &raw); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("openai decode error: %w; raw=%s", err, truncate(string(raw), 512))
	}
	return nil
}

func (c *client) doRaw(ctx context.Context, path string, body any, out *[]byte) error {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		raw, status, err := c.doOnce(ctx, path, body)
		if err == nil {
			*out = raw
			return nil
		}
		if !retryable(status, err) || attempt == c.maxRetries {
			return err
		}

		c.log.Warn("OpenAI request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", backoff.String(),
			"error", err.Error(),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("unreachable retry loop")
}

func (c *client) doOnce(ctx context.Context, path string, body any) ([]byte, int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, fmt.Errorf("openai %s failed: status=%d body=%s", path, resp.StatusCode, truncate(string(raw), 512))
	}
	return raw, resp.StatusCode, nil
}

func retryable(status int, err error) bool {
	if status == http.StatusTooManyRequests || status >= 500 {
		return true
	}
	// Network-level failures come back with status 0.
	return status == 0 && err != nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
