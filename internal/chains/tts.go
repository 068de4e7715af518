package chains

import (
	"context"
	"fmt"

	"github.com/neka-nat/lecturia/internal/platform/logger"
	"github.com/neka-nat/lecturia/internal/platform/openai"
)

// Talk is one speaker turn for multi-speaker synthesis.
type Talk struct {
	SpeakerName string
	Text        string
	VoiceType   string
}

// SpeechSynthesizer produces MP3 narration audio. Durations are always
// read back from the encoded bytes downstream, never assumed.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, voiceType string) ([]byte, error)
	SynthesizeMulti(ctx context.Context, talks []Talk) ([]byte, error)
}

// AudioJoiner splices independently synthesized clips into one stream.
// Implemented by the media service.
type AudioJoiner interface {
	JoinAudio(ctx context.Context, clips [][]byte) ([]byte, error)
}

const ttsInstructions = "Voice: Warm, upbeat, and reassuring, with a steady and confident cadence " +
	"that keeps the lecture calm and engaging.\n" +
	"Tone: Positive and curious, focusing on what the listener learns next.\n" +
	"Dialect: Neutral and professional, friendly but not overly casual."

type speechSynthesizer struct {
	log    *logger.Logger
	client openai.Client
	joiner AudioJoiner
}

func NewSpeechSynthesizer(log *logger.Logger, client openai.Client, joiner AudioJoiner) SpeechSynthesizer {
	return &speechSynthesizer{log: log.With("chain", "SpeechSynthesizer"), client: client, joiner: joiner}
}

func (s *speechSynthesizer) Synthesize(ctx context.Context, text, voiceType string) ([]byte, error) {
	audio, err := s.client.Speech(ctx, text, voiceType, ttsInstructions)
	if err != nil {
		return nil, fmt.Errorf("speech synthesis: %w", err)
	}
	return audio, nil
}

func (s *speechSynthesizer) SynthesizeMulti(ctx context.Context, talks []Talk) ([]byte, error) {
	if len(talks) == 0 {
		return nil, fmt.Errorf("speech synthesis: no speaker turns")
	}
	clips := make([][]byte, 0, len(talks))
	for i, talk := range talks {
		audio, err := s.client.Speech(ctx, talk.Text, talk.VoiceType, ttsInstructions)
		if err != nil {
			return nil, fmt.Errorf("speech synthesis turn %d (%s): %w", i, talk.SpeakerName, err)
		}
		clips = append(clips, audio)
	}
	if len(clips) == 1 {
		return clips[0], nil
	}
	joined, err := s.joiner.JoinAudio(ctx, clips)
	if err != nil {
		return nil, fmt.Errorf("speech synthesis: join turns: %w", err)
	}
	return joined, nil
}
