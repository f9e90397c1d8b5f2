// Package openai provides a speech synthesizer backed by the OpenAI
// text-to-speech endpoint, requesting raw PCM output so no container
// decoding is needed downstream.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/opicoach/opicoach/pkg/audio"
	"github.com/opicoach/opicoach/pkg/provider/speech"
)

const (
	defaultModel = "gpt-4o-mini-tts"
	defaultVoice = "alloy"

	// The pcm response format is fixed at 24 kHz mono 16-bit.
	sampleRate = 24000
)

// Option is a functional option for configuring the Synthesizer.
type Option func(*config)

// config holds optional configuration for the synthesizer.
type config struct {
	baseURL string
	timeout time.Duration
}

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// Synthesizer implements speech.Synthesizer using the OpenAI API.
type Synthesizer struct {
	client       oai.Client
	model        string
	defaultVoice string
}

var _ speech.Synthesizer = (*Synthesizer)(nil)

// New constructs a new OpenAI Synthesizer. model and voice default to the
// current speech model and a neutral voice when empty.
func New(apiKey, model, voice string, opts ...Option) (*Synthesizer, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	if model == "" {
		model = defaultModel
	}
	if voice == "" {
		voice = defaultVoice
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Synthesizer{
		client:       oai.NewClient(reqOpts...),
		model:        model,
		defaultVoice: voice,
	}, nil
}

// Format implements speech.Synthesizer.
func (s *Synthesizer) Format() audio.Format {
	return audio.Format{SampleRate: sampleRate, Channels: 1}
}

// Synthesize implements speech.Synthesizer.
func (s *Synthesizer) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if text == "" {
		return nil, errors.New("openai: text must not be empty")
	}
	if voice == "" {
		voice = s.defaultVoice
	}

	resp, err := s.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Model:          oai.SpeechModel(s.model),
		Input:          text,
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: speech: %w", err)
	}
	defer resp.Body.Close()

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: read speech response: %w", err)
	}
	if len(pcm) == 0 {
		return nil, errors.New("openai: synthesis produced no audio")
	}
	return pcm, nil
}
