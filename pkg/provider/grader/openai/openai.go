// Package openai provides a grading provider backed by an OpenAI
// audio-capable chat model. The recording is attached as an input_audio
// content part so transcription, grading, and rewriting happen in one call.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/opicoach/opicoach/pkg/provider/grader"
	"github.com/opicoach/opicoach/pkg/study"
)

const defaultModel = "gpt-4o-audio-preview"

// systemPrompt fixes the response contract. The style paragraph is appended
// per request; the "never let style affect" sentence carries the style
// independence contract documented on grader.Provider.
const systemPrompt = `You are an examiner for a spoken language proficiency test.
You receive one recorded answer to a practice question, the question text, and
a list of keywords the speaker was asked to use.

Respond with a single JSON object and nothing else, with exactly these fields:
{
  "transcript": "verbatim transcript of the recording",
  "level": "one of NL, NM, NH, IL, IM, IH, AL",
  "feedback": "short coaching feedback in plain text",
  "correction": {"intro": "...", "body": "...", "conclusion": "..."},
  "translation": {"intro": "...", "body": "...", "conclusion": "..."}
}

The transcript, level, and feedback are objective: they must describe the
recording exactly as spoken and must never be influenced by any rewrite style
instruction. Only the correction and its translation may vary by style.`

// styleInstructions maps each rewrite policy to the paragraph appended to the
// system prompt.
var styleInstructions = map[study.StyleDirection]string{
	study.StyleEasy:        "Rewrite style: use simple vocabulary and short sentences a beginner could repeat.",
	study.StyleNative:      "Rewrite style: use idiomatic, natural phrasing a native speaker would actually say.",
	study.StyleStoryteller: "Rewrite style: phrase the answer as a vivid first-person story.",
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

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

// Provider implements grader.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
}

var _ grader.Provider = (*Provider)(nil)

// New constructs a new OpenAI grading Provider. model defaults to an
// audio-capable chat model when empty.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		model = defaultModel
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

	return &Provider{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Grade implements grader.Provider.
func (p *Provider) Grade(ctx context.Context, req grader.Request) (*grader.Result, error) {
	if len(req.Audio) == 0 {
		return nil, fmt.Errorf("openai: request audio must not be empty")
	}

	prompt := systemPrompt
	if instr, ok := styleInstructions[req.Style]; ok {
		prompt += "\n\n" + instr
	}

	userText := "Question: " + req.Question
	if len(req.Keywords) > 0 {
		userText += "\nRequested keywords: " + strings.Join(req.Keywords, ", ")
	}

	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(prompt),
			oai.UserMessage([]oai.ChatCompletionContentPartUnionParam{
				oai.TextContentPart(userText),
				oai.InputAudioContentPart(oai.ChatCompletionContentPartInputAudioInputAudioParam{
					Data:   base64.StdEncoding.EncodeToString(req.Audio),
					Format: audioFormat(req.MIMEType),
				}),
			}),
		},
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices in response: %w", grader.ErrNonConforming)
	}

	result, err := parseResult(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	return result, nil
}

// gradingResponse mirrors the JSON object the system prompt demands.
type gradingResponse struct {
	Transcript  string        `json:"transcript"`
	Level       string        `json:"level"`
	Feedback    string        `json:"feedback"`
	Correction  threePartJSON `json:"correction"`
	Translation threePartJSON `json:"translation"`
}

type threePartJSON struct {
	Intro      string `json:"intro"`
	Body       string `json:"body"`
	Conclusion string `json:"conclusion"`
}

// parseResult extracts the structured result from the raw completion text.
// Models occasionally wrap JSON in a markdown code fence despite the prompt,
// so fences are stripped before decoding. Any missing required field fails
// with grader.ErrNonConforming.
func parseResult(content string) (*grader.Result, error) {
	cleaned := stripCodeFence(content)

	var resp gradingResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, fmt.Errorf("decode grading response: %v: %w", err, grader.ErrNonConforming)
	}

	if resp.Transcript == "" {
		return nil, fmt.Errorf("grading response missing transcript: %w", grader.ErrNonConforming)
	}
	level, err := study.ParseLevel(resp.Level)
	if err != nil {
		return nil, fmt.Errorf("grading response level: %v: %w", err, grader.ErrNonConforming)
	}
	correction := study.ThreePart(resp.Correction)
	if correction.IsZero() {
		return nil, fmt.Errorf("grading response missing correction: %w", grader.ErrNonConforming)
	}

	return &grader.Result{
		Transcript:  resp.Transcript,
		Level:       level,
		Feedback:    resp.Feedback,
		Correction:  correction,
		Translation: study.ThreePart(resp.Translation),
	}, nil
}

// stripCodeFence removes a surrounding markdown code fence (``` or ```json)
// if present and returns the trimmed inner text.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// audioFormat maps a MIME type to the input_audio format identifier.
func audioFormat(mimeType string) string {
	switch mimeType {
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	default:
		return "wav"
	}
}
