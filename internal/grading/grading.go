// Package grading wraps a generative grading backend with the policies the
// pipeline requires: a per-call timeout, circuit breaking, normalization of
// the stylized model answer, and keyword coverage reporting.
//
// A failed grading attempt is terminal. The caller surfaces the error and the
// learner re-initiates recording; nothing in this package retries.
package grading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opicoach/opicoach/internal/keyword"
	"github.com/opicoach/opicoach/internal/observe"
	"github.com/opicoach/opicoach/internal/resilience"
	"github.com/opicoach/opicoach/pkg/provider/grader"
	"github.com/opicoach/opicoach/pkg/study"
)

// ErrMalformedResult marks a backend response that was structurally unusable:
// unparseable, missing required fields, or carrying an unknown proficiency
// level.
var ErrMalformedResult = errors.New("grading: malformed backend result")

const defaultTimeout = 60 * time.Second

// Result is the fully normalized outcome of one grading call.
type Result struct {
	// Transcript is the verbatim transcript reported by the backend.
	Transcript string

	// Level is the predicted proficiency grade.
	Level study.Level

	// Feedback is free-text coaching feedback.
	Feedback string

	// Correction is the stylized model answer with markup stripped and
	// whitespace collapsed in each part.
	Correction study.ThreePart

	// Translation is the translated model answer, normalized the same way.
	Translation study.ThreePart

	// MatchedKeywords is the subset of the requested keywords detected in
	// the transcript, in request order.
	MatchedKeywords []string
}

// Option is a functional option for configuring a [Client].
type Option func(*Client)

// WithTimeout bounds each grading call. Default: 60s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

// WithMatcher replaces the default keyword matcher.
func WithMatcher(m *keyword.Matcher) Option {
	return func(c *Client) {
		c.matcher = m
	}
}

// WithLogger sets the logger used for failure reporting.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// Client issues grading calls against a [grader.Provider].
// Safe for concurrent use.
type Client struct {
	provider grader.Provider
	breaker  *resilience.Breaker
	matcher  *keyword.Matcher
	logger   *slog.Logger
	metrics  *observe.Metrics
	timeout  time.Duration
}

// NewClient creates a grading client around the given backend provider.
func NewClient(p grader.Provider, opts ...Option) *Client {
	c := &Client{
		provider: p,
		breaker: resilience.NewBreaker(resilience.BreakerConfig{
			Name: "grading",
		}),
		matcher: keyword.New(),
		logger:  slog.Default(),
		timeout: defaultTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Grade issues one combined objective-grading + stylized-rewrite call and
// normalizes the response. The free-text keywords on req also drive the
// coverage report on the returned result.
//
// Any failure is terminal for the attempt. Malformed backend responses are
// reported as [ErrMalformedResult].
func (c *Client) Grade(ctx context.Context, req grader.Request) (*Result, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var raw *grader.Result
	err := c.breaker.Execute(func() error {
		var callErr error
		raw, callErr = c.provider.Grade(ctx, req)
		return callErr
	})
	if err != nil {
		reason := "backend"
		if errors.Is(err, grader.ErrNonConforming) {
			reason = "malformed"
			err = fmt.Errorf("%w: %v", ErrMalformedResult, err)
		}
		c.metrics.RecordGradingFailure(ctx, reason)
		c.logger.Error("grading call failed",
			"question", req.Question,
			"error", err)
		return nil, err
	}

	res, err := c.normalize(raw)
	if err != nil {
		c.metrics.RecordGradingFailure(ctx, "malformed")
		c.logger.Error("grading result rejected", "error", err)
		return nil, err
	}

	res.MatchedKeywords = c.matcher.Covered(res.Transcript, req.Keywords)
	c.metrics.GradingDuration.Record(ctx, time.Since(start).Seconds())
	return res, nil
}

// normalize validates required fields and cleans each part of the model
// answer and its translation.
func (c *Client) normalize(raw *grader.Result) (*Result, error) {
	if raw.Transcript == "" {
		return nil, fmt.Errorf("%w: empty transcript", ErrMalformedResult)
	}
	if !raw.Level.IsValid() {
		return nil, fmt.Errorf("%w: level %q", ErrMalformedResult, raw.Level)
	}

	correction := normalizeParts(raw.Correction)
	translation := normalizeParts(raw.Translation)
	if correction.IsZero() {
		return nil, fmt.Errorf("%w: empty correction", ErrMalformedResult)
	}
	if translation.IsZero() {
		return nil, fmt.Errorf("%w: empty translation", ErrMalformedResult)
	}

	return &Result{
		Transcript:  study.CollapseWhitespace(raw.Transcript),
		Level:       raw.Level,
		Feedback:    study.CollapseWhitespace(raw.Feedback),
		Correction:  correction,
		Translation: translation,
	}, nil
}

// normalizeParts applies markup stripping and whitespace collapsing to each
// part of a three-part answer.
func normalizeParts(t study.ThreePart) study.ThreePart {
	return study.ThreePart{
		Intro:      normalizePart(t.Intro),
		Body:       normalizePart(t.Body),
		Conclusion: normalizePart(t.Conclusion),
	}
}

// markupReplacer removes the markdown artifacts generative backends sprinkle
// into plain-text answers despite instructions not to.
var markupReplacer = strings.NewReplacer(
	"**", "",
	"*", "",
	"`", "",
	"##", "",
)

// normalizePart strips markup artifacts from one answer part and collapses
// whitespace. The part delimiter never survives normalization since the
// stored representation reserves it.
func normalizePart(s string) string {
	s = markupReplacer.Replace(s)
	s = strings.ReplaceAll(s, study.PartDelimiter, " ")
	return study.CollapseWhitespace(s)
}
