package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const judge0Driver = "judge0"

// Judge0Config configures the Judge0 client.
type Judge0Config struct {
	BaseURL   string
	AuthToken string
	Timeout   time.Duration
	Logger    zerolog.Logger
}

// Judge0Client talks to a Judge0 compatible HTTP API in submit-and-wait mode.
type Judge0Client struct {
	http   *resty.Client
	tracer trace.Tracer
	logger zerolog.Logger
}

type judge0Request struct {
	SourceCode string `json:"source_code"`
	LanguageID int    `json:"language_id"`
	Stdin      string `json:"stdin"`
}

type judge0Response struct {
	Status struct {
		ID          int    `json:"id"`
		Description string `json:"description"`
	} `json:"status"`
	Stdout        string `json:"stdout"`
	Stderr        string `json:"stderr"`
	CompileOutput string `json:"compile_output"`
	Message       string `json:"message"`
}

// NewJudge0Client builds a client for the given base URL.
func NewJudge0Client(cfg Judge0Config) (*Judge0Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("judge0 base url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if token := strings.TrimSpace(cfg.AuthToken); token != "" {
		client.SetHeader("X-Auth-Token", token)
	}

	return &Judge0Client{
		http:   client,
		tracer: otel.Tracer("jobify/pkg/sandbox"),
		logger: cfg.Logger.With().Str("component", "judge0_client").Logger(),
	}, nil
}

// Execute posts the submission and waits for its terminal status.
func (c *Judge0Client) Execute(parent context.Context, submission Submission) (Result, error) {
	ctx, span := c.tracer.Start(parent, "sandbox.judge0.execute", trace.WithAttributes(
		attribute.Int("sandbox.language_id", submission.LanguageID),
	))
	defer span.End()

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"base64_encoded": "false",
			"wait":           "true",
		}).
		SetBody(judge0Request{
			SourceCode: submission.SourceCode,
			LanguageID: submission.LanguageID,
			Stdin:      submission.Stdin,
		}).
		Post("/submissions")
	executionDuration.WithLabelValues(judge0Driver).Observe(time.Since(start).Seconds())

	if err != nil {
		executionFailures.WithLabelValues(judge0Driver).Inc()
		if errors.Is(err, context.DeadlineExceeded) {
			executionTimeouts.WithLabelValues(judge0Driver).Inc()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn().Err(err).Int("language_id", submission.LanguageID).Msg("judge0 request failed")
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if !resp.IsSuccess() {
		executionFailures.WithLabelValues(judge0Driver).Inc()
		span.SetStatus(codes.Error, resp.Status())
		c.logger.Warn().Int("status", resp.StatusCode()).Int("language_id", submission.LanguageID).Msg("judge0 returned non-success status")
		return Result{}, fmt.Errorf("%w: judge0 responded %d", ErrUnavailable, resp.StatusCode())
	}

	var payload judge0Response
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		executionFailures.WithLabelValues(judge0Driver).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode response")
		return Result{}, fmt.Errorf("%w: decode judge0 response: %v", ErrUnavailable, err)
	}

	span.SetAttributes(attribute.String("sandbox.status", payload.Status.Description))

	return Result{
		Status:        payload.Status.Description,
		Stdout:        payload.Stdout,
		Stderr:        payload.Stderr,
		CompileOutput: payload.CompileOutput,
		Message:       payload.Message,
	}, nil
}
