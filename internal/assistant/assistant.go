package assistant

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/collabroom/collabroom-server/internal/config"
	"github.com/collabroom/collabroom-server/internal/store"
)

// FallbackText is the deterministic degraded answer returned when every
// invocation attempt fails. Callers must treat it as an ordinary reply.
const FallbackText = "Error: AI response could not be parsed correctly."

// instruction mandates the response shape the backend must produce.
const instruction = `You are an expert software developer.
Always respond with one SINGLE valid JSON object.
Format:
{
  "text": "string",
  "fileTree": { "directory/fileName.ext": { "file": { "contents": "string" } } }
}
Never include markdown fences, comments, or explanations.
If no code is needed, set "fileTree": {}.
Never make folders or sub-folders in the fileTree. Name files directory/fileName.ext only.`

// Result is a validated assistant answer. FileTree keys are flat
// directory/name.ext paths; values keep the backend's object shape as-is.
type Result struct {
	Text     string         `json:"text"`
	FileTree map[string]any `json:"fileTree,omitempty"`
}

// Generator produces raw text from a prompt. Output is not guaranteed to be
// well formed; validation is the Service's job.
type Generator interface {
	Generate(ctx context.Context, prompt, instruction string) (string, error)
}

// Service turns assistant-directed messages into validated, bounded-latency
// replies. The generator is injected at construction.
type Service struct {
	gen Generator
	cfg config.Assistant
	log *zerolog.Logger
}

// NewService creates an assistant service.
func NewService(gen Generator, cfg config.Assistant, logger *zerolog.Logger) *Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 15 * time.Second
	}
	return &Service{gen: gen, cfg: cfg, log: logger}
}

// Name returns the assistant's display name used as broadcast sender.
func (s *Service) Name() string {
	return s.cfg.Name
}

// Triggered reports whether a message is assistant-directed: its body
// contains the trigger token and it was authored by a human. Assistant
// messages never re-trigger, whatever their content.
func (s *Service) Triggered(body string, kind store.MessageKind) bool {
	if kind != store.MessageKindUser {
		return false
	}
	return strings.Contains(body, s.cfg.Trigger)
}

// Prompt strips the trigger token from the message body.
func (s *Service) Prompt(body string) string {
	return strings.TrimSpace(strings.ReplaceAll(body, s.cfg.Trigger, ""))
}

// Invoke calls the generative backend with bounded retries and validates the
// response shape. It never returns an error: after MaxAttempts failures the
// deterministic fallback is returned instead.
func (s *Service) Invoke(ctx context.Context, prompt string) *Result {
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		result, err := s.attempt(ctx, prompt)
		if err == nil {
			return result
		}

		s.log.Warn().Err(err).Int("attempt", attempt).Msg("assistant attempt failed")

		if attempt == s.cfg.MaxAttempts {
			break
		}
		if err := sleepContext(ctx, time.Duration(attempt)*s.cfg.RetryBackoff); err != nil {
			break
		}
	}

	return Fallback()
}

// Fallback returns the degraded answer with an empty file tree.
func Fallback() *Result {
	return &Result{Text: FallbackText}
}

func (s *Service) attempt(ctx context.Context, prompt string) (*Result, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.AttemptTimeout)
	defer cancel()

	raw, err := s.gen.Generate(attemptCtx, prompt, instruction)
	if err != nil {
		return nil, err
	}

	return parseResult(raw)
}

// parseResult validates that the backend produced a single JSON object with
// a string "text" and an object-shaped "fileTree". The fileTree key must be
// present; an explicit null passes as an empty tree.
func parseResult(raw string) (*Result, error) {
	var probe struct {
		Text     any             `json:"text"`
		FileTree json.RawMessage `json:"fileTree"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &probe); err != nil {
		return nil, err
	}

	text, ok := probe.Text.(string)
	if !ok {
		return nil, errInvalidShape("text is not a string")
	}
	if probe.FileTree == nil {
		return nil, errInvalidShape("fileTree is missing")
	}

	result := &Result{Text: text}
	if string(probe.FileTree) != "null" {
		tree := map[string]any{}
		if err := json.Unmarshal(probe.FileTree, &tree); err != nil {
			return nil, errInvalidShape("fileTree is not an object")
		}
		result.FileTree = tree
	}

	return result, nil
}

type shapeError string

func (e shapeError) Error() string { return "invalid response shape: " + string(e) }

func errInvalidShape(reason string) error { return shapeError(reason) }

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
