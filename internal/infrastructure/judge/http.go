package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/doeshing/toolgate/internal/domain"
	"github.com/doeshing/toolgate/internal/ports"
)

const defaultBodyTemplate = `{"model": {{.Model}}, "messages": [{"role": "system", "content": {{.SystemPrompt}}}, {"role": "user", "content": {{.Prompt}}}]}`

// HTTPBackend posts a templated JSON body to a configured REST endpoint and
// extracts the judge verdict from the response at the configured JSON path.
// 429 and 5xx responses are retried with a growing delay.
type HTTPBackend struct {
	cfg    domain.ProviderConfig
	client *http.Client
	parser *Parser
	tmpl   *template.Template
	log    ports.Logger
}

var _ ports.Backend = (*HTTPBackend)(nil)

// NewHTTPBackend builds an HTTPBackend. The body template is parsed eagerly
// so a malformed template fails construction, not the first query.
func NewHTTPBackend(cfg domain.ProviderConfig, log ports.Logger) (*HTTPBackend, error) {
	if cfg.RestURL == "" {
		return nil, fmt.Errorf("http-rest provider requires rest_url")
	}
	body := cfg.RestBodyTemplate
	if body == "" {
		body = defaultBodyTemplate
	}
	tmpl, err := template.New("body").Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse rest_body_template: %w", err)
	}
	return &HTTPBackend{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.GetTimeout()},
		parser: NewParser(cfg.HeuristicParse),
		tmpl:   tmpl,
		log:    log,
	}, nil
}

func (b *HTTPBackend) Name() string {
	return string(domain.ProviderHTTPRest)
}

// templateData carries JSON-quoted values, so templates splice them into a
// JSON body without worrying about escaping.
type templateData struct {
	Prompt       string
	Model        string
	SystemPrompt string
}

// Query implements ports.Backend.
func (b *HTTPBackend) Query(ctx context.Context, prompt string) domain.SafetyResult {
	start := time.Now()

	body, err := b.renderBody(prompt)
	if err != nil {
		return domain.FailureResult(err.Error(), time.Since(start).Milliseconds())
	}

	var lastReason string
	for attempt := 1; attempt <= domain.MaxQueryAttempts; attempt++ {
		if attempt > 1 {
			// Delay grows with each attempt.
			delay := time.Duration(attempt-1) * domain.RetryDelay
			select {
			case <-ctx.Done():
				return domain.CancelledResult(time.Since(start).Milliseconds())
			case <-time.After(delay):
			}
		}

		result, retry, reason := b.attempt(ctx, body, start)
		if !retry {
			return result
		}
		lastReason = reason
		b.log.Warn("judge request failed", map[string]interface{}{
			"attempt": attempt,
			"reason":  reason,
		})
	}

	reason := fmt.Sprintf("judge endpoint failed after %d attempts: %s", domain.MaxQueryAttempts, lastReason)
	return domain.FailureResult(reason, time.Since(start).Milliseconds())
}

func (b *HTTPBackend) renderBody(prompt string) ([]byte, error) {
	data, err := quoteAll(prompt, b.cfg.Model, b.cfg.SystemPrompt)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := b.tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render request body: %w", err)
	}
	return buf.Bytes(), nil
}

func quoteAll(prompt, model, systemPrompt string) (templateData, error) {
	quote := func(s string) (string, error) {
		raw, err := json.Marshal(s)
		return string(raw), err
	}
	p, err := quote(prompt)
	if err != nil {
		return templateData{}, err
	}
	m, err := quote(model)
	if err != nil {
		return templateData{}, err
	}
	sp, err := quote(systemPrompt)
	if err != nil {
		return templateData{}, err
	}
	return templateData{Prompt: p, Model: m, SystemPrompt: sp}, nil
}

// attempt performs one request. It reports whether the failure is worth
// retrying and a short reason for the log.
func (b *HTTPBackend) attempt(ctx context.Context, body []byte, start time.Time) (domain.SafetyResult, bool, string) {
	elapsed := func() int64 { return time.Since(start).Milliseconds() }

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.RestURL, bytes.NewReader(body))
	if err != nil {
		return domain.FailureResult(err.Error(), elapsed()), false, ""
	}
	req.Header.Set("content-type", "application/json")
	if err := b.setHeaders(req); err != nil {
		return domain.FailureResult(err.Error(), elapsed()), false, ""
	}

	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.CancelledResult(elapsed()), false, ""
		}
		return domain.FailureResult(err.Error(), elapsed()), true, err.Error()
	}
	defer resp.Body.Close()

	// One byte past the cap distinguishes "at the limit" from "over it".
	payload, err := io.ReadAll(io.LimitReader(resp.Body, domain.MaxCaptureBytes+1))
	if err != nil {
		return domain.FailureResult(err.Error(), elapsed()), true, err.Error()
	}
	if len(payload) > domain.MaxCaptureBytes {
		reason := "judge response exceeds size limit"
		return domain.FailureResult(reason, elapsed()), false, ""
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		reason := fmt.Sprintf("judge endpoint returned %s", resp.Status)
		return domain.FailureResult(reason, elapsed()), true, reason
	case resp.StatusCode >= 400:
		// Auth or request shape problem, retrying will not help.
		reason := fmt.Sprintf("judge endpoint rejected request: %s", resp.Status)
		return domain.FailureResult(reason, elapsed()), false, ""
	}

	content, err := extractResponseContent(payload, b.cfg.GetRestResponsePath())
	if err != nil {
		return domain.FailureResult(err.Error(), elapsed()), false, ""
	}

	// Retries are for 429/5xx only; a reply that reached us but carries no
	// verdict would parse the same on every attempt.
	parsed := b.parser.Parse(content, elapsed())
	return parsed, false, ""
}

func (b *HTTPBackend) setHeaders(req *http.Request) error {
	if b.cfg.AuthEnvVar != "" {
		key := os.Getenv(b.cfg.AuthEnvVar)
		if key == "" {
			return fmt.Errorf("missing API key: set %s environment variable", b.cfg.AuthEnvVar)
		}
		req.Header.Set("authorization", "Bearer "+key)
	}
	for name, value := range b.cfg.RestHeaders {
		req.Header.Set(name, expandAuthEnv(value))
	}
	return nil
}

// expandAuthEnv substitutes ${VAR} references in configured header values,
// so keys stay out of the config file.
func expandAuthEnv(value string) string {
	return os.Expand(value, func(name string) string {
		return os.Getenv(name)
	})
}

// Close implements ports.Backend.
func (b *HTTPBackend) Close() error {
	b.client.CloseIdleConnections()
	return nil
}

// extractResponseContent pulls the judge text out of the endpoint's JSON
// response using a dotted path with optional [index] segments, for example
// "choices[0].message.content".
func extractResponseContent(payload []byte, path string) (string, error) {
	var response map[string]interface{}
	if err := json.Unmarshal(payload, &response); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	content, err := extractJSONPath(response, path)
	if err != nil {
		return "", fmt.Errorf("extract from path '%s': %w", path, err)
	}
	return strings.TrimSpace(content), nil
}

// extractJSONPath walks a nested JSON structure using a simple path notation.
// Supported paths: "field", "field.nested", "field[0]", "field[0].nested".
func extractJSONPath(data map[string]interface{}, path string) (string, error) {
	parts := parseJSONPath(path)
	var current interface{} = data

	for _, part := range parts {
		switch part.kind {
		case "field":
			obj, ok := current.(map[string]interface{})
			if !ok {
				return "", fmt.Errorf("expected object at '%s'", part.value)
			}
			var found bool
			current, found = obj[part.value]
			if !found {
				return "", fmt.Errorf("field '%s' not found", part.value)
			}

		case "index":
			arr, ok := current.([]interface{})
			if !ok {
				return "", fmt.Errorf("expected array at index %s", part.value)
			}
			var idx int
			fmt.Sscanf(part.value, "%d", &idx)
			if idx < 0 || idx >= len(arr) {
				return "", fmt.Errorf("index %d out of bounds (len=%d)", idx, len(arr))
			}
			current = arr[idx]
		}
	}

	if str, ok := current.(string); ok {
		return str, nil
	}
	return "", fmt.Errorf("final value is not a string: %T", current)
}

type pathPart struct {
	kind  string // "field" or "index"
	value string
}

// parseJSONPath converts "choices[0].message.content" into structured parts.
func parseJSONPath(path string) []pathPart {
	var parts []pathPart
	current := ""

	for i := 0; i < len(path); i++ {
		ch := path[i]
		switch ch {
		case '.':
			if current != "" {
				parts = append(parts, pathPart{kind: "field", value: current})
				current = ""
			}
		case '[':
			if current != "" {
				parts = append(parts, pathPart{kind: "field", value: current})
				current = ""
			}
			j := i + 1
			for j < len(path) && path[j] != ']' {
				j++
			}
			if j < len(path) {
				parts = append(parts, pathPart{kind: "index", value: path[i+1 : j]})
				i = j
			}
		default:
			current += string(ch)
		}
	}

	if current != "" {
		parts = append(parts, pathPart{kind: "field", value: current})
	}
	return parts
}
