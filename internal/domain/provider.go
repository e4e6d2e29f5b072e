package domain

import "time"

// ProviderKind selects which judge backend implementation handles queries.
type ProviderKind string

const (
	// ProviderOneShotCLI spawns a fresh subprocess per query.
	ProviderOneShotCLI ProviderKind = "one-shot-cli"
	// ProviderPersistentCLI keeps one resident subprocess speaking
	// line-delimited JSON over its standard streams.
	ProviderPersistentCLI ProviderKind = "persistent-cli"
	// ProviderHTTPRest posts queries to a chat-completion style REST endpoint.
	ProviderHTTPRest ProviderKind = "http-rest"
)

// ProviderConfig describes the active judge backend as declared in the config
// file. It is owned by configuration, read-only to the engine, and may change
// between queries; the registry swaps backends when it does.
type ProviderConfig struct {
	Kind          ProviderKind `yaml:"kind"`
	Command       string       `yaml:"command,omitempty"`
	Args          []string     `yaml:"args,omitempty"`
	Model         string       `yaml:"model,omitempty"`
	SystemPrompt  string       `yaml:"system_prompt,omitempty"`
	TimeoutMillis int64        `yaml:"timeout_millis,omitempty"`
	AuthEnvVar    string       `yaml:"auth_env_var,omitempty"`

	// REST-only fields.
	RestURL          string            `yaml:"rest_url,omitempty"`
	RestHeaders      map[string]string `yaml:"rest_headers,omitempty"`
	RestBodyTemplate string            `yaml:"rest_body_template,omitempty"`
	RestResponsePath string            `yaml:"rest_response_path,omitempty"`

	// HeuristicParse scores free-text answers by keyword counting instead of
	// requiring a structured JSON verdict. Used for backends that never emit
	// JSON (e.g. bare completion models).
	HeuristicParse bool `yaml:"heuristic_parse,omitempty"`
}

// GetKind returns the configured provider kind with default fallback.
func (c ProviderConfig) GetKind() ProviderKind {
	if c.Kind == "" {
		return ProviderOneShotCLI
	}
	return c.Kind
}

// GetCommand returns the judge executable with default fallback.
func (c ProviderConfig) GetCommand() string {
	if c.Command == "" {
		return DefaultJudgeCommand
	}
	return c.Command
}

// GetTimeout resolves the per-query timeout, clamped into the allowed range so
// a misconfiguration can neither hang forever nor fail instantly.
func (c ProviderConfig) GetTimeout() time.Duration {
	timeout := time.Duration(c.TimeoutMillis) * time.Millisecond
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	if timeout < MinQueryTimeout {
		return MinQueryTimeout
	}
	if timeout > MaxQueryTimeout {
		return MaxQueryTimeout
	}
	return timeout
}

// GetRestResponsePath returns the answer extraction path with default fallback.
func (c ProviderConfig) GetRestResponsePath() string {
	if c.RestResponsePath == "" {
		return DefaultRestResponsePath
	}
	return c.RestResponsePath
}

// Fingerprint summarizes the fields whose change requires a backend swap.
// The registry compares fingerprints between queries to decide whether the
// cached backend is still valid.
func (c ProviderConfig) Fingerprint() string {
	fp := string(c.GetKind()) + "|" + c.GetCommand() + "|" + c.Model + "|" + c.RestURL
	for _, a := range c.Args {
		fp += "|" + a
	}
	return fp
}
