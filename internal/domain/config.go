package domain

// Config mirrors ~/.toolgate/config.yaml.
type Config struct {
	ConfigFormatVersion string           `yaml:"config_format_version"`
	Provider            ProviderConfig   `yaml:"provider"`
	Analysis            AnalysisSettings `yaml:"analysis"`
	Sessions            SessionSettings  `yaml:"sessions"`
	Audit               AuditSettings    `yaml:"audit"`
}

// AnalysisSettings tunes how verdicts are turned into decisions.
type AnalysisSettings struct {
	ScoreThreshold int  `yaml:"score_threshold"`
	Verbose        bool `yaml:"verbose"`
}

// GetScoreThreshold returns the auto-approve threshold with default fallback.
func (s AnalysisSettings) GetScoreThreshold() int {
	if s.ScoreThreshold <= 0 || s.ScoreThreshold > 100 {
		return DefaultScoreThreshold
	}
	return s.ScoreThreshold
}

// SessionSettings controls the session store.
type SessionSettings struct {
	Dir           string `yaml:"dir"`
	MaxHistory    int    `yaml:"max_history"`
	CacheSize     int    `yaml:"cache_size"`
	ContextEvents int    `yaml:"context_events"`
}

// GetMaxHistory returns the per-session history bound with default fallback.
func (s SessionSettings) GetMaxHistory() int {
	if s.MaxHistory <= 0 {
		return DefaultMaxHistory
	}
	return s.MaxHistory
}

// GetCacheSize returns the in-memory cache bound with default fallback.
func (s SessionSettings) GetCacheSize() int {
	if s.CacheSize <= 0 {
		return DefaultSessionCacheSize
	}
	return s.CacheSize
}

// GetContextEvents returns the context window length with default fallback.
func (s SessionSettings) GetContextEvents() int {
	if s.ContextEvents <= 0 {
		return DefaultContextEvents
	}
	return s.ContextEvents
}

// AuditSettings controls the decision audit log.
type AuditSettings struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}
