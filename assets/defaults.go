package assets

import (
	_ "embed"
)

// DefaultConfigYAML contains the embedded default configuration.
//
//go:embed defaults/config.yaml
var DefaultConfigYAML []byte

// DefaultSystemPrompt contains the embedded judge system prompt.
//
//go:embed defaults/system_prompt.txt
var DefaultSystemPrompt string
