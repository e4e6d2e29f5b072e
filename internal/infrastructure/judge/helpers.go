package judge

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/doeshing/toolgate/internal/domain"
	"github.com/doeshing/toolgate/internal/pkg/filesystem"
)

// agent env markers stripped before spawning a judge, so a judge that is
// itself an agent CLI does not believe it runs inside another agent and
// recurse into its own hooks.
var agentEnvPrefixes = []string{
	"CLAUDECODE=",
	"CLAUDE_CODE_",
}

// cleanEnv returns the current environment with agent markers removed and
// extra entries appended.
func cleanEnv(extra ...string) []string {
	env := make([]string, 0, len(os.Environ())+len(extra))
	for _, kv := range os.Environ() {
		if hasAgentMarker(kv) {
			continue
		}
		env = append(env, kv)
	}
	return append(env, extra...)
}

func hasAgentMarker(kv string) bool {
	for _, prefix := range agentEnvPrefixes {
		if strings.HasPrefix(kv, prefix) {
			return true
		}
	}
	return false
}

// judgeEnv builds the environment for a CLI judge subprocess: agent markers
// stripped, the judge pointed at its own config directory so it never picks
// up the calling agent's settings, and the configured credential passed
// through explicitly.
func judgeEnv(cfg domain.ProviderConfig) []string {
	extra := []string{
		"CLAUDE_CONFIG_DIR=" + filepath.Join(filesystem.ToolgateDir(), "judge"),
	}
	if cfg.AuthEnvVar != "" {
		if v := os.Getenv(cfg.AuthEnvVar); v != "" {
			extra = append(extra, cfg.AuthEnvVar+"="+v)
		}
	}
	return cleanEnv(extra...)
}

// joinSystem prefixes the judge instructions onto the user prompt for CLI
// backends, which have no separate system channel.
func joinSystem(system, prompt string) string {
	if system == "" {
		return prompt
	}
	return system + "\n\n" + prompt
}

// firstLine returns the first non-empty line of text, trimmed.
func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// cliArgs assembles the argument list for a CLI judge from configured args
// and the optional model flag.
func cliArgs(configured []string, model string) []string {
	args := make([]string, 0, len(configured)+2)
	args = append(args, configured...)
	if model != "" {
		args = append(args, "--model", model)
	}
	return args
}

// oneShotArgs appends the JSON output flag unless the configured args
// already pick a format.
func oneShotArgs(cfg domain.ProviderConfig) []string {
	args := cliArgs(cfg.Args, cfg.Model)
	if !containsFlag(args, "--output-format") {
		args = append(args, "--output-format", "json")
	}
	return args
}

// persistentArgs adds the flags that keep the judge resident and speaking
// line-delimited JSON on both streams.
func persistentArgs(cfg domain.ProviderConfig) []string {
	args := cliArgs(cfg.Args, cfg.Model)
	if !containsFlag(args, "--input-format") {
		args = append(args, "--input-format", "stream-json")
	}
	if !containsFlag(args, "--output-format") {
		args = append(args, "--output-format", "stream-json")
	}
	return args
}

func containsFlag(args []string, flag string) bool {
	for _, a := range args {
		if a == flag || strings.HasPrefix(a, flag+"=") {
			return true
		}
	}
	return false
}
