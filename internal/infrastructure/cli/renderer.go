package cli

import (
	"os"

	"github.com/mattn/go-isatty"

	"github.com/doeshing/toolgate/internal/domain"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
)

// colorEnabled is resolved once; output piped into another program stays
// plain ASCII.
var colorEnabled = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

func colorize(color, text string) string {
	if !colorEnabled {
		return text
	}
	return color + text + colorReset
}

func renderDecision(decision string) string {
	switch domain.Decision(decision) {
	case domain.DecisionAllow:
		return colorize(colorGreen, decision)
	case domain.DecisionDeny:
		return colorize(colorRed, decision)
	case domain.DecisionAsk:
		return colorize(colorYellow, decision)
	default:
		return decision
	}
}

func renderStatus(status domain.HealthStatus) string {
	switch status {
	case domain.HealthOK:
		return colorize(colorGreen, "[ ok ]")
	case domain.HealthWarn:
		return colorize(colorYellow, "[warn]")
	default:
		return colorize(colorRed, "[fail]")
	}
}
