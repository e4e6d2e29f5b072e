// Package domain defines core business entities and value objects for toolgate.
//
// This file contains the safety verdict model shared by every judge backend.
// The domain layer is independent of infrastructure concerns and represents pure
// business logic and data structures.
package domain

// Category classifies the risk level assigned by a judge backend.
type Category string

const (
	CategorySafe      Category = "safe"
	CategoryCautious  Category = "cautious"
	CategoryRisky     Category = "risky"
	CategoryDangerous Category = "dangerous"
	CategoryUnknown   Category = "unknown"
	CategoryError     Category = "error"
)

// ParseCategory maps a raw backend string onto one of the fixed categories.
// Unrecognized values are coerced to CategoryUnknown rather than rejected.
func ParseCategory(raw string) Category {
	switch Category(raw) {
	case CategorySafe, CategoryCautious, CategoryRisky, CategoryDangerous, CategoryUnknown, CategoryError:
		return Category(raw)
	default:
		return CategoryUnknown
	}
}

// SafetyResult is the structured verdict returned by a backend for one query.
// It is created fresh per query and never mutated after return.
type SafetyResult struct {
	Success       bool     `json:"success"`
	Score         int      `json:"safetyScore"`
	Category      Category `json:"category"`
	Reasoning     string   `json:"reasoning"`
	ErrorMessage  string   `json:"errorMessage,omitempty"`
	ElapsedMillis int64    `json:"elapsedMillis"`
}

// ClampScore bounds a raw score into the valid [0,100] range.
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// FailureResult builds the uniform operational-failure verdict. Backends return
// this instead of surfacing errors to callers.
func FailureResult(reason string, elapsedMillis int64) SafetyResult {
	return SafetyResult{
		Success:       false,
		Score:         0,
		Category:      CategoryError,
		Reasoning:     reason,
		ErrorMessage:  reason,
		ElapsedMillis: elapsedMillis,
	}
}

// CancelledResult marks a query the caller abandoned. Cancellation is never
// retried and is distinguished from an internal timeout.
func CancelledResult(elapsedMillis int64) SafetyResult {
	return SafetyResult{
		Success:       false,
		Score:         0,
		Category:      CategoryError,
		Reasoning:     "query cancelled by caller",
		ErrorMessage:  "cancelled",
		ElapsedMillis: elapsedMillis,
	}
}

// Normalize clamps the score and coerces the category so that every result
// leaving a backend honors the domain invariants.
func (r SafetyResult) Normalize() SafetyResult {
	r.Score = ClampScore(r.Score)
	r.Category = ParseCategory(string(r.Category))
	return r
}
