package model

import (
	"time"
)

// PatternType selects how a rule pattern is evaluated.
type PatternType string

// Pattern type constants.
const (
	PatternSubstring PatternType = "substring"
	PatternRegex     PatternType = "regex"
)

// Valid reports whether p is a known pattern type.
func (p PatternType) Valid() bool {
	return p == PatternSubstring || p == PatternRegex
}

// RuleOrigin records who authored a rule. It never affects evaluation order.
type RuleOrigin string

// Rule origin constants.
const (
	OriginUser RuleOrigin = "user"
	OriginLLM  RuleOrigin = "llm"
)

// Rule maps transactions whose text matches Pattern to Category.
type Rule struct {
	CreatedAt   time.Time   `json:"created_at"`
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Pattern     string      `json:"pattern"`
	PatternType PatternType `json:"pattern_type"`
	Category    string      `json:"category"`
	Origin      RuleOrigin  `json:"origin"`
	Priority    int         `json:"priority"`
	Enabled     bool        `json:"enabled"`
}
