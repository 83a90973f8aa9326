package pattern

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/autobudgeter/internal/common"
	"github.com/Veraticus/autobudgeter/internal/model"
)

// ErrInvalidPattern indicates a rule pattern that can never match.
var ErrInvalidPattern = errors.New("invalid pattern")

// ValidatePattern checks that a pattern is usable for the given type.
func ValidatePattern(pattern string, patternType model.PatternType) error {
	if strings.TrimSpace(pattern) == "" {
		return fmt.Errorf("%w: pattern is empty", ErrInvalidPattern)
	}

	switch patternType {
	case model.PatternSubstring:
		return nil
	case model.PatternRegex:
		if _, err := common.CompileInsensitive(pattern); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown pattern type %q", ErrInvalidPattern, patternType)
	}
}

// ValidateRule checks a rule before it is stored.
func ValidateRule(rule model.Rule) error {
	if strings.TrimSpace(rule.Category) == "" {
		return fmt.Errorf("%w: category is empty", ErrInvalidPattern)
	}
	return ValidatePattern(rule.Pattern, rule.PatternType)
}
