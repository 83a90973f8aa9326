package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Veraticus/autobudgeter/internal/common"
)

// DecodeResponse parses provider output into a loosely typed map and validates it.
func DecodeResponse(content string) (Result, error) {
	content = stripCodeFence(content)
	if content == "" {
		return Result{}, common.NewValidationError("response", "empty response")
	}

	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader([]byte(content)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return Result{}, common.NewValidationError("response", fmt.Sprintf("not a JSON object: %v", err))
	}

	return ValidateResponse(raw)
}

// ValidateResponse checks a decoded response against the expected shape. Nothing from a
// response that fails validation is returned.
func ValidateResponse(raw map[string]any) (Result, error) {
	if raw == nil {
		return Result{}, common.NewValidationError("response", "missing object")
	}

	var result Result

	category, ok := raw["category"].(string)
	if !ok || strings.TrimSpace(category) == "" {
		return Result{}, common.NewValidationError("category", "must be a non-empty string")
	}
	result.Category = strings.TrimSpace(category)

	confidence, ok := number(raw["confidence"])
	if !ok {
		return Result{}, common.NewValidationError("confidence", "must be a number")
	}
	if confidence < 0 || confidence > 1 {
		return Result{}, common.NewValidationError("confidence", fmt.Sprintf("%v is outside [0,1]", confidence))
	}
	result.Confidence = confidence

	reasoning, ok := raw["reasoning_short"].(string)
	if !ok {
		return Result{}, common.NewValidationError("reasoning_short", "must be a string")
	}
	if utf8.RuneCountInString(reasoning) > MaxReasoningLength {
		return Result{}, common.NewValidationError("reasoning_short",
			fmt.Sprintf("longer than %d characters", MaxReasoningLength))
	}
	result.ReasoningShort = reasoning

	isTransfer, ok := raw["is_transfer"].(bool)
	if !ok {
		return Result{}, common.NewValidationError("is_transfer", "must be a boolean")
	}
	result.IsTransfer = isTransfer

	rule, err := validateSuggestedRule(raw["suggested_rule"])
	if err != nil {
		return Result{}, err
	}
	result.SuggestedRule = rule

	return result, nil
}

func validateSuggestedRule(v any) (SuggestedRule, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return SuggestedRule{}, common.NewValidationError("suggested_rule", "must be an object")
	}

	var rule SuggestedRule

	createRule, ok := obj["create_rule"].(bool)
	if !ok {
		return SuggestedRule{}, common.NewValidationError("suggested_rule.create_rule", "must be a boolean")
	}
	rule.CreateRule = createRule

	if p, present := obj["pattern"]; present && p != nil {
		s, ok := p.(string)
		if !ok {
			return SuggestedRule{}, common.NewValidationError("suggested_rule.pattern", "must be a string")
		}
		rule.Pattern = s
	}

	if pt, present := obj["pattern_type"]; present && pt != nil {
		s, ok := pt.(string)
		if !ok || (s != "substring" && s != "regex") {
			return SuggestedRule{}, common.NewValidationError("suggested_rule.pattern_type", "must be substring or regex")
		}
		rule.PatternType = s
	}

	if c, present := obj["category"]; present && c != nil {
		s, ok := c.(string)
		if !ok {
			return SuggestedRule{}, common.NewValidationError("suggested_rule.category", "must be a string")
		}
		rule.Category = s
	}

	return rule, nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// stripCodeFence removes a Markdown code fence some models wrap around JSON.
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	if idx := strings.Index(s, "\n"); idx != -1 {
		s = s[idx+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
