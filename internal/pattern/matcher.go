// Package pattern evaluates user-defined categorization rules against transaction text.
package pattern

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/Veraticus/autobudgeter/internal/common"
	"github.com/Veraticus/autobudgeter/internal/model"
)

// Match is the outcome of a successful rule evaluation.
type Match struct {
	RuleID   string
	Category string
}

// Haystack builds the lowercased text a rule is evaluated against.
func Haystack(merchant, description string) string {
	return strings.ToLower(merchant + " " + description)
}

// MatchRule returns the category of the highest-priority enabled rule matching the
// transaction text. Ties in priority keep input order. Rules with an invalid regex
// are skipped.
func MatchRule(rules []model.Rule, merchant, description string) (Match, bool) {
	return NewMatcher(rules).Match(merchant, description)
}

// Matcher holds a rule set in evaluation order with its regexes compiled once.
type Matcher struct {
	compiledRegex map[int]*regexp.Regexp
	rules         []model.Rule
}

// NewMatcher creates a matcher over a copy of rules. Disabled rules are dropped and
// invalid regexes are logged once and never evaluated.
func NewMatcher(rules []model.Rule) *Matcher {
	ordered := make([]model.Rule, 0, len(rules))
	for _, rule := range rules {
		if rule.Enabled {
			ordered = append(ordered, rule)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	m := &Matcher{
		rules:         ordered,
		compiledRegex: make(map[int]*regexp.Regexp),
	}

	for i, rule := range ordered {
		if rule.PatternType != model.PatternRegex {
			continue
		}
		re, err := common.CompileInsensitive(rule.Pattern)
		if err != nil {
			slog.Debug("Skipping rule with invalid regex",
				"component", "pattern",
				"rule_id", rule.ID,
				"pattern", rule.Pattern,
				"error", err)
			continue
		}
		m.compiledRegex[i] = re
	}

	return m
}

// Match evaluates the rules in order and returns the first hit.
func (m *Matcher) Match(merchant, description string) (Match, bool) {
	haystack := Haystack(merchant, description)

	for i, rule := range m.rules {
		if m.matches(i, rule, haystack) {
			return Match{RuleID: rule.ID, Category: rule.Category}, true
		}
	}

	return Match{}, false
}

// Len reports how many rules the matcher will evaluate.
func (m *Matcher) Len() int {
	return len(m.rules)
}

func (m *Matcher) matches(i int, rule model.Rule, haystack string) bool {
	switch rule.PatternType {
	case model.PatternSubstring:
		return strings.Contains(haystack, strings.ToLower(rule.Pattern))
	case model.PatternRegex:
		re, ok := m.compiledRegex[i]
		return ok && re.MatchString(haystack)
	default:
		return false
	}
}
