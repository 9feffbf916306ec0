package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/auditpipe/mail-audit/config"
	"github.com/auditpipe/mail-audit/model"
)

// Matcher holds the compiled rule set. It is pure: Evaluate performs no
// I/O and never mutates the message.
type Matcher struct {
	rules []compiledRule
}

type compiledRule struct {
	id     string
	field  string
	action string
	re     *regexp.Regexp
}

// NewMatcher compiles the rule set in declared order. Patterns match
// case-insensitively against the named message field.
func NewMatcher(rules []config.Rule) (*Matcher, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		pattern := strings.TrimSpace(r.Pattern)
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %q: compile %q: %w", r.ID, r.Pattern, err)
		}
		compiled = append(compiled, compiledRule{
			id:     r.ID,
			field:  r.Field,
			action: r.Action,
			re:     re,
		})
	}
	return &Matcher{rules: compiled}, nil
}

// Evaluate matches one message against the rule set. Rules are evaluated
// in declared order; the first matching rule sets the primary
// classification, later matches are recorded but do not change it.
// Named capture groups land in Fields keyed "<ruleID>.<group>".
func (m *Matcher) Evaluate(msg model.RawMessage) model.MatchResult {
	result := model.MatchResult{}

	for _, rule := range m.rules {
		text := fieldText(msg, rule.field)
		loc := rule.re.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}

		if !result.Matched {
			result.Matched = true
			result.Action = rule.action
		}
		result.MatchedRules = append(result.MatchedRules, rule.id)

		names := rule.re.SubexpNames()
		for i, name := range names {
			if name == "" {
				continue
			}
			start, end := loc[2*i], loc[2*i+1]
			if start < 0 {
				continue
			}
			if result.Fields == nil {
				result.Fields = make(map[string]string)
			}
			result.Fields[rule.id+"."+name] = text[start:end]
		}
	}

	return result
}

func fieldText(msg model.RawMessage, field string) string {
	switch field {
	case config.FieldSender:
		return msg.Sender
	case config.FieldSubject:
		return msg.Subject
	case config.FieldBody:
		return msg.Body
	case config.FieldAttachment:
		names := make([]string, 0, len(msg.Attachments))
		for _, a := range msg.Attachments {
			names = append(names, a.Name)
		}
		return strings.Join(names, "\n")
	}
	return ""
}
