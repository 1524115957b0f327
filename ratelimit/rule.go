package ratelimit

import (
	"fmt"
	"strings"
	"time"

	"github.com/gobwas/glob"
)

// Rule is one rate-limit policy.
type Rule struct {
	// Name namespaces the rule's counters. Names must be unique within a RuleSet.
	Name string
	// Path matches one exact request path. Exactly one of Path and Pattern is set.
	Path string
	// Pattern is a glob over the request path with '/' as separator: '*' stays
	// within one segment, '**' crosses segments.
	Pattern string
	// Methods restricts the rule to these HTTP methods. Empty matches any method.
	Methods []string
	// RequireAuth restricts the rule to authenticated requests.
	RequireAuth bool
	// MinTier restricts the rule to requests at or above this tier.
	MinTier string

	Window      time.Duration
	MaxRequests int
	// Key derives the counter key. Nil means KeyByIP.
	Key KeyFunc
	// StandardHeaders selects RateLimit-* over X-RateLimit-* response headers.
	StandardHeaders bool
}

func (r *Rule) key(req RequestContext) string {
	if r.Key == nil {
		return KeyByIP(req)
	}
	return r.Key(req)
}

type compiledRule struct {
	Rule
	glob    glob.Glob
	methods map[string]struct{}
	minRank int
}

// RuleSet is an immutable ordered rule list. Exact paths are indexed; pattern
// rules are scanned. Lookups preserve first-match order across both.
type RuleSet struct {
	rules    []compiledRule
	exact    map[string][]int
	patterns []int
	tierRank map[string]int
}

// NewRuleSet validates and compiles rules in order. tierOrder lists tiers from
// lowest to highest and is only required when a rule sets MinTier.
func NewRuleSet(tierOrder []string, rules ...Rule) (*RuleSet, error) {
	rs := &RuleSet{
		rules:    make([]compiledRule, 0, len(rules)),
		exact:    make(map[string][]int),
		tierRank: make(map[string]int, len(tierOrder)),
	}
	for i, t := range tierOrder {
		rs.tierRank[t] = i
	}

	names := make(map[string]struct{}, len(rules))
	for i, r := range rules {
		if err := validateRule(r); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, r.Name, err)
		}
		if r.Name != "" {
			if _, dup := names[r.Name]; dup {
				return nil, fmt.Errorf("%w: duplicate rule name %q", ErrConfiguration, r.Name)
			}
			names[r.Name] = struct{}{}
		}

		cr := compiledRule{Rule: r, minRank: -1}
		if r.MinTier != "" {
			rank, ok := rs.tierRank[r.MinTier]
			if !ok {
				return nil, fmt.Errorf("%w: rule %q references unknown tier %q", ErrConfiguration, r.Name, r.MinTier)
			}
			cr.minRank = rank
		}
		if len(r.Methods) > 0 {
			cr.methods = make(map[string]struct{}, len(r.Methods))
			for _, m := range r.Methods {
				cr.methods[strings.ToUpper(m)] = struct{}{}
			}
		}

		idx := len(rs.rules)
		if r.Pattern != "" {
			g, err := glob.Compile(r.Pattern, '/')
			if err != nil {
				return nil, fmt.Errorf("%w: rule %q pattern: %v", ErrConfiguration, r.Name, err)
			}
			cr.glob = g
			rs.patterns = append(rs.patterns, idx)
		} else {
			rs.exact[r.Path] = append(rs.exact[r.Path], idx)
		}
		rs.rules = append(rs.rules, cr)
	}
	return rs, nil
}

func validateRule(r Rule) error {
	if (r.Path == "") == (r.Pattern == "") {
		return fmt.Errorf("%w: exactly one of path and pattern is required", ErrConfiguration)
	}
	if r.Window < time.Millisecond {
		return fmt.Errorf("%w: window must be at least 1ms", ErrConfiguration)
	}
	if r.MaxRequests <= 0 {
		return fmt.Errorf("%w: max requests must be positive", ErrConfiguration)
	}
	if strings.Contains(r.Name, ":") {
		return fmt.Errorf("%w: rule name must not contain ':'", ErrConfiguration)
	}
	return nil
}

// Len returns the number of rules.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// Rules returns the rules in evaluation order.
func (rs *RuleSet) Rules() []Rule {
	out := make([]Rule, len(rs.rules))
	for i := range rs.rules {
		out[i] = rs.rules[i].Rule
	}
	return out
}

// Match returns the first rule that applies to req.
func (rs *RuleSet) Match(req RequestContext) (Rule, bool) {
	exact := rs.exact[req.Path]
	patterns := rs.patterns

	// Both index lists are ascending; merge them to visit candidates in rule order.
	for len(exact) > 0 || len(patterns) > 0 {
		var idx int
		if len(patterns) == 0 || (len(exact) > 0 && exact[0] < patterns[0]) {
			idx, exact = exact[0], exact[1:]
		} else {
			idx, patterns = patterns[0], patterns[1:]
		}
		if rs.applies(&rs.rules[idx], req) {
			return rs.rules[idx].Rule, true
		}
	}
	return Rule{}, false
}

func (rs *RuleSet) applies(r *compiledRule, req RequestContext) bool {
	if r.glob != nil && !r.glob.Match(req.Path) {
		return false
	}
	if r.methods != nil {
		if _, ok := r.methods[strings.ToUpper(req.Method)]; !ok {
			return false
		}
	}
	if r.RequireAuth && !req.Authenticated() {
		return false
	}
	if r.minRank >= 0 {
		rank, ok := rs.tierRank[req.Tier]
		if !ok || rank < r.minRank {
			return false
		}
	}
	return true
}
