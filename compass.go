package devya

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/devya-app/devya/domain"
	"github.com/devya-app/devya/rawhttp"
)

const (
	MatchHost = "host"
	MatchURL  = "url"
)

// Rule represents a single filtering rule in the scope system.
// It contains a compiled regular expression and the type of matching to perform.
type Rule struct {
	Pattern   *regexp.Regexp // Compiled regular expression pattern
	MatchType string         // Type of matching: "host" or "url"
	Exclude   bool
}

// String returns the rule in its stored form, "[-]matchType:pattern".
func (r Rule) String() string {
	prefix := ""
	if r.Exclude {
		prefix = "-"
	}
	return fmt.Sprintf("%s%s:%s", prefix, r.MatchType, r.Pattern.String())
}

// ParseRule reads a rule in its stored form. A rule without a match type matches the host.
func ParseRule(filter string) (pattern string, matchType string, exclude bool) {
	exclude = strings.HasPrefix(filter, "-")
	filter = strings.TrimPrefix(filter, "-")
	if kind, rest, ok := strings.Cut(filter, ":"); ok && (kind == MatchHost || kind == MatchURL) {
		return rest, kind, exclude
	}
	return filter, MatchHost, exclude
}

// Scope represents the inclusion/exclusion rules and default behavior for filtering
// captured records. It determines whether a record is shown based on host or URL patterns.
type Scope struct {
	mu           sync.RWMutex
	IncludeRules map[string]Rule // Map of inclusion rules, key format: "pattern|matchType"
	ExcludeRules map[string]Rule // Map of exclusion rules, key format: "pattern|matchType"
	DefaultAllow bool            // Default behavior for records not matching any rule
}

// NewScope creates a new Scope with the specified default behavior.
func NewScope(defaultAllow bool) *Scope {
	return &Scope{
		IncludeRules: make(map[string]Rule),
		ExcludeRules: make(map[string]Rule),
		DefaultAllow: defaultAllow,
	}
}

func ruleKey(pattern, matchType string) string {
	return fmt.Sprintf("%s|%s", pattern, matchType)
}

// MatchesString determines if a given string is in scope based on matchType
func (s *Scope) MatchesString(input string, matchType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matchType = strings.ToLower(matchType)
	if matchType != MatchHost && matchType != MatchURL {
		return s.DefaultAllow
	}

	for _, rule := range s.ExcludeRules {
		if rule.MatchType == matchType && rule.Pattern.MatchString(input) {
			return false
		}
	}
	for _, rule := range s.IncludeRules {
		if rule.MatchType == matchType && rule.Pattern.MatchString(input) {
			return true
		}
	}
	return s.DefaultAllow
}

// ClearRules clears all inclusion and exclusion rules from the scope
func (s *Scope) ClearRules() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.IncludeRules = make(map[string]Rule)
	s.ExcludeRules = make(map[string]Rule)
}

// AddRule adds a rule to the scope. A leading "-" on the pattern also marks an exclusion.
func (s *Scope) AddRule(pattern, matchType string, exclude bool) error {
	matchType = strings.ToLower(matchType)
	if matchType != MatchHost && matchType != MatchURL {
		return fmt.Errorf("invalid match type: %s", matchType)
	}
	if strings.HasPrefix(pattern, "-") {
		exclude = true
		pattern = strings.TrimPrefix(pattern, "-")
	}

	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid regex pattern: %w", err)
	}
	rule := Rule{
		Pattern:   compiled,
		MatchType: matchType,
		Exclude:   exclude,
	}
	key := ruleKey(compiled.String(), matchType)

	s.mu.Lock()
	defer s.mu.Unlock()
	if exclude {
		if _, exists := s.ExcludeRules[key]; exists {
			return fmt.Errorf("rule already exists in exclude list")
		}
		s.ExcludeRules[key] = rule
	} else {
		if _, exists := s.IncludeRules[key]; exists {
			return fmt.Errorf("rule already exists in include list")
		}
		s.IncludeRules[key] = rule
	}
	return nil
}

// RemoveRule removes a rule from the scope
func (s *Scope) RemoveRule(pattern, matchType string, exclude bool) error {
	matchType = strings.ToLower(matchType)
	if strings.HasPrefix(pattern, "-") {
		exclude = true
		pattern = strings.TrimPrefix(pattern, "-")
	}
	key := ruleKey(pattern, matchType)

	s.mu.Lock()
	defer s.mu.Unlock()
	if exclude {
		if _, exists := s.ExcludeRules[key]; !exists {
			return fmt.Errorf("rule not found in exclude list")
		}
		delete(s.ExcludeRules, key)
	} else {
		if _, exists := s.IncludeRules[key]; !exists {
			return fmt.Errorf("rule not found in include list")
		}
		delete(s.IncludeRules, key)
	}
	return nil
}

// Rules returns every rule in its stored form, exclusions first, each group sorted.
func (s *Scope) Rules() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exclude := make([]string, 0, len(s.ExcludeRules))
	for _, rule := range s.ExcludeRules {
		exclude = append(exclude, rule.String())
	}
	include := make([]string, 0, len(s.IncludeRules))
	for _, rule := range s.IncludeRules {
		include = append(include, rule.String())
	}
	sort.Strings(exclude)
	sort.Strings(include)
	return append(exclude, include...)
}

// SetRules replaces the rules with filters in their stored form.
func (s *Scope) SetRules(filters []string) error {
	next := NewScope(s.DefaultAllow)
	for _, filter := range filters {
		pattern, matchType, exclude := ParseRule(filter)
		if err := next.AddRule(pattern, matchType, exclude); err != nil {
			return fmt.Errorf("adding rule %q : %w", filter, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.IncludeRules = next.IncludeRules
	s.ExcludeRules = next.ExcludeRules
	return nil
}

// MatchesRecord determines if a captured record is in scope. The host and URL are read from
// the request part of the record.
func (s *Scope) MatchesRecord(record domain.CapturedRecord) bool {
	host, url := rawhttp.Target(record.Content)

	s.mu.RLock()
	defer s.mu.RUnlock()

	target := func(rule Rule) string {
		if rule.MatchType == MatchHost {
			return host
		}
		return url
	}
	for _, rule := range s.ExcludeRules {
		if rule.Pattern.MatchString(target(rule)) {
			return false
		}
	}
	for _, rule := range s.IncludeRules {
		if rule.Pattern.MatchString(target(rule)) {
			return true
		}
	}
	return s.DefaultAllow
}

// Filter returns the records in scope, keeping their order.
func (s *Scope) Filter(records []domain.CapturedRecord) []domain.CapturedRecord {
	filtered := make([]domain.CapturedRecord, 0, len(records))
	for _, record := range records {
		if s.MatchesRecord(record) {
			filtered = append(filtered, record)
		}
	}
	return filtered
}

// LoadScope replaces the scope rules with the ones saved in the repository.
func (app *App) LoadScope() error {
	if app.Repo == nil {
		return ErrRepoUndefined
	}
	filters, err := app.Repo.GetFilters()
	if err != nil {
		return fmt.Errorf("getting filters : %w", err)
	}
	return app.Scope.SetRules(filters)
}

// AddScopeRule adds a rule and saves the scope.
func (app *App) AddScopeRule(pattern, matchType string, exclude bool) error {
	if err := app.Scope.AddRule(pattern, matchType, exclude); err != nil {
		return err
	}
	return app.saveScope()
}

// RemoveScopeRule removes a rule and saves the scope.
func (app *App) RemoveScopeRule(pattern, matchType string, exclude bool) error {
	if err := app.Scope.RemoveRule(pattern, matchType, exclude); err != nil {
		return err
	}
	return app.saveScope()
}

func (app *App) saveScope() error {
	if app.Repo == nil {
		return nil
	}
	if err := app.Repo.SetFilters(app.Scope.Rules()); err != nil {
		return fmt.Errorf("setting filters : %w", err)
	}
	return nil
}

// ScopedRecords returns the records of the current session that are in scope.
func (app *App) ScopedRecords() []domain.CapturedRecord {
	return app.Scope.Filter(app.Records())
}
