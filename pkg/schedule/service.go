package schedule

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Target receives the prompts fired rules inject. Both the loop and its
// retry wrapper satisfy it.
type Target interface {
	Steer(text string)
	FollowUp(text string)
}

// ServiceOptions configures a schedule service
type ServiceOptions struct {
	// Target receives injected prompts. Required.
	Target Target
	// StorePath persists rules as JSON. Empty disables persistence.
	StorePath string
}

// Service manages schedule rules and fires their prompts into the target
type Service struct {
	rules   map[string]*Rule
	timers  map[string]*time.Timer
	options ServiceOptions
	mu      sync.Mutex
	stopped bool
}

// AddParams holds the caller-supplied fields of a new rule
type AddParams struct {
	Name           string
	Spec           Spec
	Prompt         string
	Inject         InjectionKind
	Enabled        bool
	DeleteAfterRun bool
}

// NewService creates a schedule service and arms all enabled rules
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Target == nil {
		return nil, fmt.Errorf("target is required")
	}

	s := &Service{
		rules:   make(map[string]*Rule),
		timers:  make(map[string]*time.Timer),
		options: opts,
	}

	if err := s.loadRules(); err != nil {
		log.Warn().Err(err).Msg("Failed to load schedule rules, starting with empty registry")
	}

	s.mu.Lock()
	for _, rule := range s.rules {
		if rule.Enabled {
			s.armLocked(rule)
		}
	}
	count := len(s.rules)
	s.mu.Unlock()

	log.Info().Int("ruleCount", count).Msg("Schedule service initialized")

	return s, nil
}

// Add creates a new rule and arms it if enabled
func (s *Service) Add(params AddParams) (*Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, fmt.Errorf("service is stopped")
	}
	if params.Name == "" {
		return nil, fmt.Errorf("rule name is required")
	}
	if params.Prompt == "" {
		return nil, fmt.Errorf("rule prompt is required")
	}

	inject := params.Inject
	if inject == "" {
		inject = InjectFollowUp
	}
	if inject != InjectFollowUp && inject != InjectSteering {
		return nil, fmt.Errorf("invalid injection kind: %s", inject)
	}

	nextRunAtMs, err := NextRun(params.Spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule: %w", err)
	}

	now := Now()
	rule := &Rule{
		ID:             uuid.New().String(),
		Name:           params.Name,
		Enabled:        params.Enabled,
		DeleteAfterRun: params.DeleteAfterRun,
		Spec:           params.Spec,
		Prompt:         params.Prompt,
		Inject:         inject,
		CreatedAtMs:    now,
		UpdatedAtMs:    now,
		State: RuleState{
			NextRunAtMs: Int64Ptr(nextRunAtMs),
		},
	}

	s.rules[rule.ID] = rule
	if rule.Enabled {
		s.armLocked(rule)
	}
	s.saveLocked()

	log.Info().
		Str("ruleId", rule.ID).
		Str("name", rule.Name).
		Str("inject", string(rule.Inject)).
		Msg("Schedule rule added")

	return rule, nil
}

// Remove deletes a rule and disarms its timer
func (s *Service) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[id]; !exists {
		return fmt.Errorf("rule not found: %s", id)
	}

	s.disarmLocked(id)
	delete(s.rules, id)
	s.saveLocked()

	return nil
}

// Enable toggles a rule, arming or disarming its timer
func (s *Service) Enable(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, exists := s.rules[id]
	if !exists {
		return fmt.Errorf("rule not found: %s", id)
	}

	rule.Enabled = enabled
	rule.UpdatedAtMs = Now()
	if enabled {
		s.armLocked(rule)
	} else {
		s.disarmLocked(id)
	}
	s.saveLocked()

	return nil
}

// List returns all rules sorted by name
func (s *Service) List() []*Rule {
	s.mu.Lock()
	defer s.mu.Unlock()

	rules := make([]*Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		copied := *rule
		rules = append(rules, &copied)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })

	return rules
}

// Stop disarms all timers. The service cannot be restarted.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	for id := range s.timers {
		s.disarmLocked(id)
	}

	log.Info().Msg("Schedule service stopped")
}

// armLocked schedules the rule's next fire. Caller holds the mutex.
func (s *Service) armLocked(rule *Rule) {
	s.disarmLocked(rule.ID)

	nextRunAtMs, err := NextRun(rule.Spec)
	if err != nil {
		rule.State.LastStatus = "error"
		rule.State.LastError = err.Error()
		return
	}
	rule.State.NextRunAtMs = Int64Ptr(nextRunAtMs)

	delay := time.Duration(nextRunAtMs-Now()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}

	id := rule.ID
	s.timers[id] = time.AfterFunc(delay, func() {
		s.fire(id)
	})
}

// disarmLocked stops a pending timer. Caller holds the mutex.
func (s *Service) disarmLocked(id string) {
	if timer, exists := s.timers[id]; exists {
		timer.Stop()
		delete(s.timers, id)
	}
}

func (s *Service) fire(id string) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	rule, exists := s.rules[id]
	if !exists || !rule.Enabled {
		s.mu.Unlock()
		return
	}

	prompt := rule.Prompt
	inject := rule.Inject

	now := Now()
	rule.State.LastRunAtMs = Int64Ptr(now)
	rule.State.LastStatus = "ok"
	rule.State.LastError = ""
	rule.UpdatedAtMs = now

	oneShot := rule.Spec.Kind == KindAt
	if oneShot && rule.DeleteAfterRun {
		s.disarmLocked(id)
		delete(s.rules, id)
	} else if oneShot {
		rule.Enabled = false
		rule.State.NextRunAtMs = nil
		s.disarmLocked(id)
	} else {
		s.armLocked(rule)
	}
	s.saveLocked()
	s.mu.Unlock()

	log.Debug().
		Str("ruleId", id).
		Str("inject", string(inject)).
		Msg("Schedule rule fired")

	switch inject {
	case InjectSteering:
		s.options.Target.Steer(prompt)
	default:
		s.options.Target.FollowUp(prompt)
	}
}

// saveLocked persists rules to the store path. Caller holds the mutex.
func (s *Service) saveLocked() {
	if s.options.StorePath == "" {
		return
	}

	rules := make([]*Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })

	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal schedule rules")
		return
	}

	dir := filepath.Dir(s.options.StorePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		log.Error().Err(err).Msg("Failed to create schedule store directory")
		return
	}
	if err := os.WriteFile(s.options.StorePath, data, 0600); err != nil {
		log.Error().Err(err).Msg("Failed to write schedule store")
	}
}

func (s *Service) loadRules() error {
	if s.options.StorePath == "" {
		return nil
	}

	data, err := os.ReadFile(s.options.StorePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read schedule store: %w", err)
	}

	var rules []*Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return fmt.Errorf("failed to parse schedule store: %w", err)
	}

	for _, rule := range rules {
		s.rules[rule.ID] = rule
	}

	return nil
}
