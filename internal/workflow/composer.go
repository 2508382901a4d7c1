package workflow

import (
	"context"
	"fmt"
	"sync"

	"crmline/internal/domain"
)

// Phase is the composition workflow state.
type Phase string

const (
	PhaseComposing  Phase = "composing"
	PhaseResolving  Phase = "resolving"
	PhaseReady      Phase = "ready"
	PhaseSubmitting Phase = "submitting"
	PhaseSubmitted  Phase = "submitted"
)

// Composer holds one in-progress campaign: the form fields, the customer
// set resolved from the chosen segment, the recipient selection, and any
// AI suggestions. Long-running operations are guarded by in-flight flags;
// a stale segment resolution is discarded by sequence tag so the latest
// selection always wins.
type Composer struct {
	backend Backend

	mu            sync.Mutex
	phase         Phase
	name          string
	segmentRuleID string
	message       string
	intent        string
	customers     []domain.Customer
	selected      map[string]bool
	selectAll     bool
	suggestions   []string
	suggesting    bool
	submitting    bool
	resolveSeq    uint64
}

// NewComposer returns a blank composer in the composing phase.
func NewComposer(backend Backend) *Composer {
	return &Composer{
		backend:  backend,
		phase:    PhaseComposing,
		selected: map[string]bool{},
	}
}

func (c *Composer) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Composer) SetName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = name
}

func (c *Composer) SetMessage(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.message = message
}

func (c *Composer) SetIntent(intent string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.intent = intent
}

func (c *Composer) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

func (c *Composer) Message() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.message
}

func (c *Composer) Intent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.intent
}

func (c *Composer) SegmentRuleID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.segmentRuleID
}

// Customers returns the resolved customer set.
func (c *Composer) Customers() []domain.Customer {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Customer, len(c.customers))
	copy(out, c.customers)
	return out
}

// Suggestions returns the current AI suggestion list.
func (c *Composer) Suggestions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.suggestions))
	copy(out, c.suggestions)
	return out
}

func (c *Composer) SelectAllActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectAll
}

// SelectSegment picks a segment rule and resolves its customer set. A new
// selection while a prior resolution is in flight wins: the stale response
// is discarded when it lands. Resolution failure clears the set rather than
// showing wrong data; the workflow stays recoverable.
func (c *Composer) SelectSegment(ctx context.Context, ruleID string) error {
	c.mu.Lock()
	c.segmentRuleID = ruleID
	c.customers = nil
	c.selected = map[string]bool{}
	c.selectAll = false
	if ruleID == "" {
		c.phase = PhaseComposing
		c.mu.Unlock()
		return nil
	}
	c.resolveSeq++
	seq := c.resolveSeq
	c.phase = PhaseResolving
	backend := c.backend
	c.mu.Unlock()

	customers, err := backend.ListCustomersForSegment(ctx, ruleID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.resolveSeq {
		// Superseded by a newer selection.
		return nil
	}
	if err != nil {
		c.customers = nil
		c.selected = map[string]bool{}
		c.selectAll = false
		c.phase = PhaseComposing
		return fmt.Errorf("resolve segment %s: %w", ruleID, err)
	}
	c.customers = customers
	c.selected = make(map[string]bool, len(customers))
	for _, cu := range customers {
		c.selected[cu.ID] = true
	}
	c.selectAll = true
	c.phase = PhaseReady
	return nil
}

// ToggleCustomer flips one member's inclusion. Turning a member off while
// select-all is active clears the select-all flag without touching other
// members.
func (c *Composer) ToggleCustomer(customerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	known := false
	for _, cu := range c.customers {
		if cu.ID == customerID {
			known = true
			break
		}
	}
	if !known {
		return &domain.NotFoundError{Kind: "customer", ID: customerID}
	}
	now := !c.selected[customerID]
	c.selected[customerID] = now
	if !now {
		c.selectAll = false
	}
	return nil
}

// SetSelectAll turns the select-all flag on or off. Enabling it selects
// every current member; disabling it deselects all of them.
func (c *Composer) SetSelectAll(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selectAll = on
	c.selected = make(map[string]bool, len(c.customers))
	for _, cu := range c.customers {
		c.selected[cu.ID] = on
	}
}

// SelectedIDs returns the chosen recipients in customer-set order.
func (c *Composer) SelectedIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectedIDsLocked()
}

func (c *Composer) selectedIDsLocked() []string {
	var ids []string
	for _, cu := range c.customers {
		if c.selected[cu.ID] {
			ids = append(ids, cu.ID)
		}
	}
	return ids
}

// RequestSuggestions asks the AI service for message candidates. Intent and
// segment are both required. The previous list is withdrawn while the
// request is in flight; on failure no suggestions are shown and the message
// text is untouched.
func (c *Composer) RequestSuggestions(ctx context.Context) error {
	c.mu.Lock()
	if c.intent == "" {
		c.mu.Unlock()
		return domain.Validation("enter an intent to generate suggestions")
	}
	if c.segmentRuleID == "" {
		c.mu.Unlock()
		return domain.Validation("select a segment to generate targeted suggestions")
	}
	if c.suggesting {
		c.mu.Unlock()
		return domain.Validation("a suggestion request is already in flight")
	}
	c.suggesting = true
	c.suggestions = nil
	intent, ruleID := c.intent, c.segmentRuleID
	backend := c.backend
	c.mu.Unlock()

	suggestions, err := backend.GenerateSuggestions(ctx, intent, ruleID)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.suggesting = false
	if err != nil {
		return fmt.Errorf("generate suggestions: %w", err)
	}
	c.suggestions = suggestions
	return nil
}

// AdoptSuggestion copies suggestion at index into the message. Adopting the
// same suggestion twice is a no-op.
func (c *Composer) AdoptSuggestion(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.suggestions) {
		return domain.Validation("no suggestion at index %d", index)
	}
	c.message = c.suggestions[index]
	return nil
}

// Submit validates the composition locally, then sends the campaign once.
// A submission already in flight rejects the second trigger. Success resets
// the composer to a blank composing state; failure preserves every field so
// the operator can retry.
func (c *Composer) Submit(ctx context.Context) (domain.Campaign, error) {
	c.mu.Lock()
	if c.submitting {
		c.mu.Unlock()
		return domain.Campaign{}, domain.Validation("a submission is already in flight")
	}
	if err := c.validateLocked(); err != nil {
		c.mu.Unlock()
		return domain.Campaign{}, err
	}
	c.submitting = true
	prevPhase := c.phase
	c.phase = PhaseSubmitting
	input := domain.CampaignInput{
		Name:          c.name,
		SegmentRuleID: c.segmentRuleID,
		Message:       c.message,
		Intent:        c.intent,
		CustomerIDs:   c.selectedIDsLocked(),
	}
	backend := c.backend
	c.mu.Unlock()

	created, err := backend.CreateCampaign(ctx, input)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitting = false
	if err != nil {
		c.phase = prevPhase
		return domain.Campaign{}, fmt.Errorf("create campaign: %w", err)
	}
	c.resetLocked()
	c.phase = PhaseSubmitted
	return created, nil
}

func (c *Composer) validateLocked() error {
	if c.name == "" {
		return domain.Validation("missing campaign name")
	}
	if c.segmentRuleID == "" {
		return domain.Validation("missing segment rule")
	}
	if c.message == "" {
		return domain.Validation("missing message")
	}
	if len(c.selectedIDsLocked()) == 0 {
		return domain.Validation("no recipients selected")
	}
	return nil
}

// Reset discards the in-progress composition.
func (c *Composer) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	c.phase = PhaseComposing
}

func (c *Composer) resetLocked() {
	c.name = ""
	c.segmentRuleID = ""
	c.message = ""
	c.intent = ""
	c.customers = nil
	c.selected = map[string]bool{}
	c.selectAll = false
	c.suggestions = nil
}

// ComposerState is the serializable snapshot persisted between CLI
// invocations.
type ComposerState struct {
	Phase         Phase             `json:"phase"`
	Name          string            `json:"name"`
	SegmentRuleID string            `json:"segmentRuleId"`
	Message       string            `json:"message"`
	Intent        string            `json:"intent"`
	Customers     []domain.Customer `json:"customers,omitempty"`
	SelectedIDs   []string          `json:"selectedIds,omitempty"`
	SelectAll     bool              `json:"selectAll"`
	Suggestions   []string          `json:"suggestions,omitempty"`
}

// Snapshot captures the composer for persistence. In-flight phases collapse
// back to their resting state; a request does not survive the process.
func (c *Composer) Snapshot() ComposerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	phase := c.phase
	switch phase {
	case PhaseResolving:
		phase = PhaseComposing
	case PhaseSubmitting:
		if len(c.customers) > 0 {
			phase = PhaseReady
		} else {
			phase = PhaseComposing
		}
	}
	return ComposerState{
		Phase:         phase,
		Name:          c.name,
		SegmentRuleID: c.segmentRuleID,
		Message:       c.message,
		Intent:        c.intent,
		Customers:     append([]domain.Customer(nil), c.customers...),
		SelectedIDs:   c.selectedIDsLocked(),
		SelectAll:     c.selectAll,
		Suggestions:   append([]string(nil), c.suggestions...),
	}
}

// Restore loads a previously snapshot state.
func (c *Composer) Restore(state ComposerState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = state.Phase
	if c.phase == "" {
		c.phase = PhaseComposing
	}
	c.name = state.Name
	c.segmentRuleID = state.SegmentRuleID
	c.message = state.Message
	c.intent = state.Intent
	c.customers = append([]domain.Customer(nil), state.Customers...)
	c.selected = make(map[string]bool, len(state.SelectedIDs))
	for _, id := range state.SelectedIDs {
		c.selected[id] = true
	}
	c.selectAll = state.SelectAll
	c.suggestions = append([]string(nil), state.Suggestions...)
}
