package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"crmline/internal/domain"
	"crmline/internal/rules"
)

// ErrConfirmationRequired guards irreversible rule deletion.
var ErrConfirmationRequired = errors.New("deletion requires explicit confirmation")

// RuleEditor manages the in-progress segment rule draft and the saved-rules
// listing. The saved list is owned by this editor; deletions are applied
// locally first and reconciled if the backend rejects them.
type RuleEditor struct {
	backend Backend

	mu         sync.Mutex
	draft      rules.Draft
	saved      []domain.SegmentRule
	submitting bool
}

func NewRuleEditor(backend Backend) *RuleEditor {
	return &RuleEditor{backend: backend}
}

// Draft returns the mutable in-progress rule. Callers edit it directly
// through the rules.Draft builder operations.
func (e *RuleEditor) Draft() *rules.Draft {
	return &e.draft
}

// SetDraft replaces the in-progress rule, e.g. when restoring a persisted
// draft.
func (e *RuleEditor) SetDraft(d rules.Draft) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.draft = d
}

// Refresh reloads the saved-rules listing from the backend. On failure the
// prior listing is kept.
func (e *RuleEditor) Refresh(ctx context.Context) error {
	saved, err := e.backend.ListSegmentRules(ctx)
	if err != nil {
		return fmt.Errorf("list segment rules: %w", err)
	}
	e.mu.Lock()
	e.saved = saved
	e.mu.Unlock()
	return nil
}

// Saved returns the current saved-rules listing.
func (e *RuleEditor) Saved() []domain.SegmentRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.SegmentRule, len(e.saved))
	copy(out, e.saved)
	return out
}

// Submit validates the draft and persists it. On success the draft is
// cleared and the stored rule is appended to the listing; on failure the
// draft is preserved unchanged for retry.
func (e *RuleEditor) Submit(ctx context.Context) (domain.SegmentRule, error) {
	e.mu.Lock()
	if e.submitting {
		e.mu.Unlock()
		return domain.SegmentRule{}, domain.Validation("a rule submission is already in flight")
	}
	if err := e.draft.Validate(); err != nil {
		e.mu.Unlock()
		return domain.SegmentRule{}, err
	}
	e.submitting = true
	payload := e.draft.Payload()
	backend := e.backend
	e.mu.Unlock()

	created, err := backend.CreateSegmentRule(ctx, payload)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.submitting = false
	if err != nil {
		return domain.SegmentRule{}, fmt.Errorf("create segment rule: %w", err)
	}
	e.draft = rules.Draft{}
	e.saved = append(e.saved, created)
	return created, nil
}

// Delete removes a saved rule. It refuses without confirmed. The rule is
// removed from the local listing immediately; if the backend call fails the
// rule is reinserted at its original position and the error surfaced, so
// the listing never silently diverges from the server.
func (e *RuleEditor) Delete(ctx context.Context, ruleID string, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}
	e.mu.Lock()
	idx := -1
	for i := range e.saved {
		if e.saved[i].ID == ruleID {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.mu.Unlock()
		return &domain.NotFoundError{Kind: "segment rule", ID: ruleID}
	}
	removed := e.saved[idx]
	e.saved = append(e.saved[:idx], e.saved[idx+1:]...)
	backend := e.backend
	e.mu.Unlock()

	if err := backend.DeleteSegmentRule(ctx, ruleID); err != nil {
		e.mu.Lock()
		if idx > len(e.saved) {
			idx = len(e.saved)
		}
		e.saved = append(e.saved[:idx], append([]domain.SegmentRule{removed}, e.saved[idx:]...)...)
		e.mu.Unlock()
		return fmt.Errorf("delete segment rule %s: %w", ruleID, err)
	}
	return nil
}
