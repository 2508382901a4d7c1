// Package repo persists the operator's local workspace state: the session
// credential and the in-progress rule and campaign drafts that survive
// between CLI invocations.
package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crmline/internal/domain"
	"crmline/internal/rules"
	"crmline/internal/workflow"
)

type Repo struct {
	DB  *sql.DB
	Now func() time.Time
}

var ErrNotFound = errors.New("not found")

func (r Repo) now() string {
	if r.Now != nil {
		return r.Now().UTC().Format(time.RFC3339)
	}
	return time.Now().UTC().Format(time.RFC3339)
}

// SaveSession stores the session, replacing any prior one.
func (r Repo) SaveSession(ctx context.Context, s domain.Session) error {
	userJSON, err := json.Marshal(s.User)
	if err != nil {
		return fmt.Errorf("marshal session user: %w", err)
	}
	created := s.CreatedAt
	if created == "" {
		created = r.now()
	}
	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO session(id,token,user_json,created_at) VALUES (1,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET token=excluded.token, user_json=excluded.user_json, created_at=excluded.created_at`,
		s.Token, string(userJSON), created)
	return err
}

// GetSession returns the stored session or ErrNotFound.
func (r Repo) GetSession(ctx context.Context) (domain.Session, error) {
	var s domain.Session
	var userJSON string
	err := r.DB.QueryRowContext(ctx, `SELECT token,user_json,created_at FROM session WHERE id=1`).
		Scan(&s.Token, &userJSON, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.Session{}, ErrNotFound
	}
	if err != nil {
		return domain.Session{}, err
	}
	if err := json.Unmarshal([]byte(userJSON), &s.User); err != nil {
		return domain.Session{}, fmt.Errorf("unmarshal session user: %w", err)
	}
	return s, nil
}

// ClearSession removes the stored session. Clearing an absent session is a
// no-op.
func (r Repo) ClearSession(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM session WHERE id=1`)
	return err
}

// SaveRuleDraft stores the in-progress segment rule.
func (r Repo) SaveRuleDraft(ctx context.Context, d rules.Draft) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal rule draft: %w", err)
	}
	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO rule_draft(id,draft_json,updated_at) VALUES (1,?,?)
		 ON CONFLICT(id) DO UPDATE SET draft_json=excluded.draft_json, updated_at=excluded.updated_at`,
		string(data), r.now())
	return err
}

// GetRuleDraft returns the stored draft or ErrNotFound.
func (r Repo) GetRuleDraft(ctx context.Context) (rules.Draft, error) {
	var data string
	err := r.DB.QueryRowContext(ctx, `SELECT draft_json FROM rule_draft WHERE id=1`).Scan(&data)
	if err == sql.ErrNoRows {
		return rules.Draft{}, ErrNotFound
	}
	if err != nil {
		return rules.Draft{}, err
	}
	var d rules.Draft
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return rules.Draft{}, fmt.Errorf("unmarshal rule draft: %w", err)
	}
	return d, nil
}

// ClearRuleDraft removes the stored draft. Idempotent.
func (r Repo) ClearRuleDraft(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM rule_draft WHERE id=1`)
	return err
}

// SaveCampaignDraft stores the in-progress campaign composition.
func (r Repo) SaveCampaignDraft(ctx context.Context, state workflow.ComposerState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal campaign draft: %w", err)
	}
	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO campaign_draft(id,state_json,updated_at) VALUES (1,?,?)
		 ON CONFLICT(id) DO UPDATE SET state_json=excluded.state_json, updated_at=excluded.updated_at`,
		string(data), r.now())
	return err
}

// GetCampaignDraft returns the stored composition or ErrNotFound.
func (r Repo) GetCampaignDraft(ctx context.Context) (workflow.ComposerState, error) {
	var data string
	err := r.DB.QueryRowContext(ctx, `SELECT state_json FROM campaign_draft WHERE id=1`).Scan(&data)
	if err == sql.ErrNoRows {
		return workflow.ComposerState{}, ErrNotFound
	}
	if err != nil {
		return workflow.ComposerState{}, err
	}
	var state workflow.ComposerState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return workflow.ComposerState{}, fmt.Errorf("unmarshal campaign draft: %w", err)
	}
	return state, nil
}

// ClearCampaignDraft removes the stored composition. Idempotent.
func (r Repo) ClearCampaignDraft(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM campaign_draft WHERE id=1`)
	return err
}
