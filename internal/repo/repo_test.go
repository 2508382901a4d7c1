package repo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"crmline/internal/activity"
	"crmline/internal/db"
	"crmline/internal/domain"
	"crmline/internal/migrate"
	"crmline/internal/repo"
	"crmline/internal/rules"
	"crmline/internal/workflow"
)

func newRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)

	if _, err := r.GetSession(ctx); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty workspace, got %v", err)
	}

	s := domain.Session{
		Token:     "tok-1",
		User:      domain.User{Name: "Op", Email: "op@example.com"},
		CreatedAt: "2026-08-30T10:00:00Z",
	}
	if err := r.SaveSession(ctx, s); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := r.GetSession(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Token != s.Token || got.User.Email != s.User.Email || got.CreatedAt != s.CreatedAt {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	// A second save replaces, never duplicates.
	s.Token = "tok-2"
	if err := r.SaveSession(ctx, s); err != nil {
		t.Fatalf("resave: %v", err)
	}
	got, err = r.GetSession(ctx)
	if err != nil {
		t.Fatalf("get after resave: %v", err)
	}
	if got.Token != "tok-2" {
		t.Fatalf("expected replaced token, got %q", got.Token)
	}

	if err := r.ClearSession(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := r.GetSession(ctx); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after clear, got %v", err)
	}
	if err := r.ClearSession(ctx); err != nil {
		t.Fatalf("clearing twice: %v", err)
	}
}

func TestSessionCreatedAtDefaults(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	r.Now = func() time.Time { return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC) }

	if err := r.SaveSession(ctx, domain.Session{Token: "tok"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := r.GetSession(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CreatedAt != "2026-08-30T12:00:00Z" {
		t.Fatalf("unexpected created_at: %q", got.CreatedAt)
	}
}

func TestRuleDraftRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)

	if _, err := r.GetRuleDraft(ctx); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	var d rules.Draft
	d.Name = "VIPs"
	d.LogicType = domain.LogicAnd
	id := d.AddCondition()
	if err := d.SetField(id, "spend"); err != nil {
		t.Fatalf("set field: %v", err)
	}
	if err := d.SetOperator(id, ">"); err != nil {
		t.Fatalf("set operator: %v", err)
	}
	if err := d.SetValue(id, "1000"); err != nil {
		t.Fatalf("set value: %v", err)
	}

	if err := r.SaveRuleDraft(ctx, d); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := r.GetRuleDraft(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "VIPs" || len(got.Conditions) != 1 || got.Conditions[0].Value != "1000" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	// Local ids must survive so a later invocation can address conditions.
	if got.Conditions[0].LocalID != id {
		t.Fatalf("local id lost across persistence: %+v", got.Conditions[0])
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("restored draft should stay valid: %v", err)
	}

	if err := r.ClearRuleDraft(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := r.GetRuleDraft(ctx); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after clear, got %v", err)
	}
}

func TestCampaignDraftRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)

	if _, err := r.GetCampaignDraft(ctx); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	state := workflow.ComposerState{
		Phase:         workflow.PhaseReady,
		Name:          "Winback",
		SegmentRuleID: "rule-1",
		Message:       "Hi {name}",
		Intent:        "bring back inactive users",
		Customers: []domain.Customer{
			{ID: "c-1", Name: "A"},
			{ID: "c-2", Name: "B"},
		},
		SelectedIDs: []string{"c-1"},
		Suggestions: []string{"Hi {name}, we miss you"},
	}
	if err := r.SaveCampaignDraft(ctx, state); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := r.GetCampaignDraft(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Phase != workflow.PhaseReady || got.Name != "Winback" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if len(got.Customers) != 2 || len(got.SelectedIDs) != 1 || got.SelectedIDs[0] != "c-1" {
		t.Fatalf("selection lost: %+v", got)
	}

	if err := r.ClearCampaignDraft(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := r.GetCampaignDraft(ctx); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after clear, got %v", err)
	}
}

func TestActivityLogOrdering(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)

	base := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	i := 0
	w := activity.Writer{DB: r.DB, Now: func() time.Time {
		i++
		return base.Add(time.Duration(i) * time.Minute)
	}}

	for _, e := range []struct{ typ, subject string }{
		{"auth.login", "op@example.com"},
		{"segment.created", "VIPs"},
		{"campaign.created", "Winback"},
	} {
		if err := w.Append(ctx, e.typ, e.subject, ""); err != nil {
			t.Fatalf("append %s: %v", e.typ, err)
		}
	}

	entries, err := w.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected limit applied, got %d entries", len(entries))
	}
	if entries[0].Type != "campaign.created" || entries[1].Type != "segment.created" {
		t.Fatalf("expected newest first: %+v", entries)
	}

	all, err := w.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("recent default: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected default limit to cover all entries, got %d", len(all))
	}
}
