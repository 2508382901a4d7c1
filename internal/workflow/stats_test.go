package workflow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"crmline/internal/domain"
	"crmline/internal/workflow"
)

func statsBackend() *fakeBackend {
	return &fakeBackend{
		campaigns: []domain.Campaign{
			{ID: "camp-1", Name: "Diwali Push", Message: "Hi {name}", Status: domain.CampaignCompleted, CreatedAt: "2026-08-01T10:00:00Z"},
			{ID: "camp-2", Name: "Win Back", Message: "We miss you", Status: domain.CampaignPending},
		},
		stats: domain.CampaignStats{Total: 10, Delivered: 9, Failed: 1, Summary: "9 of 10 messages delivered, 1 failed"},
	}
}

func TestViewStatsMergesLocalFallbacks(t *testing.T) {
	ctx := context.Background()
	b := statsBackend()
	v := workflow.NewStatsViewer(b)
	if err := v.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	// The backend response has no name, message, status, or createdAt;
	// the locally loaded campaign fills them in.
	stats, err := v.ViewStats(ctx, "camp-1")
	if err != nil {
		t.Fatalf("view stats: %v", err)
	}
	if stats.Total != 10 || stats.Delivered != 9 || stats.Failed != 1 {
		t.Fatalf("aggregate mismatch: %+v", stats)
	}
	if stats.Name != "Diwali Push" || stats.Message != "Hi {name}" {
		t.Fatalf("local fallback not merged: %+v", stats)
	}
	if stats.Status != domain.CampaignCompleted || stats.CreatedAt != "2026-08-01T10:00:00Z" {
		t.Fatalf("local fallback not merged: %+v", stats)
	}
}

func TestViewStatsBackendFieldsWin(t *testing.T) {
	ctx := context.Background()
	b := statsBackend()
	b.stats.Name = "Authoritative"
	b.stats.Status = domain.CampaignInProgress
	v := workflow.NewStatsViewer(b)
	if err := v.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	stats, err := v.ViewStats(ctx, "camp-1")
	if err != nil {
		t.Fatalf("view stats: %v", err)
	}
	if stats.Name != "Authoritative" || stats.Status != domain.CampaignInProgress {
		t.Fatalf("backend fields must win: %+v", stats)
	}
}

func TestViewStatsUnknownCampaignSkipsNetwork(t *testing.T) {
	ctx := context.Background()
	b := statsBackend()
	v := workflow.NewStatsViewer(b)
	if err := v.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	var nf *domain.NotFoundError
	if _, err := v.ViewStats(ctx, "ghost"); !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if b.statsCalls != 0 {
		t.Fatalf("unknown campaign must not reach the network")
	}
}

func TestViewStatsTimeout(t *testing.T) {
	ctx := context.Background()
	b := statsBackend()
	b.failStats = &domain.TimeoutError{Op: "GET stats"}
	v := workflow.NewStatsViewer(b)
	v.StatsTimeout = 10 * time.Millisecond
	if err := v.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	var te *domain.TimeoutError
	if _, err := v.ViewStats(ctx, "camp-1"); !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
}

func TestViewStatsGenericFailure(t *testing.T) {
	ctx := context.Background()
	b := statsBackend()
	b.failStats = errors.New("backend down")
	v := workflow.NewStatsViewer(b)
	if err := v.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	_, err := v.ViewStats(ctx, "camp-1")
	if err == nil {
		t.Fatalf("expected failure")
	}
	var te *domain.TimeoutError
	if errors.As(err, &te) {
		t.Fatalf("generic failure must not classify as timeout")
	}
}

func TestRefreshFailureKeepsListing(t *testing.T) {
	ctx := context.Background()
	b := statsBackend()
	v := workflow.NewStatsViewer(b)
	if err := v.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(v.Campaigns()) != 2 {
		t.Fatalf("expected 2 campaigns")
	}
	b.failList = errors.New("backend down")
	if err := v.Refresh(ctx); err == nil {
		t.Fatalf("expected refresh failure")
	}
	if len(v.Campaigns()) != 2 {
		t.Fatalf("failed refresh must keep the prior listing")
	}
	// Stats lookups still resolve against the retained listing.
	if _, err := v.ViewStats(ctx, "camp-2"); err != nil {
		t.Fatalf("view stats: %v", err)
	}
}
