package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"crmline/internal/domain"
)

// DefaultStatsTimeout bounds a single stats fetch. No other operation in
// the workflow carries a timeout.
const DefaultStatsTimeout = 10 * time.Second

// StatsViewer serves the campaign history listing and per-campaign stats.
// A stats request always resolves the campaign against the already-loaded
// listing first; an unknown id fails without touching the network.
type StatsViewer struct {
	backend Backend

	// StatsTimeout overrides DefaultStatsTimeout when set.
	StatsTimeout time.Duration

	mu        sync.Mutex
	campaigns []domain.Campaign
}

func NewStatsViewer(backend Backend) *StatsViewer {
	return &StatsViewer{backend: backend}
}

// Refresh reloads the campaign history. On failure the prior listing is
// kept intact.
func (v *StatsViewer) Refresh(ctx context.Context) error {
	campaigns, err := v.backend.ListCampaigns(ctx)
	if err != nil {
		return fmt.Errorf("list campaigns: %w", err)
	}
	v.mu.Lock()
	v.campaigns = campaigns
	v.mu.Unlock()
	return nil
}

// Campaigns returns the loaded history.
func (v *StatsViewer) Campaigns() []domain.Campaign {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]domain.Campaign, len(v.campaigns))
	copy(out, v.campaigns)
	return out
}

// SetCampaigns primes the listing, e.g. from a restored snapshot.
func (v *StatsViewer) SetCampaigns(campaigns []domain.Campaign) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.campaigns = append([]domain.Campaign(nil), campaigns...)
}

// ViewStats fetches the delivery aggregate for one loaded campaign. The
// fetch is bounded by the stats timeout; exceeding it yields a
// TimeoutError distinct from other network failures. Authoritative backend
// fields are merged with locally known fallbacks so a partial response
// still renders meaningfully.
func (v *StatsViewer) ViewStats(ctx context.Context, campaignID string) (domain.CampaignStats, error) {
	v.mu.Lock()
	var local *domain.Campaign
	for i := range v.campaigns {
		if v.campaigns[i].ID == campaignID {
			local = &v.campaigns[i]
			break
		}
	}
	v.mu.Unlock()
	if local == nil {
		return domain.CampaignStats{}, &domain.NotFoundError{Kind: "campaign", ID: campaignID}
	}

	timeout := v.StatsTimeout
	if timeout <= 0 {
		timeout = DefaultStatsTimeout
	}
	statsCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stats, err := v.backend.CampaignStats(statsCtx, campaignID)
	if err != nil {
		var te *domain.TimeoutError
		if errors.As(err, &te) || (errors.Is(err, context.DeadlineExceeded) && statsCtx.Err() == context.DeadlineExceeded) {
			return domain.CampaignStats{}, &domain.TimeoutError{Op: "campaign stats"}
		}
		return domain.CampaignStats{}, fmt.Errorf("fetch campaign stats: %w", err)
	}

	if stats.Name == "" {
		stats.Name = local.Name
	}
	if stats.Message == "" {
		stats.Message = local.Message
	}
	if stats.CreatedAt == "" {
		stats.CreatedAt = local.CreatedAt
	}
	if stats.Status == "" {
		stats.Status = local.Status
	}
	return stats, nil
}
