// Package workflow drives the campaign dispatch workflow: segment rule
// editing and persistence, campaign composition with recipient selection
// and AI-assisted authoring, submission, and stats retrieval. All network
// work is delegated to a Backend; every failure leaves the workflow in a
// recoverable state and nothing is retried automatically.
package workflow

import (
	"context"

	"crmline/internal/domain"
)

// Backend is the contract with the remote CRM collaborators. *api.Client
// satisfies it.
type Backend interface {
	ListSegmentRules(ctx context.Context) ([]domain.SegmentRule, error)
	CreateSegmentRule(ctx context.Context, rule domain.SegmentRule) (domain.SegmentRule, error)
	DeleteSegmentRule(ctx context.Context, id string) error
	ListCustomersForSegment(ctx context.Context, ruleID string) ([]domain.Customer, error)
	ListCampaigns(ctx context.Context) ([]domain.Campaign, error)
	CreateCampaign(ctx context.Context, input domain.CampaignInput) (domain.Campaign, error)
	CampaignStats(ctx context.Context, campaignID string) (domain.CampaignStats, error)
	GenerateSuggestions(ctx context.Context, intent, segmentRuleID string) ([]string, error)
}
