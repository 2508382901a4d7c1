package server

import (
	"fmt"

	"crmline/internal/domain"
)

type LoginRequest struct {
	Credential string `json:"credential"`
}

type LoginResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

type CreateRuleRequest struct {
	Name       string             `json:"name"`
	LogicType  domain.LogicType   `json:"logicType"`
	Conditions []domain.Condition `json:"rules"`
}

type CreateCampaignRequest struct {
	Campaign domain.CampaignInput `json:"campaign"`
}

type CampaignListResponse struct {
	Success bool              `json:"success"`
	Data    []domain.Campaign `json:"data"`
}

type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type ImportResponse struct {
	Success  bool `json:"success"`
	Imported int  `json:"imported"`
}

type StatsBody struct {
	Total     int    `json:"total"`
	Delivered int    `json:"delivered"`
	Pending   int    `json:"pending"`
	Failed    int    `json:"failed"`
	Summary   string `json:"summary"`
}

type StatsCampaign struct {
	Name      string                `json:"name"`
	Message   string                `json:"message"`
	Status    domain.CampaignStatus `json:"status"`
	CreatedAt string                `json:"createdAt"`
}

type StatsResponse struct {
	Success  bool          `json:"success"`
	Stats    StatsBody     `json:"stats"`
	Campaign StatsCampaign `json:"campaign"`
}

type SuggestionRequest struct {
	Intent        string `json:"intent"`
	SegmentRuleID string `json:"segmentRuleId"`
}

type SuggestionResponse struct {
	Suggestions []string `json:"suggestions"`
}

func deliverySummary(rec campaignRecord) string {
	total := rec.delivered + rec.failed + rec.pending
	return fmt.Sprintf("%d of %d messages delivered, %d failed", rec.delivered, total, rec.failed)
}
