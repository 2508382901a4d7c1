package server

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"crmline/internal/domain"
	"crmline/internal/rules"
)

// Store holds the backend state in memory. Campaign delivery is simulated at
// creation time: recipients with an email are marked delivered, the rest
// failed.
type Store struct {
	mu        sync.Mutex
	Now       func() time.Time
	rules     []domain.SegmentRule
	customers []domain.Customer
	orders    []domain.Order
	campaigns []campaignRecord
}

type campaignRecord struct {
	domain.Campaign
	delivered int
	failed    int
	pending   int
}

func NewStore() *Store {
	return &Store{Now: time.Now}
}

func (s *Store) now() string {
	return s.Now().UTC().Format(time.RFC3339)
}

func (s *Store) AddRule(r domain.SegmentRule) domain.SegmentRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = uuid.NewString()
	r.CreatedAt = s.now()
	s.rules = append(s.rules, r)
	return r
}

func (s *Store) ListRules() []domain.SegmentRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SegmentRule, len(s.rules))
	copy(out, s.rules)
	return out
}

func (s *Store) GetRule(id string) (domain.SegmentRule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rules {
		if r.ID == id {
			return r, true
		}
	}
	return domain.SegmentRule{}, false
}

func (s *Store) DeleteRule(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.rules {
		if r.ID == id {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Store) AddCustomers(customers []domain.Customer) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range customers {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		s.customers = append(s.customers, c)
	}
	return len(customers)
}

func (s *Store) ListCustomers() []domain.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Customer, len(s.customers))
	copy(out, s.customers)
	return out
}

func (s *Store) AddOrders(orders []domain.Order) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range orders {
		if o.ID == "" {
			o.ID = uuid.NewString()
		}
		s.orders = append(s.orders, o)
	}
	return len(orders)
}

func (s *Store) ListOrders() []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Order, len(s.orders))
	copy(out, s.orders)
	return out
}

// MatchCustomers resolves the customers a rule selects right now.
func (s *Store) MatchCustomers(rule domain.SegmentRule) []domain.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := []domain.Customer{}
	for _, c := range s.customers {
		if ruleMatches(rule, c) {
			matched = append(matched, c)
		}
	}
	return matched
}

func ruleMatches(rule domain.SegmentRule, c domain.Customer) bool {
	if len(rule.Conditions) == 0 {
		return false
	}
	for _, cond := range rule.Conditions {
		ok := conditionMatches(cond, c)
		if rule.LogicType == domain.LogicOr {
			if ok {
				return true
			}
		} else if !ok {
			return false
		}
	}
	return rule.LogicType != domain.LogicOr
}

func conditionMatches(cond domain.Condition, c domain.Customer) bool {
	spec, ok := rules.FieldByID(cond.Field)
	if !ok {
		return false
	}
	if spec.Type == rules.ValueText {
		return textMatches(cond.Operator, fieldText(cond.Field, c), cond.Value)
	}
	want, err := strconv.ParseFloat(cond.Value, 64)
	if err != nil {
		return false
	}
	return numberMatches(cond.Operator, fieldNumber(cond.Field, c), want)
}

func fieldNumber(field string, c domain.Customer) float64 {
	switch field {
	case rules.FieldSpend:
		return c.Spend
	case rules.FieldVisits:
		return float64(c.Visits)
	case rules.FieldInactive:
		return float64(c.InactiveDays)
	case rules.FieldOrders:
		return float64(c.Orders)
	}
	return 0
}

func fieldText(field string, c domain.Customer) string {
	if field == rules.FieldLocation {
		return c.Location
	}
	return ""
}

func numberMatches(op string, have, want float64) bool {
	switch op {
	case ">":
		return have > want
	case "<":
		return have < want
	case ">=":
		return have >= want
	case "<=":
		return have <= want
	case "=":
		return have == want
	}
	return false
}

func textMatches(op, have, want string) bool {
	switch op {
	case "=":
		return strings.EqualFold(have, want)
	case "!=":
		return !strings.EqualFold(have, want)
	case "contains":
		return strings.Contains(strings.ToLower(have), strings.ToLower(want))
	}
	return false
}

// CreateCampaign records a campaign and simulates its delivery.
func (s *Store) CreateCampaign(input domain.CampaignInput) domain.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	var segmentName string
	for _, r := range s.rules {
		if r.ID == input.SegmentRuleID {
			segmentName = r.Name
			break
		}
	}
	rec := campaignRecord{Campaign: domain.Campaign{
		ID:          uuid.NewString(),
		Name:        input.Name,
		SegmentRule: domain.RuleRef{ID: input.SegmentRuleID, Name: segmentName},
		SegmentName: segmentName,
		Message:     input.Message,
		Intent:      input.Intent,
		CustomerIDs: append([]string(nil), input.CustomerIDs...),
		Status:      domain.CampaignCompleted,
		CreatedAt:   s.now(),
	}}
	byID := map[string]domain.Customer{}
	for _, c := range s.customers {
		byID[c.ID] = c
	}
	for _, id := range input.CustomerIDs {
		c, known := byID[id]
		if known && c.Email != "" {
			rec.delivered++
		} else {
			rec.failed++
		}
	}
	s.campaigns = append(s.campaigns, rec)
	return rec.Campaign
}

func (s *Store) ListCampaigns() []domain.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Campaign, 0, len(s.campaigns))
	// Newest first.
	for i := len(s.campaigns) - 1; i >= 0; i-- {
		out = append(out, s.campaigns[i].Campaign)
	}
	return out
}

func (s *Store) CampaignStats(id string) (campaignRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.campaigns {
		if rec.Campaign.ID == id {
			return rec, true
		}
	}
	return campaignRecord{}, false
}

// Suggestions produces deterministic candidate messages for an intent,
// flavored by the target segment's name.
func (s *Store) Suggestions(intent, segmentRuleID string) []string {
	segment := "your customers"
	if r, ok := s.GetRule(segmentRuleID); ok && r.Name != "" {
		segment = r.Name
	}
	return []string{
		fmt.Sprintf("Hi {name}, %s! We picked something special for %s.", intent, segment),
		fmt.Sprintf("Hi {name}, it's been a while. %s", intent),
		fmt.Sprintf("Exclusive for %s: %s. Don't miss out, {name}!", segment, intent),
	}
}

// Seed loads a small demo dataset.
func (s *Store) Seed() {
	s.AddCustomers([]domain.Customer{
		{ID: "c-1", Name: "Mohit Sharma", Email: "mohit@example.com", Location: "Delhi", Spend: 12500, Visits: 14, InactiveDays: 3, Orders: 9},
		{ID: "c-2", Name: "Priya Patel", Email: "priya@example.com", Location: "Mumbai", Spend: 860, Visits: 2, InactiveDays: 95, Orders: 1},
		{ID: "c-3", Name: "Arjun Rao", Email: "", Location: "Bengaluru", Spend: 4300, Visits: 7, InactiveDays: 21, Orders: 4},
		{ID: "c-4", Name: "Sneha Iyer", Email: "sneha@example.com", Location: "Chennai", Spend: 15800, Visits: 22, InactiveDays: 1, Orders: 12},
	})
	s.AddOrders([]domain.Order{
		{ID: "o-1", CustomerEmail: "mohit@example.com", Amount: 1400, Date: "2026-08-01T10:00:00Z"},
		{ID: "o-2", CustomerEmail: "sneha@example.com", Amount: 2100, Date: "2026-08-12T16:30:00Z"},
	})
}
