package server_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"crmline/internal/api"
	"crmline/internal/domain"
	"crmline/internal/server"
)

func newTestClient(t *testing.T, seed bool) *api.Client {
	t.Helper()
	handler, err := server.New(server.Config{JWTSecret: "test-secret", Seed: seed})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return api.New(srv.URL, domain.Session{})
}

func login(t *testing.T, c *api.Client) {
	t.Helper()
	session, err := c.Login(context.Background(), "op@example.com")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	c.Session = session
}

func TestRequestsRequireAuth(t *testing.T) {
	c := newTestClient(t, false)
	_, err := c.ListSegmentRules(context.Background())
	var ae *api.APIError
	if !errors.As(err, &ae) || ae.StatusCode != 401 {
		t.Fatalf("expected 401, got %v", err)
	}
	c.Session = domain.Session{Token: "not-a-jwt"}
	_, err = c.ListSegmentRules(context.Background())
	if !errors.As(err, &ae) || ae.StatusCode != 401 {
		t.Fatalf("expected 401 for bad token, got %v", err)
	}
}

func TestLoginIssuesUsableToken(t *testing.T) {
	c := newTestClient(t, false)
	login(t, c)
	if c.Session.User.Email != "op@example.com" {
		t.Fatalf("unexpected user: %+v", c.Session.User)
	}
	if _, err := c.ListSegmentRules(context.Background()); err != nil {
		t.Fatalf("authenticated list: %v", err)
	}
}

func TestRuleLifecycleAndMembership(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, true)
	login(t, c)

	created, err := c.CreateSegmentRule(ctx, domain.SegmentRule{
		Name:      "High spenders",
		LogicType: domain.LogicAnd,
		Conditions: []domain.Condition{
			{Field: "spend", Operator: ">", Value: "10000"},
		},
	})
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected stored id")
	}

	members, err := c.ListCustomersForSegment(ctx, created.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	// Seeded data has two customers above 10000 spend.
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d: %+v", len(members), members)
	}

	if err := c.DeleteSegmentRule(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var ae *api.APIError
	if err := c.DeleteSegmentRule(ctx, created.ID); !errors.As(err, &ae) || ae.StatusCode != 404 {
		t.Fatalf("expected 404 for repeated delete, got %v", err)
	}
}

func TestMembershipOperators(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, true)
	login(t, c)

	cases := []struct {
		name string
		rule domain.SegmentRule
		want int
	}{
		{
			name: "or combinator",
			rule: domain.SegmentRule{Name: "or", LogicType: domain.LogicOr, Conditions: []domain.Condition{
				{Field: "inactive", Operator: ">=", Value: "90"},
				{Field: "orders", Operator: ">", Value: "10"},
			}},
			want: 2,
		},
		{
			name: "text equality",
			rule: domain.SegmentRule{Name: "delhi", LogicType: domain.LogicAnd, Conditions: []domain.Condition{
				{Field: "location", Operator: "=", Value: "delhi"},
			}},
			want: 1,
		},
		{
			name: "text contains",
			rule: domain.SegmentRule{Name: "contains", LogicType: domain.LogicAnd, Conditions: []domain.Condition{
				{Field: "location", Operator: "contains", Value: "en"},
			}},
			want: 2,
		},
		{
			name: "and narrows",
			rule: domain.SegmentRule{Name: "and", LogicType: domain.LogicAnd, Conditions: []domain.Condition{
				{Field: "spend", Operator: ">", Value: "1000"},
				{Field: "visits", Operator: "<", Value: "10"},
			}},
			want: 1,
		},
	}
	for _, tc := range cases {
		created, err := c.CreateSegmentRule(ctx, tc.rule)
		if err != nil {
			t.Fatalf("%s: create: %v", tc.name, err)
		}
		members, err := c.ListCustomersForSegment(ctx, created.ID)
		if err != nil {
			t.Fatalf("%s: resolve: %v", tc.name, err)
		}
		if len(members) != tc.want {
			t.Fatalf("%s: expected %d members, got %d", tc.name, tc.want, len(members))
		}
	}
}

func TestCampaignDispatchAndStats(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, true)
	login(t, c)

	rule, err := c.CreateSegmentRule(ctx, domain.SegmentRule{
		Name:      "Everyone",
		LogicType: domain.LogicAnd,
		Conditions: []domain.Condition{
			{Field: "spend", Operator: ">=", Value: "0"},
		},
	})
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}
	members, err := c.ListCustomersForSegment(ctx, rule.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}

	created, err := c.CreateCampaign(ctx, domain.CampaignInput{
		Name:          "Push",
		SegmentRuleID: rule.ID,
		Message:       "Hi {name}",
		Intent:        "festive sale",
		CustomerIDs:   ids,
	})
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	if created.SegmentName != "Everyone" {
		t.Fatalf("segment name not denormalized: %+v", created)
	}

	campaigns, err := c.ListCampaigns(ctx)
	if err != nil {
		t.Fatalf("list campaigns: %v", err)
	}
	if len(campaigns) != 1 || campaigns[0].ID != created.ID {
		t.Fatalf("unexpected history: %+v", campaigns)
	}

	stats, err := c.CampaignStats(ctx, created.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	// One seeded customer has no email and fails delivery.
	if stats.Total != 4 || stats.Delivered != 3 || stats.Failed != 1 {
		t.Fatalf("unexpected aggregate: %+v", stats)
	}
	if stats.Name != "Push" || stats.Summary == "" {
		t.Fatalf("stats campaign section incomplete: %+v", stats)
	}
}

func TestCampaignValidation(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, true)
	login(t, c)

	var ae *api.APIError
	_, err := c.CreateCampaign(ctx, domain.CampaignInput{Name: "x"})
	if !errors.As(err, &ae) || ae.StatusCode != 400 {
		t.Fatalf("expected 400 for incomplete campaign, got %v", err)
	}
	_, err = c.CreateCampaign(ctx, domain.CampaignInput{
		Name: "x", SegmentRuleID: "ghost", Message: "m", CustomerIDs: []string{"c-1"},
	})
	if !errors.As(err, &ae) || ae.StatusCode != 404 {
		t.Fatalf("expected 404 for unknown rule, got %v", err)
	}
}

func TestSuggestionsScopedToSegment(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, true)
	login(t, c)

	rule, err := c.CreateSegmentRule(ctx, domain.SegmentRule{
		Name:      "Inactive 90d",
		LogicType: domain.LogicAnd,
		Conditions: []domain.Condition{
			{Field: "inactive", Operator: ">=", Value: "90"},
		},
	})
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}
	suggestions, err := c.GenerateSuggestions(ctx, "come back for 20% off", rule.ID)
	if err != nil {
		t.Fatalf("suggestions: %v", err)
	}
	if len(suggestions) == 0 {
		t.Fatalf("expected suggestions")
	}
	found := false
	for _, s := range suggestions {
		if strings.Contains(s, "Inactive 90d") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected segment name woven into a suggestion: %v", suggestions)
	}
}

func TestBulkImports(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, false)
	login(t, c)

	err := c.BulkImportCustomers(ctx, []domain.Customer{
		{Name: "New", Email: "new@example.com", Spend: 50},
	})
	if err != nil {
		t.Fatalf("import customers: %v", err)
	}
	customers, err := c.ListCustomers(ctx)
	if err != nil {
		t.Fatalf("list customers: %v", err)
	}
	if len(customers) != 1 || customers[0].ID == "" {
		t.Fatalf("imported customer missing id: %+v", customers)
	}

	err = c.BulkImportOrders(ctx, []domain.Order{
		{CustomerEmail: "new@example.com", Amount: 12.5},
	})
	if err != nil {
		t.Fatalf("import orders: %v", err)
	}
	orders, err := c.ListOrders(ctx)
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("unexpected orders: %+v", orders)
	}
}
