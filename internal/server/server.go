// Package server is a self-contained CRM backend used by `crm demo` and by
// the integration tests. It keeps everything in memory and simulates
// delivery, so the CLI can be exercised end to end without the real
// collaborators.
package server

import (
	"context"
	"log"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"crmline/internal/domain"
)

// Config for the HTTP handler.
type Config struct {
	Store     *Store
	JWTSecret string
	Logger    *log.Logger
	Seed      bool
}

// apiError is the error envelope every failure uses.
type apiError struct {
	status  int
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Message }

func newAPIError(status int, message string) huma.StatusError {
	return &apiError{status: status, Message: message}
}

// New returns the HTTP handler for the CRM API.
func New(cfg Config) (http.Handler, error) {
	store := cfg.Store
	if store == nil {
		store = NewStore()
	}
	if cfg.Seed {
		store.Seed()
	}
	huma.DefaultArrayNullable = false
	// Failures use the {success, message} envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, msg)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, msg)
	}

	router := chi.NewRouter()
	if cfg.Logger != nil {
		router.Use(requestLogger(cfg.Logger))
	}
	router.Use(newAuthMiddleware(cfg))
	hcfg := huma.DefaultConfig("CRM API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, "/api")

	registerAuth(group, cfg)
	registerSegmentRules(group, store)
	registerCustomers(group, store)
	registerOrders(group, store)
	registerCampaigns(group, store)
	registerSuggestions(group, store)

	return router, nil
}

func requestLogger(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			logger.Printf("%s %s", req.Method, req.URL.Path)
			next.ServeHTTP(w, req)
		})
	}
}

func registerAuth(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/google",
		Summary:     "Exchange an identity credential for a session token",
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body LoginResponse `json:"body"`
	}, error) {
		if input.Body.Credential == "" {
			return nil, newAPIError(http.StatusBadRequest, "credential is required")
		}
		user := userFromCredential(input.Body.Credential)
		token, err := issueToken(cfg.JWTSecret, user)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "token signing failed")
		}
		return &struct {
			Body LoginResponse `json:"body"`
		}{Body: LoginResponse{Token: token, User: user}}, nil
	})
}

func registerSegmentRules(api huma.API, store *Store) {
	huma.Register(api, huma.Operation{
		OperationID: "list-segment-rules",
		Method:      http.MethodGet,
		Path:        "/segment-rules",
		Summary:     "List saved segment rules",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.SegmentRule `json:"body"`
	}, error) {
		items := store.ListRules()
		if items == nil {
			items = []domain.SegmentRule{}
		}
		return &struct {
			Body []domain.SegmentRule `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-segment-rule",
		Method:        http.MethodPost,
		Path:          "/segment-rules",
		Summary:       "Persist a segment rule",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateRuleRequest `json:"body"`
	}) (*struct {
		Body domain.SegmentRule `json:"body"`
	}, error) {
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "name is required")
		}
		if input.Body.LogicType != domain.LogicAnd && input.Body.LogicType != domain.LogicOr {
			return nil, newAPIError(http.StatusBadRequest, "logicType must be AND or OR")
		}
		if len(input.Body.Conditions) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "at least one condition is required")
		}
		created := store.AddRule(domain.SegmentRule{
			Name:       input.Body.Name,
			LogicType:  input.Body.LogicType,
			Conditions: input.Body.Conditions,
		})
		return &struct {
			Body domain.SegmentRule `json:"body"`
		}{Body: created}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-segment-rule",
		Method:      http.MethodDelete,
		Path:        "/segment-rules/{id}",
		Summary:     "Delete a segment rule",
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body StatusResponse `json:"body"`
	}, error) {
		if !store.DeleteRule(input.ID) {
			return nil, newAPIError(http.StatusNotFound, "segment rule not found")
		}
		return &struct {
			Body StatusResponse `json:"body"`
		}{Body: StatusResponse{Success: true, Message: "deleted"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "segment-rule-customers",
		Method:      http.MethodGet,
		Path:        "/segment-rules/{id}/customers",
		Summary:     "Resolve the customers a rule selects",
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.Customer `json:"body"`
	}, error) {
		rule, ok := store.GetRule(input.ID)
		if !ok {
			return nil, newAPIError(http.StatusNotFound, "segment rule not found")
		}
		return &struct {
			Body []domain.Customer `json:"body"`
		}{Body: store.MatchCustomers(rule)}, nil
	})
}

func registerCustomers(api huma.API, store *Store) {
	huma.Register(api, huma.Operation{
		OperationID: "list-customers",
		Method:      http.MethodGet,
		Path:        "/customers",
		Summary:     "List customers",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Customer `json:"body"`
	}, error) {
		items := store.ListCustomers()
		if items == nil {
			items = []domain.Customer{}
		}
		return &struct {
			Body []domain.Customer `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "bulk-import-customers",
		Method:      http.MethodPost,
		Path:        "/customers/bulk-import",
		Summary:     "Import customers",
	}, func(ctx context.Context, input *struct {
		Body []domain.Customer `json:"body"`
	}) (*struct {
		Body ImportResponse `json:"body"`
	}, error) {
		n := store.AddCustomers(input.Body)
		return &struct {
			Body ImportResponse `json:"body"`
		}{Body: ImportResponse{Success: true, Imported: n}}, nil
	})
}

func registerOrders(api huma.API, store *Store) {
	huma.Register(api, huma.Operation{
		OperationID: "list-orders",
		Method:      http.MethodGet,
		Path:        "/orders",
		Summary:     "List orders",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Order `json:"body"`
	}, error) {
		items := store.ListOrders()
		if items == nil {
			items = []domain.Order{}
		}
		return &struct {
			Body []domain.Order `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "bulk-import-orders",
		Method:      http.MethodPost,
		Path:        "/orders/bulk-import",
		Summary:     "Import orders",
	}, func(ctx context.Context, input *struct {
		Body []domain.Order `json:"body"`
	}) (*struct {
		Body ImportResponse `json:"body"`
	}, error) {
		n := store.AddOrders(input.Body)
		return &struct {
			Body ImportResponse `json:"body"`
		}{Body: ImportResponse{Success: true, Imported: n}}, nil
	})
}

func registerCampaigns(api huma.API, store *Store) {
	// The campaign list uses the enveloped shape; the other lists are bare
	// arrays. Clients must accept both.
	huma.Register(api, huma.Operation{
		OperationID: "list-campaigns",
		Method:      http.MethodGet,
		Path:        "/campaigns",
		Summary:     "List campaigns, newest first",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body CampaignListResponse `json:"body"`
	}, error) {
		return &struct {
			Body CampaignListResponse `json:"body"`
		}{Body: CampaignListResponse{Success: true, Data: store.ListCampaigns()}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-campaign",
		Method:        http.MethodPost,
		Path:          "/campaigns",
		Summary:       "Create a campaign and dispatch it",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateCampaignRequest `json:"body"`
	}) (*struct {
		Body domain.Campaign `json:"body"`
	}, error) {
		in := input.Body.Campaign
		if in.Name == "" || in.SegmentRuleID == "" || in.Message == "" {
			return nil, newAPIError(http.StatusBadRequest, "name, segmentRuleId, and message are required")
		}
		if len(in.CustomerIDs) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "at least one recipient is required")
		}
		if _, ok := store.GetRule(in.SegmentRuleID); !ok {
			return nil, newAPIError(http.StatusNotFound, "segment rule not found")
		}
		created := store.CreateCampaign(in)
		return &struct {
			Body domain.Campaign `json:"body"`
		}{Body: created}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "campaign-stats",
		Method:      http.MethodGet,
		Path:        "/campaigns/{id}/stats",
		Summary:     "Delivery stats for a campaign",
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body StatsResponse `json:"body"`
	}, error) {
		rec, ok := store.CampaignStats(input.ID)
		if !ok {
			return nil, newAPIError(http.StatusNotFound, "campaign not found")
		}
		total := rec.delivered + rec.failed + rec.pending
		return &struct {
			Body StatsResponse `json:"body"`
		}{Body: StatsResponse{
			Success: true,
			Stats: StatsBody{
				Total:     total,
				Delivered: rec.delivered,
				Pending:   rec.pending,
				Failed:    rec.failed,
				Summary:   deliverySummary(rec),
			},
			Campaign: StatsCampaign{
				Name:      rec.Campaign.Name,
				Message:   rec.Campaign.Message,
				Status:    rec.Campaign.Status,
				CreatedAt: rec.Campaign.CreatedAt,
			},
		}}, nil
	})
}

func registerSuggestions(api huma.API, store *Store) {
	huma.Register(api, huma.Operation{
		OperationID: "ai-suggestions",
		Method:      http.MethodPost,
		Path:        "/campaigns/ai-suggestions",
		Summary:     "Candidate messages for a campaign intent",
	}, func(ctx context.Context, input *struct {
		Body SuggestionRequest `json:"body"`
	}) (*struct {
		Body SuggestionResponse `json:"body"`
	}, error) {
		if input.Body.Intent == "" {
			return nil, newAPIError(http.StatusBadRequest, "intent is required")
		}
		return &struct {
			Body SuggestionResponse `json:"body"`
		}{Body: SuggestionResponse{Suggestions: store.Suggestions(input.Body.Intent, input.Body.SegmentRuleID)}}, nil
	})
}
