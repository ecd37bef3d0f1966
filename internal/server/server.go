// Package server exposes the bountyline engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"bountyline/internal/engine"
	"bountyline/internal/ledger"
	"bountyline/internal/rank"
	"bountyline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"insufficient_funds"`
	Message string         `json:"message" example:"account alice cannot cover stake of 30"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Bountyline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Bountyline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerStatus(group, cfg.Engine)
	registerAccounts(group, cfg.Engine)
	registerStakes(group, cfg.Engine)
	registerAnalyses(group, cfg.Engine)
	registerAwards(group, cfg.Engine)
	registerRanks(group)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	startMirrorDispatcher(cfg.Engine)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return newAPIError(http.StatusUnprocessableEntity, "insufficient_funds", err.Error(), nil)
	case errors.Is(err, ledger.ErrInvalidTransition):
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), nil)
	case errors.Is(err, ledger.ErrDuplicateAward):
		return newAPIError(http.StatusConflict, "duplicate_award", err.Error(), nil)
	case errors.Is(err, engine.ErrSinkUnavailable):
		return newAPIError(http.StatusBadGateway, "persistence_failed", err.Error(), nil)
	case errors.Is(err, engine.ErrScoringUnavailable):
		return newAPIError(http.StatusBadGateway, "scoring_failed", err.Error(), nil)
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "unique") || strings.Contains(lowered, "constraint"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") || strings.Contains(lowered, "must"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusBadGateway:
		return "persistence_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Bountyline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerStatus(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "status",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Repository status",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		repository := ""
		if e.Config != nil {
			repository = e.Config.FullName()
		}
		stakeCounts, err := e.Repo.CountStakesByStatus(ctx, repository)
		if err != nil {
			return nil, handleError(err)
		}
		accounts, err := e.Repo.CountAccounts(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		awards, err := e.Repo.CountAwards(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{
			"repository":   repository,
			"stake_counts": stakeCounts,
			"accounts":     accounts,
			"awards":       awards,
		}}, nil
	})
}

func registerAccounts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-account",
		Method:        http.MethodPost,
		Path:          "/accounts",
		Summary:       "Create account",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateAccountRequest `json:"body"`
	}) (*struct {
		Body AccountResponse `json:"body"`
	}, error) {
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		initial := 0
		if input.Body.InitialCoins != nil {
			initial = *input.Body.InitialCoins
		}
		a, err := e.Ledger.EnsureAccount(ctx, input.Body.ID, initial, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AccountResponse `json:"body"`
		}{Body: accountResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-accounts",
		Method:      http.MethodGet,
		Path:        "/accounts",
		Summary:     "List accounts",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []AccountResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListAccounts(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []AccountResponse `json:"body"`
		}{Body: mapAccounts(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-account",
		Method:      http.MethodGet,
		Path:        "/accounts/{account_id}",
		Summary:     "Get account",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		AccountID string `path:"account_id"`
	}) (*struct {
		Body AccountResponse `json:"body"`
	}, error) {
		a, err := e.Repo.GetAccount(ctx, input.AccountID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AccountResponse `json:"body"`
		}{Body: accountResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-account-awards",
		Method:      http.MethodGet,
		Path:        "/accounts/{account_id}/awards",
		Summary:     "List account awards",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		AccountID string `path:"account_id"`
	}) (*struct {
		Body []AwardResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetAccount(ctx, input.AccountID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListAwards(ctx, input.AccountID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []AwardResponse `json:"body"`
		}{Body: mapAwards(items)}, nil
	})
}

func registerStakes(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "open-stake",
		Method:        http.MethodPost,
		Path:          "/stakes",
		Summary:       "Open stake",
		Description:   "Locks the issue's stake amount against the contributor's balance.",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body OpenStakeRequest `json:"body"`
	}) (*struct {
		Body StakeResponse `json:"body"`
	}, error) {
		if input.Body.IssueNumber <= 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "issue_number is required", nil)
		}
		if input.Body.AccountID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "account_id is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		prNumber := 0
		if input.Body.PRNumber != nil {
			prNumber = *input.Body.PRNumber
		}
		s, err := e.OpenStake(ctx, input.Body.IssueNumber, prNumber, input.Body.AccountID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StakeResponse `json:"body"`
		}{Body: stakeResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-stakes",
		Method:      http.MethodGet,
		Path:        "/stakes",
		Summary:     "List stakes",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"active,completed,refunded,expired,"`
	}) (*struct {
		Body []StakeResponse `json:"body"`
	}, error) {
		repository := ""
		if e.Config != nil {
			repository = e.Config.FullName()
		}
		items, err := e.Repo.ListStakes(ctx, repository, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []StakeResponse `json:"body"`
		}{Body: mapStakes(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-stake",
		Method:      http.MethodGet,
		Path:        "/stakes/{stake_id}",
		Summary:     "Get stake",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		StakeID string `path:"stake_id"`
	}) (*struct {
		Body StakeResponse `json:"body"`
	}, error) {
		s, err := e.Repo.GetStake(ctx, input.StakeID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StakeResponse `json:"body"`
		}{Body: stakeResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-stake",
		Method:      http.MethodPost,
		Path:        "/stakes/{stake_id}/resolve",
		Summary:     "Resolve stake",
		Description: "Completes the stake with bounty on merge, refunds it otherwise.",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		StakeID string              `path:"stake_id"`
		Body    ResolveStakeRequest `json:"body"`
	}) (*struct {
		Body StakeResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.ResolveStake(ctx, input.StakeID, input.Body.Merged, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StakeResponse `json:"body"`
		}{Body: stakeResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "expire-stake",
		Method:      http.MethodPost,
		Path:        "/stakes/{stake_id}/expire",
		Summary:     "Expire stake",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		StakeID string `path:"stake_id"`
	}) (*struct {
		Body StakeResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.ExpireStake(ctx, input.StakeID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StakeResponse `json:"body"`
		}{Body: stakeResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sweep-stakes",
		Method:      http.MethodPost,
		Path:        "/stakes/sweep",
		Summary:     "Expire overdue stakes",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []StakeResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		expired, err := e.ExpireOverdue(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []StakeResponse `json:"body"`
		}{Body: mapStakes(expired)}, nil
	})
}

func registerAnalyses(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "analyze-issue",
		Method:      http.MethodPost,
		Path:        "/issues/{issue_number}/analyze",
		Summary:     "Analyze issue",
		Description: "Scores the issue's linked PRs and assigns priority labels.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusBadGateway,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		IssueNumber int `path:"issue_number" minimum:"1"`
	}) (*struct {
		Body AnalysisResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		result, err := e.AnalyzeIssue(ctx, input.IssueNumber, actorID)
		if err != nil {
			// A sink failure still produced and persisted the analysis; the
			// caller gets the error, not a partial body.
			return nil, handleError(err)
		}
		return &struct {
			Body AnalysisResponse `json:"body"`
		}{Body: analysisResponse(result)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-issue-analysis",
		Method:      http.MethodGet,
		Path:        "/issues/{issue_number}/analysis",
		Summary:     "Latest issue analysis",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		IssueNumber int `path:"issue_number" minimum:"1"`
	}) (*struct {
		Body AnalysisResponse `json:"body"`
	}, error) {
		repository := ""
		if e.Config != nil {
			repository = e.Config.FullName()
		}
		result, err := e.Repo.LatestAnalysis(ctx, repository, input.IssueNumber)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AnalysisResponse `json:"body"`
		}{Body: analysisResponse(result)}, nil
	})
}

func registerAwards(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-award",
		Method:        http.MethodPost,
		Path:          "/awards",
		Summary:       "Award bonus XP",
		Description:   "Computes the XP award from review scores and credits it once per PR.",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusBadGateway,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateAwardRequest `json:"body"`
	}) (*struct {
		Body AwardResultResponse `json:"body"`
	}, error) {
		if input.Body.PRNumber <= 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "pr_number is required", nil)
		}
		if input.Body.AccountID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "account_id is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		award, acct, err := e.AwardBonus(ctx, engine.AwardBonusOptions{
			PRNumber:   input.Body.PRNumber,
			AccountID:  input.Body.AccountID,
			Dimensions: rewardDimensions(input.Body.Dimensions),
			Bonuses:    rewardBonuses(input.Body.Bonuses),
			ActorID:    actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AwardResultResponse `json:"body"`
		}{Body: AwardResultResponse{Award: awardResponse(award), Account: accountResponse(acct)}}, nil
	})
}

func registerRanks(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-ranks",
		Method:      http.MethodGet,
		Path:        "/ranks",
		Summary:     "Rank thresholds",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []RankThresholdResponse `json:"body"`
	}, error) {
		table := rank.Thresholds()
		res := make([]RankThresholdResponse, 0, len(table))
		for _, row := range table {
			res = append(res, RankThresholdResponse{Rank: row.Name, MinXP: row.MinXP})
		}
		return &struct {
			Body []RankThresholdResponse `json:"body"`
		}{Body: res}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Latest events",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit" minimum:"1" maximum:"500"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Repository string `query:"repository"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		items, err := e.Repo.LatestEvents(ctx, input.Limit, input.Repository, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: mapEvents(items)}, nil
	})
}
