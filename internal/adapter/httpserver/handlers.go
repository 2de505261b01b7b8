package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/careerforge/ai-gateway/internal/domain"
	"github.com/careerforge/ai-gateway/internal/registry"
	"github.com/careerforge/ai-gateway/internal/tier"
	"github.com/careerforge/ai-gateway/internal/usecase"
	"github.com/careerforge/ai-gateway/pkg/cryptox"
)

// maxBatchItems bounds one batch call; larger jobs should be split client-side.
const maxBatchItems = 20

// GatewayService is the usecase surface the handlers need.
type GatewayService interface {
	Request(ctx domain.Context, req domain.GatewayRequest) domain.GatewayResponse
	Batch(ctx domain.Context, userID, credential string, items []usecase.BatchItem) []domain.GatewayResponse
}

// Server wires the gateway and its stores into HTTP handlers.
type Server struct {
	Gateway    GatewayService
	Usage      domain.UsageStore
	Creds      domain.CredentialStore
	Registry   *registry.Registry
	Validate   *validator.Validate
	CredSecret string
	// Ready reports dependency health for the readiness probe.
	Ready func(ctx domain.Context) error
}

// NewServer constructs a Server.
func NewServer(gw GatewayService, usage domain.UsageStore, creds domain.CredentialStore, reg *registry.Registry, credSecret string, ready func(ctx domain.Context) error) *Server {
	return &Server{
		Gateway:    gw,
		Usage:      usage,
		Creds:      creds,
		Registry:   reg,
		Validate:   validator.New(),
		CredSecret: credSecret,
		Ready:      ready,
	}
}

type aiRequestBody struct {
	Operation    string `json:"operation" validate:"required"`
	Content      string `json:"content" validate:"required"`
	Instructions string `json:"instructions"`
	UserID       string `json:"user_id"`
	ForceRefresh bool   `json:"force_refresh"`
	Credential   string `json:"credential"`
	Model        string `json:"model"`
	Effort       string `json:"effort" validate:"omitempty,oneof=minimal low medium high"`
}

type aiResponseBody struct {
	Success   bool            `json:"success"`
	Value     any             `json:"value,omitempty"`
	Tier      domain.TierName `json:"tier"`
	Cached    bool            `json:"cached"`
	CostUSD   float64         `json:"cost_usd"`
	Model     string          `json:"model,omitempty"`
	TokensIn  int             `json:"tokens_in"`
	TokensOut int             `json:"tokens_out"`
	ElapsedMS int64           `json:"elapsed_ms"`
}

func toResponseBody(resp domain.GatewayResponse) aiResponseBody {
	return aiResponseBody{
		Success:   resp.Success,
		Value:     resp.Value,
		Tier:      resp.Tier,
		Cached:    resp.Cached,
		CostUSD:   resp.CostUSD,
		Model:     resp.Model,
		TokensIn:  resp.TokensIn,
		TokensOut: resp.TokensOut,
		ElapsedMS: resp.Elapsed.Milliseconds(),
	}
}

// HandleAIRequest serves POST /v1/ai/request.
func (s *Server) HandleAIRequest() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body aiRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid JSON body", domain.ErrInvalidArgument), nil)
			return
		}
		if err := s.Validate.Struct(body); err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		if body.UserID == "" && body.Credential == "" {
			writeError(w, r, fmt.Errorf("%w: user_id or credential required", domain.ErrInvalidArgument), nil)
			return
		}

		resp := s.Gateway.Request(r.Context(), domain.GatewayRequest{
			Operation:      body.Operation,
			Content:        body.Content,
			Instructions:   body.Instructions,
			UserID:         body.UserID,
			ForceRefresh:   body.ForceRefresh,
			Credential:     body.Credential,
			ModelOverride:  body.Model,
			EffortOverride: domain.ReasoningEffort(body.Effort),
		})
		if resp.Err != nil {
			writeAIError(w, resp.Err)
			return
		}
		writeJSON(w, http.StatusOK, toResponseBody(resp))
	}
}

type batchBody struct {
	UserID     string          `json:"user_id"`
	Credential string          `json:"credential"`
	Items      []batchItemBody `json:"items" validate:"required,min=1,dive"`
}

type batchItemBody struct {
	Operation    string `json:"operation" validate:"required"`
	Content      string `json:"content" validate:"required"`
	Instructions string `json:"instructions"`
	ForceRefresh bool   `json:"force_refresh"`
}

type batchItemResult struct {
	aiResponseBody
	Error *domain.AIError `json:"error,omitempty"`
}

// HandleBatch serves POST /v1/ai/batch. Results are positional; each item
// succeeds or fails on its own.
func (s *Server) HandleBatch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body batchBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid JSON body", domain.ErrInvalidArgument), nil)
			return
		}
		if err := s.Validate.Struct(body); err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		if body.UserID == "" && body.Credential == "" {
			writeError(w, r, fmt.Errorf("%w: user_id or credential required", domain.ErrInvalidArgument), nil)
			return
		}
		if len(body.Items) > maxBatchItems {
			writeError(w, r, fmt.Errorf("%w: at most %d items per batch", domain.ErrInvalidArgument, maxBatchItems), nil)
			return
		}

		items := make([]usecase.BatchItem, len(body.Items))
		for i, it := range body.Items {
			items[i] = usecase.BatchItem{
				Operation:    it.Operation,
				Content:      it.Content,
				Instructions: it.Instructions,
				ForceRefresh: it.ForceRefresh,
			}
		}
		responses := s.Gateway.Batch(r.Context(), body.UserID, body.Credential, items)
		results := make([]batchItemResult, len(responses))
		for i, resp := range responses {
			results[i] = batchItemResult{aiResponseBody: toResponseBody(resp), Error: resp.Err}
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": results})
	}
}

type operationInfo struct {
	Name   string                 `json:"name"`
	Model  string                 `json:"model"`
	Effort domain.ReasoningEffort `json:"effort"`
	Tiers  []domain.TierName      `json:"tiers"`
}

// HandleOperations serves GET /v1/ai/operations: the catalog of configured
// operations and which tiers may call them.
func (s *Server) HandleOperations() http.HandlerFunc {
	tierNames := []domain.TierName{domain.TierFree, domain.TierPro, domain.TierProMax, domain.TierSelfHosted}
	return func(w http.ResponseWriter, r *http.Request) {
		var out []operationInfo
		for _, name := range s.Registry.Names() {
			cfg := s.Registry.Get(name)
			info := operationInfo{Name: cfg.Name, Model: cfg.Model, Effort: cfg.Effort}
			for _, tn := range tierNames {
				if tier.Lookup(tn).Allows(name) {
					info.Tiers = append(info.Tiers, tn)
				}
			}
			out = append(out, info)
		}
		writeJSON(w, http.StatusOK, map[string]any{"operations": out})
	}
}

type usageBody struct {
	UserID    string `json:"user_id"`
	Operation string `json:"operation,omitempty"`
	MonthKey  string `json:"month_key"`
	Requests  int64  `json:"requests"`
	Tokens    int64  `json:"tokens"`
}

// HandleUsage serves GET /v1/ai/usage/{user_id}/{operation} for the
// current month.
func (s *Server) HandleUsage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "user_id")
		operation := chi.URLParam(r, "operation")
		rec, err := s.Usage.Get(r.Context(), userID, operation, domain.MonthKey(time.Now()))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, usageBody{
			UserID:    rec.UserID,
			Operation: rec.Operation,
			MonthKey:  rec.MonthKey,
			Requests:  rec.Requests,
			Tokens:    rec.Tokens,
		})
	}
}

// HandleUsageList serves GET /v1/ai/usage/{user_id}: every operation's
// counters for the current month.
func (s *Server) HandleUsageList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "user_id")
		recs, err := s.Usage.ListForUser(r.Context(), userID, domain.MonthKey(time.Now()))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out := make([]usageBody, 0, len(recs))
		for _, rec := range recs {
			out = append(out, usageBody{
				UserID:    rec.UserID,
				Operation: rec.Operation,
				MonthKey:  rec.MonthKey,
				Requests:  rec.Requests,
				Tokens:    rec.Tokens,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"usage": out})
	}
}

type credentialBody struct {
	APIKey string `json:"api_key" validate:"required"`
}

// HandlePutCredential serves PUT /v1/ai/credentials/{user_id}: stores the
// caller's provider key encrypted at rest. The plaintext never touches a
// log or the database.
func (s *Server) HandlePutCredential() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "user_id")
		var body credentialBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid JSON body", domain.ErrInvalidArgument), nil)
			return
		}
		if err := s.Validate.Struct(body); err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		ct, err := cryptox.Encrypt(s.CredSecret, body.APIKey)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if err := s.Creds.PutEncrypted(r.Context(), userID, ct); err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// Healthz serves the liveness probe.
func (s *Server) Healthz() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// Readyz serves the readiness probe.
func (s *Server) Readyz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Ready != nil {
			if err := s.Ready(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
