package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/careerforge/ai-gateway/internal/domain"
	"github.com/careerforge/ai-gateway/internal/observability"
	"github.com/careerforge/ai-gateway/internal/tier"
	"github.com/careerforge/ai-gateway/pkg/textx"
)

// Gateway is the single entry point in front of the processor. It owns
// the short-circuit chain: feature gate, monthly quota gate, response
// cache, then the processor, then the best-effort side effects (cache
// write, usage increment, event publish). Nothing else touches the cache
// or the ledger.
type Gateway struct {
	Processor     *Processor
	Cache         domain.CacheStore
	Usage         domain.UsageStore
	Subscriptions domain.SubscriptionStore
	Events        domain.UsageEventPublisher // nil when events are disabled
	// SelfHosted marks a deployment where every caller runs on their own
	// credential and nothing is platform-billed.
	SelfHosted bool
	Now        func() time.Time
}

// NewGateway constructs a Gateway. events may be nil.
func NewGateway(p *Processor, cache domain.CacheStore, usage domain.UsageStore, subs domain.SubscriptionStore, events domain.UsageEventPublisher, selfHosted bool) *Gateway {
	return &Gateway{
		Processor:     p,
		Cache:         cache,
		Usage:         usage,
		Subscriptions: subs,
		Events:        events,
		SelfHosted:    selfHosted,
		Now:           time.Now,
	}
}

type callerContext struct {
	Tier       tier.Descriptor
	TierName   domain.TierName
	Credential string
	// Billed is true when the call consumes the caller's platform quota.
	Billed bool
}

// Request runs one gateway call: gate, cache, process, account.
func (g *Gateway) Request(ctx domain.Context, req domain.GatewayRequest) domain.GatewayResponse {
	start := g.Now()
	lg := observability.LoggerFromContext(ctx)

	caller, aiErr := g.resolveCaller(ctx, req)
	if aiErr != nil {
		observability.GatewayRequestsTotal.WithLabelValues(req.Operation, "unknown", "error").Inc()
		return domain.GatewayResponse{Err: aiErr, Elapsed: g.Now().Sub(start)}
	}
	fail := func(e *domain.AIError) domain.GatewayResponse {
		observability.GatewayRequestsTotal.WithLabelValues(req.Operation, string(caller.TierName), "error").Inc()
		return domain.GatewayResponse{Err: e, Tier: caller.TierName, Elapsed: g.Now().Sub(start)}
	}

	if !caller.Tier.Allows(req.Operation) {
		return fail(&domain.AIError{
			Kind:    domain.ErrorKindFeature,
			Message: fmt.Sprintf("operation %q is not available on the %s tier", req.Operation, caller.TierName),
		})
	}

	monthKey := domain.MonthKey(g.Now())
	if caller.Billed && !caller.Tier.Unlimited() {
		rec, err := g.Usage.Get(ctx, req.UserID, req.Operation, monthKey)
		if err != nil {
			// Fail open: a broken ledger read must not take down requests.
			lg.Warn("quota read failed, skipping quota gate",
				"user_id", req.UserID, "operation", req.Operation, "error", err)
		} else if rec.Requests >= caller.Tier.MonthlyLimit {
			observability.QuotaRejectionsTotal.WithLabelValues(string(caller.TierName), req.Operation).Inc()
			return fail(&domain.AIError{
				Kind:    domain.ErrorKindQuota,
				Message: fmt.Sprintf("monthly limit of %d requests reached for %s", caller.Tier.MonthlyLimit, req.Operation),
			})
		}
	}

	model := g.resolvedModel(req)
	key := cacheKey(req.Operation, model, req.Content)
	cacheable := caller.Tier.CacheTTL > 0

	if cacheable && !req.ForceRefresh {
		if entry, err := g.Cache.Get(ctx, key); err == nil {
			observability.CacheHitsTotal.WithLabelValues(req.Operation).Inc()
			var value any
			if jerr := json.Unmarshal(entry.Value, &value); jerr == nil {
				observability.GatewayRequestsTotal.WithLabelValues(req.Operation, string(caller.TierName), "cached").Inc()
				return domain.GatewayResponse{
					Success: true,
					Value:   value,
					Tier:    caller.TierName,
					Cached:  true,
					Model:   model,
					Elapsed: g.Now().Sub(start),
				}
			}
			// Unreadable entry: drop it and fall through to a fresh call.
			g.bestEffort(ctx, "cache delete", func() error { return g.Cache.Delete(ctx, key) })
		} else if !errors.Is(err, domain.ErrNotFound) {
			lg.Warn("cache read failed", "operation", req.Operation, "error", err)
		} else {
			observability.CacheMissesTotal.WithLabelValues(req.Operation).Inc()
		}
	}

	resp := g.Processor.Process(ctx, domain.AIRequest{
		Operation:      req.Operation,
		Content:        req.Content,
		Instructions:   req.Instructions,
		UserID:         req.UserID,
		ModelOverride:  req.ModelOverride,
		EffortOverride: req.EffortOverride,
		Credential:     caller.Credential,
	})

	cost := tier.EstimateCost(resp.Model, resp.TokensIn, resp.TokensOut)

	if resp.Success && cacheable {
		if b, err := json.Marshal(resp.Value); err == nil {
			expires := g.Now().UTC().Add(caller.Tier.CacheTTL)
			g.bestEffort(ctx, "cache write", func() error { return g.Cache.Upsert(ctx, key, b, expires) })
		}
	}

	// One completed processor call = one ledger increment, success or not.
	if caller.Billed && caller.Tier.TrackUsage {
		tokens := int64(resp.TokensIn + resp.TokensOut)
		g.bestEffort(ctx, "usage increment", func() error {
			return g.Usage.IncrementOrCreate(ctx, req.UserID, req.Operation, monthKey, 1, tokens)
		})
	}

	if g.Events != nil {
		ev := domain.UsageEvent{
			ID:        uuid.New().String(),
			UserID:    req.UserID,
			Operation: req.Operation,
			Model:     resp.Model,
			MonthKey:  monthKey,
			Tokens:    resp.TokensIn + resp.TokensOut,
			CostUSD:   cost,
			Success:   resp.Success,
			At:        g.Now().UTC(),
		}
		g.bestEffort(ctx, "usage event publish", func() error { return g.Events.Publish(ctx, ev) })
	}

	outcome := "error"
	if resp.Success {
		outcome = "ok"
	}
	observability.GatewayRequestsTotal.WithLabelValues(req.Operation, string(caller.TierName), outcome).Inc()
	observability.GatewayRequestDuration.WithLabelValues(req.Operation, string(caller.TierName)).Observe(g.Now().Sub(start).Seconds())

	return domain.GatewayResponse{
		Success:   resp.Success,
		Value:     resp.Value,
		Err:       resp.Err,
		Tier:      caller.TierName,
		CostUSD:   cost,
		Elapsed:   g.Now().Sub(start),
		Model:     resp.Model,
		TokensIn:  resp.TokensIn,
		TokensOut: resp.TokensOut,
	}
}

// resolveCaller determines tier, billing mode and credential for the call.
// Anyone running on their own provider key, whether sent with the request
// or stored in the credential store, is treated as self_hosted: their key
// pays the provider, so no platform gate or ledger applies.
func (g *Gateway) resolveCaller(ctx domain.Context, req domain.GatewayRequest) (callerContext, *domain.AIError) {
	if g.SelfHosted || req.Credential != "" || g.hasStoredCredential(ctx, req.UserID) {
		name := domain.TierSelfHosted
		return callerContext{
			Tier:       tier.Lookup(name),
			TierName:   name,
			Credential: req.Credential,
			Billed:     false,
		}, nil
	}
	name, err := g.Subscriptions.TierFor(ctx, req.UserID)
	if err != nil {
		return callerContext{}, &domain.AIError{
			Kind:    domain.ErrorKindConfig,
			Message: fmt.Sprintf("cannot resolve subscription tier: %v", err),
		}
	}
	d := tier.Lookup(name)
	return callerContext{Tier: d, TierName: d.Name, Billed: true}, nil
}

// hasStoredCredential reports whether the caller keeps a provider key in
// the credential store. Lookup errors resolve to false with a warning so
// the call proceeds platform-billed rather than failing outright.
func (g *Gateway) hasStoredCredential(ctx domain.Context, userID string) bool {
	if userID == "" {
		return false
	}
	_, err := g.Processor.Creds.GetEncrypted(ctx, userID)
	switch {
	case err == nil:
		return true
	case errors.Is(err, domain.ErrNotFound):
		return false
	default:
		observability.LoggerFromContext(ctx).Warn("credential lookup failed during caller resolution",
			"user_id", userID, "error", err)
		return false
	}
}

// resolvedModel mirrors the processor's model resolution so the cache key
// matches what will actually be called.
func (g *Gateway) resolvedModel(req domain.GatewayRequest) string {
	if req.ModelOverride != "" {
		return req.ModelOverride
	}
	return g.Processor.Registry.Get(req.Operation).Model
}

// bestEffort runs a non-critical side effect, logging instead of failing.
func (g *Gateway) bestEffort(ctx domain.Context, what string, fn func() error) {
	if err := fn(); err != nil {
		observability.LoggerFromContext(ctx).Warn("best-effort side effect failed",
			"effect", what, "error", err)
	}
}

// cacheKey derives the deterministic cache key for a call. Content is
// normalized first so formatting noise does not defeat the cache.
func cacheKey(operation, model, content string) string {
	h := sha256.New()
	h.Write([]byte(operation))
	h.Write([]byte{0})
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(textx.NormalizeForFingerprint(content)))
	return hex.EncodeToString(h.Sum(nil))
}
