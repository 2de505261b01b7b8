package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careerforge/ai-gateway/internal/domain"
)

func salaryReply() string {
	return `{"expected_salary_range": {"min": 150000, "max": 185000}, "currency": "USD"}`
}

func TestRequest_SuccessThenCachedIdempotent(t *testing.T) {
	t.Parallel()
	d := newTestDeps(domain.TierPro)
	d.model.reply = salaryReply()
	req := domain.GatewayRequest{Operation: "salary_analysis", Content: "Senior Go engineer", UserID: "u1"}

	first := d.gw.Request(context.Background(), req)
	require.True(t, first.Success)
	assert.False(t, first.Cached)
	assert.Equal(t, domain.TierPro, first.Tier)
	assert.Greater(t, first.CostUSD, 0.0)

	second := d.gw.Request(context.Background(), req)
	require.True(t, second.Success)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Value, second.Value)
	// The envelope stays uniform: hits still name the model they cached.
	assert.Equal(t, first.Model, second.Model)
	// Cache hit consumes no quota and costs nothing.
	assert.Equal(t, 0.0, second.CostUSD)
	assert.Equal(t, 1, d.model.callCount())
	assert.Equal(t, 1, d.usage.incCount())
}

func TestRequest_ForceRefreshBypassesReadButWrites(t *testing.T) {
	t.Parallel()
	d := newTestDeps(domain.TierPro)
	d.model.reply = salaryReply()
	req := domain.GatewayRequest{Operation: "salary_analysis", Content: "role", UserID: "u1"}

	_ = d.gw.Request(context.Background(), req)
	require.Equal(t, 1, d.cache.puts)

	req.ForceRefresh = true
	resp := d.gw.Request(context.Background(), req)
	require.True(t, resp.Success)
	assert.False(t, resp.Cached)
	assert.Equal(t, 2, d.model.callCount())
	assert.Equal(t, 2, d.cache.puts)
}

func TestRequest_FeatureGate(t *testing.T) {
	t.Parallel()
	d := newTestDeps(domain.TierFree)
	resp := d.gw.Request(context.Background(), domain.GatewayRequest{
		Operation: "negotiation_coaching", Content: "x", UserID: "u1",
	})
	require.False(t, resp.Success)
	require.NotNil(t, resp.Err)
	assert.Equal(t, domain.ErrorKindFeature, resp.Err.Kind)
	assert.Contains(t, resp.Err.Message, "free")
	assert.Equal(t, 0, d.model.callCount())
}

func TestRequest_QuotaBoundary(t *testing.T) {
	t.Parallel()
	d := newTestDeps(domain.TierFree)
	d.model.reply = salaryReply()
	month := domain.MonthKey(time.Now())

	// Request N (the 25th) succeeds, N+1 is rejected.
	require.NoError(t, d.usage.IncrementOrCreate(context.Background(), "u1", "salary_analysis", month, 24, 0))

	resp := d.gw.Request(context.Background(), domain.GatewayRequest{
		Operation: "salary_analysis", Content: "role", UserID: "u1", ForceRefresh: true,
	})
	require.True(t, resp.Success)

	resp = d.gw.Request(context.Background(), domain.GatewayRequest{
		Operation: "salary_analysis", Content: "other role", UserID: "u1", ForceRefresh: true,
	})
	require.False(t, resp.Success)
	require.NotNil(t, resp.Err)
	assert.Equal(t, domain.ErrorKindQuota, resp.Err.Kind)
	assert.Contains(t, resp.Err.Message, "25")
}

func TestRequest_QuotaResetsNextMonth(t *testing.T) {
	t.Parallel()
	d := newTestDeps(domain.TierFree)
	d.model.reply = salaryReply()

	now := time.Date(2026, 8, 31, 23, 0, 0, 0, time.UTC)
	d.gw.Now = func() time.Time { return now }
	require.NoError(t, d.usage.IncrementOrCreate(context.Background(), "u1", "salary_analysis", domain.MonthKey(now), 25, 0))

	resp := d.gw.Request(context.Background(), domain.GatewayRequest{
		Operation: "salary_analysis", Content: "role", UserID: "u1",
	})
	require.NotNil(t, resp.Err)
	assert.Equal(t, domain.ErrorKindQuota, resp.Err.Kind)

	// Clock rolls into September; the counter starts fresh.
	now = time.Date(2026, 9, 1, 0, 5, 0, 0, time.UTC)
	resp = d.gw.Request(context.Background(), domain.GatewayRequest{
		Operation: "salary_analysis", Content: "role", UserID: "u1",
	})
	require.True(t, resp.Success)
}

func TestRequest_QuotaReadErrorFailsOpen(t *testing.T) {
	t.Parallel()
	d := newTestDeps(domain.TierFree)
	d.model.reply = salaryReply()
	d.usage.getErr = errors.New("ledger offline")

	resp := d.gw.Request(context.Background(), domain.GatewayRequest{
		Operation: "salary_analysis", Content: "role", UserID: "u1",
	})
	require.True(t, resp.Success)
}

func TestRequest_SelfSuppliedCredentialSkipsQuotaAndLedger(t *testing.T) {
	t.Parallel()
	d := newTestDeps(domain.TierFree)
	d.model.reply = salaryReply()

	resp := d.gw.Request(context.Background(), domain.GatewayRequest{
		Operation:  "salary_analysis",
		Content:    "role",
		UserID:     "u1",
		Credential: "sk-own-key",
	})
	require.True(t, resp.Success)
	assert.Equal(t, domain.TierSelfHosted, resp.Tier)
	assert.Equal(t, 0, d.usage.incCount())
	assert.Equal(t, "sk-own-key", d.model.opts[0].Credential)
	// Self-hosted callers get every operation.
	d.model.reply = `{"strategy": "anchor high", "talking_points": []}`
	resp = d.gw.Request(context.Background(), domain.GatewayRequest{
		Operation: "negotiation_coaching", Content: "x", UserID: "u1", Credential: "sk-own-key",
	})
	assert.Nil(t, resp.Err)
}

func TestRequest_StoredCredentialTreatedSelfHosted(t *testing.T) {
	t.Parallel()
	d := newTestDeps(domain.TierFree)
	require.NoError(t, d.creds.store("u1", "sk-stored-key"))
	d.model.reply = salaryReply()
	month := domain.MonthKey(time.Now())

	// Even a spent free-tier quota is irrelevant: the stored key pays.
	require.NoError(t, d.usage.IncrementOrCreate(context.Background(), "u1", "salary_analysis", month, 25, 0))

	resp := d.gw.Request(context.Background(), domain.GatewayRequest{
		Operation: "salary_analysis", Content: "role", UserID: "u1",
	})
	require.True(t, resp.Success)
	assert.Equal(t, domain.TierSelfHosted, resp.Tier)
	// The model ran on the caller's own decrypted key.
	assert.Equal(t, "sk-stored-key", d.model.opts[0].Credential)
	// No ledger increment beyond the seeded one.
	rec, err := d.usage.Get(context.Background(), "u1", "salary_analysis", month)
	require.NoError(t, err)
	assert.Equal(t, int64(25), rec.Requests)

	// Feature gates open up too: free-tier-gated operations are allowed.
	d.model.reply = `{"strategy": "anchor high"}`
	resp = d.gw.Request(context.Background(), domain.GatewayRequest{
		Operation: "negotiation_coaching", Content: "x", UserID: "u1",
	})
	assert.Nil(t, resp.Err)
}

func TestRequest_CredentialLookupErrorStaysPlatformBilled(t *testing.T) {
	t.Parallel()
	d := newTestDeps(domain.TierPro)
	d.creds.getErr = errors.New("db offline")
	d.model.reply = salaryReply()

	resp := d.gw.Request(context.Background(), domain.GatewayRequest{
		Operation: "salary_analysis", Content: "role", UserID: "u1",
	})
	require.True(t, resp.Success)
	assert.Equal(t, domain.TierPro, resp.Tier)
	assert.Equal(t, 1, d.usage.incCount())
}

func TestRequest_UsageIncrementsOnFailureToo(t *testing.T) {
	t.Parallel()
	d := newTestDeps(domain.TierPro)
	d.model.err = fmt.Errorf("%w: status 500", domain.ErrUpstreamModel)

	resp := d.gw.Request(context.Background(), domain.GatewayRequest{
		Operation: "salary_analysis", Content: "role", UserID: "u1",
	})
	require.False(t, resp.Success)
	assert.Equal(t, domain.ErrorKindUpstream, resp.Err.Kind)
	// The completed model call still consumed capacity.
	assert.Equal(t, 1, d.usage.incCount())
	// Failures are never cached.
	assert.Equal(t, 0, d.cache.puts)
}

func TestRequest_BestEffortFailuresDoNotFailTheCall(t *testing.T) {
	t.Parallel()
	d := newTestDeps(domain.TierPro)
	d.model.reply = salaryReply()
	d.cache.putErr = errors.New("cache down")
	d.usage.incErr = errors.New("ledger down")
	d.events.err = errors.New("broker down")

	resp := d.gw.Request(context.Background(), domain.GatewayRequest{
		Operation: "salary_analysis", Content: "role", UserID: "u1",
	})
	require.True(t, resp.Success)
	require.Nil(t, resp.Err)
}

func TestRequest_CacheKeyIgnoresFormattingNoise(t *testing.T) {
	t.Parallel()
	d := newTestDeps(domain.TierPro)
	d.model.reply = salaryReply()

	first := d.gw.Request(context.Background(), domain.GatewayRequest{
		Operation: "salary_analysis", Content: "Senior   Go\nEngineer", UserID: "u1",
	})
	require.True(t, first.Success)

	second := d.gw.Request(context.Background(), domain.GatewayRequest{
		Operation: "salary_analysis", Content: "senior go engineer", UserID: "u1",
	})
	require.True(t, second.Success)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, d.model.callCount())
}

func TestRequest_ModelOverrideChangesCacheKey(t *testing.T) {
	t.Parallel()
	d := newTestDeps(domain.TierPro)
	d.model.reply = salaryReply()
	base := domain.GatewayRequest{Operation: "salary_analysis", Content: "role", UserID: "u1"}

	_ = d.gw.Request(context.Background(), base)
	withOverride := base
	withOverride.ModelOverride = "openai/gpt-4o-mini"
	resp := d.gw.Request(context.Background(), withOverride)
	require.True(t, resp.Success)
	assert.False(t, resp.Cached)
	assert.Equal(t, 2, d.model.callCount())
}

func TestRequest_TierResolutionFailureIsConfigError(t *testing.T) {
	t.Parallel()
	d := newTestDeps(domain.TierPro)
	d.subs.err = errors.New("subscriptions unavailable")

	resp := d.gw.Request(context.Background(), domain.GatewayRequest{
		Operation: "salary_analysis", Content: "role", UserID: "u1",
	})
	require.False(t, resp.Success)
	assert.Equal(t, domain.ErrorKindConfig, resp.Err.Kind)
	assert.Equal(t, 0, d.model.callCount())
}

func TestRequest_EventsPublishedBestEffort(t *testing.T) {
	t.Parallel()
	d := newTestDeps(domain.TierPro)
	d.model.reply = salaryReply()

	resp := d.gw.Request(context.Background(), domain.GatewayRequest{
		Operation: "salary_analysis", Content: "role", UserID: "u1",
	})
	require.True(t, resp.Success)
	evs := d.events.published()
	require.Len(t, evs, 1)
	assert.Equal(t, "u1", evs[0].UserID)
	assert.Equal(t, "salary_analysis", evs[0].Operation)
	assert.True(t, evs[0].Success)
	assert.NotEmpty(t, evs[0].ID)
}
