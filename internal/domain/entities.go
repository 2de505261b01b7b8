// Package domain defines the gateway's entities, ports and error taxonomy.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrNotFound            = errors.New("not found")
	ErrNoCredential        = errors.New("no usable credential")
	ErrFeatureNotAvailable = errors.New("operation not available for tier")
	ErrQuotaExceeded       = errors.New("monthly quota exceeded")
	ErrUpstreamModel       = errors.New("upstream model error")
	ErrParseFailed         = errors.New("response parse failed")
	ErrSchemaInvalid       = errors.New("schema invalid")
	ErrInternal            = errors.New("internal error")
)

// ReasoningEffort is the coarse compute knob forwarded to the model provider.
type ReasoningEffort string

// Reasoning effort levels, lowest to highest.
const (
	EffortMinimal ReasoningEffort = "minimal"
	EffortLow     ReasoningEffort = "low"
	EffortMedium  ReasoningEffort = "medium"
	EffortHigh    ReasoningEffort = "high"
)

// TierName identifies a subscription tier.
type TierName string

// Subscription tiers.
const (
	TierFree       TierName = "free"
	TierPro        TierName = "pro"
	TierProMax     TierName = "pro_max"
	TierSelfHosted TierName = "self_hosted"
)

// ErrorKind classifies a failed AI call so callers can distinguish
// "the model is down" from "the model answered badly".
type ErrorKind string

// Error kinds carried on AIError.
const (
	ErrorKindConfig     ErrorKind = "configuration"
	ErrorKindFeature    ErrorKind = "feature_gate"
	ErrorKindQuota      ErrorKind = "quota"
	ErrorKindUpstream   ErrorKind = "upstream"
	ErrorKindParse      ErrorKind = "parse"
	ErrorKindValidation ErrorKind = "validation"
)

// AIError is the structured error descriptor attached to failed responses.
type AIError struct {
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"message"`
	RawSnippet string    `json:"raw_snippet,omitempty"`
}

func (e *AIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// AIRequest is one operation call as seen by the processor.
// Override fields win field-by-field over the operation's registry config.
type AIRequest struct {
	Operation      string
	Content        string
	Instructions   string
	UserID         string
	ModelOverride  string
	EffortOverride ReasoningEffort
	// Credential is an explicit per-call key. When empty, the processor
	// falls back to the caller's stored credential, then the platform key.
	Credential string
}

// AIResponse is the processor's discriminated result. Timing and size
// metadata are attached to every response regardless of outcome.
type AIResponse struct {
	Success     bool
	Value       any
	Salvaged    bool
	Err         *AIError
	Model       string
	Effort      ReasoningEffort
	Elapsed     time.Duration
	InputChars  int
	OutputChars int
	TokensIn    int
	TokensOut   int
}

// GatewayRequest is the single entry point's input.
type GatewayRequest struct {
	Operation      string
	Content        string
	Instructions   string
	UserID         string
	ForceRefresh   bool
	Credential     string // caller-supplied key; implies self_hosted quota treatment
	ModelOverride  string
	EffortOverride ReasoningEffort
}

// GatewayResponse is the single entry point's output.
type GatewayResponse struct {
	Success   bool
	Value     any
	Err       *AIError
	Tier      TierName
	Cached    bool
	CostUSD   float64
	Elapsed   time.Duration
	Model     string
	TokensIn  int
	TokensOut int
}

// CacheEntry is a cached serialized response.
// Owned exclusively by the gateway; nothing else mutates it.
type CacheEntry struct {
	Key       string
	Value     []byte
	ExpiresAt time.Time
}

// UsageRecord is the per-user, per-operation, per-calendar-month counter.
// Counters only grow; retention is an external concern.
type UsageRecord struct {
	UserID     string
	Operation  string
	MonthKey   string // "2006-01"
	Requests   int64
	Tokens     int64
	LastUsedAt time.Time
}

// UsageEvent is the best-effort observability event emitted after a
// completed gateway call.
type UsageEvent struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Operation string    `json:"operation"`
	Model     string    `json:"model"`
	MonthKey  string    `json:"month_key"`
	Tokens    int       `json:"tokens"`
	CostUSD   float64   `json:"cost_usd"`
	Cached    bool      `json:"cached"`
	Success   bool      `json:"success"`
	At        time.Time `json:"at"`
}

// CompletionOptions carry the per-call knobs for the model provider.
type CompletionOptions struct {
	Model      string
	Effort     ReasoningEffort
	Credential string
}

// ModelClient (port) is the thin boundary to the LLM provider.
// No token cap is passed and no retry happens behind this interface;
// failures surface verbatim.
type ModelClient interface {
	Complete(ctx Context, prompt string, opts CompletionOptions) (string, error)
}

// CacheStore (port) is a key -> (value, expiry) store.
// Get returns ErrNotFound for a missing or expired entry.
type CacheStore interface {
	Get(ctx Context, key string) (CacheEntry, error)
	Upsert(ctx Context, key string, value []byte, expiresAt time.Time) error
	Delete(ctx Context, key string) error
}

// UsageStore (port) is the monthly usage ledger. IncrementOrCreate must be
// atomic at the store level; the gateway does not lock around it.
type UsageStore interface {
	IncrementOrCreate(ctx Context, userID, operation, monthKey string, requestDelta, tokenDelta int64) error
	Get(ctx Context, userID, operation, monthKey string) (UsageRecord, error)
	ListForUser(ctx Context, userID, monthKey string) ([]UsageRecord, error)
}

// CredentialStore (port) holds caller credentials encrypted at rest.
type CredentialStore interface {
	GetEncrypted(ctx Context, userID string) ([]byte, error)
	PutEncrypted(ctx Context, userID string, ciphertext []byte) error
}

// SubscriptionStore (port) resolves a caller to a subscription tier.
type SubscriptionStore interface {
	TierFor(ctx Context, userID string) (TierName, error)
}

// UsageEventPublisher (port) emits usage events. Publishing is a
// non-critical effect: callers swallow and log its errors.
type UsageEventPublisher interface {
	Publish(ctx Context, ev UsageEvent) error
}

// MonthKey formats t as the calendar-month key used by the usage ledger.
func MonthKey(t time.Time) string { return t.UTC().Format("2006-01") }

// Context aliases context.Context; adapters and usecases pass it through.
type Context = context.Context
