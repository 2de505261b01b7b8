// Package tier defines the subscription tier table and the per-model price
// table used for cost estimates. Both are static and read-only after
// startup.
package tier

import (
	"time"

	"github.com/careerforge/ai-gateway/internal/domain"
)

// Descriptor maps a tier to its feature gates and numeric limits.
type Descriptor struct {
	Name domain.TierName
	// Operations allowed on this tier; nil means every operation.
	Operations map[string]bool
	// MonthlyLimit is the per-operation request quota per calendar month.
	// Zero means unlimited.
	MonthlyLimit int64
	// CacheTTL is how long responses stay fresh. Zero disables caching.
	CacheTTL time.Duration
	// BatchConcurrency bounds in-flight calls during batch fan-out.
	BatchConcurrency int
	// TrackUsage controls whether completed calls increment the ledger.
	TrackUsage bool
}

var tiers = map[domain.TierName]Descriptor{
	domain.TierFree: {
		Name: domain.TierFree,
		Operations: map[string]bool{
			"salary_analysis": true,
			"resume_parsing":  true,
			"resume_matching": true,
		},
		MonthlyLimit:     25,
		CacheTTL:         7 * 24 * time.Hour,
		BatchConcurrency: 5,
		TrackUsage:       true,
	},
	domain.TierPro: {
		Name: domain.TierPro,
		Operations: map[string]bool{
			"salary_analysis":      true,
			"resume_parsing":       true,
			"resume_matching":      true,
			"skills_gap":           true,
			"cover_letter":         true,
			"application_answer":   true,
			"interview_prep":       true,
			"negotiation_coaching": true,
		},
		MonthlyLimit:     300,
		CacheTTL:         24 * time.Hour,
		BatchConcurrency: 5,
		TrackUsage:       true,
	},
	domain.TierProMax: {
		Name:             domain.TierProMax,
		Operations:       nil, // everything
		MonthlyLimit:     0,   // unlimited
		CacheTTL:         time.Hour,
		BatchConcurrency: 10,
		TrackUsage:       true,
	},
	domain.TierSelfHosted: {
		Name:             domain.TierSelfHosted,
		Operations:       nil,
		MonthlyLimit:     0,
		CacheTTL:         0, // caller pays their own provider; serve fresh
		BatchConcurrency: 10,
		TrackUsage:       false,
	},
}

// Lookup returns the descriptor for name, defaulting unknown names to free.
func Lookup(name domain.TierName) Descriptor {
	if d, ok := tiers[name]; ok {
		return d
	}
	return tiers[domain.TierFree]
}

// Allows reports whether the tier may run the operation.
func (d Descriptor) Allows(operation string) bool {
	if d.Operations == nil {
		return true
	}
	return d.Operations[operation]
}

// Unlimited reports whether the tier is exempt from the monthly quota gate.
func (d Descriptor) Unlimited() bool { return d.MonthlyLimit == 0 }

// ModelPrice is USD per million tokens.
type ModelPrice struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

var prices = map[string]ModelPrice{
	"openai/gpt-4o-mini":        {InputPerMTok: 0.15, OutputPerMTok: 0.60},
	"openai/gpt-4o":             {InputPerMTok: 2.50, OutputPerMTok: 10.00},
	"anthropic/claude-sonnet-4": {InputPerMTok: 3.00, OutputPerMTok: 15.00},
}

// fallbackPrice covers models absent from the table so estimates stay
// non-zero for overridden models.
var fallbackPrice = ModelPrice{InputPerMTok: 1.00, OutputPerMTok: 3.00}

// EstimateCost returns the USD estimate for a call. Observability only; it
// never gates behavior.
func EstimateCost(model string, tokensIn, tokensOut int) float64 {
	p, ok := prices[model]
	if !ok {
		p = fallbackPrice
	}
	return float64(tokensIn)/1e6*p.InputPerMTok + float64(tokensOut)/1e6*p.OutputPerMTok
}
