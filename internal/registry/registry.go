// Package registry holds the static operation configuration table: the
// mapping from a named operation to its model, reasoning effort, prompt
// contract and validation requirements. The table is built once at startup
// and read-only afterwards.
package registry

import (
	"sort"

	"github.com/careerforge/ai-gateway/internal/domain"
)

// OperationConfig describes one pre-configured kind of AI request.
type OperationConfig struct {
	Name              string
	Model             string
	Effort            domain.ReasoningEffort
	SystemPrompt      string
	RequiredFields    []string
	RequiresWebSearch bool
	// AllowsCollection permits the recovery parser to fall back to fragment
	// salvage and return a collection instead of failing outright.
	AllowsCollection bool
	// SalvageKey filters salvaged fragments to those with a non-empty value
	// under this key. Empty means keep every fragment that parses.
	SalvageKey string
}

// Registry is the read-only operation lookup. Get never fails: unknown
// operations degrade to a generic low-cost config so a best-effort call can
// still be attempted.
type Registry struct {
	ops map[string]OperationConfig
	def OperationConfig
}

const (
	modelDefault   = "openai/gpt-4o-mini"
	modelAnalytic  = "openai/gpt-4o"
	modelReasoning = "anthropic/claude-sonnet-4"
)

// New builds the registry with the compiled-in operation table.
func New() *Registry {
	ops := []OperationConfig{
		{
			Name:           "salary_analysis",
			Model:          modelAnalytic,
			Effort:         domain.EffortMedium,
			SystemPrompt:   "You are a compensation analyst. Given a role description, return a JSON object with expected_salary_range {min, max}, currency, confidence, and factors.",
			RequiredFields: []string{"expected_salary_range"},
		},
		{
			Name:             "resume_parsing",
			Model:            modelDefault,
			Effort:           domain.EffortLow,
			SystemPrompt:     "Extract structured resume data. Return a JSON object with name, contact, experience, education and skills arrays.",
			RequiredFields:   []string{"name"},
			AllowsCollection: true,
			SalvageKey:       "name",
		},
		{
			Name:           "resume_matching",
			Model:          modelAnalytic,
			Effort:         domain.EffortMedium,
			SystemPrompt:   "Compare the resume against the job description. Return a JSON object with match_score (0-100), matched_skills, missing_skills and summary.",
			RequiredFields: []string{"match_score"},
		},
		{
			Name:             "skills_gap",
			Model:            modelDefault,
			Effort:           domain.EffortMedium,
			SystemPrompt:     "Identify skill gaps between the candidate profile and the target role. Return a JSON array of objects with name, severity and suggestion.",
			AllowsCollection: true,
			SalvageKey:       "name",
		},
		{
			Name:           "negotiation_coaching",
			Model:          modelReasoning,
			Effort:         domain.EffortHigh,
			SystemPrompt:   "You are a salary negotiation coach. Return a JSON object with strategy, talking_points, counter_offer_range and risks.",
			RequiredFields: []string{"strategy"},
		},
		{
			Name:              "company_research",
			Model:             modelAnalytic,
			Effort:            domain.EffortMedium,
			SystemPrompt:      "Research the company named in the input. Return a JSON object with overview, culture, recent_news, interview_process and rating.",
			RequiredFields:    []string{"overview"},
			RequiresWebSearch: true,
		},
		{
			Name:         "cover_letter",
			Model:        modelDefault,
			Effort:       domain.EffortLow,
			SystemPrompt: "Write a tailored cover letter for the given role and profile. Return a JSON object with letter and highlights.",
		},
		{
			Name:         "interview_prep",
			Model:        modelReasoning,
			Effort:       domain.EffortHigh,
			SystemPrompt: "Prepare the candidate for an interview for the given role. Return a JSON object with likely_questions, suggested_answers and tips.",
		},
		{
			Name:         "application_answer",
			Model:        modelDefault,
			Effort:       domain.EffortMinimal,
			SystemPrompt: "Draft an answer to the given application form question. Return a JSON object with answer.",
		},
		{
			Name:             "red_flag_scan",
			Model:            modelAnalytic,
			Effort:           domain.EffortMedium,
			SystemPrompt:     "Scan the job posting for red flags. Return a JSON array of objects with name, severity and evidence.",
			AllowsCollection: true,
			SalvageKey:       "name",
		},
	}
	m := make(map[string]OperationConfig, len(ops))
	for _, op := range ops {
		m[op.Name] = op
	}
	return &Registry{
		ops: m,
		def: OperationConfig{
			Name:         "generic",
			Model:        modelDefault,
			Effort:       domain.EffortLow,
			SystemPrompt: "Answer the request. Return a single JSON object.",
		},
	}
}

// Get returns the config for name, or the generic default for unknown names.
func (r *Registry) Get(name string) OperationConfig {
	if cfg, ok := r.ops[name]; ok {
		return cfg
	}
	def := r.def
	if name != "" {
		def.Name = name
	}
	return def
}

// Known reports whether name is a compiled-in operation.
func (r *Registry) Known(name string) bool {
	_, ok := r.ops[name]
	return ok
}

// Names returns all operation names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.ops))
	for name := range r.ops {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
