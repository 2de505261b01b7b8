// Package usecase wires the domain ports into the two application
// services: the request processor, which turns one configured operation
// call into a structured result, and the gateway, which wraps the
// processor with tier gating, caching and usage accounting.
package usecase

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/careerforge/ai-gateway/internal/adapter/ai/tokencount"
	"github.com/careerforge/ai-gateway/internal/domain"
	"github.com/careerforge/ai-gateway/internal/observability"
	"github.com/careerforge/ai-gateway/internal/recovery"
	"github.com/careerforge/ai-gateway/internal/registry"
	"github.com/careerforge/ai-gateway/pkg/cryptox"
	"github.com/careerforge/ai-gateway/pkg/textx"
)

// Processor executes one AI operation end to end: config resolution,
// credential resolution, prompt assembly, the single model call, response
// recovery and field validation. It never retries and never substitutes
// fallback values.
type Processor struct {
	Registry   *registry.Registry
	Model      domain.ModelClient
	Creds      domain.CredentialStore
	Tokens     *tokencount.Estimator
	CredSecret string
	// PlatformKey is the shared provider key used when a caller has no
	// credential of their own. Empty in self-hosted deployments.
	PlatformKey string
}

// NewProcessor constructs a Processor.
func NewProcessor(reg *registry.Registry, model domain.ModelClient, creds domain.CredentialStore, tokens *tokencount.Estimator, credSecret, platformKey string) *Processor {
	return &Processor{
		Registry:    reg,
		Model:       model,
		Creds:       creds,
		Tokens:      tokens,
		CredSecret:  credSecret,
		PlatformKey: platformKey,
	}
}

// Process runs one operation call. The response always carries timing,
// size and token metadata, success or not.
func (p *Processor) Process(ctx domain.Context, req domain.AIRequest) domain.AIResponse {
	start := time.Now()
	cfg := p.Registry.Get(req.Operation)
	model := cfg.Model
	if req.ModelOverride != "" {
		model = req.ModelOverride
	}
	effort := cfg.Effort
	if req.EffortOverride != "" {
		effort = req.EffortOverride
	}

	resp := domain.AIResponse{Model: model, Effort: effort}
	finish := func() domain.AIResponse {
		resp.Elapsed = time.Since(start)
		return resp
	}

	cred, err := p.resolveCredential(ctx, req)
	if err != nil {
		resp.Err = &domain.AIError{Kind: domain.ErrorKindConfig, Message: err.Error()}
		return finish()
	}

	prompt := buildPrompt(cfg.SystemPrompt, req.Content, req.Instructions)
	resp.InputChars = len(prompt)
	resp.TokensIn = p.Tokens.Estimate(model, prompt)
	observability.TokensTotal.WithLabelValues("input").Add(float64(resp.TokensIn))

	raw, err := p.Model.Complete(ctx, prompt, domain.CompletionOptions{
		Model:      model,
		Effort:     effort,
		Credential: cred,
	})
	if err != nil {
		resp.Err = &domain.AIError{Kind: domain.ErrorKindUpstream, Message: err.Error()}
		return finish()
	}
	resp.OutputChars = len(raw)
	resp.TokensOut = p.Tokens.Estimate(model, raw)
	observability.TokensTotal.WithLabelValues("output").Add(float64(resp.TokensOut))

	out, err := recovery.ParseFor(raw, cfg.SalvageKey, cfg.AllowsCollection)
	if err != nil {
		resp.Err = &domain.AIError{
			Kind:       domain.ErrorKindParse,
			Message:    err.Error(),
			RawSnippet: recovery.Snippet(raw, 200),
		}
		return finish()
	}
	resp.Salvaged = out.Salvaged

	if missing := missingFields(out.Value, cfg.RequiredFields); len(missing) > 0 {
		resp.Err = &domain.AIError{
			Kind:       domain.ErrorKindValidation,
			Message:    fmt.Sprintf("response missing required fields: %s", strings.Join(missing, ", ")),
			RawSnippet: recovery.Snippet(raw, 200),
		}
		return finish()
	}

	resp.Success = true
	resp.Value = out.Value
	return finish()
}

// resolveCredential picks the key for this call: explicit override, then
// the caller's stored credential, then the platform key. No usable key is
// a configuration error, never a silent fallback.
func (p *Processor) resolveCredential(ctx domain.Context, req domain.AIRequest) (string, error) {
	if req.Credential != "" {
		return req.Credential, nil
	}
	if req.UserID != "" {
		ct, err := p.Creds.GetEncrypted(ctx, req.UserID)
		switch {
		case err == nil:
			plain, derr := cryptox.Decrypt(p.CredSecret, ct)
			if derr != nil {
				return "", fmt.Errorf("op=processor.credential: stored credential unusable: %w", derr)
			}
			return plain, nil
		case errors.Is(err, domain.ErrNotFound):
			// fall through to the platform key
		default:
			observability.LoggerFromContext(ctx).Warn("credential lookup failed, using platform key",
				"user_id", req.UserID, "error", err)
		}
	}
	if p.PlatformKey != "" {
		return p.PlatformKey, nil
	}
	return "", fmt.Errorf("op=processor.credential: %w", domain.ErrNoCredential)
}

func buildPrompt(system, content, instructions string) string {
	var b strings.Builder
	b.WriteString(system)
	b.WriteString("\n\n")
	b.WriteString(textx.SanitizeText(content))
	if instructions != "" {
		b.WriteString("\n\nAdditional instructions:\n")
		b.WriteString(textx.SanitizeText(instructions))
	}
	return b.String()
}

// missingFields reports which required top-level fields are absent or empty.
// Collection results check each element.
func missingFields(value any, required []string) []string {
	if len(required) == 0 {
		return nil
	}
	var missing []string
	switch v := value.(type) {
	case map[string]any:
		for _, f := range required {
			if !fieldPresent(v, f) {
				missing = append(missing, f)
			}
		}
	case []any:
		for _, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			for _, f := range required {
				if !fieldPresent(obj, f) && !contains(missing, f) {
					missing = append(missing, f)
				}
			}
		}
	default:
		missing = append(missing, required...)
	}
	return missing
}

func fieldPresent(obj map[string]any, field string) bool {
	v, ok := obj[field]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return s != ""
	}
	return true
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
