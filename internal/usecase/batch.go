package usecase

import (
	"sync"

	"github.com/careerforge/ai-gateway/internal/domain"
	"github.com/careerforge/ai-gateway/internal/tier"
)

// BatchItem is one entry of a batch call.
type BatchItem struct {
	Operation    string
	Content      string
	Instructions string
	ForceRefresh bool
}

// Batch fans the items through the single-call path under a tier-sized
// semaphore. Results are positional; one item's failure never cancels the
// others, and context cancellation stops unstarted items from launching.
func (g *Gateway) Batch(ctx domain.Context, userID, credential string, items []BatchItem) []domain.GatewayResponse {
	results := make([]domain.GatewayResponse, len(items))
	if len(items) == 0 {
		return results
	}

	limit := g.batchConcurrency(ctx, userID, credential)
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			results[i] = domain.GatewayResponse{Err: &domain.AIError{
				Kind:    domain.ErrorKindUpstream,
				Message: "request canceled before start: " + err.Error(),
			}}
			continue
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, item BatchItem) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = g.Request(ctx, domain.GatewayRequest{
				Operation:    item.Operation,
				Content:      item.Content,
				Instructions: item.Instructions,
				UserID:       userID,
				ForceRefresh: item.ForceRefresh,
				Credential:   credential,
			})
		}(i, item)
	}
	wg.Wait()
	return results
}

func (g *Gateway) batchConcurrency(ctx domain.Context, userID, credential string) int {
	if g.SelfHosted || credential != "" {
		return tier.Lookup(domain.TierSelfHosted).BatchConcurrency
	}
	name, err := g.Subscriptions.TierFor(ctx, userID)
	if err != nil {
		name = domain.TierFree
	}
	return tier.Lookup(name).BatchConcurrency
}
