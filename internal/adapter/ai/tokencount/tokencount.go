// Package tokencount estimates token counts for prompts and completions.
//
// Counts feed the cost estimate on gateway responses, so approximation is
// acceptable: models the tokenizer does not know fall back to the
// cl100k_base encoding, and when even that fails we estimate four
// characters per token.
package tokencount

import (
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Estimator provides thread-safe token estimation with cached encodings.
type Estimator struct {
	mu    sync.RWMutex
	cache map[string]*tiktoken.Tiktoken
}

// NewEstimator creates an estimator with an empty encoding cache.
func NewEstimator() *Estimator {
	return &Estimator{cache: make(map[string]*tiktoken.Tiktoken)}
}

// Estimate returns the token count of text under the given model's
// tokenizer. It never fails; unknown models degrade to a character-based
// approximation.
func (e *Estimator) Estimate(model, text string) int {
	if text == "" {
		return 0
	}
	enc, err := e.encodingFor(model)
	if err != nil {
		// Rough industry average for English text.
		return (len(text) + 3) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

func (e *Estimator) encodingFor(model string) (*tiktoken.Tiktoken, error) {
	name := tokenizerModel(model)

	e.mu.RLock()
	enc, ok := e.cache[name]
	e.mu.RUnlock()
	if ok {
		return enc, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if enc, ok := e.cache[name]; ok {
		return enc, nil
	}
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	e.cache[name] = enc
	return enc, nil
}

// tokenizerModel maps provider-prefixed model IDs to names tiktoken knows.
// Non-OpenAI families approximate with the GPT-4 tokenizer, which is close
// enough for cost estimation.
func tokenizerModel(model string) string {
	model = strings.ToLower(model)
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	model = strings.TrimSuffix(model, ":free")

	switch {
	case strings.Contains(model, "gpt-3.5"):
		return "gpt-3.5-turbo"
	case strings.Contains(model, "gpt"):
		return "gpt-4"
	default:
		return "gpt-4"
	}
}
