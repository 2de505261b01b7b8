package usecase_test

import (
	"fmt"
	"sync"
	"time"

	"github.com/careerforge/ai-gateway/internal/adapter/ai/tokencount"
	"github.com/careerforge/ai-gateway/internal/domain"
	"github.com/careerforge/ai-gateway/internal/registry"
	"github.com/careerforge/ai-gateway/internal/usecase"
	"github.com/careerforge/ai-gateway/pkg/cryptox"
)

const testSecret = "unit-test-secret"

type fakeModel struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	opts    []domain.CompletionOptions
	reply   string
	err     error
	// replyFn, when set, wins over reply/err.
	replyFn func(prompt string, opts domain.CompletionOptions) (string, error)
}

func (f *fakeModel) Complete(_ domain.Context, prompt string, opts domain.CompletionOptions) (string, error) {
	f.mu.Lock()
	f.calls++
	f.prompts = append(f.prompts, prompt)
	f.opts = append(f.opts, opts)
	fn := f.replyFn
	f.mu.Unlock()
	if fn != nil {
		return fn(prompt, opts)
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeModel) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]domain.CacheEntry
	getErr  error
	putErr  error
	puts    int
	deletes int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]domain.CacheEntry)}
}

func (f *fakeCache) Get(_ domain.Context, key string) (domain.CacheEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return domain.CacheEntry{}, f.getErr
	}
	e, ok := f.entries[key]
	if !ok || time.Now().After(e.ExpiresAt) {
		delete(f.entries, key)
		return domain.CacheEntry{}, domain.ErrNotFound
	}
	return e, nil
}

func (f *fakeCache) Upsert(_ domain.Context, key string, value []byte, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.puts++
	f.entries[key] = domain.CacheEntry{Key: key, Value: value, ExpiresAt: expiresAt}
	return nil
}

func (f *fakeCache) Delete(_ domain.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	delete(f.entries, key)
	return nil
}

func (f *fakeCache) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

type fakeUsage struct {
	mu     sync.Mutex
	recs   map[string]*domain.UsageRecord
	getErr error
	incErr error
	incs   int
}

func newFakeUsage() *fakeUsage {
	return &fakeUsage{recs: make(map[string]*domain.UsageRecord)}
}

func usageKey(userID, op, month string) string {
	return fmt.Sprintf("%s|%s|%s", userID, op, month)
}

func (f *fakeUsage) IncrementOrCreate(_ domain.Context, userID, op, month string, reqDelta, tokDelta int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.incErr != nil {
		return f.incErr
	}
	f.incs++
	k := usageKey(userID, op, month)
	rec, ok := f.recs[k]
	if !ok {
		rec = &domain.UsageRecord{UserID: userID, Operation: op, MonthKey: month}
		f.recs[k] = rec
	}
	rec.Requests += reqDelta
	rec.Tokens += tokDelta
	rec.LastUsedAt = time.Now().UTC()
	return nil
}

func (f *fakeUsage) Get(_ domain.Context, userID, op, month string) (domain.UsageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return domain.UsageRecord{}, f.getErr
	}
	if rec, ok := f.recs[usageKey(userID, op, month)]; ok {
		return *rec, nil
	}
	return domain.UsageRecord{UserID: userID, Operation: op, MonthKey: month}, nil
}

func (f *fakeUsage) ListForUser(_ domain.Context, userID, month string) ([]domain.UsageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.UsageRecord
	for _, rec := range f.recs {
		if rec.UserID == userID && rec.MonthKey == month {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (f *fakeUsage) incCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.incs
}

type fakeSubs struct {
	tier domain.TierName
	err  error
}

func (f *fakeSubs) TierFor(_ domain.Context, _ string) (domain.TierName, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.tier, nil
}

type fakeCreds struct {
	mu     sync.Mutex
	stored map[string][]byte
	getErr error
}

func newFakeCreds() *fakeCreds {
	return &fakeCreds{stored: make(map[string][]byte)}
}

func (f *fakeCreds) GetEncrypted(_ domain.Context, userID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	ct, ok := f.stored[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return ct, nil
}

func (f *fakeCreds) PutEncrypted(_ domain.Context, userID string, ct []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored[userID] = ct
	return nil
}

func (f *fakeCreds) store(userID, plaintext string) error {
	ct, err := cryptox.Encrypt(testSecret, plaintext)
	if err != nil {
		return err
	}
	return f.PutEncrypted(nil, userID, ct)
}

type fakeEvents struct {
	mu     sync.Mutex
	events []domain.UsageEvent
	err    error
}

func (f *fakeEvents) Publish(_ domain.Context, ev domain.UsageEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeEvents) published() []domain.UsageEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.UsageEvent, len(f.events))
	copy(out, f.events)
	return out
}

type testDeps struct {
	model  *fakeModel
	cache  *fakeCache
	usage  *fakeUsage
	subs   *fakeSubs
	creds  *fakeCreds
	events *fakeEvents
	proc   *usecase.Processor
	gw     *usecase.Gateway
}

func newTestDeps(tierName domain.TierName) *testDeps {
	d := &testDeps{
		model:  &fakeModel{reply: `{"ok": true}`},
		cache:  newFakeCache(),
		usage:  newFakeUsage(),
		subs:   &fakeSubs{tier: tierName},
		creds:  newFakeCreds(),
		events: &fakeEvents{},
	}
	d.proc = usecase.NewProcessor(registry.New(), d.model, d.creds, tokencount.NewEstimator(), testSecret, "platform-key")
	d.gw = usecase.NewGateway(d.proc, d.cache, d.usage, d.subs, d.events, false)
	return d
}
