package digest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kibitzbot/kibitz/internal/model"
	"github.com/kibitzbot/kibitz/internal/providers"
	"github.com/kibitzbot/kibitz/internal/store"
)

type fakeProvider struct {
	mu    sync.Mutex
	calls int
	reply string
}

func (p *fakeProvider) Name() string         { return "fake" }
func (p *fakeProvider) DefaultModel() string { return "fake-model" }

func (p *fakeProvider) Chat(_ context.Context, _ providers.ChatRequest) (*providers.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return &providers.ChatResponse{Content: p.reply, FinishReason: "stop"}, nil
}

type fakeMessages struct {
	msgs []model.Message
}

func (s *fakeMessages) Get(_ context.Context, _ string) (*model.Message, error) { return nil, nil }
func (s *fakeMessages) Recent(_ context.Context, _ string, limit int) ([]model.Message, error) {
	if len(s.msgs) > limit {
		return s.msgs[:limit], nil
	}
	return s.msgs, nil
}
func (s *fakeMessages) Since(_ context.Context, _ string, _ time.Time, _ int) ([]model.Message, error) {
	return nil, nil
}
func (s *fakeMessages) Save(_ context.Context, _ model.Message) error { return nil }

type noOptOuts struct{}

func (noOptOuts) Get(_ context.Context, _ string) (*model.OptOut, error) { return nil, nil }
func (noOptOuts) Upsert(_ context.Context, _ model.OptOut) error         { return nil }
func (noOptOuts) Delete(_ context.Context, _ string) error               { return nil }

func testStores(msgs ...model.Message) *store.Stores {
	return &store.Stores{
		Messages: &fakeMessages{msgs: msgs},
		OptOuts:  noOptOuts{},
	}
}

func TestCacheGetBuildsOnceWithinTTL(t *testing.T) {
	provider := &fakeProvider{reply: "folks talked about the picnic"}
	stores := testStores(model.Message{
		MessageID: "m1",
		ChatJID:   "g1",
		SenderJID: "alice@s.whatsapp.net",
		Text:      "picnic on saturday?",
		Timestamp: time.Now(),
	})
	cache := NewCache(stores, provider, Config{TTL: time.Hour})

	first := cache.Get(context.Background(), "g1")
	second := cache.Get(context.Background(), "g1")
	if first != "folks talked about the picnic" || second != first {
		t.Errorf("digest = %q / %q", first, second)
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1", provider.calls)
	}
}

func TestCacheGetRebuildsAfterTTL(t *testing.T) {
	provider := &fakeProvider{reply: "summary"}
	stores := testStores(model.Message{
		MessageID: "m1", ChatJID: "g1",
		SenderJID: "alice@s.whatsapp.net", Text: "hi", Timestamp: time.Now(),
	})
	cache := NewCache(stores, provider, Config{TTL: time.Minute})

	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.Get(context.Background(), "g1")
	now = now.Add(2 * time.Minute)
	cache.Get(context.Background(), "g1")

	if provider.calls != 2 {
		t.Errorf("provider calls = %d, want 2", provider.calls)
	}
}

func TestCacheGetEmptyChat(t *testing.T) {
	provider := &fakeProvider{reply: "should not be called"}
	cache := NewCache(testStores(), provider, Config{})

	if got := cache.Get(context.Background(), "g1"); got != "" {
		t.Errorf("digest for empty chat = %q, want empty", got)
	}
	if provider.calls != 0 {
		t.Errorf("provider calls = %d, want 0", provider.calls)
	}
}
