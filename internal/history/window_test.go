package history

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/kibitzbot/kibitz/internal/model"
)

type fakeMessageStore struct {
	byID   map[string]model.Message
	byChat map[string][]model.Message // newest first
	getErr error
}

func newFakeMessageStore(msgs ...model.Message) *fakeMessageStore {
	s := &fakeMessageStore{
		byID:   make(map[string]model.Message),
		byChat: make(map[string][]model.Message),
	}
	for _, m := range msgs {
		s.byID[m.MessageID] = m
		s.byChat[m.ChatJID] = append(s.byChat[m.ChatJID], m)
	}
	for chat := range s.byChat {
		sort.Slice(s.byChat[chat], func(i, j int) bool {
			return s.byChat[chat][i].Timestamp.After(s.byChat[chat][j].Timestamp)
		})
	}
	return s
}

func (s *fakeMessageStore) Get(_ context.Context, id string) (*model.Message, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	m, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *fakeMessageStore) Recent(_ context.Context, chatJID string, limit int) ([]model.Message, error) {
	msgs := s.byChat[chatJID]
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (s *fakeMessageStore) Since(_ context.Context, chatJID string, t time.Time, limit int) ([]model.Message, error) {
	var out []model.Message
	for _, m := range s.byChat[chatJID] {
		if m.Timestamp.Before(t) {
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeMessageStore) Save(_ context.Context, _ model.Message) error { return nil }

func msgAt(id, chat, text string, minute int, replyTo string) model.Message {
	return model.Message{
		MessageID: id,
		ChatJID:   chat,
		SenderJID: "alice@s.whatsapp.net",
		Text:      text,
		ReplyToID: replyTo,
		Timestamp: time.Date(2026, 3, 1, 12, minute, 0, 0, time.UTC),
	}
}

func TestResolveReplyChainOrdersOldestFirst(t *testing.T) {
	// C is the trigger, replying to B, which replies to A.
	a := msgAt("A", "g1", "first", 1, "")
	b := msgAt("B", "g1", "second", 2, "A")
	c := msgAt("C", "g1", "third", 3, "B")
	store := newFakeMessageStore(a, b, c)

	chain := ResolveReplyChain(context.Background(), store, c)
	if len(chain) != 2 {
		t.Fatalf("chain length = %d, want 2", len(chain))
	}
	if chain[0].MessageID != "A" || chain[1].MessageID != "B" {
		t.Errorf("chain order = %s, %s; want A, B", chain[0].MessageID, chain[1].MessageID)
	}
}

func TestResolveReplyChainTruncatesOnMissingAncestor(t *testing.T) {
	b := msgAt("B", "g1", "second", 2, "A") // A was never stored
	c := msgAt("C", "g1", "third", 3, "B")
	store := newFakeMessageStore(b, c)

	chain := ResolveReplyChain(context.Background(), store, c)
	if len(chain) != 1 || chain[0].MessageID != "B" {
		t.Fatalf("chain = %v, want just B", chain)
	}
}

func TestResolveReplyChainFailsOpenOnStoreError(t *testing.T) {
	c := msgAt("C", "g1", "third", 3, "B")
	store := newFakeMessageStore(c)
	store.getErr = fmt.Errorf("connection refused")

	chain := ResolveReplyChain(context.Background(), store, c)
	if len(chain) != 0 {
		t.Fatalf("chain = %v, want empty on store error", chain)
	}
}

func TestResolveReplyChainDepthCap(t *testing.T) {
	var msgs []model.Message
	prev := ""
	for i := 0; i < 15; i++ {
		id := fmt.Sprintf("m%d", i)
		msgs = append(msgs, msgAt(id, "g1", "hop", i, prev))
		prev = id
	}
	trigger := msgAt("trigger", "g1", "go", 20, prev)
	store := newFakeMessageStore(append(msgs, trigger)...)

	chain := ResolveReplyChain(context.Background(), store, trigger)
	if len(chain) != maxReplyChainDepth {
		t.Fatalf("chain length = %d, want %d", len(chain), maxReplyChainDepth)
	}
}

func TestBuildContextWindowMergesChainAndRecents(t *testing.T) {
	a := msgAt("A", "g1", "first", 1, "")
	b := msgAt("B", "g1", "second", 2, "A")
	x := msgAt("X", "g1", "unrelated chatter", 4, "")
	trigger := msgAt("C", "g1", "third", 5, "B")
	store := newFakeMessageStore(a, b, x, trigger)

	window, err := BuildContextWindow(context.Background(), store, trigger, DefaultTokenBudget, DefaultMaxMessages)
	if err != nil {
		t.Fatal(err)
	}

	got := make([]string, len(window))
	for i, m := range window {
		got[i] = m.MessageID
	}
	want := []string{"A", "B", "X"}
	if len(got) != len(want) {
		t.Fatalf("window = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("window = %v, want %v", got, want)
		}
	}
}

func TestBuildContextWindowExcludesTrigger(t *testing.T) {
	trigger := msgAt("C", "g1", "hello", 5, "")
	store := newFakeMessageStore(trigger)

	window, err := BuildContextWindow(context.Background(), store, trigger, DefaultTokenBudget, DefaultMaxMessages)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range window {
		if m.MessageID == "C" {
			t.Fatal("trigger message must not appear in its own context window")
		}
	}
}

func TestBuildContextWindowZeroBudgetKeepsChain(t *testing.T) {
	a := msgAt("A", "g1", strings.Repeat("x", 400), 1, "")
	x := msgAt("X", "g1", "chatter", 2, "")
	trigger := msgAt("C", "g1", "third", 3, "A")
	store := newFakeMessageStore(a, x, trigger)

	window, err := BuildContextWindow(context.Background(), store, trigger, 0, DefaultMaxMessages)
	if err != nil {
		t.Fatal(err)
	}
	if len(window) != 1 || window[0].MessageID != "A" {
		t.Fatalf("window = %v, want only the chain message A", window)
	}
}

func TestBuildContextWindowStopsAtBudget(t *testing.T) {
	// Each message is ~25 tokens; a 60-token budget fits two.
	m1 := msgAt("m1", "g1", strings.Repeat("a", 100), 1, "")
	m2 := msgAt("m2", "g1", strings.Repeat("b", 100), 2, "")
	m3 := msgAt("m3", "g1", strings.Repeat("c", 100), 3, "")
	trigger := msgAt("t", "g1", "q", 4, "")
	store := newFakeMessageStore(m1, m2, m3, trigger)

	window, err := BuildContextWindow(context.Background(), store, trigger, 60, DefaultMaxMessages)
	if err != nil {
		t.Fatal(err)
	}
	if len(window) != 2 {
		t.Fatalf("window length = %d, want 2", len(window))
	}
	// Newest-first acceptance means m3 and m2 survive, in chronological order.
	if window[0].MessageID != "m2" || window[1].MessageID != "m3" {
		t.Errorf("window = %s, %s; want m2, m3", window[0].MessageID, window[1].MessageID)
	}
}

func TestBuildContextWindowRespectsMaxMessages(t *testing.T) {
	var msgs []model.Message
	for i := 0; i < 30; i++ {
		msgs = append(msgs, msgAt(fmt.Sprintf("m%d", i), "g1", "hi", i, ""))
	}
	trigger := msgAt("t", "g1", "q", 40, "")
	store := newFakeMessageStore(append(msgs, trigger)...)

	window, err := BuildContextWindow(context.Background(), store, trigger, DefaultTokenBudget, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(window) != 5 {
		t.Fatalf("window length = %d, want 5", len(window))
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(strings.Repeat("x", 100)); got != 25 {
		t.Errorf("EstimateTokens(100 chars) = %d, want 25", got)
	}
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("EstimateTokens(empty) = %d, want 0", got)
	}
}
