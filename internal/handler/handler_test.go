package handler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kibitzbot/kibitz/internal/bus"
	"github.com/kibitzbot/kibitz/internal/model"
	"github.com/kibitzbot/kibitz/internal/providers"
	"github.com/kibitzbot/kibitz/internal/store"
	"github.com/kibitzbot/kibitz/internal/tools"
)

// --- shared test fakes ---

type memMessages struct {
	mu   sync.Mutex
	byID map[string]model.Message
}

func newMemMessages(msgs ...model.Message) *memMessages {
	s := &memMessages{byID: make(map[string]model.Message)}
	for _, m := range msgs {
		s.byID[m.MessageID] = m
	}
	return s
}

func (s *memMessages) Get(_ context.Context, id string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *memMessages) all(chatJID string) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Message
	for _, m := range s.byID {
		if m.ChatJID == chatJID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

func (s *memMessages) Recent(_ context.Context, chatJID string, limit int) ([]model.Message, error) {
	msgs := s.all(chatJID)
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (s *memMessages) Since(_ context.Context, chatJID string, t time.Time, limit int) ([]model.Message, error) {
	var out []model.Message
	for _, m := range s.all(chatJID) {
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

func (s *memMessages) Save(_ context.Context, m model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[m.MessageID]; !exists {
		s.byID[m.MessageID] = m
	}
	return nil
}

type memOptOuts struct {
	mu   sync.Mutex
	jids map[string]bool
}

func newMemOptOuts(jids ...string) *memOptOuts {
	s := &memOptOuts{jids: make(map[string]bool)}
	for _, jid := range jids {
		s.jids[jid] = true
	}
	return s
}

func (s *memOptOuts) Get(_ context.Context, jid string) (*model.OptOut, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jids[jid] {
		return &model.OptOut{JID: jid, CreatedAt: time.Now()}, nil
	}
	return nil, nil
}

func (s *memOptOuts) Upsert(_ context.Context, o model.OptOut) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jids[o.JID] = true
	return nil
}

func (s *memOptOuts) Delete(_ context.Context, jid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jids, jid)
	return nil
}

type memGroups struct {
	byJID map[string]model.Group
}

func (s *memGroups) Get(_ context.Context, jid string) (*model.Group, error) {
	g, ok := s.byJID[jid]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func (s *memGroups) Linked(_ context.Context, _ *model.Group) ([]model.Group, error) {
	return nil, nil
}

// scriptedProvider returns canned responses in order.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []*providers.ChatResponse
	errs      []error
	requests  []providers.ChatRequest
}

func (p *scriptedProvider) Name() string         { return "scripted" }
func (p *scriptedProvider) DefaultModel() string { return "test-model" }

func (p *scriptedProvider) Chat(_ context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	idx := len(p.requests) - 1
	if idx < len(p.errs) && p.errs[idx] != nil {
		return nil, p.errs[idx]
	}
	if idx < len(p.responses) {
		return p.responses[idx], nil
	}
	return &providers.ChatResponse{Content: "fallback answer", FinishReason: "stop"}, nil
}

func textResponse(content string) *providers.ChatResponse {
	return &providers.ChatResponse{Content: content, FinishReason: "stop"}
}

func intentResponse(intent string) *providers.ChatResponse {
	return textResponse(fmt.Sprintf(`{"intent": %q}`, intent))
}

type fakeDownloader struct {
	data []byte
	err  error
}

func (d *fakeDownloader) DownloadMedia(_ context.Context, _ string) ([]byte, error) {
	return d.data, d.err
}

type fakeTranscriber struct {
	transcript string
	err        error
}

func (t *fakeTranscriber) Transcribe(_ context.Context, _ []byte, _ string) (string, error) {
	return t.transcript, t.err
}

type admitAll struct{}

func (admitAll) Admit(_ string) bool { return true }

type admitNone struct{}

func (admitNone) Admit(_ string) bool { return false }

// fixture builds a handler with capture of delivered replies.
type fixture struct {
	handler  *Handler
	messages *memMessages
	optOuts  *memOptOuts
	groups   *memGroups
	provider *scriptedProvider
	replies  *[]bus.OutboundMessage
}

func newFixture(provider *scriptedProvider) *fixture {
	messages := newMemMessages()
	optOuts := newMemOptOuts()
	groups := &memGroups{byJID: make(map[string]model.Group)}
	var replies []bus.OutboundMessage

	f := &fixture{
		messages: messages,
		optOuts:  optOuts,
		groups:   groups,
		provider: provider,
		replies:  &replies,
	}
	f.handler = New(Deps{
		Stores: &store.Stores{
			Messages: messages,
			OptOuts:  optOuts,
			Groups:   groups,
		},
		Provider: provider,
		Admitter: admitAll{},
		Deliver: func(msg bus.OutboundMessage) {
			replies = append(replies, msg)
		},
		Config: Config{
			AdminJIDs: []string{"admin@s.whatsapp.net"},
			Models:    Models{Router: "router-model", Answer: "answer-model", Vision: "vision-model"},
		},
	})
	return f
}

func groupMessage(id, text string) bus.InboundMessage {
	return bus.InboundMessage{
		Channel:   "whatsapp",
		SelfJID:   "bot@s.whatsapp.net",
		Mentioned: true,
		Message: model.Message{
			MessageID: id,
			ChatJID:   "group1@g.us",
			SenderJID: "alice@s.whatsapp.net",
			GroupJID:  "group1@g.us",
			Text:      text,
			Timestamp: time.Now().UTC(),
		},
	}
}

func optOutFor(jid string) model.OptOut {
	return model.OptOut{JID: jid, CreatedAt: time.Now().UTC()}
}

type cannedTool struct {
	name   string
	result string
}

func (t *cannedTool) Name() string        { return t.name }
func (t *cannedTool) Description() string { return "canned test tool" }
func (t *cannedTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object"}
}
func (t *cannedTool) Execute(_ context.Context, _ map[string]interface{}) *tools.Result {
	return tools.NewResult(t.result)
}

func newTestRegistry() *tools.Registry {
	return tools.NewRegistry(&cannedTool{name: "get_datetime", result: "Monday, 2 March 2026"})
}

func directMessage(id, text string) bus.InboundMessage {
	return bus.InboundMessage{
		Channel: "whatsapp",
		SelfJID: "bot@s.whatsapp.net",
		Message: model.Message{
			MessageID: id,
			ChatJID:   "alice@s.whatsapp.net",
			SenderJID: "alice@s.whatsapp.net",
			Text:      text,
			Timestamp: time.Now().UTC(),
		},
	}
}
