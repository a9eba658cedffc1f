package handler

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kibitzbot/kibitz/internal/search"
)

type fakeEmbedder struct {
	mu      sync.Mutex
	queries []string
}

func (e *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queries = append(e.queries, texts...)
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

type fakeSearcher struct {
	results   []search.TopicResult
	query     string
	groupJIDs []string
}

func (s *fakeSearcher) Search(_ context.Context, query string, _ []float32, groupJIDs []string, _ int) ([]search.TopicResult, error) {
	s.query = query
	s.groupJIDs = groupJIDs
	return s.results, nil
}

func TestKnowledgeRetrievalUsesRephrasedQuery(t *testing.T) {
	provider := &scriptedProvider{}
	provider.responses = append(provider.responses,
		intentResponse("ask_question"),
		textResponse("best pizza places discussed in this group"),
		textResponse("Luigi's came up a few times, people liked it."),
	)
	f := newFixture(provider)

	// Prior chat the rephrasing step should see as conversation context.
	prior := groupMessage("m0", "the pizza place was Luigi's").Message
	prior.SenderJID = "carol@s.whatsapp.net"
	prior.Timestamp = time.Now().UTC().Add(-time.Minute)
	if err := f.messages.Save(context.Background(), prior); err != nil {
		t.Fatal(err)
	}

	embedder := &fakeEmbedder{}
	searcher := &fakeSearcher{results: []search.TopicResult{{
		TopicID:  "t1",
		GroupJID: "group1@g.us",
		Summary:  "pizza recommendations",
	}}}
	f.handler.deps.Embedder = embedder
	f.handler.deps.Searcher = searcher

	f.handler.Handle(context.Background(), groupMessage("m1", "@bot where was that pizza place again?"))

	if len(embedder.queries) != 1 || embedder.queries[0] != "best pizza places discussed in this group" {
		t.Fatalf("embedded queries = %v, want the rephrased query", embedder.queries)
	}
	if searcher.query != "best pizza places discussed in this group" {
		t.Errorf("search query = %q, want the rephrased text alongside the vector", searcher.query)
	}
	if len(searcher.groupJIDs) != 1 || searcher.groupJIDs[0] != "group1@g.us" {
		t.Errorf("search scoped to %v, want the message's group", searcher.groupJIDs)
	}
	if len(*f.replies) != 1 || !strings.Contains((*f.replies)[0].Content, "Luigi's") {
		t.Fatalf("replies = %+v, want the generated answer", *f.replies)
	}

	// The rephrase request must carry the conversation so references
	// resolve, with senders anonymized.
	rephrase := f.provider.requests[1].Messages[0].Content
	if !strings.Contains(rephrase, "the pizza place was Luigi's") {
		t.Error("rephrase prompt missing conversation context")
	}
	if strings.Contains(rephrase, "@carol") {
		t.Error("rephrase prompt must not carry sender handles")
	}

	// The answer request must carry the retrieved topic context.
	last := f.provider.requests[len(f.provider.requests)-1]
	if !strings.Contains(last.Messages[len(last.Messages)-1].Content, "pizza recommendations") {
		t.Error("answer prompt missing retrieved topic summary")
	}
}

func TestKnowledgeRetrievalFallsBackToOriginalQuery(t *testing.T) {
	provider := &scriptedProvider{}
	provider.responses = append(provider.responses,
		intentResponse("ask_question"),
		textResponse(""), // rephrasing produced nothing usable
		textResponse("an answer"),
	)
	f := newFixture(provider)

	embedder := &fakeEmbedder{}
	f.handler.deps.Embedder = embedder
	f.handler.deps.Searcher = &fakeSearcher{}

	f.handler.Handle(context.Background(), groupMessage("m1", "@bot what did we decide about the trip?"))

	if len(embedder.queries) != 1 || embedder.queries[0] != "what did we decide about the trip?" {
		t.Fatalf("embedded queries = %v, want the original question", embedder.queries)
	}
}
