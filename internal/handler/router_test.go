package handler

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/kibitzbot/kibitz/internal/providers"
)

func TestClassifyKnownIntents(t *testing.T) {
	for _, intent := range []string{"summarize", "ask_question", "about", "other"} {
		provider := &scriptedProvider{}
		provider.responses = append(provider.responses, intentResponse(intent))
		f := newFixture(provider)

		got := f.handler.classify(context.Background(), "@bot do the thing")
		if string(got) != intent {
			t.Errorf("classify → %s, want %s", got, intent)
		}
	}
}

func TestClassifyUnparseableFallsBackToOther(t *testing.T) {
	provider := &scriptedProvider{}
	provider.responses = append(provider.responses, textResponse("I think the user wants a summary"))
	f := newFixture(provider)

	if got := f.handler.classify(context.Background(), "hmm"); got != IntentOther {
		t.Errorf("classify = %s, want other", got)
	}
}

func TestClassifyProviderErrorFallsBackToOther(t *testing.T) {
	provider := &scriptedProvider{errs: []error{fmt.Errorf("rate limited")}}
	f := newFixture(provider)

	if got := f.handler.classify(context.Background(), "hmm"); got != IntentOther {
		t.Errorf("classify = %s, want other", got)
	}
}

func TestClassifyToleratesCodeFences(t *testing.T) {
	provider := &scriptedProvider{}
	provider.responses = append(provider.responses,
		textResponse("```json\n{\"intent\": \"summarize\"}\n```"))
	f := newFixture(provider)

	if got := f.handler.classify(context.Background(), "what did I miss?"); got != IntentSummarize {
		t.Errorf("classify = %s, want summarize", got)
	}
}

func TestRouteSummarizeEmptyDay(t *testing.T) {
	provider := &scriptedProvider{}
	provider.responses = append(provider.responses, intentResponse("summarize"))
	f := newFixture(provider)

	f.handler.Handle(context.Background(), groupMessage("m1", "@bot what did I miss?"))

	if len(*f.replies) != 1 {
		t.Fatalf("replies = %d, want 1", len(*f.replies))
	}
	if !strings.Contains((*f.replies)[0].Content, "Nothing much happened") {
		t.Errorf("reply = %q", (*f.replies)[0].Content)
	}
}

func TestRouteSummarizeWithHistory(t *testing.T) {
	provider := &scriptedProvider{}
	provider.responses = append(provider.responses,
		intentResponse("summarize"),
		textResponse("The group planned a picnic."))
	f := newFixture(provider)

	prior := groupMessage("m0", "picnic saturday at noon?")
	if err := f.messages.Save(context.Background(), prior.Message); err != nil {
		t.Fatal(err)
	}

	f.handler.Handle(context.Background(), groupMessage("m1", "@bot what did I miss?"))

	if len(*f.replies) != 1 || (*f.replies)[0].Content != "The group planned a picnic." {
		t.Fatalf("replies = %+v", *f.replies)
	}

	// The summary request itself must not be summarized.
	summaryReq := f.provider.requests[1]
	for _, m := range summaryReq.Messages {
		if strings.Contains(m.Content, "what did I miss?") {
			t.Error("summary prompt contains the trigger message")
		}
	}
}

func TestRouteErrorProducesApology(t *testing.T) {
	provider := &scriptedProvider{
		responses: []*providers.ChatResponse{intentResponse("summarize")},
		errs:      []error{nil, fmt.Errorf("model exploded")},
	}
	f := newFixture(provider)

	prior := groupMessage("m0", "some earlier chatter")
	if err := f.messages.Save(context.Background(), prior.Message); err != nil {
		t.Fatal(err)
	}

	f.handler.Handle(context.Background(), groupMessage("m1", "@bot summary please"))

	if len(*f.replies) != 1 {
		t.Fatalf("replies = %d, want 1 apology", len(*f.replies))
	}
	if (*f.replies)[0].Content != apologyMessage {
		t.Errorf("reply = %q, want apology", (*f.replies)[0].Content)
	}
}

func TestKnowledgeFlowToolLoop(t *testing.T) {
	provider := &scriptedProvider{}
	provider.responses = append(provider.responses,
		intentResponse("ask_question"),
		// First answer turn requests a tool.
		&providers.ChatResponse{
			FinishReason: "tool_calls",
			ToolCalls: []providers.ToolCall{
				{ID: "call-1", Name: "get_datetime", Arguments: map[string]interface{}{}},
			},
		},
		textResponse("It's Monday."))
	f := newFixture(provider)
	f.handler.deps.Tools = newTestRegistry()

	f.handler.Handle(context.Background(), groupMessage("m1", "@bot what day is it?"))

	if len(*f.replies) != 1 || (*f.replies)[0].Content != "It's Monday." {
		t.Fatalf("replies = %+v", *f.replies)
	}

	// The tool result must be fed back as a tool-role message.
	final := f.provider.requests[2]
	last := final.Messages[len(final.Messages)-1]
	if last.Role != "tool" || last.ToolCallID != "call-1" {
		t.Errorf("last message = %+v, want tool result for call-1", last)
	}
}

func TestKnowledgeFlowRedactsOptedOutSenders(t *testing.T) {
	provider := &scriptedProvider{}
	provider.responses = append(provider.responses,
		intentResponse("ask_question"),
		textResponse("They discussed the budget."))
	f := newFixture(provider)

	if err := f.optOuts.Upsert(context.Background(), optOutFor("carol@s.whatsapp.net")); err != nil {
		t.Fatal(err)
	}
	prior := groupMessage("m0", "the budget is 500")
	prior.Message.SenderJID = "carol@s.whatsapp.net"
	if err := f.messages.Save(context.Background(), prior.Message); err != nil {
		t.Fatal(err)
	}

	f.handler.Handle(context.Background(), groupMessage("m1", "@bot what was the budget?"))

	answerReq := f.provider.requests[1]
	prompt := answerReq.Messages[len(answerReq.Messages)-1].Content
	if strings.Contains(prompt, "@carol") {
		t.Errorf("opted-out sender leaked into prompt:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Anonymous") {
		t.Errorf("prompt missing Anonymous label:\n%s", prompt)
	}
}
