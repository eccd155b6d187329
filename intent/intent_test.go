package intent

import (
	"testing"

	"github.com/richinex/contextloom/history"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		input     Input
		want      Category
		ambiguous bool
	}{
		{"question word", Input{Utterance: "How do I create a timer trigger"}, Question, false},
		{"question mark", Input{Utterance: "the webhook node supports retries?"}, Question, false},
		{"request form is not a question", Input{Utterance: "Can you create a flow that posts to Slack?"}, Create, false},
		{"please update", Input{Utterance: "please update the email node", WorkspaceItems: 2}, Update, false},
		{"create verb", Input{Utterance: "Build a flow that syncs invoices"}, Create, false},
		{"update verb on empty workspace", Input{Utterance: "rename the trigger"}, Update, false},
		{"ambiguous verb empty workspace", Input{Utterance: "add a timer trigger"}, Create, true},
		{"ambiguous verb occupied workspace", Input{Utterance: "add a timer trigger", WorkspaceItems: 3}, Update, true},
		{"first verb wins", Input{Utterance: "remove the filter and create a log node"}, Update, false},
		{"follow-up on occupied workspace", Input{Utterance: "and run it every hour instead", WorkspaceItems: 1}, Update, true},
		{"follow-up on empty workspace", Input{Utterance: "and run it every hour instead"}, Question, true},
		{"no cue", Input{Utterance: "thanks"}, Question, true},
		{"empty", Input{Utterance: "   "}, Question, true},
		{"phrase boundary", Input{Utterance: "Pleased with the result"}, Question, true},
		{"polite explain", Input{Utterance: "Can you explain how this works?", WorkspaceItems: 3}, Question, false},
		{"polite tell", Input{Utterance: "Could you tell me what it does?", WorkspaceItems: 3}, Question, false},
		{"polite describe", Input{Utterance: "Please describe this node", WorkspaceItems: 3}, Question, false},
		{"explain mentions update", Input{Utterance: "Please explain why the update failed", WorkspaceItems: 3}, Question, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Explain(tt.input)
			if got.Category != tt.want {
				t.Errorf("Explain(%q) = %v (cue %q), want %v", tt.input.Utterance, got.Category, got.Cue, tt.want)
			}
			if got.Ambiguous != tt.ambiguous {
				t.Errorf("Explain(%q).Ambiguous = %v, want %v", tt.input.Utterance, got.Ambiguous, tt.ambiguous)
			}
			if Classify(tt.input) != got.Category {
				t.Error("Classify and Explain disagree")
			}
		})
	}
}

func TestRecentFlowArtifactCountsAsOccupied(t *testing.T) {
	recent := []history.Message{
		history.UserMessage("build a flow"),
		history.AssistantMessage("here is your flow", history.Flags{FlowArtifact: true}),
	}
	if got := Classify(Input{Utterance: "connect it to slack", Recent: recent}); got != Update {
		t.Errorf("expected update after a flow artifact, got %v", got)
	}
}

func TestClassifyIsPure(t *testing.T) {
	in := Input{Utterance: "add a node", WorkspaceItems: 1}
	first := Explain(in)
	for i := 0; i < 5; i++ {
		if Explain(in) != first {
			t.Fatal("classification changed between calls")
		}
	}
}

func TestParseCategory(t *testing.T) {
	for _, c := range []Category{Question, Create, Update} {
		parsed, err := ParseCategory(c.String())
		if err != nil || parsed != c {
			t.Errorf("ParseCategory(%q) = %v, %v", c.String(), parsed, err)
		}
	}
	if _, err := ParseCategory("delete"); err == nil {
		t.Error("expected error for unknown category")
	}
}
