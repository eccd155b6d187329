// Package intent classifies a user utterance into the operation category that
// drives context inclusion.
//
// Classification is a pure, total function over lexical cues and workspace
// occupancy. It never fails: an utterance matching no rule is a Question,
// the category that sends the least context.
package intent

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/richinex/contextloom/history"
)

// Category is the operation category of an utterance.
type Category int

const (
	// Question asks about something; no workspace is sent.
	Question Category = iota
	// Create builds something new from the catalog.
	Create
	// Update modifies what is already in the workspace.
	Update
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case Question:
		return "question"
	case Create:
		return "create"
	case Update:
		return "update"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCategory parses a category name (case-insensitive).
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "question", "ask":
		return Question, nil
	case "create", "new":
		return Create, nil
	case "update", "edit":
		return Update, nil
	default:
		return Question, fmt.Errorf("unknown intent category: %s", s)
	}
}

// Input is everything the classifier looks at.
type Input struct {
	Utterance string
	// Recent is the bounded recent history. A flow artifact in it counts as
	// an occupied workspace when WorkspaceItems is zero.
	Recent []history.Message
	// WorkspaceItems is the number of items currently in the workspace.
	WorkspaceItems int
}

// Decision explains a classification.
type Decision struct {
	Category Category `json:"category"`
	// Cue is the word or rule that decided the category.
	Cue string `json:"cue"`
	// Ambiguous is set when the category came from occupancy bias or the
	// default rule rather than an unambiguous cue.
	Ambiguous bool `json:"ambiguous"`
}

var (
	// requestPrefixes turn an interrogative sentence into an instruction.
	requestPrefixes = []string{
		"can you", "could you", "would you", "will you", "please",
		"i want", "i'd like", "i would like", "i need", "let's", "lets",
	}

	questionWords = set("how", "what", "why", "when", "where", "which", "who",
		"whose", "is", "are", "does", "do", "did", "can", "could", "should",
		"would", "will", "explain", "describe", "tell")

	// explanatoryWords after a request prefix still ask for an answer.
	explanatoryWords = set("explain", "describe", "tell", "show", "what", "how", "why")

	updateVerbs = set("update", "change", "modify", "edit", "rename", "remove",
		"delete", "fix", "replace", "adjust", "move", "tweak", "disconnect",
		"rewire", "swap", "increase", "decrease", "reorder", "drop", "disable",
		"enable", "extend", "refactor")

	createVerbs = set("create", "build", "generate", "design", "scaffold",
		"automate", "draft", "new", "implement", "setup")

	// ambiguousVerbs mean create on an empty workspace and update otherwise.
	ambiguousVerbs = set("add", "make", "connect", "set", "insert", "attach",
		"include", "put", "wire", "link", "use", "hook")

	followUps = set("also", "instead", "then", "now", "too", "again", "another",
		"more", "it", "that", "this")
)

func set(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// Classify returns the category for in.
func Classify(in Input) Category {
	return Explain(in).Category
}

// Explain classifies in and reports which cue decided it.
func Explain(in Input) Decision {
	text := strings.ToLower(strings.TrimSpace(in.Utterance))
	if text == "" {
		return Decision{Category: Question, Cue: "empty", Ambiguous: true}
	}

	rest, request := afterRequestPrefix(text)
	if request {
		if next := tokenize(rest); len(next) > 0 && explanatoryWords[next[0]] {
			return Decision{Category: Question, Cue: next[0]}
		}
	}

	words := tokenize(text)
	if !request {
		if len(words) > 0 && questionWords[words[0]] {
			return Decision{Category: Question, Cue: words[0]}
		}
		if strings.HasSuffix(text, "?") {
			return Decision{Category: Question, Cue: "?"}
		}
	}

	occupied := in.WorkspaceItems > 0 || recentArtifact(in.Recent)
	for _, w := range words {
		switch {
		case updateVerbs[w]:
			return Decision{Category: Update, Cue: w}
		case createVerbs[w]:
			return Decision{Category: Create, Cue: w}
		case ambiguousVerbs[w]:
			if occupied {
				return Decision{Category: Update, Cue: w, Ambiguous: true}
			}
			return Decision{Category: Create, Cue: w, Ambiguous: true}
		}
	}

	if occupied {
		for _, w := range words {
			if followUps[w] {
				return Decision{Category: Update, Cue: w, Ambiguous: true}
			}
		}
	}

	return Decision{Category: Question, Cue: "default", Ambiguous: true}
}

func recentArtifact(recent []history.Message) bool {
	for _, m := range recent {
		if m.Flags.FlowArtifact {
			return true
		}
	}
	return false
}

// afterRequestPrefix returns the text following the earliest request prefix.
func afterRequestPrefix(text string) (string, bool) {
	best := -1
	rest := ""
	for _, prefix := range requestPrefixes {
		if i := phraseIndex(text, prefix); i >= 0 && (best < 0 || i < best) {
			best = i
			rest = text[i+len(prefix):]
		}
	}
	return rest, best >= 0
}

// phraseIndex returns the first offset of phrase in text on word boundaries,
// or -1.
func phraseIndex(text, phrase string) int {
	for start := 0; ; {
		i := strings.Index(text[start:], phrase)
		if i < 0 {
			return -1
		}
		i += start
		end := i + len(phrase)
		if (i == 0 || !isWordByte(text[i-1])) && (end == len(text) || !isWordByte(text[end])) {
			return i
		}
		start = i + 1
	}
}

func isWordByte(b byte) bool {
	return b == '\'' || b == '_' || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}

func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}
