package history

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// SummaryMessageID identifies the synthetic leading summary message.
const SummaryMessageID = "summary"

// maxFactLine bounds the one-line description kept per retained message.
const maxFactLine = 120

// Fact is a retained reference to a flagged message that was folded away.
type Fact struct {
	MessageID string `json:"message_id"`
	Role      Role   `json:"role"`
	Flags     Flags  `json:"flags"`
	Line      string `json:"line"`
}

// Summary is the running summary of folded-away turns.
type Summary struct {
	Facts     []Fact   `json:"facts,omitempty"`
	FoldedIDs []string `json:"folded_ids,omitempty"`
}

// IsZero reports whether nothing has been folded yet.
func (s Summary) IsZero() bool {
	return len(s.FoldedIDs) == 0
}

// Folded returns the number of distinct messages represented by the summary.
func (s Summary) Folded() int {
	return len(s.FoldedIDs)
}

// Clone returns a deep copy.
func (s Summary) Clone() Summary {
	out := Summary{}
	if len(s.Facts) > 0 {
		out.Facts = append([]Fact(nil), s.Facts...)
	}
	if len(s.FoldedIDs) > 0 {
		out.FoldedIDs = append([]string(nil), s.FoldedIDs...)
	}
	return out
}

// Fold merges older messages into the summary.
//
// Flagged messages (flow artifact, error, decision) are retained as an
// identifier plus a one-line description; unflagged messages only bump the
// folded count. Messages whose identifier is already folded are skipped, so
// folding the same message twice yields the same summary as folding it once.
func Fold(s Summary, older []Message) Summary {
	out := s.Clone()
	seen := make(map[string]struct{}, len(out.FoldedIDs)+len(older))
	for _, id := range out.FoldedIDs {
		seen[id] = struct{}{}
	}

	for _, m := range older {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		out.FoldedIDs = append(out.FoldedIDs, m.ID)

		if !m.Flags.Any() {
			continue
		}
		out.Facts = append(out.Facts, Fact{
			MessageID: m.ID,
			Role:      m.Role,
			Flags:     m.Flags,
			Line:      oneLine(m.Content),
		})
	}
	return out
}

// WithoutUnprotectedFacts drops decision-only facts, keeping flow artifact and
// error references.
func (s Summary) WithoutUnprotectedFacts() Summary {
	out := s.Clone()
	out.Facts = out.Facts[:0]
	for _, f := range s.Facts {
		if f.Flags.Protected() {
			out.Facts = append(out.Facts, f)
		}
	}
	return out
}

// Content renders the summary text.
func (s Summary) Content() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summary of %d earlier messages.", s.Folded())
	if len(s.Facts) == 0 {
		return b.String()
	}
	b.WriteString(" Retained references:")
	for _, f := range s.Facts {
		fmt.Fprintf(&b, "\n- [%s] %s (%s): %s", f.Flags.Label(), f.MessageID, f.Role, f.Line)
	}
	return b.String()
}

// Message renders the summary as the synthetic leading system message.
func (s Summary) Message() Message {
	return Message{
		ID:      SummaryMessageID,
		Role:    RoleSystem,
		Content: s.Content(),
	}
}

// oneLine returns the first non-empty line of content, whitespace-collapsed
// and bounded to maxFactLine runes.
func oneLine(content string) string {
	line := ""
	for _, l := range strings.Split(content, "\n") {
		if t := strings.TrimSpace(l); t != "" {
			line = t
			break
		}
	}
	line = strings.Join(strings.Fields(line), " ")
	if utf8.RuneCountInString(line) <= maxFactLine {
		return line
	}
	runes := []rune(line)
	return string(runes[:maxFactLine]) + "..."
}
