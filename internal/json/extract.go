// Package json extracts JSON objects embedded in model replies.
//
// Replies carry flow definitions inside fenced code blocks or inline after
// commentary. Candidates are tried in order: fenced blocks, the whole reply,
// then each balanced {...} span.
package json

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractObject returns the first JSON object found in response.
func ExtractObject(response string) (string, error) {
	for _, candidate := range candidates(response) {
		if isObject(candidate) {
			return candidate, nil
		}
	}
	preview := response
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("failed to extract JSON object from response: %q", preview)
}

// Extract decodes the first JSON object in response into T.
func Extract[T any](response string) (T, error) {
	var result T
	raw, err := ExtractObject(response)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return result, nil
}

func isObject(s string) bool {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return false
	}
	var obj map[string]json.RawMessage
	return json.Unmarshal([]byte(s), &obj) == nil
}

func candidates(response string) []string {
	out := fencedBlocks(response)
	out = append(out, strings.TrimSpace(response))
	for i := 0; i < len(response); i++ {
		if response[i] != '{' {
			continue
		}
		if end := matchBrace(response, i); end > i {
			out = append(out, response[i:end+1])
		}
	}
	return out
}

// fencedBlocks returns the bodies of ``` blocks, dropping the info string.
func fencedBlocks(response string) []string {
	var blocks []string
	rest := response
	for {
		open := strings.Index(rest, "```")
		if open < 0 {
			return blocks
		}
		rest = rest[open+3:]
		nl := strings.IndexByte(rest, '\n')
		if nl < 0 {
			return blocks
		}
		body := rest[nl+1:]
		end := strings.Index(body, "```")
		if end < 0 {
			return blocks
		}
		blocks = append(blocks, strings.TrimSpace(body[:end]))
		rest = body[end+3:]
	}
}

// matchBrace returns the index of the brace closing the one at start, or -1.
// Braces inside string literals are ignored.
func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
