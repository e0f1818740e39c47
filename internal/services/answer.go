package services

import (
	"encoding/json"
	"strings"
)

// AnswerKind tags the decoded shape of a search answer.
type AnswerKind int

const (
	AnswerText AnswerKind = iota
	AnswerList
	AnswerObject
)

func (k AnswerKind) String() string {
	switch k {
	case AnswerList:
		return "list"
	case AnswerObject:
		return "object"
	}
	return "text"
}

// Answer is a normalized per-document search answer.
type Answer struct {
	Kind   AnswerKind
	List   []any
	Object map[string]any
	Text   string
}

// Value returns the answer as the value placed in the search result.
func (a Answer) Value() any {
	switch a.Kind {
	case AnswerList:
		return a.List
	case AnswerObject:
		return a.Object
	}
	return a.Text
}

// DecodeAnswer normalizes raw model output. A bracketed array literal decodes
// to a list, a braced object literal to an object; anything else, including a
// literal that fails to parse, is kept as trimmed text.
func DecodeAnswer(raw string) Answer {
	trimmed := strings.TrimSpace(raw)
	candidate := stripFences(trimmed)

	switch {
	case strings.HasPrefix(candidate, "[") && strings.HasSuffix(candidate, "]"):
		var list []any
		if err := json.Unmarshal([]byte(candidate), &list); err == nil && list != nil {
			return Answer{Kind: AnswerList, List: list}
		}
	case strings.HasPrefix(candidate, "{") && strings.HasSuffix(candidate, "}"):
		var obj map[string]any
		if err := json.Unmarshal([]byte(candidate), &obj); err == nil && obj != nil {
			return Answer{Kind: AnswerObject, Object: obj}
		}
	}
	return Answer{Kind: AnswerText, Text: trimmed}
}
