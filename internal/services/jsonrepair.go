package services

import (
	"encoding/json"
	"strings"
)

// stripFences removes a leading ```json or ``` fence and a trailing ```
// fence, then trims whitespace.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// decodeJSON parses s into a generic value. A literal null counts as a
// failure since it carries no data.
func decodeJSON(s string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil || v == nil {
		return nil, false
	}
	return v, true
}

// repairJSON fixes the near-JSON that models tend to produce: keys without
// quotes, keys missing only their opening quote, and trailing commas.
// Text outside the outermost object or array is dropped.
func repairJSON(s string) string {
	s = outermostBlock(s)

	var b strings.Builder
	b.Grow(len(s) + 16)
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
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
			b.WriteByte(c)
		case ',':
			j := skipSpace(s, i+1)
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
			b.WriteByte(c)
			i = quoteKey(&b, s, i+1) - 1
		case '{':
			b.WriteByte(c)
			i = quoteKey(&b, s, i+1) - 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// quoteKey looks for a bare key starting at i. When one is found it writes
// the quoted key and returns the index after it; otherwise it writes nothing
// and returns i.
func quoteKey(b *strings.Builder, s string, i int) int {
	j := skipSpace(s, i)
	if j >= len(s) || !isIdentStart(s[j]) {
		return i
	}
	k := j
	for k < len(s) && isIdentPart(s[k]) {
		k++
	}
	m := skipSpace(s, k)
	switch {
	case m < len(s) && s[m] == ':':
		// key:
		b.WriteString(s[i:j])
		b.WriteByte('"')
		b.WriteString(s[j:k])
		b.WriteByte('"')
		return k
	case k < len(s)-1 && s[k] == '"' && s[k+1] == ':':
		// key":
		b.WriteString(s[i:j])
		b.WriteByte('"')
		b.WriteString(s[j:k])
		b.WriteByte('"')
		return k + 1
	}
	return i
}

// outermostBlock returns the span from the first '{' or '[' to the last
// matching closer, or s unchanged when there is none.
func outermostBlock(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return s[start:]
	}
	return s[start : end+1]
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\n' || s[i] == '\t' || s[i] == '\r') {
		i++
	}
	return i
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
