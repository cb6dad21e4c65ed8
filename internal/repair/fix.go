package repair

import "strings"

// structuredSpan finds the outermost balanced {...} or [...] span, skipping
// prose the model wrapped around it. The scan respects nesting, quoted
// strings and backslash escapes. When the span never closes, the tail from
// the opening delimiter is returned with balanced=false so the repair pass
// can finish it.
func structuredSpan(s string) (span string, balanced bool) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return s[start:], false
}

// applyFixes runs the fixed, ordered repair pass: close an unterminated
// string at end of input, append missing closing delimiters, strip trailing
// commas before closers, quote bare keys. The fixes are cumulative and the
// caller re-parses once after the whole pass; there is no trial-and-error
// loop beyond this.
func applyFixes(s string) string {
	s = closeUnterminatedString(s)
	s = balanceDelimiters(s)
	s = stripTrailingCommas(s)
	s = quoteBareKeys(s)
	return s
}

func closeUnterminatedString(s string) string {
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		if ch == '"' {
			inString = true
		}
	}

	if !inString {
		return s
	}
	if escaped {
		// A dangling escape would swallow the closing quote.
		s = s[:len(s)-1]
	}
	return s + `"`
}

func balanceDelimiters(s string) string {
	var open []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			open = append(open, '}')
		case '[':
			open = append(open, ']')
		case '}', ']':
			if len(open) > 0 && open[len(open)-1] == ch {
				open = open[:len(open)-1]
			}
		}
	}

	var b strings.Builder
	b.WriteString(s)
	for i := len(open) - 1; i >= 0; i-- {
		b.WriteByte(open[i])
	}
	return b.String()
}

func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			b.WriteByte(ch)
			continue
		}

		if ch == '"' {
			inString = true
			b.WriteByte(ch)
			continue
		}

		if ch == ',' {
			next := nextSignificant(s, i+1)
			if next < len(s) && (s[next] == '}' || s[next] == ']') {
				continue
			}
		}
		b.WriteByte(ch)
	}

	return b.String()
}

// quoteBareKeys wraps unquoted object keys in double quotes. A bare key is
// an identifier that follows '{' or ',' and is itself followed by ':'.
func quoteBareKeys(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)

	inString := false
	escaped := false
	var prevSignificant byte = '{'

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			b.WriteByte(ch)
			continue
		}

		if ch == '"' {
			inString = true
			prevSignificant = ch
			b.WriteByte(ch)
			continue
		}

		if isIdentStart(ch) && (prevSignificant == '{' || prevSignificant == ',') {
			end := i
			for end < len(s) && isIdentPart(s[end]) {
				end++
			}
			next := nextSignificant(s, end)
			if next < len(s) && s[next] == ':' {
				b.WriteByte('"')
				b.WriteString(s[i:end])
				b.WriteByte('"')
				prevSignificant = '"'
				i = end - 1
				continue
			}
		}

		if !isSpace(ch) {
			prevSignificant = ch
		}
		b.WriteByte(ch)
	}

	return b.String()
}

func nextSignificant(s string, from int) int {
	for from < len(s) && isSpace(s[from]) {
		from++
	}
	return from
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || (ch >= '0' && ch <= '9')
}
