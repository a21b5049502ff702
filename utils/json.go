package utils

// ExtractJSONObject returns the first top-level JSON object embedded in
// free text. Model responses routinely wrap structured output in prose
// or markdown fences, so this scans for a balanced brace pair instead
// of requiring the whole string to be JSON. Braces inside string
// literals are skipped. Returns false when no balanced object exists.
func ExtractJSONObject(text string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]

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
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		}
	}

	return "", false
}
