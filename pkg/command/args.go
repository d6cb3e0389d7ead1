package command

import "strings"

// splitArgs splits a raw argument string shell-style: whitespace separates
// words, single and double quotes group them, backslash escapes the next
// rune inside double quotes or bare words. An unterminated quote is a usage
// error.
func splitArgs(raw string) ([]string, error) {
	var (
		out     []string
		word    strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)
	flush := func() {
		if inWord {
			out = append(out, word.String())
			word.Reset()
			inWord = false
		}
	}
	for _, r := range raw {
		switch {
		case escaped:
			word.WriteRune(r)
			inWord = true
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				word.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == ' ' || r == '\t' || r == '\n':
			flush()
		default:
			word.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 || escaped {
		return nil, Usagef("failed to parse arguments")
	}
	flush()
	return out, nil
}
