package script

import (
	"errors"
	"strings"
)

var (
	errEmptyCommand   = errors.New("empty command")
	errUnterminated   = errors.New("unterminated quote in command")
	errTrailingEscape = errors.New("trailing backslash in command")
)

// SplitCommand splits a command line into argv using POSIX shell quoting
// rules for whitespace, single quotes, double quotes and backslashes. No
// expansion or globbing is performed.
func SplitCommand(command string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inArg   bool
		quote   rune
		escaped bool
	)

	for _, r := range command {
		switch {
		case escaped:
			if quote == '"' && !strings.ContainsRune("\"\\$`", r) {
				cur.WriteRune('\\')
			}
			cur.WriteRune(r)
			escaped = false
		case quote == '\'':
			if r == '\'' {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case quote == '"':
			switch r {
			case '"':
				quote = 0
			case '\\':
				escaped = true
			default:
				cur.WriteRune(r)
			}
		case r == '\\':
			escaped = true
			inArg = true
		case r == '\'' || r == '"':
			quote = r
			inArg = true
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if inArg {
				args = append(args, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteRune(r)
			inArg = true
		}
	}

	if escaped {
		return nil, errTrailingEscape
	}
	if quote != 0 {
		return nil, errUnterminated
	}
	if inArg {
		args = append(args, cur.String())
	}
	if len(args) == 0 {
		return nil, errEmptyCommand
	}
	return args, nil
}
