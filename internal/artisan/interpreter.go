package artisan

import (
	"fmt"
	"runtime"
	"strings"
	"unicode"
)

// DefaultInterpreter returns the PHP binary name for the current platform.
func DefaultInterpreter() string {
	if runtime.GOOS == "windows" {
		return "php.exe"
	}
	return "php"
}

// ResolveInterpreter picks the binary for one call: the per-call value,
// then the configured one, then the platform default.
func ResolveInterpreter(requested, configured string) string {
	if s := strings.TrimSpace(requested); s != "" {
		return s
	}
	if s := strings.TrimSpace(configured); s != "" {
		return s
	}
	return DefaultInterpreter()
}

// SplitArgs splits an artisan command line into arguments. Whitespace
// separates arguments; single or double quotes group text, including
// whitespace, into one argument. Outside quotes a backslash escapes the next
// character; inside double quotes it escapes only " and \. A leading
// "php artisan" or "artisan" is dropped since the invoker supplies it.
func SplitArgs(s string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inArg   bool
		quote   rune
		escaped bool
	)
	for _, r := range s {
		switch {
		case escaped:
			if quote == '"' && r != '"' && r != '\\' {
				cur.WriteRune('\\')
			}
			cur.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inArg = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inArg = true
		case unicode.IsSpace(r):
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
		return nil, fmt.Errorf("%w: trailing backslash in %q", ErrInvalidCommand, s)
	}
	if quote != 0 {
		return nil, fmt.Errorf("%w: unterminated %c quote in %q", ErrInvalidCommand, quote, s)
	}
	if inArg {
		args = append(args, cur.String())
	}
	return trimArtisanPrefix(args), nil
}

// JoinArgs quotes each argument that needs it so that SplitArgs returns
// the same arguments, apart from a leading artisan prefix.
func JoinArgs(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if a != "" && !strings.ContainsAny(a, " \t\r\n\v\f\"'\\") {
			quoted[i] = a
			continue
		}
		quoted[i] = `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(a) + `"`
	}
	return strings.Join(quoted, " ")
}

// trimArtisanPrefix drops a leading "php artisan" or "artisan".
func trimArtisanPrefix(args []string) []string {
	if len(args) >= 2 && args[0] == "php" && args[1] == "artisan" {
		return args[2:]
	}
	if len(args) >= 1 && args[0] == "artisan" {
		return args[1:]
	}
	return args
}
