package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// compiledPattern is a glob translated to a regular expression. A single
// star matches any run of characters except /, a double star also crosses
// slashes ("**/" may match nothing), ? matches one character except /,
// [...] is a character class ([!...] negated) and a backslash escapes the
// next character.
//
// A leading / anchors the pattern at the archive root, as does any / in
// the middle. Unanchored patterns match the final path segments. A trailing
// / restricts the pattern to directories.
type compiledPattern struct {
	re       *regexp.Regexp
	original string
	anchored bool
	dirOnly  bool
}

func compilePattern(pattern string) (*compiledPattern, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, fmt.Errorf("empty filter pattern")
	}
	cp := &compiledPattern{original: pattern}

	glob := pattern
	if trimmed, ok := strings.CutSuffix(glob, "/"); ok {
		cp.dirOnly = true
		glob = trimmed
	}
	if trimmed, ok := strings.CutPrefix(glob, "/"); ok {
		cp.anchored = true
		glob = trimmed
	} else if strings.Contains(glob, "/") {
		cp.anchored = true
	}

	body, err := translateGlob(glob)
	if err != nil {
		return nil, fmt.Errorf("filter pattern %q: %w", pattern, err)
	}
	prefix := "(^|/)"
	if cp.anchored {
		prefix = "^"
	}
	re, err := regexp.Compile(prefix + body + "$")
	if err != nil {
		return nil, fmt.Errorf("filter pattern %q: %w", pattern, err)
	}
	cp.re = re
	return cp, nil
}

func (cp *compiledPattern) match(relPath string, isDir bool) bool {
	if cp.dirOnly && !isDir {
		return false
	}
	return cp.re.MatchString(relPath)
}

func (cp *compiledPattern) String() string { return cp.original }

func translateGlob(glob string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '*':
			if !strings.HasPrefix(glob[i:], "**") {
				b.WriteString("[^/]*")
				continue
			}
			i++
			if strings.HasPrefix(glob[i+1:], "/") {
				b.WriteString("(.*/)?")
				i++
			} else {
				b.WriteString(".*")
			}
		case '?':
			b.WriteString("[^/]")
		case '[':
			end := classEnd(glob, i)
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			class := glob[i+1 : end]
			if rest, ok := strings.CutPrefix(class, "!"); ok {
				class = "^" + rest
			}
			b.WriteString("[" + strings.ReplaceAll(class, `\`, `\\`) + "]")
			i = end
		case '\\':
			if i+1 == len(glob) {
				return "", fmt.Errorf("trailing backslash")
			}
			i++
			b.WriteString(regexp.QuoteMeta(glob[i : i+1]))
		default:
			b.WriteString(regexp.QuoteMeta(glob[i : i+1]))
		}
	}
	return b.String(), nil
}

// classEnd returns the index of the ] closing the class opened at start,
// or -1. A ] directly after [ or [! is a literal member.
func classEnd(glob string, start int) int {
	j := start + 1
	if j < len(glob) && glob[j] == '!' {
		j++
	}
	if j < len(glob) && glob[j] == ']' {
		j++
	}
	for ; j < len(glob); j++ {
		if glob[j] == ']' {
			return j
		}
	}
	return -1
}
