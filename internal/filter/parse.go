package filter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadFile reads rules from path and appends them to the chain.
func (c *Chain) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open filter file: %w", err)
	}
	defer f.Close()
	return c.Load(f, path)
}

// Load reads rules, one per line, and appends them in order. "+ PATTERN"
// and "include PATTERN" add an include; "- PATTERN", "exclude PATTERN" and a
// bare PATTERN add an exclude. Blank lines and lines starting with # are
// ignored. name is used in error messages.
func (c *Chain) Load(r io.Reader, name string) error {
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		include, pattern := parseRuleLine(line)
		if err := c.add(pattern, include); err != nil {
			return fmt.Errorf("filter file %s line %d: %w", name, lineNum, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read filter file %s: %w", name, err)
	}
	return nil
}

func parseRuleLine(line string) (include bool, pattern string) {
	for _, p := range []struct {
		prefix  string
		include bool
	}{
		{"+ ", true},
		{"- ", false},
		{"include ", true},
		{"exclude ", false},
	} {
		if rest, ok := strings.CutPrefix(line, p.prefix); ok {
			return p.include, strings.TrimSpace(rest)
		}
	}
	return false, line
}
