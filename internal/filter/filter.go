// Package filter selects which archive entries are encoded or listed.
//
// Rules follow rsync conventions: an ordered list of include and exclude
// glob patterns where the first matching rule wins and unmatched paths are
// kept. Size bounds apply to regular files only.
package filter

import "github.com/bamsammich/parcel/internal/header"

// Rule is a single include or exclude pattern.
type Rule struct {
	Pattern *compiledPattern
	Include bool
}

// Chain holds an ordered list of rules plus size bounds.
type Chain struct {
	rules   []Rule
	minSize int64
	maxSize int64
}

// NewChain creates an empty chain that keeps everything.
func NewChain() *Chain {
	return &Chain{}
}

// AddExclude appends an exclude rule.
func (c *Chain) AddExclude(pattern string) error {
	return c.add(pattern, false)
}

// AddInclude appends an include rule.
func (c *Chain) AddInclude(pattern string) error {
	return c.add(pattern, true)
}

func (c *Chain) add(pattern string, include bool) error {
	cp, err := compilePattern(pattern)
	if err != nil {
		return err
	}
	c.rules = append(c.rules, Rule{Pattern: cp, Include: include})
	return nil
}

// AddLists appends includes and then excludes, so a listed include wins
// over a broader exclude. This is the order used for config file lists.
func (c *Chain) AddLists(includes, excludes []string) error {
	for _, p := range includes {
		if err := c.AddInclude(p); err != nil {
			return err
		}
	}
	for _, p := range excludes {
		if err := c.AddExclude(p); err != nil {
			return err
		}
	}
	return nil
}

// SetMinSize drops regular files smaller than n bytes.
func (c *Chain) SetMinSize(n int64) { c.minSize = n }

// SetMaxSize drops regular files larger than n bytes.
func (c *Chain) SetMaxSize(n int64) { c.maxSize = n }

// Empty reports whether the chain has no rules and no size bounds.
func (c *Chain) Empty() bool {
	return c == nil || (len(c.rules) == 0 && c.minSize == 0 && c.maxSize == 0)
}

// Match reports whether the entry at relPath should be kept. relPath is
// slash-separated and relative to the archive root. size is ignored for
// directories. A nil chain keeps everything.
func (c *Chain) Match(relPath string, isDir bool, size int64) bool {
	if c == nil {
		return true
	}
	if !isDir {
		if c.minSize > 0 && size < c.minSize {
			return false
		}
		if c.maxSize > 0 && size > c.maxSize {
			return false
		}
	}
	return c.MatchPath(relPath, isDir)
}

// MatchPath applies only the pattern rules, for entries such as symlinks
// that size bounds do not cover.
func (c *Chain) MatchPath(relPath string, isDir bool) bool {
	if c == nil {
		return true
	}
	for _, rule := range c.rules {
		if rule.Pattern.match(relPath, isDir) {
			return rule.Include
		}
	}
	return true
}

// MatchHeader applies the chain to a decoded archive entry.
func (c *Chain) MatchHeader(h *header.Header) bool {
	switch h.Type {
	case header.TypeDirectory:
		return c.Match(h.Path, true, 0)
	case header.TypeRegular:
		return c.Match(h.Path, false, h.Size)
	default:
		return c.MatchPath(h.Path, false)
	}
}
