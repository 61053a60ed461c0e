package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/parcel/internal/header"
)

func TestEmptyChainKeepsAll(t *testing.T) {
	c := NewChain()
	assert.True(t, c.Match("any/file.txt", false, 1024))
	assert.True(t, c.Match("any/dir", true, 0))
	assert.True(t, c.Empty())

	var nilChain *Chain
	assert.True(t, nilChain.Empty())
	assert.True(t, nilChain.Match("x", false, 1))
	assert.True(t, nilChain.MatchHeader(&header.Header{Type: header.TypeRegular, Path: "x"}))
}

func TestExcludePattern(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddExclude("*.log"))

	assert.False(t, c.Match("app.log", false, 100))
	assert.False(t, c.Match("sub/debug.log", false, 100))
	assert.True(t, c.Match("app.txt", false, 100))
}

func TestFirstMatchWins(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddInclude("important.log"))
	require.NoError(t, c.AddExclude("*.log"))
	assert.True(t, c.Match("important.log", false, 100))
	assert.False(t, c.Match("debug.log", false, 100))

	c = NewChain()
	require.NoError(t, c.AddExclude("*.log"))
	require.NoError(t, c.AddInclude("important.log"))
	assert.False(t, c.Match("important.log", false, 100))
}

func TestAddLists_IncludesBeforeExcludes(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddLists([]string{"keep.tmp"}, []string{"*.tmp", "cache/"}))

	assert.True(t, c.Match("keep.tmp", false, 1))
	assert.False(t, c.Match("a/other.tmp", false, 1))
	assert.False(t, c.Match("cache", true, 0))
	assert.Error(t, c.AddLists(nil, []string{"bad\\"}))
}

func TestDirOnlyPattern(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddExclude("build/"))

	assert.False(t, c.Match("build", true, 0))
	assert.True(t, c.Match("build", false, 100))
}

func TestDoubleStar(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddInclude("**/*.go"))
	require.NoError(t, c.AddExclude("*"))

	assert.True(t, c.Match("main.go", false, 100))
	assert.True(t, c.Match("internal/engine/encoder.go", false, 100))
	assert.False(t, c.Match("readme.md", false, 100))
}

func TestSizeBounds(t *testing.T) {
	c := NewChain()
	c.SetMinSize(100)
	c.SetMaxSize(10000)

	assert.False(t, c.Match("tiny.txt", false, 50))
	assert.True(t, c.Match("medium.txt", false, 500))
	assert.False(t, c.Match("huge.bin", false, 50000))
	assert.True(t, c.Match("somedir", true, 0))
	assert.False(t, c.Empty())
}

func TestMatchHeader(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddExclude("*.o"))
	c.SetMinSize(10)

	assert.False(t, c.MatchHeader(&header.Header{Type: header.TypeRegular, Path: "a.o", Size: 100}))
	assert.False(t, c.MatchHeader(&header.Header{Type: header.TypeRegular, Path: "small.c", Size: 1}))
	assert.True(t, c.MatchHeader(&header.Header{Type: header.TypeRegular, Path: "big.c", Size: 100}))
	// Size bounds never drop links or directories.
	assert.True(t, c.MatchHeader(&header.Header{Type: header.TypeSymlink, Path: "link"}))
	assert.True(t, c.MatchHeader(&header.Header{Type: header.TypeDirectory, Path: "dir"}))
	assert.False(t, c.MatchHeader(&header.Header{Type: header.TypeSymlink, Path: "x.o"}))
}
