package filter

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	filterFile := filepath.Join(dir, "filter.rules")

	content := `# build outputs
+ *.go
- *.log

- build/
include keep.tmp
exclude *.tmp
noprefix.txt
`
	require.NoError(t, os.WriteFile(filterFile, []byte(content), 0o644))

	c := NewChain()
	require.NoError(t, c.LoadFile(filterFile))

	require.Len(t, c.rules, 6)
	includes := []bool{true, false, false, true, false, false}
	for i, want := range includes {
		assert.Equal(t, want, c.rules[i].Include, "rule %d", i)
	}

	assert.True(t, c.Match("main.go", false, 100))
	assert.False(t, c.Match("app.log", false, 100))
	assert.False(t, c.Match("build", true, 0))
	assert.True(t, c.Match("keep.tmp", false, 1))
	assert.False(t, c.Match("x.tmp", false, 1))
	assert.False(t, c.Match("noprefix.txt", false, 100))
}

func TestLoadFileOnlyComments(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.Load(strings.NewReader("# only comments\n\n"), "inline"))
	assert.Empty(t, c.rules)
	assert.True(t, c.Empty())
}

func TestLoadFileNotExists(t *testing.T) {
	c := NewChain()
	assert.Error(t, c.LoadFile("/nonexistent/path"))
}

func TestLoadReportsLine(t *testing.T) {
	c := NewChain()
	err := c.Load(strings.NewReader("*.a\n- bad\\\n"), "rules")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rules line 2")
}
