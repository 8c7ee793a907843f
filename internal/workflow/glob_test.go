package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompilePattern(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		pattern string
		branch  string
		match   bool
	}{
		{"pull-request/[0-9]+", "pull-request/123", true},
		{"pull-request/[0-9]+", "pull-request/", false},
		{"pull-request/[0-9]+", "pull-request/abc", false},
		{"pull-request/[0-9]+", "pull-request/123/extra", false},
		{"main", "main", true},
		{"main", "maintenance", false},
		{"release/*", "release/24.02", true},
		{"release/*", "release/24.02/hotfix", false},
		{"release/**", "release/24.02/hotfix", true},
		{"branch-?", "branch-", true},
		{"branch-?", "branch-x", false},
		{"v[0-9]+.[0-9]+", "v1.2", true},
	}

	for _, tc := range testCases {
		t.Run(tc.pattern+" vs "+tc.branch, func(t *testing.T) {
			t.Parallel()
			p, err := CompilePattern(tc.pattern)
			require.NoError(t, err)
			assert.Equal(t, tc.match, p.Match(tc.branch))
		})
	}
}

func TestCompilePattern_Errors(t *testing.T) {
	t.Parallel()

	t.Run("empty pattern", func(t *testing.T) {
		t.Parallel()
		_, err := CompilePattern("")
		assert.Error(t, err)
	})

	t.Run("bare negation", func(t *testing.T) {
		t.Parallel()
		_, err := CompilePattern("!")
		assert.Error(t, err)
	})

	t.Run("leading quantifier", func(t *testing.T) {
		t.Parallel()
		_, err := CompilePattern("+branch")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nothing to quantify")
	})

	t.Run("unterminated class", func(t *testing.T) {
		t.Parallel()
		_, err := CompilePattern("release/[0-9")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unterminated character class")
	})
}

func TestMatchBranch(t *testing.T) {
	t.Parallel()

	t.Run("empty list matches everything", func(t *testing.T) {
		t.Parallel()
		ok, err := MatchBranch(nil, "anything")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("positive match", func(t *testing.T) {
		t.Parallel()
		ok, err := MatchBranch([]string{"pull-request/[0-9]+"}, "pull-request/42")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("no match", func(t *testing.T) {
		t.Parallel()
		ok, err := MatchBranch([]string{"pull-request/[0-9]+"}, "main")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("negation subtracts a later match", func(t *testing.T) {
		t.Parallel()
		patterns := []string{"release/**", "!release/experimental/**"}

		ok, err := MatchBranch(patterns, "release/24.02")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = MatchBranch(patterns, "release/experimental/wild")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("later positive match re-includes", func(t *testing.T) {
		t.Parallel()
		patterns := []string{"release/**", "!release/experimental/**", "release/experimental/blessed"}
		ok, err := MatchBranch(patterns, "release/experimental/blessed")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}
