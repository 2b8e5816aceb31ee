package filter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waabox/commitwatch/internal/filter"
)

func TestParseRules(t *testing.T) {
	rules := filter.ParseRules(" gh-pages, release/* ,,org/repo:main, bad: ")
	require.Len(t, rules, 3)
	assert.Equal(t, filter.Rule{Pattern: "gh-pages"}, rules[0])
	assert.Equal(t, filter.Rule{Pattern: "release/*"}, rules[1])
	assert.Equal(t, filter.Rule{Repository: "org/repo", Pattern: "main"}, rules[2])
}

func TestParseRules_Empty(t *testing.T) {
	assert.Empty(t, filter.ParseRules(""))
	assert.Empty(t, filter.ParseRules(" , ,"))
}

func TestIsBlocked_EmptyRulesBlockNothing(t *testing.T) {
	assert.False(t, filter.IsBlocked("org/repo", "main", nil))
}

func TestIsBlocked_Wildcard(t *testing.T) {
	rules := filter.ParseRules("release/*")

	assert.True(t, filter.IsBlocked("org/repo", "release/1.0", rules))
	assert.True(t, filter.IsBlocked("org/repo", "release/2.0", rules))
	assert.False(t, filter.IsBlocked("org/repo", "releases", rules))
	assert.False(t, filter.IsBlocked("org/repo", "main", rules))
}

func TestIsBlocked_ExactMatchOnly(t *testing.T) {
	rules := filter.ParseRules("dev")

	assert.True(t, filter.IsBlocked("org/repo", "dev", rules))
	assert.False(t, filter.IsBlocked("org/repo", "develop", rules))
}

func TestIsBlocked_RepositoryScoped(t *testing.T) {
	rules := filter.ParseRules("org/repo:main")

	assert.True(t, filter.IsBlocked("org/repo", "main", rules))
	assert.False(t, filter.IsBlocked("org/other", "main", rules))
	assert.False(t, filter.IsBlocked("org/repo", "develop", rules))
}

func TestIsBlocked_ScopedWildcard(t *testing.T) {
	rules := filter.ParseRules("org/repo:dependabot/*")

	assert.True(t, filter.IsBlocked("org/repo", "dependabot/npm/lodash", rules))
	assert.False(t, filter.IsBlocked("org/other", "dependabot/npm/lodash", rules))
}

func TestIsBlocked_InnerStarIsLiteral(t *testing.T) {
	rules := filter.ParseRules("feat*x")

	assert.False(t, filter.IsBlocked("org/repo", "feature-x", rules))
	assert.True(t, filter.IsBlocked("org/repo", "feat*x", rules))
}

func TestIsBlocked_AnyRuleWins(t *testing.T) {
	rules := filter.ParseRules("org/other:main, hotfix/*")

	assert.True(t, filter.IsBlocked("org/repo", "hotfix/urgent", rules))
	assert.False(t, filter.IsBlocked("org/repo", "main", rules))
}
