package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func testScope() *Scope {
	return NewScope(RunMeta{
		Workflow:   "pr",
		Ref:        "refs/heads/pull-request/123",
		RefName:    "pull-request/123",
		SHA:        "abc123",
		Event:      "push",
		Repository: "rapidsai/cugraph",
		RunID:      42,
		RunNumber:  7,
		Actor:      "octocat",
	}, map[string]cty.Value{
		"build_type": cty.StringVal("pull-request"),
	})
}

func TestParseTemplate(t *testing.T) {
	t.Run("plain string is a valid template", func(t *testing.T) {
		assert.NoError(t, ParseTemplate("pull-request"))
	})

	t.Run("interpolation is valid", func(t *testing.T) {
		assert.NoError(t, ParseTemplate("${ workflow }-${ ref }"))
	})

	t.Run("unterminated interpolation errors", func(t *testing.T) {
		assert.Error(t, ParseTemplate("${ workflow"))
	})
}

func TestEvalTemplate(t *testing.T) {
	scope := testScope()

	t.Run("concurrency group expression", func(t *testing.T) {
		got, err := EvalTemplate("${ workflow }-${ ref }", scope)
		require.NoError(t, err)
		assert.Equal(t, "pr-refs/heads/pull-request/123", got)
	})

	t.Run("plain string passes through", func(t *testing.T) {
		got, err := EvalTemplate("cpu16", scope)
		require.NoError(t, err)
		assert.Equal(t, "cpu16", got)
	})

	t.Run("github namespace mirrors flat scope", func(t *testing.T) {
		got, err := EvalTemplate("${ github.run_number }", scope)
		require.NoError(t, err)
		assert.Equal(t, "7", got)
	})

	t.Run("inputs are visible", func(t *testing.T) {
		got, err := EvalTemplate("${ inputs.build_type }", scope)
		require.NoError(t, err)
		assert.Equal(t, "pull-request", got)
	})

	t.Run("functions evaluate", func(t *testing.T) {
		got, err := EvalTemplate("${ format(\"%s-%d\", workflow, run_number) }", scope)
		require.NoError(t, err)
		assert.Equal(t, "pr-7", got)

		got, err = EvalTemplate("${ upper(actor) }", scope)
		require.NoError(t, err)
		assert.Equal(t, "OCTOCAT", got)
	})

	t.Run("unknown variable errors", func(t *testing.T) {
		_, err := EvalTemplate("${ nonsense }", scope)
		assert.Error(t, err)
	})

	t.Run("unknown function errors", func(t *testing.T) {
		_, err := EvalTemplate("${ frobnicate(ref) }", scope)
		assert.Error(t, err)
	})
}

func TestEvalCondition(t *testing.T) {
	scope := testScope()

	t.Run("bare expression", func(t *testing.T) {
		ok, err := EvalCondition("event == \"push\"", scope)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("wrapped expression", func(t *testing.T) {
		ok, err := EvalCondition("${ startswith(ref_name, \"pull-request/\") }", scope)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("string predicates", func(t *testing.T) {
		ok, err := EvalCondition("contains(repository, \"cugraph\")", scope)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = EvalCondition("endswith(sha, \"999\")", scope)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("non-boolean result errors", func(t *testing.T) {
		_, err := EvalCondition("workflow", scope)
		assert.Error(t, err)
	})
}

func TestStatusFunctions(t *testing.T) {
	base := testScope()

	t.Run("success when needs succeeded", func(t *testing.T) {
		scope := base.WithStatus(JobStatus{NeedsSucceeded: true})
		ok, err := EvalCondition("success()", scope)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = EvalCondition("failure()", scope)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("failure after an upstream failure", func(t *testing.T) {
		scope := base.WithStatus(JobStatus{NeedFailed: true})
		ok, err := EvalCondition("failure()", scope)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = EvalCondition("success()", scope)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("always is unconditionally true", func(t *testing.T) {
		scope := base.WithStatus(JobStatus{NeedFailed: true, Cancelled: true})
		ok, err := EvalCondition("always()", scope)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("cancelled tracks run cancellation", func(t *testing.T) {
		scope := base.WithStatus(JobStatus{Cancelled: true})
		ok, err := EvalCondition("cancelled()", scope)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = EvalCondition("success()", scope)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("status functions absent outside if scope", func(t *testing.T) {
		_, err := EvalCondition("success()", base)
		assert.Error(t, err)
	})
}

func TestNeedsScope(t *testing.T) {
	scope := testScope().WithNeeds(map[string]NeedResult{
		"conda-cpp-build": {
			Result:  "succeeded",
			Outputs: map[string]string{"artifact": "libcugraph.tar"},
		},
	})

	ok, err := EvalCondition("needs[\"conda-cpp-build\"].result == \"succeeded\"", scope)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := EvalTemplate("${ needs[\"conda-cpp-build\"].outputs.artifact }", scope)
	require.NoError(t, err)
	assert.Equal(t, "libcugraph.tar", got)
}
