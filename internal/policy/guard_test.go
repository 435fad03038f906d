package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillagent/quill/pkg/schema"
)

func TestNilGuardAllowsEverything(t *testing.T) {
	var g *Guard
	require.NoError(t, g.Check(context.Background(), "blog_publish_post", nil))
}

func TestEmptyRulesAllow(t *testing.T) {
	g, err := NewGuard(nil)
	require.NoError(t, err)
	require.NoError(t, g.Check(context.Background(), "anything", map[string]any{"k": "v"}))
}

func TestRuleDenies(t *testing.T) {
	g, err := NewGuard([]Rule{
		{Name: "no-publish", Expression: `action != "blog_publish_post"`},
	})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, g.Check(ctx, "blog_create_post", nil))

	err = g.Check(ctx, "blog_publish_post", nil)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodePolicyDenied, schema.CodeOf(err))
	assert.Contains(t, err.Error(), "no-publish")
}

func TestRuleSeesParams(t *testing.T) {
	g, err := NewGuard([]Rule{
		{Name: "own-blog-only", Expression: `!("blog_id" in params) || params.blog_id == "42"`},
	})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, g.Check(ctx, "blog_get_post", map[string]any{"blog_id": "42"}))

	err = g.Check(ctx, "blog_get_post", map[string]any{"blog_id": "other"})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodePolicyDenied, schema.CodeOf(err))
}

func TestAllRulesMustPass(t *testing.T) {
	g, err := NewGuard([]Rule{
		{Name: "always", Expression: `true`},
		{Name: "never", Expression: `false`},
	})
	require.NoError(t, err)

	err = g.Check(context.Background(), "blog_list_blogs", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "never")
}

func TestInvalidRuleDenies(t *testing.T) {
	g, err := NewGuard([]Rule{
		{Name: "broken", Expression: `this is not CEL`},
	})
	require.NoError(t, err, "compilation is lazy")

	err = g.Check(context.Background(), "blog_list_blogs", nil)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodePolicyDenied, schema.CodeOf(err))
}

func TestNonBooleanRuleDenies(t *testing.T) {
	g, err := NewGuard([]Rule{
		{Name: "stringy", Expression: `action`},
	})
	require.NoError(t, err)

	err = g.Check(context.Background(), "blog_list_blogs", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boolean")
}
