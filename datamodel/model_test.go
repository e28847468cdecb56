package datamodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dm := New()
	p := MustParsePath("/workflow/users")
	require.NoError(t, dm.Write(p, []any{map[string]any{"id": float64(1)}}))

	v, err := dm.Read(p)
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"id": float64(1)}}, v)
}

func TestReadMissingPathIsDataError(t *testing.T) {
	dm := New()
	_, err := dm.Read(MustParsePath("/workflow/missing"))
	require.Error(t, err)
}

func TestArrayIndexOutOfBoundsIsDataErrorNotPanic(t *testing.T) {
	dm := New()
	require.NoError(t, dm.Write(MustParsePath("/workflow/list"), []any{float64(1)}))
	_, err := dm.Read(MustParsePath("/workflow/list[5]"))
	require.Error(t, err)
}

func TestWriteAutovivifiesIntermediateObjects(t *testing.T) {
	dm := New()
	require.NoError(t, dm.Write(MustParsePath("/workflow/a/b/c"), "leaf"))
	v, err := dm.Read(MustParsePath("/workflow/a/b/c"))
	require.NoError(t, err)
	assert.Equal(t, "leaf", v)
}

func TestReadReturnsDeepCopy(t *testing.T) {
	dm := New()
	require.NoError(t, dm.Write(MustParsePath("/workflow/obj"), map[string]any{"k": "v"}))

	v, err := dm.Read(MustParsePath("/workflow/obj"))
	require.NoError(t, err)
	m := v.(map[string]any)
	m["k"] = "mutated"

	v2, err := dm.Read(MustParsePath("/workflow/obj"))
	require.NoError(t, err)
	assert.Equal(t, "v", v2.(map[string]any)["k"])
}

func TestPathMustStartWithRoot(t *testing.T) {
	_, err := ParsePath("/other/thing")
	assert.Error(t, err)
}

func TestIsPrefixOf(t *testing.T) {
	a := MustParsePath("/workflow/users")
	b := MustParsePath("/workflow/users[0]/name")
	assert.True(t, a.IsPrefixOf(b))
	assert.False(t, b.IsPrefixOf(a))
}

func TestResolverSubstitutesBarePath(t *testing.T) {
	dm := New()
	require.NoError(t, dm.Write(MustParsePath("/workflow/a"), float64(42)))
	r := NewResolver(dm)

	out, err := r.Resolve(map[string]any{"value": "/workflow/a"})
	require.NoError(t, err)
	assert.Equal(t, float64(42), out.(map[string]any)["value"])
}

func TestResolverSubstitutesTemplateInString(t *testing.T) {
	dm := New()
	require.NoError(t, dm.Write(MustParsePath("/workflow/name"), "alice"))
	r := NewResolver(dm)

	out, err := r.Resolve(map[string]any{"url": "https://api.example.com/users/{/workflow/name}"})
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/users/alice", out.(map[string]any)["url"])
}

func TestCollectPathsFindsNestedReferences(t *testing.T) {
	paths, err := CollectPaths(map[string]any{
		"a": "/workflow/x",
		"b": []any{"text {/workflow/y} more"},
	})
	require.NoError(t, err)
	assert.Len(t, paths, 2)
}
