package value

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFrom_NestedTOMLShapes(t *testing.T) {
	decoded := map[string]any{
		"title":                "MLLT Example Site",
		"some_nonstring_value": int64(42),
		"ratio":                0.5,
		"draft":                false,
		"links": []map[string]any{
			{"name": "My Blog", "value": "https://blog.example.com"},
			{"name": "My Github", "value": "https://github.com", "iconuri": "./gh_icon.png"},
		},
		"made_with": map[string]any{"name": "mllt"},
		"launched":  time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	v, err := From(decoded)
	require.NoError(t, err)
	require.Equal(t, Map, v.Kind())
	require.Equal(t, []string{"draft", "launched", "links", "made_with", "ratio", "some_nonstring_value", "title"}, v.Keys())

	n, ok := v.Lookup("some_nonstring_value")
	require.True(t, ok)
	i, isInt := n.Int()
	require.True(t, isInt)
	require.Equal(t, int64(42), i)

	name, ok := v.Lookup("links", "1", "iconuri")
	require.True(t, ok)
	require.Equal(t, "./gh_icon.png", name.String())

	launched, ok := v.Lookup("launched")
	require.True(t, ok)
	require.Equal(t, "2025-01-02T03:04:05Z", launched.String())

	_, ok = v.Lookup("links", "7")
	require.False(t, ok)
	_, ok = v.Lookup("title", "deeper")
	require.False(t, ok)
}

func TestFrom_YAMLAnyKeys(t *testing.T) {
	v, err := From(map[any]any{1: "one", "two": []any{true, nil}})
	require.NoError(t, err)

	one, ok := v.Get("1")
	require.True(t, ok)
	require.Equal(t, "one", one.String())

	two, _ := v.Get("two")
	require.Equal(t, 2, two.Len())
	second, _ := two.Index(1)
	require.True(t, second.IsNull())
}

func TestFrom_RejectsUnsupported(t *testing.T) {
	_, err := From(map[string]any{"ch": make(chan int)})
	require.Error(t, err)

	_, err = From(uint64(1 << 63))
	require.Error(t, err)
}

func TestNative_ReturnsIndependentCopies(t *testing.T) {
	v, err := From(map[string]any{"nav": []any{"a", "b"}})
	require.NoError(t, err)

	first := v.Native().(map[string]any)
	first["nav"].([]any)[0] = "mutated"

	second := v.Native().(map[string]any)
	require.Equal(t, "a", second["nav"].([]any)[0])
}

func TestString_Scalars(t *testing.T) {
	require.Equal(t, "", Value{}.String())
	require.Equal(t, "3.25", NewFloat(3.25).String())
	require.Equal(t, "true", NewBool(true).String())
	require.Equal(t, "-7", NewInt(-7).String())
	require.Equal(t, "list", List.String())
}
