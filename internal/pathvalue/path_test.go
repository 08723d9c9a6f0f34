package pathvalue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	segs, err := Parse("a.b[2].c")
	require.NoError(t, err)
	require.Len(t, segs, 4)
	assert.Equal(t, Segment{Key: "a"}, segs[0])
	assert.Equal(t, Segment{Key: "b"}, segs[1])
	assert.Equal(t, Segment{Index: 2, IsIndex: true}, segs[2])
	assert.Equal(t, Segment{Key: "c"}, segs[3])
}

func TestParseEmpty(t *testing.T) {
	segs, err := Parse("")
	require.NoError(t, err)
	assert.Nil(t, segs)
}

func TestGetSet(t *testing.T) {
	doc := map[string]interface{}{
		"name": "sam",
		"address": map[string]interface{}{
			"city": "nyc",
		},
	}

	segs, err := Parse("address.city")
	require.NoError(t, err)

	got, ok := Get(doc, segs)
	require.True(t, ok)
	assert.Equal(t, "nyc", got)

	newDoc, err := Set(doc, segs, "sf")
	require.NoError(t, err)

	got, ok = Get(newDoc, segs)
	require.True(t, ok)
	assert.Equal(t, "sf", got)

	// original doc untouched
	got, ok = Get(doc, segs)
	require.True(t, ok)
	assert.Equal(t, "nyc", got)
}

func TestSetCreatesIntermediateObjects(t *testing.T) {
	segs, err := Parse("a.b.c")
	require.NoError(t, err)

	out, err := Set(nil, segs, 42.0)
	require.NoError(t, err)

	got, ok := Get(out, segs)
	require.True(t, ok)
	assert.Equal(t, 42.0, got)
}

func TestSetArrayIndex(t *testing.T) {
	segs, err := Parse("items[2]")
	require.NoError(t, err)

	out, err := Set(nil, segs, "x")
	require.NoError(t, err)

	arr := out.(map[string]interface{})["items"].([]interface{})
	require.Len(t, arr, 3)
	assert.Nil(t, arr[0])
	assert.Nil(t, arr[1])
	assert.Equal(t, "x", arr[2])
}

func TestDelete(t *testing.T) {
	doc := map[string]interface{}{"a": "x", "b": "y"}
	out := Delete(doc, []Segment{{Key: "a"}})
	_, ok := Get(out, []Segment{{Key: "a"}})
	assert.False(t, ok)
	v, ok := Get(out, []Segment{{Key: "b"}})
	assert.True(t, ok)
	assert.Equal(t, "y", v)
}

func TestEqual(t *testing.T) {
	a := map[string]interface{}{"x": 1.0, "y": []interface{}{"a", "b"}}
	b := map[string]interface{}{"x": 1.0, "y": []interface{}{"a", "b"}}
	c := map[string]interface{}{"x": 2.0, "y": []interface{}{"a", "b"}}

	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, c))
}

func TestDeepCopyIsIndependent(t *testing.T) {
	orig := map[string]interface{}{"x": []interface{}{"a"}}
	cp := DeepCopy(orig).(map[string]interface{})
	cp["x"].([]interface{})[0] = "b"
	assert.Equal(t, "a", orig["x"].([]interface{})[0])
}
