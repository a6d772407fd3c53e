package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFromGo_Conversions verifies plain Go values convert to IR types.
func TestFromGo_Conversions(t *testing.T) {
	v, err := FromGo("hello")
	require.NoError(t, err)
	assert.Equal(t, String("hello"), v)

	v, err = FromGo(42)
	require.NoError(t, err)
	assert.Equal(t, Int(42), v)

	v, err = FromGo(true)
	require.NoError(t, err)
	assert.Equal(t, Bool(true), v)

	v, err = FromGo([]any{"a", int64(1)})
	require.NoError(t, err)
	assert.Equal(t, Array{String("a"), Int(1)}, v)

	v, err = FromGo(map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, Object{"k": String("v")}, v)
}

// TestFromGo_RejectsFloatsAndNil verifies forbidden values error.
func TestFromGo_RejectsFloatsAndNil(t *testing.T) {
	_, err := FromGo(1.5)
	require.Error(t, err)

	_, err = FromGo(nil)
	require.Error(t, err)

	_, err = FromGo(map[string]any{"x": 2.5})
	require.Error(t, err)
}

// TestObject_Accessors verifies the typed accessors and their zero
// values for missing or mistyped keys.
func TestObject_Accessors(t *testing.T) {
	obj := Object{
		"name":    String("build"),
		"count":   Int(7),
		"enabled": Bool(true),
	}

	assert.Equal(t, "build", obj.Str("name"))
	assert.Equal(t, int64(7), obj.Num("count"))
	assert.True(t, obj.Flag("enabled"))

	assert.Equal(t, "", obj.Str("missing"))
	assert.Equal(t, int64(0), obj.Num("name"))
	assert.False(t, obj.Flag("count"))
}

// TestObject_UnmarshalJSON verifies round-tripping through JSON.
func TestObject_UnmarshalJSON(t *testing.T) {
	var obj Object
	err := json.Unmarshal([]byte(`{"s":"x","n":3,"b":true,"arr":[1,"y"],"nested":{"k":"v"}}`), &obj)
	require.NoError(t, err)

	assert.Equal(t, String("x"), obj["s"])
	assert.Equal(t, Int(3), obj["n"])
	assert.Equal(t, Bool(true), obj["b"])
	assert.Equal(t, Array{Int(1), String("y")}, obj["arr"])
	assert.Equal(t, Object{"k": String("v")}, obj["nested"])
}

// TestObject_UnmarshalJSON_RejectsFractions verifies non-integer
// numbers fail to decode.
func TestObject_UnmarshalJSON_RejectsFractions(t *testing.T) {
	var obj Object
	err := json.Unmarshal([]byte(`{"x":1.5}`), &obj)
	require.Error(t, err)
}

// TestObject_UnmarshalJSON_NullRoundTrip verifies stored nulls decode
// as Null rather than failing; canonical marshal still rejects them.
func TestObject_UnmarshalJSON_NullRoundTrip(t *testing.T) {
	var obj Object
	err := json.Unmarshal([]byte(`{"x":null}`), &obj)
	require.NoError(t, err)
	assert.Equal(t, Null{}, obj["x"])

	_, err = MarshalCanonical(obj)
	require.Error(t, err)
}

// TestCompareUTF16_ShorterPrefixFirst verifies prefix ordering.
func TestCompareUTF16_ShorterPrefixFirst(t *testing.T) {
	assert.Equal(t, -1, compareUTF16("ab", "abc"))
	assert.Equal(t, 1, compareUTF16("abc", "ab"))
	assert.Equal(t, 0, compareUTF16("abc", "abc"))
}
