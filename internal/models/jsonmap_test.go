package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONMap_RoundTrip(t *testing.T) {
	m := JSONMap{"lat": 48.1486, "accuracy": float64(12), "tags": []interface{}{"gps"}}

	val, err := m.Value()
	require.NoError(t, err)

	var out JSONMap
	require.NoError(t, out.Scan(val))

	assert.Equal(t, 48.1486, out["lat"])
	assert.Equal(t, float64(12), out["accuracy"])
}

func TestJSONMap_ScanString(t *testing.T) {
	var m JSONMap
	require.NoError(t, m.Scan(`{"level":75}`))
	assert.Equal(t, float64(75), m["level"])
}

func TestJSONMap_ScanNil(t *testing.T) {
	m := JSONMap{"stale": true}
	require.NoError(t, m.Scan(nil))
	assert.Nil(t, m)
}

func TestJSONMap_ScanUnsupportedType(t *testing.T) {
	var m JSONMap
	assert.Error(t, m.Scan(42))
}

func TestJSONMap_NilValueIsEmptyObject(t *testing.T) {
	var m JSONMap
	val, err := m.Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), val)
}
