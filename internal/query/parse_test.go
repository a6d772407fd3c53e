package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droverhq/drover/internal/ir"
)

func TestParseFilter_SingleEquals(t *testing.T) {
	pred, err := ParseFilter([]string{"status=failed"})
	require.NoError(t, err)
	assert.Equal(t, Eq{Field: "status", Value: ir.String("failed")}, pred)
}

func TestParseFilter_ValueTyping(t *testing.T) {
	cases := []struct {
		expr string
		want Predicate
	}{
		{"attempts=3", Eq{Field: "attempts", Value: ir.Int(3)}},
		{"enabled=true", Eq{Field: "enabled", Value: ir.Bool(true)}},
		{"enabled=false", Eq{Field: "enabled", Value: ir.Bool(false)}},
		{"pipeline=daily-revenue", Eq{Field: "pipeline", Value: ir.String("daily-revenue")}},
	}
	for _, tc := range cases {
		pred, err := ParseFilter([]string{tc.expr})
		require.NoError(t, err, tc.expr)
		assert.Equal(t, tc.want, pred, tc.expr)
	}
}

func TestParseFilter_NotEquals(t *testing.T) {
	pred, err := ParseFilter([]string{"status!=succeeded"})
	require.NoError(t, err)
	assert.Equal(t, Ne{Field: "status", Value: ir.String("succeeded")}, pred)
}

func TestParseFilter_Ranges(t *testing.T) {
	pred, err := ParseFilter([]string{"stake_cents>500", "attempts<4"})
	require.NoError(t, err)
	assert.Equal(t, And{Predicates: []Predicate{
		Gt{Field: "stake_cents", Value: 500},
		Lt{Field: "attempts", Value: 4},
	}}, pred)
}

func TestParseFilter_RangeNeedsInteger(t *testing.T) {
	_, err := ParseFilter([]string{"stake_cents>lots"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs an integer")
}

func TestParseFilter_Since(t *testing.T) {
	pred, err := ParseFilter([]string{"since=1000"})
	require.NoError(t, err)
	assert.Equal(t, Since{Seq: 1000}, pred)

	_, err = ParseFilter([]string{"since=yesterday"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sequence number")
}

func TestParseFilter_Empty(t *testing.T) {
	pred, err := ParseFilter(nil)
	require.NoError(t, err)
	assert.Nil(t, pred)
}

func TestParseFilter_Malformed(t *testing.T) {
	for _, expr := range []string{"status", "=failed", "status=", "!=x"} {
		_, err := ParseFilter([]string{expr})
		assert.Error(t, err, expr)
	}
}
