package sqlstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredicate(t *testing.T) {
	var p predicate
	assert.Equal(t, "", p.where())

	p.and("a = ?", 1).and("b IN (?, ?)", "x", "y")
	assert.Equal(t, " WHERE a = ? AND b IN (?, ?)", p.where())
	assert.Equal(t, []interface{}{1, "x", "y"}, p.args)
}

func TestLikePattern(t *testing.T) {
	assert.Equal(t, "%beta%", likePattern("Beta"))
	assert.Equal(t, `%50\%\_off\\%`, likePattern(`50%_off\`))
}

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 3, 1, 12, 30, 0, 500, time.UTC)
	for _, v := range []interface{}{
		want,
		want.In(time.FixedZone("x", 3600)),
		"2024-03-01 12:30:00.0000005+00:00",
		[]byte("2024-03-01T13:30:00.0000005+01:00"),
	} {
		got, err := parseTime(v)
		require.NoError(t, err, "%v", v)
		assert.True(t, want.Equal(got), "%v parsed as %v", v, got)
		assert.Equal(t, time.UTC, got.Location())
	}

	_, err := parseTime(42)
	assert.Error(t, err)
	_, err = parseTime("yesterday")
	assert.Error(t, err)

	var n nullTime
	require.NoError(t, n.Scan(nil))
	assert.Nil(t, n.Ptr())
}
