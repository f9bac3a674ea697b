package idx_test

import (
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/petauth/pkg/idx"
	"github.com/stretchr/testify/require"
)

func TestNewAndParse(t *testing.T) {
	id := idx.New()
	require.False(t, id.IsZero())

	parsed, err := idx.Parse(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	_, err = idx.Parse("not-a-ulid")
	require.ErrorIs(t, err, idx.ErrInvalid)
}

func TestOrdering(t *testing.T) {
	a := idx.NewAt(time.Unix(1, 0).UTC())
	b := idx.NewAt(time.Unix(2, 0).UTC())
	require.Less(t, a.String(), b.String())
}

func TestTimeExtraction(t *testing.T) {
	tm := time.Unix(1700000000, 0).UTC()
	require.WithinDuration(t, tm, idx.NewAt(tm).Time(), time.Millisecond)
	require.True(t, idx.ID("garbage").Time().IsZero())
}

func TestRequestID(t *testing.T) {
	require.Equal(t, "abc-123", idx.RequestID("abc-123"))

	for _, bad := range []string{"", "has space", "line\nbreak", strings.Repeat("x", idx.MaxRequestIDLen+1)} {
		got := idx.RequestID(bad)
		_, err := idx.Parse(got)
		require.NoError(t, err, "%q should be replaced with a fresh id", bad)
	}
}
