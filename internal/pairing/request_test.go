package pairing

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		number string
		kind   ErrorKind
	}{
		{name: "missing", raw: "", kind: ErrorInvalidNumber},
		{name: "blank", raw: "   ", kind: ErrorInvalidFormat},
		{name: "too short", raw: "123", kind: ErrorInvalidFormat},
		{name: "letters only", raw: "abcdefghijkl", kind: ErrorInvalidFormat},
		{name: "formatted", raw: "+1 (555) 123-4567", number: "15551234567"},
		{name: "long", raw: "2348012345678", number: "2348012345678"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, err := ParseRequest(tc.raw)
			if tc.kind != "" {
				var reqErr *RequestError
				require.ErrorAs(t, err, &reqErr)
				require.Equal(t, tc.kind, reqErr.Kind)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.number, req.Number)
			require.Equal(t, tc.raw, req.RawNumber)
		})
	}
}

func TestNewSessionID(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	id := NewSessionID(now)
	require.Regexp(t, regexp.MustCompile(`^pair-1700000000123-[0-9a-f]{8}$`), id)
	require.NotEqual(t, id, NewSessionID(now))
}

func TestFallbackCode(t *testing.T) {
	require.Equal(t, "657008", FallbackCode("15551234567"))
	require.Equal(t, "236719", FallbackCode("2348012345678"))
	require.Equal(t, FallbackCode("15551234567"), FallbackCode("15551234567"))
}

func TestFallbackCodeRange(t *testing.T) {
	for _, n := range []string{"", "0", "99999999999", "12345678901234567890", "00000000000"} {
		code := FallbackCode(n)
		require.Len(t, code, 6, n)
		require.GreaterOrEqual(t, code, "100000")
		require.LessOrEqual(t, code, "999999")
	}
}
