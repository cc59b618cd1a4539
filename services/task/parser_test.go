package task

import (
	"testing"

	"contaminer/pkg/errutil"

	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	l, err := ParseLine("P0ACJ8_1_P 21 21 21:0.45-95:1h 2m 3s\n")
	require.NoError(t, err)
	require.Equal(t, Line{
		UniprotID:      "P0ACJ8",
		PackNumber:     1,
		SpaceGroup:     "P 21 21 21",
		ElapsedSeconds: 3723,
		Scores:         "0.45-95",
		Outcome:        OutcomeScored,
		QFactor:        0.45,
		Percent:        95,
	}, l)
	require.Equal(t, "P0ACJ8_1_P-21-21-21", l.Label())
}

func TestParseLineOutcomes(t *testing.T) {
	for token, want := range map[string]Outcome{
		"error":      OutcomeError,
		"nosolution": OutcomeNoSolution,
		"cancelled":  OutcomeCancelled,
	} {
		l, err := ParseLine("P0ACJ8_2_C 1 2 1:" + token + ":0h 5m 0s")
		require.NoError(t, err)
		require.Equal(t, want, l.Outcome)
		require.Equal(t, 300, l.ElapsedSeconds)
	}
}

func TestParseLineElapsedFormula(t *testing.T) {
	cases := map[string]int{
		"0h 0m 0s":    0,
		"1h 2m 3s":    3723,
		"0h 65m 10s":  3910,
		"12h 0m 59s":  43259,
		"100h 59m 1s": 363541,
	}
	for elapsed, want := range cases {
		l, err := ParseLine("P0ACJ8_1_P 1:nosolution:" + elapsed)
		require.NoError(t, err)
		require.Equal(t, want, l.ElapsedSeconds, elapsed)
	}
}

func TestParseLineMalformed(t *testing.T) {
	for _, raw := range []string{
		"",
		"P0ACJ8_1_P 21 21 21:0.45-95",
		"P0ACJ8_1_P 21 21 21:0.45-95:0h 5m 0s:extra",
		"P0ACJ8-1-P 21:0.45-95:0h 5m 0s",
		"P0ACJ8_x_P 21:0.45-95:0h 5m 0s",
		"P0ACJ8_1_:0.45-95:0h 5m 0s",
		"P0ACJ8_1_P 21:unknown:0h 5m 0s",
		"P0ACJ8_1_P 21:abc-95:0h 5m 0s",
		"P0ACJ8_1_P 21:0.45-9x:0h 5m 0s",
		"P0ACJ8_1_P 21:0.45-150:0h 5m 0s",
		"P0ACJ8_1_P 21:0.45--1:0h 5m 0s",
		"P0ACJ8_1_P 21:0.45-95:5 minutes",
		"P0ACJ8_1_P 21:0.45-95:0h5m0s",
	} {
		_, err := ParseLine(raw)
		require.ErrorIs(t, err, errutil.ErrMalformedLine, raw)
	}
}

func TestParseLineRoundTrip(t *testing.T) {
	for _, raw := range []string{
		"P0ACJ8_1_P 21 21 21:0.450-95:0h 5m 0s",
		"P0AA25_12_C 1 2 1:0.3-0:2h 0m 1s",
		"P0ACJ8_3_P 1:error:0h 0m 7s",
		"Q8X6D1_1_P 43 21 2:nosolution:0h 61m 0s",
		"P0ACJ8_1_P 21 21 21:cancelled:0h 5m 0s",
	} {
		first, err := ParseLine(raw)
		require.NoError(t, err)

		second, err := ParseLine(first.String())
		require.NoError(t, err)

		first.Scores, second.Scores = "", ""
		require.Equal(t, first, second, raw)
	}
}

func TestParseResults(t *testing.T) {
	lines, err := ParseResults("P0ACJ8_1_P 1:nosolution:0h 1m 0s\n\n  \nP0ACJ8_2_P 1:0.5-50:0h 2m 0s\n")
	require.NoError(t, err)
	require.Len(t, lines, 2)

	_, err = ParseResults("P0ACJ8_1_P 1:nosolution:0h 1m 0s\ngarbage\nP0ACJ8_2_P 1:0.5-50:0h 2m 0s")
	require.ErrorIs(t, err, errutil.ErrMalformedLine)
}
