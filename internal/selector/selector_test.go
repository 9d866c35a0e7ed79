package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banguyen/weathercards/internal/domain"
)

func stations(names ...string) []domain.Station {
	out := make([]domain.Station, len(names))
	for i, n := range names {
		out[i] = domain.Station{ID: n, Name: n}
	}
	return out
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase passthrough", "utrecht", "utrecht"},
		{"case folded", "Utrecht", "utrecht"},
		{"diacritics stripped", "Curaçao", "curacao"},
		{"punctuation and spaces dropped", "Noord-Holland ", "noordholland"},
		{"digits kept", "Zone 51", "zone51"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestSelect_ExactRegionBeatsSubstring(t *testing.T) {
	candidates := []domain.Station{
		{ID: "1", Name: "Meetstation De Bilt", Region: "Utrecht"},
		{ID: "2", Name: "Meetstation Utrechtse Heuvelrug", Region: "Gelderland"},
	}

	got, err := Select(candidates, Options{CityFilter: "Utrecht", RequestedMax: 10, HardCap: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)
}

func TestSelect_SubstringFallsBackAcrossRegionAndName(t *testing.T) {
	candidates := []domain.Station{
		{ID: "1", Name: "Meetstation A", Region: "Noord-Holland"},
		{ID: "2", Name: "Meetstation B", Region: "Zuid-Holland"},
		{ID: "3", Name: "Meetstation C", Region: "Friesland"},
	}

	// No exact region "Holland" exists, so both Holland regions match by
	// substring, preserving feed order.
	got, err := Select(candidates, Options{CityFilter: "Holland", RequestedMax: 10, HardCap: 10})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "2", got[1].ID)
}

func TestSelect_NameSubstringMatch(t *testing.T) {
	candidates := []domain.Station{
		{ID: "1", Name: "Meetstation Gilze-Rijen", Region: "Noord-Brabant"},
		{ID: "2", Name: "Meetstation Eindhoven", Region: "Noord-Brabant"},
	}

	got, err := Select(candidates, Options{CityFilter: "Eindhoven", RequestedMax: 5, HardCap: 5})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].ID)
}

func TestSelect_FallbackWhenNothingMatches(t *testing.T) {
	candidates := stations("a", "b", "c", "d", "e")

	got, err := Select(candidates, Options{
		CityFilter:   "Atlantis",
		RequestedMax: 10,
		HardCap:      10,
		FallbackCap:  3,
	})
	require.NoError(t, err)
	assert.Equal(t, stations("a", "b", "c"), got)
}

func TestSelect_StrictModeFailsOnNoMatches(t *testing.T) {
	candidates := stations("a", "b")

	_, err := Select(candidates, Options{
		CityFilter:   "Atlantis",
		RequestedMax: 10,
		HardCap:      10,
		FallbackCap:  3,
		Strict:       true,
	})
	assert.ErrorIs(t, err, ErrNoMatches)
}

func TestSelect_CapsApply(t *testing.T) {
	candidates := stations("a", "b", "c", "d", "e", "f")

	tests := []struct {
		name    string
		opts    Options
		wantLen int
	}{
		{"requested max wins", Options{RequestedMax: 2, HardCap: 10}, 2},
		{"hard cap wins", Options{RequestedMax: 10, HardCap: 4}, 4},
		{"available wins", Options{RequestedMax: 100, HardCap: 100}, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Select(candidates, tt.opts)
			require.NoError(t, err)
			assert.Len(t, got, tt.wantLen)
		})
	}
}

func TestSelect_Deterministic(t *testing.T) {
	candidates := []domain.Station{
		{ID: "1", Region: "Noord-Holland"},
		{ID: "2", Region: "Zuid-Holland"},
		{ID: "3", Region: "Utrecht"},
	}
	opts := Options{CityFilter: "Holland", RequestedMax: 10, HardCap: 10}

	first, err := Select(candidates, opts)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Select(candidates, opts)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSelect_EmptyFilterTakesPrefix(t *testing.T) {
	candidates := stations("a", "b", "c")

	got, err := Select(candidates, Options{RequestedMax: 2, HardCap: 10})
	require.NoError(t, err)
	assert.Equal(t, stations("a", "b"), got)
}
