package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmorozov/tabreaper/pkg/models"
)

var now = time.UnixMilli(1_700_000_000_000)

// accessedAgo returns a last-access instant the given number of milliseconds
// before now.
func accessedAgo(ms int64) *int64 {
	instant := now.UnixMilli() - ms
	return &instant
}

func TestDecidePinnedAlwaysKept(t *testing.T) {
	t.Parallel()

	tab := models.Tab{ID: 1, URL: "https://other.com", Pinned: true}
	cfg := Config{ThresholdMinutes: 60}

	verdict, err := Decide(tab, accessedAgo(999*60_000), cfg, now)
	require.NoError(t, err)
	assert.Equal(t, models.VerdictKeep, verdict.Kind)
}

func TestDecideAbsentAccessKept(t *testing.T) {
	t.Parallel()

	tab := models.Tab{ID: 1, URL: "https://other.com"}
	cfg := Config{ThresholdMinutes: 60}

	verdict, err := Decide(tab, nil, cfg, now)
	require.NoError(t, err)
	assert.Equal(t, models.VerdictKeep, verdict.Kind)
}

func TestDecideHostFallbackVariant(t *testing.T) {
	t.Parallel()

	hostInstant := now.UnixMilli() - 120*60_000
	tab := models.Tab{ID: 1, URL: "https://other.com", LastAccessed: &hostInstant}

	// Conservative default: no ledger entry means keep, even when the host
	// reports an ancient instant.
	verdict, err := Decide(tab, nil, Config{ThresholdMinutes: 60}, now)
	require.NoError(t, err)
	assert.Equal(t, models.VerdictKeep, verdict.Kind)

	// The fallback variant trusts the host instant instead.
	verdict, err = Decide(tab, nil, Config{ThresholdMinutes: 60, UseHostFallback: true}, now)
	require.NoError(t, err)
	assert.Equal(t, models.VerdictClose, verdict.Kind)
}

func TestDecideMalformedURLFailsOpen(t *testing.T) {
	t.Parallel()

	tab := models.Tab{ID: 7, URL: "http://bad host/page"}
	cfg := Config{ThresholdMinutes: 60}

	verdict, err := Decide(tab, accessedAgo(999*60_000), cfg, now)
	require.Error(t, err)
	assert.Equal(t, models.VerdictKeep, verdict.Kind)
}

func TestDecideWhitelistBeatsAge(t *testing.T) {
	t.Parallel()

	cfg := Config{ThresholdMinutes: 30, Whitelist: []string{"example.com"}}

	tab := models.Tab{ID: 1, URL: "https://example.com/x"}
	verdict, err := Decide(tab, accessedAgo(40*60_000), cfg, now)
	require.NoError(t, err)
	assert.Equal(t, models.VerdictKeep, verdict.Kind)

	// Whitelist matching is hostname-exact and case-insensitive.
	tab.URL = "https://EXAMPLE.com/y"
	verdict, err = Decide(tab, accessedAgo(40*60_000), cfg, now)
	require.NoError(t, err)
	assert.Equal(t, models.VerdictKeep, verdict.Kind)

	tab.URL = "https://sub.example.com/z"
	verdict, err = Decide(tab, accessedAgo(40*60_000), cfg, now)
	require.NoError(t, err)
	assert.Equal(t, models.VerdictClose, verdict.Kind, "subdomains are not whitelisted")
}

func TestDecideThresholdBoundary(t *testing.T) {
	t.Parallel()

	cfg := Config{ThresholdMinutes: 60}
	tab := models.Tab{ID: 1, URL: "https://other.com"}

	// Exactly at the threshold closes.
	verdict, err := Decide(tab, accessedAgo(3_600_000), cfg, now)
	require.NoError(t, err)
	assert.Equal(t, models.VerdictClose, verdict.Kind)

	// One millisecond short warns (59 elapsed minutes, 1 remaining).
	verdict, err = Decide(tab, accessedAgo(3_599_999), cfg, now)
	require.NoError(t, err)
	assert.Equal(t, models.VerdictWarn, verdict.Kind)
	assert.Equal(t, 1, verdict.MinutesLeft)
}

func TestDecideVerdictTable(t *testing.T) {
	t.Parallel()

	cfg := Config{ThresholdMinutes: 30, Whitelist: []string{"example.com"}}

	tests := []struct {
		name        string
		tab         models.Tab
		accessedAgo int64
		want        models.VerdictKind
		minutesLeft int
	}{
		{
			name:        "whitelisted past threshold",
			tab:         models.Tab{ID: 1, URL: "https://example.com/x"},
			accessedAgo: 40 * 60_000,
			want:        models.VerdictKeep,
		},
		{
			name:        "past threshold",
			tab:         models.Tab{ID: 2, URL: "https://other.com"},
			accessedAgo: 40 * 60_000,
			want:        models.VerdictClose,
		},
		{
			name:        "inside warn window",
			tab:         models.Tab{ID: 3, URL: "https://other.com"},
			accessedAgo: 27 * 60_000,
			want:        models.VerdictWarn,
			minutesLeft: 3,
		},
		{
			name:        "pinned far past threshold",
			tab:         models.Tab{ID: 4, URL: "https://other.com", Pinned: true},
			accessedAgo: 999 * 60_000,
			want:        models.VerdictKeep,
		},
		{
			name:        "recently active",
			tab:         models.Tab{ID: 5, URL: "https://other.com"},
			accessedAgo: 60_000,
			want:        models.VerdictKeep,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			verdict, err := Decide(tt.tab, accessedAgo(tt.accessedAgo), cfg, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, verdict.Kind)
			if tt.want == models.VerdictWarn {
				assert.Equal(t, tt.minutesLeft, verdict.MinutesLeft)
			}
		})
	}
}

func TestDecideSchemeOnlyURLSkipsWhitelist(t *testing.T) {
	t.Parallel()

	// about:blank has no hostname; it can't match the whitelist but must not
	// error either.
	tab := models.Tab{ID: 1, URL: "about:blank"}
	cfg := Config{ThresholdMinutes: 30, Whitelist: []string{"example.com"}}

	verdict, err := Decide(tab, accessedAgo(40*60_000), cfg, now)
	require.NoError(t, err)
	assert.Equal(t, models.VerdictClose, verdict.Kind)
}
