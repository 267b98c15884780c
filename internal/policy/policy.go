// Package policy decides, for a single tab, whether it should be kept,
// warned about, or closed. Decide is pure: all inputs arrive as arguments
// and the same inputs always produce the same verdict.
package policy

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kmorozov/tabreaper/pkg/models"
)

const (
	msPerMinute = 60_000

	// warnWindowMinutes is how close to the threshold a tab gets before the
	// verdict turns to WARN.
	warnWindowMinutes = 5
)

// Config carries the sweep-wide policy inputs.
type Config struct {
	ThresholdMinutes int
	Whitelist        []string

	// UseHostFallback makes tabs without a ledger entry fall back to the
	// host-provided last-access instant instead of always being kept.
	UseHostFallback bool
}

// Decide evaluates one tab. lastAccessed is the ledger entry for the tab, nil
// when the ledger has never seen it. A non-nil error reports a malformed tab
// URL; the verdict is still valid (KEEP) so a bad URL never aborts a sweep.
func Decide(tab models.Tab, lastAccessed *int64, cfg Config, now time.Time) (models.Verdict, error) {
	// Pinned tabs are permanently exempt.
	if tab.Pinned {
		return models.Verdict{Kind: models.VerdictKeep}, nil
	}

	accessed := lastAccessed
	if accessed == nil && cfg.UseHostFallback {
		accessed = tab.LastAccessed
	}

	// A tab with no recorded activity is never auto-closed.
	if accessed == nil {
		return models.Verdict{Kind: models.VerdictKeep}, nil
	}

	if tab.URL != "" {
		parsed, err := url.Parse(tab.URL)
		if err != nil {
			// Fail open: keep the tab and report the bad URL upward.
			return models.Verdict{Kind: models.VerdictKeep}, fmt.Errorf("parse tab %d url %q: %w", tab.ID, tab.URL, err)
		}
		if whitelisted(parsed.Hostname(), cfg.Whitelist) {
			return models.Verdict{Kind: models.VerdictKeep}, nil
		}
	}

	ageMs := now.UnixMilli() - *accessed
	if ageMs >= int64(cfg.ThresholdMinutes)*msPerMinute {
		return models.Verdict{Kind: models.VerdictClose}, nil
	}

	remaining := cfg.ThresholdMinutes - int(ageMs/msPerMinute)
	if remaining <= warnWindowMinutes {
		return models.Verdict{Kind: models.VerdictWarn, MinutesLeft: remaining}, nil
	}

	return models.Verdict{Kind: models.VerdictKeep}, nil
}

func whitelisted(hostname string, whitelist []string) bool {
	if hostname == "" {
		return false
	}
	hostname = strings.ToLower(hostname)
	for _, domain := range whitelist {
		if strings.ToLower(domain) == hostname {
			return true
		}
	}
	return false
}
