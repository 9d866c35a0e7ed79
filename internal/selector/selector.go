// Package selector narrows the candidate stations of a job to the set that
// gets fanned out. Pure and deterministic: the same candidate list and filter
// always yield the same subset in the same order.
package selector

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/banguyen/weathercards/internal/domain"
)

// ErrNoMatches is returned in strict mode when the locality filter matches
// nothing even after the substring pass.
var ErrNoMatches = errors.New("no stations matched the locality filter")

// Options configure one selection run.
type Options struct {
	// CityFilter is the user-supplied locality filter, may be empty.
	CityFilter string
	// RequestedMax is the client's requested item count.
	RequestedMax int
	// HardCap is the server-side ceiling protecting the rate-limited image
	// provider, independent of what the client asked for.
	HardCap int
	// FallbackCap bounds the unfiltered fallback when the filter matches
	// nothing and strict mode is off.
	FallbackCap int
	// Strict fails the selection instead of falling back.
	Strict bool
}

// stripMarks removes combining marks after NFD decomposition, so "Curaçao"
// and "Curacao" compare equal.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize folds a locality string for comparison: diacritics, punctuation,
// whitespace and case are all ignored.
func Normalize(s string) string {
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// Select applies the filter resolution order: exact region match, then
// substring match against region or name, then the capped fallback (or
// ErrNoMatches in strict mode). The result is truncated to
// min(RequestedMax, HardCap).
func Select(candidates []domain.Station, opts Options) ([]domain.Station, error) {
	filter := Normalize(opts.CityFilter)

	matched := candidates
	if filter != "" {
		matched = exactRegionMatches(candidates, filter)
		if len(matched) == 0 {
			matched = substringMatches(candidates, filter)
		}
		if len(matched) == 0 {
			if opts.Strict {
				return nil, ErrNoMatches
			}
			matched = take(candidates, opts.FallbackCap)
		}
	}

	limit := opts.RequestedMax
	if opts.HardCap > 0 && opts.HardCap < limit {
		limit = opts.HardCap
	}
	return take(matched, limit), nil
}

func exactRegionMatches(candidates []domain.Station, filter string) []domain.Station {
	var out []domain.Station
	for _, c := range candidates {
		if Normalize(c.Region) == filter {
			out = append(out, c)
		}
	}
	return out
}

func substringMatches(candidates []domain.Station, filter string) []domain.Station {
	var out []domain.Station
	for _, c := range candidates {
		if strings.Contains(Normalize(c.Region), filter) || strings.Contains(Normalize(c.Name), filter) {
			out = append(out, c)
		}
	}
	return out
}

// take is a stable prefix; no sampling, so selection order follows the feed.
func take(candidates []domain.Station, n int) []domain.Station {
	if n < 0 {
		n = 0
	}
	if n > len(candidates) {
		n = len(candidates)
	}
	return candidates[:n]
}
