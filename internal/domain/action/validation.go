package action

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Correction flags which automatic fixes Normalize applied.
type Correction uint8

const (
	CorrectedSwappedDates Correction = 1 << iota
	CorrectedInstantEnd
	CorrectedBottleVolume
	CorrectedLocation
)

// String renders the applied corrections for log output.
func (c Correction) String() string {
	if c == 0 {
		return "none"
	}
	var parts []string
	if c&CorrectedSwappedDates != 0 {
		parts = append(parts, "swapped_dates")
	}
	if c&CorrectedInstantEnd != 0 {
		parts = append(parts, "instant_end")
	}
	if c&CorrectedBottleVolume != 0 {
		parts = append(parts, "bottle_volume")
	}
	if c&CorrectedLocation != 0 {
		parts = append(parts, "location")
	}
	return strings.Join(parts, ",")
}

// maxBottleVolume caps bottle volume in millilitres.
const maxBottleVolume = 2000

// WithValidatedDates returns a corrected copy of s. Inverted ranges are
// swapped and instant actions always end at their start. Out of range bottle
// volumes and coordinates are dropped. ID and UpdatedAt are never touched.
func (s Snapshot) WithValidatedDates() Snapshot {
	out, _ := s.Normalize()
	return out
}

// Normalize is WithValidatedDates that also reports what it corrected.
func (s Snapshot) Normalize() (Snapshot, Correction) {
	out := s.Clone()
	var fixed Correction

	if out.EndDate != nil && out.EndDate.Before(out.StartDate) {
		start, end := *out.EndDate, out.StartDate
		out.StartDate = start
		out.EndDate = &end
		fixed |= CorrectedSwappedDates
	}
	// instant actions are pinned to their start
	if out.Category.IsInstant() && (out.EndDate == nil || !out.EndDate.Equal(out.StartDate)) {
		end := out.StartDate
		out.EndDate = &end
		fixed |= CorrectedInstantEnd
	}

	if out.BottleVolume != nil && (*out.BottleVolume < 0 || *out.BottleVolume > maxBottleVolume) {
		out.BottleVolume = nil
		fixed |= CorrectedBottleVolume
	}

	if out.Location != nil {
		loc := out.Location
		if loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180 {
			out.Location = nil
			fixed |= CorrectedLocation
		} else {
			loc.PlaceName = norm.NFC.String(strings.TrimSpace(loc.PlaceName))
		}
	}

	return out, fixed
}
