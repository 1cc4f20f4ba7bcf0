package resolver

import (
	"slices"
	"strconv"
	"strings"

	"github.com/vrsandeep/inkbridge/internal/models"
)

// State carries per-job resolution decisions that must survive repeated
// resolution attempts for the same job.
type State struct {
	CoverShifted bool
	// ShiftedDontSplit is the page list produced by the one cover shift.
	ShiftedDontSplit string
	// PortraitOverride records that a caller supplied page selection was
	// replaced by the full page range.
	PortraitOverride bool
}

// ResolveSettings derives the per-job settings from the caller's copy.
// settings is passed by value and never modified for the caller.
//
// Portrait orientation switches to no-split mode: every page 1..pageCount
// is listed in dontSplit, overlap is off and overviews are turned sideways.
// Landscape orientation prepends a rotated cover, so every dontSplit index
// moves up by one and page 1 (the cover) is added. The shift is applied at
// most once per state.
func ResolveSettings(settings models.ConversionSettings, pageCount int, state *State) models.ConversionSettings {
	if state == nil {
		state = &State{}
	}
	s := settings

	switch {
	case s.IsPortrait():
		if pageCount > 0 {
			if strings.TrimSpace(s.DontSplit) != "" {
				state.PortraitOverride = true
			}
			s.DontSplit = pageRange(pageCount)
		}
		s.Overlap = false
		s.SidewaysOverviews = true
	case s.IsLandscape():
		if !state.CoverShifted {
			state.ShiftedDontSplit = shiftForCover(s.DontSplit)
			state.CoverShifted = true
		}
		s.DontSplit = state.ShiftedDontSplit
	}
	return s
}

func pageRange(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = strconv.Itoa(i + 1)
	}
	return strings.Join(parts, ",")
}

// maxRangeSpan bounds how many pages a single "a-b" entry may expand to.
const maxRangeSpan = 10000

// shiftForCover moves every page index in a comma separated list up by one
// and adds page 1. Ranges ("3-5") are expanded; entries that are not
// positive integers are dropped.
func shiftForCover(list string) string {
	pages := []int{1}
	for _, part := range strings.Split(list, ",") {
		for _, n := range parsePages(strings.TrimSpace(part)) {
			pages = append(pages, n+1)
		}
	}
	slices.Sort(pages)
	pages = slices.Compact(pages)

	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}

func parsePages(part string) []int {
	if from, to, ok := strings.Cut(part, "-"); ok {
		a, errA := strconv.Atoi(strings.TrimSpace(from))
		b, errB := strconv.Atoi(strings.TrimSpace(to))
		if errA != nil || errB != nil || a < 1 || b < a || b-a > maxRangeSpan {
			return nil
		}
		out := make([]int, 0, b-a+1)
		for n := a; n <= b; n++ {
			out = append(out, n)
		}
		return out
	}
	n, err := strconv.Atoi(part)
	if err != nil || n < 1 {
		return nil
	}
	return []int{n}
}
