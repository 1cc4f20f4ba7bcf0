package converter

import (
	"strconv"
	"strings"

	"github.com/vrsandeep/inkbridge/internal/models"
)

// Flags maps conversion settings to converter command line flags. Boolean
// settings become bare flags; valued settings are emitted as flag/value
// pairs only when valid for their field. --clean always comes last.
func Flags(s models.ConversionSettings) []string {
	var args []string

	boolFlag := func(on bool, flag string) {
		if on {
			args = append(args, flag)
		}
	}
	textFlag := func(value, flag string) {
		if v := strings.TrimSpace(value); v != "" {
			args = append(args, flag, v)
		}
	}
	intFlag := func(value, flag string) {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && n > 0 {
			args = append(args, flag, strconv.Itoa(n))
		}
	}
	numberFlag := func(value, flag string, allowZero bool) {
		v := strings.TrimSpace(value)
		n, err := strconv.ParseFloat(v, 64)
		if err != nil || n < 0 || (n == 0 && !allowZero) {
			return
		}
		args = append(args, flag, v)
	}

	boolFlag(s.Overlap, "--overlap")
	boolFlag(s.SplitAll, "--split-all")
	textFlag(s.SplitSpreads, "--split-spreads")
	textFlag(s.Skip, "--skip")
	textFlag(s.Only, "--only")
	textFlag(s.DontSplit, "--dont-split")
	boolFlag(s.NoDither, "--no-dither")
	numberFlag(s.ContrastBoost, "--contrast-boost", true)
	numberFlag(s.Margin, "--margin", true)
	boolFlag(s.IncludeOverviews, "--include-overviews")
	boolFlag(s.SidewaysOverviews, "--sideways-overviews")
	textFlag(s.SelectOverviews, "--select-overviews")
	textFlag(s.SampleSet, "--sample-set")
	intFlag(s.Start, "--start")
	intFlag(s.Stop, "--stop")
	boolFlag(s.PadBlack, "--pad-black")
	intFlag(s.HsplitCount, "--hsplit-count")
	numberFlag(s.HsplitOverlap, "--hsplit-overlap", false)
	intFlag(s.HsplitMaxWidth, "--hsplit-max-width")
	intFlag(s.VsplitTarget, "--vsplit-target")
	numberFlag(s.VsplitMinOverlap, "--vsplit-min-overlap", false)

	return append(args, "--clean")
}
