package converter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vrsandeep/inkbridge/internal/models"
)

func TestFlags_Defaults(t *testing.T) {
	assert.Equal(t,
		[]string{"--overlap", "--contrast-boost", "4", "--margin", "0", "--clean"},
		Flags(models.DefaultSettings()))
}

func TestFlags_EmptySettings(t *testing.T) {
	assert.Equal(t, []string{"--clean"}, Flags(models.ConversionSettings{}))
}

func TestFlags_AllFields(t *testing.T) {
	s := models.ConversionSettings{
		Overlap:           true,
		NoDither:          true,
		SplitAll:          true,
		IncludeOverviews:  true,
		SidewaysOverviews: true,
		PadBlack:          true,
		SplitSpreads:      "3,5",
		Skip:              "1",
		Only:              "2-9",
		DontSplit:         "1,3,5",
		ContrastBoost:     "2",
		Margin:            "5",
		SelectOverviews:   "4",
		SampleSet:         "a",
		Start:             "2",
		Stop:              "8",
		HsplitCount:       "3",
		HsplitOverlap:     "12.5",
		HsplitMaxWidth:    "800",
		VsplitTarget:      "1200",
		VsplitMinOverlap:  "10",
	}
	assert.Equal(t, []string{
		"--overlap",
		"--split-all",
		"--split-spreads", "3,5",
		"--skip", "1",
		"--only", "2-9",
		"--dont-split", "1,3,5",
		"--no-dither",
		"--contrast-boost", "2",
		"--margin", "5",
		"--include-overviews",
		"--sideways-overviews",
		"--select-overviews", "4",
		"--sample-set", "a",
		"--start", "2",
		"--stop", "8",
		"--pad-black",
		"--hsplit-count", "3",
		"--hsplit-overlap", "12.5",
		"--hsplit-max-width", "800",
		"--vsplit-target", "1200",
		"--vsplit-min-overlap", "10",
		"--clean",
	}, Flags(s))
}

func TestFlags_InvalidValuesOmitted(t *testing.T) {
	s := models.ConversionSettings{
		Skip:             "   ",
		ContrastBoost:    "strong",
		Margin:           "-1",
		Start:            "0",
		Stop:             "-3",
		HsplitCount:      "1.5",
		HsplitOverlap:    "0",
		HsplitMaxWidth:   "wide",
		VsplitTarget:     "",
		VsplitMinOverlap: "-2",
	}
	assert.Equal(t, []string{"--clean"}, Flags(s))
}

func TestFlags_CleanIsLast(t *testing.T) {
	s := models.DefaultSettings()
	s.PadBlack = true
	s.VsplitTarget = "900"
	flags := Flags(s)
	assert.Equal(t, "--clean", flags[len(flags)-1])
}
