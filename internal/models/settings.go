package models

// Orientation values accepted in ConversionSettings.
const (
	OrientationLandscape = "landscape"
	OrientationPortrait  = "portrait"
)

// ConversionSettings is the flat set of conversion flags a caller picks for
// a job. A job never mutates the caller's copy; derived values are computed
// on a copy per job.
type ConversionSettings struct {
	Orientation  string `json:"orientation"`
	ExtractPages bool   `json:"extractPages"`

	Overlap           bool `json:"overlap"`
	NoDither          bool `json:"noDither"`
	SplitAll          bool `json:"splitAll"`
	IncludeOverviews  bool `json:"includeOverviews"`
	SidewaysOverviews bool `json:"sidewaysOverviews"`
	PadBlack          bool `json:"padBlack"`

	SplitSpreads     string `json:"splitSpreads"`
	Skip             string `json:"skip"`
	Only             string `json:"only"`
	DontSplit        string `json:"dontSplit"`
	ContrastBoost    string `json:"contrastBoost"`
	Margin           string `json:"margin"`
	SelectOverviews  string `json:"selectOverviews"`
	SampleSet        string `json:"sampleSet"`
	Start            string `json:"start"`
	Stop             string `json:"stop"`
	HsplitCount      string `json:"hsplitCount"`
	HsplitOverlap    string `json:"hsplitOverlap"`
	HsplitMaxWidth   string `json:"hsplitMaxWidth"`
	VsplitTarget     string `json:"vsplitTarget"`
	VsplitMinOverlap string `json:"vsplitMinOverlap"`
}

// DefaultSettings returns the settings used when a caller sends none.
func DefaultSettings() ConversionSettings {
	return ConversionSettings{
		Overlap:       true,
		ContrastBoost: "4",
		Margin:        "0",
	}
}

// IsPortrait reports whether the settings imply no-split mode.
func (s ConversionSettings) IsPortrait() bool {
	return s.Orientation == OrientationPortrait
}

// IsLandscape reports whether a rotated cover must be prepended.
func (s ConversionSettings) IsLandscape() bool {
	return s.Orientation == OrientationLandscape
}
