package preprocess

// Tier is a coarse image-quality bucket derived from pixel dimensions.
type Tier string

const (
	TierGood Tier = "good"
	TierLow  Tier = "low"
	TierBad  Tier = "bad"
)

// QualityPolicy holds the minimum and warning dimensions used to grade uploads.
type QualityPolicy struct {
	MinWidth   int `yaml:"min_width" json:"min_w"`
	MinHeight  int `yaml:"min_height" json:"min_h"`
	WarnWidth  int `yaml:"warn_width" json:"warn_w"`
	WarnHeight int `yaml:"warn_height" json:"warn_h"`
}

// DefaultQualityPolicy is tuned for photos taken on phone cameras.
func DefaultQualityPolicy() QualityPolicy {
	return QualityPolicy{MinWidth: 256, MinHeight: 256, WarnWidth: 600, WarnHeight: 600}
}

// Tier grades an image of the given size. Either axis below the minimum
// makes the image bad.
func (p QualityPolicy) Tier(width, height int) Tier {
	if width < p.MinWidth || height < p.MinHeight {
		return TierBad
	}
	if width < p.WarnWidth || height < p.WarnHeight {
		return TierLow
	}
	return TierGood
}
