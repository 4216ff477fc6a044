// Package advisory picks the user-facing caution message for an outcome.
package advisory

import (
	"github.com/example/skinai/internal/decision"
	"github.com/example/skinai/internal/preprocess"
)

// Codes understood by the mobile client.
const (
	CodeBadImage        = "BAD_IMAGE"
	CodeLowImageQuality = "LOW_IMAGE_QUALITY"
	CodeUncertainResult = "UNCERTAIN_RESULT"
	CodeOKResult        = "OK_RESULT"
)

const (
	textBadImage  = "Image is too small/unclear. Please upload a clearer photo (avoid WhatsApp compressed images)."
	textLowImage  = "Low image quality. For better accuracy: use good lighting and zoom so the lesion fills most of the frame."
	textUncertain = "Result is uncertain. Please take a clearer photo or consult a dermatologist."
	textOK        = "This result is for guidance only and is not a final medical diagnosis."
)

// Advisory is a fixed message with optional dimension parameters.
type Advisory struct {
	Code  string `json:"code"`
	Text  string `json:"en"`
	MinW  int    `json:"min_w,omitempty"`
	MinH  int    `json:"min_h,omitempty"`
	WarnW int    `json:"warn_w,omitempty"`
	WarnH int    `json:"warn_h,omitempty"`
}

// Composer parameterizes messages with the active quality policy.
type Composer struct {
	Quality preprocess.QualityPolicy
}

// Compose returns exactly one advisory per (status, tier). bad_image wins over
// everything, then the low-quality warning, then uncertainty.
func (c Composer) Compose(status decision.Status, tier preprocess.Tier) Advisory {
	if status == decision.StatusBadImage {
		return Advisory{Code: CodeBadImage, Text: textBadImage, MinW: c.Quality.MinWidth, MinH: c.Quality.MinHeight}
	}

	lowQuality := tier == preprocess.TierLow || status == decision.StatusLowQuality
	switch status {
	case decision.StatusOK, decision.StatusUncertain, decision.StatusLowQuality:
		if lowQuality {
			return Advisory{Code: CodeLowImageQuality, Text: textLowImage, WarnW: c.Quality.WarnWidth, WarnH: c.Quality.WarnHeight}
		}
	}

	if status == decision.StatusUncertain {
		return Advisory{Code: CodeUncertainResult, Text: textUncertain}
	}
	return Advisory{Code: CodeOKResult, Text: textOK}
}
