package advisory

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/example/skinai/internal/decision"
	"github.com/example/skinai/internal/preprocess"
)

func TestComposePrecedence(t *testing.T) {
	c := Composer{Quality: preprocess.DefaultQualityPolicy()}
	tiers := []preprocess.Tier{preprocess.TierGood, preprocess.TierLow, preprocess.TierBad}

	cases := []struct {
		status decision.Status
		tier   preprocess.Tier
		want   string
	}{
		{decision.StatusOK, preprocess.TierGood, CodeOKResult},
		{decision.StatusUncertain, preprocess.TierGood, CodeUncertainResult},
		{decision.StatusOK, preprocess.TierLow, CodeLowImageQuality},
		{decision.StatusUncertain, preprocess.TierLow, CodeLowImageQuality},
		{decision.StatusLowQuality, preprocess.TierLow, CodeLowImageQuality},
		{decision.StatusLowQuality, preprocess.TierGood, CodeLowImageQuality},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, c.Compose(tc.status, tc.tier).Code, "%s/%s", tc.status, tc.tier)
	}

	for _, tier := range tiers {
		assert.Equal(t, CodeBadImage, c.Compose(decision.StatusBadImage, tier).Code, "tier %s", tier)
	}
}

func TestComposeParameters(t *testing.T) {
	c := Composer{Quality: preprocess.DefaultQualityPolicy()}

	bad := c.Compose(decision.StatusBadImage, preprocess.TierBad)
	assert.Equal(t, 256, bad.MinW)
	assert.Equal(t, 256, bad.MinH)
	assert.Zero(t, bad.WarnW)

	low := c.Compose(decision.StatusOK, preprocess.TierLow)
	assert.Equal(t, 600, low.WarnW)
	assert.Equal(t, 600, low.WarnH)
	assert.Zero(t, low.MinW)

	ok := c.Compose(decision.StatusOK, preprocess.TierGood)
	assert.Equal(t, Advisory{Code: CodeOKResult, Text: textOK}, ok)
}

func TestComposeTextsAreFixed(t *testing.T) {
	c := Composer{Quality: preprocess.DefaultQualityPolicy()}
	assert.Contains(t, c.Compose(decision.StatusUncertain, preprocess.TierGood).Text, "consult a dermatologist")
	assert.Contains(t, c.Compose(decision.StatusOK, preprocess.TierGood).Text, "not a final medical diagnosis")
}
