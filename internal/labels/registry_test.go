package labels

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLabels(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "labels.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAcceptsSixTrimmedLines(t *testing.T) {
	path := writeLabels(t, "  A \nB\n\nC\nD\n E\nF\n\n")

	set, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C", "D", "E", "F"}, set.Labels())
	assert.Equal(t, "E", set.LabelFor(4))
}

func TestLoadFallsBackToDefault(t *testing.T) {
	cases := map[string]string{
		"too few":   "A\nB\nC\n",
		"too many":  "A\nB\nC\nD\nE\nF\nG\n",
		"duplicate": "A\nA\nC\nD\nE\nF\n",
		"blank":     "\n \n\t\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			set, err := Load(writeLabels(t, content))
			assert.Error(t, err)
			assert.Equal(t, Default(), set)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	set, err := Load(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
	assert.Equal(t, Default().Labels(), set.Labels())
}

func TestLoadEmptyPathUsesDefaultSilently(t *testing.T) {
	set, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), set)
}

func TestDefaultOrder(t *testing.T) {
	assert.Equal(t,
		[]string{"Eczema", "Psoriasis", "Skin Cancer", "Tinea", "Unknown_Normal", "Vitiligo"},
		Default().Labels())
	assert.Equal(t, 4, Default().Index(NormalLabel))
	assert.Equal(t, -1, Default().Index("Acne"))
}

func TestLabelForOutOfRange(t *testing.T) {
	set := Default()
	assert.Equal(t, "L6", set.LabelFor(6))
	assert.Equal(t, "L-1", set.LabelFor(-1))
	assert.Equal(t, "L0", Set{}.LabelFor(0))
}
