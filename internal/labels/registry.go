// Package labels maps classifier output indices to condition names.
package labels

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Size is the number of classes the classifier produces.
const Size = 6

// NormalLabel is the "no finding" class in the default label set.
const NormalLabel = "Unknown_Normal"

var defaultLabels = [Size]string{
	"Eczema",
	"Psoriasis",
	"Skin Cancer",
	"Tinea",
	NormalLabel,
	"Vitiligo",
}

// Set is an immutable, index-addressable list of labels.
type Set struct {
	labels [Size]string
}

// Default returns the compiled-in label set.
func Default() Set {
	return Set{labels: defaultLabels}
}

// Load reads a newline-delimited label file. The file is accepted only when it
// holds exactly Size non-blank lines; otherwise the default set is returned
// along with an error describing why the file was ignored.
func Load(path string) (Set, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Default(), fmt.Errorf("read labels %s: %w", path, err)
	}
	set, err := Parse(data)
	if err != nil {
		return Default(), fmt.Errorf("labels %s: %w", path, err)
	}
	return set, nil
}

// Parse builds a Set from newline-delimited label text.
func Parse(data []byte) (Set, error) {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return Set{}, err
	}
	if len(lines) != Size {
		return Set{}, fmt.Errorf("expected %d labels, found %d", Size, len(lines))
	}

	var s Set
	seen := make(map[string]struct{}, Size)
	for i, l := range lines {
		if _, dup := seen[l]; dup {
			return Set{}, fmt.Errorf("duplicate label %q", l)
		}
		seen[l] = struct{}{}
		s.labels[i] = l
	}
	return s, nil
}

// LabelFor returns the label at index i, or "L<i>" when i is out of range.
func (s Set) LabelFor(i int) string {
	if i < 0 || i >= Size || s.labels[i] == "" {
		return "L" + strconv.Itoa(i)
	}
	return s.labels[i]
}

// Index returns the position of label, or -1.
func (s Set) Index(label string) int {
	for i, l := range s.labels {
		if l == label {
			return i
		}
	}
	return -1
}

// Labels returns a copy of the labels in index order.
func (s Set) Labels() []string {
	out := make([]string, Size)
	copy(out, s.labels[:])
	return out
}

// Len is always Size.
func (s Set) Len() int { return Size }
