// Package preprocess turns uploaded photos into classifier input tensors.
package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/webp"
)

const (
	// InputSize is the square edge the classifier expects.
	InputSize = 380
	// Channels is always RGB.
	Channels = 3
)

var (
	// ErrBadImage reports an image below the minimum accepted dimensions.
	ErrBadImage = errors.New("bad image")
	// ErrDecode reports bytes that could not be decoded as an image.
	ErrDecode = errors.New("decode image")
)

// BadImageError carries the rejected dimensions.
type BadImageError struct {
	Width  int
	Height int
}

func (e *BadImageError) Error() string {
	return fmt.Sprintf("bad_image: image too small (%dx%d)", e.Width, e.Height)
}

// Is makes errors.Is(err, ErrBadImage) match.
func (e *BadImageError) Is(target error) bool {
	return target == ErrBadImage
}

// Tensor is a single-image NHWC float batch.
type Tensor struct {
	Shape [4]int
	Data  []float32
}

// NewTensor allocates a zeroed (1, height, width, 3) tensor.
func NewTensor(width, height int) Tensor {
	return Tensor{
		Shape: [4]int{1, height, width, Channels},
		Data:  make([]float32, width*height*Channels),
	}
}

// InputTransform applies the model family's input normalization in place on
// raw 0..255 RGB values.
type InputTransform func(data []float32)

// EfficientNetTransform mirrors keras efficientnet.preprocess_input, which is
// a pass-through because the network rescales internally.
func EfficientNetTransform(data []float32) {}

// Normalized is the result of a successful Normalize call.
type Normalized struct {
	Tensor Tensor
	Width  int
	Height int
	Tier   Tier
}

// Normalizer converts arbitrary photos into fixed-size classifier input.
type Normalizer struct {
	Quality   QualityPolicy
	Size      int
	Transform InputTransform
}

// NewNormalizer returns a Normalizer for the default input size.
func NewNormalizer(policy QualityPolicy) *Normalizer {
	return &Normalizer{Quality: policy, Size: InputSize, Transform: EfficientNetTransform}
}

// Normalize decodes raw, corrects EXIF orientation, grades it and produces the
// classifier tensor. Undersized images fail with a *BadImageError.
func (n *Normalizer) Normalize(raw []byte) (*Normalized, error) {
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	tier := n.Quality.Tier(w, h)
	if tier == TierBad {
		return nil, &BadImageError{Width: w, Height: h}
	}

	size := n.Size
	if size <= 0 {
		size = InputSize
	}
	cropped := ResizeThenCenterCrop(img, size, size)

	tensor := toTensor(cropped)
	if n.Transform != nil {
		n.Transform(tensor.Data)
	}
	return &Normalized{Tensor: tensor, Width: w, Height: h, Tier: tier}, nil
}

// ResizeThenCenterCrop scales img uniformly so that it covers a
// targetW x targetH window, then crops that window from the center.
func ResizeThenCenterCrop(img image.Image, targetW, targetH int) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	scale := math.Max(float64(targetW)/float64(w), float64(targetH)/float64(h))
	nw := max(int(float64(w)*scale), targetW)
	nh := max(int(float64(h)*scale), targetH)

	resized := resize.Resize(uint(nw), uint(nh), img, resize.Bilinear)

	left := (nw - targetW) / 2
	top := (nh - targetH) / 2
	rb := resized.Bounds()
	window := image.Rect(left, top, left+targetW, top+targetH).Add(rb.Min)
	return imaging.Crop(resized, window)
}

func toTensor(img *image.NRGBA) Tensor {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	t := NewTensor(w, h)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			dst := (y*w + x) * Channels
			t.Data[dst] = float32(row[x*4])
			t.Data[dst+1] = float32(row[x*4+1])
			t.Data[dst+2] = float32(row[x*4+2])
		}
	}
	return t
}
