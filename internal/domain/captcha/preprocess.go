// Package captcha turns challenge images into answer candidates by
// driving deterministic preprocessing variants through an OCR backend
// and voting on the distinct results.
package captcha

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sort"

	"golang.org/x/image/draw"

	"consulta-vehicular-go/internal/platform/errors"
)

// Mode selects how a challenge image is transformed before OCR.
type Mode string

const (
	ModeOriginal Mode = "original"
	ModeGray     Mode = "gray"
	ModeBinary   Mode = "binary"
)

const (
	upscaleFactor = 2
	clipFraction  = 0.01
)

// Preprocess renders one OCR-friendly variant of a PNG challenge image.
// ModeOriginal returns the input untouched. The other modes grayscale,
// autocontrast, upscale and median-filter the image; ModeBinary then
// thresholds it. A threshold of 0 means compute one with Otsu's method.
func Preprocess(pngBytes []byte, mode Mode, threshold int) ([]byte, error) {
	if mode == ModeOriginal {
		return pngBytes, nil
	}

	src, _, err := image.Decode(bytes.NewReader(pngBytes))
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, "captcha.preprocess", "decode challenge image", err)
	}

	gray := toGray(src)
	gray = autocontrast(gray, clipFraction)
	gray = upscale(gray, upscaleFactor)
	gray = medianFilter3(gray)

	if mode == ModeBinary {
		t := threshold
		if t <= 0 {
			t = OtsuThreshold(gray)
		}
		gray = binarize(gray, t)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, gray); err != nil {
		return nil, errors.Wrap(errors.KindInternal, "captcha.preprocess", "encode variant", err)
	}
	return buf.Bytes(), nil
}

// OtsuThreshold picks the grayscale threshold maximizing between-class
// variance. The result is clamped to [90,210] so low-contrast inputs
// never degenerate to all-black or all-white.
func OtsuThreshold(img *image.Gray) int {
	var hist [256]int
	b := img.Bounds()
	total := b.Dx() * b.Dy()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			hist[img.GrayAt(x, y).Y]++
		}
	}

	var sumAll float64
	for i, c := range hist {
		sumAll += float64(i) * float64(c)
	}

	best, bestVariance := 127, -1.0
	var wBelow, sumBelow float64
	for t := 0; t < 256; t++ {
		wBelow += float64(hist[t])
		if wBelow == 0 {
			continue
		}
		wAbove := float64(total) - wBelow
		if wAbove == 0 {
			break
		}
		sumBelow += float64(t) * float64(hist[t])
		meanBelow := sumBelow / wBelow
		meanAbove := (sumAll - sumBelow) / wAbove
		diff := meanBelow - meanAbove
		variance := wBelow * wAbove * diff * diff
		if variance > bestVariance {
			bestVariance = variance
			best = t
		}
	}

	if best < 90 {
		best = 90
	}
	if best > 210 {
		best = 210
	}
	return best
}

func toGray(src image.Image) *image.Gray {
	if g, ok := src.(*image.Gray); ok {
		return g
	}
	b := src.Bounds()
	gray := image.NewGray(b)
	draw.Draw(gray, b, src, b.Min, draw.Src)
	return gray
}

// autocontrast stretches the histogram after clipping the given fraction
// of the darkest and lightest pixels.
func autocontrast(img *image.Gray, clip float64) *image.Gray {
	b := img.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return img
	}

	var hist [256]int
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			hist[img.GrayAt(x, y).Y]++
		}
	}

	cut := int(float64(total) * clip)
	lo, hi := 0, 255
	for acc := 0; lo < 256; lo++ {
		acc += hist[lo]
		if acc > cut {
			break
		}
	}
	for acc := 0; hi >= 0; hi-- {
		acc += hist[hi]
		if acc > cut {
			break
		}
	}
	if hi <= lo {
		return img
	}

	out := image.NewGray(b)
	scale := 255.0 / float64(hi-lo)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := int(img.GrayAt(x, y).Y)
			switch {
			case v <= lo:
				v = 0
			case v >= hi:
				v = 255
			default:
				v = int(float64(v-lo) * scale)
			}
			out.SetGray(x, y, color.Gray{Y: uint8(v)})
		}
	}
	return out
}

func upscale(img *image.Gray, factor int) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	draw.CatmullRom.Scale(out, out.Bounds(), img, b, draw.Src, nil)
	return out
}

// medianFilter3 applies a 3x3 median to knock out speckle noise.
func medianFilter3(img *image.Gray) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(b)
	window := make([]int, 0, 9)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			window = window[:0]
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < b.Min.X || nx >= b.Max.X || ny < b.Min.Y || ny >= b.Max.Y {
						continue
					}
					window = append(window, int(img.GrayAt(nx, ny).Y))
				}
			}
			sort.Ints(window)
			out.SetGray(x, y, color.Gray{Y: uint8(window[len(window)/2])})
		}
	}
	return out
}

func binarize(img *image.Gray, threshold int) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if int(img.GrayAt(x, y).Y) >= threshold {
				out.SetGray(x, y, color.Gray{Y: 255})
			} else {
				out.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return out
}
