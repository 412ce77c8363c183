// Package imageproc prepares uploaded photos for detection: decode,
// downscale, and contrast enhancement, plus EXIF GPS extraction for
// geotagged uploads.
package imageproc

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"
	"math"

	"golang.org/x/image/draw"

	"github.com/roadwatch/roadwatch-go/internal/conf"
	"github.com/roadwatch/roadwatch-go/internal/errors"
)

// jpegQuality for re-encoded uploads. High enough that detection quality is
// unaffected.
const jpegQuality = 90

// Decode parses an uploaded image. It accepts JPEG and PNG.
func Decode(data []byte) (image.Image, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.New(err).
			Component("imageproc").
			Category(errors.CategoryValidation).
			Context("phase", "decode").
			Build()
	}
	if format != "jpeg" && format != "png" {
		return nil, errors.Newf("unsupported image format %q", format).
			Component("imageproc").
			Category(errors.CategoryValidation).
			Build()
	}
	return img, nil
}

// Downscale caps the longest image side at maxDim, preserving aspect ratio.
// Images already within the cap pass through untouched.
func Downscale(img image.Image, maxDim int) image.Image {
	if maxDim <= 0 {
		maxDim = conf.MaxImageDimension
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}

	var newW, newH int
	if w >= h {
		newW = maxDim
		newH = h * maxDim / w
	} else {
		newH = maxDim
		newW = w * maxDim / h
	}
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// Enhance stretches the luminance range of low-contrast photos so that
// defects in dark or washed-out frames stay detectable. Images that already
// use most of the range pass through untouched.
func Enhance(img image.Image) image.Image {
	bounds := img.Bounds()
	minLum, maxLum := 255, 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			l := luminance(img.At(x, y).RGBA())
			if l < minLum {
				minLum = l
			}
			if l > maxLum {
				maxLum = l
			}
		}
	}
	// Contrast span of 180+ out of 255 needs no stretching.
	if maxLum-minLum >= 180 || maxLum <= minLum {
		return img
	}

	scale := 255.0 / float64(maxLum-minLum)
	dst := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			dst.Set(x, y, rgba8(
				stretch(int(r>>8), minLum, scale),
				stretch(int(g>>8), minLum, scale),
				stretch(int(b>>8), minLum, scale),
				uint8(a>>8),
			))
		}
	}
	return dst
}

// Prepare runs the full preprocessing chain on an uploaded photo and
// re-encodes it as JPEG for the detector.
func Prepare(data []byte) ([]byte, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	img = Downscale(img, conf.MaxImageDimension)
	img = Enhance(img)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, errors.New(err).
			Component("imageproc").
			Category(errors.CategoryEnhancement).
			Context("phase", "encode").
			Build()
	}
	return buf.Bytes(), nil
}

func luminance(r, g, b, _ uint32) int {
	// ITU-R BT.601 weights on 8-bit channels.
	return int(0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8))
}

func rgba8(r, g, b, a uint8) color.RGBA {
	return color.RGBA{R: r, G: g, B: b, A: a}
}

func stretch(v, minLum int, scale float64) uint8 {
	out := math.Round(float64(v-minLum) * scale)
	if out < 0 {
		out = 0
	}
	if out > 255 {
		out = 255
	}
	return uint8(out)
}
