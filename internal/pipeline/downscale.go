package pipeline

import (
	"image"

	"golang.org/x/image/draw"
)

// Downscale resizes img to exactly width x height with bilinear sampling.
// Images already at the target size are returned unchanged.
func Downscale(img image.Image, width, height int) image.Image {
	if img == nil {
		return nil
	}
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
