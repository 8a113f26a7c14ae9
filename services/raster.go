package services

import (
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"
)

// fitSize scales w x h down so the longer side is at most maxDim.
func fitSize(w, h, maxDim int) (int, int) {
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h
	}
	long := w
	if h > long {
		long = h
	}
	tw := max(1, w*maxDim/long)
	th := max(1, h*maxDim/long)
	return tw, th
}

// ScaleToFit returns src shrunk with Catmull-Rom so neither side exceeds
// maxDim. Images that already fit, or maxDim <= 0, come back as-is.
func ScaleToFit(src image.Image, maxDim int) image.Image {
	b := src.Bounds()
	tw, th := fitSize(b.Dx(), b.Dy(), maxDim)
	if tw == b.Dx() && th == b.Dy() {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst
}

// FlattenOnto composites src over a solid bg when it has transparency.
// JPEG has no alpha channel, so this runs before encoding.
func FlattenOnto(src image.Image, bg color.Color) image.Image {
	if !hasAlpha(src) {
		return src
	}
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}

func hasAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xFFFF {
				return true
			}
		}
	}
	return false
}
