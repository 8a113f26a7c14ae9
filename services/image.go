package services

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/bbrks/go-blurhash"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageMeta is what Inspect learns from decoding an image.
type ImageMeta struct {
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Format       string `json:"format"`
	Blurhash     string `json:"blurhash,omitempty"`
	AverageColor string `json:"average_color"`
}

// DecodeImage decodes any registered raster format.
func DecodeImage(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	return img, format, nil
}

// Inspect decodes data and reports its dimensions, a 4x3 blurhash and the
// average colour.
func Inspect(data []byte) (ImageMeta, error) {
	img, format, err := DecodeImage(data)
	if err != nil {
		return ImageMeta{}, err
	}

	bounds := img.Bounds()
	meta := ImageMeta{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Format: format,
	}

	if hash, err := blurhash.Encode(4, 3, img); err == nil {
		meta.Blurhash = hash
	}
	meta.AverageColor = averageColor(img)
	return meta, nil
}

// averageColor is the mean of an up to 16x16 sample grid, as #rrggbb.
func averageColor(img image.Image) string {
	b := img.Bounds()
	if b.Empty() {
		return "#000000"
	}
	const grid = 16
	stepX := max(1, b.Dx()/grid)
	stepY := max(1, b.Dy()/grid)

	var r, g, bl, n uint64
	for y := b.Min.Y; y < b.Max.Y; y += stepY {
		for x := b.Min.X; x < b.Max.X; x += stepX {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			r += uint64(c.R)
			g += uint64(c.G)
			bl += uint64(c.B)
			n++
		}
	}
	return fmt.Sprintf("#%02x%02x%02x", r/n, g/n, bl/n)
}
