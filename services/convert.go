package services

import (
	"image/color"
	"time"

	"github.com/yourusername/stockmeta/models"
)

// ConvertOptions controls ConvertToJPEG.
type ConvertOptions struct {
	Quality      int
	MaxDimension int
}

// ConvertToJPEG re-encodes any decodable raster as a JPEG so that md can be
// embedded instead of shipped as a sidecar. Transparent areas are flattened
// onto white and the image is scaled down to MaxDimension when larger.
func ConvertToJPEG(data []byte, opts ConvertOptions, md models.ImageMetadata, renderedAt time.Time) ([]byte, error) {
	img, _, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = 90
	}
	img = FlattenOnto(img, color.White)
	img = ScaleToFit(img, opts.MaxDimension)
	return EncodeJPEGWithMetadata(img, quality, md, renderedAt)
}
