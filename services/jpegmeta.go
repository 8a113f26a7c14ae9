package services

import (
	"bytes"
	"image"
	"image/jpeg"
	"time"

	"github.com/yourusername/stockmeta/models"
)

// maxSegmentLength is the largest value the APP1 length field can hold.
// The length counts its own two bytes but not the marker.
const maxSegmentLength = 0xFFFF

var soiMarker = []byte{0xFF, 0xD8}

// IsJPEG reports whether data starts with the JPEG SOI marker.
func IsJPEG(data []byte) bool {
	return len(data) >= 2 && data[0] == soiMarker[0] && data[1] == soiMarker[1]
}

// EmbedMetadataIntoJPEG inserts an EXIF APP1 segment followed by an XMP APP1
// segment directly after SOI and leaves every other byte of data untouched.
// Existing APPn segments are not inspected. When md is empty or data is not
// a JPEG, data itself is returned. A segment too large for APP1 is left out
// on its own; the other one is still written.
func EmbedMetadataIntoJPEG(data []byte, md models.ImageMetadata, renderedAt time.Time) []byte {
	if !md.HasContent() || !IsJPEG(data) {
		return data
	}
	exifSeg := BuildExifSegment(md)
	xmpSeg := BuildXMPSegment(md, renderedAt)
	if len(exifSeg) == 0 && len(xmpSeg) == 0 {
		return data
	}

	out := make([]byte, 0, len(data)+len(exifSeg)+len(xmpSeg))
	out = append(out, data[:2]...) // SOI
	out = append(out, exifSeg...)
	out = append(out, xmpSeg...)
	out = append(out, data[2:]...)
	return out
}

// EncodeJPEGWithMetadata encodes img as a JPEG at the given quality and embeds md.
func EncodeJPEGWithMetadata(img image.Image, quality int, md models.ImageMetadata, renderedAt time.Time) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return EmbedMetadataIntoJPEG(buf.Bytes(), md, renderedAt), nil
}

// buildAPP1Segment frames identifier+body as an APP1 segment. It returns nil
// if the length field would overflow.
func buildAPP1Segment(identifier, body []byte) []byte {
	segLen := 2 + len(identifier) + len(body)
	if segLen > maxSegmentLength {
		return nil
	}
	seg := make([]byte, 0, 2+segLen)
	seg = append(seg, 0xFF, 0xE1, byte(segLen>>8), byte(segLen&0xFF))
	seg = append(seg, identifier...)
	seg = append(seg, body...)
	return seg
}
