package services

import (
	"bytes"
	"fmt"

	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"
)

// SegmentInfo describes one marker segment of a JPEG stream.
type SegmentInfo struct {
	Marker byte   `json:"marker"`
	Name   string `json:"name"`
	Offset int    `json:"offset"`
	Size   int    `json:"size"`
	Kind   string `json:"kind,omitempty"`
}

// ListSegments walks the marker segments of a JPEG. APP1 segments are
// tagged "exif" or "xmp" by their identifier.
func ListSegments(data []byte) ([]SegmentInfo, error) {
	if !IsJPEG(data) {
		return nil, ErrNotJPEG
	}
	jmp := jpegstructure.NewJpegMediaParser()
	intfc, err := jmp.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jpeg segments: %w", err)
	}
	sl, ok := intfc.(*jpegstructure.SegmentList)
	if !ok {
		return nil, fmt.Errorf("unexpected segment list type %T", intfc)
	}
	segs := sl.Segments()
	out := make([]SegmentInfo, 0, len(segs))
	for _, s := range segs {
		info := SegmentInfo{Marker: s.MarkerId, Name: s.MarkerName, Offset: s.Offset, Size: len(s.Data)}
		if s.MarkerId == 0xE1 {
			switch {
			case bytes.HasPrefix(s.Data, exifIdentifier):
				info.Kind = "exif"
			case bytes.HasPrefix(s.Data, xmpIdentifier[:len(xmpIdentifier)-1]):
				info.Kind = "xmp"
			}
		}
		out = append(out, info)
	}
	return out, nil
}
