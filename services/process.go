package services

import (
	"strings"
	"time"

	"github.com/yourusername/stockmeta/models"
)

// OutputPolicy says how metadata travels with a given output file.
type OutputPolicy int

const (
	// PolicyEmbedJPEG writes EXIF and XMP segments into the JPEG itself.
	PolicyEmbedJPEG OutputPolicy = iota
	// PolicySidecarXMP leaves the image untouched and ships a .xmp next to it.
	PolicySidecarXMP
)

func (p OutputPolicy) String() string {
	switch p {
	case PolicyEmbedJPEG:
		return "embed"
	case PolicySidecarXMP:
		return "sidecar"
	}
	return "unknown"
}

// PolicyFor picks the output policy from the filename extension.
func PolicyFor(filename string) OutputPolicy {
	ext, _ := splitExt(filename)
	switch strings.ToLower(ext) {
	case "jpg", "jpeg":
		return PolicyEmbedJPEG
	}
	return PolicySidecarXMP
}

// NeedsXMPSidecar reports whether filename cannot carry embedded metadata.
func NeedsXMPSidecar(filename string) bool {
	return PolicyFor(filename) == PolicySidecarXMP
}

// GetXMPFilename replaces the final extension of filename with ".xmp", or
// appends ".xmp" when there is none. A leading dot in the base name is not
// treated as an extension.
func GetXMPFilename(filename string) string {
	_, dot := splitExt(filename)
	if dot < 0 {
		return filename + ".xmp"
	}
	return filename[:dot] + ".xmp"
}

// splitExt returns the extension (without dot) of the last path element and
// the index of its dot in filename, or -1 when there is no extension.
func splitExt(filename string) (string, int) {
	base := strings.LastIndexAny(filename, `/\`) + 1
	dot := strings.LastIndexByte(filename[base:], '.')
	if dot <= 0 {
		return "", -1
	}
	dot += base
	return filename[dot+1:], dot
}

// ProcessImageWithMetadata returns data with md embedded when filename names
// a JPEG, and data unchanged for every other extension. It never fails:
// anything going wrong underneath yields the original bytes.
func ProcessImageWithMetadata(data []byte, md models.ImageMetadata, filename string, renderedAt time.Time) (out []byte) {
	if PolicyFor(filename) != PolicyEmbedJPEG {
		return data
	}
	defer func() {
		if r := recover(); r != nil {
			out = data
		}
	}()
	return EmbedMetadataIntoJPEG(data, md, renderedAt)
}

// Export is everything a caller needs to deliver one file.
type Export struct {
	Policy      OutputPolicy
	Image       []byte
	ImageName   string
	Sidecar     []byte
	SidecarName string
}

// PrepareExport runs ProcessImageWithMetadata and, for the sidecar policy,
// renders the .xmp document that should travel with the image.
func PrepareExport(data []byte, md models.ImageMetadata, filename string, renderedAt time.Time) Export {
	exp := Export{
		Policy:    PolicyFor(filename),
		Image:     ProcessImageWithMetadata(data, md, filename, renderedAt),
		ImageName: filename,
	}
	if exp.Policy == PolicySidecarXMP && md.HasContent() {
		exp.Sidecar = []byte(GenerateXMPContent(md, renderedAt))
		exp.SidecarName = GetXMPFilename(filename)
	}
	return exp
}
