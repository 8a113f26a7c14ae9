package services

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/yourusername/stockmeta/models"
)

// BatchItem is one image of a batch download.
type BatchItem struct {
	Filename string
	Data     []byte
	Metadata models.ImageMetadata
}

// BuildBatchArchive processes every item and packs the results into a zip.
// Sidecar-policy items get their .xmp written next to the untouched image.
// Entry names are the ones BatchNames returns for items.
func BuildBatchArchive(items []BatchItem, renderedAt time.Time) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	names := BatchNames(items)

	for i, item := range items {
		exp := PrepareExport(item.Data, item.Metadata, names[i], renderedAt)
		// Images are already compressed.
		if err := writeZipEntry(zw, exp.ImageName, exp.Image, zip.Store, renderedAt); err != nil {
			return nil, err
		}
		if len(exp.Sidecar) > 0 {
			if err := writeZipEntry(zw, exp.SidecarName, exp.Sidecar, zip.Deflate, renderedAt); err != nil {
				return nil, err
			}
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

// BatchNames returns the sanitized, clash-free name each item is stored
// under in the archive, in item order.
func BatchNames(items []BatchItem) []string {
	claimed := NewOutputNames()
	names := make([]string, len(items))
	for i, item := range items {
		name := SafeFileName(item.Filename)
		names[i] = claimed.Claim(name, NeedsXMPSidecar(name) && item.Metadata.HasContent())
	}
	return names
}

func writeZipEntry(zw *zip.Writer, name string, data []byte, method uint16, modified time.Time) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method, Modified: modified})
	if err != nil {
		return fmt.Errorf("failed to add %s to archive: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write %s to archive: %w", name, err)
	}
	return nil
}

// OutputNames hands out file names that do not clash within one output,
// ignoring case. An image that ships with a sidecar claims both names on
// the same stem, so "a.png" and "a.tif" become "a.png"+"a.xmp" and
// "a (2).tif"+"a (2).xmp".
type OutputNames struct {
	used map[string]bool
}

func NewOutputNames() *OutputNames {
	return &OutputNames{used: map[string]bool{}}
}

// Claim returns name, or name with a " (n)" suffix before its extension
// when name (or its .xmp, if withSidecar) is already taken.
func (o *OutputNames) Claim(name string, withSidecar bool) string {
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		candidate := name
		if n > 1 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, n, ext)
		}
		keys := []string{strings.ToLower(candidate)}
		if withSidecar {
			keys = append(keys, strings.ToLower(GetXMPFilename(candidate)))
		}
		if o.taken(keys) {
			continue
		}
		for _, k := range keys {
			o.used[k] = true
		}
		return candidate
	}
}

func (o *OutputNames) taken(keys []string) bool {
	for _, k := range keys {
		if o.used[k] {
			return true
		}
	}
	return false
}
