package services

import (
	"bytes"
	"fmt"
	"image"
	"path/filepath"
	"strings"
)

// FileValidator checks uploaded images before they are processed.
type FileValidator struct {
	AllowedExtensions []string
	MaxFileSize       int64
	MaxPixelCount     int64
}

// NewFileValidator creates a validator allowing the raster formats the
// embedding pipeline understands, up to maxFileSize bytes.
func NewFileValidator(maxFileSize int64) *FileValidator {
	if maxFileSize <= 0 {
		maxFileSize = 25 * 1024 * 1024
	}
	return &FileValidator{
		AllowedExtensions: []string{".jpg", ".jpeg", ".png", ".webp", ".gif", ".tif", ".tiff"},
		MaxFileSize:       maxFileSize,
		MaxPixelCount:     100 * 1000 * 1000,
	}
}

// ValidationResult contains the results of file validation
type ValidationResult struct {
	IsValid      bool
	Extension    string
	Format       string
	MIMEType     string
	Size         int64
	Width        int
	Height       int
	ErrorMessage string
}

// ValidateBytes validates the name and content of one uploaded file.
// A rejected file yields IsValid=false and an ErrorMessage; the error return
// is reserved for failures of the validator itself.
func (fv *FileValidator) ValidateBytes(filename string, data []byte) (*ValidationResult, error) {
	result := &ValidationResult{
		Extension: strings.ToLower(filepath.Ext(filename)),
		Size:      int64(len(data)),
	}

	if !fv.isValidFilename(filename) {
		result.ErrorMessage = "Invalid filename"
		return result, nil
	}
	if !fv.isValidExtension(result.Extension) {
		result.ErrorMessage = fmt.Sprintf("Invalid file extension: %s", result.Extension)
		return result, nil
	}
	if result.Size == 0 {
		result.ErrorMessage = "Empty file"
		return result, nil
	}
	if result.Size > fv.MaxFileSize {
		result.ErrorMessage = fmt.Sprintf("File size %d exceeds maximum allowed size %d", result.Size, fv.MaxFileSize)
		return result, nil
	}

	result.Format, result.MIMEType = DetectFormat(data)
	if result.Format == "" {
		result.ErrorMessage = "Unrecognized image signature"
		return result, nil
	}
	if !extensionMatchesFormat(result.Extension, result.Format) {
		result.ErrorMessage = fmt.Sprintf("Extension %s does not match %s content", result.Extension, result.Format)
		return result, nil
	}

	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		result.Width = cfg.Width
		result.Height = cfg.Height
		if int64(cfg.Width)*int64(cfg.Height) > fv.MaxPixelCount {
			result.ErrorMessage = fmt.Sprintf("image pixel count %d exceeds maximum allowed %d", int64(cfg.Width)*int64(cfg.Height), fv.MaxPixelCount)
			return result, nil
		}
	}

	result.IsValid = true
	return result, nil
}

// DetectFormat identifies a raster format by its magic bytes and returns
// the format name and MIME type, or empty strings when unknown.
func DetectFormat(data []byte) (string, string) {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "jpeg", "image/jpeg"
	case bytes.HasPrefix(data, []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}):
		return "png", "image/png"
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "webp", "image/webp"
	case bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a")):
		return "gif", "image/gif"
	case bytes.HasPrefix(data, []byte{'I', 'I', 0x2A, 0x00}) || bytes.HasPrefix(data, []byte{'M', 'M', 0x00, 0x2A}):
		return "tiff", "image/tiff"
	}
	return "", ""
}

// ContentTypeFor returns the MIME type for a filename's extension.
func ContentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".xmp":
		return "application/rdf+xml"
	case ".zip":
		return "application/zip"
	}
	return "application/octet-stream"
}

func (fv *FileValidator) isValidExtension(ext string) bool {
	for _, allowed := range fv.AllowedExtensions {
		if strings.EqualFold(ext, allowed) {
			return true
		}
	}
	return false
}

func extensionMatchesFormat(ext, format string) bool {
	switch ext {
	case ".jpg", ".jpeg":
		return format == "jpeg"
	case ".png":
		return format == "png"
	case ".webp":
		return format == "webp"
	case ".gif":
		return format == "gif"
	case ".tif", ".tiff":
		return format == "tiff"
	}
	return false
}

func (fv *FileValidator) isValidFilename(filename string) bool {
	if filename == "" || len(filename) > 255 {
		return false
	}
	// A bare name only: no separators and no "." or ".." element.
	if filename == "." || filename == ".." || strings.ContainsAny(filename, "/\\\x00") {
		return false
	}
	return true
}

// SafeFileName creates a safe filename from the original
func SafeFileName(original string) string {
	base := filepath.Base(strings.ReplaceAll(original, "\\", "/"))

	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)

	clean := func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '_'
	}
	name = strings.Map(clean, name)
	if name == "" {
		name = "image"
	}
	if ext != "" {
		ext = "." + strings.ToLower(strings.Map(clean, ext[1:]))
	}
	if ext == "." {
		ext = ""
	}
	return name + ext
}
