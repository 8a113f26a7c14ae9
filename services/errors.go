package services

import "errors"

var (
	// ErrNotJPEG is returned by readers that require a JPEG stream.
	ErrNotJPEG = errors.New("stockmeta: not a jpeg")

	// ErrUnsupportedImage is returned when an image cannot be decoded.
	ErrUnsupportedImage = errors.New("stockmeta: unsupported image")
)
