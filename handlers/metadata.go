package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/yourusername/stockmeta/models"
)

// ErrInvalidMetadata is wrapped by every metadata parsing or validation failure.
var ErrInvalidMetadata = errors.New("invalid metadata")

// MetadataRequest is the metadata part of an upload, as sent by clients.
type MetadataRequest struct {
	Title       string   `json:"title" validate:"max=200"`
	Description string   `json:"description" validate:"max=2000"`
	Keywords    []string `json:"keywords" validate:"max=2000,dive,max=100"`
	Author      string   `json:"author" validate:"max=200"`
	Copyright   string   `json:"copyright" validate:"max=200"`
}

func (r MetadataRequest) toModel() models.ImageMetadata {
	return models.ImageMetadata{
		Title:       strings.TrimSpace(r.Title),
		Description: strings.TrimSpace(r.Description),
		Keywords:    r.Keywords,
		Author:      strings.TrimSpace(r.Author),
		Copyright:   strings.TrimSpace(r.Copyright),
	}
}

func validateMetadata(v *validator.Validate, req MetadataRequest) (models.ImageMetadata, error) {
	if err := v.Struct(req); err != nil {
		return models.ImageMetadata{}, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	return req.toModel(), nil
}

// metadataFromForm reads title, description, keywords, author and copyright
// form fields.
func metadataFromForm(c *fiber.Ctx, v *validator.Validate) (models.ImageMetadata, error) {
	keywords, err := ParseKeywords(c.FormValue("keywords"))
	if err != nil {
		return models.ImageMetadata{}, err
	}
	return validateMetadata(v, MetadataRequest{
		Title:       c.FormValue("title"),
		Description: c.FormValue("description"),
		Keywords:    keywords,
		Author:      c.FormValue("author"),
		Copyright:   c.FormValue("copyright"),
	})
}

// ParseKeywords accepts either a JSON array of strings or a list separated
// by commas or semicolons. Entries are trimmed and empty ones dropped.
func ParseKeywords(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var parts []string
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &parts); err != nil {
			return nil, fmt.Errorf("%w: keywords: %v", ErrInvalidMetadata, err)
		}
	} else {
		parts = strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' })
	}
	keywords := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			keywords = append(keywords, p)
		}
	}
	return keywords, nil
}

// parseManifest decodes the batch manifest, a JSON object keyed by filename.
// The "*" entry applies to files without their own entry.
func parseManifest(raw string, v *validator.Validate) (map[string]models.ImageMetadata, error) {
	out := map[string]models.ImageMetadata{}
	if strings.TrimSpace(raw) == "" {
		return out, nil
	}
	var entries map[string]MetadataRequest
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("%w: manifest: %v", ErrInvalidMetadata, err)
	}
	for name, req := range entries {
		md, err := validateMetadata(v, req)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[name] = md
	}
	return out, nil
}

var defaultValidator = validator.New()

// NewMetadata validates req with the same limits the HTTP API applies.
func NewMetadata(req MetadataRequest) (models.ImageMetadata, error) {
	return validateMetadata(defaultValidator, req)
}
