package models

import "strings"

// ImageMetadata is the descriptive record embedded into an image or written
// to its sidecar. It is read-only for the duration of a single embedding call.
type ImageMetadata struct {
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description" yaml:"description"`
	Keywords    []string `json:"keywords" yaml:"keywords"`
	Author      string   `json:"author,omitempty" yaml:"author,omitempty"`
	Copyright   string   `json:"copyright,omitempty" yaml:"copyright,omitempty"`
}

// HasContent reports whether the record carries anything worth embedding.
// Author and copyright alone do not count.
func (m ImageMetadata) HasContent() bool {
	return m.Title != "" || m.Description != "" || len(m.UsableKeywords()) > 0
}

// UsableKeywords returns the keywords with blank entries removed. Order and
// duplicates are kept as given.
func (m ImageMetadata) UsableKeywords() []string {
	out := make([]string, 0, len(m.Keywords))
	for _, k := range m.Keywords {
		if strings.TrimSpace(k) == "" {
			continue
		}
		out = append(out, k)
	}
	return out
}
