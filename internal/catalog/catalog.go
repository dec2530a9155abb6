// SPDX-License-Identifier: MIT

// Package catalog reads the external media library's catalog. The catalog is
// owned by the library application; this daemon only resolves media ids to
// source files and never writes.
package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when a media id is unknown to the catalog.
var ErrNotFound = errors.New("media not found")

// MediaRef is the immutable identity of one library item.
type MediaRef struct {
	ID       int64    `json:"id"`
	Filename string   `json:"filename"`
	Path     string   `json:"-"` // absolute source path, never exposed to clients
	Genre    string   `json:"genre,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// MediaType classifies a library item by filename extension, mirroring the
// player's sniffing rules.
type MediaType string

const (
	TypeVideo MediaType = "video"
	TypeAudio MediaType = "audio"
	TypeImage MediaType = "image"
	TypeOther MediaType = "other"
)

// Type returns the media type of the referenced file.
func (m MediaRef) Type() MediaType {
	switch strings.ToLower(filepath.Ext(m.Filename)) {
	case ".mp4", ".mkv", ".mov":
		return TypeVideo
	case ".mp3", ".aac", ".flac":
		return TypeAudio
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return TypeImage
	default:
		return TypeOther
	}
}

// Catalog is the read-only boundary toward the media library.
type Catalog interface {
	// Lookup resolves a media id. Returns ErrNotFound for unknown ids.
	Lookup(ctx context.Context, id int64) (*MediaRef, error)
	// List returns all catalog entries, ordered by id.
	List(ctx context.Context) ([]MediaRef, error)
}
