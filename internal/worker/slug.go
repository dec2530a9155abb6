// SPDX-License-Identifier: MIT

package worker

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// slugify converts a media filename into a URL-safe, human-readable slug.
// Example: "Große Freiheit.mkv" → "grosse-freiheit-mkv"
func slugify(name string) string {
	if name == "" {
		return "media"
	}

	s := strings.ToLower(name)

	// Fold diacritics: decompose, then drop combining marks.
	// "é" → "e", "ü" → "u". German sharp s has no decomposition.
	s = strings.ReplaceAll(s, "ß", "ss")
	var folded strings.Builder
	for _, r := range norm.NFD.String(s) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		folded.WriteRune(r)
	}
	s = folded.String()

	// Replace runs of non-alphanumeric characters with a single dash.
	var result strings.Builder
	lastWasDash := false
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			result.WriteRune(r)
			lastWasDash = false
		} else if !lastWasDash {
			result.WriteRune('-')
			lastWasDash = true
		}
	}
	slug := strings.Trim(result.String(), "-")

	if len(slug) > 50 {
		slug = strings.TrimRight(slug[:50], "-")
	}
	if slug == "" {
		return "media"
	}
	return slug
}

// OutputDirName derives the per-media output directory name.
// Format: "<id>-<slug>-<hash6>". The hash suffix keeps names stable and
// collision-free even when two files share a slug.
//
// Example: 42 + "Ocean Waves.mp4" → "42-ocean-waves-mp4-3fa92b"
func OutputDirName(mediaID int64, filename string) string {
	sum := sha1.Sum([]byte(strconv.FormatInt(mediaID, 10) + ":" + filename))
	suffix := hex.EncodeToString(sum[:])[:6]
	return strconv.FormatInt(mediaID, 10) + "-" + slugify(filename) + "-" + suffix
}
