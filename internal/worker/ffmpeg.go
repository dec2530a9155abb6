// SPDX-License-Identifier: MIT

package worker

import (
	"path/filepath"

	"github.com/ManuGH/hlsgate/internal/catalog"
)

// HLS output parameters. Fixed recipe: single 426x240 rendition at 500k,
// 4-second segments, VOD playlist written last so readiness can key off it.
const (
	PlaylistName   = "playlist.m3u8"
	SegmentPattern = "segment_%03d.ts"

	hlsBitrate    = "500k"
	hlsResolution = "426x240"
	hlsTime       = "4"

	lowVideoBitrate    = "500k"
	lowVideoResolution = "426x240"
	lowAudioBitrate    = "64k"
)

// BuildHLSArgs constructs the ffmpeg command for the hls profile.
// Segments and the playlist land in outDir.
func BuildHLSArgs(inputPath, outDir string) []string {
	return []string{
		"-i", inputPath,
		"-vf", "scale=" + hlsResolution,
		"-c:v", "libx264",
		"-b:v", hlsBitrate,
		"-c:a", "aac",
		"-hls_time", hlsTime,
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", filepath.Join(outDir, SegmentPattern),
		"-y", filepath.Join(outDir, PlaylistName),
	}
}

// BuildLowArgs constructs the ffmpeg command for the low profile: a single
// reduced-bitrate file. Video sources get scaled mp4 output, audio sources
// get a 64k mp3.
func BuildLowArgs(inputPath, outputPath string, mediaType catalog.MediaType) []string {
	if mediaType == catalog.TypeAudio {
		return []string{
			"-i", inputPath,
			"-b:a", lowAudioBitrate,
			"-y", outputPath,
		}
	}
	return []string{
		"-i", inputPath,
		"-b:v", lowVideoBitrate,
		"-s", lowVideoResolution,
		"-y", outputPath,
	}
}

// LowOutputName returns the output filename for the low profile.
// Videos become "<base>.low.mp4", audio becomes "<base>.low.mp3".
func LowOutputName(filename string, mediaType catalog.MediaType) string {
	base := filename[:len(filename)-len(filepath.Ext(filename))]
	if mediaType == catalog.TypeAudio {
		return base + ".low.mp3"
	}
	return base + ".low.mp4"
}
