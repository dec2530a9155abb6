// SPDX-License-Identifier: MIT

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/ManuGH/hlsgate/internal/catalog"
	"github.com/ManuGH/hlsgate/internal/fsutil"
	"github.com/ManuGH/hlsgate/internal/transcode/model"
)

// ErrSourceMissing marks a job whose source file is gone from the library.
var ErrSourceMissing = errors.New("source file missing")

// Worker produces transcode artifacts for a single job. It resolves the
// source through the media root, runs ffmpeg into a scratch directory and
// promotes the result atomically so readers never observe partial output.
type Worker struct {
	ffmpegPath string
	mediaRoot  string
	hlsRoot    string
	exec       Exec
	log        zerolog.Logger
}

type Options struct {
	FFmpegPath string
	MediaRoot  string
	HLSRoot    string
	Exec       Exec
	Logger     zerolog.Logger
}

func New(opts Options) *Worker {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	return &Worker{
		ffmpegPath: opts.FFmpegPath,
		mediaRoot:  opts.MediaRoot,
		hlsRoot:    opts.HLSRoot,
		exec:       opts.Exec,
		log:        opts.Logger,
	}
}

// manifest is written next to the artifact after a successful run.
type manifest struct {
	JobID      string `json:"jobId"`
	MediaID    int64  `json:"mediaId"`
	Profile    string `json:"profile"`
	Source     string `json:"source"`
	OutputRef  string `json:"outputRef"`
	FinishedAt string `json:"finishedAt"`
}

// Run transcodes media for job and returns the output reference, a path
// relative to the HLS root. The progress callback fires on every ffmpeg
// progress flush.
func (w *Worker) Run(ctx context.Context, job *model.Job, media *catalog.MediaRef, onProgress func(Progress)) (string, error) {
	source, err := w.resolveSource(media)
	if err != nil {
		return "", err
	}

	dirName := OutputDirName(media.ID, media.Filename)
	finalDir := filepath.Join(w.hlsRoot, dirName, string(job.Profile))

	var outputRef string
	switch job.Profile {
	case model.ProfileHLS:
		outputRef = filepath.ToSlash(filepath.Join(dirName, string(job.Profile), PlaylistName))
	case model.ProfileLow:
		outputRef = filepath.ToSlash(filepath.Join(dirName, string(job.Profile), LowOutputName(media.Filename, media.Type())))
	default:
		return "", fmt.Errorf("unknown profile %q", job.Profile)
	}

	// Build into a scratch dir beside the final location, promote via
	// rename. Segments are never visible half-written.
	scratch := finalDir + ".tmp-" + job.JobID
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	var args []string
	switch job.Profile {
	case model.ProfileHLS:
		args = BuildHLSArgs(source, scratch)
	case model.ProfileLow:
		args = BuildLowArgs(source, filepath.Join(scratch, LowOutputName(media.Filename, media.Type())), media.Type())
	}

	logger := w.log.With().
		Str("job_id", job.JobID).
		Int64("media_id", media.ID).
		Str("profile", string(job.Profile)).
		Logger()
	logger.Info().Str("source", source).Msg("transcode starting")

	start := time.Now()
	if err := w.exec.Run(ctx, w.ffmpegPath, args, onProgress); err != nil {
		logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("transcode failed")
		return "", fmt.Errorf("ffmpeg: %w", err)
	}

	if err := w.writeManifest(scratch, job, media, source, outputRef); err != nil {
		return "", err
	}

	if err := os.RemoveAll(finalDir); err != nil {
		return "", fmt.Errorf("clear output dir: %w", err)
	}
	if err := os.Rename(scratch, finalDir); err != nil {
		return "", fmt.Errorf("promote output: %w", err)
	}

	logger.Info().
		Str("output_ref", outputRef).
		Dur("elapsed", time.Since(start)).
		Msg("transcode complete")
	return outputRef, nil
}

func (w *Worker) resolveSource(media *catalog.MediaRef) (string, error) {
	path := media.Path
	if !filepath.IsAbs(path) {
		confined, err := fsutil.ConfineRelPath(w.mediaRoot, path)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrSourceMissing, err)
		}
		path = confined
	}
	if err := fsutil.IsRegularFile(path); err != nil {
		return "", fmt.Errorf("%w: %s", ErrSourceMissing, path)
	}
	return path, nil
}

func (w *Worker) writeManifest(dir string, job *model.Job, media *catalog.MediaRef, source, outputRef string) error {
	buf, err := json.MarshalIndent(manifest{
		JobID:      job.JobID,
		MediaID:    media.ID,
		Profile:    string(job.Profile),
		Source:     source,
		OutputRef:  outputRef,
		FinishedAt: time.Now().UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := renameio.WriteFile(filepath.Join(dir, "job.json"), buf, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// ArtifactPath maps an output reference back to an absolute path under the
// HLS root, rejecting traversal.
func (w *Worker) ArtifactPath(outputRef string) (string, error) {
	return fsutil.ConfineRelPath(w.hlsRoot, outputRef)
}
