// SPDX-License-Identifier: MIT

package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ManuGH/hlsgate/internal/catalog"
	"github.com/ManuGH/hlsgate/internal/transcode/model"
)

// fakeExec simulates ffmpeg by writing the expected outputs.
type fakeExec struct {
	err      error
	lastArgs []string
}

func (f *fakeExec) Run(ctx context.Context, name string, args []string, onProgress func(Progress)) error {
	f.lastArgs = args
	if f.err != nil {
		return f.err
	}
	if onProgress != nil {
		onProgress(Progress{Frame: 1, OutTimeUs: 1000})
	}
	// Last arg is the output path for both profiles.
	out := args[len(args)-1]
	if strings.HasSuffix(out, ".m3u8") {
		seg := filepath.Join(filepath.Dir(out), "segment_000.ts")
		if err := os.WriteFile(seg, []byte("ts"), 0o644); err != nil {
			return err
		}
	}
	return os.WriteFile(out, []byte("#EXTM3U\n"), 0o644)
}

func testWorker(t *testing.T, exec Exec) (*Worker, string, string) {
	t.Helper()
	mediaRoot := t.TempDir()
	hlsRoot := t.TempDir()
	w := New(Options{
		FFmpegPath: "ffmpeg",
		MediaRoot:  mediaRoot,
		HLSRoot:    hlsRoot,
		Exec:       exec,
		Logger:     zerolog.Nop(),
	})
	return w, mediaRoot, hlsRoot
}

func writeSource(t *testing.T, root, name string) *catalog.MediaRef {
	t.Helper()
	if err := os.WriteFile(filepath.Join(root, name), []byte("mp4"), 0o644); err != nil {
		t.Fatal(err)
	}
	return &catalog.MediaRef{ID: 42, Filename: name, Path: name}
}

func TestRunHLSProfile(t *testing.T) {
	fe := &fakeExec{}
	w, mediaRoot, hlsRoot := testWorker(t, fe)
	media := writeSource(t, mediaRoot, "Ocean Waves.mp4")
	job := &model.Job{JobID: "job-1", MediaID: 42, Profile: model.ProfileHLS, State: model.StateRunning}

	var beats int
	ref, err := w.Run(context.Background(), job, media, func(Progress) { beats++ })
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.HasSuffix(ref, "/hls/playlist.m3u8") {
		t.Errorf("unexpected output ref: %q", ref)
	}
	if beats == 0 {
		t.Error("progress callback never fired")
	}

	// The artifact, a segment and the manifest exist at the final location.
	playlist := filepath.Join(hlsRoot, filepath.FromSlash(ref))
	for _, p := range []string{
		playlist,
		filepath.Join(filepath.Dir(playlist), "segment_000.ts"),
		filepath.Join(filepath.Dir(playlist), "job.json"),
	} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("missing output %s: %v", p, err)
		}
	}

	// No scratch directory left behind.
	entries, _ := os.ReadDir(filepath.Dir(filepath.Dir(playlist)))
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("scratch dir left behind: %s", e.Name())
		}
	}
}

func TestRunLowProfileVideo(t *testing.T) {
	fe := &fakeExec{}
	w, mediaRoot, hlsRoot := testWorker(t, fe)
	media := writeSource(t, mediaRoot, "clip.mkv")
	job := &model.Job{JobID: "job-1", MediaID: 42, Profile: model.ProfileLow, State: model.StateRunning}

	ref, err := w.Run(context.Background(), job, media, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.HasSuffix(ref, "/low/clip.low.mp4") {
		t.Errorf("unexpected output ref: %q", ref)
	}
	if _, err := os.Stat(filepath.Join(hlsRoot, filepath.FromSlash(ref))); err != nil {
		t.Errorf("missing artifact: %v", err)
	}

	// Video recipe: bitrate + resolution flags present.
	joined := strings.Join(fe.lastArgs, " ")
	if !strings.Contains(joined, "-b:v 500k") || !strings.Contains(joined, "-s 426x240") {
		t.Errorf("unexpected args: %v", fe.lastArgs)
	}
}

func TestRunLowProfileAudio(t *testing.T) {
	fe := &fakeExec{}
	w, mediaRoot, _ := testWorker(t, fe)
	media := writeSource(t, mediaRoot, "song.flac")
	job := &model.Job{JobID: "job-1", MediaID: 42, Profile: model.ProfileLow, State: model.StateRunning}

	ref, err := w.Run(context.Background(), job, media, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.HasSuffix(ref, "/low/song.low.mp3") {
		t.Errorf("unexpected output ref: %q", ref)
	}
	joined := strings.Join(fe.lastArgs, " ")
	if !strings.Contains(joined, "-b:a 64k") {
		t.Errorf("audio recipe not used: %v", fe.lastArgs)
	}
}

func TestRunMissingSource(t *testing.T) {
	w, _, _ := testWorker(t, &fakeExec{})
	media := &catalog.MediaRef{ID: 7, Filename: "gone.mp4", Path: "gone.mp4"}
	job := &model.Job{JobID: "job-1", MediaID: 7, Profile: model.ProfileHLS}

	_, err := w.Run(context.Background(), job, media, nil)
	if !errors.Is(err, ErrSourceMissing) {
		t.Fatalf("expected ErrSourceMissing, got %v", err)
	}
}

func TestRunSourceEscapeRejected(t *testing.T) {
	w, _, _ := testWorker(t, &fakeExec{})
	media := &catalog.MediaRef{ID: 7, Filename: "x.mp4", Path: "../../etc/passwd"}
	job := &model.Job{JobID: "job-1", MediaID: 7, Profile: model.ProfileHLS}

	_, err := w.Run(context.Background(), job, media, nil)
	if !errors.Is(err, ErrSourceMissing) {
		t.Fatalf("expected ErrSourceMissing, got %v", err)
	}
}

func TestRunFFmpegFailureNoPartialOutput(t *testing.T) {
	fe := &fakeExec{err: errors.New("exit status 1")}
	w, mediaRoot, hlsRoot := testWorker(t, fe)
	media := writeSource(t, mediaRoot, "bad.mp4")
	job := &model.Job{JobID: "job-1", MediaID: 42, Profile: model.ProfileHLS}

	_, err := w.Run(context.Background(), job, media, nil)
	if err == nil {
		t.Fatal("expected error")
	}

	// Nothing promoted, nothing left behind.
	entries, _ := os.ReadDir(hlsRoot)
	if len(entries) > 0 {
		sub, _ := os.ReadDir(filepath.Join(hlsRoot, entries[0].Name()))
		if len(sub) > 0 {
			t.Errorf("partial output present: %v", sub)
		}
	}
}

func TestRunReplacesPreviousArtifact(t *testing.T) {
	fe := &fakeExec{}
	w, mediaRoot, hlsRoot := testWorker(t, fe)
	media := writeSource(t, mediaRoot, "redo.mp4")
	job := &model.Job{JobID: "job-1", MediaID: 42, Profile: model.ProfileHLS, State: model.StateRunning}

	ref, err := w.Run(context.Background(), job, media, nil)
	if err != nil {
		t.Fatal(err)
	}
	// Plant a stale segment, rerun with a new job instance.
	stale := filepath.Join(hlsRoot, filepath.Dir(filepath.FromSlash(ref)), "segment_099.ts")
	if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	job2 := &model.Job{JobID: "job-2", MediaID: 42, Profile: model.ProfileHLS, State: model.StateRunning}
	if _, err := w.Run(context.Background(), job2, media, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale segment survived re-transcode")
	}
}

func TestArtifactPathConfinement(t *testing.T) {
	w, _, _ := testWorker(t, &fakeExec{})
	if _, err := w.ArtifactPath("../outside/playlist.m3u8"); err == nil {
		t.Error("traversal not rejected")
	}
	if _, err := w.ArtifactPath("42-x-abc/hls/playlist.m3u8"); err != nil {
		t.Errorf("valid ref rejected: %v", err)
	}
}
