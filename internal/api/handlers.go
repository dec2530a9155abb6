// SPDX-License-Identifier: MIT

package api

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/hlsgate/internal/catalog"
	"github.com/ManuGH/hlsgate/internal/fsutil"
	"github.com/ManuGH/hlsgate/internal/log"
	"github.com/ManuGH/hlsgate/internal/readiness"
	"github.com/ManuGH/hlsgate/internal/transcode/model"
	"github.com/ManuGH/hlsgate/internal/transcode/store"
)

func mediaID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// mediaOut is the catalog wire shape (path stays internal).
type mediaOut struct {
	ID       int64    `json:"id"`
	Filename string   `json:"filename"`
	Type     string   `json:"type"`
	Genre    string   `json:"genre,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

func toMediaOut(m catalog.MediaRef) mediaOut {
	return mediaOut{
		ID:       m.ID,
		Filename: m.Filename,
		Type:     string(m.Type()),
		Genre:    m.Genre,
		Tags:     m.Tags,
	}
}

func (s *Server) handleListMedia(w http.ResponseWriter, r *http.Request) {
	items, err := s.cat.List(r.Context())
	if err != nil {
		writeServiceUnavailable(w, err)
		return
	}
	out := make([]mediaOut, 0, len(items))
	for _, m := range items {
		out = append(out, toMediaOut(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetMedia(w http.ResponseWriter, r *http.Request) {
	id, ok := mediaID(r)
	if !ok {
		writeError(w, errors.New("invalid media id"))
		return
	}
	m, err := s.cat.Lookup(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeNotFound(w)
			return
		}
		writeServiceUnavailable(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMediaOut(*m))
}

// handleStatus reports transcode readiness for the hls profile.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := mediaID(r)
	if !ok {
		writeError(w, errors.New("invalid media id"))
		return
	}
	if _, err := s.cat.Lookup(r.Context(), id); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeNotFound(w)
			return
		}
		writeServiceUnavailable(w, err)
		return
	}

	res, err := s.checker.Check(r.Context(), id, model.ProfileHLS)
	if err != nil {
		writeServiceUnavailable(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleStatusHead is the cheap existence probe: 200 only when Ready.
func (s *Server) handleStatusHead(w http.ResponseWriter, r *http.Request) {
	id, ok := mediaID(r)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	res, err := s.checker.Check(r.Context(), id, model.ProfileHLS)
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	if res.Status == readiness.StatusReady {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

// handleTrigger starts (or deduplicates) the hls transcode. Always 202 on
// success: queued, already running and already ready all look the same to
// the caller, which simply polls status next.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	id, ok := mediaID(r)
	if !ok {
		writeError(w, errors.New("invalid media id"))
		return
	}

	job, created, err := s.trigger.Trigger(r.Context(), id, model.ProfileHLS)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			writeNotFound(w)
		case errors.Is(err, store.ErrUnavailable):
			writeServiceUnavailable(w, err)
		default:
			writeError(w, err)
		}
		return
	}

	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Int64("media_id", id).
		Str("job_id", job.JobID).
		Bool("created", created).
		Msg("transcode trigger accepted")

	writeJSON(w, http.StatusAccepted, map[string]any{
		"jobId":   job.JobID,
		"state":   job.State,
		"created": created,
	})
}

// readyOutputRef resolves the hls playlist reference once the job is Ready.
// Second return is the HTTP status to send when not servable.
func (s *Server) readyOutputRef(r *http.Request, id int64) (string, int) {
	res, err := s.checker.Check(r.Context(), id, model.ProfileHLS)
	if err != nil {
		return "", http.StatusServiceUnavailable
	}
	switch res.Status {
	case readiness.StatusReady:
		return res.OutputRef, 0
	case readiness.StatusInProgress:
		return "", http.StatusConflict
	default:
		return "", http.StatusNotFound
	}
}

func (s *Server) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := mediaID(r)
	if !ok {
		writeError(w, errors.New("invalid media id"))
		return
	}
	ref, failCode := s.readyOutputRef(r, id)
	if failCode != 0 {
		writeJSON(w, failCode, map[string]string{"error": http.StatusText(failCode)})
		return
	}
	s.serveArtifact(w, r, ref)
}

// handleSegment serves one .ts segment from the playlist's directory.
func (s *Server) handleSegment(w http.ResponseWriter, r *http.Request) {
	id, ok := mediaID(r)
	if !ok {
		writeError(w, errors.New("invalid media id"))
		return
	}
	segment := chi.URLParam(r, "segment")
	if !validSegmentName(segment) {
		writeNotFound(w)
		return
	}
	ref, failCode := s.readyOutputRef(r, id)
	if failCode != 0 {
		writeJSON(w, failCode, map[string]string{"error": http.StatusText(failCode)})
		return
	}
	s.serveArtifact(w, r, filepath.ToSlash(filepath.Join(filepath.Dir(ref), segment)))
}

// validSegmentName admits only the names the worker writes.
func validSegmentName(name string) bool {
	if !strings.HasSuffix(name, ".ts") {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '.':
		default:
			return false
		}
	}
	return !strings.Contains(name, "..")
}

func (s *Server) serveArtifact(w http.ResponseWriter, r *http.Request, outputRef string) {
	path, err := s.artifacts.ArtifactPath(outputRef)
	if err != nil {
		writeNotFound(w)
		return
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		// READY job with a vanished artifact: surface the operational
		// fault here instead of lying with a 200.
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().
			Str("output_ref", outputRef).
			Msg("artifact missing for ready job")
		writeNotFound(w)
		return
	}
	setStreamHeaders(w, path, info.ModTime())
	http.ServeFile(w, r, path)
}

// handleStream serves media bytes directly. The original quality bypasses
// the transcode pipeline entirely; quality=low rides the job machinery
// under the low profile and answers 202 while the transcode is in flight.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id, ok := mediaID(r)
	if !ok {
		writeError(w, errors.New("invalid media id"))
		return
	}
	m, err := s.cat.Lookup(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeNotFound(w)
			return
		}
		writeServiceUnavailable(w, err)
		return
	}

	quality := r.URL.Query().Get("quality")
	mt := m.Type()
	if quality == "low" && (mt == catalog.TypeVideo || mt == catalog.TypeAudio) {
		s.streamLow(w, r, id)
		return
	}
	s.streamOriginal(w, r, m)
}

func (s *Server) streamLow(w http.ResponseWriter, r *http.Request, id int64) {
	res, err := s.checker.Check(r.Context(), id, model.ProfileLow)
	if err != nil {
		writeServiceUnavailable(w, err)
		return
	}

	if res.Status == readiness.StatusReady {
		s.serveArtifact(w, r, res.OutputRef)
		return
	}

	// Kick the low-profile job if nothing usable is in flight, then tell
	// the client to come back.
	if res.Status != readiness.StatusInProgress {
		if _, _, err := s.trigger.Trigger(r.Context(), id, model.ProfileLow); err != nil {
			switch {
			case errors.Is(err, catalog.ErrNotFound):
				writeNotFound(w)
			case errors.Is(err, store.ErrUnavailable):
				writeServiceUnavailable(w, err)
			default:
				writeError(w, err)
			}
			return
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"detail": "Transcoding in progress. Please retry after a moment.",
	})
}

func (s *Server) streamOriginal(w http.ResponseWriter, r *http.Request, m *catalog.MediaRef) {
	path := m.Path
	if !filepath.IsAbs(path) {
		confined, err := fsutil.ConfineRelPath(s.mediaRoot, path)
		if err != nil {
			writeNotFound(w)
			return
		}
		path = confined
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		writeNotFound(w)
		return
	}
	setStreamHeaders(w, path, info.ModTime())
	http.ServeFile(w, r, path)
}
