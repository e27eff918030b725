package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/bryanchriswhite/photobooth/internal/apperr"
	"github.com/bryanchriswhite/photobooth/internal/booth"
	"github.com/bryanchriswhite/photobooth/internal/export"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const maxRequestBytes = 8 << 20

// PhotoInfo describes one captured photo in list responses
type PhotoInfo struct {
	Index  int    `json:"index"`
	Handle string `json:"handle"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	URL    string `json:"url"`
}

// SelectionRequest is the body of POST /api/selection
type SelectionRequest struct {
	Refs []string `json:"refs"`
}

// CompositeRequest is the body of POST /api/composite. Refs are optional
// and must name captured photos; without them the saved selection is used,
// and without a selection the live captured set.
type CompositeRequest struct {
	Theme string   `json:"theme"`
	Refs  []string `json:"refs,omitempty"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string      `json:"error"`
	Kind  apperr.Kind `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps an error to its HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, booth.ErrInvalidSelection):
		return http.StatusBadRequest
	case errors.Is(err, booth.ErrNoPhoto):
		return http.StatusNotFound
	}
	switch apperr.KindOf(err) {
	case apperr.KindSourceNotReady:
		return http.StatusServiceUnavailable
	case apperr.KindSequenceBusy:
		return http.StatusConflict
	case apperr.KindExportBlocked:
		return http.StatusUnprocessableEntity
	case apperr.KindLoadFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("Request failed")
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: apperr.KindOf(err)})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

var errBadRequest = errors.New("bad request")

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
}

func photoIndex(r *http.Request) int {
	// The route pattern guarantees digits; overflow falls out of range.
	n, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		return -1
	}
	return n
}

// Session

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.booth.Sequencer().Snapshot())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.booth.Start(); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.booth.Sequencer().Snapshot())
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.booth.Cancel()
	writeJSON(w, http.StatusOK, s.booth.Sequencer().Snapshot())
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.booth.Clear(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.booth.Sequencer().Snapshot())
}

func (s *Server) handleRetake(w http.ResponseWriter, r *http.Request) {
	if err := s.booth.Retake(); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.booth.Sequencer().Snapshot())
}

// handleEvents streams a snapshot on every state change. Snapshots are
// dropped for a slow client; the next one supersedes them anyway.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	updates := make(chan booth.Snapshot, 8)
	unsubscribe := s.booth.Sequencer().Subscribe(func(snap booth.Snapshot) {
		select {
		case updates <- snap:
		default:
		}
	})
	defer unsubscribe()

	// Reads only detect the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(s.booth.Sequencer().Snapshot()); err != nil {
		return
	}
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case snap := <-updates:
			if err := conn.WriteJSON(snap); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.log.Debug().Err(err).Msg("WebSocket write failed")
				}
				return
			}
		}
	}
}

// Photos

func (s *Server) handleListPhotos(w http.ResponseWriter, r *http.Request) {
	photos := s.booth.Photos()
	out := make([]PhotoInfo, len(photos))
	for i, p := range photos {
		out[i] = PhotoInfo{
			Index:  i,
			Handle: p.Handle,
			Width:  p.Width,
			Height: p.Height,
			URL:    fmt.Sprintf("/api/session/photos/%d", i),
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"photos": out})
}

func (s *Server) handleGetPhoto(w http.ResponseWriter, r *http.Request) {
	img, err := s.booth.Photo(photoIndex(r))
	if err != nil {
		s.writeError(w, err)
		return
	}

	var data []byte
	if size := r.URL.Query().Get("size"); size != "" {
		n, convErr := strconv.Atoi(size)
		if convErr != nil || n <= 0 {
			s.badRequest(w, fmt.Errorf("size must be a positive integer"))
			return
		}
		data, err = export.Thumbnail(img, n)
	} else {
		data, err = export.Still(img)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

func (s *Server) handleDeletePhoto(w http.ResponseWriter, r *http.Request) {
	if err := s.booth.Remove(r.Context(), photoIndex(r)); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Selection

func (s *Server) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	refs, err := s.booth.Selection(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SelectionRequest{Refs: refs})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req SelectionRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	if err := s.booth.Select(r.Context(), req.Refs); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Compositing

func (s *Server) handleThemes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"themes": s.renderer.Catalog().List()})
}

func (s *Server) handleComposite(w http.ResponseWriter, r *http.Request) {
	var req CompositeRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			s.badRequest(w, err)
			return
		}
	}

	slots := s.opts.Layout.Slots
	if len(req.Refs) > len(slots) {
		s.badRequest(w, fmt.Errorf("%d images for %d slots", len(req.Refs), len(slots)))
		return
	}

	refs := req.Refs
	if len(refs) > 0 {
		resolved, err := s.booth.ResolveRefs(r.Context(), refs)
		if err != nil {
			s.writeError(w, err)
			return
		}
		refs = resolved
	} else {
		selected, err := s.booth.Selection(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		refs = selected
	}
	if len(refs) == 0 {
		refs = s.booth.Refs()
	}

	result, err := s.renderer.Compose(r.Context(), refs, req.Theme, slots)
	if err != nil {
		s.writeError(w, err)
		return
	}
	data, err := export.Encode(result.Canvas)
	if err != nil {
		s.writeError(w, err)
		return
	}

	name := export.Filename(s.opts.ExportPrefix, s.opts.Now())
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Slots-Drawn", strconv.Itoa(result.Drawn()))
	w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
