package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/lherron/folio/internal/bundle"
	"github.com/lherron/folio/internal/domain"
	"github.com/lherron/folio/internal/remote"
	"github.com/lherron/folio/internal/syncer"
	"go.uber.org/zap"
)

// maxBundleBytes bounds a pushed bundle.
const maxBundleBytes = 64 << 20

var errUnavailable = errors.New("not configured")

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeData(w, map[string]any{
		"ok":     true,
		"userId": s.UserID,
		"time":   domain.FormatTimestamp(s.now()),
	})
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if s.Sync == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("sync %w", errUnavailable))
		return
	}
	writeData(w, s.Sync.Status())
}

func (s *Server) handleSyncRun(w http.ResponseWriter, r *http.Request) {
	if s.Sync == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("sync %w", errUnavailable))
		return
	}
	report, err := s.Sync.RunOnce(r.Context())
	if errors.Is(err, syncer.ErrSyncInProgress) {
		writeError(w, http.StatusConflict, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeData(w, report)
}

type recoveryRequest struct {
	DryRun bool `json:"dryRun"`
}

func (s *Server) handleRecoveryRun(w http.ResponseWriter, r *http.Request) {
	if s.Recover == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("recovery %w", errUnavailable))
		return
	}
	var req recoveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	// A failed recovery is still a result: the envelope succeeds and the
	// result carries success=false with its message.
	writeData(w, s.Recover(r.Context(), req.DryRun))
}

func (s *Server) handleSnapshotExport(w http.ResponseWriter, r *http.Request) {
	if s.Snapshots == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("snapshots %w", errUnavailable))
		return
	}
	res, err := s.Snapshots.Export(r.Context(), s.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeData(w, res)
}

func (s *Server) handleBundleGet(w http.ResponseWriter, r *http.Request) {
	if s.Bundles == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("bundle store %w", errUnavailable))
		return
	}
	userID, err := userParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	b, err := s.Bundles.Pull(r.Context(), userID)
	if err != nil {
		s.logger().Error("bundle read failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := bundle.Encode(w, b); err != nil {
		s.logger().Warn("bundle write failed", zap.Error(err))
	}
}

func (s *Server) handleBundlePut(w http.ResponseWriter, r *http.Request) {
	if s.Bundles == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("bundle store %w", errUnavailable))
		return
	}
	userID, err := userParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	b, err := bundle.Decode(http.MaxBytesReader(w, r.Body, maxBundleBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid bundle: %w", err))
		return
	}
	if err := s.Bundles.Push(r.Context(), userID, b); err != nil {
		s.logger().Error("bundle store failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	rev, err := bundle.Rev(b)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeData(w, map[string]any{"rev": rev, "counts": b.Counts()})
}

// userParam returns the unescaped {userID} segment. chi matches on the raw
// path when the client escaped it.
func userParam(r *http.Request) (string, error) {
	userID, err := url.PathUnescape(chi.URLParam(r, "userID"))
	if err != nil {
		return "", fmt.Errorf("invalid user id: %w", err)
	}
	if err := remote.ValidateUserID(userID); err != nil {
		return "", err
	}
	return userID, nil
}
