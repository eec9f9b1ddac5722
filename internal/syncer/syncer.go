// Package syncer runs sync cycles: build the local bundle, pull the remote
// one, merge, write the merged result back locally and push it.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lherron/folio/internal/bundle"
	"github.com/lherron/folio/internal/domain"
	"github.com/lherron/folio/internal/events"
	"github.com/lherron/folio/internal/notify"
	"github.com/lherron/folio/internal/remote"
	"github.com/lherron/folio/internal/store"
	"go.uber.org/zap"
)

// ErrSyncInProgress is returned when a cycle is already running.
var ErrSyncInProgress = errors.New("sync already in progress")

// Local is the local side of a sync cycle.
type Local interface {
	LocalBundle(ctx context.Context, userID string) (*bundle.SyncBundle, error)
	ApplyBundle(ctx context.Context, userID string, b *bundle.SyncBundle) (store.ApplyStats, error)
	SetSyncState(ctx context.Context, userID, mergedRev string) error
}

// Report describes one completed cycle.
type Report struct {
	UserID            string                 `json:"userId"`
	StartedAt         string                 `json:"startedAt"`
	FinishedAt        string                 `json:"finishedAt"`
	Conflicts         bundle.ConflictSummary `json:"conflicts"`
	InvalidTimestamps []string               `json:"invalidTimestamps,omitempty"`
	LocalRev          string                 `json:"localRev"`
	RemoteRev         string                 `json:"remoteRev"`
	MergedRev         string                 `json:"mergedRev"`
	Counts            bundle.Counts          `json:"counts"`
	AppliedLocal      bool                   `json:"appliedLocal"`
	Applied           store.ApplyStats       `json:"applied"`
	PushedRemote      bool                   `json:"pushedRemote"`
	// Newest is the latest updatedAt in the merged bundle.
	Newest string `json:"newest,omitempty"`
}

// Status is a point-in-time view of a Service.
type Status struct {
	Running    bool    `json:"running"`
	LastReport *Report `json:"lastReport,omitempty"`
	LastError  string  `json:"lastError,omitempty"`
	LastRunAt  string  `json:"lastRunAt,omitempty"`
}

// Service serializes sync cycles for one user.
type Service struct {
	Local    Local
	Remote   remote.Remote
	UserID   string
	Events   events.Sink
	Notifier *notify.Notifier
	Logger   *zap.Logger
	Now      func() time.Time

	run sync.Mutex

	mu         sync.Mutex
	running    bool
	lastReport *Report
	lastErr    error
	lastRunAt  time.Time
}

func (s *Service) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// RunOnce performs one sync cycle. It returns ErrSyncInProgress without
// waiting when another cycle is running on the same Service.
func (s *Service) RunOnce(ctx context.Context) (*Report, error) {
	if !s.run.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer s.run.Unlock()

	s.setRunning(true)
	report, err := s.cycle(ctx)
	s.finish(report, err)

	if err != nil {
		s.logger().Error("sync failed", zap.String("user_id", s.UserID), zap.Error(err))
		if s.Events != nil {
			if logErr := s.Events.LogFailure(ctx, s.UserID, events.SyncFailed, err); logErr != nil {
				s.logger().Warn("failed to log sync failure", zap.Error(logErr))
			}
		}
		return nil, err
	}

	s.logger().Info("sync completed",
		zap.String("user_id", s.UserID),
		zap.Int("conflicts", report.Conflicts.Total()),
		zap.Int("invalid_timestamps", len(report.InvalidTimestamps)),
		zap.Bool("applied_local", report.AppliedLocal),
		zap.Bool("pushed_remote", report.PushedRemote),
		zap.String("merged_rev", report.MergedRev))
	if s.Events != nil {
		if logErr := s.Events.Log(ctx, s.UserID, events.SyncCompleted, report); logErr != nil {
			s.logger().Warn("failed to log sync completion", zap.Error(logErr))
		}
	}
	s.Notifier.Send(ctx, notify.Payload{
		Event:        events.SyncCompleted,
		UserID:       s.UserID,
		MergedRev:    report.MergedRev,
		Conflicts:    report.Conflicts.Total(),
		PushedRemote: report.PushedRemote,
		At:           report.FinishedAt,
	})
	return report, nil
}

func (s *Service) cycle(ctx context.Context) (*Report, error) {
	if s.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if s.Remote == nil {
		return nil, fmt.Errorf("no remote configured")
	}

	report := &Report{UserID: s.UserID, StartedAt: domain.FormatTimestamp(s.now())}

	local, err := s.Local.LocalBundle(ctx, s.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to read local bundle: %w", err)
	}
	remoteBundle, err := s.Remote.Pull(ctx, s.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to pull remote bundle: %w", err)
	}

	result := bundle.Merge(local, remoteBundle)
	report.Conflicts = result.Conflicts
	report.InvalidTimestamps = result.InvalidTimestamps
	report.Counts = result.Merged.Counts()
	if newest := bundle.Newest(result.Merged); !newest.IsZero() {
		report.Newest = domain.FormatTimestamp(newest)
	}

	if report.LocalRev, err = bundle.Rev(local); err != nil {
		return nil, err
	}
	if report.RemoteRev, err = bundle.Rev(remoteBundle); err != nil {
		return nil, err
	}
	if report.MergedRev, err = bundle.Rev(result.Merged); err != nil {
		return nil, err
	}

	if report.MergedRev != report.LocalRev {
		stats, err := s.Local.ApplyBundle(ctx, s.UserID, result.Merged)
		if err != nil {
			return nil, fmt.Errorf("failed to apply merged bundle: %w", err)
		}
		report.AppliedLocal = true
		report.Applied = stats
	}
	if report.MergedRev != report.RemoteRev {
		if err := s.Remote.Push(ctx, s.UserID, result.Merged); err != nil {
			return nil, fmt.Errorf("failed to push merged bundle: %w", err)
		}
		report.PushedRemote = true
	}

	if err := s.Local.SetSyncState(ctx, s.UserID, report.MergedRev); err != nil {
		return nil, err
	}
	report.FinishedAt = domain.FormatTimestamp(s.now())
	return report, nil
}

func (s *Service) setRunning(v bool) {
	s.mu.Lock()
	s.running = v
	s.mu.Unlock()
}

func (s *Service) finish(report *Report, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.lastRunAt = s.now()
	s.lastErr = err
	if err == nil {
		s.lastReport = report
	}
}

// Status returns whether a cycle is running and the outcome of the last one.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{Running: s.running, LastReport: s.lastReport}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	if !s.lastRunAt.IsZero() {
		st.LastRunAt = domain.FormatTimestamp(s.lastRunAt)
	}
	return st
}
