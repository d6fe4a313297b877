// Package monitor runs one monitoring pass over the target roster:
// fetch each target's on-chain definition, snapshot it when its content
// hash is new, diff against the previous snapshot and persist the
// detected changes.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"idlwatch/diff"
	"idlwatch/idgen"
	"idlwatch/idl"
	"idlwatch/internal/store"
)

// Fetcher retrieves the current definition for a program address.
// A nil definition with a nil error means the definition account is
// confirmed absent on chain. *idl.Reader satisfies this.
type Fetcher interface {
	Fetch(ctx context.Context, address string) (*idl.Definition, error)
}

// Config controls one monitoring run.
type Config struct {
	// Concurrency bounds the number of targets checked in parallel.
	Concurrency int
}

func (c *Config) defaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 10
	}
}

// TargetError records a failure confined to one target during a run.
type TargetError struct {
	TargetID string `json:"target_id"`
	Address  string `json:"address"`
	Err      error  `json:"-"`
	Message  string `json:"message"`
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("monitor: target %s (%s): %v", e.TargetID, e.Address, e.Err)
}

func (e *TargetError) Unwrap() error { return e.Err }

// RunResult summarises one monitoring run.
type RunResult struct {
	RunID            string        `json:"run_id"`
	Checked          int           `json:"checked"`
	SnapshotsCreated int           `json:"snapshots_created"`
	ChangesDetected  int           `json:"changes_detected"`
	Errors           []TargetError `json:"errors,omitempty"`
	DurationMs       int64         `json:"duration_ms"`
}

// Service orchestrates monitoring runs.
type Service struct {
	store   *store.Store
	fetcher Fetcher
	config  Config
	logger  *slog.Logger
}

// NewService wires a monitoring service.
func NewService(st *store.Store, fetcher Fetcher, cfg Config, logger *slog.Logger) *Service {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   st,
		fetcher: fetcher,
		config:  cfg,
		logger:  logger.With("component", "monitor"),
	}
}

type targetResult struct {
	snapshotCreated bool
	changesDetected int
	err             error
}

// Run checks every enabled target once. Target enumeration failure is
// the only fatal error; everything else is confined to its target and
// reported in RunResult.Errors.
func (s *Service) Run(ctx context.Context) (*RunResult, error) {
	start := time.Now()
	runID := idgen.NewRunID()
	log := s.logger.With("run_id", runID)

	targets, err := s.store.ListActiveTargets(ctx)
	if err != nil {
		return nil, fmt.Errorf("monitor: list targets: %w", err)
	}
	log.Info("run started", "targets", len(targets))

	sem := make(chan struct{}, s.config.Concurrency)
	var wg sync.WaitGroup
	results := make([]targetResult, len(targets))

	for i, t := range targets {
		wg.Add(1)
		sem <- struct{}{}

		go func(idx int, t *store.Target) {
			defer wg.Done()
			defer func() { <-sem }()

			created, changes, err := s.checkTarget(ctx, t)
			results[idx] = targetResult{snapshotCreated: created, changesDetected: changes, err: err}
		}(i, t)
	}
	wg.Wait()

	res := &RunResult{RunID: runID, Checked: len(targets)}
	for i, r := range results {
		if r.snapshotCreated {
			res.SnapshotsCreated++
		}
		res.ChangesDetected += r.changesDetected
		if r.err != nil {
			res.Errors = append(res.Errors, TargetError{
				TargetID: targets[i].ID,
				Address:  targets[i].Address,
				Err:      r.err,
				Message:  r.err.Error(),
			})
		}
	}
	res.DurationMs = time.Since(start).Milliseconds()

	log.Info("run finished",
		"checked", res.Checked,
		"snapshots", res.SnapshotsCreated,
		"changes", res.ChangesDetected,
		"errors", len(res.Errors),
		"duration_ms", res.DurationMs)
	return res, nil
}

// checkTarget runs the fetch/hash/snapshot/diff sequence for one
// target. The content-hash existence check is the idempotency
// mechanism: a hash already on record means nothing to persist.
func (s *Service) checkTarget(ctx context.Context, t *store.Target) (created bool, changes int, err error) {
	log := s.logger.With("target", t.ID, "address", t.Address)

	def, err := s.fetcher.Fetch(ctx, t.Address)
	if err != nil {
		log.Warn("fetch failed", "error", err)
		if dbErr := s.store.RecordCheckError(ctx, t.ID, err); dbErr != nil {
			log.Error("record check error", "error", dbErr)
		}
		return false, 0, err
	}
	if def == nil {
		log.Debug("definition account absent")
		return false, 0, s.store.RecordCheckNotFound(ctx, t.ID)
	}

	hash, err := idl.ContentHash(def)
	if err != nil {
		s.store.RecordCheckError(ctx, t.ID, err)
		return false, 0, err
	}

	exists, err := s.store.SnapshotExists(ctx, t.ID, hash)
	if err != nil {
		return false, 0, err
	}
	if exists {
		log.Debug("content unchanged", "hash", hash)
		return false, 0, s.store.RecordCheckUnchanged(ctx, t.ID)
	}

	prior, err := s.store.LatestSnapshot(ctx, t.ID)
	if err != nil {
		return false, 0, err
	}

	raw, err := def.JSON()
	if err != nil {
		return false, 0, err
	}
	snap := &store.Snapshot{
		ID:          idgen.NewSnapshotID(),
		TargetID:    t.ID,
		ContentHash: hash,
		IDLJSON:     string(raw),
	}
	if err := s.store.CreateSnapshot(ctx, snap); err != nil {
		return false, 0, err
	}

	var oldDef *idl.Definition
	var oldSnapshotID *string
	if prior != nil {
		oldDef, err = idl.Parse([]byte(prior.IDLJSON))
		if err != nil {
			return true, 0, fmt.Errorf("monitor: stored snapshot %s unparseable: %w", prior.ID, err)
		}
		oldSnapshotID = &prior.ID
	}

	detected, err := diff.Detect(oldDef, def)
	if err != nil {
		return true, 0, err
	}
	for _, c := range detected {
		detail, err := json.Marshal(c.Detail)
		if err != nil {
			return true, changes, err
		}
		rec := &store.ChangeRecord{
			ID:            idgen.NewChangeID(),
			TargetID:      t.ID,
			OldSnapshotID: oldSnapshotID,
			NewSnapshotID: snap.ID,
			ChangeType:    string(c.Type),
			Severity:      c.Severity.String(),
			Summary:       c.Summary,
			DetailJSON:    string(detail),
		}
		if err := s.store.InsertChange(ctx, rec); err != nil {
			return true, changes, err
		}
		changes++
	}

	if err := s.store.RecordCheckOK(ctx, t.ID); err != nil {
		return true, changes, err
	}
	log.Info("snapshot created",
		"version", snap.VersionNumber, "hash", hash, "changes", changes)
	return true, changes, nil
}
