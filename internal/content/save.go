package content

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

var errMissingAssignedID = errors.New("content: gateway returned no document id")

// Save validates the working copy, upserts it through the gateway and
// appends a version snapshot in the background. The snapshot outcome never
// changes the result of Save. Concurrent saves are not deduplicated; the
// store keeps whichever upsert lands last.
func (s *Session) Save(ctx context.Context) (Document, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Document{}, ErrSessionClosed
	}
	if s.document == nil {
		s.mu.Unlock()
		return Document{}, ErrNoDocument
	}
	if strings.TrimSpace(s.document.Title) == "" {
		s.mu.Unlock()
		return Document{}, &ValidationError{Field: "title", Reason: "required"}
	}
	bound := s.document
	pending := bound.Clone()
	pending.UpdatedAt = s.clock().UTC()
	revision := s.revision
	s.state = StateSaving
	s.snapshots.Add(1)
	s.mu.Unlock()

	saved, err := s.gateway.UpsertDocument(ctx, pending)
	if err == nil && saved.ID == "" {
		err = errMissingAssignedID
	}
	if err != nil {
		s.snapshots.Done()
		s.mu.Lock()
		if s.document == bound {
			s.state = StateEditing
		}
		s.mu.Unlock()

		s.logError(opSessionSave, "upsert_failed", err,
			zap.String("document_id", pending.ID),
			zap.String("slug", pending.Slug))
		var persistenceErr *PersistenceError
		if !errors.As(err, &persistenceErr) {
			err = &PersistenceError{Op: "upsert", Err: err}
		}
		return Document{}, err
	}

	// A document bound while the upsert was in flight keeps its own identity.
	s.mu.Lock()
	if s.document == bound {
		bound.ID = saved.ID
		bound.CreatedAt = saved.CreatedAt
		bound.UpdatedAt = saved.UpdatedAt
		if s.revision == revision {
			s.state = StateSaved
		} else {
			s.state = StateEditing
		}
	}
	s.mu.Unlock()

	s.appendSnapshot(ctx, VersionSnapshot{
		DocumentID: saved.ID,
		Blocks:     cloneBlocks(pending.Blocks),
		CreatedAt:  pending.UpdatedAt,
	})

	if s.onSaved != nil {
		s.onSaved(saved.Clone())
	}
	return saved.Clone(), nil
}

// WaitForSnapshots blocks until every snapshot append started by Save has
// settled. It must not run concurrently with Save; use Close to stop a
// session that may still receive saves.
func (s *Session) WaitForSnapshots() {
	s.snapshots.Wait()
}

// Close makes further saves fail with ErrSessionClosed, then waits for the
// saves and snapshot appends already in flight.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.snapshots.Wait()
}

// appendSnapshot consumes the snapshots slot reserved by Save.
func (s *Session) appendSnapshot(ctx context.Context, snapshot VersionSnapshot) {
	detached := context.WithoutCancel(ctx)
	go func() {
		defer s.snapshots.Done()
		appendCtx, cancel := context.WithTimeout(detached, snapshotTimeout)
		defer cancel()

		err := s.gateway.AppendVersionSnapshot(appendCtx, snapshot)
		if err == nil {
			s.logger.Debug("version snapshot appended",
				zap.String("document_id", snapshot.DocumentID),
				zap.Int("blocks", len(snapshot.Blocks)))
			return
		}
		failure := &SnapshotError{DocumentID: snapshot.DocumentID, Err: err}
		s.logError(opSessionSave, "snapshot_append_failed", failure,
			zap.String("document_id", snapshot.DocumentID))
		if s.onSnapshotFailed != nil {
			s.onSnapshotFailed(failure)
		}
	}()
}
