package journal

import (
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/nainya/hsplines/pkg/hbasis"
)

// ReplayFunc is called for each entry in log order with its decoded record
type ReplayFunc func(entry *Entry, rec Record) error

// RecoveryStats summarizes a replay
type RecoveryStats struct {
	TotalEntries       int
	Sessions           int
	DroppedSessions    int
	Checkpoints        int
	ReplayedOperations int
	LastCheckpointLSN  uint64
	SkippedFiles       int
}

// Recovery rebuilds sessions from the journal
type Recovery struct {
	journal *Journal
}

// NewRecovery creates a recovery manager
func NewRecovery(j *Journal) *Recovery {
	return &Recovery{journal: j}
}

// Recover decodes every entry and calls replay for it
func (r *Recovery) Recover(replay ReplayFunc) (*RecoveryStats, error) {
	stats := &RecoveryStats{}

	files, err := r.journal.Files()
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return nil, err
	}
	if len(files) == 0 {
		return stats, nil
	}

	reader := NewReader(files)
	if err := reader.Open(); err != nil {
		return nil, err
	}
	defer reader.Close()

	entries, err := readAllFrom(reader)
	stats.SkippedFiles = reader.Skipped()
	if err != nil {
		return nil, fmt.Errorf("failed to read journal entries: %w", err)
	}
	stats.TotalEntries = len(entries)

	for _, entry := range entries {
		rec, err := DecodeRecord(entry.OpType, entry.Payload)
		if err != nil {
			return stats, fmt.Errorf("replay failed at LSN %d: %w", entry.LSN, err)
		}
		if entry.OpType == OpCheckpoint {
			stats.Checkpoints++
			stats.LastCheckpointLSN = entry.LSN
		}
		if err := replay(entry, rec); err != nil {
			return stats, fmt.Errorf("replay failed at LSN %d: %w", entry.LSN, err)
		}
	}

	return stats, nil
}

// Rebuild replays the journal into one basis per live session. A create or
// checkpoint entry replaces the session state; refinement entries are
// re-applied on top of it.
func (r *Recovery) Rebuild(opts ...hbasis.Option) (map[uuid.UUID]*hbasis.Basis, *RecoveryStats, error) {
	sessions := make(map[uuid.UUID]*hbasis.Basis)
	dropped := 0

	stats, err := r.Recover(func(entry *Entry, rec Record) error {
		switch entry.OpType {
		case OpCreate, OpCheckpoint:
			b, err := rec.Document.Build(opts...)
			if err != nil {
				return err
			}
			sessions[entry.Session] = b
			return nil
		case OpDrop:
			if _, ok := sessions[entry.Session]; ok {
				delete(sessions, entry.Session)
				dropped++
			}
			return nil
		}

		b, ok := sessions[entry.Session]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownSession, entry.Session)
		}
		return rec.Apply(b)
	})
	if err != nil {
		return nil, stats, err
	}

	stats.Sessions = len(sessions)
	stats.DroppedSessions = dropped
	stats.ReplayedOperations = stats.TotalEntries - stats.Checkpoints
	return sessions, stats, nil
}
