package journal

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nainya/hsplines/pkg/hbasis"
)

const (
	// DefaultCheckpointInterval is how often checkpoints are created
	DefaultCheckpointInterval = 10 * time.Minute
)

// EmitFunc writes the checkpoint of one session
type EmitFunc func(session uuid.UUID, b *hbasis.Basis) error

// Visitor calls emit for every live session. The session must not be
// refined while emit runs for it.
type Visitor func(emit EmitFunc) error

// Checkpointer periodically writes the full state of every session to a fresh
// journal file and removes the files before it
type Checkpointer struct {
	journal  *Journal
	visit    Visitor
	log      zerolog.Logger
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewCheckpointer creates a checkpointer
func NewCheckpointer(j *Journal, visit Visitor, log zerolog.Logger) *Checkpointer {
	return &Checkpointer{
		journal:  j,
		visit:    visit,
		log:      log,
		interval: DefaultCheckpointInterval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start starts the background checkpointing process
func (c *Checkpointer) Start() {
	go c.run()
}

// Stop stops the checkpointer
func (c *Checkpointer) Stop() {
	close(c.stopCh)
	<-c.doneCh
}

func (c *Checkpointer) run() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Checkpoint(); err != nil {
				c.log.Error().Err(err).Msg("checkpoint failed")
			}

		case <-c.stopCh:
			return
		}
	}
}

// Checkpoint starts a new journal file, writes a checkpoint entry for every
// session into it and removes the older files
func (c *Checkpointer) Checkpoint() error {
	start := time.Now()
	j := c.journal

	j.mu.Lock()
	if j.closed || j.fd == nil {
		j.mu.Unlock()
		return ErrLogClosed
	}
	if j.fileSize > 0 {
		if err := j.rotateNoLock(); err != nil {
			j.mu.Unlock()
			return fmt.Errorf("rotate failed: %w", err)
		}
	}
	first := j.fileIndex
	j.mu.Unlock()

	sessions := 0
	err := c.visit(func(session uuid.UUID, b *hbasis.Basis) error {
		sessions++
		_, err := j.Append(session, Checkpoint(b))
		return err
	})
	if err != nil {
		return fmt.Errorf("write checkpoint entry failed: %w", err)
	}

	if err := j.Fsync(); err != nil {
		return fmt.Errorf("fsync checkpoint failed: %w", err)
	}

	j.mu.Lock()
	err = j.removeBeforeNoLock(first)
	j.mu.Unlock()
	if err != nil {
		return fmt.Errorf("truncate failed: %w", err)
	}

	c.log.Info().
		Int("sessions", sessions).
		Uint64("lsn", j.LastLSN()).
		Dur("duration", time.Since(start)).
		Msg("checkpoint written")
	return nil
}

// SetInterval changes the checkpoint interval
func (c *Checkpointer) SetInterval(interval time.Duration) {
	c.interval = interval
}
