package main

import (
	"fmt"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nainya/hsplines/internal/logger"
	"github.com/nainya/hsplines/pkg/hbasis"
	"github.com/nainya/hsplines/pkg/journal"
)

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := cfg.Journal.Path
	if journalPath != "" {
		path = journalPath
	}

	// read-only: Open would truncate a torn tail
	j := &journal.Journal{Path: path}
	start := time.Now()
	bases, stats, err := journal.NewRecovery(j).Rebuild(
		hbasis.WithLogger(logger.GetGlobalLogger().BasisLogger("replay")),
	)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "journal:     %s\n", path)
	fmt.Fprintf(w, "entries:     %d (%d checkpoints)\n", stats.TotalEntries, stats.Checkpoints)
	fmt.Fprintf(w, "sessions:    %d live, %d dropped\n", stats.Sessions, stats.DroppedSessions)
	if stats.SkippedFiles > 0 {
		fmt.Fprintf(w, "damaged:     %d files\n", stats.SkippedFiles)
	}
	fmt.Fprintf(w, "replayed in: %s\n\n", time.Since(start).Round(time.Microsecond))

	ids := make([]uuid.UUID, 0, len(bases))
	for id := range bases {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return slices.Compare(a[:], b[:]) })

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tMODE\tDIM\tFUNCTIONS\tLEVELS")
	for _, id := range ids {
		b := bases[id]
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n", id, b.Mode(), b.Dim(), b.Size(), b.NumLevels())
	}
	tw.Flush()

	if sessionID == "" {
		return nil
	}
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return fmt.Errorf("invalid session id: %w", err)
	}
	b, ok := bases[id]
	if !ok {
		return fmt.Errorf("session %s is not live in the journal", id)
	}
	fmt.Fprintln(w)
	describe(w, b, showLeaves)
	if documentOut != "" {
		if err := writeDocument(documentOut, b); err != nil {
			return err
		}
		fmt.Fprintf(w, "\nwrote %s\n", documentOut)
	}
	return nil
}
