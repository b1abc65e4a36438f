package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nainya/hsplines/internal/logger"
	"github.com/nainya/hsplines/pkg/hbasis"
	"github.com/nainya/hsplines/pkg/journal"
)

func runRefine(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var b *hbasis.Basis
	if documentIn != "" {
		if b, err = readDocument(documentIn); err != nil {
			return err
		}
	} else {
		if modeName != "" {
			cfg.Basis.Mode = modeName
		}
		opts, err := cfg.Basis.Options()
		if err != nil {
			return err
		}
		tb, err := cfg.Basis.Tensor()
		if err != nil {
			return err
		}
		opts = append(opts, hbasis.WithLogger(logger.GetGlobalLogger().BasisLogger("refine")))
		b = hbasis.New(tb, opts...)
	}

	// Apply recovers precondition panics into errors
	var records []journal.Record
	for range uniform {
		records = append(records, journal.UniformRefine())
	}
	for _, s := range indexBoxes {
		box, err := parseIndexBox(s)
		if err != nil {
			return err
		}
		records = append(records, journal.RefineElements(box))
	}
	for _, s := range paramBoxes {
		box, err := parseParamBox(s)
		if err != nil {
			return err
		}
		records = append(records, journal.Refine(0, 0, box))
	}
	for _, rec := range records {
		if rec.Op == journal.OpRefine {
			// earlier records may have grown the level stack
			rec.RefLevel = b.RefineLevel()
		}
		if err := rec.Apply(b); err != nil {
			return err
		}
	}

	describe(cmd.OutOrStdout(), b, showLeaves)
	if documentOut != "" {
		if err := writeDocument(documentOut, b); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\nwrote %s\n", documentOut)
	}
	return nil
}
