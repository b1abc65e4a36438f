package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/nainya/hsplines/pkg/codec"
	"github.com/nainya/hsplines/pkg/hbasis"
)

// describe prints the structure of b, one row per level
func describe(w io.Writer, b *hbasis.Basis, leaves bool) {
	lo, hi := b.Domain()
	degrees := make([]int, b.Dim())
	for i := range degrees {
		degrees[i] = b.Degree(i)
	}
	fmt.Fprintf(w, "mode:      %s\n", b.Mode())
	fmt.Fprintf(w, "dimension: %d\n", b.Dim())
	fmt.Fprintf(w, "degrees:   %v\n", degrees)
	fmt.Fprintf(w, "domain:    %v - %v\n", lo, hi)
	fmt.Fprintf(w, "functions: %d\n", b.Size())
	fmt.Fprintf(w, "elements:  %d\n", b.NumElements())
	fmt.Fprintf(w, "tree:      level %d\n\n", b.TreeLevel())

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LEVEL\tACTIVE\tOFFSET")
	offsets := b.Offsets()
	for l := range b.NumLevels() {
		fmt.Fprintf(tw, "%d\t%d\t%d\n", l, offsets[l+1]-offsets[l], offsets[l])
	}
	tw.Flush()

	if !leaves {
		return
	}
	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LEAF LEVEL\tLOWER\tUPPER")
	for leaf := range b.Leaves() {
		fmt.Fprintf(tw, "%d\t%v\t%v\n", leaf.Level, leaf.Lower, leaf.Upper)
	}
	tw.Flush()
}

// readDocument loads and builds a stored basis document
func readDocument(path string) (*hbasis.Basis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	b, err := codec.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// writeDocument stores b as a basis document
func writeDocument(path string, b *hbasis.Basis) error {
	return os.WriteFile(path, codec.Marshal(b), 0644)
}
