package journal

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/nainya/hsplines/pkg/codec"
	"github.com/nainya/hsplines/pkg/hbasis"
)

// Record is the decoded payload of an entry. Which fields are set depends on
// the operation.
type Record struct {
	Op OpType

	// OpCreate, OpCheckpoint
	Document codec.Document

	// OpRefine; boxes are converted at RefLevel unless Extension is positive
	ParamBoxes []hbasis.ParamBox
	Extension  int
	RefLevel   int

	// OpRefineElements; a negative Grid means corners in each box's level
	IndexBoxes []hbasis.IndexBox
	Grid       int
}

const (
	fieldBox       protowire.Number = 1
	fieldExtension protowire.Number = 2
	fieldGrid      protowire.Number = 3
	fieldRefLevel  protowire.Number = 4
)

// Create records a new session
func Create(doc codec.Document) Record {
	return Record{Op: OpCreate, Document: doc}
}

// Checkpoint records the full state of a session
func Checkpoint(b *hbasis.Basis) Record {
	return Record{Op: OpCheckpoint, Document: codec.FromBasis(b)}
}

// Refine records RefineAt(refLevel) when ext is zero, RefineWithExtension
// otherwise
func Refine(refLevel, ext int, boxes ...hbasis.ParamBox) Record {
	return Record{Op: OpRefine, RefLevel: refLevel, Extension: ext, ParamBoxes: boxes}
}

// RefineElements records RefineElements
func RefineElements(boxes ...hbasis.IndexBox) Record {
	return Record{Op: OpRefineElements, IndexBoxes: boxes, Grid: -1}
}

// UniformRefine records UniformRefine
func UniformRefine() Record {
	return Record{Op: OpUniformRefine}
}

// Drop records the removal of a session
func Drop() Record {
	return Record{Op: OpDrop}
}

// Encode serializes the record payload
func (r Record) Encode() []byte {
	switch r.Op {
	case OpCreate, OpCheckpoint:
		return r.Document.Encode()
	case OpRefine:
		var buf []byte
		for _, box := range r.ParamBoxes {
			buf = protowire.AppendTag(buf, fieldBox, protowire.BytesType)
			buf = protowire.AppendBytes(buf, codec.EncodeParamBox(box))
		}
		if r.Extension > 0 {
			buf = protowire.AppendTag(buf, fieldExtension, protowire.VarintType)
			buf = protowire.AppendVarint(buf, uint64(r.Extension))
		}
		buf = protowire.AppendTag(buf, fieldRefLevel, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(r.RefLevel))
		return buf
	case OpRefineElements:
		var buf []byte
		for _, box := range r.IndexBoxes {
			buf = protowire.AppendTag(buf, fieldBox, protowire.BytesType)
			buf = protowire.AppendBytes(buf, codec.EncodeBox(box))
		}
		if r.Grid >= 0 {
			buf = protowire.AppendTag(buf, fieldGrid, protowire.VarintType)
			buf = protowire.AppendVarint(buf, uint64(r.Grid))
		}
		return buf
	}
	return nil
}

// DecodeRecord parses the payload of an entry with the given operation
func DecodeRecord(op OpType, payload []byte) (Record, error) {
	r := Record{Op: op}
	if op == OpRefineElements {
		r.Grid = -1
	}
	switch op {
	case OpCreate, OpCheckpoint:
		doc, err := codec.Decode(payload)
		if err != nil {
			return Record{}, fmt.Errorf("%w: %s: %w", ErrInvalidEntry, op, err)
		}
		r.Document = doc
	case OpRefine, OpRefineElements:
		err := codec.Walk(payload, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
			switch {
			case num == fieldBox && typ == protowire.BytesType && op == OpRefine:
				box, err := codec.DecodeParamBox(v)
				if err != nil {
					return err
				}
				r.ParamBoxes = append(r.ParamBoxes, box)
			case num == fieldBox && typ == protowire.BytesType:
				box, err := codec.DecodeBox(v)
				if err != nil {
					return err
				}
				r.IndexBoxes = append(r.IndexBoxes, box)
			case num == fieldExtension && typ == protowire.VarintType:
				r.Extension = int(x)
			case num == fieldGrid && typ == protowire.VarintType:
				r.Grid = int(x)
			case num == fieldRefLevel && typ == protowire.VarintType:
				r.RefLevel = int(x)
			}
			return nil
		})
		if err != nil {
			return Record{}, fmt.Errorf("%w: %s: %w", ErrInvalidEntry, op, err)
		}
	case OpUniformRefine, OpDrop:
	default:
		return Record{}, fmt.Errorf("%w: unknown operation %d", ErrInvalidEntry, op)
	}
	return r, nil
}

// Apply re-applies a refinement record to b. Create, checkpoint and drop
// records do not refine and are rejected.
func (r Record) Apply(b *hbasis.Basis) (err error) {
	// boxes from a damaged journal may violate basis preconditions
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %s: %v", ErrInvalidEntry, r.Op, p)
		}
	}()

	switch r.Op {
	case OpRefine:
		if r.Extension > 0 {
			b.RefineWithExtension(r.Extension, r.ParamBoxes...)
		} else {
			b.RefineAt(r.RefLevel, r.ParamBoxes...)
		}
	case OpRefineElements:
		if r.Grid >= 0 {
			b.RefineElementsOnGrid(r.Grid, r.IndexBoxes...)
		} else {
			b.RefineElements(r.IndexBoxes...)
		}
	case OpUniformRefine:
		b.UniformRefine()
	default:
		return fmt.Errorf("%w: %s is not a refinement", ErrInvalidEntry, r.Op)
	}
	return nil
}
