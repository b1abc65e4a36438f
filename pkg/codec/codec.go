// ABOUTME: Binary document format for hierarchical spline bases
// ABOUTME: Stores the variant, the level-0 tensor basis and the refinement boxes

// Package codec serializes a hierarchical basis as a protobuf-wire document.
//
// Field layout:
//
//	1 variant    string  "HBSplineBasis" or "THBSplineBasis"
//	2 direction  message {1 degree varint, 2 knots packed fixed64}
//	3 grid       varint  level of the box corner coordinates
//	4 box        message {1 level varint, 2 lower packed varint, 3 upper packed varint}
//
// Directions and boxes repeat in order.
package codec

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/nainya/hsplines/pkg/bspline"
	"github.com/nainya/hsplines/pkg/hbasis"
	"github.com/nainya/hsplines/pkg/hdomain"
)

var (
	// ErrMalformed indicates bytes that are not a valid document
	ErrMalformed = errors.New("codec: malformed document")

	// ErrInvalidDocument indicates a well-formed document describing an invalid basis
	ErrInvalidDocument = errors.New("codec: invalid document")
)

const (
	fieldVariant   protowire.Number = 1
	fieldDirection protowire.Number = 2
	fieldGrid      protowire.Number = 3
	fieldBox       protowire.Number = 4

	fieldDegree protowire.Number = 1
	fieldKnots  protowire.Number = 2

	fieldLevel protowire.Number = 1
	fieldLower protowire.Number = 2
	fieldUpper protowire.Number = 3

	fieldParamLower protowire.Number = 1
	fieldParamUpper protowire.Number = 2
)

// Direction is the univariate level-0 basis of one parametric direction
type Direction struct {
	Degree int
	Knots  []float64
}

// Document is the decoded form of a serialized basis
type Document struct {
	Mode       hbasis.Mode
	Directions []Direction
	Grid       int
	Boxes      []hbasis.IndexBox
}

// FromBasis captures the level-0 tensor basis and the refinement boxes of b
func FromBasis(b *hbasis.Basis) Document {
	tb := b.TensorLevel(0)
	doc := Document{Mode: b.Mode(), Directions: make([]Direction, tb.Dim())}
	for i := range doc.Directions {
		doc.Directions[i] = Direction{Degree: tb.Degree(i), Knots: tb.Knots(i).Values()}
	}
	doc.Grid, doc.Boxes = b.BoxHistory()
	return doc
}

// Build reconstructs the basis described by the document
func (d Document) Build(opts ...hbasis.Option) (*hbasis.Basis, error) {
	tb, err := d.Tensor()
	if err != nil {
		return nil, err
	}
	if err := d.checkBoxes(tb); err != nil {
		return nil, err
	}

	opts = append([]hbasis.Option{hbasis.WithMode(d.Mode)}, opts...)
	b := hbasis.New(tb, opts...)
	if len(d.Boxes) > 0 {
		b.RefineElementsOnGrid(d.Grid, d.Boxes...)
	}
	return b, nil
}

// Tensor builds the level-0 tensor basis
func (d Document) Tensor() (*bspline.TensorBasis, error) {
	if len(d.Directions) == 0 {
		return nil, fmt.Errorf("%w: no directions", ErrInvalidDocument)
	}
	comps := make([]*bspline.Basis, len(d.Directions))
	for i, dir := range d.Directions {
		kv, err := bspline.NewKnotVector(dir.Knots)
		if err != nil {
			return nil, fmt.Errorf("%w: direction %d: %w", ErrInvalidDocument, i, err)
		}
		comps[i], err = bspline.NewBasis(kv, dir.Degree)
		if err != nil {
			return nil, fmt.Errorf("%w: direction %d: %w", ErrInvalidDocument, i, err)
		}
	}
	return bspline.NewTensorBasis(comps...)
}

func (d Document) checkBoxes(tb *bspline.TensorBasis) error {
	if d.Grid < 0 || d.Grid > hdomain.DefaultIndexLevel {
		return fmt.Errorf("%w: grid level %d", ErrInvalidDocument, d.Grid)
	}
	for n, box := range d.Boxes {
		if box.Level < 0 || box.Level > hdomain.DefaultIndexLevel {
			return fmt.Errorf("%w: box %d has level %d", ErrInvalidDocument, n, box.Level)
		}
		if len(box.Lower) != tb.Dim() || len(box.Upper) != tb.Dim() {
			return fmt.Errorf("%w: box %d does not have dimension %d", ErrInvalidDocument, n, tb.Dim())
		}
		for i := range tb.Dim() {
			cells := (tb.Knots(i).USize() - 1) << d.Grid
			if box.Lower[i] < 0 || box.Lower[i] >= box.Upper[i] || box.Upper[i] > cells {
				return fmt.Errorf("%w: box %d spans %d-%d in direction %d of %d cells",
					ErrInvalidDocument, n, box.Lower[i], box.Upper[i], i, cells)
			}
		}
	}
	return nil
}

// Marshal encodes the refinement state of b
func Marshal(b *hbasis.Basis) []byte {
	return FromBasis(b).Encode()
}

// Unmarshal decodes a document and rebuilds its basis
func Unmarshal(data []byte, opts ...hbasis.Option) (*hbasis.Basis, error) {
	doc, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return doc.Build(opts...)
}

// Encode serializes the document
func (d Document) Encode() []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, fieldVariant, protowire.BytesType)
	buf = protowire.AppendString(buf, d.Mode.String())

	for _, dir := range d.Directions {
		var msg []byte
		msg = protowire.AppendTag(msg, fieldDegree, protowire.VarintType)
		msg = protowire.AppendVarint(msg, uint64(dir.Degree))
		msg = protowire.AppendTag(msg, fieldKnots, protowire.BytesType)
		msg = protowire.AppendBytes(msg, PackFloats(dir.Knots))

		buf = protowire.AppendTag(buf, fieldDirection, protowire.BytesType)
		buf = protowire.AppendBytes(buf, msg)
	}

	buf = protowire.AppendTag(buf, fieldGrid, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(d.Grid))

	for _, box := range d.Boxes {
		buf = protowire.AppendTag(buf, fieldBox, protowire.BytesType)
		buf = protowire.AppendBytes(buf, EncodeBox(box))
	}
	return buf
}

// EncodeBox serializes one index box
func EncodeBox(box hbasis.IndexBox) []byte {
	var msg []byte
	msg = protowire.AppendTag(msg, fieldLevel, protowire.VarintType)
	msg = protowire.AppendVarint(msg, uint64(box.Level))
	msg = protowire.AppendTag(msg, fieldLower, protowire.BytesType)
	msg = protowire.AppendBytes(msg, PackInts(box.Lower))
	msg = protowire.AppendTag(msg, fieldUpper, protowire.BytesType)
	msg = protowire.AppendBytes(msg, PackInts(box.Upper))
	return msg
}

// Decode parses a serialized document. Unknown fields are skipped.
func Decode(data []byte) (Document, error) {
	var doc Document
	sawVariant := false
	err := Walk(data, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		switch {
		case num == fieldVariant && typ == protowire.BytesType:
			m, err := hbasis.ParseMode(string(v))
			if err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
			}
			doc.Mode = m
			sawVariant = true
		case num == fieldDirection && typ == protowire.BytesType:
			dir, err := decodeDirection(v)
			if err != nil {
				return err
			}
			doc.Directions = append(doc.Directions, dir)
		case num == fieldGrid && typ == protowire.VarintType:
			doc.Grid = int(x)
		case num == fieldBox && typ == protowire.BytesType:
			box, err := DecodeBox(v)
			if err != nil {
				return err
			}
			doc.Boxes = append(doc.Boxes, box)
		}
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	if !sawVariant {
		return Document{}, fmt.Errorf("%w: missing variant", ErrInvalidDocument)
	}
	return doc, nil
}

func decodeDirection(data []byte) (Direction, error) {
	var dir Direction
	err := Walk(data, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		switch {
		case num == fieldDegree && typ == protowire.VarintType:
			dir.Degree = int(x)
		case num == fieldKnots && typ == protowire.BytesType:
			var err error
			dir.Knots, err = UnpackFloats(v)
			return err
		}
		return nil
	})
	return dir, err
}

// DecodeBox parses one index box
func DecodeBox(data []byte) (hbasis.IndexBox, error) {
	var box hbasis.IndexBox
	err := Walk(data, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		var err error
		switch {
		case num == fieldLevel && typ == protowire.VarintType:
			box.Level = int(x)
		case num == fieldLower && typ == protowire.BytesType:
			box.Lower, err = UnpackInts(v)
		case num == fieldUpper && typ == protowire.BytesType:
			box.Upper, err = UnpackInts(v)
		}
		return err
	})
	return box, err
}

// Walk visits every field of a message. Varint fields pass their value in x,
// length-delimited fields their payload in v; other wire types are skipped
// with neither set.
func Walk(data []byte, fn func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
		}
		data = data[n:]

		var (
			v []byte
			x uint64
		)
		switch typ {
		case protowire.VarintType:
			x, n = protowire.ConsumeVarint(data)
		case protowire.BytesType:
			v, n = protowire.ConsumeBytes(data)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %w", ErrMalformed, num, protowire.ParseError(n))
		}
		data = data[n:]

		if err := fn(num, typ, v, x); err != nil {
			return err
		}
	}
	return nil
}

// EncodeParamBox serializes one parameter box as
// {1 lower packed fixed64, 2 upper packed fixed64}.
func EncodeParamBox(box hbasis.ParamBox) []byte {
	var msg []byte
	msg = protowire.AppendTag(msg, fieldParamLower, protowire.BytesType)
	msg = protowire.AppendBytes(msg, PackFloats(box.Lower))
	msg = protowire.AppendTag(msg, fieldParamUpper, protowire.BytesType)
	msg = protowire.AppendBytes(msg, PackFloats(box.Upper))
	return msg
}

// DecodeParamBox parses one parameter box
func DecodeParamBox(data []byte) (hbasis.ParamBox, error) {
	var box hbasis.ParamBox
	err := Walk(data, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		if typ != protowire.BytesType {
			return nil
		}
		var err error
		switch num {
		case fieldParamLower:
			box.Lower, err = UnpackFloats(v)
		case fieldParamUpper:
			box.Upper, err = UnpackFloats(v)
		}
		return err
	})
	return box, err
}

// PackFloats encodes vs as a packed repeated fixed64 payload
func PackFloats(vs []float64) []byte {
	var buf []byte
	for _, v := range vs {
		buf = protowire.AppendFixed64(buf, math.Float64bits(v))
	}
	return buf
}

// UnpackFloats decodes a packed repeated fixed64 payload
func UnpackFloats(data []byte) ([]float64, error) {
	out := []float64{}
	for len(data) > 0 {
		bits, n := protowire.ConsumeFixed64(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: packed floats: %w", ErrMalformed, protowire.ParseError(n))
		}
		out = append(out, math.Float64frombits(bits))
		data = data[n:]
	}
	return out, nil
}

// PackInts encodes vs as a packed repeated varint payload
func PackInts(vs []int) []byte {
	var buf []byte
	for _, v := range vs {
		buf = protowire.AppendVarint(buf, uint64(v))
	}
	return buf
}

// UnpackInts decodes a packed repeated varint payload
func UnpackInts(data []byte) ([]int, error) {
	out := []int{}
	for len(data) > 0 {
		x, n := protowire.ConsumeVarint(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: packed ints: %w", ErrMalformed, protowire.ParseError(n))
		}
		out = append(out, int(x))
		data = data[n:]
	}
	return out, nil
}
