// ABOUTME: Protobuf wire encoding of the HBasis messages
// ABOUTME: Boxes and packed fields share the helpers of the basis document codec

package server

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/nainya/hsplines/pkg/codec"
	"github.com/nainya/hsplines/pkg/hbasis"
)

// wireMessage is implemented by every HBasis message
type wireMessage interface {
	Marshal() []byte
	Unmarshal(data []byte) error
}

// encoder appends fields, omitting zero scalars and empty repeated fields
type encoder []byte

func (e *encoder) varint(num protowire.Number, v int) {
	if v == 0 {
		return
	}
	*e = protowire.AppendTag(*e, num, protowire.VarintType)
	*e = protowire.AppendVarint(*e, uint64(v))
}

func (e *encoder) flag(num protowire.Number, v bool) {
	if v {
		e.varint(num, 1)
	}
}

func (e *encoder) raw(num protowire.Number, v []byte) {
	*e = protowire.AppendTag(*e, num, protowire.BytesType)
	*e = protowire.AppendBytes(*e, v)
}

func (e *encoder) bytes(num protowire.Number, v []byte) {
	if len(v) > 0 {
		e.raw(num, v)
	}
}

func (e *encoder) str(num protowire.Number, v string) {
	if v != "" {
		e.raw(num, []byte(v))
	}
}

func (e *encoder) ints(num protowire.Number, vs []int) {
	if len(vs) > 0 {
		e.raw(num, codec.PackInts(vs))
	}
}

func (e *encoder) floats(num protowire.Number, vs []float64) {
	if len(vs) > 0 {
		e.raw(num, codec.PackFloats(vs))
	}
}

func (e *encoder) embed(num protowire.Number, m wireMessage) {
	e.raw(num, m.Marshal())
}

// decode visits the fields of data; varints arrive in x, length-delimited
// payloads in v
func decode(data []byte, fn func(num protowire.Number, v []byte, x uint64) error) error {
	return codec.Walk(data, func(num protowire.Number, _ protowire.Type, v []byte, x uint64) error {
		return fn(num, v, x)
	})
}

func appendInts(dst []int, v []byte) ([]int, error) {
	vs, err := codec.UnpackInts(v)
	if err != nil {
		return nil, err
	}
	return append(dst, vs...), nil
}

func appendFloats(dst []float64, v []byte) ([]float64, error) {
	vs, err := codec.UnpackFloats(v)
	if err != nil {
		return nil, err
	}
	return append(dst, vs...), nil
}

// ========== Shared Types ==========

func (m *DirectionSpec) Marshal() []byte {
	var e encoder
	e.varint(1, m.Degree)
	e.floats(2, m.Knots)
	return e
}

func (m *DirectionSpec) Unmarshal(data []byte) error {
	*m = DirectionSpec{}
	return decode(data, func(num protowire.Number, v []byte, x uint64) (err error) {
		switch num {
		case 1:
			m.Degree = int(x)
		case 2:
			m.Knots, err = appendFloats(m.Knots, v)
		}
		return err
	})
}

func (m *ParamBox) Marshal() []byte {
	return codec.EncodeParamBox(hbasis.ParamBox{Lower: m.Lower, Upper: m.Upper})
}

func (m *ParamBox) Unmarshal(data []byte) error {
	box, err := codec.DecodeParamBox(data)
	if err != nil {
		return err
	}
	*m = ParamBox{Lower: box.Lower, Upper: box.Upper}
	return nil
}

func (m *IndexBox) Marshal() []byte {
	return codec.EncodeBox(hbasis.IndexBox{Level: m.Level, Lower: m.Lower, Upper: m.Upper})
}

func (m *IndexBox) Unmarshal(data []byte) error {
	box, err := codec.DecodeBox(data)
	if err != nil {
		return err
	}
	*m = IndexBox{Level: box.Level, Lower: box.Lower, Upper: box.Upper}
	return nil
}

func (m *BasisInfo) Marshal() []byte {
	var e encoder
	e.str(1, m.Session)
	e.str(2, m.Mode)
	e.varint(3, m.Dim)
	e.ints(4, m.Degrees)
	e.varint(5, m.Size)
	e.varint(6, m.NumLevels)
	e.varint(7, m.TreeLevel)
	e.ints(8, m.Offsets)
	e.varint(9, m.NumElements)
	e.floats(10, m.DomainLower)
	e.floats(11, m.DomainUpper)
	return e
}

func (m *BasisInfo) Unmarshal(data []byte) error {
	*m = BasisInfo{}
	return decode(data, func(num protowire.Number, v []byte, x uint64) (err error) {
		switch num {
		case 1:
			m.Session = string(v)
		case 2:
			m.Mode = string(v)
		case 3:
			m.Dim = int(x)
		case 4:
			m.Degrees, err = appendInts(m.Degrees, v)
		case 5:
			m.Size = int(x)
		case 6:
			m.NumLevels = int(x)
		case 7:
			m.TreeLevel = int(x)
		case 8:
			m.Offsets, err = appendInts(m.Offsets, v)
		case 9:
			m.NumElements = int(x)
		case 10:
			m.DomainLower, err = appendFloats(m.DomainLower, v)
		case 11:
			m.DomainUpper, err = appendFloats(m.DomainUpper, v)
		}
		return err
	})
}

func (m *Matrix) Marshal() []byte {
	rows := make([]int, len(m.Entries))
	cols := make([]int, len(m.Entries))
	vals := make([]float64, len(m.Entries))
	for i, t := range m.Entries {
		rows[i], cols[i], vals[i] = t.Row, t.Col, t.Value
	}
	var e encoder
	e.varint(1, m.Rows)
	e.varint(2, m.Cols)
	e.ints(3, rows)
	e.ints(4, cols)
	e.floats(5, vals)
	return e
}

func (m *Matrix) Unmarshal(data []byte) error {
	*m = Matrix{}
	var (
		rows, cols []int
		vals       []float64
	)
	err := decode(data, func(num protowire.Number, v []byte, x uint64) (err error) {
		switch num {
		case 1:
			m.Rows = int(x)
		case 2:
			m.Cols = int(x)
		case 3:
			rows, err = appendInts(rows, v)
		case 4:
			cols, err = appendInts(cols, v)
		case 5:
			vals, err = appendFloats(vals, v)
		}
		return err
	})
	if err != nil {
		return err
	}
	if len(rows) != len(vals) || len(cols) != len(vals) {
		return fmt.Errorf("%w: matrix has %d rows, %d cols and %d values", codec.ErrMalformed, len(rows), len(cols), len(vals))
	}
	m.Entries = make([]Triplet, len(vals))
	for i := range vals {
		m.Entries[i] = Triplet{Row: rows[i], Col: cols[i], Value: vals[i]}
	}
	return nil
}

// ========== Requests ==========

func (m *CreateBasisRequest) Marshal() []byte {
	var e encoder
	e.str(1, m.Mode)
	for i := range m.Directions {
		e.embed(2, &m.Directions[i])
	}
	for i := range m.Boxes {
		e.embed(3, &m.Boxes[i])
	}
	e.bytes(4, m.Document)
	return e
}

func (m *CreateBasisRequest) Unmarshal(data []byte) error {
	*m = CreateBasisRequest{}
	return decode(data, func(num protowire.Number, v []byte, x uint64) error {
		switch num {
		case 1:
			m.Mode = string(v)
		case 2:
			var d DirectionSpec
			if err := d.Unmarshal(v); err != nil {
				return err
			}
			m.Directions = append(m.Directions, d)
		case 3:
			var b IndexBox
			if err := b.Unmarshal(v); err != nil {
				return err
			}
			m.Boxes = append(m.Boxes, b)
		case 4:
			m.Document = append([]byte(nil), v...)
		}
		return nil
	})
}

func (m *RefineRequest) Marshal() []byte {
	var e encoder
	e.str(1, m.Session)
	for i := range m.Boxes {
		e.embed(2, &m.Boxes[i])
	}
	e.varint(3, m.Extension)
	e.flag(4, m.WithTransfer)
	return e
}

func (m *RefineRequest) Unmarshal(data []byte) error {
	*m = RefineRequest{}
	return decode(data, func(num protowire.Number, v []byte, x uint64) error {
		switch num {
		case 1:
			m.Session = string(v)
		case 2:
			var b ParamBox
			if err := b.Unmarshal(v); err != nil {
				return err
			}
			m.Boxes = append(m.Boxes, b)
		case 3:
			m.Extension = int(x)
		case 4:
			m.WithTransfer = x != 0
		}
		return nil
	})
}

func (m *RefineElementsRequest) Marshal() []byte {
	var e encoder
	e.str(1, m.Session)
	for i := range m.Boxes {
		e.embed(2, &m.Boxes[i])
	}
	e.flag(3, m.WithTransfer)
	return e
}

func (m *RefineElementsRequest) Unmarshal(data []byte) error {
	*m = RefineElementsRequest{}
	return decode(data, func(num protowire.Number, v []byte, x uint64) error {
		switch num {
		case 1:
			m.Session = string(v)
		case 2:
			var b IndexBox
			if err := b.Unmarshal(v); err != nil {
				return err
			}
			m.Boxes = append(m.Boxes, b)
		case 3:
			m.WithTransfer = x != 0
		}
		return nil
	})
}

func (m *UniformRefineRequest) Marshal() []byte {
	var e encoder
	e.str(1, m.Session)
	e.flag(2, m.WithTransfer)
	return e
}

func (m *UniformRefineRequest) Unmarshal(data []byte) error {
	*m = UniformRefineRequest{}
	return decode(data, func(num protowire.Number, v []byte, x uint64) error {
		switch num {
		case 1:
			m.Session = string(v)
		case 2:
			m.WithTransfer = x != 0
		}
		return nil
	})
}

func (m *ActiveAtRequest) Marshal() []byte {
	var e encoder
	e.str(1, m.Session)
	e.floats(2, m.Point)
	e.flag(3, m.Values)
	return e
}

func (m *ActiveAtRequest) Unmarshal(data []byte) error {
	*m = ActiveAtRequest{}
	return decode(data, func(num protowire.Number, v []byte, x uint64) (err error) {
		switch num {
		case 1:
			m.Session = string(v)
		case 2:
			m.Point, err = appendFloats(m.Point, v)
		case 3:
			m.Values = x != 0
		}
		return err
	})
}

func (m *SessionRequest) Marshal() []byte {
	var e encoder
	e.str(1, m.Session)
	return e
}

func (m *SessionRequest) Unmarshal(data []byte) error {
	*m = SessionRequest{}
	return decode(data, func(num protowire.Number, v []byte, x uint64) error {
		if num == 1 {
			m.Session = string(v)
		}
		return nil
	})
}

func (m *ListSessionsRequest) Marshal() []byte { return nil }

func (m *ListSessionsRequest) Unmarshal(data []byte) error {
	return decode(data, func(protowire.Number, []byte, uint64) error { return nil })
}

// ========== Responses ==========

func (m *CreateBasisResponse) Marshal() []byte {
	var e encoder
	e.embed(1, &m.Info)
	return e
}

func (m *CreateBasisResponse) Unmarshal(data []byte) error {
	*m = CreateBasisResponse{}
	return decode(data, func(num protowire.Number, v []byte, x uint64) error {
		if num == 1 {
			return m.Info.Unmarshal(v)
		}
		return nil
	})
}

func (m *RefineResponse) Marshal() []byte {
	var e encoder
	e.embed(1, &m.Info)
	if m.Transfer != nil {
		e.embed(2, m.Transfer)
	}
	return e
}

func (m *RefineResponse) Unmarshal(data []byte) error {
	*m = RefineResponse{}
	return decode(data, func(num protowire.Number, v []byte, x uint64) error {
		switch num {
		case 1:
			return m.Info.Unmarshal(v)
		case 2:
			m.Transfer = new(Matrix)
			return m.Transfer.Unmarshal(v)
		}
		return nil
	})
}

func (m *ActiveAtResponse) Marshal() []byte {
	var e encoder
	e.varint(1, m.Level)
	e.ints(2, m.Functions)
	e.floats(3, m.Values)
	return e
}

func (m *ActiveAtResponse) Unmarshal(data []byte) error {
	*m = ActiveAtResponse{}
	return decode(data, func(num protowire.Number, v []byte, x uint64) (err error) {
		switch num {
		case 1:
			m.Level = int(x)
		case 2:
			m.Functions, err = appendInts(m.Functions, v)
		case 3:
			m.Values, err = appendFloats(m.Values, v)
		}
		return err
	})
}

func (m *TransferResponse) Marshal() []byte {
	var e encoder
	e.embed(1, &m.Transfer)
	return e
}

func (m *TransferResponse) Unmarshal(data []byte) error {
	*m = TransferResponse{}
	return decode(data, func(num protowire.Number, v []byte, x uint64) error {
		if num == 1 {
			return m.Transfer.Unmarshal(v)
		}
		return nil
	})
}

func (m *InfoResponse) Marshal() []byte {
	var e encoder
	e.embed(1, &m.Info)
	return e
}

func (m *InfoResponse) Unmarshal(data []byte) error {
	*m = InfoResponse{}
	return decode(data, func(num protowire.Number, v []byte, x uint64) error {
		if num == 1 {
			return m.Info.Unmarshal(v)
		}
		return nil
	})
}

func (m *ExportResponse) Marshal() []byte {
	var e encoder
	e.bytes(1, m.Document)
	return e
}

func (m *ExportResponse) Unmarshal(data []byte) error {
	*m = ExportResponse{}
	return decode(data, func(num protowire.Number, v []byte, x uint64) error {
		if num == 1 {
			m.Document = append([]byte(nil), v...)
		}
		return nil
	})
}

func (m *DropBasisResponse) Marshal() []byte {
	var e encoder
	e.flag(1, m.Dropped)
	return e
}

func (m *DropBasisResponse) Unmarshal(data []byte) error {
	*m = DropBasisResponse{}
	return decode(data, func(num protowire.Number, v []byte, x uint64) error {
		if num == 1 {
			m.Dropped = x != 0
		}
		return nil
	})
}

func (m *ListSessionsResponse) Marshal() []byte {
	var e encoder
	for _, s := range m.Sessions {
		e.raw(1, []byte(s))
	}
	return e
}

func (m *ListSessionsResponse) Unmarshal(data []byte) error {
	*m = ListSessionsResponse{}
	return decode(data, func(num protowire.Number, v []byte, x uint64) error {
		if num == 1 {
			m.Sessions = append(m.Sessions, string(v))
		}
		return nil
	})
}
