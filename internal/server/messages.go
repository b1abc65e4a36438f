// ABOUTME: Request and response messages of the HBasis gRPC service
// ABOUTME: Encoded on the protobuf wire by wire.go; field numbers are listed per type

package server

// DirectionSpec describes one direction of a level-0 basis.
// Fields: 1 degree, 2 knots (packed double).
type DirectionSpec struct {
	Degree int
	Knots  []float64
}

// ParamBox is a box in parameter coordinates.
// Fields: 1 lower, 2 upper (packed double).
type ParamBox struct {
	Lower []float64
	Upper []float64
}

// IndexBox is a box of knot-span indices of its level.
// Fields: 1 level, 2 lower, 3 upper (packed varint).
type IndexBox struct {
	Level int
	Lower []int
	Upper []int
}

// BasisInfo summarizes the structure of a session's basis.
// Fields: 1 session, 2 mode, 3 dim, 4 degrees, 5 size, 6 num_levels,
// 7 tree_level, 8 offsets, 9 num_elements, 10 domain_lower, 11 domain_upper.
type BasisInfo struct {
	Session     string
	Mode        string
	Dim         int
	Degrees     []int
	Size        int
	NumLevels   int
	TreeLevel   int
	Offsets     []int
	NumElements int
	DomainLower []float64
	DomainUpper []float64
}

// Triplet is one stored entry of a sparse matrix
type Triplet struct {
	Row   int
	Col   int
	Value float64
}

// Matrix is a sparse matrix in triplet form. On the wire the triplets are
// three parallel packed columns.
// Fields: 1 rows, 2 cols, 3 row, 4 col, 5 value.
type Matrix struct {
	Rows    int
	Cols    int
	Entries []Triplet
}

// CreateBasisRequest creates a session. Document, when set, is an exported
// codec document and wins over the other fields; without directions the
// server's default basis is used.
// Fields: 1 mode, 2 directions, 3 boxes, 4 document.
type CreateBasisRequest struct {
	Mode       string
	Directions []DirectionSpec
	Boxes      []IndexBox
	Document   []byte
}

// CreateBasisResponse returns the new session.
// Fields: 1 info.
type CreateBasisResponse struct {
	Info BasisInfo
}

// RefineRequest refines parameter boxes at the finest level, or with the
// given extension of the finest level when Extension is positive.
// Fields: 1 session, 2 boxes, 3 extension, 4 with_transfer.
type RefineRequest struct {
	Session      string
	Boxes        []ParamBox
	Extension    int
	WithTransfer bool
}

// RefineElementsRequest refines index boxes.
// Fields: 1 session, 2 boxes, 3 with_transfer.
type RefineElementsRequest struct {
	Session      string
	Boxes        []IndexBox
	WithTransfer bool
}

// UniformRefineRequest refines the whole basis by one level.
// Fields: 1 session, 2 with_transfer.
type UniformRefineRequest struct {
	Session      string
	WithTransfer bool
}

// RefineResponse reports the refined structure and optionally the transfer
// from the previous state.
// Fields: 1 info, 2 transfer.
type RefineResponse struct {
	Info     BasisInfo
	Transfer *Matrix
}

// ActiveAtRequest queries the functions active at a point.
// Fields: 1 session, 2 point, 3 values.
type ActiveAtRequest struct {
	Session string
	Point   []float64
	Values  bool
}

// ActiveAtResponse lists active global indices, ascending.
// Fields: 1 level, 2 functions, 3 values.
type ActiveAtResponse struct {
	Level     int
	Functions []int
	Values    []float64
}

// SessionRequest names a session.
// Fields: 1 session.
type SessionRequest struct {
	Session string
}

// TransferResponse is the transfer from the state before the last refinement.
// Fields: 1 transfer.
type TransferResponse struct {
	Transfer Matrix
}

// InfoResponse wraps BasisInfo.
// Fields: 1 info.
type InfoResponse struct {
	Info BasisInfo
}

// ExportResponse carries the encoded codec document.
// Fields: 1 document.
type ExportResponse struct {
	Document []byte
}

// DropBasisResponse confirms the removal of a session.
// Fields: 1 dropped.
type DropBasisResponse struct {
	Dropped bool
}

// ListSessionsRequest is empty
type ListSessionsRequest struct{}

// ListSessionsResponse lists the live sessions, sorted.
// Fields: 1 sessions.
type ListSessionsResponse struct {
	Sessions []string
}
