// Package server implements the gRPC HBasis service
package server

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nainya/hsplines/internal/config"
	"github.com/nainya/hsplines/internal/logger"
	"github.com/nainya/hsplines/internal/metrics"
	"github.com/nainya/hsplines/pkg/codec"
	"github.com/nainya/hsplines/pkg/hbasis"
	"github.com/nainya/hsplines/pkg/journal"
	"github.com/nainya/hsplines/pkg/sparse"
)

// session is one live basis. mu guards the basis; refinements hold it
// exclusively across apply and journal append.
type session struct {
	mu      sync.RWMutex
	basis   *hbasis.Basis
	prev    *hbasis.Snapshot
	dropped bool
}

// Server implements HBasisServer
type Server struct {
	journal  *journal.Journal
	metrics  *metrics.Metrics
	log      *logger.Logger
	defaults config.BasisConfig

	mu       sync.RWMutex
	sessions map[uuid.UUID]*session

	startTime time.Time
}

var _ HBasisServer = (*Server)(nil)

// NewServer creates a server. j may be nil to run without persistence.
func NewServer(j *journal.Journal, m *metrics.Metrics, log *logger.Logger, defaults config.BasisConfig) *Server {
	return &Server{
		journal:   j,
		metrics:   m,
		log:       log,
		defaults:  defaults,
		sessions:  make(map[uuid.UUID]*session),
		startTime: time.Now(),
	}
}

// basisOptions returns the options every session basis is created with
func (s *Server) basisOptions(id uuid.UUID) []hbasis.Option {
	return []hbasis.Option{
		hbasis.WithLogger(s.log.BasisLogger(id.String())),
		hbasis.WithObserver(s.metrics),
	}
}

// Restore installs sessions rebuilt from the journal
func (s *Server) Restore(bases map[uuid.UUID]*hbasis.Basis) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, b := range bases {
		s.sessions[id] = &session{basis: b}
	}
	s.metrics.SessionsActive.Set(float64(len(s.sessions)))
}

// VisitSessions is the journal.Visitor used for checkpoints
func (s *Server) VisitSessions(emit journal.EmitFunc) error {
	s.mu.RLock()
	ids := make([]uuid.UUID, 0, len(s.sessions))
	live := make([]*session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		ids = append(ids, id)
		live = append(live, sess)
	}
	s.mu.RUnlock()

	for i, sess := range live {
		sess.mu.RLock()
		var err error
		if !sess.dropped {
			err = emit(ids[i], sess.basis)
		}
		sess.mu.RUnlock()
		if err != nil {
			return err
		}
	}
	return nil
}

// NumSessions returns the number of live sessions
func (s *Server) NumSessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Uptime returns the time since the server was created
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startTime)
}

func (s *Server) lookup(raw string) (uuid.UUID, *session, error) {
	if raw == "" {
		return uuid.Nil, nil, status.Error(codes.InvalidArgument, "session is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, nil, status.Errorf(codes.InvalidArgument, "invalid session id: %v", err)
	}
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return uuid.Nil, nil, status.Errorf(codes.NotFound, "session %s not found", id)
	}
	return id, sess, nil
}

// appendRecord writes rec when a journal is configured
func (s *Server) appendRecord(id uuid.UUID, rec journal.Record) error {
	if s.journal == nil {
		return nil
	}
	_, err := s.journal.Append(id, rec)
	s.metrics.RecordJournalEntry(rec.Op.String(), err)
	if err != nil {
		return status.Errorf(codes.Internal, "failed to journal %s: %v", rec.Op, err)
	}
	return nil
}

// ========== Session Operations ==========

// document turns a create request into a codec document
func (s *Server) document(req *CreateBasisRequest) (codec.Document, error) {
	if len(req.Document) > 0 {
		doc, err := codec.Decode(req.Document)
		if err != nil {
			return codec.Document{}, status.Errorf(codes.InvalidArgument, "invalid document: %v", err)
		}
		return doc, nil
	}

	var doc codec.Document
	modeName := req.Mode
	if modeName == "" {
		modeName = s.defaults.Mode
	}
	mode, err := hbasis.ParseMode(modeName)
	if err != nil {
		return codec.Document{}, status.Error(codes.InvalidArgument, err.Error())
	}
	doc.Mode = mode

	if len(req.Directions) == 0 {
		tb, err := s.defaults.Tensor()
		if err != nil {
			return codec.Document{}, status.Errorf(codes.FailedPrecondition, "default basis: %v", err)
		}
		for i := range tb.Dim() {
			doc.Directions = append(doc.Directions, codec.Direction{Degree: tb.Degree(i), Knots: tb.Knots(i).Values()})
		}
	} else {
		for _, d := range req.Directions {
			doc.Directions = append(doc.Directions, codec.Direction{Degree: d.Degree, Knots: d.Knots})
		}
	}
	return doc, nil
}

// CreateBasis builds a basis and registers it as a new session
func (s *Server) CreateBasis(ctx context.Context, req *CreateBasisRequest) (*CreateBasisResponse, error) {
	doc, err := s.document(req)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	opts := s.basisOptions(id)
	if algo, err := s.defaults.AlgorithmValue(); err == nil {
		opts = append(opts, hbasis.WithActiveAlgorithm(algo))
	}
	b, err := doc.Build(opts...)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "failed to build basis: %v", err)
	}
	if len(req.Boxes) > 0 {
		boxes := make([]hbasis.IndexBox, len(req.Boxes))
		for i, box := range req.Boxes {
			boxes[i] = hbasis.IndexBox{Level: box.Level, Lower: box.Lower, Upper: box.Upper}
		}
		if err := journal.RefineElements(boxes...).Apply(b); err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// journal under the registry lock so a concurrent checkpoint cannot miss it
	if err := s.appendRecord(id, journal.Create(codec.FromBasis(b))); err != nil {
		return nil, err
	}
	s.sessions[id] = &session{basis: b}
	s.metrics.SessionsActive.Set(float64(len(s.sessions)))

	s.log.Info("Basis created").
		Str("session", id.String()).
		Stringer("mode", b.Mode()).
		Int("dim", b.Dim()).
		Int("size", b.Size()).
		Send()

	return &CreateBasisResponse{Info: info(id, b)}, nil
}

// DropBasis removes a session
func (s *Server) DropBasis(ctx context.Context, req *SessionRequest) (*DropBasisResponse, error) {
	id, sess, err := s.lookup(req.Session)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.dropped {
		return nil, status.Errorf(codes.NotFound, "session %s not found", id)
	}
	if err := s.appendRecord(id, journal.Drop()); err != nil {
		return nil, err
	}
	sess.dropped = true
	delete(s.sessions, id)
	s.metrics.SessionsActive.Set(float64(len(s.sessions)))

	return &DropBasisResponse{Dropped: true}, nil
}

// ListSessions returns the ids of all live sessions
func (s *Server) ListSessions(ctx context.Context, req *ListSessionsRequest) (*ListSessionsResponse, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id.String())
	}
	s.mu.RUnlock()
	slices.Sort(ids)
	return &ListSessionsResponse{Sessions: ids}, nil
}

// ========== Refinement Operations ==========

// refine applies rec to a copy of the session's basis, journals it and swaps
// the copy in. A failed precondition or journal write leaves the session
// untouched.
func (s *Server) refine(id uuid.UUID, sess *session, operation string, boxes int, withTransfer bool, build func(*hbasis.Basis) journal.Record) (*RefineResponse, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.dropped {
		return nil, status.Errorf(codes.NotFound, "session %s not found", id)
	}

	start := time.Now()
	snap := sess.basis.Snapshot()
	next := sess.basis.Clone()
	rec := build(next)
	if err := rec.Apply(next); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	resp := &RefineResponse{}
	if withTransfer {
		m, err := transferOf(next, snap)
		if err != nil {
			return nil, err
		}
		resp.Transfer = m
	}
	if err := s.appendRecord(id, rec); err != nil {
		return nil, err
	}
	sess.basis = next
	sess.prev = &snap
	resp.Info = info(id, next)

	s.metrics.RecordRefinement(operation, next.Mode())
	s.log.LogRefinement(id.String(), operation, boxes, next.Size(), next.NumLevels(), time.Since(start))
	return resp, nil
}

// Refine refines parameter boxes
func (s *Server) Refine(ctx context.Context, req *RefineRequest) (*RefineResponse, error) {
	id, sess, err := s.lookup(req.Session)
	if err != nil {
		return nil, err
	}
	if len(req.Boxes) == 0 {
		return nil, status.Error(codes.InvalidArgument, "at least one box is required")
	}
	if req.Extension < 0 {
		return nil, status.Error(codes.InvalidArgument, "extension must not be negative")
	}
	boxes := make([]hbasis.ParamBox, len(req.Boxes))
	for i, box := range req.Boxes {
		boxes[i] = hbasis.ParamBox{Lower: box.Lower, Upper: box.Upper}
	}
	return s.refine(id, sess, "refine", len(boxes), req.WithTransfer, func(b *hbasis.Basis) journal.Record {
		return journal.Refine(b.RefineLevel(), req.Extension, boxes...)
	})
}

// RefineElements refines index boxes
func (s *Server) RefineElements(ctx context.Context, req *RefineElementsRequest) (*RefineResponse, error) {
	id, sess, err := s.lookup(req.Session)
	if err != nil {
		return nil, err
	}
	if len(req.Boxes) == 0 {
		return nil, status.Error(codes.InvalidArgument, "at least one box is required")
	}
	boxes := make([]hbasis.IndexBox, len(req.Boxes))
	for i, box := range req.Boxes {
		boxes[i] = hbasis.IndexBox{Level: box.Level, Lower: box.Lower, Upper: box.Upper}
	}
	return s.refine(id, sess, "refine_elements", len(boxes), req.WithTransfer, func(*hbasis.Basis) journal.Record {
		return journal.RefineElements(boxes...)
	})
}

// UniformRefine refines the whole basis by one level
func (s *Server) UniformRefine(ctx context.Context, req *UniformRefineRequest) (*RefineResponse, error) {
	id, sess, err := s.lookup(req.Session)
	if err != nil {
		return nil, err
	}
	return s.refine(id, sess, "uniform_refine", 0, req.WithTransfer, func(*hbasis.Basis) journal.Record {
		return journal.UniformRefine()
	})
}

// Transfer returns the transfer from the state before the last refinement to
// the current basis
func (s *Server) Transfer(ctx context.Context, req *SessionRequest) (*TransferResponse, error) {
	id, sess, err := s.lookup(req.Session)
	if err != nil {
		return nil, err
	}

	sess.mu.RLock()
	defer sess.mu.RUnlock()
	if sess.prev == nil {
		return nil, status.Errorf(codes.FailedPrecondition, "session %s has not been refined since it was loaded", id)
	}
	m, err := transferOf(sess.basis, *sess.prev)
	if err != nil {
		return nil, err
	}
	return &TransferResponse{Transfer: *m}, nil
}

// ========== Query Operations ==========

// ActiveAt lists the functions active at a point
func (s *Server) ActiveAt(ctx context.Context, req *ActiveAtRequest) (*ActiveAtResponse, error) {
	_, sess, err := s.lookup(req.Session)
	if err != nil {
		return nil, err
	}

	sess.mu.RLock()
	defer sess.mu.RUnlock()
	b := sess.basis
	if err := checkPoint(b, req.Point); err != nil {
		return nil, err
	}

	resp := &ActiveAtResponse{Level: b.LevelAtPoint(req.Point)}
	if req.Values {
		resp.Functions, resp.Values = b.EvalAll(req.Point)
	} else {
		resp.Functions = b.ActiveAt(req.Point)
	}
	return resp, nil
}

// Info describes a session's basis
func (s *Server) Info(ctx context.Context, req *SessionRequest) (*InfoResponse, error) {
	id, sess, err := s.lookup(req.Session)
	if err != nil {
		return nil, err
	}
	sess.mu.RLock()
	defer sess.mu.RUnlock()
	return &InfoResponse{Info: info(id, sess.basis)}, nil
}

// Export encodes a session's basis as a codec document
func (s *Server) Export(ctx context.Context, req *SessionRequest) (*ExportResponse, error) {
	_, sess, err := s.lookup(req.Session)
	if err != nil {
		return nil, err
	}
	sess.mu.RLock()
	defer sess.mu.RUnlock()
	return &ExportResponse{Document: codec.Marshal(sess.basis)}, nil
}

// ========== Conversions ==========

func info(id uuid.UUID, b *hbasis.Basis) BasisInfo {
	lo, hi := b.Domain()
	degrees := make([]int, b.Dim())
	for i := range degrees {
		degrees[i] = b.Degree(i)
	}
	return BasisInfo{
		Session:     id.String(),
		Mode:        b.Mode().String(),
		Dim:         b.Dim(),
		Degrees:     degrees,
		Size:        b.Size(),
		NumLevels:   b.NumLevels(),
		TreeLevel:   b.TreeLevel(),
		Offsets:     b.Offsets(),
		NumElements: b.NumElements(),
		DomainLower: lo,
		DomainUpper: hi,
	}
}

func matrixOf(m *sparse.Matrix) *Matrix {
	rows, cols := m.Dims()
	out := &Matrix{Rows: rows, Cols: cols, Entries: make([]Triplet, 0, m.NNZ())}
	for _, t := range m.Triplets() {
		out.Entries = append(out.Entries, Triplet{Row: t.Row, Col: t.Col, Value: t.Val})
	}
	return out
}

// transferOf computes the transfer from old to b on a copy of b, so the
// session keeps its level count
func transferOf(b *hbasis.Basis, old hbasis.Snapshot) (m *Matrix, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = status.Errorf(codes.Internal, "transfer failed: %v", r)
		}
	}()
	return matrixOf(b.Clone().TransferFor(old)), nil
}

// checkPoint validates the dimension and domain membership of x
func checkPoint(b *hbasis.Basis, x []float64) error {
	if len(x) != b.Dim() {
		return status.Errorf(codes.InvalidArgument, "point has dimension %d, basis has %d", len(x), b.Dim())
	}
	lo, hi := b.Domain()
	for i := range x {
		if x[i] < lo[i] || x[i] > hi[i] {
			return status.Errorf(codes.OutOfRange, "coordinate %d = %v outside [%v, %v]", i, x[i], lo[i], hi[i])
		}
	}
	return nil
}
