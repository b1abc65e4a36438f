// Integration tests for the HBasis gRPC server
package server

import (
	"context"
	"io"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/nainya/hsplines/internal/config"
	"github.com/nainya/hsplines/internal/logger"
	"github.com/nainya/hsplines/internal/metrics"
	"github.com/nainya/hsplines/pkg/bspline"
	"github.com/nainya/hsplines/pkg/hbasis"
	"github.com/nainya/hsplines/pkg/journal"
)

const bufSize = 1024 * 1024

type testEnv struct {
	server  *Server
	client  *Client
	journal *journal.Journal
	reg     *prometheus.Registry
	metrics *metrics.Metrics
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	j := &journal.Journal{Path: filepath.Join(t.TempDir(), "hsplines.journal")}
	if err := j.Open(); err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	log := logger.Nop()
	server := NewServer(j, m, log, config.Default().Basis)

	lis := bufconn.Listen(bufSize)
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(GrpcMetricsInterceptor(m, log)))
	RegisterHBasisServer(grpcServer, server)

	go func() {
		// Serve returns once the listener is closed during cleanup
		_ = grpcServer.Serve(lis)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("Failed to dial bufnet: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
		grpcServer.Stop()
		lis.Close()
		j.Close()
	})

	return &testEnv{server: server, client: NewClient(conn), journal: j, reg: reg, metrics: m}
}

// scenarioRequest is the degree-1 basis over [0,0,1,2,3,4,4]
func scenarioRequest(mode string) *CreateBasisRequest {
	return &CreateBasisRequest{
		Mode:       mode,
		Directions: []DirectionSpec{{Degree: 1, Knots: []float64{0, 0, 1, 2, 3, 4, 4}}},
	}
}

func scenarioBasis(t *testing.T, mode hbasis.Mode) *hbasis.Basis {
	t.Helper()
	kv, err := bspline.NewKnotVector([]float64{0, 0, 1, 2, 3, 4, 4})
	if err != nil {
		t.Fatal(err)
	}
	tb, err := bspline.NewTensorBasis(bspline.MustBasis(kv, 1))
	if err != nil {
		t.Fatal(err)
	}
	return hbasis.New(tb, hbasis.WithMode(mode))
}

func expectCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	if status.Code(err) != code {
		t.Fatalf("Expected %s, got %v", code, err)
	}
}

func TestCreateDefaultBasis(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	resp, err := env.client.CreateBasis(ctx, &CreateBasisRequest{})
	if err != nil {
		t.Fatalf("CreateBasis failed: %v", err)
	}

	info := resp.Info
	if info.Mode != "THBSplineBasis" {
		t.Errorf("Expected default mode THBSplineBasis, got %s", info.Mode)
	}
	if info.Dim != 2 || info.Size != 36 {
		t.Errorf("Expected 2-D basis with 36 functions, got dim %d size %d", info.Dim, info.Size)
	}
	if !slices.Equal(info.Degrees, []int{2, 2}) {
		t.Errorf("Unexpected degrees %v", info.Degrees)
	}
	if info.NumElements != 16 {
		t.Errorf("Expected 16 elements, got %d", info.NumElements)
	}
	if env.server.NumSessions() != 1 {
		t.Errorf("Expected 1 session, got %d", env.server.NumSessions())
	}
}

func TestRefineMatchesLocalBasis(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	created, err := env.client.CreateBasis(ctx, scenarioRequest("hb"))
	if err != nil {
		t.Fatalf("CreateBasis failed: %v", err)
	}
	id := created.Info.Session

	local := scenarioBasis(t, hbasis.Hierarchical)
	if created.Info.Size != local.Size() {
		t.Fatalf("Expected size %d, got %d", local.Size(), created.Info.Size)
	}

	if _, err := env.client.RefineElements(ctx, &RefineElementsRequest{
		Session: id,
		Boxes:   []IndexBox{{Level: 1, Lower: []int{2}, Upper: []int{6}}},
	}); err != nil {
		t.Fatalf("RefineElements failed: %v", err)
	}
	local.RefineElements(hbasis.IndexBox{Level: 1, Lower: []int{2}, Upper: []int{6}})

	resp, err := env.client.Refine(ctx, &RefineRequest{
		Session: id,
		Boxes:   []ParamBox{{Lower: []float64{1.5}, Upper: []float64{2.5}}},
	})
	if err != nil {
		t.Fatalf("Refine failed: %v", err)
	}
	local.Refine(hbasis.ParamBox{Lower: []float64{1.5}, Upper: []float64{2.5}})

	if resp.Info.Size != local.Size() {
		t.Errorf("Expected size %d, got %d", local.Size(), resp.Info.Size)
	}
	if !slices.Equal(resp.Info.Offsets, local.Offsets()) {
		t.Errorf("Expected offsets %v, got %v", local.Offsets(), resp.Info.Offsets)
	}
	if resp.Info.TreeLevel != local.TreeLevel() {
		t.Errorf("Expected tree level %d, got %d", local.TreeLevel(), resp.Info.TreeLevel)
	}

	for _, x := range []float64{0.25, 1.75, 2, 3.5} {
		got, err := env.client.ActiveAt(ctx, &ActiveAtRequest{Session: id, Point: []float64{x}})
		if err != nil {
			t.Fatalf("ActiveAt(%v) failed: %v", x, err)
		}
		if want := local.ActiveAt([]float64{x}); !slices.Equal(got.Functions, want) {
			t.Errorf("ActiveAt(%v) = %v, want %v", x, got.Functions, want)
		}
		if want := local.LevelAtPoint([]float64{x}); got.Level != want {
			t.Errorf("LevelAtPoint(%v) = %d, want %d", x, got.Level, want)
		}
	}
}

func TestRefineReturnsTransfer(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	created, err := env.client.CreateBasis(ctx, scenarioRequest("thb"))
	if err != nil {
		t.Fatalf("CreateBasis failed: %v", err)
	}
	id := created.Info.Session

	if _, err := env.client.Transfer(ctx, &SessionRequest{Session: id}); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("Expected FailedPrecondition before refinement, got %v", err)
	}

	resp, err := env.client.RefineElements(ctx, &RefineElementsRequest{
		Session:      id,
		Boxes:        []IndexBox{{Level: 1, Lower: []int{0}, Upper: []int{4}}},
		WithTransfer: true,
	})
	if err != nil {
		t.Fatalf("RefineElements failed: %v", err)
	}
	T := resp.Transfer
	if T == nil {
		t.Fatal("Expected a transfer matrix")
	}
	if T.Rows != resp.Info.Size || T.Cols != created.Info.Size {
		t.Fatalf("Expected %dx%d transfer, got %dx%d", resp.Info.Size, created.Info.Size, T.Rows, T.Cols)
	}

	// truncated transfer keeps partition of unity: every row sums to one
	sums := make([]float64, T.Rows)
	for _, e := range T.Entries {
		sums[e.Row] += e.Value
	}
	for i, s := range sums {
		if math.Abs(s-1) > 1e-12 {
			t.Errorf("Row %d sums to %v", i, s)
		}
	}

	again, err := env.client.Transfer(ctx, &SessionRequest{Session: id})
	if err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if len(again.Transfer.Entries) != len(T.Entries) {
		t.Errorf("Expected %d entries, got %d", len(T.Entries), len(again.Transfer.Entries))
	}
}

func TestActiveAtValuesPartitionUnity(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	created, err := env.client.CreateBasis(ctx, &CreateBasisRequest{
		Mode:  "thb",
		Boxes: []IndexBox{{Level: 2, Lower: []int{0, 0}, Upper: []int{6, 6}}},
	})
	if err != nil {
		t.Fatalf("CreateBasis failed: %v", err)
	}

	for _, p := range [][]float64{{0.1, 0.1}, {0.3, 0.6}, {0.9, 0.2}, {1, 1}} {
		resp, err := env.client.ActiveAt(ctx, &ActiveAtRequest{Session: created.Info.Session, Point: p, Values: true})
		if err != nil {
			t.Fatalf("ActiveAt(%v) failed: %v", p, err)
		}
		if len(resp.Values) != len(resp.Functions) {
			t.Fatalf("Expected one value per function, got %d and %d", len(resp.Values), len(resp.Functions))
		}
		sum := 0.0
		for _, v := range resp.Values {
			sum += v
		}
		if math.Abs(sum-1) > 1e-12 {
			t.Errorf("Values at %v sum to %v", p, sum)
		}
	}
}

func TestRequestErrors(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	created, err := env.client.CreateBasis(ctx, scenarioRequest("hb"))
	if err != nil {
		t.Fatalf("CreateBasis failed: %v", err)
	}
	id := created.Info.Session

	_, err = env.client.Info(ctx, &SessionRequest{})
	expectCode(t, err, codes.InvalidArgument)

	_, err = env.client.Info(ctx, &SessionRequest{Session: "not-a-uuid"})
	expectCode(t, err, codes.InvalidArgument)

	_, err = env.client.Info(ctx, &SessionRequest{Session: "6ba7b810-9dad-11d1-80b4-00c04fd430c8"})
	expectCode(t, err, codes.NotFound)

	_, err = env.client.CreateBasis(ctx, &CreateBasisRequest{Mode: "nurbs"})
	expectCode(t, err, codes.InvalidArgument)

	_, err = env.client.CreateBasis(ctx, &CreateBasisRequest{Directions: []DirectionSpec{{Degree: 3, Knots: []float64{0, 1}}}})
	expectCode(t, err, codes.InvalidArgument)

	_, err = env.client.CreateBasis(ctx, &CreateBasisRequest{Document: []byte{0xff, 0xff}})
	expectCode(t, err, codes.InvalidArgument)

	_, err = env.client.Refine(ctx, &RefineRequest{Session: id})
	expectCode(t, err, codes.InvalidArgument)

	// negative corners violate a refinement precondition
	_, err = env.client.RefineElements(ctx, &RefineElementsRequest{
		Session: id,
		Boxes:   []IndexBox{{Level: 1, Lower: []int{-1}, Upper: []int{2}}},
	})
	expectCode(t, err, codes.InvalidArgument)

	_, err = env.client.ActiveAt(ctx, &ActiveAtRequest{Session: id, Point: []float64{5}})
	expectCode(t, err, codes.OutOfRange)

	_, err = env.client.ActiveAt(ctx, &ActiveAtRequest{Session: id, Point: []float64{1, 1}})
	expectCode(t, err, codes.InvalidArgument)

	// the rejected refinement left the session untouched
	info, err := env.client.Info(ctx, &SessionRequest{Session: id})
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if info.Info.Size != created.Info.Size || info.Info.TreeLevel != 0 {
		t.Errorf("Session changed by rejected refinement: %+v", info.Info)
	}
}

func TestCreateRejectsUnclampedKnots(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	_, err := env.client.CreateBasis(ctx, &CreateBasisRequest{
		Mode:       "thb",
		Directions: []DirectionSpec{{Degree: 2, Knots: []float64{0, 1, 2, 3, 4, 5, 6, 7}}},
	})
	expectCode(t, err, codes.InvalidArgument)
	if env.server.NumSessions() != 0 {
		t.Fatalf("Expected no sessions, got %d", env.server.NumSessions())
	}

	created, err := env.client.CreateBasis(ctx, &CreateBasisRequest{
		Mode:       "thb",
		Directions: []DirectionSpec{{Degree: 2, Knots: []float64{0, 0, 0, 1, 2, 3, 3, 3}}},
	})
	if err != nil {
		t.Fatalf("CreateBasis failed: %v", err)
	}

	// both ends of the domain
	for _, box := range []ParamBox{{Lower: []float64{2.5}, Upper: []float64{3}}, {Lower: []float64{0}, Upper: []float64{0.5}}} {
		resp, err := env.client.Refine(ctx, &RefineRequest{
			Session:      created.Info.Session,
			Boxes:        []ParamBox{box},
			WithTransfer: true,
		})
		if err != nil {
			t.Fatalf("Refine(%v) failed: %v", box, err)
		}
		sums := make([]float64, resp.Transfer.Rows)
		for _, e := range resp.Transfer.Entries {
			sums[e.Row] += e.Value
		}
		for i, s := range sums {
			if math.Abs(s-1) > 1e-12 {
				t.Errorf("Refine(%v): row %d sums to %v", box, i, s)
			}
		}
	}
}

func TestTransferDoesNotChangeInfo(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	box := []IndexBox{{Level: 1, Lower: []int{0}, Upper: []int{4}}}
	infos := make([]BasisInfo, 2)
	for i, withTransfer := range []bool{true, false} {
		created, err := env.client.CreateBasis(ctx, scenarioRequest("thb"))
		if err != nil {
			t.Fatalf("CreateBasis failed: %v", err)
		}
		resp, err := env.client.RefineElements(ctx, &RefineElementsRequest{
			Session:      created.Info.Session,
			Boxes:        box,
			WithTransfer: withTransfer,
		})
		if err != nil {
			t.Fatalf("RefineElements failed: %v", err)
		}
		infos[i] = resp.Info
	}
	if infos[0].NumLevels != infos[1].NumLevels || !slices.Equal(infos[0].Offsets, infos[1].Offsets) {
		t.Fatalf("Requesting a transfer changed the structure: %+v vs %+v", infos[0], infos[1])
	}

	id := infos[1].Session
	if _, err := env.client.Transfer(ctx, &SessionRequest{Session: id}); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	after, err := env.client.Info(ctx, &SessionRequest{Session: id})
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if after.Info.NumLevels != infos[1].NumLevels || !slices.Equal(after.Info.Offsets, infos[1].Offsets) {
		t.Errorf("Transfer changed Info: %+v, was %+v", after.Info, infos[1])
	}
}

func TestExportCreatesEqualBasis(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	created, err := env.client.CreateBasis(ctx, &CreateBasisRequest{
		Mode:  "hb",
		Boxes: []IndexBox{{Level: 1, Lower: []int{0, 2}, Upper: []int{4, 8}}},
	})
	if err != nil {
		t.Fatalf("CreateBasis failed: %v", err)
	}
	if _, err := env.client.UniformRefine(ctx, &UniformRefineRequest{Session: created.Info.Session}); err != nil {
		t.Fatalf("UniformRefine failed: %v", err)
	}

	exported, err := env.client.Export(ctx, &SessionRequest{Session: created.Info.Session})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	orig, err := env.client.Info(ctx, &SessionRequest{Session: created.Info.Session})
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}

	copied, err := env.client.CreateBasis(ctx, &CreateBasisRequest{Document: exported.Document})
	if err != nil {
		t.Fatalf("CreateBasis from document failed: %v", err)
	}
	if copied.Info.Mode != orig.Info.Mode || copied.Info.Size != orig.Info.Size {
		t.Errorf("Expected %s with %d functions, got %s with %d",
			orig.Info.Mode, orig.Info.Size, copied.Info.Mode, copied.Info.Size)
	}
	if copied.Info.Session == orig.Info.Session {
		t.Error("Expected a new session id")
	}
}

func TestDropAndListSessions(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	a, err := env.client.CreateBasis(ctx, scenarioRequest("hb"))
	if err != nil {
		t.Fatalf("CreateBasis failed: %v", err)
	}
	b, err := env.client.CreateBasis(ctx, scenarioRequest("thb"))
	if err != nil {
		t.Fatalf("CreateBasis failed: %v", err)
	}

	list, err := env.client.ListSessions(ctx, &ListSessionsRequest{})
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(list.Sessions) != 2 {
		t.Fatalf("Expected 2 sessions, got %v", list.Sessions)
	}

	dropped, err := env.client.DropBasis(ctx, &SessionRequest{Session: a.Info.Session})
	if err != nil || !dropped.Dropped {
		t.Fatalf("DropBasis failed: %v", err)
	}
	_, err = env.client.Info(ctx, &SessionRequest{Session: a.Info.Session})
	expectCode(t, err, codes.NotFound)
	_, err = env.client.DropBasis(ctx, &SessionRequest{Session: a.Info.Session})
	expectCode(t, err, codes.NotFound)

	list, err = env.client.ListSessions(ctx, &ListSessionsRequest{})
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if !slices.Equal(list.Sessions, []string{b.Info.Session}) {
		t.Errorf("Expected only %s, got %v", b.Info.Session, list.Sessions)
	}
}

func TestJournalRestoresSessions(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	a, err := env.client.CreateBasis(ctx, scenarioRequest("hb"))
	if err != nil {
		t.Fatalf("CreateBasis failed: %v", err)
	}
	b, err := env.client.CreateBasis(ctx, &CreateBasisRequest{Mode: "thb"})
	if err != nil {
		t.Fatalf("CreateBasis failed: %v", err)
	}
	c, err := env.client.CreateBasis(ctx, scenarioRequest("thb"))
	if err != nil {
		t.Fatalf("CreateBasis failed: %v", err)
	}

	steps := []func() error{
		func() error {
			_, err := env.client.Refine(ctx, &RefineRequest{Session: a.Info.Session,
				Boxes: []ParamBox{{Lower: []float64{0}, Upper: []float64{1}}}})
			return err
		},
		func() error {
			_, err := env.client.Refine(ctx, &RefineRequest{Session: a.Info.Session, Extension: 1,
				Boxes: []ParamBox{{Lower: []float64{0.2}, Upper: []float64{0.4}}}})
			return err
		},
		func() error {
			_, err := env.client.RefineElements(ctx, &RefineElementsRequest{Session: b.Info.Session,
				Boxes: []IndexBox{{Level: 2, Lower: []int{4, 4}, Upper: []int{12, 8}}}, WithTransfer: true})
			return err
		},
		func() error {
			_, err := env.client.UniformRefine(ctx, &UniformRefineRequest{Session: b.Info.Session})
			return err
		},
		func() error {
			_, err := env.client.DropBasis(ctx, &SessionRequest{Session: c.Info.Session})
			return err
		},
	}

	restore := func() *Server {
		t.Helper()
		bases, stats, err := journal.NewRecovery(env.journal).Rebuild()
		if err != nil {
			t.Fatalf("Rebuild failed: %v", err)
		}
		if stats.Sessions != 2 {
			t.Fatalf("Expected 2 sessions, got %d", stats.Sessions)
		}
		restored := NewServer(nil, metrics.NewMetrics(prometheus.NewRegistry()), logger.Nop(), config.Default().Basis)
		restored.Restore(bases)
		return restored
	}

	compare := func(restored *Server) {
		t.Helper()
		for _, id := range []string{a.Info.Session, b.Info.Session} {
			want, err := env.server.Info(ctx, &SessionRequest{Session: id})
			if err != nil {
				t.Fatalf("Info failed: %v", err)
			}
			got, err := restored.Info(ctx, &SessionRequest{Session: id})
			if err != nil {
				t.Fatalf("Restored Info failed: %v", err)
			}
			if got.Info.Size != want.Info.Size || got.Info.TreeLevel != want.Info.TreeLevel {
				t.Errorf("Session %s: expected size %d tree level %d, got %d and %d", id,
					want.Info.Size, want.Info.TreeLevel, got.Info.Size, got.Info.TreeLevel)
			}
			for _, x := range []float64{0.05, 0.3, 0.7} {
				p := []float64{x}
				if want.Info.Dim == 2 {
					p = []float64{x, 1 - x}
				}
				wantActive, _ := env.server.ActiveAt(ctx, &ActiveAtRequest{Session: id, Point: p})
				gotActive, _ := restored.ActiveAt(ctx, &ActiveAtRequest{Session: id, Point: p})
				if !slices.Equal(wantActive.Functions, gotActive.Functions) {
					t.Errorf("Session %s at %v: expected %v, got %v", id, p, wantActive.Functions, gotActive.Functions)
				}
			}
		}
	}

	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("Step %d failed: %v", i, err)
		}
	}
	compare(restore())

	checkpointer := journal.NewCheckpointer(env.journal, env.server.VisitSessions, zerolog.Nop())
	if err := checkpointer.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}
	files, err := env.journal.Files()
	if err != nil {
		t.Fatalf("Files failed: %v", err)
	}
	if len(files) != 1 {
		t.Errorf("Expected 1 journal file after checkpoint, got %d", len(files))
	}
	compare(restore())
}

func TestInterceptorRecordsRequests(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	if _, err := env.client.CreateBasis(ctx, &CreateBasisRequest{}); err != nil {
		t.Fatalf("CreateBasis failed: %v", err)
	}
	_, _ = env.client.Info(ctx, &SessionRequest{})

	families, err := env.reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	seen := map[string]float64{}
	for _, f := range families {
		if f.GetName() != "hsplines_grpc_requests_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			var method, code string
			for _, l := range m.GetLabel() {
				switch l.GetName() {
				case "method":
					method = l.GetValue()
				case "status":
					code = l.GetValue()
				}
			}
			seen[method+" "+code] = m.GetCounter().GetValue()
		}
	}
	if seen["/hsplines.HBasis/CreateBasis OK"] != 1 {
		t.Errorf("Expected one successful CreateBasis, got %v", seen)
	}
	if seen["/hsplines.HBasis/Info InvalidArgument"] != 1 {
		t.Errorf("Expected one failed Info, got %v", seen)
	}
}

func TestObservabilityEndpoints(t *testing.T) {
	env := setupTestServer(t)
	obs := NewObservabilityServer(0, env.reg, env.server.NumSessions, logger.Nop())
	ts := httptest.NewServer(obs.Handler())
	defer ts.Close()

	get := func(path string) (int, string) {
		t.Helper()
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	if code, _ := get("/health"); code != http.StatusOK {
		t.Errorf("Expected /health 200, got %d", code)
	}
	if code, _ := get("/ready"); code != http.StatusServiceUnavailable {
		t.Errorf("Expected /ready 503 before restore, got %d", code)
	}
	obs.SetReady()
	if code, body := get("/ready"); code != http.StatusOK || !strings.Contains(body, `"sessions":0`) {
		t.Errorf("Expected ready with no sessions, got %d %s", code, body)
	}
	if _, body := get("/metrics"); !strings.Contains(body, "hsplines_sessions_active") {
		t.Error("Expected hsplines_sessions_active in /metrics")
	}
}
