package board

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/scenario.board/internal/scenario"
	"github.com/banshee-data/scenario.board/internal/tab"
	"github.com/banshee-data/scenario.board/internal/testutil"
)

func newRPCClient(t *testing.T, h *harness) *LayoutServiceClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ServeRPC(ctx, lis, NewRPCServer(h.ctl, h.loop, h.pub)) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		conn.Close()
		cancel()
		<-done
	})
	return NewLayoutServiceClient(conn)
}

func TestRPC_SelectAndToggle(t *testing.T) {
	h := newHarness(t, false)
	c := newRPCClient(t, h)
	ctx := context.Background()

	l, err := c.GetLayout(ctx)
	require.NoError(t, err)
	assert.Equal(t, testutil.ScenarioType, l.Selection.ScenarioType)
	assert.Equal(t, tab.NoScoresMessage, l.Scores.Placeholder)

	_, err = c.Select(ctx, scenario.FieldLogName, testutil.LogName)
	require.NoError(t, err)
	l, err = c.Select(ctx, scenario.FieldScenarioName, testutil.ScenarioName)
	require.NoError(t, err)
	require.Len(t, l.Scores.Figures, 2)
	assert.Equal(t, "Metric scores 1/2", l.Scores.Figures[0].Title)
	assert.Equal(t, h.ctl.Layout().Scores.Figures[0].Series[0].Marker, l.Scores.Figures[0].Series[0].Marker)

	l, err = c.TogglePlanners(ctx, []string{"simple_planner"})
	require.NoError(t, err)
	assert.Equal(t, []string{"simple_planner"}, l.Selection.EnabledPlanners)
}

func TestRPC_Errors(t *testing.T) {
	h := newHarness(t, false)
	c := newRPCClient(t, h)
	ctx := context.Background()

	_, err := c.Select(ctx, scenario.FieldLogName, "nope")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = c.Select(ctx, scenario.Field("planner"), "x")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = c.TogglePlanners(ctx, []string{"astar_planner"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	srv := NewRPCServer(h.ctl, h.loop, h.pub)
	_, err = srv.TogglePlanners(ctx, &structpb.Struct{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	bad, err := structpb.NewStruct(map[string]interface{}{"planners": []interface{}{1.0}})
	require.NoError(t, err)
	_, err = srv.TogglePlanners(ctx, bad)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestRPC_WatchLayouts(t *testing.T) {
	h := newHarness(t, false)
	c := newRPCClient(t, h)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	w, err := c.WatchLayouts(ctx)
	require.NoError(t, err)
	first, err := w.Recv()
	require.NoError(t, err)
	assert.Equal(t, tab.Slot(""), first.Slot)
	assert.Equal(t, h.ctl.Layout().Revision, first.Layout.Revision)

	_, err = c.Select(ctx, scenario.FieldLogName, testutil.LogName)
	require.NoError(t, err)

	u, err := w.Recv()
	require.NoError(t, err)
	assert.Greater(t, u.Layout.Revision, first.Layout.Revision)
	assert.Equal(t, testutil.LogName, u.Layout.Selection.LogName)
}

func TestServeRPC_ShutdownWithOpenWatch(t *testing.T) {
	h := newHarness(t, false)
	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- ServeRPC(ctx, lis, NewRPCServer(h.ctl, h.loop, h.pub)) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	w, err := NewLayoutServiceClient(conn).WatchLayouts(context.Background())
	require.NoError(t, err)
	_, err = w.Recv()
	require.NoError(t, err)

	// the watch stays open on the client side while the server shuts down
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ServeRPC did not return while a watch was open")
	}

	_, err = w.Recv()
	assert.Error(t, err)
}

func TestWatchLayouts_Stopped(t *testing.T) {
	h := newHarness(t, false)
	srv := NewRPCServer(h.ctl, h.loop, h.pub)
	stream := &mockWatchStream{ctx: context.Background(), send: func(*structpb.Struct) error {
		srv.Stop()
		return nil
	}}

	require.NoError(t, srv.WatchLayouts(&structpb.Struct{}, stream))
	assert.Len(t, stream.sent, 1)
	assert.Zero(t, h.pub.Stats().Subscribers)
	srv.Stop()
}

type mockWatchStream struct {
	grpc.ServerStream
	ctx  context.Context
	sent []*structpb.Struct
	send func(*structpb.Struct) error
}

func (m *mockWatchStream) Send(s *structpb.Struct) error {
	m.sent = append(m.sent, s)
	if m.send != nil {
		return m.send(s)
	}
	return nil
}

func (m *mockWatchStream) Context() context.Context { return m.ctx }
func (m *mockWatchStream) SetHeader(metadata.MD) error { return nil }
func (m *mockWatchStream) SendHeader(metadata.MD) error { return nil }
func (m *mockWatchStream) SetTrailer(metadata.MD) {}
func (m *mockWatchStream) SendMsg(interface{}) error { return nil }
func (m *mockWatchStream) RecvMsg(interface{}) error { return nil }

func TestWatchLayouts_PublisherClosed(t *testing.T) {
	h := newHarness(t, false)
	srv := NewRPCServer(h.ctl, h.loop, h.pub)

	stream := &mockWatchStream{ctx: context.Background()}
	stream.send = func(*structpb.Struct) error {
		h.pub.Close()
		return nil
	}
	require.NoError(t, srv.WatchLayouts(&structpb.Struct{}, stream))
	require.Len(t, stream.sent, 1)

	var u struct {
		Slot   string     `json:"slot"`
		Layout tab.Layout `json:"layout"`
	}
	require.NoError(t, DecodeStruct(stream.sent[0], &u))
	assert.Empty(t, u.Slot)
	assert.Equal(t, "type_selected", u.Layout.Stage)
}

func TestWatchLayouts_Cancelled(t *testing.T) {
	h := newHarness(t, false)
	srv := NewRPCServer(h.ctl, h.loop, h.pub)
	ctx, cancel := context.WithCancel(context.Background())
	stream := &mockWatchStream{ctx: ctx, send: func(*structpb.Struct) error { cancel(); return nil }}

	err := srv.WatchLayouts(&structpb.Struct{}, stream)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, h.pub.Stats().Subscribers)
}

func TestWatchLayouts_NoPublisher(t *testing.T) {
	h := newHarness(t, false)
	srv := NewRPCServer(h.ctl, h.loop, nil)
	err := srv.WatchLayouts(&structpb.Struct{}, &mockWatchStream{ctx: context.Background()})
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestEncodeStruct(t *testing.T) {
	s, err := EncodeStruct(map[string]interface{}{"revision": 3, "stage": "none"})
	require.NoError(t, err)
	assert.Equal(t, float64(3), s.GetFields()["revision"].GetNumberValue())

	var out struct {
		Revision uint64 `json:"revision"`
		Stage    string `json:"stage"`
	}
	require.NoError(t, DecodeStruct(s, &out))
	assert.Equal(t, uint64(3), out.Revision)
	assert.Equal(t, "none", out.Stage)
}
