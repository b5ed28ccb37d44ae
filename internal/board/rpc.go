package board

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/scenario.board/internal/db"
	"github.com/banshee-data/scenario.board/internal/monitoring"
	"github.com/banshee-data/scenario.board/internal/scenario"
	"github.com/banshee-data/scenario.board/internal/tab"
)

// LayoutServiceName is the fully qualified gRPC service name.
const LayoutServiceName = "scenarioboard.v1.LayoutService"

// LayoutServiceServer is the server API of the layout service. Requests and
// responses are google.protobuf.Struct values holding the JSON form of the
// board types.
type LayoutServiceServer interface {
	GetLayout(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Select(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TogglePlanners(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WatchLayouts(*structpb.Struct, LayoutService_WatchLayoutsServer) error
}

// LayoutService_WatchLayoutsServer is the server side of a layout watch.
type LayoutService_WatchLayoutsServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type layoutServiceWatchLayoutsServer struct {
	grpc.ServerStream
}

func (x *layoutServiceWatchLayoutsServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

func unaryHandler(method string, call func(LayoutServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LayoutServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + LayoutServiceName + "/" + method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(LayoutServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func watchLayoutsHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(LayoutServiceServer).WatchLayouts(in, &layoutServiceWatchLayoutsServer{stream})
}

// LayoutService_ServiceDesc describes the layout service for grpc.Server.
var LayoutService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: LayoutServiceName,
	HandlerType: (*LayoutServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetLayout", Handler: unaryHandler("GetLayout", LayoutServiceServer.GetLayout)},
		{MethodName: "Select", Handler: unaryHandler("Select", LayoutServiceServer.Select)},
		{MethodName: "TogglePlanners", Handler: unaryHandler("TogglePlanners", LayoutServiceServer.TogglePlanners)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchLayouts", Handler: watchLayoutsHandler, ServerStreams: true},
	},
	Metadata: "scenarioboard/v1/layout.proto",
}

// RegisterLayoutService registers srv on s.
func RegisterLayoutService(s grpc.ServiceRegistrar, srv LayoutServiceServer) {
	s.RegisterService(&LayoutService_ServiceDesc, srv)
}

// RPCServer implements LayoutServiceServer on top of the tab controller.
type RPCServer struct {
	controller *tab.Controller
	loop       *tab.Loop
	publisher  *tab.Publisher

	stopCh   chan struct{}
	stopOnce sync.Once
}

var _ LayoutServiceServer = (*RPCServer)(nil)

// NewRPCServer creates the layout service. Publisher may be nil, in which
// case WatchLayouts is unavailable.
func NewRPCServer(controller *tab.Controller, loop *tab.Loop, publisher *tab.Publisher) *RPCServer {
	return &RPCServer{
		controller: controller,
		loop:       loop,
		publisher:  publisher,
		stopCh:     make(chan struct{}),
	}
}

// Stop ends every open WatchLayouts stream. It must run before GracefulStop,
// which otherwise waits on the streams forever.
func (s *RPCServer) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// rpcError maps controller errors onto gRPC status codes.
func rpcError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, scenario.ErrUnknownOption),
		errors.Is(err, scenario.ErrUnknownField),
		errors.Is(err, tab.ErrUnknownExperiment):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, db.ErrViewNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}
	return status.Error(codes.Internal, err.Error())
}

// EncodeStruct converts v to a Struct through its JSON form.
func EncodeStruct(v interface{}) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// DecodeStruct fills v from the JSON form of s.
func DecodeStruct(s *structpb.Struct, v interface{}) error {
	b, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func (s *RPCServer) layout() (*structpb.Struct, error) {
	out, err := EncodeStruct(s.controller.Layout())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode layout: %v", err)
	}
	return out, nil
}

// GetLayout returns the current layout.
func (s *RPCServer) GetLayout(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return s.layout()
}

// Select applies {"field": ..., "value": ...} and returns the new layout.
func (s *RPCServer) Select(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	field, err := scenario.ParseField(req.GetFields()["field"].GetStringValue())
	if err != nil {
		return nil, rpcError(err)
	}
	value := req.GetFields()["value"].GetStringValue()
	err = s.loop.Do(ctx, func() error { return s.controller.Select(ctx, field, value) })
	if err != nil {
		return nil, rpcError(err)
	}
	return s.layout()
}

// TogglePlanners applies {"planners": [...]} and returns the new layout.
func (s *RPCServer) TogglePlanners(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	v, ok := req.GetFields()["planners"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "planners is required")
	}
	values := v.GetListValue().GetValues()
	planners := make([]string, 0, len(values))
	for _, p := range values {
		sv, ok := p.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, status.Errorf(codes.InvalidArgument, "planner names must be strings, got %v", p)
		}
		planners = append(planners, sv.StringValue)
	}
	err := s.loop.Do(ctx, func() error { return s.controller.SetEnabledPlanners(ctx, planners) })
	if err != nil {
		return nil, rpcError(err)
	}
	return s.layout()
}

func updateStruct(slot tab.Slot, l tab.Layout) (*structpb.Struct, error) {
	return EncodeStruct(struct {
		Slot   tab.Slot   `json:"slot"`
		Layout tab.Layout `json:"layout"`
	}{slot, l})
}

// WatchLayouts sends the current layout with an empty slot, then every
// published slot update until the client goes away.
func (s *RPCServer) WatchLayouts(_ *structpb.Struct, stream LayoutService_WatchLayoutsServer) error {
	if s.publisher == nil {
		return status.Error(codes.Unavailable, "layout publishing is disabled")
	}
	ctx := stream.Context()
	id, updates, cancel := s.publisher.Subscribe()
	defer cancel()
	monitoring.Logf("[rpc] WatchLayouts started: %s", id)

	first, err := updateStruct("", s.controller.Layout())
	if err != nil {
		return status.Errorf(codes.Internal, "encode layout: %v", err)
	}
	if err := stream.Send(first); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("[rpc] WatchLayouts cancelled: %s", id)
			return ctx.Err()
		case <-s.stopCh:
			monitoring.Logf("[rpc] WatchLayouts stopped: %s", id)
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			msg, err := updateStruct(u.Slot, u.Layout)
			if err != nil {
				return status.Errorf(codes.Internal, "encode layout: %v", err)
			}
			if err := stream.Send(msg); err != nil {
				monitoring.Logf("[rpc] send error: %v", err)
				return err
			}
		}
	}
}

// stopper is implemented by servers holding streams open past ctx cancellation.
type stopper interface {
	Stop()
}

// ServeRPC serves the layout service on lis until ctx is cancelled.
func ServeRPC(ctx context.Context, lis net.Listener, srv LayoutServiceServer) error {
	const maxMsgSize = 16 * 1024 * 1024
	s := grpc.NewServer(
		grpc.MaxRecvMsgSize(maxMsgSize),
		grpc.MaxSendMsgSize(maxMsgSize),
	)
	RegisterLayoutService(s, srv)

	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("[rpc] gRPC server listening on %s", lis.Addr())
		errCh <- s.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	if st, ok := srv.(stopper); ok {
		st.Stop()
	}
	s.GracefulStop()
	monitoring.Logf("[rpc] gRPC server stopped")
	return nil
}

// LayoutServiceClient is the client API of the layout service.
type LayoutServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewLayoutServiceClient creates a client on cc.
func NewLayoutServiceClient(cc grpc.ClientConnInterface) *LayoutServiceClient {
	return &LayoutServiceClient{cc: cc}
}

func (c *LayoutServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (tab.Layout, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+LayoutServiceName+"/"+method, in, out, opts...); err != nil {
		return tab.Layout{}, err
	}
	var l tab.Layout
	if err := DecodeStruct(out, &l); err != nil {
		return tab.Layout{}, fmt.Errorf("decode layout: %w", err)
	}
	return l, nil
}

// GetLayout fetches the current layout.
func (c *LayoutServiceClient) GetLayout(ctx context.Context, opts ...grpc.CallOption) (tab.Layout, error) {
	return c.invoke(ctx, "GetLayout", &structpb.Struct{}, opts...)
}

// Select sets one selector.
func (c *LayoutServiceClient) Select(ctx context.Context, field scenario.Field, value string, opts ...grpc.CallOption) (tab.Layout, error) {
	in, err := structpb.NewStruct(map[string]interface{}{"field": string(field), "value": value})
	if err != nil {
		return tab.Layout{}, err
	}
	return c.invoke(ctx, "Select", in, opts...)
}

// TogglePlanners replaces the enabled planner set.
func (c *LayoutServiceClient) TogglePlanners(ctx context.Context, planners []string, opts ...grpc.CallOption) (tab.Layout, error) {
	list := make([]interface{}, len(planners))
	for i, p := range planners {
		list[i] = p
	}
	in, err := structpb.NewStruct(map[string]interface{}{"planners": list})
	if err != nil {
		return tab.Layout{}, err
	}
	return c.invoke(ctx, "TogglePlanners", in, opts...)
}

// LayoutWatch receives layout updates from WatchLayouts.
type LayoutWatch struct {
	stream grpc.ClientStream
}

// Recv blocks for the next update.
func (w *LayoutWatch) Recv() (tab.Update, error) {
	m := new(structpb.Struct)
	if err := w.stream.RecvMsg(m); err != nil {
		return tab.Update{}, err
	}
	var u struct {
		Slot   tab.Slot   `json:"slot"`
		Layout tab.Layout `json:"layout"`
	}
	if err := DecodeStruct(m, &u); err != nil {
		return tab.Update{}, fmt.Errorf("decode update: %w", err)
	}
	return tab.Update{Slot: u.Slot, Layout: u.Layout}, nil
}

// WatchLayouts opens a layout watch. Cancel ctx to end it.
func (c *LayoutServiceClient) WatchLayouts(ctx context.Context, opts ...grpc.CallOption) (*LayoutWatch, error) {
	stream, err := c.cc.NewStream(ctx, &LayoutService_ServiceDesc.Streams[0], "/"+LayoutServiceName+"/WatchLayouts", opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&structpb.Struct{}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &LayoutWatch{stream: stream}, nil
}
