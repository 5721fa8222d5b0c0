package wire

import (
	"context"

	"github.com/ggoodman/kritor-gateway/kritor"
	"google.golang.org/grpc"
)

const (
	EventServiceName   = "kritor.event.EventService"
	ReverseServiceName = "kritor.reverse.ReverseService"

	RegisterPassiveListenerMethod = "/" + EventServiceName + "/RegisterPassiveListener"
	ReverseStreamMethod           = "/" + ReverseServiceName + "/ReverseStream"
)

// EventStream is the server side of the event-ingress stream: the core sends
// events and receives a single RequestPushEvent when it closes its side.
type EventStream = grpc.ClientStreamingServer[kritor.Event, kritor.RequestPushEvent]

// ReverseStream is the server side of the command stream: the gateway sends
// command requests and receives command responses.
type ReverseStream = grpc.BidiStreamingServer[kritor.CommandResponse, kritor.CommandRequest]

// EventServiceServer is implemented by the gateway's event endpoint.
type EventServiceServer interface {
	RegisterPassiveListener(EventStream) error
}

// ReverseServiceServer is implemented by the gateway's command endpoint.
type ReverseServiceServer interface {
	ReverseStream(ReverseStream) error
}

func registerPassiveListenerHandler(srv any, stream grpc.ServerStream) error {
	return srv.(EventServiceServer).RegisterPassiveListener(&grpc.GenericServerStream[kritor.Event, kritor.RequestPushEvent]{ServerStream: stream})
}

func reverseStreamHandler(srv any, stream grpc.ServerStream) error {
	return srv.(ReverseServiceServer).ReverseStream(&grpc.GenericServerStream[kritor.CommandResponse, kritor.CommandRequest]{ServerStream: stream})
}

// EventServiceDesc describes kritor.event.EventService.
var EventServiceDesc = grpc.ServiceDesc{
	ServiceName: EventServiceName,
	HandlerType: (*EventServiceServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "RegisterPassiveListener",
			Handler:       registerPassiveListenerHandler,
			ClientStreams: true,
		},
	},
	Metadata: "event/event.proto",
}

// ReverseServiceDesc describes kritor.reverse.ReverseService.
var ReverseServiceDesc = grpc.ServiceDesc{
	ServiceName: ReverseServiceName,
	HandlerType: (*ReverseServiceServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "ReverseStream",
			Handler:       reverseStreamHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "reverse/reverse.proto",
}

func RegisterEventServiceServer(s grpc.ServiceRegistrar, srv EventServiceServer) {
	s.RegisterService(&EventServiceDesc, srv)
}

func RegisterReverseServiceServer(s grpc.ServiceRegistrar, srv ReverseServiceServer) {
	s.RegisterService(&ReverseServiceDesc, srv)
}

// ServerOptions returns the options a gRPC server needs to speak the
// gateway's codec regardless of the content-subtype a core announces.
func ServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{grpc.ForceServerCodec(Codec{})}
}

// DialOptions returns the options a core-side client needs to talk to the
// gateway.
func DialOptions() []grpc.DialOption {
	return []grpc.DialOption{grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName))}
}

// OpenEventStream opens the event-ingress stream from the core side.
func OpenEventStream(ctx context.Context, cc grpc.ClientConnInterface, opts ...grpc.CallOption) (grpc.ClientStreamingClient[kritor.Event, kritor.RequestPushEvent], error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := cc.NewStream(ctx, &EventServiceDesc.Streams[0], RegisterPassiveListenerMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[kritor.Event, kritor.RequestPushEvent]{ClientStream: stream}, nil
}

// OpenReverseStream opens the command stream from the core side. The core
// receives CommandRequests and answers with CommandResponses.
func OpenReverseStream(ctx context.Context, cc grpc.ClientConnInterface, opts ...grpc.CallOption) (grpc.BidiStreamingClient[kritor.CommandResponse, kritor.CommandRequest], error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := cc.NewStream(ctx, &ReverseServiceDesc.Streams[0], ReverseStreamMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[kritor.CommandResponse, kritor.CommandRequest]{ClientStream: stream}, nil
}
