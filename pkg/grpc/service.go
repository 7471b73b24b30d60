package grpc

import (
	"context"
	"encoding/json"

	"github.com/example/storefront/pkg/errs"
	"github.com/example/storefront/pkg/procedures"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified name of the procedures service. Its
// single method takes {"procedure": name, "args": {...}} as a
// google.protobuf.Struct and returns the result as a google.protobuf.Value.
const ServiceName = "storefront.platform.v1.Procedures"

const callMethod = "/" + ServiceName + "/Call"

type ProceduresServer interface {
	Call(ctx context.Context, req *structpb.Struct) (*structpb.Value, error)
}

func callHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ProceduresServer).Call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: callMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ProceduresServer).Call(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var proceduresServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ProceduresServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Call", Handler: callHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "storefront/platform/v1/procedures.proto",
}

func RegisterProceduresServer(s grpc.ServiceRegistrar, srv ProceduresServer) {
	s.RegisterService(&proceduresServiceDesc, srv)
}

// encodeRequest builds the wire request of a call.
func encodeRequest(name string, args procedures.Args) (*structpb.Struct, error) {
	if args == nil {
		args = procedures.Args{}
	}
	data, err := json.Marshal(map[string]interface{}{"procedure": name, "args": args})
	if err != nil {
		return nil, err
	}
	req := &structpb.Struct{}
	if err := protojson.Unmarshal(data, req); err != nil {
		return nil, err
	}
	return req, nil
}

func decodeRequest(req *structpb.Struct) (string, procedures.Args) {
	name := req.GetFields()["procedure"].GetStringValue()
	args := procedures.Args{}
	if s := req.GetFields()["args"].GetStructValue(); s != nil {
		args = s.AsMap()
	}
	return name, args
}

// encodeResult converts a procedure result through its JSON form.
func encodeResult(result interface{}) (*structpb.Value, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	v := &structpb.Value{}
	if err := protojson.Unmarshal(data, v); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeResult(v *structpb.Value, out interface{}) error {
	if out == nil {
		return nil
	}
	data, err := protojson.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

var toGRPC = map[string]codes.Code{
	errs.EInternal:      codes.Internal,
	errs.ENotFound:      codes.NotFound,
	errs.EConflict:      codes.AlreadyExists,
	errs.EInvalid:       codes.InvalidArgument,
	errs.EForbidden:     codes.PermissionDenied,
	errs.EUnauthorized:  codes.Unauthenticated,
	errs.EUnavailable:   codes.Unavailable,
	errs.ENotConfigured: codes.FailedPrecondition,
	errs.ETimeout:       codes.DeadlineExceeded,
}

// ToStatus converts a coded error into a gRPC status error.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	c, ok := toGRPC[errs.Code(err)]
	if !ok {
		c = codes.Internal
	}
	return status.Error(c, errs.Message(err))
}

// FromStatus converts a gRPC status error back into a coded error.
func FromStatus(err error, op string) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return &errs.Error{Code: errs.EUnavailable, Op: op, Err: err}
	}
	if st.Code() == codes.Canceled {
		return &errs.Error{Code: errs.ETimeout, Msg: st.Message(), Op: op}
	}
	for code, c := range toGRPC {
		if c == st.Code() {
			return &errs.Error{Code: code, Msg: st.Message(), Op: op}
		}
	}
	return &errs.Error{Code: errs.EInternal, Msg: st.Message(), Op: op}
}
