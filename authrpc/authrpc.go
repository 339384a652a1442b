// Package authrpc exposes a session backend over gRPC. It uses
// [grpc.ServiceDesc] registration so that no protobuf code generation
// is required.
//
// Because the request/response types are plain Go structs (not
// generated protobuf messages), the package registers a thin codec
// wrapper that JSON-encodes them while delegating all other messages to
// the standard proto codec. Import this package (or call [Register]) to
// activate the codec automatically.
package authrpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	grpcEncoding "google.golang.org/grpc/encoding"
	_ "google.golang.org/grpc/encoding/proto" // ensure default proto codec is registered first
	"google.golang.org/protobuf/proto"

	"github.com/NitishJha0207/holdfast/session"
)

// SessionMsg is the wire form of one session.
type SessionMsg struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	UserID       string `json:"user_id"`
	UserEmail    string `json:"user_email,omitempty"`
}

// CurrentRequest is the input for the Current method.
type CurrentRequest struct{}

// CurrentResponse is the output of the Current method. A nil Session
// means the backend knows of no session.
type CurrentResponse struct {
	Session *SessionMsg `json:"session,omitempty"`
}

// AdoptRequest is the input for the Adopt method.
type AdoptRequest struct {
	Session *SessionMsg `json:"session"`
}

// AdoptResponse is the output of the Adopt method, carrying the session
// as the backend accepted it, tokens possibly rotated.
type AdoptResponse struct {
	Session *SessionMsg `json:"session"`
}

// RefreshRequest is the input for the Refresh method.
type RefreshRequest struct{}

// RefreshResponse is the output of the Refresh method.
type RefreshResponse struct {
	Session *SessionMsg `json:"session"`
}

// authMsg is a marker interface satisfied by all request and response
// types of the Sessions service.
type authMsg interface {
	isAuthMsg()
}

func (*CurrentRequest) isAuthMsg()  {}
func (*CurrentResponse) isAuthMsg() {}
func (*AdoptRequest) isAuthMsg()    {}
func (*AdoptResponse) isAuthMsg()   {}
func (*RefreshRequest) isAuthMsg()  {}
func (*RefreshResponse) isAuthMsg() {}

// Handler is the interface a Sessions service implementation must
// satisfy.
type Handler interface {
	Current(ctx context.Context, req *CurrentRequest) (*CurrentResponse, error)
	Adopt(ctx context.Context, req *AdoptRequest) (*AdoptResponse, error)
	Refresh(ctx context.Context, req *RefreshRequest) (*RefreshResponse, error)
}

// ServiceDesc is the grpc.ServiceDesc for the holdfast.Sessions service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "holdfast.Sessions",
	HandlerType: (*Handler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Current", Handler: currentHandler},
		{MethodName: "Adopt", Handler: adoptHandler},
		{MethodName: "Refresh", Handler: refreshHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "holdfast/sessions.proto",
}

func currentHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(CurrentRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Handler).Current(ctx, req)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/holdfast.Sessions/Current",
	}
	handler := func(ctx context.Context, r any) (any, error) {
		return srv.(Handler).Current(ctx, r.(*CurrentRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func adoptHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(AdoptRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Handler).Adopt(ctx, req)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/holdfast.Sessions/Adopt",
	}
	handler := func(ctx context.Context, r any) (any, error) {
		return srv.(Handler).Adopt(ctx, r.(*AdoptRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func refreshHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(RefreshRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Handler).Refresh(ctx, req)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/holdfast.Sessions/Refresh",
	}
	handler := func(ctx context.Context, r any) (any, error) {
		return srv.(Handler).Refresh(ctx, r.(*RefreshRequest))
	}
	return interceptor(ctx, req, info, handler)
}

// Register registers a Sessions service implementation on the given
// gRPC server.
func Register(s *grpc.Server, h Handler) {
	s.RegisterService(&ServiceDesc, h)
}

// FromRecord converts a session record to its wire form.
func FromRecord(r *session.Record) *SessionMsg {
	if r == nil {
		return nil
	}
	return &SessionMsg{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    r.ExpiresAt,
		UserID:       r.User.ID,
		UserEmail:    r.User.Email,
	}
}

// Record converts the wire form back to a session record.
func (m *SessionMsg) Record() *session.Record {
	if m == nil {
		return nil
	}
	return &session.Record{
		AccessToken:  m.AccessToken,
		RefreshToken: m.RefreshToken,
		ExpiresAt:    m.ExpiresAt,
		User:         session.User{ID: m.UserID, Email: m.UserEmail},
	}
}

// ---------- codec wrapper ----------

func init() {
	// Replace the default proto codec with a thin wrapper that
	// JSON-encodes Sessions types and delegates all other (protobuf)
	// messages to proto.Marshal.
	grpcEncoding.RegisterCodec(authCodec{})
}

// authCodec wraps the default proto codec. It handles the Sessions
// request/response types via JSON, and delegates all other types to
// proto.Marshal/Unmarshal.
type authCodec struct{}

func (authCodec) Name() string { return "proto" }

func (authCodec) Marshal(v any) ([]byte, error) {
	if _, ok := v.(authMsg); ok {
		return json.Marshal(v)
	}
	if m, ok := v.(proto.Message); ok {
		return proto.Marshal(m)
	}
	return nil, fmt.Errorf("authrpc codec: unsupported message type %T", v)
}

func (authCodec) Unmarshal(data []byte, v any) error {
	if _, ok := v.(authMsg); ok {
		return json.Unmarshal(data, v)
	}
	if m, ok := v.(proto.Message); ok {
		return proto.Unmarshal(data, m)
	}
	return fmt.Errorf("authrpc codec: unsupported message type %T", v)
}
