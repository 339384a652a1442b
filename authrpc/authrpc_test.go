package authrpc_test

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/NitishJha0207/holdfast/authrpc"
	"github.com/NitishJha0207/holdfast/session"
)

const bufSize = 1024 * 1024

type fakeHandler struct {
	current    *authrpc.SessionMsg
	currentErr error
	adoptErr   error
	refreshed  *authrpc.SessionMsg
	refreshErr error
}

func (f *fakeHandler) Current(_ context.Context, _ *authrpc.CurrentRequest) (*authrpc.CurrentResponse, error) {
	if f.currentErr != nil {
		return nil, f.currentErr
	}
	return &authrpc.CurrentResponse{Session: f.current}, nil
}

func (f *fakeHandler) Adopt(_ context.Context, req *authrpc.AdoptRequest) (*authrpc.AdoptResponse, error) {
	if f.adoptErr != nil {
		return nil, f.adoptErr
	}
	accepted := *req.Session
	accepted.RefreshToken = "rotated-" + accepted.RefreshToken
	return &authrpc.AdoptResponse{Session: &accepted}, nil
}

func (f *fakeHandler) Refresh(_ context.Context, _ *authrpc.RefreshRequest) (*authrpc.RefreshResponse, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &authrpc.RefreshResponse{Session: f.refreshed}, nil
}

func startServer(t *testing.T, h authrpc.Handler) *bufconn.Listener {
	t.Helper()
	lis := bufconn.Listen(bufSize)
	s := grpc.NewServer()
	authrpc.Register(s, h)
	t.Cleanup(s.Stop)
	go func() {
		_ = s.Serve(lis)
	}()
	return lis
}

func dial(t *testing.T, lis *bufconn.Listener) *grpc.ClientConn {
	t.Helper()
	conn, err := grpc.NewClient("passthrough:///bufconn",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufconn: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestRegisterService(t *testing.T) {
	s := grpc.NewServer()
	authrpc.Register(s, &fakeHandler{})

	info, ok := s.GetServiceInfo()["holdfast.Sessions"]
	if !ok {
		t.Fatal("holdfast.Sessions service not registered")
	}
	want := map[string]bool{"Current": false, "Adopt": false, "Refresh": false}
	for _, m := range info.Methods {
		if _, known := want[m.Name]; !known {
			t.Fatalf("unexpected method %q", m.Name)
		}
		want[m.Name] = true
	}
	for name, seen := range want {
		if !seen {
			t.Fatalf("method %q not registered", name)
		}
	}
}

func TestCurrentViaBufconn(t *testing.T) {
	h := &fakeHandler{current: &authrpc.SessionMsg{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		ExpiresAt:    1700000000,
		UserID:       "user-1",
		UserEmail:    "u@example.com",
	}}
	client := authrpc.NewClient(dial(t, startServer(t, h)))

	rec, err := client.Current(t.Context())
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if rec == nil {
		t.Fatal("Current returned nil record")
	}
	if rec.AccessToken != "at-1" || rec.User.ID != "user-1" || rec.User.Email != "u@example.com" {
		t.Fatalf("record mismatch: %+v", rec)
	}
	if rec.ExpiresAt != 1700000000 {
		t.Fatalf("ExpiresAt = %d, want 1700000000", rec.ExpiresAt)
	}
}

func TestCurrentNoSession(t *testing.T) {
	client := authrpc.NewClient(dial(t, startServer(t, &fakeHandler{})))

	rec, err := client.Current(t.Context())
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record, got %+v", rec)
	}
}

func TestAdoptRotatesTokens(t *testing.T) {
	client := authrpc.NewClient(dial(t, startServer(t, &fakeHandler{})))

	in := &session.Record{
		AccessToken:  "at-old",
		RefreshToken: "rt-old",
		User:         session.User{ID: "user-1"},
	}
	out, err := client.Adopt(t.Context(), in)
	if err != nil {
		t.Fatalf("Adopt: %v", err)
	}
	if out.RefreshToken != "rotated-rt-old" {
		t.Fatalf("RefreshToken = %q, want %q", out.RefreshToken, "rotated-rt-old")
	}
	if in.RefreshToken != "rt-old" {
		t.Fatal("Adopt mutated its input record")
	}
}

func TestRefreshViaBufconn(t *testing.T) {
	h := &fakeHandler{refreshed: &authrpc.SessionMsg{
		AccessToken: "at-fresh",
		UserID:      "user-1",
	}}
	client := authrpc.NewClient(dial(t, startServer(t, h)))

	rec, err := client.Refresh(t.Context())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if rec.AccessToken != "at-fresh" {
		t.Fatalf("AccessToken = %q, want %q", rec.AccessToken, "at-fresh")
	}
}

func TestTerminalStatusMapsToInvalidToken(t *testing.T) {
	for _, code := range []codes.Code{codes.Unauthenticated, codes.PermissionDenied} {
		h := &fakeHandler{refreshErr: status.Error(code, "credentials rejected")}
		client := authrpc.NewClient(dial(t, startServer(t, h)))

		_, err := client.Refresh(t.Context())
		if err == nil {
			t.Fatalf("code %v: expected error", code)
		}
		if !session.IsInvalidToken(err) {
			t.Fatalf("code %v: error %v should map to invalid token", code, err)
		}
	}
}

func TestTransientStatusStaysRetryable(t *testing.T) {
	h := &fakeHandler{currentErr: status.Error(codes.Unavailable, "backend down")}
	client := authrpc.NewClient(dial(t, startServer(t, h)))

	_, err := client.Current(t.Context())
	if err == nil {
		t.Fatal("expected error")
	}
	if session.IsInvalidToken(err) {
		t.Fatalf("transient error %v must not map to invalid token", err)
	}
}

func TestMessageConversion(t *testing.T) {
	rec := &session.Record{
		AccessToken:  "at",
		RefreshToken: "rt",
		ExpiresAt:    42,
		User:         session.User{ID: "u1", Email: "e@example.com"},
	}
	back := authrpc.FromRecord(rec).Record()
	if *back != *rec {
		t.Fatalf("round trip mismatch: got %+v, want %+v", back, rec)
	}
	if authrpc.FromRecord(nil) != nil {
		t.Fatal("FromRecord(nil) should be nil")
	}
	var nilMsg *authrpc.SessionMsg
	if nilMsg.Record() != nil {
		t.Fatal("nil message should convert to nil record")
	}
}
