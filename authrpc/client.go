package authrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/NitishJha0207/holdfast/session"
)

// Client adapts a holdfast.Sessions gRPC service into a
// [session.Backend].
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps an established gRPC connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

var _ session.Backend = (*Client)(nil)

// Current reports the session the service currently holds, or nil when
// there is none.
func (c *Client) Current(ctx context.Context) (*session.Record, error) {
	resp := new(CurrentResponse)
	if err := c.conn.Invoke(ctx, "/holdfast.Sessions/Current", new(CurrentRequest), resp); err != nil {
		return nil, wrapStatus("current", err)
	}
	return resp.Session.Record(), nil
}

// Adopt hands a recovered session to the service, which may rotate its
// tokens before accepting it.
func (c *Client) Adopt(ctx context.Context, r *session.Record) (*session.Record, error) {
	req := &AdoptRequest{Session: FromRecord(r)}
	resp := new(AdoptResponse)
	if err := c.conn.Invoke(ctx, "/holdfast.Sessions/Adopt", req, resp); err != nil {
		return nil, wrapStatus("adopt", err)
	}
	if resp.Session == nil {
		return nil, fmt.Errorf("authrpc: adopt: empty session in response: %w", session.ErrInvalidToken)
	}
	return resp.Session.Record(), nil
}

// Refresh asks the service to renew the current session's tokens.
func (c *Client) Refresh(ctx context.Context) (*session.Record, error) {
	resp := new(RefreshResponse)
	if err := c.conn.Invoke(ctx, "/holdfast.Sessions/Refresh", new(RefreshRequest), resp); err != nil {
		return nil, wrapStatus("refresh", err)
	}
	if resp.Session == nil {
		return nil, fmt.Errorf("authrpc: refresh: empty session in response: %w", session.ErrInvalidToken)
	}
	return resp.Session.Record(), nil
}

// wrapStatus converts gRPC status errors into backend errors. Codes
// that mean the credentials themselves are bad wrap
// [session.ErrInvalidToken] so callers treat them as terminal rather
// than retryable.
func wrapStatus(op string, err error) error {
	switch status.Code(err) {
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("authrpc: %s: %v: %w", op, err, session.ErrInvalidToken)
	default:
		return fmt.Errorf("authrpc: %s: %w", op, err)
	}
}
