package client

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/draftkeeper/internal/client/credentials"
	"github.com/dmitrijs2005/draftkeeper/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// GRPCHealthPinger probes the draft server through the standard gRPC health
// service. When a credential provider is set, the session token travels in
// the request metadata so the server can reject expired sessions.
type GRPCHealthPinger struct {
	conn    *grpc.ClientConn
	health  healthpb.HealthClient
	service string
	creds   credentials.Provider
}

// PingerOption configures a GRPCHealthPinger.
type PingerOption func(*GRPCHealthPinger)

// WithService checks a named service instead of the server as a whole.
func WithService(name string) PingerOption {
	return func(p *GRPCHealthPinger) { p.service = name }
}

// WithCredentials attaches the session token to every probe.
func WithCredentials(c credentials.Provider) PingerOption {
	return func(p *GRPCHealthPinger) { p.creds = c }
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, "Bearer "+token)
	return metadata.NewOutgoingContext(ctx, md)
}

func (p *GRPCHealthPinger) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if p.creds != nil {
		if token, ok := p.creds.SessionCredential(ctx); ok {
			ctx = withAccessToken(ctx, token)
		}
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

// NewGRPCHealthPinger creates a client for endpointURL. The connection is
// established lazily by the first probe. dialOpts are appended after the
// defaults (insecure transport, token interceptor).
func NewGRPCHealthPinger(endpointURL string, opts []PingerOption, dialOpts ...grpc.DialOption) (*GRPCHealthPinger, error) {
	p := &GRPCHealthPinger{}
	for _, o := range opts {
		o(p)
	}

	all := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(p.accessTokenInterceptor),
	}, dialOpts...)

	conn, err := grpc.NewClient(endpointURL, all...)
	if err != nil {
		return nil, err
	}
	p.conn = conn
	p.health = healthpb.NewHealthClient(conn)
	return p, nil
}

// Ping returns nil only if the server reports SERVING.
func (p *GRPCHealthPinger) Ping(ctx context.Context) error {
	resp, err := p.health.Check(ctx, &healthpb.HealthCheckRequest{Service: p.service})
	if err != nil {
		return mapError(err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: %s", ErrUnavailable, resp.GetStatus())
	}
	return nil
}

func (p *GRPCHealthPinger) Close() error {
	return p.conn.Close()
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return ErrUnavailable
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
