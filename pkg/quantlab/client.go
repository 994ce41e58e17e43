// Package quantlab is a Go SDK for the quantlab-server Research gRPC
// service.
package quantlab

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"quantlab/internal/api"
	"quantlab/internal/store"
)

// Request and response types of the Research service.
type (
	BacktestRequest     = api.BacktestRequest
	BacktestResponse    = api.BacktestResponse
	GridRequest         = api.GridRequest
	GridResponse        = api.GridResponse
	WalkForwardRequest  = api.WalkForwardRequest
	WalkForwardResponse = api.WalkForwardResponse
	BatchRequest        = api.BatchRequest
	BatchResponse       = api.BatchResponse
	StrategyInfo        = api.StrategyInfo
)

// Client calls the Research service over a gRPC connection.
type Client struct {
	conn *grpc.ClientConn
	own  bool
}

// Dial connects to a quantlab-server gRPC address without TLS.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return &Client{conn: conn, own: true}, nil
}

// NewClient wraps an existing connection. Close leaves conn open.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// Close closes the connection if the client opened it.
func (c *Client) Close() error {
	if !c.own {
		return nil
	}
	return c.conn.Close()
}

func call[Resp any](ctx context.Context, c *Client, method string, req any) (*Resp, error) {
	in, err := api.EncodeStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, api.FullMethod(method), in, out); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	resp := new(Resp)
	if err := api.DecodeStruct(out, resp); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return resp, nil
}

// Backtest runs one strategy over one symbol on the server.
func (c *Client) Backtest(ctx context.Context, req BacktestRequest) (*BacktestResponse, error) {
	return call[BacktestResponse](ctx, c, api.MethodRunBacktest, req)
}

// GridSearch sweeps a parameter space on the server.
func (c *Client) GridSearch(ctx context.Context, req GridRequest) (*GridResponse, error) {
	return call[GridResponse](ctx, c, api.MethodGridSearch, req)
}

// WalkForward runs a walk-forward evaluation on the server.
func (c *Client) WalkForward(ctx context.Context, req WalkForwardRequest) (*WalkForwardResponse, error) {
	return call[WalkForwardResponse](ctx, c, api.MethodWalkForward, req)
}

// Batch runs a symbol-by-strategy matrix on the server.
func (c *Client) Batch(ctx context.Context, req BatchRequest) (*BatchResponse, error) {
	return call[BatchResponse](ctx, c, api.MethodRunBatch, req)
}

// Strategies lists the strategies the server knows.
func (c *Client) Strategies(ctx context.Context) ([]StrategyInfo, error) {
	resp, err := call[api.StrategiesResponse](ctx, c, api.MethodListStrategies, struct{}{})
	if err != nil {
		return nil, err
	}
	return resp.Strategies, nil
}

// Runs lists the most recent saved runs.
func (c *Client) Runs(ctx context.Context, limit int) ([]store.Run, error) {
	resp, err := call[api.RunsResponse](ctx, c, api.MethodListRuns, api.RunsRequest{Limit: limit})
	if err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// Run fetches one saved run with its trades.
func (c *Client) Run(ctx context.Context, id string) (*store.Run, error) {
	return call[store.Run](ctx, c, api.MethodGetRun, api.RunRequest{ID: id})
}
