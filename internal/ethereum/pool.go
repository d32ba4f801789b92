package ethereum

import (
	"context"
	"errors"
	"log"
	"time"

	"apex-trader/internal/observability"
)

// Default configuration values.
const (
	DefaultProbeTimeout = 5 * time.Second
	MainnetChainID      = 1
)

// ErrUnavailable is returned when every candidate endpoint fails its probe.
// Callers surface a network-unreachable condition instead of retrying within
// the same request.
var ErrUnavailable = errors.New("all rpc endpoints unavailable")

// DefaultEndpoints are public mainnet gateways requiring no API key,
// tried in order.
var DefaultEndpoints = []string{
	"https://ethereum-rpc.publicnode.com",
	"https://eth.drpc.org",
	"https://rpc.ankr.com/eth",
	"https://eth.llamarpc.com",
	"https://1rpc.io/eth",
	"https://eth-mainnet.public.blastapi.io",
	"https://cloudflare-eth.com",
	"https://rpc.builder0x69.io",
}

// Handle is one live endpoint connection. At most one is active at a time;
// the owner discards it on failure and re-acquires lazily on next use.
type Handle struct {
	Client   Client
	Endpoint string
	ChainID  int64
	Block    uint64 // head height observed by the acquisition probe
}

// Close releases the underlying connection.
func (h *Handle) Close() {
	if h != nil && h.Client != nil {
		h.Client.Close()
	}
}

// Pool tries an ordered list of candidate endpoints and produces the first
// one that answers a liveness probe within the timeout.
type Pool struct {
	endpoints    []string
	dial         DialFunc
	probeTimeout time.Duration
	chainID      int64
	logger       *log.Logger
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithDialFunc overrides the production dialer. Used by tests.
func WithDialFunc(dial DialFunc) PoolOption {
	return func(p *Pool) {
		p.dial = dial
	}
}

// WithProbeTimeout bounds each candidate's liveness probe.
func WithProbeTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		p.probeTimeout = d
	}
}

// WithChainID sets the chain id stamped on acquired handles.
func WithChainID(id int64) PoolOption {
	return func(p *Pool) {
		p.chainID = id
	}
}

// WithLogger sets the pool logger.
func WithLogger(logger *log.Logger) PoolOption {
	return func(p *Pool) {
		p.logger = logger
	}
}

// NewPool creates an endpoint pool over the given candidates.
// Empty candidates fall back to DefaultEndpoints.
func NewPool(endpoints []string, opts ...PoolOption) *Pool {
	if len(endpoints) == 0 {
		endpoints = DefaultEndpoints
	}
	p := &Pool{
		endpoints:    endpoints,
		dial:         Dial,
		probeTimeout: DefaultProbeTimeout,
		chainID:      MainnetChainID,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Acquire probes candidates in list order and returns the first endpoint that
// responds to a block-number probe within the timeout. Candidates after the
// first success are never probed. Returns ErrUnavailable when all fail.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	for _, endpoint := range p.endpoints {
		handle, err := p.probe(ctx, endpoint)
		if err != nil {
			observability.RecordEndpointProbe(false)
			p.logf("endpoint %s failed probe: %v", endpoint, err)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		observability.RecordEndpointProbe(true)
		p.logf("connected to %s at block %d", endpoint, handle.Block)
		return handle, nil
	}
	return nil, ErrUnavailable
}

// probe dials one endpoint and asks for the chain head within the timeout.
func (p *Pool) probe(ctx context.Context, endpoint string) (*Handle, error) {
	probeCtx, cancel := context.WithTimeout(ctx, p.probeTimeout)
	defer cancel()

	client, err := p.dial(probeCtx, endpoint)
	if err != nil {
		return nil, err
	}

	block, err := client.BlockNumber(probeCtx)
	if err != nil {
		client.Close()
		return nil, err
	}

	return &Handle{
		Client:   client,
		Endpoint: endpoint,
		ChainID:  p.chainID,
		Block:    block,
	}, nil
}

func (p *Pool) logf(format string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Printf(format, args...)
	}
}
