// Package electrum provides a JSON-RPC client for Electrum servers.
//
// Requests are newline-delimited JSON-RPC 2.0 over TCP or TLS. Every
// operation opens a session on the first reachable server of an ordered
// list, performs the server.version handshake, runs its requests and closes
// the connection.
package electrum

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/Klingon-tech/bitname/internal/log"
)

const (
	// ClientName is announced in the server.version handshake.
	ClientName = "bitname"
	// ProtocolVersion is the Electrum protocol version requested.
	ProtocolVersion = "1.4"

	defaultTimeout = 10 * time.Second
	maxLineSize    = 16 << 20
)

var (
	// ErrNoServers is returned when the client has no server configured.
	ErrNoServers = errors.New("no electrum servers configured")
	// ErrAllServersFailed is returned when no server could serve a request.
	ErrAllServersFailed = errors.New("all electrum servers failed")
	// ErrNoFeeEstimate is returned when the server has no fee estimate.
	ErrNoFeeEstimate = errors.New("server has no fee estimate")
	// ErrTxNotFound is returned when a transaction is not in a script history.
	ErrTxNotFound = errors.New("transaction not in script history")
)

// TxCache stores raw transactions fetched from the network.
type TxCache interface {
	Tx(txid chainhash.Hash) (*wire.MsgTx, error)
	PutTx(tx *wire.MsgTx) error
}

// Client is an Electrum JSON-RPC client with ordered server failover.
type Client struct {
	servers []string
	tls     *tls.Config
	timeout time.Duration
	cache   TxCache
	dialer  net.Dialer
}

// Option configures a Client.
type Option func(*Client)

// WithTLS connects over TLS with the given configuration. Without it the
// client speaks plain TCP.
func WithTLS(cfg *tls.Config) Option {
	return func(c *Client) { c.tls = cfg }
}

// WithTimeout bounds each session with one server, handshake included.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithTxCache serves transactions from cache when present and records the
// ones fetched.
func WithTxCache(cache TxCache) Option {
	return func(c *Client) { c.cache = cache }
}

// New creates a client for servers given as host:port, tried in order.
func New(servers []string, opts ...Option) *Client {
	c := &Client{
		servers: append([]string(nil), servers...),
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Servers returns the configured servers in failover order.
func (c *Client) Servers() []string {
	return append([]string(nil), c.servers...)
}

// request is a JSON-RPC 2.0 request.
type request struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

// response is a JSON-RPC 2.0 response.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      *int            `json:"id"`
}

// rpcError is a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RPCError is returned when the server responds with an error.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// session is one connection to one server.
type session struct {
	server string
	conn   net.Conn
	lines  *bufio.Scanner
	nextID int
	// sent is set once a request other than the handshake has been written.
	sent bool
}

// call invokes a method and unmarshals the result into the provided pointer.
// If result is nil, the response result is discarded.
func (s *session) call(method string, result interface{}, params ...interface{}) error {
	s.nextID++
	if params == nil {
		params = []interface{}{}
	}
	req := request{JSONRPC: "2.0", Method: method, Params: params, ID: s.nextID}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	body = append(body, '\n')
	if _, err := s.conn.Write(body); err != nil {
		return fmt.Errorf("write %s: %w", method, err)
	}
	if method != "server.version" {
		s.sent = true
	}

	for {
		if !s.lines.Scan() {
			err := s.lines.Err()
			if err == nil {
				err = io.ErrUnexpectedEOF
			}
			return fmt.Errorf("read %s: %w", method, err)
		}
		var resp response
		if err := json.Unmarshal(s.lines.Bytes(), &resp); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		// Skip subscription notifications and stale replies.
		if resp.ID == nil || *resp.ID != req.ID {
			continue
		}
		if resp.Error != nil {
			return &RPCError{Code: resp.Error.Code, Message: resp.Error.Message}
		}
		if result != nil && resp.Result != nil {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("decode result: %w", err)
			}
		}
		return nil
	}
}

func (c *Client) open(ctx context.Context, server string) (*session, error) {
	var conn net.Conn
	var err error
	if c.tls != nil {
		cfg := c.tls.Clone()
		if cfg.ServerName == "" {
			host, _, splitErr := net.SplitHostPort(server)
			if splitErr == nil {
				cfg.ServerName = host
			}
		}
		d := tls.Dialer{NetDialer: &c.dialer, Config: cfg}
		conn, err = d.DialContext(ctx, "tcp", server)
	} else {
		conn, err = c.dialer.DialContext(ctx, "tcp", server)
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", server, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	lines := bufio.NewScanner(conn)
	lines.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	s := &session{server: server, conn: conn, lines: lines}
	var version []string
	if err := s.call("server.version", &version, ClientName, ProtocolVersion); err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake %s: %w", server, err)
	}
	log.Electrum.Debug().Str("server", server).Strs("version", version).Msg("connected")
	return s, nil
}

// do runs fn on a session with the first server that serves it. A server
// that fails is skipped unless idempotent is false and fn already wrote a
// request. Server-side RPC errors are returned without trying further
// servers.
func (c *Client) do(ctx context.Context, idempotent bool, fn func(*session) error) error {
	if len(c.servers) == 0 {
		return ErrNoServers
	}

	var errs []error
	for _, server := range c.servers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		sent, err := c.attempt(ctx, server, fn)
		if err == nil {
			return nil
		}
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) || (!idempotent && sent) {
			return err
		}
		log.Electrum.Warn().Str("server", server).Err(err).Msg("server failed, trying next")
		errs = append(errs, err)
	}
	return fmt.Errorf("%w: %w", ErrAllServersFailed, errors.Join(errs...))
}

// attempt runs fn against one server and reports whether a request beyond
// the handshake reached it.
func (c *Client) attempt(ctx context.Context, server string, fn func(*session) error) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	s, err := c.open(ctx, server)
	if err != nil {
		return false, err
	}
	defer s.conn.Close()

	// Unblock reads when the caller cancels.
	stop := context.AfterFunc(ctx, func() { s.conn.SetDeadline(time.Now()) })
	defer stop()

	err = fn(s)
	return s.sent, err
}
