// Package lsp wraps whichever duplex channel a transport connector produced
// and exposes a request/notification surface to the rest of the bridge. The
// JSON-RPC framing and request correlation are delegated to jsonrpc2.
package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sourcegraph/jsonrpc2"
	"go.uber.org/zap"

	"github.com/kotlin-lsp/bridge/internal/transport"
)

// Standard errors returned by the client.
var (
	ErrAlreadyStarted = errors.New("lsp client already started")
	ErrNotStarted     = errors.New("lsp client not started")

	// ErrNotManaged indicates a custom protocol extension was requested
	// while running a custom server binary that may not implement it.
	ErrNotManaged = errors.New("custom protocol extensions require the managed server")
)

// ClientConfig describes one protocol client session.
type ClientConfig struct {
	// Source produces the duplex channel. The client invokes it once per
	// Start; re-armable sources (tcp-attach) may serve multiple sessions.
	Source transport.ChannelSource

	// WorkspaceRoot is the first workspace root, if any.
	WorkspaceRoot string

	// StoragePath is handed to the server via initialization options.
	StoragePath string

	// WatchGlobs are the file-watch patterns, e.g. "**/*.kt".
	WatchGlobs []string

	// Managed is true when the bridge-downloaded server binary is in use;
	// custom protocol extensions are only issued against it.
	Managed bool
}

// Client is the protocol client adapter. One duplex channel is active per
// session; the channel is owned by the session and closed when it ends.
type Client struct {
	cfg      ClientConfig
	log      *zap.SugaredLogger
	selector DocumentSelector

	mu         sync.Mutex
	conn       *jsonrpc2.Conn
	channel    io.ReadWriteCloser
	watcher    *Watcher
	serverInfo *ServerInfo
}

// NewClient creates a client around a channel source. Call Start to connect.
func NewClient(cfg ClientConfig, log *zap.SugaredLogger) *Client {
	return &Client{
		cfg:      cfg,
		log:      log,
		selector: DefaultSelector(),
	}
}

// Selector returns the document selector this client claims documents for.
func (c *Client) Selector() DocumentSelector {
	return c.selector
}

// ServerInfo returns the connected server's identification, or nil before
// the handshake completed.
func (c *Client) ServerInfo() *ServerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverInfo
}

// Start obtains the channel, completes the initialize handshake, and begins
// watching configured file globs. It returns once the handshake succeeded.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.mu.Unlock()

	channel, err := c.cfg.Source(ctx)
	if err != nil {
		return err
	}

	stream := jsonrpc2.NewBufferedStream(channel, jsonrpc2.VSCodeObjectCodec{})

	// The connection outlives the Start call; ctx only bounds the handshake.
	conn := jsonrpc2.NewConn(context.Background(), stream, jsonrpc2.AsyncHandler(&serverHandler{log: c.log}))

	if err := c.initialize(ctx, conn); err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = channel
	c.mu.Unlock()

	if c.cfg.WorkspaceRoot != "" && len(c.cfg.WatchGlobs) > 0 {
		if err := c.startWatcher(); err != nil {
			// File watching is auxiliary; a broken watcher must not take
			// down a connected session.
			c.log.Warnf("file watcher unavailable: %v", err)
		}
	}

	return nil
}

func (c *Client) initialize(ctx context.Context, conn *jsonrpc2.Conn) error {
	params := InitializeParams{
		ProcessID:    os.Getpid(),
		Capabilities: DefaultClientCapabilities(),
		InitializationOptions: InitializationOptions{
			StoragePath: c.cfg.StoragePath,
		},
	}
	if c.cfg.WorkspaceRoot != "" {
		uri := FilePathToURI(c.cfg.WorkspaceRoot)
		params.RootURI = uri
		params.WorkspaceFolders = []WorkspaceFolder{{URI: uri, Name: "workspace"}}
	}

	var result InitializeResult
	if err := conn.Call(ctx, "initialize", params, &result); err != nil {
		return err
	}
	if err := conn.Notify(ctx, "initialized", struct{}{}); err != nil {
		return err
	}

	c.mu.Lock()
	c.serverInfo = result.ServerInfo
	c.mu.Unlock()

	if result.ServerInfo != nil {
		c.log.Infof("connected to %s %s", result.ServerInfo.Name, result.ServerInfo.Version)
	} else {
		c.log.Infof("connected to language server")
	}
	return nil
}

func (c *Client) startWatcher() error {
	w, err := NewWatcher(c.cfg.WorkspaceRoot, c.cfg.WatchGlobs, c.log)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.watcher = w
	c.mu.Unlock()

	go func() {
		for ev := range w.Events() {
			params := DidChangeWatchedFilesParams{Changes: []FileEvent{ev}}
			if err := c.Notify(context.Background(), "workspace/didChangeWatchedFiles", params); err != nil {
				c.log.Debugf("didChangeWatchedFiles: %v", err)
			}
		}
	}()
	return nil
}

// Call issues a request and decodes the response into result.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	conn := c.connection()
	if conn == nil {
		return ErrNotStarted
	}
	return conn.Call(ctx, method, params, result)
}

// Notify sends a notification.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	conn := c.connection()
	if conn == nil {
		return ErrNotStarted
	}
	return conn.Notify(ctx, method, params)
}

func (c *Client) connection() *jsonrpc2.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// DisconnectNotify returns a channel closed when the underlying connection
// drops. Reconnection is not this layer's job; callers may observe the drop
// and decide.
func (c *Client) DisconnectNotify() <-chan struct{} {
	conn := c.connection()
	if conn == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return conn.DisconnectNotify()
}

// Stop performs the shutdown handshake and closes the session's channel.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	watcher := c.watcher
	c.conn = nil
	c.channel = nil
	c.watcher = nil
	c.mu.Unlock()

	if watcher != nil {
		watcher.Close()
	}
	if conn == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = conn.Call(shutdownCtx, "shutdown", nil, nil)
	_ = conn.Notify(shutdownCtx, "exit", nil)

	return conn.Close()
}

// serverHandler consumes server-initiated traffic. Server log output is kept
// at debug level so normal activity never demands attention.
type serverHandler struct {
	log *zap.SugaredLogger
}

func (h *serverHandler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	switch req.Method {
	case "window/logMessage", "window/showMessage":
		var p LogMessageParams
		if req.Params != nil {
			json.Unmarshal(*req.Params, &p)
		}
		h.log.Debugf("[server] %s", p.Message)

	case "textDocument/publishDiagnostics":
		// The bridge has no editor surface for diagnostics; consume them.

	default:
		if req.Notif {
			h.log.Debugf("[server] unhandled notification %s", req.Method)
			return
		}
		conn.ReplyWithError(ctx, req.ID, &jsonrpc2.Error{
			Code:    jsonrpc2.CodeMethodNotFound,
			Message: "method not supported by bridge: " + req.Method,
		})
	}
}
