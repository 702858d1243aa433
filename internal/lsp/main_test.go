package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"testing"

	"github.com/sourcegraph/jsonrpc2"
)

// TestMain doubles as a fake Kotlin language server for the TCP launch
// end-to-end test: the connector re-execs the test binary, which dials the
// bridge's listener and answers the handshake.
func TestMain(m *testing.M) {
	if os.Getenv("KOTLIN_BRIDGE_TEST_HELPER") == "lsp-tcp-server" {
		helperTCPServer()
	}
	os.Exit(m.Run())
}

func helperTCPServer() {
	if len(os.Args) < 3 || os.Args[1] != "--tcpClientPort" {
		fmt.Fprintln(os.Stderr, "missing --tcpClientPort")
		os.Exit(2)
	}

	conn, err := net.Dial("tcp", "127.0.0.1:"+os.Args[2])
	if err != nil {
		fmt.Fprintln(os.Stderr, "dial:", err)
		os.Exit(1)
	}

	stream := jsonrpc2.NewBufferedStream(conn, jsonrpc2.VSCodeObjectCodec{})
	rpc := jsonrpc2.NewConn(context.Background(), stream, &fakeServer{})
	<-rpc.DisconnectNotify()
	os.Exit(0)
}

// fakeServer answers the subset of LSP plus the Kotlin extensions the
// client exercises in tests.
type fakeServer struct{}

func (s *fakeServer) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	switch req.Method {
	case "initialize":
		conn.Reply(ctx, req.ID, InitializeResult{
			Capabilities: json.RawMessage(`{"textDocumentSync":1}`),
			ServerInfo:   &ServerInfo{Name: "fake-kotlin-language-server", Version: "9.9.9"},
		})

	case "shutdown":
		conn.Reply(ctx, req.ID, nil)

	case "kotlin/jarClassContents":
		var p jarClassContentsParams
		json.Unmarshal(*req.Params, &p)
		conn.Reply(ctx, req.ID, "// decompiled "+string(p.URI))

	case "kotlin/overrideMember":
		conn.Reply(ctx, req.ID, []OverrideOption{
			{Title: "override fun toString(): String", Edit: json.RawMessage(`{}`)},
			{Title: "override fun hashCode(): Int", Edit: json.RawMessage(`{}`)},
		})

	case "kotlin/mainClass":
		conn.Reply(ctx, req.ID, MainClassInfo{
			MainClass:   "com.example.MainKt",
			ProjectRoot: "/workspace",
		})

	default:
		if !req.Notif {
			conn.ReplyWithError(ctx, req.ID, &jsonrpc2.Error{
				Code:    jsonrpc2.CodeMethodNotFound,
				Message: "unhandled: " + req.Method,
			})
		}
	}
}
