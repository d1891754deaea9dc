package server_test

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opencode-ai/emigo/internal/event"
	"github.com/opencode-ai/emigo/internal/server"
	"github.com/opencode-ai/emigo/pkg/types"
)

// rpcFrame is any message read from the socket.
type rpcFrame struct {
	JSONRPC string               `json:"jsonrpc"`
	ID      any                  `json:"id"`
	Method  string               `json:"method"`
	Params  json.RawMessage      `json:"params"`
	Result  json.RawMessage      `json:"result"`
	Error   *server.JSONRPCError `json:"error"`
}

type rpcClient struct {
	conn   *websocket.Conn
	frames chan rpcFrame

	// notifications read while waiting for a response
	pending []rpcFrame
}

func dialRPC(baseURL, query string) *rpcClient {
	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/rpc" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	Expect(err).NotTo(HaveOccurred())

	c := &rpcClient{conn: conn, frames: make(chan rpcFrame, 64)}
	go func() {
		defer close(c.frames)
		for {
			var f rpcFrame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			c.frames <- f
		}
	}()
	return c
}

func (c *rpcClient) call(id int, method string, params any) rpcFrame {
	Expect(c.conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": id, "method": method, "params": params})).To(Succeed())
	return c.response(id)
}

// response reads frames until the response with id arrives, keeping
// notifications for notificationsUntil.
func (c *rpcClient) response(id int) rpcFrame {
	var found rpcFrame
	Eventually(func() bool {
		for {
			select {
			case f, ok := <-c.frames:
				if !ok {
					return false
				}
				if f.Method != "" {
					c.pending = append(c.pending, f)
					continue
				}
				if f.ID == float64(id) {
					found = f
					return true
				}
			default:
				return false
			}
		}
	}, 2*time.Second).Should(BeTrue())
	return found
}

// notificationsUntil collects notifications up to and including method.
func (c *rpcClient) notificationsUntil(method string) []rpcFrame {
	var got []rpcFrame
	for len(c.pending) > 0 {
		f := c.pending[0]
		c.pending = c.pending[1:]
		got = append(got, f)
		if f.Method == method {
			return got
		}
	}
	Eventually(func() bool {
		for {
			select {
			case f, ok := <-c.frames:
				if !ok {
					return false
				}
				if f.Method == "" {
					continue
				}
				got = append(got, f)
				if f.Method == method {
					return true
				}
			default:
				return false
			}
		}
	}, 2*time.Second).Should(BeTrue())
	return got
}

var _ = Describe("JSON-RPC over WebSocket", func() {
	var (
		env    *testEnv
		client *rpcClient
	)

	BeforeEach(func() {
		env = newTestEnv()
		DeferCleanup(env.Close)
		client = dialRPC(env.http.URL, "")
		DeferCleanup(func() { client.conn.Close() })
	})

	It("queues a turn and pushes its notifications", func() {
		resp := client.call(1, server.MethodConverse, server.ConverseParams{Workspace: "/repo", Prompt: "hi @main.py"})
		Expect(resp.Error).To(BeNil())

		var result server.ConverseResponse
		Expect(json.Unmarshal(resp.Result, &result)).To(Succeed())
		Expect(result.TurnID).NotTo(BeEmpty())
		Expect(result.Workspace).To(Equal("/repo"))

		notes := client.notificationsUntil("turn-completed")
		Expect(notes[0].Method).To(Equal("need-window"))

		var reply strings.Builder
		for _, n := range notes {
			if n.Method != "transcript-append" {
				continue
			}
			var data event.TranscriptAppendData
			Expect(json.Unmarshal(n.Params, &data)).To(Succeed())
			if data.Role == types.TranscriptLLM {
				reply.WriteString(data.Text)
			}
		}
		Expect(reply.String()).To(Equal("re: hi @main.py"))
	})

	It("lists sessions and returns history", func() {
		client.call(1, server.MethodConverse, server.ConverseParams{Workspace: "/repo", Prompt: "one"})
		client.notificationsUntil("turn-completed")

		resp := client.call(2, server.MethodSessions, nil)
		Expect(resp.Error).To(BeNil())
		Expect(string(resp.Result)).To(ContainSubstring(`"workspace":"/repo"`))

		resp = client.call(3, server.MethodHistory, server.HistoryParams{Workspace: "/repo"})
		Expect(resp.Error).To(BeNil())
		var history server.HistoryResponse
		Expect(json.Unmarshal(resp.Result, &history)).To(Succeed())
		Expect(history.Messages).To(HaveLen(3))
		Expect(history.Messages[2].Content).To(Equal("re: one"))
	})

	It("maps registry errors to codes", func() {
		resp := client.call(1, server.MethodConverse, server.ConverseParams{Workspace: "/missing", Prompt: "x"})
		Expect(resp.Error).NotTo(BeNil())
		Expect(resp.Error.Code).To(Equal(server.InvalidWorkspace))

		resp = client.call(2, server.MethodHistory, server.HistoryParams{Workspace: "/other"})
		Expect(resp.Error).NotTo(BeNil())
		Expect(resp.Error.Code).To(Equal(server.NotFound))
	})

	It("rejects unknown methods and bad params", func() {
		resp := client.call(1, "nope", nil)
		Expect(resp.Error.Code).To(Equal(server.MethodNotFound))

		resp = client.call(2, server.MethodConverse, map[string]string{"prompt": "x"})
		Expect(resp.Error.Code).To(Equal(server.InvalidParams))
	})

	It("answers malformed frames with a parse error", func() {
		Expect(client.conn.WriteMessage(websocket.TextMessage, []byte("{"))).To(Succeed())
		Eventually(client.frames).Should(Receive(WithTransform(func(f rpcFrame) int {
			if f.Error == nil {
				return 0
			}
			return f.Error.Code
		}, Equal(server.ParseError))))
	})
})
