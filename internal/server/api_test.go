package server_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opencode-ai/emigo/internal/event"
	"github.com/opencode-ai/emigo/internal/server"
	"github.com/opencode-ai/emigo/internal/session"
	"github.com/opencode-ai/emigo/pkg/types"
)

func postJSON(url string, body any) *http.Response {
	data, err := json.Marshal(body)
	Expect(err).NotTo(HaveOccurred())
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	Expect(err).NotTo(HaveOccurred())
	return resp
}

func decode[T any](resp *http.Response) T {
	defer resp.Body.Close()
	var v T
	Expect(json.NewDecoder(resp.Body).Decode(&v)).To(Succeed())
	return v
}

// subscribe opens /event and returns decoded events after server.connected.
func subscribe(ctx context.Context, url string) <-chan server.WireEvent {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	Expect(err).NotTo(HaveOccurred())
	resp, err := http.DefaultClient.Do(req)
	Expect(err).NotTo(HaveOccurred())
	Expect(resp.StatusCode).To(Equal(http.StatusOK))

	out := make(chan server.WireEvent, 64)
	go func() {
		defer GinkgoRecover()
		defer close(out)
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line, ok := strings.CutPrefix(scanner.Text(), "data: ")
			if !ok {
				continue
			}
			var e server.WireEvent
			if json.Unmarshal([]byte(line), &e) == nil {
				out <- e
			}
		}
	}()

	var first server.WireEvent
	Eventually(out).Should(Receive(&first))
	Expect(first.Type).To(Equal(event.EventType("server.connected")))
	return out
}

var _ = Describe("HTTP API", func() {
	var env *testEnv

	BeforeEach(func() {
		env = newTestEnv()
		DeferCleanup(env.Close)
	})

	Describe("GET /health", func() {
		It("reports ok", func() {
			resp, err := http.Get(env.http.URL + "/health")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decode[map[string]string](resp)).To(HaveKeyWithValue("status", "ok"))
		})
	})

	Describe("POST /converse", func() {
		It("queues a turn and returns its ID", func() {
			resp := postJSON(env.http.URL+"/converse", server.ConverseRequest{Workspace: "/repo", Prompt: "explain @main.py"})
			Expect(resp.StatusCode).To(Equal(http.StatusAccepted))

			body := decode[server.ConverseResponse](resp)
			Expect(body.TurnID).NotTo(BeEmpty())
			Expect(body.Workspace).To(Equal("/repo"))

			Eventually(func() int {
				h, err := env.registry.History("/repo")
				if err != nil {
					return 0
				}
				return len(h)
			}).Should(BeNumerically(">=", 2))
		})

		It("waits for the reply when asked", func() {
			resp := postJSON(env.http.URL+"/converse", server.ConverseRequest{Workspace: "/repo", Prompt: "hello there", Wait: true})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			body := decode[server.ConverseResponse](resp)
			Expect(body.Reply).To(Equal("re: hello there"))
			Expect(body.Error).To(BeEmpty())
		})

		It("reports a stream failure with the partial reply", func() {
			resp := postJSON(env.http.URL+"/converse", server.ConverseRequest{Workspace: "/repo", Prompt: "please fail", Wait: true})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			body := decode[server.ConverseResponse](resp)
			Expect(body.Reply).To(Equal("re: "))
			Expect(body.Kind).To(Equal(types.KindStream))
		})

		It("rejects an unresolvable workspace", func() {
			resp := postJSON(env.http.URL+"/converse", server.ConverseRequest{Workspace: "/missing", Prompt: "hi"})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(decode[server.ErrorResponse](resp).Error.Code).To(Equal(server.ErrCodeInvalidWorkspace))
		})

		It("rejects incomplete configuration without creating a session", func() {
			env.source.Set(&types.Config{Model: "echo-model"})

			resp := postJSON(env.http.URL+"/converse", server.ConverseRequest{Workspace: "/repo", Prompt: "hi"})
			Expect(resp.StatusCode).To(Equal(http.StatusPreconditionFailed))

			body := decode[server.ErrorResponse](resp)
			Expect(body.Error.Code).To(Equal(server.ErrCodeConfiguration))
			Expect(body.Error.Details).To(HaveKey("missing"))
			Expect(env.registry.List()).To(BeEmpty())
		})

		It("rejects a malformed body", func() {
			resp, err := http.Post(env.http.URL+"/converse", "application/json", strings.NewReader("{"))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(decode[server.ErrorResponse](resp).Error.Code).To(Equal(server.ErrCodeInvalidRequest))
		})
	})

	Describe("session introspection", func() {
		It("lists sessions and returns history", func() {
			_, err := env.registry.Converse(context.Background(), "/repo", "first")
			Expect(err).NotTo(HaveOccurred())

			resp, err := http.Get(env.http.URL + "/session")
			Expect(err).NotTo(HaveOccurred())
			infos := decode[[]session.Info](resp)
			Expect(infos).To(HaveLen(1))
			Expect(infos[0].Workspace).To(Equal("/repo"))
			Expect(infos[0].Model).To(Equal("echo-model"))

			resp, err = http.Get(env.http.URL + "/session/history?workspace=/repo/main.py")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			history := decode[server.HistoryResponse](resp)
			Expect(history.Workspace).To(Equal("/repo"))
			Expect(history.Messages).NotTo(BeEmpty())
			last := history.Messages[len(history.Messages)-1]
			Expect(last.Role).To(Equal(types.RoleAssistant))
			Expect(last.Content).To(Equal("re: first"))
		})

		It("returns 404 for a workspace without a session", func() {
			resp, err := http.Get(env.http.URL + "/session/history?workspace=/other")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			Expect(decode[server.ErrorResponse](resp).Error.Code).To(Equal(server.ErrCodeNotFound))
		})

		It("requires a workspace", func() {
			resp, err := http.Get(env.http.URL + "/session/history")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			resp.Body.Close()
		})
	})

	Describe("GET /config", func() {
		It("masks the credential", func() {
			resp, err := http.Get(env.http.URL + "/config")
			Expect(err).NotTo(HaveOccurred())
			cfg := decode[types.Config](resp)
			Expect(cfg.Model).To(Equal("echo-model"))
			Expect(cfg.APIKey).To(Equal("****cret"))
		})
	})

	Describe("GET /event", func() {
		It("streams a turn's notifications in order", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			events := subscribe(ctx, env.http.URL+"/event?workspace=/repo")

			_, err := env.registry.Converse(context.Background(), "/repo", "hello world")
			Expect(err).NotTo(HaveOccurred())

			var got []server.WireEvent
			Eventually(func() event.EventType {
				select {
				case e := <-events:
					got = append(got, e)
					return e.Type
				default:
					return ""
				}
			}, 2*time.Second).Should(Equal(event.TurnCompleted))

			kinds := make([]event.EventType, len(got))
			for i, e := range got {
				kinds[i] = e.Type
			}
			Expect(kinds[0]).To(Equal(event.NeedWindow))
			Expect(kinds).To(ContainElement(event.SessionCreated))

			var text strings.Builder
			var roles []types.TranscriptRole
			for _, e := range got {
				if e.Type != event.TranscriptAppend {
					continue
				}
				var data event.TranscriptAppendData
				Expect(json.Unmarshal(e.Properties, &data)).To(Succeed())
				roles = append(roles, data.Role)
				if data.Role == types.TranscriptLLM {
					text.WriteString(data.Text)
				}
			}
			Expect(roles[0]).To(Equal(types.TranscriptUser))
			Expect(text.String()).To(Equal("re: hello world"))
		})

		It("filters other workspaces", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			events := subscribe(ctx, env.http.URL+"/event?workspace=/other")

			_, err := env.registry.Converse(context.Background(), "/repo", "not for you")
			Expect(err).NotTo(HaveOccurred())
			_, err = env.registry.Converse(context.Background(), "/other", "for you")
			Expect(err).NotTo(HaveOccurred())

			var first server.WireEvent
			Eventually(events).Should(Receive(&first))
			Expect(first.Type).To(Equal(event.NeedWindow))
			var data event.NeedWindowData
			Expect(json.Unmarshal(first.Properties, &data)).To(Succeed())
			Expect(data.Workspace).To(Equal("/other"))
		})
	})
})
