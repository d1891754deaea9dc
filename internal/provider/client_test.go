package provider_test

import (
	"context"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opencode-ai/emigo/internal/provider"
	"github.com/opencode-ai/emigo/pkg/types"
)

var _ = Describe("Client with MockLLM", func() {
	var (
		ctx        context.Context
		mockServer *MockLLMServer
		mockConfig *MockLLMConfig
		registry   *provider.Registry
	)

	userTurn := func(text string) []types.Message {
		return []types.Message{
			{Role: types.RoleSystem, Content: "You are a test assistant."},
			{Role: types.RoleUser, Content: text},
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		registry = provider.NewRegistry()
		mockConfig = &MockLLMConfig{
			Responses: map[string]string{
				"hello": "Hello! I'm a mocked model.",
				"count": "one two three four five",
			},
			Fallback: "I understand your request.",
		}
	})

	JustBeforeEach(func() {
		mockServer = NewMockLLMServer(mockConfig)
	})

	AfterEach(func() {
		if mockServer != nil {
			mockServer.Close()
		}
	})

	Describe("openai", func() {
		newClient := func(maxRetries int) provider.Client {
			client, err := registry.New(ctx, provider.Config{
				Provider:      provider.ProviderOpenAI,
				Model:         "mock-gpt",
				APIKey:        "mock-api-key",
				BaseURL:       mockServer.URL() + "/v1",
				MaxRetries:    maxRetries,
				RetryInterval: 10 * time.Millisecond,
			})
			Expect(err).NotTo(HaveOccurred())
			return client
		}

		It("streams fragments that join to the full reply", func() {
			stream, err := newClient(0).Stream(ctx, userTurn("hello there"))
			Expect(err).NotTo(HaveOccurred())

			chunks, err := drain(stream)
			Expect(err).NotTo(HaveOccurred())
			Expect(len(chunks)).To(BeNumerically(">", 1))
			Expect(strings.Join(chunks, "")).To(Equal("Hello! I'm a mocked model."))
		})

		It("uses the fallback for unknown prompts", func() {
			stream, err := newClient(0).Stream(ctx, userTurn("something else"))
			Expect(err).NotTo(HaveOccurred())

			chunks, err := drain(stream)
			Expect(err).NotTo(HaveOccurred())
			Expect(strings.Join(chunks, "")).To(Equal("I understand your request."))
		})

		It("sends the model and every message", func() {
			stream, err := newClient(0).Stream(ctx, userTurn("hello"))
			Expect(err).NotTo(HaveOccurred())
			_, err = drain(stream)
			Expect(err).NotTo(HaveOccurred())

			requests := mockServer.GetRequests()
			Expect(requests).To(HaveLen(1))
			Expect(requests[0].Path).To(Equal("/v1/chat/completions"))
			Expect(requests[0].Body["model"]).To(Equal("mock-gpt"))
			Expect(requests[0].Body["stream"]).To(BeTrue())
			Expect(requests[0].Body["messages"]).To(HaveLen(2))
		})

		It("sends image parts as multi-part content", func() {
			messages := []types.Message{{
				Role: types.RoleUser,
				Parts: []types.ContentPart{
					{Type: types.PartText, Text: "hello logo.png"},
					{Type: types.PartImage, ImageURL: "data:image/png;base64,iVBORw0KGgo=", MimeType: "image/png"},
				},
			}}
			stream, err := newClient(0).Stream(ctx, messages)
			Expect(err).NotTo(HaveOccurred())
			_, err = drain(stream)
			Expect(err).NotTo(HaveOccurred())

			requests := mockServer.GetRequests()
			Expect(requests).To(HaveLen(1))
			sent := requests[0].Body["messages"].([]interface{})[0].(map[string]interface{})
			Expect(sent["content"]).To(HaveLen(2))
		})

		Context("when the endpoint fails transiently", func() {
			BeforeEach(func() {
				mockConfig.FailFirst = 2
			})

			It("retries the open until it succeeds", func() {
				stream, err := newClient(3).Stream(ctx, userTurn("hello"))
				Expect(err).NotTo(HaveOccurred())

				chunks, err := drain(stream)
				Expect(err).NotTo(HaveOccurred())
				Expect(strings.Join(chunks, "")).To(Equal("Hello! I'm a mocked model."))
				Expect(mockServer.GetRequests()).To(HaveLen(3))
			})

			It("gives up when retries are disabled", func() {
				_, err := newClient(0).Stream(ctx, userTurn("hello"))
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(HavePrefix("openai: open stream"))
				Expect(mockServer.GetRequests()).To(HaveLen(1))
			})

			It("stops retrying when the context is cancelled", func() {
				cctx, cancel := context.WithCancel(ctx)
				cancel()
				_, err := newClient(5).Stream(cctx, userTurn("hello"))
				Expect(err).To(HaveOccurred())
			})
		})

		Context("when the connection drops mid-stream", func() {
			BeforeEach(func() {
				mockConfig.AbortAfter = 2
			})

			It("returns the fragments received before the error", func() {
				stream, err := newClient(0).Stream(ctx, userTurn("count"))
				Expect(err).NotTo(HaveOccurred())

				chunks, err := drain(stream)
				Expect(err).To(HaveOccurred())
				Expect(strings.Join(chunks, "")).To(Equal("one two "))
				Expect(mockServer.GetRequests()).To(HaveLen(1))
			})
		})
	})

	Describe("anthropic", func() {
		It("streams text deltas from the messages API", func() {
			client, err := registry.New(ctx, provider.Config{
				Model:   "anthropic/mock-claude",
				APIKey:  "mock-api-key",
				BaseURL: mockServer.URL(),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(client.Model()).To(Equal("mock-claude"))

			stream, err := client.Stream(ctx, userTurn("count"))
			Expect(err).NotTo(HaveOccurred())

			chunks, err := drain(stream)
			Expect(err).NotTo(HaveOccurred())
			Expect(strings.Join(chunks, "")).To(Equal("one two three four five"))

			requests := mockServer.GetRequests()
			Expect(requests).To(HaveLen(1))
			Expect(requests[0].Path).To(Equal("/v1/messages"))
			Expect(requests[0].Body["system"]).NotTo(BeNil())
		})

		It("uses a default model when none is given", func() {
			client, err := provider.NewAnthropicClient(ctx, provider.Config{APIKey: "k"})
			Expect(err).NotTo(HaveOccurred())
			Expect(client.Model()).To(Equal("claude-sonnet-4-20250514"))
		})

		It("requires an api key", func() {
			_, err := provider.NewAnthropicClient(ctx, provider.Config{Model: "m"})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ark", func() {
		It("streams from an OpenAI-style endpoint", func() {
			client, err := registry.New(ctx, provider.Config{
				Provider: provider.ProviderArk,
				Model:    "mock-ark-endpoint-123",
				APIKey:   "mock-api-key",
				BaseURL:  mockServer.URL(),
			})
			Expect(err).NotTo(HaveOccurred())

			stream, err := client.Stream(ctx, userTurn("hello"))
			Expect(err).NotTo(HaveOccurred())

			chunks, err := drain(stream)
			Expect(err).NotTo(HaveOccurred())
			Expect(strings.Join(chunks, "")).To(Equal("Hello! I'm a mocked model."))
			Expect(mockServer.GetRequests()[0].Path).To(Equal("/chat/completions"))
		})

		It("requires an endpoint id", func() {
			_, err := provider.NewArkClient(ctx, provider.Config{APIKey: "k"})
			Expect(err).To(HaveOccurred())
		})
	})
})
