package providers

import (
	"context"

	"fulcrum-hq/portunus/pkg/proxy/types"
)

// Provider is the capability set every upstream adapter implements. The
// orchestrator talks only to this interface; the factory decides which
// concrete adapter backs it based on the model's provider tag.
//
// All methods accept a context.Context for cancellation and timeout
// control. Implementations must respect cancellation and return promptly
// when the context is done.
//
// Adapters are safe for concurrent use: they hold only an immutable
// configuration and an HTTP client with a connection pool.
type Provider interface {
	// ChatCompletion forwards a chat completion request upstream and
	// returns the parsed response. Transient upstream failures are
	// retried per the adapter's retry profile before the last error is
	// returned unchanged.
	ChatCompletion(ctx context.Context, req *types.ChatCompletionRequest) (*types.ChatCompletionResponse, error)

	// Completion forwards a legacy text completion request upstream.
	// Adapters for chat-only model families transparently downgrade the
	// call to ChatCompletion and rewrite the response object back to
	// "text_completion".
	Completion(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error)

	// StreamChatCompletion opens a streaming chat completion. It returns
	// a receive-only channel of events that the caller must drain; the
	// producer closes the channel after the upstream [DONE] sentinel, a
	// mid-stream error, or context cancellation. A nil error return
	// guarantees the upstream accepted the request (headers received).
	StreamChatCompletion(ctx context.Context, req *types.ChatCompletionRequest) (<-chan StreamEvent, error)

	// ListModels returns the models the upstream advertises on its
	// listing endpoint.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// ListDeployments returns the named deployments on the upstream
	// account. Providers without a deployment concept synthesize one
	// entry per listed model.
	ListDeployments(ctx context.Context) ([]DeploymentInfo, error)

	// Name returns the adapter's configured name, the catalog technical
	// name it serves. Used for logging and error attribution.
	Name() string

	// Close releases the adapter's HTTP connection pool. The adapter
	// must not be used after Close.
	Close() error
}

// StreamEvent is one item in a streaming chat completion sequence. Exactly
// one of Chunk and Err is set. An Err event is always the last event
// before the channel closes.
type StreamEvent struct {
	// Chunk is the parsed upstream chunk.
	Chunk *types.ChatCompletionStreamChunk

	// Err reports a mid-stream failure.
	Err error
}
