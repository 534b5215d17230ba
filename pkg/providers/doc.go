// Package providers implements the upstream adapter layer.
//
// # Overview
//
// Every upstream family (OpenAI-native, Azure OpenAI, Unique) is wrapped
// by an adapter that exposes the same capability set:
//
//   - ChatCompletion: one-shot chat completion
//   - Completion: legacy text completion, downgraded to chat where the
//     upstream family is chat-only
//   - StreamChatCompletion: SSE streaming as a channel of events
//   - ListModels: the upstream's advertised model list
//   - ListDeployments: named deployments, synthesized where the concept
//     does not exist
//   - Close: releases the adapter's connection pool
//
// The orchestrator resolves a catalog model, obtains the adapter for it
// from the factory cache, and calls through this interface. Requests and
// responses use the canonical OpenAI wire shapes from pkg/proxy/types;
// adapters translate to and from their upstream's dialect.
//
// # Shared core
//
// Client carries the pieces every adapter needs: a pooled HTTP client
// built by pkg/httpclient (proxy and TLS aware), the retry profile from
// pkg/retry applied around each call, and classification of upstream
// failures into the typed errors below.
//
// # Errors
//
// Upstream failures become typed errors that carry the upstream status:
//
//   - AuthError: upstream rejected the configured API key (401/403)
//   - RateLimitError: upstream 429, with the Retry-After hint
//   - TimeoutError: deadline exceeded, surfaced as 504
//   - UpstreamError: any other non-2xx or transport failure
//   - ParseError: upstream payload could not be decoded
//   - StreamError: failure after the stream was established
//   - ConfigError: the adapter could not be constructed
//
// Those implementing HTTPStatus are classified by pkg/retry: 429 and the
// 5xx range are retried, other 4xx propagate immediately.
//
// # Streaming
//
// StreamChatCompletion returns a receive-only channel. The producer
// goroutine parses upstream SSE lines, normalizes each chunk (missing
// delta role becomes "assistant"), and closes the channel on the [DONE]
// sentinel. Cancelling the request context closes the upstream body and
// ends the stream; an error event, when one occurs, is always the last
// event sent.
package providers
