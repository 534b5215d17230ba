// Package types defines the OpenAI-compatible wire types used on the proxy's
// public surface.
//
// This package contains all data transfer objects used for HTTP
// request/response handling. The types match the OpenAI Chat Completions and
// legacy Completions API formats exactly, ensuring compatibility with
// existing OpenAI SDKs and tools.
//
// # Core Types
//
// Request types:
//   - ChatCompletionRequest: request body for /v1/chat/completions
//   - CompletionRequest: request body for the legacy /v1/completions
//   - Message: individual message in conversation history
//
// Response types:
//   - ChatCompletionResponse: non-streaming chat response
//   - CompletionResponse: legacy completion response
//   - ChatCompletionStreamChunk: streaming response chunk (SSE)
//   - ModelList / ModelInfo: /v1/models listing
//
// Error types:
//   - ErrorResponse: the flat {"detail": "..."} envelope used for all
//     non-streaming errors
//   - StreamErrorChunk: the terminal {"error": {...}} chunk emitted when an
//     upstream stream fails after the response status has been committed
//
// # OpenAI Compatibility
//
// Clients can use standard OpenAI SDKs without modification:
//
//	from openai import OpenAI
//	client = OpenAI(base_url="http://localhost:8080/v1", api_key="sk-...")
//	response = client.chat.completions.create(
//	    model="openai_gpt-4",
//	    messages=[{"role": "user", "content": "Hello!"}]
//	)
//
// Optional request fields use pointer types so absent fields can be
// distinguished from zero values and stripped before forwarding upstream.
// Field names follow OpenAI's snake_case convention.
package types
