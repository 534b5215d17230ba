package providers

import (
	"bufio"
	"context"
	"io"
	"strings"

	"fulcrum-hq/portunus/pkg/proxy/types"
)

// DecodeChunk parses one SSE data payload into a canonical chunk. The
// OpenAI-shaped adapters use DecodeOpenAIChunk; vendors with their own
// event shape supply their own decoder.
type DecodeChunk func(data []byte) (*types.ChatCompletionStreamChunk, error)

// Stream consumes an SSE body line by line, decodes each data payload, and
// forwards events until the [DONE] sentinel, a decode failure, a transport
// error, or context cancellation. It owns the body and closes it when the
// goroutine exits, which is what aborts the upstream read on cancellation.
func (c *Client) Stream(ctx context.Context, body io.ReadCloser, decode DecodeChunk) <-chan StreamEvent {
	events := make(chan StreamEvent)

	go func() {
		defer close(events)
		defer body.Close()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line := scanner.Text()
			if line == "" || !strings.HasPrefix(line, "data:") {
				// Comments, event names, and pings are not payloads.
				continue
			}

			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			chunk, err := decode([]byte(data))
			if err != nil {
				c.send(ctx, events, StreamEvent{Err: &ParseError{
					Provider:    c.cfg.Name,
					RawResponse: truncate([]byte(data), maxErrorBody),
					Cause:       err,
				}})
				return
			}

			if !c.send(ctx, events, StreamEvent{Chunk: chunk}) {
				return
			}
		}

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			c.send(ctx, events, StreamEvent{Err: &StreamError{
				Provider: c.cfg.Name,
				Message:  "stream read failed",
				Cause:    err,
			}})
		}
	}()

	return events
}

// send delivers an event unless the context ends first. Reports whether
// the event was delivered.
func (c *Client) send(ctx context.Context, events chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// NormalizeChunk applies the canonical streaming defaults in place: a
// missing delta role becomes "assistant" and a missing object becomes
// "chat.completion.chunk". Content needs no handling, its zero value is
// already the empty string.
func NormalizeChunk(chunk *types.ChatCompletionStreamChunk) *types.ChatCompletionStreamChunk {
	if chunk == nil {
		return nil
	}
	if chunk.Object == "" {
		chunk.Object = "chat.completion.chunk"
	}
	for i := range chunk.Choices {
		if chunk.Choices[i].Delta.Role == "" {
			chunk.Choices[i].Delta.Role = RoleAssistant
		}
	}
	return chunk
}
