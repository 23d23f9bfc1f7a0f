package llms

import "context"

// ChatClient is the inference-service contract consumed by the orchestrator.
type ChatClient interface {
	// Complete issues a non-streaming call, typically the tool probe.
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
	// StreamCompletion issues a streaming call; the stream ends implicitly
	// when the service closes it.
	StreamCompletion(ctx context.Context, req CompletionRequest) Stream
}

// Stream is a sequence of content-delta fragments. Chunks yields each
// fragment in order; a non-nil error ends the stream.
type Stream interface {
	Chunks(context.Context) func(func(string, error) bool)
}
