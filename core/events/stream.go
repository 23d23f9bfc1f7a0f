package events

const (
	// KindStart identifies the beginning of a turn's event stream.
	KindStart Kind = "start"
	// KindChunk identifies a streamed assistant text fragment.
	KindChunk Kind = "chunk"
	// KindToolCall identifies a tool-invocation progress notice.
	KindToolCall Kind = "tool_call"
	// KindAudio identifies an available synthesized audio segment.
	KindAudio Kind = "audio"
	// KindError identifies a fatal turn failure.
	KindError Kind = "error"
	// KindEnd identifies the end of a turn's event stream.
	KindEnd Kind = "end"
)

// Start marks the beginning of a turn.
type Start struct{ Base }

// NewStart creates a start event.
func NewStart(turnID string) Start {
	return Start{Base: NewBase(KindStart, turnID)}
}

// Chunk carries one streamed fragment of the assistant's answer.
type Chunk struct {
	Base
	Content string
}

// NewChunk creates a chunk event.
func NewChunk(turnID, content string) Chunk {
	return Chunk{Base: NewBase(KindChunk, turnID), Content: content}
}

// ToolCallNotice tells the consumer that tool execution is underway.
type ToolCallNotice struct {
	Base
	Content string
}

// NewToolCallNotice creates a tool_call event.
func NewToolCallNotice(turnID, content string) ToolCallNotice {
	return ToolCallNotice{Base: NewBase(KindToolCall, turnID), Content: content}
}

// Audio announces a synthesized audio segment.
type Audio struct {
	Base
	AudioRef string
}

// NewAudio creates an audio event.
func NewAudio(turnID, audioRef string) Audio {
	return Audio{Base: NewBase(KindAudio, turnID), AudioRef: audioRef}
}

// Error reports a fatal turn failure. End still follows.
type Error struct {
	Base
	Message string
}

// NewError creates an error event.
func NewError(turnID, message string) Error {
	return Error{Base: NewBase(KindError, turnID), Message: message}
}

// End marks the end of a turn. AudioRef carries the trailing residual
// synthesis result when there is one.
type End struct {
	Base
	AudioRef string
}

// NewEnd creates an end event.
func NewEnd(turnID, audioRef string) End {
	return End{Base: NewBase(KindEnd, turnID), AudioRef: audioRef}
}
