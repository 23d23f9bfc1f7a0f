package orchestration

import (
	"github.com/voxpet/voxpet-core/core/llms"
	"github.com/voxpet/voxpet-core/core/memory"
	"github.com/voxpet/voxpet-core/core/ratelimit"
	"github.com/voxpet/voxpet-core/core/texttospeech"
)

type OrchestratorOption func(*Orchestrator)

// WithGateway replaces the default rate-limited gateway used for all
// inference calls.
func WithGateway(gateway *ratelimit.Gateway) OrchestratorOption {
	return func(o *Orchestrator) { o.gateway = gateway }
}

// WithTools registers the tools exposed to the inference service during the
// probe call.
func WithTools(tools ...llms.Tool) OrchestratorOption {
	return func(o *Orchestrator) { o.tools = append([]llms.Tool(nil), tools...) }
}

// WithSynthesizer enables speech synthesis for completed segments.
func WithSynthesizer(synthesizer texttospeech.Synthesizer) OrchestratorOption {
	return func(o *Orchestrator) { o.synthesizer = synthesizer }
}

// WithPlaybackQueue queues synthesized audio for simulated playback.
func WithPlaybackQueue(queue *PlaybackQueue) OrchestratorOption {
	return func(o *Orchestrator) { o.playback = queue }
}

// WithMemoryStore enables memory recall and makes recalled conversations
// available to turns that ask for them.
func WithMemoryStore(store memory.Store) OrchestratorOption {
	return func(o *Orchestrator) { o.memories = store }
}

func WithSystemPrompt(prompt string) OrchestratorOption {
	return func(o *Orchestrator) { o.systemPrompt = prompt }
}

func WithVoiceStyle(style texttospeech.VoiceStyle) OrchestratorOption {
	return func(o *Orchestrator) { o.voiceStyle = style }
}

// WithMinSegmentLength sets how many runes a sentence must reach before it
// is cut for synthesis.
func WithMinSegmentLength(runes int) OrchestratorOption {
	return func(o *Orchestrator) {
		if runes > 0 {
			o.segmenter.minSegment = runes
		}
	}
}

func WithTemperature(temperature float32) OrchestratorOption {
	return func(o *Orchestrator) { o.temperature = temperature }
}

func WithMaxTokens(maxTokens int) OrchestratorOption {
	return func(o *Orchestrator) { o.maxTokens = maxTokens }
}

// TurnOptions adjust a single StreamTurn call.
type TurnOptions struct {
	recallMemories bool
	skipSynthesis  bool
	voiceStyle     texttospeech.VoiceStyle
}

type TurnOption func(*TurnOptions)

// WithMemoryRecall prepends conversations recalled for the prompt to the
// turn's history. It has no effect without a configured memory store.
func WithMemoryRecall() TurnOption {
	return func(o *TurnOptions) { o.recallMemories = true }
}

// WithoutSynthesis disables speech synthesis for this turn only.
func WithoutSynthesis() TurnOption {
	return func(o *TurnOptions) { o.skipSynthesis = true }
}

// WithTurnVoiceStyle overrides the orchestrator's voice style for this turn.
func WithTurnVoiceStyle(style texttospeech.VoiceStyle) TurnOption {
	return func(o *TurnOptions) { o.voiceStyle = style }
}
