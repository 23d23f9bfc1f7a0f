package texttospeech

import "context"

// VoiceStyle names a speaking style exposed to callers; each style maps to a
// concrete neural voice.
type VoiceStyle string

const (
	VoiceStyleNormal   VoiceStyle = "normal"
	VoiceStyleCheerful VoiceStyle = "cheerful"
	VoiceStyleSerious  VoiceStyle = "serious"
	VoiceStyleGentle   VoiceStyle = "gentle"
	VoiceStyleCute     VoiceStyle = "cute"
)

var styleVoices = map[VoiceStyle]string{
	VoiceStyleNormal:   "zh-CN-XiaoxiaoNeural",
	VoiceStyleCheerful: "zh-CN-XiaoyiNeural",
	VoiceStyleSerious:  "zh-CN-YunjianNeural",
	VoiceStyleGentle:   "zh-CN-YunxiNeural",
	VoiceStyleCute:     "zh-CN-XiaoxiaoNeural",
}

// Voice resolves a style to its neural voice name, falling back to the
// normal style for unknown values.
func Voice(style VoiceStyle) string {
	if voice, ok := styleVoices[style]; ok {
		return voice
	}
	return styleVoices[VoiceStyleNormal]
}

// SynthesisOptions configures one synthesis call.
type SynthesisOptions struct {
	// Style picks the speaking style; empty means VoiceStyleNormal.
	Style VoiceStyle
	// OutputPath writes the audio to a caller-chosen file instead of one
	// allocated by the synthesizer.
	OutputPath string
}

type SynthesisOption func(*SynthesisOptions)

// WithStyle sets the speaking style for this call.
func WithStyle(style VoiceStyle) SynthesisOption {
	return func(o *SynthesisOptions) { o.Style = style }
}

// WithOutputPath sets an explicit output file for this call.
func WithOutputPath(path string) SynthesisOption {
	return func(o *SynthesisOptions) { o.OutputPath = path }
}

// Synthesizer converts cleaned text into an audio file and returns its path.
// A failed synthesis returns an error; it never panics across this boundary.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts ...SynthesisOption) (string, error)
}
