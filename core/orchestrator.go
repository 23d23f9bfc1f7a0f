// Package orchestration turns a user prompt into an ordered stream of
// events: assistant text chunks, tool-call notices, synthesized audio
// segments, and exactly one start and one end per turn. Inference calls go
// through a rate-limited gateway; completed sentences are cut off the
// response stream, cleaned, and handed to the speech synthesizer while the
// rest of the answer is still arriving.
package orchestration

import (
	"context"
	"fmt"
	"iter"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/voxpet/voxpet-core/core/events"
	"github.com/voxpet/voxpet-core/core/llms"
	"github.com/voxpet/voxpet-core/core/memory"
	"github.com/voxpet/voxpet-core/core/ratelimit"
	"github.com/voxpet/voxpet-core/core/texttospeech"
)

const (
	defaultSystemPrompt = "你是 Kimi"
	defaultTemperature  = 0.3
	defaultMaxTokens    = 10000

	// toolCallNotice is what the consumer shows while tools run.
	toolCallNotice = "正在搜索相关信息..."

	memoryRecallLimit       = 5
	memoryMessagesPerRecall = 3
)

type Orchestrator struct {
	client  llms.ChatClient
	gateway *ratelimit.Gateway

	tools       []llms.Tool
	synthesizer texttospeech.Synthesizer
	playback    *PlaybackQueue
	memories    memory.Store

	systemPrompt string
	voiceStyle   texttospeech.VoiceStyle
	segmenter    *segmenter
	temperature  float32
	maxTokens    int

	now func() time.Time
}

func NewOrchestrator(client llms.ChatClient, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		client:       client,
		gateway:      ratelimit.NewGateway(ratelimit.NewLimiter(2, time.Second)),
		systemPrompt: defaultSystemPrompt,
		voiceStyle:   texttospeech.VoiceStyleNormal,
		segmenter:    newSegmenter(),
		temperature:  defaultTemperature,
		maxTokens:    defaultMaxTokens,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// StreamTurn runs one conversation turn and returns its event stream. The
// stream always opens with a start event and closes with an end event, on
// failure paths included; a failure additionally surfaces as one error
// event right before the end.
//
// history is the prior conversation; the prompt is appended to it for the
// inference calls but the caller owns recording both sides of the exchange.
func (o *Orchestrator) StreamTurn(ctx context.Context, prompt string, history []llms.Message, opts ...TurnOption) iter.Seq[events.Event] {
	options := TurnOptions{voiceStyle: o.voiceStyle}
	for _, opt := range opts {
		opt(&options)
	}

	return func(yield func(events.Event) bool) {
		ctx, span := tracer.Start(ctx, "stream turn")
		defer span.End()

		turnID := fmt.Sprintf("chatcmpl-%d", o.now().UnixMilli())
		span.SetAttributes(attribute.String("turn.id", turnID))

		emitter := &turnEmitter{yield: yield}
		if !emitter.emit(events.NewStart(turnID)) {
			return
		}

		residualRef, err := o.runTurn(ctx, turnID, prompt, history, options, emitter)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			emitter.emit(events.NewError(turnID, err.Error()))
		}

		emitter.emit(events.NewEnd(turnID, residualRef))
	}
}

// turnEmitter tracks whether the consumer stopped the iteration so nothing
// is yielded afterwards.
type turnEmitter struct {
	yield   func(events.Event) bool
	stopped bool
}

func (e *turnEmitter) emit(event events.Event) bool {
	if e.stopped {
		return false
	}
	if !e.yield(event) {
		e.stopped = true
	}
	return !e.stopped
}

func (o *Orchestrator) runTurn(
	ctx context.Context,
	turnID, prompt string,
	history []llms.Message,
	options TurnOptions,
	emitter *turnEmitter,
) (residualRef string, err error) {
	messages := o.composeMessages(ctx, prompt, history, options)

	completion, err := o.probe(ctx, messages)
	if err != nil {
		return "", err
	}

	if completion.FinishReason == llms.FinishReasonToolCalls && len(completion.Message.ToolCalls) > 0 {
		if !emitter.emit(events.NewToolCallNotice(turnID, toolCallNotice)) {
			return "", nil
		}

		messages = append(messages, completion.Message)
		for _, call := range completion.Message.ToolCalls {
			outcome := o.executeToolCall(ctx, call)
			messages = append(messages, llms.Message{
				Role:       llms.RoleTool,
				ToolCallID: call.ID,
				Name:       call.Name,
				Content:    outcome.Content,
				Timestamp:  o.now(),
			})
		}
	}

	return o.streamAnswer(ctx, turnID, messages, options, emitter)
}

// composeMessages builds the request history: system prompt, prior
// conversation, recalled memories when asked for, then the prompt itself.
func (o *Orchestrator) composeMessages(ctx context.Context, prompt string, history []llms.Message, options TurnOptions) []llms.Message {
	messages := make([]llms.Message, 0, len(history)+2)
	messages = append(messages, llms.NewMessage(llms.RoleSystem, o.systemPrompt))
	messages = append(messages, history...)

	if options.recallMemories && o.memories != nil {
		hits, err := o.memories.Search(ctx, prompt, memoryRecallLimit)
		if err != nil {
			logger.Warn("Memory recall failed, continuing without memories", "error", err)
		}
		for _, hit := range hits {
			messages = append(messages, llms.NewMessage(llms.RoleSystem, "以下是相关的历史对话: "+hit.Summary))
			for _, msg := range hit.Messages[:min(memoryMessagesPerRecall, len(hit.Messages))] {
				messages = append(messages, llms.Message{
					Role:      msg.Role,
					Content:   msg.Content,
					Timestamp: msg.Timestamp,
				})
			}
		}
	}

	return append(messages, llms.NewMessage(llms.RoleUser, prompt))
}

// probe issues the non-streaming call that lets the model request tools
// before the answer is streamed.
func (o *Orchestrator) probe(ctx context.Context, messages []llms.Message) (*llms.Completion, error) {
	ctx, span := tracer.Start(ctx, "probe for tool calls")
	defer span.End()

	snapshot := llms.SnapshotHistory(messages)
	completion, err := ratelimit.Execute(ctx, o.gateway, func(ctx context.Context) (*llms.Completion, error) {
		return o.client.Complete(ctx, llms.CompletionRequest{
			Messages:    snapshot,
			Tools:       o.tools,
			Temperature: o.temperature,
			MaxTokens:   o.maxTokens,
		})
	})
	if err != nil {
		err = fmt.Errorf("failed to probe for tool calls: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("llm.finish_reason", string(completion.FinishReason)))
	return completion, nil
}

// streamAnswer issues the always-streaming final call, emits each delta as
// a chunk, and feeds the segmenter so audio trails the text closely. The
// residual text left in the segmenter is synthesized last and its ref is
// returned for the end event.
func (o *Orchestrator) streamAnswer(
	ctx context.Context,
	turnID string,
	messages []llms.Message,
	options TurnOptions,
	emitter *turnEmitter,
) (residualRef string, err error) {
	ctx, span := tracer.Start(ctx, "stream answer")
	defer span.End()

	synthesize := o.synthesizer != nil && !options.skipSynthesis
	snapshot := llms.SnapshotHistory(messages)

	var accumulated string
	err = o.gateway.Do(ctx, func(ctx context.Context) error {
		accumulated = ""
		delivered := false
		stream := o.client.StreamCompletion(ctx, llms.CompletionRequest{
			Messages:    snapshot,
			Temperature: o.temperature,
			MaxTokens:   o.maxTokens,
		})
		for chunk, err := range stream.Chunks(ctx) {
			if err != nil {
				if delivered {
					// Once a chunk has reached the consumer the attempt is
					// not retryable: replaying the stream would emit the
					// same text twice.
					return fmt.Errorf("stream interrupted after partial answer: %v", err)
				}
				return err
			}
			if !emitter.emit(events.NewChunk(turnID, chunk)) {
				return nil
			}
			delivered = true

			if !synthesize {
				continue
			}
			accumulated += chunk
			for {
				segment, rest, ok := o.segmenter.Feed(accumulated)
				if !ok {
					break
				}
				accumulated = rest
				if ref := o.synthesizeSegment(ctx, segment, options.voiceStyle); ref != "" {
					if !emitter.emit(events.NewAudio(turnID, ref)) {
						return nil
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		err = fmt.Errorf("failed to stream answer: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	if synthesize && !emitter.stopped {
		residualRef = o.synthesizeSegment(ctx, accumulated, options.voiceStyle)
	}
	return residualRef, nil
}

// synthesizeSegment cleans and synthesizes one segment, queueing the result
// for playback. Synthesis failures only cost the audio for that segment,
// never the turn.
func (o *Orchestrator) synthesizeSegment(ctx context.Context, segment string, style texttospeech.VoiceStyle) string {
	cleaned := cleanForSynthesis(segment)
	if cleaned == "" {
		return ""
	}

	ref, err := o.synthesizer.Synthesize(ctx, cleaned, texttospeech.WithStyle(style))
	if err != nil {
		logger.Warn("Skipping audio for segment, synthesis failed", "error", err)
		return ""
	}

	if o.playback != nil {
		o.playback.Enqueue(ref)
	}
	return ref
}
