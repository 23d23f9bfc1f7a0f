package orchestration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voxpet/voxpet-core/core/events"
	"github.com/voxpet/voxpet-core/core/llms"
	"github.com/voxpet/voxpet-core/core/memory"
	"github.com/voxpet/voxpet-core/core/ratelimit"
	"github.com/voxpet/voxpet-core/core/texttospeech"
)

type fakeStream struct {
	chunks []string
	err    error
}

func (s fakeStream) Chunks(context.Context) func(func(string, error) bool) {
	return func(yield func(string, error) bool) {
		for _, chunk := range s.chunks {
			if !yield(chunk, nil) {
				return
			}
		}
		if s.err != nil {
			yield("", s.err)
		}
	}
}

type scriptedClient struct {
	mu       sync.Mutex
	requests []llms.CompletionRequest

	completion *llms.Completion
	probeErr   error

	chunks    []string
	streamErr error
}

func (c *scriptedClient) Complete(_ context.Context, req llms.CompletionRequest) (*llms.Completion, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	if c.probeErr != nil {
		return nil, c.probeErr
	}
	if c.completion != nil {
		return c.completion, nil
	}
	return &llms.Completion{FinishReason: llms.FinishReasonStop}, nil
}

func (c *scriptedClient) StreamCompletion(_ context.Context, req llms.CompletionRequest) llms.Stream {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	return fakeStream{chunks: c.chunks, err: c.streamErr}
}

// sequencedClient serves a different stream on each StreamCompletion call so
// tests can script a failing first attempt followed by a clean one.
type sequencedClient struct {
	mu          sync.Mutex
	streams     []fakeStream
	streamCalls int
}

func (c *sequencedClient) Complete(context.Context, llms.CompletionRequest) (*llms.Completion, error) {
	return &llms.Completion{FinishReason: llms.FinishReasonStop}, nil
}

func (c *sequencedClient) StreamCompletion(context.Context, llms.CompletionRequest) llms.Stream {
	c.mu.Lock()
	defer c.mu.Unlock()

	stream := c.streams[0]
	if len(c.streams) > 1 {
		c.streams = c.streams[1:]
	}
	c.streamCalls++
	return stream
}

type fakeSynthesizer struct {
	mu     sync.Mutex
	dir    string
	inputs []string
	err    error
}

func (s *fakeSynthesizer) Synthesize(_ context.Context, text string, _ ...texttospeech.SynthesisOption) (string, error) {
	if s.err != nil {
		return "", s.err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs = append(s.inputs, text)

	path := filepath.Join(s.dir, fmt.Sprintf("segment-%d.mp3", len(s.inputs)))
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type fakeMemoryStore struct {
	hits []memory.Summary
}

func (s *fakeMemoryStore) Search(context.Context, string, int) ([]memory.Summary, error) {
	return s.hits, nil
}

func (s *fakeMemoryStore) Save(context.Context, []llms.Message) (bool, error) { return false, nil }

func (s *fakeMemoryStore) GetByID(context.Context, string) (*memory.Detail, error) {
	return nil, nil
}

func testGateway() *ratelimit.Gateway {
	return ratelimit.NewGateway(
		ratelimit.NewLimiter(1000, time.Millisecond),
		ratelimit.WithBaseDelay(time.Millisecond),
		ratelimit.WithWaitTimeout(100*time.Millisecond),
	)
}

func collectEvents(t *testing.T, o *Orchestrator, prompt string, opts ...TurnOption) []events.Event {
	t.Helper()

	var collected []events.Event
	for event := range o.StreamTurn(context.Background(), prompt, nil, opts...) {
		collected = append(collected, event)
	}
	return collected
}

func assertStartAndEnd(t *testing.T, collected []events.Event) {
	t.Helper()

	if len(collected) < 2 {
		t.Fatalf("expected at least start and end, got %d events", len(collected))
	}

	starts, ends := 0, 0
	for _, event := range collected {
		switch event.Kind() {
		case events.KindStart:
			starts++
		case events.KindEnd:
			ends++
		}
		if event.TurnID() != collected[0].TurnID() {
			t.Fatalf("expected all events to share the turn id, got %q and %q", collected[0].TurnID(), event.TurnID())
		}
	}
	if starts != 1 || ends != 1 {
		t.Fatalf("expected exactly one start and one end, got %d and %d", starts, ends)
	}
	if collected[0].Kind() != events.KindStart {
		t.Fatalf("expected first event to be start, got %s", collected[0].Kind())
	}
	if collected[len(collected)-1].Kind() != events.KindEnd {
		t.Fatalf("expected last event to be end, got %s", collected[len(collected)-1].Kind())
	}
}

func TestStreamTurnEmitsChunksBetweenStartAndEnd(t *testing.T) {
	client := &scriptedClient{chunks: []string{"你好", "，世界"}}
	o := NewOrchestrator(client, WithGateway(testGateway()))

	collected := collectEvents(t, o, "打个招呼")

	assertStartAndEnd(t, collected)
	if !strings.HasPrefix(collected[0].TurnID(), "chatcmpl-") {
		t.Fatalf("expected chatcmpl turn id, got %q", collected[0].TurnID())
	}

	var answer strings.Builder
	for _, event := range collected {
		if chunk, ok := event.(events.Chunk); ok {
			answer.WriteString(chunk.Content)
		}
	}
	if answer.String() != "你好，世界" {
		t.Fatalf("expected streamed answer reassembled, got %q", answer.String())
	}
}

func TestStreamTurnComposesRequestMessages(t *testing.T) {
	client := &scriptedClient{chunks: []string{"好的"}}
	o := NewOrchestrator(client,
		WithGateway(testGateway()),
		WithSystemPrompt("你是一只电子宠物"),
		WithTools(WebSearchTool()),
	)

	history := []llms.Message{
		llms.NewMessage(llms.RoleUser, "我叫小明"),
		llms.NewMessage(llms.RoleAssistant, "你好小明"),
	}
	for range o.StreamTurn(context.Background(), "我叫什么名字", history) {
	}

	if len(client.requests) != 2 {
		t.Fatalf("expected probe and stream requests, got %d", len(client.requests))
	}

	probe := client.requests[0]
	if len(probe.Tools) != 1 || probe.Tools[0].Name != WebSearchToolName {
		t.Fatalf("expected probe to carry the registered tools, got %+v", probe.Tools)
	}
	if len(probe.Messages) != 4 {
		t.Fatalf("expected system+history+prompt messages, got %d", len(probe.Messages))
	}
	if probe.Messages[0].Role != llms.RoleSystem || probe.Messages[0].Content != "你是一只电子宠物" {
		t.Fatalf("expected system prompt first, got %+v", probe.Messages[0])
	}
	if probe.Messages[3].Role != llms.RoleUser || probe.Messages[3].Content != "我叫什么名字" {
		t.Fatalf("expected prompt last, got %+v", probe.Messages[3])
	}

	if len(client.requests[1].Tools) != 0 {
		t.Fatalf("expected the streaming request to carry no tools")
	}
}

func TestStreamTurnToolRoundTrip(t *testing.T) {
	client := &scriptedClient{
		completion: &llms.Completion{
			FinishReason: llms.FinishReasonToolCalls,
			Message: llms.Message{
				Role: llms.RoleAssistant,
				ToolCalls: []llms.ToolCall{{
					ID:        "call-1",
					Name:      WebSearchToolName,
					Arguments: `{"search":"今天的新闻"}`,
				}},
			},
		},
		chunks: []string{"这是搜索后的回答。"},
	}
	o := NewOrchestrator(client,
		WithGateway(testGateway()),
		WithTools(WebSearchTool()),
	)

	collected := collectEvents(t, o, "今天有什么新闻")

	assertStartAndEnd(t, collected)

	notices := 0
	for _, event := range collected {
		if event.Kind() == events.KindToolCall {
			notices++
		}
	}
	if notices != 1 {
		t.Fatalf("expected exactly one tool_call notice, got %d", notices)
	}

	if len(client.requests) != 2 {
		t.Fatalf("expected probe and stream requests, got %d", len(client.requests))
	}
	final := client.requests[1].Messages
	assistant := final[len(final)-2]
	if assistant.Role != llms.RoleAssistant || len(assistant.ToolCalls) != 1 {
		t.Fatalf("expected assistant message carrying the raw calls, got %+v", assistant)
	}
	toolMsg := final[len(final)-1]
	if toolMsg.Role != llms.RoleTool || toolMsg.ToolCallID != "call-1" {
		t.Fatalf("expected tool message answering call-1, got %+v", toolMsg)
	}
	if toolMsg.Content != `{"search":"今天的新闻"}` {
		t.Fatalf("expected echoed search arguments, got %q", toolMsg.Content)
	}
}

func TestStreamTurnUnknownToolStillCompletes(t *testing.T) {
	client := &scriptedClient{
		completion: &llms.Completion{
			FinishReason: llms.FinishReasonToolCalls,
			Message: llms.Message{
				Role:      llms.RoleAssistant,
				ToolCalls: []llms.ToolCall{{ID: "call-1", Name: "crystal_ball"}},
			},
		},
		chunks: []string{"工具不可用，但我还能回答。"},
	}
	o := NewOrchestrator(client, WithGateway(testGateway()), WithTools(WebSearchTool()))

	collected := collectEvents(t, o, "预测一下明天")

	assertStartAndEnd(t, collected)
	for _, event := range collected {
		if event.Kind() == events.KindError {
			t.Fatalf("expected no error event for an unknown tool")
		}
	}

	final := client.requests[1].Messages
	toolMsg := final[len(final)-1]
	if toolMsg.Content != "Error: unable to find tool by name 'crystal_ball'" {
		t.Fatalf("expected in-band unknown tool result, got %q", toolMsg.Content)
	}
}

func TestStreamTurnProbeFailureEmitsErrorThenEnd(t *testing.T) {
	client := &scriptedClient{probeErr: errors.New("service unavailable")}
	o := NewOrchestrator(client, WithGateway(testGateway()))

	collected := collectEvents(t, o, "hello")

	assertStartAndEnd(t, collected)
	if len(collected) != 3 {
		t.Fatalf("expected start, error, end, got %d events", len(collected))
	}
	errorEvent, ok := collected[1].(events.Error)
	if !ok {
		t.Fatalf("expected error event before end, got %s", collected[1].Kind())
	}
	if !strings.Contains(errorEvent.Message, "service unavailable") {
		t.Fatalf("expected readable error message, got %q", errorEvent.Message)
	}
}

func TestStreamTurnStreamFailureEmitsErrorThenEnd(t *testing.T) {
	client := &scriptedClient{
		chunks:    []string{"开头"},
		streamErr: errors.New("connection reset"),
	}
	o := NewOrchestrator(client, WithGateway(testGateway()))

	collected := collectEvents(t, o, "hello")

	assertStartAndEnd(t, collected)
	kinds := make([]events.Kind, 0, len(collected))
	for _, event := range collected {
		kinds = append(kinds, event.Kind())
	}
	if kinds[1] != events.KindChunk || kinds[2] != events.KindError {
		t.Fatalf("expected chunk then error before end, got %v", kinds)
	}
}

func TestStreamTurnDoesNotReplayChunksAfterMidStreamRateLimit(t *testing.T) {
	client := &sequencedClient{streams: []fakeStream{
		{chunks: []string{"第一段"}, err: &ratelimit.RateLimitError{Message: "rate limited"}},
		{chunks: []string{"第二段"}},
	}}
	o := NewOrchestrator(client, WithGateway(testGateway()))

	collected := collectEvents(t, o, "hello")

	assertStartAndEnd(t, collected)
	chunks := 0
	sawError := false
	for _, event := range collected {
		switch typedEvent := event.(type) {
		case events.Chunk:
			chunks++
			if typedEvent.Content != "第一段" {
				t.Fatalf("expected only the delivered chunk, got %q", typedEvent.Content)
			}
		case events.Error:
			sawError = true
		}
	}
	if chunks != 1 {
		t.Fatalf("expected the delivered chunk exactly once, got %d chunk events", chunks)
	}
	if !sawError {
		t.Fatalf("expected an error event after the interrupted stream")
	}
	if client.streamCalls != 1 {
		t.Fatalf("expected no retry after a delivered chunk, got %d stream calls", client.streamCalls)
	}
}

func TestStreamTurnRetriesRateLimitBeforeFirstChunk(t *testing.T) {
	client := &sequencedClient{streams: []fakeStream{
		{err: &ratelimit.RateLimitError{Message: "rate limited"}},
		{chunks: []string{"回答"}},
	}}
	o := NewOrchestrator(client, WithGateway(testGateway()))

	collected := collectEvents(t, o, "hello")

	assertStartAndEnd(t, collected)
	for _, event := range collected {
		if event.Kind() == events.KindError {
			t.Fatalf("expected the retried turn to succeed, got error event")
		}
	}
	var answer strings.Builder
	for _, event := range collected {
		if chunk, ok := event.(events.Chunk); ok {
			answer.WriteString(chunk.Content)
		}
	}
	if answer.String() != "回答" {
		t.Fatalf("expected the retried stream's answer, got %q", answer.String())
	}
	if client.streamCalls != 2 {
		t.Fatalf("expected one retry before the first chunk, got %d stream calls", client.streamCalls)
	}
}

func TestStreamTurnSynthesizesSegmentsAndResidual(t *testing.T) {
	client := &scriptedClient{chunks: []string{"这是一个足够长的", "中文句子。剩下的尾巴"}}
	synthesizer := &fakeSynthesizer{dir: t.TempDir()}
	queue := NewPlaybackQueue()
	queue.duration = func(string) time.Duration { return time.Minute }
	defer queue.Stop()

	o := NewOrchestrator(client,
		WithGateway(testGateway()),
		WithSynthesizer(synthesizer),
		WithPlaybackQueue(queue),
	)

	collected := collectEvents(t, o, "说点什么")

	assertStartAndEnd(t, collected)

	var audioRefs []string
	for _, event := range collected {
		if audio, ok := event.(events.Audio); ok {
			audioRefs = append(audioRefs, audio.AudioRef)
		}
	}
	if len(audioRefs) != 1 {
		t.Fatalf("expected one audio event for the completed sentence, got %d", len(audioRefs))
	}

	end := collected[len(collected)-1].(events.End)
	if end.AudioRef == "" {
		t.Fatalf("expected residual audio ref on the end event")
	}
	if end.AudioRef == audioRefs[0] {
		t.Fatalf("expected residual synthesis separate from the segment audio")
	}

	if len(synthesizer.inputs) != 2 {
		t.Fatalf("expected sentence and residual synthesized, got %v", synthesizer.inputs)
	}
	if synthesizer.inputs[0] != "这是一个足够长的中文句子。" {
		t.Fatalf("expected completed sentence synthesized first, got %q", synthesizer.inputs[0])
	}
	if synthesizer.inputs[1] != "剩下的尾巴" {
		t.Fatalf("expected residual synthesized last, got %q", synthesizer.inputs[1])
	}

	deadline := time.Now().Add(time.Second)
	for {
		status := queue.Status()
		if status.IsPlaying || status.QueueLength > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected synthesized audio to reach the playback queue")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStreamTurnWithoutSynthesis(t *testing.T) {
	client := &scriptedClient{chunks: []string{"这是一个足够长的中文句子。"}}
	synthesizer := &fakeSynthesizer{dir: t.TempDir()}
	o := NewOrchestrator(client,
		WithGateway(testGateway()),
		WithSynthesizer(synthesizer),
	)

	collected := collectEvents(t, o, "说点什么", WithoutSynthesis())

	assertStartAndEnd(t, collected)
	for _, event := range collected {
		if event.Kind() == events.KindAudio {
			t.Fatalf("expected no audio events with synthesis disabled")
		}
	}
	if end := collected[len(collected)-1].(events.End); end.AudioRef != "" {
		t.Fatalf("expected no residual audio ref, got %q", end.AudioRef)
	}
	if len(synthesizer.inputs) != 0 {
		t.Fatalf("expected synthesizer untouched, got %v", synthesizer.inputs)
	}
}

func TestStreamTurnSynthesisFailureKeepsTurnAlive(t *testing.T) {
	client := &scriptedClient{chunks: []string{"这是一个足够长的中文句子。"}}
	synthesizer := &fakeSynthesizer{dir: t.TempDir(), err: errors.New("synthesis down")}
	o := NewOrchestrator(client,
		WithGateway(testGateway()),
		WithSynthesizer(synthesizer),
	)

	collected := collectEvents(t, o, "说点什么")

	assertStartAndEnd(t, collected)
	for _, event := range collected {
		switch event.Kind() {
		case events.KindAudio:
			t.Fatalf("expected no audio events when synthesis fails")
		case events.KindError:
			t.Fatalf("expected synthesis failure not to fail the turn")
		}
	}
}

func TestStreamTurnMemoryRecall(t *testing.T) {
	client := &scriptedClient{chunks: []string{"记得。"}}
	store := &fakeMemoryStore{hits: []memory.Summary{{
		ID:      "mem-1",
		Summary: "聊过喜欢的食物",
		Messages: []llms.Message{
			llms.NewMessage(llms.RoleUser, "我最喜欢吃饺子"),
			llms.NewMessage(llms.RoleAssistant, "记住了"),
			llms.NewMessage(llms.RoleUser, "尤其是韭菜馅的"),
			llms.NewMessage(llms.RoleAssistant, "这条不应该被带上"),
		},
	}}}
	o := NewOrchestrator(client,
		WithGateway(testGateway()),
		WithMemoryStore(store),
	)

	for range o.StreamTurn(context.Background(), "我喜欢吃什么", nil, WithMemoryRecall()) {
	}

	probe := client.requests[0].Messages
	// system prompt, recall marker, 3 recalled messages, user prompt
	if len(probe) != 6 {
		t.Fatalf("expected 6 request messages, got %d", len(probe))
	}
	if probe[1].Role != llms.RoleSystem || !strings.Contains(probe[1].Content, "聊过喜欢的食物") {
		t.Fatalf("expected recall marker with summary, got %+v", probe[1])
	}
	if probe[2].Content != "我最喜欢吃饺子" || probe[4].Content != "尤其是韭菜馅的" {
		t.Fatalf("expected first three recalled messages in order")
	}
	if probe[5].Role != llms.RoleUser || probe[5].Content != "我喜欢吃什么" {
		t.Fatalf("expected prompt last, got %+v", probe[5])
	}
}

func TestStreamTurnWithoutRecallSkipsStore(t *testing.T) {
	client := &scriptedClient{chunks: []string{"好。"}}
	store := &fakeMemoryStore{hits: []memory.Summary{{Summary: "不该出现"}}}
	o := NewOrchestrator(client,
		WithGateway(testGateway()),
		WithMemoryStore(store),
	)

	for range o.StreamTurn(context.Background(), "你好", nil) {
	}

	for _, msg := range client.requests[0].Messages {
		if strings.Contains(msg.Content, "不该出现") {
			t.Fatalf("expected memories to stay out without the recall option")
		}
	}
}
