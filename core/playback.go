package orchestration

import (
	"context"
	"os"
	"sync"
	"time"
)

const (
	minPlaybackDuration = 2 * time.Second

	// Rough speech density for synthesized mp3 files: about 50 bytes per
	// spoken character, 200ms per character.
	playbackBytesPerChar = 50
	playbackCharDuration = 200 * time.Millisecond
)

// PlaybackStatus is a point-in-time snapshot of the playback queue.
type PlaybackStatus struct {
	IsPlaying   bool
	Current     string
	Elapsed     time.Duration
	Remaining   time.Duration
	Total       time.Duration
	QueueLength int
}

// PlaybackQueue plays synthesized audio files in arrival order. Playback is
// simulated: each file occupies the queue for its estimated duration, which
// is what a server brokering audio for remote clients needs.
type PlaybackQueue struct {
	mu           sync.Mutex
	queue        []string
	updateSignal chan struct{}

	current   string
	startedAt time.Time
	total     time.Duration
	isPlaying bool

	consumerStarted bool
	cancelConsumer  context.CancelFunc
	consumerDone    chan struct{}

	duration func(path string) time.Duration
	now      func() time.Time
}

type PlaybackOption func(*PlaybackQueue)

// WithDurationEstimator replaces the size-based duration heuristic, e.g.
// with a decoder-backed one.
func WithDurationEstimator(estimate func(path string) time.Duration) PlaybackOption {
	return func(q *PlaybackQueue) {
		if estimate != nil {
			q.duration = estimate
		}
	}
}

func NewPlaybackQueue(opts ...PlaybackOption) *PlaybackQueue {
	q := &PlaybackQueue{
		updateSignal: make(chan struct{}, 1),
		duration:     estimatePlaybackDuration,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue adds an audio file to the back of the queue and reports whether it
// was accepted. Files that do not exist are skipped. The consumer goroutine
// is started on first use and restarted after Stop.
func (q *PlaybackQueue) Enqueue(ref string) bool {
	if ref == "" {
		return false
	}
	if _, err := os.Stat(ref); err != nil {
		logger.Warn("Skipping missing audio file", "path", ref)
		return false
	}

	q.mu.Lock()
	q.queue = append(q.queue, ref)
	q.ensureConsumer()
	q.mu.Unlock()

	q.signalUpdate()
	return true
}

// Clear drops all queued files and resets the reported status. A file
// mid-playback still finishes its simulated duration.
func (q *PlaybackQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.queue = nil
	q.current = ""
	q.isPlaying = false
	q.total = 0
}

// Status reports what is playing and how much is queued behind it.
func (q *PlaybackQueue) Status() PlaybackStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	status := PlaybackStatus{QueueLength: len(q.queue)}
	if q.isPlaying && q.current != "" {
		elapsed := q.now().Sub(q.startedAt)
		status.IsPlaying = true
		status.Current = q.current
		status.Elapsed = elapsed
		status.Total = q.total
		status.Remaining = max(0, q.total-elapsed)
	}
	return status
}

// Stop cancels the consumer goroutine and waits for it to exit. Queued files
// are kept; the next Enqueue starts a fresh consumer.
func (q *PlaybackQueue) Stop() {
	q.mu.Lock()
	if !q.consumerStarted {
		q.mu.Unlock()
		return
	}
	cancel := q.cancelConsumer
	done := q.consumerDone
	q.mu.Unlock()

	cancel()
	<-done

	q.mu.Lock()
	q.consumerStarted = false
	q.current = ""
	q.isPlaying = false
	q.total = 0
	q.mu.Unlock()
}

// ensureConsumer starts the consumer goroutine if it is not running.
// Callers must hold q.mu.
func (q *PlaybackQueue) ensureConsumer() {
	if q.consumerStarted {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	q.consumerStarted = true
	q.cancelConsumer = cancel
	q.consumerDone = make(chan struct{})

	go q.consume(ctx, q.consumerDone)
}

func (q *PlaybackQueue) consume(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	for {
		q.mu.Lock()
		if len(q.queue) == 0 {
			q.mu.Unlock()
			select {
			case <-ctx.Done():
				return
			case <-q.updateSignal:
				continue
			}
		}

		ref := q.queue[0]
		q.queue = q.queue[1:]

		if _, err := os.Stat(ref); err != nil {
			q.mu.Unlock()
			logger.Warn("Dropping audio file that disappeared from disk", "path", ref)
			continue
		}

		total := q.duration(ref)
		q.current = ref
		q.startedAt = q.now()
		q.total = total
		q.isPlaying = true
		q.mu.Unlock()

		logger.Debug("Playback started", "path", ref, "duration", total)

		if !sleepContext(ctx, total) {
			q.mu.Lock()
			q.current = ""
			q.isPlaying = false
			q.total = 0
			q.mu.Unlock()
			return
		}

		q.mu.Lock()
		q.current = ""
		q.isPlaying = false
		q.total = 0
		q.mu.Unlock()
	}
}

func (q *PlaybackQueue) signalUpdate() {
	select {
	case q.updateSignal <- struct{}{}:
	default:
	}
}

// estimatePlaybackDuration guesses how long a synthesized file takes to
// speak from its size alone, with a floor so very short clips still hold
// the queue briefly.
func estimatePlaybackDuration(path string) time.Duration {
	info, err := os.Stat(path)
	if err != nil {
		return minPlaybackDuration
	}

	chars := info.Size() / playbackBytesPerChar
	return max(minPlaybackDuration, time.Duration(chars)*playbackCharDuration)
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
