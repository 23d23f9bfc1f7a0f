package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/voxpet/voxpet-core/core/llms"
)

const summaryMaxRunes = 100

// FileStore keeps one JSON file per conversation under
// <dir>/<YYYY-MM-DD>/<id>.json. Search is a naive keyword scan over message
// content, which is plenty for recall-sized archives.
type FileStore struct {
	mu  sync.Mutex
	dir string

	now func() time.Time
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create memory directory: %w", err)
	}
	return &FileStore{dir: dir, now: time.Now}, nil
}

func (s *FileStore) Save(ctx context.Context, messages []llms.Message) (bool, error) {
	_, span := tracer.Start(ctx, "memory.Save")
	defer span.End()

	if len(messages) == 0 {
		return false, nil
	}

	detail := Detail{
		ID:        uuid.NewString(),
		Timestamp: s.now(),
		Summary:   summarize(messages),
		Messages:  messages,
	}
	span.SetAttributes(
		attribute.String("memory.id", detail.ID),
		attribute.Int("memory.messages", len(messages)),
	)

	data, err := sonic.ConfigDefault.MarshalIndent(detail, "", "  ")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to encode conversation")
		return false, fmt.Errorf("failed to encode conversation: %w", err)
	}

	day := filepath.Join(s.dir, detail.Timestamp.Format("2006-01-02"))

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(day, 0o755); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create day directory")
		return false, fmt.Errorf("failed to create day directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(day, detail.ID+".json"), data, 0o644); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to write conversation")
		return false, fmt.Errorf("failed to write conversation: %w", err)
	}

	return true, nil
}

func (s *FileStore) Search(ctx context.Context, query string, limit int) ([]Summary, error) {
	_, span := tracer.Start(ctx, "memory.Search")
	defer span.End()
	span.SetAttributes(attribute.String("memory.query", query))

	if limit <= 0 {
		return nil, nil
	}

	terms := splitTerms(query)

	type scored struct {
		summary Summary
		score   int
	}
	var hits []scored

	for _, detail := range s.readAll() {
		score := scoreDetail(detail, terms)
		if len(terms) > 0 && score == 0 {
			continue
		}
		hits = append(hits, scored{
			summary: Summary{
				ID:        detail.ID,
				Timestamp: detail.Timestamp,
				Summary:   detail.Summary,
				Messages:  detail.Messages,
			},
			score: score,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].summary.Timestamp.After(hits[j].summary.Timestamp)
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	summaries := make([]Summary, 0, len(hits))
	for _, hit := range hits {
		summaries = append(summaries, hit.summary)
	}
	span.SetAttributes(attribute.Int("memory.hits", len(summaries)))
	return summaries, nil
}

func (s *FileStore) GetByID(ctx context.Context, id string) (*Detail, error) {
	_, span := tracer.Start(ctx, "memory.GetByID")
	defer span.End()
	span.SetAttributes(attribute.String("memory.id", id))

	days, err := os.ReadDir(s.dir)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read memory directory")
		return nil, fmt.Errorf("failed to read memory directory: %w", err)
	}

	for _, day := range days {
		if !day.IsDir() {
			continue
		}
		path := filepath.Join(s.dir, day.Name(), id+".json")
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var detail Detail
		if err := sonic.Unmarshal(data, &detail); err != nil {
			logger.Warn("Skipping unreadable memory file", "path", path, "error", err)
			continue
		}
		return &detail, nil
	}
	return nil, nil
}

// readAll loads every stored conversation, skipping files that fail to
// parse.
func (s *FileStore) readAll() []Detail {
	days, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}

	var details []Detail
	for _, day := range days {
		if !day.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.dir, day.Name()))
		if err != nil {
			continue
		}
		for _, file := range files {
			if !strings.HasSuffix(file.Name(), ".json") {
				continue
			}
			path := filepath.Join(s.dir, day.Name(), file.Name())
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			var detail Detail
			if err := sonic.Unmarshal(data, &detail); err != nil {
				logger.Warn("Skipping unreadable memory file", "path", path, "error", err)
				continue
			}
			details = append(details, detail)
		}
	}
	return details
}

// summarize uses the first user line as the conversation summary, truncated
// to a readable length.
func summarize(messages []llms.Message) string {
	for _, msg := range messages {
		if msg.Role != llms.RoleUser || msg.Content == "" {
			continue
		}
		runes := []rune(msg.Content)
		if len(runes) > summaryMaxRunes {
			return string(runes[:summaryMaxRunes]) + "..."
		}
		return msg.Content
	}
	return ""
}

func splitTerms(query string) []string {
	return strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func scoreDetail(detail Detail, terms []string) int {
	if len(terms) == 0 {
		return 0
	}

	haystack := strings.ToLower(detail.Summary)
	for _, msg := range detail.Messages {
		haystack += "\n" + strings.ToLower(msg.Content)
	}

	score := 0
	for _, term := range terms {
		score += strings.Count(haystack, term)
	}
	return score
}
