package orchestration

import "strings"

const (
	defaultMinSegment = 10
	noTerminatorFlush = 50

	defaultMaxSegmentLength = 300
)

var (
	sentenceTerminators = []rune("。？！.?!")
	commaSeparators     = []rune("，,")
)

// segmenter cuts a growing stream of text into speakable sentences. It is
// rune-indexed throughout so mixed Chinese and Latin text measures the same.
type segmenter struct {
	minSegment int
}

func newSegmenter() *segmenter {
	return &segmenter{minSegment: defaultMinSegment}
}

// Feed inspects the accumulated text and, when a long-enough sentence has
// formed, cuts it off. It returns the finished segment, the remaining text,
// and whether a cut was made. Text without any terminator is flushed whole
// once it grows past the no-terminator threshold.
func (s *segmenter) Feed(accumulated string) (segment, remainder string, ok bool) {
	runes := []rune(accumulated)

	end := -1
	for i, r := range runes {
		if isTerminator(r) {
			end = i
			break
		}
	}
	if end == -1 && len(runes) > noTerminatorFlush {
		end = len(runes) - 1
	}

	if end <= s.minSegment {
		return "", accumulated, false
	}
	return string(runes[:end+1]), string(runes[end+1:]), true
}

// SplitText breaks text into segments of at most maxLength runes, cutting at
// sentence boundaries first, then at commas, then mid-run as a last resort.
// Segments concatenate back to exactly the input.
func SplitText(text string, maxLength int) []string {
	if maxLength <= 0 {
		maxLength = defaultMaxSegmentLength
	}
	if len([]rune(text)) <= maxLength {
		return []string{text}
	}

	var segments []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen > 0 {
			segments = append(segments, current.String())
			current.Reset()
			currentLen = 0
		}
	}
	add := func(part []rune) {
		if currentLen+len(part) > maxLength {
			flush()
		}
		if len(part) > maxLength {
			for start := 0; start < len(part); start += maxLength {
				segments = append(segments, string(part[start:min(start+maxLength, len(part))]))
			}
			return
		}
		current.WriteString(string(part))
		currentLen += len(part)
	}

	for _, sentence := range splitAfter([]rune(text), isTerminator) {
		if len(sentence) <= maxLength {
			add(sentence)
			continue
		}
		for _, part := range splitAfter(sentence, isComma) {
			add(part)
		}
	}
	flush()

	return segments
}

// splitAfter cuts runes after every separator, keeping the separator with
// the preceding piece.
func splitAfter(runes []rune, isSep func(rune) bool) [][]rune {
	var parts [][]rune
	start := 0
	for i, r := range runes {
		if isSep(r) {
			parts = append(parts, runes[start:i+1])
			start = i + 1
		}
	}
	if start < len(runes) {
		parts = append(parts, runes[start:])
	}
	return parts
}

func isTerminator(r rune) bool {
	for _, t := range sentenceTerminators {
		if r == t {
			return true
		}
	}
	return false
}

func isComma(r rune) bool {
	for _, c := range commaSeparators {
		if r == c {
			return true
		}
	}
	return false
}
