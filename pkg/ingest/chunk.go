package ingest

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

const DefaultTokenEncoding = "o200k_base"

// TokenCounter returns the number of model tokens of a text.
type TokenCounter func(text string) int

// NewTiktokenCounter counts tokens with the named tiktoken encoding.
func NewTiktokenCounter(encoding string) (TokenCounter, error) {
	if encoding == "" {
		encoding = DefaultTokenEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return func(text string) int {
		return len(enc.Encode(text, nil, nil))
	}, nil
}

type textChunk struct {
	text   string
	tokens int
}

// splitIntoChunks groups consecutive sentences while their joined text
// stays within maxTokens. A single sentence above the limit becomes its own
// chunk.
func splitIntoChunks(text string, maxTokens int, count TokenCounter) []textChunk {
	sentences := splitIntoSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []textChunk
	chunkStart := -1
	chunkEnd := -1
	chunkTokens := 0

	join := func(from, to int) string {
		var b strings.Builder
		for i := from; i < to; i++ {
			if i > from {
				b.WriteString(" ")
			}
			b.WriteString(sentences[i])
		}
		return strings.TrimSpace(b.String())
	}

	flushChunk := func() {
		if chunkStart < 0 || chunkEnd <= chunkStart {
			return
		}
		chunks = append(chunks, textChunk{text: join(chunkStart, chunkEnd), tokens: chunkTokens})
		chunkStart = -1
		chunkEnd = -1
		chunkTokens = 0
	}

	for i := range sentences {
		if chunkStart < 0 {
			chunkStart = i
			chunkEnd = i + 1
			chunkTokens = count(sentences[i])
			continue
		}

		testTokens := count(join(chunkStart, i+1))
		if testTokens <= maxTokens {
			chunkEnd = i + 1
			chunkTokens = testTokens
		} else {
			flushChunk()
			chunkStart = i
			chunkEnd = i + 1
			chunkTokens = count(sentences[i])
		}
	}
	flushChunk()

	return chunks
}

var tableDelimiter = regexp.MustCompile(`^\s*\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)+\|?\s*$`)

func isTableRow(line string) bool {
	return strings.Contains(strings.TrimSpace(line), "|")
}

func endsSentence(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?")
}

// sentenceBuilder accumulates sentence fragments across line breaks.
type sentenceBuilder struct {
	current   strings.Builder
	sentences []string
}

func (b *sentenceBuilder) flush() {
	if s := strings.TrimSpace(b.current.String()); s != "" {
		b.sentences = append(b.sentences, s)
	}
	b.current.Reset()
}

func (b *sentenceBuilder) addLine(line string) {
	for _, sentence := range splitLineIntoSentences(line) {
		if b.current.Len() > 0 {
			b.current.WriteString(" ")
		}
		b.current.WriteString(sentence)
		if endsSentence(sentence) {
			b.flush()
		}
	}
}

// splitIntoSentences splits text on sentence punctuation and blank lines.
// Markdown tables with a delimiter row stay together as one sentence, bare
// pipe rows become one sentence each.
func splitIntoSentences(text string) []string {
	lines := strings.Split(text, "\n")
	b := &sentenceBuilder{}
	inTable := false

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		if inTable {
			if trimmed != "" && isTableRow(line) {
				b.current.WriteString("\n")
				b.current.WriteString(line)
				continue
			}
			inTable = false
			b.flush()
		}

		switch {
		case trimmed == "":
			b.flush()
		case isTableRow(line) && i+1 < len(lines) && tableDelimiter.MatchString(strings.TrimSpace(lines[i+1])):
			b.flush()
			inTable = true
			b.current.WriteString(line)
		case isTableRow(line):
			b.flush()
			b.sentences = append(b.sentences, trimmed)
		default:
			b.addLine(trimmed)
		}
	}
	b.flush()

	return b.sentences
}

func splitLineIntoSentences(line string) []string {
	var sentences []string
	var current strings.Builder

	for i := 0; i < len(line); i++ {
		current.WriteByte(line[i])

		if line[i] == '.' || line[i] == '!' || line[i] == '?' {
			isNumericListing := false

			if i > 0 && unicode.IsDigit(rune(line[i-1])) {
				if i+1 < len(line) && line[i+1] == ' ' {
					isNumericListing = true
				}
			}

			if isNumericListing {
				continue
			}
			j := i + 1
			for j < len(line) && (line[j] == '.' || line[j] == '!' || line[j] == '?') {
				current.WriteByte(line[j])
				j++
			}

			for j < len(line) && (line[j] == '"' || line[j] == '\'' || line[j] == ')' ||
				line[j] == ']' || line[j] == '}') {
				current.WriteByte(line[j])
				j++
			}

			sentence := strings.TrimSpace(current.String())
			if sentence != "" {
				sentences = append(sentences, sentence)
			}
			current.Reset()
			i = j - 1
		}
	}

	remaining := strings.TrimSpace(current.String())
	if remaining != "" {
		sentences = append(sentences, remaining)
	}

	return sentences
}
