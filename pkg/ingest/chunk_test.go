package ingest

import (
	"reflect"
	"strings"
	"testing"
)

func wordCount(text string) int {
	return len(strings.Fields(text))
}

func TestSplitIntoSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "empty input",
			text: "",
			want: []string(nil),
		},
		{
			name: "multiple sentences",
			text: "Bom dia. O plano foi cancelado! Posso ajudar?",
			want: []string{"Bom dia.", "O plano foi cancelado!", "Posso ajudar?"},
		},
		{
			name: "multi-line sentence",
			text: "O cliente pode\ncancelar em até\nsete dias.",
			want: []string{"O cliente pode cancelar em até sete dias."},
		},
		{
			name: "blank line ends a sentence",
			text: "Sem pontuação\n\nOutra parte",
			want: []string{"Sem pontuação", "Outra parte"},
		},
		{
			name: "markdown table kept together",
			text: "Tabela de prazos.\n| Plano | Prazo |\n|-------|-------|\n| Basic | 7     |\nFim.",
			want: []string{
				"Tabela de prazos.",
				"| Plano | Prazo |\n|-------|-------|\n| Basic | 7     |",
				"Fim.",
			},
		},
		{
			name: "pipe rows without delimiter",
			text: "Plano | Prazo\nBasic | 7",
			want: []string{"Plano | Prazo", "Basic | 7"},
		},
		{
			name: "numeric listing stays in one sentence",
			text: "Siga os passos. 1. Confirme o CPF 2. Cancele. Pronto!",
			want: []string{"Siga os passos.", "1. Confirme o CPF 2. Cancele.", "Pronto!"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitIntoSentences(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitIntoSentences() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestSplitIntoChunks(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		maxTokens int
		want      []textChunk
	}{
		{
			name:      "fits in one chunk",
			text:      "Primeira frase. Segunda frase.",
			maxTokens: 10,
			want:      []textChunk{{text: "Primeira frase. Segunda frase.", tokens: 4}},
		},
		{
			name:      "split by token limit",
			text:      "Primeira frase. Segunda frase. Terceira frase.",
			maxTokens: 4,
			want: []textChunk{
				{text: "Primeira frase. Segunda frase.", tokens: 4},
				{text: "Terceira frase.", tokens: 2},
			},
		},
		{
			name:      "oversized sentence is its own chunk",
			text:      "Uma frase muito longa demais. Curta.",
			maxTokens: 2,
			want: []textChunk{
				{text: "Uma frase muito longa demais.", tokens: 5},
				{text: "Curta.", tokens: 1},
			},
		},
		{
			name:      "empty text",
			text:      "  ",
			maxTokens: 10,
			want:      nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitIntoChunks(tt.text, tt.maxTokens, wordCount)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitIntoChunks() = %#v, want %#v", got, tt.want)
			}
		})
	}
}
