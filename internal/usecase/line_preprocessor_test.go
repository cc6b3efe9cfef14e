package usecase

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanDetectedLine(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "numbered item", input: "1. Hemoleucograma", want: "Hemoleucograma"},
		{name: "bullet", input: "• TSH", want: "TSH"},
		{name: "dash bullet", input: "- Glicemie", want: "Glicemie"},
		{name: "result after colon", input: "Glicemie: 95 mg/dl", want: "Glicemie"},
		{name: "result after spaced dash", input: "TSH - 2.1 mUI/L", want: "TSH"},
		{name: "hyphenated name kept", input: "Anti-HCV", want: "Anti-HCV"},
		{name: "parenthesized note", input: "Hemoleucograma (HLG) completa", want: "Hemoleucograma completa"},
		{name: "collapses whitespace", input: "  Colesterol    total  ", want: "Colesterol total"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanDetectedLine(tt.input))
		})
	}
}

func TestIsLikelyTestLine(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{line: "Hemoleucograma", want: true},
		{line: "Colesterol total", want: true},
		{line: "TSH", want: true},
		{line: "ft4", want: true},
		{line: "Pacient: Ion Popescu", want: false},
		{line: "Data recoltarii", want: false},
		{line: "Total", want: false},
		{line: "0722 123 456", want: false},
		{line: "ab", want: false},
		{line: "XYZ", want: false},
		{line: "XYZ-UNKNOWN-TEST", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, isLikelyTestLine(tt.line))
		})
	}
}

func TestLinePreprocessor_Preprocess(t *testing.T) {
	p := NewLinePreprocessor(0, testLogger())

	t.Run("cleans filters and de-duplicates in order", func(t *testing.T) {
		got := p.Preprocess([]string{
			"Pacient: Ion Popescu",
			"1. Hemoleucograma",
			"2. TSH - 2.1",
			"3. hemoleucograma",
			"",
			"Glicemie: 95",
		})
		assert.Equal(t, []string{"Hemoleucograma", "TSH", "Glicemie"}, got)
	})

	t.Run("splits multi-line entries", func(t *testing.T) {
		got := p.Preprocess([]string{"Hemoleucograma\nColesterol total\nPagina 1 din 2"})
		assert.Equal(t, []string{"Hemoleucograma", "Colesterol total"}, got)
	})

	t.Run("nothing detected", func(t *testing.T) {
		assert.Empty(t, p.Preprocess(nil))
		assert.Empty(t, p.Preprocess([]string{"", "  ", "12/03/2024"}))
	})

	t.Run("caps the number of lines", func(t *testing.T) {
		small := NewLinePreprocessor(2, testLogger())
		var raw []string
		for i := 0; i < 5; i++ {
			raw = append(raw, fmt.Sprintf("Analiza numarul %c", 'A'+i))
		}
		assert.Len(t, small.Preprocess(raw), 2)
	})
}
