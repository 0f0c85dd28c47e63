package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractRecordVariants(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		record string
	}{
		{"registro with colon", "Encaminhamento\nRegistro: ABC-123\ncorpo", "ABC-123"},
		{"protocolo with hash", "protocolo # 2026/00042\ncorpo", "2026/00042"},
		{"numero do registro", "Número do Registro: 2026.0042\ncorpo", "2026.0042"},
		{"english record number", "Record Number: XY12-99\nbody", "XY12-99"},
		{"lowercase value uppercased", "registro: abc-123\ncorpo", "ABC-123"},
		{"indented line", "   registro: R2026-7\ncorpo", "R2026-7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, record, err := RegexAgencyExtractor{}.ExtractRecord(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.record, record)
		})
	}
}

func TestExtractRecordNotFound(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"no record line at all", "Paciente sem protocolo informado no texto corrido"},
		{"value too short", "registro: AB\ncorpo"},
		{"keyword mid-line only", "o registro: ABC-123 aparece no meio da frase"},
		{"empty text", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := RegexAgencyExtractor{}.ExtractRecord(tt.text)
			assert.ErrorIs(t, err, ErrRecordNotFound)
		})
	}
}

func TestExtractRecordNormalizesText(t *testing.T) {
	text := "Registro: ABC-123   \n\n\n\n\nlinha com cauda\t\ncorpo"

	cleaned, record, err := RegexAgencyExtractor{}.ExtractRecord(text)
	require.NoError(t, err)

	assert.Equal(t, "ABC-123", record)
	assert.Equal(t, "Registro: ABC-123\n\nlinha com cauda\ncorpo", cleaned)
}
