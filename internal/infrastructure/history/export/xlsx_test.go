package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/statute-rag/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	err := WriteXLSX(&buf, []domain.Interaction{
		{
			ID: "i-1", SessionID: "s-1", Question: "What is the punishment for bank robbery?", Answer: "Up to 20 years.",
			Intent: domain.IntentPunishment, ChunkIDs: []string{"C1", "C3"}, Model: "llama3",
			DurationMS: 812, CreatedAt: time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC),
		},
		{ID: "i-2", Question: strings.Repeat("x", maxCellRunes+10), Intent: domain.IntentGeneral, Model: "fallback", Degraded: true},
	})
	require.NoError(t, err)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, headers, rows[0])
	assert.Equal(t, "i-1", rows[1][0])
	assert.Equal(t, "2026-05-04T03:02:01Z", rows[1][1])
	assert.Equal(t, "punishment", rows[1][2])
	assert.Equal(t, "C1, C3", rows[1][8])
	assert.Equal(t, "s-1", rows[1][9])
	assert.Equal(t, "TRUE", rows[2][6])
	assert.Len(t, []rune(rows[2][3]), maxCellRunes)
}
