// Package export writes the interaction log to spreadsheets for review.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kirillkom/statute-rag/internal/core/domain"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Interactions"

var headers = []string{"ID", "Created At", "Intent", "Question", "Answer", "Model", "Degraded", "Duration (ms)", "Chunks", "Session"}

// excel caps a cell at 32767 characters
const maxCellRunes = 32000

// WriteXLSX renders interactions as one sheet with a frozen header row.
func WriteXLSX(w io.Writer, interactions []domain.Interaction) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	for col, title := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, title); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetRowStyle(sheetName, 1, 1, style); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, in := range interactions {
		row := []any{
			in.ID,
			in.CreatedAt.UTC().Format(time.RFC3339),
			string(in.Intent),
			truncate(in.Question),
			truncate(in.Answer),
			in.Model,
			in.Degraded,
			in.DurationMS,
			strings.Join(in.ChunkIDs, ", "),
			in.SessionID,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}
	if err := f.SetColWidth(sheetName, "D", "E", 60); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxCellRunes {
		return s
	}
	return string(r[:maxCellRunes])
}
