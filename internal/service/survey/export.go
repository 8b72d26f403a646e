package survey

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const summarySheet = "Summary"

// WriteExcel renders r as a workbook: one summary sheet plus one sheet per
// question.
func (r Report) WriteExcel(w io.Writer) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	rows := [][]any{
		{"Survey", r.Title},
		{"Public ID", r.PublicID},
		{"Total responses", r.TotalResponses},
		{"Completion rate", fmt.Sprintf("%.1f%%", r.CompletionRate*100)},
		{},
		{"#", "Question", "Type", "Responses", "Insight"},
	}
	for i, q := range r.Questions {
		rows = append(rows, []any{i + 1, q.Text, string(q.Type), q.ResponseCount, q.Insight})
	}
	if err := writeRows(f, summarySheet, rows); err != nil {
		return err
	}

	for i, q := range r.Questions {
		sheet := questionSheetName(i, q.Text)
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("create sheet %q: %w", sheet, err)
		}
		if err := writeRows(f, sheet, questionRows(q)); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func questionRows(q QuestionReport) [][]any {
	rows := [][]any{
		{"Question", q.Text},
		{"Type", string(q.Type)},
		{"Responses", q.ResponseCount},
		{},
	}
	if q.Type.HasOptions() {
		rows = append(rows, []any{"Option", "Count"})
		for _, oc := range q.OptionCounts {
			rows = append(rows, []any{oc.Text, oc.Count})
		}
		return rows
	}

	rows = append(rows, []any{"Responses"})
	for _, text := range q.TextResponses {
		rows = append(rows, []any{text})
	}
	if len(q.CommonWords) > 0 {
		rows = append(rows, []any{}, []any{"Word", "Count"})
		for _, wc := range q.CommonWords {
			rows = append(rows, []any{wc.Word, wc.Count})
		}
	}
	return rows
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

// questionSheetName yields "Q1 <text>" trimmed to the 31 character sheet
// name limit, without characters sheet names may not contain.
func questionSheetName(index int, text string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']', '\'':
			return -1
		}
		return r
	}, text)

	name := []rune(strings.TrimSpace(fmt.Sprintf("Q%d %s", index+1, cleaned)))
	if len(name) > 31 {
		name = name[:31]
	}
	return strings.TrimSpace(string(name))
}
