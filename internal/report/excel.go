package report

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"
)

var header = []string{"Kỳ", "Nhóm", "Có mặt", "Vắng", "Tiền mặt", "Chuyển khoản", "Tổng thu", "Ghi danh"}

// ExportXLSX пишет периоды в книгу с одним листом sheet.
func ExportXLSX(w io.Writer, sheet string, buckets []Bucket) error {
	sheet = sheetName(sheet)
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for c, h := range header {
		cell := fmt.Sprintf("%s1", columnName(c+1))
		if err := f.SetCellStr(sheet, cell, h); err != nil {
			return fmt.Errorf("set cell %s: %w", cell, err)
		}
	}
	for i, b := range buckets {
		row := i + 2
		vals := []any{b.Label, b.Group, b.Present, b.Absent, b.CashAmount, b.TransferAmount, b.Collected(), b.Enrollments}
		for c, v := range vals {
			cell := fmt.Sprintf("%s%d", columnName(c+1), row)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("set cell %s: %w", cell, err)
			}
		}
	}
	if err := ApplyDefaultExcelFormatting(f, sheet); err != nil {
		return err
	}
	_, err := f.WriteTo(w)
	return err
}

// ApplyDefaultExcelFormatting: жирный заголовок, автофильтр по первой строке,
// примерная ширина колонок по содержимому.
func ApplyDefaultExcelFormatting(f *excelize.File, sheet string) error {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	cols := 0
	for _, r := range rows {
		if len(r) > cols {
			cols = len(r)
		}
	}
	if cols == 0 {
		return nil
	}

	last := columnName(cols)
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetCellStyle(sheet, "A1", last+"1", style)
	}
	_ = f.AutoFilter(sheet, "A1:"+last+"1", nil)

	widths := make([]float64, cols)
	for c := range widths {
		widths[c] = 10
	}
	for rIdx, row := range rows {
		for cIdx := 0; cIdx < cols && cIdx < len(row); cIdx++ {
			w := float64(len([]rune(row[cIdx]))) * 1.1
			if rIdx == 0 {
				w += 1.5
			}
			if w > 60 {
				w = 60
			}
			if w > widths[cIdx] {
				widths[cIdx] = w
			}
		}
	}
	for i, w := range widths {
		col := columnName(i + 1)
		_ = f.SetColWidth(sheet, col, col, w)
	}
	return nil
}

// 1 -> A; 27 -> AA
func columnName(n int) string {
	s := ""
	for n > 0 {
		n--
		s = string(rune('A'+(n%26))) + s
		n /= 26
	}
	return s
}

var invalidSheetRe = regexp.MustCompile(`[\\/:*?\[\]]+`)

// имена листов Excel: без \/:*?[] и не длиннее 31 символа
func sheetName(s string) string {
	s = strings.TrimSpace(invalidSheetRe.ReplaceAllString(s, "_"))
	if s == "" {
		return "Report"
	}
	if r := []rune(s); len(r) > 31 {
		s = string(r[:31])
	}
	return s
}
