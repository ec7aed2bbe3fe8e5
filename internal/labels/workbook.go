package labels

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrWorkbookLocked means the workbook exists but could not be written, usually because
// it is open in a spreadsheet application.
var ErrWorkbookLocked = errors.New("workbook is locked, close it before saving new entries")

// LoadSpareParts reads the Material -> Material Description table from the first sheet.
// A missing file yields an empty table.
func LoadSpareParts(path string) (map[string]string, error) {
	parts := map[string]string{}
	if path == "" {
		return parts, nil
	}

	f, err := excelize.OpenFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return parts, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open spare parts %s: %w", path, err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("read spare parts: %w", err)
	}
	if len(rows) == 0 {
		return parts, nil
	}

	codeIdx, descIdx := -1, -1
	for i, h := range rows[0] {
		switch strings.TrimSpace(h) {
		case "Material":
			codeIdx = i
		case "Material Description":
			descIdx = i
		}
	}
	if codeIdx < 0 || descIdx < 0 {
		return nil, fmt.Errorf("spare parts sheet needs Material and Material Description columns")
	}

	for _, r := range rows[1:] {
		if codeIdx >= len(r) {
			continue
		}
		code := strings.TrimSpace(r[codeIdx])
		if code == "" {
			continue
		}
		desc := ""
		if descIdx < len(r) {
			desc = r[descIdx]
		}
		parts[code] = desc
	}
	return parts, nil
}

// AppendRow adds row at the end of the first sheet of the workbook at path.
// A new workbook is created with Columns as the header. Values follow the existing header.
func AppendRow(path string, row Row) error {
	f, err := excelize.OpenFile(path)
	created := false
	if errors.Is(err, os.ErrNotExist) {
		f = excelize.NewFile()
		created = true
	} else if err != nil {
		return fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("read workbook: %w", err)
	}

	header := Columns
	if created || len(rows) == 0 {
		if err := setRow(f, sheet, 1, Columns); err != nil {
			return err
		}
		rows = [][]string{Columns}
	} else {
		header = rows[0]
	}

	if err := setRow(f, sheet, len(rows)+1, row.Values(header)); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		if errors.Is(err, os.ErrPermission) {
			return fmt.Errorf("%w: %w", ErrWorkbookLocked, err)
		}
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, n int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return f.SetSheetRow(sheet, cell, &out)
}
