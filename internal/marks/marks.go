// Package marks turns a spreadsheet of CCIDs and scores into the numeric
// student ids DoC's DB understands.
package marks

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/feelsunbreeze/docsdb_marks/internal/docsdb"
	"github.com/xuri/excelize/v2"
)

const (
	DefaultCCIDColumn  = "CCID"
	DefaultScoreColumn = "Score"
)

type Columns struct {
	CCID  string
	Score string
}

func (c Columns) withDefaults() Columns {
	if c.CCID == "" {
		c.CCID = DefaultCCIDColumn
	}
	if c.Score == "" {
		c.Score = DefaultScoreColumn
	}
	return c
}

// Load reads the spreadsheet at path and resolves every row through roster.
// The first row is the header. A CCID missing from the roster is an error.
func Load(path string, roster docsdb.Roster, cols Columns) (docsdb.Scores, error) {
	rows, err := readRows(path)
	if err != nil {
		return nil, err
	}
	return Resolve(rows, roster, cols)
}

// Resolve does the work of Load on rows already split into cells.
func Resolve(rows [][]string, roster docsdb.Roster, cols Columns) (docsdb.Scores, error) {
	cols = cols.withDefaults()
	if len(rows) == 0 {
		return nil, errors.New("spreadsheet is empty")
	}

	header := rows[0]
	ccidAt, scoreAt := -1, -1
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		switch name {
		case cols.CCID:
			ccidAt = i
		case cols.Score:
			scoreAt = i
		}
	}
	if ccidAt == -1 {
		return nil, fmt.Errorf("column %q not found in spreadsheet header", cols.CCID)
	}
	if scoreAt == -1 {
		return nil, fmt.Errorf("column %q not found in spreadsheet header", cols.Score)
	}

	scores := docsdb.Scores{}
	for i, row := range rows[1:] {
		if isBlank(row) {
			continue
		}

		ccid := strings.TrimSpace(cell(row, ccidAt))
		id, ok := roster[ccid]
		if !ok {
			return nil, fmt.Errorf("%w: %q on spreadsheet row %d", docsdb.ErrUnknownCCID, ccid, i+2)
		}
		scores[id] = strings.TrimSpace(cell(row, scoreAt))
	}
	return scores, nil
}

func readRows(path string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return readWorkbook(path)
	case ".tsv", ".tab":
		return readDelimited(path, '\t')
	default:
		return readDelimited(path, ',')
	}
}

func readDelimited(path string, comma rune) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comma = comma
	reader.FieldsPerRecord = -1

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read spreadsheet: %w", err)
		}
		rows = append(rows, record)
	}
	return rows, nil
}

func readWorkbook(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open excel file: %w", err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, errors.New("excel file does not contain any sheets")
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows from sheet %s: %w", sheetName, err)
	}
	return rows, nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
