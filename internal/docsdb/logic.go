package docsdb

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

type Credentials struct {
	Login    string
	Password string
}

type Course struct {
	Abbrev string
	Number string
}

func (c Course) String() string {
	return c.Abbrev + " " + c.Number
}

type Term struct {
	Season string
	Year   string
}

func (t Term) String() string {
	return t.Season + " " + t.Year
}

// Roster maps a CCID to the numeric student id used by DoC's DB.
type Roster map[string]int

// Scores maps a numeric student id to the score that should be entered.
type Scores map[int]string

type MarkRow struct {
	Index     int
	StudentID int
	Mark      string
	OldMark   string
	EAFlag    string
	OldEAFlag string
}

type Marksheet struct {
	Hidden map[string]string
	Rows   map[int]*MarkRow
}

type Change struct {
	StudentID int
	Mark      string
	OldMark   string
}

type ErrorCode int

const (
	ErrNone ErrorCode = iota
	ErrInvalidCredentials
	ErrNetworkIssue
	ErrParsingError
	ErrUnknownStudent
	ErrNotConfirmed
	ErrInvalidInput
)

var (
	ErrLogin       = errors.New("cannot login to DoC's DB")
	ErrConnection  = errors.New("connection failed")
	ErrParse       = errors.New("unexpected page layout")
	ErrUnknownCCID = errors.New("student is not registered in the course")
	ErrUnconfirmed = errors.New("submission was not confirmed by DoC's DB")
)

func CodeOf(err error) ErrorCode {
	switch {
	case err == nil:
		return ErrNone
	case errors.Is(err, ErrLogin):
		return ErrInvalidCredentials
	case errors.Is(err, ErrConnection):
		return ErrNetworkIssue
	case errors.Is(err, ErrUnknownCCID):
		return ErrUnknownStudent
	case errors.Is(err, ErrUnconfirmed):
		return ErrNotConfirmed
	case errors.Is(err, ErrParse):
		return ErrParsingError
	default:
		// flags, config, spreadsheet contents
		return ErrInvalidInput
	}
}

// ParseCourse accepts the form shown in DoC's DB menus, e.g. "CMPUT 174".
func ParseCourse(s string) (Course, error) {
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return Course{}, fmt.Errorf("course %q must look like \"CMPUT 174\"", s)
	}
	return Course{Abbrev: strings.ToUpper(parts[0]), Number: parts[1]}, nil
}

// ParseTerm accepts "Fall 2019"; the season is title-cased.
func ParseTerm(s string) (Term, error) {
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return Term{}, fmt.Errorf("term %q must look like \"Fall 2019\"", s)
	}
	for _, r := range parts[1] {
		if !unicode.IsDigit(r) {
			return Term{}, fmt.Errorf("term %q has a non-numeric year", s)
		}
	}

	season := strings.ToLower(parts[0])
	season = strings.ToUpper(season[:1]) + season[1:]
	return Term{Season: season, Year: parts[1]}, nil
}

// Overlay replaces the mark of every row that has a new score. Rows for
// students without a score, and scores for students without a row, are left
// alone.
func (m *Marksheet) Overlay(scores Scores) []Change {
	var changes []Change
	for id, score := range scores {
		row, ok := m.Rows[id]
		if !ok {
			continue
		}
		row.Mark = score
		changes = append(changes, Change{StudentID: id, Mark: score, OldMark: row.OldMark})
	}

	sort.Slice(changes, func(i, j int) bool {
		return changes[i].StudentID < changes[j].StudentID
	})
	return changes
}

// Missing lists the students that have a score but no row in the marksheet.
func (m *Marksheet) Missing(scores Scores) []int {
	var ids []int
	for id := range scores {
		if _, ok := m.Rows[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// SortedRows returns the rows in form order.
func (m *Marksheet) SortedRows() []*MarkRow {
	rows := make([]*MarkRow, 0, len(m.Rows))
	for _, row := range m.Rows {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Index < rows[j].Index
	})
	return rows
}

// Fields rebuilds the complete entersection3 form: the hidden globals plus the
// five per-student inputs keyed by the row index.
func (m *Marksheet) Fields() map[string]string {
	fields := make(map[string]string, len(m.Hidden)+5*len(m.Rows))
	for name, value := range m.Hidden {
		fields[name] = value
	}
	for _, row := range m.Rows {
		i := row.Index
		fields[fmt.Sprintf("id%d", i)] = fmt.Sprintf("%d", row.StudentID)
		fields[fmt.Sprintf("mark%d", i)] = row.Mark
		fields[fmt.Sprintf("oldmark%d", i)] = row.OldMark
		fields[fmt.Sprintf("eaflag%d", i)] = row.EAFlag
		fields[fmt.Sprintf("oldeaflag%d", i)] = row.OldEAFlag
	}
	return fields
}
