package main

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/feelsunbreeze/docsdb_marks/internal/docsdb"
)

const (
	WHITE      = lipgloss.Color("#FFFFFF")
	BLUE       = lipgloss.Color("#0043a8")
	GREY       = lipgloss.Color("#626262")
	GREEN      = lipgloss.Color("#50FA7B")
	RED        = lipgloss.Color("#FF5555")
	YELLOW     = lipgloss.Color("#F1FA8C")
	LIGHT_BLUE = lipgloss.Color("#8BE9FD")
)

var errPromptCancelled = errors.New("password prompt cancelled")

type passwordModel struct {
	label     string
	input     textinput.Model
	submitted bool
	cancelled bool
}

func newPasswordModel(label string) passwordModel {
	ti := textinput.New()
	ti.Placeholder = "password"
	ti.EchoMode = textinput.EchoPassword
	ti.EchoCharacter = '*'
	ti.Width = 30
	ti.Focus()

	return passwordModel{label: label, input: ti}
}

func (m passwordModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m passwordModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "ctrl+c", "esc":
			m.cancelled = true
			return m, tea.Quit
		case "enter":
			m.submitted = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m passwordModel) View() string {
	if m.submitted || m.cancelled {
		return ""
	}

	labelStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(WHITE)

	helpStyle := lipgloss.NewStyle().
		Foreground(GREY)

	return lipgloss.JoinVertical(lipgloss.Left,
		labelStyle.Render(m.label),
		m.input.View(),
		helpStyle.Render("• Enter: Continue • Esc/Ctrl+C: Quit"),
	) + "\n"
}

func promptPassword(label string) (string, error) {
	final, err := tea.NewProgram(newPasswordModel(label)).Run()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	m := final.(passwordModel)
	if m.cancelled {
		return "", errPromptCancelled
	}
	return m.input.Value(), nil
}

func renderBanner(version string) string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(LIGHT_BLUE)

	noteStyle := lipgloss.NewStyle().
		Foreground(GREY)

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("DoC's DB marks uploader "+version),
		noteStyle.Render("Reads marks from a spreadsheet and enters them in DoC's DB."),
		noteStyle.Render("Distributed WITHOUT ANY WARRANTY under the GNU GPL-3.0 license."),
	) + "\n"
}

func renderDryRunNotice() string {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(YELLOW).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(YELLOW).
		Padding(0, 1)

	return style.Render("NO CHANGES WILL BE SUBMITTED TO THE SERVER!\n" +
		"Review the data below, then re-run with the same arguments plus -s.")
}

func renderNothingSubmitted() string {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(YELLOW)

	return style.Render("NOTHING HAS BEEN SUBMITTED!\n" +
		"Review and confirm the data above, then re-run with the same arguments plus -s.")
}

func renderSubmitted(rows int) string {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(GREEN)

	return style.Render(fmt.Sprintf("✅ Marks for %d students entered in DoC's DB.", rows))
}

func renderError(err error) string {
	statusStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(RED)

	detailStyle := lipgloss.NewStyle().
		Foreground(GREY)

	var statusText string
	switch docsdb.CodeOf(err) {
	case docsdb.ErrInvalidCredentials:
		statusText = "❌ Cannot login to DoC's DB. Check your username and password."
	case docsdb.ErrNetworkIssue:
		statusText = "🌐 Connection failed. Check your network and try again."
	case docsdb.ErrUnknownStudent:
		statusText = "❓ The spreadsheet lists a student who is not registered in the course."
	case docsdb.ErrNotConfirmed:
		statusText = "❓ An error has occurred. Please try again or contact the developer."
	case docsdb.ErrParsingError:
		statusText = "❓ DoC's DB returned a page in an unexpected layout."
	default:
		// the message already says what to fix
		return statusStyle.Render(err.Error())
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		statusStyle.Render(statusText),
		detailStyle.Render(err.Error()),
	)
}

func renderTitle(title string) string {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(LIGHT_BLUE).
		MarginTop(1)

	return style.Render(title)
}

func staticTable(columns []table.Column, rows []table.Row) string {
	tbl := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(false),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(BLUE).
		BorderBottom(true).
		Bold(true)
	// nothing is selectable in a printed table
	s.Selected = lipgloss.NewStyle()
	tbl.SetStyles(s)
	tbl.SetHeight(len(rows) + 2)

	return tbl.View()
}

func renderChanges(changes []docsdb.Change) string {
	if len(changes) == 0 {
		return renderTitle("Processed marks") + "\n" +
			lipgloss.NewStyle().Foreground(YELLOW).Render("No marks to update.")
	}

	columns := []table.Column{
		{Title: "#", Width: 4},
		{Title: "Student", Width: 10},
		{Title: "New mark", Width: 10},
		{Title: "Old mark", Width: 10},
	}

	var rows []table.Row
	for i, c := range changes {
		rows = append(rows, table.Row{
			strconv.Itoa(i + 1),
			strconv.Itoa(c.StudentID),
			c.Mark,
			c.OldMark,
		})
	}

	return renderTitle("Processed marks") + "\n" + staticTable(columns, rows)
}

func renderDump(sheet *docsdb.Marksheet) string {
	columns := []table.Column{
		{Title: "#", Width: 4},
		{Title: "Student", Width: 10},
		{Title: "Mark", Width: 8},
		{Title: "Old mark", Width: 8},
		{Title: "EA", Width: 4},
		{Title: "Old EA", Width: 6},
	}

	var rows []table.Row
	for _, row := range sheet.SortedRows() {
		rows = append(rows, table.Row{
			strconv.Itoa(row.Index + 1),
			strconv.Itoa(row.StudentID),
			row.Mark,
			row.OldMark,
			row.EAFlag,
			row.OldEAFlag,
		})
	}

	return renderTitle("Submission full dump") + "\n" + staticTable(columns, rows)
}

func renderRoster(roster docsdb.Roster) string {
	ccids := make([]string, 0, len(roster))
	for ccid := range roster {
		ccids = append(ccids, ccid)
	}
	sort.Strings(ccids)

	columns := []table.Column{
		{Title: "CCID", Width: 16},
		{Title: "Student", Width: 10},
	}
	var rows []table.Row
	for _, ccid := range ccids {
		rows = append(rows, table.Row{ccid, strconv.Itoa(roster[ccid])})
	}

	return renderTitle(fmt.Sprintf("Class list (%d students)", len(roster))) + "\n" + staticTable(columns, rows)
}
