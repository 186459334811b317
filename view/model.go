// Package view renders the live record collection in the terminal.
package view

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/devya-app/devya/domain"
	"github.com/devya-app/devya/rawhttp"
)

// RecordsMsg carries a new snapshot of the record collection.
type RecordsMsg domain.Snapshot

// StatusMsg carries a new proxy status.
type StatusMsg domain.ProxyStatus

// NoticeMsg is shown in the footer until the next key press.
type NoticeMsg string

// headerHeight covers the title line and the table header with its border.
const headerHeight = 4

// Model is the bubbletea model of the record view
type Model struct {
	table    table.Model
	detail   viewport.Model
	snapshot domain.Snapshot
	visible  []domain.CapturedRecord
	status   domain.ProxyStatus

	filter func([]domain.CapturedRecord) []domain.CapturedRecord
	reset  func() error

	showDetail bool
	notice     string
	width      int
	height     int
	quitting   bool
}

// WithFilter limits the rows to the records filter keeps.
func WithFilter(filter func([]domain.CapturedRecord) []domain.CapturedRecord) func(*Model) {
	return func(m *Model) {
		m.filter = filter
	}
}

// WithReset binds the "r" key to reset.
func WithReset(reset func() error) func(*Model) {
	return func(m *Model) {
		m.reset = reset
	}
}

// WithStatus sets the initial proxy status.
func WithStatus(status domain.ProxyStatus) func(*Model) {
	return func(m *Model) {
		m.status = status
	}
}

// New creates an empty record view
func New(options ...func(*Model)) Model {
	t := table.New(
		table.WithColumns(columns(80)),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(mutedColor).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(primaryColor)
	t.SetStyles(styles)

	m := Model{
		table:  t,
		detail: viewport.New(80, 10),
	}
	for _, option := range options {
		option(&m)
	}
	return m
}

func columns(width int) []table.Column {
	// fixed columns: #, ID, Parts and the cell padding
	host := 24
	target := width - 6 - 14 - host - 7 - 10
	if target < 20 {
		target = 20
	}
	return []table.Column{
		{Title: "#", Width: 6},
		{Title: "ID", Width: 14},
		{Title: "Host", Width: host},
		{Title: "Target", Width: target},
		{Title: "Parts", Width: 7},
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case RecordsMsg:
		m.snapshot = domain.Snapshot(msg)
		m.refresh()
		return m, nil

	case StatusMsg:
		m.status = domain.ProxyStatus(msg)
		return m, nil

	case NoticeMsg:
		m.notice = string(msg)
		return m, nil

	case tea.KeyMsg:
		m.notice = ""

		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "enter":
			m.showDetail = !m.showDetail
			m.layout()
			m.updateDetail()
			return m, nil

		case "esc":
			if m.showDetail {
				m.showDetail = false
				m.layout()
			}
			return m, nil

		case "r":
			if m.reset == nil {
				return m, nil
			}
			reset := m.reset
			return m, func() tea.Msg {
				if err := reset(); err != nil {
					return NoticeMsg(err.Error())
				}
				return NoticeMsg("records cleared")
			}
		}

		if m.showDetail {
			switch msg.String() {
			case "pgup", "pgdown", "ctrl+u", "ctrl+d":
				m.detail, cmd = m.detail.Update(msg)
				return m, cmd
			}
		}
		m.table, cmd = m.table.Update(msg)
		m.updateDetail()
		return m, cmd
	}

	return m, nil
}

// layout sizes the table and the detail pane to the window.
func (m *Model) layout() {
	if m.width == 0 || m.height == 0 {
		return
	}
	m.table.SetColumns(columns(m.width))
	m.table.SetWidth(m.width)

	available := max(m.height-headerHeight, 3)
	if !m.showDetail {
		m.table.SetHeight(available)
		return
	}
	tableHeight := max(available/3, 3)
	m.table.SetHeight(tableHeight)
	m.detail.Width = max(m.width-4, 10)
	m.detail.Height = max(available-tableHeight-2, 3)
}

// refresh rebuilds the rows from the snapshot, the cursor stays on the same row number.
func (m *Model) refresh() {
	records := m.snapshot.Records
	if m.filter != nil {
		records = m.filter(records)
	}
	m.visible = records

	rows := make([]table.Row, len(records))
	for i, record := range records {
		host, target := rawhttp.Target(record.Content)
		rows[i] = table.Row{
			strconv.Itoa(i + 1),
			record.ID,
			host,
			target,
			strconv.Itoa(strings.Count(record.Content, domain.RecordSeparator) + 1),
		}
	}
	m.table.SetRows(rows)
	if cursor := m.table.Cursor(); cursor >= len(rows) {
		m.table.SetCursor(max(len(rows)-1, 0))
	}
	m.updateDetail()
}

func (m *Model) updateDetail() {
	if !m.showDetail {
		return
	}
	record, ok := m.Selected()
	if !ok {
		m.detail.SetContent(mutedStyle.Render("no record selected"))
		return
	}

	var b strings.Builder
	for i, part := range rawhttp.PrettifyRecord(record.Content) {
		title := "request"
		if i > 0 {
			title = fmt.Sprintf("response %d", i)
		}
		b.WriteString(partHeaderStyle.Render(title))
		b.WriteString("\n")
		b.WriteString(part)
		b.WriteString("\n\n")
	}
	m.detail.SetContent(b.String())
}

// Selected returns the record under the cursor.
func (m Model) Selected() (domain.CapturedRecord, bool) {
	cursor := m.table.Cursor()
	if cursor < 0 || cursor >= len(m.visible) {
		return domain.CapturedRecord{}, false
	}
	return m.visible[cursor], true
}

// Visible returns the records shown in the table.
func (m Model) Visible() []domain.CapturedRecord {
	return m.visible
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.table.View())
	b.WriteString("\n")
	if m.showDetail {
		b.WriteString(detailStyle.Render(m.detail.View()))
		b.WriteString("\n")
	}
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	status := statusOffStyle.Render("○ proxy off")
	if m.status.RunningCount > 0 {
		label := "● proxy on"
		if m.status.Port != nil {
			label = fmt.Sprintf("● proxy on :%d", *m.status.Port)
		}
		status = statusOnStyle.Render(label)
	}

	counts := fmt.Sprintf("%d/%d records", len(m.visible), len(m.snapshot.Records))
	if m.snapshot.Pending > 0 {
		counts += fmt.Sprintf(", %d waiting", m.snapshot.Pending)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		titleStyle.Render("devya"), " ", status, "  ", mutedStyle.Render(counts))
}

func (m Model) renderFooter() string {
	help := mutedStyle.Render("↑/↓ select • enter details • r clear • q quit")
	if m.notice == "" {
		return help
	}
	return help + "  " + noticeStyle.Render(m.notice)
}
