// Package tui is the terminal front end. It drives the tab service in
// process and follows its events through the event bus.
package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pkt.systems/codeforge/core"
	"pkt.systems/codeforge/internal/eventbus"
	"pkt.systems/codeforge/schema"
)

const (
	inputHeight   = 4
	chromeHeight  = 6
	defaultWidth  = 100
	defaultHeight = 30
)

// Options configures the terminal UI.
type Options struct {
	Workspace  schema.WorkspaceID
	EntityName string
	// Copy writes to the clipboard. Defaults to the system clipboard.
	Copy func(string) error
}

type busEventMsg struct{ event eventbus.Event }

type busClosedMsg struct{}

type tabsMsg struct{ tabs schema.ListTabsResponse }

type noticeMsg struct {
	level   schema.NoticeLevel
	message string
}

// Model is the bubbletea model for the terminal UI.
type Model struct {
	ctx       context.Context
	service   core.Service
	events    <-chan eventbus.Event
	workspace schema.WorkspaceID
	entity    string
	copy      func(string) error

	input    textarea.Model
	viewport viewport.Model
	spinner  spinner.Model

	tabs       []schema.TabSnapshot
	active     schema.TabID
	fileIndex  int
	transcript bool
	notice     noticeMsg

	width  int
	height int
}

// New builds a Model. events may be nil when no bus is attached; the model
// then refreshes only after its own actions.
func New(ctx context.Context, service core.Service, events <-chan eventbus.Event, opts Options) Model {
	if ctx == nil {
		ctx = context.Background()
	}
	workspace := workspaceOrDefault(opts.Workspace)
	copyFn := opts.Copy
	if copyFn == nil {
		copyFn = clipboard.WriteAll
	}

	ta := textarea.New()
	ta.Placeholder = "Describe fields (e.g. id:Long,name:String). ctrl+s generates, ctrl+o uploads the path typed here."
	ta.Focus()
	ta.CharLimit = 8000
	ta.SetHeight(inputHeight - 1)
	ta.ShowLineNumbers = false
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	m := Model{
		ctx:       ctx,
		service:   service,
		events:    events,
		workspace: workspace,
		entity:    opts.EntityName,
		copy:      copyFn,
		input:     ta,
		viewport:  viewport.New(defaultWidth, defaultHeight-inputHeight-chromeHeight),
		spinner:   sp,
	}
	m.resize(defaultWidth, defaultHeight)
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick, m.listen(), m.refresh())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		m.syncViewport()
		return m, nil

	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			m.syncViewport()
			return m, cmd
		}

	case busEventMsg:
		if msg.event.Type == eventbus.EventNotice {
			m.notice = noticeMsg{level: msg.event.Notice.Level, message: msg.event.Notice.Message}
			return m, m.listen()
		}
		return m, tea.Batch(m.listen(), m.refresh())

	case busClosedMsg:
		m.events = nil
		return m, nil

	case tabsMsg:
		m.applyTabs(msg.tabs)
		m.syncViewport()
		return m, nil

	case noticeMsg:
		m.notice = msg
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	if _, isKey := msg.(tea.KeyMsg); !isKey {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func workspaceOrDefault(workspace schema.WorkspaceID) schema.WorkspaceID {
	if strings.TrimSpace(string(workspace)) == "" {
		return "local"
	}
	return workspace
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return tea.Quit, true
	case "ctrl+s":
		fields := m.input.Value()
		if strings.TrimSpace(fields) == "" {
			m.notice = noticeMsg{level: schema.NoticeError, message: "enter a field description first"}
			return nil, true
		}
		m.input.Reset()
		return m.generate(fields), true
	case "ctrl+o":
		path := strings.TrimSpace(m.input.Value())
		if path == "" {
			m.notice = noticeMsg{level: schema.NoticeError, message: "type a file path to upload"}
			return nil, true
		}
		m.input.Reset()
		return m.upload(path), true
	case "ctrl+right":
		return m.activateOffset(1), true
	case "ctrl+left":
		return m.activateOffset(-1), true
	case "ctrl+x":
		if m.active == "" {
			return nil, true
		}
		return m.closeTab(m.active), true
	case "ctrl+down":
		m.moveFile(1)
		return nil, true
	case "ctrl+up":
		m.moveFile(-1)
		return nil, true
	case "ctrl+t":
		m.transcript = !m.transcript
		return nil, true
	case "ctrl+y":
		m.copyActiveFile()
		return nil, true
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return cmd, true
	}
	return nil, false
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("codeforge"))
	b.WriteString(faintStyle.Render("  workspace " + string(m.workspace)))
	b.WriteString("\n")
	b.WriteString(m.renderTabBar())
	b.WriteString("\n")
	b.WriteString(m.renderFileBar())
	b.WriteString("\n")
	b.WriteString(paneStyle.Render(m.viewport.View()))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	return b.String()
}

func (m *Model) resize(width, height int) {
	if width <= 0 {
		width = defaultWidth
	}
	if height <= 0 {
		height = defaultHeight
	}
	m.width = width
	m.height = height
	m.input.SetWidth(width)
	m.viewport.Width = max(width-2, 10)
	m.viewport.Height = max(height-inputHeight-chromeHeight, 3)
}

func (m *Model) applyTabs(resp schema.ListTabsResponse) {
	previous := m.active
	m.tabs = resp.Tabs
	m.active = resp.ActiveTab
	if m.active != previous {
		m.fileIndex = 0
	}
	if tab, ok := m.activeTab(); ok && m.fileIndex >= len(tab.Files) {
		m.fileIndex = max(len(tab.Files)-1, 0)
	}
}

func (m Model) activeTab() (schema.TabSnapshot, bool) {
	for _, tab := range m.tabs {
		if tab.ID == m.active {
			return tab, true
		}
	}
	return schema.TabSnapshot{}, false
}

func (m Model) activeFile() (schema.File, bool) {
	tab, ok := m.activeTab()
	if !ok || len(tab.Files) == 0 {
		return schema.File{}, false
	}
	index := min(max(m.fileIndex, 0), len(tab.Files)-1)
	return tab.Files[index], true
}

func (m *Model) moveFile(delta int) {
	tab, ok := m.activeTab()
	if !ok || len(tab.Files) == 0 {
		return
	}
	n := len(tab.Files)
	m.fileIndex = ((m.fileIndex+delta)%n + n) % n
}

func (m *Model) copyActiveFile() {
	file, ok := m.activeFile()
	if !ok {
		m.notice = noticeMsg{level: schema.NoticeError, message: "nothing to copy"}
		return
	}
	if err := m.copy(file.Content); err != nil {
		m.notice = noticeMsg{level: schema.NoticeError, message: "copy failed: " + err.Error()}
		return
	}
	m.notice = noticeMsg{level: schema.NoticeInfo, message: "copied " + string(file.Name)}
}

func (m *Model) syncViewport() {
	tab, ok := m.activeTab()
	if !ok {
		m.viewport.SetContent(faintStyle.Render("No tabs yet. Describe some fields and press ctrl+s."))
		return
	}
	if m.transcript {
		m.viewport.SetContent(tab.Transcript)
		return
	}
	file, ok := m.activeFile()
	if !ok {
		if tab.Status == schema.TabStatusBuilding {
			m.viewport.SetContent(faintStyle.Render("Waiting for the first fragment..."))
		} else {
			m.viewport.SetContent(faintStyle.Render("No files were produced."))
		}
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(file.Content)
	if tab.Status == schema.TabStatusBuilding && atBottom {
		m.viewport.GotoBottom()
	}
}

func (m Model) renderTabBar() string {
	if len(m.tabs) == 0 {
		return faintStyle.Render("(no tabs)")
	}
	parts := make([]string, 0, len(m.tabs))
	for _, tab := range m.tabs {
		label := m.statusMarker(tab) + " " + string(tab.Title)
		if tab.ID == m.active {
			parts = append(parts, activeTabStyle.Render(label))
		} else {
			parts = append(parts, inactiveTabStyle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m Model) renderFileBar() string {
	tab, ok := m.activeTab()
	if !ok {
		return ""
	}
	if m.transcript {
		return fileStyle.Render("transcript")
	}
	if len(tab.Files) == 0 {
		return fileStyle.Render("(no files)")
	}
	parts := make([]string, 0, len(tab.Files))
	for i, file := range tab.Files {
		label := fmt.Sprintf("%s [%s]", file.Name, file.Type)
		if i == m.fileIndex {
			parts = append(parts, activeFileStyle.Render(label))
		} else {
			parts = append(parts, fileStyle.Render(label))
		}
	}
	return strings.Join(parts, "  ")
}

func (m Model) renderStatus() string {
	var status string
	if tab, ok := m.activeTab(); ok && tab.Outcome == schema.TabOutcomeFailed && tab.Error != "" {
		status = errorStyle.Render("stream failed: " + tab.Error)
	}
	if m.notice.message != "" {
		if m.notice.level == schema.NoticeError {
			status = errorStyle.Render(m.notice.message)
		} else {
			status = successStyle.Render(m.notice.message)
		}
	}
	help := faintStyle.Render("ctrl+s generate · ctrl+o upload · ctrl+←/→ tabs · ctrl+↑/↓ files · ctrl+t transcript · ctrl+y copy · ctrl+x close · esc quit")
	if status == "" {
		return help
	}
	return status + "\n" + help
}

func (m Model) statusMarker(tab schema.TabSnapshot) string {
	if tab.Status == schema.TabStatusBuilding {
		return m.spinner.View()
	}
	switch tab.Outcome {
	case schema.TabOutcomeFailed:
		return "✗"
	case schema.TabOutcomeCanceled:
		return "⊘"
	default:
		return "✓"
	}
}

func (m Model) listen() tea.Cmd {
	events := m.events
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return busClosedMsg{}
		}
		return busEventMsg{event: event}
	}
}

func (m Model) refresh() tea.Cmd {
	service, ctx, workspace := m.service, m.ctx, m.workspace
	return func() tea.Msg {
		resp, err := service.ListTabs(ctx, schema.ListTabsRequest{Workspace: workspace})
		if err != nil {
			return noticeMsg{level: schema.NoticeError, message: err.Error()}
		}
		return tabsMsg{tabs: resp}
	}
}

// afterAction refreshes when no bus delivers the resulting events.
func (m Model) afterAction(err error) tea.Msg {
	if err != nil {
		return noticeMsg{level: schema.NoticeError, message: err.Error()}
	}
	if m.events == nil {
		return m.refresh()()
	}
	return nil
}

func (m Model) generate(fields string) tea.Cmd {
	return func() tea.Msg {
		_, err := m.service.Generate(m.ctx, schema.GenerateRequest{Workspace: m.workspace, Fields: fields, EntityName: m.entity})
		return m.afterAction(err)
	}
}

func (m Model) upload(path string) tea.Cmd {
	return func() tea.Msg {
		f, err := os.Open(path)
		if err != nil {
			return noticeMsg{level: schema.NoticeError, message: "open upload: " + err.Error()}
		}
		defer f.Close()
		_, err = m.service.Upload(m.ctx, schema.UploadRequest{Workspace: m.workspace, FileName: filepath.Base(path), Body: f})
		if err == nil {
			if m.events == nil {
				return noticeMsg{level: schema.NoticeInfo, message: "upload ok: " + filepath.Base(path)}
			}
			return nil
		}
		// Backend failures also arrive as notices on the bus.
		var validation *schema.ValidationError
		if m.events == nil || errors.As(err, &validation) || errors.Is(err, schema.ErrBackendUnavailable) {
			return noticeMsg{level: schema.NoticeError, message: err.Error()}
		}
		return nil
	}
}

func (m Model) closeTab(id schema.TabID) tea.Cmd {
	return func() tea.Msg {
		_, err := m.service.CloseTab(m.ctx, schema.CloseTabRequest{Workspace: m.workspace, TabID: id})
		return m.afterAction(err)
	}
}

func (m Model) activateOffset(delta int) tea.Cmd {
	if len(m.tabs) == 0 {
		return nil
	}
	index := 0
	for i, tab := range m.tabs {
		if tab.ID == m.active {
			index = i
			break
		}
	}
	n := len(m.tabs)
	target := m.tabs[((index+delta)%n+n)%n].ID
	if target == m.active {
		return nil
	}
	return func() tea.Msg {
		_, err := m.service.ActivateTab(m.ctx, schema.ActivateTabRequest{Workspace: m.workspace, TabID: target})
		return m.afterAction(err)
	}
}
