// Package ui implements an interactive terminal dashboard using bubbletea's
// Elm architecture.
//
// The TUI provides a two-view workflow over the state store:
//  1. [ItemListView] : Browse every tracked media item with its status
//  2. [DetailView] : Inspect one item's upload records and errors
//
// The [Model] implements bubbletea's standard Init/Update/View pattern.
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, r, q) with
// contextual help displayed via charmbracelet/bubbles/help.
package ui

import (
	"context"
	"fmt"
	"sort"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/mbx/internal/models"
	"github.com/desertthunder/mbx/internal/repositories"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ItemListView ViewState = iota
	DetailView
)

// Model represents the dashboard application state.
type Model struct {
	ctx      context.Context
	view     ViewState
	store    *repositories.Store
	width    int
	height   int
	itemList list.Model
	listSet  bool
	selected *models.MediaItem
	uploads  map[string]models.UploadRecord
	err      error
	help     help.Model
	keys     keyMap
}

// keyMap defines the [key.Binding] mapping for the dashboard.
type keyMap struct {
	up      key.Binding
	down    key.Binding
	enter   key.Binding
	back    key.Binding
	refresh key.Binding
	quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		enter:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "details")),
		back:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.enter},
		{k.back, k.refresh, k.quit},
	}
}

var _ list.Item = mediaListItem{}

// mediaListItem wraps [models.MediaItem] to implement [list.Item].
type mediaListItem struct {
	item *models.MediaItem
}

func (i mediaListItem) FilterValue() string { return i.item.URL }
func (i mediaListItem) Title() string {
	if i.item.Title != "" {
		return i.item.Title
	}
	return i.item.URL
}
func (i mediaListItem) Description() string {
	desc := statusStyle(i.item.Status).Render(i.item.Status.String())
	if i.item.RetryCount > 0 {
		desc = fmt.Sprintf("%s • %d retries", desc, i.item.RetryCount)
	}
	return desc
}

type itemsLoadedMsg struct {
	items []*models.MediaItem
	err   error
}

type detailLoadedMsg struct {
	item    *models.MediaItem
	uploads map[string]models.UploadRecord
	err     error
}

// NewModel creates a dashboard model over the given store.
func NewModel(ctx context.Context, store *repositories.Store) *Model {
	return &Model{
		ctx:   ctx,
		view:  ItemListView,
		store: store,
		help:  help.New(),
		keys:  newKeyMap(),
	}
}

// Init loads the item list from the store.
func (m *Model) Init() tea.Cmd {
	return m.loadItems()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.listSet {
			m.itemList.SetSize(msg.Width-4, msg.Height-8)
		}
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case ItemListView:
			return m.handleListKeys(msg)
		case DetailView:
			return m.handleDetailKeys(msg)
		}

	case itemsLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		items := make([]list.Item, len(msg.items))
		for i, item := range msg.items {
			items[i] = mediaListItem{item: item}
		}
		m.itemList = list.New(items, list.NewDefaultDelegate(), 0, 0)
		m.itemList.Title = "Tracked Media"
		m.itemList.SetSize(m.width-4, m.height-8)
		m.listSet = true
		return m, nil

	case detailLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.view = ItemListView
			return m, nil
		}
		m.selected = msg.item
		m.uploads = msg.uploads
		m.view = DetailView
		return m, nil
	}

	if m.listSet && m.view == ItemListView {
		var cmd tea.Cmd
		m.itemList, cmd = m.itemList.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case ItemListView:
		return m.renderList()
	case DetailView:
		return m.renderDetail()
	default:
		return ""
	}
}

func (m *Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "r":
		return m, m.loadItems()
	case "enter":
		if selected := m.itemList.SelectedItem(); selected != nil {
			if row, ok := selected.(mediaListItem); ok {
				return m, m.loadDetail(row.item.URL)
			}
		}
	}

	var cmd tea.Cmd
	m.itemList, cmd = m.itemList.Update(msg)
	return m, cmd
}

func (m *Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.view = ItemListView
		m.selected = nil
		m.uploads = nil
		return m, nil
	}
	return m, nil
}

func (m *Model) loadItems() tea.Cmd {
	return func() tea.Msg {
		items, err := m.store.Media.ListAll()
		return itemsLoadedMsg{items: items, err: err}
	}
}

func (m *Model) loadDetail(url string) tea.Cmd {
	return func() tea.Msg {
		item, uploads, err := m.store.Get(url)
		return detailLoadedMsg{item: item, uploads: uploads, err: err}
	}
}

func (m *Model) renderList() string {
	if !m.listSet {
		return "Loading..."
	}
	helpKeys := []key.Binding{m.keys.enter, m.keys.refresh, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n\n%s", m.itemList.View(), helpView)
}

func (m *Model) renderDetail() string {
	item := m.selected
	if item == nil {
		return ""
	}

	name := item.Title
	if name == "" {
		name = item.URL
	}
	title := styles.title.Render(name)

	info := fmt.Sprintf("URL: %s\nStatus: %s\nRetries: %d\n",
		item.URL, statusStyle(item.Status).Render(item.Status.String()), item.RetryCount)
	if item.LocalPath != "" {
		info += fmt.Sprintf("Local file: %s\n", item.LocalPath)
	}
	if item.ErrorMessage != "" {
		info += fmt.Sprintf("Last error: %s\n", styles.err.Render(item.ErrorMessage))
	}

	var uploads string
	if len(m.uploads) > 0 {
		uploads = "\nUploads:\n"
		targets := make([]string, 0, len(m.uploads))
		for target := range m.uploads {
			targets = append(targets, target)
		}
		sort.Strings(targets)
		for _, target := range targets {
			record := m.uploads[target]
			line := fmt.Sprintf("  %s: %s", target, record.Status)
			if record.UploadedID != "" {
				line += fmt.Sprintf(" (%s)", record.UploadedID)
			}
			if record.Succeeded() {
				line = styles.ok.Render(line)
			}
			uploads += line + "\n"
		}
	}

	helpKeys := []key.Binding{m.keys.back, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s\n%s%s\n%s", title, info, uploads, helpView)
}
