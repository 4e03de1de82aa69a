package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/justestif/go-castor/internal/catalog"
	"github.com/justestif/go-castor/internal/debounce"
	"github.com/justestif/go-castor/internal/playback"
	"github.com/justestif/go-castor/internal/search"
)

// Config holds the collaborators the terminal UI drives.
type Config struct {
	Pipeline  *search.Pipeline
	NewHandle func() playback.Handle
	Resolver  playback.Resolver
	Debounce  time.Duration
	Repeat    bool
	Logger    zerolog.Logger
}

type outcomeMsg search.Outcome

type sessionMsg playback.Session

type playErrMsg struct {
	trackID string
	err     error
}

// Model is the bubbletea model for the search and preview screen.
type Model struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger

	pipeline   *search.Pipeline
	results    *search.Results
	debouncer  *debounce.Debouncer
	controller *playback.Controller

	events    chan tea.Msg
	done      chan struct{}
	closeOnce sync.Once
	running   sync.WaitGroup

	input    textinput.Model
	list     list.Model
	help     help.Model
	keys     keyMap
	tracks   []catalog.Track
	sessions map[string]playback.Session
	repeat   bool
	status   string
	width    int
	height   int
}

// New creates a Model. Call Close once the program has exited.
func New(ctx context.Context, cfg Config) *Model {
	ctx, cancel := context.WithCancel(ctx)

	m := &Model{
		ctx:      ctx,
		cancel:   cancel,
		logger:   cfg.Logger,
		pipeline: cfg.Pipeline,
		results:  &search.Results{},
		events:   make(chan tea.Msg, 32),
		done:     make(chan struct{}),
		help:     help.New(),
		keys:     newKeyMap(),
		sessions: make(map[string]playback.Session),
		repeat:   cfg.Repeat,
	}

	m.debouncer = debounce.New(cfg.Debounce)
	m.controller = playback.New(cfg.NewHandle, cfg.Resolver,
		playback.WithLogger(cfg.Logger),
		playback.WithRepeat(cfg.Repeat),
		playback.OnChange(func(s playback.Session) { m.send(sessionMsg(s)) }),
	)

	m.input = textinput.New()
	m.input.Placeholder = "Search tracks"
	m.input.Prompt = "🔍 "
	m.input.CharLimit = 120
	m.input.Focus()

	m.list = list.New(nil, list.NewDefaultDelegate(), 0, 0)
	m.list.Title = "Popular"
	m.list.SetShowHelp(false)
	m.list.SetShowStatusBar(false)
	m.list.SetFilteringEnabled(false)
	m.list.DisableQuitKeybindings()

	return m
}

// Init starts the search loop and requests the default listing.
func (m *Model) Init() tea.Cmd {
	if m.pipeline != nil {
		m.running.Add(1)
		go func() {
			defer m.running.Done()
			m.pipeline.Run(m.ctx, m.debouncer.C(), m.results, func(o search.Outcome) {
				m.send(outcomeMsg(o))
			})
		}()
	}
	m.debouncer.Input("")
	return tea.Batch(textinput.Blink, m.waitForEvent())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(msg.Width-6, 10)
		m.list.SetSize(msg.Width-2, max(msg.Height-6, 4))
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case outcomeMsg:
		m.applyOutcome(search.Outcome(msg))
		return m, m.waitForEvent()

	case sessionMsg:
		s := playback.Session(msg)
		m.sessions[s.TrackID] = s
		m.refreshItems()
		return m, m.waitForEvent()

	case playErrMsg:
		if msg.err != nil && !errors.Is(msg.err, playback.ErrClosed) {
			m.status = msg.err.Error()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.up), key.Matches(msg, m.keys.down):
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd

	case key.Matches(msg, m.keys.play):
		return m, m.toggleSelected()

	case key.Matches(msg, m.keys.repeat):
		m.repeat = !m.repeat
		m.controller.SetRepeat(m.repeat)
		return m, nil

	case key.Matches(msg, m.keys.clear):
		if m.input.Value() == "" {
			return m, nil
		}
		m.input.SetValue("")
		m.debouncer.Input("")
		return m, nil
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if value := m.input.Value(); value != before {
		m.status = ""
		m.debouncer.Input(value)
	}
	return m, cmd
}

func (m *Model) toggleSelected() tea.Cmd {
	item, ok := m.list.SelectedItem().(trackItem)
	if !ok {
		return nil
	}
	track := item.track
	return func() tea.Msg {
		err := m.controller.Toggle(m.ctx, track)
		return playErrMsg{trackID: track.ID, err: err}
	}
}

func (m *Model) applyOutcome(o search.Outcome) {
	m.tracks = o.Tracks

	switch {
	case strings.TrimSpace(o.Query) == "" || o.Tier == search.TierPopular:
		m.list.Title = "Popular"
	default:
		m.list.Title = fmt.Sprintf("Results for %q", o.Query)
	}
	if o.Tier == search.TierNone {
		m.status = "No results"
	}

	m.refreshItems()
	m.list.Select(0)
}

func (m *Model) refreshItems() {
	items := make([]list.Item, len(m.tracks))
	for i, t := range m.tracks {
		items[i] = trackItem{track: t, session: m.sessions[t.ID]}
	}
	m.list.SetItems(items)
}

func (m *Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-m.events:
			return msg
		case <-m.done:
			return nil
		}
	}
}

// send delivers msg to the program unless the model has been closed.
func (m *Model) send(msg tea.Msg) {
	select {
	case m.events <- msg:
	case <-m.done:
	}
}

// View renders the search box, the result list and the status line.
func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(m.input.View())
	b.WriteString("\n\n")

	if len(m.tracks) == 0 {
		b.WriteString(styles.muted.Render("Searching…"))
	} else {
		b.WriteString(m.list.View())
	}
	b.WriteString("\n")

	if s, ok := m.controller.Playing(); ok {
		b.WriteString(styles.playing.Render(fmt.Sprintf("Playing %s %3.0f%%", m.titleOf(s.TrackID), s.Progress)))
		b.WriteString("  ")
	}
	if m.repeat {
		b.WriteString(styles.warn.Render("repeat on"))
		b.WriteString("  ")
	}
	if m.status != "" {
		b.WriteString(styles.err.Render(m.status))
	}
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m *Model) titleOf(trackID string) string {
	for _, t := range m.tracks {
		if t.ID == trackID {
			return t.Title
		}
	}
	return trackID
}

// Close stops the search loop and releases audio output.
func (m *Model) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.done)
		m.cancel()
		m.debouncer.Stop()
		m.running.Wait()
		err = m.controller.Close()
	})
	return err
}
