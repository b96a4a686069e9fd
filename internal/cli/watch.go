package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/progress"
	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	"github.com/raphaelgruber/docchat/internal/app"
	"github.com/raphaelgruber/docchat/internal/client"
	"github.com/raphaelgruber/docchat/internal/models"
	"github.com/raphaelgruber/docchat/internal/reconcile"
)

// itemsMsg carries one poll result.
type itemsMsg struct {
	items []models.Item
	err   error
	at    time.Time
}

// attemptMsg reports a finished refresh attempt.
type attemptMsg reconcile.Event

// sequenceDoneMsg is sent once the refresh sequence has stopped.
type sequenceDoneMsg reconcile.Result

// watchOptions configures a watch session.
type watchOptions struct {
	conversationID string

	// seq is followed when set; with follow the UI exits once it finishes.
	seq    *reconcile.Sequence
	follow bool

	// waitFor is an item id to highlight once it shows up.
	waitFor string
}

// watchModel is the bubbletea model for following a conversation's items.
type watchModel struct {
	opts     watchOptions
	updates  <-chan itemsMsg
	trigger  func()
	mirror   func() []models.Item
	spinner  spinner.Model
	progress progress.Model
	theme    Theme

	items      []models.Item
	pollErr    error
	lastUpdate time.Time

	attempts int
	failures int
	seqDone  bool
	result   reconcile.Result

	quitting bool
	err      error
}

// newWatchModel creates a watch model. mirror reads the item store, which
// every refresh attempt has already updated.
func newWatchModel(opts watchOptions, updates <-chan itemsMsg, trigger func(), mirror func() []models.Item) watchModel {
	return watchModel{
		opts:    opts,
		updates: updates,
		trigger: trigger,
		mirror:  mirror,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		progress: progress.New(
			progress.WithDefaultBlend(),
			progress.WithWidth(40),
		),
		theme: defaultTheme,
	}
}

// Init starts the spinner and the listeners.
func (m watchModel) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, m.progress.Init(), waitForItems(m.updates)}
	if m.opts.seq != nil {
		cmds = append(cmds, waitForAttempt(m.opts.seq))
	}
	return tea.Batch(cmds...)
}

// Update handles messages and returns the updated model.
func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		case "r":
			if m.trigger != nil {
				m.trigger()
			}
		}

	case itemsMsg:
		if msg.err != nil {
			if errors.Is(msg.err, client.ErrAuthenticationExpired) || errors.Is(msg.err, client.ErrAuthenticationRequired) {
				m.err = msg.err
				return m, tea.Quit
			}
			m.pollErr = msg.err
		} else {
			m.items = msg.items
			m.pollErr = nil
		}
		m.lastUpdate = msg.at
		return m, waitForItems(m.updates)

	case attemptMsg:
		m.attempts = msg.Attempt
		if msg.Err != nil {
			m.failures++
		} else if m.mirror != nil {
			m.items = m.mirror()
		}
		if m.opts.seq == nil {
			return m, nil
		}
		var cmd tea.Cmd
		if total := m.opts.seq.Total(); total > 0 {
			cmd = m.progress.SetPercent(float64(msg.Attempt) / float64(total))
		}
		return m, tea.Batch(cmd, waitForAttempt(m.opts.seq))

	case sequenceDoneMsg:
		m.seqDone = true
		m.result = reconcile.Result(msg)
		if m.opts.follow {
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the watch display.
func (m watchModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m watchModel) renderContent() string {
	if m.quitting || m.err != nil || (m.seqDone && m.opts.follow) {
		return m.finalView()
	}

	var b strings.Builder

	header := fmt.Sprintf("%s Watching conversation %s", m.theme.statusStyle().Render(m.spinner.View()), m.opts.conversationID)
	b.WriteString(header + "\n")

	if m.opts.seq != nil {
		if m.seqDone {
			b.WriteString(m.theme.completedStyle().Render("✓ Refresh finished") + "\n")
		} else {
			status := m.theme.statusStyle().Render("[refreshing]")
			fmt.Fprintf(&b, "%s %s %d/%d\n", status, m.progress.View(), m.attempts, m.opts.seq.Total())
		}
	}

	b.WriteString("\n")
	b.WriteString(m.renderItems())

	if m.pollErr != nil {
		b.WriteString(m.theme.errorStyle().Render(fmt.Sprintf("\nLast poll failed: %v\n", m.pollErr)))
	}
	if !m.lastUpdate.IsZero() {
		b.WriteString(m.theme.hintStyle().Render(fmt.Sprintf("\nUpdated %s", m.lastUpdate.Format("15:04:05"))) + "\n")
	}
	b.WriteString(m.theme.hintStyle().Render("Press r to refresh, q to stop watching") + "\n")
	return b.String()
}

func (m watchModel) renderItems() string {
	if len(m.items) == 0 {
		if m.opts.waitFor != "" {
			return m.theme.hintStyle().Render("Waiting for the new item to be ingested...") + "\n"
		}
		return "No items yet.\n"
	}

	var b strings.Builder
	for _, it := range m.items {
		mark := " "
		if it.Active {
			mark = m.theme.completedStyle().Render("●")
		}
		line := fmt.Sprintf("%s %s  %s", mark, it.FileName, m.theme.hintStyle().Render(it.ID))
		if it.ID == m.opts.waitFor {
			line += " " + m.theme.completedStyle().Render("new")
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

// finalView renders the message left on screen after the UI exits.
func (m watchModel) finalView() string {
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ %v\n", presentError(m.err)))
	}

	if m.quitting {
		if m.opts.seq != nil && !m.seqDone {
			return m.theme.hintStyle().Render("\nStopped watching. Listings may take a moment to show the change.\n")
		}
		return m.theme.hintStyle().Render(fmt.Sprintf("\nStopped watching (%d items).\n", len(m.items)))
	}

	if m.result.Attempts > 0 && m.result.Failures == m.result.Attempts {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Refresh failed after %d attempts\n", m.result.Attempts))
	}

	var b strings.Builder
	b.WriteString(m.theme.completedStyle().Render("✓ Up to date") + "\n\n")
	b.WriteString(m.renderItems())
	if m.opts.waitFor != "" && !containsItem(m.items, m.opts.waitFor) {
		b.WriteString(m.theme.hintStyle().Render("\nThe new item is still being ingested. Check again with 'docchat items list'.") + "\n")
	}
	return b.String()
}

func containsItem(items []models.Item, id string) bool {
	for _, it := range items {
		if it.ID == id {
			return true
		}
	}
	return false
}

// waitForItems delivers the next poll result.
func waitForItems(updates <-chan itemsMsg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-updates
		if !ok {
			return nil
		}
		return msg
	}
}

// waitForAttempt delivers the next refresh event, then the final result.
func waitForAttempt(seq *reconcile.Sequence) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-seq.Events()
		if ok {
			return attemptMsg(ev)
		}
		res, _ := seq.Wait(context.Background())
		return sequenceDoneMsg(res)
	}
}

// offer replaces any undelivered poll result with msg.
func offer(ch chan itemsMsg, msg itemsMsg) {
	for {
		select {
		case ch <- msg:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

// runWatch runs the interactive watch UI for a conversation's items.
// Returns nil when the user stops watching or the followed refresh ends.
func runWatch(ctx context.Context, a *app.App, opts watchOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates := make(chan itemsMsg, 1)
	poller := a.WatchItems(opts.conversationID, func(items []models.Item, err error) {
		offer(updates, itemsMsg{items: items, err: err, at: time.Now()})
	})
	go poller.Run(ctx)

	mirror := func() []models.Item { return a.ItemStore().Items(opts.conversationID) }
	model := newWatchModel(opts, updates, poller.Trigger, mirror)
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("watch UI error: %w", err)
	}

	if m, ok := finalModel.(watchModel); ok && m.err != nil {
		return m.err
	}
	return nil
}
