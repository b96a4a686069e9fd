package cli

import (
	"errors"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/raphaelgruber/docchat/internal/client"
	"github.com/raphaelgruber/docchat/internal/models"
	"github.com/raphaelgruber/docchat/internal/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func update(t *testing.T, m watchModel, msg tea.Msg) (watchModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	wm, ok := next.(watchModel)
	require.True(t, ok)
	return wm, cmd
}

func TestWatchModelShowsPolledItems(t *testing.T) {
	m := newWatchModel(watchOptions{conversationID: "c1"}, make(chan itemsMsg), nil, nil)
	assert.Contains(t, m.renderContent(), "No items yet.")

	m, cmd := update(t, m, itemsMsg{
		items: []models.Item{{ID: "i1", FileName: "report.pdf", Active: true}},
		at:    time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC),
	})
	require.NotNil(t, cmd)

	view := m.renderContent()
	assert.Contains(t, view, "report.pdf")
	assert.Contains(t, view, "Updated 15:04:05")
}

func TestWatchModelPollError(t *testing.T) {
	m := newWatchModel(watchOptions{conversationID: "c1"}, make(chan itemsMsg), nil, nil)

	t.Run("transient errors stay on screen", func(t *testing.T) {
		got, _ := update(t, m, itemsMsg{err: errors.New("backend down"), at: time.Now()})
		assert.Nil(t, got.err)
		assert.Contains(t, got.renderContent(), "Last poll failed: backend down")
	})

	t.Run("expired session stops watching", func(t *testing.T) {
		got, cmd := update(t, m, itemsMsg{err: client.ErrAuthenticationExpired, at: time.Now()})
		require.NotNil(t, cmd)
		assert.ErrorIs(t, got.err, client.ErrAuthenticationExpired)
		assert.Contains(t, got.renderContent(), "session expired")
	})
}

func TestWatchModelFollowsAttempts(t *testing.T) {
	mirror := []models.Item{{ID: "new", FileName: "added.pdf"}}
	m := newWatchModel(watchOptions{conversationID: "c1", follow: true, waitFor: "new"},
		make(chan itemsMsg), nil, func() []models.Item { return mirror })
	assert.Contains(t, m.renderContent(), "Waiting for the new item")

	m, _ = update(t, m, attemptMsg(reconcile.Event{Attempt: 1, Total: 3, Err: errors.New("503")}))
	assert.Equal(t, 1, m.failures)
	assert.Empty(t, m.items)

	m, _ = update(t, m, attemptMsg(reconcile.Event{Attempt: 2, Total: 3}))
	assert.Equal(t, 2, m.attempts)
	require.Len(t, m.items, 1)

	m, cmd := update(t, m, sequenceDoneMsg(reconcile.Result{Attempts: 3, Failures: 1}))
	require.NotNil(t, cmd)
	assert.True(t, m.seqDone)

	view := m.renderContent()
	assert.Contains(t, view, "Up to date")
	assert.Contains(t, view, "added.pdf")
	assert.NotContains(t, view, "still being ingested")
}

func TestWatchModelAllAttemptsFailed(t *testing.T) {
	m := newWatchModel(watchOptions{conversationID: "c1", follow: true}, make(chan itemsMsg), nil, nil)

	m, _ = update(t, m, sequenceDoneMsg(reconcile.Result{Attempts: 2, Failures: 2}))
	assert.Contains(t, m.renderContent(), "Refresh failed after 2 attempts")
}

func TestWatchModelKeys(t *testing.T) {
	triggered := 0
	m := newWatchModel(watchOptions{conversationID: "c1"}, make(chan itemsMsg), func() { triggered++ }, nil)

	m, _ = update(t, m, tea.KeyPressMsg{Code: 'r', Text: "r"})
	assert.Equal(t, 1, triggered)
	assert.False(t, m.quitting)

	m, cmd := update(t, m, tea.KeyPressMsg{Code: 'q', Text: "q"})
	require.NotNil(t, cmd)
	assert.True(t, m.quitting)
	assert.Contains(t, m.renderContent(), "Stopped watching")
}

func TestOfferKeepsLatest(t *testing.T) {
	ch := make(chan itemsMsg, 1)
	offer(ch, itemsMsg{items: []models.Item{{ID: "old"}}})
	offer(ch, itemsMsg{items: []models.Item{{ID: "new"}}})

	got := <-ch
	require.Len(t, got.items, 1)
	assert.Equal(t, "new", got.items[0].ID)
}
