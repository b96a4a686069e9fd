package store

import (
	"testing"

	"github.com/raphaelgruber/docchat/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestItemDeleteState(t *testing.T) {
	s := NewItemStore()
	assert.Equal(t, DeleteUnknown, s.DeleteState("c1"))

	s.Replace("c1", []models.Item{{ID: "i1"}})
	assert.Equal(t, DeleteBlocked, s.DeleteState("c1"))

	s.Replace("c1", nil)
	assert.Equal(t, DeleteAllowed, s.DeleteState("c1"))

	s.Forget("c1")
	assert.Equal(t, DeleteUnknown, s.DeleteState("c1"))
}

func TestItemReplaceOverwrites(t *testing.T) {
	s := NewItemStore()
	batch := []models.Item{{ID: "i1"}, {ID: "i2"}}

	s.Replace("c1", batch)
	s.Replace("c1", batch)
	s.Replace("c1", append(batch, models.Item{ID: "i1"}))

	n, ok := s.Count("c1")
	assert.True(t, ok)
	assert.Equal(t, 2, n)
}

func TestItemPatchAndRemove(t *testing.T) {
	s := NewItemStore()
	s.Replace("c1", []models.Item{{ID: "i1", Active: true}, {ID: "i2"}})

	assert.True(t, s.Patch(models.Item{ID: "i1", Active: false}))
	assert.False(t, s.Patch(models.Item{ID: "zzz"}))
	assert.False(t, s.Items("c1")[0].Active)

	s.RemoveItem("i1")
	items := s.Items("c1")
	assert.Len(t, items, 1)
	assert.Equal(t, "i2", items[0].ID)
}

func TestItemRefreshMonotonic(t *testing.T) {
	s := NewItemStore()
	a := s.BumpRefresh()
	s.Reset()
	b := s.BumpRefresh()

	assert.Greater(t, b, a)
	assert.Equal(t, b, s.Refresh())
}

func TestItemFind(t *testing.T) {
	s := NewItemStore()
	s.Replace("c1", []models.Item{{ID: "i1", ConversationID: "c1"}})

	it, ok := s.Find("i1")
	assert.True(t, ok)
	assert.Equal(t, "c1", it.ConversationID)

	_, ok = s.Find("missing")
	assert.False(t, ok)
}
