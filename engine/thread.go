package engine

import (
	"sort"
	"time"

	"marketplace-chat/dto"
	"marketplace-chat/enum"
)

const draftPrefix = "draft:"

// DraftKey names the local thread of a conversation that has no server id yet.
func DraftKey(counterpartID, storeID string) string {
	if storeID == "" {
		return draftPrefix + counterpartID
	}
	return draftPrefix + counterpartID + ":" + storeID
}

// Item is one entry of a thread as the UI renders it.
type Item struct {
	dto.Message
	Status enum.MessageStatus
	Err    error
	seq    uint64
}

// Key is the correlation id while the item is a placeholder and the server id once confirmed.
func (i Item) Key() string {
	if i.Status == enum.MessageStatusConfirmed {
		return i.ID
	}
	return i.CorrelationID
}

type ThreadInfo struct {
	ID            string
	CounterpartID string
	StoreID       string
	Draft         bool
	Loaded        bool
	HasMore       bool
}

type thread struct {
	ThreadInfo
	items      map[string]*Item
	nextCursor int
}

func newThread(id, counterpartID, storeID string, draft bool) *thread {
	return &thread{
		ThreadInfo: ThreadInfo{ID: id, CounterpartID: counterpartID, StoreID: storeID, Draft: draft, HasMore: !draft},
		items:      make(map[string]*Item),
	}
}

// upsertConfirmed stores msg under its server id and drops the placeholder it answers, if any.
// Applying the same message twice leaves a single entry.
func (t *thread) upsertConfirmed(msg dto.Message, seq uint64) *Item {
	if msg.CorrelationID != "" {
		if placeholder, ok := t.items[msg.CorrelationID]; ok && placeholder.Status != enum.MessageStatusConfirmed {
			seq = placeholder.seq
			delete(t.items, msg.CorrelationID)
		}
	}
	if existing, ok := t.items[msg.ID]; ok {
		seq = existing.seq
	}
	item := &Item{Message: msg, Status: enum.MessageStatusConfirmed, seq: seq}
	t.items[msg.ID] = item
	return item
}

func (t *thread) find(messageID string) (*Item, bool) {
	item, ok := t.items[messageID]
	return item, ok
}

// sorted returns confirmed items by (createdAt, id) followed by placeholders in submission order.
func (t *thread) sorted() []Item {
	confirmed := make([]Item, 0, len(t.items))
	var placeholders []Item
	for _, item := range t.items {
		if item.Status == enum.MessageStatusConfirmed {
			confirmed = append(confirmed, *item)
		} else {
			placeholders = append(placeholders, *item)
		}
	}
	sort.Slice(confirmed, func(i, j int) bool {
		a, b := confirmed[i], confirmed[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	sort.Slice(placeholders, func(i, j int) bool { return placeholders[i].seq < placeholders[j].seq })
	return append(confirmed, placeholders...)
}

func mutable(createdAt, now time.Time, window time.Duration) bool {
	return !now.After(createdAt.Add(window))
}
