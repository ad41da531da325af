package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"marketplace-chat/apperror"
)

func TestGetMessagesReturnsAscendingPageWithCursor(t *testing.T) {
	f := newFixture(t)
	f.expectConversation("c1", "u1", "u2")

	// page size is 2; the repository is asked for 3 rows, newest first
	rows := sqlmock.NewRows(messageColumns)
	for i, id := range []string{"m3", "m2", "m1"} {
		at := baseTime.Add(time.Duration(3-i) * time.Minute)
		rows.AddRow(id, "c1", "u1", "u2", "text", id, false, false, nil, at, at)
	}
	f.mock.ExpectQuery(`SELECT \* FROM "t_message" WHERE conversation_id = .* ORDER BY created_at DESC,id DESC`).
		WillReturnRows(rows)

	page, err := f.chats.GetMessagesByChatID(context.Background(), "u2", "c1", 0, 0)
	if err != nil {
		t.Fatalf("failed to get messages: %v", err)
	}
	if len(page.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(page.Messages))
	}
	if page.Messages[0].ID != "m2" || page.Messages[1].ID != "m3" {
		t.Errorf("expected ascending [m2 m3], got [%s %s]", page.Messages[0].ID, page.Messages[1].ID)
	}
	if page.NextCursor == nil || *page.NextCursor != 2 {
		t.Errorf("expected next cursor 2, got %v", page.NextCursor)
	}
}

func TestGetMessagesLastPageHasNoCursor(t *testing.T) {
	f := newFixture(t)
	f.expectConversation("c1", "u1", "u2")
	f.mock.ExpectQuery(`SELECT \* FROM "t_message" WHERE conversation_id = `).
		WillReturnRows(sqlmock.NewRows(messageColumns).
			AddRow("m1", "c1", "u1", "u2", "text", "Hello", false, false, nil, baseTime, baseTime))

	page, err := f.chats.GetMessagesByChatID(context.Background(), "u1", "c1", 4, 2)
	if err != nil {
		t.Fatalf("failed to get messages: %v", err)
	}
	if page.NextCursor != nil {
		t.Errorf("expected no next cursor, got %d", *page.NextCursor)
	}
}

func TestGetMessagesMissingConversationIsNotFound(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery(`SELECT \* FROM "t_conversation" WHERE id = `).
		WillReturnRows(sqlmock.NewRows(conversationColumns))

	_, err := f.chats.GetMessagesByChatID(context.Background(), "u1", "nope", 0, 0)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestMarkSeenFlipsMessagesAddressedToViewer(t *testing.T) {
	f := newFixture(t)
	f.expectConversation("c1", "u1", "u2")
	f.mock.ExpectExec(`UPDATE "t_message" SET .*"seen"=.* WHERE conversation_id = .* AND receiver_id = `).
		WillReturnResult(sqlmock.NewResult(0, 3))

	updated, err := f.chats.MarkSeen(context.Background(), "u2", "c1")
	if err != nil {
		t.Fatalf("mark seen failed: %v", err)
	}
	if updated != 3 {
		t.Errorf("expected 3 rows updated, got %d", updated)
	}
}

func TestMarkSeenByOutsiderIsForbidden(t *testing.T) {
	f := newFixture(t)
	f.expectConversation("c1", "u1", "u2")

	if _, err := f.chats.MarkSeen(context.Background(), "u9", "c1"); !errors.Is(err, apperror.ErrForbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
}

func TestEnsureConversationReusesExistingPair(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery(`SELECT \* FROM "t_conversation" WHERE pair_key = `).
		WillReturnRows(sqlmock.NewRows(conversationColumns).
			AddRow("c1", "u2", "u1", "s1", "u1|u2|s1", baseTime, baseTime, baseTime))

	chat, err := f.chats.EnsureConversation(context.Background(), "u2", "u1", "s1")
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if chat.ID != "c1" {
		t.Errorf("expected existing conversation c1, got %s", chat.ID)
	}
}
