package usecase_test

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
	"marketplace-chat/repository"
	"marketplace-chat/storage"
	"marketplace-chat/usecase"
)

var (
	baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	messageColumns      = []string{"id", "conversation_id", "sender_id", "receiver_id", "type", "text", "seen", "edited", "correlation_id", "created_at", "updated_at"}
	conversationColumns = []string{"id", "user_id", "counterpart_id", "store_id", "pair_key", "last_message_at", "created_at", "updated_at"}
)

type fixture struct {
	mock     sqlmock.Sqlmock
	chats    *usecase.ChatUsecaseImpl
	messages usecase.MessageUsecase
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		NamingStrategy:         schema.NamingStrategy{TablePrefix: "t_", SingularTable: true},
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 gormlogger.Discard,
	})
	if err != nil {
		t.Fatalf("failed to open gorm: %v", err)
	}

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	f := &fixture{mock: mock, now: baseTime}
	chatRepo := repository.NewChatRepository()
	messageRepo := repository.NewMessageRepository()

	f.chats = usecase.NewChatUsecase(chatRepo, messageRepo, log, db, 2)
	f.chats.Now = func() time.Time { return f.now }
	f.messages = usecase.NewMessageUsecase(usecase.MessageUsecaseConfig{
		DB:          db,
		Logger:      log,
		Validate:    validator.New(),
		Messages:    messageRepo,
		Users:       repository.NewUserRepository(),
		Chats:       chatRepo,
		ChatUsecase: f.chats,
		Policy:      storage.DefaultPolicy(),
		Window:      15 * time.Minute,
		Now:         func() time.Time { return f.now },
	})

	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet sql expectations: %v", err)
		}
	})
	return f
}

func (f *fixture) expectMessage(id, senderID string, createdAt time.Time) {
	f.mock.ExpectQuery(`SELECT \* FROM "t_message" WHERE id = `).
		WillReturnRows(sqlmock.NewRows(messageColumns).
			AddRow(id, "c1", senderID, "u2", "text", "Hello", false, false, nil, createdAt, createdAt))
}

func (f *fixture) expectConversation(id, userID, counterpartID string) {
	f.mock.ExpectQuery(`SELECT \* FROM "t_conversation" WHERE id = `).
		WillReturnRows(sqlmock.NewRows(conversationColumns).
			AddRow(id, userID, counterpartID, "", userID+"|"+counterpartID+"|", baseTime, baseTime, baseTime))
}
