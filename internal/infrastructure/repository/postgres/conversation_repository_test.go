package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/source-knowledge/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*ConversationRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewConversationRepository(db), mock, func() { _ = db.Close() }
}

func sampleConversation() *domain.Conversation {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	conv := domain.NewConversation("c1", "sys", now)
	return conv.WithMessages(now,
		domain.Message{Role: domain.RoleUser, Content: "hi"},
		domain.Message{Role: domain.RoleAssistant, Content: "hello"},
	)
}

func TestSaveInsertsOnlyNewMessages(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()
	conv := sampleConversation()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO conversations").
		WithArgs("c1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT message_count FROM conversations").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"message_count"}).AddRow(1))
	mock.ExpectExec("INSERT INTO conversation_messages").
		WithArgs("c1", 1, "user", "hi").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO conversation_messages").
		WithArgs("c1", 2, "assistant", "hello").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE conversations SET message_count").
		WithArgs("c1", 3, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.Save(context.Background(), conv); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveRejectsStaleSnapshot(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO conversations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT message_count FROM conversations").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"message_count"}).AddRow(5))
	mock.ExpectRollback()

	err := repo.Save(context.Background(), sampleConversation())
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveConnectionFailureIsStoreUnavailable(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	err := repo.Save(context.Background(), sampleConversation())
	if !domain.IsKind(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
}

func TestGetReturnsNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT created_at, updated_at FROM conversations").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetReturnsOrderedMessages(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT created_at, updated_at FROM conversations").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectQuery("SELECT role, content FROM conversation_messages").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"role", "content"}).
			AddRow("system", "sys").
			AddRow("user", "hi"))

	conv, err := repo.Get(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if conv.Len() != 2 || conv.Messages[0].Role != domain.RoleSystem || conv.Messages[1].Content != "hi" {
		t.Fatalf("unexpected conversation %+v", conv)
	}
}
