package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/minhaz-42/FitWell-Using-Django/internal/models"
)

type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

// fakeDB satisfies DBTX for driving repository error paths without a server.
type fakeDB struct {
	queryRow func(sql string, args ...any) pgx.Row
	query    func(sql string, args ...any) (pgx.Rows, error)
	exec     func(sql string, args ...any) (pgconn.CommandTag, error)
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if f.exec == nil {
		return pgconn.CommandTag{}, nil
	}
	return f.exec(sql, args...)
}

func (f *fakeDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	return f.query(sql, args...)
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	return f.queryRow(sql, args...)
}

func seqConflict() error {
	return &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "messages_conversation_id_seq_key"}
}

func scanInsertedMessage(seq int64, createdAt time.Time, args []any) func(dest ...any) error {
	return func(dest ...any) error {
		*(dest[0].(*string)) = args[0].(string)
		*(dest[1].(*string)) = args[1].(string)
		*(dest[2].(*int64)) = seq
		*(dest[3].(*models.MessageRole)) = args[2].(models.MessageRole)
		*(dest[4].(*string)) = args[3].(string)
		*(dest[5].(*time.Time)) = createdAt
		return nil
	}
}

func TestAppendRetriesOnSeqConflict(t *testing.T) {
	now := time.Now()
	attempts := 0
	db := &fakeDB{
		queryRow: func(_ string, args ...any) pgx.Row {
			attempts++
			// Two losers of the seq race, then the recomputed insert lands.
			if attempts <= 2 {
				return fakeRow{scan: func(...any) error { return seqConflict() }}
			}
			return fakeRow{scan: scanInsertedMessage(3, now, args)}
		},
	}
	repo := NewMessageRepository(db)

	message, err := repo.Append(context.Background(), AppendMessageInput{
		ConversationID: "conv-a",
		Role:           models.MessageRoleUser,
		Content:        "hello",
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if message.Seq != 3 {
		t.Errorf("seq = %d", message.Seq)
	}
	if message.ConversationID != "conv-a" || message.Role != models.MessageRoleUser || message.Content != "hello" {
		t.Errorf("message = %+v", message)
	}
	if message.ID == "" {
		t.Error("missing generated id")
	}
}

func TestAppendGivesUpAfterBoundedAttempts(t *testing.T) {
	attempts := 0
	db := &fakeDB{
		queryRow: func(string, ...any) pgx.Row {
			attempts++
			return fakeRow{scan: func(...any) error { return seqConflict() }}
		},
	}
	repo := NewMessageRepository(db)

	_, err := repo.Append(context.Background(), AppendMessageInput{
		ConversationID: "conv-a",
		Role:           models.MessageRoleUser,
		Content:        "hello",
	})
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}

	if attempts != maxAppendAttempts {
		t.Errorf("attempts = %d, want %d", attempts, maxAppendAttempts)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		t.Errorf("err = %v, want the surfaced unique violation", err)
	}
}

func TestAppendMissingConversationIsNoRows(t *testing.T) {
	attempts := 0
	db := &fakeDB{
		queryRow: func(string, ...any) pgx.Row {
			attempts++
			return fakeRow{scan: func(...any) error {
				return &pgconn.PgError{Code: pgForeignKeyViolation}
			}}
		},
	}
	repo := NewMessageRepository(db)

	_, err := repo.Append(context.Background(), AppendMessageInput{
		ConversationID: "gone",
		Role:           models.MessageRoleUser,
		Content:        "hello",
	})
	if !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("err = %v, want pgx.ErrNoRows", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (no retry on a missing conversation)", attempts)
	}
}

func TestAppendPassesThroughOtherErrors(t *testing.T) {
	boom := errors.New("connection reset")
	attempts := 0
	db := &fakeDB{
		queryRow: func(string, ...any) pgx.Row {
			attempts++
			return fakeRow{scan: func(...any) error { return boom }}
		},
	}
	repo := NewMessageRepository(db)

	_, err := repo.Append(context.Background(), AppendMessageInput{
		ConversationID: "conv-a",
		Role:           models.MessageRoleUser,
		Content:        "hello",
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the raw failure", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}
