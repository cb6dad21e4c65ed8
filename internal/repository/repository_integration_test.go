package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/minhaz-42/FitWell-Using-Django/internal/models"
)

var (
	testDBOnce sync.Once
	testDBPool *pgxpool.Pool
	testDBErr  error
)

func integrationTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	testDBOnce.Do(func() {
		_ = godotenv.Load(".env")
		_ = godotenv.Load(filepath.Join("..", "..", ".env"))

		dbURL := os.Getenv("DB_URL")
		if dbURL == "" {
			testDBErr = fmt.Errorf("DB_URL is not set")
			return
		}

		cfg, err := pgxpool.ParseConfig(dbURL)
		if err != nil {
			testDBErr = err
			return
		}

		testDBPool, testDBErr = pgxpool.NewWithConfig(context.Background(), cfg)
		if testDBErr != nil {
			return
		}
		testDBErr = testDBPool.Ping(context.Background())
	})

	if testDBErr != nil {
		t.Skipf("skipping integration test: %v", testDBErr)
	}
	return testDBPool
}

func createTestConversation(t *testing.T, ctx context.Context, pool *pgxpool.Pool) (*models.Conversation, int64) {
	t.Helper()

	ownerID := time.Now().UnixNano()
	conversation, err := NewConversationRepository(pool).Create(ctx, ownerID, "Integration", "en", "nutrition")
	if err != nil {
		t.Fatalf("Create conversation: %v", err)
	}
	t.Cleanup(func() {
		if _, err := pool.Exec(ctx, "DELETE FROM conversations WHERE owner_id = $1", ownerID); err != nil {
			t.Fatalf("cleanup conversations: %v", err)
		}
	})
	return conversation, ownerID
}

func TestConcurrentAppendsLoseNoWrites(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	conversation, _ := createTestConversation(t, ctx, pool)

	repo := NewMessageRepository(pool)

	const writers = 16
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Append(ctx, AppendMessageInput{
				ConversationID: conversation.ID,
				Role:           models.MessageRoleUser,
				Content:        fmt.Sprintf("message %d", i),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	messages, err := repo.ListByConversation(ctx, conversation.ID)
	if err != nil {
		t.Fatalf("ListByConversation: %v", err)
	}
	if len(messages) != writers {
		t.Fatalf("stored %d messages, want %d", len(messages), writers)
	}
	// Sequence numbers must be the gapless range 1..N in list order.
	for i, message := range messages {
		if message.Seq != int64(i+1) {
			t.Fatalf("position %d has seq %d", i, message.Seq)
		}
	}
}

func TestUnreadCountTracksReadMarker(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	conversation, ownerID := createTestConversation(t, ctx, pool)

	conversationRepo := NewConversationRepository(pool)
	messageRepo := NewMessageRepository(pool)

	appendMessage := func(role models.MessageRole, content string) {
		t.Helper()
		if _, err := messageRepo.Append(ctx, AppendMessageInput{
			ConversationID: conversation.ID,
			Role:           role,
			Content:        content,
		}); err != nil {
			t.Fatalf("Append %s: %v", role, err)
		}
	}
	unreadCount := func() int {
		t.Helper()
		summaries, total, err := conversationRepo.ListForOwner(ctx, ownerID, 10, 0)
		if err != nil {
			t.Fatalf("ListForOwner: %v", err)
		}
		if total != 1 || len(summaries) != 1 {
			t.Fatalf("summaries = %d (total %d), want 1", len(summaries), total)
		}
		return summaries[0].UnreadCount
	}

	appendMessage(models.MessageRoleUser, "suggest lunch")
	appendMessage(models.MessageRoleAssistant, "how about a quinoa bowl")

	// The owner's own message never counts as unread.
	if got := unreadCount(); got != 1 {
		t.Fatalf("unread before read = %d, want 1", got)
	}

	if err := conversationRepo.MarkRead(ctx, conversation.ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if got := unreadCount(); got != 0 {
		t.Fatalf("unread after read = %d, want 0", got)
	}

	appendMessage(models.MessageRoleAssistant, "or a lentil salad")
	if got := unreadCount(); got != 1 {
		t.Fatalf("unread after new reply = %d, want 1", got)
	}
}
