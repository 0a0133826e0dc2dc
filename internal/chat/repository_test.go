package chat

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"go-chat-relay/internal/db"
	"go-chat-relay/internal/user"
)

// newTestRepository connects to TEST_DB_DSN and skips when it is unset.
func newTestRepository(t *testing.T) (*Repository, *user.Repository) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}
	ctx := context.Background()
	database, err := db.NewDatabase(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.AutoMigrate(ctx))
	return NewRepository(database.Conn), user.NewRepository(database.Conn)
}

func createUser(t *testing.T, users *user.Repository) int {
	t.Helper()
	u, err := users.CreateUser(context.Background(), &user.User{
		Username: "u-" + uuid.NewString()[:8],
		Password: "x",
	})
	require.NoError(t, err)
	return u.ID
}

func TestRepository_PrivateChatIsUnique(t *testing.T) {
	req := require.New(t)
	repo, users := newTestRepository(t)
	ctx := context.Background()
	a, b := createUser(t, users), createUser(t, users)

	_, err := repo.FindPrivateChat(ctx, a, b)
	req.ErrorIs(err, ErrNotFound)

	const racers = 8
	ids := make([]int, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pair := []int{a, b}
			if i%2 == 1 {
				pair = []int{b, a}
			}
			conv, err := repo.CreateConversation(ctx, NewConversation{Type: TypePrivate, Participants: pair})
			if err == nil {
				ids[i] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		req.Equal(ids[0], id)
	}
	found, err := repo.FindPrivateChat(ctx, b, a)
	req.NoError(err)
	req.Equal(ids[0], found.ID)
	req.ElementsMatch([]int{a, b}, found.Participants)
}

func TestRepository_MessagesAndListing(t *testing.T) {
	req := require.New(t)
	repo, users := newTestRepository(t)
	ctx := context.Background()
	a, b := createUser(t, users), createUser(t, users)

	conv, err := repo.CreateConversation(ctx, NewConversation{Type: TypePrivate, Participants: []int{a, b}})
	req.NoError(err)
	group, err := repo.CreateConversation(ctx, NewConversation{Type: TypeGroup, Name: "team", Participants: []int{a}})
	req.NoError(err)
	req.NoError(repo.AddParticipant(ctx, group.ID, b))
	req.NoError(repo.AddParticipant(ctx, group.ID, b))
	req.ErrorIs(repo.AddParticipant(ctx, -1, b), ErrNotFound)

	first, err := repo.AppendMessage(ctx, conv.ID, a, "first")
	req.NoError(err)
	second, err := repo.AppendMessage(ctx, conv.ID, b, "second")
	req.NoError(err)
	req.Greater(second.ID, first.ID)
	req.NoError(repo.SetLatestMessage(ctx, conv.ID, second.ID))

	msgs, err := repo.ListMessages(ctx, conv.ID)
	req.NoError(err)
	req.Len(msgs, 2)
	req.Equal("first", msgs[0].Content)
	req.NotEmpty(msgs[1].SenderName)

	convs, err := repo.ListConversationsForUser(ctx, b)
	req.NoError(err)
	req.Len(convs, 2)
	req.Equal(conv.ID, convs[0].ID)
	req.NotNil(convs[0].LatestMessage)
	req.Equal("second", convs[0].LatestMessage.Content)
	req.ElementsMatch([]int{a, b}, convs[1].Participants)

	_, err = repo.GetConversation(ctx, -1)
	req.ErrorIs(err, ErrNotFound)
}
