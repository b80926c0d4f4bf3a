package messaging

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/models"
)

func TestGroupNameIsCommutative(t *testing.T) {
	assert.Equal(t, "amy-bob", GroupName("amy", "bob"))
	assert.Equal(t, "amy-bob", GroupName("bob", "amy"))
	assert.Equal(t, GroupName("Zed", "abe"), GroupName("abe", "Zed"))
	assert.Equal(t, "Zed-abe", GroupName("abe", "Zed"))
}

func TestConnectJoinsGroupAndSendsThread(t *testing.T) {
	f := newFixture(t, "amy", "bob")
	ctx := context.Background()

	group, err := f.conversation.Connect(ctx, Session{ConnectionID: "c1", Username: "amy"}, "bob")
	require.NoError(t, err)
	assert.Equal(t, "amy-bob", group.Name)
	assert.Equal(t, []string{"c1"}, group.ConnectionIDs())
	assert.True(t, f.clients.inRoom("amy-bob", "c1"))

	updates := f.clients.events("room:amy-bob", models.EventGroupUpdated)
	require.Len(t, updates, 1)
	assert.True(t, updates[0].Group.HasUser("amy"))

	threads := f.clients.events("conn:c1", models.EventMessageThread)
	require.Len(t, threads, 1)
	assert.Empty(t, threads[0].Messages)
	assert.Empty(t, f.clients.events("room:amy-bob", models.EventMessageThread))
}

func TestConnectRejectsBadIdentity(t *testing.T) {
	f := newFixture(t, "amy", "bob")
	ctx := context.Background()

	_, err := f.conversation.Connect(ctx, Session{ConnectionID: "c1", Username: "amy"}, "")
	assert.ErrorIs(t, err, ErrIdentity)

	_, err = f.conversation.Connect(ctx, Session{ConnectionID: "c1"}, "bob")
	assert.ErrorIs(t, err, ErrIdentity)

	_, err = f.conversation.Connect(ctx, Session{ConnectionID: "c1", Username: "ghost"}, "bob")
	assert.ErrorIs(t, err, ErrIdentity)

	_, err = f.conversation.Connect(ctx, Session{ConnectionID: "c1", Username: "amy"}, "AMY")
	assert.ErrorIs(t, err, ErrSelfTarget)

	assert.Empty(t, f.clients.sent)
	assert.False(t, f.clients.inRoom("amy-bob", "c1"))
}

func TestBothPeersShareOneGroup(t *testing.T) {
	f := newFixture(t, "amy", "bob")
	ctx := context.Background()

	_, err := f.conversation.Connect(ctx, Session{ConnectionID: "c1", Username: "amy"}, "bob")
	require.NoError(t, err)
	group, err := f.conversation.Connect(ctx, Session{ConnectionID: "c2", Username: "bob"}, "amy")
	require.NoError(t, err)

	assert.Equal(t, "amy-bob", group.Name)
	assert.Equal(t, []string{"c1", "c2"}, group.ConnectionIDs())
	assert.Len(t, f.clients.events("room:amy-bob", models.EventGroupUpdated), 2)
}

func TestConcurrentConnectsCreateOneGroup(t *testing.T) {
	f := newFixture(t, "amy", "bob")
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := f.conversation.Connect(ctx, Session{ConnectionID: fmt.Sprintf("a%d", i), Username: "amy"}, "bob")
			errs <- err
		}(i)
		go func(i int) {
			defer wg.Done()
			_, err := f.conversation.Connect(ctx, Session{ConnectionID: fmt.Sprintf("b%d", i), Username: "bob"}, "amy")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Len(t, f.group(t, "amy-bob").Connections, 20)
}

func TestConnectCommitFailureLeavesConnectionOut(t *testing.T) {
	f := newFixture(t, "amy", "bob")
	ctx := context.Background()

	// First Complete creates the group, the second attaches the connection.
	f.store.failAt = 2
	_, err := f.conversation.Connect(ctx, Session{ConnectionID: "c1", Username: "amy"}, "bob")
	require.ErrorIs(t, err, ErrPersistence)

	assert.Empty(t, f.group(t, "amy-bob").Connections)
	assert.False(t, f.clients.inRoom("amy-bob", "c1"))
	assert.Empty(t, f.clients.events("conn:c1", models.EventMessageThread))
}

func TestConnectThreadFailureUndoesJoin(t *testing.T) {
	f := newFixture(t, "amy", "bob")
	ctx := context.Background()

	f.store.failAt = 3
	_, err := f.conversation.Connect(ctx, Session{ConnectionID: "c1", Username: "amy"}, "bob")
	require.ErrorIs(t, err, ErrPersistence)

	assert.Empty(t, f.group(t, "amy-bob").Connections)
	assert.False(t, f.clients.inRoom("amy-bob", "c1"))
	assert.Empty(t, f.clients.events("conn:c1", models.EventMessageThread))
}

func TestConnectReloadFailureUndoesJoin(t *testing.T) {
	f := newFixture(t, "amy", "bob")
	ctx := context.Background()

	// Group reads: existence check, post-create recheck, then the reload after joining.
	f.store.failGroupReadAt = 3
	_, err := f.conversation.Connect(ctx, Session{ConnectionID: "c1", Username: "amy"}, "bob")
	require.ErrorIs(t, err, ErrPersistence)

	assert.Empty(t, f.group(t, "amy-bob").Connections)
	assert.False(t, f.clients.inRoom("amy-bob", "c1"))
	assert.Empty(t, f.clients.events("room:amy-bob", models.EventGroupUpdated))
	assert.Empty(t, f.clients.events("conn:c1", models.EventMessageThread))

	err = f.conversation.Disconnect(ctx, Session{ConnectionID: "c1", Username: "amy"}, nil)
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestDisconnectRemovesOnlyItsConnection(t *testing.T) {
	f := newFixture(t, "amy", "bob", "cat")
	ctx := context.Background()

	_, err := f.conversation.Connect(ctx, Session{ConnectionID: "c1", Username: "amy"}, "bob")
	require.NoError(t, err)
	_, err = f.conversation.Connect(ctx, Session{ConnectionID: "c2", Username: "bob"}, "amy")
	require.NoError(t, err)
	_, err = f.conversation.Connect(ctx, Session{ConnectionID: "c3", Username: "amy"}, "cat")
	require.NoError(t, err)
	f.clients.reset()

	require.NoError(t, f.conversation.Disconnect(ctx, Session{ConnectionID: "c1", Username: "amy"}, nil))

	assert.Equal(t, []string{"c2"}, f.group(t, "amy-bob").ConnectionIDs())
	assert.Equal(t, []string{"c3"}, f.group(t, "amy-cat").ConnectionIDs())
	assert.False(t, f.clients.inRoom("amy-bob", "c1"))
	assert.True(t, f.clients.inRoom("amy-cat", "c3"))

	updates := f.clients.events("room:amy-bob", models.EventGroupUpdated)
	require.Len(t, updates, 1)
	assert.Equal(t, []string{"c2"}, updates[0].Group.ConnectionIDs())
	assert.Empty(t, f.clients.events("room:amy-cat", models.EventGroupUpdated))
}

func TestDisconnectWithoutGroupIsIntegrityError(t *testing.T) {
	f := newFixture(t, "amy")

	err := f.conversation.Disconnect(context.Background(), Session{ConnectionID: "stray", Username: "amy"}, nil)
	assert.ErrorIs(t, err, ErrIntegrity)
	assert.Empty(t, f.clients.sent)
}

func TestDisconnectCommitFailureIsReported(t *testing.T) {
	f := newFixture(t, "amy", "bob")
	ctx := context.Background()

	_, err := f.conversation.Connect(ctx, Session{ConnectionID: "c1", Username: "amy"}, "bob")
	require.NoError(t, err)

	f.store.failNext()
	err = f.conversation.Disconnect(ctx, Session{ConnectionID: "c1", Username: "amy"}, nil)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.False(t, f.clients.inRoom("amy-bob", "c1"))
}

func TestSendToOfflineRecipient(t *testing.T) {
	f := newFixture(t, "amy", "bob")
	ctx := context.Background()

	_, err := f.conversation.Connect(ctx, Session{ConnectionID: "c1", Username: "amy"}, "bob")
	require.NoError(t, err)

	res, err := f.conversation.SendMessage(ctx, Session{ConnectionID: "c1", Username: "amy"}, "bob", "hi")
	require.NoError(t, err)
	assert.Equal(t, models.SendOffline, res.Status)
	assert.Nil(t, res.Message.DateRead)
	assert.Equal(t, "amy", res.Message.SenderUsername)
	assert.Equal(t, "bob", res.Message.RecipientUsername)

	stored := f.message(t, res.Message.ID)
	assert.Nil(t, stored.DateRead)
	assert.Equal(t, "hi", stored.Content)

	msgs := f.clients.events("room:amy-bob", models.EventNewMessage)
	require.Len(t, msgs, 1)
	assert.Equal(t, res.Message.ID, msgs[0].Message.ID)
	assert.Empty(t, f.presenceOut.sent)
}

func TestSendNotifiesRecipientPresenceConnections(t *testing.T) {
	f := newFixture(t, "amy", "bob")
	ctx := context.Background()

	f.presence.Connect("bob", "p1")
	f.presence.Connect("bob", "p2")
	f.presenceOut.reset()

	res, err := f.conversation.SendMessage(ctx, Session{ConnectionID: "c1", Username: "amy"}, "bob", "hi")
	require.NoError(t, err)
	assert.Equal(t, models.SendNotified, res.Status)
	assert.Nil(t, f.message(t, res.Message.ID).DateRead)

	for _, conn := range []string{"conn:p1", "conn:p2"} {
		notes := f.presenceOut.events(conn, models.EventNewMessageReceived)
		require.Len(t, notes, 1, conn)
		assert.Equal(t, "amy", notes[0].Notification.Username)
	}
}

func TestThreadThenSendMarksRead(t *testing.T) {
	f := newFixture(t, "amy", "bob")
	ctx := context.Background()

	_, err := f.conversation.Connect(ctx, Session{ConnectionID: "c1", Username: "amy"}, "bob")
	require.NoError(t, err)
	first, err := f.conversation.SendMessage(ctx, Session{ConnectionID: "c1", Username: "amy"}, "bob", "hi")
	require.NoError(t, err)
	require.Nil(t, first.Message.DateRead)

	_, err = f.conversation.Connect(ctx, Session{ConnectionID: "c2", Username: "bob"}, "amy")
	require.NoError(t, err)

	threads := f.clients.events("conn:c2", models.EventMessageThread)
	require.Len(t, threads, 1)
	require.Len(t, threads[0].Messages, 1)
	assert.Equal(t, "hi", threads[0].Messages[0].Content)
	assert.NotNil(t, threads[0].Messages[0].DateRead)
	assert.NotNil(t, f.message(t, first.Message.ID).DateRead)

	second, err := f.conversation.SendMessage(ctx, Session{ConnectionID: "c1", Username: "amy"}, "bob", "there?")
	require.NoError(t, err)
	assert.Equal(t, models.SendDelivered, second.Status)
	assert.NotNil(t, second.Message.DateRead)
	assert.NotNil(t, f.message(t, second.Message.ID).DateRead)
}

func TestSendRejectsSelfAndBlank(t *testing.T) {
	f := newFixture(t, "amy", "bob")
	ctx := context.Background()
	s := Session{ConnectionID: "c1", Username: "amy"}

	_, err := f.conversation.SendMessage(ctx, s, "amy", "hi")
	assert.ErrorIs(t, err, ErrSelfTarget)
	_, err = f.conversation.SendMessage(ctx, s, " Amy ", "hi")
	assert.ErrorIs(t, err, ErrSelfTarget)
	_, err = f.conversation.SendMessage(ctx, s, "bob", "   ")
	assert.ErrorIs(t, err, ErrEmptyContent)
	_, err = f.conversation.SendMessage(ctx, s, "ghost", "hi")
	assert.ErrorIs(t, err, ErrIdentity)

	assert.Empty(t, f.clients.sent)
	assert.Zero(t, f.store.completes)
}

func TestSendCommitFailureHasNoSideEffects(t *testing.T) {
	f := newFixture(t, "amy", "bob")
	ctx := context.Background()

	f.presence.Connect("bob", "p1")
	f.presenceOut.reset()

	f.store.failNext()
	_, err := f.conversation.SendMessage(ctx, Session{ConnectionID: "c1", Username: "amy"}, "bob", "hi")
	require.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, "persistence_failure", ErrorCode(err))

	assert.Empty(t, f.clients.sent)
	assert.Empty(t, f.presenceOut.sent)

	res, err := f.conversation.SendMessage(ctx, Session{ConnectionID: "c1", Username: "amy"}, "bob", "hi again")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Message.ID)
}

func TestErrorCodes(t *testing.T) {
	assert.Equal(t, "identity_error", ErrorCode(fmt.Errorf("wrapped: %w", ErrIdentity)))
	assert.Equal(t, "self_target", ErrorCode(ErrSelfTarget))
	assert.Equal(t, "invalid_message", ErrorCode(ErrEmptyContent))
	assert.Equal(t, "internal_error", ErrorCode(ErrIntegrity))
}
