package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/caption/internal/session"
)

const placeholder = session.DefaultPlaceholder

// runSuite exercises the SessionStore contract against any backend.
func runSuite(t *testing.T, open func(t *testing.T) SessionStore) {
	t.Run("CreateAndGet", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		created, err := s.CreateSession(ctx, "owner-1", placeholder)
		require.NoError(t, err)
		_, err = uuid.Parse(created.ID)
		require.NoError(t, err)

		got, err := s.GetSession(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "owner-1", got.OwnerID)
		assert.Equal(t, placeholder, got.Label)
		assert.Zero(t, got.MessageCount)
		assert.False(t, got.LabelGenerationAttempted)
		assert.False(t, got.LabelManual)
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := open(t)
		_, err := s.GetSession(context.Background(), uuid.NewString())
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = s.ReadLabel(context.Background(), uuid.NewString())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("AppendMessages", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		sess, err := s.CreateSession(ctx, "owner-1", placeholder)
		require.NoError(t, err)

		for i, content := range []string{"first", "second", "third", "fourth"} {
			role := session.RoleUser
			if i%2 == 1 {
				role = session.RoleAssistant
			}
			count, err := s.AppendMessage(ctx, sess.ID, role, content)
			require.NoError(t, err)
			assert.Equal(t, i+1, count)
		}

		msgs, err := s.GetFirstMessages(ctx, sess.ID, 3)
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		assert.Equal(t, "first", msgs[0].Content)
		assert.Equal(t, session.RoleAssistant, msgs[1].Role)
		assert.Equal(t, 2, msgs[2].Position)

		_, err = s.AppendMessage(ctx, uuid.NewString(), session.RoleUser, "orphan")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ClaimRequiresThreshold", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		sess, err := s.CreateSession(ctx, "owner-1", placeholder)
		require.NoError(t, err)

		_, err = s.AppendMessage(ctx, sess.ID, session.RoleUser, "hello")
		require.NoError(t, err)
		ok, err := s.ClaimGeneration(ctx, sess.ID, 3, placeholder)
		require.NoError(t, err)
		assert.False(t, ok)

		for _, c := range []string{"a", "b"} {
			_, err = s.AppendMessage(ctx, sess.ID, session.RoleUser, c)
			require.NoError(t, err)
		}
		ok, err = s.ClaimGeneration(ctx, sess.ID, 3, placeholder)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.ClaimGeneration(ctx, sess.ID, 3, placeholder)
		require.NoError(t, err)
		assert.False(t, ok, "second claim must fail")
	})

	t.Run("ClaimIsExclusive", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		sess, err := s.CreateSession(ctx, "owner-1", placeholder)
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			_, err = s.AppendMessage(ctx, sess.ID, session.RoleUser, "msg")
			require.NoError(t, err)
		}

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.ClaimGeneration(ctx, sess.ID, 3, placeholder)
				assert.NoError(t, err)
				if ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("WriteAndReadLabel", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		sess, err := s.CreateSession(ctx, "owner-1", placeholder)
		require.NoError(t, err)

		found, err := s.WriteLabel(ctx, sess.ID, "Knee Pain")
		require.NoError(t, err)
		assert.True(t, found)

		label, err := s.ReadLabel(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, "Knee Pain", label)

		got, err := s.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.True(t, got.LabelGenerationAttempted)

		found, err = s.WriteLabel(ctx, uuid.NewString(), "Ghost")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("RenameWinsOverGeneratedLabel", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		sess, err := s.CreateSession(ctx, "owner-1", placeholder)
		require.NoError(t, err)

		found, err := s.RenameSession(ctx, sess.ID, "My Title")
		require.NoError(t, err)
		assert.True(t, found)

		found, err = s.WriteLabel(ctx, sess.ID, "Generated Title")
		require.NoError(t, err)
		assert.True(t, found)

		label, err := s.ReadLabel(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, "My Title", label)

		got, err := s.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.True(t, got.LabelManual)

		ok, err := s.ClaimGeneration(ctx, sess.ID, 0, "My Title")
		require.NoError(t, err)
		assert.False(t, ok, "renamed sessions are never claimed")
	})

	t.Run("ListSessionsByOwner", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		a, err := s.CreateSession(ctx, "owner-a", placeholder)
		require.NoError(t, err)
		_, err = s.CreateSession(ctx, "owner-b", placeholder)
		require.NoError(t, err)
		_, err = s.WriteLabel(ctx, a.ID, "Sore Throat")
		require.NoError(t, err)

		list, err := s.ListSessions(ctx, "owner-a")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, a.ID, list[0].ID)
		assert.Equal(t, "Sore Throat", list[0].Label)

		empty, err := s.ListSessions(ctx, "nobody")
		require.NoError(t, err)
		assert.NotNil(t, empty)
		assert.Empty(t, empty)
	})

	t.Run("ListPending", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		ready, err := s.CreateSession(ctx, "owner-1", placeholder)
		require.NoError(t, err)
		short, err := s.CreateSession(ctx, "owner-1", placeholder)
		require.NoError(t, err)
		renamed, err := s.CreateSession(ctx, "owner-1", placeholder)
		require.NoError(t, err)

		for _, id := range []string{ready.ID, renamed.ID} {
			for i := 0; i < 3; i++ {
				_, err := s.AppendMessage(ctx, id, session.RoleUser, "msg")
				require.NoError(t, err)
			}
		}
		_, err = s.AppendMessage(ctx, short.ID, session.RoleUser, "msg")
		require.NoError(t, err)
		_, err = s.RenameSession(ctx, renamed.ID, placeholder)
		require.NoError(t, err)

		ids, err := s.ListPendingSessions(ctx, 3, placeholder, 1000)
		require.NoError(t, err)
		assert.Contains(t, ids, ready.ID)
		assert.NotContains(t, ids, short.ID)
		assert.NotContains(t, ids, renamed.ID)
	})

	t.Run("Delete", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		sess, err := s.CreateSession(ctx, "owner-1", placeholder)
		require.NoError(t, err)
		_, err = s.AppendMessage(ctx, sess.ID, session.RoleUser, "bye")
		require.NoError(t, err)

		found, err := s.DeleteSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.True(t, found)

		_, err = s.GetSession(ctx, sess.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		msgs, err := s.GetFirstMessages(ctx, sess.ID, 10)
		require.NoError(t, err)
		assert.Empty(t, msgs)

		found, err = s.DeleteSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.False(t, found)
	})
}
