package announcements

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptdeck/promptdeck/cmd/server/internal/apperrors"
	"github.com/promptdeck/promptdeck/cmd/server/internal/prompts"
	"github.com/promptdeck/promptdeck/cmd/server/internal/store"
)

func newService(t *testing.T) *Service {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewService(db)
}

var admin = prompts.Actor{ID: "admin-1", IsAdmin: true}

func TestCRUD(t *testing.T) {
	svc := newService(t)

	a, err := svc.Create(context.Background(), admin, &Input{
		Title: "maintenance window", Kind: KindMaintenance, Content: "down at noon",
	})
	require.NoError(t, err)
	assert.True(t, a.IsActive)

	a, err = svc.Update(context.Background(), admin, a.ID, &Input{
		Title: "maintenance moved", Kind: KindMaintenance,
	})
	require.NoError(t, err)

	all, err := svc.List(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "maintenance moved", all[0].Title)

	require.NoError(t, svc.Delete(context.Background(), admin, a.ID))
	all, err = svc.List(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestWritesAreAdminOnly(t *testing.T) {
	svc := newService(t)
	user := prompts.Actor{ID: "user-1"}

	_, err := svc.Create(context.Background(), user, &Input{Title: "x"})
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))

	_, err = svc.Update(context.Background(), user, "any", &Input{Title: "x"})
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))

	err = svc.Delete(context.Background(), user, "any")
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))
}

func TestInvalidKindRejected(t *testing.T) {
	svc := newService(t)

	_, err := svc.Create(context.Background(), admin, &Input{Title: "x", Kind: "gossip"})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestActiveWindow(t *testing.T) {
	svc := newService(t)
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	inactive := false

	_, err := svc.Create(context.Background(), admin, &Input{Title: "live now", PublishAt: &past, ExpireAt: &future})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), admin, &Input{Title: "not yet", PublishAt: &future})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), admin, &Input{Title: "expired", ExpireAt: &past})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), admin, &Input{Title: "switched off", IsActive: &inactive})
	require.NoError(t, err)

	active, err := svc.List(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "live now", active[0].Title)

	all, err := svc.List(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}
