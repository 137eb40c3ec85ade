package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smshub/internal/domain"
	"smshub/internal/ports"
	"smshub/internal/repository/memory"
)

func TestInsertAndGetByIDForTenant(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	m := domain.NewMessage("tenant-a", "+1", "hi", domain.ChannelHTTP)
	require.NoError(t, repo.Insert(ctx, m))

	got, err := repo.GetByIDForTenant(ctx, m.ID, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)

	_, err = repo.GetByIDForTenant(ctx, m.ID, "tenant-b")
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
}

func TestUpdateStatusAppliesFields(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	m := domain.NewMessage("tenant-a", "+1", "hi", domain.ChannelSMPP)
	require.NoError(t, repo.Insert(ctx, m))

	extID := "provider-123"
	retry := 2
	err := repo.UpdateStatus(ctx, m.ID, ports.StatusUpdate{
		Status:            domain.StatusSent,
		ExternalMessageID: &extID,
		RetryCount:        &retry,
	})
	require.NoError(t, err)

	got, err := repo.GetByIDForTenant(ctx, m.ID, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, got.Status)
	assert.Equal(t, "provider-123", got.ExternalMessageID)
	assert.Equal(t, 2, got.RetryCount)
}

func TestUpdateStatusUnknownID(t *testing.T) {
	repo := memory.New()
	err := repo.UpdateStatus(context.Background(), domain.NewMessage("t", "+1", "x", domain.ChannelHTTP).ID, ports.StatusUpdate{Status: domain.StatusFailed})
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
}

func TestListForTenantFiltersAndOrders(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	m1 := domain.NewMessage("tenant-a", "+1", "a", domain.ChannelHTTP)
	m2 := domain.NewMessage("tenant-a", "+2", "b", domain.ChannelHTTP)
	m2.CreatedAt = m1.CreatedAt.Add(time.Second)
	m3 := domain.NewMessage("tenant-b", "+3", "c", domain.ChannelHTTP)

	require.NoError(t, repo.Insert(ctx, m1))
	require.NoError(t, repo.Insert(ctx, m2))
	require.NoError(t, repo.Insert(ctx, m3))

	out, err := repo.ListForTenant(ctx, "tenant-a", "", 10)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, m2.ID, out[0].ID)

	extID := "x"
	require.NoError(t, repo.UpdateStatus(ctx, m1.ID, ports.StatusUpdate{Status: domain.StatusFailed, ExternalMessageID: &extID}))

	failedOnly, err := repo.ListForTenant(ctx, "tenant-a", domain.StatusFailed, 10)
	require.NoError(t, err)
	require.Len(t, failedOnly, 1)
	assert.Equal(t, m1.ID, failedOnly[0].ID)
}

func TestGetByExternalID(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	m := domain.NewMessage("tenant-a", "+1", "hi", domain.ChannelSMPP)
	require.NoError(t, repo.Insert(ctx, m))

	extID := "smsc-999"
	require.NoError(t, repo.UpdateStatus(ctx, m.ID, ports.StatusUpdate{Status: domain.StatusSent, ExternalMessageID: &extID}))

	got, err := repo.GetByExternalID(ctx, "smsc-999")
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)

	_, err = repo.GetByExternalID(ctx, "does-not-exist")
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
}
