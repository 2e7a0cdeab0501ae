package rbac_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/estatehub/estatehub/internal/rbac"
)

func TestLocalNotifierFansOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n := rbac.NewLocalNotifier()

	first := make(chan rbac.Change, 1)
	second := make(chan rbac.Change, 1)
	require.NoError(t, n.Subscribe(ctx, func(c rbac.Change) { first <- c }))
	require.NoError(t, n.Subscribe(ctx, func(c rbac.Change) { second <- c }))

	id := uuid.New()
	require.NoError(t, n.Publish(ctx, rbac.Change{Table: rbac.TablePermissions, Kind: rbac.ChangeInsert, PermissionID: id}))

	for _, ch := range []chan rbac.Change{first, second} {
		select {
		case c := <-ch:
			require.Equal(t, id, c.PermissionID)
		case <-time.After(time.Second):
			t.Fatal("change not delivered")
		}
	}
}

func TestLocalNotifierRequiresCallback(t *testing.T) {
	require.Error(t, rbac.NewLocalNotifier().Subscribe(context.Background(), nil))
}

func TestLocalNotifierStopsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	n := rbac.NewLocalNotifier()
	got := make(chan rbac.Change, 4)
	require.NoError(t, n.Subscribe(ctx, func(c rbac.Change) { got <- c }))
	cancel()

	require.Eventually(t, func() bool {
		_ = n.Publish(context.Background(), rbac.Change{Kind: rbac.ChangeInsert})
		select {
		case <-got:
			return false
		case <-time.After(20 * time.Millisecond):
			return true
		}
	}, time.Second, 10*time.Millisecond)
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisNotifierRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := newRedis(t)
	writer := rbac.NewRedisNotifier(client, "rbac.test")
	reader := rbac.NewRedisNotifier(client, "rbac.test")

	got := make(chan rbac.Change, 1)
	require.NoError(t, reader.Subscribe(ctx, func(c rbac.Change) { got <- c }))

	id := uuid.New()
	require.NoError(t, writer.Publish(ctx, rbac.Change{
		Table:        rbac.TableRolePermissions,
		Kind:         rbac.ChangeDelete,
		PermissionID: id,
		Role:         rbac.RoleManager,
	}))

	select {
	case c := <-got:
		require.Equal(t, rbac.TableRolePermissions, c.Table)
		require.Equal(t, rbac.ChangeDelete, c.Kind)
		require.Equal(t, id, c.PermissionID)
		require.Equal(t, rbac.RoleManager, c.Role)
	case <-time.After(2 * time.Second):
		t.Fatal("change not delivered over redis")
	}
}

func TestRedisNotifierUndecodablePayloadStillSignals(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := newRedis(t)
	n := rbac.NewRedisNotifier(client, "")

	got := make(chan rbac.Change, 1)
	require.NoError(t, n.Subscribe(ctx, func(c rbac.Change) { got <- c }))
	require.NoError(t, client.Publish(ctx, rbac.DefaultChangeChannel, "not json").Err())

	select {
	case c := <-got:
		require.Equal(t, rbac.ChangeUnknown, c.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("change not delivered")
	}
}
