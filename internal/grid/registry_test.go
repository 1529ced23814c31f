package grid

import (
	"testing"
	"time"

	"alyx/internal/common"
	"alyx/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	registry := NewRegistry(nil)

	resource, err := registry.Register("cern-01", "geneva", common.Resource{Cores: 8, MemoryMB: 16000})
	require.NoError(t, err)
	assert.Equal(t, "cern-01", resource.ID)
	assert.True(t, resource.IsOnline)
	assert.Equal(t, resource.Total, resource.Available)

	fetched, err := registry.Get("cern-01")
	require.NoError(t, err)
	assert.Equal(t, "geneva", fetched.Location)
}

func TestRegistryRegisterValidation(t *testing.T) {
	registry := NewRegistry(nil)

	// 空 id 与非法容量都应被拒绝
	_, err := registry.Register("", "geneva", common.Resource{Cores: 8, MemoryMB: 16000})
	assert.ErrorIs(t, err, common.ErrInvalidParameters)

	_, err = registry.Register("cern-01", "geneva", common.Resource{Cores: 0, MemoryMB: 16000})
	assert.ErrorIs(t, err, common.ErrInvalidParameters)
}

func TestRegistryDuplicateRegistration(t *testing.T) {
	registry := NewRegistry(nil)

	_, err := registry.Register("cern-01", "geneva", common.Resource{Cores: 8, MemoryMB: 16000})
	require.NoError(t, err)

	// 重复注册返回已有资源而不是报错
	existing, err := registry.Register("cern-01", "lyon", common.Resource{Cores: 4, MemoryMB: 8000})
	require.NoError(t, err)
	assert.Equal(t, "geneva", existing.Location)
}

func TestRegistryDeregister(t *testing.T) {
	registry := NewRegistry(nil)

	_, err := registry.Register("cern-01", "geneva", common.Resource{Cores: 8, MemoryMB: 16000})
	require.NoError(t, err)

	require.NoError(t, registry.Deregister("cern-01"))

	_, err = registry.Get("cern-01")
	assert.ErrorIs(t, err, common.ErrNotFound)

	assert.ErrorIs(t, registry.Deregister("cern-01"), common.ErrNotFound)
}

func TestRegistryHeartbeatBringsResourceOnline(t *testing.T) {
	registry := NewRegistry(nil)

	_, err := registry.Register("cern-01", "geneva", common.Resource{Cores: 8, MemoryMB: 16000})
	require.NoError(t, err)
	require.True(t, registry.markOffline("cern-01"))

	before, err := registry.Get("cern-01")
	require.NoError(t, err)
	require.False(t, before.IsOnline)

	require.NoError(t, registry.Heartbeat("cern-01"))

	after, err := registry.Get("cern-01")
	require.NoError(t, err)
	assert.True(t, after.IsOnline)
	assert.WithinDuration(t, time.Now(), after.LastHeartbeat, time.Second)
}

func TestRegistryUtilizationValidation(t *testing.T) {
	registry := NewRegistry(nil)

	_, err := registry.Register("cern-01", "geneva", common.Resource{Cores: 8, MemoryMB: 16000})
	require.NoError(t, err)

	require.NoError(t, registry.UpdateUtilization("cern-01", 0.5, 0.7))

	resource, err := registry.Get("cern-01")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, resource.LoadScore(), 1e-9)

	assert.ErrorIs(t, registry.UpdateUtilization("cern-01", 1.5, 0.7), common.ErrInvalidParameters)
	assert.ErrorIs(t, registry.UpdateUtilization("missing", 0.5, 0.7), common.ErrNotFound)
}

func TestRegistryReserveReleaseInvariants(t *testing.T) {
	registry := NewRegistry(nil)

	_, err := registry.Register("cern-01", "geneva", common.Resource{Cores: 8, MemoryMB: 16000})
	require.NoError(t, err)

	amount := common.Resource{Cores: 4, MemoryMB: 8000}
	require.NoError(t, registry.Reserve("cern-01", "job-1", amount))
	require.NoError(t, registry.Reserve("cern-01", "job-2", amount))

	// 容量耗尽后继续预留必须失败，可用容量不为负
	err = registry.Reserve("cern-01", "job-3", amount)
	assert.ErrorIs(t, err, common.ErrResourceUnavailable)

	resource, err := registry.Get("cern-01")
	require.NoError(t, err)
	assert.Equal(t, int32(0), resource.Available.Cores)
	assert.Equal(t, int64(0), resource.Available.MemoryMB)

	// 释放后容量恢复，重复释放是无操作，永不超过总量
	require.NoError(t, registry.Release("cern-01", "job-1", amount))
	require.NoError(t, registry.Release("cern-01", "job-1", amount))
	require.NoError(t, registry.Release("cern-01", "job-2", amount))

	resource, err = registry.Get("cern-01")
	require.NoError(t, err)
	assert.Equal(t, resource.Total, resource.Available)
	assert.Empty(t, resource.RunningJobIDs())
}

func TestRegistryRestore(t *testing.T) {
	st := store.NewMemoryStore()
	require.NoError(t, st.SaveResource(store.ResourceRecord{
		ID:            "cern-01",
		Location:      "geneva",
		TotalCores:    8,
		TotalMemoryMB: 16000,
		IsOnline:      false,
		LastHeartbeat: time.Now().Add(-10 * time.Minute),
	}))

	registry := NewRegistry(st)
	require.NoError(t, registry.Restore())

	resource, err := registry.Get("cern-01")
	require.NoError(t, err)
	assert.False(t, resource.IsOnline)
	assert.Equal(t, int32(8), resource.Total.Cores)
}

func TestRegistryStatistics(t *testing.T) {
	registry := NewRegistry(nil)

	_, err := registry.Register("cern-01", "geneva", common.Resource{Cores: 8, MemoryMB: 16000})
	require.NoError(t, err)
	_, err = registry.Register("fnal-01", "batavia", common.Resource{Cores: 4, MemoryMB: 8000})
	require.NoError(t, err)
	require.True(t, registry.markOffline("fnal-01"))

	stats := registry.Statistics()
	assert.Equal(t, 2, stats.TotalResources)
	assert.Equal(t, 1, stats.OnlineResources)
	assert.Equal(t, 1, stats.OfflineResources)
	assert.Equal(t, int32(12), stats.TotalCores)
}
