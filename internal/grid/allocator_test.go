package grid

import (
	"testing"

	"alyx/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addResource(t *testing.T, registry *Registry, id, location string, cores int32, memoryMB int64, cpu, memory float64) {
	t.Helper()
	_, err := registry.Register(id, location, common.Resource{Cores: cores, MemoryMB: memoryMB})
	require.NoError(t, err)
	require.NoError(t, registry.UpdateUtilization(id, cpu, memory))
}

func TestAllocatorPicksLowestLoadScore(t *testing.T) {
	registry := NewRegistry(nil)
	allocator := NewAllocator(registry)

	addResource(t, registry, "busy", "geneva", 16, 32000, 0.8, 0.8)
	addResource(t, registry, "idle", "geneva", 16, 32000, 0.1, 0.1)

	decisions := allocator.Allocate([]DistributionRequest{{
		JobID:    "job-1",
		Required: common.Resource{Cores: 4, MemoryMB: 8000},
		Tier:     TierNormal,
	}})

	require.Len(t, decisions, 1)
	require.True(t, decisions[0].Granted())
	assert.Equal(t, "idle", decisions[0].Resource.ID)
}

func TestAllocatorTieBreaksByLowestID(t *testing.T) {
	registry := NewRegistry(nil)
	allocator := NewAllocator(registry)

	addResource(t, registry, "site-b", "geneva", 16, 32000, 0.2, 0.2)
	addResource(t, registry, "site-a", "geneva", 16, 32000, 0.2, 0.2)

	decisions := allocator.Allocate([]DistributionRequest{{
		JobID:    "job-1",
		Required: common.Resource{Cores: 4, MemoryMB: 8000},
		Tier:     TierNormal,
	}})

	require.True(t, decisions[0].Granted())
	assert.Equal(t, "site-a", decisions[0].Resource.ID)
}

func TestAllocatorPreferredLocation(t *testing.T) {
	registry := NewRegistry(nil)
	allocator := NewAllocator(registry)

	// R1 在偏好位置但负载更高，R2 在别处负载更低
	addResource(t, registry, "r1", "loc-a", 8, 16000, 0.2, 0.2)
	addResource(t, registry, "r2", "loc-b", 4, 8000, 0.1, 0.1)

	decisions := allocator.Allocate([]DistributionRequest{{
		JobID:             "job-1",
		Required:          common.Resource{Cores: 4, MemoryMB: 8000},
		PreferredLocation: "loc-a",
		Tier:              TierHigh,
	}})

	require.True(t, decisions[0].Granted())
	assert.Equal(t, "r1", decisions[0].Resource.ID)
	assert.Equal(t, int32(4), decisions[0].Resource.Available.Cores)
	assert.Equal(t, int64(8000), decisions[0].Resource.Available.MemoryMB)
}

func TestAllocatorPreferredLocationFallback(t *testing.T) {
	registry := NewRegistry(nil)
	allocator := NewAllocator(registry)

	addResource(t, registry, "r2", "loc-b", 8, 16000, 0.1, 0.1)

	// 偏好位置没有任何候选时回退到全部合格资源
	decisions := allocator.Allocate([]DistributionRequest{{
		JobID:             "job-1",
		Required:          common.Resource{Cores: 4, MemoryMB: 8000},
		PreferredLocation: "loc-a",
		Tier:              TierNormal,
	}})

	require.True(t, decisions[0].Granted())
	assert.Equal(t, "r2", decisions[0].Resource.ID)
}

func TestAllocatorSkipsOfflineResources(t *testing.T) {
	registry := NewRegistry(nil)
	allocator := NewAllocator(registry)

	addResource(t, registry, "offline", "geneva", 16, 32000, 0.0, 0.0)
	require.True(t, registry.markOffline("offline"))

	decisions := allocator.Allocate([]DistributionRequest{{
		JobID:    "job-1",
		Required: common.Resource{Cores: 4, MemoryMB: 8000},
		Tier:     TierNormal,
	}})

	assert.False(t, decisions[0].Granted())
}

func TestAllocatorDefersWhenNothingFits(t *testing.T) {
	registry := NewRegistry(nil)
	allocator := NewAllocator(registry)

	addResource(t, registry, "small-1", "geneva", 16, 32000, 0.1, 0.1)
	addResource(t, registry, "small-2", "geneva", 16, 32000, 0.1, 0.1)

	// 需要 32 核但最大只有 16 核：搁置而不是报错
	decisions := allocator.Allocate([]DistributionRequest{{
		JobID:    "job-1",
		Required: common.Resource{Cores: 32, MemoryMB: 8000},
		Tier:     TierCritical,
	}})

	require.Len(t, decisions, 1)
	assert.False(t, decisions[0].Granted())
	assert.Equal(t, 0, allocator.AllocationCount())
}

func TestAllocatorPriorityTierOrdering(t *testing.T) {
	registry := NewRegistry(nil)
	allocator := NewAllocator(registry)

	// 只够一个作业的容量，CRITICAL 请求必须先被满足
	addResource(t, registry, "single", "geneva", 4, 8000, 0.1, 0.1)

	decisions := allocator.Allocate([]DistributionRequest{
		{JobID: "low", Required: common.Resource{Cores: 4, MemoryMB: 8000}, Tier: TierLow},
		{JobID: "critical", Required: common.Resource{Cores: 4, MemoryMB: 8000}, Tier: TierCritical},
	})

	require.Len(t, decisions, 2)
	assert.Equal(t, "critical", decisions[0].Request.JobID)
	assert.True(t, decisions[0].Granted())
	assert.False(t, decisions[1].Granted())
}

func TestAllocatorSameTierKeepsArrivalOrder(t *testing.T) {
	registry := NewRegistry(nil)
	allocator := NewAllocator(registry)

	addResource(t, registry, "single", "geneva", 4, 8000, 0.1, 0.1)

	decisions := allocator.Allocate([]DistributionRequest{
		{JobID: "first", Required: common.Resource{Cores: 4, MemoryMB: 8000}, Tier: TierNormal},
		{JobID: "second", Required: common.Resource{Cores: 4, MemoryMB: 8000}, Tier: TierNormal},
	})

	assert.True(t, decisions[0].Granted())
	assert.Equal(t, "first", decisions[0].Request.JobID)
	assert.False(t, decisions[1].Granted())
}

func TestAllocatorDeallocateIsIdempotent(t *testing.T) {
	registry := NewRegistry(nil)
	allocator := NewAllocator(registry)

	addResource(t, registry, "site", "geneva", 8, 16000, 0.1, 0.1)

	decisions := allocator.Allocate([]DistributionRequest{{
		JobID:    "job-1",
		Required: common.Resource{Cores: 4, MemoryMB: 8000},
		Tier:     TierNormal,
	}})
	require.True(t, decisions[0].Granted())

	allocator.Deallocate("job-1")
	allocator.Deallocate("job-1")
	// 从未分配过的作业释放也是无操作
	allocator.Deallocate("never-allocated")

	resource, err := registry.Get("site")
	require.NoError(t, err)
	assert.Equal(t, resource.Total, resource.Available)
}

func TestAllocatorRepeatedCyclesKeepCapacityConsistent(t *testing.T) {
	registry := NewRegistry(nil)
	allocator := NewAllocator(registry)

	addResource(t, registry, "site", "geneva", 8, 16000, 0.1, 0.1)
	amount := common.Resource{Cores: 2, MemoryMB: 4000}

	for i := 0; i < 50; i++ {
		decisions := allocator.Allocate([]DistributionRequest{{
			JobID:    "job-cycle",
			Required: amount,
			Tier:     TierNormal,
		}})
		require.True(t, decisions[0].Granted())
		allocator.Deallocate("job-cycle")
	}

	resource, err := registry.Get("site")
	require.NoError(t, err)
	assert.Equal(t, resource.Total, resource.Available)
}
