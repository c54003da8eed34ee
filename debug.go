package idr

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
)

// PageStat is a snapshot of one page's allocation state, returned by
// Idr.PageStats and embedded in Idr.Debug's output.
type PageStat struct {
	ShardIndex int
	PageIndex  int
	Capacity   uint32
	Allocated  bool
}

// PageStats walks every shard's page table and reports each page's
// capacity and whether its backing slot array has been installed yet.
// This is a diagnostics path, not a hot one: callers that want this on a
// schedule should do so from a background goroutine, not from request
// handling.
func (idr *Idr[T]) PageStats() []PageStat {
	stats := idr.snapshotPageStats()
	for shardIndex, shardStats := range stats {
		idr.pageStatsCache.Store(shardIndex, shardStats)
	}
	return flattenPageStats(stats)
}

// CachedPageStats returns the stats last observed for one shard by a
// PageStats call, without re-scanning. Concurrent readers never block each
// other or a concurrent refresh, since xsync.MapOf shards its internal
// locking the same way this package shards its own pages. Returns false if
// PageStats has never been called.
func (idr *Idr[T]) CachedPageStats(shardIndex int) ([]PageStat, bool) {
	return idr.pageStatsCache.Load(shardIndex)
}

func (idr *Idr[T]) snapshotPageStats() [][]PageStat {
	out := make([][]PageStat, len(idr.shards))
	for shardIndex, shard := range idr.shards {
		perShard := make([]PageStat, shard.NumPages())
		for pageIndex := 0; pageIndex < shard.NumPages(); pageIndex++ {
			page := shard.Page(pageIndex)
			perShard[pageIndex] = PageStat{
				ShardIndex: shardIndex,
				PageIndex:  pageIndex,
				Capacity:   page.Capacity(),
				Allocated:  page.Allocated(),
			}
		}
		out[shardIndex] = perShard
	}
	return out
}

func flattenPageStats(stats [][]PageStat) []PageStat {
	total := 0
	for _, s := range stats {
		total += len(s)
	}
	flat := make([]PageStat, 0, total)
	for _, s := range stats {
		flat = append(flat, s...)
	}
	return flat
}

// Debug returns a diagnostic snapshot of this Idr: its configuration, shard
// count, and current page allocation state, mirroring the reference
// implementation's Debug formatting of Idr/Config/PageControl.
func (idr *Idr[T]) Debug() any {
	return struct {
		Config     string
		ShardCount int
		Epoch      uint64
		Pages      []PageStat
	}{
		Config:     idr.layout.derived.cfg.String(),
		ShardCount: len(idr.shards),
		Epoch:      idr.ebrMgr.CurrentEpoch(),
		Pages:      idr.PageStats(),
	}
}

func (idr *Idr[T]) String() string {
	return fmt.Sprintf("Idr{shards:%d %s}", len(idr.shards), idr.layout.derived.cfg.String())
}

func newPageStatsCache() *xsync.MapOf[int, []PageStat] {
	return xsync.NewMapOf[int, []PageStat]()
}
