// Package idr hands out opaque, reusable integer keys for values and
// resolves those keys back to values concurrently, without a lock on the
// read path.
//
//	r, err := idr.New[string](idr.DefaultConfig)
//	key, ok := r.Insert("hello")
//	g := r.Enter()
//	entry, ok := r.Get(key, g)
//	g.Leave()
//	r.Remove(key)
//
// A Key encodes which shard, page, and slot offset a value lives at, plus
// a generation counter that invalidates the key once that slot is reused
// for something else. Reads never block writers and writers never block
// readers; the cost of that is epoch-based reclamation, which means a
// removed value's storage isn't actually released until every Guard live
// at the moment of removal has called Leave.
package idr
