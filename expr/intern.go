package expr

import (
	"encoding/binary"
	"sync"
	"weak"

	"github.com/cespare/xxhash/v2"
)

// InternStats describes the state of the node table.
type InternStats struct {
	Lookups uint64
	Hits    uint64
	Live    uint64
}

type internTable struct {
	lock    sync.Mutex
	buckets map[uint64][]weak.Pointer[Expr]
	nextID  uint64
	stats   InternStats
}

var nodes = &internTable{
	buckets: map[uint64][]weak.Pointer[Expr]{},
}

type updateTable struct {
	lock    sync.Mutex
	buckets map[uint64][]weak.Pointer[UpdateNode]
	nextID  uint64
}

var updateNodes = &updateTable{
	buckets: map[uint64][]weak.Pointer[UpdateNode]{},
}

// Stats returns a snapshot of the intern table counters. Live counts bucket
// entries, some of which may have been collected since the last lookup in
// their bucket.
func Stats() InternStats {
	nodes.lock.Lock()
	defer nodes.lock.Unlock()
	return nodes.stats
}

// intern returns the canonical node structurally equal to n.
func intern(n Expr) *Expr {
	n.meta = n.computeMeta()
	n.hash = n.computeHash()

	nodes.lock.Lock()
	defer nodes.lock.Unlock()
	nodes.stats.Lookups++

	bucket := nodes.buckets[n.hash]
	live := bucket[:0]
	var found *Expr
	for _, wp := range bucket {
		p := wp.Value()
		if p == nil {
			nodes.stats.Live--
			continue
		}
		live = append(live, wp)
		if found == nil && p.shallowEqual(&n) {
			found = p
		}
	}
	if found != nil {
		nodes.buckets[n.hash] = live
		nodes.stats.Hits++
		return found
	}

	nodes.nextID++
	n.id = nodes.nextID
	p := new(Expr)
	*p = n
	nodes.buckets[n.hash] = append(live, weak.Make(p))
	nodes.stats.Live++
	return p
}

func (e *Expr) computeMeta() bool {
	if e.kind == KindVersionChoice {
		return true
	}
	for i := 0; i < int(e.nkids); i++ {
		if k := e.kids[i]; k != nil && k.meta {
			return true
		}
	}
	if e.kind == KindRead && e.updates.Head != nil {
		return e.updates.Head.meta
	}
	return false
}

func (e *Expr) computeHash() uint64 {
	var buf [8]byte
	d := xxhash.New()
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = d.Write(buf[:])
	}
	put(uint64(e.kind)<<32 | uint64(e.width))
	put(e.value)
	for i := 0; i < int(e.nkids); i++ {
		if k := e.kids[i]; k != nil {
			put(k.id)
		} else {
			put(0)
		}
	}
	switch e.kind {
	case KindRead:
		put(e.updates.Root.id)
		if e.updates.Head != nil {
			put(e.updates.Head.id)
		}
	case KindVersionChoice:
		put(e.patches[0])
		put(e.patches[1])
	}
	return d.Sum64()
}

// internUpdate returns the canonical update node writing value at index in
// front of next.
func internUpdate(index, value *Expr, next *UpdateNode) *UpdateNode {
	var buf [8]byte
	d := xxhash.New()
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = d.Write(buf[:])
	}
	put(index.id)
	put(value.id)
	if next != nil {
		put(next.id)
	} else {
		put(0)
	}
	h := d.Sum64()

	updateNodes.lock.Lock()
	defer updateNodes.lock.Unlock()

	bucket := updateNodes.buckets[h]
	live := bucket[:0]
	var found *UpdateNode
	for _, wp := range bucket {
		p := wp.Value()
		if p == nil {
			continue
		}
		live = append(live, wp)
		if found == nil && p.index == index && p.value == value && p.next == next {
			found = p
		}
	}
	if found != nil {
		updateNodes.buckets[h] = live
		return found
	}

	updateNodes.nextID++
	un := &UpdateNode{
		index: index,
		value: value,
		next:  next,
		size:  1,
		id:    updateNodes.nextID,
		meta:  index.meta || value.meta,
	}
	if next != nil {
		un.size += next.size
		un.meta = un.meta || next.meta
	}
	updateNodes.buckets[h] = append(live, weak.Make(un))
	return un
}
