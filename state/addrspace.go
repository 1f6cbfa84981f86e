package state

import (
	"fmt"
	"sort"
)

// AddressSpace maps memory objects to their contents. Object states are
// shared between address spaces after a clone and copied on first write.
type AddressSpace struct {
	// cowKey identifies the object states this address space may write in
	// place.
	cowKey  uint32
	objects map[*MemoryObject]*ObjectState
}

// NewAddressSpace returns an empty address space.
func NewAddressSpace() *AddressSpace {
	return &AddressSpace{
		cowKey:  1,
		objects: map[*MemoryObject]*ObjectState{},
	}
}

// clone returns a copy sharing every object state with as. Both sides move to
// a new key, so neither can write a shared state in place.
func (as *AddressSpace) clone() *AddressSpace {
	as.cowKey++
	c := &AddressSpace{
		cowKey:  as.cowKey,
		objects: make(map[*MemoryObject]*ObjectState, len(as.objects)),
	}
	for mo, os := range as.objects {
		c.objects[mo] = os
	}
	return c
}

// BindObject binds os to mo and makes as its owner.
func (as *AddressSpace) BindObject(mo *MemoryObject, os *ObjectState) {
	if os.object != mo {
		panic(fmt.Sprintf("state: binding state of %s to %s", os.object, mo))
	}
	os.cowOwner = as.cowKey
	as.objects[mo] = os
}

func (as *AddressSpace) UnbindObject(mo *MemoryObject) {
	delete(as.objects, mo)
}

// FindObject returns the state bound to mo, or nil.
func (as *AddressSpace) FindObject(mo *MemoryObject) *ObjectState {
	return as.objects[mo]
}

// ResolveOne finds the object containing addr.
func (as *AddressSpace) ResolveOne(addr uint64) (*MemoryObject, *ObjectState, bool) {
	for mo, os := range as.objects {
		if mo.Contains(addr) {
			return mo, os, true
		}
	}
	return nil, nil, false
}

// GetWriteable returns a state of mo that as may modify, copying os if it is
// shared.
func (as *AddressSpace) GetWriteable(mo *MemoryObject, os *ObjectState) *ObjectState {
	if os.ReadOnly {
		panic("state: writable copy of read-only object " + mo.Name)
	}
	if os.cowOwner == as.cowKey {
		return os
	}
	c := os.clone()
	c.cowOwner = as.cowKey
	as.objects[mo] = c
	return c
}

// Objects returns the bound objects ordered by id.
func (as *AddressSpace) Objects() []*MemoryObject {
	mos := make([]*MemoryObject, 0, len(as.objects))
	for mo := range as.objects {
		mos = append(mos, mo)
	}
	sort.Slice(mos, func(i, j int) bool { return mos[i].ID < mos[j].ID })
	return mos
}

func (as *AddressSpace) Len() int { return len(as.objects) }
