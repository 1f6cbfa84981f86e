package explore

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/speakeasy-api/diffvm/prog"
	"github.com/speakeasy-api/diffvm/state"
)

// fingerprint hashes the parts of a state that must agree for a merge: the
// pc, the shape of the stack, the symbolic inputs and the bound objects.
// States with different fingerprints never merge; equal fingerprints are
// only candidates.
func fingerprint(st *state.ExecutionState) uint64 {
	h := xxhash.New()
	var buf [8]byte
	writeUint := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	writeInst := func(i *prog.Instruction) {
		if i == nil {
			writeUint(^uint64(0))
			return
		}
		h.WriteString(i.Function.Name)
		writeUint(uint64(i.Index))
	}

	writeInst(st.PC)

	writeUint(uint64(len(st.Stack)))
	for i := range st.Stack {
		sf := &st.Stack[i]
		writeInst(sf.Caller)
		h.WriteString(sf.Func.Name)
	}

	writeUint(uint64(len(st.Symbolics)))
	for _, s := range st.Symbolics {
		writeUint(s.Object.ID)
		h.WriteString(s.Array.Name())
	}

	objs := st.AddressSpace.Objects()
	writeUint(uint64(len(objs)))
	for _, mo := range objs {
		writeUint(mo.ID)
	}

	return h.Sum64()
}
