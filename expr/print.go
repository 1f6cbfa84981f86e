package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// String renders e as an s-expression, for example
// (Add w32 (w32 1) (ZExt w32 (Read w8 (w32 0) arg00))).
func (e *Expr) String() string {
	var b strings.Builder
	e.print(&b)
	return b.String()
}

func (e *Expr) print(b *strings.Builder) {
	switch e.kind {
	case KindConstant:
		if e.width == Bool {
			if e.value == 1 {
				b.WriteString("true")
			} else {
				b.WriteString("false")
			}
			return
		}
		fmt.Fprintf(b, "(w%d %d)", e.width, e.value)
		return
	case KindRead:
		fmt.Fprintf(b, "(Read w%d ", e.width)
		e.kids[0].print(b)
		b.WriteByte(' ')
		printUpdates(b, e.updates)
		b.WriteByte(')')
		return
	case KindVersionChoice:
		fmt.Fprintf(b, "(VersionChoice w%d ", e.width)
		if e.kids[0] != nil {
			e.kids[0].print(b)
			b.WriteByte(' ')
		}
		b.WriteString(patchString(e.patches[0]))
		b.WriteByte(' ')
		e.kids[1].print(b)
		b.WriteByte(' ')
		b.WriteString(patchString(e.patches[1]))
		b.WriteByte(' ')
		e.kids[2].print(b)
		b.WriteByte(')')
		return
	case KindExtract:
		fmt.Fprintf(b, "(Extract w%d %d ", e.width, e.value)
		e.kids[0].print(b)
		b.WriteByte(')')
		return
	}

	fmt.Fprintf(b, "(%s w%d", e.kind, e.width)
	for i := 0; i < int(e.nkids); i++ {
		b.WriteByte(' ')
		e.kids[i].print(b)
	}
	b.WriteByte(')')
}

func printUpdates(b *strings.Builder, ul UpdateList) {
	if ul.Head == nil {
		b.WriteString(ul.Root.name)
		return
	}
	b.WriteByte('[')
	for un := ul.Head; un != nil; un = un.next {
		if un != ul.Head {
			b.WriteString(", ")
		}
		un.index.print(b)
		b.WriteByte('=')
		un.value.print(b)
	}
	b.WriteString("] @ ")
	b.WriteString(ul.Root.name)
}

func patchString(p PatchID) string {
	if p == PatchMerged {
		return "merged"
	}
	return strconv.FormatUint(p, 10)
}
