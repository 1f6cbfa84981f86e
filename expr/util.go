package expr

// FindReads returns every Read node reachable from e, each once. With
// visitUpdates set, the indices and values of the writes in each read's update
// list are searched as well. Constants are never pushed.
func FindReads(e *Expr, visitUpdates bool) []*Expr {
	var results []*Expr
	if e == nil || e.IsConstant() {
		return results
	}

	visited := map[*Expr]struct{}{e: {}}
	heads := map[*UpdateNode]struct{}{}
	stack := []*Expr{e}

	push := func(k *Expr) {
		if k == nil || k.IsConstant() {
			return
		}
		if _, ok := visited[k]; ok {
			return
		}
		visited[k] = struct{}{}
		stack = append(stack, k)
	}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if top.kind != KindRead {
			for i := 0; i < int(top.nkids); i++ {
				push(top.kids[i])
			}
			continue
		}

		results = append(results, top)
		push(top.kids[0])
		if !visitUpdates {
			continue
		}
		// Lists that share a head share all their writes.
		head := top.updates.Head
		if _, ok := heads[head]; ok {
			continue
		}
		heads[head] = struct{}{}
		for un := head; un != nil; un = un.next {
			push(un.index)
			push(un.value)
		}
	}
	return results
}

// FindSymbolicObjects returns the symbolic arrays read by exprs, each once, in
// the order they are first reached. Update lists are searched before the
// array they extend.
func FindSymbolicObjects(exprs ...*Expr) []*Array {
	f := &arrayFinder{
		visited: map[*Expr]struct{}{},
		seen:    map[*Array]struct{}{},
		match:   (*Array).IsSymbolicArray,
	}
	for _, e := range exprs {
		f.visit(e)
	}
	return f.results
}

// FindConstantArrays returns the constant arrays read by exprs, each once.
func FindConstantArrays(exprs ...*Expr) []*Array {
	f := &arrayFinder{
		visited: map[*Expr]struct{}{},
		seen:    map[*Array]struct{}{},
		match:   (*Array).IsConstantArray,
	}
	for _, e := range exprs {
		f.visit(e)
	}
	return f.results
}

type arrayFinder struct {
	visited map[*Expr]struct{}
	seen    map[*Array]struct{}
	match   func(*Array) bool
	results []*Array
}

func (f *arrayFinder) visit(e *Expr) {
	if e == nil || e.IsConstant() {
		return
	}
	if _, ok := f.visited[e]; ok {
		return
	}
	f.visited[e] = struct{}{}

	if e.kind == KindRead {
		for un := e.updates.Head; un != nil; un = un.next {
			f.visit(un.index)
			f.visit(un.value)
		}
		root := e.updates.Root
		if _, ok := f.seen[root]; !ok && f.match(root) {
			f.seen[root] = struct{}{}
			f.results = append(f.results, root)
		}
	}
	for i := 0; i < int(e.nkids); i++ {
		f.visit(e.kids[i])
	}
}
