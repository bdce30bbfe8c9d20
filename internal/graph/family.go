package graph

// family holds the single-parent tree edges. Children lists are ordered.
type family struct {
	parent   map[string]string
	children map[string][]string
}

func newFamily() family {
	return family{
		parent:   make(map[string]string),
		children: make(map[string][]string),
	}
}

func (f family) clone() family {
	c := family{
		parent:   make(map[string]string, len(f.parent)),
		children: make(map[string][]string, len(f.children)),
	}
	for k, v := range f.parent {
		c.parent[k] = v
	}
	for k, v := range f.children {
		c.children[k] = append([]string(nil), v...)
	}
	return c
}

// attach makes child the index-th child of parent, detaching it from any
// previous parent first. A negative or out of range index appends.
func (f family) attach(parent, child string, index int) {
	f.detach(child)
	list := f.children[parent]
	if index < 0 || index >= len(list) {
		list = append(list, child)
	} else {
		list = append(list[:index], append([]string{child}, list[index:]...)...)
	}
	f.children[parent] = list
	f.parent[child] = parent
}

// detach removes child from its parent and reports whether it had one.
func (f family) detach(child string) bool {
	p, ok := f.parent[child]
	if !ok {
		return false
	}
	list := without(f.children[p], child)
	if len(list) == 0 {
		delete(f.children, p)
	} else {
		f.children[p] = list
	}
	delete(f.parent, child)
	return true
}

// isAncestor reports whether a lies on the parent chain of b.
func (f family) isAncestor(a, b string) bool {
	seen := make(map[string]struct{})
	for cur, ok := f.parent[b]; ok; cur, ok = f.parent[cur] {
		if cur == a {
			return true
		}
		if _, loop := seen[cur]; loop {
			return false
		}
		seen[cur] = struct{}{}
	}
	return false
}

func (f family) indexOf(parent, child string) int {
	for i, c := range f.children[parent] {
		if c == child {
			return i
		}
	}
	return -1
}
