package semtree

import (
	"fmt"

	"github.com/starford/bonsai/internal/outline"
)

// loader returns the parsed outline of file. stack is the chain of index
// documents that led to it.
type loader func(file string, stack []string) (outline.Result, error)

// planner walks index documents depth first and records where every entry
// belongs, by filename. It never touches the graph.
type planner struct {
	isIndex    func(string) bool
	isTemplate func(string) bool
	load       loader
	report     *Report

	children map[string][]string
	// placed maps a filename to the index document that placed it.
	placed map[string]string
	// outlines keeps every document the walk parsed.
	outlines map[string]outline.Result
	failed   bool
}

func newPlanner(isIndex, isTemplate func(string) bool, load loader, report *Report) *planner {
	return &planner{
		isIndex:    isIndex,
		isTemplate: isTemplate,
		load:       load,
		report:     report,
		children:   make(map[string][]string),
		placed:     make(map[string]string),
		outlines:   make(map[string]outline.Result),
	}
}

// include places the outline of file under file itself. stack is the chain of
// index documents that led to file; it doubles as the visited set for the
// cycle guard. A cycle aborts the walk; lint errors only mark it failed so
// every document still gets checked.
func (p *planner) include(file string, stack []string) error {
	path := append(stack[:len(stack):len(stack)], file)

	res, err := p.load(file, stack)
	if err != nil {
		p.report.fail(file, 0, "read", err.Error())
		p.failed = true
		return nil
	}
	p.outlines[file] = res
	p.report.addOutline(file, res)
	if len(res.Errors) > 0 {
		p.failed = true
	}

	parents := []string{file}
	skip := -1
	for _, e := range res.Entries {
		if skip >= 0 && e.Depth > skip {
			continue
		}
		skip = -1
		name := e.Text

		if p.isTemplate(name) {
			p.report.warn(file, e.Line, KindTemplateEntry, fmt.Sprintf("%q is a template; it and its branch stay out of the tree", name))
			skip = e.Depth
			continue
		}

		depth := e.Depth
		if depth >= len(parents) {
			depth = len(parents) - 1
		}
		parents = parents[:depth+1]
		parent := parents[depth]

		if p.isIndex(name) {
			if at := indexOf(path, name); at >= 0 {
				files := append(append([]string(nil), path[at:]...), name)
				p.report.fail(file, e.Line, KindCircularInclusion, fmt.Sprintf("%q is already on the inclusion path", name))
				return &CycleError{Files: files}
			}
		}
		if owner, dup := p.placed[name]; dup {
			if owner != file {
				p.report.warn(file, e.Line, KindCrossDuplicate, fmt.Sprintf("%q is already placed by %s", name, owner))
			}
			parents = append(parents, name)
			continue
		}

		p.children[parent] = append(p.children[parent], name)
		p.placed[name] = file
		parents = append(parents, name)

		if p.isIndex(name) {
			if err := p.include(name, path); err != nil {
				return err
			}
		}
	}
	return nil
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
