package pipe

import "context"

// FromPipes assembles a set of independently defined pipes into one fork
// graph and returns the distinct root pipes a Dispatcher should pull from.
//
// For every pipe in pipes that has a parent, the parent is wired to fork
// into it (parent.Fork(pipe, -1, copyOnFork)) and the same is done
// recursively up the parent chain. If yieldParents is true and a pipe's
// parent is itself present in pipes, the parent is additionally wired to
// fork into itself at its own last step index, so it yields its own items
// in addition to feeding its children — matching the source system's
// "yield_parents" option on multi-pipe extraction.
//
// pipes is cloned first (via ClonePipes) so assembling a graph never
// mutates the caller's original pipe objects, and root pipes shared by more
// than one input pipe are deduplicated and returned once each.
func FromPipes(ctx context.Context, pipes []*Pipe, yieldParents bool, copyOnFork bool) ([]*Pipe, error) {
	cloned := ClonePipes(pipes, true)
	clonedSet := make(map[IdentityID]bool, len(cloned))
	for _, p := range cloned {
		clonedSet[p.ID()] = true
	}

	wired := make(map[IdentityID]bool)
	var wire func(p *Pipe)
	wire = func(p *Pipe) {
		parent := p.Parent()
		if parent == nil {
			return
		}
		if !wired[combineIDs(parent.ID(), p.ID())] {
			if err := parent.Fork(p, -1, copyOnFork); err != nil {
				// Fork only errors on structural issues that indicate a
				// malformed pipe, which FromPipes cannot recover from.
				panic(err)
			}
			wired[combineIDs(parent.ID(), p.ID())] = true
		}
		if yieldParents && clonedSet[parent.ID()] {
			if !wired[combineIDs(parent.ID(), parent.ID())] {
				if err := parent.Fork(parent, parent.Len()-1, copyOnFork); err != nil {
					panic(err)
				}
				wired[combineIDs(parent.ID(), parent.ID())] = true
			}
		}
		wire(parent)
	}
	for i := len(cloned) - 1; i >= 0; i-- {
		wire(cloned[i])
	}

	seenRoots := make(map[IdentityID]bool)
	var roots []*Pipe
	var collectRoot func(p *Pipe)
	collectRoot = func(p *Pipe) {
		root := p
		for root.Parent() != nil {
			root = root.Parent()
		}
		if !seenRoots[root.ID()] {
			seenRoots[root.ID()] = true
			roots = append(roots, root)
		}
	}
	for _, p := range cloned {
		collectRoot(p)
	}

	for _, root := range roots {
		if err := root.EvaluateGen(ctx); err != nil {
			return nil, err
		}
	}
	return roots, nil
}

func combineIDs(a, b IdentityID) IdentityID {
	return a + "|" + b
}
