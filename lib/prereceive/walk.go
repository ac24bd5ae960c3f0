package prereceive

import (
	"github.com/oleiade/lane/v2"

	"github.com/pescuma/clam/lib/repo"
)

type paint int

const (
	paintNew paint = 1 << iota
	paintOld
)

// reachability paints commits reachable from new and from old, newest first. Committer clocks
// can go backwards, so the walk runs until the queue is empty: a commit is only known to be
// unreachable from old once every ancestor of old was painted.
type reachability struct {
	repo    repo.Repository
	paints  map[repo.OID]paint
	queue   *lane.PriorityQueue[repo.OID, int64]
	pending map[repo.OID]bool
	popped  []repo.OID
}

func newReachability(r repo.Repository) *reachability {
	return &reachability{
		repo:    r,
		paints:  map[repo.OID]paint{},
		queue:   lane.NewMaxPriorityQueue[repo.OID, int64](),
		pending: map[repo.OID]bool{},
	}
}

func (w *reachability) walk(oldTip repo.OID, newTip repo.OID) error {
	for _, s := range []struct {
		id repo.OID
		p  paint
	}{{newTip, paintNew}, {oldTip, paintOld}} {
		err := w.paint(s.id, s.p)
		if err != nil {
			return err
		}
	}

	for !w.queue.Empty() {
		id, _, _ := w.queue.Pop()
		delete(w.pending, id)
		w.popped = append(w.popped, id)

		commit, err := w.repo.Commit(id)
		if err != nil {
			return err
		}

		p := w.paints[id]
		for _, parent := range commit.Parents {
			err = w.paint(parent, p)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// paint adds p to the paint of id. Commits whose paint changed are (re)queued, so the new
// paint also reaches their ancestors.
func (w *reachability) paint(id repo.OID, p paint) error {
	current := w.paints[id]
	if current|p == current {
		return nil
	}

	w.paints[id] = current | p

	if w.pending[id] {
		return nil
	}

	commit, err := w.repo.Commit(id)
	if err != nil {
		return err
	}

	w.queue.Push(id, commit.Committer.When.UnixNano())
	w.pending[id] = true
	return nil
}

func (w *reachability) isAncestorOfNew(id repo.OID) bool {
	return w.paints[id]&paintNew != 0
}

// introduced lists the commits reachable from new but not from old, in the order they were
// visited.
func (w *reachability) introduced() []repo.OID {
	seen := map[repo.OID]bool{}

	var result []repo.OID
	for _, id := range w.popped {
		if seen[id] || w.paints[id] != paintNew {
			continue
		}
		seen[id] = true
		result = append(result, id)
	}

	return result
}
