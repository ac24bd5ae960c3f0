// Package provenance computes, for every path that ever existed in a history, who created it,
// who edited it last and who contributed to it.
package provenance

import (
	"sort"
	"time"

	"github.com/hashicorp/go-set/v2"

	"github.com/pescuma/clam/lib/repo"
)

type Record struct {
	Path string

	CreatedAt   time.Time
	Creator     repo.Identity
	FirstCommit repo.OID

	ModifiedAt  time.Time
	LastEditor  repo.Identity
	LastCommit  repo.OID
	LastMessage string

	// Contributors holds identity names
	Contributors *set.Set[string]
}

func NewRecord(path string) *Record {
	return &Record{
		Path:         path,
		Contributors: set.New[string](4),
	}
}

func (r *Record) ListContributors() []string {
	result := r.Contributors.Slice()
	sort.Strings(result)
	return result
}

// observation is one commit touching one path.
type observation struct {
	commit     repo.OID
	author     repo.Identity
	committer  repo.Identity
	authorTime time.Time
	commitTime time.Time
	message    string
}

func (r *Record) fold(o *observation) {
	empty := r.FirstCommit == ""

	r.Contributors.Insert(o.author.Name)
	r.Contributors.Insert(o.committer.Name)

	if empty || isEarlier(o.authorTime, o.commit, r.CreatedAt, r.FirstCommit) {
		r.CreatedAt = o.authorTime
		r.Creator = o.author
		r.FirstCommit = o.commit
	}

	if empty || isLater(o.commitTime, o.commit, r.ModifiedAt, r.LastCommit) {
		r.ModifiedAt = o.commitTime
		r.LastEditor = o.author
		r.LastCommit = o.commit
		r.LastMessage = o.message
	}
}

func (r *Record) merge(other *Record) {
	r.Contributors.InsertSet(other.Contributors)

	if isEarlier(other.CreatedAt, other.FirstCommit, r.CreatedAt, r.FirstCommit) {
		r.CreatedAt = other.CreatedAt
		r.Creator = other.Creator
		r.FirstCommit = other.FirstCommit
	}

	if isLater(other.ModifiedAt, other.LastCommit, r.ModifiedAt, r.LastCommit) {
		r.ModifiedAt = other.ModifiedAt
		r.LastEditor = other.LastEditor
		r.LastCommit = other.LastCommit
		r.LastMessage = other.LastMessage
	}
}

func (r *Record) clone() *Record {
	result := *r
	result.Contributors = set.New[string](r.Contributors.Size())
	result.Contributors.InsertSet(r.Contributors)
	return &result
}

// Equal timestamps are ordered by commit id, so the fold does not depend on visitation order.
func isEarlier(t time.Time, id repo.OID, than time.Time, thanID repo.OID) bool {
	if !t.Equal(than) {
		return t.Before(than)
	}
	return id < thanID
}

func isLater(t time.Time, id repo.OID, than time.Time, thanID repo.OID) bool {
	if !t.Equal(than) {
		return t.After(than)
	}
	return id > thanID
}

// Table maps repository-relative paths to their records.
type Table struct {
	records map[string]*Record
	abbrev  int
}

func NewTable() *Table {
	return &Table{
		records: map[string]*Record{},
		abbrev:  repo.DefaultAbbrev,
	}
}

func (t *Table) Get(path string) *Record {
	return t.records[path]
}

func (t *Table) getOrCreate(path string) *Record {
	result, ok := t.records[path]
	if !ok {
		result = NewRecord(path)
		t.records[path] = result
	}
	return result
}

// Put replaces the record of r.Path.
func (t *Table) Put(r *Record) {
	t.records[r.Path] = r
}

// List returns all records sorted by path.
func (t *Table) List() []*Record {
	result := make([]*Record, 0, len(t.records))
	for _, r := range t.records {
		result = append(result, r)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Path < result[j].Path
	})

	return result
}

func (t *Table) Len() int {
	return len(t.records)
}

// Merge folds other into t. Merging partial tables in any order gives the same result.
func (t *Table) Merge(other *Table) {
	for path, o := range other.records {
		r, ok := t.records[path]
		if !ok {
			t.records[path] = o.clone()
		} else {
			r.merge(o)
		}
	}

	if other.abbrev > t.abbrev {
		t.abbrev = other.abbrev
	}
}

func (t *Table) AbbrevLength() int {
	return t.abbrev
}

func (t *Table) SetAbbrevLength(n int) {
	t.abbrev = n
}

// ShortID abbreviates an id so it is still unique in the history the table was built from.
func (t *Table) ShortID(id repo.OID) string {
	return id.Short(t.abbrev)
}
