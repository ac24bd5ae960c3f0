package provenance

import (
	"errors"

	"github.com/dustin/go-humanize"
	"github.com/gertd/go-pluralize"
	"github.com/schollz/progressbar/v3"

	"github.com/pescuma/clam/lib/consoles"
	"github.com/pescuma/clam/lib/identity"
	"github.com/pescuma/clam/lib/repo"
	"github.com/pescuma/clam/lib/utils"
)

type Aggregator struct {
	console  consoles.Console
	repo     repo.Repository
	resolver *identity.Resolver
}

type Options struct {
	// Workers > 1 diffs commits in parallel
	Workers int
	// Progress shows a progress bar on stderr
	Progress bool
	// Grouping learns identity groups from the whole history before aggregating
	Grouping bool
}

func NewAggregator(console consoles.Console, r repo.Repository, resolver *identity.Resolver) *Aggregator {
	return &Aggregator{
		console:  console,
		repo:     r,
		resolver: resolver,
	}
}

// Aggregate walks every commit reachable from start and builds a fresh table.
func (a *Aggregator) Aggregate(start repo.OID, opts *Options) (*Table, error) {
	if opts == nil {
		opts = &Options{}
	}

	if opts.Grouping {
		a.console.Printf("Grouping identities...\n")

		err := identity.LearnHistory(a.repo, a.resolver, start)
		if err != nil {
			return nil, toAggregationError(err, "", Repository)
		}
	}

	a.console.Printf("Listing commits from %v...\n", start.Short(repo.DefaultAbbrev))

	var ids []repo.OID
	err := a.repo.Ancestors(start, func(id repo.OID) error {
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		return nil, toAggregationError(err, "", Repository)
	}

	a.console.Printf("Aggregating %v %v...\n",
		humanize.Comma(int64(len(ids))), pluralize.NewClient().Pluralize("commit", len(ids), false))

	result, err := a.aggregate(ids, opts)
	if err != nil {
		return nil, err
	}

	result.SetAbbrevLength(repo.AbbrevLength(ids, repo.DefaultAbbrev))

	a.console.Printf("Found %v %v\n",
		humanize.Comma(int64(result.Len())), pluralize.NewClient().Pluralize("path", result.Len(), false))

	return result, nil
}

// commitChanges is everything the fold needs from one commit.
type commitChanges struct {
	commit    *repo.Commit
	author    repo.Identity
	committer repo.Identity
	changes   []repo.PathChange
}

func (a *Aggregator) aggregate(ids []repo.OID, opts *Options) (*Table, error) {
	result := NewTable()

	var bar *progressbar.ProgressBar
	if opts.Progress {
		bar = utils.NewProgressBar(len(ids))
		defer func() { _ = bar.Finish() }()
	}

	add := func(cc *commitChanges) {
		fold(result, cc)

		if bar != nil {
			bar.Describe(cc.commit.Committer.When.Format("2006-01-02 15"))
			_ = bar.Add(1)
		}
	}

	if opts.Workers <= 1 {
		for _, id := range ids {
			cc, err := a.load(id)
			if err != nil {
				return nil, err
			}

			add(cc)
		}

		return result, nil
	}

	group := utils.ParallelFor(ids, a.load, utils.ParallelOptions{Routines: opts.Workers})
	for cc := range group.Output {
		add(cc)
	}

	err := group.Error()
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (a *Aggregator) load(id repo.OID) (*commitChanges, error) {
	commit, err := a.repo.Commit(id)
	if err != nil {
		return nil, toAggregationError(err, id, Repository)
	}

	author, err := a.resolver.Resolve(commit.Author)
	if err != nil {
		return nil, toAggregationError(err, id, BadAuthor)
	}

	committer, err := a.resolver.Resolve(commit.Committer)
	if err != nil {
		return nil, toAggregationError(err, id, BadCommitter)
	}

	result := &commitChanges{
		commit:    commit,
		author:    author,
		committer: committer,
	}

	err = forEachChange(a.repo, commit, func(c repo.PathChange) error {
		result.changes = append(result.changes, c)
		return nil
	})
	if err != nil {
		return nil, toAggregationError(err, id, Repository)
	}

	return result, nil
}

// forEachChange diffs a root commit against the empty tree and any other commit against each
// of its parents.
func forEachChange(r repo.Repository, commit *repo.Commit, fn func(repo.PathChange) error) error {
	if commit.IsRoot() {
		return forEachDiff(r, repo.ZeroOID, commit.Tree, fn)
	}

	for _, p := range commit.Parents {
		parent, err := r.Commit(p)
		if err != nil {
			return err
		}

		err = forEachDiff(r, parent.Tree, commit.Tree, fn)
		if err != nil {
			return err
		}
	}

	return nil
}

func forEachDiff(r repo.Repository, from repo.OID, to repo.OID, fn func(repo.PathChange) error) error {
	changes, err := r.DiffTrees(from, to)
	if err != nil {
		return err
	}

	for _, c := range changes {
		err = fn(c)
		if err != nil {
			return err
		}
	}

	return nil
}

func fold(table *Table, cc *commitChanges) {
	o := &observation{
		commit:     cc.commit.ID,
		author:     cc.author,
		committer:  cc.committer,
		authorTime: cc.commit.Author.When,
		commitTime: cc.commit.Committer.When,
		message:    cc.commit.Message,
	}

	// Author clocks can be ahead of the committer clock
	if o.commitTime.Before(o.authorTime) {
		o.authorTime = o.commitTime
	}

	for _, c := range cc.changes {
		table.getOrCreate(c.Path).fold(o)
	}
}

func toAggregationError(err error, commit repo.OID, kind ErrorKind) error {
	var ae *AggregationError
	if errors.As(err, &ae) {
		return err
	}

	if errors.Is(err, repo.ErrNonUTF8Path) {
		kind = NonUTF8Path
	} else if kind != BadAuthor && kind != BadCommitter && errors.Is(err, identity.ErrNoName) {
		kind = BadAuthor
	}

	return &AggregationError{Kind: kind, Commit: commit, Err: err}
}
