package workspace

import (
	"path/filepath"
	"strings"

	"github.com/gertd/go-pluralize"

	"github.com/pescuma/clam/lib/consoles"
	"github.com/pescuma/clam/lib/identity"
	"github.com/pescuma/clam/lib/provenance"
	"github.com/pescuma/clam/lib/repo"
	"github.com/pescuma/clam/lib/repo/gitrepo"
	"github.com/pescuma/clam/lib/storages"
	"github.com/pescuma/clam/lib/storages/orm"
	"github.com/pescuma/clam/lib/utils"
)

const (
	ConfigIgnoreEmails = "people:grouper:ignore-emails"
	ConfigGroupAuto    = "people:grouper:auto"
)

type Workspace struct {
	console consoles.Console
	storage storages.Storage
}

// NewWorkspace opens the workspace database. Without a file it uses ./.clam if that exists,
// ~/.clam otherwise.
func NewWorkspace(file string) (*Workspace, error) {
	if file == "" {
		local, err := utils.FileExists("./.clam")
		if err != nil {
			return nil, err
		}

		file = utils.IIf(local, "./.clam/clam.sqlite", "~/.clam/clam.sqlite")
	}

	console := consoles.NewStdOutConsole()

	storage, err := orm.OpenSqlite(file, console)
	if err != nil {
		return nil, err
	}

	return New(console, storage), nil
}

func New(console consoles.Console, storage storages.Storage) *Workspace {
	return &Workspace{
		console: console,
		storage: storage,
	}
}

func (w *Workspace) Close() error {
	return w.storage.Close()
}

func (w *Workspace) Console() consoles.Console {
	return w.console
}

func (w *Workspace) SetConfig(key string, value string) (bool, error) {
	cfg, err := w.storage.LoadConfig()
	if err != nil {
		return false, err
	}

	v, ok := (*cfg)[key]
	if ok && v == value {
		return false, nil
	}

	(*cfg)[key] = value

	return true, w.storage.WriteConfig()
}

func (w *Workspace) UnsetConfig(key string) (bool, error) {
	cfg, err := w.storage.LoadConfig()
	if err != nil {
		return false, err
	}

	if _, ok := (*cfg)[key]; !ok {
		return false, nil
	}

	delete(*cfg, key)

	return true, w.storage.WriteConfig()
}

func (w *Workspace) LoadConfig() (map[string]string, error) {
	cfg, err := w.storage.LoadConfig()
	if err != nil {
		return nil, err
	}

	result := make(map[string]string, len(*cfg))
	for k, v := range *cfg {
		result[k] = v
	}
	return result, nil
}

type RepoOptions struct {
	Rev     string
	Mailmap string

	// Group is nil to use the workspace configuration
	Group        *bool
	IgnoreEmails []string
}

type ProvenanceOptions struct {
	RepoOptions

	Workers  int
	Progress bool
	Save     bool
}

// Provenance aggregates the history of the repository at dir.
func (w *Workspace) Provenance(dir string, opts *ProvenanceOptions) (*provenance.Table, error) {
	r, resolver, start, grouping, err := w.open(dir, &opts.RepoOptions)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	w.console.PushPrefix("%v: ", filepath.Base(dir))
	defer w.console.PopPrefix()

	aggregator := provenance.NewAggregator(w.console, r, resolver)

	table, err := aggregator.Aggregate(start, &provenance.Options{
		Workers:  opts.Workers,
		Progress: opts.Progress,
		Grouping: grouping,
	})
	if err != nil {
		return nil, err
	}

	if opts.Save {
		root, err := utils.PathAbs(dir)
		if err != nil {
			return nil, err
		}

		_, err = w.storage.WriteProvenance(root, utils.Coalesce(opts.Rev, "HEAD"), table)
		if err != nil {
			return nil, err
		}
	}

	return table, nil
}

// LoadProvenance returns the last saved table of the repository at dir.
func (w *Workspace) LoadProvenance(dir string) (*storages.ProvenanceSnapshot, error) {
	root, err := utils.PathAbs(dir)
	if err != nil {
		return nil, err
	}

	return w.storage.LoadProvenance(root)
}

func (w *Workspace) ListProvenance() ([]*storages.ProvenanceSnapshot, error) {
	return w.storage.ListProvenance()
}

// People lists everyone that authored or committed in the repository at dir.
func (w *Workspace) People(dir string, opts *RepoOptions) (*identity.People, error) {
	r, resolver, start, grouping, err := w.open(dir, opts)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	w.console.PushPrefix("%v: ", filepath.Base(dir))
	defer w.console.PopPrefix()

	if grouping {
		w.console.Printf("Grouping identities...\n")

		err = identity.LearnHistory(r, resolver, start)
		if err != nil {
			return nil, err
		}
	}

	w.console.Printf("Listing people...\n")

	return identity.CollectPeople(r, resolver, start)
}

func (w *Workspace) open(dir string, opts *RepoOptions) (*gitrepo.Repository, *identity.Resolver, repo.OID, bool, error) {
	var gitOpts []gitrepo.Option
	if opts.Mailmap != "" {
		gitOpts = append(gitOpts, gitrepo.WithMailmapFile(opts.Mailmap))
	}

	r, err := gitrepo.Open(dir, gitOpts...)
	if err != nil {
		return nil, nil, "", false, err
	}

	if n := r.Mailmap().Len(); n > 0 {
		w.console.Printf("Resolving aliases with %v mailmap %v\n", n, pluralize.NewClient().Pluralize("entry", n, false))
	}

	start, err := r.Resolve(opts.Rev)
	if err != nil {
		_ = r.Close()
		return nil, nil, "", false, err
	}

	cfg, err := w.storage.LoadConfig()
	if err != nil {
		_ = r.Close()
		return nil, nil, "", false, err
	}

	grouping := utils.ToBool((*cfg)[ConfigGroupAuto], false)
	if opts.Group != nil {
		grouping = *opts.Group
	}

	var resolverOpts []identity.Option
	if grouping {
		ignored := append([]string(nil), opts.IgnoreEmails...)
		ignored = append(ignored, strings.Split((*cfg)[ConfigIgnoreEmails], ",")...)

		resolverOpts = append(resolverOpts, identity.WithGrouper(identity.NewGrouper(ignored...)))
	}

	return r, identity.NewResolver(r, resolverOpts...), start, grouping, nil
}
