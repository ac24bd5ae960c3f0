package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/aquilax/truncate"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/pescuma/clam/lib/provenance"
	"github.com/pescuma/clam/lib/workspace"
)

type repoFlags struct {
	Repo string `arg:"" optional:"" help:"Repository to read." type:"existingdir" default:"."`
	Rev  string `arg:"" optional:"" help:"Revision to start from. Default is HEAD."`

	Mailmap     string   `help:"Mailmap file to use instead of the one in the repository." type:"existingfile"`
	Group       string   `help:"Group identities with the same name or email. One of auto, yes or no. Auto uses the workspace config." enum:"auto,yes,no" default:"auto"`
	IgnoreEmail []string `help:"Emails that are never used to group identities."`
}

func (f *repoFlags) options() workspace.RepoOptions {
	result := workspace.RepoOptions{
		Rev:          f.Rev,
		Mailmap:      f.Mailmap,
		IgnoreEmails: f.IgnoreEmail,
	}

	switch f.Group {
	case "yes":
		result.Group = lo.ToPtr(true)
	case "no":
		result.Group = lo.ToPtr(false)
	}

	return result
}

type outputFlags struct {
	Format  string   `short:"f" help:"Output format. One of table or json." enum:"table,json" default:"table"`
	Only    []string `sep:"none" help:"Only show paths that match these globs (** allowed)."`
	Message int      `help:"Max length of commit messages in table output." default:"40"`
}

func (f *outputFlags) filter(records []*provenance.Record) ([]*provenance.Record, error) {
	if len(f.Only) == 0 {
		return records, nil
	}

	for _, g := range f.Only {
		if !doublestar.ValidatePattern(g) {
			return nil, errors.Errorf("invalid glob: %v", g)
		}
	}

	return lo.Filter(records, func(r *provenance.Record, _ int) bool {
		return lo.ContainsBy(f.Only, func(g string) bool {
			m, _ := doublestar.Match(g, r.Path)
			return m
		})
	}), nil
}

func (f *outputFlags) print(table *provenance.Table) error {
	records, err := f.filter(table.List())
	if err != nil {
		return err
	}

	switch f.Format {
	case "json":
		return printJSON(records)
	default:
		printTable(table, records, f.Message)
		return nil
	}
}

type ProvenanceCmd struct {
	repoFlags
	outputFlags

	Workers  int  `short:"j" help:"How many commits to read in parallel. Default is sequential."`
	Progress bool `help:"Show a progress bar."`
	Save     bool `short:"s" help:"Store the result in the workspace."`
}

func (c *ProvenanceCmd) Run(ctx *context) error {
	ws, err := ctx.workspace()
	if err != nil {
		return err
	}

	table, err := ws.Provenance(c.Repo, &workspace.ProvenanceOptions{
		RepoOptions: c.options(),
		Workers:     c.Workers,
		Progress:    c.Progress,
		Save:        c.Save,
	})
	if err != nil {
		return err
	}

	return c.print(table)
}

type SavedListCmd struct{}

func (c *SavedListCmd) Run(ctx *context) error {
	ws, err := ctx.workspace()
	if err != nil {
		return err
	}

	snapshots, err := ws.ListProvenance()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "REPOSITORY\tREV\tPATHS\tWRITTEN")
	for _, s := range snapshots {
		_, _ = fmt.Fprintf(w, "%v\t%v\t%v\t%v\n", s.RepoDir, s.Rev, humanize.Comma(int64(s.Paths)), humanize.Time(s.WrittenAt))
	}
	return w.Flush()
}

type SavedShowCmd struct {
	Repo string `arg:"" optional:"" help:"Repository the table was computed for." type:"existingdir" default:"."`

	outputFlags
}

func (c *SavedShowCmd) Run(ctx *context) error {
	ws, err := ctx.workspace()
	if err != nil {
		return err
	}

	snapshot, err := ws.LoadProvenance(c.Repo)
	if err != nil {
		return err
	}

	if c.Format == "table" {
		fmt.Printf("%v at %v, saved %v\n\n", snapshot.RepoDir, snapshot.Rev, humanize.Time(snapshot.WrittenAt))
	}

	return c.print(snapshot.Table)
}

func printTable(table *provenance.Table, records []*provenance.Record, messageSize int) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "PATH\tCREATED\tCREATOR\tMODIFIED\tLAST EDITOR\tCOMMIT\tMESSAGE\tCONTRIBUTORS")
	for _, r := range records {
		message, _, _ := strings.Cut(strings.TrimSpace(r.LastMessage), "\n")
		if messageSize > 0 {
			message = truncate.Truncate(message, messageSize, "...", truncate.PositionEnd)
		}

		_, _ = fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\t%v\t%v\t%v\n",
			r.Path,
			humanize.Time(r.CreatedAt), r.Creator.Name,
			humanize.Time(r.ModifiedAt), r.LastEditor.Name,
			table.ShortID(r.LastCommit), message,
			r.Contributors.Size())
	}

	_ = w.Flush()
}

type jsonRecord struct {
	Path         string    `json:"path"`
	CreatedAt    time.Time `json:"created_at"`
	Creator      string    `json:"creator"`
	FirstCommit  string    `json:"first_commit"`
	ModifiedAt   time.Time `json:"modified_at"`
	LastEditor   string    `json:"last_editor"`
	LastCommit   string    `json:"last_commit"`
	LastMessage  string    `json:"last_message"`
	Contributors []string  `json:"contributors"`
}

func printJSON(records []*provenance.Record) error {
	result := lo.Map(records, func(r *provenance.Record, _ int) jsonRecord {
		return jsonRecord{
			Path:         r.Path,
			CreatedAt:    r.CreatedAt,
			Creator:      r.Creator.String(),
			FirstCommit:  string(r.FirstCommit),
			ModifiedAt:   r.ModifiedAt,
			LastEditor:   r.LastEditor.String(),
			LastCommit:   string(r.LastCommit),
			LastMessage:  r.LastMessage,
			Contributors: r.ListContributors(),
		}
	})

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
