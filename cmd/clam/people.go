package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/gertd/go-pluralize"
)

type PeopleCmd struct {
	repoFlags

	Emails bool `short:"e" help:"Show all known emails of each person."`
}

func (c *PeopleCmd) Run(ctx *context) error {
	ws, err := ctx.workspace()
	if err != nil {
		return err
	}

	opts := c.options()
	people, err := ws.People(c.Repo, &opts)
	if err != nil {
		return err
	}

	pc := pluralize.NewClient()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tCOMMITS\tFIRST SEEN\tLAST SEEN\tALIASES")
	for _, p := range people.ListPeople() {
		aliases := p.ListNames()
		if c.Emails {
			aliases = append(aliases, p.ListEmails()...)
		}

		_, _ = fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\n",
			p.Name,
			pc.Pluralize("commit", p.Commits, true),
			humanize.Time(p.FirstSeen), humanize.Time(p.LastSeen),
			strings.Join(aliases, ", "))
	}
	err = w.Flush()
	if err != nil {
		return err
	}

	fmt.Printf("\n%v\n", pc.Pluralize("person", people.Len(), true))
	return nil
}
