package main

import (
	"github.com/alecthomas/kong"

	"github.com/pescuma/clam/lib/workspace"
)

var cli struct {
	Workspace string `short:"w" help:"Workspace to store data. Default is ./.clam or ~/.clam if that does not exist." type:"path"`

	PreReceive PreReceiveCmd `cmd:"" name:"pre-receive" help:"Validate a push. Install as the pre-receive hook of a repository."`
	Provenance ProvenanceCmd `cmd:"" help:"Compute who created and last edited each file of a repository."`
	People     PeopleCmd     `cmd:"" help:"List the people that worked in a repository."`

	Saved struct {
		List SavedListCmd `cmd:"" help:"List saved provenance tables."`
		Show SavedShowCmd `cmd:"" help:"Show the saved provenance table of a repository."`
	} `cmd:"" help:"Inspect provenance tables stored in the workspace."`

	Config struct {
		Set   ConfigSetCmd   `cmd:"" help:"Set configuration parameters."`
		Unset ConfigUnsetCmd `cmd:"" help:"Remove configuration parameters."`
		List  ConfigListCmd  `cmd:"" help:"List configuration parameters."`
	} `cmd:""`
}

type context struct {
	file string
	ws   *workspace.Workspace
}

// workspace opens the database only for commands that need it.
func (c *context) workspace() (*workspace.Workspace, error) {
	if c.ws != nil {
		return c.ws, nil
	}

	ws, err := workspace.NewWorkspace(c.file)
	if err != nil {
		return nil, err
	}

	c.ws = ws
	return ws, nil
}

func (c *context) close() error {
	if c.ws == nil {
		return nil
	}
	return c.ws.Close()
}

func main() {
	ctx := kong.Parse(&cli, kong.ShortUsageOnError())

	c := &context{file: cli.Workspace}

	err := ctx.Run(c)
	if cerr := c.close(); err == nil {
		err = cerr
	}
	ctx.FatalIfErrorf(err)
}
