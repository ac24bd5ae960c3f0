package main

import (
	"os"

	"github.com/pkg/errors"

	"github.com/pescuma/clam/lib/consoles"
	"github.com/pescuma/clam/lib/policy"
	"github.com/pescuma/clam/lib/prereceive"
	"github.com/pescuma/clam/lib/repo/gitrepo"
)

type PreReceiveCmd struct {
	Config         string   `short:"c" help:"YAML file with the policy. Flags are added to it." type:"existingfile"`
	RequireSigning bool     `help:"Reject unsigned commits."`
	NoDeletion     bool     `help:"Reject commits that delete files."`
	NoCreation     bool     `help:"Reject commits that create files."`
	AllowPattern   []string `short:"a" sep:"none" help:"Regex of paths that can be changed. Default is everything."`
	ProtectPattern []string `short:"p" sep:"none" help:"Regex of paths that can not be changed."`
	Keyring        string   `help:"Armored OpenPGP keyring used to verify signatures." type:"existingfile"`
	Verbose        bool     `short:"v" help:"Print each ref being checked to stderr."`
}

func (c *PreReceiveCmd) Run(_ *context) error {
	code := prereceive.Reject(os.Stdout, c.run())
	if code != 0 {
		os.Exit(code)
	}
	return nil
}

func (c *PreReceiveCmd) run() error {
	cfg := policy.Config{
		RequireSigning:  c.RequireSigning,
		NoDeletion:      c.NoDeletion,
		NoCreation:      c.NoCreation,
		AllowPatterns:   c.AllowPattern,
		ProtectPatterns: c.ProtectPattern,
	}

	if c.Config != "" {
		file, err := policy.LoadConfig(c.Config)
		if err != nil {
			return err
		}

		cfg = file.Merge(cfg)
	}

	rules, err := policy.New(cfg)
	if err != nil {
		return err
	}

	// Identities play no part in push checks
	opts := []gitrepo.Option{gitrepo.WithoutMailmap()}
	if c.Keyring != "" {
		keyring, err := os.ReadFile(c.Keyring)
		if err != nil {
			return errors.Wrapf(err, "could not read keyring %v", c.Keyring)
		}

		opts = append(opts, gitrepo.WithKeyring(string(keyring)))
	}

	r, err := gitrepo.OpenFromEnv(opts...)
	if err != nil {
		return err
	}
	defer r.Close()

	console := consoles.NewNullConsole()
	if c.Verbose {
		console = consoles.NewWriterConsole(os.Stderr)
	}

	return prereceive.NewValidator(r, rules).Validate(console, os.Stdin)
}
