package main

import (
	"fmt"

	"github.com/samber/lo"
	"golang.org/x/exp/slices"

	"github.com/pescuma/clam/lib/workspace"
)

var knownConfigs = []string{workspace.ConfigGroupAuto, workspace.ConfigIgnoreEmails}

type ConfigSetCmd struct {
	Config string `arg:"" help:"Configuration name to change." enum:"people:grouper:auto,people:grouper:ignore-emails"`
	Value  string `arg:"" help:"Configuration value to set."`
}

func (c *ConfigSetCmd) Run(ctx *context) error {
	ws, err := ctx.workspace()
	if err != nil {
		return err
	}

	changed, err := ws.SetConfig(c.Config, c.Value)
	if err != nil {
		return err
	}

	if changed {
		fmt.Printf("Set '%v' = '%v'\n", c.Config, c.Value)
	}
	return nil
}

type ConfigUnsetCmd struct {
	Config string `arg:"" help:"Configuration name to remove."`
}

func (c *ConfigUnsetCmd) Run(ctx *context) error {
	ws, err := ctx.workspace()
	if err != nil {
		return err
	}

	changed, err := ws.UnsetConfig(c.Config)
	if err != nil {
		return err
	}

	if changed {
		fmt.Printf("Removed '%v'\n", c.Config)
	}
	return nil
}

type ConfigListCmd struct{}

func (c *ConfigListCmd) Run(ctx *context) error {
	ws, err := ctx.workspace()
	if err != nil {
		return err
	}

	cfg, err := ws.LoadConfig()
	if err != nil {
		return err
	}

	keys := lo.Uniq(append(lo.Keys(cfg), knownConfigs...))
	slices.Sort(keys)

	for _, k := range keys {
		v, ok := cfg[k]
		if !ok {
			v = "(not set)"
		}
		fmt.Printf("%v = %v\n", k, v)
	}
	return nil
}
