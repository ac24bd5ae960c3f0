package policy

import (
	"errors"
	"testing"

	"github.com/bloomberg/go-testgroup"
)

func TestRuleSet(t *testing.T) {
	testgroup.RunInParallel(t, &RuleSetTests{})
}

type RuleSetTests struct {
}

func (g *RuleSetTests) build(t *testgroup.T, cfg Config) *RuleSet {
	rules, err := New(cfg)
	t.Require.NoError(err)
	return rules
}

func (g *RuleSetTests) DefaultAllowsEverything(t *testgroup.T) {
	rules := g.build(t, Config{})

	t.NoError(rules.Check("any/path.org", Create))
	t.NoError(rules.Check("any/path.org", Delete))
	t.NoError(rules.Check("x", Modify))
	t.NoError(rules.CheckSigned(false))
}

func (g *RuleSetTests) AllowList(t *testgroup.T) {
	rules := g.build(t, Config{AllowPatterns: []string{"^docs/"}})

	t.NoError(rules.Check("docs/new.org", Create))
	t.ErrorIs(rules.Check("src/main.go", Modify), &Rejection{Kind: NotAllowed, Subject: "src/main.go"})
}

func (g *RuleSetTests) ProtectOverridesAllow(t *testgroup.T) {
	rules := g.build(t, Config{
		AllowPatterns:   []string{"^docs/"},
		ProtectPatterns: []string{"^docs/secret"},
	})

	err := rules.Check("docs/secret/x.org", Modify)

	t.ErrorIs(err, &Rejection{Kind: Protected, Subject: "docs/secret/x.org"})
	t.Equal("page is protected: docs/secret/x.org", err.Error())
}

func (g *RuleSetTests) ToggleCheckedBeforeLists(t *testgroup.T) {
	rules := g.build(t, Config{
		NoCreation:      true,
		NoDeletion:      true,
		AllowPatterns:   []string{"^docs/"},
		ProtectPatterns: []string{"secret"},
	})

	t.ErrorIs(rules.Check("src/secret", Create), &Rejection{Kind: BadCreate, Subject: "src/secret"})
	t.ErrorIs(rules.Check("src/secret", Delete), &Rejection{Kind: BadDelete, Subject: "src/secret"})
	t.ErrorIs(rules.Check("src/secret", Modify), &Rejection{Kind: NotAllowed, Subject: "src/secret"})
}

func (g *RuleSetTests) Signing(t *testgroup.T) {
	rules := g.build(t, Config{RequireSigning: true})

	t.True(rules.RequiresSigning())
	t.NoError(rules.CheckSigned(true))
	t.EqualError(rules.CheckSigned(false), "signing your commits is required")
}

func (g *RuleSetTests) BadRegex(t *testgroup.T) {
	_, err := New(Config{ProtectPatterns: []string{"(unclosed"}})

	var bre *BadRegexError
	t.Require.True(errors.As(err, &bre))
	t.Equal("(unclosed", bre.Pattern)
	t.Contains(err.Error(), "failed to compile regex: ")
}

func (g *RuleSetTests) Messages(t *testgroup.T) {
	t.Equal("creating new refs is not permitted: refs/heads/x", (&Rejection{Kind: CreateRef, Subject: "refs/heads/x"}).Error())
	t.Equal("force-pushes are not permitted", (&Rejection{Kind: ForcePush}).Error())
	t.Equal("deleting pages is not permitted: a", (&Rejection{Kind: BadDelete, Subject: "a"}).Error())
	t.Equal("creating pages is not permitted: a", (&Rejection{Kind: BadCreate, Subject: "a"}).Error())
	t.Equal("editing this page is not permitted: a", (&Rejection{Kind: NotAllowed, Subject: "a"}).Error())
}

func TestConfig(t *testing.T) {
	testgroup.RunInParallel(t, &ConfigTests{})
}

type ConfigTests struct {
}

func (g *ConfigTests) ParseYAML(t *testgroup.T) {
	cfg, err := ParseConfig([]byte(`
require-signing: true
no-deletion: true
allow-patterns:
  - ^docs/
protect-patterns:
  - ^docs/secret
`))
	t.Require.NoError(err)

	t.Equal(Config{
		RequireSigning:  true,
		NoDeletion:      true,
		AllowPatterns:   []string{"^docs/"},
		ProtectPatterns: []string{"^docs/secret"},
	}, *cfg)
}

func (g *ConfigTests) InvalidYAML(t *testgroup.T) {
	_, err := ParseConfig([]byte("allow-patterns: [unclosed"))

	t.Error(err)
}

func (g *ConfigTests) Merge(t *testgroup.T) {
	file := Config{NoDeletion: true, AllowPatterns: []string{"^docs/"}}
	flags := Config{RequireSigning: true, AllowPatterns: []string{"^img/"}, ProtectPatterns: []string{"x"}}

	t.Equal(Config{
		RequireSigning:  true,
		NoDeletion:      true,
		AllowPatterns:   []string{"^docs/", "^img/"},
		ProtectPatterns: []string{"x"},
	}, file.Merge(flags))
	t.Equal([]string{"^docs/"}, file.AllowPatterns)
}
