package prereceive

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bloomberg/go-testgroup"

	"github.com/pescuma/clam/lib/consoles"
	"github.com/pescuma/clam/lib/policy"
	"github.com/pescuma/clam/lib/repo"
	"github.com/pescuma/clam/lib/repo/memrepo"
)

func TestValidator(t *testing.T) {
	testgroup.RunInParallel(t, &ValidatorTests{})
}

type ValidatorTests struct {
}

var base = time.Date(2023, 3, 1, 9, 0, 0, 0, time.UTC)

func at(hours int) time.Time {
	return base.Add(time.Duration(hours) * time.Hour)
}

const branch = "refs/heads/main"

func newRepo() (*memrepo.Repository, repo.OID) {
	r := memrepo.New()
	root := r.NewCommit().At(at(0)).Files(map[string]string{
		"docs/old.org":      "old",
		"docs/secret/x.org": "x",
		"README":            "readme",
	}).Create()
	return r, root
}

func rules(t *testgroup.T, cfg policy.Config) *policy.RuleSet {
	result, err := policy.New(cfg)
	t.Require.NoError(err)
	return result
}

func docsOnly() policy.Config {
	return policy.Config{AllowPatterns: []string{"^docs/"}}
}

func (g *ValidatorTests) FastForwardAccepted(t *testgroup.T) {
	r, root := newRepo()
	next := r.NewCommit(root).At(at(1)).Set("docs/new.org", "new").Create()

	err := NewValidator(r, rules(t, docsOnly())).ValidateUpdate(RefUpdate{Old: root, New: next, RefName: branch})

	t.NoError(err)
}

func (g *ValidatorTests) DeletionRejected(t *testgroup.T) {
	r, root := newRepo()
	next := r.NewCommit(root).At(at(1)).Remove("docs/old.org").Create()

	cfg := docsOnly()
	cfg.NoDeletion = true

	err := NewValidator(r, rules(t, cfg)).ValidateUpdate(RefUpdate{Old: root, New: next, RefName: branch})

	t.ErrorIs(err, &policy.Rejection{Kind: policy.BadDelete, Subject: "docs/old.org"})
}

func (g *ValidatorTests) ProtectOverridesAllow(t *testgroup.T) {
	r, root := newRepo()
	next := r.NewCommit(root).At(at(1)).Set("docs/secret/x.org", "changed").Create()

	cfg := docsOnly()
	cfg.ProtectPatterns = []string{"^docs/secret"}

	err := NewValidator(r, rules(t, cfg)).ValidateUpdate(RefUpdate{Old: root, New: next, RefName: branch})

	t.ErrorIs(err, &policy.Rejection{Kind: policy.Protected, Subject: "docs/secret/x.org"})
}

func (g *ValidatorTests) SiblingIsForcePush(t *testgroup.T) {
	r, root := newRepo()
	left := r.NewCommit(root).At(at(1)).Set("docs/a.org", "a").Create()
	right := r.NewCommit(root).At(at(2)).Set("docs/b.org", "b").Create()

	err := NewValidator(r, rules(t, policy.Config{})).ValidateUpdate(RefUpdate{Old: left, New: right, RefName: branch})

	t.ErrorIs(err, &policy.Rejection{Kind: policy.ForcePush})
}

func (g *ValidatorTests) RewindIsForcePush(t *testgroup.T) {
	r, root := newRepo()
	next := r.NewCommit(root).At(at(1)).Set("docs/a.org", "a").Create()

	err := NewValidator(r, rules(t, policy.Config{})).ValidateUpdate(RefUpdate{Old: next, New: root, RefName: branch})

	t.ErrorIs(err, &policy.Rejection{Kind: policy.ForcePush})
}

func (g *ValidatorTests) SameTipAccepted(t *testgroup.T) {
	r, root := newRepo()

	err := NewValidator(r, rules(t, policy.Config{NoCreation: true})).ValidateUpdate(RefUpdate{Old: root, New: root, RefName: branch})

	t.NoError(err)
}

func (g *ValidatorTests) ZeroOldIsCreateRef(t *testgroup.T) {
	r, root := newRepo()

	err := NewValidator(r, rules(t, policy.Config{})).ValidateUpdate(RefUpdate{Old: repo.ZeroOID, New: root, RefName: branch})

	t.ErrorIs(err, &policy.Rejection{Kind: policy.CreateRef, Subject: branch})
}

func (g *ValidatorTests) ZeroNewIsCreateRef(t *testgroup.T) {
	r, root := newRepo()

	err := NewValidator(r, rules(t, policy.Config{})).ValidateUpdate(RefUpdate{Old: root, New: repo.ZeroOID, RefName: branch})

	t.ErrorIs(err, &policy.Rejection{Kind: policy.CreateRef, Subject: branch})
}

func (g *ValidatorTests) OnlyNewCommitsAreChecked(t *testgroup.T) {
	r, root := newRepo()
	// Already accepted history touches README, which the rules no longer allow
	old := r.NewCommit(root).At(at(1)).Set("README", "changed").Create()
	next := r.NewCommit(old).At(at(2)).Set("docs/new.org", "new").Create()

	err := NewValidator(r, rules(t, docsOnly())).ValidateUpdate(RefUpdate{Old: old, New: next, RefName: branch})

	t.NoError(err)
}

func (g *ValidatorTests) MergeOfOldBranchChecksOnlyNewSide(t *testgroup.T) {
	r, root := newRepo()
	side := r.NewCommit(root).At(at(1)).Set("README", "side").Create()
	old := r.NewCommit(root).At(at(2)).Set("docs/a.org", "a").Create()
	merge := r.NewCommit(old, side).At(at(3)).Set("README", "side").Create()

	err := NewValidator(r, rules(t, docsOnly())).ValidateUpdate(RefUpdate{Old: old, New: merge, RefName: branch})

	// side is new, and the merge itself changes README relative to old
	t.ErrorIs(err, &policy.Rejection{Kind: policy.NotAllowed, Subject: "README"})
}

func (g *ValidatorTests) NewRootIsChecked(t *testgroup.T) {
	r, root := newRepo()
	orphan := r.NewCommit().At(at(1)).Files(map[string]string{"secret.org": "s"}).Create()
	merge := r.NewCommit(root, orphan).At(at(2)).Set("secret.org", "s").Create()

	w := newReachability(r)
	t.Require.NoError(w.walk(root, merge))
	t.ElementsMatch([]repo.OID{merge, orphan}, w.introduced())

	cfg := policy.Config{ProtectPatterns: []string{"^secret"}}
	err := NewValidator(r, rules(t, cfg)).ValidateUpdate(RefUpdate{Old: root, New: merge, RefName: branch})

	t.ErrorIs(err, &policy.Rejection{Kind: policy.Protected, Subject: "secret.org"})
}

func (g *ValidatorTests) LongFastForward(t *testgroup.T) {
	r, root := newRepo()

	tip := root
	for i := 1; i <= 20; i++ {
		tip = r.NewCommit(tip).At(at(i)).Set("docs/log.org", strings.Repeat("x", i)).Create()
	}
	old := tip
	for i := 21; i <= 25; i++ {
		tip = r.NewCommit(tip).At(at(i)).Set("docs/log.org", strings.Repeat("y", i)).Create()
	}

	w := newReachability(r)
	t.Require.NoError(w.walk(old, tip))
	t.True(w.isAncestorOfNew(old))
	t.Len(w.introduced(), 5)
}

func (g *ValidatorTests) SkewedOldHistoryIsNotRechecked(t *testgroup.T) {
	r := memrepo.New()
	legacy := r.NewCommit().At(at(100)).Files(map[string]string{"legacy/x.org": "x"}).Create()

	// Accepted commits whose committer clocks are far behind their parent
	old := legacy
	for i := 0; i < 8; i++ {
		old = r.NewCommit(old).At(at(49 - i)).Set(fmt.Sprintf("docs/old%v.org", i), "o").Create()
	}

	side := r.NewCommit(legacy).At(at(200)).Set("docs/side.org", "s").Create()
	merge := r.NewCommit(old, side).At(at(201)).Set("docs/side.org", "s").Create()

	w := newReachability(r)
	t.Require.NoError(w.walk(old, merge))
	t.ElementsMatch([]repo.OID{merge, side}, w.introduced())

	cfg := policy.Config{ProtectPatterns: []string{"^legacy/"}}
	err := NewValidator(r, rules(t, cfg)).ValidateUpdate(RefUpdate{Old: old, New: merge, RefName: branch})

	t.NoError(err)
}

func (g *ValidatorTests) UnsignedRejected(t *testgroup.T) {
	r, root := newRepo()
	signed := r.NewCommit(root).At(at(1)).Signed().Set("docs/a.org", "a").Create()
	unsigned := r.NewCommit(signed).At(at(2)).Set("docs/b.org", "b").Create()

	v := NewValidator(r, rules(t, policy.Config{RequireSigning: true}))

	t.NoError(v.ValidateUpdate(RefUpdate{Old: root, New: signed, RefName: branch}))
	t.ErrorIs(v.ValidateUpdate(RefUpdate{Old: root, New: unsigned, RefName: branch}), &policy.Rejection{Kind: policy.NotSigned})
}

func (g *ValidatorTests) UnknownCommitIsRepositoryError(t *testgroup.T) {
	r, root := newRepo()

	err := NewValidator(r, rules(t, policy.Config{})).ValidateUpdate(RefUpdate{
		Old:     root,
		New:     repo.MustParseOID("abcdefabcdefabcdefabcdefabcdefabcdefabcd"),
		RefName: branch,
	})

	var re *repo.Error
	t.ErrorAs(err, &re)
	t.Contains(err.Error(), "internal git error: ")
}

func TestParseRefUpdate(t *testing.T) {
	testgroup.RunInParallel(t, &ParseTests{})
}

type ParseTests struct {
}

func (g *ParseTests) Valid(t *testgroup.T) {
	u, err := ParseRefUpdate("0000000000000000000000000000000000000000 ABCDEFabcdefabcdefabcdefabcdefabcdefabcd refs/heads/main")
	t.Require.NoError(err)

	t.True(u.Old.IsZero())
	t.Equal(repo.OID("abcdefabcdefabcdefabcdefabcdefabcdefabcd"), u.New)
	t.Equal("refs/heads/main", u.RefName)
}

func (g *ParseTests) WrongFieldCount(t *testgroup.T) {
	for _, line := range []string{
		"",
		"abc",
		"0000000000000000000000000000000000000000 0000000000000000000000000000000000000000",
		"0000000000000000000000000000000000000000 0000000000000000000000000000000000000000 refs/heads/a extra",
		"0000000000000000000000000000000000000000  0000000000000000000000000000000000000000 refs/heads/a",
	} {
		_, err := ParseRefUpdate(line)

		var hie *HookIOError
		t.Require.ErrorAs(err, &hie, line)
		t.Equal(InvalidHookInput, hie.Kind)
		t.Equal("invalid input. this is being used as a git hook, yes?", err.Error())
	}
}

func (g *ParseTests) NonHexID(t *testgroup.T) {
	_, err := ParseRefUpdate("zzzz000000000000000000000000000000000000 0000000000000000000000000000000000000000 refs/heads/a")

	var hie *HookIOError
	t.Require.ErrorAs(err, &hie)
	t.Equal(InvalidHookInput, hie.Kind)
}

func TestRun(t *testing.T) {
	testgroup.RunInParallel(t, &RunTests{})
}

type RunTests struct {
}

func line(oldID, newID repo.OID, ref string) string {
	return string(oldID) + " " + string(newID) + " " + ref + "\n"
}

func (g *RunTests) AcceptsSilently(t *testgroup.T) {
	r, root := newRepo()
	next := r.NewCommit(root).At(at(1)).Set("docs/new.org", "new").Create()

	var out bytes.Buffer
	code := Run(consoles.NewNullConsole(), r, rules(t, docsOnly()), strings.NewReader(line(root, next, branch)), &out)

	t.Equal(0, code)
	t.Empty(out.String())
}

func (g *RunTests) FirstFailureWins(t *testgroup.T) {
	r, root := newRepo()
	good := r.NewCommit(root).At(at(1)).Set("docs/new.org", "new").Create()
	bad := r.NewCommit(root).At(at(2)).Set("README", "bad").Create()

	input := line(root, good, "refs/heads/a") +
		line(repo.ZeroOID, good, "refs/heads/b") +
		line(root, bad, "refs/heads/c")

	var out bytes.Buffer
	code := Run(consoles.NewNullConsole(), r, rules(t, docsOnly()), strings.NewReader(input), &out)

	t.Equal(1, code)
	t.Equal("rejecting push: creating new refs is not permitted: refs/heads/b\n", out.String())
}

func (g *RunTests) InvalidInput(t *testgroup.T) {
	r, _ := newRepo()

	var out bytes.Buffer
	code := Run(consoles.NewNullConsole(), r, rules(t, policy.Config{}), strings.NewReader("not a hook line\n"), &out)

	t.Equal(1, code)
	t.Equal("rejecting push: invalid input. this is being used as a git hook, yes?\n", out.String())
}

func (g *RunTests) EmptyInputAccepted(t *testgroup.T) {
	r, _ := newRepo()

	var out bytes.Buffer
	code := Run(consoles.NewNullConsole(), r, rules(t, policy.Config{}), strings.NewReader(""), &out)

	t.Equal(0, code)
	t.Empty(out.String())
}

func (g *RunTests) StdinError(t *testgroup.T) {
	r, _ := newRepo()

	var out bytes.Buffer
	code := Run(consoles.NewNullConsole(), r, rules(t, policy.Config{}), failingReader{}, &out)

	t.Equal(1, code)
	t.Equal("rejecting push: failed to read stdin: broken pipe\n", out.String())
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errBrokenPipe
}

var errBrokenPipe = &brokenPipe{}

type brokenPipe struct{}

func (*brokenPipe) Error() string { return "broken pipe" }
