package identity

import (
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/pescuma/clam/lib/repo"
)

type Person struct {
	Name string

	names     map[string]bool
	emails    map[string]bool
	Commits   int
	FirstSeen time.Time
	LastSeen  time.Time
}

func newPerson(name string) *Person {
	return &Person{
		Name:   name,
		names:  map[string]bool{},
		emails: map[string]bool{},
	}
}

func (p *Person) AddName(name string) {
	if name != "" {
		p.names[name] = true
	}
}

func (p *Person) ListNames() []string {
	result := lo.Keys(p.names)
	sort.Strings(result)
	return result
}

func (p *Person) AddEmail(email string) {
	if email != "" {
		p.emails[email] = true
	}
}

func (p *Person) ListEmails() []string {
	result := lo.Keys(p.emails)
	sort.Strings(result)
	return result
}

func (p *Person) SeenAt(ts ...time.Time) {
	empty := time.Time{}

	for _, t := range ts {
		t = t.UTC().Round(time.Second)

		if p.FirstSeen == empty || t.Before(p.FirstSeen) {
			p.FirstSeen = t
		}
		if p.LastSeen == empty || t.After(p.LastSeen) {
			p.LastSeen = t
		}
	}
}

// People indexes persons by resolved name.
type People struct {
	byName map[string]*Person
}

func NewPeople() *People {
	return &People{
		byName: map[string]*Person{},
	}
}

func (ps *People) GetOrCreatePerson(name string) *Person {
	result, ok := ps.byName[name]
	if !ok {
		result = newPerson(name)
		ps.byName[name] = result
	}
	return result
}

func (ps *People) GetPerson(name string) *Person {
	return ps.byName[name]
}

// ListPeople returns everyone sorted by name, case-insensitive.
func (ps *People) ListPeople() []*Person {
	result := lo.Values(ps.byName)
	sort.Slice(result, func(i, j int) bool {
		a, b := strings.ToLower(result[i].Name), strings.ToLower(result[j].Name)
		if a != b {
			return a < b
		}
		return result[i].Name < result[j].Name
	})
	return result
}

func (ps *People) Len() int {
	return len(ps.byName)
}

// CollectPeople resolves the author and committer of every commit reachable from start and
// records the raw names and emails each identity was seen with.
func CollectPeople(r repo.Repository, resolver *Resolver, start repo.OID) (*People, error) {
	result := NewPeople()

	err := r.Ancestors(start, func(id repo.OID) error {
		commit, err := r.Commit(id)
		if err != nil {
			return err
		}

		for i, sig := range []repo.Signature{commit.Author, commit.Committer} {
			who, err := resolver.Resolve(sig)
			if err != nil {
				return err
			}

			p := result.GetOrCreatePerson(who.Name)
			p.AddName(strings.TrimSpace(sig.Name))
			p.AddEmail(strings.TrimSpace(sig.Email))
			p.SeenAt(sig.When)

			if i == 0 {
				p.Commits++
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// LearnHistory feeds every author and committer reachable from start to the resolver grouper.
func LearnHistory(r repo.Repository, resolver *Resolver, start repo.OID) error {
	if resolver.Grouper() == nil {
		return nil
	}

	return r.Ancestors(start, func(id repo.OID) error {
		commit, err := r.Commit(id)
		if err != nil {
			return err
		}

		resolver.Learn(commit.Author)
		resolver.Learn(commit.Committer)
		return nil
	})
}
