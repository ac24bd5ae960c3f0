package identity

import (
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-set/v2"
	"github.com/samber/lo"

	"github.com/pescuma/clam/lib/utils"
)

// Grouper finds the (name, email) pairs that belong to the same person: pairs sharing an email,
// or sharing a name once case and accents are ignored, end up in the same group.
type Grouper struct {
	mutex         sync.RWMutex
	ignoredEmails map[string]bool

	byOne  map[string]*namesEmails
	byBoth map[string]*namesEmails
	dirty  bool
}

type Group struct {
	Name   string
	Names  []string
	Emails []string
}

func NewGrouper(ignoredEmails ...string) *Grouper {
	result := &Grouper{
		ignoredEmails: map[string]bool{},
		byOne:         map[string]*namesEmails{},
		byBoth:        map[string]*namesEmails{},
	}

	for _, e := range ignoredEmails {
		e = strings.TrimSpace(e)
		if e != "" {
			result.ignoredEmails[keyOne(e)] = true
		}
	}

	return result
}

func (g *Grouper) Add(name string, email string) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	if name == "" && email == "" {
		return
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	var n, e *namesEmails
	if name != "" {
		n = g.byOne[keyOne(name)]
	}
	if email != "" && !g.ignoredEmails[keyOne(email)] {
		e = g.byOne[keyOne(email)]
	}

	var r *namesEmails
	switch {
	case n == nil && e == nil:
		r = g.byBoth[keyBoth(name, email)]
	case n == nil:
		r = e
	case e == nil:
		r = n
	default:
		r = n
		if n != e {
			n.Names.InsertSet(e.Names)
			n.Emails.InsertSet(e.Emails)
		}
	}

	if r == nil {
		r = newNamesEmails()
	}

	if name != "" {
		r.Names.Insert(name)
	}
	if email != "" {
		r.Emails.Insert(email)
	}

	g.store(r)
	g.dirty = true
}

func (g *Grouper) store(r *namesEmails) {
	names := r.Names.Slice()
	emails := r.Emails.Slice()

	for _, n := range names {
		g.byOne[keyOne(n)] = r
	}
	for _, e := range emails {
		e = keyOne(e)
		if !g.ignoredEmails[e] {
			g.byOne[e] = r
		}
	}
	for _, n := range names {
		for _, e := range emails {
			g.byBoth[keyBoth(n, e)] = r
		}
	}
}

// Name returns the canonical name of the group the pair belongs to. Pairs never added keep
// their own name.
func (g *Grouper) Name(name string, email string) string {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	g.prepare()

	g.mutex.RLock()
	defer g.mutex.RUnlock()

	r := g.find(name, email)
	if r == nil || r.Name == "" {
		return name
	}

	return r.Name
}

func (g *Grouper) find(name string, email string) *namesEmails {
	if email != "" && !g.ignoredEmails[keyOne(email)] {
		if r, ok := g.byOne[keyOne(email)]; ok {
			return r
		}
	}
	if name != "" {
		if r, ok := g.byOne[keyOne(name)]; ok {
			return r
		}
	}
	return g.byBoth[keyBoth(name, email)]
}

// List returns every group, sorted by name.
func (g *Grouper) List() []Group {
	g.prepare()

	g.mutex.RLock()
	defer g.mutex.RUnlock()

	result := lo.Map(g.list(), func(ne *namesEmails, _ int) Group {
		return Group{
			Name:   ne.Name,
			Names:  sorted(ne.Names),
			Emails: sorted(ne.Emails),
		}
	})

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})

	return result
}

func (g *Grouper) prepare() {
	g.mutex.RLock()
	dirty := g.dirty
	g.mutex.RUnlock()

	if !dirty {
		return
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	for _, ne := range g.list() {
		names := ne.Names.Slice()

		// Someone who committed with the email as name also committed with a real name
		emails := lo.Filter(names, func(n string, _ int) bool { return utils.IsEmail(n) })
		if len(emails) < len(names) {
			names = lo.Without(names, emails...)
		}

		ne.Name = findBestName(names)
	}

	g.dirty = false
}

func (g *Grouper) list() []*namesEmails {
	result := set.New[*namesEmails](len(g.byOne))

	for _, v := range g.byOne {
		result.Insert(v)
	}
	for _, v := range g.byBoth {
		result.Insert(v)
	}

	return result.Slice()
}

func findBestName(names []string) string {
	if len(names) == 0 {
		return ""
	}

	return lo.MaxBy(names, func(a string, b string) bool {
		ignoreA := utils.IsEmail(a)
		ignoreB := utils.IsEmail(b)
		if ignoreA != ignoreB {
			return ignoreB
		}

		ignoreA = strings.Contains(a, "-")
		ignoreB = strings.Contains(b, "-")
		if ignoreA != ignoreB {
			return ignoreB
		}

		if len(a) != len(b) {
			return len(a) > len(b)
		}

		return a < b
	})
}

func keyOne(n string) string {
	return strings.TrimSpace(utils.ToLowerNoAccents(n))
}

func keyBoth(n string, e string) string {
	return keyOne(n) + "\n" + keyOne(e)
}

func sorted(s *set.Set[string]) []string {
	result := s.Slice()
	sort.Strings(result)
	return result
}

type namesEmails struct {
	Name string

	Names  *set.Set[string]
	Emails *set.Set[string]
}

func newNamesEmails() *namesEmails {
	return &namesEmails{
		Names:  set.New[string](10),
		Emails: set.New[string](10),
	}
}
