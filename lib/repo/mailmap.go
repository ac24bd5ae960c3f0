package repo

import (
	"bufio"
	"io"
	"strings"
)

// Mailmap is a parsed git mailmap alias table. The zero value maps nothing.
type Mailmap struct {
	byEmail map[string]*mailmapEntry
}

type mailmapEntry struct {
	// used when no name specific mapping matches
	name  string
	email string

	byName map[string]mailmapTarget
}

type mailmapTarget struct {
	name  string
	email string
}

func NewMailmap() *Mailmap {
	return &Mailmap{
		byEmail: map[string]*mailmapEntry{},
	}
}

func ParseMailmap(r io.Reader) (*Mailmap, error) {
	result := NewMailmap()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		result.addLine(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func ParseMailmapString(s string) *Mailmap {
	result := NewMailmap()
	for _, line := range strings.Split(s, "\n") {
		result.addLine(line)
	}
	return result
}

func (m *Mailmap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.byEmail)
}

func (m *Mailmap) addLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}

	name1, email1, rest, ok := parseNameEmail(line)
	if !ok {
		return
	}

	name2, email2, _, ok := parseNameEmail(rest)
	if !ok {
		m.Add("", email1, name1, "")
	} else {
		m.Add(name2, email2, name1, email1)
	}
}

// Add maps commits made as oldName <oldEmail> to newName <newEmail>. An empty oldName matches
// any name used with oldEmail. Empty new values keep the original ones.
func (m *Mailmap) Add(oldName, oldEmail, newName, newEmail string) {
	if m.byEmail == nil {
		m.byEmail = map[string]*mailmapEntry{}
	}

	key := strings.ToLower(oldEmail)

	e, ok := m.byEmail[key]
	if !ok {
		e = &mailmapEntry{}
		m.byEmail[key] = e
	}

	if oldName == "" {
		if newName != "" {
			e.name = newName
		}
		if newEmail != "" {
			e.email = newEmail
		}
		return
	}

	if e.byName == nil {
		e.byName = map[string]mailmapTarget{}
	}

	nameKey := strings.ToLower(oldName)
	t := e.byName[nameKey]
	if newName != "" {
		t.name = newName
	}
	if newEmail != "" {
		t.email = newEmail
	}
	e.byName[nameKey] = t
}

// Resolve returns the canonical name and email for a raw pair.
func (m *Mailmap) Resolve(name, email string) (string, string) {
	if m == nil {
		return name, email
	}

	e, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return name, email
	}

	newName, newEmail := e.name, e.email
	if t, ok := e.byName[strings.ToLower(name)]; ok {
		newName, newEmail = t.name, t.email
	}

	if newName != "" {
		name = newName
	}
	if newEmail != "" {
		email = newEmail
	}

	return name, email
}

func parseNameEmail(s string) (name string, email string, rest string, ok bool) {
	start := strings.IndexByte(s, '<')
	if start < 0 {
		return "", "", "", false
	}

	end := strings.IndexByte(s[start+1:], '>')
	if end < 0 {
		return "", "", "", false
	}
	end += start + 1

	name = strings.TrimSpace(s[:start])
	email = strings.TrimSpace(s[start+1 : end])
	rest = s[end+1:]

	return name, email, rest, true
}
