package orm

import (
	"time"
)

type sqlTable interface {
	CacheKey() string
}

type sqlConfig struct {
	Key   string `gorm:"primaryKey"`
	Value string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func newSqlConfig(k string, v string) *sqlConfig {
	return &sqlConfig{
		Key:   k,
		Value: v,
	}
}

func (s *sqlConfig) CacheKey() string {
	return s.Key
}

type sqlProvenanceRun struct {
	ID      string
	RepoDir string `gorm:"uniqueIndex"`
	Rev     string
	Abbrev  int
	Paths   int

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s *sqlProvenanceRun) CacheKey() string {
	return s.RepoDir
}

type sqlPathRecord struct {
	RunID string `gorm:"primaryKey"`
	Path  string `gorm:"primaryKey"`

	Created      time.Time
	CreatorName  string
	CreatorEmail string
	FirstCommit  string

	Modified        time.Time
	LastEditorName  string
	LastEditorEmail string
	LastCommit      string
	LastMessage     string
}

type sqlPathContributor struct {
	RunID string `gorm:"primaryKey"`
	Path  string `gorm:"primaryKey"`
	Name  string `gorm:"primaryKey"`
}
