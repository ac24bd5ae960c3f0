package orm

import (
	"log"
	"os"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/teris-io/shortid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/pescuma/clam/lib/consoles"
	"github.com/pescuma/clam/lib/provenance"
	"github.com/pescuma/clam/lib/repo"
	"github.com/pescuma/clam/lib/storages"
)

type gormStorage struct {
	mutex   sync.RWMutex
	db      *gorm.DB
	console consoles.Console

	config *map[string]string

	sqlConfigs map[string]*sqlConfig
}

func NewGormStorage(d gorm.Dialector, console consoles.Console) (storages.Storage, error) {
	l := logger.New(
		log.New(os.Stderr, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	db, err := gorm.Open(d, &gorm.Config{
		NamingStrategy: &NamingStrategy{},
		Logger:         l,
	})
	if err != nil {
		return nil, err
	}

	// Every connection to :memory: is a different database
	if sd, ok := d.(*sqlite.Dialector); ok && sd.DSN == InMemory {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	err = db.AutoMigrate(
		&sqlConfig{},
		&sqlProvenanceRun{}, &sqlPathRecord{}, &sqlPathContributor{},
	)
	if err != nil {
		return nil, err
	}

	return &gormStorage{
		db:      db,
		console: console,
	}, nil
}

func (s *gormStorage) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}

	return db.Close()
}

func createCache[T sqlTable](rows []T) map[string]T {
	return lo.Associate(rows, func(i T) (string, T) {
		return i.CacheKey(), i
	})
}

func (s *gormStorage) WriteProvenance(repoDir string, rev string, table *provenance.Table) (*storages.ProvenanceSnapshot, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.console.Printf("Writing provenance of %v paths...\n", table.Len())

	run := &sqlProvenanceRun{
		ID:      shortid.MustGenerate(),
		RepoDir: repoDir,
		Rev:     rev,
		Abbrev:  table.AbbrevLength(),
		Paths:   table.Len(),
	}

	var records []*sqlPathRecord
	var contributors []*sqlPathContributor
	for _, r := range table.List() {
		records = append(records, toSqlPathRecord(run.ID, r))

		for _, name := range r.ListContributors() {
			contributors = append(contributors, &sqlPathContributor{
				RunID: run.ID,
				Path:  r.Path,
				Name:  name,
			})
		}
	}

	now := time.Now().Local()
	err := s.db.Session(&gorm.Session{
		NowFunc:         func() time.Time { return now },
		CreateBatchSize: 300,
	}).Transaction(func(tx *gorm.DB) error {
		var old []*sqlProvenanceRun
		err := tx.Where("repo_dir = ?", repoDir).Find(&old).Error
		if err != nil {
			return err
		}

		ids := lo.Map(old, func(r *sqlProvenanceRun, _ int) string { return r.ID })
		if len(ids) > 0 {
			err = tx.Where("run_id in ?", ids).Delete(&sqlPathContributor{}).Error
			if err != nil {
				return err
			}

			err = tx.Where("run_id in ?", ids).Delete(&sqlPathRecord{}).Error
			if err != nil {
				return err
			}

			err = tx.Where("id in ?", ids).Delete(&sqlProvenanceRun{}).Error
			if err != nil {
				return err
			}
		}

		err = tx.Create(run).Error
		if err != nil {
			return err
		}

		if len(records) > 0 {
			err = tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&records).Error
			if err != nil {
				return err
			}
		}

		if len(contributors) > 0 {
			err = tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&contributors).Error
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "could not write provenance of %v", repoDir)
	}

	result := toSnapshot(run)
	result.Table = table
	return result, nil
}

func (s *gormStorage) LoadProvenance(repoDir string) (*storages.ProvenanceSnapshot, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var runs []*sqlProvenanceRun
	err := s.db.Where("repo_dir = ?", repoDir).Limit(1).Find(&runs).Error
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, storages.ErrNotFound
	}

	run := runs[0]

	s.console.Printf("Loading provenance of %v paths...\n", run.Paths)

	var records []*sqlPathRecord
	err = s.db.Where("run_id = ?", run.ID).Find(&records).Error
	if err != nil {
		return nil, err
	}

	var contributors []*sqlPathContributor
	err = s.db.Where("run_id = ?", run.ID).Find(&contributors).Error
	if err != nil {
		return nil, err
	}

	table := provenance.NewTable()
	table.SetAbbrevLength(run.Abbrev)

	for _, sr := range records {
		table.Put(fromSqlPathRecord(sr))
	}

	for _, sc := range contributors {
		r := table.Get(sc.Path)
		if r == nil {
			return nil, errors.Errorf("contributor %v references unknown path %v", sc.Name, sc.Path)
		}

		r.Contributors.Insert(sc.Name)
	}

	result := toSnapshot(run)
	result.Table = table
	return result, nil
}

func (s *gormStorage) ListProvenance() ([]*storages.ProvenanceSnapshot, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var runs []*sqlProvenanceRun
	err := s.db.Find(&runs).Error
	if err != nil {
		return nil, err
	}

	result := lo.Map(runs, func(r *sqlProvenanceRun, _ int) *storages.ProvenanceSnapshot { return toSnapshot(r) })
	sort.Slice(result, func(i, j int) bool {
		return result[i].RepoDir < result[j].RepoDir
	})

	return result, nil
}

func toSnapshot(run *sqlProvenanceRun) *storages.ProvenanceSnapshot {
	return &storages.ProvenanceSnapshot{
		ID:        run.ID,
		RepoDir:   run.RepoDir,
		Rev:       run.Rev,
		Paths:     run.Paths,
		WrittenAt: run.UpdatedAt,
	}
}

func toSqlPathRecord(runID string, r *provenance.Record) *sqlPathRecord {
	return &sqlPathRecord{
		RunID:           runID,
		Path:            r.Path,
		Created:         r.CreatedAt.UTC(),
		CreatorName:     r.Creator.Name,
		CreatorEmail:    r.Creator.Email,
		FirstCommit:     string(r.FirstCommit),
		Modified:        r.ModifiedAt.UTC(),
		LastEditorName:  r.LastEditor.Name,
		LastEditorEmail: r.LastEditor.Email,
		LastCommit:      string(r.LastCommit),
		LastMessage:     r.LastMessage,
	}
}

func fromSqlPathRecord(sr *sqlPathRecord) *provenance.Record {
	r := provenance.NewRecord(sr.Path)
	r.CreatedAt = sr.Created.UTC()
	r.Creator = repo.Identity{Name: sr.CreatorName, Email: sr.CreatorEmail}
	r.FirstCommit = repo.OID(sr.FirstCommit)
	r.ModifiedAt = sr.Modified.UTC()
	r.LastEditor = repo.Identity{Name: sr.LastEditorName, Email: sr.LastEditorEmail}
	r.LastCommit = repo.OID(sr.LastCommit)
	r.LastMessage = sr.LastMessage
	return r
}

func (s *gormStorage) LoadConfig() (*map[string]string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.config != nil {
		return s.config, nil
	}

	result := map[string]string{}

	var sqlConfigs []*sqlConfig
	err := s.db.Find(&sqlConfigs).Error
	if err != nil {
		return nil, err
	}

	s.sqlConfigs = createCache(sqlConfigs)

	for _, sc := range sqlConfigs {
		result[sc.Key] = sc.Value
	}

	s.config = &result
	return &result, nil
}

func (s *gormStorage) WriteConfig() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.config == nil {
		return nil
	}

	var changed []*sqlConfig
	for k, v := range *s.config {
		sc := newSqlConfig(k, v)
		if prepareChange(&s.sqlConfigs, sc) {
			changed = append(changed, sc)
		}
	}

	var deleted []string
	for k := range s.sqlConfigs {
		if _, ok := (*s.config)[k]; !ok {
			deleted = append(deleted, k)
		}
	}

	now := time.Now().Local()
	db := s.db.Session(&gorm.Session{
		NowFunc:         func() time.Time { return now },
		CreateBatchSize: 300,
	})

	if len(changed) > 0 {
		err := db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&changed).Error
		if err != nil {
			return err
		}
	}

	if len(deleted) > 0 {
		err := db.Where("`key` in ?", deleted).Delete(&sqlConfig{}).Error
		if err != nil {
			return err
		}

		for _, k := range deleted {
			delete(s.sqlConfigs, k)
		}
	}

	return nil
}

// prepareChange returns true when n differs from the cached row with the same key, and
// caches n.
func prepareChange[T sqlTable](byKey *map[string]T, n T) bool {
	o, ok := (*byKey)[n.CacheKey()]
	if ok {
		ro := reflect.Indirect(reflect.ValueOf(o))
		rn := reflect.Indirect(reflect.ValueOf(n))

		rn.FieldByName("CreatedAt").Set(ro.FieldByName("CreatedAt"))
		rn.FieldByName("UpdatedAt").Set(ro.FieldByName("UpdatedAt"))
	}

	if ok && reflect.DeepEqual(n, o) {
		return false
	}

	(*byKey)[n.CacheKey()] = n
	return true
}
