package orm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/pescuma/clam/lib/consoles"
	"github.com/pescuma/clam/lib/storages"
	"github.com/pescuma/clam/lib/utils"
)

const InMemory = ":memory:"

func WithSqlite(file string) gorm.Dialector {
	return sqlite.Open(file + "?_pragma=journal_mode(WAL)")
}

func WithSqliteInMemory() gorm.Dialector {
	return sqlite.Open(InMemory)
}

// OpenSqlite opens (creating if needed) a sqlite database file, or an in memory database for
// ":memory:".
func OpenSqlite(file string, console consoles.Console) (storages.Storage, error) {
	switch {
	case file == InMemory:
		return NewGormStorage(WithSqliteInMemory(), console)

	case strings.HasSuffix(file, ".sqlite"):
		file, err := utils.PathAbs(file)
		if err != nil {
			return nil, err
		}

		err = createDir(console, file)
		if err != nil {
			return nil, err
		}

		return NewGormStorage(WithSqlite(file), console)

	default:
		return nil, fmt.Errorf("unknown storage type for file %v", file)
	}
}

func createDir(console consoles.Console, file string) error {
	path := filepath.Dir(file)

	if _, err := os.Stat(path); err != nil {
		console.Printf("Creating workspace at %v\n", path)
		err = os.MkdirAll(path, 0o700)
		if err != nil {
			return err
		}
	}

	return nil
}
