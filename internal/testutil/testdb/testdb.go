package testdb

import (
	"testing"

	"loan-submission-queue/internal/adapter/repository/gormrepo"
	"loan-submission-queue/internal/domain/uow"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns a migrated in-memory sqlite DB. Each new connection to
// :memory: is a fresh database, so the pool is pinned to one connection;
// never call a non-tx repository from inside WithinTx.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := gormrepo.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// Stores bundles the gorm repositories and unit of work over one DB.
type Stores struct {
	DB          *gorm.DB
	Submissions *gormrepo.SubmissionRepository
	Uploads     *gormrepo.UploadRepository
	UoW         *gormrepo.GormUoW
}

func (s Stores) Repos() uow.Repos {
	return uow.Repos{Submissions: s.Submissions, Uploads: s.Uploads}
}

func NewStores(t *testing.T) Stores {
	db := Open(t)
	return Stores{
		DB:          db,
		Submissions: gormrepo.NewSubmissionRepository(db),
		Uploads:     gormrepo.NewUploadRepository(db),
		UoW:         gormrepo.NewGormUoW(db),
	}
}
