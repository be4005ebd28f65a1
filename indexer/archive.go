package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vaultchain/core"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultLimit = 100
	maxLimit     = 1000
)

var ErrUnsupportedDriver = errors.New("indexer: unsupported driver")

// EventRecord is one committed event together with the operation that
// produced it.
type EventRecord struct {
	ID         uint   `gorm:"primaryKey"`
	OpID       string `gorm:"size:36;index"`
	Op         string `gorm:"size:64;index"`
	Height     uint64 `gorm:"index"`
	Seq        int
	Type       string `gorm:"size:64;index"`
	VaultID    string `gorm:"size:20;index"`
	Attributes string `gorm:"type:text"`
	CreatedAt  time.Time
}

// Attrs decodes the stored attribute set.
func (r EventRecord) Attrs() map[string]string {
	out := map[string]string{}
	if r.Attributes != "" {
		_ = json.Unmarshal([]byte(r.Attributes), &out)
	}
	return out
}

// Filter narrows a Query. Zero values match everything.
type Filter struct {
	Type       string
	OpID       string
	VaultID    string
	FromHeight uint64
	Limit      int
}

// Archive stores committed receipts in a SQL database for later lookup.
type Archive struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to the archive database and migrates its schema. driver is
// "sqlite" (the default) or "postgres".
func Open(driver, dsn string) (*Archive, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("indexer: dsn required")
	}
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open: %w", err)
	}
	return New(db)
}

// New wraps an existing gorm handle.
func New(db *gorm.DB) (*Archive, error) {
	if db == nil {
		return nil, fmt.Errorf("indexer: database not configured")
	}
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return &Archive{db: db, now: time.Now}, nil
}

// Append stores every event of a committed receipt in one transaction.
func (a *Archive) Append(ctx context.Context, op string, receipt *core.Receipt) error {
	if a == nil || receipt == nil || len(receipt.Events) == 0 {
		return nil
	}
	created := a.now().UTC()
	records := make([]EventRecord, 0, len(receipt.Events))
	for i, evt := range receipt.Events {
		if evt == nil {
			continue
		}
		attrs, err := json.Marshal(evt.Attributes)
		if err != nil {
			return fmt.Errorf("indexer: encode attributes: %w", err)
		}
		records = append(records, EventRecord{
			OpID:       receipt.OpID,
			Op:         op,
			Height:     receipt.Height,
			Seq:        i,
			Type:       evt.Type,
			VaultID:    evt.Attr("vaultId"),
			Attributes: string(attrs),
			CreatedAt:  created,
		})
	}
	if len(records) == 0 {
		return nil
	}
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&records).Error
	})
}

// Query returns matching events ordered by height, then emission order.
func (a *Archive) Query(ctx context.Context, f Filter) ([]EventRecord, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	q := a.db.WithContext(ctx).Model(&EventRecord{})
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.OpID != "" {
		q = q.Where("op_id = ?", f.OpID)
	}
	if f.VaultID != "" {
		q = q.Where("vault_id = ?", f.VaultID)
	}
	if f.FromHeight > 0 {
		q = q.Where("height >= ?", f.FromHeight)
	}
	var out []EventRecord
	if err := q.Order("height ASC").Order("seq ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("indexer: query: %w", err)
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
