// Package sqlstore keeps the blocklist in a relational database through gorm.
// PostgreSQL is the production target; any gorm dialector with ON CONFLICT
// support works.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/haukened/dns-sinkhole/internal/dns/common/log"
	"github.com/haukened/dns-sinkhole/internal/dns/domain"
	"github.com/haukened/dns-sinkhole/internal/dns/repos/blocklist"
)

const (
	batchThreshold    = 30000 // Use batches when exceeding this number of records
	maxParamsPerBatch = 32767 // PostgreSQL's bind parameter limit
	minBatchSize      = 100   // Minimum batch size to maintain efficiency

	defaultMaxOpenConns = 100
)

// hostEntryRow is the host_entries table.
type hostEntryRow struct {
	ID       uint64    `gorm:"primaryKey;autoIncrement"`
	IP       string    `gorm:"size:45;not null;uniqueIndex:idx_category_ip_hostname,priority:2"`
	Hostname string    `gorm:"size:253;not null;index:idx_hostname;uniqueIndex:idx_category_ip_hostname,priority:3"`
	Category string    `gorm:"size:64;not null;uniqueIndex:idx_category_ip_hostname,priority:1"`
	AddedAt  time.Time `gorm:"not null"`
}

func (hostEntryRow) TableName() string { return "host_entries" }

// Config describes the PostgreSQL connection.
type Config struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
}

// DSN renders the keyword/value connection string.
func (c Config) DSN() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, sslmode)
}

type sqlStore struct {
	db     *gorm.DB
	logger log.Logger
}

// Open connects to PostgreSQL, resolving the database host through resolver,
// and migrates the schema. A nil resolver uses the system resolver.
func Open(ctx context.Context, cfg Config, resolver HostResolver, logger log.Logger) (blocklist.Store, error) {
	if resolver == nil {
		resolver = SystemResolver()
	}
	pgCfg, err := pgx.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, &domain.StoreError{Op: "open", Err: err}
	}
	pgCfg.LookupFunc = resolver.LookupHost

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = defaultMaxOpenConns
	}
	sqlDB := stdlib.OpenDB(*pgCfg)
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxOpen / 4)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	logger.Info(map[string]any{"host": cfg.Host, "port": cfg.Port, "database": cfg.Name, "max_open_conns": maxOpen}, "Connecting to blocklist database")
	st, err := NewWithDialector(ctx, postgres.New(postgres.Config{Conn: sqlDB}), logger)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return st, nil
}

// NewWithDialector opens a store on an arbitrary gorm dialector and migrates the schema.
func NewWithDialector(ctx context.Context, dialector gorm.Dialector, logger log.Logger) (blocklist.Store, error) {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: newGormLogger(logger)})
	if err != nil {
		return nil, &domain.StoreError{Op: "open", Err: err}
	}
	if err := db.WithContext(ctx).AutoMigrate(&hostEntryRow{}); err != nil {
		return nil, &domain.StoreError{Op: "migrate", Err: err}
	}
	return &sqlStore{db: db, logger: logger}, nil
}

func (s *sqlStore) Exists(ctx context.Context, hostname string) (bool, error) {
	var ids []uint64
	err := s.db.WithContext(ctx).Model(&hostEntryRow{}).
		Where("hostname = ?", hostname).
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil {
		return false, &domain.StoreError{Op: "exists", Err: err}
	}
	return len(ids) > 0, nil
}

func (s *sqlStore) ListByCategory(ctx context.Context, category domain.Category) ([]domain.HostKey, error) {
	var rows []struct {
		IP       string
		Hostname string
	}
	err := s.db.WithContext(ctx).Model(&hostEntryRow{}).
		Select("ip", "hostname").
		Where("category = ?", string(category)).
		Find(&rows).Error
	if err != nil {
		return nil, &domain.StoreError{Op: "list_by_category", Err: err}
	}
	out := make([]domain.HostKey, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.HostKey{IP: r.IP, Hostname: r.Hostname})
	}
	return out, nil
}

// BulkInsert writes entries in one transaction, in batches sized to stay under
// the bind parameter limit. Existing (category, ip, hostname) rows are skipped.
// IDs are copied back to entries only when every row was inserted.
func (s *sqlStore) BulkInsert(ctx context.Context, entries []domain.HostEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	rows := make([]hostEntryRow, 0, len(entries))
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return 0, &domain.StoreError{Op: "bulk_insert", Err: err}
		}
		addedAt := e.AddedAt
		if addedAt.IsZero() {
			addedAt = time.Now().UTC()
		}
		rows = append(rows, hostEntryRow{IP: e.IP, Hostname: e.Hostname, Category: string(e.Category), AddedAt: addedAt})
	}

	batchSize, err := s.batchSize(len(rows))
	if err != nil {
		return 0, &domain.StoreError{Op: "bulk_insert", Err: err}
	}

	var inserted int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "category"}, {Name: "ip"}, {Name: "hostname"}},
			DoNothing: true,
		}).CreateInBatches(&rows, batchSize)
		if result.Error != nil {
			return result.Error
		}
		inserted = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, &domain.StoreError{Op: "bulk_insert", Err: err}
	}
	if int(inserted) == len(rows) {
		for i := range entries {
			entries[i].ID = rows[i].ID
		}
	}
	return int(inserted), nil
}

func (s *sqlStore) batchSize(n int) (int, error) {
	if n <= batchThreshold {
		return n, nil
	}
	stmt := &gorm.Statement{DB: s.db}
	if err := stmt.Parse(&hostEntryRow{}); err != nil {
		return 0, fmt.Errorf("failed to parse model schema: %w", err)
	}
	numFields := len(stmt.Schema.DBNames)
	if numFields == 0 {
		return 0, errors.New("model has no database fields")
	}
	size := maxParamsPerBatch / numFields
	if size < minBatchSize {
		size = minBatchSize
	}
	if size > n {
		size = n
	}
	return size, nil
}

func (s *sqlStore) Hostnames(ctx context.Context, visit func(string) bool) error {
	rows, err := s.db.WithContext(ctx).Model(&hostEntryRow{}).Distinct("hostname").Rows()
	if err != nil {
		return &domain.StoreError{Op: "hostnames", Err: err}
	}
	defer rows.Close()
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return &domain.StoreError{Op: "hostnames", Err: err}
		}
		if !visit(h) {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return &domain.StoreError{Op: "hostnames", Err: err}
	}
	return nil
}

func (s *sqlStore) Stats(ctx context.Context) (blocklist.StoreStats, error) {
	st := blocklist.StoreStats{Categories: map[string]uint64{}}
	db := s.db.WithContext(ctx)

	var entries, hostnames int64
	if err := db.Model(&hostEntryRow{}).Count(&entries).Error; err != nil {
		return st, &domain.StoreError{Op: "stats", Err: err}
	}
	if err := db.Model(&hostEntryRow{}).Distinct("hostname").Count(&hostnames).Error; err != nil {
		return st, &domain.StoreError{Op: "stats", Err: err}
	}
	st.Entries = uint64(entries)
	st.Hostnames = uint64(hostnames)

	var perCategory []struct {
		Category string
		N        int64
	}
	if err := db.Model(&hostEntryRow{}).Select("category, count(*) as n").Group("category").Scan(&perCategory).Error; err != nil {
		return st, &domain.StoreError{Op: "stats", Err: err}
	}
	for _, c := range perCategory {
		st.Categories[c.Category] = uint64(c.N)
	}

	var latest []hostEntryRow
	if err := db.Order("id DESC").Limit(1).Find(&latest).Error; err != nil {
		return st, &domain.StoreError{Op: "stats", Err: err}
	}
	if len(latest) == 1 {
		st.UpdatedUnix = latest[0].AddedAt.Unix()
	}
	return st, nil
}

func (s *sqlStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ blocklist.Store = (*sqlStore)(nil)
