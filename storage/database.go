package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/web3guy0/hitwatch/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DATABASE - Setups, recorded hits and scan cursors
// ═══════════════════════════════════════════════════════════════════════════════

// DisplayOffset is the shift applied to the *_utc3 display columns
const DisplayOffset = 3 * time.Hour

const displayLayout = "2006-01-02 15:04:05"

type Database struct {
	db *gorm.DB
}

// Models

type SetupRow struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	Symbol     string `gorm:"index"`
	Direction  string
	SL         decimal.Decimal     `gorm:"column:sl;type:decimal(20,10)"`
	TP         decimal.Decimal     `gorm:"column:tp;type:decimal(20,10)"`
	Price      decimal.NullDecimal `gorm:"type:decimal(20,10)"`
	AsOf       time.Time           `gorm:"index"` // UTC entry
	InsertedAt time.Time           `gorm:"index;autoCreateTime"`
}

func (SetupRow) TableName() string { return "setups" }

// HitRow is one recorded TP/SL touch, unique per setup
type HitRow struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	SetupID       int64  `gorm:"uniqueIndex"`
	Symbol        string `gorm:"index"`
	Direction     string
	SL            decimal.Decimal     `gorm:"column:sl;type:decimal(20,10)"`
	TP            decimal.Decimal     `gorm:"column:tp;type:decimal(20,10)"`
	Hit           string              `gorm:"column:hit"` // TP or SL
	HitPrice      decimal.Decimal     `gorm:"type:decimal(20,10)"`
	HitTime       time.Time           // UTC
	HitTimeUTC3   string              `gorm:"column:hit_time_utc3"`
	EntryTimeUTC3 string              `gorm:"column:entry_time_utc3"`
	EntryPrice    decimal.NullDecimal `gorm:"type:decimal(20,10)"`
	AdversePrice  decimal.NullDecimal `gorm:"type:decimal(20,10)"`
	AdverseMove   decimal.NullDecimal `gorm:"type:decimal(20,10)"`
	DrawdownRatio decimal.NullDecimal `gorm:"type:decimal(20,10)"`
	CheckedAt     time.Time
}

func (HitRow) TableName() string { return "timelapse_hits" }

// SetupState is the incremental scan cursor of a setup
type SetupState struct {
	SetupID        int64     `gorm:"primaryKey;autoIncrement:false"`
	LastCheckedUTC time.Time `gorm:"column:last_checked_utc"`
	UpdatedAt      time.Time
}

func (SetupState) TableName() string { return "tp_sl_setup_state" }

// columns refreshed when a setup is recorded twice; the hit kind and time stay
var hitRefreshColumns = []string{
	"sl", "tp", "hit_price", "hit_time_utc3", "entry_time_utc3", "entry_price",
	"adverse_price", "adverse_move", "drawdown_ratio", "checked_at",
}

// New opens PostgreSQL for postgres:// DSNs and SQLite otherwise
func New(dbPath string) (*Database, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("💾 Database connected (PostgreSQL)")
	} else {
		if !strings.HasPrefix(dbPath, "file:") {
			if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
				return nil, err
			}
		}
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dbPath).Msg("💾 Database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&SetupRow{}, &HitRow{}, &SetupState{}); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ═══════════════════════════════════════════════════════════════════════════════
// SETUPS
// ═══════════════════════════════════════════════════════════════════════════════

// AddSetup stores a setup and returns its id
func (d *Database) AddSetup(ctx context.Context, s types.Setup) (int64, error) {
	row := SetupRow{
		ID:         s.ID,
		Symbol:     s.Symbol,
		Direction:  string(s.Direction),
		SL:         s.StopLoss,
		TP:         s.TakeProfit,
		Price:      s.EntryPrice,
		AsOf:       s.AsOf.UTC(),
		InsertedAt: time.Now().UTC(),
	}
	if err := d.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, fmt.Errorf("add setup: %w", err)
	}
	return row.ID, nil
}

// LoadSetups returns setups ordered by id. IDs take precedence over Since.
func (d *Database) LoadSetups(ctx context.Context, filter types.SetupFilter) ([]types.Setup, error) {
	q := d.db.WithContext(ctx).Model(&SetupRow{})
	if len(filter.IDs) > 0 {
		q = q.Where("id IN ?", filter.IDs)
	} else if !filter.Since.IsZero() {
		q = q.Where("inserted_at >= ?", filter.Since.UTC())
	}
	if len(filter.Symbols) > 0 {
		q = q.Where("symbol IN ?", filter.Symbols)
	}

	var rows []SetupRow
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load setups: %w", err)
	}

	setups := make([]types.Setup, 0, len(rows))
	for _, r := range rows {
		dir, err := types.ParseDirection(r.Direction)
		if err != nil {
			// left invalid so the engine reports it as skipped
			dir = types.Direction(r.Direction)
		}
		setups = append(setups, types.Setup{
			ID:         r.ID,
			Symbol:     r.Symbol,
			Direction:  dir,
			StopLoss:   r.SL,
			TakeProfit: r.TP,
			EntryPrice: r.Price,
			AsOf:       r.AsOf.UTC(),
		})
	}
	return setups, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// HITS
// ═══════════════════════════════════════════════════════════════════════════════

// RecordedIDs returns which of ids already have a hit row
func (d *Database) RecordedIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	out := make(map[int64]bool)
	if len(ids) == 0 {
		return out, nil
	}
	var found []int64
	err := d.db.WithContext(ctx).Model(&HitRow{}).
		Where("setup_id IN ?", ids).
		Pluck("setup_id", &found).Error
	if err != nil {
		return nil, fmt.Errorf("recorded ids: %w", err)
	}
	for _, id := range found {
		out[id] = true
	}
	return out, nil
}

func (d *Database) IsAlreadyRecorded(ctx context.Context, setupID int64) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&HitRow{}).Where("setup_id = ?", setupID).Count(&count).Error
	return count > 0, err
}

// RecordHit upserts the hit row for a setup
func (d *Database) RecordHit(ctx context.Context, setup types.Setup, hit types.Hit) error {
	return upsertHit(d.db.WithContext(ctx), setup, hit, time.Now().UTC())
}

// RecordHitWithCursor writes the hit and moves the cursor in one transaction
func (d *Database) RecordHitWithCursor(ctx context.Context, setup types.Setup, hit types.Hit, cursor time.Time) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertHit(tx, setup, hit, time.Now().UTC()); err != nil {
			return err
		}
		return upsertCursors(tx, map[int64]time.Time{setup.ID: cursor})
	})
}

func upsertHit(tx *gorm.DB, setup types.Setup, hit types.Hit, checkedAt time.Time) error {
	row := NewHitRow(setup, hit, checkedAt)
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "setup_id"}},
		DoUpdates: clause.AssignmentColumns(hitRefreshColumns),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("record hit for setup %d: %w", setup.ID, err)
	}
	return nil
}

// NewHitRow builds the stored form of a hit, prices rounded to instrument digits
func NewHitRow(setup types.Setup, hit types.Hit, checkedAt time.Time) HitRow {
	ref := hit.Price
	if setup.EntryPrice.Valid {
		ref = setup.EntryPrice.Decimal
	}
	digits := int32(InstrumentDigits(setup.Symbol, ref))

	entry := setup.EntryPrice
	if entry.Valid {
		entry.Decimal = entry.Decimal.Round(digits)
	}
	adverse := hit.AdversePrice
	if adverse.Valid {
		adverse.Decimal = adverse.Decimal.Round(digits)
	}

	return HitRow{
		SetupID:       setup.ID,
		Symbol:        setup.Symbol,
		Direction:     string(setup.Direction),
		SL:            setup.StopLoss.Round(digits),
		TP:            setup.TakeProfit.Round(digits),
		Hit:           string(hit.Kind),
		HitPrice:      hit.Price.Round(digits),
		HitTime:       hit.Time.UTC(),
		HitTimeUTC3:   hit.Time.UTC().Add(DisplayOffset).Format(displayLayout),
		EntryTimeUTC3: setup.AsOf.UTC().Add(DisplayOffset).Format(displayLayout),
		EntryPrice:    entry,
		AdversePrice:  adverse,
		AdverseMove:   hit.AdverseMove,
		DrawdownRatio: hit.DrawdownRatio,
		CheckedAt:     checkedAt,
	}
}

// GetHit returns the recorded hit of a setup, nil when none exists
func (d *Database) GetHit(ctx context.Context, setupID int64) (*HitRow, error) {
	var row HitRow
	err := d.db.WithContext(ctx).First(&row, "setup_id = ?", setupID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	row.HitTime = row.HitTime.UTC()
	row.CheckedAt = row.CheckedAt.UTC()
	return &row, nil
}

// RecentHits returns the newest hits first
func (d *Database) RecentHits(ctx context.Context, limit int) ([]HitRow, error) {
	var rows []HitRow
	err := d.db.WithContext(ctx).Order("hit_time DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// HitCounts returns recorded hits per kind
func (d *Database) HitCounts(ctx context.Context) (map[types.HitKind]int64, error) {
	var rows []struct {
		Hit   string
		Count int64
	}
	err := d.db.WithContext(ctx).Model(&HitRow{}).
		Select("hit, count(*) as count").Group("hit").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[types.HitKind]int64, len(rows))
	for _, r := range rows {
		out[types.HitKind(r.Hit)] = r.Count
	}
	return out, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// CURSORS
// ═══════════════════════════════════════════════════════════════════════════════

func (d *Database) LoadCursor(ctx context.Context, setupID int64) (time.Time, bool, error) {
	var st SetupState
	err := d.db.WithContext(ctx).First(&st, "setup_id = ?", setupID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return st.LastCheckedUTC.UTC(), true, nil
}

// LoadCursors returns stored cursors for ids; setups never scanned are absent
func (d *Database) LoadCursors(ctx context.Context, ids []int64) (map[int64]time.Time, error) {
	out := make(map[int64]time.Time)
	if len(ids) == 0 {
		return out, nil
	}
	var rows []SetupState
	if err := d.db.WithContext(ctx).Where("setup_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load cursors: %w", err)
	}
	for _, r := range rows {
		out[r.SetupID] = r.LastCheckedUTC.UTC()
	}
	return out, nil
}

func (d *Database) SaveCursor(ctx context.Context, setupID int64, lastChecked time.Time) error {
	return d.SaveCursors(ctx, map[int64]time.Time{setupID: lastChecked})
}

// SaveCursors upserts cursors in one transaction
func (d *Database) SaveCursors(ctx context.Context, cursors map[int64]time.Time) error {
	if len(cursors) == 0 {
		return nil
	}
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return upsertCursors(tx, cursors)
	})
}

func upsertCursors(tx *gorm.DB, cursors map[int64]time.Time) error {
	now := time.Now().UTC()
	rows := make([]SetupState, 0, len(cursors))
	for id, c := range cursors {
		rows = append(rows, SetupState{SetupID: id, LastCheckedUTC: c.UTC(), UpdatedAt: now})
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "setup_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_checked_utc", "updated_at"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("save cursors: %w", err)
	}
	return nil
}
