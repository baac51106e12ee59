package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Database wraps the GORM DB handle and exposes repository helpers.
type Database struct {
	gorm *gorm.DB
	mu   sync.Mutex
}

// Open initializes the SQLite-backed database at the provided path.
func Open(path string, silent bool) (*Database, error) {
	cfg := &gorm.Config{}
	if silent {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	}
	db, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&Ad{}, &Profile{}, &Run{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		logrus.WithError(err).Warn("enable WAL mode")
	}
	if err := db.Exec("PRAGMA synchronous=NORMAL").Error; err != nil {
		logrus.WithError(err).Warn("set synchronous pragma")
	}
	if err := applyIndexes(db); err != nil {
		return nil, fmt.Errorf("apply indexes: %w", err)
	}
	return &Database{gorm: db}, nil
}

// GORM exposes the raw gorm.DB handle.
func (d *Database) GORM() *gorm.DB {
	return d.gorm
}

// Close closes the underlying database connection.
func (d *Database) Close() error {
	if d == nil {
		return nil
	}
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// adUpdateColumns are the fields refreshed when the same URL is submitted
// again. Notes are operator-owned and survive re-evaluation.
var adUpdateColumns = []string{
	"run_id", "profile_id",
	"title", "price_ron", "location_text", "lat", "lon", "image_url",
	"description", "scraped_at", "distance_km",
	"intent", "score", "verdict", "likely_fix",
	"repair_estimate_low", "repair_estimate_high", "parts_suspected",
	"price_hint", "scam_risk", "reasoning", "bonus",
	"confidence", "signals_positive_json", "signals_negative_json",
	"quick_tests_json", "repair_items_json",
	"resale_value_low", "resale_value_high", "profit_low", "profit_high",
	"soft_dropped", "drop_reason", "parse_ok", "judge_error",
	"updated_at",
}

// UpsertAd inserts or refreshes the evaluated listing keyed by URL.
func (d *Database) UpsertAd(ad *Ad) error {
	if ad == nil {
		return errors.New("ad is nil")
	}
	ad.URL = strings.TrimSpace(ad.URL)
	if ad.URL == "" {
		return errors.New("ad url is required")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "url"}},
		DoUpdates: clause.AssignmentColumns(adUpdateColumns),
	}).Create(ad).Error
}

// AdQuery encapsulates filters and pagination for listing ads.
type AdQuery struct {
	MinScore     *float64
	RunID        string
	IncludeDrops bool
	Limit        int
	Offset       int
}

// ListAds returns persisted ads ordered best-first.
func (d *Database) ListAds(opts AdQuery) ([]Ad, int64, error) {
	base := d.gorm.Model(&Ad{})
	if opts.MinScore != nil {
		base = base.Where("score >= ?", *opts.MinScore)
	}
	if opts.RunID != "" {
		base = base.Where("run_id = ?", opts.RunID)
	}
	if !opts.IncludeDrops {
		base = base.Where("soft_dropped = ?", false)
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query := base.Order("score DESC, id DESC").Offset(opts.Offset)
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	var rows []Ad
	if err := query.Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// GetAd retrieves an ad by ID.
func (d *Database) GetAd(id uint) (*Ad, error) {
	var ad Ad
	if err := d.gorm.First(&ad, id).Error; err != nil {
		return nil, err
	}
	return &ad, nil
}

// CreateProfile inserts a new decision profile.
func (d *Database) CreateProfile(p *Profile) error {
	if p == nil {
		return errors.New("profile is nil")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Create(p).Error
}

// ListProfiles returns all profiles ordered by creation time.
func (d *Database) ListProfiles() ([]Profile, error) {
	var rows []Profile
	if err := d.gorm.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GetProfile retrieves a profile by ID.
func (d *Database) GetProfile(id uint) (*Profile, error) {
	var p Profile
	if err := d.gorm.First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// DeleteProfile removes a profile by ID.
func (d *Database) DeleteProfile(id uint) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Delete(&Profile{}, id).Error
}

// SaveRun upserts the run metadata row.
func (d *Database) SaveRun(run *Run) error {
	if run == nil {
		return errors.New("run is nil")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "run_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "message", "processed", "kept",
			"soft_dropped", "hard_dropped", "total", "updated_at",
		}),
	}).Create(run).Error
}

// GetRun retrieves run metadata by run id.
func (d *Database) GetRun(runID string) (*Run, error) {
	var run Run
	if err := d.gorm.First(&run, "run_id = ?", runID).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func applyIndexes(db *gorm.DB) error {
	stmts := []string{
		"CREATE INDEX IF NOT EXISTS idx_ads_score ON ads(score)",
		"CREATE INDEX IF NOT EXISTS idx_ads_scraped_at ON ads(scraped_at)",
		"CREATE INDEX IF NOT EXISTS idx_ads_run_soft ON ads(run_id, soft_dropped)",
		"CREATE INDEX IF NOT EXISTS idx_runs_status_updated ON runs(status, updated_at)",
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
