package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tailbeacon/pkg/logging"
	"tailbeacon/pkg/model"
)

// RunRecord is the MySQL row for one sweep.
type RunRecord struct {
	ID         string    `gorm:"primaryKey;size:64"`
	StartedAt  time.Time `gorm:"index"`
	DurationMs int64
	StatusOK   bool
	Candidates int
	Chains     int
	Beacons    int
	Body       string `gorm:"type:mediumtext"`
}

func (RunRecord) TableName() string { return "discovery_runs" }

func newRunRecord(run model.DiscoveryRun) (RunRecord, error) {
	body, err := encodeRun(run)
	if err != nil {
		return RunRecord{}, err
	}
	return RunRecord{
		ID:         run.ID,
		StartedAt:  run.StartedAt,
		DurationMs: run.DurationMs,
		StatusOK:   run.StatusOK,
		Candidates: run.Candidates,
		Chains:     run.Chains,
		Beacons:    len(run.Beacons),
		Body:       body,
	}, nil
}

// MySQL stores runs through gorm for deployments sharing one database.
type MySQL struct {
	db  *gorm.DB
	log *zap.Logger
}

// OpenMySQL connects and migrates; a missing database is created first.
func OpenMySQL(dsn string, log *zap.Logger) (*MySQL, error) {
	cfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}
	db, err := gorm.Open(mysql.Open(dsn), cfg)
	if err != nil {
		if !strings.Contains(err.Error(), "Unknown database") {
			return nil, err
		}
		if cerr := createDatabase(dsn); cerr != nil {
			return nil, fmt.Errorf("create database failed: %w", cerr)
		}
		db, err = gorm.Open(mysql.Open(dsn), cfg)
		if err != nil {
			return nil, err
		}
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(5)
	if err := db.AutoMigrate(&RunRecord{}); err != nil {
		return nil, err
	}
	return &MySQL{db: db, log: logging.OrNop(log).Named("journal")}, nil
}

func createDatabase(dsn string) error {
	cfg, err := mysqldrv.ParseDSN(dsn)
	if err != nil {
		return err
	}
	name := cfg.DBName
	cfg.DBName = ""
	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.Exec(fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` DEFAULT CHARACTER SET utf8mb4", name))
	return err
}

func (m *MySQL) Record(ctx context.Context, run model.DiscoveryRun) error {
	rec, err := newRunRecord(run)
	if err != nil {
		return err
	}
	ctx, cancel := opTimeout(ctx)
	defer cancel()
	if err := m.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

func (m *MySQL) Recent(ctx context.Context, limit int) ([]model.DiscoveryRun, error) {
	ctx, cancel := opTimeout(ctx)
	defer cancel()
	var recs []RunRecord
	if err := m.db.WithContext(ctx).Order("started_at desc").Limit(clampLimit(limit)).Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]model.DiscoveryRun, 0, len(recs))
	for _, r := range recs {
		run, err := decodeRun(r.Body)
		if err != nil {
			m.log.Warn("skip undecodable run", zap.String("id", r.ID), zap.Error(err))
			continue
		}
		out = append(out, run)
	}
	return out, nil
}

func (m *MySQL) Prune(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := opTimeout(ctx)
	defer cancel()
	res := m.db.WithContext(ctx).Where("started_at < ?", before).Delete(&RunRecord{})
	return res.RowsAffected, res.Error
}

func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
