package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"portmap-ai/pkg/model"
)

// AuditStore persists remediation decisions to MySQL.
type AuditStore struct {
	db *gorm.DB
}

// Open connects to MySQL and migrates the remediation_events table. The database
// named in the DSN is created when the server reports it unknown.
// An empty dsn is taken from the environment:
//
//	MYSQL_DSN or MYSQL_HOST, MYSQL_PORT, MYSQL_USER, MYSQL_PASS, MYSQL_DB
func Open(dsn string) (*AuditStore, error) {
	if dsn == "" {
		dsn = dsnFromEnv()
	}
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	db, err := gorm.Open(mysql.Open(dsn), gcfg)
	if err != nil && strings.Contains(err.Error(), "Unknown database") {
		if cerr := createDatabase(dsn); cerr != nil {
			return nil, fmt.Errorf("create audit database: %w", cerr)
		}
		db, err = gorm.Open(mysql.Open(dsn), gcfg)
	}
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(5)
	if err := db.AutoMigrate(&model.RemediationEvent{}); err != nil {
		return nil, fmt.Errorf("migrate remediation_events: %w", err)
	}
	return &AuditStore{db: db}, nil
}

// NewAuditStore wraps an existing gorm handle; the caller is responsible for migration.
func NewAuditStore(db *gorm.DB) *AuditStore {
	return &AuditStore{db: db}
}

// RecordTelemetry is a no-op; telemetry lines stay in the JSONL audit file.
func (s *AuditStore) RecordTelemetry(context.Context, model.TelemetryEvent) error { return nil }

func (s *AuditStore) RecordRemediation(ctx context.Context, ev model.RemediationEvent) error {
	return s.db.WithContext(ctx).Create(&ev).Error
}

// Recent returns the latest remediation events for a node, newest first.
func (s *AuditStore) Recent(ctx context.Context, nodeID string, limit int) ([]model.RemediationEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Order("timestamp desc").Limit(limit)
	if nodeID != "" {
		q = q.Where("node_id = ?", nodeID)
	}
	var out []model.RemediationEvent
	return out, q.Find(&out).Error
}

func (s *AuditStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// BuildDSN formats a go-sql-driver DSN with parseTime enabled.
func BuildDSN(user, pass, host, port, dbname string) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local", user, pass, host, port, dbname)
}

func dsnFromEnv() string {
	_ = loadDotEnv()
	if dsn := os.Getenv("MYSQL_DSN"); dsn != "" {
		return dsn
	}
	return BuildDSN(
		getenv("MYSQL_USER", "root"),
		getenv("MYSQL_PASS", ""),
		getenv("MYSQL_HOST", "127.0.0.1"),
		getenv("MYSQL_PORT", "3306"),
		getenv("MYSQL_DB", "portmap_ai"),
	)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	return godotenv.Load(".env")
}

// serverDSN strips the database name so the server can be reached before it exists.
func serverDSN(dsn string) (server, dbname string, err error) {
	cfg, err := gomysql.ParseDSN(dsn)
	if err != nil {
		return "", "", err
	}
	dbname = cfg.DBName
	if dbname == "" {
		return "", "", fmt.Errorf("dsn names no database")
	}
	cfg.DBName = ""
	return cfg.FormatDSN(), dbname, nil
}

func createDatabase(dsn string) error {
	server, dbname, err := serverDSN(dsn)
	if err != nil {
		return err
	}
	conn, err := sql.Open("mysql", server)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Exec("CREATE DATABASE IF NOT EXISTS `" + strings.ReplaceAll(dbname, "`", "``") + "` DEFAULT CHARACTER SET utf8mb4")
	return err
}
