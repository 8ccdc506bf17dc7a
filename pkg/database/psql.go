package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tiered_video_service/pkg/logger"

	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	// sqlite driver 註冊為 "sqlite"
	_ "modernc.org/sqlite"
)

// NewDatabaseConnection create a new postgresSQL pgx pool
func NewDatabaseConnection(d Connection) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool

	dbConfig, err := pgxpool.ParseConfig(d.ConnectStr)
	if err != nil {
		return nil, fmt.Errorf("parse pg config: %w", err)
	}
	for i := 0; i < attempts(d.RetryCount); i++ {
		pool, err = pgxpool.ConnectConfig(context.Background(), dbConfig)
		if err == nil {
			break
		}
		logger.Log.Warn(
			"Failed to connect to postgreSQL database, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err),
		)
		time.Sleep(retryDelay(d.RetryInterval))
	}

	return pool, err
}

// NewPGConnection create a gorm postgres connection have retry
func NewPGConnection(d Connection) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	for i := 0; i < attempts(d.RetryCount); i++ {
		db, err = gorm.Open(postgres.Open(d.ConnectStr), &gorm.Config{
			Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
			TranslateError: true,
		})
		if err == nil {
			var sqlDB *sql.DB
			if sqlDB, err = db.DB(); err == nil {
				if err = sqlDB.Ping(); err == nil {
					return db, nil
				}
			}
		}
		logger.Log.Warn(
			"Failed to open gorm postgres, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err),
		)
		time.Sleep(retryDelay(d.RetryInterval))
	}

	return nil, fmt.Errorf("gorm postgres 連線失敗，經過 %d 次嘗試: %w", attempts(d.RetryCount), err)
}

// NewSQLiteConnection open a sqlite file (":memory:" for test)
func NewSQLiteConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite[%s]: %w", path, err)
	}
	// 單一連線避免 SQLITE_BUSY，並讓 :memory: 共用同一份資料
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite pragma: %w", err)
	}
	return db, nil
}
