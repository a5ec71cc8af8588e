package model

import (
	"fmt"
	"time"

	"peachcash/pkg/config"
	"peachcash/pkg/model/xgorm"
	"peachcash/pkg/xlog"

	"github.com/go-redis/redis/v8"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

var logger = xlog.GetLogger()

// OpenMySQL connects and migrates the tables this module owns
func OpenMySQL(cfg config.MySQLServer, debug bool) (db *gorm.DB, err error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("empty mysql host")
	}

	logger.Infof("mysql connecting tcp(%s:%d)/%s", cfg.Host, cfg.Port, cfg.DB)

	url := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.User, cfg.Pass, cfg.Host, cfg.Port, cfg.DB,
	)

	logMode := gormLogger.Info
	if !debug {
		logMode = gormLogger.Warn
	}
	newLogger := xgorm.New(gormLogger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  logMode,
		IgnoreRecordNotFoundError: true,
	})

	db, err = gorm.Open(mysql.Open(url), &gorm.Config{
		SkipDefaultTransaction: false,
		Logger:                 newLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("connect mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("connect mysql: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 8
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetConnMaxLifetime(10 * time.Hour)
	sqlDB.SetMaxIdleConns(maxOpen)

	err = db.AutoMigrate(KvEntry{})
	if err != nil {
		return nil, fmt.Errorf("migrate mysql: %w", err)
	}

	logger.Infof("mysql connected tcp(%s:%d)/%s", cfg.Host, cfg.Port, cfg.DB)
	return db, nil
}

func OpenRedis(cfg config.RedisServer) *redis.Client {
	logger.Infof("redis connecting %s[%d]", cfg.Addr, cfg.DB)

	opts := redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Pass,
		DB:       cfg.DB,
	}
	if cfg.Timeout > 0 {
		opts.ReadTimeout = time.Duration(cfg.Timeout) * time.Millisecond
		opts.WriteTimeout = opts.ReadTimeout
	}

	return redis.NewClient(&opts)
}
