package config

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
	"marketplace-chat/config/common"
	"marketplace-chat/config/logger"
	"marketplace-chat/entity"
)

type DBConfig struct {
	*gorm.DB
	*logger.AppLogger
}

func NewDB(config *common.Config, log *logger.AppLogger) *DBConfig {
	db := initDatabase(config, log)
	return &DBConfig{DB: db, AppLogger: log}
}

func (db *DBConfig) GetDB() *gorm.DB {
	return db.DB
}

// GormConfig is shared with tests so sqlmock sees the same table names.
func GormConfig() *gorm.Config {
	return &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   "t_",
			SingularTable: true,
		},
		SkipDefaultTransaction: true,
		TranslateError:         true,
	}
}

func initDatabase(cfg *common.Config, log *logger.AppLogger) *gorm.DB {
	dbHost, dbUser, dbPassword, dbName, dbPort := cfg.GetDatabaseConfig()
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		dbHost, dbUser, dbPassword, dbName, dbPort,
	)
	db, err := gorm.Open(postgres.Open(dsn), GormConfig())
	if err != nil {
		log.Http.Error.Fatal().Err(err).Msg("failed to connect to database")
	}

	log.Http.Info.Info().Str("host", dbHost).Str("db", dbName).Msg("connection opened to database")
	conn, err := db.DB()
	if err != nil {
		log.Http.Error.Fatal().Err(err).Msg("failed to get database handle")
	}

	if err := db.AutoMigrate(&entity.User{}, &entity.Conversation{}, &entity.Message{}); err != nil {
		log.Http.Error.Fatal().Err(err).Msg("failed to run migration")
	}

	conn.SetMaxIdleConns(10)
	conn.SetMaxOpenConns(100)
	conn.SetConnMaxLifetime(time.Second * time.Duration(300))
	return db
}
