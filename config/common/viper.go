package common

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/spf13/viper"
)

type Config struct {
	Viper *viper.Viper
}

func NewViper() *Config {
	config := viper.New()
	config.SetConfigFile(".env")
	config.AddConfigPath("../")
	config.AutomaticEnv()
	setDefaults(config)

	log.Trace("Checking file .env ....")
	if err := config.ReadInConfig(); err != nil {
		// environment variables alone are enough in containers
		log.Warnf("no .env file loaded: %v", err)
	}
	return &Config{Viper: config}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "marketplace-chat")
	v.SetDefault("APP_PORT", "7720")
	v.SetDefault("CORS_ORIGINS", "http://localhost:8080")
	v.SetDefault("LOG_DIR", "logs")
	v.SetDefault("MESSAGE_PAGE_SIZE", 20)
	v.SetDefault("MUTABILITY_WINDOW", "15m")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("S3_USE_SSL", false)
	v.SetDefault("S3_BUCKET", "chat-attachments")
}

func (c *Config) GetAppConfig() (appName string) {
	return c.Viper.GetString("APP_NAME")
}

func (c *Config) GetListenAddr() string {
	return ":" + strings.TrimPrefix(c.Viper.GetString("APP_PORT"), ":")
}

func (c *Config) GetCorsOrigins() string {
	return c.Viper.GetString("CORS_ORIGINS")
}

func (c *Config) GetLogDir() string {
	return c.Viper.GetString("LOG_DIR")
}

func (c *Config) GetDatabaseConfig() (dbHost, dbUser, dbPassword, dbName, dbPort string) {
	dbHost = c.Viper.GetString("DB_HOSTNAME")
	dbUser = c.Viper.GetString("DB_USER")
	dbPassword = c.Viper.GetString("DB_PASSWORD")
	dbName = c.Viper.GetString("DB_NAME")
	dbPort = c.Viper.GetString("DB_PORT")

	return dbHost, dbUser, dbPassword, dbName, dbPort
}

func (c *Config) GetJwtConfig() []byte {
	jwtSecret := c.Viper.GetString("JWT_SECRET")
	return []byte(jwtSecret)
}

func (c *Config) GetRedisConfig() (addr, password string, db int) {
	return c.Viper.GetString("REDIS_ADDR"), c.Viper.GetString("REDIS_PASSWORD"), c.Viper.GetInt("REDIS_DB")
}

type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	PublicURL string
	UseSSL    bool
}

func (c *Config) GetS3Config() S3Config {
	return S3Config{
		Endpoint:  c.Viper.GetString("S3_ENDPOINT"),
		AccessKey: c.Viper.GetString("S3_ACCESS_KEY"),
		SecretKey: c.Viper.GetString("S3_SECRET_KEY"),
		Bucket:    c.Viper.GetString("S3_BUCKET"),
		PublicURL: c.Viper.GetString("S3_PUBLIC_URL"),
		UseSSL:    c.Viper.GetBool("S3_USE_SSL"),
	}
}

func (c *Config) GetMessagingConfig() (pageSize int, window time.Duration) {
	pageSize = c.Viper.GetInt("MESSAGE_PAGE_SIZE")
	if pageSize <= 0 {
		pageSize = 20
	}
	window = c.Viper.GetDuration("MUTABILITY_WINDOW")
	if window <= 0 {
		window = 15 * time.Minute
	}
	return pageSize, window
}
