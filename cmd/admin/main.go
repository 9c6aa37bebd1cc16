package main

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"buildmate/internal/auth"
	"buildmate/internal/config"
	"buildmate/internal/database"
)

// admin 工具：创建账号或重置已有账号的密码，密码只在终端打印一次。
func main() {
	var (
		email   = flag.String("email", "", "账号邮箱（必填）")
		reset   = flag.Bool("reset", false, "账号已存在时重置其密码")
		dbHost  = flag.String("db-host", "", "数据库 Host（可选，默认读 DATABASE_HOST）")
		dbPort  = flag.Int("db-port", 0, "数据库 Port（可选，默认读 DATABASE_PORT）")
		dbName  = flag.String("db-name", "", "数据库名（可选，默认读 POSTGRES_DB）")
		dbUser  = flag.String("db-user", "", "数据库用户（可选，默认读 POSTGRES_USER）")
		dbPass  = flag.String("db-password", "", "数据库密码（可选，默认读 POSTGRES_PASSWORD）")
		sslMode = flag.String("db-sslmode", "", "数据库 SSLMODE（可选，默认读 DATABASE_SSLMODE）")
	)
	flag.Parse()

	e := strings.TrimSpace(*email)
	if e == "" {
		log.Fatal("missing required flag: --email")
	}

	dbCfg, err := loadDatabaseConfig(*dbHost, *dbPort, *dbName, *dbUser, *dbPass, *sslMode)
	if err != nil {
		log.Fatalf("load database config: %v", err)
	}

	db, err := database.InitDatabase(dbCfg)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}

	if err := db.AutoMigrate(&database.User{}); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}

	password, err := generatePassword()
	if err != nil {
		log.Fatalf("generate password: %v", err)
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	var existing database.User
	switch err := db.Where("email = ?", e).First(&existing).Error; {
	case err == nil:
		if !*reset {
			log.Fatalf("user %q already exists (use --reset to reset its password)", e)
		}
		if err := db.Model(&existing).Update("password_hash", hashed).Error; err != nil {
			log.Fatalf("reset password: %v", err)
		}
		fmt.Printf("password reset for %s\npassword: %s\n", e, password)
	case errors.Is(err, gorm.ErrRecordNotFound):
		user := database.User{Email: e, PasswordHash: hashed}
		if err := db.Create(&user).Error; err != nil {
			log.Fatalf("create user: %v", err)
		}
		fmt.Printf("user %s created (id=%d)\npassword: %s\n", e, user.ID, password)
	default:
		log.Fatalf("query user: %v", err)
	}
}

func generatePassword() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// loadDatabaseConfig 优先使用命令行覆盖项，其余回落到环境变量。
func loadDatabaseConfig(host string, port int, name, user, password, sslMode string) (config.DatabaseConfig, error) {
	cfg := config.DatabaseConfig{
		Host:           strings.TrimSpace(host),
		Port:           port,
		Name:           strings.TrimSpace(name),
		User:           strings.TrimSpace(user),
		Password:       password,
		SSLMode:        strings.TrimSpace(sslMode),
		MaxOpenConns:   2,
		ConnIdleTime:   10 * time.Second,
		ConnectTimeout: 5 * time.Second,
	}

	if cfg.Host == "" {
		cfg.Host = envOr("DATABASE_HOST", "localhost")
	}
	if cfg.Port <= 0 {
		p, err := strconv.Atoi(envOr("DATABASE_PORT", "5432"))
		if err != nil {
			return config.DatabaseConfig{}, fmt.Errorf("parse DATABASE_PORT: %w", err)
		}
		cfg.Port = p
	}
	if cfg.Name == "" {
		cfg.Name = envOr("POSTGRES_DB", "buildmate")
	}
	if cfg.User == "" {
		cfg.User = envOr("POSTGRES_USER", "buildmate")
	}
	if cfg.Password == "" {
		cfg.Password = envOr("POSTGRES_PASSWORD", "")
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = envOr("DATABASE_SSLMODE", "disable")
	}
	if cfg.Password == "" {
		return config.DatabaseConfig{}, errors.New("database password is required")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
