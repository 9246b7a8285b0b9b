package db

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/packhub/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const defaultSQLitePath = "packhub.db"

// Dialect returns the gorm dialector for DATABASE_TYPE.
func Dialect(cfg config.Config) (gorm.Dialector, error) {
	switch DriverName(cfg.DBType) {
	case "postgres":
		return postgres.Open(PostgresDSN(cfg)), nil
	case "mysql":
		return mysql.Open(MySQLDSN(cfg)), nil
	case "sqlite":
		return sqlite.Open(SQLiteDSN(cfg)), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.DBType)
	}
}

// DriverName folds common spellings of the database type.
func DriverName(dbType string) string {
	switch strings.ToLower(strings.TrimSpace(dbType)) {
	case "postgres", "postgresql", "pg":
		return "postgres"
	case "mysql", "mariadb":
		return "mysql"
	case "sqlite", "sqlite3":
		return "sqlite"
	default:
		return strings.ToLower(strings.TrimSpace(dbType))
	}
}

func PostgresDSN(cfg config.Config) string {
	sslMode := cfg.DBSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	parts := []string{
		"host=" + quoteDSNValue(cfg.DBHost),
		"port=" + quoteDSNValue(cfg.DBPort),
		"user=" + quoteDSNValue(cfg.DBUser),
		"dbname=" + quoteDSNValue(cfg.DBName),
		"sslmode=" + quoteDSNValue(sslMode),
		"TimeZone=UTC",
	}
	if cfg.DBPassword != "" {
		parts = append(parts, "password="+quoteDSNValue(cfg.DBPassword))
	}
	return strings.Join(parts, " ")
}

func MySQLDSN(cfg config.Config) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
}

// SQLiteDSN enables foreign keys so pack cascades behave as on postgres.
func SQLiteDSN(cfg config.Config) string {
	path := strings.TrimSpace(cfg.DBPath)
	if path == "" {
		path = defaultSQLitePath
	}
	if strings.Contains(path, "_foreign_keys") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on"
}

// quoteDSNValue quotes a libpq keyword value when it is empty or holds
// spaces, quotes or backslashes.
func quoteDSNValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
