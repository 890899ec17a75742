package db

import (
	"fmt"
	"net"
	"strconv"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/zulandar/semaphore/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DSN builds a MySQL DSN for the worker registry database.
func DSN(user, host string, port int, database string) string {
	c := gomysql.NewConfig()
	c.User = user
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	c.DBName = database
	c.ParseTime = true
	return c.FormatDSN()
}

// Open connects to the registry database described by cfg.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	var target string
	switch cfg.Driver {
	case "mysql":
		target = cfg.DSN
		if target == "" {
			target = DSN(cfg.User, cfg.Host, cfg.Port, cfg.Database)
		}
		dialector = mysql.Open(target)
	case "sqlite":
		target = cfg.DSN
		if target == "" {
			target = cfg.Path
		}
		dialector = sqlite.Open(target)
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", cfg.Driver)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect %s: %w", cfg.Driver, err)
	}
	return gdb, nil
}
