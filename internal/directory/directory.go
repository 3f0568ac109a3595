// Package directory reads platform users from the relational database. The
// chat pipeline never writes to it.
package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrUserNotFound = errors.New("user not found")

// User mirrors the columns of the users table the chat needs.
type User struct {
	ID        int64  `gorm:"primaryKey"`
	Email     string `gorm:"size:255"`
	Role      string `gorm:"size:32"`
	FirstName string `gorm:"column:first_name;size:100"`
	LastName  string `gorm:"column:last_name;size:100"`
	IsActive  bool   `gorm:"column:is_active"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName pins the existing table name.
func (User) TableName() string {
	return "users"
}

// Config selects the SQL driver.
type Config struct {
	Driver string
	DSN    string
}

// Directory looks users up by id.
type Directory struct {
	db *gorm.DB
}

// Open connects with the configured dialector.
func Open(cfg Config) (*Directory, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to user database: %w", err)
	}
	return New(db), nil
}

// New wraps an open gorm handle.
func New(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// FindActive returns an active user by id.
func (d *Directory) FindActive(ctx context.Context, id int64) (User, error) {
	var user User
	err := d.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", id, true).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("failed to find user %d: %w", id, err)
	}
	return user, nil
}

// Close releases the underlying connection pool.
func (d *Directory) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
