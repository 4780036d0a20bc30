package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
)

const pingTimeout = 5 * time.Second

// Open открывает пул pgx и ждёт первого ping не дольше pingTimeout.
// Запусков немного, поэтому пул маленький.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Connect открывает базу и отдаёт хранилище запусков; migrate=true применяет RunsDDL.
// Закрывать через RunStore.Close.
func Connect(ctx context.Context, url string, migrate bool) (*RunStore, error) {
	db, err := Open(ctx, url)
	if err != nil {
		return nil, err
	}
	s := NewRunStore(db)
	if migrate {
		if err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}
