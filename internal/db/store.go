// Package db — хранилище центра на Postgres: классы, ученики, записи на курсы,
// посещаемость и платежи.
package db

import (
	"database/sql"
	"time"
)

// Store реализует провайдеры ростера, идентификации и платежей.
type Store struct {
	DB *sql.DB
}

func NewStore(database *sql.DB) *Store { return &Store{DB: database} }

// DATE передаём строкой, чтобы зона сервера не сдвигала календарный день.
func day(t time.Time) string { return t.Format("2006-01-02") }

func nullDay(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return day(t)
}

func timeOrZero(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time
}
