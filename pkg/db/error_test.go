package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "gorm translated", err: fmt.Errorf("create: %w", gorm.ErrDuplicatedKey), want: true},
		{name: "pgx", err: &pgconn.PgError{Code: "23505"}, want: true},
		{name: "pq", err: &pq.Error{Code: "23505"}, want: true},
		{name: "sqlite", err: errors.New("constraint failed: UNIQUE constraint failed: packs.name (2067)"), want: true},
		{name: "mysql", err: errors.New("Error 1062 (23000): Duplicate entry"), want: true},
		{name: "other pg code", err: &pgconn.PgError{Code: "23503"}, want: false},
		{name: "unrelated", err: errors.New("connection refused"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDuplicateKeyErr(tt.err); got != tt.want {
				t.Fatalf("IsDuplicateKeyErr() = %v, want %v", got, tt.want)
			}
		})
	}
}
