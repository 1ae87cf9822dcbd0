package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/companion/core"
)

func TestURL(t *testing.T) {
	conf := &core.Config{Database: core.DatabaseConfig{
		Engine:        "postgres",
		Host:          "db",
		Port:          5432,
		User:          "app",
		Password:      "p@ss",
		AdminUser:     "postgres",
		AdminPassword: "root",
		DisableTLS:    true,
	}}

	tests := []struct {
		name  string
		db    string
		admin bool
		want  string
	}{
		{name: "app user", db: "companion", want: "postgres://app:p%40ss@db:5432/companion?sslmode=disable&timezone=utc"},
		{name: "admin user", db: "postgres", admin: true, want: "postgres://postgres:root@db:5432/postgres?sslmode=disable&timezone=utc"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, URL(tc.db, tc.admin, conf))
		})
	}

	conf.Database.DisableTLS = false
	conf.Database.AdminUser = ""
	assert.Equal(t, "postgres://app:p%40ss@db:5432/postgres?sslmode=require&timezone=utc", URL("postgres", true, conf))
}
