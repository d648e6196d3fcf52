package db

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/newsdesk/internal/config"
)

func TestRunMigrateRejectsBadCommands(t *testing.T) {
	cfg := config.PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "newsdesk",
		Password: "secret",
		Database: "newsdesk",
		SSLMode:  "disable",
	}
	migrations := fstest.MapFS{"0001_init.up.sql": {Data: []byte("SELECT 1;")}}

	for _, tc := range []struct {
		command string
		args    []string
		want    string
	}{
		{"invalid", nil, "unknown migrate command"},
		{"force", nil, "version number"},
		{"force", []string{"two"}, "invalid force argument"},
		{"steps", nil, "version number"},
		{"steps", []string{"0"}, "must not be zero"},
	} {
		err := RunMigrate(nil, cfg, migrations, tc.command, tc.args)
		require.Error(t, err, tc.command)
		assert.Contains(t, err.Error(), tc.want, tc.command)
	}
}

func TestRunMigrateNeedsMigrations(t *testing.T) {
	err := RunMigrate(nil, config.PostgresConfig{}, nil, "up", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no migrations")
}
