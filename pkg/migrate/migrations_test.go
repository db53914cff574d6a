package migrate

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	require.NoError(t, ValidateFS(Embedded()))
	names, err := fs.Glob(Embedded(), "*.sql")
	require.NoError(t, err)
	assert.Len(t, names, 4)
}

func TestValidateFSRejectsBrokenFiles(t *testing.T) {
	cases := map[string]string{
		"20260301090000_no_down.sql":    "-- +goose Up\nCREATE TABLE a (id int);\n",
		"20260301090000_empty_up.sql":   "-- +goose Up\n-- nothing\n-- +goose Down\nDROP TABLE a;\n",
		"20260301090000_down_first.sql": "-- +goose Down\nDROP TABLE a;\n-- +goose Up\nCREATE TABLE a (id int);\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			fsys := fstest.MapFS{name: {Data: []byte(body)}}
			assert.Error(t, ValidateFS(fsys))
		})
	}
}

func TestValidateFSRejectsDuplicateVersions(t *testing.T) {
	body := []byte("-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n")
	fsys := fstest.MapFS{
		"20260301090000_a.sql": {Data: body},
		"20260301090000_b.sql": {Data: body},
	}
	assert.ErrorContains(t, ValidateFS(fsys), "share version")
}

func TestMigrationsDeclareConstraints(t *testing.T) {
	cases := map[string][]string{
		"*_create_orders.sql": {
			"ux_orders_order_number",
			"ux_orders_gateway_payment ON orders (gateway_payment_id) WHERE gateway_payment_id IS NOT NULL",
			"REFERENCES gateway_orders(id)",
			"numeric(12,2)",
			"DROP TABLE IF EXISTS orders",
		},
		"*_create_gateway_orders.sql": {
			"CHECK (status IN ('created', 'paid', 'expired'))",
			"DROP TABLE IF EXISTS gateway_orders",
		},
		"*_create_users.sql": {
			"ux_users_email",
		},
		"*_create_outbox_events.sql": {
			"ux_outbox_events_event_aggregate",
			"WHERE event_type = 'order_confirmed'",
		},
	}
	for pattern, wants := range cases {
		matches, err := filepath.Glob(filepath.Join("migrations", pattern))
		require.NoError(t, err)
		require.Len(t, matches, 1, pattern)
		data, err := os.ReadFile(matches[0])
		require.NoError(t, err)
		for _, want := range wants {
			assert.True(t, strings.Contains(string(data), want), "%s missing %q", pattern, want)
		}
	}
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "create_orders.sql"), []byte("-- +goose Up\nSELECT 1;\n-- +goose Down\n"), 0o644))
	assert.Error(t, ValidateDir(dir))
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Gift Wrap")
	require.NoError(t, err)
	assert.Regexp(t, `\d{14}_add_gift_wrap\.sql$`, path)
	require.NoError(t, ValidateDir(dir))

	_, err = CreateSQLMigration(dir, "!!!")
	assert.Error(t, err)
}

func TestSourceFallsBackToEmbedded(t *testing.T) {
	names, err := fs.Glob(Source(""), "*_create_orders.sql")
	require.NoError(t, err)
	assert.Len(t, names, 1)
}
