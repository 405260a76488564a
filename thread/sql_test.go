package thread

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/secboard/core"
)

var _ core.ThreadStore = (*SQLStore)(nil)

func newSQLite(t *testing.T) *SQLStore {
	t.Helper()
	s, err := NewSQLStore(DriverSQLite, filepath.Join(t.TempDir(), "threads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)

	th, err := s.Create(ctx)
	require.NoError(t, err)

	first := core.NewMessage(core.RoleUser, "Azure Key Vault")
	require.NoError(t, s.AppendMessage(ctx, th.ID, first))
	require.NoError(t, s.AppendMessage(ctx, th.ID, core.NewMessage(core.RoleAssistant, "rotate keys")))

	got, err := s.Get(ctx, th.ID)
	require.NoError(t, err)
	assert.Equal(t, th.ID, got.ID)

	msgs := got.GetMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, first.ID, msgs[0].ID)
	assert.Equal(t, "Azure Key Vault", msgs[0].Content)
	assert.Equal(t, first.CreatedAt.UnixNano(), msgs[0].CreatedAt.UnixNano())
	assert.Equal(t, core.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "rotate keys", msgs[1].Content)
}

func TestSQLStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrThreadNotFound)
	assert.ErrorIs(t, s.AppendMessage(ctx, "missing", core.NewMessage(core.RoleUser, "x")), core.ErrThreadNotFound)
}

func TestSQLStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "threads.db")

	s, err := NewSQLStore(DriverSQLite, path)
	require.NoError(t, err)
	th, err := s.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, s.AppendMessage(ctx, th.ID, core.NewMessage(core.RoleUser, "persisted")))
	require.NoError(t, s.Close())

	s, err = NewSQLStore(DriverSQLite, path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, th.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Len())
	assert.Equal(t, "persisted", got.GetMessages()[0].Content)
	assert.NoError(t, s.Ping(ctx))
}

func TestSQLStore_Rebind(t *testing.T) {
	pg := &SQLStore{driver: DriverPostgres}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	lite := &SQLStore{driver: DriverSQLite}
	assert.Equal(t, "x = ?", lite.rebind("x = ?"))
}

func TestNewSQLStore_Validation(t *testing.T) {
	_, err := NewSQLStore("mysql", "dsn")
	assert.Error(t, err)

	_, err = NewSQLStore(DriverSQLite, "")
	assert.Error(t, err)
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "threads.db?_pragma=foreign_keys(1)", sqliteDSN("threads.db"))
	assert.Equal(t, "file:x.db?mode=rwc&_pragma=foreign_keys(1)", sqliteDSN("file:x.db?mode=rwc"))
	assert.Equal(t, "x.db?_pragma=foreign_keys(0)", sqliteDSN("x.db?_pragma=foreign_keys(0)"))
}

func TestSQLStore_ForeignKeysOnPooledConnection(t *testing.T) {
	s := newSQLite(t)

	// a connection opened after the first one is dropped still enforces keys
	s.db.SetMaxIdleConns(0)
	var on int
	require.NoError(t, s.db.QueryRowContext(context.Background(), `PRAGMA foreign_keys`).Scan(&on))
	assert.Equal(t, 1, on)

	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO messages (id, thread_id, seq, role, content, created_at) VALUES ('m1', 'missing', 0, 'user', 'x', 0)`)
	assert.Error(t, err)
}
