package thread

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "modernc.org/sqlite"             // registers "sqlite"

	"github.com/hupe1980/secboard/core"
)

// Drivers accepted by NewSQLStore.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS threads (
		id TEXT PRIMARY KEY,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		thread_id TEXT NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
		seq BIGINT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		UNIQUE (thread_id, seq)
	)`,
}

// SQLConfig tunes the connection pool.
type SQLConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultSQLConfig returns the default pool settings.
func DefaultSQLConfig() SQLConfig {
	return SQLConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// SQLStore persists threads in SQLite or Postgres.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// NewSQLStore opens dsn with driver ("sqlite" or "pgx"), checks the
// connection and creates the schema when missing.
func NewSQLStore(driver, dsn string, optFns ...func(c *SQLConfig)) (*SQLStore, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	if dsn == "" {
		return nil, errors.New("dsn is required")
	}

	cfg := DefaultSQLConfig()
	if driver == DriverSQLite {
		// one writer at a time, kept open for the life of the store
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
		dsn = sqliteDSN(dsn)
	}
	for _, fn := range optFns {
		fn(&cfg)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLStore{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// sqliteDSN enables foreign keys on every connection the pool opens.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}

// Close releases database resources.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Create inserts a new thread.
func (s *SQLStore) Create(ctx context.Context) (*core.Thread, error) {
	t := core.NewThread(core.NewID())

	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO threads (id, created_at, updated_at) VALUES (?, ?, ?)`),
		t.ID, t.Created.UnixNano(), t.Updated.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("insert thread: %w", err)
	}

	return t, nil
}

// Get loads the thread with its messages in append order.
func (s *SQLStore) Get(ctx context.Context, id string) (*core.Thread, error) {
	var created, updated int64

	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT created_at, updated_at FROM threads WHERE id = ?`), id).
		Scan(&created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrThreadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select thread: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id, role, content, created_at FROM messages WHERE thread_id = ? ORDER BY seq`), id)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	defer rows.Close()

	t := &core.Thread{
		ID:       id,
		Messages: []core.Message{},
		Created:  time.Unix(0, created),
		Updated:  time.Unix(0, updated),
	}

	for rows.Next() {
		var (
			m  core.Message
			ts int64
		)
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = time.Unix(0, ts)
		t.Messages = append(t.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return t, nil
}

// AppendMessage stores msg as the thread's next message.
func (s *SQLStore) AppendMessage(ctx context.Context, threadID string, msg core.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, s.rebind(`UPDATE threads SET updated_at = ? WHERE id = ?`), time.Now().UnixNano(), threadID)
	if err != nil {
		return fmt.Errorf("touch thread: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrThreadNotFound
	}

	var seq int64
	if err := tx.QueryRowContext(ctx, s.rebind(`SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE thread_id = ?`), threadID).Scan(&seq); err != nil {
		return fmt.Errorf("next seq: %w", err)
	}

	if msg.ID == "" {
		msg.ID = core.NewID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO messages (id, thread_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		msg.ID, threadID, seq, msg.Role, msg.Content, msg.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	return tx.Commit()
}

// rebind turns ? placeholders into $N for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
