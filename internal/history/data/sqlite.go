package data

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/AGIOS-UPDATED/midday-test/internal/history/types"
	apperrors "github.com/AGIOS-UPDATED/midday-test/internal/pkg/errors"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteRepo 默认后端，modernc.org/sqlite（纯 Go，无 CGO）
type SQLiteRepo struct {
	db *sql.DB
}

// NewSQLiteRepo 打开（或创建）dbPath 处的数据库并执行迁移
func NewSQLiteRepo(ctx context.Context, dbPath string) (*SQLiteRepo, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite 只有一个写者，单连接串行化所有访问
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	r := &SQLiteRepo{db: db}
	if err := r.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// Migrate 按文件名顺序执行未应用的迁移
func (r *SQLiteRepo) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		body, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := r.db.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := r.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}
	return nil
}

const chatColumns = `id, url_id, description, messages, timestamp`

func (r *SQLiteRepo) Get(ctx context.Context, id string) (*types.ChatHistoryItem, error) {
	item, err := r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+chatColumns+` FROM chats WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		item, err = r.scanOne(r.db.QueryRowContext(ctx,
			`SELECT `+chatColumns+` FROM chats WHERE url_id = ?`, id))
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.New(apperrors.ErrChatNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}
	return item, nil
}

func (r *SQLiteRepo) Set(ctx context.Context, item *types.ChatHistoryItem) error {
	messages, err := json.Marshal(nonNilMessages(item.Messages))
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO chats (`+chatColumns+`) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			url_id = excluded.url_id,
			description = excluded.description,
			messages = excluded.messages,
			timestamp = excluded.timestamp`,
		item.ID, nullString(item.URLID), item.Description, string(messages), item.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("set chat: %w", err)
	}
	return nil
}

func (r *SQLiteRepo) List(ctx context.Context) ([]*types.ChatHistoryItem, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+chatColumns+` FROM chats ORDER BY timestamp DESC`)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]*types.ChatHistoryItem, 0)
	for rows.Next() {
		item, err := r.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *SQLiteRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM chats WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperrors.New(apperrors.ErrChatNotFound)
	}
	return nil
}

func (r *SQLiteRepo) NextID(ctx context.Context) (string, error) {
	var highest int64
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(CAST(id AS INTEGER)), 0) FROM chats`).Scan(&highest)
	if err != nil {
		return "", fmt.Errorf("next chat id: %w", err)
	}
	return strconv.FormatInt(highest+1, 10), nil
}

func (r *SQLiteRepo) URLIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT url_id FROM chats WHERE url_id IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("list url ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan url id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the database connection
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLiteRepo) scanOne(row rowScanner) (*types.ChatHistoryItem, error) {
	var (
		item     types.ChatHistoryItem
		urlID    sql.NullString
		messages string
	)
	if err := row.Scan(&item.ID, &urlID, &item.Description, &messages, &item.Timestamp); err != nil {
		return nil, err
	}
	item.URLID = urlID.String
	if err := json.Unmarshal([]byte(messages), &item.Messages); err != nil {
		return nil, fmt.Errorf("decode messages of chat %s: %w", item.ID, err)
	}
	return &item, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNilMessages(m []types.Message) []types.Message {
	if m == nil {
		return []types.Message{}
	}
	return m
}
