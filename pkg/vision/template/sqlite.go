package template

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gocv.io/x/gocv"
	_ "modernc.org/sqlite"

	"github.com/zoeyai/zoeyprobe/pkg/vision/cv"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS templates (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	label      TEXT    NOT NULL,
	score      REAL    NOT NULL,
	png        BLOB    NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_templates_label ON templates(label);
`

// SQLiteCache 模板保存在单个 SQLite 文件中
type SQLiteCache struct {
	db *sql.DB
}

var _ Cache = (*SQLiteCache)(nil)

// OpenSQLiteCache 打开或创建模板库，path 为 ":memory:" 时使用内存库
func OpenSQLiteCache(path string) (*SQLiteCache, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("创建模板库目录失败: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开模板库失败: %w", err)
	}
	// 内存库每个连接都是独立的库
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range append(pragmas, sqliteSchema) {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("初始化模板库失败: %w", err)
		}
	}
	return &SQLiteCache{db: db}, nil
}

// Close 关闭数据库
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

// Candidates 按 id 升序返回
func (c *SQLiteCache) Candidates(label string) ([]Entry, error) {
	if err := ValidateLabel(label); err != nil {
		return nil, err
	}

	rows, err := c.db.Query(`SELECT id, score FROM templates WHERE label = ? ORDER BY id`, SanitizeLabel(label))
	if err != nil {
		return nil, fmt.Errorf("查询模板失败: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			id    int64
			score float64
		)
		if err := rows.Scan(&id, &score); err != nil {
			return nil, fmt.Errorf("读取模板记录失败: %w", err)
		}
		entries = append(entries, Entry{Label: label, Key: strconv.FormatInt(id, 10), Score: score})
	}
	return entries, rows.Err()
}

// Load 解码模板图像
func (c *SQLiteCache) Load(e Entry) (gocv.Mat, error) {
	id, err := strconv.ParseInt(e.Key, 10, 64)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("无效的模板标识: %q", e.Key)
	}
	var data []byte
	if err := c.db.QueryRow(`SELECT png FROM templates WHERE id = ?`, id).Scan(&data); err != nil {
		return gocv.NewMat(), fmt.Errorf("读取模板 %s 失败: %w", e.Key, err)
	}
	return cv.DecodeImage(data)
}

// Put 插入模板
func (c *SQLiteCache) Put(label string, img gocv.Mat, score float64) (Entry, error) {
	if err := ValidateLabel(label); err != nil {
		return Entry{}, err
	}
	data, err := cv.EncodePNG(img)
	if err != nil {
		return Entry{}, err
	}

	res, err := c.db.Exec(`INSERT INTO templates (label, score, png, created_at) VALUES (?, ?, ?, ?)`,
		SanitizeLabel(label), score, data, time.Now().Unix())
	if err != nil {
		return Entry{}, fmt.Errorf("保存模板失败: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Entry{}, fmt.Errorf("保存模板失败: %w", err)
	}
	return Entry{Label: label, Key: strconv.FormatInt(id, 10), Score: score}, nil
}

// EvictOthers 在一个事务内删除同标签的其他记录
func (c *SQLiteCache) EvictOthers(label string, keep Entry) error {
	keepID, err := strconv.ParseInt(keep.Key, 10, 64)
	if err != nil {
		return fmt.Errorf("无效的模板标识: %q", keep.Key)
	}
	tx, err := c.db.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM templates WHERE label = ? AND id <> ?`, SanitizeLabel(label), keepID); err != nil {
		tx.Rollback()
		return fmt.Errorf("删除旧模板失败: %w", err)
	}
	return tx.Commit()
}
