// Package news stores the news items shown on the site.
package news

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/memohai/newsdesk/internal/db"
)

const (
	table          = "news_items"
	maxTitleLength = 300
)

// Service persists news items in the news_items table.
type Service struct {
	sql    *db.SQL
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a news service over conn.
func NewService(log *slog.Logger, conn *db.SQL) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		sql:    conn,
		logger: log.With(slog.String("service", "news")),
		now:    time.Now,
	}
}

// Create stores a new item. Title is required.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Item, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return Item{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return Item{}, fmt.Errorf("%w: title longer than %d characters", ErrInvalidInput, maxTitleLength)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return Item{}, fmt.Errorf("news id: %w", err)
	}
	item := Item{
		ID:        id.String(),
		Title:     title,
		Content:   req.Content,
		CreatedAt: s.now().UTC(),
	}
	query, args, err := s.sql.Builder().
		Insert(table).
		Columns("id", "title", "content", "created_at").
		Values(item.ID, item.Title, item.Content, item.CreatedAt).
		ToSql()
	if err != nil {
		return Item{}, err
	}
	if _, err := s.sql.DB.ExecContext(ctx, query, args...); err != nil {
		return Item{}, fmt.Errorf("insert news item: %w", err)
	}
	s.logger.Info("news item created", slog.String("id", item.ID))
	return item, nil
}

// List returns every item, oldest first.
func (s *Service) List(ctx context.Context) ([]Item, error) {
	query, args, err := s.sql.Builder().
		Select("id", "title", "content", "created_at").
		From(table).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.sql.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list news: %w", err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.Title, &item.Content, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan news item: %w", err)
		}
		item.CreatedAt = item.CreatedAt.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list news: %w", err)
	}
	return items, nil
}

// Delete removes the item with id.
func (s *Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrNotFound
	}
	query, args, err := s.sql.Builder().
		Delete(table).
		Where("id = ?", id).
		ToSql()
	if err != nil {
		return err
	}
	res, err := s.sql.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete news item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete news item: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	s.logger.Info("news item deleted", slog.String("id", id))
	return nil
}
