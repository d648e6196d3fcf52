package news

import (
	"errors"
	"time"
)

// Errors returned by the news service.
var (
	ErrNotFound     = errors.New("news item not found")
	ErrInvalidInput = errors.New("invalid news item")
)

// Item is one published news entry.
type Item struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateRequest is the body for POST /api/news.
type CreateRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}
