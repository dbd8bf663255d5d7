// Package memory is an in-memory export target for development and
// tests: no spreadsheet, no credentials, rows kept in a slice.
package memory

import (
	"context"
	"fmt"
	"sync"

	"tesoro/internal/export"
)

type Client struct {
	mu   sync.Mutex
	rows []export.Row
}

var (
	_ export.LedgerAppender = (*Client)(nil)
	_ export.RowLister      = (*Client)(nil)
)

func New() *Client {
	return &Client{}
}

func (c *Client) Append(_ context.Context, row export.Row) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = append(c.rows, row)
	return fmt.Sprintf("memory:%d", len(c.rows)), nil
}

func (c *Client) ListRows(_ context.Context, year, month int) ([]export.Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []export.Row
	for _, r := range c.rows {
		if r.Date.Year() == year && r.Date.Month() == month {
			out = append(out, r)
		}
	}
	return out, nil
}

// Len returns the number of rows held, for tests.
func (c *Client) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rows)
}
