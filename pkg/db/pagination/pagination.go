// Package pagination encodes list positions as opaque page tokens.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

var ErrInvalidPageToken = errors.New("invalid_page_token")

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

type Cursor struct {
	Offset int `json:"offset"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token,omitempty"`
	HasMore       bool   `json:"has_more"`
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return nil, ErrInvalidPageToken
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil || cursor.Offset < 0 {
		return nil, ErrInvalidPageToken
	}

	return &cursor, nil
}

// Window returns the offset and page size the request asks for. The page size
// is clamped to [1, MaxPageSize].
func (p Pagination) Window() (offset, size int, err error) {
	size = p.PageSize
	switch {
	case size <= 0:
		size = DefaultPageSize
	case size > MaxPageSize:
		size = MaxPageSize
	}
	if p.PageToken == "" {
		return 0, size, nil
	}
	cursor, err := DecodeCursor(p.PageToken)
	if err != nil {
		return 0, 0, err
	}
	return cursor.Offset, size, nil
}

// Page trims data fetched with one extra row to size and reports the token of
// the following page.
func Page[T any](data []*T, offset, size int) ([]*T, PageInfo) {
	if len(data) <= size {
		return data, PageInfo{}
	}
	token, err := EncodeCursor(Cursor{Offset: offset + size})
	if err != nil {
		return data[:size], PageInfo{HasMore: true}
	}
	return data[:size], PageInfo{NextPageToken: token, HasMore: true}
}
