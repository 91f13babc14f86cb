package domain

import "context"

// Service exposes browsing and inline editing of catalog rows.
type Service interface {
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
	Get(ctx context.Context, entity Entity, id int64) (map[string]any, error)
	UpdateField(ctx context.Context, req UpdateFieldRequest) (map[string]any, error)
	Delete(ctx context.Context, entity Entity, id int64) error
}

type ListRequest struct {
	Entity    Entity
	PageToken string
	PageSize  int
}

type ListResponse struct {
	Items         []map[string]any `json:"items"`
	NextPageToken string           `json:"next_page_token,omitempty"`
	HasMore       bool             `json:"has_more"`
}

type UpdateFieldRequest struct {
	Entity Entity `json:"-"`
	ID     int64  `json:"-"`
	Field  string `json:"field"`
	Value  any    `json:"value"`
}
