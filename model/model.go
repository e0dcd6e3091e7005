// Package model holds the typed records exchanged with the Vaulta API.
//
// The types are plain data. Identifiers are minted by the server and are never
// generated client-side.
package model

import (
	"github.com/google/uuid"
)

// DefaultLimit is the page size the API applies when none is requested.
const DefaultLimit = 100

// Labels are arbitrary key/value annotations attached to an asset.
type Labels map[string]any

// Page selects a window of a list endpoint.
type Page struct {
	Skip  int
	Limit int
}

// Normalize returns p with a zero Limit replaced by [DefaultLimit] and a
// negative Skip clamped to zero.
func (p Page) Normalize() Page {
	if p.Skip < 0 {
		p.Skip = 0
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}

	return p
}

// Client is a registered API consumer.
type Client struct {
	ID                uuid.UUID  `json:"id"`
	Name              string     `json:"name"`
	ClientID          string     `json:"client_id"`
	SecretGeneratedAt *Timestamp `json:"secret_generated_at"`
	CreatedAt         Timestamp  `json:"created_at"`
	UpdatedAt         Timestamp  `json:"updated_at"`
}

// ClientWithSecret is returned by create and regenerate-secret. Secret is only
// ever visible in that response.
type ClientWithSecret struct {
	Client
	Secret string `json:"secret"`
}

// ClientCreate is the body of a create request.
type ClientCreate struct {
	Name     string `json:"name" validate:"required"`
	ClientID string `json:"client_id" validate:"required"`
}

// ClientUpdate is a partial update. Nil fields are left untouched on the server.
type ClientUpdate struct {
	Name              *string    `json:"name,omitempty" validate:"omitnil,min=1"`
	ClientID          *string    `json:"client_id,omitempty" validate:"omitnil,min=1"`
	SecretGeneratedAt *Timestamp `json:"secret_generated_at,omitempty"`
}

// Asset is a stored file record.
type Asset struct {
	ID                uuid.UUID `json:"id"`
	UserID            uuid.UUID `json:"user_id"`
	Name              string    `json:"name"`
	Filename          string    `json:"filename"`
	MimeType          string    `json:"mime_type"`
	Size              int64     `json:"size"`
	HumanReadableSize string    `json:"human_readable_size"`
	Labels            Labels    `json:"labels"`
	State             string    `json:"state"`
	StateMessage      string    `json:"state_message"`
	CreatedAt         Timestamp `json:"created_at"`
	UpdatedAt         Timestamp `json:"updated_at"`
}

// DisplaySize returns the server rendered size, or a locally formatted one
// when the server left it empty.
func (a Asset) DisplaySize() string {
	if a.HumanReadableSize != "" {
		return a.HumanReadableSize
	}

	return FormatSize(a.Size)
}

// AssetUploadResponse is returned only by upload.
type AssetUploadResponse struct {
	AssetID           uuid.UUID `json:"asset_id"`
	URL               string    `json:"url"`
	ServeURL          string    `json:"serve_url"`
	Name              string    `json:"name"`
	Filename          string    `json:"filename"`
	MimeType          string    `json:"mime_type"`
	Size              int64     `json:"size"`
	HumanReadableSize string    `json:"human_readable_size"`
	Labels            Labels    `json:"labels"`
	State             string    `json:"state"`
	StateMessage      string    `json:"state_message"`
}

// AssetSearch filters assets by label. Labels must be non-empty.
type AssetSearch struct {
	Labels Labels `json:"labels" validate:"required,min=1"`
	Skip   int    `json:"-"`
	Limit  int    `json:"-"`
}

// Page returns the pagination window of the search.
func (s AssetSearch) Page() Page {
	return Page{Skip: s.Skip, Limit: s.Limit}.Normalize()
}

// SearchBody is the wire form of an [AssetSearch].
type SearchBody struct {
	Query SearchQuery `json:"query"`
}

// SearchQuery nests the label filter.
type SearchQuery struct {
	Labels Labels `json:"labels"`
}

// Body returns the request body for s.
func (s AssetSearch) Body() SearchBody {
	return SearchBody{Query: SearchQuery{Labels: s.Labels}}
}
