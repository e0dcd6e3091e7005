package vaulta

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/vaulta/vaulta-go/client"
	"github.com/vaulta/vaulta-go/model"
	"github.com/vaulta/vaulta-go/validate"
)

// ListClients returns one page of registered clients.
func (c *Client) ListClients(ctx context.Context, page model.Page) ([]model.Client, error) {
	page = page.Normalize()

	var out []model.Client
	_, err := c.send(ctx, call{
		method:   http.MethodGet,
		endpoint: "/clients",
		query: map[string]string{
			"skip":  strconv.Itoa(page.Skip),
			"limit": strconv.Itoa(page.Limit),
		},
		dest: []client.DoOption{client.WithDestination(&out)},
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// GetClient fetches a client by its UUID.
func (c *Client) GetClient(ctx context.Context, id uuid.UUID) (*model.Client, error) {
	var out model.Client
	_, err := c.send(ctx, call{
		method:   http.MethodGet,
		endpoint: "/clients/" + id.String(),
		dest:     []client.DoOption{client.WithDestination(&out)},
	})
	if err != nil {
		return nil, err
	}

	return &out, nil
}

// GetClientByClientID fetches a client by its slug.
func (c *Client) GetClientByClientID(ctx context.Context, clientID string) (*model.Client, error) {
	var out model.Client
	_, err := c.send(ctx, call{
		method:   http.MethodGet,
		endpoint: "/clients/by-client-id/" + url.PathEscape(clientID),
		dest:     []client.DoOption{client.WithDestination(&out)},
	})
	if err != nil {
		return nil, err
	}

	return &out, nil
}

// CreateClient registers a new client. The returned secret is shown only
// once; the library never keeps it. A duplicate client_id surfaces as
// [errs.ErrValidation].
func (c *Client) CreateClient(ctx context.Context, in model.ClientCreate) (*model.ClientWithSecret, error) {
	if err := validate.Check(in); err != nil {
		return nil, err
	}

	var out model.ClientWithSecret
	_, err := c.send(ctx, call{
		method:   http.MethodPost,
		endpoint: "/clients",
		body:     in,
		dest:     []client.DoOption{client.WithDestination(&out)},
	})
	if err != nil {
		return nil, err
	}

	return &out, nil
}

// UpdateClient applies a partial update. Only the non-nil fields of in are sent.
func (c *Client) UpdateClient(ctx context.Context, id uuid.UUID, in model.ClientUpdate) (*model.Client, error) {
	if err := validate.Check(in); err != nil {
		return nil, err
	}

	var out model.Client
	_, err := c.send(ctx, call{
		method:   http.MethodPut,
		endpoint: "/clients/" + id.String(),
		body:     in,
		dest:     []client.DoOption{client.WithDestination(&out)},
	})
	if err != nil {
		return nil, err
	}

	return &out, nil
}

// DeleteClient removes a client. It reports true only when the server
// answers 200.
func (c *Client) DeleteClient(ctx context.Context, id uuid.UUID) (bool, error) {
	status, err := c.send(ctx, call{
		method:   http.MethodDelete,
		endpoint: "/clients/" + id.String(),
	})
	if err != nil {
		return false, err
	}

	return status == http.StatusOK, nil
}

// RegenerateClientSecret rotates the client's secret and returns the new one.
func (c *Client) RegenerateClientSecret(ctx context.Context, id uuid.UUID) (*model.ClientWithSecret, error) {
	var out model.ClientWithSecret
	_, err := c.send(ctx, call{
		method:   http.MethodPost,
		endpoint: "/clients/" + id.String() + "/regenerate-secret",
		dest:     []client.DoOption{client.WithDestination(&out)},
	})
	if err != nil {
		return nil, err
	}

	return &out, nil
}
