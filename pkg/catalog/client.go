// Package catalog talks to the external medicine catalog service.
package catalog

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/medistore/pkg/apperr"
	"github.com/example/medistore/pkg/models"
	"github.com/go-resty/resty/v2"
)

const serviceName = "catalog"

// Catalog is the read-only view of the medicine catalog.
type Catalog interface {
	ListMedicines(ctx context.Context) ([]models.Medicine, error)
	Search(ctx context.Context, query string) ([]models.Medicine, error)
	GetByID(ctx context.Context, id int64) (*models.Medicine, error)
}

type errorBody struct {
	Message string `json:"message"`
}

type Client struct {
	http *resty.Client
}

var _ Catalog = (*Client)(nil)

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
	}
}

func (c *Client) ListMedicines(ctx context.Context) ([]models.Medicine, error) {
	var out []models.Medicine
	if err := c.get(ctx, "list", "/medicines", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Search(ctx context.Context, query string) ([]models.Medicine, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.NewValidation("search query is required", "query")
	}
	var out []models.Medicine
	if err := c.get(ctx, "search", "/medicines/search", map[string]string{"query": query}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetByID(ctx context.Context, id int64) (*models.Medicine, error) {
	var out models.Medicine
	if err := c.get(ctx, "get", "/medicines/"+strconv.FormatInt(id, 10), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, op, path string, params map[string]string, result interface{}) error {
	var failure errorBody
	req := c.http.R().
		SetContext(ctx).
		SetResult(result).
		SetError(&failure)
	if params != nil {
		req.SetQueryParams(params)
	}

	resp, err := req.Get(path)
	if err != nil {
		return &apperr.ServiceError{Service: serviceName, Op: op, Err: err}
	}
	if resp.StatusCode() == http.StatusNotFound && op == "get" {
		return apperr.ErrNotFound
	}
	if resp.IsError() {
		return &apperr.ServiceError{Service: serviceName, Op: op, Status: resp.StatusCode(), Message: failure.Message}
	}
	return nil
}
