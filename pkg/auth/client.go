// Package auth is the client for the external auth service.
package auth

import (
	"context"
	"strings"
	"time"

	"github.com/example/medistore/pkg/apperr"
	"github.com/example/medistore/pkg/models"
	"github.com/example/medistore/pkg/validate"
	"github.com/go-resty/resty/v2"
)

const serviceName = "auth"

type LoginResponse struct {
	Message string      `json:"message"`
	Token   string      `json:"token"`
	User    models.User `json:"user"`
}

type RegisterResponse struct {
	Message string `json:"message"`
	UserID  int64  `json:"userId"`
}

type errorBody struct {
	Message string `json:"message"`
}

type Client struct {
	http *resty.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
	}
}

func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	email = strings.TrimSpace(email)
	var missing []string
	if email == "" {
		missing = append(missing, "email")
	}
	if password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return nil, apperr.NewValidation("email and password are required", missing...)
	}

	var out LoginResponse
	var failure errorBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(&out).
		SetError(&failure).
		Post("/auth/login")
	if err != nil {
		return nil, &apperr.ServiceError{Service: serviceName, Op: "login", Err: err}
	}
	if resp.IsError() {
		return nil, &apperr.ServiceError{Service: serviceName, Op: "login", Status: resp.StatusCode(), Message: failure.Message}
	}
	return &out, nil
}

func (c *Client) Register(ctx context.Context, reg models.Registration) (*RegisterResponse, error) {
	reg.FirstName = strings.TrimSpace(reg.FirstName)
	reg.LastName = strings.TrimSpace(reg.LastName)
	reg.Email = strings.TrimSpace(reg.Email)
	if err := validate.Struct(reg); err != nil {
		return nil, err
	}

	var out RegisterResponse
	var failure errorBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(reg).
		SetResult(&out).
		SetError(&failure).
		Post("/auth/register")
	if err != nil {
		return nil, &apperr.ServiceError{Service: serviceName, Op: "register", Err: err}
	}
	if resp.IsError() {
		return nil, &apperr.ServiceError{Service: serviceName, Op: "register", Status: resp.StatusCode(), Message: failure.Message}
	}
	return &out, nil
}
