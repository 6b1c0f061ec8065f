// Package identity is a thin gateway to the platform's user and invitation
// service. Invitation and account creation happen on the service side; this
// package only builds the requests.
package identity

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/carelink-health/wellness-import/pkg/common/auth"
)

// User is a portal login. Name holds the contact identifier the account was
// registered under (email or phone); Profile is a reference like "Patient/<id>".
type User struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phoneNumber,omitempty"`
	Profile string `json:"profile,omitempty"`
}

type Role struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MemberCount int    `json:"memberCount,omitempty"`
}

type InviteParams struct {
	Resource      map[string]string `json:"resource"`
	Username      string            `json:"username"`
	Email         string            `json:"email,omitempty"`
	PhoneNumber   string            `json:"phoneNumber,omitempty"`
	Roles         []string          `json:"roles"`
	ApplicationID string            `json:"applicationId"`
}

type Invitation struct {
	ID            string `json:"id"`
	Profile       string `json:"profile"`
	InvitationURL string `json:"invitationUrl"`
}

type Client struct {
	http *resty.Client
}

func NewClient(projectAPIURL, projectID string, hc *http.Client, tokens auth.TokenProvider) *Client {
	client := resty.NewWithClient(hc).
		SetBaseURL(projectAPIURL).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")

	if projectID != "" {
		client.SetHeader("x-project-id", projectID)
	}

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		token, err := tokens.Token(req.Context())
		if err != nil {
			return err
		}
		req.SetAuthToken(token)
		return nil
	})

	return &Client{http: client}
}

func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	resp, err := c.http.R().SetContext(ctx).SetResult(&users).Get("/user")
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("listing users: identity service returned %s", resp.Status())
	}
	return users, nil
}

func (c *Client) GetUser(ctx context.Context, id string) (*User, error) {
	var user User
	resp, err := c.http.R().SetContext(ctx).SetResult(&user).Get("/user/" + id)
	if err != nil {
		return nil, fmt.Errorf("fetching user %s: %w", id, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetching user %s: identity service returned %s", id, resp.Status())
	}
	return &user, nil
}

// FindByContact matches the directory listing against the email first, then
// the phone. The registered username is held in the Name field.
func (c *Client) FindByContact(ctx context.Context, email, phone string) (*User, error) {
	users, err := c.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if email != "" && u.Name == email {
			return c.GetUser(ctx, u.ID)
		}
	}
	for _, u := range users {
		if phone != "" && u.Name == phone {
			return c.GetUser(ctx, u.ID)
		}
	}
	return nil, nil
}

func (c *Client) FindByProfile(ctx context.Context, profile string) (*User, error) {
	if profile == "" {
		return nil, nil
	}
	users, err := c.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.Profile == profile {
			return c.GetUser(ctx, u.ID)
		}
	}
	return nil, nil
}

func (c *Client) RoleByName(ctx context.Context, name string) (*Role, error) {
	var roles []Role
	resp, err := c.http.R().SetContext(ctx).SetResult(&roles).Get("/iam/role")
	if err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("listing roles: identity service returned %s", resp.Status())
	}
	for _, role := range roles {
		if role.Name == name {
			return &role, nil
		}
	}
	return nil, fmt.Errorf("role %q not found", name)
}

func (c *Client) Invite(ctx context.Context, params InviteParams) (*Invitation, error) {
	var invitation Invitation
	resp, err := c.http.R().SetContext(ctx).SetBody(params).SetResult(&invitation).Post("/user/invite")
	if err != nil {
		return nil, fmt.Errorf("inviting user %s: %w", params.Username, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("inviting user %s: identity service returned %s", params.Username, resp.Status())
	}
	return &invitation, nil
}
