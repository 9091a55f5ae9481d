package client

import (
	"context"
	"net/url"

	"github.com/sakif/circuitpad/internal/model"
)

// Session is the reply of a successful login.
type Session struct {
	Token   string         `json:"token"`
	Account *model.Account `json:"account"`
}

type credentials struct {
	Handle   string `json:"handle"`
	Password string `json:"password"`
}

func (c *Client) CreateAccount(ctx context.Context, handle, password string) (*model.Account, error) {
	var account model.Account
	if err := c.post(ctx, "/accounts/create", credentials{handle, password}, "account", &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// Login exchanges a handle and password for a token. Storing the token is
// up to the caller.
func (c *Client) Login(ctx context.Context, handle, password string) (*Session, error) {
	var s Session
	if err := c.post(ctx, "/sessions/create", credentials{handle, password}, "session", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.post(ctx, "/sessions/delete", struct{}{}, "", nil)
}

// Me returns the account the session belongs to.
func (c *Client) Me(ctx context.Context) (*model.Account, error) {
	var account model.Account
	if err := c.get(ctx, "/accounts/get", nil, "account", &account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (c *Client) CreateOrg(ctx context.Context, name string) (*model.Org, error) {
	var org model.Org
	body := map[string]string{"name": name}
	if err := c.post(ctx, "/orgs/create", body, "org", &org); err != nil {
		return nil, err
	}
	return &org, nil
}

// GetOrg looks an org up by ID, or by name when id is empty.
func (c *Client) GetOrg(ctx context.Context, id, name string) (*model.Org, error) {
	q := url.Values{}
	setIf(q, "org_id", id)
	setIf(q, "name", name)
	var org model.Org
	if err := c.get(ctx, "/orgs/get", q, "org", &org); err != nil {
		return nil, err
	}
	return &org, nil
}

func (c *Client) AddOrgMember(ctx context.Context, orgID, handle string) (*model.Org, error) {
	var org model.Org
	body := map[string]string{"org_id": orgID, "handle": handle}
	if err := c.post(ctx, "/orgs/add_member", body, "org", &org); err != nil {
		return nil, err
	}
	return &org, nil
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}
