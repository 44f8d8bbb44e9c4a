package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/google/go-querystring/query"
)

const defaultDirectAdminPackage = "default"

// DirectAdminClient talks to a DirectAdmin server over either the JSON API (v2)
// or the legacy CMD_API_* form API (v1). Every request uses HTTP Basic auth.
type DirectAdminClient struct {
	t      *transport
	legacy bool
}

// NewDirectAdminClient creates a client. secret is the account password, or a login key in token mode.
func NewDirectAdminClient(opts Options, username, secret string, legacy bool) *DirectAdminClient {
	authorize := func(r *http.Request) {
		r.SetBasicAuth(username, secret)
	}
	errMsg := jsonErrorMessage
	if legacy {
		errMsg = legacyErrorMessage
	}
	return &DirectAdminClient{
		t:      newTransport(ProviderDirectAdmin, opts, authorize, errMsg),
		legacy: legacy,
	}
}

// CreateAccountRequest is the payload for a new hosting account
type CreateAccountRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Domain   string `json:"domain,omitempty"`
	Package  string `json:"package"`
}

// CreateDatabaseRequest creates a MySQL database owned by an account
type CreateDatabaseRequest struct {
	Username string `json:"user"`
	Name     string `json:"name"`
	DBUser   string `json:"db_user"`
	Password string `json:"password"`
}

type daCreateAccountForm struct {
	Action   string `url:"action"`
	Add      string `url:"add"`
	Username string `url:"username"`
	Email    string `url:"email"`
	Passwd   string `url:"passwd"`
	Passwd2  string `url:"passwd2"`
	Domain   string `url:"domain,omitempty"`
	Package  string `url:"package"`
	Notify   string `url:"notify"`
}

type daSelectUsersForm struct {
	Location  string `url:"location,omitempty"`
	Suspend   string `url:"suspend,omitempty"`
	Confirmed string `url:"confirmed,omitempty"`
	Delete    string `url:"delete,omitempty"`
	Select0   string `url:"select0"`
}

type daPasswordForm struct {
	Username string `url:"username"`
	Passwd   string `url:"passwd"`
	Passwd2  string `url:"passwd2"`
}

type daModifyUserForm struct {
	Action  string `url:"action"`
	User    string `url:"user"`
	Package string `url:"package"`
}

type daDatabaseForm struct {
	Action  string `url:"action"`
	Name    string `url:"name"`
	User    string `url:"user"`
	Passwd  string `url:"passwd"`
	Passwd2 string `url:"passwd2"`
}

// CreateAccount creates a user account and returns the provider response as JSON.
func (c *DirectAdminClient) CreateAccount(ctx context.Context, req CreateAccountRequest) (json.RawMessage, error) {
	if req.Package == "" {
		req.Package = defaultDirectAdminPackage
	}
	const op = "create_account"

	if c.legacy {
		values, err := c.legacyPost(ctx, op, "/CMD_API_ACCOUNT_USER", daCreateAccountForm{
			Action:   "create",
			Add:      "Submit",
			Username: req.Username,
			Email:    req.Email,
			Passwd:   req.Password,
			Passwd2:  req.Password,
			Domain:   req.Domain,
			Package:  req.Package,
			Notify:   "no",
		})
		if err != nil {
			return nil, err
		}
		return legacyJSON(values), nil
	}

	return c.t.jsonCall(ctx, op, http.MethodPost, "/api/users", nil, req)
}

// SuspendAccount suspends a user by username
func (c *DirectAdminClient) SuspendAccount(ctx context.Context, username string) error {
	const op = "suspend_account"
	if c.legacy {
		_, err := c.legacyPost(ctx, op, "/CMD_API_SELECT_USERS", daSelectUsersForm{
			Location: "CMD_SELECT_USERS",
			Suspend:  "Suspend",
			Select0:  username,
		})
		return err
	}
	_, err := c.t.jsonCall(ctx, op, http.MethodPost, "/api/users/"+url.PathEscape(username)+"/suspend", nil, nil)
	return err
}

// UnsuspendAccount lifts a suspension by username
func (c *DirectAdminClient) UnsuspendAccount(ctx context.Context, username string) error {
	const op = "unsuspend_account"
	if c.legacy {
		_, err := c.legacyPost(ctx, op, "/CMD_API_SELECT_USERS", daSelectUsersForm{
			Location: "CMD_SELECT_USERS",
			Suspend:  "Unsuspend",
			Select0:  username,
		})
		return err
	}
	_, err := c.t.jsonCall(ctx, op, http.MethodPost, "/api/users/"+url.PathEscape(username)+"/unsuspend", nil, nil)
	return err
}

// DeleteAccount removes a user and all of its data
func (c *DirectAdminClient) DeleteAccount(ctx context.Context, username string) error {
	const op = "delete_account"
	if c.legacy {
		_, err := c.legacyPost(ctx, op, "/CMD_API_SELECT_USERS", daSelectUsersForm{
			Confirmed: "Confirm",
			Delete:    "yes",
			Select0:   username,
		})
		return err
	}
	_, err := c.t.jsonCall(ctx, op, http.MethodDelete, "/api/users/"+url.PathEscape(username), nil, nil)
	return err
}

func (c *DirectAdminClient) ChangePassword(ctx context.Context, username, password string) error {
	const op = "change_password"
	if c.legacy {
		_, err := c.legacyPost(ctx, op, "/CMD_API_USER_PASSWD", daPasswordForm{
			Username: username,
			Passwd:   password,
			Passwd2:  password,
		})
		return err
	}
	_, err := c.t.jsonCall(ctx, op, http.MethodPut, "/api/users/"+url.PathEscape(username)+"/password", nil,
		map[string]string{"password": password})
	return err
}

func (c *DirectAdminClient) ChangePackage(ctx context.Context, username, pkg string) error {
	const op = "change_package"
	if c.legacy {
		_, err := c.legacyPost(ctx, op, "/CMD_API_MODIFY_USER", daModifyUserForm{
			Action:  "package",
			User:    username,
			Package: pkg,
		})
		return err
	}
	_, err := c.t.jsonCall(ctx, op, http.MethodPut, "/api/users/"+url.PathEscape(username)+"/package", nil,
		map[string]string{"package": pkg})
	return err
}

// ListAccounts returns the usernames owned by the authenticated reseller/admin.
func (c *DirectAdminClient) ListAccounts(ctx context.Context) ([]string, error) {
	const op = "list_accounts"
	if c.legacy {
		values, err := c.legacyGet(ctx, op, "/CMD_API_SHOW_ALL_USERS", nil)
		if err != nil {
			return nil, err
		}
		return values["list[]"], nil
	}

	raw, err := c.t.jsonCall(ctx, op, http.MethodGet, "/api/users", nil, nil)
	if err != nil {
		return nil, err
	}
	var users []string
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, c.t.decodeError(op, http.StatusOK, err, raw)
	}
	return users, nil
}

// GetAccountInfo returns the user configuration as a flat key/value map.
func (c *DirectAdminClient) GetAccountInfo(ctx context.Context, username string) (map[string]any, error) {
	const op = "get_account_info"
	if c.legacy {
		values, err := c.legacyGet(ctx, op, "/CMD_API_SHOW_USER_CONFIG", url.Values{"user": {username}})
		if err != nil {
			return nil, err
		}
		return flatten(values), nil
	}

	raw, err := c.t.jsonCall(ctx, op, http.MethodGet, "/api/users/"+url.PathEscape(username)+"/config", nil, nil)
	if err != nil {
		return nil, err
	}
	info := map[string]any{}
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, c.t.decodeError(op, http.StatusOK, err, raw)
	}
	return info, nil
}

func (c *DirectAdminClient) ListDomains(ctx context.Context, username string) ([]string, error) {
	const op = "list_domains"
	if c.legacy {
		values, err := c.legacyGet(ctx, op, "/CMD_API_SHOW_USER_DOMAINS", url.Values{"user": {username}})
		if err != nil {
			return nil, err
		}
		// The legacy endpoint keys each line by domain name
		domains := make([]string, 0, len(values))
		for domain := range values {
			domains = append(domains, domain)
		}
		sort.Strings(domains)
		return domains, nil
	}

	raw, err := c.t.jsonCall(ctx, op, http.MethodGet, "/api/users/"+url.PathEscape(username)+"/domains", nil, nil)
	if err != nil {
		return nil, err
	}
	var domains []string
	if err := json.Unmarshal(raw, &domains); err != nil {
		return nil, c.t.decodeError(op, http.StatusOK, err, raw)
	}
	return domains, nil
}

func (c *DirectAdminClient) CreateDatabase(ctx context.Context, req CreateDatabaseRequest) error {
	const op = "create_database"
	if c.legacy {
		_, err := c.legacyPost(ctx, op, "/CMD_API_DATABASES", daDatabaseForm{
			Action:  "create",
			Name:    req.Name,
			User:    req.DBUser,
			Passwd:  req.Password,
			Passwd2: req.Password,
		})
		return err
	}
	_, err := c.t.jsonCall(ctx, op, http.MethodPost, "/api/databases", nil, req)
	return err
}

// TestConnection verifies the credentials against a cheap read-only endpoint.
func (c *DirectAdminClient) TestConnection(ctx context.Context) error {
	const op = "test_connection"
	if c.legacy {
		_, err := c.legacyGet(ctx, op, "/CMD_API_SHOW_USER_CONFIG", nil)
		return err
	}
	_, err := c.t.jsonCall(ctx, op, http.MethodGet, "/api/account-info", nil, nil)
	return err
}

func (c *DirectAdminClient) legacyPost(ctx context.Context, op, path string, form any) (url.Values, error) {
	values, err := query.Values(form)
	if err != nil {
		return nil, c.t.transportError(op, err)
	}
	return c.legacyCall(ctx, apiRequest{
		operation:   op,
		method:      http.MethodPost,
		path:        path,
		body:        []byte(values.Encode()),
		contentType: "application/x-www-form-urlencoded",
	})
}

func (c *DirectAdminClient) legacyGet(ctx context.Context, op, path string, params url.Values) (url.Values, error) {
	return c.legacyCall(ctx, apiRequest{
		operation: op,
		method:    http.MethodGet,
		path:      path,
		query:     params,
	})
}

// legacyCall treats error=1 in a 2xx body as a failure.
func (c *DirectAdminClient) legacyCall(ctx context.Context, req apiRequest) (url.Values, error) {
	resp, err := c.t.do(ctx, req)
	if err != nil {
		return nil, err
	}

	values, err := url.ParseQuery(strings.TrimSpace(string(resp.Body)))
	if err != nil {
		return nil, c.t.decodeError(req.operation, resp.StatusCode, err, resp.Body)
	}
	if values.Get("error") == "1" {
		return nil, &ProviderError{
			Provider:   ProviderDirectAdmin,
			Operation:  req.operation,
			HTTPStatus: resp.StatusCode,
			Message:    legacyErrorMessage(resp.Body),
		}
	}
	return values, nil
}

// legacyErrorMessage joins the text and details fields of a CMD_API response.
func legacyErrorMessage(body []byte) string {
	values, err := url.ParseQuery(strings.TrimSpace(string(body)))
	if err != nil {
		return ""
	}
	text := values.Get("text")
	details := values.Get("details")
	switch {
	case text != "" && details != "":
		return text + ": " + details
	case text != "":
		return text
	default:
		return details
	}
}

func legacyJSON(values url.Values) json.RawMessage {
	raw, err := json.Marshal(flatten(values))
	if err != nil {
		return json.RawMessage("{}")
	}
	return raw
}

func flatten(values url.Values) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		if len(v) == 1 {
			out[k] = v[0]
			continue
		}
		out[k] = v
	}
	return out
}
