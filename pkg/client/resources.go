package client

import (
	"context"

	"github.com/polisai/cosmosclient/pkg/handlers"
)

// DatabaseProperties is the service representation of a database.
type DatabaseProperties struct {
	ID           string `json:"id"`
	ResourceID   string `json:"_rid,omitempty"`
	Self         string `json:"_self,omitempty"`
	ETag         string `json:"_etag,omitempty"`
	LastModified int64  `json:"_ts,omitempty"`
}

// DatabaseResponse is the outcome of a database operation. Resource is nil for deletes.
type DatabaseResponse struct {
	StatusCode int
	Resource   *DatabaseProperties
	ActivityID string
	Database   *Database
}

// UserProperties is the service representation of a user.
type UserProperties struct {
	ID           string `json:"id"`
	ResourceID   string `json:"_rid,omitempty"`
	Self         string `json:"_self,omitempty"`
	ETag         string `json:"_etag,omitempty"`
	LastModified int64  `json:"_ts,omitempty"`
	Permissions  string `json:"_permissions,omitempty"`
}

// UserResponse is the outcome of a user operation. Resource is nil for deletes.
type UserResponse struct {
	StatusCode int
	Resource   *UserProperties
	ActivityID string
	User       *User
}

// Database addresses one database.
type Database struct {
	client *Client
	id     string
}

// ID returns the database id.
func (d *Database) ID() string { return d.id }

func (d *Database) link() string { return "dbs/" + d.id }

// Read fetches the database.
func (d *Database) Read(ctx context.Context) (*DatabaseResponse, error) {
	return d.do(ctx, handlers.OperationRead, d.link(), nil)
}

// Delete removes the database and everything in it.
func (d *Database) Delete(ctx context.Context) (*DatabaseResponse, error) {
	return d.do(ctx, handlers.OperationDelete, d.link(), nil)
}

func (d *Database) create(ctx context.Context) (*DatabaseResponse, error) {
	return d.do(ctx, handlers.OperationCreate, "dbs", DatabaseProperties{ID: d.id})
}

func (d *Database) do(ctx context.Context, op handlers.OperationType, link string, body any) (*DatabaseResponse, error) {
	req := &handlers.Request{Operation: op, ResourceType: handlers.ResourceDatabase, ResourceLink: link}
	if body != nil {
		b, err := d.client.encode(body)
		if err != nil {
			return nil, err
		}
		req.Body = b
	}

	res, err := d.client.send(ctx, req)
	if err != nil {
		return nil, err
	}

	out := &DatabaseResponse{StatusCode: res.statusCode, ActivityID: res.activityID, Database: d}
	if len(res.body) > 0 {
		out.Resource = &DatabaseProperties{}
		if err := d.client.decode(res.body, out.Resource); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// CreateUser creates the user id in this database.
func (d *Database) CreateUser(ctx context.Context, id string) (*UserResponse, error) {
	u := d.User(id)
	return u.do(ctx, handlers.OperationCreate, d.link()+"/users", UserProperties{ID: id})
}

// User returns a handle to the user id. No request is sent.
func (d *Database) User(id string) *User {
	return &User{database: d, id: id}
}

// User addresses one user within a database.
type User struct {
	database *Database
	id       string
}

// ID returns the user id.
func (u *User) ID() string { return u.id }

func (u *User) link() string { return u.database.link() + "/users/" + u.id }

// Read fetches the user.
func (u *User) Read(ctx context.Context) (*UserResponse, error) {
	return u.do(ctx, handlers.OperationRead, u.link(), nil)
}

// Replace overwrites the user with props. When props.ID differs from the
// current id the user is renamed and the returned response addresses the new id.
func (u *User) Replace(ctx context.Context, props UserProperties) (*UserResponse, error) {
	if props.ID == "" {
		props.ID = u.id
	}
	return u.do(ctx, handlers.OperationReplace, u.link(), props)
}

// Delete removes the user.
func (u *User) Delete(ctx context.Context) (*UserResponse, error) {
	return u.do(ctx, handlers.OperationDelete, u.link(), nil)
}

func (u *User) do(ctx context.Context, op handlers.OperationType, link string, body any) (*UserResponse, error) {
	c := u.database.client
	req := &handlers.Request{Operation: op, ResourceType: handlers.ResourceUser, ResourceLink: link}
	if body != nil {
		b, err := c.encode(body)
		if err != nil {
			return nil, err
		}
		req.Body = b
	}

	res, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}

	out := &UserResponse{StatusCode: res.statusCode, ActivityID: res.activityID, User: u}
	if len(res.body) > 0 {
		out.Resource = &UserProperties{}
		if err := c.decode(res.body, out.Resource); err != nil {
			return nil, err
		}
		if out.Resource.ID != "" && out.Resource.ID != u.id {
			out.User = u.database.User(out.Resource.ID)
		}
	}
	return out, nil
}
