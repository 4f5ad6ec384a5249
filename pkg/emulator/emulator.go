// Package emulator provides an in-memory Transport that stores databases and
// users the way the service does, for tests and local demos.
package emulator

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/polisai/cosmosclient/internal/governance"
	"github.com/polisai/cosmosclient/pkg/handlers"
)

// Credentials accepted by the local emulator. The key is published and not a secret.
const (
	DefaultEndpoint = "https://localhost:8081/"
	WellKnownKey    = "C2y6yDjf5/R+ob0N8A7Cgv30VRDJIWEHLM+4QDU5DE2nQ9nDuVTqobD4b8mGGyPMbIZnqyMsEcaGQy67XIw/Jw=="
)

// Resource is the stored form of a database or user.
type Resource struct {
	ID          string `json:"id"`
	RID         string `json:"_rid"`
	Self        string `json:"_self"`
	ETag        string `json:"_etag"`
	Timestamp   int64  `json:"_ts"`
	Permissions string `json:"_permissions,omitempty"`
}

type database struct {
	Resource
	users map[string]Resource
}

// Emulator is a Transport backed by memory. It is safe for concurrent use.
type Emulator struct {
	mu        sync.Mutex
	databases map[string]*database
	requests  int

	throttleRemaining int
	throttleAfter     time.Duration
	limiter           *governance.RateLimiter

	now func() time.Time
}

// Option configures an Emulator.
type Option func(*Emulator)

// WithRateLimit throttles each database, and the account's database feed,
// to requestsPerSecond with the given burst. Requests over budget get 429
// with the time until the next token as the retry hint.
func WithRateLimit(requestsPerSecond, burst int) Option {
	return func(e *Emulator) {
		e.limiter = governance.NewRateLimiter(governance.RateLimit{
			RequestsPerSecond: requestsPerSecond,
			BurstSize:         burst,
		})
	}
}

// New creates an empty emulator.
func New(opts ...Option) *Emulator {
	e := &Emulator{
		databases: make(map[string]*database),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ThrottleNext makes the next n requests fail with 429, asking the caller to
// wait retryAfter before retrying.
func (e *Emulator) ThrottleNext(n int, retryAfter time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.throttleRemaining = n
	e.throttleAfter = retryAfter
}

// Requests returns how many requests reached the emulator, throttled ones included.
func (e *Emulator) Requests() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requests
}

// RoundTrip implements handlers.Transport.
func (e *Emulator) RoundTrip(ctx context.Context, req *handlers.Request) (*handlers.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.requests++
	if e.throttleRemaining > 0 {
		e.throttleRemaining--
		return e.throttled(req, e.throttleAfter), nil
	}

	segments := strings.Split(strings.Trim(req.ResourceLink, "/"), "/")
	if len(segments) == 0 || segments[0] != "dbs" {
		return e.respond(req, http.StatusBadRequest, nil), nil
	}

	if e.limiter != nil {
		key := "dbs"
		if len(segments) > 1 {
			key = "dbs/" + segments[1]
		}
		if ok, wait := e.limiter.Allow(key); !ok {
			return e.throttled(req, wait), nil
		}
	}

	switch {
	case req.ResourceType == handlers.ResourceDatabase && len(segments) == 1:
		return e.databaseFeed(req), nil
	case req.ResourceType == handlers.ResourceDatabase && len(segments) == 2:
		return e.databaseItem(req, segments[1]), nil
	case req.ResourceType == handlers.ResourceUser && len(segments) == 3 && segments[2] == "users":
		return e.userFeed(req, segments[1]), nil
	case req.ResourceType == handlers.ResourceUser && len(segments) == 4 && segments[2] == "users":
		return e.userItem(req, segments[1], segments[3]), nil
	default:
		return e.respond(req, http.StatusBadRequest, nil), nil
	}
}

func (e *Emulator) databaseFeed(req *handlers.Request) *handlers.Response {
	if req.Operation != handlers.OperationCreate {
		return e.respond(req, http.StatusMethodNotAllowed, nil)
	}
	id, ok := decodeID(req.Body)
	if !ok {
		return e.respond(req, http.StatusBadRequest, nil)
	}
	if db, exists := e.databases[id]; exists {
		return e.respond(req, http.StatusConflict, db.Resource)
	}

	db := &database{
		Resource: e.newResource(id, "dbs/"+id+"/"),
		users:    make(map[string]Resource),
	}
	e.databases[id] = db
	return e.respond(req, http.StatusCreated, db.Resource)
}

func (e *Emulator) databaseItem(req *handlers.Request, id string) *handlers.Response {
	db, ok := e.databases[id]
	if !ok {
		return e.respond(req, http.StatusNotFound, nil)
	}

	switch req.Operation {
	case handlers.OperationRead:
		return e.respond(req, http.StatusOK, db.Resource)
	case handlers.OperationDelete:
		delete(e.databases, id)
		return e.respond(req, http.StatusNoContent, nil)
	default:
		return e.respond(req, http.StatusMethodNotAllowed, nil)
	}
}

func (e *Emulator) userFeed(req *handlers.Request, dbID string) *handlers.Response {
	if req.Operation != handlers.OperationCreate {
		return e.respond(req, http.StatusMethodNotAllowed, nil)
	}
	db, ok := e.databases[dbID]
	if !ok {
		return e.respond(req, http.StatusNotFound, nil)
	}
	id, ok := decodeID(req.Body)
	if !ok {
		return e.respond(req, http.StatusBadRequest, nil)
	}
	if _, exists := db.users[id]; exists {
		return e.respond(req, http.StatusConflict, nil)
	}

	user := e.newResource(id, db.Self+"users/"+id+"/")
	user.Permissions = user.Self + "permissions/"
	db.users[id] = user
	return e.respond(req, http.StatusCreated, user)
}

func (e *Emulator) userItem(req *handlers.Request, dbID, id string) *handlers.Response {
	db, ok := e.databases[dbID]
	if !ok {
		return e.respond(req, http.StatusNotFound, nil)
	}
	user, ok := db.users[id]
	if !ok {
		return e.respond(req, http.StatusNotFound, nil)
	}

	switch req.Operation {
	case handlers.OperationRead:
		return e.respond(req, http.StatusOK, user)
	case handlers.OperationReplace:
		newID, ok := decodeID(req.Body)
		if !ok {
			return e.respond(req, http.StatusBadRequest, nil)
		}
		if newID != id {
			if _, taken := db.users[newID]; taken {
				return e.respond(req, http.StatusConflict, nil)
			}
			delete(db.users, id)
			user.ID = newID
			user.Self = db.Self + "users/" + newID + "/"
			user.Permissions = user.Self + "permissions/"
		}
		user.ETag = newETag()
		user.Timestamp = e.now().Unix()
		db.users[newID] = user
		return e.respond(req, http.StatusOK, user)
	case handlers.OperationDelete:
		delete(db.users, id)
		return e.respond(req, http.StatusNoContent, nil)
	default:
		return e.respond(req, http.StatusMethodNotAllowed, nil)
	}
}

func (e *Emulator) throttled(req *handlers.Request, retryAfter time.Duration) *handlers.Response {
	resp := e.respond(req, http.StatusTooManyRequests, nil)
	resp.Headers.Set(handlers.HeaderRetryAfterMs, strconv.FormatInt(retryAfter.Milliseconds(), 10))
	return resp
}

func (e *Emulator) newResource(id, self string) Resource {
	return Resource{
		ID:        id,
		RID:       uuid.NewString(),
		Self:      self,
		ETag:      newETag(),
		Timestamp: e.now().Unix(),
	}
}

// respond echoes the request's activity id and encodes body when present.
func (e *Emulator) respond(req *handlers.Request, status int, body any) *handlers.Response {
	resp := &handlers.Response{StatusCode: status, Headers: http.Header{}}
	if req.Headers != nil {
		if id := req.Headers.Get(handlers.HeaderActivityID); id != "" {
			resp.Headers.Set(handlers.HeaderActivityID, id)
		}
	}
	if body != nil {
		// Resource has only string and integer fields.
		resp.Body, _ = json.Marshal(body)
		resp.Headers.Set("Content-Type", "application/json")
	}
	return resp
}

func decodeID(body []byte) (string, bool) {
	var doc struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &doc); err != nil || doc.ID == "" {
		return "", false
	}
	return doc.ID, true
}

func newETag() string {
	return `"` + uuid.NewString() + `"`
}
