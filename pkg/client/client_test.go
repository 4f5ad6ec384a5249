package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polisai/cosmosclient/pkg/config"
	"github.com/polisai/cosmosclient/pkg/domain"
	"github.com/polisai/cosmosclient/pkg/emulator"
	"github.com/polisai/cosmosclient/pkg/handlers"
	"github.com/polisai/cosmosclient/pkg/serialization"
)

const (
	testEndpoint         = "https://localhost:8081/"
	testKey              = "C2y6yDjf5/R+ob0N8A7Cgv30VRDJIWEHLM+4QDU5DE2nQ9nDuVTqobD4b8mGGyPMbIZnqyMsEcaGQy67XIw/Jw=="
	testConnectionString = "AccountEndpoint=" + testEndpoint + ";AccountKey=" + testKey + ";"
)

func newTestClient(t *testing.T, cfg *config.ClientConfiguration, opts ...Option) (*Client, *emulator.Emulator) {
	t.Helper()
	if cfg == nil {
		var err error
		cfg, err = config.New(testEndpoint, testKey)
		require.NoError(t, err)
	}
	emu := emulator.New()
	c, err := New(cfg, append([]Option{WithTransport(emu)}, opts...)...)
	require.NoError(t, err)
	return c, emu
}

// captureHandler records the requests it forwards.
type captureHandler struct {
	handlers.Delegating
	mu       sync.Mutex
	requests []handlers.Request
}

func (h *captureHandler) Handle(ctx context.Context, req *handlers.Request, next handlers.Next) (*handlers.Response, error) {
	h.mu.Lock()
	h.requests = append(h.requests, *req)
	h.mu.Unlock()
	return next(ctx, req)
}

func TestClient_UserCRUD(t *testing.T) {
	c, _ := newTestClient(t, nil)
	ctx := context.Background()

	dbResp, err := c.CreateDatabaseIfNotExists(ctx, "db1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, dbResp.StatusCode)

	db := dbResp.Database
	created, err := db.CreateUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, created.StatusCode)
	require.NotNil(t, created.Resource)
	assert.Equal(t, "alice", created.Resource.ID)
	assert.NotEmpty(t, created.Resource.ResourceID)
	assert.NotEmpty(t, created.ActivityID)

	replaced, err := created.User.Replace(ctx, UserProperties{ID: "bob"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, replaced.StatusCode)
	assert.Equal(t, "bob", replaced.Resource.ID)
	assert.Equal(t, "bob", replaced.User.ID())

	read, err := replaced.User.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, read.StatusCode)
	assert.Equal(t, created.Resource.ResourceID, read.Resource.ResourceID)

	deleted, err := read.User.Delete(ctx)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, deleted.StatusCode)
	assert.Nil(t, deleted.Resource)

	_, err = read.User.Read(ctx)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, http.StatusNotFound, StatusCode(err))

	dbDeleted, err := db.Delete(ctx)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, dbDeleted.StatusCode)
}

func TestClient_CreateDatabaseIfNotExists_ReadsExisting(t *testing.T) {
	c, _ := newTestClient(t, nil)
	ctx := context.Background()

	first, err := c.CreateDatabaseIfNotExists(ctx, "db1")
	require.NoError(t, err)
	second, err := c.CreateDatabaseIfNotExists(ctx, "db1")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, second.StatusCode)
	assert.Equal(t, first.Resource.ResourceID, second.Resource.ResourceID)
}

func TestClient_CreateUserConflict(t *testing.T) {
	c, _ := newTestClient(t, nil)
	ctx := context.Background()

	_, err := c.CreateDatabaseIfNotExists(ctx, "db1")
	require.NoError(t, err)
	_, err = c.Database("db1").CreateUser(ctx, "alice")
	require.NoError(t, err)

	_, err = c.Database("db1").CreateUser(ctx, "alice")
	require.Error(t, err)
	assert.True(t, IsConflict(err))

	var re *ResponseError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, handlers.OperationCreate, re.Operation)
	assert.Equal(t, "dbs/db1/users", re.ResourceLink)
	assert.NotEmpty(t, re.ActivityID)
}

func TestClient_RetriesThrottledRequests(t *testing.T) {
	c, emu := newTestClient(t, nil)
	ctx := context.Background()

	emu.ThrottleNext(2, time.Millisecond)
	resp, err := c.CreateDatabaseIfNotExists(ctx, "db1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, 3, emu.Requests())
}

func TestClient_ThrottlingExhausted(t *testing.T) {
	cfg, err := config.New(testEndpoint, testKey)
	require.NoError(t, err)
	c, emu := newTestClient(t, cfg.WithThrottlingRetryOptions(30*time.Second, 1))

	emu.ThrottleNext(5, time.Millisecond)
	_, err = c.CreateDatabaseIfNotExists(context.Background(), "db1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrThrottled)
	assert.Equal(t, 2, emu.Requests())
}

func TestClient_CustomHandlerAndHeaders(t *testing.T) {
	capture := &captureHandler{}
	cfg, err := config.New(testEndpoint, testKey)
	require.NoError(t, err)
	c, _ := newTestClient(t, cfg.WithCustomHandlers(capture).WithApplicationName("orders"))

	_, err = c.CreateDatabaseIfNotExists(context.Background(), "db1")
	require.NoError(t, err)

	require.Len(t, capture.requests, 1)
	req := capture.requests[0]
	assert.Equal(t, handlers.OperationCreate, req.Operation)
	assert.Equal(t, "dbs", req.ResourceLink)
	assert.NotEmpty(t, req.Headers.Get(handlers.HeaderActivityID))
	assert.Equal(t, c.Policy().UserAgentSuffix(), req.Headers.Get(handlers.HeaderUserAgent))
}

func TestClient_SerializerOptionsShapeBodies(t *testing.T) {
	capture := &captureHandler{}
	cfg, err := config.New(testEndpoint, testKey)
	require.NoError(t, err)
	cfg.WithCustomHandlers(capture).WithSerializerOptions(serialization.Options{Indented: true})
	c, _ := newTestClient(t, cfg)

	_, err = c.CreateDatabaseIfNotExists(context.Background(), "db1")
	require.NoError(t, err)
	assert.Equal(t, "{\r\n  \"id\": \"db1\"\r\n}", string(capture.requests[0].Body))
}

func TestClient_Accessors(t *testing.T) {
	cfg, err := config.FromConnectionString(testConnectionString)
	require.NoError(t, err)
	c, err := New(cfg.WithConnectionModeGateway(9001))
	require.NoError(t, err)

	assert.Equal(t, testEndpoint, c.Endpoint())
	assert.Equal(t, testKey, c.AccountKey())
	assert.Equal(t, domain.ConnectionModeGateway, c.Policy().ConnectionMode())
	assert.Same(t, serialization.DefaultSerializer(), c.Serializer())
	assert.False(t, c.Pipeline().HasTransport())

	opts := c.Options()
	opts.ApplicationRegion = "West US"
	assert.Empty(t, c.Options().ApplicationRegion)

	_, err = c.Database("db1").Read(context.Background())
	require.ErrorIs(t, err, handlers.ErrNoTransport)
}

func TestNewFromConnectionString(t *testing.T) {
	c, err := NewFromConnectionString(testConnectionString)
	require.NoError(t, err)
	assert.Equal(t, testEndpoint, c.Endpoint())

	_, err = NewFromConnectionString("")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindInvalidArgument))

	_, err = NewFromConnectionString("AccountKey=abc;")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindMissingField))
}

func TestNew_PropagatesBuildErrors(t *testing.T) {
	cfg, err := config.New(testEndpoint, testKey)
	require.NoError(t, err)
	cfg.WithSerializerOptions(serialization.Options{Indented: true}).
		WithSerializer(serialization.NewJSONSerializer(serialization.Options{}))

	_, err = New(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConflictingSerializer)
}

func TestClient_Metrics(t *testing.T) {
	m := NewMetrics(nil)
	c, _ := newTestClient(t, nil, WithMetrics(m))
	ctx := context.Background()

	_, err := c.CreateDatabaseIfNotExists(ctx, "db1")
	require.NoError(t, err)
	_, err = c.Database("db1").User("nobody").Read(ctx)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("Create", "Database", "201")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("Read", "User", "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.requestErrors.WithLabelValues("Read", "User")))
}

func TestClient_HandlerWithoutResponse(t *testing.T) {
	silent := handlers.HandlerFunc(func(context.Context, *handlers.Request, handlers.Next) (*handlers.Response, error) {
		return nil, nil
	})
	cfg, err := config.New(testEndpoint, testKey)
	require.NoError(t, err)
	c, emu := newTestClient(t, cfg.WithCustomHandlers(silent))

	_, err = c.Database("db").Read(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, handlers.ErrNoResponse)
	assert.Zero(t, emu.Requests())
}
