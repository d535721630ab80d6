// Package testserver runs a fully wired lullaby MCP server over HTTP for
// functional tests.
package testserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/lullaby/internal/changefeed"
	"github.com/rpggio/lullaby/internal/domain/action"
	"github.com/rpggio/lullaby/internal/domain/actionlog"
	"github.com/rpggio/lullaby/internal/domain/activity"
	"github.com/rpggio/lullaby/internal/domain/profile"
	"github.com/rpggio/lullaby/internal/mcp"
	"github.com/rpggio/lullaby/internal/sqlite"
	"github.com/rpggio/lullaby/internal/transport"
	"github.com/stretchr/testify/require"
)

type TestServer struct {
	Server      *httptest.Server
	DB          *sqlite.DB
	Store       *actionlog.Store
	Token       string
	CaregiverID string

	resolver *transport.KeyResolver
}

// New starts a server backed by a private in-memory database and issues
// token for caregiverID.
func New(t *testing.T, token, caregiverID string) *TestServer {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())

	bus := changefeed.NewBus(nil)
	db.SetPublisher(bus)

	actionRepo := sqlite.NewActionRepository(db)
	profileSvc := profile.NewService(sqlite.NewProfileRepository(db), nil)
	activitySvc := activity.NewService(sqlite.NewActivityRepository(db), nil)
	store := actionlog.NewStore(actionRepo, nil, actionlog.Config{
		Rules:    action.NewRules([]action.Category{action.CategorySleep, action.CategoryFeeding}),
		Identity: db.Identity(),
		Activity: activitySvc,
	})

	ctx, cancel := context.WithCancel(context.Background())
	observed := make(chan struct{})
	go func() {
		defer close(observed)
		store.Observe(ctx, bus)
	}()

	resolver := transport.NewKeyResolver(sqlite.NewAPIKeyRepository(db))
	mcpServer := mcp.NewServer(mcp.Config{
		Services: mcp.Services{
			Profiles: profileSvc,
			Actions:  store,
			Activity: activitySvc,
		},
		Resolver:      resolver,
		AuthEnabled:   true,
		TransportMode: "http",
		Version:       "test",
	})
	handler := sdkmcp.NewStreamableHTTPHandler(
		func(*http.Request) *sdkmcp.Server { return mcpServer },
		&sdkmcp.StreamableHTTPOptions{SessionTimeout: time.Minute},
	)
	server := httptest.NewServer(transport.NewServer(handler, transport.AuthMiddleware(resolver), nil))

	ts := &TestServer{
		Server:      server,
		DB:          db,
		Store:       store,
		Token:       token,
		CaregiverID: caregiverID,
		resolver:    resolver,
	}
	require.NoError(t, ts.AddAPIKey(token, caregiverID))

	t.Cleanup(func() {
		server.Close()
		cancel()
		<-observed
		store.Close()
		bus.Close()
		_ = db.Close()
	})
	return ts
}

// AddAPIKey issues another bearer token.
func (ts *TestServer) AddAPIKey(token, caregiverID string) error {
	return ts.resolver.Issue(context.Background(), token, caregiverID, "test")
}

// Connect opens an MCP client session authenticated with token.
func (ts *TestServer) Connect(t *testing.T, token string) *sdkmcp.ClientSession {
	t.Helper()

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "lullaby-test", Version: "1.0.0"}, nil)
	session, err := client.Connect(context.Background(), &sdkmcp.StreamableClientTransport{
		Endpoint:   ts.Server.URL + "/mcp",
		HTTPClient: &http.Client{Transport: bearer{token: token, next: http.DefaultTransport}},
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

type bearer struct {
	token string
	next  http.RoundTripper
}

func (b bearer) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+b.token)
	return b.next.RoundTrip(req)
}
