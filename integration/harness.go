package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	apirest "github.com/floradex-app/server/api/rest"
	apisse "github.com/floradex-app/server/api/sse"
	"github.com/floradex-app/server/cache"
	"github.com/floradex-app/server/config"
	"github.com/floradex-app/server/friendship"
	mw "github.com/floradex-app/server/middleware"
	"github.com/floradex-app/server/notify"
	"github.com/floradex-app/server/oplog"
	"github.com/floradex-app/server/reconcile"
	"github.com/floradex-app/server/repository"
	"github.com/floradex-app/server/scheduler"
	"github.com/floradex-app/server/testutil"
	"github.com/floradex-app/server/trade"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const testAdminKey = "integration-admin-key"

// TestServer wraps a real HTTP server with all subsystems wired together.
type TestServer struct {
	DB     *gorm.DB
	Cache  cache.Cache
	PubSub cache.PubSub
	Repo   repository.UserRepository
	OpLog  *oplog.Service
	Server *httptest.Server
	URL    string // http://127.0.0.1:<port>
	Sec    config.SecurityConfig
}

// NewTestServer creates a fully wired server for integration testing.
// It mirrors the dependency wiring in main.go: gorm document repository,
// committer with pair locks and the oplog alerter, both engines, SSE.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTLH:        72 * time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
	}

	// ---- Engine ----
	repo := repository.NewGormUserRepository(db)
	oplogSvc := oplog.New(db, logger)
	t.Cleanup(func() { oplogSvc.Stop(context.Background()) })
	committer := reconcile.NewCommitter(repo, c, oplogSvc, reconcile.Options{
		MaxRetries: 5,
		Backoff:    2 * time.Millisecond,
		LockTTL:    5 * time.Second,
	}, logger)
	sweeper := reconcile.NewSweeper(repo, logger)
	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)

	notifier := notify.New(pubsub, logger)
	friendSvc := friendship.NewService(committer, logger)
	tradeSvc := trade.NewService(committer, logger)

	// ---- Gin HTTP Server ----
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes (mirrors main.go) ----
	authH := apirest.NewAuthHandler(db, repo, c, sec)
	galleryH := apirest.NewGalleryHandler(repo, committer)
	socialH := apirest.NewSocialHandler(repo, friendSvc, notifier, c)
	tradeH := apirest.NewTradeHandler(repo, tradeSvc, notifier)
	adminH := apirest.NewAdminHandler(sweeper, sched, logger)
	sseH := apisse.NewHandler(pubsub, c, sec, logger)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.POST("/logout", mw.Auth(sec, c), authH.Logout)
		authG.POST("/refresh", mw.Auth(sec, c), authH.Refresh)

		galleryG := api.Group("/gallery", mw.Auth(sec, c))
		galleryG.GET("/cards", galleryH.ListCards)
		galleryG.POST("/cards", galleryH.MintCard)
		galleryG.PUT("/cards/:id/trade-status", galleryH.SetTradeStatus)

		socialG := api.Group("/social", mw.Auth(sec, c))
		socialG.GET("/friends", socialH.ListFriends)
		socialG.GET("/requests", socialH.ListRequests)
		socialG.POST("/requests", socialH.SendRequest)
		socialG.POST("/requests/:uid/accept", socialH.AcceptRequest)
		socialG.POST("/requests/:uid/decline", socialH.DeclineRequest)

		tradesG := api.Group("/trades", mw.Auth(sec, c))
		tradesG.GET("", tradeH.ListOffers)
		tradesG.POST("", tradeH.CreateOffer)
		tradesG.POST("/:uid/:offer_id/accept", tradeH.AcceptOffer)
		tradesG.POST("/:uid/:offer_id/decline", tradeH.DeclineOffer)

		adminG := api.Group("/admin", apirest.AdminAuth(testAdminKey))
		adminG.GET("/sweep", adminH.RunSweep)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
	}

	r.GET("/sse", sseH.ServeSSE)

	// ---- Start server ----
	server := httptest.NewServer(r)

	ts := &TestServer{
		DB:     db,
		Cache:  c,
		PubSub: pubsub,
		Repo:   repo,
		OpLog:  oplogSvc,
		Server: server,
		URL:    server.URL,
		Sec:    sec,
	}
	t.Cleanup(ts.Close)
	return ts
}

// Close shuts down the test server.
func (ts *TestServer) Close() {
	ts.Server.Close()
}

// --- HTTP helpers ---

// PostJSON sends a POST request with JSON body and optional Bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest("POST", ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// Get sends a GET request with optional Bearer token.
func (ts *TestServer) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest("GET", ts.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// PutJSON sends a PUT request with JSON body and optional Bearer token.
func (ts *TestServer) PutJSON(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest("PUT", ts.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// AdminGet sends a GET request with the admin key header.
func (ts *TestServer) AdminGet(t *testing.T, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest("GET", ts.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set("X-Admin-Key", testAdminKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// --- Auth helpers ---

// Login logs in (auto-registers on first call) and returns the token and user ID.
func (ts *TestServer) Login(t *testing.T, username, password string) (token, userID string) {
	t.Helper()
	resp := ts.PostJSON(t, "/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result map[string]interface{}
	ReadJSON(t, resp, &result)
	token = result["token"].(string)
	userID = result["user_id"].(string)
	return
}

// MintCard mints a tradeable card for the given user and returns its ID.
func (ts *TestServer) MintCard(t *testing.T, token, name string) string {
	t.Helper()
	resp := ts.PostJSON(t, "/api/gallery/cards", map[string]string{
		"name": name,
		"fact": "grown for integration testing",
	}, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var result struct {
		Card struct {
			ID string `json:"id"`
		} `json:"card"`
	}
	ReadJSON(t, resp, &result)
	require.NotEmpty(t, result.Card.ID)

	on := true
	resp = ts.PutJSON(t, "/api/gallery/cards/"+result.Card.ID+"/trade-status",
		map[string]interface{}{"tradeable": &on}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	return result.Card.ID
}

// UniqueID returns a short unique string suitable for usernames.
var testCounter uint64

func UniqueID(prefix string) string {
	n := atomic.AddUint64(&testCounter, 1)
	return fmt.Sprintf("%s_%d_%d", prefix, time.Now().UnixNano()%100000, n)
}
