package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/floradex-app/server/cache"
	"github.com/floradex-app/server/config"
	"github.com/floradex-app/server/friendship"
	mw "github.com/floradex-app/server/middleware"
	"github.com/floradex-app/server/model"
	"github.com/floradex-app/server/notify"
	"github.com/floradex-app/server/reconcile"
	"github.com/floradex-app/server/repository"
	"github.com/floradex-app/server/scheduler"
	"github.com/floradex-app/server/testutil"
	"github.com/floradex-app/server/trade"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	db       *gorm.DB
	repo     *repository.MemoryUserRepository
	cache    cache.Cache
	pubsub   cache.PubSub
	sec      config.SecurityConfig
	friends  *friendship.Service
	trades   *trade.Service
	notifier *notify.Notifier
	sweeper  *reconcile.Sweeper
	sched    *scheduler.Scheduler
	router   *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger, _ := zap.NewDevelopment()

	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	repo := repository.NewMemoryUserRepository()
	committer := reconcile.NewCommitter(repo, c, nil,
		reconcile.Options{MaxRetries: 5, Backoff: time.Millisecond}, logger)

	env := &testEnv{
		db:       db,
		repo:     repo,
		cache:    c,
		pubsub:   ps,
		sec:      config.SecurityConfig{JWTSecret: "test-secret", JWTTTLH: time.Hour},
		friends:  friendship.NewService(committer, logger),
		trades:   trade.NewService(committer, logger),
		notifier: notify.New(ps, logger),
		sweeper:  reconcile.NewSweeper(repo, logger),
		sched:    scheduler.New(logger),
	}
	t.Cleanup(env.sched.Stop)

	authH := NewAuthHandler(db, repo, c, env.sec)
	galleryH := NewGalleryHandler(repo, committer)
	socialH := NewSocialHandler(repo, env.friends, env.notifier, c)
	tradeH := NewTradeHandler(repo, env.trades, env.notifier)
	adminH := NewAdminHandler(env.sweeper, env.sched, logger)

	r := gin.New()
	r.POST("/api/auth/login", authH.Login)
	authed := r.Group("/api", mw.Auth(env.sec, c))
	authed.POST("/auth/logout", authH.Logout)
	authed.POST("/auth/refresh", authH.Refresh)
	authed.GET("/gallery/cards", galleryH.ListCards)
	authed.POST("/gallery/cards", galleryH.MintCard)
	authed.PUT("/gallery/cards/:id/trade-status", galleryH.SetTradeStatus)
	authed.GET("/social/friends", socialH.ListFriends)
	authed.GET("/social/requests", socialH.ListRequests)
	authed.POST("/social/requests", socialH.SendRequest)
	authed.POST("/social/requests/:uid/accept", socialH.AcceptRequest)
	authed.POST("/social/requests/:uid/decline", socialH.DeclineRequest)
	authed.GET("/trades", tradeH.ListOffers)
	authed.POST("/trades", tradeH.CreateOffer)
	authed.POST("/trades/:uid/:offer_id/accept", tradeH.AcceptOffer)
	authed.POST("/trades/:uid/:offer_id/decline", tradeH.DeclineOffer)
	admin := r.Group("/api/admin", AdminAuth("test-admin-key"))
	admin.GET("/sweep", adminH.RunSweep)
	admin.GET("/scheduler", adminH.ListSchedulerTasks)
	env.router = r
	return env
}

// seedUser creates a user document directly and returns a valid session token.
func (env *testEnv) seedUser(t *testing.T, id string, cards ...model.Card) string {
	t.Helper()
	require.NoError(t, env.repo.Create(context.Background(), &model.User{
		ID:       id,
		Username: "user-" + id,
		Cards:    cards,
	}))
	token, err := mw.GenerateToken(id, env.sec.JWTSecret, env.sec.JWTTTLH)
	require.NoError(t, err)
	require.NoError(t, env.cache.Set(context.Background(), "session:"+token, id, time.Hour))
	return token
}

func (env *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}

func tradeableCard(id, owner string) model.Card {
	return model.Card{
		ID:          id,
		Creator:     owner,
		Owner:       owner,
		TradeStatus: true,
		Name:        "card " + id,
	}
}
