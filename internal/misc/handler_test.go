package misc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/2beens/tableorder/internal/auth"
	"github.com/2beens/tableorder/internal/middleware"
	"github.com/2beens/tableorder/internal/telemetry/metrics"

	"github.com/go-redis/redis_rate/v9"
	"github.com/go-redis/redismock/v8"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// use TestMain(m *testing.M) { ... } for
// global set-up/tear-down for all the tests in a package
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// INFO: https://github.com/go-redis/redis/issues/1029
		goleak.IgnoreTopFunction(
			"github.com/go-redis/redis/v8/internal/pool.(*ConnPool).reaper",
		),
	)
}

type testRequestRateLimiter struct {
	// key to limit map
	Limits map[string]int
}

func (l *testRequestRateLimiter) Allow(_ context.Context, key string, _ redis_rate.Limit) (*redis_rate.Result, error) {
	res := &redis_rate.Result{}

	foundLimit, ok := l.Limits[key]
	if !ok || foundLimit == 0 {
		return res, nil
	}

	res.Allowed = l.Limits[key]
	l.Limits[key]--

	return res, nil
}

type testAdmins struct {
	admins map[string]*auth.Admin
}

func (a *testAdmins) GetByUsername(_ context.Context, username string) (*auth.Admin, error) {
	admin, ok := a.admins[username]
	if !ok {
		return nil, auth.ErrAdminNotFound
	}
	return admin, nil
}

func TestNewMiscHandler_Routes(t *testing.T) {
	mainRouter := mux.NewRouter()
	handler := NewHandler(&auth.Service{}, "dummy")
	handler.SetupRoutes(mainRouter, nil, metrics.NewTestManager(), 15)
	require.NotNil(t, handler)
	require.NotNil(t, mainRouter)

	for caseName, route := range map[string]struct {
		name   string
		path   string
		method string
	}{
		"root": {
			name:   "root",
			path:   "/",
			method: "GET",
		},
		"health": {
			name:   "health",
			path:   "/health",
			method: "GET",
		},
		"version": {
			name:   "version",
			path:   "/version",
			method: "GET",
		},
		"login": {
			name:   "login",
			path:   "/a/login",
			method: "POST",
		},
		"logout": {
			name:   "logout",
			path:   "/a/logout",
			method: "GET",
		},
		"logout-options": {
			name:   "logout",
			path:   "/a/logout",
			method: "OPTIONS",
		},
	} {
		t.Run(caseName, func(t *testing.T) {
			req, err := http.NewRequest(route.method, route.path, nil)
			require.NoError(t, err)

			routeMatch := &mux.RouteMatch{}
			route := mainRouter.Get(route.name)
			require.NotNil(t, route)
			isMatch := route.Match(req, routeMatch)
			assert.True(t, isMatch, caseName)
		})
	}
}

func routerForLoginTests(
	t *testing.T,
	authService *auth.Service,
	reqRateLimiter middleware.RequestRateLimiter,
) *mux.Router {
	t.Helper()

	r := mux.NewRouter()
	authMiddleware := middleware.NewAuthMiddlewareHandler(authService)

	// the same setup as in Server.routerSetup() ... these are not so much of a "unit" tests
	metricsManager := metrics.NewTestManager()
	r.Use(middleware.PanicRecovery(metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(metricsManager))
	r.Use(middleware.Cors())
	r.Use(authMiddleware.AuthCheck())
	r.Use(middleware.DrainAndCloseRequest())

	handler := NewHandler(authService, "dummy")
	handler.SetupRoutes(r, reqRateLimiter, metricsManager, 15)

	return r
}

func TestLogin(t *testing.T) {
	rdb, rdbMock := redismock.NewClientMock()
	defer func() {
		assert.NoError(t, rdb.Close())
	}()

	admins := &testAdmins{
		admins: map[string]*auth.Admin{
			"testuser": {
				ID:           1,
				Username:     "testuser",
				PasswordHash: "$2a$14$6Gmhg85si2etd3K9oB8nYu1cxfbrdmhkg6wI6OXsa88IF4L2r/L9i", // testpass
			},
		},
	}

	authService := auth.NewService(admins, time.Hour, rdb)
	require.NotNil(t, authService)
	testToken := "test_token"
	authService.RandStringFunc = func(s int) (string, error) {
		return testToken, nil
	}
	now := time.Now()
	authService.NowFunc = func() time.Time {
		return now
	}

	sessionJson, err := json.Marshal(auth.Session{
		AdminID:   1,
		Username:  "testuser",
		ExpiresAt: now.Add(time.Hour).Unix(),
	})
	require.NoError(t, err)
	rdbMock.ExpectSet("tableorder-session||"+testToken, sessionJson, 0).SetVal("OK")
	rdbMock.ExpectSAdd("tableorder-sessions", testToken).SetVal(1)

	reqRateLimiter := &testRequestRateLimiter{
		Limits: map[string]int{"login": 1},
	}
	r := routerForLoginTests(t, authService, reqRateLimiter)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/a/login", nil)
	req.PostForm = url.Values{}
	req.PostForm.Add("username", "testuser")
	req.PostForm.Add("password", "testpass")
	req.Header.Set("Origin", "test")

	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"token":"test_token"`)
	assert.Contains(t, rr.Body.String(), `"admin":{"id":1,"username":"testuser"}`)
	assert.NoError(t, rdbMock.ExpectationsWereMet())

	// rate limit exhausted, next login attempt rejected
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTooEarly, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Body.String(), "retry after"))
}

func TestLogin_WrongCredentials(t *testing.T) {
	rdb, _ := redismock.NewClientMock()
	defer func() {
		assert.NoError(t, rdb.Close())
	}()

	admins := &testAdmins{
		admins: map[string]*auth.Admin{
			"testuser": {
				ID:           1,
				Username:     "testuser",
				PasswordHash: "$2a$14$6Gmhg85si2etd3K9oB8nYu1cxfbrdmhkg6wI6OXsa88IF4L2r/L9i", // testpass
			},
		},
	}
	authService := auth.NewService(admins, time.Hour, rdb)

	reqRateLimiter := &testRequestRateLimiter{
		Limits: map[string]int{"login": 10},
	}
	r := routerForLoginTests(t, authService, reqRateLimiter)

	testCases := []struct {
		name     string
		username string
		password string
		expected int
	}{
		{
			name:     "wrong password",
			username: "testuser",
			password: "wrongpass",
			expected: http.StatusUnauthorized,
		},
		{
			name:     "unknown user",
			username: "ghost",
			password: "testpass",
			expected: http.StatusUnauthorized,
		},
		{
			name:     "empty username",
			username: "",
			password: "testpass",
			expected: http.StatusBadRequest,
		},
		{
			name:     "empty password",
			username: "testuser",
			password: "",
			expected: http.StatusBadRequest,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest("POST", "/a/login", nil)
			req.PostForm = url.Values{}
			req.PostForm.Add("username", tc.username)
			req.PostForm.Add("password", tc.password)

			r.ServeHTTP(rr, req)
			assert.Equal(t, tc.expected, rr.Code)
		})
	}
}

func TestLogout(t *testing.T) {
	rdb, rdbMock := redismock.NewClientMock()
	defer func() {
		assert.NoError(t, rdb.Close())
	}()

	authService := auth.NewService(&testAdmins{}, time.Hour, rdb)
	r := routerForLoginTests(t, authService, &testRequestRateLimiter{
		Limits: map[string]int{"login": 10},
	})

	sessionJson, err := json.Marshal(auth.Session{
		AdminID:   1,
		Username:  "testuser",
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, err)
	rdbMock.ExpectGet("tableorder-session||test_token").SetVal(string(sessionJson))
	rdbMock.ExpectDel("tableorder-session||test_token").SetVal(1)
	rdbMock.ExpectSRem("tableorder-sessions", "test_token").SetVal(1)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/a/logout", nil)
	req.Header.Set("Authorization", "Bearer test_token")

	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "logged-out", rr.Body.String())
	assert.NoError(t, rdbMock.ExpectationsWereMet())

	// no token, no logout
	rr = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/a/logout", nil)
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHealth(t *testing.T) {
	rdb, _ := redismock.NewClientMock()
	defer func() {
		assert.NoError(t, rdb.Close())
	}()

	r := routerForLoginTests(
		t,
		auth.NewService(&testAdmins{}, time.Hour, rdb),
		&testRequestRateLimiter{Limits: map[string]int{}},
	)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var healthResp struct {
		Ok  bool  `json:"ok"`
		Now int64 `json:"now"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &healthResp))
	assert.True(t, healthResp.Ok)
	assert.InDelta(t, time.Now().UnixMilli(), healthResp.Now, float64(5*time.Second.Milliseconds()))
}
