package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"coach-backend/internal/shared/auth"
)

func newAuthRouter(env string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Auth(env))
	router.GET("/api/v1/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": UserIDFromContext(c), "guest": IsGuest(c), "email": UserEmailFromContext(c)})
	})
	router.OPTIONS("/api/v1/transcripts", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func TestAuthAllowsOptionsWithoutIdentity(t *testing.T) {
	router := newAuthRouter("production")

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/transcripts", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
}

func TestAuthIdentityResolution(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	token, err := auth.SignJWT(auth.Claims{Sub: "google:123", Email: "artist@example.com"})
	if err != nil {
		t.Fatalf("sign jwt: %v", err)
	}

	cases := []struct {
		name       string
		env        string
		query      string
		header     map[string]string
		wantStatus int
		wantUser   string
	}{
		{name: "bearer", env: "production", header: map[string]string{"Authorization": "Bearer " + token}, wantStatus: http.StatusOK, wantUser: "google:123"},
		{name: "bad bearer", env: "production", header: map[string]string{"Authorization": "Bearer nope"}, wantStatus: http.StatusUnauthorized},
		{name: "basic scheme", env: "production", header: map[string]string{"Authorization": "Basic abc"}, wantStatus: http.StatusUnauthorized},
		{name: "guest", env: "production", header: map[string]string{"X-Guest-Id": "g1"}, wantStatus: http.StatusOK, wantUser: "guest:g1"},
		{name: "anonymous prod", env: "production", wantStatus: http.StatusUnauthorized},
		{name: "anonymous dev", env: "dev", wantStatus: http.StatusOK, wantUser: LocalGuestID},
		{name: "websocket guest query", env: "production", query: "?guestId=g2", header: map[string]string{"Upgrade": "websocket"}, wantStatus: http.StatusOK, wantUser: "guest:g2"},
		{name: "websocket token query", env: "production", query: "?access_token=" + token, header: map[string]string{"Upgrade": "websocket"}, wantStatus: http.StatusOK, wantUser: "google:123"},
		{name: "query ignored without upgrade", env: "production", query: "?guestId=g2", wantStatus: http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newAuthRouter(tc.env)
			req := httptest.NewRequest(http.MethodGet, "/api/v1/whoami"+tc.query, nil)
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)
			if resp.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tc.wantStatus, resp.Code, resp.Body.String())
			}
			if tc.wantUser != "" && !strings.Contains(resp.Body.String(), `"userId":"`+tc.wantUser+`"`) {
				t.Fatalf("expected user %s in %s", tc.wantUser, resp.Body.String())
			}
		})
	}
}
