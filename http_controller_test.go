package authgate_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	authgate "github.com/goliatone/go-authgate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gatewayFixture struct {
	app      *fiber.App
	repo     authgate.Users
	store    *authgate.MemorySessionStore
	notifier *MockNotifier
}

func setupGateway(t *testing.T) *gatewayFixture {
	t.Helper()

	repo := authgate.NewUsersRepository(setupTestDB(t))
	store := authgate.NewMemorySessionStore()
	config := testConfig()
	notifier := NewMockNotifier()

	resolver := authgate.NewResolver(repo, store, config)
	issuer := authgate.NewIssuer(store, config)
	engine := authgate.NewRegistrationEngine(repo, issuer, notifier, config)
	lifecycle := authgate.NewLifecycle(repo, notifier, config)

	controller := authgate.NewHTTPController(resolver, engine, lifecycle, issuer, store, config)

	app := fiber.New()
	controller.RegisterRoutes(app)

	app.Get("/whoami", controller.Auth, func(c *fiber.Ctx) error {
		user := c.Locals("user").(*authgate.User)
		return c.JSON(fiber.Map{
			"id":          user.ID.String(),
			"wasModified": c.Locals("wasModified"),
		})
	})

	echoUser := func(c *fiber.Ctx) error {
		user := c.Locals("user").(*authgate.User)
		return c.JSON(fiber.Map{"id": user.ID.String()})
	}
	app.Get("/whoami-session", controller.AuthWithSession, echoUser)
	app.Get("/whoami-url", controller.AuthWithURL, echoUser)

	return &gatewayFixture{app: app, repo: repo, store: store, notifier: notifier}
}

func (f *gatewayFixture) request(t *testing.T, method, target string, payload any, decorate func(*http.Request)) (*http.Response, map[string]any) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if decorate != nil {
		decorate(req)
	}

	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)

	var parsed map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	if len(raw) > 0 {
		// non-JSON bodies (plain text, redirects) stay unparsed
		_ = json.Unmarshal(raw, &parsed)
	}

	return resp, parsed
}

func (f *gatewayFixture) registerAda(t *testing.T) (id, token string) {
	t.Helper()

	resp, body := f.request(t, http.MethodPost, "/register", fiber.Map{
		"username":        "ada",
		"email":           "ada@example.com",
		"password":        "p",
		"confirmPassword": "p",
	}, nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	id, _ = body["id"].(string)
	token, _ = body["api_token"].(string)
	require.NotEmpty(t, id)
	require.NotEmpty(t, token)
	return id, token
}

func TestGatewayRegisterThenLogin(t *testing.T) {
	fixture := setupGateway(t)
	id, token := fixture.registerAda(t)

	waitForNotification(t, fixture.notifier)

	t.Run("login by username", func(t *testing.T) {
		resp, body := fixture.request(t, http.MethodPost, "/login", fiber.Map{
			"username": "ada",
			"password": "p",
		}, nil)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, id, body["id"])
		assert.Equal(t, token, body["token"])

		cookies := resp.Cookies()
		require.NotEmpty(t, cookies)
		assert.Equal(t, authgate.DefaultSessionCookie, cookies[0].Name)
		assert.NotEmpty(t, cookies[0].Value)

		userID, err := fixture.store.Get(context.Background(), cookies[0].Value)
		require.NoError(t, err)
		assert.Equal(t, id, userID)
	})

	t.Run("login by email", func(t *testing.T) {
		resp, body := fixture.request(t, http.MethodPost, "/login", fiber.Map{
			"email":    "ada@example.com",
			"password": "p",
		}, nil)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, id, body["id"])
	})

	t.Run("wrong password is undifferentiated", func(t *testing.T) {
		resp, body := fixture.request(t, http.MethodPost, "/login", fiber.Map{
			"username": "ada",
			"password": "wrong",
		}, nil)

		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, authgate.TextCodeInvalidCredentials, body["code"])
	})

	t.Run("duplicate email denied", func(t *testing.T) {
		resp, body := fixture.request(t, http.MethodPost, "/register", fiber.Map{
			"username":        "ada2",
			"email":           "ada@example.com",
			"password":        "p",
			"confirmPassword": "p",
		}, nil)

		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, authgate.TextCodeEmailTaken, body["code"])
	})
}

func TestGatewayTokenAuth(t *testing.T) {
	fixture := setupGateway(t)
	id, token := fixture.registerAda(t)
	waitForNotification(t, fixture.notifier)

	withCreds := func(req *http.Request) {
		req.Header.Set("x-api-user", id)
		req.Header.Set("x-api-key", token)
	}

	t.Run("missing headers", func(t *testing.T) {
		resp, body := fixture.request(t, http.MethodGet, "/whoami", nil, nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, authgate.TextCodeMissingCredential, body["code"])
	})

	t.Run("valid credentials", func(t *testing.T) {
		resp, body := fixture.request(t, http.MethodGet, "/whoami", nil, withCreds)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, id, body["id"])
		assert.Equal(t, true, body["wasModified"])
	})

	t.Run("matching version hint", func(t *testing.T) {
		resp, body := fixture.request(t, http.MethodGet, "/whoami?_v=0", nil, withCreds)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, false, body["wasModified"])
	})

	t.Run("wrong token reads as unknown user", func(t *testing.T) {
		resp, body := fixture.request(t, http.MethodGet, "/whoami", nil, func(req *http.Request) {
			req.Header.Set("x-api-user", id)
			req.Header.Set("x-api-key", "not-the-token")
		})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, authgate.TextCodeNoUser, body["code"])
	})

	t.Run("change password behind auth", func(t *testing.T) {
		resp, _ := fixture.request(t, http.MethodPost, "/user/change-password", fiber.Map{
			"oldPassword":        "p",
			"newPassword":        "q",
			"confirmNewPassword": "q",
		}, withCreds)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		loginResp, _ := fixture.request(t, http.MethodPost, "/login", fiber.Map{
			"username": "ada",
			"password": "q",
		}, nil)
		assert.Equal(t, http.StatusOK, loginResp.StatusCode)
	})

	t.Run("change username behind auth", func(t *testing.T) {
		resp, _ := fixture.request(t, http.MethodPost, "/user/change-username", fiber.Map{
			"password":    "q",
			"newUsername": "lovelace",
		}, withCreds)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		loginResp, _ := fixture.request(t, http.MethodPost, "/login", fiber.Map{
			"username": "lovelace",
			"password": "q",
		}, nil)
		assert.Equal(t, http.StatusOK, loginResp.StatusCode)
	})
}

func TestGatewaySessionAuth(t *testing.T) {
	fixture := setupGateway(t)
	id, _ := fixture.registerAda(t)
	waitForNotification(t, fixture.notifier)

	resp, _ := fixture.request(t, http.MethodPost, "/login", fiber.Map{
		"username": "ada",
		"password": "p",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Cookies())
	sid := resp.Cookies()[0].Value

	t.Run("cookie-bound session", func(t *testing.T) {
		resp, body := fixture.request(t, http.MethodGet, "/whoami-session", nil, func(req *http.Request) {
			req.AddCookie(&http.Cookie{Name: authgate.DefaultSessionCookie, Value: sid})
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, id, body["id"])
	})

	t.Run("no cookie", func(t *testing.T) {
		resp, body := fixture.request(t, http.MethodGet, "/whoami-session", nil, nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, authgate.TextCodeNoSession, body["code"])
	})

	t.Run("unknown session id", func(t *testing.T) {
		resp, body := fixture.request(t, http.MethodGet, "/whoami-session", nil, func(req *http.Request) {
			req.AddCookie(&http.Cookie{Name: authgate.DefaultSessionCookie, Value: "not-a-session"})
		})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, authgate.TextCodeNoSession, body["code"])
	})
}

func TestGatewayURLAuth(t *testing.T) {
	fixture := setupGateway(t)
	id, token := fixture.registerAda(t)
	waitForNotification(t, fixture.notifier)

	t.Run("query credentials", func(t *testing.T) {
		resp, body := fixture.request(t, http.MethodGet, "/whoami-url?_id="+id+"&apiToken="+token, nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, id, body["id"])
	})

	t.Run("missing credentials", func(t *testing.T) {
		resp, body := fixture.request(t, http.MethodGet, "/whoami-url?_id="+id, nil, nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, authgate.TextCodeMissingCredential, body["code"])
	})

	t.Run("wrong token", func(t *testing.T) {
		resp, body := fixture.request(t, http.MethodGet, "/whoami-url?_id="+id+"&apiToken=not-the-token", nil, nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, authgate.TextCodeNoUser, body["code"])
	})
}

func TestGatewaySuspendedAccount(t *testing.T) {
	fixture := setupGateway(t)
	id, token := fixture.registerAda(t)
	waitForNotification(t, fixture.notifier)

	ctx := context.Background()
	user, err := fixture.repo.GetByID(ctx, id)
	require.NoError(t, err)
	user.Blocked = true
	_, err = fixture.repo.Update(ctx, user)
	require.NoError(t, err)

	t.Run("token auth", func(t *testing.T) {
		resp, body := fixture.request(t, http.MethodGet, "/whoami", nil, func(req *http.Request) {
			req.Header.Set("x-api-user", id)
			req.Header.Set("x-api-key", token)
		})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, authgate.TextCodeAccountSuspended, body["code"])
		assert.Contains(t, body["err"], id)
	})

	t.Run("local login", func(t *testing.T) {
		resp, body := fixture.request(t, http.MethodPost, "/login", fiber.Map{
			"username": "ada",
			"password": "p",
		}, nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, authgate.TextCodeAccountSuspended, body["code"])
	})
}

func TestGatewayLogout(t *testing.T) {
	fixture := setupGateway(t)
	fixture.registerAda(t)
	waitForNotification(t, fixture.notifier)

	resp, _ := fixture.request(t, http.MethodPost, "/login", fiber.Map{
		"username": "ada",
		"password": "p",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Cookies())
	sid := resp.Cookies()[0].Value

	logoutResp, _ := fixture.request(t, http.MethodGet, "/logout", nil, func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: authgate.DefaultSessionCookie, Value: sid})
	})
	assert.Equal(t, http.StatusFound, logoutResp.StatusCode)

	_, err := fixture.store.Get(context.Background(), sid)
	assert.Error(t, err)
}

func TestGatewayResetPassword(t *testing.T) {
	fixture := setupGateway(t)
	fixture.registerAda(t)
	waitForNotification(t, fixture.notifier)

	t.Run("unknown email", func(t *testing.T) {
		resp, body := fixture.request(t, http.MethodPost, "/reset-password", fiber.Map{
			"email": "ghost@example.com",
		}, nil)
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, authgate.TextCodeNoUser, body["code"])
	})

	t.Run("known email rotates the password", func(t *testing.T) {
		resp, _ := fixture.request(t, http.MethodPost, "/reset-password", fiber.Map{
			"email": "ada@example.com",
		}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		sent := waitForNotification(t, fixture.notifier)
		require.Equal(t, authgate.NotificationPasswordReset, sent.Kind)
		newPassword := sent.Data["password"].(string)

		oldLogin, _ := fixture.request(t, http.MethodPost, "/login", fiber.Map{
			"username": "ada",
			"password": "p",
		}, nil)
		assert.Equal(t, http.StatusUnauthorized, oldLogin.StatusCode)

		newLogin, _ := fixture.request(t, http.MethodPost, "/login", fiber.Map{
			"username": "ada",
			"password": newPassword,
		}, nil)
		assert.Equal(t, http.StatusOK, newLogin.StatusCode)
	})
}

func TestGatewayFederatedSignIn(t *testing.T) {
	fixture := setupGateway(t)

	identity := fiber.Map{
		"provider":         "facebook",
		"provider_user_id": "42",
		"name":             "Ada Lovelace",
		"email":            "ada@example.com",
	}

	resp, body := fixture.request(t, http.MethodPost, "/auth/federated", identity, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	id, _ := body["id"].(string)
	token, _ := body["apiToken"].(string)
	require.NotEmpty(t, id)
	require.NotEmpty(t, token)
	waitForNotification(t, fixture.notifier)

	t.Run("second sign-in is a login", func(t *testing.T) {
		again, body := fixture.request(t, http.MethodPost, "/auth/federated", identity, nil)
		require.Equal(t, http.StatusOK, again.StatusCode)
		assert.Equal(t, id, body["id"])
		assert.Equal(t, token, body["apiToken"])
		assertNoNotification(t, fixture.notifier)
	})
}
