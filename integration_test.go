package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	app      *fiber.App
	auth     *Auth
	store    *fakeStore
	delivery *captureDelivery
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()

	store := newFakeStore()
	delivery := &captureDelivery{}
	cfg := Config{
		TokenSecret: "integration-test-secret",
		LocalPassword: &LocalPasswordConfig{
			DeliverResetToken: delivery.deliver,
		},
		MagicLink: &MagicLinkConfig{
			DeliverIdentifier: delivery.deliver,
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	a, err := New(store, cfg)
	require.NoError(t, err)
	t.Cleanup(a.Stop)

	app := fiber.New()
	a.RegisterRoutes(app)

	return &fixture{app: app, auth: a, store: store, delivery: delivery}
}

func (f *fixture) post(t *testing.T, path string, body map[string]any, headers map[string]string) (int, map[string]any) {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var parsed map[string]any
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(&parsed); err != nil {
		parsed = nil
	}
	return resp.StatusCode, parsed
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	d, ok := body["data"].(map[string]any)
	require.True(t, ok, "response has no data envelope: %v", body)
	return d
}

func (f *fixture) register(t *testing.T, email, password string) map[string]any {
	status, body := f.post(t, "/register", map[string]any{"email": email, "password": password}, nil)
	require.Equal(t, fiber.StatusOK, status)
	d := data(t, body)
	require.Equal(t, true, d["success"])
	return d
}

func TestRegisterLoginRefreshFlow(t *testing.T) {
	f := newFixture(t, nil)

	registered := f.register(t, "a@x.com", "pw")
	assert.NotEmpty(t, registered["accessToken"])
	assert.NotEmpty(t, registered["refreshToken"])

	status, body := f.post(t, "/login", map[string]any{"email": "a@x.com", "password": "wrong"}, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, data(t, body)["authorized"])

	status, body = f.post(t, "/login", map[string]any{"email": "a@x.com", "password": "pw"}, nil)
	require.Equal(t, fiber.StatusOK, status)
	login := data(t, body)
	require.Equal(t, true, login["authorized"])
	refreshToken := login["refreshToken"].(string)

	status, body = f.post(t, "/refresh", map[string]any{"token": refreshToken}, nil)
	require.Equal(t, fiber.StatusOK, status)
	refreshed := data(t, body)
	require.Equal(t, true, refreshed["success"])
	assert.NotEmpty(t, refreshed["accessToken"])
	rotated := refreshed["refreshToken"].(string)
	assert.NotEqual(t, refreshToken, rotated)

	// The redeemed token was rotated away.
	status, body = f.post(t, "/refresh", map[string]any{"token": refreshToken}, nil)
	require.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, false, data(t, body)["success"])

	// Its replacement works.
	status, body = f.post(t, "/refresh", map[string]any{"token": rotated}, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, data(t, body)["success"])
}

func TestRegisterValidationAndDuplicates(t *testing.T) {
	f := newFixture(t, nil)

	status, _ := f.post(t, "/register", map[string]any{"email": "a@x.com"}, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	f.register(t, "a@x.com", "pw")

	status, body := f.post(t, "/register", map[string]any{"email": "a@x.com", "password": "other"}, nil)
	require.Equal(t, fiber.StatusOK, status)
	d := data(t, body)
	assert.Equal(t, false, d["success"])
	assert.Contains(t, d["message"], "already in use")
	assert.Empty(t, d["accessToken"])
}

func TestChangePasswordFlow(t *testing.T) {
	f := newFixture(t, nil)
	registered := f.register(t, "a@x.com", "old-pw")
	access := registered["accessToken"].(string)
	oldRefresh := registered["refreshToken"].(string)
	authz := map[string]string{"Authorization": "Bearer " + access}

	t.Run("requires bearer token", func(t *testing.T) {
		status, _ := f.post(t, "/change-password",
			map[string]any{"email": "a@x.com", "password": "old-pw", "newPassword": "new-pw"}, nil)
		assert.Equal(t, fiber.StatusUnauthorized, status)
	})

	t.Run("rejects wrong current password", func(t *testing.T) {
		status, _ := f.post(t, "/change-password",
			map[string]any{"email": "a@x.com", "password": "nope", "newPassword": "new-pw"}, authz)
		assert.Equal(t, fiber.StatusBadRequest, status)
	})

	t.Run("changes password and revokes sessions", func(t *testing.T) {
		status, body := f.post(t, "/change-password",
			map[string]any{"email": "a@x.com", "password": "old-pw", "newPassword": "new-pw"}, authz)
		require.Equal(t, fiber.StatusOK, status)
		d := data(t, body)
		assert.NotEmpty(t, d["accessToken"])
		assert.NotEmpty(t, d["refreshToken"])

		status, body = f.post(t, "/login", map[string]any{"email": "a@x.com", "password": "new-pw"}, nil)
		require.Equal(t, fiber.StatusOK, status)
		assert.Equal(t, true, data(t, body)["authorized"])

		status, body = f.post(t, "/login", map[string]any{"email": "a@x.com", "password": "old-pw"}, nil)
		require.Equal(t, fiber.StatusOK, status)
		assert.Equal(t, false, data(t, body)["authorized"])

		// Pre-change refresh tokens are dead.
		status, _ = f.post(t, "/refresh", map[string]any{"token": oldRefresh}, nil)
		assert.Equal(t, fiber.StatusUnauthorized, status)
	})
}

func TestResetPasswordFlow(t *testing.T) {
	f := newFixture(t, nil)
	registered := f.register(t, "a@x.com", "old-pw")
	oldRefresh := registered["refreshToken"].(string)

	// Unknown address gets the same 201 as a known one.
	status, _ := f.post(t, "/reset-password", map[string]any{"email": "nobody@x.com"}, nil)
	assert.Equal(t, fiber.StatusCreated, status)

	status, _ = f.post(t, "/reset-password", map[string]any{"email": "a@x.com"}, nil)
	require.Equal(t, fiber.StatusCreated, status)
	identifier := f.delivery.last(t)

	status, body := f.post(t, "/do-reset-password",
		map[string]any{"token": "wrong-token", "password": "new-pw"}, nil)
	require.Equal(t, fiber.StatusOK, status)
	d := data(t, body)
	assert.Equal(t, false, d["success"])
	assert.Equal(t, "INVALID_TOKEN", d["reason"])

	status, body = f.post(t, "/do-reset-password",
		map[string]any{"token": identifier, "password": "new-pw"}, nil)
	require.Equal(t, fiber.StatusOK, status)
	d = data(t, body)
	require.Equal(t, true, d["success"])
	assert.NotEmpty(t, d["accessToken"])
	assert.NotEmpty(t, d["refreshToken"])

	// New password works, the old one does not.
	status, body = f.post(t, "/login", map[string]any{"email": "a@x.com", "password": "new-pw"}, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, data(t, body)["authorized"])

	status, body = f.post(t, "/login", map[string]any{"email": "a@x.com", "password": "old-pw"}, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, data(t, body)["authorized"])

	// Sessions from before the reset are gone.
	status, _ = f.post(t, "/refresh", map[string]any{"token": oldRefresh}, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	// The reset token is single use.
	status, body = f.post(t, "/do-reset-password",
		map[string]any{"token": identifier, "password": "again"}, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, data(t, body)["success"])
}

func TestMagicLoginFlow(t *testing.T) {
	f := newFixture(t, nil)

	status, _ := f.post(t, "/get-magic-login", map[string]any{"email": "not-an-email"}, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = f.post(t, "/get-magic-login", map[string]any{"email": "fresh@x.com"}, nil)
	require.Equal(t, fiber.StatusCreated, status)
	identifier := f.delivery.last(t)

	status, _ = f.post(t, "/magic-login", map[string]any{"identifier": "malformed"}, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body := f.post(t, "/magic-login", map[string]any{"identifier": identifier}, nil)
	require.Equal(t, fiber.StatusOK, status)
	d := data(t, body)
	require.Equal(t, true, d["authorized"])
	assert.NotEmpty(t, d["accessToken"])
	assert.NotEmpty(t, d["refreshToken"])

	// Second consumption fails and issues nothing.
	status, body = f.post(t, "/magic-login", map[string]any{"identifier": identifier}, nil)
	require.Equal(t, fiber.StatusOK, status)
	d = data(t, body)
	assert.Equal(t, false, d["authorized"])
	assert.Empty(t, d["accessToken"])

	// The provisioned account has no usable password.
	status, body = f.post(t, "/login", map[string]any{"email": "fresh@x.com", "password": ""}, nil)
	if status == fiber.StatusOK {
		assert.Equal(t, false, data(t, body)["authorized"])
	} else {
		assert.Equal(t, fiber.StatusBadRequest, status)
	}
}

func TestRoutesFollowEnabledMethods(t *testing.T) {
	t.Run("magic link disabled", func(t *testing.T) {
		f := newFixture(t, func(cfg *Config) { cfg.MagicLink = nil })

		status, _ := f.post(t, "/get-magic-login", map[string]any{"email": "a@x.com"}, nil)
		assert.Equal(t, fiber.StatusNotFound, status)

		status, _ = f.post(t, "/login", map[string]any{"email": "a@x.com", "password": "pw"}, nil)
		assert.Equal(t, fiber.StatusOK, status)
	})

	t.Run("local password disabled", func(t *testing.T) {
		f := newFixture(t, func(cfg *Config) { cfg.LocalPassword = nil })

		status, _ := f.post(t, "/login", map[string]any{"email": "a@x.com", "password": "pw"}, nil)
		assert.Equal(t, fiber.StatusNotFound, status)

		status, _ = f.post(t, "/refresh", map[string]any{"token": "x_y"}, nil)
		assert.Equal(t, fiber.StatusUnauthorized, status)
	})
}

func TestRateLimitDenied(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.RateLimit = &RateLimitConfig{Limiter: limiterFunc(denyAll)}
	})

	status, _ := f.post(t, "/login", map[string]any{"email": "a@x.com", "password": "pw"}, nil)
	assert.Equal(t, fiber.StatusTooManyRequests, status)
}

func TestRateLimitFailsOpen(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.RateLimit = &RateLimitConfig{
			Limiter: limiterFunc(func(context.Context, string, int, time.Duration) (bool, error) {
				return false, assert.AnError
			}),
		}
	})

	status, body := f.post(t, "/login", map[string]any{"email": "a@x.com", "password": "pw"}, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, data(t, body)["authorized"])
}

func TestStoreErrorYields500(t *testing.T) {
	f := newFixture(t, nil)
	f.store.failOn("query", assert.AnError)

	status, _ := f.post(t, "/login", map[string]any{"email": "a@x.com", "password": "pw"}, nil)
	assert.Equal(t, fiber.StatusInternalServerError, status)
}
