package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"clientportal/config"
	"clientportal/models"
	"clientportal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func protectedApp(t *testing.T) (*fiber.App, *models.User) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, config.MigrateDB(db))

	prevDB := config.DB
	prevSecret := config.AppConfig.JWTSecret
	config.DB = db
	config.AppConfig.JWTSecret = "test-secret"
	t.Cleanup(func() {
		config.DB = prevDB
		config.AppConfig.JWTSecret = prevSecret
	})

	user := &models.User{Email: "owner@example.com", IsActive: true}
	require.NoError(t, db.Create(user).Error)

	app := fiber.New()
	app.Get("/me", Protected(), func(c *fiber.Ctx) error {
		u := c.Locals("user").(*models.User)
		return c.JSON(fiber.Map{"id": u.ID})
	})
	return app, user
}

func TestProtectedResolvesBearerToken(t *testing.T) {
	app, user := protectedApp(t)

	token, err := utils.GenerateJWTToken(user)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProtectedRejectsBadTokens(t *testing.T) {
	app, user := protectedApp(t)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "missing token")

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "garbage token")

	// A bumped token version invalidates previously issued tokens.
	token, err := utils.GenerateJWTToken(user)
	require.NoError(t, err)
	require.NoError(t, config.DB.Model(user).Update("token_version", user.TokenVersion+1).Error)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "stale token version")
}
