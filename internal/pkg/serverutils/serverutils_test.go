package serverutils

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Query string `json:"query" validate:"required"`
	Limit int    `json:"limit" validate:"max=5"`
}

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, ValidateRequest(sampleRequest{Query: "q"}))

	err := ValidateRequest(sampleRequest{Limit: 9})
	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, []FieldError{
		{Field: "Query", Rule: "required"},
		{Field: "Limit", Rule: "max"},
	}, validationErr.Fields)
}

func TestErrorHandlerMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(ErrorHandlerMiddleware())
	app.Get("/invalid", func(c *fiber.Ctx) error { return ValidateRequest(sampleRequest{}) })
	app.Get("/conflict", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusConflict, "busy") })
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("secret detail") })

	cases := []struct {
		path    string
		status  int
		message string
	}{
		{"/invalid", http.StatusBadRequest, "Invalid request"},
		{"/conflict", http.StatusConflict, "busy"},
		{"/boom", http.StatusInternalServerError, "Internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, tc.path, nil))
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)

			var body BaseResponse[interface{}]
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.False(t, body.Success)
			assert.Equal(t, tc.message, body.Message)
		})
	}
}

func TestSessionMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(SessionMiddleware("sid"))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(SessionId(c)) })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.Len(t, resp.Cookies(), 1)
	minted := resp.Cookies()[0]
	_, err = uuid.Parse(minted.Value)
	assert.NoError(t, err)
	assert.Equal(t, http.SameSiteLaxMode, minted.SameSite)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "not-a-uuid"})
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Len(t, resp.Cookies(), 1)
	assert.NotEqual(t, "not-a-uuid", resp.Cookies()[0].Value)

	known := uuid.NewString()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: known})
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Empty(t, resp.Cookies())
}
