package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"seventweets/pkg/types"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func serveGated(g *Gate, token string, setToken bool) *httptest.ResponseRecorder {
	e := echo.New()
	e.POST("/tweets", func(c echo.Context) error {
		return c.NoContent(http.StatusCreated)
	}, g.Middleware())

	req := httptest.NewRequest(http.MethodPost, "/tweets", nil)
	if setToken {
		req.Header.Set(types.HeaderAPIToken, token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestGate_Middleware(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		presented  string
		setToken   bool
		wantStatus int
	}{
		{"valid token", "secret", "secret", true, http.StatusCreated},
		{"wrong token", "secret", "guess", true, http.StatusUnauthorized},
		{"prefix of token", "secret", "secre", true, http.StatusUnauthorized},
		{"missing header", "secret", "", false, http.StatusUnauthorized},
		{"empty header", "secret", "", true, http.StatusUnauthorized},
		{"open gate without header", "", "", false, http.StatusCreated},
		{"open gate with any token", "", "anything", true, http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate(tt.configured, zaptest.NewLogger(t))
			rec := serveGated(g, tt.presented, tt.setToken)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.JSONEq(t, `{}`, rec.Body.String())
			}
		})
	}
}

func TestGate_Admit(t *testing.T) {
	g := NewGate("secret", nil)
	assert.False(t, g.Open())
	assert.True(t, g.Admit("secret"))
	assert.False(t, g.Admit("SECRET"))
	assert.False(t, g.Admit(""))

	open := NewGate("", nil)
	assert.True(t, open.Open())
	assert.True(t, open.Admit(""))
}
