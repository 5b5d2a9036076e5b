package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRequireRole_Allowed(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithPrincipal(req.Context(), "u1", "physician"))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := RequireRole("physician", "nurse")(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithPrincipal(req.Context(), "u1", "pharmacist"))
	c := e.NewContext(req, httptest.NewRecorder())

	err := RequireRole("physician", "nurse")(okHandler)(c)
	expectStatus(t, err, http.StatusForbidden)
}

func TestRequireRole_AdminBypass(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithPrincipal(req.Context(), "root", "admin"))
	c := e.NewContext(req, httptest.NewRecorder())

	if err := RequireRole("physician")(okHandler)(c); err != nil {
		t.Fatalf("admin should pass any role check, got %v", err)
	}
}

func TestRequireRole_NoRoles(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	err := RequireRole("physician")(okHandler)(c)
	expectStatus(t, err, http.StatusForbidden)
}

func TestHasRole(t *testing.T) {
	tests := []struct {
		granted  []string
		required []string
		want     bool
	}{
		{[]string{"nurse"}, []string{"nurse"}, true},
		{[]string{"nurse"}, []string{"physician"}, false},
		{[]string{"admin"}, []string{"physician"}, true},
		{nil, []string{"nurse"}, false},
		{[]string{"nurse"}, nil, false},
	}
	for _, tt := range tests {
		if got := HasRole(tt.granted, tt.required...); got != tt.want {
			t.Errorf("HasRole(%v, %v) = %v, want %v", tt.granted, tt.required, got, tt.want)
		}
	}
}
