package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"voicebot/internal/auth"
)

func serve(t *testing.T, businessID, role string, allowed ...string) int {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), "u", businessID, role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}, RequireBusiness(), RequireAnyRole(allowed...), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w.Code
}

func TestRequireAnyRole(t *testing.T) {
	cases := []struct {
		name     string
		business string
		role     string
		want     int
	}{
		{"owner allowed", "b1", RoleOwner, http.StatusOK},
		{"staff forbidden", "b1", RoleStaff, http.StatusForbidden},
		{"support bypasses", "b1", RoleSupport, http.StatusOK},
		{"business required", "", RoleOwner, http.StatusUnauthorized},
		{"role required", "b1", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := serve(t, tc.business, tc.role, RoleOwner); got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}
