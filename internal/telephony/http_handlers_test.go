package telephony

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestSign_KnownVector(t *testing.T) {
	// Twilio's published example for request validation.
	params := url.Values{
		"CallSid": {"CA1234567890ABCDE"},
		"Caller":  {"+12349013030"},
		"Digits":  {"1234"},
		"From":    {"+12349013030"},
		"To":      {"+18005551212"},
	}
	got := Sign("12345", "https://mycompany.com/myapp.php?foo=1&bar=2", params)
	if got != "0/KCTR6DLpKmkAf8muzZqo1nDgQ=" {
		t.Fatalf("unexpected signature %q", got)
	}
}

func TestSignatureMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SignatureMiddleware("tok", "https://voice.example.com/"))
	r.POST("/webhook/call-status", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	body := url.Values{"CallSid": {"CA1"}, "CallStatus": {"completed"}}
	sig := Sign("tok", "https://voice.example.com/webhook/call-status?x=1", body)

	cases := []struct {
		name string
		sig  string
		want int
	}{
		{"valid", sig, http.StatusNoContent},
		{"missing", "", http.StatusForbidden},
		{"tampered", sig[:len(sig)-2] + "x=", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/webhook/call-status?x=1", strings.NewReader(body.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			if tc.sig != "" {
				req.Header.Set(SignatureHeader, tc.sig)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, w.Code)
			}
		})
	}
}
