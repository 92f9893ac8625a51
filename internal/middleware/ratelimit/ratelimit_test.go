package rateLimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func post(t *testing.T, h http.Handler, remoteAddr string) int {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/register", nil)
	req.RemoteAddr = remoteAddr

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	return rr.Code
}

func TestRegister_LimitsPerClient(t *testing.T) {
	h := Register()(okHandler())

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, post(t, h, "10.0.0.1:1234"))
	}

	assert.Equal(t, http.StatusTooManyRequests, post(t, h, "10.0.0.1:1234"))

	// One client exhausting its bucket must not lock everyone else out.
	assert.Equal(t, http.StatusOK, post(t, h, "192.168.7.7:5555"))
}
