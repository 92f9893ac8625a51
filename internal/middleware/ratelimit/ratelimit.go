package rateLimit

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

func Register() func(http.Handler) http.Handler {
	return limitByIP(5, time.Hour)
}

func Login() func(http.Handler) http.Handler {
	return limitByIP(10, 5*time.Minute)
}

func Refresh() func(http.Handler) http.Handler {
	return limitByIP(30, 10*time.Minute)
}

func Logout() func(http.Handler) http.Handler {
	return limitByIP(20, 10*time.Minute)
}

func limitByIP(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.LimitByIP(limit, window)
}
