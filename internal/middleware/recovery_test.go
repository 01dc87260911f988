package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPanicRecovery(t *testing.T) {
	panickyHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("ouch")
	})

	req := httptest.NewRequest("GET", "/orders", nil)
	rr := httptest.NewRecorder()

	assert.NotPanics(t, func() {
		PanicRecovery(nil)(panickyHandler).ServeHTTP(rr, req)
	})
}
