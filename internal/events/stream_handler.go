package events

import (
	"net/http"

	"github.com/2beens/tableorder/internal/auth"
	"github.com/2beens/tableorder/internal/telemetry/tracing"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
)

// StreamHandler serves the long-lived admin event stream. The token rides in
// the query string since EventSource clients cannot set arbitrary headers -
// a known trade-off, intermediaries may log it.
type StreamHandler struct {
	hub     *Hub
	checker auth.Checker
}

func NewStreamHandler(hub *Hub, checker auth.Checker) *StreamHandler {
	return &StreamHandler{
		hub:     hub,
		checker: checker,
	}
}

func (handler *StreamHandler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/admin/orders/stream", handler.HandleStream).Methods("GET").Name("orders-stream")
}

func (handler *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "streamHandler.stream")
	defer span.End()

	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "no can do", http.StatusUnauthorized)
		span.SetStatus(codes.Error, "missing-token")
		return
	}

	// authenticate once, before registering; all later liveness checks
	// happen inside the hub broadcast loop
	session, err := handler.checker.Validate(ctx, token)
	if err != nil {
		log.Tracef("[invalid token] stream connect rejected")
		http.Error(w, "no can do", http.StatusUnauthorized)
		span.SetStatus(codes.Error, "invalid-token")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub, err := NewSubscriber(token, w)
	if err != nil {
		log.Errorf("stream connect for [%s]: %s", session.Username, err)
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		span.SetStatus(codes.Error, "streaming-unsupported")
		return
	}

	handler.hub.Register(sub)
	defer handler.hub.Unregister(sub)

	log.Printf("admin [%s] connected to order stream", session.Username)
	span.SetStatus(codes.Ok, "ok")

	select {
	case <-r.Context().Done():
		// client went away
	case <-sub.Done():
		// hub dropped us: failed send or dead session
	}

	log.Debugf("admin [%s] order stream closed", session.Username)
}
