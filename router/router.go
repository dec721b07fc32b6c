package router

import (
	"net/http"

	docHandler "collabdoc/internal/document"
	"collabdoc/internal/document/service"
	"collabdoc/middleware"
	"collabdoc/socket"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Setup(svc *service.DocumentService, hub *socket.Hub, auth *middleware.Authenticator,
	gatherer prometheus.Gatherer, corsOrigin string) http.Handler {
	mux := http.NewServeMux()

	// WebSocket. The hub authenticates after the upgrade.
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		socket.ServeWs(hub, w, r)
	})

	// REST API
	docHandler := docHandler.NewDocumentHandler(svc)
	protect := auth.AuthMiddleware

	mux.Handle("/api/documents", protect(http.HandlerFunc(docHandler.Documents)))
	mux.Handle("/api/documents/view", protect(http.HandlerFunc(docHandler.ViewDocument)))
	mux.Handle("/api/documents/recent", protect(http.HandlerFunc(docHandler.RecentDocuments)))
	mux.Handle("/api/documents/revision", protect(http.HandlerFunc(docHandler.GetRevision)))
	mux.Handle("/api/documents/revisions", protect(http.HandlerFunc(docHandler.ListRevisions)))
	mux.Handle("/api/documents/submit", protect(http.HandlerFunc(docHandler.SubmitForReview)))
	mux.Handle("/api/documents/review", protect(http.HandlerFunc(docHandler.SubmitReview)))
	mux.Handle("/api/documents/flags", protect(http.HandlerFunc(docHandler.DocumentFlags)))
	mux.Handle("/api/flags", protect(http.HandlerFunc(docHandler.GetFlag)))
	mux.Handle("/api/flags/vote", protect(http.HandlerFunc(docHandler.CastVote)))

	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return middleware.CORSMiddleware(corsOrigin)(mux)
}
