package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

func NewRouter(ps *PartyServer) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/party/{room}", ps.Connect).Methods(http.MethodGet)
	r.HandleFunc("/rooms", ps.Rooms).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{room}", ps.Room).Methods(http.MethodGet)
	r.HandleFunc("/protocol/schema", ps.Schema).Methods(http.MethodGet)
	r.HandleFunc("/health", ps.Health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return r
}

func NewHTTPServer(listen string, ps *PartyServer, allowedOrigins []string) *http.Server {
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	})

	return &http.Server{
		Addr:              listen,
		Handler:           c.Handler(NewRouter(ps)),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
