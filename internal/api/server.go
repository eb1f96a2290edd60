package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/core/fee"
	"github.com/vietddude/custody/internal/core/guardian"
	"github.com/vietddude/custody/internal/core/ledger"
	"github.com/vietddude/custody/internal/core/recovery"
	"github.com/vietddude/custody/internal/core/wallet"
	"github.com/vietddude/custody/internal/health"
)

// Services are the custody components exposed over HTTP.
type Services struct {
	Wallets   *wallet.Service
	Ledger    *ledger.Ledger
	Guardians *guardian.Registry
	Recovery  *recovery.Engine
	Fees      *fee.Settlement

	// Depositors may credit any wallet. With none configured, deposits
	// are refused.
	Depositors []domain.Principal
}

// Server exposes the custody API, health and metrics on one port.
type Server struct {
	svc    Services
	server *http.Server
}

// NewServer creates a new API server.
func NewServer(svc Services, monitor *health.Monitor, port int) *Server {
	s := &Server{svc: svc}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(monitor),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the route tree.
func (s *Server) Router(monitor *health.Monitor) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	if monitor != nil {
		health.Mount(r, monitor)
	}

	r.Route("/v1", func(api chi.Router) {
		api.Get("/wallets/{owner}", s.getWallet)
		api.Get("/wallets/{owner}/balance", s.getBalance)
		api.Get("/transactions/{id}", s.getTransaction)
		api.Post("/transactions/{id}/approvals", s.approveTransaction)
		api.Post("/transactions/{id}/execute", s.executeTransaction)
		api.Get("/guardians/{owner}", s.getGuardians)
		api.Get("/guardians/{owner}/members/{guardian}", s.isGuardian)
		api.Get("/recoveries/{owner}", s.getRecovery)
		api.Post("/recoveries/{owner}/execute", s.executeRecovery)
		api.Post("/recoveries/{owner}/emergency", s.emergencyRecovery)
		api.Get("/treasury", s.getTreasury)

		api.Group(func(auth chi.Router) {
			auth.Use(requirePrincipal)
			auth.Post("/wallets", s.initializeWallet)
			auth.Put("/wallets/{owner}/threshold", s.setThreshold)
			auth.Post("/wallets/{owner}/deposits", s.deposit)
			auth.Post("/transactions", s.createWithdrawal)
			auth.Post("/guardians/{owner}/members", s.addGuardian)
			auth.Delete("/guardians/{owner}/members/{guardian}", s.removeGuardian)
			auth.Put("/guardians/{owner}/threshold", s.setGuardianThreshold)
			auth.Post("/recoveries/{owner}", s.initiateRecovery)
			auth.Post("/recoveries/{owner}/approvals", s.approveRecovery)
			auth.Post("/recoveries/{owner}/cancel", s.cancelRecovery)
		})
	})
	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
