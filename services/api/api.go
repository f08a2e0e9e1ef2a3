package api

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"modguard/pkg/identity"
	"modguard/services/anomaly"
	"modguard/services/cases"
	"modguard/services/escalation"
	"modguard/services/evidence"
	"modguard/services/ledger"
	"modguard/services/timeline"
)

// Config controls runtime behaviour for the API handlers.
type Config struct {
	// RequestTimeout bounds each request through the chi timeout middleware.
	RequestTimeout time.Duration
}

// API wires the moderation services into HTTP handlers.
type API struct {
	store     *Store
	sm        *cases.StateMachine
	engine    *escalation.Engine
	ledger    *ledger.Ledger
	builder   *timeline.Builder
	scorer    *anomaly.Scorer
	collector *evidence.Collector
	identity  identity.Provider
	logger    *log.Logger
	config    Config
}

// New initialises the API layer.
func New(store *Store, sm *cases.StateMachine, engine *escalation.Engine, lg *ledger.Ledger,
	builder *timeline.Builder, scorer *anomaly.Scorer, collector *evidence.Collector,
	provider identity.Provider, logger *log.Logger, cfg Config) (*API, error) {

	if store == nil {
		return nil, errors.New("api: store is required")
	}
	if sm == nil {
		return nil, errors.New("api: state machine is required")
	}
	if engine == nil {
		return nil, errors.New("api: escalation engine is required")
	}
	if lg == nil {
		return nil, errors.New("api: ledger is required")
	}
	if builder == nil {
		return nil, errors.New("api: timeline builder is required")
	}
	if scorer == nil {
		return nil, errors.New("api: scorer is required")
	}
	if collector == nil {
		return nil, errors.New("api: evidence collector is required")
	}
	if provider == nil {
		return nil, errors.New("api: identity provider is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	return &API{
		store:     store,
		sm:        sm,
		engine:    engine,
		ledger:    lg,
		builder:   builder,
		scorer:    scorer,
		collector: collector,
		identity:  provider,
		logger:    logger,
		config:    cfg,
	}, nil
}

// Routes constructs the chi router containing all API endpoints. The
// telemetry middleware is optional.
func (a *API) Routes(telemetry func(http.Handler) http.Handler) (http.Handler, error) {
	if a == nil {
		return nil, errors.New("nil api")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(a.config.RequestTimeout))
	if telemetry != nil {
		r.Use(telemetry)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", a.handleReady)
	r.Method("GET", "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/warnings", func(r chi.Router) {
			r.Post("/", a.handleIssueWarning)
			r.Get("/", a.handleListWarnings)
			r.Post("/{id}/acknowledge", a.handleAcknowledgeWarning)
			r.Post("/{id}/escalate", a.handleEscalateWarning)
		})

		r.Route("/restrictions", func(r chi.Router) {
			r.Post("/", a.handleCreateRestriction)
			r.Get("/", a.handleListRestrictions)
			r.Post("/{id}/lift", a.handleLiftRestriction)
			r.Post("/{id}/extend", a.handleExtendRestriction)
		})

		r.Route("/appeals", func(r chi.Router) {
			r.Post("/", a.handleCreateAppeal)
			r.Get("/", a.handleListAppeals)
			r.Post("/{id}/claim", a.handleClaimAppeal)
			r.Post("/{id}/decide", a.handleDecideAppeal)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Post("/", a.handleFileReport)
			r.Get("/", a.handleListReports)
			r.Post("/{id}/resolve", a.handleResolveReport)
			r.Post("/{id}/retract", a.handleRetractReport)
		})

		r.Route("/audit", func(r chi.Router) {
			r.Get("/records", a.handleListAuditRecords)
			r.Get("/alerts", a.handleListAlerts)
			r.Post("/verify", a.handleVerifyChain)
		})

		r.Get("/timeline/{kind}/{id}", a.handleTimeline)
		r.Get("/scores/{kind}/{id}", a.handleScore)
	})

	return r, nil
}

// userActor resolves the request principal as a plain user.
func (a *API) userActor(r *http.Request) (cases.Actor, error) {
	principal, err := a.identity.CurrentActor(r)
	if err != nil {
		return cases.Actor{}, &cases.Failure{Code: cases.CodeNotAuthorized, Message: "authentication required"}
	}
	return cases.Actor{
		ID:        principal.ID,
		Type:      ledger.ActorUser,
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}, nil
}

// moderatorActor resolves the request principal and requires the moderator
// or admin role.
func (a *API) moderatorActor(r *http.Request) (cases.Actor, error) {
	principal, err := a.identity.CurrentActor(r)
	if err != nil {
		return cases.Actor{}, &cases.Failure{Code: cases.CodeNotAuthorized, Message: "authentication required"}
	}
	if !principal.HasRole(identity.RoleModerator) && !principal.HasRole(identity.RoleAdmin) {
		return cases.Actor{}, &cases.Failure{Code: cases.CodeNotAuthorized, Message: "moderator role required"}
	}
	return cases.Actor{
		ID:        principal.ID,
		Type:      ledger.ActorModerator,
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}, nil
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (a *API) logf(format string, args ...any) {
	if a.logger == nil {
		return
	}
	a.logger.Printf(format, args...)
}
