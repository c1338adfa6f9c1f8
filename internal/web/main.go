package web

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/template/html/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/asiradnan/saml/internal/auth"
	"github.com/asiradnan/saml/internal/config"
	accesslog "github.com/asiradnan/saml/internal/logger/adapter/fiber"
	"github.com/asiradnan/saml/internal/samlengine"
	"github.com/asiradnan/saml/internal/web/handler/admin/group"
	"github.com/asiradnan/saml/internal/web/handler/admin/party"
	adminuser "github.com/asiradnan/saml/internal/web/handler/admin/user"
	oidchandler "github.com/asiradnan/saml/internal/web/handler/auth/oidc"
	"github.com/asiradnan/saml/internal/web/handler/login"
	"github.com/asiradnan/saml/internal/web/handler/logout"
	"github.com/asiradnan/saml/internal/web/handler/whoami"
	authmiddleware "github.com/asiradnan/saml/internal/web/middleware/auth"
)

// Engines carries the SAML engine for the configured role. Exactly one of
// the two fields is set.
type Engines struct {
	IdP *samlengine.IdP
	SP  *samlengine.SP
}

// Service represents the web service.
type Service struct {
	App          *fiber.App
	cfg          *config.Config
	fastShutDown bool
	alive        atomic.Bool
	db           *gorm.DB
	authService  *auth.Service
}

// Start starts the web service on the given address.
func (s *Service) Start(addr string) error {
	var doneFiber = make(chan bool)

	go func() {
		if err := s.App.Listen(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Msgf("fiber listen error: %v", err)
		}

		doneFiber <- true
	}()

	<-doneFiber // wait for fiber to stop

	return nil
}

// WaitShutdown waits for graceful shutdown.
func (s *Service) WaitShutdown() {
	irqSig := make(chan os.Signal, 1)
	signal.Notify(irqSig, syscall.SIGINT, syscall.SIGTERM)

	// Wait interrupt or shutdown request through /shutdown
	sig := <-irqSig
	log.Info().Msgf("shutdown request (signal: %v)", sig)

	// Graceful shutdown for reverse proxies: set status to fail, so checkalive returns fail.
	if !s.fastShutDown {
		log.Info().Msgf(
			"graceful shutdown: return 503 while %d seconds to let LB to remove this pod from active targets",
			s.cfg.Webserver.ShutDownTime,
		)

		s.alive.Store(false)
		time.Sleep(time.Duration(s.cfg.Webserver.ShutDownTime) * time.Second)
	}

	// stop fiber http server
	serverShutdown := make(chan struct{})

	go func() {
		log.Info().Msg("stopping http server ...")

		err := s.App.Shutdown()
		if err != nil {
			log.Error().Err(err).Msg("")
		}

		serverShutdown <- struct{}{}
	}()

	<-serverShutdown
	log.Info().Msg("http server was stopped ... good bye...")
}

// New creates a new web service with the given configuration.
func New(cfg *config.Config, db *gorm.DB, engines Engines) *Service {
	if cfg == nil {
		panic("config cannot be nil")
	}

	if db == nil {
		panic("db cannot be nil")
	}

	httpFS := http.FS(templateEmbedFS{embeddedTemplates})
	templateEngine := html.NewFileSystem(httpFS, ".gohtml")

	// in debug mode, use local filesystem for templates
	if cfg.DevMode {
		templateEngine = html.New("./internal/web/templates", ".gohtml")
		templateEngine.ShouldReload = true

		log.Warn().Msg("debug mode enabled: using local filesystem for templates")
	}

	// Add template helper functions
	templateEngine.AddFunc("iterate", func(count int) []int {
		result := make([]int, count)
		for i := range result {
			result[i] = i
		}

		return result
	})
	templateEngine.AddFunc("add", func(a, b int) int {
		return a + b
	})
	templateEngine.AddFunc("sub", func(a, b int) int {
		return a - b
	})

	// create fiber app
	app := fiber.New(
		fiber.Config{
			ReadBufferSize:    8192,
			AppName:           cfg.Title,
			CaseSensitive:     true,
			Prefork:           false,
			Immutable:         true,
			Views:             templateEngine,
			PassLocalsToViews: true,
		},
	)

	// access logging through the shared zerolog config
	app.Use(accesslog.New(accesslog.Config{
		Config:        cfg.Log,
		CheckAliveURI: "/checkalive",
	}))

	// serve embedded static files
	app.Use("/static",
		filesystem.New(
			filesystem.Config{
				Root:       http.FS(embeddedStaticFiles),
				PathPrefix: "static",
				Browse:     cfg.Webserver.BrowseStatic,
			},
		),
	)

	// init web service
	service := &Service{
		cfg:         cfg,
		App:         app,
		db:          db,
		authService: auth.NewService(db),
	}
	service.alive.Store(true)

	app.Get("/checkalive", service.checkAlive)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// session auth middleware; SAML and metrics endpoints are exempt
	app.Use(authmiddleware.Middleware)

	switch cfg.Role {
	case config.RoleIdP:
		service.registerIdP(engines.IdP)
	case config.RoleSP:
		service.registerSP(engines.SP)
	}

	whoami.Handler.Init(app, cfg, db)
	logout.Handler.Init(app, cfg)

	// redirect root to whoami
	app.Get("/", func(c *fiber.Ctx) error {
		return c.Redirect(whoami.Path)
	})

	return service
}

// registerIdP mounts the identity provider routes: credential login, the
// admin area and the SAML issuance endpoints.
func (s *Service) registerIdP(engine *samlengine.IdP) {
	if engine == nil {
		log.Fatal().Msg("idp role configured but engine is nil")
		return
	}

	if err := login.Handler.Init(s.App, s.cfg, s.db); err != nil {
		log.Fatal().Err(err).Msg("failed to init login handler")
		return
	}

	oidchandler.Handler.Init(s.App, s.cfg, s.db)
	adminuser.Handler.Init(s.App, s.cfg, s.db)
	group.Handler.Init(s.App, s.cfg, s.db)
	party.Handler.Init(s.App, s.cfg, s.db, engine.Parties())

	s.App.Get("/saml/metadata", adaptor.HTTPHandlerFunc(engine.ServeMetadata))
	s.App.All("/saml/sso", adaptor.HTTPHandlerFunc(engine.ServeSSO))
}

// registerSP mounts the service provider routes. Login redirects to the
// partner identity provider; the assertion comes back on the ACS endpoint.
func (s *Service) registerSP(engine *samlengine.SP) {
	if engine == nil {
		log.Fatal().Msg("sp role configured but engine is nil")
		return
	}

	s.App.Get(login.Path, adaptor.HTTPHandlerFunc(engine.StartAuthFlow))
	s.App.All("/saml/*", adaptor.HTTPHandlerFunc(engine.ServeHTTP))
}

// checkAlive reports liveness; during graceful shutdown it returns 503 so
// load balancers drain this node.
func (s *Service) checkAlive(c *fiber.Ctx) error {
	if !s.alive.Load() {
		return c.SendStatus(fiber.StatusServiceUnavailable)
	}

	return c.SendStatus(fiber.StatusOK)
}
