// Package daemon wires configuration, storage, the SAML engine and the web
// service into a runnable node.
package daemon

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/gofiber/storage"
	sessionmysql "github.com/gofiber/storage/mysql"
	sessionsqlite "github.com/gofiber/storage/sqlite3"
	"github.com/rs/zerolog/log"
	gormmysql "gorm.io/driver/mysql"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/asiradnan/saml/internal/auth"
	"github.com/asiradnan/saml/internal/config"
	"github.com/asiradnan/saml/internal/db/dsn"
	"github.com/asiradnan/saml/internal/db/models"
	"github.com/asiradnan/saml/internal/identity"
	"github.com/asiradnan/saml/internal/samlengine"
	"github.com/asiradnan/saml/internal/web"
	"github.com/asiradnan/saml/internal/web/session"
)

// Daemon represents the main application daemon.
type Daemon struct {
	cfg        *config.Config
	webService *web.Service
}

// Start starts the Daemon's web service and blocks until shutdown.
func (d *Daemon) Start() error {
	go d.webService.WaitShutdown()

	return d.webService.Start(fmt.Sprintf(":%d", d.cfg.Webserver.Port))
}

// New creates a new Daemon instance with the provided configuration.
func New(cfg *config.Config) *Daemon {
	if cfg == nil {
		log.Fatal().Msg("config is nil")
		return nil
	}

	db := openDatabase(cfg)

	if err := db.AutoMigrate(
		&models.User{},
		&models.Group{},
		&models.UserGroup{},
		&models.Party{},
	); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
		return nil
	}

	seed(cfg, db)

	session.Init(sessionStorage(cfg))

	engines := buildEngines(cfg, db)

	return &Daemon{
		cfg:        cfg,
		webService: web.New(cfg, db, engines),
	}
}

func openDatabase(cfg *config.Config) *gorm.DB {
	var dialector gorm.Dialector

	if cfg.DB.GormEngine == "sqlite" {
		dialector = gormsqlite.Open(dsn.Create(cfg))
	} else {
		dialector = gormmysql.Open(dsn.Create(cfg))
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
		return nil
	}

	return db
}

// sessionStorage picks the fiber storage backend matching the database
// engine so a node needs exactly one datastore.
func sessionStorage(cfg *config.Config) storage.Storage {
	if cfg.DB.GormEngine == "sqlite" {
		return sessionsqlite.New(sessionsqlite.Config{
			Database: cfg.DB.Name,
			Table:    "sessions",
		})
	}

	return sessionmysql.New(sessionmysql.Config{
		ConnectionURI: dsn.Create(cfg),
		Table:         "sessions",
	})
}

// buildEngines creates the SAML engine for the configured role.
func buildEngines(cfg *config.Config, db *gorm.DB) web.Engines {
	baseURL, err := url.Parse(cfg.Webserver.URL)
	if err != nil {
		log.Fatal().Err(err).Str("url", cfg.Webserver.URL).Msg("invalid webserver url")
		return web.Engines{}
	}

	switch cfg.Role {
	case config.RoleIdP:
		return web.Engines{IdP: buildIdP(cfg, db, baseURL)}
	case config.RoleSP:
		return web.Engines{SP: buildSP(cfg, db, baseURL)}
	default:
		log.Fatal().Str("role", cfg.Role).Msg("unknown role")
		return web.Engines{}
	}
}

func buildIdP(cfg *config.Config, db *gorm.DB, baseURL *url.URL) *samlengine.IdP {
	key, cert, err := samlengine.LoadKeyPair(cfg.IdP.CertFile, cfg.IdP.KeyFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load idp signing key pair")
		return nil
	}

	engine, err := samlengine.NewIdP(samlengine.IdPOptions{
		BaseURL:       baseURL,
		Key:           key,
		Certificate:   cert,
		DB:            db,
		Builder:       identity.NewBuilder(nil),
		LoginPath:     "/login",
		SessionExpiry: time.Duration(cfg.IdP.SessionExpiry) * time.Second,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize idp engine")
		return nil
	}

	seedParties(cfg, db)

	if err := engine.Parties().Reload(context.Background()); err != nil {
		log.Error().Err(err).Msg("failed to load relying party registry")
	}

	return engine
}

func buildSP(cfg *config.Config, db *gorm.DB, baseURL *url.URL) *samlengine.SP {
	key, cert, err := samlengine.LoadKeyPair(cfg.SP.CertFile, cfg.SP.KeyFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load sp signing key pair")
		return nil
	}

	var metadataXML string

	if cfg.SP.IDPMetadataFile != "" {
		raw, err := os.ReadFile(cfg.SP.IDPMetadataFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.SP.IDPMetadataFile).Msg("failed to read idp metadata file")
			return nil
		}

		metadataXML = string(raw)
	}

	engine, err := samlengine.NewSP(context.Background(), samlengine.SPOptions{
		BaseURL:        baseURL,
		EntityID:       cfg.SP.EntityID,
		Key:            key,
		Certificate:    cert,
		IDPMetadataURL: cfg.SP.IDPMetadataURL,
		IDPMetadataXML: metadataXML,
		Service:        auth.NewService(db),
		SessionExpiry:  time.Duration(cfg.SP.SessionExpiry) * time.Second,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize sp engine")
		return nil
	}

	return engine
}

// seedParties upserts the relying parties declared in the config file. The
// admin UI can add more at runtime; config wins for entity IDs it names.
func seedParties(cfg *config.Config, db *gorm.DB) {
	for _, declared := range cfg.IdP.Parties {
		metadataXML := ""

		if declared.MetadataFile != "" {
			raw, err := os.ReadFile(declared.MetadataFile)
			if err != nil {
				log.Error().Err(err).Str("file", declared.MetadataFile).Msg("failed to read party metadata file")
				continue
			}

			metadataXML = string(raw)
		}

		party := models.Party{
			EntityID:            declared.EntityID,
			Name:                declared.Name,
			MetadataURL:         declared.MetadataURL,
			MetadataXML:         metadataXML,
			Convention:          declared.Convention,
			RequestedAttributes: declared.RequestedAttributes,
			Active:              true,
		}

		var existing models.Party
		if err := db.Where("entity_id = ?", declared.EntityID).First(&existing).Error; err == nil {
			party.ID = existing.ID
		}

		if err := db.Save(&party).Error; err != nil {
			log.Error().Err(err).Str("party", declared.EntityID).Msg("failed to seed relying party")
		}
	}
}
