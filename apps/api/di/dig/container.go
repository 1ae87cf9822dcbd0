package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/companion/apps/api/echo"
	"github.com/trezcool/companion/core"
	"github.com/trezcool/companion/core/course"
	"github.com/trezcool/companion/core/gate"
	"github.com/trezcool/companion/core/identity"
	"github.com/trezcool/companion/core/rolerequest"
	"github.com/trezcool/companion/core/user"
	emailsvc "github.com/trezcool/companion/services/email"
	"github.com/trezcool/companion/services/identity/firebase"
	logsvc "github.com/trezcool/companion/services/logger"
	"github.com/trezcool/companion/storage/database"
	inmemdb "github.com/trezcool/companion/storage/database/inmem"
	sqlxrepos "github.com/trezcool/companion/storage/database/sqlx"
	"github.com/trezcool/companion/storage/docstore/redisdoc"
)

// Storage backends
const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// Options tune the container for the program using it.
	Options struct {
		// AutoMigrate applies pending migrations when the postgres backend is opened.
		AutoMigrate bool
	}

	// Storage holds the repositories of the configured backend.
	Storage struct {
		Profiles    user.Repository
		Requests    rolerequest.Repository
		Credentials identity.CredentialRepository
		Denylist    identity.Denylist
		Courses     course.Repository
		SQL         *sqlx.DB // postgres only
		close       func() error
	}

	serverParams struct {
		dig.In

		Conf       *core.Config
		Logger     core.Logger
		Gate       *gate.Gate
		Profiles   *user.Service
		Courses    *course.Service
		Storage    *Storage
		Validate   *validator.Validate
		Translator ut.Translator
		Metrics    *echoapi.Metrics
	}
)

func (s *Storage) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	for _, w := range conf.Warnings {
		logger.Warn(w)
	}
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func newStorage(conf *core.Config, opts Options, loggerParam DBLoggerParam) *Storage {
	logger := loggerParam.Logger

	setUp := func() (*Storage, error) {
		switch conf.StorageBackend {
		case StorageMemory:
			logger.Warn("using the in-memory storage: data is lost on exit")
			db := inmemdb.Open()
			return &Storage{
				Profiles:    inmemdb.NewProfileRepository(db),
				Requests:    inmemdb.NewRoleRequestRepository(db),
				Credentials: inmemdb.NewCredentialRepository(db),
				Denylist:    inmemdb.NewDenylist(db),
				Courses:     inmemdb.NewCourseRepository(db),
			}, nil

		case StorageRedis:
			client, err := redisdoc.Open(conf)
			if err != nil {
				return nil, err
			}
			return &Storage{
				Profiles:    redisdoc.NewProfileRepository(client),
				Requests:    redisdoc.NewRoleRequestRepository(client),
				Credentials: redisdoc.NewCredentialRepository(client),
				Denylist:    redisdoc.NewDenylist(client),
				Courses:     redisdoc.NewCourseRepository(client),
				close:       client.Close,
			}, nil

		case StoragePostgres:
			if err := database.CreateIfNotExist(conf); err != nil {
				return nil, err
			}
			db, err := database.Open(conf)
			if err != nil {
				return nil, err
			}
			if opts.AutoMigrate {
				if err = database.Migrate(context.Background(), db, "up"); err != nil {
					_ = db.Close()
					return nil, err
				}
			}
			return &Storage{
				Profiles:    sqlxrepos.NewProfileRepository(db),
				Requests:    sqlxrepos.NewRoleRequestRepository(db),
				Credentials: sqlxrepos.NewCredentialRepository(db),
				Denylist:    sqlxrepos.NewDenylist(db),
				Courses:     sqlxrepos.NewCourseRepository(db),
				SQL:         db,
				close:       db.Close,
			}, nil

		default:
			return nil, errors.Errorf("unknown storage backend %q", conf.StorageBackend)
		}
	}

	s, err := setUp()
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up %s storage: %v", conf.StorageBackend, err), err)
	}
	return s
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug || conf.SendgridAPIKey == "" {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

// newProvider returns the configured credential service. LocalProvider is returned as is so that
// its password management is reachable through type assertions.
func newProvider(
	conf *core.Config,
	logger core.Logger,
	storage *Storage,
	mailSvc core.EmailService,
	validate *validator.Validate,
) identity.Provider {
	switch conf.IdentityBackend {
	case "firebase":
		if !conf.Firebase.IsComplete() {
			logger.Warn("firebase identity backend selected with an incomplete configuration")
		}
		return firebase.NewProvider(conf, logger)
	default:
		return identity.NewLocalProvider(storage.Credentials, mailSvc, validate, conf)
	}
}

func newProfileService(storage *Storage) *user.Service {
	return user.NewService(storage.Profiles)
}

func newCourseService(storage *Storage, validate *validator.Validate) *course.Service {
	return course.NewService(storage.Courses, validate)
}

func newGate(
	provider identity.Provider,
	profiles *user.Service,
	storage *Storage,
	validate *validator.Validate,
	logger core.Logger,
	mailSvc core.EmailService,
) (*gate.Gate, error) {
	return gate.New(gate.Deps{
		Provider: provider,
		Profiles: profiles,
		Requests: storage.Requests,
		Validate: validate,
		Logger:   logger,
		MailSvc:  mailSvc,
	})
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:       p.Conf,
		Logger:     p.Logger,
		Gate:       p.Gate,
		Profiles:   p.Profiles,
		Courses:    p.Courses,
		Denylist:   p.Storage.Denylist,
		Validate:   p.Validate,
		Translator: p.Translator,
		Metrics:    p.Metrics,
	})
}

// New returns a new dependency injection dig.Container
func New(opts Options) *dig.Container {
	c := dig.New()

	must(c.Provide(func() Options { return opts }))
	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStorage))
	must(c.Provide(newEmailService))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(core.NewValidator))
	must(c.Provide(newProvider))
	must(c.Provide(newProfileService))
	must(c.Provide(newCourseService))
	must(c.Provide(newGate))
	must(c.Provide(echoapi.NewMetrics))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
