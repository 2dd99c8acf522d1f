package router

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "medication-reminder/docs"
	memlock "medication-reminder/internal/adapters/lock/memory"
	"medication-reminder/internal/adapters/lock/redislock"
	"medication-reminder/internal/adapters/notify/redispush"
	mem "medication-reminder/internal/adapters/storage/memory"
	pg "medication-reminder/internal/adapters/storage/postgres"
	"medication-reminder/internal/domain/medications"
	"medication-reminder/internal/domain/transitions"
	"medication-reminder/internal/middleware"
	"medication-reminder/internal/notify"
	"medication-reminder/internal/platform/logger"
	"medication-reminder/internal/ports/auth"
	"medication-reminder/internal/ports/capabilities"
	"medication-reminder/internal/ports/lock"
)

type Options struct {
	AuthVerifier auth.AuthVerifier // puede ser nil (modo dev)

	// Opcional: si viene, usa Postgres. Si no, in-memory.
	DB *sql.DB

	// Opcional: lock distribuido + canal push. Si no, lock en memoria.
	Redis                 redis.UniversalClient
	LockTTL               time.Duration
	LockWait              time.Duration
	PushRequireSubscriber bool

	Logger       logger.Logger
	Capabilities capabilities.CapabilitiesResolver // nil = sin gating por plan
	Senders      []notify.Sender                   // email / sms / device
	// DispatchTimeout acota cada dispatch async.
	DispatchTimeout time.Duration

	Now func() time.Time // tests
}

// App agrupa lo que arma Build: el handler HTTP y las piezas que además
// necesitan los jobs y el shutdown.
type App struct {
	Handler     http.Handler
	Repo        medications.Repository
	Deliveries  notify.DeliveryRepository
	Medications *medications.Service
	Engine      *transitions.Engine
	Dispatcher  *notify.Dispatcher
}

func NewRouter(opts Options) http.Handler {
	return Build(opts).Handler
}

func Build(opts Options) *App {
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}

	var (
		repo       medications.Repository
		deliveries notify.DeliveryRepository
	)
	if opts.DB != nil {
		repo = pg.NewMedicationsRepo(opts.DB)
		deliveries = pg.NewDeliveriesRepo(opts.DB)
	} else {
		repo = mem.NewMedicationRepo()
		deliveries = mem.NewDeliveryRepo()
	}

	var locker lock.Locker
	senders := append([]notify.Sender(nil), opts.Senders...)
	if opts.Redis != nil {
		locker = redislock.New(opts.Redis, redislock.Options{
			TTL:    opts.LockTTL,
			Wait:   opts.LockWait,
			Logger: log,
		})
		senders = append(senders, redispush.New(opts.Redis, redispush.Options{
			RequireSubscriber: opts.PushRequireSubscriber,
		}))
	} else {
		locker = memlock.NewLocker()
	}

	dispatcher := notify.NewDispatcher(notify.Options{
		Senders:      senders,
		Capabilities: opts.Capabilities,
		Deliveries:   deliveries,
		Logger:       log,
		Timeout:      opts.DispatchTimeout,
	})

	// Services por módulo
	medsSvc := medications.NewService(repo, log)
	if opts.Now != nil {
		medsSvc = medsSvc.WithClock(opts.Now)
	}
	engine := transitions.NewEngine(transitions.Options{
		Repo:     repo,
		Locker:   locker,
		Notifier: dispatcher,
		Logger:   log,
		Now:      opts.Now,
	})

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Recover(log))

	r.Use(middleware.AuthContext(opts.AuthVerifier))
	r.Use(middleware.RequestLog(log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	// Rutas por módulo
	medications.RegisterRoutes(r, medsSvc, deliveries)
	transitions.RegisterRoutes(r, engine, medsSvc)

	return &App{
		Handler:     r,
		Repo:        repo,
		Deliveries:  deliveries,
		Medications: medsSvc,
		Engine:      engine,
		Dispatcher:  dispatcher,
	}
}
