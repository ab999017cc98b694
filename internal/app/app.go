// Package app assembles the housekeeping services from a configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gorilla/mux"

	"github.com/Martyparty1988/Martyai/internal/api"
	"github.com/Martyparty1988/Martyai/internal/assist"
	"github.com/Martyparty1988/Martyai/internal/calendar"
	"github.com/Martyparty1988/Martyai/internal/commands"
	"github.com/Martyparty1988/Martyai/internal/config"
	"github.com/Martyparty1988/Martyai/internal/coordinator"
	"github.com/Martyparty1988/Martyai/internal/derive"
	"github.com/Martyparty1988/Martyai/internal/logging"
	"github.com/Martyparty1988/Martyai/internal/remote"
	"github.com/Martyparty1988/Martyai/internal/storage"
	"github.com/Martyparty1988/Martyai/internal/websocket"
)

// DatabaseFile is the SQLite file name inside the data directory.
const DatabaseFile = "housekeeping.db"

// App holds every long-lived component.
type App struct {
	Config *config.Config
	Log    logging.Logger

	DB           *storage.DB
	Reservations *storage.ReservationRepository
	Tasks        *storage.TaskRepository
	Queue        *storage.QueueRepository

	Hub         *websocket.Hub
	Events      *websocket.EventBroadcaster
	Monitor     *coordinator.Monitor
	Submitter   remote.Submitter
	Coordinator *coordinator.Coordinator
	Scheduler   *coordinator.Scheduler
	Commands    *commands.Service
}

// New opens the database and wires the services. The hub, the coordinator
// loop and the scheduler are not started.
func New(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	db, err := storage.Open(ctx, filepath.Join(cfg.DataDir, DatabaseFile))
	if err != nil {
		return nil, err
	}

	submitter, err := remote.New(cfg.Remote, log.With("component", "remote"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating remote submitter: %w", err)
	}

	a := &App{Config: cfg, Log: log, DB: db, Submitter: submitter}

	a.Hub = websocket.NewHub(log.With("component", "websocket"))
	a.Events = websocket.NewEventBroadcaster(a.Hub, log)
	a.Monitor = coordinator.NewMonitor(cfg.StartOnline())
	a.Queue = storage.NewQueueRepository(db)

	journal := coordinator.NewJournal(a.Monitor, a.Queue, submitter, a.Events, log.With("component", "journal"))
	a.Reservations = storage.NewReservationRepository(db, journal)
	a.Tasks = storage.NewTaskRepository(db, journal)

	var (
		deriveAssistant  derive.Assistant
		commandAssistant commands.Assistant
	)
	if cfg.Assistant.Enabled() {
		client := assist.NewClient(cfg.Assistant, cfg.Properties)
		deriveAssistant = client
		commandAssistant = client
	}

	fetcher := calendar.NewFetcher(storage.NewFeedCacheRepository(db), log.With("component", "fetch"))
	feeds := calendar.NewFeedSync(fetcher, a.Reservations, log.With("component", "feeds"))
	engine := derive.NewEngine(a.Tasks, deriveAssistant, log.With("component", "derive"))

	a.Coordinator = coordinator.New(
		feeds,
		a.Reservations,
		a.Tasks,
		engine,
		a.Queue,
		submitter,
		a.Monitor,
		a.Events,
		log.With("component", "coordinator"),
		coordinator.Options{
			Feeds:           coordinator.FeedsFromConfig(cfg.Properties),
			Recurring:       cfg.Recurring,
			HorizonDays:     cfg.Sync.HorizonDays,
			ContinueOnError: cfg.ContinueOnError(),
		},
	)
	// The log backend has no remote to probe.
	var pinger coordinator.Pinger
	if cfg.Remote.Kind != remote.KindLog {
		pinger = submitter
	}
	a.Scheduler = coordinator.NewScheduler(a.Coordinator, pinger, cfg.Sync.Refresh, cfg.Sync.ProbeInterval, log.With("component", "scheduler"))
	a.Commands = commands.NewService(a.Tasks, a.Reservations, commandAssistant, cfg.Properties, log.With("component", "commands"))

	return a, nil
}

// Router returns the HTTP API over the app's services.
func (a *App) Router() *mux.Router {
	return api.NewRouter(api.Services{
		DB:           a.DB,
		Hub:          a.Hub,
		Reservations: a.Reservations,
		Tasks:        a.Tasks,
		Queue:        a.Queue,
		Sync:         a.Coordinator,
		Monitor:      a.Monitor,
		Scheduler:    a.Scheduler,
		Commands:     a.Commands,
		Properties:   a.Config.Properties,
		StaticDir:    a.Config.StaticDir,
		Log:          a.Log,
	})
}

// Close releases the remote submitter and the database.
func (a *App) Close() error {
	return errors.Join(a.Submitter.Close(), a.DB.Close())
}
