// Command loadtest drives deposit commands through the full pipeline:
// command bus, event-sourced accounts, event store backend, event bus with
// a sharded async cluster, and a saga watching for large balances.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"

	promadapter "github.com/axleworks/axle-go/adapters/prometheus"
	"github.com/axleworks/axle-go/adapters/sqlite"
	"github.com/axleworks/axle-go/core/command"
	"github.com/axleworks/axle-go/core/es"
	"github.com/axleworks/axle-go/core/eventbus"
	"github.com/axleworks/axle-go/core/message"
	"github.com/axleworks/axle-go/core/saga"
	"github.com/axleworks/axle-go/core/scheduler"
	"github.com/axleworks/axle-go/internal/reflector"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := loadConfig()
	checkErr(err)

	fmt.Printf(" backend: %s\n", cfg.Backend)
	fmt.Printf("accounts: %d x %d deposits\n", cfg.Accounts, cfg.DepositsPerAcct)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	// === storage backend ===

	var (
		store       es.EventStore
		snapshotter es.Snapshotter
		sqliteDB    *sqlite.DB
	)
	switch cfg.Backend {
	case "sqlite":
		sqliteDB, err = sqlite.Open(ctx, log, cfg.Path)
		checkErr(err)
		defer sqliteDB.Close()
		store = sqlite.NewEventStore(sqliteDB)
		snapshotter = sqlite.NewSnapshotter(sqliteDB)
	default:
		store = es.NewInMemoryStore()
		snapshotter = es.NewInMemorySnapshotter()
	}

	// === metrics ===

	var (
		registry    = promclient.NewRegistry()
		esMetrics   es.Metrics
		cmdMetrics  command.Metrics
		busMetrics  eventbus.Metrics
		sagaMetrics saga.Metrics
	)
	if cfg.Metrics {
		esMetrics = promadapter.NewESMetrics(registry)
		cmdMetrics = promadapter.NewCommandMetrics(registry)
		busMetrics = promadapter.NewEventBusMetrics(registry)
		sagaMetrics = promadapter.NewSagaMetrics(registry)
	} else {
		esMetrics = es.NopMetrics()
		cmdMetrics = command.NopMetrics()
		busMetrics = eventbus.NopMetrics()
		sagaMetrics = saga.NopMetrics()
	}

	// === event bus with a sharded async cluster ===

	cluster := eventbus.NewAsyncCluster(log, "loadtest",
		eventbus.ShardedPolicy(eventbus.PerAggregatePolicy(), cfg.SequencingShards),
		eventbus.WithClusterMetrics(busMetrics))
	defer cluster.Close()

	bus := eventbus.NewClusteringBus(log, eventbus.WithSelector(
		eventbus.ClusterSelectorFunc(func(eventbus.Listener) eventbus.Cluster { return cluster }),
	))

	var delivered atomic.Int64
	bus.Subscribe(eventbus.ListenerFunc(func(context.Context, message.EventMessage) error {
		delivered.Add(1)
		return nil
	}))

	// === saga watching for large balances ===

	var bigSpenders atomic.Int64
	factory := func() saga.Saga {
		return &bigSpenderSaga{
			BaseSaga:  saga.NewBaseSaga(),
			threshold: cfg.LargeDeposit,
			onTripped: func() { bigSpenders.Add(1) },
		}
	}
	var sagaRepo saga.Repository = saga.NewInMemoryRepository()
	if cfg.Backend == "sqlite" {
		sagaStore := sqlite.NewSagaStore(sqliteDB)
		sagaStore.RegisterType("big_spender", factory)
		sagaRepo = sagaStore
	}
	resolver := saga.NewResolver()
	resolver.Bind(reflector.TypeInfoFor[Deposited]().Name, saga.CreateIfNoneFound,
		func(e message.EventMessage) []saga.AssociationValue {
			return []saga.AssociationValue{saga.Associate("account_id", e.AggregateID)}
		})
	manager := saga.NewManager(log, sagaRepo, resolver, "big_spender", factory,
		saga.WithMetrics(sagaMetrics))
	defer manager.Close()
	bus.Subscribe(manager)

	// === repository and command bus ===

	events := es.NewRegistry()
	es.RegisterEventFor[es.AggregateCreated](events)
	es.RegisterEventFor[es.AggregateDeleted](events)
	new(Account).Register(events)

	repo := es.NewTypedRepositoryFrom[*Account](log, es.NewRepository(log, store, events,
		es.WithSnapshotter(snapshotter),
		es.WithSnapshotEvery(cfg.SnapshotEvery),
		es.WithPublisher(eventbus.PublisherFor(bus)),
		es.WithMetrics(esMetrics),
	))

	cmdBus := command.NewSimpleBus(log, command.WithMetrics(cmdMetrics))
	cmdBus.Subscribe(reflector.TypeInfoFor[DepositFunds]().Name,
		func(ctx context.Context, cmd message.CommandMessage) (any, error) {
			c := cmd.Payload.(*DepositFunds)
			return nil, repo.WithTransaction(ctx, c.AccountID, func(a *Account) error {
				return a.Deposit(c.Amount)
			})
		})

	// === drive the load ===

	log.Info("starting")
	startAt := time.Now()

	var wg sync.WaitGroup
	var failures atomic.Int64
	wg.Add(cfg.Accounts)
	for i := 0; i < cfg.Accounts; i++ {
		accountID := fmt.Sprintf("account-%d", i)
		go func() {
			defer wg.Done()
			if _, err := repo.GetOrCreate(ctx, accountID); err != nil {
				failures.Add(1)
				return
			}
			for d := 0; d < cfg.DepositsPerAcct; d++ {
				_, err := cmdBus.DispatchAndWait(ctx,
					message.NewCommand(&DepositFunds{AccountID: accountID, Amount: 10}))
				if err != nil {
					failures.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	// a deferred summary event closes the run through the scheduler path
	sched := scheduler.NewPublishingScheduler(log, bus)
	defer sched.Close()
	_, err = sched.ScheduleAfter(50*time.Millisecond, &RunFinished{})
	checkErr(err)

	time.Sleep(200 * time.Millisecond)
	cluster.Drain()

	// === stats ===

	took := time.Since(startAt)
	totalCommands := cfg.Accounts * cfg.DepositsPerAcct
	runtime.GC()

	fmt.Println("==========================================")
	fmt.Printf("total runtime: %.3f seconds\n", took.Seconds())
	fmt.Printf("     commands: %d (%d failed)\n", totalCommands, failures.Load())
	fmt.Printf("   events out: %d\n", delivered.Load())
	fmt.Printf(" big spenders: %d\n", bigSpenders.Load())
	fmt.Printf("    writes/s : %d\n", int(float64(totalCommands)/took.Seconds()))

	if cfg.Metrics {
		families, err := registry.Gather()
		checkErr(err)
		for _, mf := range families {
			fmt.Printf("metric %s: %d series\n", mf.GetName(), len(mf.GetMetric()))
		}
	}
}

// === Domain ===

type (
	Account struct {
		es.BaseAggregate

		Balance int64 `json:"balance"`
	}

	Deposited struct {
		Amount int64 `json:"amount"`
	}

	// DepositFunds is the command payload.
	DepositFunds struct {
		AccountID string
		Amount    int64
	}

	// RunFinished marks the end of a load run.
	RunFinished struct{}
)

func (a *Account) AggregateType() string { return "account" }

func (a *Account) Register(r es.Registrar) {
	es.RegisterEvents(r, es.Event[Deposited]())
}

func (a *Account) Apply(event any) error {
	switch e := event.(type) {
	case *Deposited:
		a.Balance += e.Amount
		return nil
	default:
		return a.BaseAggregate.Apply(event)
	}
}

func (a *Account) Deposit(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("deposit amount must be positive, got %d", amount)
	}
	return es.RaiseAndApply(a, &Deposited{Amount: amount})
}

// bigSpenderSaga accumulates deposits per account and ends once the total
// crosses the threshold.
type bigSpenderSaga struct {
	saga.BaseSaga

	Total     int64 `json:"total"`
	threshold int64
	onTripped func()
}

func (s *bigSpenderSaga) HandleEvent(_ context.Context, e message.EventMessage) error {
	d, ok := e.Payload.(*Deposited)
	if !ok {
		return nil
	}
	s.Total += d.Amount
	if s.Total >= s.threshold {
		s.onTripped()
		s.End()
	}
	return nil
}

func checkErr(err error) {
	if err != nil {
		panic(err)
	}
}
