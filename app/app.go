package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"vaultchain/config"
	"vaultchain/core"
	"vaultchain/core/events"
	"vaultchain/core/state"
	"vaultchain/crypto"
	"vaultchain/indexer"
	"vaultchain/native/amm"
	"vaultchain/native/eligibility"
	"vaultchain/native/factory"
	"vaultchain/native/fees"
	"vaultchain/native/proxy"
	"vaultchain/native/staking"
	"vaultchain/native/vault"
	"vaultchain/native/zap"
	"vaultchain/observability/metrics"
	"vaultchain/storage"
)

var bootstrapKey = []byte("app/bootstrapped")

// Options tunes App construction.
type Options struct {
	Logger *slog.Logger
	// Sink receives committed events after metrics have been recorded.
	Sink    events.Emitter
	Metrics *metrics.VaultMetrics
	Now     func() time.Time
	// Entropy overrides executor entropy for vault random draws.
	Entropy func() [32]byte
	// Archive, when set, stores every committed receipt for event queries.
	Archive *indexer.Archive
	// FeedHistory bounds the number of committed events kept for stream
	// resumption.
	FeedHistory int
}

// App owns the state, the executor and every module engine.
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.VaultMetrics
	archive  *indexer.Archive
	admin    [20]byte
	treasury [20]byte

	State    *state.Manager
	Executor *core.Executor
	// Feed streams committed events to live subscribers.
	Feed *events.Feed

	Provider    *staking.TokenProvider
	Staking     *staking.Engine
	Vaults      *vault.Engine
	Fees        *fees.Engine
	Factory     *factory.Engine
	Eligibility *eligibility.Manager
	Pools       *amm.Engine
	StakingZap  *zap.StakingZap
	Marketplace *zap.Marketplace
	Proxy       *proxy.Engine
}

// ImplAddress is the registered implementation identity of a component at a
// given revision.
func ImplAddress(c proxy.Component, revision int) [20]byte {
	return crypto.ModuleAddress(fmt.Sprintf("impl:%s:v%d", c, revision))
}

// New wires every module in deployment order and runs the one-time bootstrap
// (fee exclusions, zap registration, proxy registry) on a fresh database.
func New(cfg *config.Config, db storage.Database, opts Options) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	admin, err := cfg.AdminAddress()
	if err != nil {
		return nil, err
	}
	treasury, err := cfg.TreasuryAddress()
	if err != nil {
		return nil, err
	}
	mint, randomRedeem, targetRedeem, randomSwap, targetSwap, err := cfg.DefaultFees.Parse()
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	st := state.NewManager(db)
	feed := events.NewFeed(opts.FeedHistory)
	sink := &metricsEmitter{metrics: opts.Metrics, next: events.Multi{feed, opts.Sink}}
	execOpts := []core.Option{core.WithLogger(logger), core.WithMetrics(opts.Metrics)}
	if opts.Archive != nil {
		execOpts = append(execOpts, core.WithArchive(opts.Archive))
	}
	exec := core.NewExecutor(st, sink, execOpts...)
	emitter := exec.Emitter()
	base := strings.ToUpper(strings.TrimSpace(cfg.BaseToken))

	a := &App{
		cfg:      cfg,
		logger:   logger,
		metrics:  opts.Metrics,
		archive:  opts.Archive,
		admin:    admin,
		treasury: treasury,
		State:    st,
		Executor: exec,
		Feed:     feed,
	}

	a.Provider = staking.NewTokenProvider(base)
	a.Provider.SetState(st)
	a.Provider.SetAdmin(admin)
	a.Provider.SetEmitter(emitter)

	a.Staking = staking.NewEngine()
	a.Staking.SetState(st)
	a.Staking.SetEmitter(emitter)
	a.Staking.SetProvider(a.Provider)
	a.Staking.SetAdmin(admin)
	a.Staking.SetFactory(factory.Account)
	a.Staking.SetDistributor(fees.DistributorAccount)
	a.Staking.SetZap(zap.StakingAccount)
	a.Staking.SetNowFunc(now)

	a.Vaults = vault.NewEngine()
	a.Vaults.SetState(st)
	a.Vaults.SetEmitter(emitter)
	a.Vaults.SetFactory(factory.Account)
	a.Vaults.SetAdmin(admin)
	a.Vaults.SetPauses(cfg.Pauses)
	a.Vaults.SetNowFunc(now)
	if opts.Entropy != nil {
		a.Vaults.SetEntropyFunc(opts.Entropy)
	} else {
		a.Vaults.SetEntropyFunc(exec.Entropy)
	}

	a.Fees = fees.NewEngine()
	a.Fees.SetState(st)
	a.Fees.SetEmitter(emitter)
	a.Fees.SetStaking(a.Staking)
	a.Fees.SetAdmin(admin)
	a.Fees.SetFactory(factory.Account)
	if err := a.Fees.SetDefaults(cfg.FeeSplit, treasury, cfg.FeeDistributionPaused); err != nil {
		return nil, err
	}
	a.Vaults.SetFeeSink(a.Fees)

	a.Factory = factory.NewEngine()
	a.Factory.SetState(st)
	a.Factory.SetEmitter(emitter)
	a.Factory.SetAdmin(admin)
	a.Factory.SetInitialDefaultFees(vault.Fees{
		Mint:         mint,
		RandomRedeem: randomRedeem,
		TargetRedeem: targetRedeem,
		RandomSwap:   randomSwap,
		TargetSwap:   targetSwap,
	})
	a.Factory.SetVaults(a.Vaults)
	a.Factory.SetFeeRegistrar(a.Fees)
	a.Factory.SetPools(a.Staking)
	a.Vaults.SetFeeExclusions(a.Factory)

	a.Eligibility = eligibility.NewManager()
	a.Eligibility.SetState(st)
	a.Eligibility.SetEmitter(emitter)
	a.Eligibility.SetAdmin(admin)
	a.Eligibility.SetBindingAuthorizer(a.Vaults.IsManager)
	a.Vaults.SetEligibility(a.Eligibility)

	a.Pools = amm.NewEngine()
	a.Pools.SetState(st)
	a.Pools.SetEmitter(emitter)

	a.StakingZap = zap.NewStakingZap(base)
	a.StakingZap.SetState(st)
	a.StakingZap.SetEmitter(emitter)
	a.StakingZap.SetVaults(a.Vaults)
	a.StakingZap.SetRouter(a.Pools)
	a.StakingZap.SetStakers(a.Staking)
	a.StakingZap.SetAdmin(admin)
	a.StakingZap.SetDefaultLock(cfg.StakingZapLockSeconds)
	a.StakingZap.SetNowFunc(now)

	a.Marketplace = zap.NewMarketplace(base)
	a.Marketplace.SetState(st)
	a.Marketplace.SetEmitter(emitter)
	a.Marketplace.SetVaults(a.Vaults)
	a.Marketplace.SetRouter(a.Pools)

	a.Proxy = proxy.NewEngine()
	a.Proxy.SetState(st)
	a.Proxy.SetEmitter(emitter)
	a.Proxy.SetOwner(admin)

	if err := a.bootstrap(context.Background()); err != nil {
		return nil, err
	}
	return a, nil
}

// Admin returns the configured admin identity.
func (a *App) Admin() [20]byte { return a.admin }

// Treasury returns the configured treasury identity.
func (a *App) Treasury() [20]byte { return a.treasury }

// BaseToken returns the pool quote token.
func (a *App) BaseToken() string { return strings.ToUpper(a.cfg.BaseToken) }

func (a *App) bootstrap(ctx context.Context) error {
	done, err := a.State.KVGet(bootstrapKey, nil)
	if err != nil {
		return err
	}
	if done {
		return nil
	}
	_, err = a.Executor.Execute(ctx, "app.bootstrap", func(ctx context.Context) error {
		if err := a.Factory.SetZapContract(a.admin, zap.StakingAccount); err != nil {
			return err
		}
		if err := a.Factory.SetFeeExclusion(a.admin, zap.StakingAccount, true); err != nil {
			return err
		}
		for _, c := range proxy.Components() {
			if err := a.Proxy.Register(a.admin, c, ImplAddress(c, 1)); err != nil {
				return err
			}
			if _, err := a.Proxy.FetchImplAddress(c); err != nil {
				return err
			}
		}
		return a.State.KVPut(bootstrapKey, true)
	})
	if err != nil {
		return fmt.Errorf("app: bootstrap: %w", err)
	}
	a.logger.Info("runtime bootstrapped",
		slog.String("admin", crypto.NewAddress(crypto.VaultPrefix, a.admin[:]).String()),
		slog.String("baseToken", a.BaseToken()))
	return nil
}
