package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polytrader/internal/action"
	"github.com/alanyoungcy/polytrader/internal/book"
	"github.com/alanyoungcy/polytrader/internal/cache/redis"
	"github.com/alanyoungcy/polytrader/internal/config"
	"github.com/alanyoungcy/polytrader/internal/crypto"
	"github.com/alanyoungcy/polytrader/internal/domain"
	"github.com/alanyoungcy/polytrader/internal/executor"
	"github.com/alanyoungcy/polytrader/internal/journal"
	"github.com/alanyoungcy/polytrader/internal/notify"
	"github.com/alanyoungcy/polytrader/internal/permission"
	"github.com/alanyoungcy/polytrader/internal/platform/paper"
	"github.com/alanyoungcy/polytrader/internal/platform/polymarket"
	"github.com/alanyoungcy/polytrader/internal/runner"
	"github.com/alanyoungcy/polytrader/internal/server"
	"github.com/alanyoungcy/polytrader/internal/server/handler"
	"github.com/alanyoungcy/polytrader/internal/strategy"
)

// exchangeRateKey is the rate limiter bucket shared by every exchange call.
const exchangeRateKey = "exchange"

// lockChannel carries permission lock changes on the signal bus.
const lockChannel = "polytrader:lock"

// marketExchange is an ExchangeClient that must learn the traded market
// before orders can be placed.
type marketExchange interface {
	executor.ExchangeClient
	RegisterMarket(m domain.Market)
}

// TradeMode runs the strategy against the Polymarket CLOB with the
// configured wallet.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	clob, err := a.newClobClient(ctx)
	if err != nil {
		return fmt.Errorf("app: trade mode: %w", err)
	}
	return a.runStrategy(ctx, deps, clob)
}

// PaperMode runs the strategy on live market data against the in-memory
// exchange.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting paper mode")
	return a.runStrategy(ctx, deps, paper.New(a.logger))
}

// newClobClient loads the wallet, builds the signer and makes sure L2
// credentials are available, deriving them when none are configured.
func (a *App) newClobClient(ctx context.Context) (*polymarket.ClobClient, error) {
	keyHex, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    a.cfg.Wallet.PrivateKey,
		EncryptedKeyPath: a.cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      a.cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return nil, err
	}
	signer, err := crypto.NewSigner(keyHex, a.cfg.Polymarket.ChainID)
	if err != nil {
		return nil, err
	}

	pm := a.cfg.Polymarket
	var auth *crypto.HMACAuth
	if pm.ApiKey != "" {
		auth = &crypto.HMACAuth{Key: pm.ApiKey, Secret: pm.ApiSecret, Passphrase: pm.ApiPassphrase}
	}
	clob := polymarket.NewClobClient(polymarket.ClobConfig{
		BaseURL:       pm.ClobHost,
		Funder:        a.cfg.Wallet.FunderAddress,
		SignatureType: pm.SignatureType,
		FeeRateBps:    pm.FeeRateBps,
		Timeout:       pm.RequestTimeout.Duration,
	}, signer, auth, a.logger)

	if auth == nil {
		derived, err := clob.DeriveAPIKey(ctx)
		if err != nil {
			return nil, err
		}
		a.logger.InfoContext(ctx, "derived CLOB API credentials",
			slog.String("address", signer.Address().Hex()),
			slog.String("credentials", derived.String()),
		)
	}
	return clob, nil
}

// resolveMarket returns the traded market, from the configured token ids
// when both are set, otherwise from Gamma.
func (a *App) resolveMarket(ctx context.Context) (domain.Market, error) {
	sc := a.cfg.Strategy
	if sc.MainAssetID != "" && sc.CounterAssetID != "" {
		return domain.Market{
			ConditionID: sc.ConditionID,
			TokenIDs:    [2]string{sc.MainAssetID, sc.CounterAssetID},
			Active:      true,
		}, nil
	}
	m, err := polymarket.NewGammaClient(a.cfg.Polymarket.GammaHost).GetMarket(ctx, sc.ConditionID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("resolve market %s: %w", sc.ConditionID, err)
	}
	if m.Closed {
		return domain.Market{}, fmt.Errorf("resolve market %s: market is closed", sc.ConditionID)
	}
	return m, nil
}

// brainConfig scales the configured strategy to 1/1000 units for market m.
func brainConfig(sc config.StrategyConfig, m domain.Market) strategy.Config {
	return strategy.Config{
		Name:           sc.Name,
		ConditionID:    m.ConditionID,
		MainAssetID:    m.TokenIDs[0],
		CounterAssetID: m.TokenIDs[1],
		Size1000:       int64(math.Round(sc.Size * 1000)),
		PlaceRequire:   sc.PlaceRequire,
		CancelRequire:  sc.CancelRequire,
		MaxDrift1000:   int64(math.Round(sc.MaxDrift * 1000)),
		Params:         sc.Params,
	}
}

// runStrategy wires one strategy run on ex and blocks until ctx ends or a
// component fails. The run journal is archived on the way out.
func (a *App) runStrategy(ctx context.Context, deps *Dependencies, ex marketExchange) error {
	market, err := a.resolveMarket(ctx)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	ex.RegisterMarket(market)
	a.logger.InfoContext(ctx, "market resolved",
		slog.String("condition_id", market.ConditionID),
		slog.String("question", market.Question),
		slog.String("main_asset_id", market.TokenIDs[0]),
		slog.String("counter_asset_id", market.TokenIDs[1]),
		slog.Bool("neg_risk", market.NegRisk),
	)

	g, ctx := errgroup.WithContext(ctx)

	// Single runner per market and strategy across processes.
	if deps.LockManager != nil {
		key := "runner:" + market.ConditionID + ":" + a.cfg.Strategy.Name
		ttl := a.cfg.Runner.LeaseTTL.Duration
		lease, err := deps.LockManager.Acquire(ctx, key, ttl)
		if err != nil {
			return fmt.Errorf("app: acquire runner lease: %w", err)
		}
		defer lease.Release()
		g.Go(func() error {
			if err := redis.KeepAlive(ctx, lease, ttl/3); err != nil {
				return fmt.Errorf("app: runner lease lost: %w", err)
			}
			return nil
		})
	}

	// Market data.
	books := book.NewMarketOrderBook()
	feed := polymarket.NewWSClient(a.cfg.Polymarket.WsHost, market.TokenIDs[:], a.logger)
	feed.OnBookUpdate(func(snap domain.OrderbookSnapshot) {
		books.ApplySnapshot(snap)
		deps.Metrics.IncBookUpdate("book")
		a.publishBBO(ctx, deps, books, snap.AssetID)
	})
	feed.OnPriceChange(func(ch domain.PriceChange) {
		books.ApplyPriceChange(ch)
		deps.Metrics.IncBookUpdate("price_change")
		a.publishBBO(ctx, deps, books, ch.AssetID)
	})

	// Strategy run.
	brain, err := strategy.DefaultRegistry().Build(
		brainConfig(a.cfg.Strategy, market),
		strategy.Deps{Books: books, Logger: a.logger},
	)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}

	registry := action.NewRegistry()
	exec := executor.NewExecutor(&notifyingExchange{ExchangeClient: ex, notifier: deps.Notifier, logger: a.logger}, registry, a.logger)
	exec.SetMetrics(deps.Metrics)
	if deps.RateLimiter != nil {
		exec.SetRateLimiter(deps.RateLimiter, exchangeRateKey)
	}

	lock := permission.New()
	lock.OnChange(a.lockObserver(ctx, deps, lock))

	runID := uuid.NewString()
	j := journal.New(runID, a.logger)
	j.SetLimit(a.cfg.Runner.JournalLimit)
	if deps.ActionStore != nil {
		j.SetStore(deps.ActionStore)
	}
	if deps.SignalBus != nil {
		j.SetBus(deps.SignalBus)
	}

	r := runner.New(runner.Config{
		TickInterval:         a.cfg.Runner.TickInterval.Duration,
		BackoffAfterFailures: a.cfg.Runner.BackoffAfterFailures,
		BackoffIterations:    a.cfg.Runner.BackoffIterations,
	}, brain, lock, exec, registry, j, a.logger)
	r.SetMetrics(deps.Metrics)
	r.OnBackoff(func(entered bool, reason string) {
		title := "Backoff released"
		if entered {
			title = "Backoff entered"
		}
		a.notifyAsync(deps.Notifier, notify.EventBackoff, title, fmt.Sprintf("run %s: %s", runID, reason))
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, r, lock, j)
	}

	g.Go(func() error { return feed.Run(ctx) })
	g.Go(func() error { return r.Run(ctx) })

	a.notifyAsync(deps.Notifier, notify.EventLifecycle, "Run started",
		fmt.Sprintf("run %s: %s on %s (%s)", runID, brain.Name(), market.ConditionID, a.cfg.Mode))
	a.logger.InfoContext(ctx, "run started", slog.String("run_id", runID), slog.String("strategy", brain.Name()))

	runErr := g.Wait()
	a.finishRun(deps, runID, j, runErr)
	return runErr
}

// finishRun archives the journal and reports the end of the run. It runs
// after the run context is gone, so it has its own deadline.
func (a *App) finishRun(deps *Dependencies, runID string, j *journal.Journal, runErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if deps.Archiver != nil {
		path, err := deps.Archiver.ArchiveRun(ctx, runID, j.Records())
		switch {
		case err != nil:
			a.logger.Error("archive run failed", slog.String("run_id", runID), slog.String("error", err.Error()))
		case path != "":
			a.logger.Info("run archived", slog.String("run_id", runID), slog.String("path", path))
		}
	}
	if dropped := j.Dropped(); dropped > 0 {
		a.logger.Warn("journal dropped records from memory", slog.Int("dropped", dropped))
	}

	msg := fmt.Sprintf("run %s stopped", runID)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		msg += ": " + runErr.Error()
	}
	if err := deps.Notifier.Notify(ctx, notify.EventLifecycle, "Run stopped", msg); err != nil {
		a.logger.Warn("lifecycle notification failed", slog.String("error", err.Error()))
	}
}

// publishBBO shares the top of book of assetID through the cache.
func (a *App) publishBBO(ctx context.Context, deps *Dependencies, books *book.MarketOrderBook, assetID string) {
	if deps.BBOCache == nil {
		return
	}
	bbo := domain.BBO{AssetID: assetID, UpdatedAt: time.Now().UTC()}
	bbo.Bid, _ = books.BestBid(assetID)
	bbo.Ask, _ = books.BestAsk(assetID)

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := deps.BBOCache.SetBBO(ctx, bbo); err != nil {
		a.logger.Debug("bbo publish failed", slog.String("asset_id", assetID), slog.String("error", err.Error()))
	}
}

// startHTTPServer serves the operator API until ctx ends.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	r *runner.Runner,
	lock *permission.Lock,
	j *journal.Journal,
) {
	h := server.Handlers{
		Health:  handler.NewHealthHandler(deps.Checks, a.logger),
		Status:  handler.NewStatusHandler(a.cfg.Mode, r),
		Lock:    handler.NewLockHandler(lock, a.logger),
		Actions: handler.NewActionsHandler(j, deps.ActionStore, a.logger),
		Metrics: promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}),
	}
	if deps.AuditStore != nil {
		h.Audit = handler.NewAuditHandler(deps.AuditStore, a.logger)
	}
	if deps.Archiver != nil {
		h.Archives = handler.NewArchivesHandler(deps.Archiver, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, h, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
