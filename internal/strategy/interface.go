package strategy

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/polytrader/internal/action"
	"github.com/alanyoungcy/polytrader/internal/domain"
)

// Brain decides, once per iteration, which actions the run wants.
type Brain interface {
	Name() string
	// UpdateStateAndGetActions refreshes the brain's view of the market. With
	// freeze set it must not return any wishes.
	UpdateStateAndGetActions(ctx context.Context, freeze bool) ([]Wish, error)
	// OnExecuted reports the actions of the iteration after execution,
	// including aborted ones.
	OnExecuted(ctx context.Context, actions []action.Action)
}

// Wish is an action request together with its patience requirements.
type Wish struct {
	Action           action.Action
	Label            string
	IterationRequire int
	PauseRelease     bool
}

// BookReader is the market data a brain reads.
type BookReader interface {
	BestBid(assetID string) (domain.PriceLevel, bool)
	BestAsk(assetID string) (domain.PriceLevel, bool)
}

// Config holds strategy configuration.
type Config struct {
	Name           string
	ConditionID    string
	MainAssetID    string
	CounterAssetID string
	Size1000       int64
	PlaceRequire   int
	CancelRequire  int
	MaxDrift1000   int64
	Params         map[string]any
}

// Deps are the collaborators handed to brain factories.
type Deps struct {
	Books  BookReader
	Logger *slog.Logger
}
