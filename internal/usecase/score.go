package usecase

import (
	"context"

	"momentum/internal/candles"
	"momentum/internal/domain/models"
	"momentum/internal/domain/repository"
	"momentum/internal/indicators"
	"momentum/internal/marketctx"
	"momentum/internal/scoring"
)

// ScoreUsecase computes the gated decision for one symbol on demand.
type ScoreUsecase struct {
	store    *candles.Store
	snapshot *SnapshotUsecase
	ctxEng   *marketctx.Engine
	scorer   *scoring.Engine
}

// NewScoreUsecase creates a new ScoreUsecase instance.
func NewScoreUsecase(store *candles.Store, snapshot *SnapshotUsecase, ctxEng *marketctx.Engine, scorer *scoring.Engine) *ScoreUsecase {
	return &ScoreUsecase{store: store, snapshot: snapshot, ctxEng: ctxEng, scorer: scorer}
}

// Score assembles indicators and market context, then runs the gates.
func (u *ScoreUsecase) Score(ctx context.Context, symbol string) *models.ScoringResult {
	_, missing, stale := u.snapshot.TimeframeStatuses(symbol)

	in := scoring.Input{
		Symbol:   symbol,
		Context:  u.ctxEng.Compute(ctx, symbol),
		Missing:  missing,
		Stale:    stale,
		EMA5m:    indicators.EMA(u.store, symbol, repository.TF5m, []int{9, 20}),
		EMA15m:   indicators.EMA(u.store, symbol, repository.TF15m, []int{9, 20, 50}),
		ATR5m:    indicators.ATR(u.store, symbol, repository.TF5m, 14),
		ATR15m:   indicators.ATR(u.store, symbol, repository.TF15m, 14),
		VWAP5m:   indicators.VWAP(u.store, symbol, repository.TF5m, 50),
		Priors15: indicators.PriorHighLow(u.store, symbol, repository.TF15m, 20),
		RelVol5m: indicators.RelVol(u.store, symbol, repository.TF5m, 20),
		RelVol15: indicators.RelVol(u.store, symbol, repository.TF15m, 20),
	}

	return u.scorer.Score(in)
}
