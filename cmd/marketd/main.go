package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap/zapcore"

	"github.com/optionmesh/optionmesh/params"
	"github.com/optionmesh/optionmesh/pkg/api"
	"github.com/optionmesh/optionmesh/pkg/engine"
	"github.com/optionmesh/optionmesh/pkg/fees"
	"github.com/optionmesh/optionmesh/pkg/ledger"
	"github.com/optionmesh/optionmesh/pkg/storage"
	"github.com/optionmesh/optionmesh/pkg/util"
)

// referralAccruer credits referrers their share of paid fill fees.
type referralAccruer struct {
	book *fees.ReferralBook
}

func (a referralAccruer) OnOrderCreated(engine.OrderCreated) {}

func (a referralAccruer) OnOrderFilled(ev engine.OrderFilled) {
	a.book.Accrue(ev.Maker, ev.MakerFee)
	a.book.Accrue(ev.Taker, ev.TakerFee)
}

func (a referralAccruer) OnOrderCancelled(engine.OrderCancelled) {}

func main() {
	// Load config from .env file and environment variables.
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.Server.LogFile, zapcore.InfoLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Server.LogFile)

	journal, err := storage.Open(cfg.Server.DataDir, sugar)
	if err != nil {
		sugar.Fatalw("journal_open_failed", "path", cfg.Server.DataDir, "err", err)
	}
	defer journal.Close()

	// In-process ledgers: marketd runs as a simulation / staging service.
	// A production deployment substitutes ledgers bridged to settlement.
	tokens := ledger.NewTokenBook()
	options := ledger.NewOptionBook()

	stakes := fees.NewStakeBook()
	referrals := fees.NewReferralBook()
	feeCalc := fees.New(cfg.Market.FeeBps).
		WithDiscounts(fees.DefaultDiscountSchedule(), stakes).
		WithReferrals(referrals)

	eng := engine.New(engine.Config{
		Self:     common.HexToAddress(cfg.Market.EngineAddr),
		Admin:    common.HexToAddress(cfg.Market.AdminAddr),
		Treasury: common.HexToAddress(cfg.Market.TreasuryAddr),
		Fees:     feeCalc,
		Tokens:   tokens,
		Options:  options,
		Logger:   sugar,
	})

	// Rebuild remaining amounts from the journal before accepting traffic.
	snapshot, err := journal.ReplayRemaining()
	if err != nil {
		sugar.Fatalw("journal_replay_failed", "err", err)
	}
	eng.Book().Restore(snapshot)
	sugar.Infow("orderbook_restored", "orders", len(snapshot))

	server := api.NewServer(eng, journal, sugar)

	// Engine events go to the journal, the websocket stream and referral
	// accounting, in that order.
	eng.SetSink(engine.MultiSink{journal, server.Hub(), referralAccruer{book: referrals}})

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(cfg.Server.ListenAddr) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		sugar.Infow("shutting_down", "signal", sig.String())
	case err := <-errCh:
		sugar.Errorw("server_stopped", "err", err)
	}
}
