package main

import (
	"flag"
	"log/slog"
	"os"
	"strings"

	"vouchermarket/config"
	"vouchermarket/core/events"
	"vouchermarket/native/dispute"
	"vouchermarket/native/exchange"
	"vouchermarket/native/funds"
	"vouchermarket/native/offer"
	"vouchermarket/native/pricing"
	"vouchermarket/native/voucher"
	"vouchermarket/observability/logging"
	"vouchermarket/registry"
	"vouchermarket/rpc"
	"vouchermarket/state"
	"vouchermarket/storage"
)

const rpcTokenEnv = "MARKET_RPC_TOKEN"

func main() {
	configFile := flag.String("config", "./market.toml", "Path to the configuration file")
	memory := flag.Bool("memory", false, "DEV ONLY: run against an in-memory store instead of DataDir")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("MARKET_ENV"))
	logger := logging.Setup("marketd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	var db storage.Database
	if *memory {
		db = storage.NewMemDB()
	} else {
		db, err = storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			logger.Error("failed to open database", slog.String("path", cfg.DataDir), slog.Any("error", err))
			os.Exit(1)
		}
	}
	defer db.Close()

	manager := state.NewManager(db)
	accounts := registry.NewRegistry(manager)
	feed := events.NewMemory(4096)

	ledger := funds.NewLedger()
	ledger.SetState(manager)
	ledger.SetEmitter(feed)

	allocator := voucher.NewAllocator()
	allocator.SetState(manager)
	allocator.SetEmitter(feed)
	allocator.SetOffers(manager)
	allocator.SetRegistry(accounts)
	allocator.SetLimits(cfg.Protocol.MaxRangeLength, cfg.Protocol.BurnBatchSize)

	offers := offer.NewEngine()
	offers.SetState(manager)
	offers.SetRegistry(accounts)
	offers.SetFeeParams(cfg.Protocol.ProtocolFeeBps, cfg.Protocol.MaxTotalFeeBps)
	offers.SetEscalationDepositPct(cfg.Protocol.EscalationDepositPctBps)
	offers.SetEmitter(feed)

	adapter := pricing.NewAdapter(pricing.NewDirectMechanism(ledger), ledger)

	exchanges := exchange.NewEngine()
	exchanges.SetState(manager)
	exchanges.SetLedger(ledger)
	exchanges.SetAllocator(allocator)
	exchanges.SetRegistry(accounts)
	exchanges.SetPricingAdapter(adapter)
	exchanges.SetFeeTreasury(cfg.Protocol.TreasuryAccount)
	exchanges.SetConduit(cfg.Protocol.ConduitAccount)
	exchanges.SetEmitter(feed)

	disputes := dispute.NewEngine()
	disputes.SetState(manager)
	disputes.SetLedger(ledger)
	disputes.SetRegistry(accounts)
	disputes.SetFeeTreasury(cfg.Protocol.TreasuryAccount)
	disputes.SetEscalationResponsePeriod(cfg.Protocol.EscalationResponsePeriod)
	disputes.SetEmitter(feed)

	token := cfg.RPCToken
	if fromEnv := strings.TrimSpace(os.Getenv(rpcTokenEnv)); fromEnv != "" {
		token = fromEnv
	}
	if token == "" {
		logger.Warn("no RPC token configured; mutating methods are unauthenticated")
	}

	server := rpc.NewServer(rpc.Engines{
		Offers:    offers,
		Exchanges: exchanges,
		Disputes:  disputes,
		Allocator: allocator,
		Ledger:    ledger,
		Registry:  accounts,
		Events:    feed,
	}, token, logger)

	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("rpc server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
