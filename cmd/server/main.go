package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jayanthsaib/stock-agent/internal/analysis"
	"github.com/jayanthsaib/stock-agent/internal/approval"
	"github.com/jayanthsaib/stock-agent/internal/broker"
	"github.com/jayanthsaib/stock-agent/internal/chat"
	"github.com/jayanthsaib/stock-agent/internal/config"
	"github.com/jayanthsaib/stock-agent/internal/domain"
	"github.com/jayanthsaib/stock-agent/internal/events"
	"github.com/jayanthsaib/stock-agent/internal/execution"
	"github.com/jayanthsaib/stock-agent/internal/ingestion"
	"github.com/jayanthsaib/stock-agent/internal/instruments"
	"github.com/jayanthsaib/stock-agent/internal/monitor"
	"github.com/jayanthsaib/stock-agent/internal/portfolio"
	"github.com/jayanthsaib/stock-agent/internal/risk"
	"github.com/jayanthsaib/stock-agent/internal/scheduler"
	"github.com/jayanthsaib/stock-agent/internal/server"
	"github.com/jayanthsaib/stock-agent/internal/signals"
	"github.com/jayanthsaib/stock-agent/internal/store"
	"github.com/jayanthsaib/stock-agent/pkg/logger"
)

func main() {
	log := logger.New(logger.Config{
		Level:  "info",
		Pretty: true,
	})

	log.Info().Msg("starting stock-agent")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	log = logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	tradeStore, err := store.New(cfg.DataDir+"/trades.db", log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open trade store")
	}
	defer tradeStore.Close()

	registry := instruments.New(instruments.Config{
		IncludeSecondaryExchange: cfg.Filters.IncludeSecondaryExchange,
	}, log)
	if err := registry.Reload(context.Background()); err != nil {
		log.Warn().Err(err).Msg("initial instrument registry reload failed, falling back to the built-in catalog")
	}

	brk := broker.NewClient(broker.Config{
		BaseURL:  cfg.Broker.BaseURL,
		ClientID: cfg.Broker.ClientID,
		PIN:      cfg.Broker.PIN,
		TOTPSeed: cfg.Broker.TOTPSecret,
	}, log)

	chatClient := chat.NewClient(fmt.Sprintf("https://api.telegram.org/bot%s", cfg.Chat.BotToken), log)

	bus := events.NewBus()
	eventsMgr := events.NewManager(bus, log)

	valuator := portfolio.New(portfolio.Config{
		SimulationEnabled: cfg.Simulation.Enabled,
		VirtualBalance:    cfg.Simulation.VirtualBalance,
	}, brk, log)

	ingestor := ingestion.New(ingestion.Config{
		MinStockPrice:       cfg.Filters.MinStockPrice,
		MinAvgDailyVolume:   cfg.Filters.MinAvgDailyVolume,
		MaxAnalysisUniverse: cfg.Filters.MaxAnalysisUniverse,
		Watchlist:           cfg.Filters.Watchlist,
		VIXHardCeiling:      cfg.Macro.VIXNoBuys,
		VIXCaution:          cfg.Macro.VIXCaution,
		VIXFavorable:        cfg.Macro.VIXFavorable,
	}, registry, brk, valuator, nil, eventsMgr, log)

	engine := execution.New(execution.Config{
		Simulation:         cfg.Simulation.Enabled,
		FillTimeoutMinutes: cfg.Execution.OrderFillTimeoutMinutes,
	}, brk, registry, tradeStore, chatClient, cfg.Chat.ChatID, eventsMgr, log)

	gateway := approval.New(chatClient, tradeStore, eventsMgr, engine, cfg.Chat.ChatID, cfg.Simulation.Enabled, log).
		WithAutoMode(cfg.Execution.AutoMode, cfg.Signal.AutoExecuteThreshold)

	mon := monitor.New(monitor.Config{
		MaxSingleTradeDrawdownPct: cfg.Risk.MaxSingleTradeDrawdownPct,
		TrailingStopActivatePct:   cfg.Risk.TrailingStopActivatePct,
		PrimaryExchange:           domain.ExchangeNSE,
		SecondaryExchange:         domain.ExchangeBSE,
		SecondaryEnabled:          cfg.Filters.IncludeSecondaryExchange,
	}, brk, registry, engine, tradeStore, chatClient, cfg.Chat.ChatID, eventsMgr, log)

	srv := server.New(server.Config{
		Port:    cfg.Port,
		Log:     log,
		DevMode: cfg.DevMode,

		Store:    tradeStore,
		Registry: registry,
		Ingestor: ingestor,
		Gateway:  gateway,
		Chat:     chatClient,
		ChatID:   cfg.Chat.ChatID,
		Broker:   brk,

		Fundamental:    unimplementedFundamentalProvider{},
		FundamentalCfg: analysis.FundamentalConfig{MaxDebtToEquity: cfg.Fundamental.MaxDebtToEquity},
		TechnicalCfg:   technicalConfig(cfg),
		MacroCfg:       macroConfig(cfg),
	})

	sched := scheduler.New(log)
	sched.Start()
	defer sched.Stop()

	calendar := scheduler.NewNSECalendar()

	signalJob := &scheduler.SignalCycleJob{
		Calendar:       calendar,
		Ingestor:       ingestor,
		Fundamental:    unimplementedFundamentalProvider{},
		FundamentalCfg: analysis.FundamentalConfig{MaxDebtToEquity: cfg.Fundamental.MaxDebtToEquity},
		TechnicalCfg:   technicalConfig(cfg),
		MacroCfg:       macroConfig(cfg),
		GeneratorCfg: signals.Config{
			MaxStopLossPct:         cfg.Risk.MaxStopLossPct,
			MinStopLossPct:         cfg.Risk.MinStopLossPct,
			MinRiskRewardRatio:     cfg.Risk.MinRiskRewardRatio,
			MinConfidenceToNotify:  cfg.Signal.MinConfidenceToNotify,
			ApprovalWindowMinutes:  cfg.Signal.ApprovalWindowMinutes,
			MaxSingleStockPct:      cfg.PositionSizing.MaxSingleStockPct,
			EmergencyCashBufferPct: cfg.Portfolio.EmergencyCashBufferPct,
		},
		Weights: signals.Weights{
			Fundamental: cfg.ConfidenceWeights.Fundamental,
			Technical:   cfg.ConfidenceWeights.Technical,
			Macro:       cfg.ConfidenceWeights.Macro,
			RiskReward:  cfg.ConfidenceWeights.RiskReward,
		},
		SectorLookup:           unknownSector,
		Valuator:               valuator,
		EmergencyCashBufferPct: cfg.Portfolio.EmergencyCashBufferPct,
		RiskCfg: risk.Config{
			MinStockPrice:         cfg.Filters.MinStockPrice,
			MinRiskRewardRatio:    cfg.Risk.MinRiskRewardRatio,
			MinStopLossPct:        cfg.Risk.MinStopLossPct,
			MaxStopLossPct:        cfg.Risk.MaxStopLossPct,
			HardCapSingleStockPct: cfg.PositionSizing.HardCapSingleStockPct,
			MaxOpenPositions:      cfg.Portfolio.MaxOpenPositions,
			MaxSectorPct:          cfg.PositionSizing.MaxSectorPct,
			MaxNewBuysPerWeek:     cfg.Risk.MaxNewBuysPerWeek,
			MinPositionSize:       cfg.PositionSizing.MinPositionSize,
			AllowMargin:           cfg.Execution.AllowMargin,
		},
		Store:   tradeStore,
		Gateway: gateway,
		Chat:    chatClient,
		ChatID:  cfg.Chat.ChatID,
		Metrics: srv.Metrics(),
		Log:     log,
	}

	jobs := scheduler.Jobs{
		Ingestion: &scheduler.IngestionJob{Calendar: calendar, Ingestor: ingestor},
		Signal:    signalJob,
		Monitor:   &scheduler.MonitorTickJob{Calendar: calendar, Monitor: mon, Gateway: gateway},
		EndOfDay:  &scheduler.EndOfDayJob{Calendar: calendar, Monitor: mon},
		Registry:  &scheduler.RegistryReloadJob{Registry: registry},
		Learning:  &scheduler.LearningSummaryJob{Store: tradeStore, Chat: chatClient, ChatID: cfg.Chat.ChatID, Log: log},
		ChatPoll:  &scheduler.ChatPollJob{Chat: chatClient, Store: tradeStore, Gateway: gateway, Log: log},
	}
	if err := scheduler.RegisterTradingJobs(sched, jobs); err != nil {
		log.Fatal().Err(err).Msg("failed to register scheduled jobs")
	}

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
}

func technicalConfig(cfg *config.Config) analysis.TechnicalConfig {
	return analysis.TechnicalConfig{
		LongMAPeriod:              cfg.Technical.LongMAPeriod,
		MediumMAPeriod:            cfg.Technical.MediumMAPeriod,
		ShortMAPeriod:             cfg.Technical.ShortMAPeriod,
		RSIPeriod:                 cfg.Technical.RSIPeriod,
		MACDFast:                  cfg.Technical.MACDFast,
		MACDSlow:                  cfg.Technical.MACDSlow,
		MACDSignal:                cfg.Technical.MACDSignal,
		SupportResistanceWindow:   cfg.Technical.SupportResistanceWindow,
		PriceAbove200MACeilingPct: cfg.Technical.PriceAbove200MACeilingPct,
		RSIOverbought:             cfg.Technical.RSIOverbought,
		RSIOversoldDeep:           cfg.Technical.RSIOversoldDeep,
		RSIOversoldBand:           cfg.Technical.RSIOversoldBand,
	}
}

func macroConfig(cfg *config.Config) analysis.MacroConfig {
	return analysis.MacroConfig{
		VIXNoBuys:    cfg.Macro.VIXNoBuys,
		VIXCaution:   cfg.Macro.VIXCaution,
		VIXFavorable: cfg.Macro.VIXFavorable,
	}
}

// unknownSector is the SectorLookup used until a sector-mapping data
// source is wired in; every symbol reports "Unknown". Every proposal
// and open position therefore shares one sector, so the
// sector-exposure risk check sums the whole open book and compares it,
// plus the new allocation, against the sector cap.
func unknownSector(symbol string) string {
	return "Unknown"
}

// unimplementedFundamentalProvider is the injection point for an
// external fundamental-data feed (§4.4, out of scope for this core),
// so this returns an error until a real provider is configured rather
// than silently fabricating scores.
type unimplementedFundamentalProvider struct{}

func (unimplementedFundamentalProvider) Fundamentals(symbol string) (analysis.FundamentalInput, error) {
	return analysis.FundamentalInput{}, fmt.Errorf("no fundamental-data provider configured for %s", strings.ToUpper(symbol))
}
