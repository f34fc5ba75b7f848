// Package config loads the trading agent's configuration from the
// process environment, with an optional .env file loaded first.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config groups every recognised option from the configuration surface.
type Config struct {
	Port     int
	DevMode  bool
	LogLevel string
	LogPretty bool

	DataDir    string
	StatePath  string // not read by any component; the chat update offset is kept in the trade store

	Broker BrokerConfig
	Chat   ChatConfig

	Portfolio        PortfolioConfig
	PositionSizing   PositionSizingConfig
	Risk             RiskConfig
	Signal           SignalConfig
	ConfidenceWeights ConfidenceWeightsConfig
	Filters          FiltersConfig
	Fundamental      FundamentalConfig
	Technical        TechnicalConfig
	Macro            MacroConfig
	Execution        ExecutionConfig
	Simulation       SimulationConfig
}

// BrokerConfig holds the REST session-login credentials (§6).
type BrokerConfig struct {
	BaseURL    string
	ClientID   string
	PIN        string
	TOTPSecret string
}

// ChatConfig holds the long-poll bot credentials.
type ChatConfig struct {
	BotToken string
	ChatID   string
}

// PortfolioConfig is the "portfolio" group.
type PortfolioConfig struct {
	TotalValue            float64
	EmergencyCashBufferPct float64
	MaxOpenPositions       int
}

// PositionSizingConfig is the "position-sizing" group.
type PositionSizingConfig struct {
	MaxSingleStockPct     float64
	MaxSectorPct          float64
	MinPositionSize       float64
	HardCapSingleStockPct float64
}

// RiskConfig is the "risk" group.
type RiskConfig struct {
	MaxSingleTradeDrawdownPct float64
	MaxPortfolioDrawdownPct   float64
	MinStopLossPct            float64
	MaxStopLossPct            float64
	MinRiskRewardRatio        float64
	TrailingStopActivatePct   float64
	MaxNewBuysPerWeek         int
}

// SignalConfig is the "signal" group.
type SignalConfig struct {
	MinConfidenceToNotify  float64
	AutoExecuteThreshold   float64
	ApprovalWindowMinutes  int
}

// ConfidenceWeightsConfig is the four composite weights; must sum to 1.
type ConfidenceWeightsConfig struct {
	Fundamental float64
	Technical   float64
	Macro       float64
	RiskReward  float64
}

// FiltersConfig is the universe-filter group.
type FiltersConfig struct {
	MinStockPrice           float64
	MinAvgDailyVolume       float64
	IncludeSecondaryExchange bool
	MaxAnalysisUniverse     int
	Watchlist               []string
}

// FundamentalConfig is the business-quality scorer's threshold group.
type FundamentalConfig struct {
	MaxDebtToEquity      float64
	FundamentalSemaphore int
}

// TechnicalConfig holds indicator periods and thresholds.
type TechnicalConfig struct {
	LongMAPeriod       int
	MediumMAPeriod     int
	ShortMAPeriod      int
	RSIPeriod          int
	MACDFast           int
	MACDSlow           int
	MACDSignal         int
	SupportResistanceWindow int
	PriceAbove200MACeilingPct float64
	RSIOverbought      float64
	RSIOversoldDeep    float64
	RSIOversoldBand    float64
}

// MacroConfig is the macro regime threshold group.
type MacroConfig struct {
	VIXNoBuys    float64
	VIXCaution   float64
	VIXFavorable float64
}

// ExecutionConfig is the "execution" group.
type ExecutionConfig struct {
	AutoMode              bool
	OrderType             string
	AllowMargin           bool
	OrderFillTimeoutMinutes int
}

// SimulationConfig is the "simulation" group.
type SimulationConfig struct {
	Enabled        bool
	VirtualBalance float64
}

// Load reads configuration from the process environment, after first
// loading a .env file if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir, err := filepath.Abs(getEnv("TRADER_DATA_DIR", "/home/arduino/data"))
	if err != nil {
		return nil, fmt.Errorf("resolve data directory: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}

	cfg := &Config{
		Port:      getEnvAsInt("PORT", 8001),
		DevMode:   getEnvAsBool("DEV_MODE", false),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvAsBool("LOG_PRETTY", false),
		DataDir:   dataDir,
		StatePath: getEnv("STATE_PATH", dataDir+"/state"),

		Broker: BrokerConfig{
			BaseURL:    getEnv("BROKER_BASE_URL", ""),
			ClientID:   getEnv("BROKER_CLIENT_ID", ""),
			PIN:        getEnv("BROKER_PIN", ""),
			TOTPSecret: getEnv("BROKER_TOTP_SECRET", ""),
		},
		Chat: ChatConfig{
			BotToken: getEnv("CHAT_BOT_TOKEN", ""),
			ChatID:   getEnv("CHAT_ID", ""),
		},

		Portfolio: PortfolioConfig{
			TotalValue:             getEnvAsFloat("PORTFOLIO_TOTAL_VALUE", 500000),
			EmergencyCashBufferPct: getEnvAsFloat("PORTFOLIO_EMERGENCY_CASH_BUFFER_PCT", 10),
			MaxOpenPositions:       getEnvAsInt("PORTFOLIO_MAX_OPEN_POSITIONS", 10),
		},
		PositionSizing: PositionSizingConfig{
			MaxSingleStockPct:     getEnvAsFloat("POSITION_MAX_SINGLE_STOCK_PCT", 10),
			MaxSectorPct:          getEnvAsFloat("POSITION_MAX_SECTOR_PCT", 25),
			MinPositionSize:       getEnvAsFloat("POSITION_MIN_POSITION_SIZE", 5000),
			HardCapSingleStockPct: getEnvAsFloat("POSITION_HARD_CAP_SINGLE_STOCK_PCT", 15),
		},
		Risk: RiskConfig{
			MaxSingleTradeDrawdownPct: getEnvAsFloat("RISK_MAX_SINGLE_TRADE_DRAWDOWN_PCT", 8),
			MaxPortfolioDrawdownPct:   getEnvAsFloat("RISK_MAX_PORTFOLIO_DRAWDOWN_PCT", 20),
			MinStopLossPct:            getEnvAsFloat("RISK_MIN_STOP_LOSS_PCT", 2),
			MaxStopLossPct:            getEnvAsFloat("RISK_MAX_STOP_LOSS_PCT", 8),
			MinRiskRewardRatio:        getEnvAsFloat("RISK_MIN_RISK_REWARD_RATIO", 1.5),
			TrailingStopActivatePct:   getEnvAsFloat("RISK_TRAILING_STOP_ACTIVATE_PCT", 5),
			MaxNewBuysPerWeek:         getEnvAsInt("RISK_MAX_NEW_BUYS_PER_WEEK", 5),
		},
		Signal: SignalConfig{
			MinConfidenceToNotify: getEnvAsFloat("SIGNAL_MIN_CONFIDENCE_TO_NOTIFY", 60),
			AutoExecuteThreshold:  getEnvAsFloat("SIGNAL_AUTO_EXECUTE_THRESHOLD", 90),
			ApprovalWindowMinutes: getEnvAsInt("SIGNAL_APPROVAL_WINDOW_MINUTES", 30),
		},
		ConfidenceWeights: ConfidenceWeightsConfig{
			Fundamental: getEnvAsFloat("WEIGHT_FUNDAMENTAL", 0.35),
			Technical:   getEnvAsFloat("WEIGHT_TECHNICAL", 0.30),
			Macro:       getEnvAsFloat("WEIGHT_MACRO", 0.20),
			RiskReward:  getEnvAsFloat("WEIGHT_RISK_REWARD", 0.15),
		},
		Filters: FiltersConfig{
			MinStockPrice:            getEnvAsFloat("FILTER_MIN_STOCK_PRICE", 20),
			MinAvgDailyVolume:        getEnvAsFloat("FILTER_MIN_AVG_DAILY_VOLUME", 1000000),
			IncludeSecondaryExchange: getEnvAsBool("FILTER_INCLUDE_SECONDARY_EXCHANGE", false),
			MaxAnalysisUniverse:      getEnvAsInt("FILTER_MAX_ANALYSIS_UNIVERSE", 500),
			Watchlist:                getEnvAsList("FILTER_WATCHLIST", nil),
		},
		Fundamental: FundamentalConfig{
			MaxDebtToEquity:      getEnvAsFloat("FUNDAMENTAL_MAX_DEBT_TO_EQUITY", 2.0),
			FundamentalSemaphore: getEnvAsInt("FUNDAMENTAL_SEMAPHORE_SIZE", 5),
		},
		Technical: TechnicalConfig{
			LongMAPeriod:              getEnvAsInt("TECHNICAL_LONG_MA_PERIOD", 200),
			MediumMAPeriod:            getEnvAsInt("TECHNICAL_MEDIUM_MA_PERIOD", 50),
			ShortMAPeriod:             getEnvAsInt("TECHNICAL_SHORT_MA_PERIOD", 20),
			RSIPeriod:                 getEnvAsInt("TECHNICAL_RSI_PERIOD", 14),
			MACDFast:                  getEnvAsInt("TECHNICAL_MACD_FAST", 12),
			MACDSlow:                  getEnvAsInt("TECHNICAL_MACD_SLOW", 26),
			MACDSignal:                getEnvAsInt("TECHNICAL_MACD_SIGNAL", 9),
			SupportResistanceWindow:   getEnvAsInt("TECHNICAL_SUPPORT_RESISTANCE_WINDOW", 20),
			PriceAbove200MACeilingPct: getEnvAsFloat("TECHNICAL_PRICE_ABOVE_200MA_CEILING_PCT", 15),
			RSIOverbought:             getEnvAsFloat("TECHNICAL_RSI_OVERBOUGHT", 70),
			RSIOversoldDeep:           getEnvAsFloat("TECHNICAL_RSI_OVERSOLD_DEEP", 20),
			RSIOversoldBand:           getEnvAsFloat("TECHNICAL_RSI_OVERSOLD_BAND", 35),
		},
		Macro: MacroConfig{
			VIXNoBuys:    getEnvAsFloat("MACRO_VIX_NO_BUYS", 25),
			VIXCaution:   getEnvAsFloat("MACRO_VIX_CAUTION", 20),
			VIXFavorable: getEnvAsFloat("MACRO_VIX_FAVORABLE", 15),
		},
		Execution: ExecutionConfig{
			AutoMode:                getEnvAsBool("EXECUTION_AUTO_MODE", false),
			OrderType:               getEnv("EXECUTION_ORDER_TYPE", "LIMIT"),
			AllowMargin:             getEnvAsBool("EXECUTION_ALLOW_MARGIN", false),
			OrderFillTimeoutMinutes: getEnvAsInt("EXECUTION_ORDER_FILL_TIMEOUT_MINUTES", 15),
		},
		Simulation: SimulationConfig{
			Enabled:        getEnvAsBool("SIMULATION_ENABLED", true),
			VirtualBalance: getEnvAsFloat("SIMULATION_VIRTUAL_BALANCE", 500000),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks internal consistency of the loaded configuration.
func (c *Config) Validate() error {
	sum := c.ConfidenceWeights.Fundamental + c.ConfidenceWeights.Technical +
		c.ConfidenceWeights.Macro + c.ConfidenceWeights.RiskReward
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("confidence weights must sum to 1, got %f", sum)
	}
	if !c.Simulation.Enabled && c.Broker.ClientID == "" {
		return fmt.Errorf("BROKER_CLIENT_ID is required outside simulation mode")
	}
	if c.Execution.OrderType != "LIMIT" {
		return fmt.Errorf("order type must be LIMIT, got %q", c.Execution.OrderType)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
