package params

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Market struct {
	// EngineAddr is the identity makers grant transfer approval to.
	EngineAddr   string
	AdminAddr    string
	TreasuryAddr string
	FeeBps       int64
}

type Server struct {
	ListenAddr string
	DataDir    string
	LogFile    string
}

type Config struct {
	Market Market
	Server Server
}

func Default() Config {
	return Config{
		Market: Market{
			EngineAddr:   "0x0000000000000000000000000000000000000001",
			AdminAddr:    "0x0000000000000000000000000000000000000002",
			TreasuryAddr: "0x0000000000000000000000000000000000000003",
			FeeBps:       150,
		},
		Server: Server{
			ListenAddr: ":8080",
			DataDir:    "data/journal",
			LogFile:    "data/marketd.log",
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("ENGINE_ADDR"); v != "" {
		cfg.Market.EngineAddr = v
	}
	if v := os.Getenv("ADMIN_ADDR"); v != "" {
		cfg.Market.AdminAddr = v
	}
	if v := os.Getenv("TREASURY_ADDR"); v != "" {
		cfg.Market.TreasuryAddr = v
	}
	if v := os.Getenv("FEE_BPS"); v != "" {
		if bps, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Market.FeeBps = bps
		}
	}
	if v := os.Getenv("LISTEN"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Server.DataDir = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Server.LogFile = v
	}
	return cfg
}
