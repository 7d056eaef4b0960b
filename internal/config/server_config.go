package config

import (
	"time"

	"github.com/SafeMPC/card-bridge/internal/util"
	"github.com/rs/zerolog"
)

// EnvPrefix 所有环境变量的前缀
const EnvPrefix = "CARD_BRIDGE_"

var logLevels = []string{"trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled"}

type Logger struct {
	Level              zerolog.Level `mapstructure:"-"`
	PrettyPrintConsole bool          `mapstructure:"pretty_print_console"`
}

type Management struct {
	ListenAddress        string        `mapstructure:"listen_address"`
	EnableRequestLogging bool          `mapstructure:"enable_request_logging"`
	ReadTimeout          time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout      time.Duration `mapstructure:"shutdown_timeout"`
}

// Card 读卡器与卡片参数
type Card struct {
	Enabled           bool          `mapstructure:"enabled"`
	KeyHandle         uint8         `mapstructure:"key_handle"`
	PIN               string        `mapstructure:"pin"`
	PCSCDaemonPath    string        `mapstructure:"pcscd_path"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	TransceiveTimeout time.Duration `mapstructure:"transceive_timeout"`
}

// Bridge 签名桥策略
type Bridge struct {
	// RejectSuperseded 为 true 时，被新请求替换的待签请求会收到 "superseded" 拒绝
	RejectSuperseded bool `mapstructure:"reject_superseded"`
}

// Chain 一条 EVM 链
type Chain struct {
	Name        string `mapstructure:"name"`
	Namespace   string `mapstructure:"namespace"`
	Reference   string `mapstructure:"reference"`
	RPCEndpoint string `mapstructure:"rpc_endpoint"`
}

type Pairing struct {
	AutoApproveSessions bool          `mapstructure:"auto_approve_sessions"`
	WriteTimeout        time.Duration `mapstructure:"write_timeout"`
	// AllowedOrigins 为空时只接受无 Origin 或同源的 websocket 连接，"*" 接受全部
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// MessagesPerSecond 每个对端的请求速率上限，0 表示不限速
	MessagesPerSecond float64 `mapstructure:"messages_per_second"`
	MessageBurst      int     `mapstructure:"message_burst"`
}

// Ledger 计数器账本，RedisAddress 为空时使用内存存储
type Ledger struct {
	RedisAddress string `mapstructure:"redis_address"`
	KeyPrefix    string `mapstructure:"key_prefix"`
}

type Server struct {
	Logger     Logger     `mapstructure:"logger"`
	Management Management `mapstructure:"management"`
	Card       Card       `mapstructure:"card"`
	Bridge     Bridge     `mapstructure:"bridge"`
	Chains     []Chain    `mapstructure:"chains"`
	Pairing    Pairing    `mapstructure:"pairing"`
	Ledger     Ledger     `mapstructure:"ledger"`
}

// DefaultChains 以太坊主网与 Goerli 测试网
func DefaultChains() []Chain {
	return []Chain{
		{
			Name:        "Ethereum",
			Namespace:   "eip155",
			Reference:   "1",
			RPCEndpoint: util.GetEnv(EnvPrefix+"CHAIN_MAINNET_RPC", "https://eth-mainnet.public.blastapi.io"),
		},
		{
			Name:        "Ethereum Goerli",
			Namespace:   "eip155",
			Reference:   "5",
			RPCEndpoint: util.GetEnv(EnvPrefix+"CHAIN_GOERLI_RPC", "https://eth-goerli.public.blastapi.io"),
		},
	}
}

// DefaultServiceConfigFromEnv returns the server config as parsed from environment variables
// and their respective defaults defined below.
// We don't expect that ENV_VARs change while we are running our application or our tests
// (and it would be a bad thing to do anyways with parallel testing).
// Do NOT use os.Setenv / os.Unsetenv in tests utilizing DefaultServiceConfigFromEnv()!
func DefaultServiceConfigFromEnv() Server {
	// An `.env.local` file in your project root can override the currently set ENV variables.
	//
	// We never automatically apply `.env.local` when running "go test" as these ENV variables
	// may be sensitive (e.g. secrets to external APIs) and applying them modifies the process
	// global "os.Env" state (it should be applied via t.Setenv instead).
	if !util.RunningInTest() {
		DotEnvTryLoad(util.GetProjectRootDir()+"/.env.local", nil)
	}

	return Server{
		Logger: Logger{
			Level:              util.LogLevelFromString(util.GetEnvEnum(EnvPrefix+"LOGGER_LEVEL", zerolog.InfoLevel.String(), logLevels)),
			PrettyPrintConsole: util.GetEnvAsBool(EnvPrefix+"LOGGER_PRETTY_PRINT_CONSOLE", false),
		},
		Management: Management{
			ListenAddress:        util.GetEnv(EnvPrefix+"MANAGEMENT_LISTEN_ADDRESS", "127.0.0.1:8080"),
			EnableRequestLogging: util.GetEnvAsBool(EnvPrefix+"MANAGEMENT_ENABLE_REQUEST_LOGGING", false),
			ReadTimeout:          util.GetEnvAsDuration(EnvPrefix+"MANAGEMENT_READ_TIMEOUT", 30*time.Second),
			ShutdownTimeout:      util.GetEnvAsDuration(EnvPrefix+"MANAGEMENT_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Card: Card{
			Enabled:           util.GetEnvAsBool(EnvPrefix+"CARD_ENABLED", true),
			KeyHandle:         uint8(util.GetEnvAsInt(EnvPrefix+"CARD_KEY_HANDLE", 1)),
			PIN:               util.GetEnv(EnvPrefix+"CARD_PIN", ""),
			PCSCDaemonPath:    util.GetEnv(EnvPrefix+"CARD_PCSCD_PATH", ""),
			PollInterval:      util.GetEnvAsDuration(EnvPrefix+"CARD_POLL_INTERVAL", time.Second),
			TransceiveTimeout: util.GetEnvAsDuration(EnvPrefix+"CARD_TRANSCEIVE_TIMEOUT", 30*time.Second),
		},
		Bridge: Bridge{
			RejectSuperseded: util.GetEnvAsBool(EnvPrefix+"BRIDGE_REJECT_SUPERSEDED", false),
		},
		Chains: DefaultChains(),
		Pairing: Pairing{
			AutoApproveSessions: util.GetEnvAsBool(EnvPrefix+"PAIRING_AUTO_APPROVE_SESSIONS", true),
			WriteTimeout:        util.GetEnvAsDuration(EnvPrefix+"PAIRING_WRITE_TIMEOUT", 10*time.Second),
			AllowedOrigins:      util.GetEnvAsStringArr(EnvPrefix+"PAIRING_ALLOWED_ORIGINS", []string{}),
			MessagesPerSecond:   util.GetEnvAsFloat(EnvPrefix+"PAIRING_MESSAGES_PER_SECOND", 10),
			MessageBurst:        util.GetEnvAsInt(EnvPrefix+"PAIRING_MESSAGE_BURST", 20),
		},
		Ledger: Ledger{
			RedisAddress: util.GetEnv(EnvPrefix+"LEDGER_REDIS_ADDRESS", ""),
			KeyPrefix:    util.GetEnv(EnvPrefix+"LEDGER_KEY_PREFIX", "card-bridge:counters:"),
		},
	}
}
