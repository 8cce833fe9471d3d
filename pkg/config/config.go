package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// MustLoad loads the configuration from environment variables and .env file.
func MustLoad[T any](cfg T) {
	_ = godotenv.Load() // Load environment variables from .env file

	env.Must(cfg, env.Parse(cfg))
}

// Load loads the configuration from environment variables and .env file.
func Load[T any](cfg T) error {
	_ = godotenv.Load() // .env file is optional

	if err := env.Parse(cfg); err != nil {
		return err // Return error if environment variable parsing fails
	}

	return nil
}

// Config holds the configuration for the simulator. Seed fixes every random
// draw of a run; DataDir is where snapshot CSVs are read from and written to.
// Mode selects the flow driver: "hawkes" generates synthetic flow, "replay"
// feeds the recorded real trades through the book instead.
type Config struct {
	Pair             string           `env:"PAIR" envDefault:"XBTUSD"`
	Mode             string           `env:"MODE" envDefault:"hawkes"`
	Seed             int64            `env:"SEED" envDefault:"42"`
	LogLevel         string           `env:"LOG_LEVEL" envDefault:"info"`
	DataDir          string           `env:"DATA_DIR" envDefault:"data"`
	HawkesParamsFile string           `env:"HAWKES_PARAMS_FILE" envDefault:""`
	Simulation       SimulationConfig `envPrefix:"SIM_"`
	Kafka            KafkaConfig      `envPrefix:"KAFKA_"`
	Redis            RedisConfig      `envPrefix:"REDIS_"`
	Recorder         RecorderConfig   `envPrefix:"RECORDER_"`
}

// SimulationConfig holds the run-loop and order-construction parameters.
// MaxDuration is in simulated seconds; zero disables it, like the other stop
// conditions. PriceOffsetMax bounds how far limit prices land from the touch,
// Tick is the price rounding increment, QuantityLogMean/Sigma shape the
// lognormal size distribution above the MinQuantity floor, and ReferencePrice
// is the fallback mid when a book side is empty. Decimal-valued knobs are
// strings so they parse exactly.
type SimulationConfig struct {
	MaxEvents        int           `env:"MAX_EVENTS" envDefault:"500"`
	MaxDuration      float64       `env:"MAX_DURATION" envDefault:"0"`
	WallClockBudget  time.Duration `env:"WALL_CLOCK_BUDGET" envDefault:"0"`
	MetricsWindow    int           `env:"METRICS_WINDOW" envDefault:"100"`
	VolWindow        int           `env:"VOL_WINDOW" envDefault:"50"`
	UserOrdersExcite bool          `env:"USER_ORDERS_EXCITE" envDefault:"true"`
	PriceOffsetMax   string        `env:"PRICE_OFFSET_MAX" envDefault:"20"`
	Tick             string        `env:"TICK" envDefault:"0.1"`
	QuantityLogMean  float64       `env:"QTY_LOG_MEAN" envDefault:"-2"`
	QuantityLogSigma float64       `env:"QTY_LOG_SIGMA" envDefault:"1"`
	MinQuantity      string        `env:"MIN_QTY" envDefault:"0.001"`
	ReferencePrice   string        `env:"REFERENCE_PRICE" envDefault:"68000"`
}

// KafkaConfig holds the configuration for the trade publisher.
type KafkaConfig struct {
	Enabled bool     `env:"ENABLED" envDefault:"false"`
	Topic   string   `env:"TOPIC" envDefault:"trades"`
	Brokers []string `env:"BROKERS" envDefault:"localhost:9092"`
}

// RedisConfig holds the configuration for the book snapshot store.
type RedisConfig struct {
	Enabled  bool   `env:"ENABLED" envDefault:"false"`
	Address  string `env:"ADDRESS" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	Username string `env:"USERNAME" envDefault:""`
	DB       int    `env:"DB" envDefault:"0"`
}

// RecorderConfig holds the configuration for the sqlite run recorder.
type RecorderConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"false"`
	Path    string `env:"PATH" envDefault:"simulation.db"`
}
