package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/udisondev/botsim/internal/action"
)

// DefaultPath is where the config is looked up when BOTSIM_CONFIG is unset.
const DefaultPath = "config/botsim.yaml"

// Config holds all configuration of the simulation process.
type Config struct {
	LogLevel     string        `yaml:"log_level"`
	TickInterval time.Duration `yaml:"tick_interval"`
	Maps         []uint32      `yaml:"maps"`

	Spatial    Spatial    `yaml:"spatial"`
	Queue      Queue      `yaml:"queue"`
	Workers    Workers    `yaml:"workers"`
	Validation Validation `yaml:"validation"`
	Rules      Rules      `yaml:"rules"`
	Bots       Bots       `yaml:"bots"`
	Journal    Journal    `yaml:"journal"`
	Observer   Observer   `yaml:"observer"`
}

// Spatial configures the per-map snapshot indexes.
type Spatial struct {
	CellSize     float64 `yaml:"cell_size"`
	WriteShards  int     `yaml:"write_shards"`
	WriteWorkers int     `yaml:"write_workers"` // helpers filling the write buffer
}

// Queue configures the action queue.
type Queue struct {
	Capacity int `yaml:"capacity"`
}

// Workers configures the decision loop.
type Workers struct {
	Count     int           `yaml:"count"`
	Interval  time.Duration `yaml:"interval"`
	ChunkSize int           `yaml:"chunk_size"`
}

// Validation configures the action validator.
type Validation struct {
	GlobalCooldown time.Duration     `yaml:"global_cooldown"`
	LineOfSight    bool              `yaml:"line_of_sight"`
	DefaultSkip    action.SkipChecks `yaml:"default_skip"`
}

// Rules tunes the reference rules engine.
type Rules struct {
	MeleeRange    float64       `yaml:"melee_range"`
	InteractRange float64       `yaml:"interact_range"`
	MoveReach     float64       `yaml:"move_reach"`
	MaxMoveStep   float64       `yaml:"max_move_step"`
	MeleeDamage   int64         `yaml:"melee_damage"`
	PowerRegen    int64         `yaml:"power_regen"`
	CombatTimeout time.Duration `yaml:"combat_timeout"`
	CorpseDecay   time.Duration `yaml:"corpse_decay"`
}

// Bots configures the demo population.
type Bots struct {
	Count       int     `yaml:"count"`
	Brain       string  `yaml:"brain"`  // "aggro" or "lua"
	Script      string  `yaml:"script"` // Lua script path for brain "lua"
	SightRadius float64 `yaml:"sight_radius"`
	Creatures   int     `yaml:"creatures"`
	Chests      int     `yaml:"chests"`
	AreaSize    float64 `yaml:"area_size"` // side of the square populated on each map
	Walls       int     `yaml:"walls"`
	Seed        uint64  `yaml:"seed"`
}

// Journal configures outcome persistence.
type Journal struct {
	Enabled       bool           `yaml:"enabled"`
	Database      DatabaseConfig `yaml:"database"`
	BatchSize     int            `yaml:"batch_size"`
	FlushInterval time.Duration  `yaml:"flush_interval"`
	Buffer        int            `yaml:"buffer"`
	SkipApplied   bool           `yaml:"skip_applied"`
}

// Observer configures the websocket feed.
type Observer struct {
	Enabled    bool   `yaml:"enabled"`
	Addr       string `yaml:"addr"`
	SendBuffer int    `yaml:"send_buffer"`
	Sample     int    `yaml:"sample"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// Default returns Config with sensible defaults.
func Default() Config {
	return Config{
		LogLevel:     "info",
		TickInterval: 50 * time.Millisecond,
		Maps:         []uint32{1},
		Spatial: Spatial{
			CellSize:     64,
			WriteShards:  8,
			WriteWorkers: 4,
		},
		Queue: Queue{Capacity: 65536},
		Workers: Workers{
			Count:     4,
			Interval:  100 * time.Millisecond,
			ChunkSize: 64,
		},
		Validation: Validation{
			GlobalCooldown: 1500 * time.Millisecond,
			LineOfSight:    true,
		},
		Rules: Rules{
			MeleeRange:    5,
			InteractRange: 5,
			MoveReach:     100,
			MaxMoveStep:   15,
			MeleeDamage:   8,
			PowerRegen:    5,
			CombatTimeout: 5 * time.Second,
			CorpseDecay:   30 * time.Second,
		},
		Bots: Bots{
			Count:       200,
			Brain:       "aggro",
			Script:      "scripts/hunt.lua",
			SightRadius: 60,
			Creatures:   400,
			Chests:      40,
			AreaSize:    1000,
			Walls:       20,
			Seed:        1,
		},
		Journal: Journal{
			Database: DatabaseConfig{
				Host:     "127.0.0.1",
				Port:     5432,
				User:     "botsim",
				Password: "botsim",
				DBName:   "botsim",
				SSLMode:  "disable",
			},
			BatchSize:     1024,
			FlushInterval: time.Second,
			Buffer:        256,
		},
		Observer: Observer{
			Addr:       "127.0.0.1:7780",
			SendBuffer: 16,
			Sample:     8,
		},
	}
}

// Path returns the config path: BOTSIM_CONFIG or DefaultPath.
func Path() string {
	if p := os.Getenv("BOTSIM_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// Load loads config from a YAML file and validates it.
// If the file doesn't exist, returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validating config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error", "":
	default:
		errs = append(errs, fmt.Errorf("log_level %q: want debug, info, warn or error", c.LogLevel))
	}
	check(c.TickInterval > 0, "tick_interval must be positive, got %s", c.TickInterval)
	check(len(c.Maps) > 0, "maps must not be empty")
	check(c.Spatial.CellSize >= 1, "spatial.cell_size must be at least 1, got %g", c.Spatial.CellSize)
	check(c.Spatial.WriteShards > 0, "spatial.write_shards must be positive, got %d", c.Spatial.WriteShards)
	check(c.Queue.Capacity > 0, "queue.capacity must be positive, got %d", c.Queue.Capacity)
	check(c.Workers.Count > 0, "workers.count must be positive, got %d", c.Workers.Count)
	check(c.Workers.Interval > 0, "workers.interval must be positive, got %s", c.Workers.Interval)
	check(c.Validation.GlobalCooldown >= 0, "validation.global_cooldown must not be negative")
	check(c.Rules.MaxMoveStep > 0, "rules.max_move_step must be positive, got %g", c.Rules.MaxMoveStep)
	check(c.Bots.Count >= 0, "bots.count must not be negative")
	check(c.Bots.AreaSize > 0, "bots.area_size must be positive, got %g", c.Bots.AreaSize)

	switch c.Bots.Brain {
	case "aggro":
	case "lua":
		check(c.Bots.Script != "", "bots.script is required for brain lua")
	default:
		errs = append(errs, fmt.Errorf("bots.brain %q: want aggro or lua", c.Bots.Brain))
	}

	if c.Journal.Enabled {
		check(c.Journal.BatchSize > 0, "journal.batch_size must be positive, got %d", c.Journal.BatchSize)
		check(c.Journal.FlushInterval > 0, "journal.flush_interval must be positive, got %s", c.Journal.FlushInterval)
	}
	if c.Observer.Enabled {
		check(c.Observer.Addr != "", "observer.addr is required when the observer is enabled")
	}
	return errors.Join(errs...)
}
