package world

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rotisserie/eris"

	"github.com/argus-labs/tabletop/gamedata"
	"github.com/argus-labs/tabletop/micro"
	"github.com/argus-labs/tabletop/snapshot"
)

// worldConfig holds the configuration read from the environment.
type worldConfig struct {
	// Name of the world. Replication subjects and storage keys are derived from it.
	WorldID string `env:"TABLETOP_WORLD_ID" envDefault:"tabletop"`

	// Replication role ("standalone", "host", "follower").
	Mode string `env:"TABLETOP_MODE" envDefault:"standalone"`

	// Port of the HTTP API.
	HTTPPort string `env:"TABLETOP_HTTP_PORT" envDefault:"4040"`

	// Disables the HTTP API.
	HTTPDisabled bool `env:"TABLETOP_HTTP_DISABLED" envDefault:"false"`

	// YAML file holding setup definitions.
	SetupFile string `env:"TABLETOP_SETUP_FILE"`

	// Snapshot document loaded when no snapshot was saved yet.
	SeedFile string `env:"TABLETOP_SEED_FILE"`

	// Setup run once when the world starts without a saved snapshot.
	InitialSetup string `env:"TABLETOP_INITIAL_SETUP"`

	// Seed for setup shuffles and random picks.
	SetupSeed uint64 `env:"TABLETOP_SETUP_SEED" envDefault:"1"`

	// How stale change records are handled ("ignore", "warn", "reject").
	VersionCheck string `env:"TABLETOP_VERSION_CHECK" envDefault:"ignore"`

	// Whether mutations are queued as a pending transaction. Off means every mutation commits immediately.
	TrackChanges bool `env:"TABLETOP_TRACK_CHANGES" envDefault:"true"`

	// Commits the pending transaction on this interval. Zero leaves committing to API callers.
	CommitInterval time.Duration `env:"TABLETOP_COMMIT_INTERVAL" envDefault:"0s"`

	// Saves a snapshot on this interval. Zero only saves on shutdown.
	SnapshotInterval time.Duration `env:"TABLETOP_SNAPSHOT_INTERVAL" envDefault:"1m"`

	// Snapshot storage ("nop", "file", "redis", "jetstream", "sqlite", "postgres").
	SnapshotStorage string `env:"TABLETOP_SNAPSHOT_STORAGE" envDefault:"nop"`

	// File path for the file and sqlite storages.
	SnapshotPath string `env:"TABLETOP_SNAPSHOT_PATH" envDefault:"tabletop.snapshot"`

	// Connection string for the postgres storage.
	SnapshotDSN string `env:"TABLETOP_SNAPSHOT_DSN"`

	RedisAddress  string `env:"REDIS_ADDRESS" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
}

func loadWorldConfig() (worldConfig, error) {
	cfg := worldConfig{}

	if err := env.Parse(&cfg); err != nil {
		return cfg, eris.Wrap(err, "failed to parse world config")
	}

	if err := cfg.validate(); err != nil {
		return cfg, eris.Wrap(err, "failed to validate config")
	}

	return cfg, nil
}

func (cfg *worldConfig) validate() error {
	if cfg.WorldID == "" {
		return eris.New("world ID cannot be empty")
	}
	if _, err := ParseMode(cfg.Mode); err != nil {
		return err
	}
	if _, err := gamedata.ParseVersionPolicy(cfg.VersionCheck); err != nil {
		return err
	}
	if _, err := snapshot.ParseStorageType(cfg.SnapshotStorage); err != nil {
		return err
	}
	if cfg.CommitInterval < 0 || cfg.SnapshotInterval < 0 {
		return eris.New("intervals cannot be negative")
	}
	return nil
}

func (cfg *worldConfig) applyToOptions(opt *Options) {
	// Values were checked by validate.
	mode, _ := ParseMode(cfg.Mode)
	policy, _ := gamedata.ParseVersionPolicy(cfg.VersionCheck)
	storage, _ := snapshot.ParseStorageType(cfg.SnapshotStorage)

	opt.WorldID = cfg.WorldID
	opt.Mode = mode
	opt.HTTPPort = cfg.HTTPPort
	opt.HTTPDisabled = cfg.HTTPDisabled
	opt.SetupFile = cfg.SetupFile
	opt.SeedFile = cfg.SeedFile
	opt.InitialSetup = cfg.InitialSetup
	opt.SetupSeed = cfg.SetupSeed
	opt.VersionCheck = policy
	opt.TrackChanges = cfg.TrackChanges
	opt.CommitInterval = cfg.CommitInterval
	opt.SnapshotInterval = cfg.SnapshotInterval
	opt.SnapshotStorageType = storage
	opt.SnapshotPath = cfg.SnapshotPath
	opt.SnapshotDSN = cfg.SnapshotDSN
	opt.RedisAddress = cfg.RedisAddress
	opt.RedisPassword = cfg.RedisPassword
}

// Options configure a World. Zero fields keep the value read from the environment. TrackChanges can only be
// turned off through TABLETOP_TRACK_CHANGES.
type Options struct {
	WorldID             string
	Mode                Mode
	HTTPPort            string
	HTTPDisabled        bool
	SetupFile           string
	SeedFile            string
	InitialSetup        string
	SetupSeed           uint64
	VersionCheck        gamedata.VersionPolicy
	TrackChanges        bool
	CommitInterval      time.Duration
	SnapshotInterval    time.Duration
	SnapshotStorageType snapshot.StorageType
	SnapshotPath        string
	SnapshotDSN         string
	RedisAddress        string
	RedisPassword       string

	// Client is used instead of connecting with the NATS environment.
	Client *micro.Client
	// Storage is used instead of building one from SnapshotStorageType.
	Storage snapshot.Storage
}

func newDefaultOptions() Options {
	return Options{
		Mode:                ModeStandalone,
		SnapshotStorageType: snapshot.StorageTypeNop,
		TrackChanges:        true,
	}
}

// apply merges the given options into the current options, overriding non-zero values.
func (opt *Options) apply(newOpt Options) {
	if newOpt.WorldID != "" {
		opt.WorldID = newOpt.WorldID
	}
	if newOpt.Mode != ModeUndefined {
		opt.Mode = newOpt.Mode
	}
	if newOpt.HTTPPort != "" {
		opt.HTTPPort = newOpt.HTTPPort
	}
	if newOpt.HTTPDisabled {
		opt.HTTPDisabled = true
	}
	if newOpt.SetupFile != "" {
		opt.SetupFile = newOpt.SetupFile
	}
	if newOpt.SeedFile != "" {
		opt.SeedFile = newOpt.SeedFile
	}
	if newOpt.InitialSetup != "" {
		opt.InitialSetup = newOpt.InitialSetup
	}
	if newOpt.SetupSeed != 0 {
		opt.SetupSeed = newOpt.SetupSeed
	}
	if newOpt.VersionCheck != gamedata.VersionIgnore {
		opt.VersionCheck = newOpt.VersionCheck
	}
	if newOpt.CommitInterval != 0 {
		opt.CommitInterval = newOpt.CommitInterval
	}
	if newOpt.SnapshotInterval != 0 {
		opt.SnapshotInterval = newOpt.SnapshotInterval
	}
	if newOpt.SnapshotStorageType != snapshot.StorageTypeUndefined {
		opt.SnapshotStorageType = newOpt.SnapshotStorageType
	}
	if newOpt.SnapshotPath != "" {
		opt.SnapshotPath = newOpt.SnapshotPath
	}
	if newOpt.SnapshotDSN != "" {
		opt.SnapshotDSN = newOpt.SnapshotDSN
	}
	if newOpt.RedisAddress != "" {
		opt.RedisAddress = newOpt.RedisAddress
	}
	if newOpt.RedisPassword != "" {
		opt.RedisPassword = newOpt.RedisPassword
	}
	if newOpt.Client != nil {
		opt.Client = newOpt.Client
	}
	if newOpt.Storage != nil {
		opt.Storage = newOpt.Storage
	}
}

func (opt *Options) validate() error {
	if opt.WorldID == "" {
		return eris.New("world ID cannot be empty")
	}
	if !opt.Mode.IsValid() {
		return eris.Errorf("invalid mode: %s", opt.Mode)
	}
	if opt.Storage == nil && !opt.SnapshotStorageType.IsValid() {
		return eris.Errorf("invalid snapshot storage type: %s", opt.SnapshotStorageType)
	}
	if opt.Mode == ModeFollower && (opt.InitialSetup != "" || opt.SeedFile != "") {
		return eris.New("followers take their state from the host and cannot use a seed or initial setup")
	}
	if opt.Mode == ModeFollower && opt.CommitInterval > 0 {
		return eris.New("followers cannot commit")
	}
	switch opt.SnapshotStorageType { //nolint:exhaustive // the rest need no settings
	case snapshot.StorageTypeFile, snapshot.StorageTypeSQLite:
		if opt.SnapshotPath == "" {
			return eris.Errorf("%s snapshot storage needs a path", opt.SnapshotStorageType)
		}
	case snapshot.StorageTypePostgres:
		if opt.SnapshotDSN == "" {
			return eris.New("postgres snapshot storage needs a DSN")
		}
	}
	return nil
}
