package ocfl

import (
	"time"

	"ocfl/internal/clock"
	"ocfl/internal/digest"
	"ocfl/internal/inventory"
	"ocfl/internal/lock"
	"ocfl/internal/storage"
)

// Config configures a Repository. Only Engine and WorkDirectory are
// required; everything else has a spec-mandated default applied by
// NewRepository.
type Config struct {
	Engine           storage.Engine
	Lock             lock.Lock
	Clock            clock.Clock
	WorkDirectory    string
	DigestAlgorithm  digest.Algorithm
	ContentDirectory string
	Mapper           inventory.ContentPathMapper
	LockTimeout      time.Duration
}

// ConfigOption mutates a Config under construction.
type ConfigOption func(*Config)

// WithEngine sets the storage engine a Repository is built on.
func WithEngine(engine storage.Engine) ConfigOption {
	return func(cfg *Config) { cfg.Engine = engine }
}

// WithLock sets the object lock. Defaults to lock.NewMemoryLock().
func WithLock(l lock.Lock) ConfigOption {
	return func(cfg *Config) { cfg.Lock = l }
}

// WithClock overrides the clock used to timestamp new versions.
// Defaults to clock.SystemClock.
func WithClock(c clock.Clock) ConfigOption {
	return func(cfg *Config) { cfg.Clock = c }
}

// WithWorkDirectory sets the scratch directory new versions are staged
// under before being handed to the storage engine.
func WithWorkDirectory(dir string) ConfigOption {
	return func(cfg *Config) { cfg.WorkDirectory = dir }
}

// WithDigestAlgorithm sets the digest algorithm assigned to newly
// created objects. Defaults to sha512. It has no effect on objects
// that already exist - digestAlgorithm is fixed for the life of an
// object.
func WithDigestAlgorithm(algorithm digest.Algorithm) ConfigOption {
	return func(cfg *Config) { cfg.DigestAlgorithm = algorithm }
}

// WithContentDirectory sets the content directory name assigned to
// newly created objects. Defaults to "content".
func WithContentDirectory(name string) ConfigOption {
	return func(cfg *Config) { cfg.ContentDirectory = name }
}

// WithContentPathMapper sets the mapper used to compute new blobs'
// content-relative paths. Defaults to inventory.IdentityContentPathMapper.
func WithContentPathMapper(mapper inventory.ContentPathMapper) ConfigOption {
	return func(cfg *Config) { cfg.Mapper = mapper }
}

// WithLockTimeout bounds how long a write waits to acquire an object's
// lock before failing with LockError.
func WithLockTimeout(d time.Duration) ConfigOption {
	return func(cfg *Config) { cfg.LockTimeout = d }
}

// NewConfig applies opts over the zero Config and returns the result.
// Defaults not covered here (Lock, Clock, DigestAlgorithm,
// ContentDirectory, LockTimeout) are filled in by NewRepository, since
// they depend on nothing the caller must supply.
func NewConfig(opts ...ConfigOption) Config {
	cfg := Config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
