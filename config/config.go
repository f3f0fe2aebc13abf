package config

import (
	"fmt"
	"os"
	"runtime"

	"github.com/pelletier/go-toml/v2"

	"github.com/lars-frogner/Impact-sub013/voxerr"
)

const (
	DefaultVoxelExtent = 0.25
	DefaultChunkSize   = 32
	MinChunkSize       = 4
	// MaxChunkSize keeps the (N+1)³ lattice corners of a chunk addressable
	// with 16-bit mesh indices.
	MaxChunkSize = 32
)

// ThreadPool controls the worker pool used for generation and refresh.
type ThreadPool struct {
	Workers       int `toml:"workers"`
	QueueCapacity int `toml:"queue_capacity"`
}

type Config struct {
	VoxelExtent float64    `toml:"voxel_extent"`
	ChunkSize   int        `toml:"chunk_size"`
	ThreadPool  ThreadPool `toml:"thread_pool"`
}

func Default() Config {
	workers := runtime.NumCPU()
	return Config{
		VoxelExtent: DefaultVoxelExtent,
		ChunkSize:   DefaultChunkSize,
		ThreadPool:  ThreadPool{Workers: workers, QueueCapacity: 4 * workers},
	}
}

// Load reads a TOML file. Missing keys keep their default values.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: read config %s: %v", voxerr.ErrIO, path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: decode config: %v", voxerr.ErrConfigurationInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if !(c.VoxelExtent > 0) {
		return fmt.Errorf("%w: voxel_extent must be positive (got %g)", voxerr.ErrConfigurationInvalid, c.VoxelExtent)
	}
	if c.ChunkSize < MinChunkSize || c.ChunkSize > MaxChunkSize || c.ChunkSize&(c.ChunkSize-1) != 0 {
		return fmt.Errorf("%w: chunk_size must be a power of two in [%d, %d] (got %d)", voxerr.ErrConfigurationInvalid, MinChunkSize, MaxChunkSize, c.ChunkSize)
	}
	if c.ThreadPool.Workers <= 0 {
		return fmt.Errorf("%w: thread_pool.workers must be positive", voxerr.ErrConfigurationInvalid)
	}
	if c.ThreadPool.QueueCapacity <= 0 {
		return fmt.Errorf("%w: thread_pool.queue_capacity must be positive", voxerr.ErrConfigurationInvalid)
	}
	return nil
}

// Marshal encodes the configuration back to TOML.
func (c Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}
