// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package exec

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/zwb12580/deeplearning4j/internal/workerspool"
	"k8s.io/klog/v2"
)

// DL4J_EXECUTIONER is the environment variable with the default configuration of the executioner.
// Options given to Run and Execute take precedence over it.
//
// See ParseConfig for the format.
//
//nolint:revive,staticcheck
const DL4J_EXECUTIONER = "DL4J_EXECUTIONER"

type config struct {
	threads        int
	iterationCap   int
	deadline       time.Time
	timeout        time.Duration
	seed           uint64
	workspaceLimit uint64
	profiling      bool
	pool           *workerspool.Pool
}

// Option configures an execution.
type Option func(cfg *config)

// WithThreads sets the number of nodes of a layer executed in parallel. Values <= 0 use
// runtime.NumCPU(). With 1 thread nodes of a layer run sequentially, in ascending id order.
func WithThreads(threads int) Option {
	return func(cfg *config) {
		if threads <= 0 {
			threads = runtime.NumCPU()
		}
		cfg.threads = threads
	}
}

// WithIterationCap limits the number of iterations of each loop frame instance. 0 means unlimited.
func WithIterationCap(iterations int) Option {
	return func(cfg *config) { cfg.iterationCap = max(iterations, 0) }
}

// WithDeadline cancels the execution at the given time.
func WithDeadline(deadline time.Time) Option {
	return func(cfg *config) { cfg.deadline = deadline }
}

// WithTimeout cancels the execution if it takes longer than timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(cfg *config) { cfg.timeout = timeout }
}

// WithSeed sets the seed from which every node invocation derives its random sub-seed.
func WithSeed(seed uint64) Option {
	return func(cfg *config) { cfg.seed = seed }
}

// WithWorkspaceLimit limits the bytes a node invocation can allocate from its worker's workspace.
// Allocations beyond it fail with status.OutOfMemory. 0 means unlimited.
func WithWorkspaceLimit(bytes uint64) Option {
	return func(cfg *config) { cfg.workspaceLimit = bytes }
}

// WithProfiling collects per-node timings and allocations, returned in Result.Profile.
func WithProfiling() Option {
	return func(cfg *config) { cfg.profiling = true }
}

// WithComputePool sets the pool ops use for intra-op parallelism. By default each execution creates
// one with as many workers as threads.
func WithComputePool(pool *workerspool.Pool) Option {
	return func(cfg *config) { cfg.pool = pool }
}

// ParseConfig converts a configuration string into options. The format is a comma separated list of
// "key=value" settings:
//
//   - threads=<int>: see WithThreads.
//   - iterations=<int>: see WithIterationCap.
//   - seed=<uint64>: see WithSeed.
//   - deadline=<duration>: e.g. "2s", see WithTimeout.
//   - workspace=<bytes>: e.g. "512MiB" or "1GB", see WithWorkspaceLimit.
//   - profile[=<bool>]: see WithProfiling.
//
// Example: "threads=4,iterations=10,seed=7,deadline=2s,workspace=1MiB,profile".
func ParseConfig(config string) ([]Option, error) {
	var options []Option
	for _, setting := range strings.Split(config, ",") {
		setting = strings.TrimSpace(setting)
		if setting == "" {
			continue
		}
		key, value, hasValue := strings.Cut(setting, "=")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		var err error
		switch key {
		case "threads":
			var threads int
			threads, err = strconv.Atoi(value)
			options = append(options, WithThreads(threads))
		case "iterations":
			var iterations int
			iterations, err = strconv.Atoi(strings.ReplaceAll(value, "_", ""))
			options = append(options, WithIterationCap(iterations))
		case "seed":
			var seed uint64
			seed, err = strconv.ParseUint(value, 0, 64)
			options = append(options, WithSeed(seed))
		case "deadline":
			var timeout time.Duration
			timeout, err = time.ParseDuration(value)
			options = append(options, WithTimeout(timeout))
		case "workspace":
			var limit uint64
			limit, err = humanize.ParseBytes(value)
			options = append(options, WithWorkspaceLimit(limit))
		case "profile":
			profile := true
			if hasValue {
				profile, err = strconv.ParseBool(value)
			}
			if profile {
				options = append(options, WithProfiling())
			}
		default:
			return nil, errors.Errorf("unknown executioner setting %q in configuration %q", key, config)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse value %q of executioner setting %q", value, key)
		}
	}
	return options, nil
}

// newConfig applies the defaults, the DL4J_EXECUTIONER configuration and then options.
func newConfig(options []Option) *config {
	cfg := &config{threads: runtime.NumCPU()}
	if envConfig, found := os.LookupEnv(DL4J_EXECUTIONER); found {
		envOptions, err := ParseConfig(envConfig)
		if err != nil {
			klog.Warningf("ignoring $%s=%q: %v", DL4J_EXECUTIONER, envConfig, err)
		}
		for _, option := range envOptions {
			option(cfg)
		}
	}
	for _, option := range options {
		option(cfg)
	}
	if cfg.pool == nil {
		cfg.pool = workerspool.New(cfg.threads)
	}
	return cfg
}
