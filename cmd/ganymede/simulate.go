package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/admission"
	"mercator-hq/ganymede/pkg/admission/circuit"
	"mercator-hq/ganymede/pkg/admission/history"
	"mercator-hq/ganymede/pkg/admission/queue"
	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/telemetry/logging"
)

var simulateFlags struct {
	requests    int
	maxTokens   int
	failureRate float64
	seed        int64
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Replay a synthetic workload through the configured stack",
	Long: `Build the full admission stack (rate limiters, priority queue,
circuit breaker, decision history) from the configuration file and push a
synthetic workload through it, then print queue metrics and per-provider
rate limit statuses.

The workload spreads requests randomly across the configured providers and
priority levels. --failure-rate injects upstream failures to exercise the
circuit breaker and queue retries.

Examples:
  # 500 requests against the default config
  ganymede simulate --requests 500

  # Reproducible run with a failing upstream
  ganymede simulate --requests 200 --failure-rate 0.3 --seed 42`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().IntVar(&simulateFlags.requests, "requests", 200, "number of synthetic requests")
	simulateCmd.Flags().IntVar(&simulateFlags.maxTokens, "max-tokens", 2000, "maximum estimated tokens per request")
	simulateCmd.Flags().Float64Var(&simulateFlags.failureRate, "failure-rate", 0, "fraction of upstream calls that fail (0..1)")
	simulateCmd.Flags().Int64Var(&simulateFlags.seed, "seed", 0, "random seed (0 = time-based)")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithEnvOverrides(cfgFile)
	if err != nil {
		return err
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Config{Level: level, Format: cfg.Logging.Format})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	seed := simulateFlags.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	// Assemble the stack.
	metrics := admission.NewMetrics(prometheus.NewRegistry())

	mgr := admission.NewManager()
	mgr.SetEvents(metrics)
	for id, limits := range cfg.Providers {
		mgr.RegisterProvider(id, limits.RateLimit())
	}
	if cfg.Global != nil {
		mgr.SetGlobalLimits(cfg.Global.RateLimit())
	}

	var backend history.Backend
	if cfg.History.Enabled {
		backend, err = openHistoryBackend(cfg.History)
		if err != nil {
			return err
		}
		defer backend.Close()
		mgr.SetRecorder(backend)
	}

	providers := mgr.Providers()

	// One queue feeding the manager; each request remembers its provider.
	var providerByID sync.Map
	q := queue.New(cfg.Queue.Queue(), func(ctx context.Context, info admission.RequestInfo) error {
		p, _ := providerByID.Load(info.ID)
		return mgr.Acquire(ctx, p.(string), info)
	})
	q.SetEvents(metrics)
	defer q.Clear()

	breakerCfg := cfg.Circuit.Circuit()
	recordTransition := metrics.BreakerStateChange()
	breakerCfg.OnStateChange = func(from, to circuit.State) {
		recordTransition(from, to)
		logger.Warn("circuit state change", "from", from, "to", to)
	}
	breaker := circuit.NewBreaker(breakerCfg)

	fmt.Printf("Simulating %d requests across %d provider(s) (seed %d)\n\n",
		simulateFlags.requests, len(providers), seed)

	levels := cfg.Queue.PriorityLevels
	var wg sync.WaitGroup
	var mu sync.Mutex
	outcomes := map[string]int{}

	start := time.Now()
	for i := 0; i < simulateFlags.requests; i++ {
		provider := providers[rng.Intn(len(providers))]
		info := admission.NewRequestInfo(
			1+rng.Intn(simulateFlags.maxTokens),
			rng.Intn(levels),
			fmt.Sprintf("user-%d", rng.Intn(10)),
		)
		providerByID.Store(info.ID, provider)
		fail := rng.Float64() < simulateFlags.failureRate

		wg.Add(1)
		go func() {
			defer wg.Done()

			release, err := q.Enqueue(context.Background(), info)
			if err != nil {
				mu.Lock()
				outcomes[outcomeLabel(err)]++
				mu.Unlock()
				return
			}
			defer release()

			err = breaker.Execute(context.Background(), func(context.Context) error {
				time.Sleep(time.Duration(rng.Intn(5)) * time.Millisecond)
				if fail {
					return fmt.Errorf("simulated upstream failure")
				}
				return nil
			})

			mu.Lock()
			if err != nil {
				outcomes[outcomeLabel(err)]++
			} else {
				outcomes["completed"]++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	printOutcomes(outcomes, elapsed)
	printQueueMetrics(q.Metrics())
	printStatuses(mgr)
	fmt.Printf("\nCircuit state: %s\n", breaker.State())

	return nil
}

// openHistoryBackend builds the configured decision store.
func openHistoryBackend(cfg config.HistoryConfig) (history.Backend, error) {
	switch cfg.Backend {
	case "sqlite":
		return history.NewSQLiteBackend(cfg.SQLitePath)
	default:
		return history.NewMemoryBackendWithCapacity(cfg.MemoryCapacity), nil
	}
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, queue.ErrQueueFull):
		return "rejected (queue full)"
	case errors.Is(err, queue.ErrTimeout):
		return "timed out"
	case errors.Is(err, queue.ErrDropped):
		return "dropped"
	case errors.Is(err, queue.ErrMaxRetries):
		return "failed (retries exhausted)"
	case errors.Is(err, circuit.ErrOpen):
		return "rejected (circuit open)"
	default:
		return "failed"
	}
}

func printOutcomes(outcomes map[string]int, elapsed time.Duration) {
	keys := make([]string, 0, len(outcomes))
	for k := range outcomes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Printf("Outcomes (%s):\n", elapsed.Round(time.Millisecond))
	for _, k := range keys {
		fmt.Printf("  %-28s %d\n", k, outcomes[k])
	}
}

func printQueueMetrics(m queue.Metrics) {
	fmt.Println("\nQueue metrics:")
	fmt.Printf("  enqueued    %-6d dispatched %-6d completed %d\n", m.Enqueued, m.Dispatched, m.Completed)
	fmt.Printf("  retried     %-6d timed out  %-6d dropped   %-6d failed %d\n", m.Retried, m.TimedOut, m.Dropped, m.Failed)
	fmt.Printf("  avg wait    %s\n", m.AvgWait.Round(time.Microsecond))
	fmt.Printf("  avg process %s\n", m.AvgProcessing.Round(time.Microsecond))
	fmt.Printf("  throughput  %.1f req/s\n", m.Throughput)
}

func printStatuses(mgr *admission.Manager) {
	fmt.Println("\nProvider statuses:")
	for id, status := range mgr.AllStatuses() {
		fmt.Printf("  %-16s %6d req remaining  %9d tok remaining  reset %s\n",
			id, status.RequestsRemaining, status.TokensRemaining,
			status.Reset.Format(time.TimeOnly))
	}
	if status, ok := mgr.GlobalStatus(); ok {
		fmt.Printf("  %-16s %6d req remaining  %9d tok remaining\n",
			"(global)", status.RequestsRemaining, status.TokensRemaining)
	}
}
