package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"fulcrum-hq/portunus/pkg/cli"
)

var benchmarkFlags struct {
	target      string
	key         string
	model       string
	prompt      string
	duration    time.Duration
	rate        int
	concurrency int
}

var benchmarkCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "Load test a running proxy",
	Long: `Send synthetic chat completions to a running proxy at a fixed rate
and report throughput, latency percentiles, and status code counts.

Requests hit POST /v1/chat/completions with a short non-streaming
prompt, so every response flows through authentication, the catalog
check, the upstream call, and usage recording. Point it at a staging
deployment with a test key; the upstream will bill for the tokens.

Examples:
  # 30 seconds at 10 req/s
  portunus benchmark --target http://localhost:8092 --key sk-... --model gpt-4o-mini

  # Heavier load, more client connections
  portunus benchmark --duration 60s --rate 100 --concurrency 10 --key sk-...`,
	RunE: runBenchmark,
}

func init() {
	rootCmd.AddCommand(benchmarkCmd)

	benchmarkCmd.Flags().StringVar(&benchmarkFlags.target, "target", "http://localhost:8092", "proxy base URL")
	benchmarkCmd.Flags().StringVar(&benchmarkFlags.key, "key", "", "API key sent as Bearer credential")
	benchmarkCmd.Flags().StringVar(&benchmarkFlags.model, "model", "gpt-4o-mini", "model to request")
	benchmarkCmd.Flags().StringVar(&benchmarkFlags.prompt, "prompt", "Reply with the single word: ok", "user message to send")
	benchmarkCmd.Flags().DurationVar(&benchmarkFlags.duration, "duration", 30*time.Second, "test duration")
	benchmarkCmd.Flags().IntVar(&benchmarkFlags.rate, "rate", 10, "requests per second")
	benchmarkCmd.Flags().IntVar(&benchmarkFlags.concurrency, "concurrency", 4, "concurrent clients")
}

type benchmarkResults struct {
	total     int64
	errored   int64
	elapsed   time.Duration
	latencies []time.Duration
	statuses  map[int]int64
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	if benchmarkFlags.rate <= 0 {
		return fmt.Errorf("--rate must be positive")
	}
	if benchmarkFlags.concurrency <= 0 {
		benchmarkFlags.concurrency = 1
	}

	fmt.Println("Portunus Benchmark")
	fmt.Println("==================")
	fmt.Printf("Target:      %s\n", benchmarkFlags.target)
	fmt.Printf("Model:       %s\n", benchmarkFlags.model)
	fmt.Printf("Duration:    %s\n", benchmarkFlags.duration)
	fmt.Printf("Rate:        %d req/s\n", benchmarkFlags.rate)
	fmt.Printf("Concurrency: %d\n", benchmarkFlags.concurrency)
	fmt.Println()

	results, err := runLoadTest()
	if err != nil {
		return cli.NewCommandError("benchmark", err)
	}

	displayResults(results)
	return nil
}

func runLoadTest() (*benchmarkResults, error) {
	body, err := json.Marshal(map[string]any{
		"model": benchmarkFlags.model,
		"messages": []map[string]string{
			{"role": "user", "content": benchmarkFlags.prompt},
		},
		"max_tokens": 8,
	})
	if err != nil {
		return nil, err
	}

	planned := int64(benchmarkFlags.duration.Seconds()) * int64(benchmarkFlags.rate)
	if planned <= 0 {
		planned = 1
	}

	results := &benchmarkResults{
		latencies: make([]time.Duration, 0, planned),
		statuses:  make(map[int]int64),
	}

	client := &http.Client{Timeout: 60 * time.Second}
	url := benchmarkFlags.target + "/v1/chat/completions"

	// Ctrl+C stops the pacer; in-flight requests abort with it.
	sigCtx := cli.SetupSignalHandler()
	paceCtx, cancel := context.WithTimeout(sigCtx, benchmarkFlags.duration)
	defer cancel()

	progress := cli.NewProgressReporter(nil)
	progress.Start(planned)

	ticks := make(chan struct{}, benchmarkFlags.concurrency)
	go func() {
		defer close(ticks)
		interval := time.Second / time.Duration(benchmarkFlags.rate)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for sent := int64(0); sent < planned; sent++ {
			select {
			case <-paceCtx.Done():
				return
			case <-ticker.C:
				select {
				case ticks <- struct{}{}:
				case <-paceCtx.Done():
					return
				}
			}
		}
	}()

	var (
		mu   sync.Mutex
		done int64
	)
	start := time.Now()

	g, gctx := errgroup.WithContext(sigCtx)
	for i := 0; i < benchmarkFlags.concurrency; i++ {
		g.Go(func() error {
			for range ticks {
				reqStart := time.Now()

				req, err := http.NewRequestWithContext(gctx, http.MethodPost, url, bytes.NewReader(body))
				if err != nil {
					return err
				}
				req.Header.Set("Content-Type", "application/json")
				if benchmarkFlags.key != "" {
					req.Header.Set("Authorization", "Bearer "+benchmarkFlags.key)
				}

				resp, err := client.Do(req)
				if err != nil {
					if gctx.Err() != nil {
						return nil
					}
					atomic.AddInt64(&results.errored, 1)
					progress.Update(atomic.AddInt64(&done, 1))
					continue
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				_ = resp.Body.Close()

				latency := time.Since(reqStart)
				mu.Lock()
				results.latencies = append(results.latencies, latency)
				results.statuses[resp.StatusCode]++
				mu.Unlock()
				progress.Update(atomic.AddInt64(&done, 1))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	progress.Finish()

	results.elapsed = time.Since(start)
	results.total = atomic.LoadInt64(&done)
	return results, nil
}

func displayResults(results *benchmarkResults) {
	fmt.Println()
	fmt.Println("Results:")
	fmt.Println("--------")
	fmt.Printf("Requests:   %d completed, %d transport errors\n", results.total, results.errored)
	fmt.Printf("Duration:   %.1fs\n", results.elapsed.Seconds())
	if results.elapsed > 0 {
		fmt.Printf("Throughput: %.2f req/s\n", float64(results.total)/results.elapsed.Seconds())
	}

	if len(results.latencies) > 0 {
		sorted := make([]time.Duration, len(results.latencies))
		copy(sorted, results.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum time.Duration
		for _, l := range sorted {
			sum += l
		}
		mean := sum / time.Duration(len(sorted))

		fmt.Println()
		fmt.Println("Latency:")
		fmt.Printf("  Min:    %s\n", formatLatency(sorted[0]))
		fmt.Printf("  Mean:   %s\n", formatLatency(mean))
		fmt.Printf("  Median: %s\n", formatLatency(percentile(sorted, 0.50)))
		fmt.Printf("  p95:    %s\n", formatLatency(percentile(sorted, 0.95)))
		fmt.Printf("  p99:    %s\n", formatLatency(percentile(sorted, 0.99)))
		fmt.Printf("  Max:    %s\n", formatLatency(sorted[len(sorted)-1]))
	}

	if len(results.statuses) > 0 {
		codes := make([]int, 0, len(results.statuses))
		for code := range results.statuses {
			codes = append(codes, code)
		}
		sort.Ints(codes)

		fmt.Println()
		fmt.Println("Status Codes:")
		for _, code := range codes {
			count := results.statuses[code]
			fmt.Printf("  %d:    %d (%.0f%%)\n", code, count, float64(count)/float64(results.total)*100)
		}
	}
}

// percentile indexes into a sorted latency slice. p is 0.0 to 1.0.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func formatLatency(d time.Duration) string {
	return fmt.Sprintf("%.1fms", float64(d.Microseconds())/1000)
}
