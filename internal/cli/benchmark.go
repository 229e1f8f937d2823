package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/khanglvm/tool-hub-search/internal/workflow"
	"github.com/spf13/cobra"
)

// defaultBenchmarkQueries cover the three retrieval strategies' usual
// inputs: plain tasks, keyword-heavy tasks and server choices.
var defaultBenchmarkQueries = []string{
	"read the contents of a file",
	"create a new issue in a repository",
	"search the web for recent news",
	"send a message to a channel",
	"query a database table",
}

// BenchmarkResult summarizes one mode.
type BenchmarkResult struct {
	Mode    string        `json:"mode"`
	Runs    int           `json:"runs"`
	Failed  int           `json:"failed"`
	Mean    time.Duration `json:"mean_ns"`
	P50     time.Duration `json:"p50_ns"`
	P95     time.Duration `json:"p95_ns"`
	TopHits []string      `json:"top_hits"`
}

// NewBenchmarkCmd creates the 'benchmark' command for measuring search
// latency per mode.
func NewBenchmarkCmd(g *globalOptions) *cobra.Command {
	var (
		queries    []string
		rounds     int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Measure search latency for each mode",
		Long: `Run a fixed set of queries through every search mode against the
current index and report latency percentiles and the top hit per query.

Run 'tool-hub-search sync' first so the index is populated.`,
		Example: `  tool-hub-search benchmark
  tool-hub-search benchmark --query "list pull requests" --rounds 10 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(queries) == 0 {
				queries = defaultBenchmarkQueries
			}

			app, err := newApp(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer app.Close()

			results := runBenchmark(cmd.Context(), app.Workflow, queries, rounds)
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), results)
			}
			printBenchmark(cmd.OutOrStdout(), queries, results)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&queries, "query", "q", nil, "Query to run (repeatable)")
	cmd.Flags().IntVarP(&rounds, "rounds", "r", 3, "Repetitions per query")
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	return cmd
}

// runner is the subset of the workflow the benchmark drives.
type runner interface {
	Run(ctx context.Context, req workflow.Request) (workflow.Response, error)
}

func runBenchmark(ctx context.Context, r runner, queries []string, rounds int) []BenchmarkResult {
	if rounds <= 0 {
		rounds = 1
	}

	modes := []string{"semantic", "hybrid", "context_aware"}
	results := make([]BenchmarkResult, 0, len(modes))
	for _, mode := range modes {
		res := BenchmarkResult{Mode: mode, TopHits: make([]string, len(queries))}
		var durations []time.Duration

		for qi, q := range queries {
			for i := 0; i < rounds; i++ {
				start := time.Now()
				resp, err := r.Run(ctx, workflow.Request{Query: q, Mode: mode, ThreadID: "benchmark"})
				durations = append(durations, time.Since(start))
				res.Runs++

				if err != nil || resp.Error != "" {
					res.Failed++
					continue
				}
				if i == 0 && len(resp.Tools) > 0 {
					res.TopHits[qi] = resp.Tools[0].ToolName
				}
			}
		}

		res.Mean, res.P50, res.P95 = summarize(durations)
		results = append(results, res)
	}
	return results
}

// summarize returns the mean, median and 95th percentile.
func summarize(durations []time.Duration) (mean, p50, p95 time.Duration) {
	if len(durations) == 0 {
		return 0, 0, 0
	}

	sorted := append([]time.Duration(nil), durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	mean = total / time.Duration(len(sorted))
	p50 = sorted[(len(sorted)-1)/2]
	p95 = sorted[(len(sorted)-1)*95/100]
	return mean, p50, p95
}

func printBenchmark(w io.Writer, queries []string, results []BenchmarkResult) {
	fmt.Fprintln(w, "╔════════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║                  SEARCH LATENCY BENCHMARK                      ║")
	fmt.Fprintln(w, "╚════════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  %-14s %6s %6s %10s %10s %10s\n", "MODE", "RUNS", "FAIL", "MEAN", "P50", "P95")
	for _, r := range results {
		fmt.Fprintf(w, "  %-14s %6d %6d %10s %10s %10s\n", r.Mode, r.Runs, r.Failed,
			r.Mean.Round(time.Microsecond), r.P50.Round(time.Microsecond), r.P95.Round(time.Microsecond))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "  Top hit per query:")
	for qi, q := range queries {
		fmt.Fprintf(w, "    %q\n", q)
		for _, r := range results {
			hit := r.TopHits[qi]
			if hit == "" {
				hit = "-"
			}
			fmt.Fprintf(w, "      %-14s %s\n", r.Mode, hit)
		}
	}
}
