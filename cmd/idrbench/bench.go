package main

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/arcanelabs/idr"
	"github.com/arcanelabs/idr/internal/xlog"
)

var (
	benchThreads        = 10
	benchKeySpread      = 10_000
	benchInitialPageSize = 32
	benchMaxPages        = 27
	benchReservedBits    = 0
	benchSkip            []string
	benchCSVPath         string

	benchCmd = &cobra.Command{
		Use:     "bench",
		Short:   "run insert/get/remove benchmarks against an in-process idr.Idr",
		PreRunE: processBenchConfig,
		RunE:    runBench,
	}
)

func init() {
	key := "threads"
	benchCmd.PersistentFlags().Int(key, 10, wrapHelp("number of goroutines to use for each benchmark"))
	key = "keys"
	benchCmd.PersistentFlags().Int(key, 10000, wrapHelp("how many distinct keys to insert before running the get/remove benchmarks"))
	key = "initial-page-size"
	benchCmd.PersistentFlags().Int(key, 32, wrapHelp("Config.InitialPageSize for the benchmarked Idr"))
	key = "max-pages"
	benchCmd.PersistentFlags().Int(key, 27, wrapHelp("Config.MaxPages for the benchmarked Idr"))
	key = "reserved-bits"
	benchCmd.PersistentFlags().Int(key, 0, wrapHelp("Config.ReservedBits for the benchmarked Idr"))
	key = "skip"
	benchCmd.PersistentFlags().String(key, "", wrapHelp("comma-separated benchmarks to skip (insert,get,remove,iter)"))
	key = "csv"
	benchCmd.PersistentFlags().String(key, "", wrapHelp("optional path to save benchmark results as CSV"))
}

func processBenchConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	benchThreads = viper.GetInt("threads")
	benchKeySpread = viper.GetInt("keys")
	benchInitialPageSize = viper.GetInt("initial-page-size")
	benchMaxPages = viper.GetInt("max-pages")
	benchReservedBits = viper.GetInt("reserved-bits")
	if skip := viper.GetString("skip"); skip != "" {
		benchSkip = splitNonEmpty(skip, ",")
	}
	benchCSVPath = viper.GetString("csv")
	return nil
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || string(s[i]) == sep {
			if part := s[start:i]; part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	return out
}

func shouldSkip(name string) bool {
	for _, s := range benchSkip {
		if s == name {
			return true
		}
	}
	return false
}

func runBench(_ *cobra.Command, _ []string) error {
	cfg := idr.Config{
		InitialPageSize: uint32(benchInitialPageSize),
		MaxPages:        uint32(benchMaxPages),
		ReservedBits:    uint32(benchReservedBits),
	}

	r, err := idr.NewNamed[int]("bench", cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	r.Log().SetLevel(xlog.ParseLevel(viper.GetString("log-level")))

	fmt.Println("idrbench")
	fmt.Println()
	fmt.Printf("Config: %s\n", cfg.String())
	fmt.Printf("Threads: %d, Keys: %d\n", benchThreads, benchKeySpread)
	fmt.Println()

	results := make(map[string]testing.BenchmarkResult)

	results["insert"] = benchmarkInsert(r)
	printResult("insert", results["insert"])

	keys := populateKeys(r)

	results["get"] = benchmarkGet(r, keys)
	printResult("get", results["get"])

	results["iter"] = benchmarkIter(r)
	printResult("iter", results["iter"])

	results["remove"] = benchmarkRemove(r, keys)
	printResult("remove", results["remove"])

	fmt.Println()
	r.Metrics().WritePrometheus(os.Stdout)

	if benchCSVPath != "" {
		return writeResultsToCSV(benchCSVPath, results)
	}
	return nil
}

func benchmarkInsert(r *idr.Idr[int]) testing.BenchmarkResult {
	return testing.Benchmark(func(b *testing.B) {
		if shouldSkip("insert") {
			return
		}
		b.SetParallelism(benchThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			i := 0
			for pb.Next() {
				r.Insert(i)
				i++
			}
		})
	})
}

func populateKeys(r *idr.Idr[int]) []idr.Key {
	keys := make([]idr.Key, benchKeySpread)
	for i := 0; i < benchKeySpread; i++ {
		key, ok := r.Insert(i)
		if !ok {
			keys = keys[:i]
			break
		}
		keys[i] = key
	}
	return keys
}

func benchmarkGet(r *idr.Idr[int], keys []idr.Key) testing.BenchmarkResult {
	return testing.Benchmark(func(b *testing.B) {
		if shouldSkip("get") || len(keys) == 0 {
			return
		}
		b.SetParallelism(benchThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			i := 0
			for pb.Next() {
				g := r.Enter()
				r.Get(keys[i%len(keys)], g)
				g.Leave()
				i++
			}
		})
	})
}

func benchmarkIter(r *idr.Idr[int]) testing.BenchmarkResult {
	return testing.Benchmark(func(b *testing.B) {
		if shouldSkip("iter") {
			return
		}
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			g := r.Enter()
			it := r.Iter(g)
			for {
				if _, _, ok := it.Next(); !ok {
					break
				}
			}
			g.Leave()
		}
	})
}

func benchmarkRemove(r *idr.Idr[int], keys []idr.Key) testing.BenchmarkResult {
	return testing.Benchmark(func(b *testing.B) {
		if shouldSkip("remove") || len(keys) == 0 {
			return
		}
		b.SetParallelism(benchThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			i := 0
			for pb.Next() {
				r.Remove(keys[i%len(keys)])
				i++
			}
		})
	})
}

func printResult(name string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-10sskipped\n", name)
		return
	}
	nsPerOp := math.Max(float64(result.NsPerOp()), 1)
	opsPerSec := 1.0 / (nsPerOp / 1e9)
	fmt.Printf("%-10s%.0fns/op (%s/op)\t%.0f ops/sec\n", name, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

func writeResultsToCSV(path string, results map[string]testing.BenchmarkResult) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	if err := w.Write([]string{"Benchmark", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped", "Threads", "Keys"}); err != nil {
		return err
	}

	for name, result := range results {
		var nsPerOp, opsPerSec float64
		skipped := "false"
		if result.NsPerOp() == 0 {
			skipped = "true"
		} else {
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}
		row := []string{
			name,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			strconv.Itoa(benchThreads),
			strconv.Itoa(benchKeySpread),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row for %s: %w", name, err)
		}
	}
	return nil
}
