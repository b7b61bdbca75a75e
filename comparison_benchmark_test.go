package profusion_test

import (
	"fmt"
	"testing"

	willf "github.com/willf/bloom"

	profusion "github.com/shaia/go-profusion"
)

// --- Configuration for Comparison Benchmarks ---
var comparisonBenchmarks = []struct {
	name     string
	elements int     // Number of elements the filter is provisioned for
	fpr      float64 // Target False Positive Rate
	ops      int     // Adds per b.N iteration (Add); keys probed in rotation (Check)
}{
	{"Size_10K_FPR_1%", 10_000, 0.01, 1000},
	{"Size_100K_FPR_1%", 100_000, 0.01, 1000},
	{"Size_1M_FPR_1%", 1_000_000, 0.01, 1000},
	{"Size_1M_FPR_0.1%", 1_000_000, 0.001, 1000},
}

func BenchmarkComparisonAdd(b *testing.B) {
	for _, cfg := range comparisonBenchmarks {
		b.Run(fmt.Sprintf("%s/profusion", cfg.name), func(b *testing.B) {
			bf, err := profusion.NewBloom(cfg.elements, cfg.fpr)
			if err != nil {
				b.Fatal(err)
			}
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				for j := 0; j < cfg.ops; j++ {
					bf.Add(fmt.Sprintf("key_%d", i*cfg.ops+j))
				}
			}
		})

		b.Run(fmt.Sprintf("%s/willf_bloom", cfg.name), func(b *testing.B) {
			bf := willf.NewWithEstimates(uint(cfg.elements), cfg.fpr)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				for j := 0; j < cfg.ops; j++ {
					bf.AddString(fmt.Sprintf("key_%d", i*cfg.ops+j))
				}
			}
		})
	}
}

func BenchmarkComparisonCheck(b *testing.B) {
	for _, cfg := range comparisonBenchmarks {
		keys := make([]string, cfg.ops)
		for i := range keys {
			keys[i] = fmt.Sprintf("key_%d", i)
		}

		b.Run(fmt.Sprintf("%s/profusion", cfg.name), func(b *testing.B) {
			bf, err := profusion.NewBloom(cfg.elements, cfg.fpr)
			if err != nil {
				b.Fatal(err)
			}
			for _, key := range keys {
				bf.Add(key)
			}
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				bf.Check(keys[i%len(keys)])
			}
		})

		b.Run(fmt.Sprintf("%s/willf_bloom", cfg.name), func(b *testing.B) {
			bf := willf.NewWithEstimates(uint(cfg.elements), cfg.fpr)
			for _, key := range keys {
				bf.AddString(key)
			}
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				bf.TestString(keys[i%len(keys)])
			}
		})
	}
}

// BenchmarkScalableAdd measures insertion cost across growth steps,
// which the fixed-size filters above never pay.
func BenchmarkScalableAdd(b *testing.B) {
	bf, err := profusion.NewScalableBloom(profusion.ScalableConfig{
		InitialSize: 1 << 16,
		MaxError:    0.01,
	})
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bf.Add(fmt.Sprintf("key_%d", i))
	}
}

// BenchmarkSaveLoad measures the envelope round trip.
func BenchmarkSaveLoad(b *testing.B) {
	bf, err := profusion.NewBloom(100_000, 0.01)
	if err != nil {
		b.Fatal(err)
	}
	for i := 0; i < 100_000; i++ {
		bf.Add(fmt.Sprintf("key_%d", i))
	}
	path := b.TempDir() + "/bench.gz"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := bf.Save(path); err != nil {
			b.Fatal(err)
		}
		if _, err := profusion.LoadBloom(path); err != nil {
			b.Fatal(err)
		}
	}
}
