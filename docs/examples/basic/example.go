package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	profusion "github.com/shaia/go-profusion"
)

// Build information, set via ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	fmt.Println("Profusion Bloom Filters")
	fmt.Println("=======================")
	fmt.Printf("Version: %s (commit %s, built %s)\n", Version, Commit, BuildDate)
	fmt.Printf("Envelope: %s v%s\n\n", profusion.Program, profusion.Version)

	// Example 1: classic filter
	fmt.Println("Example 1: Classic Filter")
	fmt.Println("-------------------------")

	filter, err := profusion.NewBloom(100000, 0.01)
	if err != nil {
		log.Fatal(err)
	}
	filter.Add("cache_key_1")
	filter.Add("cache_key_2")

	fmt.Printf("Contains 'cache_key_1': %t\n", filter.Contains("cache_key_1"))
	fmt.Printf("Contains 'not_present': %t\n", filter.Contains("not_present"))
	fmt.Printf("Bins: %d (%s), hashes: %d, saturation: %.4f%%\n\n",
		filter.Bins(), humanize.Bytes(uint64((filter.Bins()+7)/8)),
		filter.Hashes(), filter.Saturation()*100)

	// Example 2: counting filter with decrements
	fmt.Println("Example 2: Counting Filter")
	fmt.Println("--------------------------")

	counting, err := profusion.NewCountingBloom(100000, 0.01, 100)
	if err != nil {
		log.Fatal(err)
	}
	counting.Add("page_view", 3)
	counting.Add("page_view", 2)
	fmt.Printf("Value of 'page_view': %d\n", counting.Value("page_view"))
	counting.Decrement("page_view", 4)
	fmt.Printf("After decrement: %d\n", counting.Value("page_view"))
	fmt.Printf("Seen at least once: %t\n\n", counting.Contains("page_view"))

	// Example 3: scalable filter growing past its first threshold
	fmt.Println("Example 3: Scalable Filter")
	fmt.Println("--------------------------")

	scalable, err := profusion.NewScalableBloom(profusion.ScalableConfig{
		InitialSize:    10000,
		MaxError:       0.001,
		ErrorDecayRate: 0.5,
		GrowthFactor:   4,
	})
	if err != nil {
		log.Fatal(err)
	}
	for i := 0; i < 5000; i++ {
		scalable.Add(fmt.Sprintf("url_%d", i))
	}
	fmt.Printf("Inner filters: %d, elements: %d, threshold: %d\n",
		scalable.Blooms(), scalable.Elements(), scalable.Threshold())
	fmt.Printf("Contains 'url_1234': %t\n\n", scalable.Contains("url_1234"))

	// Example 4: persistence round trip
	fmt.Println("Example 4: Save and Load")
	fmt.Println("------------------------")

	dir, err := os.MkdirTemp("", "profusion")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "scalable.gz")
	if err := scalable.Save(path); err != nil {
		log.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		log.Fatal(err)
	}
	loaded, err := profusion.LoadScalableBloom(path)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Saved %s, reloaded %d inner filters\n", humanize.Bytes(uint64(info.Size())), loaded.Blooms())
	fmt.Printf("Loaded filter contains 'url_1234': %t\n", loaded.Contains("url_1234"))
}
