// Command noncebench runs a synthetic query workload against a
// noncecache.Cache, with a background goroutine periodically invalidating
// and cork/uncork-bursting the bound property, and exposes optional
// pprof/Prometheus endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/noncecache/coordinator"
	pmet "github.com/IvanBrykalov/noncecache/metrics/prom"
	"github.com/IvanBrykalov/noncecache/noncecache"
	"github.com/IvanBrykalov/noncecache/policy/twoq"
	"github.com/IvanBrykalov/noncecache/registry/memregistry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const propertyName = "bench.nonce"

func main() {
	var (
		maxEntries = flag.Int("entries", 100_000, "cache entry limit")
		shards     = flag.Int("shards", 0, "number of shards (0=single shard, exact MaxEntries bound)")
		policyName = flag.String("policy", "lru", "eviction policy: lru | 2q")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of query worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")

		keys       = flag.Int("keys", 1_000_000, "query keyspace size")
		zipfS      = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV      = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed       = flag.Int64("seed", time.Now().UnixNano(), "random seed")
		invalidate = flag.Duration("invalidate_every", 200*time.Millisecond, "interval between coordinator.Invalidate calls (0=never)")
		corkBurst  = flag.Duration("cork_burst", 50*time.Millisecond, "how long each cork burst holds the property corked (0=never corks)")

		latency     = flag.Duration("fetch_latency", time.Millisecond, "simulated Recompute latency")
		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
	)
	flag.Parse()

	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	metrics := pmet.New(nil, "noncecache", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("metrics: serving at %s", *metricsAddr)
		log.Println(http.ListenAndServe(*metricsAddr, nil))
	}()

	reg := memregistry.New()
	coordinator.Bind(reg)

	opt := noncecache.Options[string, string]{
		MaxEntries:   *maxEntries,
		PropertyName: propertyName,
		Registry:     reg,
		Metrics:      metrics,
		Shards:       *shards,
		Recompute: func(_ context.Context, k string) (string, bool, error) {
			if *latency > 0 {
				time.Sleep(*latency)
			}
			return "v:" + k, true, nil
		},
	}
	switch *policyName {
	case "lru":
		// nil => LRU by default
	case "2q":
		opt.Policy = twoq.New[string, string](*maxEntries/4, *maxEntries/2)
	default:
		log.Fatalf("unknown policy: %q (use lru or 2q)", *policyName)
	}

	c, err := noncecache.New(opt)
	if err != nil {
		log.Fatalf("noncecache.New: %v", err)
	}

	coordinator.Invalidate(propertyName) // start from a live nonce, not Unset

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	// ---- Invalidation/cork churn, independent of the query workers ----
	var wg sync.WaitGroup
	if *invalidate > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(*invalidate)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if *corkBurst > 0 {
						coordinator.Cork(propertyName)
						time.Sleep(*corkBurst)
						coordinator.Uncork(propertyName)
					} else {
						coordinator.Invalidate(propertyName)
					}
				}
			}
		}()
	}

	// ---- Query load generation ----
	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}
	keysMax := uint64(*keys - 1)
	seedBase := *seed

	var queries, hits uint64
	start := time.Now()
	wg.Add(workersN)
	for w := 0; w < workersN; w++ {
		go func(id int) {
			defer wg.Done()
			localR := rand.New(rand.NewSource(seedBase + int64(id)*9973))
			localZipf := rand.NewZipf(localR, *zipfS, *zipfV, keysMax)

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				k := "k:" + strconv.FormatUint(localZipf.Uint64(), 10)
				_, ok, err := c.Query(ctx, k)
				atomic.AddUint64(&queries, 1)
				if err != nil {
					continue
				}
				if ok {
					atomic.AddUint64(&hits, 1)
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	n := atomic.LoadUint64(&queries)
	h := atomic.LoadUint64(&hits)
	fmt.Printf("policy=%s entries=%d shards=%d workers=%d keys=%d dur=%v seed=%d\n",
		*policyName, *maxEntries, *shards, workersN, *keys, elapsed, seedBase)
	fmt.Printf("queries=%d (%.0f q/s)  answered=%d\n", n, float64(n)/elapsed.Seconds(), h)
}
