// Command bench runs a synthetic update workload through the full pipeline
// (store -> cache -> controller -> scheduler) and exposes optional
// pprof/Prometheus endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/IvanBrykalov/chunkstream/cache"
	"github.com/IvanBrykalov/chunkstream/chunk"
	"github.com/IvanBrykalov/chunkstream/config"
	"github.com/IvanBrykalov/chunkstream/control"
	pmet "github.com/IvanBrykalov/chunkstream/metrics/prom"
	"github.com/IvanBrykalov/chunkstream/sched"
	"github.com/IvanBrykalov/chunkstream/store"
)

// runtimeMonitor approximates pressure from runtime statistics so the bench
// exercises the feedback loop without an OS-level probe: CPU pressure is the
// goroutine count relative to available parallelism, memory pressure the
// heap share of what the runtime has from the OS.
type runtimeMonitor struct{}

func (runtimeMonitor) Usage(context.Context) (cpu, mem float64, err error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	cpu = float64(runtime.NumGoroutine()) / float64(8*runtime.GOMAXPROCS(0))
	if cpu > 1 {
		cpu = 1
	}
	if ms.Sys > 0 {
		mem = float64(ms.HeapAlloc) / float64(ms.Sys)
	}
	return cpu, mem, nil
}

func main() {
	// ---- Flags ----
	var (
		cfgPath = flag.String("config", "", "tuning YAML (empty = defaults)")
		dbPath  = flag.String("db", "", "sqlite database path (empty = generator only)")
		seed    = flag.Int64("seed", 1, "world generator seed")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of submitting goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		radius   = flag.Int("radius", 32, "chunk radius of the workload keyspace")
		batch    = flag.Int("batch", 64, "update requests per submission")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// ---- Config ----
	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			log.Fatalf("config: %v", err)
		}
	}

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("metrics: serving at %s", *metricsAddr)
		log.Println(http.ListenAndServe(*metricsAddr, nil))
	}()

	// ---- Loader: sqlite with generator fallback, or pure generator ----
	gen := store.Generator{Seed: *seed}
	loader := cache.Loader[*chunk.Chunk](gen.Load)
	if *dbPath != "" {
		db, err := store.Open(*dbPath)
		if err != nil {
			log.Fatalf("store: %v", err)
		}
		defer func() { _ = db.Close() }()
		loader = store.FallbackLoader(db, gen)
	}

	// ---- Build pipeline ----
	c := cache.New[*chunk.Chunk](cache.Options[*chunk.Chunk]{
		Capacity:     cfg.Cache.Capacity,
		Shards:       cfg.Cache.Shards,
		TTL:          cfg.Cache.TTL(),
		LoadParallel: cfg.Cache.LoadParallel,
		Loader:       loader,
		Metrics:      pmet.NewCache(nil, "chunkstream", nil),
	})
	defer func() { _ = c.Close() }()

	ctrl := control.New(control.Config{
		Min:                  cfg.Control.Min,
		Max:                  cfg.Control.Max,
		Initial:              cfg.Control.Initial,
		HighCPU:              cfg.Control.HighCPU,
		LowCPU:               cfg.Control.LowCPU,
		HighMem:              cfg.Control.HighMem,
		LowMem:               cfg.Control.LowMem,
		MaxConsecutiveRaises: uint8(cfg.Control.MaxConsecutiveRaises),
		Metrics:              pmet.NewControl(nil, "chunkstream", nil),
	})

	s := sched.New(c, ctrl, sched.Options{
		MaxPasses: cfg.Sched.MaxPasses,
		Metrics:   pmet.NewSched(nil, "chunkstream", nil),
		Logger:    logger,
	})

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	sampler := control.NewSampler(ctrl, runtimeMonitor{}, cfg.Control.SampleInterval(), logger)
	go sampler.Run(ctx)

	// ---- Snapshot flags for goroutines ----
	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}
	radiusN := *radius
	if radiusN < 1 {
		radiusN = 1
	}
	batchN := *batch
	if batchN < 1 {
		batchN = 1
	}

	// ---- Load generation ----
	blocks := []uint16{chunk.Stone, chunk.Dirt, chunk.Sand, chunk.Gravel, chunk.Glowstone, chunk.Torch}

	var runs, applied, derived, failed uint64
	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(workersN)
	for w := 0; w < workersN; w++ {
		go func(id int) {
			defer wg.Done()

			// Each worker gets its own RNG (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(*seed + int64(id)*9973))
			span := 2 * radiusN * chunk.Size

			for ctx.Err() == nil {
				reqs := make([]chunk.Update, batchN)
				for i := range reqs {
					reqs[i] = chunk.Update{
						Pos: chunk.Vec3i{
							X: localR.Intn(span) - span/2,
							Y: localR.Intn(chunk.Height),
							Z: localR.Intn(span) - span/2,
						},
						Type:  chunk.UpdateBlock,
						Block: blocks[localR.Intn(len(blocks))],
					}
				}

				sum, err := s.Run(ctx, reqs)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					log.Printf("run: %v", err)
					continue
				}
				atomic.AddUint64(&runs, 1)
				atomic.AddUint64(&applied, uint64(sum.RequestsApplied))
				atomic.AddUint64(&derived, uint64(sum.DerivedQueued))
				atomic.AddUint64(&failed, uint64(len(sum.Failed)))
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	// ---- Report ----
	runsN := atomic.LoadUint64(&runs)
	appliedN := atomic.LoadUint64(&applied)
	st := c.Stats()

	fmt.Printf("workers=%d radius=%d batch=%d dur=%v seed=%d\n",
		workersN, radiusN, batchN, elapsed, *seed)
	fmt.Printf("runs=%d  applied=%d (%.0f req/s)  derived=%d  failed=%d\n",
		runsN, appliedN, float64(appliedN)/elapsed.Seconds(),
		atomic.LoadUint64(&derived), atomic.LoadUint64(&failed))
	fmt.Printf("cache: hits=%d misses=%d evictions=%d hit-rate=%.2f%% Len()=%d\n",
		st.Hits, st.Misses, st.Evictions, st.HitRate()*100, c.Len())
	fmt.Printf("limit=%d\n", ctrl.Limit())
}
