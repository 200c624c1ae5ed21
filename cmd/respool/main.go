// respool is a demo and benchmark driver for the respool resource pool.
//
// It constructs a pool of synthetic session resources from a TOML
// configuration file, drives it with concurrent workers, and reports pool
// statistics. With -monitor it shows a live terminal dashboard instead.
//
// Usage:
//
//	respool [flags]
//
// Flags:
//
//	-config string
//	    Path to configuration file (default "respool.toml")
//	-workers int
//	    Number of concurrent borrowers (default 8)
//	-ops int
//	    Operations per worker (default 100)
//	-hold duration
//	    How long each borrower holds a resource (default 5ms)
//	-max-uses int
//	    Uses before a session fails validation; 0 disables (default 0)
//	-monitor
//	    Show a live TUI dashboard while the workload runs
//	-print-metrics
//	    Dump the metrics registry after the workload
//	-version
//	    Print version and exit
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/poolsmith/respool/lib/config"
	"github.com/poolsmith/respool/lib/metrics"
	"github.com/poolsmith/respool/lib/pool"
	"github.com/poolsmith/respool/lib/tui"
	"github.com/poolsmith/respool/version"
)

// session is the synthetic pooled resource: a scratch buffer plus the
// bookkeeping needed to demonstrate reset and validation.
type session struct {
	id      int64
	scratch []byte
	uses    int
}

// sessionLifecycle builds sessions with an artificial construction cost.
type sessionLifecycle struct {
	nextID      int64
	createDelay time.Duration
	maxUses     int
}

func (l *sessionLifecycle) Create(ctx context.Context) (*session, error) {
	select {
	case <-time.After(l.createDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &session{
		id:      atomic.AddInt64(&l.nextID, 1),
		scratch: make([]byte, 4096),
	}, nil
}

func (l *sessionLifecycle) Reset(s *session) {
	for i := range s.scratch {
		s.scratch[i] = 0
	}
}

func (l *sessionLifecycle) Destroy(s *session) error {
	s.scratch = nil
	return nil
}

// Validate wears sessions out after maxUses borrows so the pool's
// discard-and-replace path is visible in the stats.
func (l *sessionLifecycle) Validate(s *session) bool {
	return l.maxUses <= 0 || s.uses < l.maxUses
}

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "respool.toml", "Path to configuration file")
	workers := flag.Int("workers", 8, "Number of concurrent borrowers")
	ops := flag.Int("ops", 100, "Operations per worker")
	hold := flag.Duration("hold", 5*time.Millisecond, "How long each borrower holds a resource")
	maxUses := flag.Int("max-uses", 0, "Uses before a session fails validation; 0 disables")
	monitor := flag.Bool("monitor", false, "Show a live TUI dashboard while the workload runs")
	printMetrics := flag.Bool("print-metrics", false, "Dump the metrics registry after the workload")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("respool version %s\n", version.Full())
		return 0
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "respool: %v\n", err)
		return 1
	}

	lc := &sessionLifecycle{
		createDelay: 2 * time.Millisecond,
		maxUses:     *maxUses,
	}
	p, err := pool.New[*session](lc, cfg.PoolConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "respool: creating pool: %v\n", err)
		return 1
	}
	defer p.Close()

	if cfg.Metrics.Enabled {
		go func() {
			if err := http.ListenAndServe(cfg.Metrics.Listen, metrics.Handler()); err != nil {
				fmt.Fprintf(os.Stderr, "respool: metrics server: %v\n", err)
			}
		}()
	}

	workload := func(ctx context.Context) error {
		g, ctx := errgroup.WithContext(ctx)
		for i := 0; i < *workers; i++ {
			g.Go(func() error {
				for j := 0; j < *ops; j++ {
					h, err := p.Acquire(ctx)
					if err != nil {
						return fmt.Errorf("acquire: %w", err)
					}

					s := h.Resource()
					s.uses++
					s.scratch[rand.Intn(len(s.scratch))] = byte(j)
					time.Sleep(*hold)

					if err := p.Release(h); err != nil {
						return fmt.Errorf("release: %w", err)
					}
				}
				return nil
			})
		}
		return g.Wait()
	}

	if *monitor {
		done := make(chan error, 1)
		go func() {
			done <- workload(context.Background())
		}()
		if err := tui.Run(p.Stats, tui.Config{Title: "respool"}); err != nil {
			fmt.Fprintf(os.Stderr, "respool: monitor: %v\n", err)
			return 1
		}
		select {
		case err := <-done:
			if err != nil {
				fmt.Fprintf(os.Stderr, "respool: workload: %v\n", err)
				return 1
			}
		default:
			// Monitor quit while the workload was still running.
		}
	} else if err := workload(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "respool: workload: %v\n", err)
		return 1
	}

	stats := p.Stats()
	pool.UpdateMetrics(stats)

	fmt.Printf("workers=%d ops=%d\n", *workers, *ops)
	fmt.Printf("created=%d acquires=%d (ok=%d failed=%d) releases=%d\n",
		stats.TotalCreated, stats.AcquireCount, stats.AcquireSuccess,
		stats.AcquireFailed, stats.ReleaseCount)
	fmt.Printf("validation discards=%d wait=%s over %d blocked acquires\n",
		stats.ValidationFails, stats.WaitTime.Round(time.Microsecond), stats.WaitCount)

	if *printMetrics {
		fmt.Println()
		fmt.Print(metrics.Expose())
	}
	return 0
}
