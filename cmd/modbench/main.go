// Command modbench drives concurrent submissions and racing decisions
// through the moderation workflow against the configured database and
// reports latencies plus invariant violations.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/d60-Lab/district-feed/config"
	"github.com/d60-Lab/district-feed/internal/gateway"
	"github.com/d60-Lab/district-feed/internal/model"
	"github.com/d60-Lab/district-feed/internal/notify"
	"github.com/d60-Lab/district-feed/internal/repository"
	"github.com/d60-Lab/district-feed/internal/service"
	"github.com/d60-Lab/district-feed/pkg/database"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			return v
		}
	}
	return def
}

// discardSender counts notifications instead of sending them.
type discardSender struct{ sent atomic.Int64 }

func (s *discardSender) SendText(ctx context.Context, recipient int64, text string, buttons []gateway.Button) error {
	s.sent.Add(1)
	return nil
}

func (s *discardSender) SendMedia(ctx context.Context, recipient int64, mediaRef, caption string, buttons []gateway.Button) error {
	s.sent.Add(1)
	return nil
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	xs := append([]time.Duration(nil), vs...)
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	k := int(float64(len(xs)) * p)
	if k >= len(xs) {
		k = len(xs) - 1
	}
	return xs[k]
}

func avg(vs []time.Duration) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range vs {
		sum += d
	}
	return sum / time.Duration(len(vs))
}

func main() {
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	ctx := context.Background()
	if err := repository.InitSchema(ctx, db); err != nil {
		panic(err)
	}

	N := envInt("N", 2000)
	CONC := envInt("CONC", 16)

	sender := &discardSender{}
	dispatcher := notify.NewDispatcher(sender, cfg.Bot.AdminID, notify.Options{QueueSize: N, RatePerSecond: 1e6})
	stop := dispatcher.Start()
	posts := repository.NewPostRepository(db)
	svc := service.NewModerationService(posts, dispatcher)

	// phase 1: concurrent submissions
	var (
		mu       sync.Mutex
		submitLs = make([]time.Duration, 0, N)
		ids      = make([]int64, 0, N)
		failed   int
	)
	jobs := make(chan int, N)
	for i := 0; i < N; i++ {
		jobs <- i
	}
	close(jobs)

	t0 := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < CONC; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				st := time.Now()
				post, err := svc.Submit(ctx, service.SubmitParams{
					Category: model.CategoryNews,
					Text:     fmt.Sprintf("bench post %d", i),
					Author:   model.Author{UserID: int64(1000 + i), Name: "bench"},
				})
				d := time.Since(st)
				mu.Lock()
				if err != nil {
					failed++
				} else {
					submitLs = append(submitLs, d)
					ids = append(ids, post.ID)
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	submitWall := time.Since(t0)

	seen := make(map[int64]bool, len(ids))
	dups := 0
	for _, id := range ids {
		if seen[id] {
			dups++
		}
		seen[id] = true
	}

	// phase 2: approve and reject race on every post
	var applied, noops, decideErrs atomic.Int64
	decideLs := make([]time.Duration, 0, 2*len(ids))
	t1 := time.Now()
	sem := make(chan struct{}, CONC)
	for _, id := range ids {
		for _, action := range []model.Action{model.ActionApprove, model.ActionReject} {
			wg.Add(1)
			sem <- struct{}{}
			go func(id int64, action model.Action) {
				defer func() { <-sem; wg.Done() }()
				st := time.Now()
				d, err := svc.Decide(ctx, service.DecideParams{PostID: id, Action: action, ActorID: cfg.Bot.AdminID, Privileged: true})
				lat := time.Since(st)
				switch {
				case err != nil:
					decideErrs.Add(1)
				case d.Applied:
					applied.Add(1)
				default:
					noops.Add(1)
				}
				mu.Lock()
				decideLs = append(decideLs, lat)
				mu.Unlock()
			}(id, action)
		}
	}
	wg.Wait()
	decideWall := time.Since(t1)

	stopCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_ = stop(stopCtx)

	fmt.Printf("N=%d CONC=%d\n", N, CONC)
	fmt.Printf("Submit: wall=%v avg=%v p95=%v p99=%v failed=%d duplicate_ids=%d\n",
		submitWall, avg(submitLs), pct(submitLs, 0.95), pct(submitLs, 0.99), failed, dups)
	fmt.Printf("Decide: wall=%v avg=%v p95=%v p99=%v applied=%d noop=%d errors=%d\n",
		decideWall, avg(decideLs), pct(decideLs, 0.95), pct(decideLs, 0.99), applied.Load(), noops.Load(), decideErrs.Load())
	fmt.Printf("Notifications sent=%d\n", sender.sent.Load())
	if dups > 0 || applied.Load() != int64(len(ids)) {
		fmt.Println("INVARIANT VIOLATION")
		os.Exit(1)
	}
}
