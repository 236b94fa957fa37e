package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"Genie/lib/sl"

	"golang.org/x/sync/semaphore"
)

type Job func(ctx context.Context)

// Queue runs jobs of one user strictly in arrival order while different users
// proceed in parallel, at most workers jobs at a time.
type Queue struct {
	ctx   context.Context
	log   *slog.Logger
	sem   *semaphore.Weighted
	mu    sync.Mutex
	lanes map[int64][]Job
	wg    sync.WaitGroup
}

// NewQueue stops starting new jobs once ctx is done. Jobs already running get
// a context that is not cancelled with it, so they can finish their writes.
func NewQueue(ctx context.Context, workers int, log *slog.Logger) *Queue {
	if workers <= 0 {
		workers = 1
	}
	return &Queue{
		ctx:   ctx,
		log:   log.With(sl.Module("queue")),
		sem:   semaphore.NewWeighted(int64(workers)),
		lanes: make(map[int64][]Job),
	}
}

func (q *Queue) Push(userId int64, job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending, running := q.lanes[userId]
	q.lanes[userId] = append(pending, job)
	if running {
		return
	}
	q.wg.Add(1)
	go q.drain(userId)
}

// Wait blocks until every lane is drained.
func (q *Queue) Wait() {
	q.wg.Wait()
}

func (q *Queue) drain(userId int64) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		jobs := q.lanes[userId]
		if len(jobs) == 0 {
			delete(q.lanes, userId)
			q.mu.Unlock()
			return
		}
		job := jobs[0]
		q.lanes[userId] = jobs[1:]
		q.mu.Unlock()

		err := q.ctx.Err()
		if err == nil {
			err = q.sem.Acquire(q.ctx, 1)
		}
		if err != nil {
			q.mu.Lock()
			dropped := len(q.lanes[userId]) + 1
			delete(q.lanes, userId)
			q.mu.Unlock()
			q.log.With(sl.User(userId), slog.Int("dropped", dropped)).Warn("queue stopped")
			return
		}
		q.run(userId, job)
		q.sem.Release(1)
	}
}

func (q *Queue) run(userId int64, job Job) {
	defer func() {
		if r := recover(); r != nil {
			q.log.With(sl.User(userId)).Error("job panicked", sl.Err(fmt.Errorf("%v", r)))
		}
	}()
	job(context.WithoutCancel(q.ctx))
}
