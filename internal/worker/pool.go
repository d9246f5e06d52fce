package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/raysh454/flipradar/internal/logging"
)

// ErrPoolFull is returned by Submit when every slot and the backlog are busy.
var ErrPoolFull = errors.New("worker pool full")

// Task is a unit of work run by the pool.
type Task func(ctx context.Context) error

// Pool runs submitted tasks on a fixed number of goroutines.
type Pool struct {
	wg     sync.WaitGroup
	tasks  chan Task
	quit   chan struct{}
	once   sync.Once
	n      int
	logger logging.Logger
}

func NewPool(workers int, logger logging.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Pool{
		tasks:  make(chan Task, workers*4),
		quit:   make(chan struct{}),
		n:      workers,
		logger: logger,
	}
}

// Size returns the number of worker goroutines.
func (p *Pool) Size() int { return p.n }

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					return
				case task := <-p.tasks:
					if task == nil {
						continue
					}
					if err := task(ctx); err != nil {
						p.logger.Warn("task error", logging.F("worker", id), logging.Err(err))
					}
				}
			}
		}(i)
	}
}

// Stop signals every worker and waits for in-flight tasks to return.
// Queued tasks that have not started are discarded.
func (p *Pool) Stop() {
	p.once.Do(func() { close(p.quit) })
	p.wg.Wait()
}

func (p *Pool) Submit(task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrPoolFull
	}
}
