package worker

import (
	"context"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/plasmarift/lobby-server/internal/core"
	"github.com/plasmarift/lobby-server/internal/proto"
	"github.com/plasmarift/lobby-server/internal/store"
)

// Pool is a fixed set of independent executors. Dispatch picks one
// uniformly at random; resource-level consistency comes entirely from the
// Router's locks, never from executor assignment. Each executor handles
// one command through the persistence collaborator and emits exactly one
// receipt.
type Pool struct {
	jobs     []chan core.Job
	receipts chan core.Receipt
	store    store.Store
	log      *zerolog.Logger
}

// NewPool constructs a pool with size executors.
func NewPool(size int, st store.Store, logger *zerolog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	jobs := make([]chan core.Job, size)
	for i := range jobs {
		jobs[i] = make(chan core.Job, 16)
	}
	return &Pool{
		jobs:     jobs,
		receipts: make(chan core.Receipt, 64),
		store:    st,
		log:      logger,
	}
}

// Receipts exposes the channel the coordinator consumes.
func (p *Pool) Receipts() <-chan core.Receipt {
	return p.receipts
}

// Dispatch hands the job to a random executor.
func (p *Pool) Dispatch(job core.Job) {
	p.jobs[rand.Intn(len(p.jobs))] <- job
}

// Run starts the executors and blocks until ctx is done.
func (p *Pool) Run(ctx context.Context) {
	for i, jobs := range p.jobs {
		go p.runWorker(ctx, i, jobs)
	}
	<-ctx.Done()
}

func (p *Pool) runWorker(ctx context.Context, id int, jobs <-chan core.Job) {
	p.log.Debug().Int("worker", id).Msg("worker online")
	for {
		select {
		case job := <-jobs:
			receipt := p.handle(ctx, job)
			select {
			case p.receipts <- receipt:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			p.log.Debug().Int("worker", id).Msg("worker exiting")
			return
		}
	}
}

// handle executes one job. Store failures and panics become failed
// receipts; an executor never crashes the pool.
func (p *Pool) handle(ctx context.Context, job core.Job) (receipt core.Receipt) {
	defer func() {
		if rec := recover(); rec != nil {
			p.log.Error().Any("panic", rec).Str("action", job.Msg.Action).Msg("executor panic")
			receipt = failure(job, "internal error")
		}
	}()

	switch job.Msg.Action {
	case proto.ActionLogin:
		return p.handleLogin(ctx, job)
	case proto.ActionJoinChat:
		return p.handleJoinChat(ctx, job)
	case proto.ActionSayChat:
		return p.handleSayChat(ctx, job)
	case proto.ActionLeaveChat:
		return p.handleLeaveChat(ctx, job)
	case proto.ActionJoinGame:
		return p.handleJoinGame(job)
	case proto.ActionSetAI:
		return p.handleSetAI(job)
	case proto.ActionDelAI:
		return p.handleDelAI(job)
	case proto.ActionSetTeam:
		return p.handleSetTeam(job)
	case proto.ActionSetMap:
		return p.handleSetMap(job)
	case proto.ActionStartGame:
		return p.handleStartGame(job)
	default:
		return failure(job, "unknown command")
	}
}

func failure(job core.Job, message string) core.Receipt {
	return core.Receipt{
		ReceiptOf: job.Msg.Action,
		Seq:       job.Msg.Seq,
		Gen:       job.Gen,
		Status:    false,
		Message:   message,
	}
}

func success(job core.Job, message string, payload core.ReceiptPayload) core.Receipt {
	return core.Receipt{
		ReceiptOf: job.Msg.Action,
		Seq:       job.Msg.Seq,
		Gen:       job.Gen,
		Status:    true,
		Message:   message,
		Payload:   payload,
	}
}
