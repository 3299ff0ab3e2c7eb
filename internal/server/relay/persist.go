package relay

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/dmitrijs2005/keyrelay/internal/logging"
	"github.com/dmitrijs2005/keyrelay/internal/server/models"
)

const persistTimeout = 5 * time.Second

// Enqueuer stores a message for a recipient.
type Enqueuer interface {
	Enqueue(ctx context.Context, recipientID string, msg models.Envelope) error
}

type persistJob struct {
	recipientID string
	env         models.Envelope
}

// Persister writes offline copies in the background with a fixed pool of
// workers. Jobs are sharded by recipient, so writes for one recipient are
// applied in submission order. Submit never blocks: when the shard buffer is
// full the job is dropped and logged. Failures are reported to the log and
// metrics only.
type Persister struct {
	queue   Enqueuer
	shards  []chan persistJob
	log     logging.Logger
	metrics *Metrics

	mu     sync.RWMutex
	closed bool
}

func NewPersister(q Enqueuer, workers, buffer int, log logging.Logger, m *Metrics) *Persister {
	if workers < 1 {
		workers = 1
	}
	if buffer < 1 {
		buffer = 1
	}
	perShard := (buffer + workers - 1) / workers
	shards := make([]chan persistJob, workers)
	for i := range shards {
		shards[i] = make(chan persistJob, perShard)
	}
	return &Persister{
		queue:   q,
		shards:  shards,
		log:     log.With("module", "persister"),
		metrics: m,
	}
}

func (p *Persister) shard(recipientID string) chan persistJob {
	h := fnv.New32a()
	_, _ = h.Write([]byte(recipientID))
	return p.shards[h.Sum32()%uint32(len(p.shards))]
}

// Submit schedules an offline copy of env for recipientID.
func (p *Persister) Submit(recipientID string, env models.Envelope) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.metrics.recordPersistDropped()
		p.log.Warn(context.Background(), "persister stopped, offline copy dropped", "recipient_id", recipientID)
		return false
	}

	select {
	case p.shard(recipientID) <- persistJob{recipientID: recipientID, env: env}:
		return true
	default:
		p.metrics.recordPersistDropped()
		p.log.Error(context.Background(), "persist buffer full, offline copy dropped",
			"recipient_id", recipientID, "sender", env.Sender)
		return false
	}
}

// Run starts the workers and blocks until ctx is canceled. It then stops
// accepting jobs and returns once every buffered job has been written.
func (p *Persister) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, jobs := range p.shards {
		wg.Add(1)
		go func(jobs <-chan persistJob) {
			defer wg.Done()
			for job := range jobs {
				p.write(job)
			}
		}(jobs)
	}

	<-ctx.Done()

	p.mu.Lock()
	p.closed = true
	for _, jobs := range p.shards {
		close(jobs)
	}
	p.mu.Unlock()

	wg.Wait()
	return nil
}

func (p *Persister) write(job persistJob) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	err := p.queue.Enqueue(ctx, job.recipientID, job.env)
	p.metrics.recordEnqueue(err)
	if err != nil {
		p.log.Error(ctx, "offline enqueue failed", "recipient_id", job.recipientID, "sender", job.env.Sender, "error", err)
	}
}
