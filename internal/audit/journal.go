package audit

/*
Файл journal.go реализует журнал жизненного цикла заявок (submitted, forwarded,
forward_failed, decided).

- Non-blocking Logging: события уходят в буферизированный канал, запись в БД
  не влияет на время ответа API.
- Batching: накопление событий и пакетная вставка по таймеру или по размеру пачки.
- Drain Pattern: Stop закрывает канал и ждет, пока воркер вычитает остатки (Final Flush).
*/

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// StorageInterface определяет, куда физически будут сохраняться события
type StorageInterface interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []LifecycleEvent) error
}

type Recorder interface {
	Log(event LifecycleEvent)
}

type Options struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	BufferGauge   prometheus.Gauge // опционально
}

type Journal struct {
	ch     chan LifecycleEvent
	repo   StorageInterface
	logger *zap.Logger
	gauge  prometheus.Gauge

	batchSize     int
	flushInterval time.Duration

	wg     sync.WaitGroup
	mu     sync.RWMutex // защищает закрытие канала от конкурентных Log
	closed bool
}

func NewJournal(repo StorageInterface, logger *zap.Logger, opts Options) *Journal {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	return &Journal{
		ch:            make(chan LifecycleEvent, opts.BufferSize),
		repo:          repo,
		logger:        logger.With(zap.String("mod", "journal")),
		gauge:         opts.BufferGauge,
		batchSize:     opts.BatchSize,
		flushInterval: opts.FlushInterval,
	}
}

func (j *Journal) Start() {
	j.wg.Add(1)
	go j.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (j *Journal) Stop() {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return
	}
	j.closed = true
	close(j.ch)
	j.mu.Unlock()

	j.logger.Info("stopping journal: flushing buffer...")
	j.wg.Wait()
	j.logger.Info("journal stopped gracefully")
}

func (j *Journal) Log(event LifecycleEvent) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		j.logger.Warn("journal event dropped: journal is stopping", zap.String("request_id", event.RequestID))
		return
	}

	// Load Shedding: при переполнении не блокируем API
	select {
	case j.ch <- event:
		if j.gauge != nil {
			j.gauge.Set(float64(len(j.ch)))
		}
	default:
		j.logger.Error("journal_buffer_overflow",
			zap.String("request_id", event.RequestID),
			zap.String("kind", event.Kind))
	}
}

func (j *Journal) worker() {
	defer j.wg.Done()

	batch := make([]LifecycleEvent, 0, j.batchSize)
	ticker := time.NewTicker(j.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: основной контекст к моменту flush может быть закрыт
		if err := j.repo.WriteBatch(context.Background(), batch); err != nil {
			j.logger.Error("journal flush failed", zap.Int("events", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
		if j.gauge != nil {
			j.gauge.Set(float64(len(j.ch)))
		}
	}

	for {
		select {
		case event, ok := <-j.ch:
			if !ok {
				// Канал закрыт в Stop(): остатки уже вычитаны, финальный сброс
				flush()
				return
			}
			batch = append(batch, event)
			if len(batch) >= j.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
