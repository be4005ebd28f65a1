package core

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"vaultchain/core/events"
	"vaultchain/core/state"
	"vaultchain/core/types"
	"vaultchain/native/common"
	"vaultchain/observability/metrics"
	vaultotel "vaultchain/observability/otel"
)

var (
	errNilState  = errors.New("executor: state not configured")
	errNilOp     = errors.New("executor: operation not provided")
	errEmptyName = errors.New("executor: operation name required")
)

var headKey = []byte("executor/head")

type head struct {
	Height  uint64
	Entropy [32]byte
}

// Receipt describes a committed operation.
type Receipt struct {
	OpID    string         `json:"opId"`
	Height  uint64         `json:"height"`
	Events  []*types.Event `json:"events"`
	Elapsed time.Duration  `json:"-"`
}

// Archiver receives every committed receipt. Append runs under the executor
// lock, so receipts arrive in height order.
type Archiver interface {
	Append(ctx context.Context, op string, receipt *Receipt) error
}

// Op is a state transition run under the executor lock. Any error reverts
// every write and discards every event emitted while it ran.
type Op func(ctx context.Context) error

// Executor serializes external entry points against the shared state. Each
// operation gets an id, a height and block entropy; it commits on success and
// reverts on failure.
type Executor struct {
	mu      sync.Mutex
	state   *state.Manager
	buffer  *events.Recorder
	sink    events.Emitter
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *metrics.VaultMetrics
	archive Archiver
	newID   func() string
	now     func() time.Time

	head    head
	loaded  bool
	current [32]byte
}

// Option customises an Executor.
type Option func(*Executor)

// WithLogger overrides the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(x *Executor) {
		if logger != nil {
			x.logger = logger
		}
	}
}

// WithMetrics enables prometheus recording.
func WithMetrics(m *metrics.VaultMetrics) Option {
	return func(x *Executor) { x.metrics = m }
}

// WithArchive forwards committed receipts to archive. Archive failures are
// logged; the committed state is never rolled back for them.
func WithArchive(archive Archiver) Option {
	return func(x *Executor) { x.archive = archive }
}

// WithIDFunc replaces the uuid generator, mainly for tests.
func WithIDFunc(fn func() string) Option {
	return func(x *Executor) {
		if fn != nil {
			x.newID = fn
		}
	}
}

// WithNowFunc replaces the wall clock used for latency measurement.
func WithNowFunc(fn func() time.Time) Option {
	return func(x *Executor) {
		if fn != nil {
			x.now = fn
		}
	}
}

// NewExecutor builds an executor over st. Committed events are forwarded to
// sink in emission order.
func NewExecutor(st *state.Manager, sink events.Emitter, opts ...Option) *Executor {
	if sink == nil {
		sink = events.NoopEmitter{}
	}
	x := &Executor{
		state:  st,
		buffer: &events.Recorder{},
		sink:   sink,
		logger: slog.Default(),
		tracer: otel.Tracer(vaultotel.TracerName),
		newID:  func() string { return uuid.NewString() },
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Emitter returns the emitter engines must publish through. Events are held
// until the running operation commits.
func (x *Executor) Emitter() events.Emitter { return x.buffer }

// Entropy returns the block entropy of the running operation. Engines call it
// from inside an Op, where the executor lock is already held.
func (x *Executor) Entropy() [32]byte { return x.current }

// Height returns the height of the last committed operation.
func (x *Executor) Height() (uint64, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.loadHead(); err != nil {
		return 0, err
	}
	return x.head.Height, nil
}

// View runs fn under the executor lock without committing anything.
func (x *Executor) View(fn func() error) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return fn()
}

func (x *Executor) loadHead() error {
	if x.loaded {
		return nil
	}
	if x.state == nil {
		return errNilState
	}
	var stored head
	if _, err := x.state.KVGet(headKey, &stored); err != nil {
		return fmt.Errorf("executor: load head: %w", err)
	}
	x.head = stored
	x.loaded = true
	return nil
}

func nextEntropy(prev [32]byte, height uint64, opID string) [32]byte {
	var h [8]byte
	binary.BigEndian.PutUint64(h[:], height)
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(prev[:], h[:], []byte(opID)))
	return out
}

// Execute runs op atomically. On error the state is reverted and the error is
// returned unchanged so callers can classify it with errors.Is.
func (x *Executor) Execute(ctx context.Context, name string, op Op) (*Receipt, error) {
	if op == nil {
		return nil, errNilOp
	}
	if name == "" {
		return nil, errEmptyName
	}
	if ctx == nil {
		ctx = context.Background()
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.loadHead(); err != nil {
		return nil, err
	}

	opID := x.newID()
	height := x.head.Height + 1
	entropy := nextEntropy(x.head.Entropy, height, opID)
	x.current = entropy
	defer func() { x.current = [32]byte{} }()

	ctx, span := x.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("op.id", opID),
		attribute.Int64("op.height", int64(height)),
	))
	defer span.End()

	start := x.now()
	snapshot := x.state.Snapshot()
	x.buffer.Reset()

	err := x.run(ctx, op)
	if err == nil {
		x.head = head{Height: height, Entropy: entropy}
		if err = x.state.KVPut(headKey, x.head); err == nil {
			err = x.state.Commit()
		}
		if err != nil {
			// A failed commit leaves the database untouched; reload the head.
			x.state.Discard()
			x.loaded = false
		}
	} else {
		x.state.RevertToSnapshot(snapshot)
	}
	elapsed := x.now().Sub(start)

	if err != nil {
		x.buffer.Reset()
		kind := common.Kind(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		x.metrics.ObserveOperation(name, kind, elapsed)
		x.logger.Warn("operation reverted",
			slog.String("op", name),
			slog.String("opId", opID),
			slog.String("kind", kind),
			slog.Duration("elapsed", elapsed),
			slog.Any("error", err))
		return nil, err
	}

	committed := x.buffer.Events()
	x.buffer.Reset()
	receipt := &Receipt{OpID: opID, Height: height, Elapsed: elapsed}
	for _, evt := range committed {
		if p, ok := evt.(events.Payload); ok {
			receipt.Events = append(receipt.Events, p.Event())
		}
		x.sink.Emit(evt)
	}
	span.SetAttributes(attribute.Int("op.events", len(committed)))
	span.SetStatus(codes.Ok, "committed")
	x.metrics.ObserveOperation(name, "ok", elapsed)
	x.metrics.SetHeight(height)
	if x.archive != nil {
		if err := x.archive.Append(ctx, name, receipt); err != nil {
			x.logger.Warn("receipt archive failed",
				slog.String("op", name),
				slog.String("opId", opID),
				slog.Any("error", err))
		}
	}
	x.logger.Info("operation committed",
		slog.String("op", name),
		slog.String("opId", opID),
		slog.Uint64("height", height),
		slog.Int("events", len(committed)),
		slog.Duration("elapsed", elapsed))
	return receipt, nil
}

func (x *Executor) run(ctx context.Context, op Op) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor: operation panicked: %v", r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	return op(ctx)
}
