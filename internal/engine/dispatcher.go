package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"FinMonitorAPI/internal/logger"
	"FinMonitorAPI/internal/models"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

// Dead-letter reasons and error classes recorded with failed events.
const (
	ReasonInvalidFormat  = "Invalid message format"
	ReasonHandlerFailure = "Handler failure"
	ReasonTimeout        = "Processing timeout"
	ReasonCircuitOpen    = "Circuit breaker open"

	errClassValidation = "ValidationError"
	errClassHandler    = "HandlerError"
	errClassTimeout    = "TimeoutError"
	errClassCircuit    = "CircuitOpenError"
)

// ErrProcessingTimeout marks a handler that exceeded the dispatch timeout.
var ErrProcessingTimeout = errors.New("processing timeout")

// HandlerFunc processes one decoded envelope.
type HandlerFunc func(ctx context.Context, env models.Envelope) error

// DeadLetterFunc forwards a failed event to the dead-letter channel. Its
// error decides acknowledgment: a failed dead-letter blocks the ack so the
// broker redelivers.
type DeadLetterFunc func(msg models.DeadLetterMessage) error

// Dispatcher routes typed inbound events to registered handlers under a
// processing timeout, dead-letters failures with diagnostics, and wraps
// the whole path in a circuit breaker that sheds load straight to the
// dead-letter channel once the upstream failure rate trips it.
type Dispatcher struct {
	handlers     map[string]HandlerFunc
	timeout      time.Duration
	breaker      *gobreaker.CircuitBreaker
	deadLetter   DeadLetterFunc
	consumerName string
	log          *logger.Logger

	processed    atomic.Int64
	errCount     atomic.Int64
	deadLettered atomic.Int64
}

type DispatcherConfig struct {
	Timeout            time.Duration
	ConsumerName       string
	BreakerMinRequests uint32
	BreakerFailureRate float64
	BreakerOpenTimeout time.Duration
}

func NewDispatcher(cfg DispatcherConfig, deadLetter DeadLetterFunc, log *logger.Logger) *Dispatcher {
	minRequests := cfg.BreakerMinRequests
	if minRequests == 0 {
		minRequests = 3
	}
	failureRate := cfg.BreakerFailureRate
	if failureRate <= 0 {
		failureRate = 0.6
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "event-dispatch",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && ratio >= failureRate
		},
	})

	return &Dispatcher{
		handlers:     make(map[string]HandlerFunc),
		timeout:      cfg.Timeout,
		breaker:      breaker,
		deadLetter:   deadLetter,
		consumerName: cfg.ConsumerName,
		log:          log,
	}
}

// Register binds a handler to an event-type tag.
func (d *Dispatcher) Register(eventType string, h HandlerFunc) {
	d.handlers[eventType] = h
}

// Dispatch decodes and routes one raw broker message. The returned bool is
// the acknowledgment decision: true after successful processing OR
// successful dead-lettering, false only when dead-lettering itself failed
// and the broker must redeliver.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte, topic string) bool {
	d.processed.Add(1)

	env, err := decodeEnvelope(raw)
	if err != nil {
		d.errCount.Add(1)
		return d.toDeadLetter(raw, topic, ReasonInvalidFormat, errClassValidation, err)
	}

	handler, ok := d.handlers[env.EventType]
	if !ok {
		d.errCount.Add(1)
		return d.toDeadLetter(raw, topic, ReasonInvalidFormat, errClassValidation,
			fmt.Errorf("no handler for event type %q", env.EventType))
	}

	_, err = d.breaker.Execute(func() (interface{}, error) {
		if runErr := d.runWithTimeout(ctx, handler, env); runErr != nil {
			// Transient handler faults get one immediate retry before
			// the event is given up on.
			if errors.Is(runErr, ErrProcessingTimeout) {
				return nil, runErr
			}
			return nil, d.runWithTimeout(ctx, handler, env)
		}
		return nil, nil
	})
	if err == nil {
		return true
	}

	d.errCount.Add(1)
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return d.toDeadLetter(raw, topic, ReasonCircuitOpen, errClassCircuit, err)
	case errors.Is(err, ErrProcessingTimeout):
		return d.toDeadLetter(raw, topic, ReasonTimeout, errClassTimeout, err)
	default:
		return d.toDeadLetter(raw, topic, ReasonHandlerFailure, errClassHandler, err)
	}
}

// runWithTimeout executes the handler in its own goroutine so a hung
// handler cannot pin the worker past the deadline. The abandoned goroutine
// observes ctx cancellation and exits on its own.
func (d *Dispatcher) runWithTimeout(ctx context.Context, handler HandlerFunc, env models.Envelope) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- handler(ctx, env)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w after %v", ErrProcessingTimeout, d.timeout)
	}
}

// toDeadLetter forwards the original payload with diagnostics. Returns the
// ack decision.
func (d *Dispatcher) toDeadLetter(raw []byte, topic, reason, errClass string, cause error) bool {
	msg := models.DeadLetterMessage{
		OriginalMessage: string(raw),
		OriginalTopic:   topic,
		ErrorReason:     reason,
		ErrorClass:      errClass,
		ErrorTimestamp:  time.Now(),
		CorrelationID:   uuid.NewString(),
		TraceID:         uuid.NewString(),
		ConsumerName:    d.consumerName,
	}
	if cause != nil {
		msg.ErrorMessage = cause.Error()
	}

	if err := d.deadLetter(msg); err != nil {
		// Losing the audit trail is worse than reprocessing: block the
		// ack and let the broker redeliver.
		d.log.Error("Dead-letter delivery failed, forcing redelivery: %v", err)
		return false
	}

	d.deadLettered.Add(1)
	d.log.Warn("Event dead-lettered: %s (%s)", reason, msg.ErrorMessage)
	return true
}

// decodeEnvelope validates the typed wrapper. A missing or empty eventType
// fails validation; the raw body is preserved for the handler.
func decodeEnvelope(raw []byte) (models.Envelope, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return models.Envelope{}, fmt.Errorf("malformed JSON: %w", err)
	}

	eventType, _ := fields["eventType"].(string)
	if eventType == "" {
		return models.Envelope{}, errors.New("missing eventType")
	}
	timestamp, _ := fields["timestamp"].(string)

	return models.Envelope{
		EventType: eventType,
		Timestamp: timestamp,
		Fields:    fields,
		Raw:       raw,
	}, nil
}

// BreakerState names the current circuit state.
func (d *Dispatcher) BreakerState() string {
	return d.breaker.State().String()
}

// Counters returns processed/error/dead-letter totals.
func (d *Dispatcher) Counters() (processed, errs, deadLettered int64) {
	return d.processed.Load(), d.errCount.Load(), d.deadLettered.Load()
}
