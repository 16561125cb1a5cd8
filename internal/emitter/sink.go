package emitter

import (
	"bufio"
	"context"
	"errors"
	"io"

	"golang.org/x/time/rate"

	"github.com/tejusbharadwaj/cryolog/internal/models"
)

// Sink receives the events of one reading at a time.
type Sink interface {
	Write(ctx context.Context, events []models.MetricEvent) error
	Close() error
}

// LineSink writes events in line protocol, one per line.
type LineSink struct {
	w       *bufio.Writer
	limiter *rate.Limiter
}

// NewLineSink writes to w. A positive perSecond throttles output to that
// many lines per second with the given burst.
func NewLineSink(w io.Writer, perSecond float64, burst int) *LineSink {
	s := &LineSink{w: bufio.NewWriter(w)}
	if perSecond > 0 {
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return s
}

func (s *LineSink) Write(ctx context.Context, events []models.MetricEvent) error {
	for _, e := range events {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		if _, err := s.w.WriteString(e.Line()); err != nil {
			return err
		}
		if err := s.w.WriteByte('\n'); err != nil {
			return err
		}
	}
	// Throttled lines are flushed per reading.
	if s.limiter != nil {
		return s.w.Flush()
	}
	return nil
}

// Close flushes buffered lines. The underlying writer is not closed.
func (s *LineSink) Close() error {
	return s.w.Flush()
}

type tee []Sink

// Tee writes every event to all sinks in order.
func Tee(sinks ...Sink) Sink {
	return tee(sinks)
}

func (t tee) Write(ctx context.Context, events []models.MetricEvent) error {
	for _, s := range t {
		if err := s.Write(ctx, events); err != nil {
			return err
		}
	}
	return nil
}

func (t tee) Close() error {
	var errs []error
	for _, s := range t {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
