package delivery //nolint:testpackage // internal white-box tests need access to unexported fields

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSerializerRunsJobsInSubmissionOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewSerializer()
	go s.Run(ctx)

	var order []int
	for i := range 5 {
		err := s.Do(ctx, func(context.Context) error {
			order = append(order, i)
			return nil
		})
		if err != nil {
			t.Fatalf("do %d: %v", i, err)
		}
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("order = %v, want sequential", order)
		}
	}
}

func TestSerializerNeverInterleavesJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewSerializer()
	go s.Run(ctx)

	inFlight := false
	done := make(chan error, 2)
	for range 2 {
		go func() {
			done <- s.Do(ctx, func(context.Context) error {
				if inFlight {
					return errors.New("jobs interleaved")
				}
				inFlight = true
				time.Sleep(10 * time.Millisecond)
				inFlight = false
				return nil
			})
		}()
	}
	for range 2 {
		if err := <-done; err != nil {
			t.Fatalf("do: %v", err)
		}
	}
}

func TestSerializerPropagatesJobError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewSerializer()
	go s.Run(ctx)

	boom := errors.New("boom")
	if err := s.Do(ctx, func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestSerializerStoppedAfterRunExits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSerializer()
	go s.Run(ctx)
	cancel()
	<-s.done

	err := s.Do(context.Background(), func(context.Context) error { return nil })
	if !errors.Is(err, ErrSerializerStopped) {
		t.Errorf("err = %v, want ErrSerializerStopped", err)
	}
}

func TestSerializerDoHonorsCallerContext(t *testing.T) {
	s := NewSerializer() // no Run: submission can never be picked up

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Do(ctx, func(context.Context) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
