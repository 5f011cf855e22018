package stt

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeProvider struct {
	delay time.Duration
	res   Result
	err   error
}

func (f *fakeProvider) Transcribe(ctx context.Context, _ []byte, _ Config) (Result, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	return f.res, f.err
}

func TestWithTimeout_PassesThrough(t *testing.T) {
	t.Parallel()
	inner := &fakeProvider{res: Result{Text: "peter piper"}}
	p := WithTimeout(inner, time.Second)

	res, err := p.Transcribe(context.Background(), []byte{1, 2}, Config{})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if res.Text != "peter piper" {
		t.Errorf("Text = %q; want %q", res.Text, "peter piper")
	}
}

func TestWithTimeout_DeadlineSurfacesErrTimeout(t *testing.T) {
	t.Parallel()
	inner := &fakeProvider{delay: time.Second}
	p := WithTimeout(inner, 20*time.Millisecond)

	_, err := p.Transcribe(context.Background(), nil, Config{})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v; want ErrTimeout", err)
	}
}

func TestWithTimeout_InnerErrorPreserved(t *testing.T) {
	t.Parallel()
	inner := &fakeProvider{err: ErrNoSpeech}
	p := WithTimeout(inner, time.Second)

	_, err := p.Transcribe(context.Background(), nil, Config{})
	if !errors.Is(err, ErrNoSpeech) {
		t.Fatalf("error = %v; want ErrNoSpeech", err)
	}
}

func TestWithTimeout_NonPositiveReturnsInner(t *testing.T) {
	t.Parallel()
	inner := &fakeProvider{}
	if got := WithTimeout(inner, 0); got != Provider(inner) {
		t.Error("expected inner provider returned unchanged")
	}
}

func TestWithTimeout_CallerCancellation(t *testing.T) {
	t.Parallel()
	inner := &fakeProvider{delay: time.Second}
	p := WithTimeout(inner, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Transcribe(ctx, nil, Config{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v; want context.Canceled", err)
	}
}
