package main

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/neomorfeo/orgstate/internal/adapter/cache"
)

type fakeFeed struct {
	messages []cache.Message
	err      error
}

func (f *fakeFeed) Subscribe(ctx context.Context, fn func(cache.Message)) error {
	for _, m := range f.messages {
		fn(m)
	}
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestWatchInvalidations_LogsMessages(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ctx, cancel := context.WithCancel(context.Background())
	feed := &fakeFeed{messages: []cache.Message{
		{Tags: []string{"client:c1", "client:org:org1"}, Timestamp: 1},
	}}

	done := make(chan error, 1)
	go func() { done <- watchInvalidations(ctx, feed, zap.New(core)) }()
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("watchInvalidations returned %v after shutdown", err)
	}
	received := logs.FilterMessage("cache invalidation received").All()
	if len(received) != 1 {
		t.Fatalf("logged %d invalidations, want 1", len(received))
	}
	if tags, ok := received[0].ContextMap()["tags"].([]any); !ok || len(tags) != 2 {
		t.Errorf("tags field = %v, want both tags", received[0].ContextMap()["tags"])
	}
	if logs.FilterMessage("cache invalidation feed stopped").Len() != 0 {
		t.Error("shutdown must not be reported as a lost feed")
	}
}

func TestWatchInvalidations_LostFeedKeepsServing(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	feed := &fakeFeed{err: errors.New("subscribing: connection reset")}

	if err := watchInvalidations(context.Background(), feed, zap.New(core)); err != nil {
		t.Fatalf("watchInvalidations = %v, want nil", err)
	}
	if logs.FilterMessage("cache invalidation feed stopped").Len() != 1 {
		t.Error("lost feed should be logged as a warning")
	}
}
