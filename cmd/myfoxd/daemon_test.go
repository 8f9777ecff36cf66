package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bartekpacia/myfox/api"
	"github.com/bartekpacia/myfox/cfg"
	"github.com/stretchr/testify/assert"
)

type homeWrapper struct {
	api.Wrapper
	calls atomic.Int32
	err   error
}

func (h *homeWrapper) CallHome(ctx context.Context) (*api.Home, error) {
	h.calls.Add(1)
	return nil, h.err
}

func TestRefresh(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := &homeWrapper{}

	done := make(chan struct{})
	go func() {
		refresh(ctx, w, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return w.calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	<-done
}

func TestRefresh_Unsupported(t *testing.T) {
	w := &homeWrapper{err: fmt.Errorf("call home: %w", api.ErrUnsupported)}

	refresh(context.Background(), w, time.Millisecond)
	assert.Equal(t, int32(1), w.calls.Load(), "stops when home is unsupported")

	refresh(context.Background(), w, 0)
	assert.Equal(t, int32(1), w.calls.Load())
}

func TestDaemon_MissingPassword(t *testing.T) {
	err := daemon(context.Background(), &cfg.Config{Username: "bob@example.com", SiteIDs: []int{1}})
	assert.EqualError(t, err, "MYFOX_PASSWORD is not set")
}
