package runtime_test

import (
	"context"
	"fmt"
	"log/slog"
	"study-relay/domain"
	"study-relay/mocks"
	"study-relay/runtime"
	"study-relay/runtime/workers"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// countingSender only counts pushes so the fan-out is not the bottleneck.
type countingSender struct {
	pushes atomic.Uint64
}

func (s *countingSender) Send(context.Context, domain.SessionID, domain.Frame) error {
	s.pushes.Add(1)
	return nil
}

func TestOrchestrator_LoadTest(t *testing.T) {
	if testing.Short() {
		t.Skip("load test")
	}
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl := gomock.NewController(t)
	store := mocks.NewMockChatStore(ctrl)
	gate := mocks.NewMockLifecycleGate(ctrl)
	store.EXPECT().Append(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	gate.EXPECT().Allows(gomock.Any(), gomock.Any(), gomock.Any()).Return(true).AnyTimes()

	log := slog.New(slog.DiscardHandler)
	sender := &countingSender{}
	o := runtime.NewOrchestrator(log, workers.NewSupervisor(log, 100*time.Millisecond),
		runtime.Dependencies{Gate: gate, Store: store, Sender: sender},
		runtime.Config{BufferSize: 5000, DeliveryTimeout: 100 * time.Millisecond})
	go o.Start(ctx)

	numClients := 100
	messagesPerClient := 200
	identities := make([]domain.Identity, numClients)
	for i := range identities {
		identities[i] = domain.Identity{
			UserID:    domain.UserID(fmt.Sprintf("user-%d", i)),
			SessionID: domain.SessionID(fmt.Sprintf("session-%d", i)),
		}
		_, err := o.Handle(ctx, identities[i], domain.JoinRequest{RoomID: 1, Nickname: string(identities[i].UserID)})
		req.NoError(err)
	}

	var successCount atomic.Uint64
	var failureCount atomic.Uint64
	start := time.Now()
	var wg sync.WaitGroup

	for _, identity := range identities {
		wg.Add(1)
		go func(identity domain.Identity) {
			defer wg.Done()
			for j := 0; j < messagesPerClient; j++ {
				_, err := o.Handle(ctx, identity, domain.SendMessagePayload{
					RoomID:  1,
					Content: "load test message",
					Type:    domain.MessageText,
				})
				if err != nil {
					failureCount.Add(1)
				} else {
					successCount.Add(1)
				}
			}
		}(identity)
	}

	wg.Wait()
	duration := time.Since(start)

	req.Zero(failureCount.Load())
	req.Equal(uint64(numClients*messagesPerClient), successCount.Load())
	req.Equal(uint64(numClients*messagesPerClient), o.Stats().Dispatched)

	t.Logf("duration=%v delivered=%d throughput=%.2f msg/sec",
		duration, sender.pushes.Load(), float64(successCount.Load())/duration.Seconds())
}
