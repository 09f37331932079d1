package kafka

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// fakeGroup имитирует consumer group: Consume блокируется до Close или отмены ctx.
type fakeGroup struct {
	sessions atomic.Int32
	errs     chan error
	closed   chan struct{}
	closeErr error
}

func newFakeGroup() *fakeGroup {
	return &fakeGroup{errs: make(chan error, 1), closed: make(chan struct{})}
}

func (g *fakeGroup) Consume(ctx context.Context, topics []string, _ sarama.ConsumerGroupHandler) error {
	g.sessions.Add(1)
	if len(topics) != 1 || topics[0] != string(domain.TopicOrder) {
		return errors.New("unexpected topics")
	}
	select {
	case <-g.closed:
		return sarama.ErrClosedConsumerGroup
	case <-ctx.Done():
		return nil
	}
}

func (g *fakeGroup) Errors() <-chan error { return g.errs }

func (g *fakeGroup) Close() error {
	close(g.closed)
	close(g.errs)
	return g.closeErr
}

func (g *fakeGroup) Pause(map[string][]int32)  {}
func (g *fakeGroup) Resume(map[string][]int32) {}
func (g *fakeGroup) PauseAll()                 {}
func (g *fakeGroup) ResumeAll()                {}

type fakeSession struct {
	ctx    context.Context
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32               { return map[string][]int32{"storefront.order": {0}} }
func (s *fakeSession) MemberID() string                         { return "member-1" }
func (s *fakeSession) GenerationID() int32                      { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string)  {}
func (s *fakeSession) Commit()                                  {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context                 { return s.ctx }
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string                            { return string(domain.TopicOrder) }
func (c *fakeClaim) Partition() int32                         { return 0 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func claimOf(msgs ...*sarama.ConsumerMessage) *fakeClaim {
	ch := make(chan *sarama.ConsumerMessage, len(msgs))
	for _, m := range msgs {
		ch <- m
	}
	return &fakeClaim{messages: ch}
}

func orderMessage(offset int64) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{Topic: string(domain.TopicOrder), Offset: offset, Value: []byte(`{}`)}
}

func acceptAll(context.Context, domain.Topic, []byte) error { return nil }

func TestNewConsumer_Validation(t *testing.T) {
	_, err := NewConsumer([]string{"127.0.0.1:1"}, "group", domain.TopicOrder, nil)
	require.ErrorContains(t, err, "handler is required")

	_, err = NewConsumer([]string{"127.0.0.1:1"}, "group", domain.TopicOrder, acceptAll)
	require.Error(t, err)
}

func TestNewConsumerConfig(t *testing.T) {
	cfg := newConsumerConfig()
	require.Equal(t, sarama.OffsetOldest, cfg.Consumer.Offsets.Initial)
	require.True(t, cfg.Consumer.Return.Errors)
	require.Equal(t, "storefront", cfg.ClientID)
	require.Len(t, cfg.Consumer.Group.Rebalance.GroupStrategies, 1)

	cfg = newConsumerConfig(FromNewest(), WithClientID("replayer"), WithClientID(""))
	require.Equal(t, sarama.OffsetNewest, cfg.Consumer.Offsets.Initial)
	require.Equal(t, "replayer", cfg.ClientID)
}

func TestConsumer_StartStop(t *testing.T) {
	group := newFakeGroup()
	consumer := newConsumer(group, "storefront.storefront.order", domain.TopicOrder, acceptAll)

	group.errs <- errors.New("broker hiccup")
	require.NoError(t, consumer.Start(context.Background()))
	require.Eventually(t, func() bool { return group.sessions.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, consumer.Stop())
	require.NoError(t, consumer.Stop(), "second stop is a no-op")
}

func TestConsumer_StopOnContextCancel(t *testing.T) {
	group := newFakeGroup()
	consumer := newConsumer(group, "g", domain.TopicOrder, acceptAll)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, consumer.Start(ctx))
	require.Eventually(t, func() bool { return group.sessions.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	group.closeErr = errors.New("close failed")
	require.ErrorContains(t, consumer.Stop(), "close failed")
	require.EqualValues(t, 1, group.sessions.Load())
}

func TestConsumeClaim(t *testing.T) {
	handlerErr := errors.New("dead letter sink down")

	tests := []struct {
		name       string
		handler    func(cancel context.CancelFunc) func(context.Context, domain.Topic, []byte) error
		closeClaim bool
		wantErr    error
		wantMarked []int64
		wantUnread int
	}{
		{
			name:       "marks every handled message",
			handler:    func(context.CancelFunc) func(context.Context, domain.Topic, []byte) error { return acceptAll },
			closeClaim: true,
			wantMarked: []int64{1, 2},
		},
		{
			name: "handler error stops without commit",
			handler: func(context.CancelFunc) func(context.Context, domain.Topic, []byte) error {
				return func(context.Context, domain.Topic, []byte) error { return handlerErr }
			},
			wantErr:    handlerErr,
			wantUnread: 1,
		},
		{
			name: "cancel during handling is not an error",
			handler: func(cancel context.CancelFunc) func(context.Context, domain.Topic, []byte) error {
				return func(ctx context.Context, _ domain.Topic, _ []byte) error {
					cancel()
					return ctx.Err()
				}
			},
			wantUnread: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			consumer := newConsumer(newFakeGroup(), "g", domain.TopicOrder, tt.handler(cancel))
			claim := claimOf(orderMessage(1), orderMessage(2))
			if tt.closeClaim {
				close(claim.messages)
			}
			session := &fakeSession{ctx: ctx}

			err := consumer.ConsumeClaim(session, claim)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tt.wantMarked, session.marked)
			require.Len(t, claim.messages, tt.wantUnread)
		})
	}
}

func TestConsumeClaim_ReturnsOnSessionEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	consumer := newConsumer(newFakeGroup(), "g", domain.TopicOrder, acceptAll)

	done := make(chan error, 1)
	go func() {
		done <- consumer.ConsumeClaim(&fakeSession{ctx: ctx}, &fakeClaim{messages: make(chan *sarama.ConsumerMessage)})
	}()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consume claim did not return after session end")
	}
}

func TestSetupCleanup(t *testing.T) {
	consumer := newConsumer(newFakeGroup(), "g", domain.TopicOrder, acceptAll)
	require.NoError(t, consumer.Setup(&fakeSession{ctx: context.Background()}))
	require.NoError(t, consumer.Cleanup(nil))
}

func TestGroupID(t *testing.T) {
	require.Equal(t, "storefront.storefront.order", GroupID("", domain.TopicOrder))
	require.Equal(t, "shop.storefront.cart", GroupID("shop", domain.TopicCart))
	require.Len(t, CommandTopics(), 6)
}

func TestHeader(t *testing.T) {
	msg := &sarama.ConsumerMessage{Headers: []*sarama.RecordHeader{
		nil,
		{Key: []byte(HeaderCommandKind), Value: []byte("order")},
	}}
	require.Equal(t, "order", header(msg, HeaderCommandKind))
	require.Empty(t, header(msg, HeaderRetryCount))
}
