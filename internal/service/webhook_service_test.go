package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/popeskul/chatrelay/internal/api"
	"github.com/popeskul/chatrelay/internal/autoreply"
	"github.com/popeskul/chatrelay/internal/config"
	"github.com/popeskul/chatrelay/internal/events"
	"github.com/popeskul/chatrelay/internal/models"
	"github.com/popeskul/chatrelay/internal/repository"
	"github.com/popeskul/chatrelay/internal/repository/memory"
	"github.com/popeskul/chatrelay/internal/repository/mocks"
	"github.com/popeskul/chatrelay/internal/service"
	servicemocks "github.com/popeskul/chatrelay/internal/service/mocks"
)

func incomingBody(instanceID, messageID, text string) []byte {
	return []byte(fmt.Sprintf(`{
		"typeWebhook": "incomingMessageReceived",
		"instanceData": {"idInstance": %q},
		"timestamp": 1772359200,
		"idMessage": %q,
		"senderData": {"chatId": "255711@c.us", "sender": "255711@c.us"},
		"messageData": {"typeMessage": "textMessage", "textMessageData": {"textMessage": %q}}
	}`, instanceID, messageID, text))
}

type webhookFixture struct {
	store    *memory.Store
	recorder *events.Recorder
	queue    service.QueueService
	svc      service.WebhookService
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()

	store := memory.NewStore()
	store.PutInstance(&models.Instance{ID: "1101", Enabled: true, State: models.InstanceStateConnected})
	store.AddRule(&models.AutoReplyRule{TriggerText: "hi", ResponseText: "Hello!", Enabled: true})

	recorder := &events.Recorder{}
	engine := autoreply.NewEngine(config.AutoReplyConfig{Enabled: true, Timezone: "UTC"}, nil, zap.NewNop())
	queue := service.NewQueueService(defaultQueueConfig(), store, nil, recorder, zap.NewNop())

	return &webhookFixture{
		store:    store,
		recorder: recorder,
		queue:    queue,
		svc:      service.NewWebhookService(store, queue, engine, recorder, zap.NewNop()),
	}
}

func TestWebhookService_Incoming(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	status, err := f.svc.Handle(ctx, incomingBody("1101", "A1", "Hi there"))
	require.NoError(t, err)
	assert.Equal(t, api.WebhookAckStatusAccepted, status)
	assert.Equal(t, 1, f.store.InboundCount())

	msgs := f.store.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "255711@c.us", msgs[0].Destination)
	assert.Equal(t, "Hello!", msgs[0].Content)
}

func TestWebhookService_DuplicateIsProcessedOnce(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		status, err := f.svc.Handle(ctx, incomingBody("1101", "A1", "hi"))
		require.NoError(t, err)
		if i == 0 {
			assert.Equal(t, api.WebhookAckStatusAccepted, status)
		} else {
			assert.Equal(t, api.WebhookAckStatusDuplicate, status)
		}
	}

	assert.Equal(t, 1, f.store.InboundCount())
	assert.Len(t, f.store.Messages(), 1)
}

func TestWebhookService_NoMatchingRule(t *testing.T) {
	f := newWebhookFixture(t)

	status, err := f.svc.Handle(context.Background(), incomingBody("1101", "A2", "what are your prices"))
	require.NoError(t, err)
	assert.Equal(t, api.WebhookAckStatusAccepted, status)
	assert.Equal(t, 1, f.store.InboundCount())
	assert.Empty(t, f.store.Messages())
}

func TestWebhookService_Ignored(t *testing.T) {
	tests := map[string][]byte{
		"malformed json":   []byte(`{not json`),
		"missing sender":   []byte(`{"typeWebhook":"incomingMessageReceived","instanceData":{"idInstance":1101},"idMessage":"A"}`),
		"unknown instance": incomingBody("9999", "A3", "hi"),
		"unknown type":     []byte(`{"typeWebhook":"deviceInfo","instanceData":{"idInstance":1101}}`),
		"sent receipt":     []byte(`{"typeWebhook":"outgoingMessageStatus","instanceData":{"idInstance":1101},"idMessage":"BAE5","status":"sent"}`),
		"unknown receipt":  []byte(`{"typeWebhook":"outgoingMessageStatus","instanceData":{"idInstance":1101},"idMessage":"nope","status":"read"}`),
		"state of unknown": []byte(`{"typeWebhook":"stateInstanceChanged","instanceData":{"idInstance":9999},"stateInstance":"authorized"}`),
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			f := newWebhookFixture(t)

			status, err := f.svc.Handle(context.Background(), body)
			require.NoError(t, err)
			assert.Equal(t, api.WebhookAckStatusIgnored, status)
			assert.Zero(t, f.store.InboundCount())
			assert.Empty(t, f.store.Messages())
		})
	}
}

func TestWebhookService_DeliveryReceipt(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	msg := &models.QueuedMessage{InstanceID: "1101", Destination: "255711", Content: "order shipped"}
	require.NoError(t, f.queue.Enqueue(ctx, msg))
	claimed, err := f.queue.ClaimNext(ctx, "1101", "w1")
	require.NoError(t, err)
	require.NoError(t, f.queue.MarkSent(ctx, claimed, "BAE5"))

	status, err := f.svc.Handle(ctx, []byte(`{"typeWebhook":"outgoingMessageStatus","instanceData":{"idInstance":1101},"idMessage":"BAE5","status":"delivered","timestamp":1772359200}`))
	require.NoError(t, err)
	assert.Equal(t, api.WebhookAckStatusAccepted, status)

	got, err := f.queue.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, got.DeliveredAt.Valid)
	assert.False(t, got.ReadAt.Valid)
}

func TestWebhookService_StateChange(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	status, err := f.svc.Handle(ctx, []byte(`{"typeWebhook":"stateInstanceChanged","instanceData":{"idInstance":1101},"stateInstance":"notAuthorized"}`))
	require.NoError(t, err)
	assert.Equal(t, api.WebhookAckStatusAccepted, status)

	inst, err := f.store.Instance().Get(ctx, "1101")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStateAwaitingAuth, inst.State)

	recorded := f.recorder.Events()
	require.Len(t, recorded, 1)
	assert.Equal(t, events.KindStateChanged, recorded[0].Kind)
	assert.Equal(t, "1101", recorded[0].InstanceID)
}

func TestWebhookService_StorageFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRepository(ctrl)
	queue := servicemocks.NewMockQueueService(ctrl)
	replies := servicemocks.NewMockReplyEvaluator(ctrl)

	dbErr := errors.New("connection reset")
	repo.EXPECT().InTx(gomock.Any(), gomock.Any()).Return(dbErr)
	queue.EXPECT().MarkDeliveryStatus(gomock.Any(), "BAE5", models.DeliveryStatusRead, gomock.Any()).Return(dbErr)

	svc := service.NewWebhookService(repo, queue, replies, nil, zap.NewNop())

	_, err := svc.Handle(context.Background(), incomingBody("1101", "A1", "hi"))
	assert.ErrorIs(t, err, dbErr)

	_, err = svc.Handle(context.Background(), []byte(`{"typeWebhook":"outgoingMessageStatus","instanceData":{"idInstance":1101},"idMessage":"BAE5","status":"read"}`))
	assert.ErrorIs(t, err, dbErr)
}

func TestWebhookService_ReplyFailureIsReturned(t *testing.T) {
	store := memory.NewStore()
	store.PutInstance(&models.Instance{ID: "1101", Enabled: true})

	ctrl := gomock.NewController(t)
	replies := servicemocks.NewMockReplyEvaluator(ctrl)
	replies.EXPECT().
		Evaluate(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ repository.Repository, event *models.InboundEvent) (*models.AutoReplyRule, error) {
			assert.Equal(t, "A9", event.ProviderMessageID)
			return nil, errors.New("rules unavailable")
		})

	svc := service.NewWebhookService(store, nil, replies, nil, zap.NewNop())
	_, err := svc.Handle(context.Background(), incomingBody("1101", "A9", "hi"))
	assert.Error(t, err)
}

type senderCooldown struct {
	mu     sync.Mutex
	active map[string]bool
}

func (c *senderCooldown) Active(_ context.Context, instanceID, senderID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active[instanceID+"/"+senderID], nil
}

func (c *senderCooldown) Start(_ context.Context, instanceID, senderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[instanceID+"/"+senderID] = true
	return nil
}

func TestWebhookService_CooldownStartsAfterCommit(t *testing.T) {
	store := memory.NewStore()
	store.PutInstance(&models.Instance{ID: "1101", Enabled: true})
	store.AddRule(&models.AutoReplyRule{TriggerText: "hi", ResponseText: "Hello!", Enabled: true})

	cooldown := &senderCooldown{active: make(map[string]bool)}
	engine := autoreply.NewEngine(config.AutoReplyConfig{Enabled: true, Timezone: "UTC"}, cooldown, zap.NewNop())
	svc := service.NewWebhookService(store, nil, engine, nil, zap.NewNop())
	ctx := context.Background()

	status, err := svc.Handle(ctx, incomingBody("1101", "A1", "hi"))
	require.NoError(t, err)
	assert.Equal(t, api.WebhookAckStatusAccepted, status)
	assert.Len(t, store.Messages(), 1)
	assert.True(t, cooldown.active["1101/255711@c.us"])

	status, err = svc.Handle(ctx, incomingBody("1101", "A2", "hi again"))
	require.NoError(t, err)
	assert.Equal(t, api.WebhookAckStatusAccepted, status)
	assert.Len(t, store.Messages(), 1)
}

func TestWebhookService_RepliedOnlyAfterSuccess(t *testing.T) {
	store := memory.NewStore()
	store.PutInstance(&models.Instance{ID: "1101", Enabled: true})

	ctrl := gomock.NewController(t)
	replies := servicemocks.NewMockReplyEvaluator(ctrl)
	applied := &models.AutoReplyRule{ID: 7}

	gomock.InOrder(
		replies.EXPECT().Evaluate(gomock.Any(), gomock.Any(), gomock.Any()).Return(applied, nil),
		replies.EXPECT().
			Replied(gomock.Any(), gomock.Any()).
			Do(func(_ context.Context, event *models.InboundEvent) {
				assert.Equal(t, "A1", event.ProviderMessageID)
			}),
		replies.EXPECT().Evaluate(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil),
	)

	svc := service.NewWebhookService(store, nil, replies, nil, zap.NewNop())

	_, err := svc.Handle(context.Background(), incomingBody("1101", "A1", "hi"))
	require.NoError(t, err)

	// no rule applied, no cooldown
	_, err = svc.Handle(context.Background(), incomingBody("1101", "A2", "thanks"))
	require.NoError(t, err)
}
