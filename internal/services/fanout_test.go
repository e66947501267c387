package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carewire/internal/config"
	"carewire/internal/gateway"
	"carewire/pkg/models"
	"carewire/pkg/phone"
)

type fanoutFixture struct {
	store     *fakeDirectoryStore
	messages  *fakeMessageStore
	gw        *gateway.MockGateway
	directory *ParticipantDirectory
	engine    *FanoutEngine
}

func newFanoutFixture() *fanoutFixture {
	store := newFakeDirectoryStore()
	messages := newFakeMessageStore()
	gw := gateway.NewMockGateway()
	allocator := NewNumberAllocator(newFakeNumberStore(), testNumberingConfig())
	gate := NewConsentGate(&fakeConsentStore{})
	normalizer := phone.NewNormalizer("1")

	cfg := config.FanoutConfig{MaxConcurrency: 4, DeliveryTimeout: time.Second}
	return &fanoutFixture{
		store:     store,
		messages:  messages,
		gw:        gw,
		directory: NewParticipantDirectory(store, allocator, gate, normalizer),
		engine:    NewFanoutEngine(store, messages, allocator, gw, cfg),
	}
}

func (f *fanoutFixture) groupOf(t *testing.T, size int) (*models.Conversation, *models.User) {
	t.Helper()
	creator := f.store.addUser("Alice")
	members := make([]Identity, 0, size-1)
	for i := 0; i < size-1; i++ {
		other := f.store.addUser("Member")
		members = append(members, Identity{UserID: &other.ID})
	}
	conv, _, err := f.directory.CreateGroup(context.Background(), creator.ID, "Team", nil, members)
	require.NoError(t, err)
	return conv, creator
}

func TestSendFansOutToAllRecipients(t *testing.T) {
	f := newFanoutFixture()
	conv, creator := f.groupOf(t, 4)

	report, err := f.engine.Send(context.Background(), conv.ID, creator.ID, "rounds at 9")
	require.NoError(t, err)

	assert.Equal(t, models.MessageStatusSent, report.Status)
	assert.Len(t, report.Outcomes, 3, "everyone but the sender gets a delivery")
	assert.Equal(t, 3, report.SucceededCount())
	assert.Len(t, f.gw.Calls, 3)

	for _, call := range f.gw.Calls {
		assert.Equal(t, "Alice: rounds at 9", call.Body, "recipients see the sender's name")
	}

	deliveries := f.messages.deliveriesFor(report.MessageID)
	require.Len(t, deliveries, 3)
	for _, d := range deliveries {
		assert.Equal(t, models.DeliveryStatusSent, d.Status)
		assert.True(t, strings.HasPrefix(d.ProviderSID, "SM"))
	}
}

func TestSendUsesSenderRoutingNumber(t *testing.T) {
	f := newFanoutFixture()
	conv, creator := f.groupOf(t, 2)

	participants, err := f.store.ListActiveParticipants(context.Background(), conv.ID)
	require.NoError(t, err)
	var senderRouting string
	for _, p := range participants {
		if p.UserID != nil && *p.UserID == creator.ID {
			senderRouting = p.RoutingNumber
		}
	}
	require.NotEmpty(t, senderRouting)

	_, err = f.engine.Send(context.Background(), conv.ID, creator.ID, "hello")
	require.NoError(t, err)

	require.Len(t, f.gw.Calls, 1)
	assert.Equal(t, senderRouting, f.gw.Calls[0].From, "outbound SMS originates from the sender's virtual number")
}

func TestSendPartialFailure(t *testing.T) {
	f := newFanoutFixture()
	conv, creator := f.groupOf(t, 3)

	participants, err := f.store.ListActiveParticipants(context.Background(), conv.ID)
	require.NoError(t, err)
	var failedNumber string
	for _, p := range participants {
		if p.UserID == nil || *p.UserID != creator.ID {
			failedNumber = p.RoutingNumber
			break
		}
	}
	f.gw.FailFor(failedNumber, "carrier rejected")

	report, err := f.engine.Send(context.Background(), conv.ID, creator.ID, "hello")
	require.NoError(t, err, "partial failure is reported, not returned as an error")

	assert.Equal(t, models.MessageStatusSent, report.Status, "one success is enough for the aggregate")
	assert.Equal(t, 1, report.SucceededCount())

	var failedOutcome *DeliveryOutcome
	for i := range report.Outcomes {
		if !report.Outcomes[i].Success {
			failedOutcome = &report.Outcomes[i]
		}
	}
	require.NotNil(t, failedOutcome)
	assert.Equal(t, failedNumber, failedOutcome.RoutingNumber)
	assert.Contains(t, failedOutcome.Error, "carrier rejected")

	statuses := make(map[string]int)
	for _, d := range f.messages.deliveriesFor(report.MessageID) {
		statuses[d.Status]++
	}
	assert.Equal(t, 1, statuses[models.DeliveryStatusSent])
	assert.Equal(t, 1, statuses[models.DeliveryStatusFailed])
}

func TestSendAllRecipientsFail(t *testing.T) {
	f := newFanoutFixture()
	conv, creator := f.groupOf(t, 3)

	participants, err := f.store.ListActiveParticipants(context.Background(), conv.ID)
	require.NoError(t, err)
	for _, p := range participants {
		if p.UserID == nil || *p.UserID != creator.ID {
			f.gw.FailFor(p.RoutingNumber, "unreachable")
		}
	}

	report, err := f.engine.Send(context.Background(), conv.ID, creator.ID, "hello")
	require.NoError(t, err)

	assert.Equal(t, models.MessageStatusFailed, report.Status)
	assert.Equal(t, 0, report.SucceededCount())
	assert.Equal(t, models.MessageStatusFailed, f.messages.finalized[report.MessageID])
}

func TestSendRequiresSenderMembership(t *testing.T) {
	f := newFanoutFixture()
	conv, _ := f.groupOf(t, 2)

	outsider := f.store.addUser("Eve")
	_, err := f.engine.Send(context.Background(), conv.ID, outsider.ID, "hello")
	assert.ErrorIs(t, err, ErrParticipantNotFound)
	assert.Empty(t, f.gw.Calls)
}

func TestSendInactiveConversation(t *testing.T) {
	f := newFanoutFixture()
	conv, creator := f.groupOf(t, 2)
	require.NoError(t, f.directory.Deactivate(context.Background(), conv.ID))

	_, err := f.engine.Send(context.Background(), conv.ID, creator.ID, "hello")
	assert.ErrorIs(t, err, ErrConversationInactive)
}

func TestSendMissingConversation(t *testing.T) {
	f := newFanoutFixture()

	_, err := f.engine.Send(context.Background(), uuid.New(), uuid.New(), "hello")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestSendAssignsMissingSenderRouting(t *testing.T) {
	f := newFanoutFixture()
	conv, creator := f.groupOf(t, 2)

	// Simulate a sender that predates number assignment.
	var senderID uuid.UUID
	f.store.mu.Lock()
	for _, p := range f.store.participants {
		if p.UserID != nil && *p.UserID == creator.ID {
			p.RoutingNumber = ""
			senderID = p.ID
		}
	}
	f.store.mu.Unlock()

	report, err := f.engine.Send(context.Background(), conv.ID, creator.ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, models.MessageStatusSent, report.Status)

	assert.NotEmpty(t, f.store.routingUpdates[senderID], "the assigned number is persisted on the participant")
	require.Len(t, f.gw.Calls, 1)
	assert.Equal(t, f.store.routingUpdates[senderID], f.gw.Calls[0].From)
}

func TestSendToSMSConversation(t *testing.T) {
	f := newFanoutFixture()
	creator := f.store.addUser("Alice")

	conv, err := f.directory.CreateSMS(context.Background(), creator.ID, "+19105552405", "Dana")
	require.NoError(t, err)

	report, err := f.engine.Send(context.Background(), conv.ID, creator.ID, "your results are in")
	require.NoError(t, err)

	assert.Equal(t, models.MessageStatusSent, report.Status)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, "+19105552405", report.Outcomes[0].RoutingNumber)

	require.Len(t, f.gw.Calls, 1)
	assert.Equal(t, "+19105552405", f.gw.Calls[0].To)
	assert.Equal(t, "Alice: your results are in", f.gw.Calls[0].Body)
}
