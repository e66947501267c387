package webhook

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carewire/pkg/models"
	"carewire/pkg/phone"
)

// fakeInboundStore is an in-memory InboundStore. Participants are kept in
// insertion order; tests insert most-recently-active conversations first to
// mirror the store's recency ordering.
type fakeInboundStore struct {
	participants []models.Participant
	routing      map[uuid.UUID][]string
	messages     []*models.Message
}

func newFakeInboundStore() *fakeInboundStore {
	return &fakeInboundStore{routing: make(map[uuid.UUID][]string)}
}

func (s *fakeInboundStore) addParticipant(conversationID uuid.UUID, phoneNumber, displayName string) {
	p := models.Participant{
		ConversationID: conversationID,
		Kind:           models.ParticipantKindSMS,
		Phone:          phoneNumber,
		RoutingNumber:  phoneNumber,
		DisplayName:    displayName,
		IsActive:       true,
	}
	p.ID = uuid.New()
	s.participants = append(s.participants, p)
}

func (s *fakeInboundStore) addRouting(conversationID uuid.UUID, number string) {
	s.routing[conversationID] = append(s.routing[conversationID], number)
}

func (s *fakeInboundStore) FindActiveSMSParticipants(ctx context.Context, routingNumber string) ([]models.Participant, error) {
	var out []models.Participant
	for _, p := range s.participants {
		if p.Phone == routingNumber && p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeInboundStore) HasActiveParticipantWithRouting(ctx context.Context, conversationID uuid.UUID, routingNumber string) (bool, error) {
	for _, n := range s.routing[conversationID] {
		if n == routingNumber {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeInboundStore) FindMessageByExternalID(ctx context.Context, externalID string) (*models.Message, error) {
	for _, m := range s.messages {
		if m.ExternalID == externalID {
			return m, nil
		}
	}
	return nil, nil
}

func (s *fakeInboundStore) AppendInbound(ctx context.Context, msg *models.Message, at time.Time) error {
	msg.ID = uuid.New()
	s.messages = append(s.messages, msg)
	return nil
}

// recordingNotifier captures broadcast events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) BroadcastNotification(event string, data interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func newTestRouter(store InboundStore) *InboundRouter {
	return NewInboundRouter(store, phone.NewNormalizer("1"))
}

func TestRouteSingleMatch(t *testing.T) {
	store := newFakeInboundStore()
	convID := uuid.New()
	store.addParticipant(convID, "+19105552405", "Dana")

	notifier := &recordingNotifier{}
	router := newTestRouter(store)
	router.SetNotifier(notifier)

	routed, err := router.Route(context.Background(), "(910) 555-2405", "+19104440001", "on my way", "SM123")
	require.NoError(t, err)
	require.NotNil(t, routed)

	assert.Equal(t, convID, routed.ConversationID)
	assert.Equal(t, models.MessageDirectionIn, routed.Message.Direction)
	assert.Equal(t, models.MessageStatusReceived, routed.Message.Status)
	assert.Nil(t, routed.Message.SenderUserID)
	assert.Equal(t, "on my way", routed.Message.Body)
	assert.Equal(t, "SM123", routed.Message.ExternalID)

	require.Len(t, store.messages, 1)
	assert.Equal(t, []string{"message"}, notifier.events)
}

func TestRouteUnmatchedSender(t *testing.T) {
	store := newFakeInboundStore()
	router := newTestRouter(store)

	routed, err := router.Route(context.Background(), "+19105552405", "+19104440001", "hello?", "SM124")
	require.NoError(t, err, "unmatched inbound is not an error")
	assert.Nil(t, routed)
	assert.Empty(t, store.messages)
}

func TestRouteUnparseableSender(t *testing.T) {
	store := newFakeInboundStore()
	router := newTestRouter(store)

	routed, err := router.Route(context.Background(), "not a number", "+19104440001", "hi", "SM125")
	require.NoError(t, err)
	assert.Nil(t, routed)
}

func TestRouteReplayIsIdempotent(t *testing.T) {
	store := newFakeInboundStore()
	convID := uuid.New()
	store.addParticipant(convID, "+19105552405", "Dana")
	router := newTestRouter(store)

	first, err := router.Route(context.Background(), "+19105552405", "+19104440001", "ping", "SM200")
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := router.Route(context.Background(), "+19105552405", "+19104440001", "ping", "SM200")
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.Equal(t, first.Message.ID, second.Message.ID, "a replayed provider message attaches to the original")
	assert.Len(t, store.messages, 1)
}

func TestRouteDisambiguatesByRecipientNumber(t *testing.T) {
	store := newFakeInboundStore()
	recentConv := uuid.New()
	olderConv := uuid.New()

	// Insertion order encodes recency: recentConv first.
	store.addParticipant(recentConv, "+19105552405", "Dana")
	store.addParticipant(olderConv, "+19105552405", "Dana")

	// Only the older conversation contains the virtual number the SMS was
	// sent to, so it wins over the more recent one.
	store.addRouting(olderConv, "+19104440002")

	router := newTestRouter(store)
	routed, err := router.Route(context.Background(), "+19105552405", "+19104440002", "re: visit", "SM300")
	require.NoError(t, err)
	require.NotNil(t, routed)
	assert.Equal(t, olderConv, routed.ConversationID)
}

func TestRouteAmbiguousFallsBackToRecency(t *testing.T) {
	store := newFakeInboundStore()
	recentConv := uuid.New()
	olderConv := uuid.New()

	store.addParticipant(recentConv, "+19105552405", "Dana")
	store.addParticipant(olderConv, "+19105552405", "Dana")

	// The To number matches no candidate conversation.
	router := newTestRouter(store)
	routed, err := router.Route(context.Background(), "+19105552405", "+19104440009", "hey", "SM301")
	require.NoError(t, err)
	require.NotNil(t, routed)
	assert.Equal(t, recentConv, routed.ConversationID, "most recently active conversation wins")
}
