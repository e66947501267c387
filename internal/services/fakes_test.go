package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"carewire/pkg/models"
)

// fakeNumberStore is an in-memory NumberStore. Like the real store it
// enforces uniqueness of number and assigned user and reports violations as
// ErrNumberTaken; a single mutex stands in for the database's atomicity.
type fakeNumberStore struct {
	mu      sync.Mutex
	numbers map[string]*models.VirtualNumber
}

func newFakeNumberStore() *fakeNumberStore {
	return &fakeNumberStore{numbers: make(map[string]*models.VirtualNumber)}
}

func (s *fakeNumberStore) Create(ctx context.Context, vn *models.VirtualNumber) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.numbers[vn.Number]; exists {
		return fmt.Errorf("%w: number exists", ErrNumberTaken)
	}
	if vn.AssignedUserID != nil {
		for _, existing := range s.numbers {
			if existing.AssignedUserID != nil && *existing.AssignedUserID == *vn.AssignedUserID {
				return fmt.Errorf("%w: user already assigned", ErrNumberTaken)
			}
		}
	}

	vn.ID = uuid.New()
	clone := *vn
	s.numbers[vn.Number] = &clone
	return nil
}

func (s *fakeNumberStore) FindByAssignedUser(ctx context.Context, userID uuid.UUID) (*models.VirtualNumber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, vn := range s.numbers {
		if vn.AssignedUserID != nil && *vn.AssignedUserID == userID {
			clone := *vn
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *fakeNumberStore) FindByNumber(ctx context.Context, number string) (*models.VirtualNumber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if vn, ok := s.numbers[number]; ok {
		clone := *vn
		return &clone, nil
	}
	return nil, nil
}

func (s *fakeNumberStore) ClaimFree(ctx context.Context, userID uuid.UUID, at time.Time) (*models.VirtualNumber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.numbers {
		if existing.AssignedUserID != nil && *existing.AssignedUserID == userID {
			return nil, fmt.Errorf("%w: user already assigned", ErrNumberTaken)
		}
	}

	// Deterministic claim order keeps tests stable.
	keys := make([]string, 0, len(s.numbers))
	for k := range s.numbers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		vn := s.numbers[k]
		if vn.AssignedUserID == nil {
			uid := userID
			t := at
			vn.AssignedUserID = &uid
			vn.AssignedAt = &t
			clone := *vn
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *fakeNumberStore) Release(ctx context.Context, userID uuid.UUID) (*models.VirtualNumber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, vn := range s.numbers {
		if vn.AssignedUserID != nil && *vn.AssignedUserID == userID {
			vn.AssignedUserID = nil
			vn.AssignedAt = nil
			clone := *vn
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *fakeNumberStore) DeleteFree(ctx context.Context, number string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	vn, ok := s.numbers[number]
	if !ok || vn.AssignedUserID != nil {
		return ErrNumberNotFound
	}
	delete(s.numbers, number)
	return nil
}

func (s *fakeNumberStore) ListNumbers(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.numbers))
	for n := range s.numbers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

func (s *fakeNumberStore) ListAvailable(ctx context.Context) ([]models.VirtualNumber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.VirtualNumber
	for _, vn := range s.numbers {
		if vn.AssignedUserID == nil {
			out = append(out, *vn)
		}
	}
	return out, nil
}

func (s *fakeNumberStore) ListAssigned(ctx context.Context) ([]models.VirtualNumber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.VirtualNumber
	for _, vn := range s.numbers {
		if vn.AssignedUserID != nil {
			out = append(out, *vn)
		}
	}
	return out, nil
}

func virtualNumberFor(number string, userID *uuid.UUID) *models.VirtualNumber {
	return &models.VirtualNumber{Number: number, AssignedUserID: userID}
}

// fakeConsentStore is an in-memory ConsentStore.
type fakeConsentStore struct {
	contacts []*models.Contact
	consents []*models.ConsentRecord
}

func (s *fakeConsentStore) addContact(name, phone string, userID *uuid.UUID) *models.Contact {
	c := &models.Contact{Name: name, Phone: phone, UserID: userID}
	c.ID = uuid.New()
	s.contacts = append(s.contacts, c)
	return c
}

func (s *fakeConsentStore) grant(contactID, patientID uuid.UUID) *models.ConsentRecord {
	now := time.Now()
	rec := &models.ConsentRecord{ContactID: contactID, PatientID: patientID, Granted: true, GrantedAt: &now}
	rec.ID = uuid.New()
	s.consents = append(s.consents, rec)
	return rec
}

func (s *fakeConsentStore) FindContactByUser(ctx context.Context, userID uuid.UUID) (*models.Contact, error) {
	for _, c := range s.contacts {
		if c.UserID != nil && *c.UserID == userID {
			return c, nil
		}
	}
	return nil, nil
}

func (s *fakeConsentStore) FindContactByPhone(ctx context.Context, phone string) (*models.Contact, error) {
	for _, c := range s.contacts {
		if c.Phone == phone {
			return c, nil
		}
	}
	return nil, nil
}

func (s *fakeConsentStore) HasActiveConsent(ctx context.Context, contactID, patientID uuid.UUID) (bool, error) {
	for _, rec := range s.consents {
		if rec.ContactID == contactID && rec.PatientID == patientID && rec.Granted && rec.RevokedAt == nil {
			return true, nil
		}
	}
	return false, nil
}

// fakeDirectoryStore is an in-memory DirectoryStore.
type fakeDirectoryStore struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]*models.Conversation
	participants  []*models.Participant
	users         map[uuid.UUID]*models.User

	routingUpdates map[uuid.UUID]string
}

func newFakeDirectoryStore() *fakeDirectoryStore {
	return &fakeDirectoryStore{
		conversations:  make(map[uuid.UUID]*models.Conversation),
		users:          make(map[uuid.UUID]*models.User),
		routingUpdates: make(map[uuid.UUID]string),
	}
}

func (s *fakeDirectoryStore) addUser(name string) *models.User {
	u := &models.User{Name: name, Email: name + "@example.com", IsActive: true}
	u.ID = uuid.New()
	s.users[u.ID] = u
	return u
}

func (s *fakeDirectoryStore) CreateConversationWithParticipants(ctx context.Context, conv *models.Conversation, participants []models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv.ID = uuid.New()
	s.conversations[conv.ID] = conv
	for i := range participants {
		p := participants[i]
		p.ID = uuid.New()
		p.ConversationID = conv.ID
		s.participants = append(s.participants, &p)
	}
	return nil
}

func (s *fakeDirectoryStore) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.conversations[id]; ok {
		return conv, nil
	}
	return nil, nil
}

func (s *fakeDirectoryStore) DeactivateConversation(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.conversations[id]; ok {
		conv.IsActive = false
	}
	return nil
}

func (s *fakeDirectoryStore) CreateParticipant(ctx context.Context, p *models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = uuid.New()
	s.participants = append(s.participants, p)
	return nil
}

func (s *fakeDirectoryStore) matches(p *models.Participant, identity Identity) bool {
	if identity.UserID != nil {
		return p.Kind == models.ParticipantKindVirtual && p.UserID != nil && *p.UserID == *identity.UserID
	}
	return p.Kind == models.ParticipantKindSMS && p.Phone == identity.Phone
}

func (s *fakeDirectoryStore) FindActiveParticipant(ctx context.Context, conversationID uuid.UUID, identity Identity) (*models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.participants {
		if p.ConversationID == conversationID && p.IsActive && s.matches(p, identity) {
			return p, nil
		}
	}
	return nil, nil
}

func (s *fakeDirectoryStore) ListActiveParticipants(ctx context.Context, conversationID uuid.UUID) ([]models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Participant
	for _, p := range s.participants {
		if p.ConversationID == conversationID && p.IsActive {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *fakeDirectoryStore) MarkParticipantLeft(ctx context.Context, conversationID uuid.UUID, identity Identity, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.participants {
		if p.ConversationID == conversationID && p.IsActive && s.matches(p, identity) {
			p.IsActive = false
			t := at
			p.LeftAt = &t
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeDirectoryStore) UpdateParticipantRouting(ctx context.Context, participantID uuid.UUID, routingNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routingUpdates[participantID] = routingNumber
	for _, p := range s.participants {
		if p.ID == participantID {
			p.RoutingNumber = routingNumber
		}
	}
	return nil
}

func (s *fakeDirectoryStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, nil
}

// fakeMessageStore is an in-memory MessageStore.
type fakeMessageStore struct {
	mu         sync.Mutex
	messages   map[uuid.UUID]*models.Message
	deliveries []*models.MessageDelivery
	finalized  map[uuid.UUID]string
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{
		messages:  make(map[uuid.UUID]*models.Message),
		finalized: make(map[uuid.UUID]string),
	}
}

func (s *fakeMessageStore) CreateMessageWithDeliveries(ctx context.Context, msg *models.Message, deliveries []models.MessageDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.ID = uuid.New()
	s.messages[msg.ID] = msg
	for i := range deliveries {
		deliveries[i].ID = uuid.New()
		deliveries[i].MessageID = msg.ID
		clone := deliveries[i]
		s.deliveries = append(s.deliveries, &clone)
	}
	return nil
}

func (s *fakeMessageStore) UpdateDelivery(ctx context.Context, delivery *models.MessageDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.deliveries {
		if d.MessageID == delivery.MessageID && d.ParticipantID == delivery.ParticipantID {
			d.Status = delivery.Status
			d.ProviderSID = delivery.ProviderSID
			d.ErrorMessage = delivery.ErrorMessage
			return nil
		}
	}
	return fmt.Errorf("delivery not found")
}

func (s *fakeMessageStore) FinalizeMessage(ctx context.Context, messageID, conversationID uuid.UUID, status string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := s.messages[messageID]; ok {
		msg.Status = status
	}
	s.finalized[messageID] = status
	return nil
}

func (s *fakeMessageStore) deliveriesFor(messageID uuid.UUID) []*models.MessageDelivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.MessageDelivery
	for _, d := range s.deliveries {
		if d.MessageID == messageID {
			out = append(out, d)
		}
	}
	return out
}
