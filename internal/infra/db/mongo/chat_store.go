package mongo

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"passionautos/internal/chat"
)

// MessagePublisher pushes a freshly inserted row onto the change feed.
type MessagePublisher interface {
	PublishMessage(ctx context.Context, msg chat.Message) error
}

// ChatStore implements the row-store contract over the marketplace
// collections: conversations, conversation_participants, messages, users,
// vehicles.
type ChatStore struct {
	conversations *mongo.Collection
	participants  *mongo.Collection
	messages      *mongo.Collection
	users         *mongo.Collection
	vehicles      *mongo.Collection
	publisher     MessagePublisher
	logger        *slog.Logger
	now           func() time.Time
}

// NewChatStore wires the store; publisher may be nil when no feed runs.
func NewChatStore(db *mongo.Database, publisher MessagePublisher, logger *slog.Logger) *ChatStore {
	return &ChatStore{
		conversations: db.Collection("conversations"),
		participants:  db.Collection("conversation_participants"),
		messages:      db.Collection("messages"),
		users:         db.Collection("users"),
		vehicles:      db.Collection("vehicles"),
		publisher:     publisher,
		logger:        logger,
		now:           time.Now,
	}
}

type conversationDocument struct {
	ID            string `bson:"_id"`
	VehicleID     string `bson:"vehicle_id,omitempty"`
	Type          string `bson:"type"`
	CreatedAt     int64  `bson:"created_at"`
	LastMessageAt int64  `bson:"last_message_at,omitempty"`
}

type participantDocument struct {
	ConversationID string `bson:"conversation_id"`
	UserID         string `bson:"user_id"`
}

type messageDocument struct {
	ID             string `bson:"_id"`
	ConversationID string `bson:"conversation_id"`
	FromUserID     string `bson:"from_user_id"`
	ToUserID       string `bson:"to_user_id"`
	VehicleID      string `bson:"vehicle_id,omitempty"`
	Content        string `bson:"content"`
	Read           bool   `bson:"read"`
	CreatedAt      int64  `bson:"created_at"`
}

type userDocument struct {
	ID           string `bson:"_id"`
	Email        string `bson:"email"`
	FirstName    string `bson:"first_name,omitempty"`
	LastName     string `bson:"last_name,omitempty"`
	PasswordHash string `bson:"password_hash,omitempty"`
	CreatedAt    int64  `bson:"created_at"`
}

type vehicleDocument struct {
	ID      string   `bson:"_id"`
	OwnerID string   `bson:"owner_id,omitempty"`
	Title   string   `bson:"title"`
	Images  []string `bson:"images,omitempty"`
}

// ConversationsForUser loads membership rows, then hydrates conversations
// with participants and vehicle summaries.
func (s *ChatStore) ConversationsForUser(ctx context.Context, userID string) ([]chat.Conversation, error) {
	memberCursor, err := s.participants.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, err
	}
	var memberships []participantDocument
	if err := memberCursor.All(ctx, &memberships); err != nil {
		return nil, err
	}
	if len(memberships) == 0 {
		return []chat.Conversation{}, nil
	}
	ids := make([]string, 0, len(memberships))
	for _, m := range memberships {
		ids = append(ids, m.ConversationID)
	}

	convCursor, err := s.conversations.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	var convDocs []conversationDocument
	if err := convCursor.All(ctx, &convDocs); err != nil {
		return nil, err
	}

	allMembersCursor, err := s.participants.Find(ctx, bson.M{"conversation_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	var allMembers []participantDocument
	if err := allMembersCursor.All(ctx, &allMembers); err != nil {
		return nil, err
	}
	membersByConv := make(map[string][]string)
	userIDs := make(map[string]struct{})
	for _, m := range allMembers {
		membersByConv[m.ConversationID] = append(membersByConv[m.ConversationID], m.UserID)
		userIDs[m.UserID] = struct{}{}
	}
	usersByID, err := s.usersByIDs(ctx, keys(userIDs))
	if err != nil {
		return nil, err
	}

	vehicleIDs := make(map[string]struct{})
	for _, doc := range convDocs {
		if doc.VehicleID != "" {
			vehicleIDs[doc.VehicleID] = struct{}{}
		}
	}
	vehiclesByID, err := s.vehiclesByIDs(ctx, keys(vehicleIDs))
	if err != nil {
		return nil, err
	}

	result := make([]chat.Conversation, 0, len(convDocs))
	for _, doc := range convDocs {
		conv := chat.Conversation{
			ID:            doc.ID,
			VehicleID:     doc.VehicleID,
			Type:          chat.ConversationType(doc.Type),
			CreatedAt:     millisToTime(doc.CreatedAt),
			LastMessageAt: millisToTime(doc.LastMessageAt),
		}
		for _, memberID := range membersByConv[doc.ID] {
			if account, ok := usersByID[memberID]; ok {
				conv.Participants = append(conv.Participants, account.Participant())
			} else {
				conv.Participants = append(conv.Participants, chat.Participant{ID: memberID})
			}
		}
		if doc.VehicleID != "" {
			if vehicle, ok := vehiclesByID[doc.VehicleID]; ok {
				conv.Vehicle = &vehicle
			}
		}
		result = append(result, conv)
	}
	return result, nil
}

// MessagesForConversation returns the full history, oldest first.
func (s *ChatStore) MessagesForConversation(ctx context.Context, conversationID string) ([]chat.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.messages.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, err
	}
	var docs []messageDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	result := make([]chat.Message, 0, len(docs))
	for _, doc := range docs {
		result = append(result, doc.toMessage())
	}
	return result, nil
}

// RecentMessages returns up to limit messages, newest first, with the
// sender participant embedded.
func (s *ChatStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = chat.PageSize
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := s.messages.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, err
	}
	var docs []messageDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	senderIDs := make(map[string]struct{})
	for _, doc := range docs {
		senderIDs[doc.FromUserID] = struct{}{}
	}
	usersByID, err := s.usersByIDs(ctx, keys(senderIDs))
	if err != nil {
		return nil, err
	}

	result := make([]chat.Message, 0, len(docs))
	for _, doc := range docs {
		msg := doc.toMessage()
		if account, ok := usersByID[doc.FromUserID]; ok {
			p := account.Participant()
			msg.Sender = &p
		}
		result = append(result, msg)
	}
	return result, nil
}

// InsertMessage persists a draft with a store-assigned identifier, bumps
// the conversation activity marker, and publishes the row to the feed.
// The secondary writes are best-effort; the insert itself is the truth.
func (s *ChatStore) InsertMessage(ctx context.Context, draft chat.MessageDraft) (chat.Message, error) {
	if err := draft.Validate(); err != nil {
		return chat.Message{}, err
	}
	count, err := s.conversations.CountDocuments(ctx, bson.M{"_id": draft.ConversationID})
	if err != nil {
		return chat.Message{}, err
	}
	if count == 0 {
		return chat.Message{}, chat.ErrConversationNotFound
	}

	now := s.now().UTC()
	doc := messageDocument{
		ID:             uuid.NewString(),
		ConversationID: draft.ConversationID,
		FromUserID:     draft.FromUserID,
		ToUserID:       draft.ToUserID,
		VehicleID:      draft.VehicleID,
		Content:        draft.Content,
		Read:           false,
		CreatedAt:      now.UnixMilli(),
	}
	if _, err := s.messages.InsertOne(ctx, doc); err != nil {
		return chat.Message{}, err
	}

	if _, err := s.conversations.UpdateOne(ctx,
		bson.M{"_id": draft.ConversationID},
		bson.M{"$set": bson.M{"last_message_at": doc.CreatedAt}},
	); err != nil && s.logger != nil {
		s.logger.Warn("failed to update conversation activity", "conversation_id", draft.ConversationID, "error", err)
	}

	msg := doc.toMessage()
	if s.publisher != nil {
		if err := s.publisher.PublishMessage(ctx, msg); err != nil && s.logger != nil {
			s.logger.Warn("failed to publish message insert", "message_id", msg.ID, "error", err)
		}
	}
	return msg, nil
}

// MarkConversationRead is a single sweep over (conversation, recipient,
// unread).
func (s *ChatStore) MarkConversationRead(ctx context.Context, conversationID, userID string) (int64, error) {
	res, err := s.messages.UpdateMany(ctx,
		bson.M{"conversation_id": conversationID, "to_user_id": userID, "read": false},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// EnsureConversation returns the existing thread for (vehicle, pair) or
// creates one. An empty vehicleID makes a direct thread.
func (s *ChatStore) EnsureConversation(ctx context.Context, vehicleID, starterID, peerID string) (chat.Conversation, error) {
	starterID = strings.TrimSpace(starterID)
	peerID = strings.TrimSpace(peerID)
	if starterID == "" || peerID == "" || starterID == peerID {
		return chat.Conversation{}, errors.New("mongo: two distinct participants are required")
	}

	cursor, err := s.participants.Find(ctx, bson.M{"user_id": bson.M{"$in": []string{starterID, peerID}}})
	if err != nil {
		return chat.Conversation{}, err
	}
	var memberships []participantDocument
	if err := cursor.All(ctx, &memberships); err != nil {
		return chat.Conversation{}, err
	}
	shared := make(map[string]int)
	for _, m := range memberships {
		shared[m.ConversationID]++
	}
	for convID, members := range shared {
		if members < 2 {
			continue
		}
		var doc conversationDocument
		if err := s.conversations.FindOne(ctx, bson.M{"_id": convID, "vehicle_id": vehicleID}).Decode(&doc); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				continue
			}
			return chat.Conversation{}, err
		}
		return s.hydrateOne(ctx, doc)
	}

	doc := conversationDocument{
		ID:        uuid.NewString(),
		VehicleID: vehicleID,
		Type:      string(chat.ConversationDirect),
		CreatedAt: s.now().UTC().UnixMilli(),
	}
	if vehicleID != "" {
		doc.Type = string(chat.ConversationVehicle)
	}
	if _, err := s.conversations.InsertOne(ctx, doc); err != nil {
		return chat.Conversation{}, err
	}
	rows := []interface{}{
		participantDocument{ConversationID: doc.ID, UserID: starterID},
		participantDocument{ConversationID: doc.ID, UserID: peerID},
	}
	if _, err := s.participants.InsertMany(ctx, rows); err != nil {
		return chat.Conversation{}, err
	}
	return s.hydrateOne(ctx, doc)
}

// User returns the chat projection of a user row.
func (s *ChatStore) User(ctx context.Context, id string) (chat.Participant, error) {
	var doc userDocument
	if err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return chat.Participant{}, chat.ErrUserNotFound
		}
		return chat.Participant{}, err
	}
	return doc.toAccount().Participant(), nil
}

// UserByEmail returns the full account row for credential checks.
func (s *ChatStore) UserByEmail(ctx context.Context, email string) (chat.UserAccount, error) {
	var doc userDocument
	filter := bson.M{"email": strings.ToLower(strings.TrimSpace(email))}
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return chat.UserAccount{}, chat.ErrUserNotFound
		}
		return chat.UserAccount{}, err
	}
	return doc.toAccount(), nil
}

// CreateUser registers an account, assigning id and timestamp when absent.
func (s *ChatStore) CreateUser(ctx context.Context, account chat.UserAccount) (chat.UserAccount, error) {
	email := strings.ToLower(strings.TrimSpace(account.Email))
	if email == "" {
		return chat.UserAccount{}, errors.New("mongo: email is required")
	}
	count, err := s.users.CountDocuments(ctx, bson.M{"email": email})
	if err != nil {
		return chat.UserAccount{}, err
	}
	if count > 0 {
		return chat.UserAccount{}, chat.ErrEmailAlreadyUsed
	}
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = s.now().UTC()
	}
	account.Email = email
	doc := userDocument{
		ID:           account.ID,
		Email:        account.Email,
		FirstName:    account.FirstName,
		LastName:     account.LastName,
		PasswordHash: account.PasswordHash,
		CreatedAt:    account.CreatedAt.UnixMilli(),
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return chat.UserAccount{}, chat.ErrEmailAlreadyUsed
		}
		return chat.UserAccount{}, err
	}
	return account, nil
}

// Vehicle returns one listing summary.
func (s *ChatStore) Vehicle(ctx context.Context, id string) (chat.VehicleSummary, error) {
	var doc vehicleDocument
	if err := s.vehicles.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return chat.VehicleSummary{}, chat.ErrVehicleNotFound
		}
		return chat.VehicleSummary{}, err
	}
	return doc.toSummary(), nil
}

// Vehicles returns the catalog ordered by title.
func (s *ChatStore) Vehicles(ctx context.Context) ([]chat.VehicleSummary, error) {
	opts := options.Find().SetSort(bson.D{{Key: "title", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.vehicles.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	var docs []vehicleDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	result := make([]chat.VehicleSummary, 0, len(docs))
	for _, doc := range docs {
		result = append(result, doc.toSummary())
	}
	return result, nil
}

// AddVehicleImage appends an image URL to a listing.
func (s *ChatStore) AddVehicleImage(ctx context.Context, id, url string) error {
	res, err := s.vehicles.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$push": bson.M{"images": url}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return chat.ErrVehicleNotFound
	}
	return nil
}

func (s *ChatStore) hydrateOne(ctx context.Context, doc conversationDocument) (chat.Conversation, error) {
	conv := chat.Conversation{
		ID:            doc.ID,
		VehicleID:     doc.VehicleID,
		Type:          chat.ConversationType(doc.Type),
		CreatedAt:     millisToTime(doc.CreatedAt),
		LastMessageAt: millisToTime(doc.LastMessageAt),
	}
	cursor, err := s.participants.Find(ctx, bson.M{"conversation_id": doc.ID})
	if err != nil {
		return chat.Conversation{}, err
	}
	var memberships []participantDocument
	if err := cursor.All(ctx, &memberships); err != nil {
		return chat.Conversation{}, err
	}
	memberIDs := make(map[string]struct{}, len(memberships))
	for _, m := range memberships {
		memberIDs[m.UserID] = struct{}{}
	}
	usersByID, err := s.usersByIDs(ctx, keys(memberIDs))
	if err != nil {
		return chat.Conversation{}, err
	}
	for _, m := range memberships {
		if account, ok := usersByID[m.UserID]; ok {
			conv.Participants = append(conv.Participants, account.Participant())
		} else {
			conv.Participants = append(conv.Participants, chat.Participant{ID: m.UserID})
		}
	}
	if doc.VehicleID != "" {
		vehicle, err := s.Vehicle(ctx, doc.VehicleID)
		if err == nil {
			conv.Vehicle = &vehicle
		} else if !errors.Is(err, chat.ErrVehicleNotFound) {
			return chat.Conversation{}, err
		}
	}
	return conv, nil
}

func (s *ChatStore) usersByIDs(ctx context.Context, ids []string) (map[string]chat.UserAccount, error) {
	result := make(map[string]chat.UserAccount, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	cursor, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	var docs []userDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	for _, doc := range docs {
		result[doc.ID] = doc.toAccount()
	}
	return result, nil
}

func (s *ChatStore) vehiclesByIDs(ctx context.Context, ids []string) (map[string]chat.VehicleSummary, error) {
	result := make(map[string]chat.VehicleSummary, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	cursor, err := s.vehicles.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	var docs []vehicleDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	for _, doc := range docs {
		result[doc.ID] = doc.toSummary()
	}
	return result, nil
}

func (d messageDocument) toMessage() chat.Message {
	return chat.Message{
		ID:             d.ID,
		State:          chat.MessagePersisted,
		ConversationID: d.ConversationID,
		FromUserID:     d.FromUserID,
		ToUserID:       d.ToUserID,
		VehicleID:      d.VehicleID,
		Content:        d.Content,
		Read:           d.Read,
		CreatedAt:      millisToTime(d.CreatedAt),
	}
}

func (d userDocument) toAccount() chat.UserAccount {
	return chat.UserAccount{
		ID:           d.ID,
		Email:        d.Email,
		FirstName:    d.FirstName,
		LastName:     d.LastName,
		PasswordHash: d.PasswordHash,
		CreatedAt:    millisToTime(d.CreatedAt),
	}
}

func (d vehicleDocument) toSummary() chat.VehicleSummary {
	return chat.VehicleSummary{
		ID:      d.ID,
		OwnerID: d.OwnerID,
		Title:   d.Title,
		Images:  append([]string(nil), d.Images...),
	}
}

func millisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
