// Package mongostore persists chat state in MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/eunoia-health/eunoia/backend/internal/model/chat"
	"github.com/eunoia-health/eunoia/backend/internal/store"
)

// Config describes how to reach the document database.
type Config struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// Store implements store.Repository on three MongoDB collections.
type Store struct {
	client     *mongo.Client
	messages   *mongo.Collection
	sessions   *mongo.Collection
	activities *mongo.Collection
	logger     *zap.Logger
	now        func() time.Time
}

var _ store.Repository = (*Store)(nil)

// Open connects, verifies the connection and ensures indexes exist.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongostore: URI is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientOpts := options.Client().ApplyURI(cfg.URI)
	if cfg.Timeout > 0 {
		clientOpts.SetConnectTimeout(cfg.Timeout).SetServerSelectionTimeout(cfg.Timeout)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, store.WrapStorage("connect", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, store.WrapStorage("ping", err)
	}

	s := New(client, cfg.Database, logger)
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logger.Info("connected to document store", zap.String("database", cfg.Database))
	return s, nil
}

// New wraps an existing client.
func New(client *mongo.Client, database string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	db := client.Database(database)
	return &Store{
		client:     client,
		messages:   db.Collection(messagesCollection),
		sessions:   db.Collection(sessionsCollection),
		activities: db.Collection(activitiesCollection),
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// EnsureIndexes creates the query indexes. Creating an existing index is a
// no-op on the server.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[*mongo.Collection][]mongo.IndexModel{
		s.messages: {
			{Keys: bson.D{{Key: "sessionId", Value: 1}, {Key: "timestamp", Value: 1}}},
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "timestamp", Value: -1}}},
		},
		s.sessions: {
			{Keys: bson.D{{Key: "sessionId", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "lastActivity", Value: -1}}},
		},
		s.activities: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "timestamp", Value: -1}}},
		},
	}

	for coll, models := range indexes {
		names, err := coll.Indexes().CreateMany(ctx, models)
		if err != nil {
			return store.WrapStorage("create indexes "+coll.Name(), err)
		}
		s.logger.Debug("indexes ready", zap.String("collection", coll.Name()), zap.Strings("indexes", names))
	}
	return nil
}

// SaveMessage inserts one message.
func (s *Store) SaveMessage(ctx context.Context, message chat.Message) (string, error) {
	if err := store.ValidateMessage(message); err != nil {
		return "", err
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = s.now()
	}

	doc := toMessageDoc(message)
	doc.ID = primitive.NewObjectID()
	if _, err := s.messages.InsertOne(ctx, doc); err != nil {
		return "", store.WrapStorage("insert message", err)
	}
	return doc.ID.Hex(), nil
}

// GetMessages returns a session's messages oldest first. The _id tiebreak
// keeps pages stable for equal timestamps.
func (s *Store) GetMessages(ctx context.Context, sessionID string, limit int) ([]chat.Message, error) {
	limit = store.NormalizeLimit(limit, store.DefaultMessageLimit)

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := s.messages.Find(ctx, bson.M{"sessionId": sessionID}, opts)
	if err != nil {
		return nil, store.WrapStorage("find messages", err)
	}

	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, store.WrapStorage("decode messages", err)
	}

	messages := make([]chat.Message, 0, len(docs))
	for _, doc := range docs {
		messages = append(messages, doc.toMessage())
	}
	return messages, nil
}

// ScanMessages streams every message of a session oldest first.
func (s *Store) ScanMessages(ctx context.Context, sessionID string, fn func(chat.Message) error) error {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := s.messages.Find(ctx, bson.M{"sessionId": sessionID}, opts)
	if err != nil {
		return store.WrapStorage("find messages", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc messageDoc
		if err := cursor.Decode(&doc); err != nil {
			return store.WrapStorage("decode message", err)
		}
		if err := fn(doc.toMessage()); err != nil {
			return err
		}
	}
	if err := cursor.Err(); err != nil {
		return store.WrapStorage("scan messages", err)
	}
	return nil
}

// CreateSession inserts a session; the unique index rejects duplicates.
func (s *Store) CreateSession(ctx context.Context, session chat.Session) error {
	if _, err := s.sessions.InsertOne(ctx, toSessionDoc(session)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrDuplicateSession
		}
		return store.WrapStorage("insert session", err)
	}
	return nil
}

// UpdateSession applies the non-nil fields and refreshes lastActivity.
func (s *Store) UpdateSession(ctx context.Context, sessionID string, update chat.SessionUpdate) error {
	set := bson.M{"lastActivity": s.now()}
	if update.UserID != nil {
		set["userId"] = *update.UserID
	}
	if update.MessageCount != nil {
		set["messageCount"] = *update.MessageCount
	}
	if update.Status != nil {
		set["status"] = string(*update.Status)
	}
	if update.Summary != nil {
		set["summary"] = *update.Summary
	}
	if update.MoodAnalysis != nil {
		set["mood_analysis"] = update.MoodAnalysis
	}

	return s.updateExisting(ctx, "update session", sessionID, bson.M{"$set": set})
}

// EndSession marks the session ended.
func (s *Store) EndSession(ctx context.Context, sessionID string, summary string) error {
	set := bson.M{
		"status":       string(chat.StatusEnded),
		"lastActivity": s.now(),
	}
	if summary != "" {
		set["summary"] = summary
	}
	return s.updateExisting(ctx, "end session", sessionID, bson.M{"$set": set})
}

func (s *Store) updateExisting(ctx context.Context, op, sessionID string, update bson.M) error {
	result, err := s.sessions.UpdateOne(ctx, bson.M{"sessionId": sessionID}, update)
	if err != nil {
		return store.WrapStorage(op, err)
	}
	if result.MatchedCount == 0 {
		return store.ErrSessionNotFound
	}
	return nil
}

// CloseSession ends an active session with one conditional update.
func (s *Store) CloseSession(ctx context.Context, sessionID string, final store.SessionClose) (chat.Session, bool, error) {
	filter := bson.M{
		"sessionId": sessionID,
		"status":    string(chat.StatusActive),
	}
	if !final.IdleBefore.IsZero() {
		filter["lastActivity"] = bson.M{"$lt": final.IdleBefore}
	}
	set := bson.M{
		"status":       string(chat.StatusEnded),
		"lastActivity": s.now(),
	}
	if final.Summary != "" {
		set["summary"] = final.Summary
	}
	if final.MoodAnalysis != nil {
		set["mood_analysis"] = final.MoodAnalysis
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc sessionDoc
	err := s.sessions.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// Already ended, touched since the cutoff, or missing.
		session, err := s.GetSession(ctx, sessionID)
		if err != nil {
			return chat.Session{}, false, err
		}
		return session, false, nil
	}
	if err != nil {
		return chat.Session{}, false, store.WrapStorage("close session", err)
	}
	return doc.toSession(), true, nil
}

// TouchSession upserts the session row in one round trip. The pre-image
// tells a fresh insert apart from a refresh.
func (s *Store) TouchSession(ctx context.Context, sessionID string, userID int64, at time.Time) (chat.Session, bool, error) {
	if at.IsZero() {
		at = s.now()
	}

	filter := bson.M{"sessionId": sessionID}
	update := bson.M{
		"$setOnInsert": bson.M{"startTime": at},
		"$set": bson.M{
			"userId":       userID,
			"lastActivity": at,
			"status":       string(chat.StatusActive),
		},
		"$inc": bson.M{"messageCount": 1},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.Before)

	var before sessionDoc
	err := s.sessions.FindOneAndUpdate(ctx, filter, update, opts).Decode(&before)
	if err != nil && mongo.IsDuplicateKeyError(err) {
		// Two upserts raced on the unique index; the loser's retry matches.
		err = s.sessions.FindOneAndUpdate(ctx, filter, update, opts).Decode(&before)
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return chat.Session{
			SessionID:    sessionID,
			UserID:       userID,
			StartTime:    at.UTC(),
			LastActivity: at.UTC(),
			MessageCount: 1,
			Status:       chat.StatusActive,
		}, true, nil
	}
	if err != nil {
		return chat.Session{}, false, store.WrapStorage("upsert session", err)
	}

	session := before.toSession()
	session.UserID = userID
	session.LastActivity = at.UTC()
	session.MessageCount++
	session.Status = chat.StatusActive
	return session, false, nil
}

// GetSession loads one session.
func (s *Store) GetSession(ctx context.Context, sessionID string) (chat.Session, error) {
	var doc sessionDoc
	err := s.sessions.FindOne(ctx, bson.M{"sessionId": sessionID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return chat.Session{}, store.ErrSessionNotFound
	}
	if err != nil {
		return chat.Session{}, store.WrapStorage("find session", err)
	}
	return doc.toSession(), nil
}

// ListSessions returns a user's sessions, most recently active first.
func (s *Store) ListSessions(ctx context.Context, userID int64, limit int) ([]chat.Session, error) {
	limit = store.NormalizeLimit(limit, store.DefaultSessionLimit)
	opts := options.Find().
		SetSort(bson.D{{Key: "lastActivity", Value: -1}}).
		SetLimit(int64(limit))
	return s.findSessions(ctx, "list sessions", bson.M{"userId": userID}, opts)
}

// ListIdleSessions returns active sessions last touched before the cutoff.
func (s *Store) ListIdleSessions(ctx context.Context, before time.Time, limit int) ([]chat.Session, error) {
	limit = store.NormalizeLimit(limit, store.DefaultMessageLimit)
	filter := bson.M{
		"status":       string(chat.StatusActive),
		"lastActivity": bson.M{"$lt": before},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "lastActivity", Value: 1}}).
		SetLimit(int64(limit))
	return s.findSessions(ctx, "list idle sessions", filter, opts)
}

func (s *Store) findSessions(ctx context.Context, op string, filter bson.M, opts *options.FindOptions) ([]chat.Session, error) {
	cursor, err := s.sessions.Find(ctx, filter, opts)
	if err != nil {
		return nil, store.WrapStorage(op, err)
	}

	var docs []sessionDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, store.WrapStorage(op, err)
	}

	sessions := make([]chat.Session, 0, len(docs))
	for _, doc := range docs {
		sessions = append(sessions, doc.toSession())
	}
	return sessions, nil
}

// LogActivity appends an audit record stamped with the server time.
func (s *Store) LogActivity(ctx context.Context, activity chat.Activity) (string, error) {
	doc := activityDoc{
		ID:           primitive.NewObjectID(),
		UserID:       activity.UserID,
		ActivityType: string(activity.ActivityType),
		Timestamp:    s.now(),
		Details:      activity.Details,
		IPAddress:    activity.IPAddress,
		UserAgent:    activity.UserAgent,
	}
	if _, err := s.activities.InsertOne(ctx, doc); err != nil {
		return "", store.WrapStorage("insert activity", err)
	}
	return doc.ID.Hex(), nil
}

// ListActivity returns a user's audit trail, newest first.
func (s *Store) ListActivity(ctx context.Context, userID int64, limit int) ([]chat.Activity, error) {
	limit = store.NormalizeLimit(limit, store.DefaultActivityLimit)
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.activities.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, store.WrapStorage("list activity", err)
	}

	var docs []activityDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, store.WrapStorage("decode activity", err)
	}

	activities := make([]chat.Activity, 0, len(docs))
	for _, doc := range docs {
		activities = append(activities, doc.toActivity())
	}
	return activities, nil
}

// DailyAnalytics groups a user's messages since the given time by UTC day.
func (s *Store) DailyAnalytics(ctx context.Context, userID int64, since time.Time) ([]chat.DailyStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"userId":    userID,
			"timestamp": bson.M{"$gte": since},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{
				"date": bson.M{"$dateToString": bson.M{"format": "%Y-%m-%d", "date": "$timestamp"}},
			},
			"messageCount": bson.M{"$sum": 1},
			"userMessages": bson.M{"$sum": bson.M{
				"$cond": bson.A{bson.M{"$eq": bson.A{"$sender", string(chat.SenderUser)}}, 1, 0},
			}},
			"assistantMessages": bson.M{"$sum": bson.M{
				"$cond": bson.A{bson.M{"$eq": bson.A{"$sender", string(chat.SenderAssistant)}}, 1, 0},
			}},
			"avgSentiment": bson.M{"$avg": "$metadata.sentiment_score"},
		}}},
		{{Key: "$sort", Value: bson.M{"_id.date": 1}}},
	}

	cursor, err := s.messages.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, store.WrapStorage("aggregate analytics", err)
	}

	var rows []dailyRow
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, store.WrapStorage("decode analytics", err)
	}

	days := make([]chat.DailyStats, 0, len(rows))
	for _, row := range rows {
		stats := chat.DailyStats{
			Date:              row.ID.Date,
			MessageCount:      row.MessageCount,
			UserMessages:      row.UserMessages,
			AssistantMessages: row.AssistantMessages,
		}
		if row.AvgSentiment != nil {
			stats.AvgSentiment = *row.AvgSentiment
		}
		days = append(days, stats)
	}
	return days, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongo: %w", err)
	}
	return nil
}
