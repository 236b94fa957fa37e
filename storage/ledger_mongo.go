package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"Genie/core"
	"Genie/lib/sl"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollectionName = "users"
	mongoTimeout        = 5 * time.Second
)

// MongoLedger keeps user records in one collection keyed by user_id.
// Counters are changed with $inc and transitions with filter-guarded
// updates, so concurrent writers never lose an increment.
type MongoLedger struct {
	client     *mongo.Client
	collection *mongo.Collection
	log        *slog.Logger
}

func NewMongoLedger(client *mongo.Client, database string, log *slog.Logger) *MongoLedger {
	return &MongoLedger{
		client:     client,
		collection: client.Database(database).Collection(usersCollectionName),
		log:        log,
	}
}

func (m *MongoLedger) GetOrCreate(ctx context.Context, userId, referrer int64, now time.Time) (*UserRecord, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	existing, err := m.Get(ctx, userId)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	if referrer == userId {
		referrer = 0
	}
	if referrer != 0 {
		n, err := m.collection.CountDocuments(ctx, bson.M{"user_id": referrer}, options.Count().SetLimit(1))
		if err != nil {
			return nil, false, fmt.Errorf("%w: checking referrer: %w", core.ErrStorage, err)
		}
		if n == 0 {
			referrer = 0
		}
	}

	rec := newRecord(userId, referrer, now)
	res, err := m.collection.UpdateOne(ctx,
		bson.M{"user_id": userId},
		bson.M{"$setOnInsert": rec},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return nil, false, fmt.Errorf("%w: creating user: %w", core.ErrStorage, err)
	}

	stored, err := m.Get(ctx, userId)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, fmt.Errorf("%w: user %d missing after upsert", core.ErrStorage, userId)
	}
	return stored, res.UpsertedCount == 1, nil
}

func (m *MongoLedger) Get(ctx context.Context, userId int64) (*UserRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	var rec UserRecord
	err := m.collection.FindOne(ctx, bson.M{"user_id": userId}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: finding user: %w", core.ErrStorage, err)
	}
	return &rec, nil
}

func (m *MongoLedger) Update(ctx context.Context, userId int64, mut Mutation, now time.Time) error {
	if mut.empty() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	set := bson.M{"updated_at": now}
	inc := bson.M{}
	if mut.IncUsed != 0 {
		inc["used_count"] = mut.IncUsed
	}
	if mut.IncBonus != 0 {
		inc["bonus_count"] = mut.IncBonus
	}
	if mut.AcceptTerms {
		set["accepted_terms"] = true
	}
	if mut.Mode != nil {
		set["mode"] = *mut.Mode
	}
	if mut.AwaitingImage != nil {
		set["awaiting_image"] = *mut.AwaitingImage
	}
	update := bson.M{"$set": set}
	if len(inc) > 0 {
		update["$inc"] = inc
	}

	res, err := m.collection.UpdateOne(ctx, bson.M{"user_id": userId}, update)
	if err != nil {
		return fmt.Errorf("%w: updating user: %w", core.ErrStorage, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: user %d not found", core.ErrStorage, userId)
	}
	return nil
}

func (m *MongoLedger) ResetWindow(ctx context.Context, userId int64, cutoff, now time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	res, err := m.collection.UpdateOne(ctx,
		bson.M{"user_id": userId, "week_start": bson.M{"$lt": cutoff}},
		bson.M{"$set": bson.M{
			"used_count": 0,
			"week_start": now,
			"updated_at": now,
		}},
	)
	if err != nil {
		return false, fmt.Errorf("%w: resetting window: %w", core.ErrStorage, err)
	}
	return res.ModifiedCount == 1, nil
}

// Activate runs without a transaction, so the flip and the referrer credit
// are separate writes. The credit is guarded by rewarded_for on the referrer
// and the invitee is marked rewarded only after it lands. A credit lost to a
// failure between the writes is completed by the next call for the invitee.
func (m *MongoLedger) Activate(ctx context.Context, userId int64, bonus int, now time.Time) (Activation, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	// matches an inactive user, or an active one whose referrer credit is
	// still pending; the returned document is the state before the update
	var rec UserRecord
	err := m.collection.FindOneAndUpdate(ctx,
		bson.M{"user_id": userId, "$or": bson.A{
			bson.M{"is_active": false},
			bson.M{"rewarded": bson.M{"$ne": true}, "referred_by": bson.M{"$ne": 0}},
		}},
		bson.M{"$set": bson.M{"is_active": true, "updated_at": now}},
	).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Activation{}, nil
	}
	if err != nil {
		return Activation{}, fmt.Errorf("%w: activating user: %w", core.ErrStorage, err)
	}

	result := Activation{Activated: !rec.IsActive, Referrer: rec.ReferredBy}
	if !rec.HasReferrer() {
		return result, nil
	}
	if bonus > 0 {
		res, err := m.collection.UpdateOne(ctx,
			bson.M{"user_id": rec.ReferredBy, "rewarded_for": bson.M{"$ne": userId}},
			bson.M{
				"$inc":      bson.M{"bonus_count": bonus},
				"$addToSet": bson.M{"rewarded_for": userId},
				"$set":      bson.M{"updated_at": now},
			},
		)
		if err != nil {
			return result, fmt.Errorf("%w: crediting referrer %d: %w", core.ErrStorage, rec.ReferredBy, err)
		}
		if res.ModifiedCount == 1 {
			result.Bonus = bonus
		}
	}

	_, err = m.collection.UpdateOne(ctx,
		bson.M{"user_id": userId},
		bson.M{"$set": bson.M{"rewarded": true}},
	)
	if err != nil {
		// the referrer guard keeps the retry from crediting twice
		m.log.With(
			sl.User(userId),
			slog.Int64("referrer", rec.ReferredBy),
		).Warn("marking invitee rewarded", sl.Err(err))
	}
	return result, nil
}

func (m *MongoLedger) CountReferrals(ctx context.Context, referrer int64) (int, int, error) {
	if referrer == 0 {
		return 0, 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	invited, err := m.collection.CountDocuments(ctx, bson.M{"referred_by": referrer})
	if err != nil {
		return 0, 0, fmt.Errorf("%w: counting referrals: %w", core.ErrStorage, err)
	}
	active, err := m.collection.CountDocuments(ctx, bson.M{"referred_by": referrer, "is_active": true})
	if err != nil {
		return 0, 0, fmt.Errorf("%w: counting active referrals: %w", core.ErrStorage, err)
	}
	return int(invited), int(active), nil
}

// Close is a no-op, the client is shared with the dialog storage.
func (m *MongoLedger) Close() error {
	return nil
}
