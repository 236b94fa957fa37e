package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"Genie/lib/sl"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/gorm"
)

const migrationsCollectionName = "schema_migrations"

// SchemaMigration records one applied migration version.
type SchemaMigration struct {
	Version   int       `bson:"version" gorm:"column:version;primaryKey;autoIncrement:false"`
	Name      string    `bson:"name" gorm:"column:name;not null"`
	AppliedAt time.Time `bson:"applied_at" gorm:"column:applied_at;not null"`
}

func (SchemaMigration) TableName() string {
	return "schema_migrations"
}

type sqlMigration struct {
	version int
	name    string
	up      func(tx *gorm.DB) error
}

// usersV1 is the users table as first released. Version 1 creates it from
// this shape so the later versions have real columns to add.
type usersV1 struct {
	UserId        int64     `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	WeekStart     time.Time `gorm:"column:week_start;not null"`
	UsedCount     int       `gorm:"column:used_count;not null"`
	BonusCount    int       `gorm:"column:bonus_count;not null"`
	AcceptedTerms bool      `gorm:"column:accepted_terms;not null"`
	ReferredBy    int64     `gorm:"column:referred_by;not null"`
	IsActive      bool      `gorm:"column:is_active;not null"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (usersV1) TableName() string {
	return "users"
}

func addColumns(tx *gorm.DB, fields ...string) error {
	for _, field := range fields {
		if tx.Migrator().HasColumn(&UserRecord{}, field) {
			continue
		}
		if err := tx.Migrator().AddColumn(&UserRecord{}, field); err != nil {
			return err
		}
	}
	return nil
}

var sqlMigrations = []sqlMigration{
	{1, "create users", func(tx *gorm.DB) error {
		return tx.Migrator().CreateTable(&usersV1{})
	}},
	{2, "add conversation state", func(tx *gorm.DB) error {
		return addColumns(tx, "Mode", "AwaitingImage")
	}},
	{3, "index referred_by", func(tx *gorm.DB) error {
		if tx.Migrator().HasIndex(&UserRecord{}, "ReferredBy") {
			return nil
		}
		return tx.Migrator().CreateIndex(&UserRecord{}, "ReferredBy")
	}},
	{4, "add rewarded marker", func(tx *gorm.DB) error {
		if err := addColumns(tx, "Rewarded"); err != nil {
			return err
		}
		return tx.Model(&UserRecord{}).Where("is_active = ?", true).UpdateColumn("rewarded", true).Error
	}},
}

// MigrateSQL applies pending versions in order, each in its own transaction.
// Already applied versions are skipped, so running it on every start is safe.
func MigrateSQL(ctx context.Context, db *gorm.DB, log *slog.Logger) error {
	log = log.With(sl.Module("migrations"))
	db = db.WithContext(ctx)
	if err := db.AutoMigrate(&SchemaMigration{}); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	var applied []SchemaMigration
	if err := db.Find(&applied).Error; err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}
	done := make(map[int]bool, len(applied))
	for _, m := range applied {
		done[m.Version] = true
	}

	for _, m := range sqlMigrations {
		if done[m.version] {
			continue
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := m.up(tx); err != nil {
				return err
			}
			return tx.Create(&SchemaMigration{Version: m.version, Name: m.name, AppliedAt: time.Now().UTC()}).Error
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		log.With(
			slog.Int("version", m.version),
			slog.String("name", m.name),
		).Info("migration applied")
	}
	return nil
}

type mongoMigration struct {
	version int
	name    string
	up      func(ctx context.Context, db *mongo.Database) error
}

var mongoMigrations = []mongoMigration{
	{1, "unique user_id", func(ctx context.Context, db *mongo.Database) error {
		_, err := db.Collection(usersCollectionName).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		})
		return err
	}},
	{2, "index referred_by", func(ctx context.Context, db *mongo.Database) error {
		_, err := db.Collection(usersCollectionName).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: "referred_by", Value: 1}, {Key: "is_active", Value: 1}},
		})
		return err
	}},
	{3, "unique dialog user_id", func(ctx context.Context, db *mongo.Database) error {
		_, err := db.Collection(collectionName).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		})
		return err
	}},
	{4, "mark active users rewarded", func(ctx context.Context, db *mongo.Database) error {
		_, err := db.Collection(usersCollectionName).UpdateMany(ctx,
			bson.M{"is_active": true},
			bson.M{"$set": bson.M{"rewarded": true}},
		)
		return err
	}},
}

// MigrateMongo is the MongoDB counterpart of MigrateSQL.
func MigrateMongo(ctx context.Context, db *mongo.Database, log *slog.Logger) error {
	log = log.With(sl.Module("migrations"))
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	versions := db.Collection(migrationsCollectionName)
	for _, m := range mongoMigrations {
		n, err := versions.CountDocuments(ctx, bson.M{"version": m.version}, options.Count().SetLimit(1))
		if err != nil {
			return fmt.Errorf("reading migrations: %w", err)
		}
		if n > 0 {
			continue
		}
		if err := m.up(ctx, db); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		_, err = versions.InsertOne(ctx, SchemaMigration{Version: m.version, Name: m.name, AppliedAt: time.Now().UTC()})
		if err != nil {
			return fmt.Errorf("recording migration %d: %w", m.version, err)
		}
		log.With(
			slog.Int("version", m.version),
			slog.String("name", m.name),
		).Info("migration applied")
	}
	return nil
}
