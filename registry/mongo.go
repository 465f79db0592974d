package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rbaliyan/schema"
)

/*
MongoDB layout:

Collection: schemas
{
    "_id": long,            // identity
    "fingerprint": string,  // content address, unique
    "name": string,
    "type": int,
    "definition": binData,
    "properties": object,
    "created_at": ISODate
}

Collection: schema_subjects
{
    "_id": string,          // subject
    "versions": [long]      // identities, registration order
}

Collection: schema_counters
{
    "_id": "schema_id",
    "value": long
}

Indexes:
db.schemas.createIndex({"fingerprint": 1}, {unique: true})
*/

// mongoSchema represents a schema document in MongoDB.
type mongoSchema struct {
	ID          int64             `bson:"_id"`
	Fingerprint string            `bson:"fingerprint"`
	Name        string            `bson:"name,omitempty"`
	Type        int8              `bson:"type"`
	Definition  []byte            `bson:"definition,omitempty"`
	Properties  map[string]string `bson:"properties,omitempty"`
	CreatedAt   time.Time         `bson:"created_at"`
}

func (m *mongoSchema) toInfo() *schema.Info {
	return &schema.Info{
		Name:       m.Name,
		Type:       schema.Type(m.Type),
		Definition: m.Definition,
		Properties: m.Properties,
	}
}

// Mongo is a Store backed by MongoDB.
//
// Example:
//
//	client, _ := mongo.Connect(ctx, options.Client().ApplyURI("mongodb://localhost:27017"))
//	store := registry.NewMongo(client.Database("mydb"))
//	defer store.Close()
type Mongo struct {
	schemas  *mongo.Collection
	subjects *mongo.Collection
	counters *mongo.Collection

	mu     sync.RWMutex
	closed bool
}

// NewMongo creates a MongoDB-backed store using the default collections.
func NewMongo(db *mongo.Database) *Mongo {
	m := &Mongo{}
	return m.WithCollection(db, "schemas")
}

// WithCollection rebinds the store to a custom base collection name. The
// subject and counter collections derive their names from it.
func (m *Mongo) WithCollection(db *mongo.Database, name string) *Mongo {
	m.schemas = db.Collection(name)
	m.subjects = db.Collection(name + "_subjects")
	m.counters = db.Collection(name + "_counters")
	return m
}

// Indexes returns the required indexes for the schemas collection.
func (m *Mongo) Indexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "fingerprint", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
}

// EnsureIndexes creates the required indexes.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := m.schemas.Indexes().CreateMany(ctx, m.Indexes())
	return err
}

func (m *Mongo) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// nextID allocates the next identity through an atomic counter increment.
func (m *Mongo) nextID(ctx context.Context) (int64, error) {
	var counter struct {
		Value int64 `bson:"value"`
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)
	err := m.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": "schema_id"},
		bson.M{"$inc": bson.M{"value": 1}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("allocate id: %w", err)
	}
	return counter.Value, nil
}

// Register records a schema under the subject and returns its identity.
func (m *Mongo) Register(ctx context.Context, subject string, info *schema.Info) (int64, error) {
	if m.isClosed() {
		return 0, ErrClosed
	}
	if info == nil {
		return 0, fmt.Errorf("%w: nil schema info", schema.ErrConfiguration)
	}

	print := fingerprint(info)
	id, err := m.findByFingerprint(ctx, print)
	if err != nil && err != mongo.ErrNoDocuments {
		return 0, err
	}
	if err == mongo.ErrNoDocuments {
		id, err = m.nextID(ctx)
		if err != nil {
			return 0, err
		}
		doc := mongoSchema{
			ID:          id,
			Fingerprint: print,
			Name:        info.Name,
			Type:        int8(info.Type),
			Definition:  info.Definition,
			Properties:  info.Properties,
			CreatedAt:   time.Now(),
		}
		if _, err := m.schemas.InsertOne(ctx, doc); err != nil {
			// A racing registration of the same schema won the unique
			// index; use its identity.
			if mongo.IsDuplicateKeyError(err) {
				id, err = m.findByFingerprint(ctx, print)
				if err != nil {
					return 0, fmt.Errorf("store schema: %w", err)
				}
			} else {
				return 0, fmt.Errorf("store schema: %w", err)
			}
		}
	}

	_, err = m.subjects.UpdateOne(ctx,
		bson.M{"_id": subject},
		bson.M{"$addToSet": bson.M{"versions": id}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return 0, fmt.Errorf("append version: %w", err)
	}
	return id, nil
}

func (m *Mongo) findByFingerprint(ctx context.Context, print string) (int64, error) {
	var doc mongoSchema
	err := m.schemas.FindOne(ctx, bson.M{"fingerprint": print}).Decode(&doc)
	if err != nil {
		return 0, err
	}
	return doc.ID, nil
}

// Resolve returns the schema registered under the identity.
func (m *Mongo) Resolve(ctx context.Context, version int64) (*schema.Info, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}

	var doc mongoSchema
	err := m.schemas.FindOne(ctx, bson.M{"_id": version}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, version)
	}
	if err != nil {
		return nil, fmt.Errorf("get schema: %w", err)
	}
	return doc.toInfo(), nil
}

// Latest returns the identity and schema most recently registered under
// the subject.
func (m *Mongo) Latest(ctx context.Context, subject string) (int64, *schema.Info, error) {
	if m.isClosed() {
		return 0, nil, ErrClosed
	}

	var doc struct {
		Versions []int64 `bson:"versions"`
	}
	err := m.subjects.FindOne(ctx, bson.M{"_id": subject}).Decode(&doc)
	if err == mongo.ErrNoDocuments || (err == nil && len(doc.Versions) == 0) {
		return 0, nil, fmt.Errorf("%w: subject %q", ErrNotFound, subject)
	}
	if err != nil {
		return 0, nil, fmt.Errorf("read subject: %w", err)
	}

	id := doc.Versions[len(doc.Versions)-1]
	info, err := m.Resolve(ctx, id)
	if err != nil {
		return 0, nil, err
	}
	return id, info, nil
}

// Subjects lists registered subjects, sorted.
func (m *Mongo) Subjects(ctx context.Context) ([]string, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}

	cursor, err := m.subjects.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	defer cursor.Close(ctx)

	var subjects []string
	for cursor.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode subject: %w", err)
		}
		subjects = append(subjects, doc.ID)
	}
	return subjects, cursor.Err()
}

// Delete removes the subject's version history. Identities stay
// resolvable.
func (m *Mongo) Delete(ctx context.Context, subject string) error {
	if m.isClosed() {
		return ErrClosed
	}

	_, err := m.subjects.DeleteOne(ctx, bson.M{"_id": subject})
	if err != nil {
		return fmt.Errorf("delete subject: %w", err)
	}
	return nil
}

// Close closes the store. The underlying Mongo client stays open.
func (m *Mongo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// Compile-time check that Mongo implements Store.
var _ Store = (*Mongo)(nil)
