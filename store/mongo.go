package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aluiziolira/go-wishlist-harvester/models"
)

// favoritesDoc is the single wishlist document kept per user.
type favoritesDoc struct {
	UserID    string            `bson:"_id"`
	Products  []*models.Product `bson:"products"`
	UpdatedAt time.Time         `bson:"updated_at"`
}

// Mongo stores users and one favorites document per user.
type Mongo struct {
	client    *mongo.Client
	users     *mongo.Collection
	favorites *mongo.Collection
}

// NewMongo connects to uri and prepares the collections of database.
func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	db := client.Database(database)
	users := db.Collection("users")
	_, err = users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb users index: %w", err)
	}

	return &Mongo{
		client:    client,
		users:     users,
		favorites: db.Collection("favorites"),
	}, nil
}

// SaveUser upserts the profile by email and returns the document id.
func (s *Mongo) SaveUser(ctx context.Context, user models.UserProfile) (string, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	err := s.users.FindOneAndUpdate(ctx,
		bson.M{"email": user.Email},
		bson.M{"$set": bson.M{
			"email":      user.Email,
			"first_name": user.FirstName,
			"last_name":  user.LastName,
			"city":       user.City,
		}},
		opts,
	).Decode(&doc)
	if err != nil {
		return "", fmt.Errorf("mongodb upsert user: %w", err)
	}
	return doc.ID.Hex(), nil
}

// SaveFavorites replaces the user's favorites document.
func (s *Mongo) SaveFavorites(ctx context.Context, userID string, products []*models.Product) error {
	if _, err := primitive.ObjectIDFromHex(userID); err != nil {
		return fmt.Errorf("%w: %q", ErrBadUserID, userID)
	}
	if products == nil {
		products = []*models.Product{}
	}

	doc := favoritesDoc{UserID: userID, Products: products, UpdatedAt: time.Now().UTC()}
	_, err := s.favorites.ReplaceOne(ctx,
		bson.M{"_id": userID},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongodb replace favorites: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
