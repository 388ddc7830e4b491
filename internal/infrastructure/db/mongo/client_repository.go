package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/clientdesk/clients-api/internal/core/domain"
	"github.com/clientdesk/clients-api/internal/core/ports"
)

type ClientRepository struct {
	db  *mongo.Database
	col *mongo.Collection
}

var _ ports.ClientRepository = (*ClientRepository)(nil)

func NewClientRepository(db *mongo.Database) *ClientRepository {
	return &ClientRepository{db: db, col: db.Collection(collectionClients)}
}

type mongoClient struct {
	ID        int64     `bson:"_id"`
	OwnerID   int64     `bson:"owner_id"`
	Name      string    `bson:"name"`
	Email     string    `bson:"email"`
	Phone     string    `bson:"phone,omitempty"`
	Active    bool      `bson:"active"`
	Deleted   bool      `bson:"deleted"`
	Favorite  bool      `bson:"favorite"`
	Rating    float64   `bson:"rating"`
	Avatar    string    `bson:"avatar,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (m mongoClient) toDomain() *domain.Client {
	return &domain.Client{
		ID:        m.ID,
		OwnerID:   m.OwnerID,
		Name:      m.Name,
		Email:     m.Email,
		Phone:     m.Phone,
		Active:    m.Active,
		Deleted:   m.Deleted,
		Favorite:  m.Favorite,
		Rating:    m.Rating,
		Avatar:    m.Avatar,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func (r *ClientRepository) Create(ctx context.Context, c *domain.Client) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	id, err := nextID(ctx, r.db, collectionClients)
	if err != nil {
		return err
	}

	doc := mongoClient{
		ID:        id,
		OwnerID:   c.OwnerID,
		Name:      c.Name,
		Email:     c.Email,
		Phone:     c.Phone,
		Active:    c.Active,
		Deleted:   c.Deleted,
		Favorite:  c.Favorite,
		Rating:    c.Rating,
		Avatar:    c.Avatar,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrClientEmailTaken
		}
		return fmt.Errorf("insert client: %w", err)
	}

	c.ID = id
	return nil
}

func (r *ClientRepository) FindByID(ctx context.Context, ownerID, id int64) (*domain.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var m mongoClient
	if err := r.col.FindOne(ctx, bson.M{"_id": id, "owner_id": ownerID}).Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrClientNotFound
		}
		return nil, fmt.Errorf("find client: %w", err)
	}
	return m.toDomain(), nil
}

func (r *ClientRepository) List(ctx context.Context, f ports.ListClientsFilter) ([]*domain.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{"owner_id": f.OwnerID}
	var and []bson.M
	if f.Search != "" {
		rx := containsRegex(f.Search)
		and = append(and, bson.M{"$or": []bson.M{
			{"name": rx},
			{"email": rx},
			{"phone": rx},
		}})
	} else {
		filter["deleted"] = false
	}
	if f.Name != "" {
		and = append(and, bson.M{"name": containsRegex(f.Name)})
	}
	if len(and) > 0 {
		filter["$and"] = and
	}
	if f.Email != "" {
		filter["email"] = f.Email
	}
	if f.Active != nil {
		filter["active"] = *f.Active
	}

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	if f.Offset > 0 {
		opts.SetSkip(int64(f.Offset))
	}

	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer cur.Close(ctx)

	var docs []mongoClient
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode clients: %w", err)
	}

	clients := make([]*domain.Client, 0, len(docs))
	for _, d := range docs {
		clients = append(clients, d.toDomain())
	}
	return clients, nil
}

// Update applies $set/$unset in a single findAndModify scoped by owner.
func (r *ClientRepository) Update(ctx context.Context, ownerID, id int64, ch domain.ClientChanges) (*domain.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	set := bson.M{}
	unset := bson.M{}
	if ch.Name != nil {
		set["name"] = *ch.Name
	}
	if ch.Email != nil {
		set["email"] = *ch.Email
	}
	if ch.Phone != nil {
		setOrUnset(set, unset, "phone", *ch.Phone)
	}
	if ch.Active != nil {
		set["active"] = *ch.Active
	}
	if ch.Deleted != nil {
		set["deleted"] = *ch.Deleted
	}
	if ch.Favorite != nil {
		set["favorite"] = *ch.Favorite
	}
	if ch.Rating != nil {
		set["rating"] = *ch.Rating
	}
	if ch.Avatar != nil {
		setOrUnset(set, unset, "avatar", *ch.Avatar)
	}
	if len(set) == 0 && len(unset) == 0 {
		return nil, fmt.Errorf("%w: no fields to update", domain.ErrInvalidInput)
	}
	updatedAt := ch.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	set["updated_at"] = updatedAt

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	var m mongoClient
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "owner_id": ownerID},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			return nil, domain.ErrClientNotFound
		case mongo.IsDuplicateKeyError(err):
			return nil, domain.ErrClientEmailTaken
		}
		return nil, fmt.Errorf("update client: %w", err)
	}
	return m.toDomain(), nil
}

func (r *ClientRepository) Delete(ctx context.Context, ownerID, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id, "owner_id": ownerID})
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrClientNotFound
	}
	return nil
}

func containsRegex(s string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(s), Options: "i"}
}

func setOrUnset(set, unset bson.M, field, value string) {
	if value == "" {
		unset[field] = ""
		return
	}
	set[field] = value
}
