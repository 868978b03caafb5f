package mongostore

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

	"github.com/jimmystore/catalog/internal/model"
)

const itemsCollection = "items"

type itemDoc struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	Title         string             `bson:"title"`
	Price         float64            `bson:"price"`
	Category      string             `bson:"category"`
	ImageFilename *string            `bson:"image_filename"`
	Sold          bool               `bson:"sold"`
	CreatedAt     time.Time          `bson:"created_at"`
}

func (d *itemDoc) toModel() *model.Item {
	return &model.Item{
		ID:            d.ID.Hex(),
		Title:         d.Title,
		Price:         d.Price,
		Category:      d.Category,
		ImageFilename: d.ImageFilename,
		Sold:          d.Sold,
		CreatedAt:     d.CreatedAt.UTC(),
	}
}

// Items is the MongoDB-backed item repository. Ids are ObjectID hex strings.
type Items struct {
	coll *mongo.Collection
	now  func() time.Time
}

func (s *Items) collection() (*mongo.Collection, error) {
	if s == nil || s.coll == nil {
		return nil, model.ErrNotInitialized
	}
	return s.coll, nil
}

// Insert creates a new unsold item stamped with the current time.
func (s *Items) Insert(ctx context.Context, item model.NewItem) (*model.Item, error) {
	coll, err := s.collection()
	if err != nil {
		return nil, err
	}
	if !model.ValidCategory(item.Category) {
		return nil, model.ErrInvalidCategory
	}

	// BSON dates carry millisecond precision.
	doc := itemDoc{
		Title:         item.Title,
		Price:         item.Price,
		Category:      item.Category,
		ImageFilename: item.ImageFilename,
		CreatedAt:     s.now().UTC().Truncate(time.Millisecond),
	}
	result, err := coll.InsertOne(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	oid, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return nil, fmt.Errorf("creating item: unexpected id type %T", result.InsertedID)
	}
	doc.ID = oid
	return doc.toModel(), nil
}

// FindByID returns the item with the given id or model.ErrNotFound.
func (s *Items) FindByID(ctx context.Context, id string) (*model.Item, error) {
	coll, err := s.collection()
	if err != nil {
		return nil, err
	}
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var doc itemDoc
	err = coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return doc.toModel(), nil
}

// Update applies the supplied fields and returns the refreshed item.
func (s *Items) Update(ctx context.Context, id string, u model.ItemUpdate) (*model.Item, error) {
	coll, err := s.collection()
	if err != nil {
		return nil, err
	}
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	if u.Category != nil && !model.ValidCategory(*u.Category) {
		return nil, model.ErrInvalidCategory
	}
	if u.IsEmpty() {
		return s.FindByID(ctx, id)
	}

	var doc itemDoc
	err = coll.FindOneAndUpdate(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": buildSet(u)},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("updating item: %w", err)
	}
	return doc.toModel(), nil
}

// Delete permanently removes an item.
func (s *Items) Delete(ctx context.Context, id string) error {
	coll, err := s.collection()
	if err != nil {
		return err
	}
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	result, err := coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	if result.DeletedCount == 0 {
		return model.ErrNotFound
	}
	return nil
}

// List returns items matching f, newest first.
func (s *Items) List(ctx context.Context, f model.ItemFilter) ([]model.Item, error) {
	coll, err := s.collection()
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := coll.Find(ctx, buildQuery(f), opts)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}

	var docs []itemDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("reading items: %w", err)
	}

	items := make([]model.Item, 0, len(docs))
	for i := range docs {
		items = append(items, *docs[i].toModel())
	}
	return items, nil
}

// buildQuery turns a filter into a find query. The search text is quoted so
// regex metacharacters in it match literally.
func buildQuery(f model.ItemFilter) bson.M {
	q := bson.M{}
	if model.ValidCategory(f.Category) {
		q["category"] = f.Category
	}
	if f.Sold != nil {
		q["sold"] = *f.Sold
	}
	if f.Search != "" {
		q["title"] = bson.M{"$regex": regexp.QuoteMeta(f.Search), "$options": "i"}
	}
	return q
}

func buildSet(u model.ItemUpdate) bson.M {
	set := bson.M{}
	if u.Title != nil {
		set["title"] = *u.Title
	}
	if u.Price != nil {
		set["price"] = *u.Price
	}
	if u.Category != nil {
		set["category"] = *u.Category
	}
	if u.Sold != nil {
		set["sold"] = *u.Sold
	}
	if u.ImageFilename != nil {
		set["image_filename"] = *u.ImageFilename
	}
	return set
}

func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, model.ErrInvalidID
	}
	return oid, nil
}
