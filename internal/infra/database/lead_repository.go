package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/xavierca1/leadsync/internal/entity"
	"github.com/xavierca1/leadsync/internal/identity"
)

// leadDocument is the stored shape of a lead. _id is derived from the
// normalized phone so that concurrent creates for one identity collapse.
type leadDocument struct {
	ID              string     `bson:"_id"`
	Name            string     `bson:"name,omitempty"`
	Phone           string     `bson:"phone"`
	Email           string     `bson:"email,omitempty"`
	Status          string     `bson:"status"`
	BookingTime     *time.Time `bson:"booking_time,omitempty"`
	BookingRef      string     `bson:"booking_ref,omitempty"`
	Notes           string     `bson:"notes,omitempty"`
	ConversationLog string     `bson:"conversation_log,omitempty"`
	ManualOverride  bool       `bson:"manual_override"`
	Starred         bool       `bson:"starred"`
	Archived        bool       `bson:"archived"`
	ArchivedAt      *time.Time `bson:"archived_at,omitempty"`
	Message1SentAt  *time.Time `bson:"message_1_sent_at,omitempty"`
	Message2SentAt  *time.Time `bson:"message_2_sent_at,omitempty"`
	Message3SentAt  *time.Time `bson:"message_3_sent_at,omitempty"`
	CreatedAt       time.Time  `bson:"created_at"`
	UpdatedAt       time.Time  `bson:"updated_at"`
}

type LeadRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewLeadRepository(db *mongo.Database, collection string) *LeadRepository {
	return &LeadRepository{coll: db.Collection(collection), now: time.Now}
}

// EnsureIndexes creates the lookup indexes used by identity matching.
func (r *LeadRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "phone", Value: 1}}},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	})
	return mongoErr("mongo.indexes", err)
}

func (r *LeadRepository) FetchAll(ctx context.Context, filter entity.LeadFilter) ([]*entity.Lead, error) {
	query := bson.M{}
	if !filter.IncludeArchived {
		query["archived"] = bson.M{"$ne": true}
	}
	if len(filter.Statuses) > 0 {
		names := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			names = append(names, s.String())
		}
		query["status"] = bson.M{"$in": names}
	}

	cur, err := r.coll.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, mongoErr("mongo.find", err)
	}
	var docs []leadDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, mongoErr("mongo.find", err)
	}

	leads := make([]*entity.Lead, 0, len(docs))
	for i := range docs {
		leads = append(leads, docs[i].toEntity())
	}
	return leads, nil
}

func (r *LeadRepository) FetchByIdentity(ctx context.Context, id identity.Identity) (*entity.Lead, error) {
	query := identityQuery(id)
	if query == nil {
		return nil, entity.ErrNotFound
	}

	cur, err := r.coll.Find(ctx, query, options.Find().SetLimit(10))
	if err != nil {
		return nil, mongoErr("mongo.find", err)
	}
	var docs []leadDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, mongoErr("mongo.find", err)
	}

	leads := make([]*entity.Lead, 0, len(docs))
	for i := range docs {
		leads = append(leads, docs[i].toEntity())
	}
	lead, _, ok := identity.Best(id, leads, (*entity.Lead).Identity)
	if !ok {
		return nil, entity.ErrNotFound
	}
	return lead, nil
}

// Upsert applies patch to the lead matching id, creating it keyed by the
// phone-derived document id when absent.
func (r *LeadRepository) Upsert(ctx context.Context, id identity.Identity, patch entity.LeadPatch) (entity.UpsertResult, error) {
	now := r.now().UTC()

	existing, err := r.FetchByIdentity(ctx, id)
	if err != nil && !errors.Is(err, entity.ErrNotFound) {
		return entity.UpsertResult{}, err
	}

	set := patchSet(patch)
	set["updated_at"] = now

	if existing != nil {
		_, err := r.coll.UpdateOne(ctx, bson.M{"_id": existing.ID}, bson.M{"$set": set})
		if err != nil {
			return entity.UpsertResult{}, mongoErr("mongo.update", err)
		}
		return entity.UpsertResult{ID: existing.ID}, nil
	}

	docID := id.DocumentID()
	if docID == "" {
		return entity.UpsertResult{}, entity.NewFatal("mongo.upsert", fmt.Errorf("cannot create lead without a phone number (%s)", id))
	}
	set["phone"] = id.Phone
	if _, ok := set["email"]; !ok && id.Email != "" {
		set["email"] = id.Email
	}
	onInsert := bson.M{"created_at": now}
	if _, ok := set["status"]; !ok {
		onInsert["status"] = entity.StatusNotContacted.String()
	}
	for _, flag := range []string{"manual_override", "starred", "archived"} {
		if _, ok := set[flag]; !ok {
			onInsert[flag] = false
		}
	}

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": docID},
		bson.M{"$set": set, "$setOnInsert": onInsert},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return entity.UpsertResult{}, mongoErr("mongo.upsert", err)
	}
	return entity.UpsertResult{Created: res.UpsertedCount > 0, ID: docID}, nil
}

func (r *LeadRepository) Delete(ctx context.Context, id identity.Identity) error {
	lead, err := r.FetchByIdentity(ctx, id)
	if err != nil {
		return err
	}
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": lead.ID})
	if err != nil {
		return mongoErr("mongo.delete", err)
	}
	if res.DeletedCount == 0 {
		return entity.ErrNotFound
	}
	return nil
}

// Restore writes lead back verbatim. Used to compensate a failed delete.
func (r *LeadRepository) Restore(ctx context.Context, lead *entity.Lead) error {
	doc := fromEntity(lead)
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return mongoErr("mongo.restore", err)
}

// Count returns the number of lead documents, archived included.
func (r *LeadRepository) Count(ctx context.Context) (int64, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{})
	return n, mongoErr("mongo.count", err)
}

func (r *LeadRepository) Ping(ctx context.Context) error {
	return mongoErr("mongo.ping", r.coll.Database().Client().Ping(ctx, nil))
}

func identityQuery(id identity.Identity) bson.M {
	var or bson.A
	if id.Phone != "" {
		or = append(or, bson.M{"phone": id.Phone})
	}
	if id.Email != "" {
		or = append(or, bson.M{"email": id.Email})
	}
	if len(or) == 0 {
		return nil
	}
	return bson.M{"$or": or}
}

func patchSet(p entity.LeadPatch) bson.M {
	set := bson.M{}
	if p.Name != nil {
		set["name"] = *p.Name
	}
	if p.Email != nil {
		set["email"] = identity.NormalizeEmail(*p.Email)
	}
	if p.Status != nil {
		set["status"] = p.Status.String()
	}
	if p.BookingTime != nil {
		set["booking_time"] = p.BookingTime.UTC()
	}
	if p.BookingRef != nil {
		set["booking_ref"] = *p.BookingRef
	}
	if p.Notes != nil {
		set["notes"] = *p.Notes
	}
	if p.ConversationLog != nil {
		set["conversation_log"] = *p.ConversationLog
	}
	if p.ManualOverride != nil {
		set["manual_override"] = *p.ManualOverride
	}
	if p.Starred != nil {
		set["starred"] = *p.Starred
	}
	if p.Archived != nil {
		set["archived"] = *p.Archived
	}
	if p.ArchivedAt != nil {
		set["archived_at"] = p.ArchivedAt.UTC()
	}
	if p.Message1SentAt != nil {
		set["message_1_sent_at"] = p.Message1SentAt.UTC()
	}
	if p.Message2SentAt != nil {
		set["message_2_sent_at"] = p.Message2SentAt.UTC()
	}
	if p.Message3SentAt != nil {
		set["message_3_sent_at"] = p.Message3SentAt.UTC()
	}
	return set
}

func (d *leadDocument) toEntity() *entity.Lead {
	status, _ := entity.ParseContactStatus(d.Status)
	return &entity.Lead{
		ID:              d.ID,
		Name:            d.Name,
		Phone:           d.Phone,
		Email:           d.Email,
		Status:          status,
		BookingTime:     d.BookingTime,
		BookingRef:      d.BookingRef,
		Notes:           d.Notes,
		ConversationLog: d.ConversationLog,
		ManualOverride:  d.ManualOverride,
		Starred:         d.Starred,
		Archived:        d.Archived,
		ArchivedAt:      d.ArchivedAt,
		Message1SentAt:  d.Message1SentAt,
		Message2SentAt:  d.Message2SentAt,
		Message3SentAt:  d.Message3SentAt,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

func fromEntity(l *entity.Lead) leadDocument {
	id := l.ID
	if id == "" {
		id = l.Identity().DocumentID()
	}
	return leadDocument{
		ID:              id,
		Name:            l.Name,
		Phone:           identity.NormalizePhone(l.Phone),
		Email:           identity.NormalizeEmail(l.Email),
		Status:          l.Status.String(),
		BookingTime:     l.BookingTime,
		BookingRef:      l.BookingRef,
		Notes:           l.Notes,
		ConversationLog: l.ConversationLog,
		ManualOverride:  l.ManualOverride,
		Starred:         l.Starred,
		Archived:        l.Archived,
		ArchivedAt:      l.ArchivedAt,
		Message1SentAt:  l.Message1SentAt,
		Message2SentAt:  l.Message2SentAt,
		Message3SentAt:  l.Message3SentAt,
		CreatedAt:       l.CreatedAt,
		UpdatedAt:       l.UpdatedAt,
	}
}

// mongoErr labels driver errors for the retry engine.
func mongoErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return entity.ErrNotFound
	case errors.Is(err, context.Canceled):
		return err
	case mongo.IsTimeout(err), mongo.IsNetworkError(err), errors.Is(err, context.DeadlineExceeded):
		return entity.NewTransient(op, err)
	case mongo.IsDuplicateKeyError(err):
		// lost a create race; the caller's retry turns it into an update
		return entity.NewTransient(op, err)
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.HasErrorLabel("RetryableWriteError") {
		return entity.NewTransient(op, err)
	}
	return entity.NewFatal(op, err)
}
