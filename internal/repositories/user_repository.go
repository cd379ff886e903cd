package repositories

import (
	"context"
	"strings"

	"dmchat/internal/docstore"
	"dmchat/internal/models"
)

// UserRepository abstracts user documents.
type UserRepository interface {
	Get(ctx context.Context, id string) (models.User, error)
	Create(ctx context.Context, user models.User) error
	Update(ctx context.Context, id string, fields map[string]any) error
	FindByUsername(ctx context.Context, username string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	List(ctx context.Context) ([]models.User, error)
	AddFriend(ctx context.Context, id, friendID string) error
	AddChat(ctx context.Context, id, peerID string) error
	AddNotification(ctx context.Context, id string, n models.Notification) error
	RemoveNotification(ctx context.Context, id string, n models.Notification) error
	Subscribe(ctx context.Context, id string, onNext func(models.User, bool), onError func(error)) (docstore.Unsubscribe, error)
}

// UserRepo is a docstore implementation of UserRepository.
type UserRepo struct {
	store docstore.Store
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(store docstore.Store) *UserRepo {
	return &UserRepo{store: store}
}

func (r *UserRepo) Get(ctx context.Context, id string) (models.User, error) {
	doc, err := r.store.Get(ctx, CollUsers, id)
	if err != nil {
		return models.User{}, storeErr("get user", err)
	}
	return userFromDoc(doc)
}

func (r *UserRepo) Create(ctx context.Context, user models.User) error {
	if user.Friends == nil {
		user.Friends = []string{}
	}
	if user.Chats == nil {
		user.Chats = []string{}
	}
	if user.Notifications == nil {
		user.Notifications = []models.Notification{}
	}
	data, err := docstore.Encode(user)
	if err != nil {
		return err
	}
	return storeErr("create user", r.store.Set(ctx, CollUsers, user.ID, data))
}

func (r *UserRepo) Update(ctx context.Context, id string, fields map[string]any) error {
	return storeErr("update user", r.store.Update(ctx, CollUsers, id, fields))
}

// FindByUsername matches the case-folded username.
func (r *UserRepo) FindByUsername(ctx context.Context, username string) (models.User, error) {
	return r.findOne(ctx, "username", strings.ToLower(username))
}

// FindByEmail matches the lowercased email.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return r.findOne(ctx, "email", strings.ToLower(strings.TrimSpace(email)))
}

func (r *UserRepo) findOne(ctx context.Context, field, value string) (models.User, error) {
	docs, err := r.store.Query(ctx, docstore.NewQuery(CollUsers).Where(field, docstore.OpEqual, value).Take(1))
	if err != nil {
		return models.User{}, storeErr("find user", err)
	}
	if len(docs) == 0 {
		return models.User{}, storeErr("find user", docstore.ErrNotFound)
	}
	return userFromDoc(docs[0])
}

func (r *UserRepo) List(ctx context.Context) ([]models.User, error) {
	docs, err := r.store.Query(ctx, docstore.NewQuery(CollUsers))
	if err != nil {
		return nil, storeErr("list users", err)
	}
	return decodeAll(docs, func(u *models.User, id string) { u.ID = id })
}

func (r *UserRepo) AddFriend(ctx context.Context, id, friendID string) error {
	return storeErr("add friend", r.store.ArrayUnion(ctx, CollUsers, id, "friends", friendID))
}

func (r *UserRepo) AddChat(ctx context.Context, id, peerID string) error {
	return storeErr("add chat", r.store.ArrayUnion(ctx, CollUsers, id, "chats", peerID))
}

func (r *UserRepo) AddNotification(ctx context.Context, id string, n models.Notification) error {
	return storeErr("add notification", r.store.ArrayUnion(ctx, CollUsers, id, "notifications", n))
}

func (r *UserRepo) RemoveNotification(ctx context.Context, id string, n models.Notification) error {
	return storeErr("remove notification", r.store.ArrayRemove(ctx, CollUsers, id, "notifications", n))
}

func (r *UserRepo) Subscribe(ctx context.Context, id string, onNext func(models.User, bool), onError func(error)) (docstore.Unsubscribe, error) {
	unsub, err := r.store.SubscribeDoc(ctx, CollUsers, id, func(doc docstore.Document, exists bool) {
		if !exists {
			onNext(models.User{ID: id}, false)
			return
		}
		u, err := userFromDoc(doc)
		if err != nil {
			onError(err)
			return
		}
		onNext(u, true)
	}, onError)
	return unsub, storeErr("subscribe user", err)
}

func userFromDoc(doc docstore.Document) (models.User, error) {
	u, err := decode[models.User](doc)
	if err != nil {
		return models.User{}, err
	}
	u.ID = doc.ID
	return u, nil
}
