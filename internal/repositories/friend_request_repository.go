package repositories

import (
	"context"

	"dmchat/internal/docstore"
	"dmchat/internal/models"
)

// FriendRequestRepository abstracts pending friend requests.
type FriendRequestRepository interface {
	Create(ctx context.Context, req models.FriendRequest) error
	Delete(ctx context.Context, id string) error
	PendingBetween(ctx context.Context, senderID, recipientID string) ([]models.FriendRequest, error)
	PendingFrom(ctx context.Context, senderID string) ([]models.FriendRequest, error)
	PendingTo(ctx context.Context, recipientID string) ([]models.FriendRequest, error)
}

// FriendRequestRepo is a docstore implementation of FriendRequestRepository.
type FriendRequestRepo struct {
	store docstore.Store
}

// NewFriendRequestRepo constructs a FriendRequestRepo.
func NewFriendRequestRepo(store docstore.Store) *FriendRequestRepo {
	return &FriendRequestRepo{store: store}
}

func (r *FriendRequestRepo) Create(ctx context.Context, req models.FriendRequest) error {
	data, err := docstore.Encode(req)
	if err != nil {
		return err
	}
	return storeErr("create friend request", r.store.Set(ctx, CollFriendRequests, req.ID, data))
}

func (r *FriendRequestRepo) Delete(ctx context.Context, id string) error {
	return storeErr("delete friend request", r.store.Delete(ctx, CollFriendRequests, id))
}

// PendingBetween returns pending requests sent by senderID to recipientID.
func (r *FriendRequestRepo) PendingBetween(ctx context.Context, senderID, recipientID string) ([]models.FriendRequest, error) {
	return r.run(ctx, pending().
		Where("senderId", docstore.OpEqual, senderID).
		Where("recipientId", docstore.OpEqual, recipientID))
}

func (r *FriendRequestRepo) PendingFrom(ctx context.Context, senderID string) ([]models.FriendRequest, error) {
	return r.run(ctx, pending().Where("senderId", docstore.OpEqual, senderID))
}

func (r *FriendRequestRepo) PendingTo(ctx context.Context, recipientID string) ([]models.FriendRequest, error) {
	return r.run(ctx, pending().Where("recipientId", docstore.OpEqual, recipientID))
}

func (r *FriendRequestRepo) run(ctx context.Context, q docstore.Query) ([]models.FriendRequest, error) {
	docs, err := r.store.Query(ctx, q)
	if err != nil {
		return nil, storeErr("query friend requests", err)
	}
	return decodeAll(docs, func(f *models.FriendRequest, id string) { f.ID = id })
}

func pending() docstore.Query {
	return docstore.NewQuery(CollFriendRequests).Where("status", docstore.OpEqual, models.RequestPending)
}
