package repositories

import (
	"context"

	"dmchat/internal/docstore"
	"dmchat/internal/models"
)

// CredentialsRepository abstracts credential documents.
type CredentialsRepository interface {
	Get(ctx context.Context, userID string) (models.Credentials, error)
	Create(ctx context.Context, creds models.Credentials) error
	Update(ctx context.Context, userID string, fields map[string]any) error
	FindByEmail(ctx context.Context, email string) (models.Credentials, error)
}

// CredentialsRepo is a docstore implementation of CredentialsRepository.
type CredentialsRepo struct {
	store docstore.Store
}

// NewCredentialsRepo constructs a CredentialsRepo.
func NewCredentialsRepo(store docstore.Store) *CredentialsRepo {
	return &CredentialsRepo{store: store}
}

func (r *CredentialsRepo) Get(ctx context.Context, userID string) (models.Credentials, error) {
	doc, err := r.store.Get(ctx, CollCredentials, userID)
	if err != nil {
		return models.Credentials{}, storeErr("get credentials", err)
	}
	c, err := decode[models.Credentials](doc)
	c.UserID = doc.ID
	return c, err
}

func (r *CredentialsRepo) Create(ctx context.Context, creds models.Credentials) error {
	data, err := docstore.Encode(creds)
	if err != nil {
		return err
	}
	return storeErr("create credentials", r.store.Set(ctx, CollCredentials, creds.UserID, data))
}

func (r *CredentialsRepo) Update(ctx context.Context, userID string, fields map[string]any) error {
	return storeErr("update credentials", r.store.Update(ctx, CollCredentials, userID, fields))
}

func (r *CredentialsRepo) FindByEmail(ctx context.Context, email string) (models.Credentials, error) {
	docs, err := r.store.Query(ctx, docstore.NewQuery(CollCredentials).Where("email", docstore.OpEqual, email).Take(1))
	if err != nil {
		return models.Credentials{}, storeErr("find credentials", err)
	}
	if len(docs) == 0 {
		return models.Credentials{}, storeErr("find credentials", docstore.ErrNotFound)
	}
	c, err := decode[models.Credentials](docs[0])
	c.UserID = docs[0].ID
	return c, err
}
