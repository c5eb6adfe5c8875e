package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

// FirestoreStore implements TokenStore on the users collection: the
// registration identifier lives on the user's own document.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client, collection: "users"}
}

// WithCollection points the store at a different root collection.
func (s *FirestoreStore) WithCollection(name string) *FirestoreStore {
	s.collection = name
	return s
}

// userRecord is the slice of the user document this service owns.
type userRecord struct {
	FCMToken          string    `firestore:"fcm_token"`
	FCMTokenUpdatedAt time.Time `firestore:"fcm_token_updated_at"`
}

// SaveToken merges the identifier into users/{urn}, leaving every other
// field of the user document untouched.
func (s *FirestoreStore) SaveToken(ctx context.Context, user urn.URN, token string) error {
	_, err := s.userRef(user).Set(ctx, map[string]interface{}{
		"fcm_token":            token,
		"fcm_token_updated_at": time.Now().UTC(),
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("failed to save fcm token for %s: %w", user.String(), err)
	}
	return nil
}

// Token returns "" when the user has no document or no identifier.
func (s *FirestoreStore) Token(ctx context.Context, user urn.URN) (string, error) {
	snap, err := s.userRef(user).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", nil
		}
		return "", fmt.Errorf("failed to read user %s: %w", user.String(), err)
	}

	var record userRecord
	if err := snap.DataTo(&record); err != nil {
		return "", fmt.Errorf("corrupt user record %s: %w", user.String(), err)
	}
	return record.FCMToken, nil
}

// userRef: users/{userURN}
func (s *FirestoreStore) userRef(user urn.URN) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(user.String())
}
