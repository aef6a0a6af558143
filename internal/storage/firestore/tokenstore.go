// Package firestore implements the device-token store on Google Cloud
// Firestore, for deployments that already live on GCP and do not run Redis.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-push-gateway/pkg/dispatch"
)

// collection namespaces device registrations, playing the role the key
// prefix plays in the Redis store.
const collection = "devices"

// TokenStore implements dispatch.TokenStore on Firestore.
type TokenStore struct {
	client *firestore.Client
}

func NewTokenStore(client *firestore.Client) *TokenStore {
	return &TokenStore{client: client}
}

// deviceRecord is the stored document shape.
type deviceRecord struct {
	Token     string    `firestore:"token"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

func (s *TokenStore) Get(ctx context.Context, deviceKey string) (string, error) {
	doc, err := s.client.Collection(collection).Doc(deviceKey).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", dispatch.ErrNotFound
		}
		return "", fmt.Errorf("firestore get failed: %w", err)
	}

	var record deviceRecord
	if err := doc.DataTo(&record); err != nil {
		return "", fmt.Errorf("firestore record decode failed: %w", err)
	}
	if record.Token == "" {
		return "", dispatch.ErrNotFound
	}
	return record.Token, nil
}

func (s *TokenStore) Put(ctx context.Context, deviceKey string, token string) error {
	_, err := s.client.Collection(collection).Doc(deviceKey).Set(ctx, deviceRecord{
		Token:     token,
		UpdatedAt: time.Now(),
	})
	return err
}

func (s *TokenStore) Delete(ctx context.Context, deviceKey string) error {
	_, err := s.client.Collection(collection).Doc(deviceKey).Delete(ctx)
	return err
}

// Count iterates the device collection. Diagnostics only.
func (s *TokenStore) Count(ctx context.Context) (int, error) {
	iter := s.client.Collection(collection).Documents(ctx)
	defer iter.Stop()

	count := 0
	for {
		_, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("firestore iteration failed: %w", err)
		}
		count++
	}
	return count, nil
}
