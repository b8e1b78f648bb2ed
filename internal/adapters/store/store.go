// Package store persists per-user daily events and onboarding profiles.
//
// The production backend is the Firebase Realtime Database REST API; an
// in-process implementation backs development and tests.
package store

import (
	"context"
	"slices"
	"strings"

	"github.com/okian/migrisk/internal/domain/model"
)

// EventStore provides read/write access to user events and profiles.
type EventStore interface {
	// UserEvents returns all events of a user sorted ascending by timestamp,
	// each carrying its storage key under "id". Unknown users yield an
	// empty slice.
	UserEvents(ctx context.Context, userID string) ([]model.Event, error)
	// AppendEvent stores a new event and returns its generated key.
	AppendEvent(ctx context.Context, userID string, e model.Event) (string, error)
	// UserProfile returns the user's profile; found is false when none exists.
	UserProfile(ctx context.Context, userID string) (p model.Profile, found bool, err error)
	// UpsertProfile replaces the user's profile and returns the stored value.
	UpsertProfile(ctx context.Context, userID string, p model.Profile) (model.Profile, error)
}

// collect turns a keyed collection into an ordered event list. Keys are
// visited in order first so equal timestamps keep insertion order for
// chronological push keys.
func collect(docs map[string]map[string]any) []model.Event {
	keys := make([]string, 0, len(docs))
	for k := range docs {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	events := make([]model.Event, 0, len(keys))
	for _, k := range keys {
		e := make(model.Event, len(docs[k])+1)
		for field, v := range docs[k] {
			e[field] = v
		}
		e[model.FieldID] = k
		events = append(events, e)
	}
	slices.SortStableFunc(events, func(a, b model.Event) int {
		return strings.Compare(a.SortKey(), b.SortKey())
	})
	return events
}
