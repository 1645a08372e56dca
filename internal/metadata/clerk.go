package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/jonathan/cab-scheduler/internal/fetch"
)

// DefaultClerkAPIURL is Clerk's backend API.
const DefaultClerkAPIURL = "https://api.clerk.dev"

// ClerkStore keeps the document in the Clerk user's unsafe_metadata.
type ClerkStore struct {
	baseURL string
	options *fetch.Options
}

// NewClerkStore creates a store authenticating with the backend secret key.
// A nil opts uses fetch.DefaultOptions.
func NewClerkStore(baseURL, secretKey string, opts *fetch.Options) *ClerkStore {
	if baseURL == "" {
		baseURL = DefaultClerkAPIURL
	}
	if opts == nil {
		opts = fetch.DefaultOptions()
	}
	withAuth := *opts
	withAuth.Headers = make(map[string]string, len(opts.Headers)+1)
	for k, v := range opts.Headers {
		withAuth.Headers[k] = v
	}
	withAuth.Headers["Authorization"] = "Bearer " + secretKey

	return &ClerkStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		options: &withAuth,
	}
}

type clerkUser struct {
	ID             string          `json:"id"`
	UnsafeMetadata json.RawMessage `json:"unsafe_metadata"`
}

type clerkUpdate struct {
	UnsafeMetadata json.RawMessage `json:"unsafe_metadata"`
}

func (s *ClerkStore) userURL(userID string) string {
	return fmt.Sprintf("%s/v1/users/%s", s.baseURL, url.PathEscape(userID))
}

// Get fetches the user and returns its unsafe_metadata. An empty object is
// reported as no document.
func (s *ClerkStore) Get(ctx context.Context, userID string) (json.RawMessage, error) {
	userID, err := checkUserID(userID)
	if err != nil {
		return nil, err
	}

	var user clerkUser
	if err := fetch.GetJSON(ctx, s.userURL(userID), &user, s.options); err != nil {
		return nil, fmt.Errorf("clerk get user %s: %w", userID, err)
	}
	if isEmptyDocument(user.UnsafeMetadata) {
		return nil, nil
	}
	return user.UnsafeMetadata, nil
}

// Put replaces unsafe_metadata through PATCH /v1/users/{id}, which
// overwrites the field rather than deep-merging it.
func (s *ClerkStore) Put(ctx context.Context, userID string, blob json.RawMessage) error {
	userID, err := checkUserID(userID)
	if err != nil {
		return err
	}

	body := clerkUpdate{UnsafeMetadata: blob}
	if err := fetch.JSON(ctx, "PATCH", s.userURL(userID), body, nil, s.options); err != nil {
		return fmt.Errorf("clerk update user %s: %w", userID, err)
	}
	return nil
}
