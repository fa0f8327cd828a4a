// Package profile loads candidate profiles from Supabase and archives
// finished interviews to storage. Both are optional: the server runs
// without them, it just cannot prefill profiles or persist results.
package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/supabase-community/supabase-go"

	"github.com/tqmkrishnadev/nextrole/internal/feedback"
	"github.com/tqmkrishnadev/nextrole/internal/session"
)

// Config carries the Supabase connection settings.
type Config struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
}

// Store is a thin wrapper over the Supabase client: the profiles table for
// reads, the storage bucket for session archives.
type Store struct {
	client *supabase.Client
	bucket string
}

// NewStore connects to Supabase. An empty URL or key fails here rather
// than on first use.
func NewStore(cfg Config) (*Store, error) {
	if cfg.URL == "" || cfg.ServiceRoleKey == "" {
		return nil, fmt.Errorf("profile: supabase URL and key are required")
	}
	client, err := supabase.NewClient(cfg.URL, cfg.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("profile: creating supabase client: %w", err)
	}
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

type profileRow struct {
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	Experience string   `json:"experience"`
	Skills     []string `json:"skills"`
	Role       string   `json:"role"`
	Category   string   `json:"category"`
}

// Fetch loads the candidate profile stored under the given email.
func (s *Store) Fetch(ctx context.Context, email string) (session.Profile, error) {
	var row profileRow
	_, err := s.client.From("profiles").
		Select("*", "exact", false).
		Eq("email", email).
		Single().
		ExecuteTo(&row)
	if err != nil {
		return session.Profile{}, fmt.Errorf("profile: fetching %s: %w", email, err)
	}
	return session.Profile{
		Name:       row.Name,
		Email:      row.Email,
		Experience: row.Experience,
		Skills:     row.Skills,
		Role:       row.Role,
		Category:   row.Category,
	}, nil
}

// archiveRecord is the JSON document written per finished session.
type archiveRecord struct {
	SessionID  string            `json:"session_id"`
	ArchivedAt time.Time         `json:"archived_at"`
	Turns      []session.Turn    `json:"turns"`
	Feedback   feedback.Feedback `json:"feedback"`
}

// Archive writes the transcript and review to the sessions bucket. It
// satisfies session.Archiver.
func (s *Store) Archive(ctx context.Context, sessionID string, turns []session.Turn, fb feedback.Feedback) error {
	record := archiveRecord{
		SessionID:  sessionID,
		ArchivedAt: time.Now().UTC(),
		Turns:      turns,
		Feedback:   fb,
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("profile: encoding archive: %w", err)
	}
	key := fmt.Sprintf("sessions/%s.json", sessionID)
	if _, err := s.client.Storage.UploadFile(s.bucket, key, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("profile: uploading archive %s: %w", key, err)
	}
	return nil
}
