package activitymap_test

import (
	"context"
	"errors"
	"testing"
	"time"

	authclient "github.com/goliatone/go-authclient"
	"github.com/goliatone/go-authclient/activitymap"
)

func TestNormalizeDefaults(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := authclient.ActivityEvent{
		EventType: authclient.ActivityEventLoginSuccess,
		UserID:    "user-100",
		Email:     "ana@example.com",
		Metadata: map[string]any{
			"trigger": "password",
		},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	if out.ActorID != "user-100" {
		t.Fatalf("expected actor_id user-100, got %q", out.ActorID)
	}
	if out.Verb != string(authclient.ActivityEventLoginSuccess) {
		t.Fatalf("expected verb %q, got %q", authclient.ActivityEventLoginSuccess, out.Verb)
	}
	if out.ObjectType != "session" {
		t.Fatalf("expected object_type session, got %q", out.ObjectType)
	}
	if out.ObjectID != "user-100" {
		t.Fatalf("expected object_id user-100, got %q", out.ObjectID)
	}
	if out.Channel != "authclient" {
		t.Fatalf("expected channel authclient, got %q", out.Channel)
	}
	if !out.OccurredAt.Equal(ts) {
		t.Fatalf("expected occurred_at %v, got %v", ts, out.OccurredAt)
	}

	if out.Metadata["trigger"] != "password" {
		t.Fatalf("expected metadata trigger password, got %#v", out.Metadata["trigger"])
	}
	if out.Metadata[activitymap.MetadataKeyEmail] != "ana@example.com" {
		t.Fatalf("expected metadata email, got %#v", out.Metadata[activitymap.MetadataKeyEmail])
	}
	if out.Metadata[activitymap.MetadataKeyOutcome] != "success" {
		t.Fatalf("expected outcome success, got %#v", out.Metadata[activitymap.MetadataKeyOutcome])
	}

	if len(event.Metadata) != 1 {
		t.Fatalf("expected source metadata to remain unchanged, got %+v", event.Metadata)
	}
}

func TestNormalizeFailureWithoutUser(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.FixedZone("COT", -5*3600))
	out := activitymap.Normalize(authclient.ActivityEvent{
		EventType: authclient.ActivityEventLoginFailure,
		Email:     "ana@example.com",
	}, activitymap.WithClock(func() time.Time { return now }))

	if out.ActorID != "anonymous" {
		t.Fatalf("expected anonymous actor, got %q", out.ActorID)
	}
	if out.ObjectID != "" {
		t.Fatalf("expected empty object id, got %q", out.ObjectID)
	}
	if out.Metadata[activitymap.MetadataKeyOutcome] != "failure" {
		t.Fatalf("expected outcome failure, got %#v", out.Metadata[activitymap.MetadataKeyOutcome])
	}
	if !out.OccurredAt.Equal(now) || out.OccurredAt.Location() != time.UTC {
		t.Fatalf("expected occurred_at %v in UTC, got %v", now, out.OccurredAt)
	}
}

func TestNormalizeOptionOverrides(t *testing.T) {
	t.Parallel()

	event := authclient.ActivityEvent{
		EventType: authclient.ActivityEventRefreshSuccess,
		UserID:    "user-200",
		Email:     "leo@example.com",
		Metadata: map[string]any{
			"session_id":                 "sess-1",
			activitymap.MetadataKeyEmail: "existing",
		},
	}

	out := activitymap.Normalize(
		event,
		activitymap.WithDefaultChannel(" ptc "),
		activitymap.WithDefaultObjectType("token"),
		activitymap.WithActorFallback("system"),
		activitymap.WithObjectIDResolver(func(e authclient.ActivityEvent) string {
			id, _ := e.Metadata["session_id"].(string)
			return id
		}),
	)

	if out.Channel != "ptc" {
		t.Fatalf("expected channel ptc, got %q", out.Channel)
	}
	if out.ObjectType != "token" {
		t.Fatalf("expected object_type token, got %q", out.ObjectType)
	}
	if out.ObjectID != "sess-1" {
		t.Fatalf("expected object_id sess-1, got %q", out.ObjectID)
	}
	if out.ActorID != "user-200" {
		t.Fatalf("expected actor user-200, got %q", out.ActorID)
	}
	if out.Metadata[activitymap.MetadataKeyEmail] != "existing" {
		t.Fatalf("expected existing email to be kept, got %#v", out.Metadata[activitymap.MetadataKeyEmail])
	}
}

func TestNewSink(t *testing.T) {
	t.Parallel()

	var got []activitymap.Normalized
	sink := activitymap.NewSink(func(_ context.Context, n activitymap.Normalized) error {
		got = append(got, n)
		return nil
	}, activitymap.WithDefaultChannel("cli"))

	if err := sink.Record(context.Background(), authclient.ActivityEvent{
		EventType: authclient.ActivityEventLogout,
		UserID:    "user-1",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Channel != "cli" || got[0].Verb != string(authclient.ActivityEventLogout) {
		t.Fatalf("unexpected records %+v", got)
	}

	boom := errors.New("boom")
	failing := activitymap.NewSink(func(context.Context, activitymap.Normalized) error { return boom })
	if err := failing.Record(context.Background(), authclient.ActivityEvent{}); !errors.Is(err, boom) {
		t.Fatalf("expected sink error, got %v", err)
	}

	if err := activitymap.NewSink(nil).Record(context.Background(), authclient.ActivityEvent{}); err != nil {
		t.Fatalf("expected nil emit to be ignored, got %v", err)
	}
}
