package github

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-github/v45/github"
)

func TestParseRepoRef(t *testing.T) {
	tests := []struct {
		input         string
		expectedOwner string
		expectedName  string
		wantErr       bool
	}{
		{"owner/repo", "owner", "repo", false},
		{"https://github.com/owner/repo", "owner", "repo", false},
		{"https://github.com/owner/repo.git", "owner", "repo", false},
		{"git@github.com:owner/repo.git", "owner", "repo", false},
		{"repo", "", "", true},
		{"", "", "", true},
		{"owner/", "", "", true},
		{"owner/sub/repo", "", "", true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			owner, name, err := parseRepoRef(test.input)
			if (err != nil) != test.wantErr {
				t.Fatalf("parseRepoRef(%q) error = %v, wantErr %v", test.input, err, test.wantErr)
			}
			if err != nil {
				return
			}
			if owner != test.expectedOwner || name != test.expectedName {
				t.Errorf("parseRepoRef(%q) = (%q, %q), want (%q, %q)", test.input, owner, name, test.expectedOwner, test.expectedName)
			}
		})
	}
}

func TestNewConnector(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name:    "valid config",
			config:  &Config{Token: "test-token"},
			wantErr: false,
		},
		{
			name:    "missing token",
			config:  &Config{},
			wantErr: true,
		},
		{
			name:    "valid config with webhook secret",
			config:  &Config{Token: "test-token", WebhookSecret: "shh"},
			wantErr: false,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			connector, err := NewConnector(test.config)
			if (err != nil) != test.wantErr {
				t.Fatalf("NewConnector() error = %v, wantErr %v", err, test.wantErr)
			}
			if !test.wantErr && connector == nil {
				t.Error("expected connector to not be nil")
			}
		})
	}
}

func TestFetchRepositoryMetadata(t *testing.T) {
	stars := 42
	forks := 7
	defaultBranch := "main"
	description := "a repo"

	mockClient := &MockGitHubClient{
		GetRepositoryFunc: func(ctx context.Context, owner, repo string) (*github.Repository, *github.Response, error) {
			if owner != "acme" || repo != "widgets" {
				t.Fatalf("unexpected owner/repo: %s/%s", owner, repo)
			}
			return &github.Repository{
				Name:            github.String("widgets"),
				FullName:        github.String("acme/widgets"),
				Description:     github.String(description),
				DefaultBranch:   github.String(defaultBranch),
				StargazersCount: &stars,
				ForksCount:      &forks,
			}, &github.Response{}, nil
		},
	}

	connector := &Connector{
		client:    mockClient,
		config:    &Config{Token: "test-token"},
		rateLimit: &RateLimitInfo{},
	}

	meta, err := connector.FetchRepositoryMetadata(context.Background(), "https://github.com/acme/widgets.git")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if meta.FullName != "acme/widgets" {
		t.Errorf("expected full name acme/widgets, got %s", meta.FullName)
	}
	if meta.DefaultBranch != defaultBranch {
		t.Errorf("expected default branch %s, got %s", defaultBranch, meta.DefaultBranch)
	}
	if meta.Stars != stars {
		t.Errorf("expected %d stars, got %d", stars, meta.Stars)
	}
}

func TestFetchRepositoryMetadataInvalidRef(t *testing.T) {
	connector := &Connector{
		client:    &MockGitHubClient{},
		config:    &Config{Token: "test-token"},
		rateLimit: &RateLimitInfo{},
	}

	if _, err := connector.FetchRepositoryMetadata(context.Background(), "not-a-valid-ref"); err == nil {
		t.Error("expected an error for an unresolvable repo ref")
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	connector := &Connector{webhookSecret: []byte("topsecret")}

	payload := []byte(`{"ref":"refs/heads/main"}`)
	validSig := "sha256=" + connector.generateHMAC(payload)

	if !connector.VerifyWebhookSignature(payload, validSig) {
		t.Error("expected valid signature to verify")
	}
	if connector.VerifyWebhookSignature(payload, "sha256=deadbeef") {
		t.Error("expected tampered signature to fail verification")
	}
}

func TestVerifyWebhookSignatureNoSecretConfigured(t *testing.T) {
	connector := &Connector{}

	if !connector.VerifyWebhookSignature([]byte("anything"), "") {
		t.Error("expected verification to pass when no secret is configured")
	}
}

func TestParseWebhookEventPush(t *testing.T) {
	connector := &Connector{}

	payload := []byte(`{"ref":"refs/heads/main"}`)
	event, err := connector.ParseWebhookEvent(payload, "push")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Type != "push" {
		t.Errorf("expected type push, got %s", event.Type)
	}
}

func TestParseWebhookEventUnknownType(t *testing.T) {
	connector := &Connector{}

	payload := []byte(`{"action":"opened"}`)
	event, err := connector.ParseWebhookEvent(payload, "some_other_event")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Action != "opened" {
		t.Errorf("expected action opened, got %s", event.Action)
	}
}

func TestGetRateLimit(t *testing.T) {
	connector := &Connector{
		rateLimit: &RateLimitInfo{Limit: 5000, Remaining: 4000, Reset: time.Now()},
	}

	rl := connector.GetRateLimit()
	if rl.Limit != 5000 || rl.Remaining != 4000 {
		t.Errorf("unexpected rate limit snapshot: %+v", rl)
	}
}

func TestWaitForRateLimitNoWaitNeeded(t *testing.T) {
	connector := &Connector{
		rateLimit: &RateLimitInfo{Limit: 5000, Remaining: 4999, Reset: time.Now().Add(time.Hour)},
	}

	if err := connector.WaitForRateLimit(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestWaitForRateLimitContextCancelled(t *testing.T) {
	connector := &Connector{
		rateLimit: &RateLimitInfo{Limit: 5000, Remaining: 0, Reset: time.Now().Add(time.Hour)},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := connector.WaitForRateLimit(ctx); err == nil {
		t.Error("expected context cancellation error")
	}
}
