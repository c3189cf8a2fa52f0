package github

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/go-github/v45/github"
	"golang.org/x/oauth2"
)

// Connector wraps the GitHub REST API for two narrow jobs: fetching
// repository metadata at submission time (default branch, visibility,
// star count, for the Repository.hostingPlatform enrichment) and
// verifying/parsing push webhooks so the API realm can enqueue an
// incremental_sync task without waiting for the next poll. It does not
// participate in cloning or diffing — that's go-git's job.
type Connector struct {
	client        GitHubClientInterface
	config        *Config
	rateLimit     *RateLimitInfo
	rateLimitMu   sync.RWMutex
	webhookSecret []byte
}

// Config configures a GitHub connector instance.
type Config struct {
	Token         string `json:"token"`
	WebhookSecret string `json:"webhook_secret"`
}

// Repository is the subset of GitHub repository attributes the pipeline
// records on submission.
type Repository struct {
	Name          string    `json:"name"`
	FullName      string    `json:"full_name"`
	Description   string    `json:"description"`
	Private       bool      `json:"private"`
	DefaultBranch string    `json:"default_branch"`
	Language      string    `json:"language"`
	Stars         int       `json:"stars"`
	Forks         int       `json:"forks"`
	Archived      bool      `json:"archived"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	URL           string    `json:"url"`
}

// RateLimitInfo mirrors GitHub's core rate limit bucket.
type RateLimitInfo struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Reset     time.Time `json:"reset"`
}

// WebhookEvent is a parsed GitHub webhook payload.
type WebhookEvent struct {
	Type      string      `json:"type"`
	Action    string      `json:"action"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewConnector builds a connector authenticated with a personal access
// token or GitHub App installation token.
func NewConnector(config *Config) (*Connector, error) {
	if config.Token == "" {
		return nil, fmt.Errorf("github token is required")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: config.Token})
	tc := oauth2.NewClient(context.Background(), ts)
	githubClient := github.NewClient(tc)
	client := NewRealGitHubClient(githubClient)

	connector := &Connector{
		client:        client,
		config:        config,
		rateLimit:     &RateLimitInfo{},
		webhookSecret: []byte(config.WebhookSecret),
	}

	if err := connector.updateRateLimit(context.Background()); err != nil {
		log.Printf("warning: failed to fetch initial github rate limit: %v", err)
	}

	return connector, nil
}

// GetType returns the connector type tag stored on Repository.HostingPlatform.
func (gc *Connector) GetType() string {
	return "github"
}

// FetchRepositoryMetadata resolves repoRef (either "owner/repo" or a full
// https://github.com/owner/repo[.git] URL) to the attributes needed to
// populate a Repository row at submission time.
func (gc *Connector) FetchRepositoryMetadata(ctx context.Context, repoRef string) (*Repository, error) {
	owner, name, err := parseRepoRef(repoRef)
	if err != nil {
		return nil, err
	}

	r, resp, err := gc.client.GetRepository(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("fetch repository metadata: %w", err)
	}

	if resp != nil {
		gc.rateLimitMu.Lock()
		gc.rateLimit.Limit = resp.Rate.Limit
		gc.rateLimit.Remaining = resp.Rate.Remaining
		gc.rateLimit.Reset = resp.Rate.Reset.Time
		gc.rateLimitMu.Unlock()
	}

	return &Repository{
		Name:          r.GetName(),
		FullName:      r.GetFullName(),
		Description:   r.GetDescription(),
		Private:       r.GetPrivate(),
		DefaultBranch: r.GetDefaultBranch(),
		Language:      r.GetLanguage(),
		Stars:         r.GetStargazersCount(),
		Forks:         r.GetForksCount(),
		Archived:      r.GetArchived(),
		CreatedAt:     r.GetCreatedAt().Time,
		UpdatedAt:     r.GetUpdatedAt().Time,
		URL:           r.GetHTMLURL(),
	}, nil
}

// GetRateLimit returns the last observed core rate limit snapshot.
func (gc *Connector) GetRateLimit() *RateLimitInfo {
	gc.rateLimitMu.RLock()
	defer gc.rateLimitMu.RUnlock()

	return &RateLimitInfo{
		Limit:     gc.rateLimit.Limit,
		Remaining: gc.rateLimit.Remaining,
		Reset:     gc.rateLimit.Reset,
	}
}

// WaitForRateLimit blocks until the core rate limit has headroom or the
// reset window has passed, whichever comes first.
func (gc *Connector) WaitForRateLimit(ctx context.Context) error {
	gc.rateLimitMu.RLock()
	rateLimit := *gc.rateLimit
	gc.rateLimitMu.RUnlock()

	if rateLimit.Remaining > 10 {
		return nil
	}

	now := time.Now()
	if rateLimit.Reset.After(now) {
		waitTime := rateLimit.Reset.Sub(now)
		log.Printf("github rate limit exhausted, waiting %v for reset", waitTime)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
			return nil
		}
	}

	return nil
}

// VerifyWebhookSignature verifies the X-Hub-Signature-256 header GitHub
// attaches to webhook deliveries.
func (gc *Connector) VerifyWebhookSignature(payload []byte, signature string) bool {
	if len(gc.webhookSecret) == 0 {
		return true // no secret configured, skip verification
	}

	expected := "sha256=" + gc.generateHMAC(payload)
	return hmac.Equal([]byte(signature), []byte(expected))
}

func (gc *Connector) generateHMAC(payload []byte) string {
	h := hmac.New(sha256.New, gc.webhookSecret)
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// ParseWebhookEvent decodes a push or repository webhook payload. A "push"
// event with a non-empty ref is the trigger the API realm uses to enqueue
// an incremental_sync task ahead of the poll interval.
func (gc *Connector) ParseWebhookEvent(payload []byte, eventType string) (*WebhookEvent, error) {
	var event interface{}

	switch eventType {
	case "push":
		var pushEvent github.PushEvent
		if err := json.Unmarshal(payload, &pushEvent); err != nil {
			return nil, fmt.Errorf("parse push event: %w", err)
		}
		event = pushEvent
	case "repository":
		var repoEvent github.RepositoryEvent
		if err := json.Unmarshal(payload, &repoEvent); err != nil {
			return nil, fmt.Errorf("parse repository event: %w", err)
		}
		event = repoEvent
	default:
		var rawEvent map[string]interface{}
		if err := json.Unmarshal(payload, &rawEvent); err != nil {
			return nil, fmt.Errorf("parse webhook event: %w", err)
		}
		event = rawEvent
	}

	return &WebhookEvent{
		Type:      eventType,
		Action:    gc.extractAction(event),
		Payload:   event,
		Timestamp: time.Now(),
	}, nil
}

func (gc *Connector) extractAction(event interface{}) string {
	if eventMap, ok := event.(map[string]interface{}); ok {
		if action, exists := eventMap["action"]; exists {
			if actionStr, ok := action.(string); ok {
				return actionStr
			}
		}
	}
	return "unknown"
}

func (gc *Connector) updateRateLimit(ctx context.Context) error {
	rateLimits, _, err := gc.client.GetRateLimits(ctx)
	if err != nil {
		return fmt.Errorf("get rate limits: %w", err)
	}

	gc.rateLimitMu.Lock()
	defer gc.rateLimitMu.Unlock()

	if rateLimits.Core != nil {
		gc.rateLimit = &RateLimitInfo{
			Limit:     rateLimits.Core.Limit,
			Remaining: rateLimits.Core.Remaining,
			Reset:     rateLimits.Core.Reset.Time,
		}
	} else {
		gc.rateLimit = &RateLimitInfo{
			Limit:     5000,
			Remaining: 5000,
			Reset:     time.Now().Add(time.Hour),
		}
	}

	return nil
}

// parseRepoRef accepts "owner/repo" or a GitHub HTTPS/SSH URL and returns
// (owner, repo).
func parseRepoRef(ref string) (owner, name string, err error) {
	ref = strings.TrimSuffix(ref, ".git")
	ref = strings.TrimPrefix(ref, "https://github.com/")
	ref = strings.TrimPrefix(ref, "git@github.com:")
	ref = strings.Trim(ref, "/")

	parts := strings.Split(ref, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("cannot resolve owner/repo from %q", ref)
	}
	return parts[0], parts[1], nil
}
