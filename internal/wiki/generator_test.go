package wiki

import (
	"context"
	"strings"
	"testing"

	"github.com/ferg-cod3s/conexus/internal/llm"
	"github.com/ferg-cod3s/conexus/internal/vectorstore"
)

func newTestGenerator(t *testing.T, client llm.Client) (*Generator, *Store) {
	t.Helper()
	store := newTestStore(t)
	vectors := vectorstore.NewMemoryStore()
	gen := &Generator{
		LLM:         client,
		Model:       "mock-model",
		Vectors:     vectors,
		Store:       store,
		Concurrency: 2,
	}
	return gen, store
}

// scriptedClient returns canned outline/plan/diagram/write/summary
// responses based on the system prompt's distinguishing phrase, so a full
// Generate call can run end to end without a real model.
func scriptedClient() *llm.MockClient {
	return &llm.MockClient{GenerateFunc: func(ctx context.Context, messages []llm.Message, params llm.Params) (llm.Result, error) {
		sys := ""
		if len(messages) > 0 {
			sys = messages[0].Content
		}
		switch {
		case strings.Contains(sys, "repository documentation outlines"):
			return llm.Result{Text: `<wiki_structure>
<title>Demo Repo</title>
<section>
  <title>Core</title>
  <page>
    <title>Server</title>
    <importance>high</importance>
    <relevant_files>server.go</relevant_files>
  </page>
</section>
</wiki_structure>`}, nil
		case strings.Contains(sys, "plan the structure"):
			return llm.Result{Text: `{"subsections": ["Overview", "Internals"], "diagrams": []}`}, nil
		case strings.Contains(sys, "write a documentation page in Markdown. Use"):
			return llm.Result{Text: "# Server\n\nHandles requests."}, nil
		case strings.Contains(sys, "Summarize the following"):
			return llm.Result{Text: "Server handles incoming requests."}, nil
		default:
			return llm.Result{Text: "fallback content"}, nil
		}
	}}
}

func TestGenerator_GenerateFull_PersistsCompleteWiki(t *testing.T) {
	client := scriptedClient()
	gen, store := newTestGenerator(t, client)

	wikiID, err := gen.Generate(context.Background(), "repo-1", "commit-1", false, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if wikiID == "" {
		t.Fatal("expected non-empty wiki id")
	}

	w, ok, err := store.GetByRepo(context.Background(), "repo-1")
	if err != nil {
		t.Fatalf("GetByRepo: %v", err)
	}
	if !ok {
		t.Fatal("expected wiki persisted")
	}
	if w.Title != "Demo Repo" {
		t.Fatalf("title = %q", w.Title)
	}
	if len(w.Sections) != 2 {
		t.Fatalf("sections = %d, want 2 (quick-start + Core)", len(w.Sections))
	}
	if w.Sections[0].OrderIndex != QuickStartOrderIndex {
		t.Fatalf("expected quick-start first, got %+v", w.Sections[0])
	}
	if w.Sections[0].Pages[1].Body == "" {
		t.Fatal("expected navigation page body to be populated")
	}

	core := w.Sections[1]
	if core.Title != "Core" || len(core.Pages) != 1 {
		t.Fatalf("core section = %+v", core)
	}
	page := core.Pages[0]
	if !strings.Contains(page.Body, "Handles requests") {
		t.Fatalf("page body = %q", page.Body)
	}
}

func TestGenerator_GenerateFull_DegradesOnPlannerFailure(t *testing.T) {
	callCount := 0
	client := &llm.MockClient{GenerateFunc: func(ctx context.Context, messages []llm.Message, params llm.Params) (llm.Result, error) {
		callCount++
		sys := ""
		if len(messages) > 0 {
			sys = messages[0].Content
		}
		switch {
		case strings.Contains(sys, "repository documentation outlines"):
			return llm.Result{Text: `<wiki_structure><title>T</title><section><title>S</title>
			<page><title>P</title><importance>low</importance><relevant_files></relevant_files></page>
			</section></wiki_structure>`}, nil
		case strings.Contains(sys, "plan the structure"):
			return llm.Result{}, context.DeadlineExceeded
		case strings.Contains(sys, "single pass"):
			return llm.Result{Text: "monolithic fallback body"}, nil
		default:
			return llm.Result{Text: "ok"}, nil
		}
	}}
	gen, store := newTestGenerator(t, client)

	wikiID, err := gen.Generate(context.Background(), "repo-2", "commit-1", false, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	w, ok, err := store.GetByRepo(context.Background(), "repo-2")
	if err != nil || !ok {
		t.Fatalf("GetByRepo: ok=%v err=%v", ok, err)
	}
	if w.ID != wikiID {
		t.Fatalf("id mismatch")
	}
	page := w.Sections[1].Pages[0]
	if page.Body != "monolithic fallback body" {
		t.Fatalf("expected monolithic fallback body, got %q", page.Body)
	}
}

func TestGenerator_Generate_IncrementalFallsBackToFullWhenNoExistingWiki(t *testing.T) {
	client := scriptedClient()
	gen, store := newTestGenerator(t, client)

	wikiID, err := gen.Generate(context.Background(), "repo-3", "commit-1", true, []string{"server.go"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if wikiID == "" {
		t.Fatal("expected a wiki id from the full-rebuild fallback")
	}
	if _, ok, _ := store.GetByRepo(context.Background(), "repo-3"); !ok {
		t.Fatal("expected a wiki to have been persisted")
	}
}

func TestGenerator_Generate_IncrementalRegeneratesOnlyDirtyPages(t *testing.T) {
	client := scriptedClient()
	gen, store := newTestGenerator(t, client)

	if _, err := gen.Generate(context.Background(), "repo-4", "commit-1", false, nil); err != nil {
		t.Fatalf("initial full Generate: %v", err)
	}
	before, _, _ := store.GetByRepo(context.Background(), "repo-4")
	originalPageBody := before.Sections[1].Pages[0].Body

	// A change to an unrelated file should leave the only technical page
	// untouched (its RelevantFiles is "server.go").
	gen.DirtyRatioThreshold = 0.65
	wikiID, err := gen.Generate(context.Background(), "repo-4", "commit-2", true, []string{"unrelated.go"})
	if err != nil {
		t.Fatalf("incremental Generate: %v", err)
	}
	if wikiID != before.ID {
		t.Fatalf("expected same wiki id across incremental update, got %q want %q", wikiID, before.ID)
	}

	after, _, _ := store.GetByRepo(context.Background(), "repo-4")
	if after.CommitHash != "commit-2" {
		t.Fatalf("commit hash = %q, want commit-2", after.CommitHash)
	}
	if after.Sections[1].Pages[0].Body != originalPageBody {
		t.Fatalf("expected untouched page body to be unchanged")
	}
}

func TestGenerator_Generate_IncrementalSuggestsFullRegenAboveThreshold(t *testing.T) {
	client := scriptedClient()
	gen, store := newTestGenerator(t, client)

	if _, err := gen.Generate(context.Background(), "repo-5", "commit-1", false, nil); err != nil {
		t.Fatalf("initial full Generate: %v", err)
	}
	before, _, _ := store.GetByRepo(context.Background(), "repo-5")

	// The one technical page is dirty, a 100% dirty ratio, above any
	// reasonable threshold, so Generate must fall back to a full rebuild
	// (a fresh wiki id) rather than patching in place.
	wikiID, err := gen.Generate(context.Background(), "repo-5", "commit-2", true, []string{"server.go"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if wikiID == before.ID {
		t.Fatalf("expected full regeneration to mint a new wiki id, got the same one back")
	}
}
