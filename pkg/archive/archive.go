// Package archive provides search over persisted refinement sessions.
// Iterations are indexed into an embedded vector collection; search
// falls back to keyword matching when no embedding backend is
// configured.
package archive

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"

	"github.com/ternarybob/refine/pkg/session"
)

// Loader is the slice of the session store the archive needs.
type Loader interface {
	Load(id string) (*session.Session, error)
	List() ([]session.Summary, error)
}

// Result is a single search match.
type Result struct {
	SessionID string  `json:"session_id"`
	Iteration int     `json:"iteration"`
	Prompt    string  `json:"prompt"`
	Snippet   string  `json:"snippet"`
	Score     float32 `json:"score"`
	Rank      int     `json:"rank"`
}

// Archive indexes session iterations for cross-session search.
type Archive struct {
	store      Loader
	db         *chromem.DB
	collection *chromem.Collection
	embedder   chromem.EmbeddingFunc

	mu   sync.RWMutex
	docs map[string]docData // Mirror of the collection for keyword search
}

// docData holds document data for keyword scoring.
type docData struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// Option configures an Archive.
type Option func(*Archive)

// WithEmbedding sets the embedding function used for semantic search.
// Without one, Search uses keyword matching only.
func WithEmbedding(fn chromem.EmbeddingFunc) Option {
	return func(a *Archive) {
		a.embedder = fn
	}
}

// New creates an archive over the given store.
func New(store Loader, opts ...Option) (*Archive, error) {
	a := &Archive{
		store: store,
		db:    chromem.NewDB(),
		docs:  make(map[string]docData),
	}
	for _, opt := range opts {
		opt(a)
	}

	embedder := a.embedder
	if embedder == nil {
		// Placeholder so the collection can exist; semantic queries are
		// skipped when no real embedder is configured.
		embedder = func(ctx context.Context, text string) ([]float32, error) {
			return nil, fmt.Errorf("no embedding backend configured")
		}
	}

	collection, err := a.db.GetOrCreateCollection("iterations", nil, embedder)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	a.collection = collection

	return a, nil
}

// IndexAll indexes every session the store knows about.
func (a *Archive) IndexAll(ctx context.Context) error {
	summaries, err := a.store.List()
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	for _, summary := range summaries {
		s, err := a.store.Load(summary.ID)
		if err != nil {
			continue // Session may have been removed since listing
		}
		if err := a.IndexSession(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// IndexSession replaces the archive's documents for one session with
// its current iterations. Iterations without a response are skipped.
func (a *Archive) IndexSession(ctx context.Context, s *session.Session) error {
	a.removeSession(ctx, s.ID)

	for _, it := range s.History {
		if it.Response == nil {
			continue
		}

		doc := chromem.Document{
			ID:       docID(s.ID, it.Index),
			Content:  it.PromptSent + "\n\n" + *it.Response,
			Metadata: iterationMetadata(s, it),
		}

		if a.embedder != nil {
			if err := a.collection.AddDocument(ctx, doc); err != nil {
				return fmt.Errorf("add document %s: %w", doc.ID, err)
			}
		}

		a.mu.Lock()
		a.docs[doc.ID] = docData{ID: doc.ID, Content: doc.Content, Metadata: doc.Metadata}
		a.mu.Unlock()
	}
	return nil
}

// RemoveSession drops a session's documents from the archive.
func (a *Archive) RemoveSession(ctx context.Context, id string) {
	a.removeSession(ctx, id)
}

func (a *Archive) removeSession(ctx context.Context, id string) {
	if a.embedder != nil {
		// Errors here mean the documents were never added.
		_ = a.collection.Delete(ctx, map[string]string{"session_id": id}, nil)
	}

	a.mu.Lock()
	for docKey, doc := range a.docs {
		if doc.Metadata["session_id"] == id {
			delete(a.docs, docKey)
		}
	}
	a.mu.Unlock()
}

// Count returns the number of indexed iterations.
func (a *Archive) Count() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.docs)
}

// Search queries the archive. Semantic search runs first when an
// embedder is configured; keyword matching covers the rest.
func (a *Archive) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty search query")
	}

	if a.embedder != nil {
		results, err := a.semanticSearch(ctx, query, limit)
		if err == nil && len(results) > 0 {
			return results, nil
		}
	}

	return a.keywordSearch(query, limit), nil
}

// semanticSearch uses chromem-go's built-in vector search.
func (a *Archive) semanticSearch(ctx context.Context, query string, limit int) ([]Result, error) {
	count := a.collection.Count()
	if count == 0 {
		return nil, nil
	}

	maxResults := limit
	if maxResults > count {
		maxResults = count
	}

	docs, err := a.collection.Query(ctx, query, maxResults, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	results := make([]Result, 0, len(docs))
	for i, doc := range docs {
		results = append(results, Result{
			SessionID: doc.Metadata["session_id"],
			Iteration: atoiOr(doc.Metadata["iteration"], 0),
			Prompt:    doc.Metadata["prompt"],
			Snippet:   snippet(doc.Content),
			Score:     doc.Similarity,
			Rank:      i + 1,
		})
	}
	return results, nil
}

// keywordSearch scores documents by keyword occurrence.
func (a *Archive) keywordSearch(query string, limit int) []Result {
	keywords := tokenize(query)
	if len(keywords) == 0 {
		return nil
	}

	type scored struct {
		doc   docData
		score int
	}
	var scoredDocs []scored

	a.mu.RLock()
	for _, doc := range a.docs {
		content := strings.ToLower(doc.Content)
		prompt := strings.ToLower(doc.Metadata["prompt"])

		score := 0
		for _, kw := range keywords {
			if strings.Contains(prompt, kw) {
				score += 5
			}
			score += strings.Count(content, kw)
		}
		if score > 0 {
			scoredDocs = append(scoredDocs, scored{doc: doc, score: score})
		}
	}
	a.mu.RUnlock()

	sort.Slice(scoredDocs, func(i, j int) bool {
		if scoredDocs[i].score != scoredDocs[j].score {
			return scoredDocs[i].score > scoredDocs[j].score
		}
		return scoredDocs[i].doc.ID < scoredDocs[j].doc.ID
	})

	var results []Result
	for i, sd := range scoredDocs {
		if i >= limit {
			break
		}
		results = append(results, Result{
			SessionID: sd.doc.Metadata["session_id"],
			Iteration: atoiOr(sd.doc.Metadata["iteration"], 0),
			Prompt:    sd.doc.Metadata["prompt"],
			Snippet:   snippet(sd.doc.Content),
			Score:     float32(sd.score) / 100.0,
			Rank:      i + 1,
		})
	}
	return results
}

func docID(sessionID string, index int) string {
	return fmt.Sprintf("%s:%d", sessionID, index)
}

func iterationMetadata(s *session.Session, it session.Iteration) map[string]string {
	meta := map[string]string{
		"session_id": s.ID,
		"iteration":  strconv.Itoa(it.Index),
		"prompt":     it.PromptSent,
		"status":     string(s.Status),
		"timestamp":  it.Timestamp.UTC().Format(time.RFC3339),
	}
	if s.GoalQuery != "" {
		meta["goal_query"] = s.GoalQuery
	}
	if it.Evaluation != nil {
		meta["verdict"] = string(it.Evaluation.Verdict)
	}
	return meta
}

func snippet(content string) string {
	runes := []rune(content)
	if len(runes) <= 200 {
		return content
	}
	return string(runes[:200]) + "..."
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

// tokenize splits a query into lowercase keywords.
func tokenize(query string) []string {
	query = strings.ReplaceAll(query, ".", " ")
	query = strings.ReplaceAll(query, "_", " ")
	query = strings.ReplaceAll(query, "-", " ")

	var keywords []string
	for _, w := range strings.Fields(query) {
		w = strings.ToLower(strings.TrimSpace(w))
		if len(w) >= 2 {
			keywords = append(keywords, w)
		}
	}
	return keywords
}
