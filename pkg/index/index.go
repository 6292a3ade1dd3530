// Package index maintains an embedded vector store of workspace files. A
// background worker pool scans and embeds files independently of any turn;
// turns only read from it through Search.
package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"agentd/pkg/config"
	"agentd/pkg/logx"
)

// Result is one retrieval hit.
type Result struct {
	Path       string
	Content    string
	Similarity float32
}

// Indexer owns the chromem collection for one workspace.
type Indexer struct {
	cfg        config.Index
	root       string
	db         *chromem.DB
	collection *chromem.Collection
	logger     *logx.Logger

	mu      sync.Mutex
	indexed int
}

// New opens the persistent store and its collection. embedFn produces the
// embeddings; pass nil to use chromem's default.
func New(cfg config.Index, workspaceRoot string, embedFn chromem.EmbeddingFunc) (*Indexer, error) {
	if cfg.StorePath == "" {
		cfg.StorePath = filepath.Join(workspaceRoot, ".agentd", "index")
	}
	if cfg.Collection == "" {
		cfg.Collection = "workspace"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}

	if err := os.MkdirAll(cfg.StorePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index dir: %w", err)
	}
	db, err := chromem.NewPersistentDB(cfg.StorePath, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open index store: %w", err)
	}
	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, embedFn)
	if err != nil {
		return nil, fmt.Errorf("failed to open index collection: %w", err)
	}

	return &Indexer{
		cfg:        cfg,
		root:       workspaceRoot,
		db:         db,
		collection: collection,
		logger:     logx.NewLogger("index"),
	}, nil
}

// Scan walks the workspace and embeds eligible files through the worker
// pool. It blocks until the scan completes or the context is cancelled.
func (ix *Indexer) Scan(ctx context.Context) error {
	jobs := make(chan string, ix.cfg.Workers*2)

	var wg sync.WaitGroup
	for i := 0; i < ix.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rel := range jobs {
				if err := ix.indexFile(ctx, rel); err != nil {
					ix.logger.Debug("skipping %s: %v", rel, err)
				}
			}
		}()
	}

	walkErr := filepath.WalkDir(ix.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // skip unreadable entries
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if ix.ignored(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !ix.eligible(path, d) {
			return nil
		}
		rel, relErr := filepath.Rel(ix.root, path)
		if relErr != nil {
			return nil //nolint:nilerr
		}
		select {
		case jobs <- rel:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	close(jobs)
	wg.Wait()

	ix.mu.Lock()
	count := ix.indexed
	ix.mu.Unlock()
	ix.logger.Info("scan complete: %d files indexed", count)
	return walkErr
}

// Search returns the top-k most similar files for a query. Read-only; safe
// to call while a scan runs.
func (ix *Indexer) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if k > ix.collection.Count() {
		k = ix.collection.Count()
	}
	if k <= 0 {
		return nil, nil
	}

	hits, err := ix.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("index query failed: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, Result{
			Path:       h.Metadata["path"],
			Content:    h.Content,
			Similarity: h.Similarity,
		})
	}
	return results, nil
}

func (ix *Indexer) indexFile(ctx context.Context, rel string) error {
	data, err := os.ReadFile(filepath.Join(ix.root, rel))
	if err != nil {
		return err
	}
	err = ix.collection.AddDocument(ctx, chromem.Document{
		ID:       rel,
		Content:  string(data),
		Metadata: map[string]string{"path": rel},
	})
	if err != nil {
		return err
	}
	ix.mu.Lock()
	ix.indexed++
	ix.mu.Unlock()
	return nil
}

func (ix *Indexer) ignored(dirName string) bool {
	if dirName == ".git" || dirName == ".agentd" {
		return true
	}
	for _, d := range ix.cfg.IgnoreDirs {
		if dirName == d {
			return true
		}
	}
	return false
}

func (ix *Indexer) eligible(path string, d os.DirEntry) bool {
	if len(ix.cfg.Extensions) > 0 {
		ext := filepath.Ext(path)
		found := false
		for _, want := range ix.cfg.Extensions {
			if ext == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if ix.cfg.MaxFileKB > 0 {
		info, err := d.Info()
		if err != nil || info.Size() > int64(ix.cfg.MaxFileKB)*1024 {
			return false
		}
	}
	return true
}
