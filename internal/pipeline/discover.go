package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/revivalist/lorecard/internal/common"
	"github.com/revivalist/lorecard/internal/models"
	"github.com/revivalist/lorecard/internal/queue"
	"github.com/revivalist/lorecard/internal/templates"
)

// queueItem is one (source, depth) tuple in the BFS frontier of §4.8.2.
type queueItem struct {
	sourceID string
	depth    int
}

// crawlOutcome accumulates the shared result buckets of discover_and_crawl
// and rescan_links, which differ only in whether they call the LLM and
// expand category sources (§4.8.3: rescan reuses stored selectors, issues
// no LLM calls, creates no children).
type crawlOutcome struct {
	newLinks           map[string]struct{}
	existingLinks      map[string]struct{}
	newSourcesCreated  int
	selectorsGenerated int
}

func newCrawlOutcome() *crawlOutcome {
	return &crawlOutcome{newLinks: map[string]struct{}{}, existingLinks: map[string]struct{}{}}
}

func (o *crawlOutcome) result() models.DiscoverAndCrawlSourcesResult {
	return models.DiscoverAndCrawlSourcesResult{
		NewLinks:           sortedKeys(o.newLinks),
		ExistingLinks:      sortedKeys(o.existingLinks),
		NewSourcesCreated:  o.newSourcesCreated,
		SelectorsGenerated: o.selectorsGenerated,
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DiscoverAndCrawlSources implements §4.8.2: a BFS over root source ids,
// one LLM call per unique source to derive selectors, category expansion
// on each source's first page only, pagination within each source up to
// its max_pages_to_crawl, bounded by max_crawl_depth.
func (d *Deps) DiscoverAndCrawlSources(ctx context.Context, job *models.BackgroundJob, cancellable queue.Cancellable) (interface{}, error) {
	var payload models.DiscoverAndCrawlSourcesPayload
	if err := job.DecodePayload(&payload); err != nil {
		return nil, err
	}
	project, err := d.Store.GetProject(ctx, job.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	if project.SearchParams == nil {
		return nil, fmt.Errorf("%w: project has no search params, run generate_search_params first", common.ErrConflict)
	}

	result, canceled, err := d.crawl(ctx, project, job, payload.RootSourceIDs, true, cancellable)
	if err != nil {
		return nil, err
	}
	if canceled {
		return d.finishCanceled(ctx, job, result)
	}

	if project.CanTransitionTo(models.ProjectStatusSelectorGenerated) {
		project.Status = models.ProjectStatusSelectorGenerated
		if err := d.Store.UpdateProject(ctx, project); err != nil {
			return nil, fmt.Errorf("advance project status: %w", err)
		}
	}
	return result, nil
}

// RescanLinks implements §4.8.3: identical crawl, but reusing each
// source's already-stored selectors, with no LLM calls and no new child
// sources created.
func (d *Deps) RescanLinks(ctx context.Context, job *models.BackgroundJob, cancellable queue.Cancellable) (interface{}, error) {
	var payload models.RescanLinksPayload
	if err := job.DecodePayload(&payload); err != nil {
		return nil, err
	}
	project, err := d.Store.GetProject(ctx, job.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}

	result, canceled, err := d.crawl(ctx, project, job, payload.RootSourceIDs, false, cancellable)
	if err != nil {
		return nil, err
	}
	if canceled {
		return d.finishCanceled(ctx, job, result)
	}
	return result, nil
}

// crawl runs the shared BFS for both task kinds. useLLM selects
// discover_and_crawl_sources's selector-generation-and-expansion behavior
// versus rescan_links's selector-reuse behavior. Cancellation is checked
// between sources (§4.8.2 "Cancellation. Checked between sources.").
func (d *Deps) crawl(ctx context.Context, project *models.Project, job *models.BackgroundJob, rootIDs []string, useLLM bool, cancellable queue.Cancellable) (models.DiscoverAndCrawlSourcesResult, bool, error) {
	outcome := newCrawlOutcome()
	queueFrontier := make([]queueItem, 0, len(rootIDs))
	for _, id := range rootIDs {
		queueFrontier = append(queueFrontier, queueItem{sourceID: id, depth: 0})
	}

	visited := make(map[string]bool)
	for len(queueFrontier) > 0 {
		if cancellable.CancelRequested() {
			return outcome.result(), true, nil
		}

		item := queueFrontier[0]
		queueFrontier = queueFrontier[1:]
		if visited[item.sourceID] {
			continue
		}
		visited[item.sourceID] = true

		source, err := d.Store.GetSource(ctx, item.sourceID)
		if err != nil {
			return outcome.result(), false, fmt.Errorf("load source %s: %w", item.sourceID, err)
		}

		children, err := d.crawlOneSource(ctx, project, job.ID, source, item.depth, useLLM, outcome)
		if err != nil {
			return outcome.result(), false, fmt.Errorf("crawl source %s: %w", source.URLOrPath, err)
		}
		queueFrontier = append(queueFrontier, children...)
	}

	return outcome.result(), false, nil
}

// crawlOneSource runs the per-source inner loop of §4.8.2 steps 1-5 and
// returns any newly enqueued (child, depth+1) frontier entries.
func (d *Deps) crawlOneSource(ctx context.Context, project *models.Project, jobID string, source *models.ProjectSource, depth int, useLLM bool, outcome *crawlOutcome) ([]queueItem, error) {
	var children []queueItem
	if source.MaxPagesToCrawl <= 0 {
		source.MaxPagesToCrawl = 1
	}

	currentURL := source.URLOrPath
	firstPageHTML := ""
	contentSelectors := source.ContentSelectors
	var categorySelectors []string
	paginationSelector := source.PaginationSelector

	if useLLM {
		page, err := d.Scraper.Fetch(ctx, currentURL, false)
		if err != nil {
			return nil, fmt.Errorf("fetch first page: %w", err)
		}
		firstPageHTML = page.RawHTML

		vars := mergeVars(map[string]map[string]interface{}{
			"project": projectVars(project),
			"source":  sourceVars(firstPageHTML),
		})
		var sel selectorResult
		if err := d.callLLMAndLog(ctx, project, jobID, templates.KindSelectorGeneration, vars, "selectors", selectorSchema, &sel); err != nil {
			return nil, fmt.Errorf("generate selectors: %w", err)
		}
		outcome.selectorsGenerated++

		contentSelectors = sel.ContentSelectors
		categorySelectors = sel.CategorySelectors
		paginationSelector = sel.PaginationSelector

		source.ContentSelectors = contentSelectors
		source.PaginationSelector = paginationSelector
		if err := d.Store.UpdateSource(ctx, source); err != nil {
			return nil, fmt.Errorf("persist selectors: %w", err)
		}
	}

	visitedPages := map[string]bool{}
	page := 1
	for page <= source.MaxPagesToCrawl {
		var html string
		if page == 1 && firstPageHTML != "" {
			html = firstPageHTML
		} else {
			result, err := d.Scraper.Fetch(ctx, currentURL, false)
			if err != nil {
				return nil, fmt.Errorf("fetch page %d (%s): %w", page, currentURL, err)
			}
			html = result.RawHTML
		}
		visitedPages[currentURL] = true

		contentURLs, err := extractLinks(html, currentURL, contentSelectors)
		if err != nil {
			return nil, fmt.Errorf("extract content links: %w", err)
		}
		contentSet := make(map[string]struct{}, len(contentURLs))
		for _, u := range contentURLs {
			contentSet[u] = struct{}{}
			existing, err := d.Store.GetLinkByURL(ctx, project.ID, u)
			if err == nil && existing != nil {
				outcome.existingLinks[u] = struct{}{}
			} else {
				outcome.newLinks[u] = struct{}{}
			}
		}

		// Category expansion happens on the first page only, so it does
		// not multiply with pagination (§4.8.2 step 3).
		if page == 1 && useLLM && len(categorySelectors) > 0 {
			categoryURLs, err := extractLinks(html, currentURL, categorySelectors)
			if err != nil {
				return nil, fmt.Errorf("extract category links: %w", err)
			}
			for _, cu := range categoryURLs {
				// Tie-break: a URL matched by both a content and a
				// category selector is treated as content, not category.
				if _, isContent := contentSet[cu]; isContent {
					continue
				}
				child, err := d.getOrCreateChildSource(ctx, project, source, cu)
				if err != nil {
					return nil, fmt.Errorf("create child source for %s: %w", cu, err)
				}
				if child.created {
					outcome.newSourcesCreated++
				}
				if depth < source.MaxCrawlDepth {
					children = append(children, queueItem{sourceID: child.id, depth: depth + 1})
				}
			}
		}

		if paginationSelector == nil || *paginationSelector == "" {
			break
		}
		nextURL, err := extractPaginationLink(html, currentURL, *paginationSelector)
		if err != nil {
			return nil, fmt.Errorf("extract pagination link: %w", err)
		}
		if nextURL == "" || nextURL == currentURL || visitedPages[nextURL] {
			break
		}
		currentURL = nextURL
		page++
	}

	now := time.Now().UTC()
	source.LastCrawledAt = &now
	if err := d.Store.UpdateSource(ctx, source); err != nil {
		return nil, fmt.Errorf("update last_crawled_at: %w", err)
	}

	return children, nil
}

type childSource struct {
	id      string
	created bool
}

// getOrCreateChildSource reuses an existing ProjectSource for url if one
// is already registered on the project, else creates it, and establishes
// the parent->child hierarchy edge idempotently either way (§4.8.2 step 3,
// §3's ProjectSourceHierarchy uniqueness invariant).
func (d *Deps) getOrCreateChildSource(ctx context.Context, project *models.Project, parent *models.ProjectSource, url string) (childSource, error) {
	existing, err := d.Store.GetSourceByURL(ctx, project.ID, url)
	created := false
	var child *models.ProjectSource
	if err == nil && existing != nil {
		child = existing
	} else {
		child = &models.ProjectSource{
			ID:              common.NewID(),
			ProjectID:       project.ID,
			Kind:            models.SourceKindWebURL,
			URLOrPath:       url,
			MaxPagesToCrawl: parent.MaxPagesToCrawl,
			MaxCrawlDepth:   parent.MaxCrawlDepth,
			CreatedAt:       time.Now().UTC(),
			UpdatedAt:       time.Now().UTC(),
		}
		if err := d.Store.CreateSource(ctx, child); err != nil {
			return childSource{}, err
		}
		created = true
	}

	edgeExists, err := d.Store.HierarchyEdgeExists(ctx, parent.ID, child.ID)
	if err != nil {
		return childSource{}, err
	}
	if !edgeExists {
		edge := &models.SourceHierarchyEdge{ID: common.NewID(), ParentID: parent.ID, ChildID: child.ID}
		if err := d.Store.CreateHierarchyEdge(ctx, edge); err != nil {
			return childSource{}, err
		}
	}
	return childSource{id: child.ID, created: created}, nil
}
