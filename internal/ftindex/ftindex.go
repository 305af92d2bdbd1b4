// Package ftindex coordinates the full-text index. The engine is treated
// as an opaque sink keyed by (page_id, revision); content is fed to it
// after the owning KV transaction commits, and queries are post-filtered
// against live KV state so a stale index never resurfaces deleted pages.
package ftindex

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/wikora/wikora/internal/store"
	"github.com/wikora/wikora/internal/types"
)

// MaxHits caps a search response.
const MaxHits = 100

// Index wraps one bleve index directory.
type Index struct {
	dir string
	idx bleve.Index
	log *logrus.Entry
}

// revDoc is the indexed shape of one revision.
type revDoc struct {
	PageID   string `json:"page_id"`
	Revision string `json:"revision"`
	Headings string `json:"headings"`
	Body     string `json:"body"`
	Code     string `json:"code"`
}

func indexMapping() mapping.IndexMapping {
	m := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()

	id := bleve.NewTextFieldMapping()
	id.Analyzer = keyword.Name
	doc.AddFieldMappingsAt("page_id", id)
	rev := bleve.NewTextFieldMapping()
	rev.Analyzer = keyword.Name
	doc.AddFieldMappingsAt("revision", rev)

	for _, field := range []string{"headings", "body", "code"} {
		fm := bleve.NewTextFieldMapping()
		doc.AddFieldMappingsAt(field, fm)
	}
	m.DefaultMapping = doc
	return m
}

// Open opens (creating if needed) the index directory.
func Open(dir string, log *logrus.Logger) (*Index, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	idx, err := bleve.Open(dir)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(dir, indexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("opening full-text index %s: %w", dir, err)
	}
	return &Index{dir: dir, idx: idx, log: log.WithField("component", "ftindex")}, nil
}

// Close releases the index.
func (i *Index) Close() error { return i.idx.Close() }

func docID(pageID string, rev uint64) string {
	return pageID + ":" + strconv.FormatUint(rev, 10)
}

func splitDocID(id string) (pageID string, rev uint64) {
	sep := strings.LastIndexByte(id, ':')
	if sep < 0 {
		return id, 0
	}
	rev, _ = strconv.ParseUint(id[sep+1:], 10, 64)
	return id[:sep], rev
}

// Apply plays a committed transaction's index events into the engine,
// retrying transient failures. Best effort: a persistent failure is logged
// and left for `fts rebuild` to repair.
func (i *Index) Apply(events []store.IndexEvent) {
	for _, ev := range events {
		ev := ev
		op := func() error { return i.applyOne(ev) }
		policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4)
		if err := backoff.Retry(op, policy); err != nil {
			i.log.WithError(err).WithFields(logrus.Fields{
				"page_id":  ev.PageID,
				"revision": ev.Revision,
			}).Error("index update failed; run fts rebuild to repair")
		}
	}
}

func (i *Index) applyOne(ev store.IndexEvent) error {
	switch ev.Op {
	case store.EventIndex:
		return i.IndexRevision(ev.PageID, ev.Revision, ev.Source)
	case store.EventEvictRevision:
		return i.idx.Delete(docID(ev.PageID, ev.Revision))
	case store.EventEvictPage:
		return i.EvictPage(ev.PageID)
	default:
		return nil
	}
}

// IndexRevision ingests one revision's content, replacing any previous
// document for the same (page, revision).
func (i *Index) IndexRevision(pageID string, rev uint64, source string) error {
	headings, body, code := SplitMarkdown(source)
	return i.idx.Index(docID(pageID, rev), revDoc{
		PageID:   pageID,
		Revision: strconv.FormatUint(rev, 10),
		Headings: headings,
		Body:     body,
		Code:     code,
	})
}

// EvictPage drops every document of a page.
func (i *Index) EvictPage(pageID string) error {
	q := query.NewTermQuery(pageID)
	q.SetField("page_id")
	req := bleve.NewSearchRequest(q)
	req.Size = 10000
	for {
		res, err := i.idx.Search(req)
		if err != nil {
			return err
		}
		if len(res.Hits) == 0 {
			return nil
		}
		for _, hit := range res.Hits {
			if err := i.idx.Delete(hit.ID); err != nil {
				return err
			}
		}
	}
}

// Request is one search call.
type Request struct {
	Expression  string
	Targets     []string // subset of headings, body, code; empty means all
	WithDeleted bool
	AllRevision bool
}

// PageState answers liveness questions during post-filtering. A false ok
// result means the page is hard-deleted (or the index is ahead of the KV)
// and the hit is dropped.
type PageState func(pageID string, rev uint64) (ok bool, path string, deleted bool, latest uint64)

var validTargets = map[string]bool{"headings": true, "body": true, "code": true}

// Search runs expression against the requested targets and post-filters
// hits against live page state.
func (i *Index) Search(req Request, state PageState) ([]types.SearchHit, error) {
	targets := req.Targets
	if len(targets) == 0 {
		targets = []string{"headings", "body", "code"}
	}
	var parts []query.Query
	for _, t := range targets {
		if !validTargets[t] {
			return nil, types.E(types.KindBadInput, "unknown search target %q", t)
		}
		m := bleve.NewMatchQuery(req.Expression)
		m.SetField(t)
		parts = append(parts, m)
	}
	sreq := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(parts...))
	sreq.Size = MaxHits
	sreq.Highlight = bleve.NewHighlight()

	res, err := i.idx.Search(sreq)
	if err != nil {
		return nil, types.Wrap(types.KindInternal, err, "full-text search")
	}
	hits := make([]types.SearchHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		pageID, rev := splitDocID(h.ID)
		ok, path, deleted, latest := state(pageID, rev)
		if !ok {
			continue // hard-deleted since indexing
		}
		if deleted && !req.WithDeleted {
			continue
		}
		if !req.AllRevision && rev != latest {
			continue
		}
		hits = append(hits, types.SearchHit{
			PageID:   pageID,
			Revision: rev,
			Score:    h.Score,
			Path:     path,
			Deleted:  deleted,
			Snippet:  snippet(h.Fragments),
		})
	}
	return hits, nil
}

func snippet(fragments map[string][]string) string {
	for _, field := range []string{"body", "headings", "code"} {
		if frags, ok := fragments[field]; ok && len(frags) > 0 {
			return frags[0]
		}
	}
	return ""
}

// Rebuild reconstructs the index from authoritative revisions. The old
// directory is dropped wholesale; each yields every (page, revision,
// source) to ingest.
func (i *Index) Rebuild(each func(fn func(pageID string, rev uint64, source string) error) error) error {
	if err := i.idx.Close(); err != nil {
		return fmt.Errorf("closing index for rebuild: %w", err)
	}
	if err := os.RemoveAll(i.dir); err != nil {
		return fmt.Errorf("dropping index for rebuild: %w", err)
	}
	fresh, err := bleve.New(i.dir, indexMapping())
	if err != nil {
		return fmt.Errorf("recreating index: %w", err)
	}
	i.idx = fresh

	batch := i.idx.NewBatch()
	count := 0
	err = each(func(pageID string, rev uint64, source string) error {
		headings, body, code := SplitMarkdown(source)
		if err := batch.Index(docID(pageID, rev), revDoc{
			PageID:   pageID,
			Revision: strconv.FormatUint(rev, 10),
			Headings: headings,
			Body:     body,
			Code:     code,
		}); err != nil {
			return err
		}
		count++
		if batch.Size() >= 256 {
			if err := i.idx.Batch(batch); err != nil {
				return err
			}
			batch = i.idx.NewBatch()
		}
		return nil
	})
	if err != nil {
		return err
	}
	if batch.Size() > 0 {
		if err := i.idx.Batch(batch); err != nil {
			return err
		}
	}
	i.log.WithField("documents", count).Info("rebuilt full-text index")
	return nil
}

// forceMerger is the optional segment-merge surface some engines expose.
type forceMerger interface {
	ForceMerge(ratio float64) error
}

// Merge asks the engine to merge segments when it supports doing so.
func (i *Index) Merge() error {
	adv, err := i.idx.Advanced()
	if err != nil {
		return fmt.Errorf("index merge: %w", err)
	}
	if fm, ok := adv.(forceMerger); ok {
		return fm.ForceMerge(1.0)
	}
	i.log.Debug("index engine does not support explicit merges")
	return nil
}

// DocCount reports how many documents the engine holds.
func (i *Index) DocCount() (uint64, error) { return i.idx.DocCount() }
