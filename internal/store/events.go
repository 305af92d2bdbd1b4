package store

// EventOp names a full-text index mutation implied by a committed
// transaction.
type EventOp int

const (
	// EventIndex (re)ingests one revision's content.
	EventIndex EventOp = iota
	// EventEvictRevision drops one (page, revision) document.
	EventEvictRevision
	// EventEvictPage drops every document of a page.
	EventEvictPage
)

// IndexEvent is emitted by a mutating operation for the index coordinator
// to apply after the KV transaction commits.
type IndexEvent struct {
	Op       EventOp
	PageID   string
	Revision uint64
	Source   string // set on EventIndex
}

func indexEvent(pageID string, rev uint64, source string) IndexEvent {
	return IndexEvent{Op: EventIndex, PageID: pageID, Revision: rev, Source: source}
}

func evictRevision(pageID string, rev uint64) IndexEvent {
	return IndexEvent{Op: EventEvictRevision, PageID: pageID, Revision: rev}
}

func evictPage(pageID string) IndexEvent {
	return IndexEvent{Op: EventEvictPage, PageID: pageID}
}

// Effects are the side effects a committed transaction owes the outside
// world: index mutations and asset bodies to remove from the filesystem.
// They must only be applied after the KV transaction commits.
type Effects struct {
	Index        []IndexEvent
	RemoveBodies []string // asset ids
}

func (e *Effects) index(ev ...IndexEvent) {
	e.Index = append(e.Index, ev...)
}

func (e *Effects) removeBody(assetID string) {
	e.RemoveBodies = append(e.RemoveBodies, assetID)
}
