// Package types holds the records persisted by the store and shared by
// every layer above it. Encoding is JSON throughout; the KV layer treats
// values as opaque bytes.
package types

import "time"

// TimeLayout renders timestamps as ISO-8601 local time without a zone.
// All persisted timestamps use this layout.
const TimeLayout = "2006-01-02T15:04:05.000000"

// Stamp formats t in the persisted layout.
func Stamp(t time.Time) string { return t.Format(TimeLayout) }

// ParseStamp parses a persisted timestamp in local time.
func ParseStamp(s string) (time.Time, error) {
	return time.ParseInLocation(TimeLayout, s, time.Local)
}

// PathState tags where a page currently is: routed at a live path, or
// parked in the deleted-path multimap.
type PathState struct {
	// Exactly one of Current/LastDeleted is non-empty.
	Current     string `json:"current,omitempty"`
	LastDeleted string `json:"last_deleted,omitempty"`
}

// Live reports whether the page is routed at a live path.
func (s PathState) Live() bool { return s.Current != "" }

// Path returns whichever path the state carries.
func (s PathState) Path() string {
	if s.Current != "" {
		return s.Current
	}
	return s.LastDeleted
}

// PageInfo is the index row of a promoted page.
type PageInfo struct {
	PageID          string    `json:"page_id"`
	State           PathState `json:"state"`
	Latest          uint64    `json:"latest"`
	GCMin           uint64    `json:"gc_min"`
	LockToken       string    `json:"lock_token,omitempty"`
	RenameRevisions []uint64  `json:"rename_revisions"`
}

// DraftInfo is the index row of a page-in-creation: it occupies a path and
// a lock but has no revisions yet.
type DraftInfo struct {
	PageID    string `json:"page_id"`
	Path      string `json:"path"`
	LockToken string `json:"lock_token,omitempty"`
}

// PageIndex is the tagged union stored under PageId. Exactly one of Page
// and Draft is set.
type PageIndex struct {
	Page  *PageInfo  `json:"page,omitempty"`
	Draft *DraftInfo `json:"draft,omitempty"`
}

// ID returns the page id regardless of variant.
func (x *PageIndex) ID() string {
	if x.Draft != nil {
		return x.Draft.PageID
	}
	return x.Page.PageID
}

// RenameInfo records a path change carried on a revision row. From is empty
// on the creation revision. LinkRefs maps each normalized path referenced
// by the source at rename time to the page id it resolved to, or "" when
// the link was dangling.
type RenameInfo struct {
	From     string            `json:"from,omitempty"`
	To       string            `json:"to"`
	LinkRefs map[string]string `json:"link_refs,omitempty"`
}

// PageSource is one revision row.
type PageSource struct {
	Revision  uint64      `json:"revision"`
	CreatedAt string      `json:"created_at"`
	UserName  string      `json:"user_name"`
	Source    string      `json:"source_text"`
	Rename    *RenameInfo `json:"rename_info,omitempty"`
}

// AssetInfo is the metadata row of an uploaded binary. Owner is the page id
// back-reference; it may dangle after the owner is hard-deleted (a zombie
// asset).
type AssetInfo struct {
	AssetID      string `json:"asset_id"`
	Owner        string `json:"owner"`
	OriginalName string `json:"original_name"`
	MIME         string `json:"mime"`
	Size         int64  `json:"size"`
	CreatedAt    string `json:"created_at"`
	Uploader     string `json:"uploader"`
	Deleted      bool   `json:"deleted"`
}

// LockInfo is one edit lock. Expire derives from the token's time prefix
// plus the TTL, so rotating the token always moves the deadline.
type LockInfo struct {
	Token  string `json:"token"`
	Target string `json:"target"`
	User   string `json:"user"`
	Expire string `json:"expire"`
}

// Expired reports whether the lock deadline has passed at now.
func (l *LockInfo) Expired(now time.Time) bool {
	exp, err := ParseStamp(l.Expire)
	if err != nil {
		return true
	}
	return !now.Before(exp)
}

// User is a credential row. PasswordHash is a bcrypt hash.
type User struct {
	Name         string `json:"name"`
	DisplayName  string `json:"display_name,omitempty"`
	PasswordHash string `json:"password_hash"`
	Admin        bool   `json:"admin,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// PageMeta is the read-model answered by meta queries and list items.
type PageMeta struct {
	PageID          string   `json:"page_id"`
	Path            string   `json:"path"`
	Latest          uint64   `json:"latest"`
	Oldest          uint64   `json:"oldest"`
	RenameRevisions []uint64 `json:"rename_revisions"`
	Locked          bool     `json:"locked"`
	Deleted         bool     `json:"deleted"`
	Draft           bool     `json:"draft,omitempty"`
	CreatedAt       string   `json:"created_at,omitempty"`
	UpdatedAt       string   `json:"updated_at,omitempty"`
}

// RevisionMeta is one history entry.
type RevisionMeta struct {
	Revision  uint64 `json:"revision"`
	CreatedAt string `json:"created_at"`
	UserName  string `json:"user_name"`
	Renamed   bool   `json:"renamed,omitempty"`
	Path      string `json:"path,omitempty"`
}

// SearchHit is one full-text result.
type SearchHit struct {
	PageID   string  `json:"page_id"`
	Revision uint64  `json:"revision"`
	Score    float64 `json:"score"`
	Path     string  `json:"path"`
	Deleted  bool    `json:"deleted"`
	Snippet  string  `json:"snippet,omitempty"`
}
