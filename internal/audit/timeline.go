package audit

import "time"

// TimelineFilters narrows the audit trail. Zero values do not filter.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	ActorID  int64
	Entity   string
	EntityID string
	Action   string
	Page     int
	PageSize int
}

// TimelineRow is one recorded ledger event.
type TimelineRow struct {
	ID       int64          `json:"id"`
	At       time.Time      `json:"at"`
	ActorID  int64          `json:"actor_id"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// PagingInfo describes the position of a page in the trail.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result wraps a timeline page.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}

// WindowParams is the repository query for one page.
type WindowParams struct {
	From     time.Time
	To       time.Time
	ActorID  int64
	Entity   string
	EntityID string
	Action   string
	Offset   int
	Limit    int
}
