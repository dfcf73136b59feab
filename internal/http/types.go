package http

import (
	"time"

	"github.com/fyrsmithlabs/brdforge/internal/signal"
	"github.com/fyrsmithlabs/brdforge/internal/synthesis"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// SessionResponse is the response body for POST /api/v1/sessions.
type SessionResponse struct {
	SessionID string `json:"session_id"`
}

// FragmentsRequest is the request body for POST .../fragments.
type FragmentsRequest struct {
	Fragments []signal.RawFragment `json:"fragments"`
}

// FragmentsResponse summarizes a classification run.
type FragmentsResponse struct {
	SessionID string         `json:"session_id"`
	Total     int            `json:"total"`
	Signals   int            `json:"signals"`
	Noise     int            `json:"noise"`
	Flagged   int            `json:"flagged"`
	Labels    map[string]int `json:"labels"`
}

// ItemsResponse lists classified items.
type ItemsResponse struct {
	SessionID string                  `json:"session_id"`
	Status    string                  `json:"status"`
	Items     []signal.ClassifiedItem `json:"items"`
}

// GenerateResponse is the response body for POST .../brd/generate.
type GenerateResponse struct {
	SessionID  string                  `json:"session_id"`
	SnapshotID string                  `json:"snapshot_id"`
	Flags      []signal.ValidationFlag `json:"flags"`
}

// SectionView is the latest version of one section.
type SectionView struct {
	Name          string    `json:"name"`
	Version       int       `json:"version"`
	Content       string    `json:"content"`
	SnapshotID    string    `json:"snapshot_id"`
	SourceItemIDs []string  `json:"source_item_ids"`
	Locked        bool      `json:"locked"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// DocumentResponse is the response body for GET .../brd.
type DocumentResponse struct {
	SessionID string                  `json:"session_id"`
	Sections  []SectionView           `json:"sections"`
	Flags     []signal.ValidationFlag `json:"flags"`
}

// EditSectionRequest is the request body for PUT .../brd/sections/:section.
type EditSectionRequest struct {
	Content    string `json:"content"`
	SnapshotID string `json:"snapshot_id,omitempty"`
}

// FlagsResponse is the response body for POST .../brd/validate.
type FlagsResponse struct {
	SessionID string                  `json:"session_id"`
	Flags     []signal.ValidationFlag `json:"flags"`
}

func sectionView(v signal.SectionVersion) SectionView {
	sources := v.SourceItemIDs
	if sources == nil {
		sources = []string{}
	}
	return SectionView{
		Name:          v.SectionName,
		Version:       v.VersionNumber,
		Content:       v.Content,
		SnapshotID:    v.SnapshotID,
		SourceItemIDs: sources,
		Locked:        v.Locked(),
		GeneratedAt:   v.GeneratedAt,
	}
}

// SummarizeItems counts a classification run's items by outcome.
func SummarizeItems(sessionID string, items []signal.ClassifiedItem) FragmentsResponse {
	resp := FragmentsResponse{SessionID: sessionID, Total: len(items), Labels: make(map[string]int)}
	for _, it := range items {
		resp.Labels[string(it.Label)]++
		if it.Label.IsSignal() {
			resp.Signals++
		} else {
			resp.Noise++
		}
		if it.FlaggedForReview {
			resp.Flagged++
		}
	}
	return resp
}

// NewDocument orders the latest section versions in document order.
func NewDocument(sessionID string, latest map[string]signal.SectionVersion, flags []signal.ValidationFlag) DocumentResponse {
	if flags == nil {
		flags = []signal.ValidationFlag{}
	}
	resp := DocumentResponse{SessionID: sessionID, Sections: []SectionView{}, Flags: flags}
	for _, name := range synthesis.AllSections {
		if v, ok := latest[name]; ok {
			resp.Sections = append(resp.Sections, sectionView(v))
		}
	}
	return resp
}
