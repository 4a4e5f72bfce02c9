package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/hearth/internal/auth"
	"github.com/dukerupert/hearth/internal/store"
)

// hit is a search result: the record's own fields plus "kind".
type hit struct {
	kind   string
	record any
}

func (h hit) MarshalJSON() ([]byte, error) {
	body, err := json.Marshal(h.record)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	kind, _ := json.Marshal(h.kind)
	fields["kind"] = kind
	return json.Marshal(fields)
}

func appendHits[T any](hits []hit, kind string, recs []T) []hit {
	for i := range recs {
		hits = append(hits, hit{kind: kind, record: recs[i]})
	}
	return hits
}

type SearchHandler struct {
	records *store.Records
	logger  *slog.Logger
}

func NewSearchHandler(records *store.Records, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{records: records, logger: logger}
}

// Search matches documents, assets and bills by title, vehicles by number,
// and properties and subscriptions by name.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	hits := []hit{}
	if q == "" {
		writeJSON(w, http.StatusOK, hits)
		return
	}

	ctx := r.Context()
	householdID := auth.HouseholdID(ctx)

	docs, err := h.records.Documents.Search(ctx, householdID, q)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	hits = appendHits(hits, "document", docs)

	assets, err := h.records.Assets.Search(ctx, householdID, q)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	hits = appendHits(hits, "asset", assets)

	bills, err := h.records.Bills.Search(ctx, householdID, q)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	hits = appendHits(hits, "bill", bills)

	vehicles, err := h.records.Vehicles.Search(ctx, householdID, q)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	hits = appendHits(hits, "vehicle", vehicles)

	properties, err := h.records.Properties.Search(ctx, householdID, q)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	hits = appendHits(hits, "property", properties)

	subs, err := h.records.Subscriptions.Search(ctx, householdID, q)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	hits = appendHits(hits, "subscription", subs)

	writeJSON(w, http.StatusOK, hits)
}
