package opensearch

import (
	"encoding/json"
	"fmt"
)

// FlexString accepts either a JSON string or a JSON number. The backend is not
// consistent about identifier types.
type FlexString string

func (s *FlexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*s = FlexString(n.String())
	return nil
}

// ResultItem is one row of a backend result page. Fields the backend sends that
// are not named here are kept in Fields and written back unchanged.
type ResultItem struct {
	Tracker    FlexString
	BoardID    FlexString
	Status     string
	MagnetKey  FlexString
	Query      string
	BoardLabel string

	Fields map[string]json.RawMessage
}

func (it *ResultItem) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	err := takeFields(raw, map[string]any{
		"tracker":     &it.Tracker,
		"board_id":    &it.BoardID,
		"status":      &it.Status,
		"magnet_key":  &it.MagnetKey,
		"query":       &it.Query,
		"board_label": &it.BoardLabel,
	})
	if err != nil {
		return err
	}
	it.Fields = nil
	if len(raw) > 0 {
		it.Fields = raw
	}
	return nil
}

func (it ResultItem) MarshalJSON() ([]byte, error) {
	return withFields(it.Fields, map[string]any{
		"tracker":     it.Tracker,
		"board_id":    it.BoardID,
		"status":      it.Status,
		"magnet_key":  it.MagnetKey,
		"query":       it.Query,
		"board_label": it.BoardLabel,
	})
}

// ResultPage is a raw backend page plus the independently fetched total.
type ResultPage struct {
	Items []ResultItem
	Total int
}

// EnrichedPage is a ResultPage after enrichment. StatusCode is 200 when there
// is at least one item and 404 otherwise.
type EnrichedPage struct {
	Query      Query
	Items      []ResultItem
	Total      int
	StatusCode int
}

// DetailRecord is the "data" object of the magnet detail call.
type DetailRecord struct {
	MagnetLink string
	Fields     map[string]json.RawMessage
}

func (d *DetailRecord) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if err := takeFields(raw, map[string]any{"magnet_link": &d.MagnetLink}); err != nil {
		return err
	}
	d.Fields = nil
	if len(raw) > 0 {
		d.Fields = raw
	}
	return nil
}

func (d DetailRecord) MarshalJSON() ([]byte, error) {
	return withFields(d.Fields, map[string]any{"magnet_link": d.MagnetLink})
}

// DetailView joins the cached item context with a fresh detail record.
type DetailView struct {
	Key        string       `json:"key"`
	Query      string       `json:"query"`
	BoardLabel string       `json:"board_label"`
	InfoHash   string       `json:"info_hash"`
	Cached     ResultItem   `json:"cached"`
	Detail     DetailRecord `json:"data"`
}

// takeFields decodes the named keys into their destinations and removes them
// from raw, leaving only unknown fields behind.
func takeFields(raw map[string]json.RawMessage, dst map[string]any) error {
	for key, ptr := range dst {
		v, ok := raw[key]
		if !ok {
			continue
		}
		delete(raw, key)
		if err := json.Unmarshal(v, ptr); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
	}
	return nil
}

func withFields(extra map[string]json.RawMessage, known map[string]any) ([]byte, error) {
	out := make(map[string]any, len(extra)+len(known))
	for k, v := range extra {
		out[k] = v
	}
	for k, v := range known {
		out[k] = v
	}
	return json.Marshal(out)
}
