package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/pagedrift/pagedrift/internal/model"
	"github.com/pagedrift/pagedrift/internal/store"
)

// jobRequest is the payload for starting an analysis job, over REST or as
// websocket query parameters. Times are RFC 3339.
type jobRequest struct {
	URLPattern string    `json:"url_pattern,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	After      time.Time `json:"after"`
	Before     time.Time `json:"before"`
}

func (req jobRequest) query() store.PageQuery {
	return store.PageQuery{URLPattern: req.URLPattern, Tags: req.Tags}
}

func (req jobRequest) window() model.Window {
	w := model.Window{After: req.After, Before: req.Before}
	if w.Before.IsZero() {
		w.Before = time.Now().UTC()
	}
	return w
}

func decodeJobRequest(r *http.Request) (jobRequest, error) {
	var req jobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, errors.New("invalid JSON")
	}
	if !req.Before.IsZero() && !req.After.Before(req.Before) {
		return req, errors.New("after must precede before")
	}
	return req, nil
}

func jobRequestFromQuery(r *http.Request) (jobRequest, error) {
	q := r.URL.Query()
	req := jobRequest{
		URLPattern: q.Get("url"),
		Tags:       q["tag"],
	}
	if v := q.Get("after"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return req, errors.New("invalid after timestamp")
		}
		req.After = t
	}
	if v := q.Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return req, errors.New("invalid before timestamp")
		}
		req.Before = t
	}
	if !req.Before.IsZero() && !req.After.Before(req.Before) {
		return req, errors.New("after must precede before")
	}
	return req, nil
}
