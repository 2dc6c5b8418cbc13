package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"power-quality-processor/models"
)

type submitResponse struct {
	Measurement models.Sample           `json:"measurement"`
	Validation  models.ValidationResult `json:"validation"`
}

func (a *API) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload models.SamplePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON format")
		return
	}

	sample, err := payload.ToSample()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stored, result, err := a.samples.Submit(r.Context(), sample)
	if err != nil {
		writeServiceError(w, a.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, submitResponse{Measurement: stored, Validation: result})
}

func (a *API) HandleLatest(w http.ResponseWriter, r *http.Request) {
	s, err := a.samples.Latest(r.Context())
	if err != nil {
		writeServiceError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// HandleHistory serves ?from&to (epoch seconds, default the last hour) and ?limit.
func (a *API) HandleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	to := a.now()
	from := to.Add(-time.Hour)

	if v := q.Get("to"); v != "" {
		sec, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "to must be epoch seconds")
			return
		}
		to = time.Unix(sec, 0)
		if q.Get("from") == "" {
			from = to.Add(-time.Hour)
		}
	}
	if v := q.Get("from"); v != "" {
		sec, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be epoch seconds")
			return
		}
		from = time.Unix(sec, 0)
	}

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	samples, err := a.samples.History(r.Context(), from, to, limit)
	if err != nil {
		writeServiceError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, samples)
}
