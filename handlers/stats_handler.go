package handlers

import (
	"fmt"
	"net/http"
	"time"

	"power-quality-processor/models"
)

func (a *API) HandleToday(w http.ResponseWriter, r *http.Request) {
	agg, err := a.stats.DailyStats(r.Context(), a.stats.Today())
	if err != nil {
		writeServiceError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

func (a *API) HandleLastDays(days int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		aggs, err := a.stats.LastDays(r.Context(), days)
		if err != nil {
			writeServiceError(w, a.log, err)
			return
		}
		writeJSON(w, http.StatusOK, aggs)
	}
}

func (a *API) HandleRange(w http.ResponseWriter, r *http.Request) {
	from, err := a.dateParam(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := a.dateParam(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	aggs, err := a.stats.StatsRange(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, aggs)
}

func (a *API) HandleDate(w http.ResponseWriter, r *http.Request) {
	date, err := a.dateParam(r, "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	agg, err := a.stats.DailyStats(r.Context(), date)
	if err != nil {
		writeServiceError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

// HandleRecalculate recomputes one date on demand. The outcome is recorded
// in the job health state like a scheduled run.
func (a *API) HandleRecalculate(w http.ResponseWriter, r *http.Request) {
	date, err := a.dateParam(r, "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	agg, err := a.job.RunManual(r.Context(), date)
	if err != nil {
		writeServiceError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

func (a *API) dateParam(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, fmt.Errorf("%s is required (%s)", name, models.DateLayout)
	}
	t, err := time.ParseInLocation(models.DateLayout, v, a.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be a date in %s format", name, models.DateLayout)
	}
	return t, nil
}
