package handlers

import (
	"net/http"
	"time"

	"power-quality-processor/models"
)

const serviceName = "power-quality-processor"

type jobStatus struct {
	Name              string  `json:"name"`
	Schedule          string  `json:"schedule"`
	LastRunTime       *string `json:"last_run_time"`
	LastProcessedDate *string `json:"last_processed_date"`
	LastRunSuccess    bool    `json:"last_run_success"`
	LastError         *string `json:"last_error"`
}

func (a *API) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "UP",
		"service":   serviceName,
		"timestamp": a.now().UTC().Format(time.RFC3339),
	})
}

// HandleJobHealth always answers 200; the body status is DOWN after a failed run.
func (a *API) HandleJobHealth(w http.ResponseWriter, r *http.Request) {
	state := a.job.Snapshot()

	job := jobStatus{
		Name:           "DailyStatsAggregation",
		Schedule:       a.schedule,
		LastRunSuccess: state.LastRunSuccess,
	}
	if state.HasRun {
		runTime := state.LastRunTime.In(a.loc).Format(time.RFC3339)
		date := state.LastProcessedDate.Format(models.DateLayout)
		job.LastRunTime = &runTime
		job.LastProcessedDate = &date
	}
	if state.LastError != "" {
		msg := state.LastError
		job.LastError = &msg
	}

	status := "UP"
	if !state.LastRunSuccess {
		status = "DOWN"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          status,
		"aggregation_job": job,
		"timestamp":       a.now().UTC().Format(time.RFC3339),
	})
}
