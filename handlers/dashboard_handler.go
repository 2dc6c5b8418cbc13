package handlers

import "net/http"

func (a *API) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := a.samples.Dashboard(r.Context())
	if err != nil {
		writeServiceError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) HandleIndicators(w http.ResponseWriter, r *http.Request) {
	ind, err := a.samples.LatestIndicators(r.Context())
	if err != nil {
		writeServiceError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, ind)
}

func (a *API) HandleWaveform(w http.ResponseWriter, r *http.Request) {
	wf, err := a.samples.LatestWaveform(r.Context())
	if err != nil {
		writeServiceError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}
