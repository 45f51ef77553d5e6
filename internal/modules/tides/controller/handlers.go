package controller

import (
	"net/http"
	"time"

	"thamestides-server/internal/modules/tides/types"
	"thamestides-server/internal/utils"
)

func (c *tidesControllerImpl) handleTides(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()

	// an empty request never needs the schema
	if len(q) == 0 {
		_, err := parseQuery(q, types.Whitelists{})
		writeRequestError(w, r, err)
		return
	}

	wl, err := c.service.Whitelists(r.Context())
	if err != nil {
		writeRequestError(w, r, err)
		return
	}

	spec, err := parseQuery(q, wl)
	if err != nil {
		writeRequestError(w, r, err)
		return
	}

	env, err := c.service.Fetch(r.Context(), spec, wl)
	if err != nil {
		writeRequestError(w, r, err)
		return
	}

	env.StatusCode = http.StatusOK
	env.ExecutionTime = time.Since(start).Seconds()
	writeEnvelope(w, env)
}

type stationsResponse struct {
	Readings    []string `json:"readings"`
	Predictions []string `json:"predictions"`
}

func (c *tidesControllerImpl) handleStations(w http.ResponseWriter, r *http.Request) {
	wl, err := c.service.Whitelists(r.Context())
	if err != nil {
		writeRequestError(w, r, err)
		return
	}
	setSuccessHeaders(w)
	utils.WriteJSON(w, http.StatusOK, stationsResponse{
		Readings:    wl.Readings.Names(),
		Predictions: wl.Predictions.Names(),
	})
}
