package controller

import (
	"errors"
	"log/slog"
	"net/http"

	"thamestides-server/internal/httpapi"
	"thamestides-server/internal/modules/tides/types"
	"thamestides-server/internal/utils"
)

const successCacheControl = "no-transform,public,max-age=60,s-maxage=60"

type errorBody struct {
	Message    string            `json:"message"`
	StatusCode int               `json:"status_code"`
	Input      map[string]string `json:"input"`
}

func writeEnvelope(w http.ResponseWriter, env *types.Envelope) {
	setSuccessHeaders(w)
	utils.WriteJSON(w, http.StatusOK, env)
}

func setSuccessHeaders(w http.ResponseWriter) {
	clearHeaders(w)
	w.Header().Set("Cache-Control", successCacheControl)
}

// writeRequestError is the single exit for failed requests. Anything that is
// not a RequestError is reported as a bare 500.
func writeRequestError(w http.ResponseWriter, r *http.Request, err error) {
	var reqErr *types.RequestError
	if !errors.As(err, &reqErr) {
		reqErr = types.WrapRequestError(types.Kind(0), err, "Internal server error")
	}
	status := reqErr.StatusCode()

	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"kind", reqErr.Kind.String(),
			"status", status,
			"query", r.URL.RawQuery,
			"error", err,
			"request_id", httpapi.RequestID(r.Context()),
		)
	} else {
		slog.Debug("request rejected",
			"kind", reqErr.Kind.String(),
			"status", status,
			"message", reqErr.Message,
			"request_id", httpapi.RequestID(r.Context()),
		)
	}

	clearHeaders(w)
	utils.WriteJSON(w, status, errorBody{
		Message:    reqErr.Message,
		StatusCode: status,
		Input:      inputEcho(r.URL.Query()),
	})
}

func clearHeaders(w http.ResponseWriter) {
	h := w.Header()
	for k := range h {
		delete(h, k)
	}
}
