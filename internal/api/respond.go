package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/2beens/fittrack/internal/datasync"
	"github.com/2beens/fittrack/pkg"

	log "github.com/sirupsen/logrus"
)

// ErrorKindHeader tells the presentation layer which error kind it got.
const ErrorKindHeader = "X-FITTRACK-ERROR-KIND"

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	resp, err := json.Marshal(v)
	if err != nil {
		log.Errorf("marshal response: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, resp, statusCode)
}

func statusForKind(kind datasync.Kind) int {
	switch kind {
	case datasync.KindAuthFailure:
		return http.StatusUnauthorized
	case datasync.KindDuplicateEntity:
		return http.StatusConflict
	case datasync.KindNotFound:
		return http.StatusNotFound
	case datasync.KindInvalidInput:
		return http.StatusBadRequest
	case datasync.KindRemoteReadFailure, datasync.KindRemoteWriteFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders a data layer error with the user facing message of
// its kind. Other errors become a plain 500.
func writeError(w http.ResponseWriter, err error) {
	var dsErr *datasync.Error
	if !errors.As(err, &dsErr) {
		log.Errorf("unexpected handler error: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set(ErrorKindHeader, string(dsErr.Kind))
	http.Error(w, dsErr.Message, statusForKind(dsErr.Kind))
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode json body: %w", err)
	}
	return nil
}
