// Package responses writes the storefront's JSON bodies: `{success, data}`
// for /api routes, flat bodies for the root checkout routes and the error
// envelope for every failure.
package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	zlog "github.com/rs/zerolog/log"

	pkgerrors "github.com/petalpost/storefront-backend/pkg/errors"
	"github.com/petalpost/storefront-backend/pkg/logger"
	"github.com/petalpost/storefront-backend/pkg/types"
)

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, types.SuccessEnvelope{Success: true, Data: data})
}

// WriteJSON encodes payload before touching w, so an unencodable payload
// becomes a plain 500 instead of a truncated body.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		zlog.Error().Err(err).Msg("response.encode_failed")
		http.Error(w, `{"success":false}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// WriteError maps err onto its code's status and writes the error envelope.
// Client errors and gateway failures keep their own message; other server
// errors fall back to the code's public message so internals never leak.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	body := types.APIError{Code: string(typed.Code()), Message: meta.PublicMessage}
	if exposeMessage(typed.Code(), meta) && typed.Message() != "" {
		body.Message = typed.Message()
	}
	if meta.DetailsAllowed {
		body.Details = typed.Details()
	}

	fields := pkgerrors.Dump(err).Fields()
	fields["status"] = meta.HTTPStatus
	ctx = logg.WithFields(ctx, fields)
	if meta.HTTPStatus >= http.StatusInternalServerError {
		logg.Error(ctx, "request.error", err)
	} else {
		logg.Warn(ctx, "request.error")
	}

	WriteJSON(w, meta.HTTPStatus, types.ErrorEnvelope{Error: body})
}

func exposeMessage(code pkgerrors.Code, meta pkgerrors.Metadata) bool {
	return meta.HTTPStatus < http.StatusInternalServerError || code == pkgerrors.CodeGateway
}
