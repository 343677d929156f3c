package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"time"

	"github.com/pwannenmacher/ConfReview/internal/service"
)

// maxBodyBytes bounds request bodies; paper content is the largest payload
const maxBodyBytes = 4 << 20

// JSONResponse sends a JSON response and ensures slices are never null
//
// Nil slices are encoded as "[]" instead of "null" so clients can always
// iterate list fields. Always use this function instead of
// json.NewEncoder(w).Encode().
func JSONResponse(w http.ResponseWriter, data interface{}) error {
	return respondWithJSON(w, http.StatusOK, data)
}

func respondWithJSON(w http.ResponseWriter, code int, data interface{}) error {
	normalized := normalizeSlices(data)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(normalized)
}

// errorResponse is the body of every failed request
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	_ = respondWithJSON(w, code, errorResponse{Error: message})
}

// statusForKind maps a workflow failure to its HTTP status
func statusForKind(kind service.ErrorKind) int {
	switch kind {
	case service.ErrorUnauthenticated:
		return http.StatusUnauthorized
	case service.ErrorForbidden:
		return http.StatusForbidden
	case service.ErrorNotFound:
		return http.StatusNotFound
	case service.ErrorConflict:
		return http.StatusConflict
	case service.ErrorInvalidState, service.ErrorInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondWithServiceError writes err using its kind. Internal causes are
// logged, never sent.
func respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := service.KindOf(err)
	message := "internal error"
	if se, ok := service.AsServiceError(err); ok {
		message = se.Message
	}
	if kind == service.ErrorInternal {
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	_ = respondWithJSON(w, statusForKind(kind), errorResponse{Error: message, Kind: string(kind)})
}

// decodeJSON reads a bounded JSON body into dst
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			respondWithError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		case errors.Is(err, io.EOF):
			respondWithError(w, http.StatusBadRequest, ErrMsgEmptyRequestBody)
		default:
			respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		}
		return false
	}
	return true
}

var timeType = reflect.TypeOf(time.Time{})

// normalizeSlices recursively ensures all nil slices become empty slices
func normalizeSlices(data interface{}) interface{} {
	if data == nil {
		return data
	}

	v := reflect.ValueOf(data)

	switch v.Kind() {
	case reflect.Ptr:
		if v.IsNil() || v.Elem().Type() == timeType {
			return data
		}
		elem := v.Elem()
		normalized := normalizeSlices(elem.Interface())

		result := reflect.New(elem.Type())
		result.Elem().Set(reflect.ValueOf(normalized))
		return result.Interface()

	case reflect.Slice:
		if v.IsNil() {
			return reflect.MakeSlice(v.Type(), 0, 0).Interface()
		}
		if v.Type().Elem().Kind() == reflect.Interface {
			return data
		}

		result := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			result.Index(i).Set(reflect.ValueOf(normalizeSlices(v.Index(i).Interface())))
		}
		return result.Interface()

	case reflect.Struct:
		if v.Type() == timeType {
			return data
		}

		result := reflect.New(v.Type()).Elem()
		for i := 0; i < v.NumField(); i++ {
			field := v.Field(i)
			if !v.Type().Field(i).IsExported() {
				continue
			}

			switch field.Kind() {
			case reflect.Slice, reflect.Ptr, reflect.Struct:
				if field.Kind() == reflect.Ptr && field.IsNil() {
					continue
				}
				result.Field(i).Set(reflect.ValueOf(normalizeSlices(field.Interface())))
			default:
				result.Field(i).Set(field)
			}
		}
		return result.Interface()
	}

	return data
}
