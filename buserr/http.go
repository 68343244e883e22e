package buserr

import (
	"encoding/json"
	"errors"
	"net/http"
)

// errorBody is the wire shape every HTTP surface uses for failures.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Context string `json:"context,omitempty"`
}

// WriteJSON maps err to its HTTP status and emits the standard
// {"error":{name,message}} body. The cause chain is exposed in context
// only when development is true.
func WriteJSON(w http.ResponseWriter, err error, development bool) {
	kind := KindOf(err)

	detail := errorDetail{
		Name:    string(kind),
		Message: err.Error(),
	}
	var be *Error
	if errors.As(err, &be) {
		detail.Message = be.Message
		if development && be.Unwrap() != nil {
			detail.Context = be.Unwrap().Error()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(kind))
	_ = json.NewEncoder(w).Encode(errorBody{Error: detail})
}
