package registryapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/c360studio/agentbus/buserr"
	"github.com/c360studio/agentbus/task"
)

// maxRequestBodySize limits POST body sizes to prevent DoS.
const maxRequestBodySize = 1 << 20 // 1 MB

// RegisterHTTPHandlers registers the catalog handlers under the given
// prefix (e.g. "api"):
//
//	POST <prefix>/processors
//	GET  <prefix>/processors
//	GET  <prefix>/processors/{id}
func (c *Component) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	prefix = normalisePrefix(prefix)
	mux.HandleFunc(prefix+"processors", c.handleProcessors)
	mux.HandleFunc(prefix+"processors/", c.handleProcessorByID(prefix))
}

func normalisePrefix(prefix string) string {
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}
	return prefix
}

func (c *Component) handleProcessors(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		c.handleRegister(w, r)
	case http.MethodGet:
		c.handleList(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (c *Component) handleRegister(w http.ResponseWriter, r *http.Request) {
	var p task.Processor
	body := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(body).Decode(&p); err != nil {
		buserr.WriteJSON(w, buserr.Wrap(buserr.KindValidation, "invalid request body", err), c.config.Development)
		return
	}

	if err := c.RegisterProcessor(r.Context(), &p); err != nil {
		buserr.WriteJSON(w, err, c.config.Development)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (c *Component) handleList(w http.ResponseWriter, r *http.Request) {
	procs, err := c.ListProcessors(r.Context())
	if err != nil {
		buserr.WriteJSON(w, err, c.config.Development)
		return
	}
	if procs == nil {
		procs = []*task.Processor{}
	}
	writeJSON(w, http.StatusOK, procs)
}

func (c *Component) handleProcessorByID(prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id := strings.TrimPrefix(r.URL.Path, prefix+"processors/")
		if id == "" || strings.Contains(id, "/") {
			http.NotFound(w, r)
			return
		}

		p, err := c.GetProcessor(r.Context(), id)
		if err != nil {
			buserr.WriteJSON(w, err, c.config.Development)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
