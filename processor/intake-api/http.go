package intakeapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/c360studio/agentbus/buserr"
	"github.com/c360studio/agentbus/dialogue"
)

// maxRequestBodySize limits POST body sizes to prevent DoS.
const maxRequestBodySize = 1 << 20 // 1 MB

// startRequest is the POST /dialogue/start body.
type startRequest struct {
	RequesterID string   `json:"requesterId"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	Budget      float64  `json:"budget,omitempty"`
	Deadline    string   `json:"deadline,omitempty"`
}

// continueRequest is the POST /dialogue/:id/continue body.
type continueRequest struct {
	UserResponse string `json:"userResponse"`
}

// dialogueResponse is the wire shape of a dialogue state. Tool call
// arguments stay internal; the transcript itself is returned in full.
type dialogueResponse struct {
	DialogueID string         `json:"dialogueId"`
	Stage      dialogue.Stage `json:"stage"`
	Message    string         `json:"message"`
	History    []turnView     `json:"history"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

type turnView struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// RegisterHTTPHandlers registers the intake handlers under the given
// prefix (e.g. "api"):
//
//	POST <prefix>/dialogue/start
//	POST <prefix>/dialogue/{id}/continue
func (c *Component) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	prefix = normalisePrefix(prefix)
	mux.HandleFunc(prefix+"dialogue/start", c.handleStart)
	mux.HandleFunc(prefix+"dialogue/", c.handleDialogue(prefix))
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

func (c *Component) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req startRequest
	if err := decodeBody(w, r, &req); err != nil {
		buserr.WriteJSON(w, err, c.config.Development)
		return
	}

	details, err := req.details()
	if err != nil {
		buserr.WriteJSON(w, err, c.config.Development)
		return
	}

	st, err := c.deps.Engine.StartDialogue(r.Context(), req.RequesterID, req.Description, details)
	if err != nil {
		buserr.WriteJSON(w, err, c.config.Development)
		return
	}
	dialoguesStarted.Inc()

	writeJSON(w, http.StatusOK, toResponse(st))
}

// handleDialogue routes POST /dialogue/{id}/continue.
func (c *Component) handleDialogue(prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, prefix+"dialogue/")
		id, action, ok := strings.Cut(rest, "/")
		if !ok || action != "continue" || id == "" {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		c.handleContinue(w, r, id)
	}
}

func (c *Component) handleContinue(w http.ResponseWriter, r *http.Request, dialogueID string) {
	var req continueRequest
	if err := decodeBody(w, r, &req); err != nil {
		buserr.WriteJSON(w, err, c.config.Development)
		return
	}

	st, err := c.deps.Engine.ProcessUserResponse(r.Context(), dialogueID, req.UserResponse)
	if err != nil {
		buserr.WriteJSON(w, err, c.config.Development)
		return
	}

	// A completed dialogue is finalised in the background; the response
	// returns first and the client observes progress via status polling.
	if st.Stage == dialogue.StageCompleted {
		c.scheduleFinalize(st)
	}

	writeJSON(w, http.StatusOK, toResponse(st))
}

// details projects the optional start fields into the parameter bag,
// validating the constrained ones.
func (r *startRequest) details() (map[string]any, error) {
	details := map[string]any{}
	if len(r.Tags) > 0 {
		details["initial_tags"] = r.Tags
	}
	if r.Budget != 0 {
		if r.Budget < 0 {
			return nil, buserr.New(buserr.KindValidation, "budget must be positive")
		}
		details["budget"] = r.Budget
	}
	if r.Deadline != "" {
		deadline, err := time.Parse(time.RFC3339, r.Deadline)
		if err != nil {
			return nil, buserr.New(buserr.KindValidation, "deadline must be RFC 3339")
		}
		if !deadline.After(time.Now()) {
			return nil, buserr.New(buserr.KindValidation, "deadline must be in the future")
		}
		details["deadline"] = r.Deadline
	}
	return details, nil
}

func toResponse(st *dialogue.State) dialogueResponse {
	resp := dialogueResponse{
		DialogueID: st.DialogueID,
		Stage:      st.Stage,
		Message:    st.LastAssistantContent(),
		UpdatedAt:  st.UpdatedAt,
	}
	for _, turn := range st.History {
		resp.History = append(resp.History, turnView{
			Role:      turn.Role,
			Content:   turn.Content,
			Timestamp: turn.Timestamp,
		})
	}
	return resp
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) error {
	body := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return buserr.Wrap(buserr.KindValidation, "invalid request body", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
