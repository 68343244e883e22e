package brokerapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/c360studio/agentbus/buserr"
	"github.com/c360studio/agentbus/event"
)

// maxRequestBodySize limits POST body sizes to prevent DoS.
const maxRequestBodySize = 1 << 20 // 1 MB

// messageRequest is the POST /messages body.
type messageRequest struct {
	TaskID     string          `json:"taskId"`
	SenderID   string          `json:"senderId"`
	SenderRole string          `json:"senderRole"`
	Content    json.RawMessage `json:"content"`
}

func (r *messageRequest) validate() error {
	switch {
	case r.TaskID == "":
		return buserr.New(buserr.KindValidation, "taskId is required")
	case r.SenderID == "":
		return buserr.New(buserr.KindValidation, "senderId is required")
	case len(r.Content) == 0:
		return buserr.New(buserr.KindValidation, "content is required")
	}
	switch event.SenderRole(r.SenderRole) {
	case event.RoleRequester, event.RoleProcessor:
		return nil
	default:
		return buserr.New(buserr.KindValidation, "senderRole must be requester or processor")
	}
}

// RegisterHTTPHandlers registers the broker handler under the given
// prefix (e.g. "api"):
//
//	POST <prefix>/messages
func (c *Component) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	mux.HandleFunc(normalisePrefix(prefix)+"messages", c.handleMessage)
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

func (c *Component) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req messageRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		buserr.WriteJSON(w, buserr.Wrap(buserr.KindValidation, "invalid request body", err), c.config.Development)
		return
	}
	if err := req.validate(); err != nil {
		buserr.WriteJSON(w, err, c.config.Development)
		return
	}

	var err error
	if event.SenderRole(req.SenderRole) == event.RoleRequester {
		_, err = c.SendMessageToProcessor(r.Context(), req.TaskID, req.SenderID, req.Content)
	} else {
		_, err = c.SendMessageToRequester(r.Context(), req.TaskID, req.SenderID, req.Content)
	}
	if err != nil {
		buserr.WriteJSON(w, err, c.config.Development)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": "Message accepted for delivery"})
}
