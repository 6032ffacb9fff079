// Package controlapi implements the HTTP front consuming the C8 IPC
// plane and the C6 repository, exposing the control surface named in
// §6: status/health, lifecycle commands, test-mode toggles, and a
// paginated view over stored messages. Grounded on the teacher's
// chi-based aggregation_api.go.
package controlapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/deltran/swift-processor/internal/ipc"
	"github.com/deltran/swift-processor/internal/repository"
)

// API holds the dependencies the control surface reads from: the IPC
// channel to the processor and the repository for message lookups.
type API struct {
	channel                     *ipc.Channel
	repo                        repository.Repository
	statusUpdateIntervalSeconds int
}

// New builds an API bound to channel and repo.
func New(channel *ipc.Channel, repo repository.Repository, statusUpdateIntervalSeconds int) *API {
	return &API{channel: channel, repo: repo, statusUpdateIntervalSeconds: statusUpdateIntervalSeconds}
}

// RegisterRoutes registers every route named in §6.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Get("/status", a.GetStatus)
	r.Get("/health", a.GetHealth)
	r.Post("/start", a.postCommand(ipc.CommandStart))
	r.Post("/stop", a.postCommand(ipc.CommandStop))
	r.Post("/restart", a.postCommand(ipc.CommandRestart))
	r.Post("/test-mode/enable", a.postCommand(ipc.CommandEnableTestMode))
	r.Post("/test-mode/disable", a.postCommand(ipc.CommandDisableTestMode))
	r.Get("/test-mode", a.GetTestMode)
	r.Get("/messages", a.ListMessages)
	r.Get("/messages/{id}", a.GetMessage)
	r.Get("/messages/search", a.SearchMessages)
}

// GetStatus proxies the processor's last-published ProcessStatus.
func (a *API) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := a.channel.ReadStatus()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "status unavailable: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type healthResponse struct {
	IsHealthy    bool      `json:"isHealthy"`
	Status       string    `json:"status"`
	CheckedAt    time.Time `json:"checkedAt"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}

// GetHealth reports liveness per §4.8: status.json exists and was
// updated within 3x the publish interval.
func (a *API) GetHealth(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	status, err := a.channel.ReadStatus()
	if err != nil {
		writeJSON(w, http.StatusOK, healthResponse{
			IsHealthy:    false,
			Status:       "Unknown",
			CheckedAt:    now,
			ErrorMessage: err.Error(),
		})
		return
	}

	interval := time.Duration(a.statusUpdateIntervalSeconds) * time.Second
	healthy := ipc.IsLive(status, interval, now)
	writeJSON(w, http.StatusOK, healthResponse{
		IsHealthy: healthy,
		Status:    status.Status,
		CheckedAt: now,
	})
}

// postCommand returns a handler that writes the given command to the
// IPC channel for the processor to pick up on its next poll.
func (a *API) postCommand(cmd ipc.Command) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := a.channel.WriteCommand(ipc.ProcessCommand{Command: cmd, IssuedAt: time.Now().UTC()})
		if err != nil {
			log.Error().Err(err).Str("command", string(cmd)).Msg("failed to write command")
			writeError(w, http.StatusInternalServerError, "failed to issue command")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"command": string(cmd)})
	}
}

// GetTestMode reports the processor's last-known test-mode flag, read
// from the published ProcessStatus.
func (a *API) GetTestMode(w http.ResponseWriter, r *http.Request) {
	status, err := a.channel.ReadStatus()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "status unavailable: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"enabled":     status.TestModeEnabled,
		"retrievedAt": time.Now().UTC(),
	})
}

type messageListResponse struct {
	Messages []*repository.ProcessedMessage `json:"messages"`
	Total    int                             `json:"total"`
	Skip     int                             `json:"skip"`
	Take     int                             `json:"take"`
}

// ListMessages serves GET /messages?skip=&take=&status=&fromDate=&toDate=,
// with take bounded to [1,100] and skip >= 0 (§6).
func (a *API) ListMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := repository.Filter{
		Status:      repository.Status(q.Get("status")),
		MessageType: q.Get("messageType"),
	}
	if v := q.Get("fromDate"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.FromDate = t
		}
	}
	if v := q.Get("toDate"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.ToDate = t
		}
	}

	filter.Take = clamp(atoiDefault(q.Get("take"), 20), 1, 100)
	filter.Skip = maxInt(atoiDefault(q.Get("skip"), 0), 0)

	ctx := r.Context()
	messages, err := a.repo.Query(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to query messages")
		writeError(w, http.StatusInternalServerError, "failed to query messages")
		return
	}
	total, err := a.repo.Count(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to count messages")
		writeError(w, http.StatusInternalServerError, "failed to count messages")
		return
	}

	writeJSON(w, http.StatusOK, messageListResponse{
		Messages: messages,
		Total:    total,
		Skip:     filter.Skip,
		Take:     filter.Take,
	})
}

// GetMessage serves GET /messages/{id}, 404 on unknown id (§6).
func (a *API) GetMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	msg, err := a.repo.GetById(r.Context(), id)
	if err == repository.ErrNotFound {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("failed to fetch message")
		writeError(w, http.StatusInternalServerError, "failed to fetch message")
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// SearchMessages serves GET /messages/search?reference=, a non-empty
// reference is required (§6). Search fetches the 100 most recently
// processed records and returns those whose metadata transactionReference
// matches; older records are not searched.
func (a *API) SearchMessages(w http.ResponseWriter, r *http.Request) {
	reference := r.URL.Query().Get("reference")
	if reference == "" {
		writeError(w, http.StatusBadRequest, "reference is required")
		return
	}

	messages, err := a.repo.Query(r.Context(), repository.Filter{Take: 100})
	if err != nil {
		log.Error().Err(err).Msg("failed to search messages")
		writeError(w, http.StatusInternalServerError, "failed to search messages")
		return
	}

	var matches []*repository.ProcessedMessage
	for _, msg := range messages {
		if msg.Metadata["transactionReference"] == reference {
			matches = append(matches, msg)
		}
	}
	writeJSON(w, http.StatusOK, matches)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
