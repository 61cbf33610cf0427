package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"portmap-ai/pkg/metrics"
	"portmap-ai/pkg/model"
	"portmap-ai/pkg/store"
)

const maxBodyBytes = 1 << 20

// Options carries the optional collaborators of the orchestrator routes.
type Options struct {
	Auth    *Authenticator
	Hub     *EventHub
	Metrics *metrics.Orchestrator
	Logger  *slog.Logger
}

// RegisterRoutes wires the orchestrator HTTP handlers on the provided mux.
func RegisterRoutes(mux *http.ServeMux, st store.NodeStore, opts Options) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	authn := opts.Auth
	m := opts.Metrics
	route := func(name string, h http.HandlerFunc) http.HandlerFunc {
		if m == nil {
			return h
		}
		return func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
			h(sw, r)
			m.RequestsTotal.WithLabelValues(name, strconv.Itoa(sw.code)).Inc()
		}
	}

	mux.HandleFunc("/healthz", route("healthz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
	}))

	mux.HandleFunc("/register", route("register", func(w http.ResponseWriter, r *http.Request) {
		if !authn.Check(r) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var req RegisterRequest
		if err := decodeRequest(w, r, &req, "node_id", "role", "address"); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		node, err := st.Register(req.NodeID, req.Role, req.Address, req.Meta)
		if err != nil {
			logger.Error("register failed", "node_id", req.NodeID, "err", err)
			writeError(w, http.StatusInternalServerError, "failed to register node")
			return
		}
		logger.Info("node registered", "node_id", node.NodeID, "role", node.Role, "address", node.Address)
		if m != nil {
			m.RegistrationsTotal.Inc()
		}
		opts.Hub.Publish(model.RegistryEvent{Type: EventRegister, NodeID: node.NodeID, Status: node.Status})
		writeJSON(w, http.StatusCreated, NodeResponse{Node: node})
	}))

	mux.HandleFunc("/heartbeat", route("heartbeat", func(w http.ResponseWriter, r *http.Request) {
		if !authn.Check(r) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var req HeartbeatRequest
		if err := decodeRequest(w, r, &req, "node_id", "status"); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		node, cmds, err := st.Heartbeat(req.NodeID, req.Status, req.Meta)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown node "+req.NodeID)
			return
		}
		if err != nil {
			logger.Error("heartbeat failed", "node_id", req.NodeID, "err", err)
			writeError(w, http.StatusInternalServerError, "failed to record heartbeat")
			return
		}
		if len(cmds) > 0 {
			logger.Info("delivering commands", "node_id", node.NodeID, "count", len(cmds))
		}
		if m != nil {
			m.HeartbeatsTotal.Inc()
			m.CommandsDrained.Add(float64(len(cmds)))
		}
		opts.Hub.Publish(model.RegistryEvent{Type: EventHeartbeat, NodeID: node.NodeID, Status: node.Status, Drained: len(cmds)})
		writeJSON(w, http.StatusOK, HeartbeatResponse{Node: node, Commands: cmds})
	}))

	mux.HandleFunc("/commands", route("commands", func(w http.ResponseWriter, r *http.Request) {
		if !authn.Check(r) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var req CommandRequest
		if err := decodeRequest(w, r, &req, "node_id", "command"); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.Command.Type() == "" {
			writeError(w, http.StatusBadRequest, "command.type is required")
			return
		}
		if err := st.Enqueue(req.NodeID, req.Command); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "unknown node "+req.NodeID)
				return
			}
			logger.Error("enqueue failed", "node_id", req.NodeID, "err", err)
			writeError(w, http.StatusInternalServerError, "failed to queue command")
			return
		}
		logger.Info("command queued", "node_id", req.NodeID, "type", req.Command.Type())
		if m != nil {
			m.CommandsQueued.Inc()
		}
		opts.Hub.Publish(model.RegistryEvent{Type: EventEnqueue, NodeID: req.NodeID, Command: req.Command.Type()})
		writeJSON(w, http.StatusAccepted, StatusResponse{Status: "queued"})
	}))

	mux.HandleFunc("/nodes", route("nodes", func(w http.ResponseWriter, r *http.Request) {
		if !authn.Check(r) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, NodesResponse{Nodes: st.ListNodes()})
	}))

	mux.HandleFunc("/nodes/", route("node", func(w http.ResponseWriter, r *http.Request) {
		if !authn.Check(r) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/nodes/"), "/")
		if id == "" {
			writeError(w, http.StatusBadRequest, "missing fields: node_id")
			return
		}
		node, ok := st.GetNode(id)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown node "+id)
			return
		}
		writeJSON(w, http.StatusOK, NodeResponse{Node: node})
	}))

	if m != nil {
		metricsHandler := m.Handler()
		mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
			if !authn.Check(r) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			metricsHandler.ServeHTTP(w, r)
		})
	}

	if opts.Hub != nil {
		mux.HandleFunc("/ws/events", func(w http.ResponseWriter, r *http.Request) {
			if !authn.Check(r) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			opts.Hub.HandleEvents(w, r)
		})
	}
}

// decodeRequest parses a JSON object body into v after checking that every required
// key is present and non-null. node_id must also be non-empty.
func decodeRequest(w http.ResponseWriter, r *http.Request, v interface{}, required ...string) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrValidation, err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return fmt.Errorf("%w: invalid payload", ErrValidation)
	}
	var missing []string
	for _, k := range required {
		val, ok := raw[k]
		if !ok || string(val) == "null" || (k == "node_id" && string(val) == `""`) {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing fields: %s", ErrValidation, strings.Join(missing, ", "))
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: invalid payload: %v", ErrValidation, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("failed to write response", "err", err)
	}
}

// writeError strips the ErrValidation prefix so clients see only the detail.
func writeError(w http.ResponseWriter, status int, msg string) {
	msg = strings.TrimPrefix(msg, ErrValidation.Error()+": ")
	writeJSON(w, status, ErrorResponse{Error: msg})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (s *statusWriter) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}
