package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/nerrad567/g32-bridge/internal/bridges/g32"
	"github.com/nerrad567/g32-bridge/internal/device"
)

// connectionTimeout bounds a connection switch requested over HTTP.
// Disabling waits for the session to close its socket.
const connectionTimeout = 30 * time.Second

// GrillView is the list representation of a grill.
type GrillView struct {
	Serial      string              `json:"serial"`
	Name        string              `json:"name"`
	Nickname    string              `json:"nickname,omitempty"`
	Firmware    string              `json:"firmware,omitempty"`
	Hardware    string              `json:"hardware"`
	State       g32.ConnectionState `json:"state"`
	Enabled     bool                `json:"enabled"`
	Reason      g32.Reason          `json:"reason,omitempty"`
	GasCapacity decimal.Decimal     `json:"gas_capacity_kg"`
	TareWeight  decimal.Decimal     `json:"tare_weight_kg"`
}

// GrillDetail adds diagnostics and the latest telemetry to GrillView.
type GrillDetail struct {
	GrillView
	Static      map[string]any        `json:"static"`
	Diagnostics g32.Diagnostics       `json:"diagnostics"`
	Telemetry   *g32.TelemetryMessage `json:"telemetry,omitempty"`
}

// ConnectionRequest is the body of PUT /grills/{serial}/connection.
type ConnectionRequest struct {
	Enabled *bool `json:"enabled"`
}

func newGrillView(st g32.Status) GrillView {
	g := st.Grill
	return GrillView{
		Serial:      g.Serial,
		Name:        g.DisplayName(),
		Nickname:    g.Nickname,
		Firmware:    g.Firmware,
		Hardware:    g.HardwareDescription(),
		State:       st.State,
		Enabled:     st.Enabled,
		Reason:      st.Reason,
		GasCapacity: g.GasBuddy.GasCapacity,
		TareWeight:  g.GasBuddy.TareWeight,
	}
}

func newGrillDetail(st g32.Status) GrillDetail {
	d := GrillDetail{
		GrillView:   newGrillView(st),
		Static:      st.Grill.StaticSensors(),
		Diagnostics: st.Diagnostics,
	}
	if st.Latest != nil {
		msg := g32.NewTelemetryMessage(st.Grill, st.Latest)
		d.Telemetry = &msg
	}
	return d
}

// handleListGrills returns every managed grill in discovery order.
func (s *Server) handleListGrills(w http.ResponseWriter, _ *http.Request) {
	grills := s.grills.Devices()
	views := make([]GrillView, 0, len(grills))
	for _, g := range grills {
		st, err := s.grills.Status(g.Serial)
		if err != nil {
			continue
		}
		views = append(views, newGrillView(st))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"grills": views,
		"count":  len(views),
	})
}

// handleGetGrill returns one grill with diagnostics and latest telemetry.
func (s *Server) handleGetGrill(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")

	st, err := s.grills.Status(serial)
	if err != nil {
		s.writeGrillError(w, serial, err)
		return
	}

	writeJSON(w, http.StatusOK, newGrillDetail(st))
}

// handleSetConnection enables or disables a grill's relay connection.
// The response is sent after the switch completes.
func (s *Server) handleSetConnection(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")

	if _, err := s.grills.Grill(serial); err != nil {
		s.writeGrillError(w, serial, err)
		return
	}

	on, ok := readEnabled(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), connectionTimeout)
	defer cancel()

	if err := s.grills.Enable(ctx, serial, on); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			writeTimeout(w, "connection change did not complete in time")
			return
		}
		s.writeGrillError(w, serial, err)
		return
	}

	s.logger.Info("grill connection switched via API",
		"serial", serial,
		"enabled", on,
		"request_id", r.Context().Value(ctxKeyRequestID),
	)

	st, err := s.grills.Status(serial)
	if err != nil {
		s.writeGrillError(w, serial, err)
		return
	}
	writeJSON(w, http.StatusOK, newGrillView(st))
}

// handleGlobalDiagnostics returns the account-wide counters.
func (s *Server) handleGlobalDiagnostics(w http.ResponseWriter, _ *http.Request) {
	d, err := s.grills.Diagnostics(g32.GlobalKey)
	if err != nil {
		writeInternalError(w, "reading diagnostics failed")
		return
	}
	writeJSON(w, http.StatusOK, g32.NewDiagnosticsMessage(d, time.Now()))
}

// handleGetDebug returns the debug log.
func (s *Server) handleGetDebug(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.debugMessage())
}

// handleSetDebug switches debug mode and returns the resulting log.
func (s *Server) handleSetDebug(w http.ResponseWriter, r *http.Request) {
	on, ok := readEnabled(w, r)
	if !ok {
		return
	}

	s.grills.SetDebugMode(on)
	s.logger.Info("debug mode switched via API", "enabled", on)

	writeJSON(w, http.StatusOK, s.debugMessage())
}

func (s *Server) debugMessage() g32.DebugLogMessage {
	return g32.NewDebugLogMessage(s.grills.DebugMode(), s.grills.DebugLog(), time.Now())
}

// writeGrillError maps grill service errors to responses.
func (s *Server) writeGrillError(w http.ResponseWriter, serial string, err error) {
	switch {
	case errors.Is(err, g32.ErrUnknownGrill), errors.Is(err, device.ErrGrillNotFound):
		writeNotFound(w, "grill not found: "+serial)
	case errors.Is(err, g32.ErrManagerClosed):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "bridge is shutting down")
	default:
		s.logger.Error("grill request failed", "serial", serial, "error", err)
		writeInternalError(w, "grill request failed")
	}
}

// readEnabled decodes {"enabled": bool} from the request body, writing a
// 400 response and returning false when it is missing or malformed.
func readEnabled(w http.ResponseWriter, r *http.Request) (bool, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "reading request body failed")
		return false, false
	}

	var req ConnectionRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Enabled == nil {
		writeBadRequest(w, `body must be {"enabled": true|false}`)
		return false, false
	}
	return *req.Enabled, true
}
