package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dokzlo13/padd/internal/discovery"
	"github.com/dokzlo13/padd/internal/notify"
	"github.com/dokzlo13/padd/internal/preset"
	"github.com/dokzlo13/padd/internal/session"
	"github.com/dokzlo13/padd/internal/wled"
)

type statusResponse struct {
	session.Status
	Toast *notify.Toast `json:"toast,omitempty"`
}

type resultResponse struct {
	Found      bool   `json:"found"`
	Address    string `json:"address,omitempty"`
	DeviceName string `json:"deviceName,omitempty"`
	Stage      string `json:"stage,omitempty"`
	Prefix     string `json:"prefix,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Effects    int    `json:"effects"`
	Palettes   int    `json:"palettes"`
	Swept      int    `json:"swept,omitempty"`
	Error      string `json:"error,omitempty"`
}

func newResultResponse(res discovery.Result) resultResponse {
	return resultResponse{
		Found:      res.Found,
		Address:    res.Address,
		DeviceName: res.DeviceName,
		Stage:      string(res.Stage),
		Prefix:     res.Prefix,
		Reason:     res.Reason,
		Effects:    len(res.Capabilities.Effects),
		Palettes:   len(res.Capabilities.Palettes),
		Swept:      res.Sweep.Visited,
	}
}

// decodeBody decodes a JSON body into v. An empty body is accepted when optional.
func decodeBody(r *http.Request, v any, optional bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) && optional {
		return nil
	}
	return err
}

// handleStatus returns the session view and the current toast.
//
// GET /status
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{Status: s.deps.Session.Status()}
	if s.deps.Toasts != nil {
		if t, ok := s.deps.Toasts.Current(); ok {
			resp.Toast = &t
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleConnect connects to the current address, or to host when given.
//
// POST /connect
// Body: {"host": "192.168.1.50"} (optional)
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Host string `json:"host"`
	}
	if err := decodeBody(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res := s.deps.Session.Connect(r.Context(), req.Host)
	writeResult(w, res, http.StatusBadGateway, "could not connect")
}

// handleEditHost sets a new device address and disconnects.
//
// PUT /host
// Body: {"host": "192.168.1.50"}
func (s *Server) handleEditHost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Host string `json:"host"`
	}
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Host) == "" {
		writeError(w, http.StatusBadRequest, "host is required")
		return
	}

	address := s.deps.Session.EditHost(req.Host)
	writeJSON(w, http.StatusOK, map[string]any{"address": address})
}

// handleDiscover runs the staged discovery. A miss is not an error. The search
// is not tied to the request, so a client going away does not cut it short.
//
// POST /discover
func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	res := s.deps.Discovery.Discover(context.WithoutCancel(r.Context()))
	writeResult(w, res, http.StatusOK, "")
}

func writeResult(w http.ResponseWriter, res discovery.Result, missStatus int, missMessage string) {
	if res.Busy {
		writeError(w, http.StatusConflict, "discovery already running")
		return
	}
	resp := newResultResponse(res)
	if res.Found {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp.Error = missMessage
	writeJSON(w, missStatus, resp)
}

// handlePower turns the device on or off.
//
// POST /power
// Body: {"on": true}
func (s *Server) handlePower(w http.ResponseWriter, r *http.Request) {
	var req struct {
		On *bool `json:"on"`
	}
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.On == nil {
		writeError(w, http.StatusBadRequest, "on is required")
		return
	}

	var err error
	if *req.On {
		err = s.deps.Session.TurnOn(r.Context())
	} else {
		err = s.deps.Session.TurnOff(r.Context())
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Session.Status())
}

// handleListPads returns the cached pad list.
//
// GET /pads
func (s *Server) handleListPads(w http.ResponseWriter, _ *http.Request) {
	pads := s.deps.Session.Pads()
	if pads == nil {
		pads = []preset.Pad{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"pads": pads, "count": len(pads)})
}

// handleWritePads replaces the stored preset document.
//
// PUT /pads
// Body: {"pads": [...]}
func (s *Server) handleWritePads(w http.ResponseWriter, r *http.Request) {
	if s.deps.Pads == nil {
		writeError(w, http.StatusServiceUnavailable, "preset storage unavailable")
		return
	}

	var req struct {
		Pads *[]preset.Pad `json:"pads"`
	}
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Pads == nil {
		writeError(w, http.StatusBadRequest, "pads is required")
		return
	}

	if err := s.deps.Pads.Write(r.Context(), *req.Pads); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(*req.Pads)})
}

// handleApplyPad activates a pad by label.
//
// POST /pads/{label}
func (s *Server) handleApplyPad(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "label")
	// chi matches on RawPath when it is set, leaving the param escaped.
	if r.URL.RawPath != "" {
		if unescaped, err := url.PathUnescape(label); err == nil {
			label = unescaped
		}
	}

	if err := s.deps.Session.ApplyPad(r.Context(), label); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Session.Status())
}

type controlsRequest struct {
	Bri    *int      `json:"bri"`
	Sx     *int      `json:"sx"`
	Ix     *int      `json:"ix"`
	Color  *wled.RGB `json:"color"`
	Commit bool      `json:"commit"`
}

type controlsResponse struct {
	Applied  bool           `json:"applied"`
	Reason   string         `json:"reason,omitempty"`
	Controls session.Values `json:"controls"`
}

// handleControls updates continuous controls. Without commit the change is
// coalesced; with commit brightness, speed and intensity are sent at once.
// While the device is off the values are recorded but not sent.
//
// POST /controls
// Body: {"bri": 200, "sx": 128, "ix": 64, "color": "#ff8800", "commit": false}
func (s *Server) handleControls(w http.ResponseWriter, r *http.Request) {
	var req controlsRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Bri == nil && req.Sx == nil && req.Ix == nil && req.Color == nil {
		writeError(w, http.StatusBadRequest, "no control given")
		return
	}

	ctx := r.Context()
	c := s.deps.Session
	var errs []error
	if req.Bri != nil {
		if req.Commit {
			errs = append(errs, c.CommitBrightness(ctx, *req.Bri))
		} else {
			errs = append(errs, c.SetBrightness(*req.Bri))
		}
	}
	if req.Sx != nil {
		if req.Commit {
			errs = append(errs, c.CommitSpeed(ctx, *req.Sx))
		} else {
			errs = append(errs, c.SetSpeed(*req.Sx))
		}
	}
	if req.Ix != nil {
		if req.Commit {
			errs = append(errs, c.CommitIntensity(ctx, *req.Ix))
		} else {
			errs = append(errs, c.SetIntensity(*req.Ix))
		}
	}
	if req.Color != nil {
		errs = append(errs, c.SetColor(*req.Color))
	}

	resp := controlsResponse{Applied: true}
	for _, err := range errs {
		switch {
		case err == nil:
		case errors.Is(err, session.ErrPoweredOff):
			resp.Applied = false
			resp.Reason = err.Error()
		default:
			writeDomainError(w, err)
			return
		}
	}
	resp.Controls = c.Status().Controls
	writeJSON(w, http.StatusOK, resp)
}
