package scope

import (
	"encoding/json"
	"go/types"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/labpod/golabpod/server"
)

// httpError writes err to w with a status matching its class: configuration
// and validation problems are the client's fault, transport problems are
// the pod's.
func httpError(w http.ResponseWriter, err error) {
	switch ErrorClass(err) {
	case "invalid_channel", "type_mismatch", "range":
		http.Error(w, err.Error(), http.StatusBadRequest)
	case "transport":
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// urlInput pulls the {input} URL parameter and resolves it to an Input.
func urlInput(r *http.Request) (Input, error) {
	return ParseInput(chi.URLParam(r, "input"))
}

// HTTPScope exposes a Scope over HTTP.
type HTTPScope struct {
	// Scope is the session being exposed
	Scope *Scope

	// OnError, when non-nil, observes every taxonomy error written to a
	// client.  The daemon hangs its per-class error counter here.
	OnError func(error)

	route server.RouteTable
}

// NewHTTPScope wraps a Scope in an HTTP interface.
func NewHTTPScope(s *Scope) *HTTPScope {
	h := &HTTPScope{Scope: s}
	rt := server.RouteTable{}
	rt[server.MethodPath{Method: http.MethodGet, Path: "/channel-one-map"}] = h.GetChannelOneMap
	rt[server.MethodPath{Method: http.MethodPost, Path: "/channel-one-map"}] = h.SetChannelOneMap
	rt[server.MethodPath{Method: http.MethodGet, Path: "/resolution"}] = h.GetResolution
	rt[server.MethodPath{Method: http.MethodGet, Path: "/timegap-min"}] = h.GetMinTimegap
	rt[server.MethodPath{Method: http.MethodGet, Path: "/range/{input}"}] = h.GetRange
	rt[server.MethodPath{Method: http.MethodPost, Path: "/range/{input}"}] = h.SetRange
	rt[server.MethodPath{Method: http.MethodGet, Path: "/trigger"}] = h.GetTrigger
	rt[server.MethodPath{Method: http.MethodPost, Path: "/trigger"}] = h.SetTrigger
	rt[server.MethodPath{Method: http.MethodPost, Path: "/trigger/enable"}] = h.EnableTrigger
	rt[server.MethodPath{Method: http.MethodPost, Path: "/trigger/disable"}] = h.DisableTrigger
	rt[server.MethodPath{Method: http.MethodGet, Path: "/voltage/{input}"}] = h.GetVoltage
	rt[server.MethodPath{Method: http.MethodPost, Path: "/capture"}] = h.Capture
	h.route = rt
	return h
}

// RT yields the route table for binding to a router.
func (h *HTTPScope) RT() server.RouteTable {
	return h.route
}

// error writes err to the client and tells OnError about it.
func (h *HTTPScope) error(w http.ResponseWriter, err error) {
	httpError(w, err)
	if h.OnError != nil {
		h.OnError(err)
	}
}

// GetChannelOneMap returns the input bound to capture slot one as
// {"str": "CH1"}.
func (h *HTTPScope) GetChannelOneMap(w http.ResponseWriter, r *http.Request) {
	server.GetString(func() (string, error) {
		return h.Scope.ChannelOneMap().String(), nil
	})(w, r)
}

// SetChannelOneMap rebinds capture slot one to the input named in the body,
// {"str": "CAP"}.
func (h *HTTPScope) SetChannelOneMap(w http.ResponseWriter, r *http.Request) {
	s := server.StrT{}
	err := json.NewDecoder(r.Body).Decode(&s)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	inp, err := ParseInput(s.Str)
	if err != nil {
		h.error(w, err)
		return
	}
	if err := h.Scope.SetChannelOneMap(inp); err != nil {
		h.error(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetResolution returns the sample depth in bits for the channel count in
// the ?channels= query as {"int": 12}.
func (h *HTTPScope) GetResolution(w http.ResponseWriter, r *http.Request) {
	channels, err := strconv.Atoi(r.URL.Query().Get("channels"))
	if err != nil {
		http.Error(w, "channels query parameter must be an integer", http.StatusBadRequest)
		return
	}
	hp := server.HumanPayload{T: types.Int, Int: int(ResolutionFor(channels))}
	hp.EncodeAndRespond(w, r)
}

// GetMinTimegap returns the smallest legal inter-sample interval in µs for
// the ?channels= and ?triggered= query as {"f64": 0.5}.
func (h *HTTPScope) GetMinTimegap(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	channels, err := strconv.Atoi(q.Get("channels"))
	if err != nil {
		http.Error(w, "channels query parameter must be an integer", http.StatusBadRequest)
		return
	}
	triggered := false
	if t := q.Get("triggered"); t != "" {
		triggered, err = strconv.ParseBool(t)
		if err != nil {
			http.Error(w, "triggered query parameter must be a bool", http.StatusBadRequest)
			return
		}
	}
	server.GetFloat(func() (float64, error) {
		return MinTimegap(channels, triggered), nil
	})(w, r)
}

// GetRange returns the full-scale range of the input named in the URL as
// {"f64": 16.5}.
func (h *HTTPScope) GetRange(w http.ResponseWriter, r *http.Request) {
	inp, err := urlInput(r)
	if err != nil {
		h.error(w, err)
		return
	}
	rng, err := h.Scope.Range(inp)
	if err != nil {
		h.error(w, err)
		return
	}
	server.GetFloat(func() (float64, error) { return rng, nil })(w, r)
}

// SetRange selects the smallest range of the input named in the URL that
// covers the ceiling in the body, {"f64": 1.5}, and returns the range
// chosen as {"f64": 1.65}.
func (h *HTTPScope) SetRange(w http.ResponseWriter, r *http.Request) {
	inp, err := urlInput(r)
	if err != nil {
		h.error(w, err)
		return
	}
	f := server.FloatT{}
	err = json.NewDecoder(r.Body).Decode(&f)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rng, err := h.Scope.SelectRange(inp, f.F64)
	if err != nil {
		h.error(w, err)
		return
	}
	server.GetFloat(func() (float64, error) { return rng, nil })(w, r)
}

// GetTrigger returns the trigger configuration as
// {"source": "CH1", "level": 0, "enabled": false}.
func (h *HTTPScope) GetTrigger(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(h.Scope.Trigger())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// SetTrigger points the trigger at the source and level in the body,
// {"source": "CH2", "level": 1.2}, and enables it.
func (h *HTTPScope) SetTrigger(w http.ResponseWriter, r *http.Request) {
	t := struct {
		Source string  `json:"source"`
		Level  float64 `json:"level"`
	}{}
	err := json.NewDecoder(r.Body).Decode(&t)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	inp, err := ParseInput(t.Source)
	if err != nil {
		h.error(w, err)
		return
	}
	if err := h.Scope.ConfigureTrigger(inp, t.Level); err != nil {
		h.error(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// EnableTrigger makes captures wait for a crossing.
func (h *HTTPScope) EnableTrigger(w http.ResponseWriter, r *http.Request) {
	if err := h.Scope.EnableTrigger(); err != nil {
		h.error(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// DisableTrigger makes captures start immediately.
func (h *HTTPScope) DisableTrigger(w http.ResponseWriter, r *http.Request) {
	h.Scope.DisableTrigger()
	w.WriteHeader(http.StatusOK)
}

// GetVoltage takes a single calibrated reading of the input named in the
// URL and returns it as {"f64": 1.207}.
func (h *HTTPScope) GetVoltage(w http.ResponseWriter, r *http.Request) {
	inp, err := urlInput(r)
	if err != nil {
		h.error(w, err)
		return
	}
	v, err := h.Scope.ReadVoltage(inp)
	if err != nil {
		h.error(w, err)
		return
	}
	server.GetFloat(func() (float64, error) { return v, nil })(w, r)
}

// capturePayload is the body of a capture request.
type capturePayload struct {
	// Channels is how many capture slots to sample, 1..4
	Channels int `json:"channels"`

	// Samples is the per-channel sample count
	Samples int `json:"samples"`

	// Timegap is the inter-sample interval in µs
	Timegap float64 `json:"timegap"`

	// Format selects the response encoding: json (default), csv or fits
	Format string `json:"format"`
}

// Capture runs a validated capture and streams the waveform back in the
// requested format.
func (h *HTTPScope) Capture(w http.ResponseWriter, r *http.Request) {
	p := capturePayload{}
	err := json.NewDecoder(r.Body).Decode(&p)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	switch p.Format {
	case "", "json", "csv", "fits":
	default:
		http.Error(w, "format must be one of json, csv, fits", http.StatusBadRequest)
		return
	}
	wf, err := h.Scope.Capture(p.Channels, p.Samples, p.Timegap)
	if err != nil {
		h.error(w, err)
		return
	}
	switch p.Format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		err = wf.EncodeCSV(w)
	case "fits":
		w.Header().Set("Content-Type", "application/fits")
		err = WriteFITS(w, wf)
	default:
		w.Header().Set("Content-Type", "application/json")
		err = json.NewEncoder(w).Encode(wf)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
