package http

import (
	"errors"
	"io"
	"net/http"
	"net/url"

	"billbuddy/internal/core"
	"billbuddy/internal/extract"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// Amounts are decoded with decimal so clients may send 12.5 or "12.50".
type equalEntryRequest struct {
	Item       string          `json:"item"`
	Amount     decimal.Decimal `json:"amount"`
	PaidBy     string          `json:"paidBy"`
	SharedWith []string        `json:"sharedWith"`
}

type costRequest struct {
	Person string          `json:"person"`
	Item   string          `json:"item"`
	Cost   decimal.Decimal `json:"cost"`
}

type itemizedEntryRequest struct {
	Item          string          `json:"item"`
	Amount        decimal.Decimal `json:"amount"`
	PaidBy        string          `json:"paidBy"`
	ItemizedCosts []costRequest   `json:"itemizedCosts"`
}

func (req equalEntryRequest) entry() core.EqualSplitEntry {
	return core.EqualSplitEntry{
		Label:      sanitizeInput(req.Item),
		Amount:     req.Amount.InexactFloat64(),
		Payer:      sanitizeInput(req.PaidBy),
		SharedWith: sanitizeNames(req.SharedWith),
	}
}

func (req itemizedEntryRequest) entry() core.ItemizedSplitEntry {
	costs := make([]core.ItemizedCost, 0, len(req.ItemizedCosts))
	for _, c := range req.ItemizedCosts {
		costs = append(costs, core.ItemizedCost{
			Person: sanitizeInput(c.Person),
			Label:  sanitizeInput(c.Item),
			Cost:   c.Cost.InexactFloat64(),
		})
	}
	return core.ItemizedSplitEntry{
		Label:  sanitizeInput(req.Item),
		Amount: req.Amount.InexactFloat64(),
		Payer:  sanitizeInput(req.PaidBy),
		Costs:  costs,
	}
}

type entriesResponse struct {
	Equal    []core.EqualSplitEntry    `json:"equal"`
	Itemized []core.ItemizedSplitEntry `json:"itemized"`
	Revision int64                     `json:"revision"`
}

type settlementView struct {
	core.Settlement
	Display string `json:"display"`
}

type reportResponse struct {
	Revision    int64            `json:"revision"`
	Ledger      *core.Ledger     `json:"ledger"`
	Balances    []core.Balance   `json:"balances"`
	Settlements []settlementView `json:"settlements"`
	Summary     core.Summary     `json:"summary"`
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Entries(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entriesResponse{Equal: st.Equal, Itemized: st.Itemized, Revision: st.Revision})
}

func (s *Server) handleCreateEqual(w http.ResponseWriter, r *http.Request) {
	var req equalEntryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	e, err := s.svc.AddEqual(r.Context(), req.entry())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleCreateItemized(w http.ResponseWriter, r *http.Request) {
	var req itemizedEntryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	e, err := s.svc.AddItemized(r.Context(), req.entry())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleDeleteEqual(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteEqual(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteItemized(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteItemized(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddSharer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.svc.AddSharer(r.Context(), chi.URLParam(r, "id"), sanitizeInput(req.Name)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveSharer(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if r.URL.RawPath != "" {
		// chi matched against the escaped path, so the segment is still escaped.
		unescaped, err := url.PathUnescape(name)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid name")
			return
		}
		name = unescaped
	}

	// Names are stored sanitized; match them the same way.
	if err := s.svc.RemoveSharer(r.Context(), chi.URLParam(r, "id"), sanitizeInput(name)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleParticipants(w http.ResponseWriter, r *http.Request) {
	people, err := s.svc.Participants(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"participants": people})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report, rev, err := s.svc.Report(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	views := make([]settlementView, 0, len(report.Settlements))
	for _, st := range report.Settlements {
		views = append(views, settlementView{Settlement: st, Display: core.FormatAmount(st.Amount)})
	}
	writeJSON(w, http.StatusOK, reportResponse{
		Revision:    rev,
		Ledger:      report.Ledger,
		Balances:    report.Balances,
		Settlements: views,
		Summary:     report.Summary,
	})
}

// handleRecording extracts a draft from an uploaded recording. The draft is
// returned for confirmation and never stored here.
func (s *Server) handleRecording(w http.ResponseWriter, r *http.Request) {
	if !s.svc.ExtractionEnabled() {
		writeError(w, http.StatusServiceUnavailable, "audio extraction is not configured")
		return
	}

	mode, err := extract.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if r.ContentLength > s.maxAudioBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "recording too large")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxAudioBytes)
	if err := r.ParseMultipartForm(s.maxAudioBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "recording too large")
			return
		}
		writeError(w, http.StatusBadRequest, "expected multipart form with an audio field")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing audio field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read recording")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty recording")
		return
	}

	draft, err := s.svc.Extract(r.Context(), extract.Audio{Data: data, MimeType: header.Header.Get("Content-Type")}, mode)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}
