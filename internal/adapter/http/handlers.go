package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/couchcryptid/fits-map-service/internal/domain"
	"github.com/couchcryptid/fits-map-service/internal/session"
)

func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	sess := s.sessions.Create()
	writeJSON(w, http.StatusCreated, map[string]string{"id": sess.ID()})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTypes(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	types, err := sess.Types(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types)
}

func (s *Server) handleSites(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	q := r.URL.Query()
	fc, err := sess.LoadSites(r.Context(), domain.SiteQuery{
		TypeID: q.Get("typeID"),
		Within: q.Get("within"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fc)
}

type viewportRequest struct {
	Center *[2]float64 `json:"center"`
	Bounds *[4]float64 `json:"bounds"`
}

func (s *Server) handleViewport(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req viewportRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: decode viewport: %v", session.ErrInvalidArgument, err))
		return
	}
	if req.Center == nil || req.Bounds == nil {
		s.writeError(w, r, fmt.Errorf("%w: viewport needs center and bounds", session.ErrInvalidArgument))
		return
	}

	vp, err := domain.NewViewport(*req.Center, *req.Bounds)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", session.ErrInvalidArgument, err))
		return
	}
	res, err := sess.MoveViewport(vp)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	q := r.URL.Query()
	chart, err := sess.Chart(r.Context(), session.ChartQuery{
		TypeID:  q.Get("typeID"),
		SiteIDs: splitList(q.Get("siteID")),
		Name:    q.Get("name"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chart)
}

func (s *Server) handleSiteChart(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	q := r.URL.Query()
	days := 0
	if v := q.Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: invalid days %q", session.ErrInvalidArgument, v))
			return
		}
		days = n
	}

	chart, err := sess.SiteChart(r.Context(), domain.SeriesQuery{
		TypeID:    q.Get("typeID"),
		SiteID:    q.Get("siteID"),
		NetworkID: q.Get("networkID"),
		Days:      days,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chart)
}

// splitList splits a comma separated parameter, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
