package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/accuracy"
	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/infrastructure/mqtt"
	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/measurement"
	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/store"
)

// RecordResponse is one row of GET /records. Accuracy is set when the query
// names an accuracy class.
type RecordResponse struct {
	store.Row
	Accuracy *accuracy.Result `json:"accuracy,omitempty"`
}

// handleListRecords returns the persisted rows matching the query filters.
//
// Query parameters: base_type, wandler_key, folder, phase, mode, level,
// source_file, and class (an accuracy class or "default").
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := store.Filter{
		BaseType:   q.Get("base_type"),
		WandlerKey: q.Get("wandler_key"),
		Folder:     q.Get("folder"),
		Phase:      q.Get("phase"),
		Mode:       measurement.Mode(q.Get("mode")),
		SourceFile: q.Get("source_file"),
	}
	if filter.Mode != "" && filter.Mode != measurement.ModeDeviceRef && filter.Mode != measurement.ModeNominalRef {
		writeBadRequest(w, fmt.Sprintf("mode must be %q or %q", measurement.ModeDeviceRef, measurement.ModeNominalRef))
		return
	}
	if v := q.Get("level"); v != "" {
		level, err := strconv.Atoi(v)
		if err != nil || level < 1 {
			writeBadRequest(w, "level must be a positive integer")
			return
		}
		filter.Level = level
	}

	class, evaluate, err := s.parseClass(q.Get("class"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	rows, err := s.store.Records(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing records failed", "error", err)
		writeInternalError(w, "failed to read store")
		return
	}

	out := make([]RecordResponse, len(rows))
	for i, row := range rows {
		out[i].Row = row
		if evaluate {
			res := accuracy.Evaluate(row.ComparisonRecord, class)
			out[i].Accuracy = &res
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"records": out,
		"count":   len(out),
	})
}

// parseClass interprets the class query parameter. An empty value disables
// evaluation; "default" takes the configured class.
func (s *Server) parseClass(v string) (float64, bool, error) {
	switch v {
	case "":
		return 0, false, nil
	case "default":
		if s.class <= 0 {
			return 0, false, errors.New("no default accuracy class configured")
		}
		return s.class, true, nil
	}

	class, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false, fmt.Errorf("class must be a number, got %q", v)
	}
	if _, err := accuracy.Limits(class); err != nil {
		return 0, false, err
	}
	return class, true, nil
}

// handleListSidecars returns the sidecar fields and the current sidecar of
// every base type.
func (s *Server) handleListSidecars(w http.ResponseWriter, r *http.Request) {
	sidecars, err := s.store.Sidecars(r.Context())
	if err != nil {
		s.logger.Error("listing sidecars failed", "error", err)
		writeInternalError(w, "failed to read store")
		return
	}
	if sidecars == nil {
		sidecars = map[string]store.Sidecar{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"fields":   s.store.Fields(),
		"sidecars": sidecars,
	})
}

// handleEditSidecar applies an operator edit to every row of one source file.
// The body is a JSON object of field name to value.
func (s *Server) handleEditSidecar(w http.ResponseWriter, r *http.Request) {
	sourceFile, err := url.PathUnescape(chi.URLParam(r, "sourceFile"))
	if err != nil || sourceFile == "" {
		writeBadRequest(w, "invalid source file")
		return
	}

	var values store.Sidecar
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(values) == 0 {
		writeBadRequest(w, "at least one field is required")
		return
	}

	n, err := s.store.EditSidecar(r.Context(), sourceFile, values)
	switch {
	case errors.Is(err, store.ErrUnknownField), errors.Is(err, store.ErrInvalidValue):
		writeValidationError(w, err.Error())
		return
	case errors.Is(err, store.ErrNoMatchingRows):
		writeNotFound(w, "no records for source file "+sourceFile)
		return
	case err != nil:
		s.logger.Error("editing sidecar failed", "source_file", sourceFile, "error", err)
		writeInternalError(w, "failed to edit sidecar")
		return
	}

	ev := mqtt.SidecarEditedEvent{
		SourceFile: sourceFile,
		Rows:       n,
		Values:     values,
		Timestamp:  time.Now().UTC(),
	}
	s.logger.Info("sidecar edited", "source_file", sourceFile, "rows", n)
	s.broadcast(ChannelSidecarEdited, ev)
	if s.events != nil && s.events.IsConnected() {
		if err := s.events.PublishSidecarEdited(ev); err != nil {
			s.logger.Warn("publishing sidecar edit failed", "source_file", sourceFile, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"source_file": sourceFile,
		"rows":        n,
	})
}
