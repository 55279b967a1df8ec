package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/mchmarny/credscore/pkg/features"
	"github.com/mchmarny/credscore/pkg/risk"
	"github.com/mchmarny/credscore/pkg/scoring"
	"github.com/mchmarny/credscore/pkg/table"
	"github.com/shopspring/decimal"
)

const (
	maxUploadBytes  = 32 << 20
	uploadFieldName = "file"
	csvContentType  = "text/csv; charset=utf-8"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errorStatus maps a scoring error to an HTTP status.
func errorStatus(err error) int {
	var ve *features.ValidationError
	var mc *features.MissingColumnsError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &mc):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// applicantRequest accepts amounts as JSON numbers or decimal strings.
// Every field except employment_years is required.
type applicantRequest struct {
	Income          *decimal.Decimal `json:"income"`
	Credit          *decimal.Decimal `json:"credit"`
	Annuity         *decimal.Decimal `json:"annuity"`
	FamilyMembers   *decimal.Decimal `json:"family_members"`
	AgeYears        *decimal.Decimal `json:"age_years"`
	EmploymentYears *decimal.Decimal `json:"employment_years,omitempty"`
}

func (r *applicantRequest) applicant() (features.Applicant, error) {
	var a features.Applicant
	fields := []struct {
		name string
		in   *decimal.Decimal
		dst  *float64
	}{
		{"income", r.Income, &a.Income},
		{"credit", r.Credit, &a.Credit},
		{"annuity", r.Annuity, &a.Annuity},
		{"family_members", r.FamilyMembers, &a.FamilyMembers},
		{"age_years", r.AgeYears, &a.AgeYears},
	}
	for _, f := range fields {
		if f.in == nil {
			return a, fmt.Errorf("invalid applicant: %s is required", f.name)
		}
		*f.dst = f.in.InexactFloat64()
	}
	if r.EmploymentYears != nil {
		v := r.EmploymentYears.InexactFloat64()
		a.EmploymentYears = &v
	}
	return a, nil
}

func scoreAPIHandler(svc *scoring.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req applicantRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid applicant: %v", err))
			return
		}

		a, err := req.applicant()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		res, err := svc.ScoreApplicant(r.Context(), a)
		if err != nil {
			status := errorStatus(err)
			if status >= http.StatusInternalServerError {
				slog.Error("failed to score applicant", "error", err, "request_id", getRequestID(r.Context()))
				writeError(w, status, "failed to score applicant")
				return
			}
			writeError(w, status, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

type missingColumnsResponse struct {
	Error          string   `json:"error"`
	MissingColumns []string `json:"missing_columns"`
}

func batchAPIHandler(svc *scoring.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := readUpload(w, r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		res, err := svc.ScoreTable(r.Context(), t)
		if err != nil {
			var mc *features.MissingColumnsError
			if errors.As(err, &mc) {
				writeJSON(w, http.StatusUnprocessableEntity, &missingColumnsResponse{
					Error:          err.Error(),
					MissingColumns: mc.Missing,
				})
				return
			}
			slog.Error("failed to score batch", "error", err, "request_id", getRequestID(r.Context()))
			writeError(w, errorStatus(err), "failed to score batch")
			return
		}

		w.Header().Set("Content-Type", csvContentType)
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": batchOutputDefault}))
		if err := table.WriteCSV(w, res.Table, true); err != nil {
			slog.Error("failed to write batch result", "error", err)
		}
	}
}

type featuresResponse struct {
	*TemplateInfo
	Thresholds map[string]float64 `json:"thresholds"`
}

func featuresAPIHandler(svc *scoring.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, &featuresResponse{
			TemplateInfo: newTemplateInfo(svc.Template()),
			Thresholds: map[string]float64{
				risk.TierMedium.String(): risk.LowThreshold,
				risk.TierHigh.String():   risk.HighThreshold,
			},
		})
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version})
}

// readUpload reads a CSV from a multipart "file" field or the raw body.
func readUpload(w http.ResponseWriter, r *http.Request) (*table.Table, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		f, _, err := r.FormFile(uploadFieldName)
		if err != nil {
			return nil, fmt.Errorf("missing %q upload: %w", uploadFieldName, err)
		}
		defer f.Close()
		src = f
	}

	t, err := table.ReadCSV(src)
	if err != nil {
		return nil, fmt.Errorf("invalid CSV: %w", err)
	}
	return t, nil
}

func tierCounts(probs []float64) map[string]int {
	counts := map[string]int{
		risk.TierLow.String():    0,
		risk.TierMedium.String(): 0,
		risk.TierHigh.String():   0,
	}
	for _, p := range probs {
		counts[risk.FromProbability(p).String()]++
	}
	return counts
}
