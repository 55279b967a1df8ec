package cli

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mchmarny/credscore/pkg/features"
	"github.com/mchmarny/credscore/pkg/scoring"
	"github.com/mchmarny/credscore/pkg/table"
	"github.com/shopspring/decimal"
)

var templateFuncs = template.FuncMap{
	"join": strings.Join,
}

// formValues holds the form inputs as entered.
type formValues struct {
	Income          string
	Credit          string
	Annuity         string
	FamilyMembers   string
	AgeYears        string
	EmploymentYears string
}

func defaultFormValues() formValues {
	a := features.DefaultApplicant()
	f := formValues{
		Income:        decimal.NewFromFloat(a.Income).String(),
		Credit:        decimal.NewFromFloat(a.Credit).String(),
		Annuity:       decimal.NewFromFloat(a.Annuity).String(),
		FamilyMembers: decimal.NewFromFloat(a.FamilyMembers).String(),
		AgeYears:      decimal.NewFromFloat(a.AgeYears).String(),
	}
	if a.EmploymentYears != nil {
		f.EmploymentYears = decimal.NewFromFloat(*a.EmploymentYears).String()
	}
	return f
}

// batchView is the rendered outcome of an uploaded file.
type batchView struct {
	Rows     int
	Columns  int
	Header   []string
	Preview  [][]string
	Tiers    map[string]int
	Download template.URL
	FileName string
}

type missingView struct {
	Total int
	Shown []string
	More  int
}

type page struct {
	Version string
	Commit  string
	Date    string
	Form    formValues
	Limits  map[string]int
	Result  *scoring.Result
	Batch   *batchView
	Missing *missingView
	Error   string
}

func newPage() *page {
	return &page{
		Version: version,
		Commit:  commit,
		Date:    date,
		Form:    defaultFormValues(),
		Limits: map[string]int{
			"family":     features.MaxFamilyMembers,
			"age_min":    features.MinAgeYears,
			"age_max":    features.MaxAgeYears,
			"employment": features.MaxEmploymentYears,
		},
	}
}

func render(w http.ResponseWriter, tmpl *template.Template, status int, p *page) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "home", p); err != nil {
		slog.Error("template render failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Error("failed to write page", "error", err)
	}
}

func faviconHandler(w http.ResponseWriter, r *http.Request) {
	file, err := embedFS.ReadFile("assets/img/favicon.svg")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	if _, err = w.Write(file); err != nil {
		slog.Error("failed to write favicon", "error", err)
	}
}

func homeViewHandler(tmpl *template.Template, _ *scoring.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render(w, tmpl, http.StatusOK, newPage())
	}
}

func predictViewHandler(tmpl *template.Template, svc *scoring.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := newPage()

		if err := r.ParseForm(); err != nil {
			p.Error = "invalid form submission"
			render(w, tmpl, http.StatusBadRequest, p)
			return
		}

		p.Form = formValues{
			Income:          r.PostFormValue("income"),
			Credit:          r.PostFormValue("credit"),
			Annuity:         r.PostFormValue("annuity"),
			FamilyMembers:   r.PostFormValue("family_members"),
			AgeYears:        r.PostFormValue("age_years"),
			EmploymentYears: r.PostFormValue("employment_years"),
		}

		a, err := p.Form.applicant()
		if err != nil {
			p.Error = err.Error()
			render(w, tmpl, http.StatusBadRequest, p)
			return
		}

		res, err := svc.ScoreApplicant(r.Context(), a)
		if err != nil {
			status := errorStatus(err)
			p.Error = err.Error()
			if status >= http.StatusInternalServerError {
				slog.Error("failed to score applicant", "error", err, "request_id", getRequestID(r.Context()))
				p.Error = "failed to score applicant"
			}
			render(w, tmpl, status, p)
			return
		}

		p.Result = res
		render(w, tmpl, http.StatusOK, p)
	}
}

func batchViewHandler(tmpl *template.Template, svc *scoring.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := newPage()

		t, err := readUpload(w, r)
		if err != nil {
			p.Error = err.Error()
			render(w, tmpl, http.StatusBadRequest, p)
			return
		}

		res, err := svc.ScoreTable(r.Context(), t)
		if err != nil {
			var mc *features.MissingColumnsError
			if errors.As(err, &mc) {
				shown := mc.Shown()
				p.Missing = &missingView{Total: len(mc.Missing), Shown: shown, More: len(mc.Missing) - len(shown)}
				render(w, tmpl, http.StatusUnprocessableEntity, p)
				return
			}
			slog.Error("failed to score batch", "error", err, "request_id", getRequestID(r.Context()))
			p.Error = "failed to score batch"
			render(w, tmpl, errorStatus(err), p)
			return
		}

		bv, err := newBatchView(res)
		if err != nil {
			slog.Error("failed to encode batch result", "error", err)
			p.Error = "failed to encode batch result"
			render(w, tmpl, http.StatusInternalServerError, p)
			return
		}

		p.Batch = bv
		render(w, tmpl, http.StatusOK, p)
	}
}

func newBatchView(res *scoring.BatchResult) (*batchView, error) {
	var buf bytes.Buffer
	if err := table.WriteCSV(&buf, res.Table, true); err != nil {
		return nil, err
	}

	head := res.Table.Head(batchPreviewRows)
	preview := make([][]string, head.Len())
	for i := range preview {
		row := head.Row(i)
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = v.Text()
		}
		preview[i] = cells
	}

	return &batchView{
		Rows:     res.Rows,
		Columns:  res.Columns,
		Header:   head.Columns(),
		Preview:  preview,
		Tiers:    tierCounts(res.Probabilities),
		Download: template.URL("data:text/csv;charset=utf-8;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())),
		FileName: batchOutputDefault,
	}, nil
}

// applicant parses the form values. Employment years may be left empty.
func (f formValues) applicant() (features.Applicant, error) {
	var a features.Applicant
	fields := []struct {
		name string
		in   string
		dst  *float64
	}{
		{"income", f.Income, &a.Income},
		{"credit", f.Credit, &a.Credit},
		{"annuity", f.Annuity, &a.Annuity},
		{"family_members", f.FamilyMembers, &a.FamilyMembers},
		{"age_years", f.AgeYears, &a.AgeYears},
	}
	for _, fd := range fields {
		v, err := parseAmount(fd.in)
		if err != nil {
			return a, fmt.Errorf("invalid %s: %w", fd.name, err)
		}
		*fd.dst = v
	}

	if strings.TrimSpace(f.EmploymentYears) != "" {
		v, err := parseAmount(f.EmploymentYears)
		if err != nil {
			return a, fmt.Errorf("invalid employment_years: %w", err)
		}
		a.EmploymentYears = &v
	}
	return a, nil
}

// parseAmount reads a decimal number, ignoring thousands separators.
func parseAmount(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, errors.New("value required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return d.InexactFloat64(), nil
}
