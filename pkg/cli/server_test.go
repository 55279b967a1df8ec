package cli

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/mchmarny/credscore/pkg/scoring"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const batchCSV = "TARGET,SK_ID_CURR,NAME_CONTRACT_TYPE,AMT_INCOME_TOTAL,AMT_CREDIT,AMT_ANNUITY,CNT_FAM_MEMBERS,DAYS_BIRTH,DEBT_INCOME_RATIO,PAYMENT_RATE,EXTRA\n" +
	"1,10,Cash loans,1,2,3,4,5,6,7,x\n" +
	"0,11,Revolving loans,1,2,3,4,5,6,7,y\n"

func testRouter(t *testing.T, p float64) (http.Handler, *fakeScorer) {
	t.Helper()
	f := &fakeScorer{p: p}
	ref := testService(t, f)
	reg := prometheus.NewRegistry()
	svc, err := scoring.NewService(f, ref.Template(), scoring.WithMetrics(scoring.NewMetrics(reg)))
	require.NoError(t, err)
	return makeRouter(svc, reg), f
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHomeView(t *testing.T) {
	h, _ := testRouter(t, 0.1)

	w := do(t, h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `name="income" value="150000"`)
	assert.Contains(t, w.Body.String(), `name="employment_years" value="5"`)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestPredictView(t *testing.T) {
	h, _ := testRouter(t, 0.35)

	form := url.Values{
		"income":         {"150,000"},
		"credit":         {"500000.00"},
		"annuity":        {"25000"},
		"family_members": {"3"},
		"age_years":      {"35"},
	}
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := do(t, h, req)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "35.00%")
	assert.Contains(t, body, "tier-medium")
	assert.Contains(t, body, "additional checks may be required")
}

func TestPredictView_Invalid(t *testing.T) {
	h, f := testRouter(t, 0.35)

	form := url.Values{
		"income":         {"abc"},
		"credit":         {"1"},
		"annuity":        {"1"},
		"family_members": {"1"},
		"age_years":      {"35"},
	}
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := do(t, h, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid income")

	form.Set("income", "1")
	form.Set("age_years", "95")
	req = httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w = do(t, h, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "age_years")
	assert.Equal(t, 0, f.calls)
}

func multipartBody(t *testing.T, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(uploadFieldName, "applicants.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestBatchView(t *testing.T) {
	h, _ := testRouter(t, 0.6)

	body, ct := multipartBody(t, batchCSV)
	req := httptest.NewRequest(http.MethodPost, "/batch", body)
	req.Header.Set("Content-Type", ct)

	w := do(t, h, req)
	require.Equal(t, http.StatusOK, w.Code)
	out := w.Body.String()
	assert.Contains(t, out, "2 rows x 11 columns")
	assert.Contains(t, out, "<th>RISK_PROBA</th>")
	assert.Contains(t, out, "data:text/csv;charset=utf-8;base64,")
	assert.Contains(t, out, `download="predictions_with_risk.csv"`)
	assert.Contains(t, out, "high: 2")
}

func TestBatchView_MissingColumns(t *testing.T) {
	h, f := testRouter(t, 0.6)

	body, ct := multipartBody(t, "SK_ID_CURR\n1\n")
	req := httptest.NewRequest(http.MethodPost, "/batch", body)
	req.Header.Set("Content-Type", ct)

	w := do(t, h, req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "missing 8 required column(s)")
	assert.Equal(t, 0, f.calls)
}

func TestScoreAPI(t *testing.T) {
	h, _ := testRouter(t, 0.1999)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/score", strings.NewReader(
		`{"income": "150000.50", "credit": 500000, "annuity": 25000, "family_members": 3, "age_years": 35, "employment_years": 5}`))
	w := do(t, h, req)
	require.Equal(t, http.StatusOK, w.Code)

	var res map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 0.1999, res["probability"])
	assert.Equal(t, "low", res["tier"])
	assert.Equal(t, "19.99%", res["percent"])
}

func TestScoreAPI_Errors(t *testing.T) {
	h, _ := testRouter(t, 0.5)

	w := do(t, h, httptest.NewRequest(http.MethodPost, "/api/v1/score", strings.NewReader(`{"income":`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, httptest.NewRequest(http.MethodPost, "/api/v1/score", strings.NewReader(`{"salary": 1}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, httptest.NewRequest(http.MethodPost, "/api/v1/score", strings.NewReader(
		`{"income": -1, "credit": 1, "annuity": 1, "family_members": 1, "age_years": 30}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "income")
}

func TestScoreAPI_RequiredFields(t *testing.T) {
	h, f := testRouter(t, 0.35)

	w := do(t, h, httptest.NewRequest(http.MethodPost, "/api/v1/score", strings.NewReader(`{"age_years": 35}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "income is required")

	w = do(t, h, httptest.NewRequest(http.MethodPost, "/api/v1/score", strings.NewReader(
		`{"income": 1, "credit": 1, "annuity": 1, "age_years": 35}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "family_members is required")
	assert.Equal(t, 0, f.calls)

	w = do(t, h, httptest.NewRequest(http.MethodPost, "/api/v1/score", strings.NewReader(
		`{"income": 1, "credit": 1, "annuity": 1, "family_members": 0, "age_years": 35}`)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, f.calls)
}

func TestBatchAPI(t *testing.T) {
	h, _ := testRouter(t, 0.25)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/batch", strings.NewReader(batchCSV))
	req.Header.Set("Content-Type", "text/csv")
	w := do(t, h, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, csvContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), batchOutputDefault)

	out := w.Body.String()
	assert.True(t, strings.HasPrefix(out, "\ufeffSK_ID_CURR,"))
	assert.Contains(t, out, ",RISK_PROBA\n")
	assert.Contains(t, out, ",0.25\n")
	assert.NotContains(t, out, "EXTRA")
}

func TestBatchAPI_IndexColumn(t *testing.T) {
	h, f := testRouter(t, 0.25)

	lines := strings.Split(strings.TrimSpace(batchCSV), "\n")
	for i := range lines {
		idx := ""
		if i > 0 {
			idx = strconv.Itoa(i - 1)
		}
		lines[i] = idx + "," + lines[i]
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/batch", strings.NewReader(strings.Join(lines, "\n")+"\n"))
	w := do(t, h, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "Unnamed")
	assert.Equal(t, 1, f.calls)
}

func TestBatchAPI_Multipart(t *testing.T) {
	h, _ := testRouter(t, 0.25)

	body, ct := multipartBody(t, batchCSV)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/batch", body)
	req.Header.Set("Content-Type", ct)
	w := do(t, h, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBatchAPI_MissingColumns(t *testing.T) {
	h, f := testRouter(t, 0.25)

	w := do(t, h, httptest.NewRequest(http.MethodPost, "/api/v1/batch", strings.NewReader("SK_ID_CURR,AMT_CREDIT\n1,2\n")))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var res missingColumnsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Len(t, res.MissingColumns, 7)
	assert.Contains(t, res.MissingColumns, "PAYMENT_RATE")
	assert.Equal(t, 0, f.calls)

	w = do(t, h, httptest.NewRequest(http.MethodPost, "/api/v1/batch", strings.NewReader("")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFeaturesAPI(t *testing.T) {
	h, _ := testRouter(t, 0.25)

	w := do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/features", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var res struct {
		Label      string             `json:"label"`
		Columns    []string           `json:"columns"`
		Template   map[string]any     `json:"template"`
		Thresholds map[string]float64 `json:"thresholds"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "TARGET", res.Label)
	assert.Len(t, res.Columns, 9)
	assert.Equal(t, "Cash loans", res.Template["NAME_CONTRACT_TYPE"])
	assert.Equal(t, 150000.0, res.Template["AMT_INCOME_TOTAL"])
	assert.Equal(t, 0.5, res.Thresholds["high"])
}

func TestOpsEndpoints(t *testing.T) {
	h, _ := testRouter(t, 0.25)

	w := do(t, h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/score", strings.NewReader(
		`{"income": 1, "credit": 1, "annuity": 1, "family_members": 1, "age_years": 30}`))
	require.Equal(t, http.StatusOK, do(t, h, req).Code)

	w = do(t, h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `credscore_predictions_total{mode="single",tier="medium"} 1`)

	w = do(t, h, httptest.NewRequest(http.MethodGet, "/favicon.ico", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, httptest.NewRequest(http.MethodGet, "/static/assets/css/app.css", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestID_Propagates(t *testing.T) {
	h, _ := testRouter(t, 0.25)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w := do(t, h, req)
	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
}

func TestRecovery(t *testing.T) {
	h := recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := do(t, h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestParseAmount(t *testing.T) {
	v, err := parseAmount(" 1,250.75 ")
	require.NoError(t, err)
	assert.Equal(t, 1250.75, v)

	_, err = parseAmount("")
	assert.Error(t, err)
	_, err = parseAmount("12a")
	assert.Error(t, err)
}
