package report

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

type mockReportService struct {
	summaryFn func(ctx context.Context, examID int64) (*ExamSummary, error)
	exportFn  func(ctx context.Context, examID int64) (*Export, error)
}

func (m *mockReportService) SummaryByExam(ctx context.Context, examID int64) (*ExamSummary, error) {
	if m.summaryFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.summaryFn(ctx, examID)
}

func (m *mockReportService) ExportExamAnalysis(ctx context.Context, examID int64) (*Export, error) {
	if m.exportFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.exportFn(ctx, examID)
}

func withChiParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestSummaryHandler(t *testing.T) {
	tests := []struct {
		name  string
		param string
		err   error
		want  int
	}{
		{name: "ok", param: "3", want: http.StatusOK},
		{name: "missing exam", param: "3", err: ErrExamNotFound, want: http.StatusNotFound},
		{name: "failure", param: "3", err: errors.New("db down"), want: http.StatusInternalServerError},
		{name: "invalid id", param: "x", want: http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(&mockReportService{
				summaryFn: func(ctx context.Context, examID int64) (*ExamSummary, error) {
					if tc.err != nil {
						return nil, tc.err
					}
					return &ExamSummary{ExamID: examID, Participants: 2}, nil
				},
			}, nil)

			req := withChiParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", tc.param)
			rr := httptest.NewRecorder()
			h.Summary(rr, req)
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestExportAnalysisHandlerStreamsWorkbook(t *testing.T) {
	h := NewHandler(&mockReportService{
		exportFn: func(ctx context.Context, examID int64) (*Export, error) {
			return &Export{FileName: "exam-5-analysis-abcd1234.xlsx", Content: []byte("PK")}, nil
		},
	}, nil)

	req := withChiParam(httptest.NewRequest(http.MethodGet, "/exams/5/analysis.xlsx", nil), "id", "5")
	rr := httptest.NewRecorder()
	h.ExportAnalysis(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Header().Get("Content-Type") != xlsxContentType {
		t.Fatalf("unexpected content type %q", rr.Header().Get("Content-Type"))
	}
	if !strings.Contains(rr.Header().Get("Content-Disposition"), "exam-5-analysis-abcd1234.xlsx") {
		t.Fatalf("unexpected disposition %q", rr.Header().Get("Content-Disposition"))
	}
	if rr.Body.String() != "PK" {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
}
