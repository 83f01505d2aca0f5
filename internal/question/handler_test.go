package question

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

type mockQuestionService struct {
	addFn    func(ctx context.Context, examID int64, in QuestionInput) (*Question, error)
	getFn    func(ctx context.Context, questionID int64) (*Question, error)
	updateFn func(ctx context.Context, questionID int64, in QuestionInput) (*Question, error)
	deleteFn func(ctx context.Context, questionID int64) error
	importFn func(ctx context.Context, examID int64, r io.Reader) (*ImportReport, error)
}

func (m *mockQuestionService) AddQuestion(ctx context.Context, examID int64, in QuestionInput) (*Question, error) {
	if m.addFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.addFn(ctx, examID, in)
}

func (m *mockQuestionService) GetQuestion(ctx context.Context, questionID int64) (*Question, error) {
	if m.getFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getFn(ctx, questionID)
}

func (m *mockQuestionService) UpdateQuestion(ctx context.Context, questionID int64, in QuestionInput) (*Question, error) {
	if m.updateFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.updateFn(ctx, questionID, in)
}

func (m *mockQuestionService) DeleteQuestion(ctx context.Context, questionID int64) error {
	if m.deleteFn == nil {
		return errors.New("not implemented")
	}
	return m.deleteFn(ctx, questionID)
}

func (m *mockQuestionService) ImportExcel(ctx context.Context, examID int64, r io.Reader) (*ImportReport, error) {
	if m.importFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.importFn(ctx, examID, r)
}

func withChiParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestCreateQuestionHandler(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		svcErr error
		status int
	}{
		{name: "created", body: `{"question_text":"q","question_type":"short_answer","correct_answer":"a"}`, status: http.StatusCreated},
		{name: "missing text", body: `{"question_type":"short_answer"}`, status: http.StatusUnprocessableEntity},
		{name: "negative points", body: `{"question_text":"q","question_type":"short_answer","points":-2}`, status: http.StatusUnprocessableEntity},
		{name: "blank option", body: `{"question_text":"q","question_type":"multiple_choice","options":[{"option_text":""}]}`, status: http.StatusUnprocessableEntity},
		{name: "service rejects", body: `{"question_text":"q","question_type":"essay"}`, svcErr: ErrInvalidInput, status: http.StatusBadRequest},
		{name: "exam missing", body: `{"question_text":"q","question_type":"short_answer"}`, svcErr: ErrExamNotFound, status: http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var gotExamID int64
			h := NewHandler(&mockQuestionService{
				addFn: func(ctx context.Context, examID int64, in QuestionInput) (*Question, error) {
					gotExamID = examID
					if tc.svcErr != nil {
						return nil, tc.svcErr
					}
					return &Question{QuestionID: 1, ExamID: examID}, nil
				},
			}, nil)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/exams/6/questions", bytes.NewBufferString(tc.body))
			req = withChiParam(req, "id", "6")
			w := httptest.NewRecorder()
			h.Create(w, req)

			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d body=%s", tc.status, w.Code, w.Body.String())
			}
			if tc.status == http.StatusCreated && gotExamID != 6 {
				t.Fatalf("expected exam 6, got %d", gotExamID)
			}
		})
	}
}

func TestDeleteQuestionHandlerNotFound(t *testing.T) {
	h := NewHandler(&mockQuestionService{
		deleteFn: func(ctx context.Context, questionID int64) error { return ErrQuestionNotFound },
	}, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/questions/4", nil)
	req = withChiParam(req, "id", "4")
	w := httptest.NewRecorder()
	h.Delete(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestImportHandler(t *testing.T) {
	var gotBytes []byte
	h := NewHandler(&mockQuestionService{
		importFn: func(ctx context.Context, examID int64, r io.Reader) (*ImportReport, error) {
			gotBytes, _ = io.ReadAll(r)
			return &ImportReport{BatchID: "b1", ExamID: examID, TotalRows: 1, SuccessRows: 1}, nil
		},
	}, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "questions.xlsx")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write([]byte("workbook-bytes"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/exams/2/questions/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req = withChiParam(req, "id", "2")
	w := httptest.NewRecorder()
	h.Import(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	if string(gotBytes) != "workbook-bytes" {
		t.Fatalf("expected upload to reach the service, got %q", gotBytes)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/exams/2/questions/import", bytes.NewBufferString("plain"))
	req = withChiParam(req, "id", "2")
	w = httptest.NewRecorder()
	h.Import(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without multipart body, got %d", w.Code)
	}
}

func TestTemplateHandler(t *testing.T) {
	h := NewHandler(&mockQuestionService{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/questions/import-template", nil)
	w := httptest.NewRecorder()
	h.Template(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != xlsxContentType {
		t.Fatalf("unexpected content type %q", got)
	}
	if w.Body.Len() == 0 {
		t.Fatalf("expected workbook bytes")
	}
}
