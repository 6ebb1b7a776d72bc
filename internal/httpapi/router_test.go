package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"testing"
	"time"

	"photobox/internal/archive"
	"photobox/internal/box"
	"photobox/internal/dispatch"
	"photobox/internal/httpapi"
	"photobox/internal/testutil"
)

type server struct {
	handler http.Handler
	store   box.RecordStore
	area    box.ScratchArea
	outbox  *dispatch.MemoryDispatcher
}

type serverOptions struct {
	store      box.RecordStore
	dispatcher box.Dispatcher
	maxUpload  int64
}

func newServer(t *testing.T, so serverOptions) *server {
	t.Helper()
	clock := testutil.NewStubClock(time.Date(2024, 3, 9, 8, 5, 7, 123*int(time.Millisecond), time.UTC))

	s := &server{
		store:  so.store,
		area:   testutil.NewTestScratchArea(),
		outbox: dispatch.NewMemoryDispatcher(dispatch.Template{Subject: "Test Email"}),
	}
	if s.store == nil {
		s.store = testutil.NewTestStore(t, clock)
	}
	var dispatcher box.Dispatcher = s.outbox
	if so.dispatcher != nil {
		dispatcher = so.dispatcher
	}

	svc := box.NewIntakeService(s.store, s.area, archive.NewZipBuilder(box.NewNopLogger()),
		dispatcher, box.NewNopLogger(), clock, testutil.NewStubIDGenerator())
	s.handler = httpapi.NewRouter(svc, box.NewNopLogger(), so.maxUpload)
	return s
}

type filePart struct {
	name    string
	content string
}

func multipartRequest(t *testing.T, fields map[string]string, file *filePart) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("writing field %s: %v", k, err)
		}
	}
	if file != nil {
		fw, err := mw.CreateFormFile("file", file.name)
		if err != nil {
			t.Fatalf("creating file part: %v", err)
		}
		if _, err := fw.Write([]byte(file.content)); err != nil {
			t.Fatalf("writing file part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/box", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func aliceFields() map[string]string {
	return map[string]string{
		"blockchainAccountAddress": "0xabc",
		"nickname":                 "Alice",
		"comment":                  "hello",
	}
}

func (s *server) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *server) assertScratchEmpty(t *testing.T) {
	t.Helper()
	runs, err := s.area.Runs()
	if err != nil {
		t.Fatalf("Runs() error = %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("scratch area holds runs %v, want none", runs)
	}
}

func (s *server) recordCount(t *testing.T) int {
	t.Helper()
	records, err := s.store.ListRecords(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListRecords() error = %v", err)
	}
	return len(records)
}

func TestSubmitBox_Success(t *testing.T) {
	s := newServer(t, serverOptions{})

	rec := s.do(multipartRequest(t, aliceFields(), &filePart{name: "photo.jpg", content: "jpeg bytes"}))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %q)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body["message"] != "Zip file created and sent via email" {
		t.Errorf("message = %q", body["message"])
	}
	if body["zipFileName"] != "20240309080507123.zip" {
		t.Errorf("zipFileName = %q, want %q", body["zipFileName"], "20240309080507123.zip")
	}
	tokenID, ok := body["tokenId"]
	if !ok || tokenID != "" {
		t.Errorf("tokenId = %q (present %v), want empty string", tokenID, ok)
	}

	msgs := s.outbox.Messages()
	if len(msgs) != 1 {
		t.Fatalf("dispatched %d messages, want 1", len(msgs))
	}
	names, contents := testutil.ReadZip(t, msgs[0].Attachment.Content)
	want := []string{"comment.txt", "hash.txt", "nickname.txt", "photo.jpg"}
	if !slices.Equal(names, want) {
		t.Errorf("archive entries = %v, want %v", names, want)
	}
	if contents["photo.jpg"] != "jpeg bytes" {
		t.Errorf("photo.jpg = %q, want %q", contents["photo.jpg"], "jpeg bytes")
	}
	if want := testutil.SHA256Hex([]byte("0xabcAlicehello")); contents["hash.txt"] != want {
		t.Errorf("hash.txt = %q, want %q", contents["hash.txt"], want)
	}

	if n := s.recordCount(t); n != 1 {
		t.Errorf("records = %d, want 1", n)
	}
	s.assertScratchEmpty(t)
}

func TestSubmitBox_MissingFile(t *testing.T) {
	s := newServer(t, serverOptions{})

	rec := s.do(multipartRequest(t, aliceFields(), nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if !strings.HasPrefix(rec.Body.String(), "Invalid submission: ") {
		t.Errorf("body = %q, want Invalid submission prefix", rec.Body.String())
	}
	if n := s.recordCount(t); n != 0 {
		t.Errorf("records = %d, want 0", n)
	}
	if n := len(s.outbox.Messages()); n != 0 {
		t.Errorf("dispatched %d messages, want 0", n)
	}
	s.assertScratchEmpty(t)
}

func TestSubmitBox_NotMultipart(t *testing.T) {
	s := newServer(t, serverOptions{})

	req := httptest.NewRequest(http.MethodPost, "/api/box", strings.NewReader(`{"nickname":"Alice"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := s.do(req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if !strings.HasPrefix(rec.Body.String(), "Invalid submission: parsing form") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestSubmitBox_BodyTooLarge(t *testing.T) {
	s := newServer(t, serverOptions{maxUpload: 1024})

	rec := s.do(multipartRequest(t, aliceFields(), &filePart{name: "big.jpg", content: strings.Repeat("x", 4096)}))

	if rec.Code != http.StatusRequestEntityTooLarge && rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 413 or 400", rec.Code)
	}
	if n := s.recordCount(t); n != 0 {
		t.Errorf("records = %d, want 0", n)
	}
}

func TestSubmitBox_DatabaseError(t *testing.T) {
	s := newServer(t, serverOptions{
		store: &testutil.FailingRecordStore{Err: errors.New("connection refused")},
	})

	rec := s.do(multipartRequest(t, aliceFields(), &filePart{name: "photo.jpg", content: "jpeg"}))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if got, want := rec.Body.String(), "Database error: connection refused"; got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
	if n := len(s.outbox.Messages()); n != 0 {
		t.Errorf("dispatched %d messages, want 0", n)
	}
	s.assertScratchEmpty(t)
}

func TestSubmitBox_DispatchError(t *testing.T) {
	s := newServer(t, serverOptions{
		dispatcher: &testutil.FailingDispatcher{Err: errors.New("mailbox unavailable")},
	})

	rec := s.do(multipartRequest(t, aliceFields(), &filePart{name: "photo.jpg", content: "jpeg"}))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if got, want := rec.Body.String(), "Failed to send zip file via email: mailbox unavailable"; got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
	if n := s.recordCount(t); n != 1 {
		t.Errorf("records = %d, want 1 (persistence is not rolled back)", n)
	}
	s.assertScratchEmpty(t)
}

func TestHealth(t *testing.T) {
	t.Run("healthy pipeline", func(t *testing.T) {
		s := newServer(t, serverOptions{})
		rec := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		if rec.Body.String() != "App Server OK\n" {
			t.Errorf("body = %q, want %q", rec.Body.String(), "App Server OK\n")
		}
	})

	t.Run("independent of pipeline state", func(t *testing.T) {
		s := newServer(t, serverOptions{
			store: &testutil.FailingRecordStore{Err: errors.New("down")},
		})
		rec := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))

		if rec.Code != http.StatusOK || rec.Body.String() != "App Server OK\n" {
			t.Errorf("got %d %q, want 200 %q", rec.Code, rec.Body.String(), "App Server OK\n")
		}
	})
}

func TestAddUser(t *testing.T) {
	s := newServer(t, serverOptions{})

	decode := func(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
		t.Helper()
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d (body %q)", rec.Code, http.StatusOK, rec.Body.String())
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		return body
	}

	t.Run("json body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/user",
			strings.NewReader(`{"blockchainAccountAddress":"0xabc","nickname":"Alice"}`))
		req.Header.Set("Content-Type", "application/json")

		body := decode(t, s.do(req))
		if body["message"] != "add user successfully" {
			t.Errorf("message = %q", body["message"])
		}
		if body["blockchainAccountAddress"] != "0xabc" || body["nickname"] != "Alice" {
			t.Errorf("body = %v", body)
		}
		if body["tokenId"] != "" {
			t.Errorf("tokenId = %q, want empty", body["tokenId"])
		}
	})

	t.Run("form body", func(t *testing.T) {
		form := url.Values{"blockchainAccountAddress": {"0xdef"}, "nickname": {"Bob"}}
		req := httptest.NewRequest(http.MethodPost, "/api/user", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		body := decode(t, s.do(req))
		if body["blockchainAccountAddress"] != "0xdef" || body["nickname"] != "Bob" {
			t.Errorf("body = %v", body)
		}
	})

	t.Run("empty body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/user", nil)
		req.Header.Set("Content-Type", "application/json")

		body := decode(t, s.do(req))
		if body["nickname"] != "" {
			t.Errorf("nickname = %q, want empty", body["nickname"])
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/user", strings.NewReader(`{"nickname":`))
		req.Header.Set("Content-Type", "application/json")

		if rec := s.do(req); rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})
}

func TestRouter(t *testing.T) {
	s := newServer(t, serverOptions{})

	t.Run("echoes request id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Request-Id", "req-42")

		rec := s.do(req)
		if got := rec.Header().Get("X-Request-Id"); got != "req-42" {
			t.Errorf("X-Request-Id = %q, want %q", got, "req-42")
		}
	})

	t.Run("generates request id", func(t *testing.T) {
		rec := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Header().Get("X-Request-Id") == "" {
			t.Error("X-Request-Id header missing")
		}
	})

	t.Run("unknown route", func(t *testing.T) {
		rec := s.do(httptest.NewRequest(http.MethodGet, "/api/unknown", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		rec := s.do(httptest.NewRequest(http.MethodGet, "/api/box", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
		}
	})
}

type panickingSubmitter struct{}

func (panickingSubmitter) Submit(context.Context, *box.Submission) (*box.Result, error) {
	panic("boom")
}

func TestRouter_RecoversPanics(t *testing.T) {
	h := httpapi.NewRouter(panickingSubmitter{}, box.NewNopLogger(), 0)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("nickname", "Alice")
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/box", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}
