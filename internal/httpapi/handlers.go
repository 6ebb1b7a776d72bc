package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"photobox/internal/box"
)

// Multipart parts above this size spill to temporary files.
const multipartMemory = 8 << 20

const (
	healthBody     = "App Server OK\n"
	addUserMessage = "add user successfully"
)

type handler struct {
	svc            Submitter
	logger         box.Logger
	maxUploadBytes int64
}

type boxResponse struct {
	Message     string `json:"message"`
	ZipFileName string `json:"zipFileName"`
	TokenID     string `json:"tokenId"`
}

type userRequest struct {
	AccountAddress string `json:"blockchainAccountAddress"`
	Nickname       string `json:"nickname"`
}

type userResponse struct {
	Message        string `json:"message"`
	AccountAddress string `json:"blockchainAccountAddress"`
	Nickname       string `json:"nickname"`
	TokenID        string `json:"tokenId"`
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, healthBody)
}

func (h *handler) submitBox(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		h.fail(w, invalid(fmt.Errorf("parsing form: %w", err)))
		return
	}
	defer r.MultipartForm.RemoveAll()

	sub := &box.Submission{
		AccountAddress: r.FormValue("blockchainAccountAddress"),
		Nickname:       r.FormValue("nickname"),
		Comment:        r.FormValue("comment"),
	}

	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		// Left nil; the pipeline rejects it before touching any resource.
	case err != nil:
		h.fail(w, invalid(fmt.Errorf("reading file: %w", err)))
		return
	default:
		defer file.Close()
		sub.Upload = &box.Upload{Name: header.Filename, Content: file}
	}

	res, err := h.svc.Submit(r.Context(), sub)
	if err != nil {
		h.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, boxResponse{
		Message:     res.Message,
		ZipFileName: res.ArchiveName,
		TokenID:     res.TokenID,
	})
}

// addUser acknowledges a registration. Token issuance happens elsewhere, so
// tokenId is always empty.
func (h *handler) addUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		dec := json.NewDecoder(io.LimitReader(r.Body, h.maxUploadBytes))
		if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeText(w, http.StatusBadRequest, "Invalid request: "+err.Error())
			return
		}
	default:
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
		if err := r.ParseForm(); err != nil {
			writeText(w, http.StatusBadRequest, "Invalid request: "+err.Error())
			return
		}
		req.AccountAddress = r.FormValue("blockchainAccountAddress")
		req.Nickname = r.FormValue("nickname")
	}

	writeJSON(w, http.StatusOK, userResponse{
		Message:        addUserMessage,
		AccountAddress: req.AccountAddress,
		Nickname:       req.Nickname,
		TokenID:        "",
	})
}

// fail maps a pipeline failure to its status code and caller-facing message.
func (h *handler) fail(w http.ResponseWriter, err error) {
	var perr *box.PipelineError
	if !errors.As(err, &perr) {
		h.logger.Error("unclassified submission error", "error", err)
		writeText(w, http.StatusInternalServerError, "Internal error")
		return
	}

	status := http.StatusInternalServerError
	if errors.Is(perr.Kind, box.ErrValidation) {
		status = http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(perr.Err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
	}
	writeText(w, status, perr.Message())
}

// invalid classifies a request that never reached the pipeline.
func invalid(err error) error {
	return &box.PipelineError{Stage: box.StateReceived, Kind: box.ErrValidation, Err: err}
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; an encode error has nowhere to go.
	_ = json.NewEncoder(w).Encode(v)
}
