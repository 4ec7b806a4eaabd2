// Package intake normalizes analysis/interview submissions. A request may
// carry each input slot (resume, job description) as plain text or as an
// uploaded file; the adapter validates uploads and produces one payload with
// a single wire shape for the outbound AI call.
package intake

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	// MaxFileBytes is the per-file upload ceiling.
	MaxFileBytes = 10 << 20

	resumeTextField = "resumeText"
	jdTextField     = "jobDescription"
	resumeFileField = "resume"
	jdFileField     = "jobDescriptionFile"
)

var (
	// ErrUnsupportedMedia is returned for uploads outside the allow-list,
	// or for PDF uploads whose bytes are not actually a PDF.
	ErrUnsupportedMedia = errors.New("unsupported file type")
	// ErrPayloadTooLarge is returned when an upload exceeds MaxFileBytes.
	ErrPayloadTooLarge = errors.New("file too large (max 10MB)")
	// ErrMalformedBody is returned when a request body cannot be parsed as
	// JSON or form data. It maps to a client error, not a server fault.
	ErrMalformedBody = errors.New("malformed request body")
)

var allowedMimeTypes = map[string]struct{}{
	"application/pdf":    {},
	"text/plain":         {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
}

// MissingSlotError names the required slot absent from a submission.
type MissingSlotError struct {
	Slot string
}

func (e *MissingSlotError) Error() string {
	return e.Slot + " (text or file) is required"
}

// FilePart is one uploaded file kept in memory for forwarding.
type FilePart struct {
	Field       string
	Filename    string
	ContentType string
	Data        []byte
}

// Payload is a normalized submission. Exactly one representation per slot is
// populated: file bytes when a file was uploaded (file wins over text when
// both are present), plain text otherwise. Fields carries auxiliary scalar
// configuration to forward alongside the slots.
type Payload struct {
	ResumeText     string
	JobDescription string
	ResumeFile     *FilePart
	JDFile         *FilePart
	Fields         map[string]string
}

// Multipart reports whether the payload must travel as multipart/form-data.
func (p *Payload) Multipart() bool {
	return p.ResumeFile != nil || p.JDFile != nil
}

// JobDescriptionSnapshot is the text persisted with history records: the
// verbatim job description, or a placeholder naming the uploaded file.
func (p *Payload) JobDescriptionSnapshot() string {
	if p.JobDescription != "" {
		return p.JobDescription
	}
	if p.JDFile != nil {
		return "Job from file: " + p.JDFile.Filename
	}
	return ""
}

// Normalize reads a submission from a multipart or JSON request body.
// auxFields names the scalar fields to carry through when present.
func Normalize(r *http.Request, auxFields []string) (Payload, error) {
	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if contentType == "multipart/form-data" {
		return normalizeMultipart(r, auxFields)
	}
	return normalizeJSON(r, auxFields)
}

// normalizeJSON decodes the body as delivered; the server caps its size with
// http.MaxBytesReader, so an oversized body surfaces here as a too-large
// error rather than silently truncated JSON.
func normalizeJSON(r *http.Request, auxFields []string) (Payload, error) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return Payload{}, ErrPayloadTooLarge
		}
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	p := Payload{
		ResumeText:     stringField(body, resumeTextField),
		JobDescription: stringField(body, jdTextField),
		Fields:         map[string]string{},
	}
	for _, name := range auxFields {
		if v := stringField(body, name); v != "" {
			p.Fields[name] = v
		}
	}
	return p, validateSlots(p)
}

func normalizeMultipart(r *http.Request, auxFields []string) (Payload, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return Payload{}, ErrPayloadTooLarge
		}
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	p := Payload{
		ResumeText:     strings.TrimSpace(r.FormValue(resumeTextField)),
		JobDescription: strings.TrimSpace(r.FormValue(jdTextField)),
		Fields:         map[string]string{},
	}
	for _, name := range auxFields {
		if values, ok := r.MultipartForm.Value[name]; ok && len(values) > 0 {
			// Repeated fields (question types) collapse to one comma list.
			joined := strings.Join(values, ", ")
			if joined = strings.TrimSpace(joined); joined != "" {
				p.Fields[name] = joined
			}
		}
	}

	resumeFile, err := readFilePart(r, resumeFileField)
	if err != nil {
		return Payload{}, err
	}
	jdFile, err := readFilePart(r, jdFileField)
	if err != nil {
		return Payload{}, err
	}
	// File wins over text for a slot when both are present.
	if resumeFile != nil {
		p.ResumeFile = resumeFile
		p.ResumeText = ""
	}
	if jdFile != nil {
		p.JDFile = jdFile
		p.JobDescription = ""
	}
	return p, validateSlots(p)
}

func validateSlots(p Payload) error {
	if p.ResumeText == "" && p.ResumeFile == nil {
		return &MissingSlotError{Slot: "resume"}
	}
	if p.JobDescription == "" && p.JDFile == nil {
		return &MissingSlotError{Slot: "job description"}
	}
	return nil
}

func readFilePart(r *http.Request, field string) (*FilePart, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s upload: %w", field, err)
	}
	defer file.Close()

	if header.Size > MaxFileBytes {
		return nil, ErrPayloadTooLarge
	}
	contentType, _, _ := mime.ParseMediaType(header.Header.Get("Content-Type"))
	if _, ok := allowedMimeTypes[contentType]; !ok {
		return nil, ErrUnsupportedMedia
	}
	data, err := io.ReadAll(io.LimitReader(file, MaxFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s upload: %w", field, err)
	}
	if len(data) > MaxFileBytes {
		return nil, ErrPayloadTooLarge
	}
	if contentType == "application/pdf" {
		if err := sniffPDF(data); err != nil {
			return nil, err
		}
	}
	return &FilePart{
		Field:       field,
		Filename:    header.Filename,
		ContentType: contentType,
		Data:        data,
	}, nil
}

// sniffPDF rejects uploads labeled application/pdf whose bytes do not parse
// as a PDF, before any upstream forwarding happens.
func sniffPDF(data []byte) error {
	if _, err := pdf.NewReader(bytes.NewReader(data), int64(len(data))); err != nil {
		return ErrUnsupportedMedia
	}
	return nil
}

func stringField(body map[string]any, key string) string {
	if body == nil {
		return ""
	}
	if v, ok := body[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
