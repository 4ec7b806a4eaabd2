// Package aiclient talks to the Python AI service. The gateway performs no
// AI work itself: every operation here builds one upstream HTTP request,
// forwards the submission, and shapes the response or failure.
package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"prepmate/internal/intake"
	"prepmate/pkg/domain"
)

const (
	jsonTimeout      = 60 * time.Second
	multipartTimeout = 120 * time.Second
)

var (
	// ErrServiceUnavailable marks transport-level failures reaching the AI
	// service (connection refused, DNS, timeout).
	ErrServiceUnavailable = errors.New("AI service unavailable")
	// ErrIncompleteResponse marks a 2xx upstream reply missing fields the
	// gateway depends on.
	ErrIncompleteResponse = errors.New("AI service returned an incomplete response")
	// ErrGateway marks any other malformed upstream reply.
	ErrGateway = errors.New("AI service request failed")
)

// UpstreamError carries a structured error relayed from the AI service.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("AI service error (status %d): %s", e.Status, e.Message)
}

// Client is an HTTP client for the AI service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a client for the AI service at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// AnalyzeResume forwards a resume/JD submission and returns the analysis.
func (c *Client) AnalyzeResume(p *intake.Payload) (*AnalysisResult, error) {
	raw, err := c.forward("/resume/analyze", p)
	if err != nil {
		return nil, err
	}
	return parseAnalysis(raw)
}

// GenerateQuestions forwards a submission with interview configuration and
// returns the generated question list.
func (c *Client) GenerateQuestions(p *intake.Payload) ([]domain.Question, json.RawMessage, error) {
	raw, err := c.forward("/interview/generate", p)
	if err != nil {
		return nil, nil, err
	}
	questions, err := parseQuestions(raw)
	if err != nil {
		return nil, nil, err
	}
	return questions, raw, nil
}

// AnswerFeedback asks the AI service to grade one answer. The reply body is
// returned verbatim.
func (c *Client) AnswerFeedback(resume, jd, question, answer string) (json.RawMessage, error) {
	return c.postJSON("/answer-feedback", map[string]string{
		"resume_content": resume,
		"jd_content":     jd,
		"question":       question,
		"answer":         answer,
	})
}

// IdealAnswer asks the AI service for a model answer to one question. The
// reply body is returned verbatim.
func (c *Client) IdealAnswer(resume, jd, question string) (json.RawMessage, error) {
	return c.postJSON("/ideal-answer", map[string]string{
		"resume_content": resume,
		"jd_content":     jd,
		"question":       question,
	})
}

// forward sends a normalized submission: multipart when it carries files,
// JSON otherwise. The deadline is detached from the inbound request so a
// client disconnect does not abort in-flight AI work.
func (c *Client) forward(path string, p *intake.Payload) (json.RawMessage, error) {
	if p.Multipart() {
		return c.postMultipart(path, p)
	}
	body := map[string]string{}
	if p.ResumeText != "" {
		body["resume_text"] = p.ResumeText
	}
	if p.JobDescription != "" {
		body["job_description"] = p.JobDescription
	}
	for k, v := range p.Fields {
		body[k] = v
	}
	return c.postJSON(path, body)
}

func (c *Client) postJSON(path string, body any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), jsonTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) postMultipart(path string, p *intake.Payload) (json.RawMessage, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if p.ResumeText != "" {
		if err := writer.WriteField("resume_text", p.ResumeText); err != nil {
			return nil, fmt.Errorf("encode form: %w", err)
		}
	}
	if p.JobDescription != "" {
		if err := writer.WriteField("job_description", p.JobDescription); err != nil {
			return nil, fmt.Errorf("encode form: %w", err)
		}
	}
	for k, v := range p.Fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("encode form: %w", err)
		}
	}
	for _, file := range []*intake.FilePart{p.ResumeFile, p.JDFile} {
		if file == nil {
			continue
		}
		if err := writeFilePart(writer, file); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("encode form: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), multipartTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(req)
}

func writeFilePart(w *multipart.Writer, file *intake.FilePart) error {
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename=%q`, file.Field, file.Filename))
	header.Set("Content-Type", file.ContentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return fmt.Errorf("encode form: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return fmt.Errorf("encode form: %w", err)
	}
	return nil
}

func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrServiceUnavailable, err)
	}
	if resp.StatusCode >= 400 {
		return nil, upstreamError(resp.StatusCode, body)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: non-JSON response", ErrGateway)
	}
	return json.RawMessage(body), nil
}

// upstreamError relays the AI service's own error message and status when the
// body carries one, falling back to a generic gateway failure.
func upstreamError(status int, body []byte) error {
	var parsed struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		msg := parsed.Error
		if msg == "" {
			msg = parsed.Detail
		}
		if msg != "" {
			return &UpstreamError{Status: status, Message: msg}
		}
	}
	return fmt.Errorf("%w: upstream status %d", ErrGateway, status)
}
