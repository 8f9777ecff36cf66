package api

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Portal locates the Myfox web portal.
type Portal struct {
	BaseURL   string
	LoginPath string
	// RedirectForbidden is where the portal redirects requests it refuses
	// because the session is gone.
	RedirectForbidden string
	Headers           http.Header
}

func DefaultPortal() Portal {
	return Portal{
		BaseURL:           "https://myfox.me",
		LoginPath:         "/login",
		RedirectForbidden: "/",
		Headers: http.Header{
			"Accept":           {"application/json, text/javascript, text/html, */*"},
			"Accept-Encoding":  {"gzip, deflate"},
			"X-Requested-With": {"XMLHttpRequest"},
		},
	}
}

// Transport sends requests to the portal and turns its quirks into errors:
//
//   - a status >= 400 becomes a [StatusError] with that status
//   - a redirect to Portal.RedirectForbidden becomes a 403
//   - a 200 page titled "Page not found" becomes a 404
//   - a 200 JSON answer with code KO becomes a 400
type Transport struct {
	baseURL   *url.URL
	forbidden *url.URL
	headers   http.Header
	client    *http.Client
}

// NewTransport returns a transport for portal. httpClient is copied; the copy
// keeps its own cookie jar and never follows redirects.
func NewTransport(portal Portal, httpClient *http.Client) (*Transport, error) {
	baseURL, err := url.Parse(portal.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse portal base url: %w", err)
	}
	forbidden, err := baseURL.Parse(portal.RedirectForbidden)
	if err != nil {
		return nil, fmt.Errorf("parse forbidden redirect: %w", err)
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	client := *httpClient
	if client.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		client.Jar = jar
	}
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &Transport{
		baseURL:   baseURL,
		forbidden: forbidden,
		headers:   portal.Headers.Clone(),
		client:    &client,
	}, nil
}

// Cookies returns the cookies the portal has set so far.
func (t *Transport) Cookies() []*http.Cookie {
	return t.client.Jar.Cookies(t.baseURL)
}

// SetCookies restores cookies saved with [Transport.Cookies].
func (t *Transport) SetCookies(cookies []*http.Cookie) {
	t.client.Jar.SetCookies(t.baseURL, cookies)
}

// Do sends req and returns the parsed body, or the body as a string when req
// has no parser.
func (t *Transport) Do(ctx context.Context, req *Request) (any, error) {
	u := t.baseURL.ResolveReference(&url.URL{Path: req.Path})
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	hasPayload := len(req.Payload) > 0 && hasBody(method)
	if hasPayload {
		body = strings.NewReader(req.Payload.Encode())
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range t.headers {
		httpReq.Header[k] = v
	}
	if hasPayload {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	}
	for k, v := range req.Headers {
		httpReq.Header[k] = v
	}
	// Set explicitly, net/http only decompresses transparently when it added
	// the header itself.
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, WithStatus(fmt.Errorf("%s %s: %s", method, req.Path, resp.Status), resp.StatusCode)
	}

	if resp.StatusCode == http.StatusFound && t.isForbiddenRedirect(resp.Header.Get("Location")) {
		return nil, WithStatus(ErrForbiddenRedirect, http.StatusForbidden)
	}

	data, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	if err := falseErrorCode(data); err != nil {
		return nil, err
	}

	if req.Parser == nil {
		return string(data), nil
	}

	result, err := req.Parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, withDefaultStatus(err, http.StatusInternalServerError)
	}
	return result, nil
}

func (t *Transport) isForbiddenRedirect(location string) bool {
	if location == "" {
		return false
	}
	target, err := t.baseURL.Parse(location)
	if err != nil {
		return false
	}
	return target.String() == t.forbidden.String()
}

func hasBody(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
}

func readBody(resp *http.Response) ([]byte, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		r, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, WithStatus(fmt.Errorf("open gzip body: %w", err), http.StatusInternalServerError)
		}
		defer r.Close()
		return readDecoded(r)
	case "deflate":
		// Usually zlib wrapped, but some servers send raw deflate.
		r, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return readDecoded(flate.NewReader(bytes.NewReader(raw)))
		}
		defer r.Close()
		return readDecoded(r)
	default:
		return raw, nil
	}
}

func readDecoded(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, WithStatus(fmt.Errorf("decompress response body: %w", err), http.StatusInternalServerError)
	}
	return data, nil
}

// falseErrorCode detects error pages the portal serves with status 200.
func falseErrorCode(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}

	if trimmed[0] == '<' {
		if strings.Contains(pageTitle(trimmed), "Page not found") {
			return WithStatus(ErrPageNotFound, http.StatusNotFound)
		}
		return nil
	}

	var ko struct {
		Code string          `json:"code"`
		Msg  json.RawMessage `json:"msg"`
	}
	if err := json.Unmarshal(trimmed, &ko); err != nil || ko.Code != "KO" {
		return nil
	}

	if msg := koMessage(ko.Msg); msg != "" {
		return WithStatus(fmt.Errorf("%w: %s", ErrRemoteKO, msg), http.StatusBadRequest)
	}
	return WithStatus(ErrRemoteKO, http.StatusBadRequest)
}

// koMessage extracts the reason of a KO answer. msg is usually a list of
// [text, severity] pairs, sometimes a plain string.
func koMessage(raw json.RawMessage) string {
	var pairs [][]any
	if err := json.Unmarshal(raw, &pairs); err == nil {
		if len(pairs) > 0 && len(pairs[0]) > 0 {
			return fmt.Sprint(pairs[0][0])
		}
		return ""
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	return ""
}
