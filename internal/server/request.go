package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	envelope "github.com/hanpama/graphserve/internal/envelope"
	executor "github.com/hanpama/graphserve/internal/executor"
	language "github.com/hanpama/graphserve/internal/language"
)

// Request is one GraphQL operation as sent by a client.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`

	// readOnly marks operations received over GET, which may not mutate.
	readOnly bool
}

// Response is the result of one operation.
type Response = executor.ExecutionResult

const errBodyTooLargeMessage = "body too large"

// ParseRequest reads a single or batched GraphQL request from r. GET reads
// the query string; POST accepts application/json (an object is a single
// request, an array a batch) and application/graphql (the body is the
// query). maxBody limits the body size; 0 means unlimited.
func ParseRequest(r *http.Request, maxBody int64) (envelope.Envelope[Request], *language.Error) {
	if r.Method == http.MethodGet {
		q := r.URL.Query().Get("query")
		if q == "" {
			return nil, language.Errorf("missing 'query'")
		}
		var vars map[string]any
		if v := r.URL.Query().Get("variables"); v != "" {
			if err := json.Unmarshal([]byte(v), &vars); err != nil {
				return nil, language.Errorf("invalid 'variables' JSON")
			}
		}
		var ext map[string]any
		if v := r.URL.Query().Get("extensions"); v != "" {
			if err := json.Unmarshal([]byte(v), &ext); err != nil {
				return nil, language.Errorf("invalid 'extensions' JSON")
			}
		}
		return envelope.Single(Request{
			Query:         q,
			OperationName: r.URL.Query().Get("operationName"),
			Variables:     vars,
			Extensions:    ext,
			readOnly:      true,
		}), nil
	}

	mediaType := "application/json"
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return nil, language.Errorf("unsupported Content-Type")
		}
		mediaType = mt
	}
	if mediaType != "application/json" && mediaType != "application/graphql" {
		return nil, language.Errorf("unsupported Content-Type")
	}

	body, gerr := readBody(r, maxBody)
	if gerr != nil {
		return nil, gerr
	}

	if mediaType == "application/graphql" {
		if len(body) == 0 {
			return nil, language.Errorf("missing 'query'")
		}
		return envelope.Single(Request{Query: string(body)}), nil
	}

	reqs, err := envelope.Decode[Request](body)
	if err != nil {
		if errors.Is(err, envelope.ErrEmptyBody) {
			return nil, language.Errorf("missing request body")
		}
		return nil, language.Errorf("invalid JSON")
	}
	perr := envelope.Match(reqs,
		func(req Request) *language.Error {
			if req.Query == "" {
				return language.Errorf("missing 'query'")
			}
			return nil
		},
		func(batch []Request) *language.Error {
			if len(batch) == 0 {
				return language.Errorf("empty batch")
			}
			return nil
		},
	)
	if perr != nil {
		return nil, perr
	}
	return reqs, nil
}

func readBody(r *http.Request, maxBody int64) ([]byte, *language.Error) {
	defer r.Body.Close()
	reader := io.Reader(r.Body)
	if maxBody > 0 {
		reader = io.LimitReader(r.Body, maxBody+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, language.Errorf("failed to read body")
	}
	if maxBody > 0 && int64(len(body)) > maxBody {
		return nil, language.Errorf(errBodyTooLargeMessage)
	}
	return body, nil
}
