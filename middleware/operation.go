package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// maxGraphQLBody bounds how much of a request body is buffered to find the
// operation names.
const maxGraphQLBody = 1 << 20

// OperationResolver names every operation a request invokes.
type OperationResolver func(r *http.Request) []string

type graphQLRequest struct {
	Query         string `json:"query"`
	OperationName string `json:"operationName"`
}

// GraphQLOperations resolves every top-level field a GraphQL request selects,
// in document order and without duplicates. These are the names the gate's
// allow-list is keyed by, e.g. "login" or "getUserDetail". Fragments are
// expanded, aliases resolve to the field name, and a batched request yields
// the fields of every entry. A document that does not parse yields no names,
// which the gate treats as protected. Requests that are not GraphQL resolve
// to the last path segment. The body is restored for the next handler.
func GraphQLOperations(r *http.Request) []string {
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		if doc := q.Get("query"); doc != "" {
			return documentFields(doc, q.Get("operationName"))
		}
		return pathOperations(r)
	}
	if r.Body == nil || !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return pathOperations(r)
	}

	rest := r.Body
	body, err := io.ReadAll(io.LimitReader(rest, maxGraphQLBody))
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(body), rest), rest}
	if err != nil {
		return pathOperations(r)
	}

	reqs, ok := decodeGraphQL(body)
	if !ok {
		return pathOperations(r)
	}
	var fields []string
	for _, req := range reqs {
		for _, f := range documentFields(req.Query, req.OperationName) {
			fields = appendUnique(fields, f)
		}
	}
	return fields
}

// GraphQLOperation returns the first name [GraphQLOperations] resolves, or "".
// Resolvers use it to dispatch; the gate always checks every name.
func GraphQLOperation(r *http.Request) string {
	if names := GraphQLOperations(r); len(names) > 0 {
		return names[0]
	}
	return ""
}

// decodeGraphQL accepts a single request object or a batch array.
func decodeGraphQL(body []byte) ([]graphQLRequest, bool) {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var batch []graphQLRequest
		if err := json.Unmarshal(trimmed, &batch); err != nil || len(batch) == 0 {
			return nil, false
		}
		return batch, true
	}
	var req graphQLRequest
	if err := json.Unmarshal(trimmed, &req); err != nil || req.Query == "" {
		return nil, false
	}
	return []graphQLRequest{req}, true
}

// documentFields parses doc and collects the top-level fields of the
// operation named operationName. When no operation matches, the fields of
// every operation in the document are collected.
func documentFields(doc, operationName string) []string {
	parsed, err := parser.ParseQuery(&ast.Source{Input: doc})
	if err != nil || parsed == nil {
		return nil
	}

	ops := parsed.Operations
	for _, op := range parsed.Operations {
		if operationName != "" && op.Name == operationName {
			ops = ast.OperationList{op}
			break
		}
	}

	var fields []string
	seen := make(map[string]bool)
	for _, op := range ops {
		collectFields(op.SelectionSet, parsed.Fragments, seen, &fields)
	}
	return fields
}

func collectFields(set ast.SelectionSet, fragments ast.FragmentDefinitionList, seen map[string]bool, out *[]string) {
	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			*out = appendUnique(*out, s.Name)
		case *ast.InlineFragment:
			collectFields(s.SelectionSet, fragments, seen, out)
		case *ast.FragmentSpread:
			if seen[s.Name] {
				continue
			}
			seen[s.Name] = true
			for _, def := range fragments {
				if def.Name == s.Name {
					collectFields(def.SelectionSet, fragments, seen, out)
				}
			}
		}
	}
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}

func pathOperations(r *http.Request) []string {
	if op := pathOperation(r); op != "" {
		return []string{op}
	}
	return nil
}

func pathOperation(r *http.Request) string {
	p := strings.TrimSuffix(r.URL.Path, "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}
