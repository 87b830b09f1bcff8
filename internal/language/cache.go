package language

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

// QueryCache keeps validated documents keyed by query text so repeated
// operations skip parsing and validation. Documents are shared between
// requests and must be treated as read-only.
type QueryCache struct {
	schema *ast.Schema
	docs   *lru.Cache[string, *QueryDocument]
}

// NewQueryCache returns a cache holding up to size documents validated
// against sch. A size of 0 or less disables caching.
func NewQueryCache(sch *ast.Schema, size int) (*QueryCache, error) {
	c := &QueryCache{schema: sch}
	if size <= 0 {
		return c, nil
	}
	docs, err := lru.New[string, *QueryDocument](size)
	if err != nil {
		return nil, err
	}
	c.docs = docs
	return c, nil
}

// Load returns the validated document for query. Invalid documents are not
// cached.
func (c *QueryCache) Load(query string) (*QueryDocument, ErrorList) {
	if c.docs != nil {
		if doc, ok := c.docs.Get(query); ok {
			return doc, nil
		}
	}
	doc, errs := LoadQuery(c.schema, query)
	if len(errs) > 0 {
		return nil, errs
	}
	if c.docs != nil {
		c.docs.Add(query, doc)
	}
	return doc, nil
}

// Len reports the number of cached documents.
func (c *QueryCache) Len() int {
	if c.docs == nil {
		return 0
	}
	return c.docs.Len()
}
