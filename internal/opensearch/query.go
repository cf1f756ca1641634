package opensearch

import (
	"net/url"
	"strconv"
	"strings"
)

const DefaultOrderBy = "d"

type Query struct {
	Text    string
	Offset  int
	OrderBy string
}

// NewQuery clamps a negative offset to zero and fills in the default ordering.
func NewQuery(text string, offset int, orderBy string) Query {
	if offset < 0 {
		offset = 0
	}
	orderBy = strings.TrimSpace(orderBy)
	if orderBy == "" {
		orderBy = DefaultOrderBy
	}
	return Query{Text: text, Offset: offset, OrderBy: orderBy}
}

// ParseQuery reads query, offset and order_by from submitted form values. An
// offset that is not an integer is treated as 0.
func ParseQuery(values url.Values) Query {
	offset, err := strconv.Atoi(strings.TrimSpace(values.Get("offset")))
	if err != nil {
		offset = 0
	}
	return NewQuery(values.Get("query"), offset, values.Get("order_by"))
}

func (q Query) Empty() bool {
	return strings.TrimSpace(q.Text) == ""
}
