package remote

type Operator string

const (
	OpEq      Operator = "="
	OpNeq     Operator = "<>"
	OpLike    Operator = "LIKE"
	OpIn      Operator = "IN"
	OpIsNull  Operator = "IS NULL"
	OpNotNull Operator = "IS NOT NULL"
	OpLte     Operator = "<="
	OpGt      Operator = ">"
)

// Filter is a single predicate on a column. Filters in a Query are ANDed.
type Filter struct {
	Column   string
	Operator Operator
	Value    any
}

func Eq(column string, v any) Filter  { return Filter{Column: column, Operator: OpEq, Value: v} }
func Neq(column string, v any) Filter { return Filter{Column: column, Operator: OpNeq, Value: v} }
func Lte(column string, v any) Filter { return Filter{Column: column, Operator: OpLte, Value: v} }
func Gt(column string, v any) Filter  { return Filter{Column: column, Operator: OpGt, Value: v} }
func IsNull(column string) Filter     { return Filter{Column: column, Operator: OpIsNull} }
func NotNull(column string) Filter    { return Filter{Column: column, Operator: OpNotNull} }

// Like matches column case-insensitively against a pattern using % and _
// wildcards.
func Like(column, pattern string) Filter {
	return Filter{Column: column, Operator: OpLike, Value: pattern}
}

// In matches rows whose column equals any of values. An empty list matches
// nothing.
func In[T any](column string, values []T) Filter {
	vs := make([]any, len(values))
	for i, v := range values {
		vs[i] = v
	}
	return Filter{Column: column, Operator: OpIn, Value: vs}
}

type Order struct {
	Column string
	Desc   bool
}

func Asc(column string) Order  { return Order{Column: column} }
func Desc(column string) Order { return Order{Column: column, Desc: true} }

type Query struct {
	Filters []Filter
	Order   []Order
	Limit   int
	Offset  int
}

// Where starts a query from filters.
func Where(filters ...Filter) Query {
	return Query{Filters: filters}
}

func (q Query) OrderBy(orders ...Order) Query {
	q.Order = append(append([]Order(nil), q.Order...), orders...)
	return q
}

func (q Query) Page(limit, offset int) Query {
	q.Limit = limit
	q.Offset = offset
	return q
}
