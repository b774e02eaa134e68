// Package sqlstore implements remote.Store on a SQLite database.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/vbonduro/homeinv/internal/domain"
	"github.com/vbonduro/homeinv/internal/remote"
)

// tableTypes is the allow-list of tables. Each table's columns are the db
// tags of its row type.
var tableTypes = map[string]any{
	remote.TableUsers:         domain.User{},
	remote.TableItems:         domain.Item{},
	remote.TableCategories:    domain.Category{},
	remote.TableLocations:     domain.Location{},
	remote.TableTags:          domain.Tag{},
	remote.TableItemTags:      domain.ItemTag{},
	remote.TableItemLocations: domain.ItemLocation{},
	remote.TableHistory:       domain.ChangeHistory{},
	remote.TableTemplates:     domain.ItemTemplate{},
	remote.TableNotifications: domain.Notification{},
}

type schema struct {
	table   string
	columns []string
	allowed map[string]bool
}

type Store struct {
	db      *sqlx.DB
	feed    *remote.Feed
	logger  *slog.Logger
	schemas map[string]*schema
}

func New(db *sql.DB, logger *slog.Logger) *Store {
	s := &Store{
		db:      sqlx.NewDb(db, "sqlite"),
		feed:    remote.NewFeed(logger),
		logger:  logger,
		schemas: make(map[string]*schema, len(tableTypes)),
	}
	for table, row := range tableTypes {
		cols := columnsOf(reflect.TypeOf(row))
		sc := &schema{table: table, columns: cols, allowed: make(map[string]bool, len(cols))}
		for _, c := range cols {
			sc.allowed[c] = true
		}
		s.schemas[table] = sc
	}
	return s
}

func (s *Store) Select(ctx context.Context, table string, q remote.Query, dest any) error {
	sc, err := s.schema(table)
	if err != nil {
		return storeErr("select", table, err)
	}
	where, args, err := sc.where(q.Filters)
	if err != nil {
		return storeErr("select", table, err)
	}
	order, err := sc.orderBy(q.Order)
	if err != nil {
		return storeErr("select", table, err)
	}

	query := "SELECT " + strings.Join(sc.columns, ", ") + " FROM " + table + where + order
	switch {
	case q.Limit > 0:
		query += " LIMIT ? OFFSET ?"
		args = append(args, q.Limit, q.Offset)
	case q.Offset > 0:
		query += " LIMIT -1 OFFSET ?"
		args = append(args, q.Offset)
	}

	if err := s.db.SelectContext(ctx, dest, s.db.Rebind(query), args...); err != nil {
		return storeErr("select", table, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, table, id string, dest any) (bool, error) {
	sc, err := s.schema(table)
	if err != nil {
		return false, storeErr("get", table, err)
	}
	query := "SELECT " + strings.Join(sc.columns, ", ") + " FROM " + table + " WHERE id = ? LIMIT 1"
	err = s.db.GetContext(ctx, dest, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storeErr("get", table, err)
	}
	return true, nil
}

func (s *Store) Count(ctx context.Context, table string, filters ...remote.Filter) (int, error) {
	sc, err := s.schema(table)
	if err != nil {
		return 0, storeErr("count", table, err)
	}
	where, args, err := sc.where(filters)
	if err != nil {
		return 0, storeErr("count", table, err)
	}
	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind("SELECT COUNT(*) FROM "+table+where), args...); err != nil {
		return 0, storeErr("count", table, err)
	}
	return n, nil
}

func (s *Store) Insert(ctx context.Context, table string, record any) error {
	sc, err := s.schema(table)
	if err != nil {
		return storeErr("insert", table, err)
	}
	values, err := sc.values(record)
	if err != nil {
		return storeErr("insert", table, err)
	}
	id, _ := values["id"].(string)
	if id == "" {
		return storeErr("insert", table, errors.New("record has no id"))
	}

	cols := make([]string, 0, len(values))
	for c := range values {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (:%s)", table, strings.Join(cols, ", "), strings.Join(cols, ", :"))

	if _, err := s.db.NamedExecContext(ctx, query, values); err != nil {
		return storeErr("insert", table, err)
	}

	s.publish(ctx, table, remote.ChangeInsert, []string{id})
	return nil
}

func (s *Store) Update(ctx context.Context, table string, values remote.Record, filters ...remote.Filter) (int64, error) {
	sc, err := s.schema(table)
	if err != nil {
		return 0, storeErr("update", table, err)
	}
	if len(values) == 0 {
		return 0, storeErr("update", table, errors.New("no values to update"))
	}

	cols := make([]string, 0, len(values))
	for c := range values {
		if !sc.allowed[c] {
			return 0, storeErr("update", table, fmt.Errorf("unknown column %q", c))
		}
		cols = append(cols, c)
	}
	sort.Strings(cols)

	sets := make([]string, 0, len(cols))
	setArgs := make([]any, 0, len(cols))
	for _, c := range cols {
		switch v := values[c].(type) {
		case remote.Increment:
			sets = append(sets, c+" = "+c+" + ?")
			setArgs = append(setArgs, v.By)
		default:
			nv, err := normalize(v)
			if err != nil {
				return 0, storeErr("update", table, err)
			}
			sets = append(sets, c+" = ?")
			setArgs = append(setArgs, nv)
		}
	}

	where, args, err := sc.where(filters)
	if err != nil {
		return 0, storeErr("update", table, err)
	}

	var ids []string
	n, err := s.inTx(ctx, func(tx *sqlx.Tx) (int64, error) {
		if err := tx.SelectContext(ctx, &ids, tx.Rebind("SELECT id FROM "+table+where), args...); err != nil {
			return 0, err
		}
		if len(ids) == 0 {
			return 0, nil
		}
		res, err := tx.ExecContext(ctx, tx.Rebind("UPDATE "+table+" SET "+strings.Join(sets, ", ")+where), append(setArgs, args...)...)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	})
	if err != nil {
		return 0, storeErr("update", table, err)
	}

	if n > 0 {
		s.publish(ctx, table, remote.ChangeUpdate, ids)
	}
	return n, nil
}

func (s *Store) Delete(ctx context.Context, table string, filters ...remote.Filter) (int64, error) {
	sc, err := s.schema(table)
	if err != nil {
		return 0, storeErr("delete", table, err)
	}
	where, args, err := sc.where(filters)
	if err != nil {
		return 0, storeErr("delete", table, err)
	}

	var ids []string
	n, err := s.inTx(ctx, func(tx *sqlx.Tx) (int64, error) {
		if err := tx.SelectContext(ctx, &ids, tx.Rebind("SELECT id FROM "+table+where), args...); err != nil {
			return 0, err
		}
		if len(ids) == 0 {
			return 0, nil
		}
		res, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM "+table+where), args...)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	})
	if err != nil {
		return 0, storeErr("delete", table, err)
	}

	if n > 0 {
		s.publish(ctx, table, remote.ChangeDelete, ids)
	}
	return n, nil
}

func (s *Store) Subscribe(ctx context.Context, tables ...string) (*remote.Subscription, error) {
	for _, t := range tables {
		if _, err := s.schema(t); err != nil {
			return nil, storeErr("subscribe", t, err)
		}
	}
	return s.feed.Subscribe(ctx, tables...), nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) (int64, error)) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	n, err := fn(tx)
	if err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			s.logger.Error("failed to roll back transaction", "error", rerr)
		}
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return n, nil
}

func (s *Store) publish(ctx context.Context, table string, op remote.ChangeOp, ids []string) {
	s.feed.Publish(remote.Change{Table: table, Op: op, IDs: ids, Origin: remote.OriginFrom(ctx)})
}

func (s *Store) schema(table string) (*schema, error) {
	sc, ok := s.schemas[table]
	if !ok {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	return sc, nil
}

func (sc *schema) where(filters []remote.Filter) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	parts := make([]string, 0, len(filters))
	var args []any
	for _, f := range filters {
		if !sc.allowed[f.Column] {
			return "", nil, fmt.Errorf("unknown column %q", f.Column)
		}
		switch f.Operator {
		case remote.OpEq, remote.OpNeq, remote.OpLte, remote.OpGt:
			v, err := normalize(f.Value)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, f.Column+" "+string(f.Operator)+" ?")
			args = append(args, v)
		case remote.OpLike:
			parts = append(parts, "LOWER("+f.Column+") LIKE LOWER(?)")
			args = append(args, f.Value)
		case remote.OpIsNull, remote.OpNotNull:
			parts = append(parts, f.Column+" "+string(f.Operator))
		case remote.OpIn:
			vs, _ := f.Value.([]any)
			if len(vs) == 0 {
				parts = append(parts, "0 = 1")
				continue
			}
			q, inArgs, err := sqlx.In(f.Column+" IN (?)", vs)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, q)
			args = append(args, inArgs...)
		default:
			return "", nil, fmt.Errorf("unsupported operator %q", f.Operator)
		}
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func (sc *schema) orderBy(orders []remote.Order) (string, error) {
	if len(orders) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(orders))
	for _, o := range orders {
		if !sc.allowed[o.Column] {
			return "", fmt.Errorf("unknown column %q", o.Column)
		}
		if o.Desc {
			parts = append(parts, o.Column+" DESC")
		} else {
			parts = append(parts, o.Column+" ASC")
		}
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

// values flattens a Record or a db-tagged struct into column values.
func (sc *schema) values(record any) (map[string]any, error) {
	out := map[string]any{}
	switch r := record.(type) {
	case remote.Record:
		for c, v := range r {
			nv, err := normalize(v)
			if err != nil {
				return nil, err
			}
			out[c] = nv
		}
	default:
		rv := reflect.Indirect(reflect.ValueOf(record))
		if rv.Kind() != reflect.Struct {
			return nil, fmt.Errorf("unsupported record type %T", record)
		}
		rt := rv.Type()
		for i := 0; i < rt.NumField(); i++ {
			col := columnName(rt.Field(i))
			if col == "" {
				continue
			}
			out[col] = rv.Field(i).Interface()
		}
	}
	for c := range out {
		if !sc.allowed[c] {
			return nil, fmt.Errorf("unknown column %q", c)
		}
	}
	return out, nil
}

// normalize encodes decoded JSON containers so they bind as text.
func normalize(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("failed to encode value: %w", err)
		}
		return string(b), nil
	default:
		return v, nil
	}
}

func columnsOf(t reflect.Type) []string {
	var cols []string
	for i := 0; i < t.NumField(); i++ {
		if c := columnName(t.Field(i)); c != "" {
			cols = append(cols, c)
		}
	}
	return cols
}

func columnName(f reflect.StructField) string {
	if !f.IsExported() {
		return ""
	}
	tag := f.Tag.Get("db")
	if tag == "" || tag == "-" {
		return ""
	}
	return strings.Split(tag, ",")[0]
}

func storeErr(op, table string, err error) error {
	return &remote.Error{Op: op, Table: table, Err: err}
}
