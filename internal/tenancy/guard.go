package tenancy

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"github.com/charlesng35/bizcore/internal/auditctx"
	"github.com/charlesng35/bizcore/pkg/logger"
	"github.com/charlesng35/bizcore/pkg/metrics"
)

// Owned is implemented by models whose rows belong to exactly one tenant.
// Such models must expose a TenantID field.
type Owned interface {
	OwnedByTenant()
}

const (
	tenantField = "TenantID"
	guardName   = "tenancy:guard"

	maxSubqueryDepth = 8
)

// Violation describes a statement the guard refused.
type Violation struct {
	Operation string
	Table     string
	Reason    string
	Actor     auditctx.Actor
	At        time.Time
}

// ViolationHandler receives refused statements, typically for audit logging.
type ViolationHandler func(ctx context.Context, v Violation)

// GuardOption customises the isolation guard.
type GuardOption func(*Guard)

// WithViolationHandler registers fn to be called for every refused statement.
func WithViolationHandler(fn ViolationHandler) GuardOption {
	return func(g *Guard) {
		g.SetViolationHandler(fn)
	}
}

// WithGuardClock overrides the clock used to timestamp violations.
func WithGuardClock(clock func() time.Time) GuardOption {
	return func(g *Guard) {
		if clock != nil {
			g.now = clock
		}
	}
}

// Guard is a gorm plugin that scopes every statement against an Owned model to
// the resolved tenant. Statements without a tenant fail; there is no switch
// that turns the guard off.
//
// Owned tables are recognised by model and by name, so Table("suppliers"),
// joins and subqueries are covered as well as Model(&Supplier{}).
type Guard struct {
	onViolation atomic.Value
	now         func() time.Time
	log         *zap.Logger
	owned       sync.Map // reflect.Type -> bool
	tables      sync.Map // table name -> tenant column
	schemas     sync.Map
}

// NewGuard constructs the isolation guard.
func NewGuard(opts ...GuardOption) *Guard {
	g := &Guard{
		now: time.Now,
		log: logger.WithModule("tenancy"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GuardOf returns the guard installed on db.
func GuardOf(db *gorm.DB) (*Guard, bool) {
	if db == nil || db.Config == nil {
		return nil, false
	}
	g, ok := db.Config.Plugins[guardName].(*Guard)
	return g, ok
}

// SetViolationHandler replaces the violation handler. A nil fn removes it.
func (g *Guard) SetViolationHandler(fn ViolationHandler) {
	g.onViolation.Store(fn)
}

// Track records the tables of the Owned models among values. Statements that
// name a tracked table without its model are scoped by table name, and joins
// or subqueries on a tracked table are refused. Schema migration of the owned
// tables must run before Track.
func (g *Guard) Track(db *gorm.DB, values ...interface{}) error {
	for _, value := range values {
		s, err := schema.Parse(value, &g.schemas, db.NamingStrategy)
		if err != nil {
			return fmt.Errorf("tenancy guard: parse %T: %w", value, err)
		}
		if _, owned := reflect.New(s.ModelType).Interface().(Owned); !owned {
			continue
		}
		field := s.LookUpField(tenantField)
		if field == nil {
			return fmt.Errorf("%w: %s implements Owned without a %s field", ErrIsolationViolation, s.Name, tenantField)
		}
		g.tables.Store(strings.ToLower(s.Table), field.DBName)
	}
	return nil
}

// Tracked reports whether table belongs to an Owned model.
func (g *Guard) Tracked(table string) bool {
	_, ok := g.ownedTable(table)
	return ok
}

func (g *Guard) Name() string {
	return guardName
}

// Initialize registers the guard callbacks on db.
func (g *Guard) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	if err := cb.Create().Before("gorm:create").Register("tenancy:create", g.beforeCreate); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register("tenancy:query", g.filter("query")); err != nil {
		return err
	}
	if err := cb.Row().Before("gorm:row").Register("tenancy:row", g.filter("row")); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("tenancy:update", g.beforeUpdate); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register("tenancy:delete", g.filter("delete")); err != nil {
		return err
	}
	return cb.Raw().Before("gorm:raw").Register("tenancy:raw", g.refuseRaw)
}

func (g *Guard) beforeCreate(db *gorm.DB) {
	column, ok := g.target(db, "create")
	if !ok {
		return
	}
	tenantID, ok := g.tenant(db, "create")
	if !ok {
		return
	}
	if onConflict, exists := db.Statement.Clauses["ON CONFLICT"]; exists {
		if oc, ok := onConflict.Expression.(clause.OnConflict); ok && (oc.UpdateAll || len(oc.DoUpdates) > 0) {
			g.violate(db, "create", "upsert on tenant-owned model")
			return
		}
	}
	if db.Statement.SQL.Len() > 0 {
		g.violate(db, "create", "raw sql on tenant-owned model")
		return
	}
	g.assign(db, "create", column, tenantID)
}

func (g *Guard) beforeUpdate(db *gorm.DB) {
	column, ok := g.target(db, "update")
	if !ok {
		return
	}
	tenantID, ok := g.tenant(db, "update")
	if !ok {
		return
	}
	if !g.restrict(db, "update", column, tenantID) {
		return
	}
	g.assign(db, "update", column, tenantID)
}

func (g *Guard) filter(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		column, ok := g.target(db, operation)
		if !ok {
			return
		}
		tenantID, ok := g.tenant(db, operation)
		if !ok {
			return
		}
		g.restrict(db, operation, column, tenantID)
	}
}

func (g *Guard) refuseRaw(db *gorm.DB) {
	if db.Error != nil {
		return
	}
	if g.applies(db) {
		g.violate(db, "raw", "raw sql on tenant-owned model")
		return
	}
	if table, ok := g.mentioned(db.Statement.SQL.String()); ok {
		g.violate(db, "raw", "raw sql on tenant-owned table "+table)
	}
}

// target returns the tenant column the statement must be scoped by. It
// reports false when the statement touches no owned table, or when it was
// refused because an owned table appears where no filter can reach it.
func (g *Guard) target(db *gorm.DB, operation string) (string, bool) {
	if db.Error != nil {
		return "", false
	}
	stmt := db.Statement

	main := ""
	column := ""
	if g.applies(db) {
		main = strings.ToLower(stmt.Table)
		column = stmt.Schema.LookUpField(tenantField).DBName
	} else if db.Error != nil {
		return "", false
	} else if col, ok := g.ownedTable(stmt.Table); ok {
		main = strings.ToLower(stmt.Table)
		column = col
	}

	if reason, ok := g.unreachable(stmt, main, 0); ok {
		g.violate(db, operation, reason)
		return "", false
	}
	if column == "" {
		if table, ok := g.mentioned(stmt.SQL.String()); ok {
			g.violate(db, operation, "raw sql on tenant-owned table "+table)
		}
		return "", false
	}
	return column, true
}

// unreachable looks for owned tables in the parts of a statement the tenant
// predicate does not cover: the table expression, joins, SQL fragments and
// subqueries. main is the owned table the statement itself is scoped to.
func (g *Guard) unreachable(stmt *gorm.Statement, main string, depth int) (string, bool) {
	if depth > maxSubqueryDepth {
		return "subqueries nested too deeply", true
	}

	if stmt.TableExpr != nil {
		if table, ok := g.mentioned(stmt.TableExpr.SQL); ok && table != main {
			return "aliased tenant-owned table " + table, true
		}
	}

	var frags fragments
	for _, j := range stmt.Joins {
		if table, ok := g.joinedRelation(stmt.Schema, j.Name); ok {
			return "join on tenant-owned table " + table, true
		}
		if table, ok := g.mentioned(j.Name); ok {
			return "join on tenant-owned table " + table, true
		}
		frags.values(j.Conds)
		if j.On != nil {
			frags.expr(*j.On)
		}
		if j.Expression != nil {
			frags.expr(j.Expression)
		}
	}
	frags.sql = append(frags.sql, stmt.Selects...)
	for _, c := range stmt.Clauses {
		frags.expr(c.BeforeExpression)
		frags.expr(c.AfterNameExpression)
		frags.expr(c.AfterExpression)
		frags.expr(c.Expression)
	}

	for _, table := range frags.tables {
		if _, ok := g.ownedTable(table); ok {
			return "join on tenant-owned table " + strings.ToLower(table), true
		}
	}
	for _, fragment := range frags.sql {
		if table, ok := g.mentioned(fragment); ok {
			return "unscoped reference to tenant-owned table " + table, true
		}
	}
	for _, sub := range frags.subs {
		if reason, ok := g.subquery(sub, depth+1); ok {
			return reason, true
		}
	}
	return "", false
}

// subquery checks a *gorm.DB used as a statement argument. gorm builds such
// subqueries through the query callbacks, so an owned subquery is scoped
// there as long as it carries a tenant of its own.
func (g *Guard) subquery(sub *gorm.DB, depth int) (string, bool) {
	stmt := sub.Statement
	if stmt.SQL.Len() > 0 {
		if table, ok := g.mentioned(stmt.SQL.String()); ok {
			return "raw subquery on tenant-owned table " + table, true
		}
		return "", false
	}

	table := strings.ToLower(stmt.Table)
	owned := false
	if _, ok := g.ownedTable(table); ok {
		owned = true
	} else if model := subqueryModel(stmt); model != nil {
		if s, err := schema.Parse(model, &g.schemas, sub.NamingStrategy); err == nil {
			if _, ok := reflect.New(s.ModelType).Interface().(Owned); ok {
				owned = true
				if table == "" {
					table = strings.ToLower(s.Table)
				}
			}
		}
	}
	if owned && !g.hasTenant(sub) {
		return "subquery on tenant-owned table " + table + " without a tenant", true
	}
	main := ""
	if owned {
		main = table
	}
	return g.unreachable(stmt, main, depth)
}

func subqueryModel(stmt *gorm.Statement) interface{} {
	if stmt.Model != nil {
		return stmt.Model
	}
	return stmt.Dest
}

// joinedRelation resolves an association join such as Joins("Supplier") and
// reports whether it lands on an owned table.
func (g *Guard) joinedRelation(s *schema.Schema, name string) (string, bool) {
	if s == nil || name == "" {
		return "", false
	}
	current := s
	for _, segment := range strings.Split(name, ".") {
		rel, ok := current.Relationships.Relations[segment]
		if !ok || rel.FieldSchema == nil {
			return "", false
		}
		if _, owned := g.ownedTable(rel.FieldSchema.Table); owned {
			return strings.ToLower(rel.FieldSchema.Table), true
		}
		current = rel.FieldSchema
	}
	return "", false
}

func (g *Guard) ownedTable(table string) (string, bool) {
	if table == "" {
		return "", false
	}
	column, ok := g.tables.Load(strings.ToLower(table))
	if !ok {
		return "", false
	}
	return column.(string), true
}

// mentioned returns the first owned table that sql names as a table.
// Qualified columns such as suppliers.name are not table references;
// schema-qualified names such as public.suppliers are.
func (g *Guard) mentioned(sql string) (string, bool) {
	if sql == "" {
		return "", false
	}
	for _, token := range identifiers(sql) {
		name := token
		if i := strings.LastIndexByte(token, '.'); i >= 0 {
			name = token[i+1:]
			if _, ok := g.ownedTable(token[:i]); ok {
				// table.column
				continue
			}
		}
		if _, ok := g.ownedTable(name); ok {
			return name, true
		}
	}
	return "", false
}

func identifiers(sql string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '`', '"', '[', ']':
			return -1
		}
		return unicode.ToLower(r)
	}, sql)
	return strings.FieldsFunc(cleaned, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.')
	})
}

// fragments collects the SQL text, joined tables and subqueries of clause
// expressions.
type fragments struct {
	sql    []string
	tables []string
	subs   []*gorm.DB
}

func (f *fragments) values(values []interface{}) {
	for _, v := range values {
		f.expr(v)
	}
}

func (f *fragments) exprs(exprs []clause.Expression) {
	for _, e := range exprs {
		f.expr(e)
	}
}

func (f *fragments) expr(v interface{}) {
	switch e := v.(type) {
	case nil:
	case *gorm.DB:
		if e != nil && e.Statement != nil {
			f.subs = append(f.subs, e)
		}
	case clause.Expr:
		f.sql = append(f.sql, e.SQL)
		f.values(e.Vars)
	case clause.NamedExpr:
		f.sql = append(f.sql, e.SQL)
		f.values(e.Vars)
	case clause.Where:
		f.exprs(e.Exprs)
	case clause.AndConditions:
		f.exprs(e.Exprs)
	case clause.OrConditions:
		f.exprs(e.Exprs)
	case clause.NotConditions:
		f.exprs(e.Exprs)
	case clause.IN:
		f.values(e.Values)
	case clause.Eq:
		f.expr(e.Value)
	case clause.Neq:
		f.expr(e.Value)
	case clause.Select:
		for _, column := range e.Columns {
			if column.Raw {
				f.sql = append(f.sql, column.Name)
			}
		}
		f.expr(e.Expression)
	case clause.From:
		for _, join := range e.Joins {
			f.join(join)
		}
	case clause.Join:
		f.join(e)
	case clause.OrderBy:
		f.expr(e.Expression)
	case clause.GroupBy:
		f.exprs(e.Having)
	}
}

func (f *fragments) join(j clause.Join) {
	f.tables = append(f.tables, j.Table.Name)
	f.expr(j.ON)
	f.expr(j.Expression)
}

// restrict appends the tenant predicate. Pre-built SQL cannot be filtered and
// is refused.
func (g *Guard) restrict(db *gorm.DB, operation, column, tenantID string) bool {
	stmt := db.Statement
	if stmt.SQL.Len() > 0 {
		g.violate(db, operation, "raw sql on tenant-owned model")
		return false
	}

	if operation == "update" || operation == "delete" {
		if _, hasWhere := stmt.Clauses["WHERE"]; !hasWhere && !stmt.AllowGlobalUpdate && !hasPrimaryKey(stmt) {
			_ = db.AddError(gorm.ErrMissingWhereClause)
			return false
		}
	}

	stmt.AddClause(clause.Where{Exprs: []clause.Expression{
		clause.Eq{Column: clause.Column{Table: clause.CurrentTable, Name: column}, Value: tenantID},
	}})
	return true
}

// assign writes tenantID into the tenant column of the statement destination,
// replacing any caller supplied value.
func (g *Guard) assign(db *gorm.DB, operation, column, tenantID string) {
	stmt := db.Statement
	var field *schema.Field
	if stmt.Schema != nil {
		field = stmt.Schema.LookUpField(column)
	}
	overwrite := func(row map[string]interface{}) {
		delete(row, tenantField)
		if field != nil {
			delete(row, field.Name)
		}
		row[column] = tenantID
	}

	switch dest := stmt.Dest.(type) {
	case map[string]interface{}:
		overwrite(dest)
		return
	case *map[string]interface{}:
		if dest != nil && *dest != nil {
			overwrite(*dest)
			return
		}
	case []map[string]interface{}:
		for _, row := range dest {
			overwrite(row)
		}
		return
	}
	if field == nil {
		g.violate(db, operation, "destination has no tenant column")
		return
	}
	stmt.SetColumn(field.Name, tenantID, true)
}

// applies reports whether the statement targets an Owned model.
func (g *Guard) applies(db *gorm.DB) bool {
	if db.Error != nil {
		return false
	}
	s := db.Statement.Schema
	if s == nil {
		return false
	}
	if cached, ok := g.owned.Load(s.ModelType); ok {
		return cached.(bool)
	}

	_, owned := reflect.New(s.ModelType).Interface().(Owned)
	if owned {
		field := s.LookUpField(tenantField)
		if field == nil {
			_ = db.AddError(fmt.Errorf("%w: %s implements Owned without a %s field", ErrIsolationViolation, s.Name, tenantField))
			return false
		}
		g.tables.LoadOrStore(strings.ToLower(s.Table), field.DBName)
	}
	g.owned.Store(s.ModelType, owned)
	return owned
}

// hasTenant reports whether db carries a tenant, without recording a violation.
func (g *Guard) hasTenant(db *gorm.DB) bool {
	if value, ok := db.Get(tenantSettingKey); ok {
		if id, ok := value.(string); ok && id != "" {
			return true
		}
	}
	_, err := TenantIDFrom(db.Statement.Context)
	return err == nil
}

// tenant returns the tenant bound by Scope, falling back to the resolution
// carried by the statement context.
func (g *Guard) tenant(db *gorm.DB, operation string) (string, bool) {
	if value, ok := db.Get(tenantSettingKey); ok {
		if id, ok := value.(string); ok && id != "" {
			return id, true
		}
	}
	if id, err := TenantIDFrom(db.Statement.Context); err == nil {
		return id, true
	}
	g.violate(db, operation, "no tenant resolved")
	return "", false
}

func (g *Guard) violate(db *gorm.DB, operation, reason string) {
	stmt := db.Statement
	actor, _ := auditctx.FromContext(stmt.Context)
	v := Violation{
		Operation: operation,
		Table:     stmt.Table,
		Reason:    reason,
		Actor:     actor,
		At:        g.now(),
	}

	metrics.IsolationViolations.WithLabelValues(operation).Inc()
	g.log.Error("tenant isolation violation",
		zap.String("operation", v.Operation),
		zap.String("table", v.Table),
		zap.String("reason", v.Reason),
		zap.String("user_id", actor.UserID),
		zap.String("method", actor.Method),
		zap.String("path", actor.Path),
		zap.Time("at", v.At),
	)
	if fn, _ := g.onViolation.Load().(ViolationHandler); fn != nil {
		fn(stmt.Context, v)
	}

	err := fmt.Errorf("%w: %s %s: %s", ErrIsolationViolation, operation, v.Table, reason)
	if reason == "no tenant resolved" {
		err = fmt.Errorf("%w: %w", err, ErrNoTenant)
	}
	_ = db.AddError(err)
}

func hasPrimaryKey(stmt *gorm.Statement) bool {
	if stmt.Schema == nil || len(stmt.Schema.PrimaryFields) == 0 {
		return false
	}
	rv := stmt.ReflectValue
	if rv.Kind() != reflect.Struct {
		return false
	}
	for _, field := range stmt.Schema.PrimaryFields {
		if _, zero := field.ValueOf(stmt.Context, rv); zero {
			return false
		}
	}
	return true
}
