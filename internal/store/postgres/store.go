package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/portalkit/viewdata/internal/domain"
	"github.com/portalkit/viewdata/internal/store"
)

// Store translates query expressions into SQL over the records table, where
// each record's attributes live in one JSONB document of typed value
// envelopes. It implements store.RecordStore.
type Store struct {
	pool      *pgxpool.Pool
	pageLimit int

	metaMu    sync.RWMutex
	metaCache map[string]*domain.EntityMetadata
}

// NewStore wraps a connection pool as a record store.
func NewStore(pool *pgxpool.Pool, config Config) *Store {
	pageLimit := config.PageLimit
	if pageLimit < 1 {
		pageLimit = DefaultConfig().PageLimit
	}
	return &Store{
		pool:      pool,
		pageLimit: pageLimit,
		metaCache: make(map[string]*domain.EntityMetadata),
	}
}

// PageLimit implements store.RecordStore.
func (s *Store) PageLimit() int {
	return s.pageLimit
}

// EntityMetadata implements store.RecordStore. Metadata rows change rarely, so
// resolved collections are cached for the lifetime of the store.
func (s *Store) EntityMetadata(ctx context.Context, collection string) (*domain.EntityMetadata, error) {
	s.metaMu.RLock()
	cached, ok := s.metaCache[collection]
	s.metaMu.RUnlock()
	if ok {
		return cached, nil
	}

	row := s.pool.QueryRow(ctx,
		`SELECT collection, primary_id_attribute, primary_name_attribute, attributes, relationships
		 FROM entity_metadata WHERE collection = $1`, collection)

	meta := &domain.EntityMetadata{}
	var attributesJSON, relationshipsJSON []byte
	err := row.Scan(&meta.Collection, &meta.PrimaryIDAttribute, &meta.PrimaryNameAttribute, &attributesJSON, &relationshipsJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("collection %s is not defined", collection)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load metadata for %s: %w", collection, err)
	}

	if err := json.Unmarshal(attributesJSON, &meta.Attributes); err != nil {
		return nil, fmt.Errorf("failed to decode attribute map for %s: %w", collection, err)
	}
	if err := json.Unmarshal(relationshipsJSON, &meta.Relationships); err != nil {
		return nil, fmt.Errorf("failed to decode relationships for %s: %w", collection, err)
	}

	s.metaMu.Lock()
	s.metaCache[collection] = meta
	s.metaMu.Unlock()
	return meta, nil
}

// AuthorizationRules implements store.RecordStore. Rules bound to a role only
// apply when the caller holds that role; rules with an empty role apply to
// everyone.
func (s *Store) AuthorizationRules(ctx context.Context, caller domain.CallerContext, collection string, right domain.Right) ([]domain.AuthorizationRule, error) {
	roles := caller.Roles
	if roles == nil {
		roles = []string{}
	}

	rows, err := s.pool.Query(ctx,
		`SELECT scope, is_global FROM permission_rules
		 WHERE collection = $1 AND grant_right = $2 AND (role = '' OR role = ANY($3))`,
		collection, string(right), roles)
	if err != nil {
		return nil, fmt.Errorf("failed to query permission rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.AuthorizationRule
	for rows.Next() {
		var scopeJSON []byte
		var global bool
		if err := rows.Scan(&scopeJSON, &global); err != nil {
			return nil, fmt.Errorf("failed to scan permission rule: %w", err)
		}

		rule := domain.AuthorizationRule{Global: global}
		if len(scopeJSON) > 0 && string(scopeJSON) != "null" {
			scope := &domain.Filter{}
			if err := json.Unmarshal(scopeJSON, scope); err != nil {
				return nil, fmt.Errorf("failed to decode rule scope: %w", err)
			}
			rule.Scope = scope
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read permission rules: %w", err)
	}
	return rules, nil
}

// Execute implements store.RecordStore. One call returns one physical page of
// at most PageLimit records; the paging cookie encodes the absolute offset of
// the row after the page.
func (s *Store) Execute(ctx context.Context, q *domain.QueryExpression) (*store.ExecuteResult, error) {
	meta, err := s.EntityMetadata(ctx, q.Collection)
	if err != nil {
		return nil, err
	}

	builder := newSQLBuilder()
	translator := &queryTranslator{store: s, builder: builder}
	fromSQL, err := translator.translate(ctx, q, meta)
	if err != nil {
		return nil, err
	}

	totalCount := 0
	if q.ReturnTotalCount {
		countQuery := "SELECT COUNT(DISTINCT base.id) " + fromSQL
		countArgs := make([]any, len(builder.args))
		copy(countArgs, builder.args)
		if err := s.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&totalCount); err != nil {
			return nil, fmt.Errorf("failed to count records: %w", err)
		}
	}

	pageSize := q.PageSize
	if pageSize < 1 || pageSize > s.pageLimit {
		pageSize = s.pageLimit
	}

	offset, err := pageOffset(q, pageSize)
	if err != nil {
		return nil, err
	}

	query := "SELECT base.id, base.attributes " + fromSQL
	query += translator.orderClause(q.Orders, meta)
	// Fetch one extra row so MoreRecords does not need a second round-trip
	// when the caller skipped the total count.
	limitIdx := builder.addArg(pageSize + 1)
	offsetIdx := builder.addArg(offset)
	query += fmt.Sprintf(" LIMIT %s OFFSET %s", builder.placeholder(limitIdx), builder.placeholder(offsetIdx))

	rows, err := s.pool.Query(ctx, query, builder.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows, q.Collection, translator.distinct)
	if err != nil {
		return nil, err
	}

	moreRecords := len(records) > pageSize
	if moreRecords {
		records = records[:pageSize]
	}
	if !q.ReturnTotalCount {
		totalCount = offset + len(records)
	}

	return &store.ExecuteResult{
		Records:          records,
		PagingCookie:     fmt.Sprintf("%d", offset+len(records)),
		TotalRecordCount: totalCount,
		MoreRecords:      moreRecords,
	}, nil
}

func pageOffset(q *domain.QueryExpression, pageSize int) (int, error) {
	if q.PagingCookie != "" {
		var offset int
		if _, err := fmt.Sscanf(q.PagingCookie, "%d", &offset); err != nil || offset < 0 {
			return 0, fmt.Errorf("malformed paging cookie %q", q.PagingCookie)
		}
		return offset, nil
	}
	if q.Page > 1 {
		return (q.Page - 1) * pageSize, nil
	}
	return 0, nil
}

func scanRecords(rows pgx.Rows, collection string, dedupe bool) ([]domain.Record, error) {
	var records []domain.Record
	seen := make(map[uuid.UUID]struct{})
	for rows.Next() {
		var id uuid.UUID
		var attributesJSON []byte
		if err := rows.Scan(&id, &attributesJSON); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if dedupe {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
		}

		attributes := make(map[string]domain.Value)
		if len(attributesJSON) > 0 {
			if err := json.Unmarshal(attributesJSON, &attributes); err != nil {
				return nil, fmt.Errorf("failed to decode record %s: %w", id, err)
			}
		}
		records = append(records, domain.Record{Collection: collection, ID: id, Attributes: attributes})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	return records, nil
}

type sqlBuilder struct {
	args []any
}

func newSQLBuilder() *sqlBuilder {
	return &sqlBuilder{args: make([]any, 0)}
}

func (b *sqlBuilder) addArg(value any) int {
	b.args = append(b.args, value)
	return len(b.args)
}

func (b *sqlBuilder) placeholder(idx int) string {
	return fmt.Sprintf("$%d", idx)
}

// aliasScope pairs a table alias with the metadata of the collection it joins,
// so condition translation can resolve attribute types per alias.
type aliasScope struct {
	alias string
	meta  *domain.EntityMetadata
}

type queryTranslator struct {
	store   *Store
	builder *sqlBuilder
	aliases map[string]aliasScope
	joins   []string
	joinSeq int

	// distinct records that an intersect-only join may duplicate base rows,
	// so the scan loop must drop repeats.
	distinct bool
}

// translate renders the FROM/JOIN/WHERE portion shared by the count and the
// page query.
func (t *queryTranslator) translate(ctx context.Context, q *domain.QueryExpression, meta *domain.EntityMetadata) (string, error) {
	base := aliasScope{alias: "base", meta: meta}
	t.aliases = map[string]aliasScope{"": base}

	collectionIdx := t.builder.addArg(q.Collection)
	where := []string{fmt.Sprintf("base.collection = %s", t.builder.placeholder(collectionIdx))}

	for _, join := range q.Joins {
		if err := t.addJoin(ctx, base, join); err != nil {
			return "", err
		}
	}

	if clause, ok := t.filterSQL(base, q.Filter); ok {
		where = append(where, clause)
	}

	fromSQL := "FROM records base"
	if len(t.joins) > 0 {
		fromSQL += " " + strings.Join(t.joins, " ")
	}
	fromSQL += " WHERE " + strings.Join(where, " AND ")
	return fromSQL, nil
}

func (t *queryTranslator) addJoin(ctx context.Context, parent aliasScope, join *domain.Join) error {
	joinMeta, err := t.store.EntityMetadata(ctx, join.Name)
	if err != nil {
		return err
	}

	alias := join.Alias
	if alias == "" {
		t.joinSeq++
		alias = fmt.Sprintf("j%d", t.joinSeq)
	}
	scope := aliasScope{alias: alias, meta: joinMeta}
	t.aliases[alias] = scope

	collectionIdx := t.builder.addArg(join.Name)
	on := []string{
		fmt.Sprintf("%s.collection = %s", alias, t.builder.placeholder(collectionIdx)),
		fmt.Sprintf("%s = %s", t.attributeExpr(scope, join.ToAttribute), t.attributeExpr(parent, join.FromAttribute)),
	}
	for _, filter := range join.Filters {
		if clause, ok := t.filterSQL(scope, filter); ok {
			on = append(on, clause)
		}
	}

	keyword := "JOIN"
	if join.Kind == domain.JoinLeftOuter {
		keyword = "LEFT JOIN"
	}
	t.joins = append(t.joins, fmt.Sprintf("%s records %s ON %s", keyword, alias, strings.Join(on, " AND ")))

	if join.IntersectOnly {
		t.distinct = true
	}

	for _, nested := range join.Joins {
		if err := t.addJoin(ctx, scope, nested); err != nil {
			return err
		}
	}
	return nil
}

func (t *queryTranslator) filterSQL(scope aliasScope, filter *domain.Filter) (string, bool) {
	if filter == nil {
		return "", false
	}

	var parts []string
	for _, condition := range filter.Conditions {
		conditionScope := scope
		if condition.EntityAlias != "" {
			aliased, ok := t.aliases[condition.EntityAlias]
			if !ok {
				continue
			}
			conditionScope = aliased
		}
		if clause, ok := t.conditionSQL(conditionScope, condition); ok {
			parts = append(parts, clause)
		}
	}
	for _, child := range filter.Filters {
		if clause, ok := t.filterSQL(scope, child); ok {
			parts = append(parts, clause)
		}
	}
	if len(parts) == 0 {
		return "", false
	}

	operator := " AND "
	if filter.Kind == domain.FilterOr {
		operator = " OR "
	}
	return "(" + strings.Join(parts, operator) + ")", true
}

func (t *queryTranslator) conditionSQL(scope aliasScope, condition domain.Condition) (string, bool) {
	expr := t.attributeExpr(scope, condition.Attribute)

	switch condition.Operator {
	case domain.OperatorNull:
		return expr + " IS NULL", true
	case domain.OperatorNotNull:
		return expr + " IS NOT NULL", true
	case domain.OperatorEqual:
		expr, arg := t.typedComparison(scope, condition.Attribute, expr, condition.Value)
		idx := t.builder.addArg(arg)
		return fmt.Sprintf("%s = %s", expr, t.builder.placeholder(idx)), true
	case domain.OperatorNotEqual:
		expr, arg := t.typedComparison(scope, condition.Attribute, expr, condition.Value)
		idx := t.builder.addArg(arg)
		return fmt.Sprintf("%s IS DISTINCT FROM %s", expr, t.builder.placeholder(idx)), true
	case domain.OperatorBeginsWith:
		idx := t.builder.addArg(escapeLike(domain.DisplayAny(condition.Value)) + "%")
		return fmt.Sprintf("%s ILIKE %s", expr, t.builder.placeholder(idx)), true
	case domain.OperatorIn:
		if len(condition.Values) == 0 {
			return "", false
		}
		values := make([]string, len(condition.Values))
		for i, value := range condition.Values {
			values[i] = domain.DisplayAny(value)
		}
		idx := t.builder.addArg(values)
		return fmt.Sprintf("%s = ANY(%s)", expr, t.builder.placeholder(idx)), true
	case domain.OperatorGreater, domain.OperatorGreaterOrEqual, domain.OperatorLess, domain.OperatorLessOrEqual:
		expr, arg := t.typedComparison(scope, condition.Attribute, expr, condition.Value)
		idx := t.builder.addArg(arg)
		return fmt.Sprintf("%s %s %s", expr, orderedOperators[condition.Operator], t.builder.placeholder(idx)), true
	}
	return "", false
}

var orderedOperators = map[domain.Operator]string{
	domain.OperatorGreater:        ">",
	domain.OperatorGreaterOrEqual: ">=",
	domain.OperatorLess:           "<",
	domain.OperatorLessOrEqual:    "<=",
}

// typedComparison casts the text expression for attributes whose values order
// numerically or chronologically, and renders the argument to match.
func (t *queryTranslator) typedComparison(scope aliasScope, attribute, expr string, raw any) (string, any) {
	attributeType, ok := scope.meta.AttributeType(attribute)
	if !ok {
		return expr, domain.DisplayAny(raw)
	}
	switch attributeType {
	case domain.AttributeInteger, domain.AttributeBigInt, domain.AttributeDouble,
		domain.AttributeDecimal, domain.AttributeMoney,
		domain.AttributePicklist, domain.AttributeState, domain.AttributeStatus, domain.AttributeBoolean:
		return "(" + expr + ")::numeric", domain.DisplayAny(raw)
	case domain.AttributeDateTime:
		if ts, isTime := raw.(time.Time); isTime {
			return "(" + expr + ")::timestamptz", ts
		}
		return "(" + expr + ")::timestamptz", domain.DisplayAny(raw)
	default:
		return expr, domain.DisplayAny(raw)
	}
}

// attributeExpr renders a JSONB path expression extracting the comparable text
// form of an attribute. Typed values are stored as {"type": ..., "data": ...}
// envelopes; references and choices compare on their id and code fields, and
// "name"-suffixed shadow attributes resolve to the base value's display field.
func (t *queryTranslator) attributeExpr(scope aliasScope, attribute string) string {
	if attribute == "" || attribute == scope.meta.PrimaryIDAttribute {
		return scope.alias + ".id::text"
	}

	attributeType, known := scope.meta.AttributeType(attribute)
	if !known {
		if base, found := strings.CutSuffix(attribute, "name"); found {
			if baseType, ok := scope.meta.AttributeType(base); ok {
				switch baseType {
				case domain.AttributeLookup, domain.AttributeOwner, domain.AttributeCustomer:
					return jsonPathExpr(scope.alias, base, "data", "name")
				case domain.AttributePicklist, domain.AttributeState, domain.AttributeStatus, domain.AttributeBoolean:
					return jsonPathExpr(scope.alias, base, "data", "label")
				}
			}
		}
		return jsonPathExpr(scope.alias, attribute, "data")
	}

	switch attributeType {
	case domain.AttributeLookup, domain.AttributeOwner, domain.AttributeCustomer:
		return jsonPathExpr(scope.alias, attribute, "data", "id")
	case domain.AttributePicklist, domain.AttributeState, domain.AttributeStatus, domain.AttributeBoolean:
		return jsonPathExpr(scope.alias, attribute, "data", "code")
	default:
		return jsonPathExpr(scope.alias, attribute, "data")
	}
}

func jsonPathExpr(alias string, path ...string) string {
	for i, segment := range path {
		path[i] = strings.ReplaceAll(segment, "'", "")
	}
	return fmt.Sprintf("%s.attributes #>> '{%s}'", alias, strings.Join(path, ","))
}

func (t *queryTranslator) orderClause(orders []domain.Order, meta *domain.EntityMetadata) string {
	base := t.aliases[""]
	terms := make([]string, 0, len(orders)+1)
	for _, order := range orders {
		expr := t.attributeExpr(base, order.Attribute)
		if attributeType, ok := meta.AttributeType(order.Attribute); ok {
			switch attributeType {
			case domain.AttributeInteger, domain.AttributeBigInt, domain.AttributeDouble,
				domain.AttributeDecimal, domain.AttributeMoney:
				expr = "(" + expr + ")::numeric"
			case domain.AttributeDateTime:
				expr = "(" + expr + ")::timestamptz"
			}
		}
		if order.Descending() {
			terms = append(terms, expr+" DESC NULLS LAST")
		} else {
			terms = append(terms, expr+" ASC NULLS FIRST")
		}
	}
	terms = append(terms, "base.id")
	return " ORDER BY " + strings.Join(terms, ", ")
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return replacer.Replace(value)
}
