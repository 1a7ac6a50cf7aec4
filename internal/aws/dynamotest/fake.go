// Package dynamotest provides an in-memory DynamoDB used by store tests.
//
// It understands the expression subset the stores in this module issue:
// attribute_exists / attribute_not_exists, comparisons joined by AND / OR,
// SET (with "a = :v" and "a = a + :v"), ADD and REMOVE clauses, and
// equality key conditions on Query. Tables have hash keys only; an index
// registered with CreateIndex orders Query results by its sort key.
package dynamotest

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type item = map[string]types.AttributeValue

type failure struct {
	op    string
	table string
	err   error
}

// Fake implements the DynamoDB operations the stores depend on.
type Fake struct {
	mu       sync.Mutex
	hashKeys map[string]string
	indexes  map[string]string // "table/index" -> sort key attribute
	tables   map[string]map[string]item
	failures []failure
	calls    map[string]int
}

func New() *Fake {
	return &Fake{
		hashKeys: map[string]string{},
		indexes:  map[string]string{},
		tables:   map[string]map[string]item{},
		calls:    map[string]int{},
	}
}

// CreateTable registers table with the given hash key attribute name.
func (f *Fake) CreateTable(name, hashKey string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hashKeys[name] = hashKey
	f.tables[name] = map[string]item{}
	return f
}

// CreateIndex registers a secondary index on table whose Query results are
// ordered by sortKey.
func (f *Fake) CreateIndex(table, index, sortKey string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexes[table+"/"+index] = sortKey
	return f
}

// FailOn makes every later op call against table (any table when empty) return err.
func (f *Fake) FailOn(op, table string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, failure{op: op, table: table, err: err})
}

// Reset clears injected failures.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = nil
}

// Item returns a copy of the stored item or nil.
func (f *Fake) Item(table, key string) map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.tables[table][key]
	if !ok {
		return nil
	}
	return clone(it)
}

// Len returns the number of items in table.
func (f *Fake) Len(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tables[table])
}

// Calls returns how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *Fake) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	table := aws.ToString(in.TableName)
	if err := f.begin("PutItem", table); err != nil {
		return nil, err
	}
	key, err := f.keyOf(table, in.Item)
	if err != nil {
		return nil, err
	}
	old := f.tables[table][key]
	ok, err := evalCondition(aws.ToString(in.ConditionExpression), old, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conditionalFailed()
	}
	f.tables[table][key] = clone(in.Item)
	out := &dyn.PutItemOutput{}
	if in.ReturnValues == types.ReturnValueAllOld && old != nil {
		out.Attributes = clone(old)
	}
	return out, nil
}

func (f *Fake) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	table := aws.ToString(in.TableName)
	if err := f.begin("GetItem", table); err != nil {
		return nil, err
	}
	key, err := f.keyOf(table, in.Key)
	if err != nil {
		return nil, err
	}
	it, ok := f.tables[table][key]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: clone(it)}, nil
}

func (f *Fake) DeleteItem(ctx context.Context, in *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	table := aws.ToString(in.TableName)
	if err := f.begin("DeleteItem", table); err != nil {
		return nil, err
	}
	key, err := f.keyOf(table, in.Key)
	if err != nil {
		return nil, err
	}
	old := f.tables[table][key]
	ok, err := evalCondition(aws.ToString(in.ConditionExpression), old, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conditionalFailed()
	}
	delete(f.tables[table], key)
	out := &dyn.DeleteItemOutput{}
	if in.ReturnValues == types.ReturnValueAllOld && old != nil {
		out.Attributes = clone(old)
	}
	return out, nil
}

func (f *Fake) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	table := aws.ToString(in.TableName)
	if err := f.begin("UpdateItem", table); err != nil {
		return nil, err
	}
	updated, err := f.applyUpdate(table, in.Key, aws.ToString(in.UpdateExpression), aws.ToString(in.ConditionExpression), in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	out := &dyn.UpdateItemOutput{}
	if in.ReturnValues != "" && in.ReturnValues != types.ReturnValueNone {
		out.Attributes = clone(updated)
	}
	return out, nil
}

func (f *Fake) Query(ctx context.Context, in *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	table := aws.ToString(in.TableName)
	if err := f.begin("Query", table); err != nil {
		return nil, err
	}
	if _, ok := f.tables[table]; !ok {
		return nil, fmt.Errorf("dynamotest: unknown table %q", table)
	}

	keys := make([]string, 0, len(f.tables[table]))
	for k := range f.tables[table] {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var items []map[string]types.AttributeValue
	for _, k := range keys {
		it := f.tables[table][k]
		match, err := evalCondition(aws.ToString(in.KeyConditionExpression), it, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !match {
			continue
		}
		if in.FilterExpression != nil {
			match, err = evalCondition(*in.FilterExpression, it, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
			if err != nil {
				return nil, err
			}
			if !match {
				continue
			}
		}
		items = append(items, clone(it))
	}
	if sortKey, ok := f.indexes[table+"/"+aws.ToString(in.IndexName)]; ok {
		// the index is sparse: items without the sort key are not projected
		indexed := items[:0]
		for _, it := range items {
			if _, has := it[sortKey]; has {
				indexed = append(indexed, it)
			}
		}
		items = indexed
		sort.SliceStable(items, func(i, j int) bool {
			c, _ := compare(items[i][sortKey], items[j][sortKey])
			return c < 0
		})
		if in.ScanIndexForward != nil && !*in.ScanIndexForward {
			for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
				items[i], items[j] = items[j], items[i]
			}
		}
	}
	if in.Limit != nil && int(*in.Limit) < len(items) {
		items = items[:*in.Limit]
	}
	return &dyn.QueryOutput{Items: items, Count: int32(len(items))}, nil
}

func (f *Fake) TransactWriteItems(ctx context.Context, in *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("TransactWriteItems", ""); err != nil {
		return nil, err
	}

	// first pass: evaluate every condition against the current state
	reasons := make([]types.CancellationReason, len(in.TransactItems))
	canceled := false
	for i, ti := range in.TransactItems {
		table, key, cond, names, values, err := f.describe(ti)
		if err != nil {
			return nil, err
		}
		ok, err := evalCondition(cond, f.tables[table][key], names, values)
		if err != nil {
			return nil, err
		}
		if ok {
			reasons[i] = types.CancellationReason{Code: aws.String("None")}
			continue
		}
		canceled = true
		reasons[i] = types.CancellationReason{
			Code:    aws.String("ConditionalCheckFailed"),
			Message: aws.String("The conditional request failed"),
		}
	}
	if canceled {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled, please refer cancellation reasons for specific reasons"),
			CancellationReasons: reasons,
		}
	}

	// second pass: apply
	for _, ti := range in.TransactItems {
		switch {
		case ti.Put != nil:
			table := aws.ToString(ti.Put.TableName)
			key, _ := f.keyOf(table, ti.Put.Item)
			f.tables[table][key] = clone(ti.Put.Item)
		case ti.Update != nil:
			u := ti.Update
			if _, err := f.applyUpdate(aws.ToString(u.TableName), u.Key, aws.ToString(u.UpdateExpression), "", u.ExpressionAttributeNames, u.ExpressionAttributeValues); err != nil {
				return nil, err
			}
		case ti.Delete != nil:
			table := aws.ToString(ti.Delete.TableName)
			key, _ := f.keyOf(table, ti.Delete.Key)
			delete(f.tables[table], key)
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func (f *Fake) begin(op, table string) error {
	f.calls[op]++
	for _, fl := range f.failures {
		if fl.op == op && (fl.table == "" || fl.table == table) {
			return fl.err
		}
	}
	return nil
}

func (f *Fake) describe(ti types.TransactWriteItem) (table, key, cond string, names map[string]string, values map[string]types.AttributeValue, err error) {
	switch {
	case ti.Put != nil:
		table = aws.ToString(ti.Put.TableName)
		key, err = f.keyOf(table, ti.Put.Item)
		return table, key, aws.ToString(ti.Put.ConditionExpression), ti.Put.ExpressionAttributeNames, ti.Put.ExpressionAttributeValues, err
	case ti.Update != nil:
		table = aws.ToString(ti.Update.TableName)
		key, err = f.keyOf(table, ti.Update.Key)
		return table, key, aws.ToString(ti.Update.ConditionExpression), ti.Update.ExpressionAttributeNames, ti.Update.ExpressionAttributeValues, err
	case ti.Delete != nil:
		table = aws.ToString(ti.Delete.TableName)
		key, err = f.keyOf(table, ti.Delete.Key)
		return table, key, aws.ToString(ti.Delete.ConditionExpression), ti.Delete.ExpressionAttributeNames, ti.Delete.ExpressionAttributeValues, err
	case ti.ConditionCheck != nil:
		table = aws.ToString(ti.ConditionCheck.TableName)
		key, err = f.keyOf(table, ti.ConditionCheck.Key)
		return table, key, aws.ToString(ti.ConditionCheck.ConditionExpression), ti.ConditionCheck.ExpressionAttributeNames, ti.ConditionCheck.ExpressionAttributeValues, err
	}
	return "", "", "", nil, nil, errors.New("dynamotest: empty transact item")
}

func (f *Fake) keyOf(table string, it item) (string, error) {
	hk, ok := f.hashKeys[table]
	if !ok {
		return "", fmt.Errorf("dynamotest: unknown table %q", table)
	}
	switch v := it[hk].(type) {
	case *types.AttributeValueMemberS:
		return v.Value, nil
	case *types.AttributeValueMemberN:
		return v.Value, nil
	}
	return "", fmt.Errorf("dynamotest: item for %q has no hash key %q", table, hk)
}

// applyUpdate must be called with f.mu held.
func (f *Fake) applyUpdate(table string, keyAttrs item, update, cond string, names map[string]string, values map[string]types.AttributeValue) (item, error) {
	key, err := f.keyOf(table, keyAttrs)
	if err != nil {
		return nil, err
	}
	current := f.tables[table][key]
	ok, err := evalCondition(cond, current, names, values)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conditionalFailed()
	}

	next := clone(current)
	if next == nil {
		next = clone(keyAttrs)
	}
	if err := applyExpression(next, update, names, values); err != nil {
		return nil, err
	}
	f.tables[table][key] = next
	return next, nil
}

var clauseRe = regexp.MustCompile(`\b(SET|ADD|REMOVE)\b`)

func applyExpression(it item, expr string, names map[string]string, values map[string]types.AttributeValue) error {
	locs := clauseRe.FindAllStringSubmatchIndex(expr, -1)
	for i, loc := range locs {
		keyword := expr[loc[2]:loc[3]]
		end := len(expr)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := strings.TrimSpace(expr[loc[1]:end])
		for _, action := range strings.Split(body, ",") {
			action = strings.TrimSpace(action)
			if action == "" {
				continue
			}
			var err error
			switch keyword {
			case "SET":
				err = applySet(it, action, names, values)
			case "ADD":
				err = applyAdd(it, action, names, values)
			case "REMOVE":
				delete(it, resolveName(action, names))
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func applySet(it item, action string, names map[string]string, values map[string]types.AttributeValue) error {
	parts := strings.SplitN(action, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("dynamotest: bad SET action %q", action)
	}
	path := resolveName(strings.TrimSpace(parts[0]), names)
	operand := strings.Fields(parts[1])
	switch len(operand) {
	case 1:
		v, ok := values[operand[0]]
		if !ok {
			return fmt.Errorf("dynamotest: missing value %s", operand[0])
		}
		it[path] = v
		return nil
	case 3:
		base, ok := it[resolveName(operand[0], names)]
		if !ok {
			return fmt.Errorf("dynamotest: SET arithmetic on missing attribute %s", operand[0])
		}
		delta := values[operand[2]]
		sign := 1.0
		if operand[1] == "-" {
			sign = -1
		}
		sum, err := addNumbers(base, delta, sign)
		if err != nil {
			return err
		}
		it[path] = sum
		return nil
	}
	return fmt.Errorf("dynamotest: unsupported SET operand %q", parts[1])
}

func applyAdd(it item, action string, names map[string]string, values map[string]types.AttributeValue) error {
	fields := strings.Fields(action)
	if len(fields) != 2 {
		return fmt.Errorf("dynamotest: bad ADD action %q", action)
	}
	path := resolveName(fields[0], names)
	delta, ok := values[fields[1]]
	if !ok {
		return fmt.Errorf("dynamotest: missing value %s", fields[1])
	}
	base, ok := it[path]
	if !ok {
		base = &types.AttributeValueMemberN{Value: "0"}
	}
	sum, err := addNumbers(base, delta, 1)
	if err != nil {
		return err
	}
	it[path] = sum
	return nil
}

func addNumbers(a, b types.AttributeValue, sign float64) (types.AttributeValue, error) {
	an, aok := a.(*types.AttributeValueMemberN)
	bn, bok := b.(*types.AttributeValueMemberN)
	if !aok || !bok {
		return nil, errors.New("dynamotest: arithmetic on non-number")
	}
	ai, aerr := strconv.ParseInt(an.Value, 10, 64)
	bi, berr := strconv.ParseInt(bn.Value, 10, 64)
	if aerr == nil && berr == nil {
		return &types.AttributeValueMemberN{Value: strconv.FormatInt(ai+int64(sign)*bi, 10)}, nil
	}
	af, _ := strconv.ParseFloat(an.Value, 64)
	bf, _ := strconv.ParseFloat(bn.Value, 64)
	return &types.AttributeValueMemberN{Value: strconv.FormatFloat(af+sign*bf, 'f', -1, 64)}, nil
}

func evalCondition(expr string, it item, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true, nil
	}
	for _, disjunct := range strings.Split(expr, " OR ") {
		all := true
		for _, term := range strings.Split(disjunct, " AND ") {
			ok, err := evalTerm(strings.Trim(strings.TrimSpace(term), "()"), it, names, values)
			if err != nil {
				return false, err
			}
			if !ok {
				all = false
				break
			}
		}
		if all {
			return true, nil
		}
	}
	return false, nil
}

func evalTerm(term string, it item, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	switch {
	case strings.HasPrefix(term, "attribute_not_exists"):
		_, ok := it[resolveName(fnArg(term), names)]
		return !ok, nil
	case strings.HasPrefix(term, "attribute_exists"):
		_, ok := it[resolveName(fnArg(term), names)]
		return ok, nil
	}

	fields := strings.Fields(term)
	if len(fields) != 3 {
		return false, fmt.Errorf("dynamotest: unsupported condition %q", term)
	}
	left, ok := it[resolveName(fields[0], names)]
	if !ok {
		return false, nil
	}
	right, ok := values[fields[2]]
	if !ok {
		return false, fmt.Errorf("dynamotest: missing value %s", fields[2])
	}
	cmp, err := compare(left, right)
	if err != nil {
		return false, err
	}
	switch fields[1] {
	case "=":
		return cmp == 0, nil
	case "<>":
		return cmp != 0, nil
	case ">=":
		return cmp >= 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	case "<":
		return cmp < 0, nil
	}
	return false, fmt.Errorf("dynamotest: unsupported operator %q", fields[1])
}

func compare(a, b types.AttributeValue) (int, error) {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return 0, errors.New("dynamotest: type mismatch")
		}
		return strings.Compare(av.Value, bv.Value), nil
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return 0, errors.New("dynamotest: type mismatch")
		}
		x, _ := strconv.ParseFloat(av.Value, 64)
		y, _ := strconv.ParseFloat(bv.Value, 64)
		switch {
		case x < y:
			return -1, nil
		case x > y:
			return 1, nil
		}
		return 0, nil
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		if !ok || av.Value != bv.Value {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("dynamotest: cannot compare %T", a)
}

func fnArg(term string) string {
	open := strings.Index(term, "(")
	if open < 0 {
		return term
	}
	return strings.TrimSpace(strings.TrimSuffix(term[open+1:], ")"))
}

func resolveName(tok string, names map[string]string) string {
	tok = strings.TrimSpace(tok)
	if strings.HasPrefix(tok, "#") {
		if n, ok := names[tok]; ok {
			return n
		}
	}
	return tok
}

func clone(it item) item {
	if it == nil {
		return nil
	}
	out := make(item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}

func conditionalFailed() error {
	return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
}
