package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/xwb1989/sqlparser"

	"github.com/csc560/coredb/internal/godb"
)

// shell holds the state a single REPL session needs to translate and run
// statements against one database directory.
type shell struct {
	db      *godb.Database
	dataDir string
}

// run parses one semicolon-terminated statement and executes it, printing
// any result rows to stdout.
func (s *shell) run(stmt string) error {
	parsed, err := sqlparser.Parse(stmt)
	if err != nil {
		return fmt.Errorf("parse error: %w", err)
	}

	switch node := parsed.(type) {
	case *sqlparser.DDL:
		if node.Action != sqlparser.CreateStr {
			return fmt.Errorf("%s is not supported in this shell", node.Action)
		}
		return s.createTable(node)
	case *sqlparser.Insert:
		return s.insert(node)
	case *sqlparser.Select:
		return s.selectQuery(node)
	default:
		return fmt.Errorf("%T is not supported in this shell", parsed)
	}
}

// createTable registers a new HeapFile backed by a file under s.dataDir
// named after the table, one column per declared field.
func (s *shell) createTable(ddl *sqlparser.DDL) error {
	if ddl.TableSpec == nil {
		return fmt.Errorf("CREATE TABLE requires an explicit column list")
	}
	name := ddl.NewName.Name.String()

	fields := make([]godb.FieldType, 0, len(ddl.TableSpec.Columns))
	pkey := ""
	for _, col := range ddl.TableSpec.Columns {
		ftype, err := columnDBType(col.Type.Type)
		if err != nil {
			return err
		}
		fields = append(fields, godb.FieldType{Fname: col.Name.String(), Ftype: ftype})
		if col.Type.KeyOpt == sqlparser.ColKeyPrimary {
			pkey = col.Name.String()
		}
	}

	td := &godb.TupleDesc{Fields: fields}
	backing := filepath.Join(s.dataDir, name+".dat")
	file, err := godb.NewHeapFile(backing, td, s.db.BufferPool())
	if err != nil {
		return err
	}
	s.db.Catalog().AddTable(file, name, pkey)
	fmt.Printf("table %s created\n", name)
	return nil
}

func columnDBType(sqlType string) (godb.DBType, error) {
	switch sqlType {
	case "int", "integer", "tinyint", "smallint", "bigint":
		return godb.IntType, nil
	case "varchar", "char", "text":
		return godb.StringType, nil
	default:
		return godb.UnknownType, fmt.Errorf("unsupported column type %q", sqlType)
	}
}

// insert builds one Tuple per VALUES row and runs it through InsertOp.
func (s *shell) insert(ins *sqlparser.Insert) error {
	tableName := ins.Table.Name.String()
	tableID, err := s.db.Catalog().GetTableID(tableName)
	if err != nil {
		return err
	}
	td, err := s.db.Catalog().GetTupleDesc(tableID)
	if err != nil {
		return err
	}

	values, ok := ins.Rows.(sqlparser.Values)
	if !ok {
		return fmt.Errorf("INSERT ... SELECT is not supported in this shell")
	}

	tuples := make([]*godb.Tuple, 0, len(values))
	for _, row := range values {
		if len(row) != len(td.Fields) {
			return fmt.Errorf("row has %d values, table %s has %d columns", len(row), tableName, len(td.Fields))
		}
		fieldVals := make([]godb.DBValue, len(row))
		for i, expr := range row {
			v, err := literalValue(expr, td.Fields[i].Ftype)
			if err != nil {
				return err
			}
			fieldVals[i] = v
		}
		tuples = append(tuples, &godb.Tuple{Desc: *td, Fields: fieldVals})
	}

	child := &tupleSliceOp{desc: td, tuples: tuples}
	insertOp, err := godb.NewInsertOp(s.db.BufferPool(), tableID, child)
	if err != nil {
		return err
	}
	return s.runToCompletion(insertOp)
}

func literalValue(expr sqlparser.Expr, ftype godb.DBType) (godb.DBValue, error) {
	val, ok := expr.(*sqlparser.SQLVal)
	if !ok {
		return nil, fmt.Errorf("only literal values are supported in INSERT")
	}
	switch ftype {
	case godb.IntType:
		n, err := strconv.ParseInt(string(val.Val), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("expected an integer, got %q", val.Val)
		}
		return godb.IntField{Value: int32(n)}, nil
	case godb.StringType:
		return godb.StringField{Value: string(val.Val)}, nil
	default:
		return nil, fmt.Errorf("unsupported column type")
	}
}

// selectQuery supports a single table, an optional WHERE with one
// comparison, and a SELECT list of bare columns or '*'. Joins, GROUP BY, and
// subqueries are not supported in this shell.
func (s *shell) selectQuery(sel *sqlparser.Select) error {
	if len(sel.From) != 1 {
		return fmt.Errorf("joins are not supported in this shell")
	}
	aliased, ok := sel.From[0].(*sqlparser.AliasedTableExpr)
	if !ok {
		return fmt.Errorf("FROM clause is not supported in this shell")
	}
	tableExpr, ok := aliased.Expr.(sqlparser.TableName)
	if !ok {
		return fmt.Errorf("FROM clause is not supported in this shell")
	}
	tableName := tableExpr.Name.String()
	alias := tableName
	if !aliased.As.IsEmpty() {
		alias = aliased.As.String()
	}

	tableID, err := s.db.Catalog().GetTableID(tableName)
	if err != nil {
		return err
	}
	file, err := s.db.Catalog().GetDatabaseFile(tableID)
	if err != nil {
		return err
	}

	var op godb.Operator = godb.NewSeqScan(file, alias)

	if sel.Where != nil {
		cmp, ok := sel.Where.Expr.(*sqlparser.ComparisonExpr)
		if !ok {
			return fmt.Errorf("only a single comparison WHERE clause is supported in this shell")
		}
		left, err := exprToExpr(cmp.Left, op.Descriptor())
		if err != nil {
			return err
		}
		right, err := exprToExpr(cmp.Right, op.Descriptor())
		if err != nil {
			return err
		}
		boolOp, err := comparisonBoolOp(cmp.Operator)
		if err != nil {
			return err
		}
		op, err = godb.NewFilter(left, boolOp, right, op)
		if err != nil {
			return err
		}
	}

	if !isSelectStar(sel.SelectExprs) {
		fields := make([]godb.FieldType, 0, len(sel.SelectExprs))
		names := make([]string, 0, len(sel.SelectExprs))
		for _, se := range sel.SelectExprs {
			aliasedExpr, ok := se.(*sqlparser.AliasedExpr)
			if !ok {
				return fmt.Errorf("only column expressions are supported in this shell")
			}
			colName, ok := aliasedExpr.Expr.(*sqlparser.ColName)
			if !ok {
				return fmt.Errorf("only bare column references are supported in this shell")
			}
			want := godb.FieldType{Fname: colName.Name.String()}
			if !colName.Qualifier.IsEmpty() {
				want.TableQualifier = colName.Qualifier.Name.String()
			}
			idx, err := findField(op.Descriptor(), want)
			if err != nil {
				return err
			}
			fields = append(fields, op.Descriptor().Fields[idx])
			outName := colName.Name.String()
			if !aliasedExpr.As.IsEmpty() {
				outName = aliasedExpr.As.String()
			}
			names = append(names, outName)
		}
		op, err = godb.NewProjectOp(fields, names, sel.Distinct != "", op)
		if err != nil {
			return err
		}
	}

	if sel.Limit != nil && sel.Limit.Rowcount != nil {
		limitVal, err := literalValue(sel.Limit.Rowcount, godb.IntType)
		if err != nil {
			return err
		}
		op, err = godb.NewLimitOp(godb.NewConstExpr(limitVal, godb.IntType), op)
		if err != nil {
			return err
		}
	}

	return s.printRows(op)
}

func isSelectStar(exprs sqlparser.SelectExprs) bool {
	if len(exprs) != 1 {
		return false
	}
	_, ok := exprs[0].(*sqlparser.StarExpr)
	return ok
}

func findField(desc *godb.TupleDesc, want godb.FieldType) (int, error) {
	for i, f := range desc.Fields {
		if f.Fname != want.Fname {
			continue
		}
		if want.TableQualifier == "" || f.TableQualifier == want.TableQualifier {
			return i, nil
		}
	}
	return -1, fmt.Errorf("unknown column %s", want.Fname)
}

func exprToExpr(e sqlparser.Expr, desc *godb.TupleDesc) (godb.Expr, error) {
	switch v := e.(type) {
	case *sqlparser.ColName:
		want := godb.FieldType{Fname: v.Name.String()}
		if !v.Qualifier.IsEmpty() {
			want.TableQualifier = v.Qualifier.Name.String()
		}
		idx, err := findField(desc, want)
		if err != nil {
			return nil, err
		}
		return godb.NewFieldExpr(desc.Fields[idx]), nil
	case *sqlparser.SQLVal:
		if v.Type == sqlparser.StrVal {
			return godb.NewConstExpr(godb.StringField{Value: string(v.Val)}, godb.StringType), nil
		}
		n, err := strconv.ParseInt(string(v.Val), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("expected a literal, got %q", v.Val)
		}
		return godb.NewConstExpr(godb.IntField{Value: int32(n)}, godb.IntType), nil
	default:
		return nil, fmt.Errorf("unsupported expression in WHERE clause")
	}
}

func comparisonBoolOp(op string) (godb.BoolOp, error) {
	switch op {
	case sqlparser.EqualStr:
		return godb.OpEq, nil
	case sqlparser.NotEqualStr:
		return godb.OpNeq, nil
	case sqlparser.GreaterThanStr:
		return godb.OpGt, nil
	case sqlparser.GreaterEqualStr:
		return godb.OpGe, nil
	case sqlparser.LessThanStr:
		return godb.OpLt, nil
	case sqlparser.LessEqualStr:
		return godb.OpLe, nil
	case sqlparser.LikeStr:
		return godb.OpLike, nil
	default:
		return 0, fmt.Errorf("unsupported comparison operator %q", op)
	}
}

// printRows drains op and prints its output as a header followed by one
// tab-separated line per row.
func (s *shell) printRows(op godb.Operator) error {
	tid := godb.NewTID()
	if err := s.db.BufferPool().BeginTransaction(tid); err != nil {
		return err
	}
	it, err := op.Iterator(tid)
	if err != nil {
		s.db.BufferPool().TransactionComplete(tid, false)
		return err
	}
	if err := it.Open(); err != nil {
		s.db.BufferPool().TransactionComplete(tid, false)
		return err
	}

	fmt.Println(op.Descriptor().HeaderString())
	count := 0
	for {
		has, err := it.HasNext()
		if err != nil {
			s.db.BufferPool().TransactionComplete(tid, false)
			return err
		}
		if !has {
			break
		}
		t, err := it.Next()
		if err != nil {
			s.db.BufferPool().TransactionComplete(tid, false)
			return err
		}
		fmt.Println(t.PrettyPrintString())
		count++
	}
	fmt.Printf("(%d rows)\n", count)
	return s.db.BufferPool().TransactionComplete(tid, true)
}

// runToCompletion runs a mutating operator (Insert/Delete) to its single
// count tuple and prints it.
func (s *shell) runToCompletion(op godb.Operator) error {
	tid := godb.NewTID()
	if err := s.db.BufferPool().BeginTransaction(tid); err != nil {
		return err
	}
	it, err := op.Iterator(tid)
	if err != nil {
		s.db.BufferPool().TransactionComplete(tid, false)
		return err
	}
	if err := it.Open(); err != nil {
		s.db.BufferPool().TransactionComplete(tid, false)
		return err
	}
	has, err := it.HasNext()
	if err != nil {
		s.db.BufferPool().TransactionComplete(tid, false)
		return err
	}
	if !has {
		return s.db.BufferPool().TransactionComplete(tid, true)
	}
	t, err := it.Next()
	if err != nil {
		s.db.BufferPool().TransactionComplete(tid, false)
		return err
	}
	fmt.Println(t.PrettyPrintString())
	return s.db.BufferPool().TransactionComplete(tid, true)
}

// tupleSliceOp is a trivial leaf Operator serving tuples already in memory,
// used to feed literal INSERT ... VALUES rows into InsertOp's child slot.
type tupleSliceOp struct {
	desc   *godb.TupleDesc
	tuples []*godb.Tuple
}

func (o *tupleSliceOp) Descriptor() *godb.TupleDesc { return o.desc }

func (o *tupleSliceOp) Iterator(tid godb.TransactionID) (godb.DBFileIterator, error) {
	return &sliceIterator{tuples: o.tuples}, nil
}

// sliceIterator is a minimal DBFileIterator over an in-memory tuple slice.
type sliceIterator struct {
	tuples []*godb.Tuple
	idx    int
	open   bool
}

func (it *sliceIterator) Open() error {
	it.idx = 0
	it.open = true
	return nil
}

func (it *sliceIterator) HasNext() (bool, error) {
	return it.open && it.idx < len(it.tuples), nil
}

func (it *sliceIterator) Next() (*godb.Tuple, error) {
	if it.idx >= len(it.tuples) {
		return nil, fmt.Errorf("next called with no tuples remaining")
	}
	t := it.tuples[it.idx]
	it.idx++
	return t, nil
}

func (it *sliceIterator) Rewind() error {
	it.idx = 0
	return nil
}

func (it *sliceIterator) Close() error {
	it.open = false
	return nil
}
