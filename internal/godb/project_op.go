package godb

// Project narrows and/or renames each child tuple to selectFields, in order,
// optionally suppressing duplicate output rows.
type Project struct {
	selectFields []FieldType
	outputNames  []string
	child        Operator
	distinct     bool
}

// NewProjectOp builds a Project over child that keeps only selectFields,
// renamed to outputNames (same length and order), deduplicating output rows
// when distinct is true.
func NewProjectOp(selectFields []FieldType, outputNames []string, distinct bool, child Operator) (*Project, error) {
	if len(selectFields) != len(outputNames) {
		return nil, newGoDBError(MalformedDataError, "project: %d fields but %d output names", len(selectFields), len(outputNames))
	}
	return &Project{selectFields: selectFields, outputNames: outputNames, child: child, distinct: distinct}, nil
}

func (p *Project) Descriptor() *TupleDesc {
	fields := make([]FieldType, len(p.selectFields))
	for i, f := range p.selectFields {
		fields[i] = FieldType{Fname: p.outputNames[i], TableQualifier: f.TableQualifier, Ftype: f.Ftype}
	}
	return &TupleDesc{Fields: fields}
}

func (p *Project) Iterator(tid TransactionID) (DBFileIterator, error) {
	outDesc := p.Descriptor()
	return newFuncIterator(func() (func() (*Tuple, error), error) {
		childIter, err := p.child.Iterator(tid)
		if err != nil {
			return nil, err
		}
		if err := childIter.Open(); err != nil {
			return nil, err
		}
		seen := make(map[any]bool)
		return func() (*Tuple, error) {
			for {
				has, err := childIter.HasNext()
				if err != nil {
					return nil, err
				}
				if !has {
					return nil, nil
				}
				t, err := childIter.Next()
				if err != nil {
					return nil, err
				}
				projected, err := t.project(p.selectFields)
				if err != nil {
					return nil, err
				}
				projected.Desc = *outDesc
				if p.distinct {
					key := projected.tupleKey()
					if seen[key] {
						continue
					}
					seen[key] = true
				}
				return projected, nil
			}
		}, nil
	}), nil
}
