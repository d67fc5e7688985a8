package ir

// Refs lists everything a value reads, in first-seen order.
type Refs struct {
	Args     []string
	Fields   []FieldRef
	Accounts []string
	Bumps    []string
}

// CollectRefs walks v and returns the arguments, fields, accounts and bumps
// it reads.
func CollectRefs(v Value) Refs {
	c := &refCollector{}
	_, _ = WalkValue[struct{}](v, c)
	return c.refs
}

// SeedRefs returns the references made by a list of seeds.
func SeedRefs(seeds []Seed) Refs {
	c := &refCollector{}
	for _, s := range seeds {
		_, _ = WalkSeed[struct{}](s, c)
	}
	return c.refs
}

type refCollector struct {
	refs Refs
}

func (c *refCollector) VisitConst(Const) (struct{}, error) { return struct{}{}, nil }

func (c *refCollector) VisitLiteral(SeedLiteral) (struct{}, error) { return struct{}{}, nil }

func (c *refCollector) VisitArg(a Arg) (struct{}, error) {
	c.refs.Args = appendUnique(c.refs.Args, a.Name)
	return struct{}{}, nil
}

func (c *refCollector) VisitField(f FieldRef) (struct{}, error) {
	for _, seen := range c.refs.Fields {
		if seen == f {
			return struct{}{}, nil
		}
	}
	c.refs.Fields = append(c.refs.Fields, f)
	return struct{}{}, nil
}

func (c *refCollector) VisitBinary(b Binary) (struct{}, error) {
	if b.Left != nil {
		_, _ = WalkExpr[struct{}](b.Left, c)
	}
	if b.Right != nil {
		_, _ = WalkExpr[struct{}](b.Right, c)
	}
	return struct{}{}, nil
}

func (c *refCollector) VisitIf(i If) (struct{}, error) {
	for _, e := range []Expr{i.Cond, i.Then, i.Else} {
		if e != nil {
			_, _ = WalkExpr[struct{}](e, c)
		}
	}
	return struct{}{}, nil
}

func (c *refCollector) VisitAccount(a AccountRef) (struct{}, error) {
	c.refs.Accounts = appendUnique(c.refs.Accounts, a.Name)
	return struct{}{}, nil
}

func (c *refCollector) VisitBump(b BumpRef) (struct{}, error) {
	c.refs.Bumps = appendUnique(c.refs.Bumps, b.Account)
	return struct{}{}, nil
}

func appendUnique(list []string, s string) []string {
	for _, x := range list {
		if x == s {
			return list
		}
	}
	return append(list, s)
}
