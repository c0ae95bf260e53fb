package dynattr

// Kind is the resolution of an attribute name against a Config.
type Kind int

const (
	// Rejected names are neither static columns nor accepted dynamic names.
	Rejected Kind = iota
	// Static names are schema columns.
	Static
	// DynamicOpen names are accepted because the namespace is open.
	DynamicOpen
	// DynamicDeclared names are listed in the declaration.
	DynamicDeclared
)

func (k Kind) String() string {
	switch k {
	case Static:
		return "static"
	case DynamicOpen:
		return "dynamic-open"
	case DynamicDeclared:
		return "dynamic-declared"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Dynamic reports whether the name lives in the blob column.
func (k Kind) Dynamic() bool {
	return k == DynamicOpen || k == DynamicDeclared
}

// Classify resolves name.
//
// With declared fields, a declared name is dynamic even if it shadows a
// column, other columns are static and anything else is rejected. Without
// declared fields, exact column matches are static and every other name is
// dynamic; nothing is rejected.
func (c *Config) Classify(name string) Kind {
	if !c.Open() {
		if _, ok := c.set[name]; ok {
			return DynamicDeclared
		}
		if c.model.HasColumn(name) {
			return Static
		}
		return Rejected
	}
	if c.model.HasColumn(name) {
		return Static
	}
	return DynamicOpen
}
