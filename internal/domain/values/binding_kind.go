package values

// BindingKind says whether a binding is visible outside its unit.
type BindingKind int

const (
	// BindingLocal is visible only inside the declaring unit and its nested units.
	BindingLocal BindingKind = iota
	// BindingExported becomes part of the unit's output.
	BindingExported
)

func (k BindingKind) String() string {
	if k == BindingExported {
		return "exported"
	}
	return "local"
}

// IsExported returns true for exported bindings
func (k BindingKind) IsExported() bool {
	return k == BindingExported
}
