package race

// Role is the capability a caller holds over canonical race state.
// The zero value is Observer so an unset role can never write.
type Role uint8

const (
	Observer Role = iota
	Authority
)

// RoleFor maps the transport's "do I hold state authority" answer to a Role.
func RoleFor(hasAuthority bool) Role {
	if hasAuthority {
		return Authority
	}
	return Observer
}

// CanMutate reports whether the role may write race state.
func (r Role) CanMutate() bool {
	return r == Authority
}

func (r Role) String() string {
	switch r {
	case Authority:
		return "authority"
	default:
		return "observer"
	}
}
