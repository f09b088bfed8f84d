package memory

// ErrBlockNotFound is returned when a core block name is outside the fixed set.
type ErrBlockNotFound struct {
	Name string
}

func (e ErrBlockNotFound) Error() string {
	if e.Name == "" {
		return "core block not found"
	}

	return "core block not found: " + e.Name
}

// ErrTextNotPresent is returned when an exact-substring replace finds no
// occurrence of the old text. The block is left unchanged.
type ErrTextNotPresent struct {
	Name string
}

func (e ErrTextNotPresent) Error() string {
	return "text not present in core block: " + e.Name
}

// ErrUnknownRole is returned when a recall insert uses a role outside
// {user, assistant}.
type ErrUnknownRole struct {
	Role string
}

func (e ErrUnknownRole) Error() string {
	return "unknown recall role: " + e.Role
}
