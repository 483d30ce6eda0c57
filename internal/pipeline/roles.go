package pipeline

// RoleParties binds one role to its parties.
type RoleParties struct {
	Role    string  `json:"role" yaml:"role"`
	Parties []int64 `json:"parties" yaml:"parties"`
}

// RoleBinding holds the participating roles, their parties and the job
// initiator. It is immutable once built.
type RoleBinding struct {
	initiatorRole  string
	initiatorParty int64
	roles          []RoleParties
	index          map[string]int
}

// NewRoleBinding validates and builds a binding. Roles keep the order given.
func NewRoleBinding(initiatorRole string, initiatorParty int64, roles ...RoleParties) (*RoleBinding, error) {
	b := &RoleBinding{
		initiatorRole:  initiatorRole,
		initiatorParty: initiatorParty,
		index:          make(map[string]int, len(roles)),
	}

	for _, rp := range roles {
		if rp.Role == "" {
			return nil, &DefinitionError{Err: ErrEmptyBinding, Msg: "empty role name"}
		}
		if _, dup := b.index[rp.Role]; dup {
			return nil, &DefinitionError{Err: ErrDuplicateRole, Role: rp.Role}
		}
		if len(rp.Parties) == 0 {
			return nil, &DefinitionError{Err: ErrEmptyBinding, Role: rp.Role}
		}
		seen := make(map[int64]bool, len(rp.Parties))
		for _, p := range rp.Parties {
			if seen[p] {
				return nil, &DefinitionError{Err: ErrDuplicateParty, Role: rp.Role, Party: PartyString(p)}
			}
			seen[p] = true
		}

		b.index[rp.Role] = len(b.roles)
		b.roles = append(b.roles, RoleParties{
			Role:    rp.Role,
			Parties: append([]int64(nil), rp.Parties...),
		})
	}

	if !b.HasParty(initiatorRole, initiatorParty) {
		return nil, &DefinitionError{
			Err:   ErrInitiatorNotBound,
			Role:  initiatorRole,
			Party: PartyString(initiatorParty),
		}
	}
	return b, nil
}

// Initiator returns the initiator role and party.
func (b *RoleBinding) Initiator() (string, int64) {
	return b.initiatorRole, b.initiatorParty
}

// Roles returns the bound role names in declaration order.
func (b *RoleBinding) Roles() []string {
	names := make([]string, len(b.roles))
	for i, rp := range b.roles {
		names[i] = rp.Role
	}
	return names
}

// Bindings returns a copy of every role with its parties.
func (b *RoleBinding) Bindings() []RoleParties {
	out := make([]RoleParties, len(b.roles))
	for i, rp := range b.roles {
		out[i] = RoleParties{Role: rp.Role, Parties: append([]int64(nil), rp.Parties...)}
	}
	return out
}

// Parties returns the parties bound to role.
func (b *RoleBinding) Parties(role string) ([]int64, bool) {
	i, ok := b.index[role]
	if !ok {
		return nil, false
	}
	return append([]int64(nil), b.roles[i].Parties...), true
}

func (b *RoleBinding) HasRole(role string) bool {
	_, ok := b.index[role]
	return ok
}

func (b *RoleBinding) HasParty(role string, party int64) bool {
	i, ok := b.index[role]
	if !ok {
		return false
	}
	for _, p := range b.roles[i].Parties {
		if p == party {
			return true
		}
	}
	return false
}
