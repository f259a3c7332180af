package enums

// MemberRole is the role claim on reader access tokens.
type MemberRole string

const (
	MemberRoleReader MemberRole = "reader"
	MemberRoleAdmin  MemberRole = "admin"
)

var memberRoles = set[MemberRole]{MemberRoleReader, MemberRoleAdmin}

func (m MemberRole) IsValid() bool { return memberRoles.has(m) }
