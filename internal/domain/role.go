package domain

// UserRole é o papel do ator, emitido pelo provedor de identidade na claim "role" do token.
type UserRole string

const (
	RoleAdmin    UserRole = "admin"    // administra câmaras
	RoleOperator UserRole = "operator" // opera admissões, transições e liberações
)
