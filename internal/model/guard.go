package model

import "time"

// Guard represents an operator account as stored in the `guards` table.
// Guards authenticate against this service to perform scans; their
// identity is recorded on audit rows but never participates in the
// validation decision itself.
//
// Fields:
//  ID           – primary key identifier of the guard.
//  Email        – unique email address used to log in.
//  PasswordHash – bcrypt hashed password.
//  Role         – role name (GUARD or ADMIN).
//  IsActive     – whether the account may authenticate.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type Guard struct {
	ID           uint64    // guards.id
	Email        string    // guards.email
	PasswordHash string    // guards.password_hash
	Role         string    // guards.role
	IsActive     bool      // guards.is_active
	CreatedAt    time.Time // guards.created_at
	UpdatedAt    time.Time // guards.updated_at
}

// RefreshToken models an entry in the `refresh_tokens` table.  Each
// refresh token belongs to a guard and contains metadata for expiry
// and revocation.  The plain token is not stored; only its
// SHA-256 hash.
//
// Fields:
//  ID        – primary key identifier.
//  GuardID   – owner of the token.
//  TokenHash – SHA-256 hex digest of the token value.
//  ExpiresAt – expiration timestamp of the token.
//  RevokedAt – when the token was revoked (null if still active).
//  CreatedAt – timestamp of creation.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	GuardID   uint64     // refresh_tokens.guard_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
