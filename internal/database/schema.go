package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema lists the tables this service owns.  Statements are idempotent
// so EnsureSchema can run at every startup; institutional_users is created
// here too even though its rows are written by the external account
// subsystem, so a fresh environment comes up scannable.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS institutional_users (
  id           BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
  full_name    VARCHAR(255) NOT NULL,
  email        VARCHAR(255) NOT NULL DEFAULT '',
  type         ENUM('STUDENT','TEACHER','PAE') NOT NULL,
  access_state ENUM('OUTSIDE','INSIDE') NOT NULL DEFAULT 'OUTSIDE',
  is_active    TINYINT(1) NOT NULL DEFAULT 1,
  created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS guest_visits (
  id         BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
  public_id  CHAR(36) NOT NULL UNIQUE,
  full_name  VARCHAR(255) NOT NULL,
  document   VARCHAR(64) NOT NULL,
  state      ENUM('OUTSIDE','INSIDE','COMPLETED') NOT NULL DEFAULT 'OUTSIDE',
  expires_at DATETIME NOT NULL,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  KEY idx_guest_visits_expires (expires_at)
) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS passes (
  id           BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
  code         CHAR(32) NOT NULL UNIQUE,
  kind         VARCHAR(32) NOT NULL,
  status       ENUM('ACTIVE','USED','EXPIRED','REVOKED') NOT NULL DEFAULT 'ACTIVE',
  expires_at   DATETIME NULL,
  subject_kind ENUM('INSTITUTIONAL','GUEST') NOT NULL,
  subject_id   BIGINT UNSIGNED NOT NULL,
  created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  KEY idx_passes_subject (subject_kind, subject_id, kind, status),
  KEY idx_passes_expires (status, expires_at)
) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS audit_log (
  id           BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
  kind         VARCHAR(32) NOT NULL DEFAULT '',
  action       ENUM('ISSUE','VALIDATE_ALLOW','VALIDATE_DENY') NOT NULL,
  subject_kind ENUM('INSTITUTIONAL','GUEST') NULL,
  subject_id   BIGINT UNSIGNED NULL,
  pass_id      BIGINT UNSIGNED NULL,
  guard_id     BIGINT UNSIGNED NULL,
  reason       VARCHAR(64) NOT NULL DEFAULT '',
  created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  KEY idx_audit_subject (subject_kind, subject_id, created_at)
) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS scan_attempts (
  id         BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
  subject_id BIGINT UNSIGNED NOT NULL,
  pass_id    BIGINT UNSIGNED NULL,
  guard_id   BIGINT UNSIGNED NULL,
  outcome    VARCHAR(32) NOT NULL,
  reason     VARCHAR(64) NOT NULL,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  KEY idx_attempts_subject (subject_id, created_at)
) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS guards (
  id            BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
  email         VARCHAR(255) NOT NULL UNIQUE,
  password_hash VARCHAR(255) NOT NULL,
  role          ENUM('GUARD','ADMIN') NOT NULL DEFAULT 'GUARD',
  is_active     TINYINT(1) NOT NULL DEFAULT 1,
  created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS refresh_tokens (
  id         BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
  guard_id   BIGINT UNSIGNED NOT NULL,
  token_hash CHAR(64) NOT NULL UNIQUE,
  expires_at DATETIME NOT NULL,
  revoked_at DATETIME NULL,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  KEY idx_refresh_guard (guard_id)
) ENGINE=InnoDB`,
}

// EnsureSchema creates any missing tables.  It does not alter existing
// ones; structural changes ship as operated migrations.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
