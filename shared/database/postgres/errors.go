package postgres

import (
	"database/sql"
	"errors"
	"net"
	"strings"

	"github.com/lib/pq"
)

func pqError(err error) (*pq.Error, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr, true
	}
	return nil, false
}

// IsNoRowsError checks if the error is sql.ErrNoRows
func IsNoRowsError(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// UniqueViolation returns the violated constraint name for a unique_violation
func UniqueViolation(err error) (constraint string, ok bool) {
	if pqErr, isPq := pqError(err); isPq && pqErr.Code == "23505" {
		return pqErr.Constraint, true
	}
	return "", false
}

// IsUniqueConstraintError checks if the error is a unique constraint violation
func IsUniqueConstraintError(err error) bool {
	_, ok := UniqueViolation(err)
	return ok
}

// IsForeignKeyConstraintError checks if the error is a foreign key constraint violation
func IsForeignKeyConstraintError(err error) bool {
	pqErr, ok := pqError(err)
	return ok && pqErr.Code == "23503"
}

// IsInsufficientPrivilege checks for insufficient_privilege (42501)
func IsInsufficientPrivilege(err error) bool {
	pqErr, ok := pqError(err)
	return ok && pqErr.Code == "42501"
}

// IsAuthenticationError checks for invalid authorization or an unknown database
func IsAuthenticationError(err error) bool {
	pqErr, ok := pqError(err)
	if !ok {
		return false
	}
	return pqErr.Code.Class() == "28" || pqErr.Code == "3D000"
}

// IsConnectionError reports failures that indicate the store itself is unreachable
func IsConnectionError(err error) bool {
	if pqErr, ok := pqError(err); ok {
		return pqErr.Code.Class() == "08" || pqErr.Code == "53300" || pqErr.Code == "57P01"
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, pq.ErrSSLNotSupported) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "connection refused")
}

// IsTransient determines if an operation error is worth retrying
func IsTransient(err error) bool {
	if pqErr, ok := pqError(err); ok {
		switch pqErr.Code {
		case "08000", // connection_exception
			"08003", // connection_does_not_exist
			"08006", // connection_failure
			"53300", // too_many_connections
			"40001", // serialization_failure
			"40P01": // deadlock_detected
			return true
		}
		return false
	}
	return IsConnectionError(err)
}
