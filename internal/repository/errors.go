// Package repository holds the MySQL-backed stores.  The sentinel
// errors below are the only failures callers are expected to branch on;
// anything else is an infrastructure error.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when no row matches the given key.  Handlers
// translate it into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when an insert violates the unique email
// index.  Handlers translate it into an HTTP 409 response.
var ErrEmailExists = errors.New("email already exists")

// ErrDuplicateSelector is returned when an ephemeral token selector
// collides with an existing one.
var ErrDuplicateSelector = errors.New("selector already exists")

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
