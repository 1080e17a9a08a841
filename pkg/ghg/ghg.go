// Package ghg holds the domain vocabulary shared by every layer of the
// data-collection flow: GHG Protocol scopes, factor databases, hierarchy
// levels, options and selection paths.
package ghg

import (
	"fmt"
	"strconv"
	"strings"
)

// Scope is a GHG Protocol emission scope.
type Scope int

const (
	Scope1 Scope = 1 // direct
	Scope2 Scope = 2 // indirect, purchased energy
	Scope3 Scope = 3 // value chain
)

// AllScopes lists the scopes in ledger order.
var AllScopes = []Scope{Scope1, Scope2, Scope3}

func (s Scope) Valid() bool { return s >= Scope1 && s <= Scope3 }

func (s Scope) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Scope(%d)", int(s))
	}
	return "Scope " + strconv.Itoa(int(s))
}

// ParseScope accepts "1", "scope1", "Scope 2" and similar spellings.
func ParseScope(s string) (Scope, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimPrefix(v, "scope")
	v = strings.TrimSpace(v)
	n, err := strconv.Atoi(v)
	if err != nil || !Scope(n).Valid() {
		return 0, fmt.Errorf("invalid scope %q (want 1, 2 or 3)", s)
	}
	return Scope(n), nil
}

// Database is an emission factor source.
type Database string

const (
	GHGProtocol Database = "GHG Protocol"
	DEFRA       Database = "DEFRA"
)

var databases = map[string]Database{
	"ghg protocol": GHGProtocol,
	"ghgprotocol":  GHGProtocol,
	"ghg":          GHGProtocol,
	"defra":        DEFRA,
}

// ParseDatabase resolves a user supplied database name.
func ParseDatabase(s string) (Database, error) {
	if db, ok := databases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return db, nil
	}
	return "", fmt.Errorf("unknown factor database %q (want %q or %q)", s, GHGProtocol, DEFRA)
}

// Level is one tier of the classification hierarchy.
type Level int

const (
	LevelMainCategory Level = iota
	LevelSubCategory
	LevelActivity
	LevelSelection1
	LevelSelection2

	levelCount = int(LevelSelection2) + 1
)

// LevelCount is the depth of the hierarchy.
const LevelCount = levelCount

// Levels lists every level from root to leaf.
var Levels = []Level{LevelMainCategory, LevelSubCategory, LevelActivity, LevelSelection1, LevelSelection2}

func (l Level) Valid() bool { return l >= LevelMainCategory && l <= LevelSelection2 }

// Next returns the child level, or false at the leaf.
func (l Level) Next() (Level, bool) {
	if l >= LevelSelection2 {
		return l, false
	}
	return l + 1, true
}

func (l Level) String() string {
	switch l {
	case LevelMainCategory:
		return "main category"
	case LevelSubCategory:
		return "subcategory"
	case LevelActivity:
		return "activity"
	case LevelSelection1:
		return "selection 1"
	case LevelSelection2:
		return "selection 2"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}
