package ghg

import (
	"strconv"
	"strings"
)

// Path is a walk through the hierarchy for one scope and factor database.
// Choices are stored per level; setting a level drops every level below it.
//
// Path is a value type and is comparable with ==.
type Path struct {
	Scope    Scope
	Database Database

	choices [levelCount]Option
}

// NewPath starts an empty walk.
func NewPath(scope Scope, db Database) Path {
	return Path{Scope: scope, Database: db}
}

// Choice returns the option chosen at level, or the zero Option.
func (p Path) Choice(level Level) Option {
	if !level.Valid() {
		return Option{}
	}
	return p.choices[level]
}

// Set returns a copy of p with opt chosen at level and all downstream
// levels cleared.
func (p Path) Set(level Level, opt Option) Path {
	if !level.Valid() {
		return p
	}
	p.choices[level] = opt
	for l := int(level) + 1; l < levelCount; l++ {
		p.choices[l] = Option{}
	}
	return p
}

// ClearFrom returns a copy of p with level and everything below it cleared.
func (p Path) ClearFrom(level Level) Path {
	if !level.Valid() {
		return p
	}
	for l := int(level); l < levelCount; l++ {
		p.choices[l] = Option{}
	}
	return p
}

// Depth is the number of consecutive levels chosen from the root.
func (p Path) Depth() int {
	n := 0
	for _, c := range p.choices {
		if c.IsZero() {
			break
		}
		n++
	}
	return n
}

// Complete reports whether every level holds a choice.
func (p Path) Complete() bool { return p.Depth() == levelCount }

// Ready reports whether all ancestors of level are chosen.
func (p Path) Ready(level Level) bool {
	return level.Valid() && p.Depth() >= int(level)
}

func (p Path) MainCategory() Option { return p.choices[LevelMainCategory] }
func (p Path) SubCategory() Option  { return p.choices[LevelSubCategory] }
func (p Path) Activity() Option     { return p.choices[LevelActivity] }
func (p Path) Selection1() Option   { return p.choices[LevelSelection1] }
func (p Path) Selection2() Option   { return p.choices[LevelSelection2] }

// Key identifies the option list of level under this path: scope, database
// and every ancestor choice. Choices at or below level do not take part.
func (p Path) Key(level Level) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(int(level)))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(int(p.Scope)))
	b.WriteByte('|')
	b.WriteString(string(p.Database))
	for l := 0; l < int(level) && l < levelCount; l++ {
		c := p.choices[l]
		b.WriteByte('|')
		if c.NotApplicable {
			b.WriteString("\x00na")
			continue
		}
		b.WriteString(c.ID)
	}
	return b.String()
}

func (p Path) String() string {
	parts := []string{p.Scope.String(), string(p.Database)}
	for _, c := range p.choices {
		if c.IsZero() {
			break
		}
		parts = append(parts, c.String())
	}
	return strings.Join(parts, " > ")
}
