// Package roster holds the fixed, ordered set of oracles trusted to submit rates.
package roster

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	id "fxsettle/pkg/domain"
	pkgstrings "fxsettle/pkg/platform/strings"
)

// Roster is immutable after construction. The zero value is an empty roster.
type Roster struct {
	members []id.AccountID
}

// New builds a roster from raw identities. Blank and repeated entries are
// dropped; the order of first occurrence is kept. Every remaining entry must
// be a valid account id.
func New(raw []string) (Roster, error) {
	cleaned := pkgstrings.DedupeAndTrim(raw)
	members := make([]id.AccountID, 0, len(cleaned))
	for _, r := range cleaned {
		acct, err := id.ParseAccountID(r)
		if err != nil {
			return Roster{}, fmt.Errorf("roster entry %q: %w", r, err)
		}
		members = append(members, acct)
	}
	return Roster{members: members}, nil
}

// MustNew is New for static configuration in tests and examples.
func MustNew(raw ...string) Roster {
	r, err := New(raw)
	if err != nil {
		panic(err)
	}
	return r
}

// Contains reports exact membership.
func (r Roster) Contains(oracle id.AccountID) bool {
	for _, m := range r.members {
		if m == oracle {
			return true
		}
	}
	return false
}

// Members returns a copy of the roster in order.
func (r Roster) Members() []id.AccountID {
	return append([]id.AccountID(nil), r.members...)
}

func (r Roster) Len() int {
	return len(r.members)
}

type rosterFile struct {
	Oracles []string `yaml:"oracles"`
}

// LoadFile reads a YAML roster of the form:
//
//	oracles:
//	  - oracle-1
//	  - oracle-2
func LoadFile(path string) (Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Roster{}, fmt.Errorf("read roster file: %w", err)
	}
	var f rosterFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Roster{}, fmt.Errorf("parse roster file: %w", err)
	}
	return New(f.Oracles)
}
