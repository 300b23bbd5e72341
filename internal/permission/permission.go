// Package permission maps an actor's role to the module/action pairs it may
// perform. Solo contexts resolve to the owner role; team contexts resolve to
// the member's role through a RoleResolver.
package permission

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

var (
	ErrDenied    = errors.New("permission denied")
	ErrNotMember = errors.New("not a member of this team")
)

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

var Roles = []Role{RoleOwner, RoleAdmin, RoleEditor, RoleViewer}

func (r Role) Valid() bool {
	return slices.Contains(Roles, r)
}

type Module string

const (
	ModuleCases     Module = "cases"
	ModuleCalendar  Module = "calendar"
	ModuleFinance   Module = "finance"
	ModuleDocuments Module = "documents"
	ModuleTeam      Module = "team"
	ModuleBackup    Module = "backup"
)

var Modules = []Module{ModuleCases, ModuleCalendar, ModuleFinance, ModuleDocuments, ModuleTeam, ModuleBackup}

func (m Module) Known() bool {
	return slices.Contains(Modules, m)
}

type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

var Actions = []Action{ActionView, ActionCreate, ActionEdit, ActionDelete}

// Table is the role -> module -> actions grant table.
type Table map[Role]map[Module][]Action

//go:embed roles.yaml
var defaultRoles []byte

// DefaultTable returns the built-in role table.
func DefaultTable() Table {
	t, err := LoadTable(bytes.NewReader(defaultRoles))
	if err != nil {
		panic(fmt.Sprintf("permission: embedded roles.yaml: %v", err))
	}
	return t
}

// LoadTable parses a YAML role table. Unknown roles, modules and actions are
// rejected, and so is an owner entry.
func LoadTable(r io.Reader) (Table, error) {
	var raw map[string]map[string][]string
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode role table: %w", err)
	}

	t := make(Table, len(raw))
	for roleName, modules := range raw {
		role := Role(roleName)
		if !role.Valid() {
			return nil, fmt.Errorf("unknown role %q", roleName)
		}
		if role == RoleOwner {
			return nil, fmt.Errorf("role %q cannot be configured", roleName)
		}
		grants := make(map[Module][]Action, len(modules))
		for moduleName, actions := range modules {
			module := Module(moduleName)
			if !module.Known() {
				return nil, fmt.Errorf("role %s: unknown module %q", roleName, moduleName)
			}
			for _, a := range actions {
				if !slices.Contains(Actions, Action(a)) {
					return nil, fmt.Errorf("role %s, module %s: unknown action %q", roleName, moduleName, a)
				}
				if !slices.Contains(grants[module], Action(a)) {
					grants[module] = append(grants[module], Action(a))
				}
			}
		}
		t[role] = grants
	}
	return t, nil
}

// LoadTableFile reads the table at path, or returns the default table when
// path is empty.
func LoadTableFile(path string) (Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open role table: %w", err)
	}
	defer f.Close()
	return LoadTable(f)
}

// Gate answers permission questions for one actor in one context. It is
// resolved once per request and is safe to share read-only.
type Gate struct {
	role   Role
	grants map[Module][]Action
}

func NewGate(role Role, table Table) *Gate {
	g := &Gate{role: role}
	if role == RoleOwner {
		g.grants = make(map[Module][]Action, len(Modules))
		for _, m := range Modules {
			g.grants[m] = slices.Clone(Actions)
		}
		return g
	}
	g.grants = table[role]
	return g
}

func (g *Gate) Role() Role {
	return g.role
}

// HasPermission reports whether the role grants at least one action on
// module. Modules missing from the table are denied.
func (g *Gate) HasPermission(module Module) bool {
	if !module.Known() {
		return false
	}
	return len(g.grants[module]) > 0
}

// Can reports whether action is allowed on module. Viewing a known module is
// always allowed once the context is reachable.
func (g *Gate) Can(module Module, action Action) bool {
	if !module.Known() {
		return false
	}
	if action == ActionView {
		return true
	}
	return slices.Contains(g.grants[module], action)
}

// Check is Can as an error.
func (g *Gate) Check(module Module, action Action) error {
	if g.Can(module, action) {
		return nil
	}
	return fmt.Errorf("%w: %s cannot %s %s", ErrDenied, g.role, action, module)
}

// Capabilities is the write-side capability set of one module.
type Capabilities struct {
	CanCreate bool `json:"canCreate"`
	CanEdit   bool `json:"canEdit"`
	CanDelete bool `json:"canDelete"`
}

func (g *Gate) Capabilities(module Module) Capabilities {
	return Capabilities{
		CanCreate: g.Can(module, ActionCreate),
		CanEdit:   g.Can(module, ActionEdit),
		CanDelete: g.Can(module, ActionDelete),
	}
}

// All returns the capability set of every known module.
func (g *Gate) All() map[Module]Capabilities {
	out := make(map[Module]Capabilities, len(Modules))
	for _, m := range Modules {
		out[m] = g.Capabilities(m)
	}
	return out
}
