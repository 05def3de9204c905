// Package perms maps a node's declared or inferred role to a capability set.
//
// Resolution is pure and deterministic: explicit role first, then label
// keyword inference, then a content-writer default for AI-enabled nodes,
// then no capabilities. Label inference is intrinsically fuzzy, so it lives
// behind the same Resolver interface as the strict path and can be swapped
// out without touching callers.
package perms

import (
	"log/slog"
	"strings"

	"github.com/quillworks/loom/internal/model"
)

// Resolver derives a permission set for a node.
type Resolver interface {
	Resolve(node model.Node) model.Permission
}

// roleTable is the static role -> permission mapping.
var roleTable = map[model.Role]model.Permission{
	model.RoleContentWriter:  {CanWriteContent: true},
	model.RoleEditor:         {CanProofRead: true},
	model.RoleOutliner:       {CanEditStructure: true},
	model.RoleWorldBuilder:   {CanEditStructure: true},
	model.RolePlotter:        {CanEditStructure: true},
	model.RoleResearcher:     {},
	model.RoleImageGenerator: {},
}

// labelRules maps label keywords to an inferred role, checked in order so
// editorial keywords win over generic writing ones.
var labelRules = []struct {
	keywords []string
	role     model.Role
}{
	{[]string{"editor", "proofread", "proof read", "copyedit", "revise"}, model.RoleEditor},
	{[]string{"outline", "world", "plot", "structure", "chapter plan"}, model.RoleOutliner},
	{[]string{"research", "analy"}, model.RoleResearcher},
	{[]string{"image", "illustrat", "cover art"}, model.RoleImageGenerator},
	{[]string{"writ", "author", "generat", "draft", "compose"}, model.RoleContentWriter},
}

// TableResolver resolves permissions from the static role table, falling
// back to label inference and the AI-enabled default.
type TableResolver struct {
	// Logger receives one audit line per resolution. Nil uses slog.Default.
	Logger *slog.Logger
}

// New returns the default resolver.
func New() *TableResolver {
	return &TableResolver{}
}

// Resolve derives the permission set for a node.
func (r *TableResolver) Resolve(node model.Node) model.Permission {
	perm, source := r.resolve(node)
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("perms: resolved",
		"node", node.ID,
		"label", node.Label,
		"role", node.Role,
		"source", source,
		"write_content", perm.CanWriteContent,
		"edit_structure", perm.CanEditStructure,
		"proof_read", perm.CanProofRead)
	return perm
}

func (r *TableResolver) resolve(node model.Node) (model.Permission, string) {
	if node.Role != "" {
		if perm, ok := roleTable[node.Role]; ok {
			return perm, "role"
		}
	}
	if role, ok := InferRole(node.Label); ok {
		return roleTable[role], "label"
	}
	// An unclassified node that carries a prompt is a generator; writing
	// content is the least surprising default for it.
	if node.AIConfig.Enabled() {
		return model.Permission{CanWriteContent: true}, "ai_default"
	}
	return model.Permission{}, "none"
}

// InferRole guesses a role from a human-readable label. The second return
// is false when no keyword matches.
func InferRole(label string) (model.Role, bool) {
	l := strings.ToLower(label)
	if l == "" {
		return "", false
	}
	for _, rule := range labelRules {
		for _, kw := range rule.keywords {
			if strings.Contains(l, kw) {
				return rule.role, true
			}
		}
	}
	return "", false
}

// RoleFor returns the effective role for a node: declared if known,
// otherwise inferred from the label. Empty when neither applies.
func RoleFor(node model.Node) model.Role {
	if node.Role != "" {
		if _, ok := roleTable[node.Role]; ok {
			return node.Role
		}
	}
	if role, ok := InferRole(node.Label); ok {
		return role
	}
	return ""
}
