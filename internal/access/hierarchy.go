package access

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// maxChainDepth bounds upward walks so corrupt data cannot loop forever.
const maxChainDepth = 32

// maxSubtreeRoles bounds downward enumeration for the same reason.
const maxSubtreeRoles = 4096

// roleChain walks ParentID links from startID up to the root and returns
// the visited roles in order. The walk is iterative with a visited set; a
// revisit, a missing link or a chain longer than maxChainDepth is reported
// as an error, never silently truncated.
func roleChain(ctx context.Context, store Store, startID string) ([]Role, error) {
	chain := make([]Role, 0, 4)
	visited := make(map[string]struct{}, 4)
	current := startID
	for current != "" {
		if _, ok := visited[current]; ok {
			return nil, fmt.Errorf("%w: cycle detected at role %s", ErrIntegrity, current)
		}
		if len(visited) >= maxChainDepth {
			return nil, fmt.Errorf("%w: role chain from %s exceeds %d hops", ErrIntegrity, startID, maxChainDepth)
		}
		visited[current] = struct{}{}
		role, err := store.GetRole(ctx, current)
		if err != nil {
			return nil, err
		}
		if role == nil {
			if current == startID {
				return nil, fmt.Errorf("%w: role %s", ErrNotFound, startID)
			}
			return nil, fmt.Errorf("%w: role chain from %s references missing role %s", ErrIntegrity, startID, current)
		}
		chain = append(chain, *role)
		current = role.ParentID
	}
	return chain, nil
}

// descendantRoleIDs returns rootID plus every role below it, breadth first.
func descendantRoleIDs(ctx context.Context, store Store, rootID string) ([]string, error) {
	ids := []string{rootID}
	seen := map[string]struct{}{rootID: {}}
	for i := 0; i < len(ids); i++ {
		if len(ids) > maxSubtreeRoles {
			return nil, fmt.Errorf("%w: subtree of role %s exceeds %d roles", ErrIntegrity, rootID, maxSubtreeRoles)
		}
		children, err := store.GetRolesByParent(ctx, ids[i])
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if _, ok := seen[child.ID]; ok {
				continue
			}
			seen[child.ID] = struct{}{}
			ids = append(ids, child.ID)
		}
	}
	return ids, nil
}

// foldName normalizes a role name for duplicate detection.
func foldName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// normalizePermissions trims, lowercases, dedupes and sorts a permission
// list. Permission strings are otherwise opaque to this package.
func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		unique[p] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for p := range unique {
		normalized = append(normalized, p)
	}
	sort.Strings(normalized)
	return normalized
}

func listFromSet(set map[string]struct{}) []string {
	list := make([]string, 0, len(set))
	for p := range set {
		list = append(list, p)
	}
	sort.Strings(list)
	return list
}
