package rbac

import (
	"sort"

	"github.com/charlesng35/bizcore/internal/models"
)

// GroupKey identifies a permission group.
type GroupKey struct {
	TenantID string      `json:"tenant_id"`
	Role     models.Role `json:"role"`
}

// State is the derived permission state of one user.
type State struct {
	Elevated bool       `json:"elevated"`
	Groups   []GroupKey `json:"groups"`
}

// Desired computes the derived state from memberships, ignoring inactive rows,
// rows whose tenant is known to be inactive, and the row with id exclude.
// It is a pure function of its input.
func Desired(memberships []models.Membership, exclude string) State {
	var state State
	seen := make(map[GroupKey]struct{}, len(memberships))

	for _, m := range memberships {
		if !m.IsActive || !m.Role.Valid() {
			continue
		}
		if exclude != "" && m.ID == exclude {
			continue
		}
		if m.Tenant != nil && !m.Tenant.IsActive {
			continue
		}
		if m.Role.IsElevated() {
			state.Elevated = true
		}
		key := GroupKey{TenantID: m.TenantID, Role: m.Role}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		state.Groups = append(state.Groups, key)
	}

	sortKeys(state.Groups)
	return state
}

// Drift describes how stored derived state differs from the desired state.
type Drift struct {
	UserID           string     `json:"user_id"`
	ElevatedExpected bool       `json:"elevated_expected"`
	ElevatedActual   bool       `json:"elevated_actual"`
	Missing          []GroupKey `json:"missing,omitempty"`
	Stale            []GroupKey `json:"stale,omitempty"`
}

// Empty reports whether stored state matches.
func (d Drift) Empty() bool {
	return d.ElevatedExpected == d.ElevatedActual && len(d.Missing) == 0 && len(d.Stale) == 0
}

func diff(userID string, desired State, actualElevated bool, actual []GroupKey) Drift {
	d := Drift{UserID: userID, ElevatedExpected: desired.Elevated, ElevatedActual: actualElevated}

	want := make(map[GroupKey]struct{}, len(desired.Groups))
	for _, k := range desired.Groups {
		want[k] = struct{}{}
	}
	have := make(map[GroupKey]struct{}, len(actual))
	for _, k := range actual {
		have[k] = struct{}{}
		if _, ok := want[k]; !ok {
			d.Stale = append(d.Stale, k)
		}
	}
	for _, k := range desired.Groups {
		if _, ok := have[k]; !ok {
			d.Missing = append(d.Missing, k)
		}
	}
	sortKeys(d.Missing)
	sortKeys(d.Stale)
	return d
}

func sortKeys(keys []GroupKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].TenantID != keys[j].TenantID {
			return keys[i].TenantID < keys[j].TenantID
		}
		return keys[i].Role.Rank() > keys[j].Role.Rank()
	})
}
