package permissions

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterPreventsDuplicates(t *testing.T) {
	const id = "test.unique.permission"
	require.NoError(t, Register(&Permission{ID: id, Module: "test"}))
	t.Cleanup(func() { unregister(id) })

	err := Register(&Permission{ID: id, Module: "test"})
	require.ErrorIs(t, err, errDuplicateID)
}

func TestRegisterRejectsSelfReferences(t *testing.T) {
	require.ErrorIs(t, Register(&Permission{ID: "self.dep", DependsOn: []string{"self.dep"}}), errSelfDependency)
	require.ErrorIs(t, Register(&Permission{ID: "self.imp", Implies: []string{"self.imp"}}), errSelfImplication)
	require.ErrorIs(t, Register(&Permission{ID: "  "}), errEmptyID)
	require.ErrorIs(t, Register(nil), errNilPermission)
}

func TestCorePermissionsAreConsistent(t *testing.T) {
	require.NoError(t, ValidateDependencies())

	for _, id := range []string{EntityView, EntityDelete, MemberManage, InvitationManage, TenantManage} {
		_, ok := Get(id)
		require.True(t, ok, id)
	}

	deps, err := ResolveDependencies(EntityEdit)
	require.NoError(t, err)
	require.Equal(t, []string{EntityView}, deps)
}

func TestResolveDependenciesReturnsTransitiveClosure(t *testing.T) {
	ids := []string{"perm.base", "perm.mid", "perm.top"}
	require.NoError(t, Register(&Permission{ID: ids[0], Module: "test"}))
	require.NoError(t, Register(&Permission{ID: ids[1], Module: "test", DependsOn: []string{ids[0]}}))
	require.NoError(t, Register(&Permission{ID: ids[2], Module: "test", DependsOn: []string{ids[1]}}))
	t.Cleanup(func() {
		for _, id := range ids {
			unregister(id)
		}
	})

	deps, err := ResolveDependencies(ids[2])
	require.NoError(t, err)
	require.ElementsMatch(t, []string{ids[0], ids[1]}, deps)
}

func TestResolveDependenciesDetectsCycles(t *testing.T) {
	const (
		first  = "perm.cycle.first"
		second = "perm.cycle.second"
	)
	require.NoError(t, Register(&Permission{ID: first, Module: "test", DependsOn: []string{second}}))
	require.NoError(t, Register(&Permission{ID: second, Module: "test", DependsOn: []string{first}}))
	t.Cleanup(func() {
		unregister(first)
		unregister(second)
	})

	_, err := ResolveDependencies(first)
	require.ErrorIs(t, err, ErrCircularDependency)
}
