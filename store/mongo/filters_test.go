package mongo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/steward/assignment"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/resolutionlog"
	"github.com/xraph/steward/role"
)

func TestLiveFilterBoundsAreInclusive(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := liveFilter("t1", "u1", at)

	assert.Equal(t, "t1", f["tenant_id"])
	assert.Equal(t, "u1", f["principal_id"])
	assert.Equal(t, true, f["is_active"])

	and, ok := f["$and"].(bson.A)
	require.True(t, ok)
	require.Len(t, and, 2)

	from := and[0].(bson.M)["$or"].(bson.A)
	assert.Equal(t, bson.M{"effective_from": nil}, from[0])
	assert.Equal(t, bson.M{"effective_from": bson.M{"$lte": at}}, from[1])

	until := and[1].(bson.M)["$or"].(bson.A)
	assert.Equal(t, bson.M{"effective_until": nil}, until[0])
	assert.Equal(t, bson.M{"effective_until": bson.M{"$gte": at}}, until[1])
}

func TestAssignmentFilter(t *testing.T) {
	assert.Empty(t, assignmentFilter(nil))

	rid := id.NewRoleID()
	f := assignmentFilter(&assignment.ListFilter{
		TenantID:    "t1",
		PrincipalID: "u1",
		RoleID:      &rid,
		ActiveOnly:  true,
	})
	assert.Equal(t, bson.M{
		"tenant_id":    "t1",
		"principal_id": "u1",
		"role_id":      rid.String(),
		"is_active":    true,
	}, f)
}

func TestRoleFilterSearchIsEscaped(t *testing.T) {
	f := roleFilter(&role.ListFilter{TenantID: "t1", Search: "a.b"})
	or := f["$or"].(bson.A)
	require.Len(t, or, 2)
	assert.Equal(t, bson.M{"name": bson.M{"$regex": `a\.b`, "$options": "i"}}, or[0])
}

func TestResolutionFilterTimeRange(t *testing.T) {
	after := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	before := after.Add(24 * time.Hour)
	f := resolutionFilter(&resolutionlog.QueryFilter{TenantID: "t1", After: &after, Before: &before})
	assert.Equal(t, bson.M{"$gt": after, "$lt": before}, f["created_at"])

	f = resolutionFilter(&resolutionlog.QueryFilter{TenantID: "t1"})
	_, ok := f["created_at"]
	assert.False(t, ok)
}
