package store

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// IsDeleted checks if a raw item carries alive=false (is soft-deleted).
func IsDeleted(item map[string]types.AttributeValue) bool {
	aliveAttr, exists := item["alive"]
	if !exists {
		return false // No alive attribute = active
	}
	alive, ok := aliveAttr.(*types.AttributeValueMemberBOOL)
	if !ok {
		return false
	}
	return !alive.Value
}

// AliveFilterExpr returns the filter expression to exclude soft-deleted items.
// Use with AliveFilterNames and AliveFilterValues.
func AliveFilterExpr() string {
	return "attribute_not_exists(#alive) OR #alive = :alive"
}

// AliveFilterNames returns expression attribute names for the alive filter.
func AliveFilterNames() map[string]string {
	return map[string]string{"#alive": "alive"}
}

// AliveFilterValues returns expression attribute values for the alive filter.
func AliveFilterValues() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		":alive": &types.AttributeValueMemberBOOL{Value: true},
	}
}
