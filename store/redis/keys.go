package redis

import "fmt"

func workflowKey(keyPrefix string, id string) string {
	return fmt.Sprintf("%vworkflow:%v", keyPrefix, id)
}

// workflowsKey returns the key of the ZSET indexing all stored workflows. Every member has the
// same score so members are ordered by id.
func workflowsKey(keyPrefix string) string {
	return keyPrefix + "workflows"
}
