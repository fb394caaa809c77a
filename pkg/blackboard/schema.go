package blackboard

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by instance name to enable
// multiple Moot instances to safely coexist on a single Redis server.
//
// Key pattern: moot:{instance_name}:case:{session_id}:v{version}
// Index pattern: moot:{instance_name}:case:{session_id}:versions
// Channel pattern: moot:{instance_name}:progress_events

// RecordKey returns the Redis key for one version of a session's case record.
// Pattern: moot:{instance_name}:case:{session_id}:v{version}
func RecordKey(instanceName, sessionID string, version int) string {
	return fmt.Sprintf("moot:%s:case:%s:v%d", instanceName, sessionID, version)
}

// VersionIndexKey returns the Redis key for a session's version-tracking ZSET.
// Members are record keys, scores are version numbers, so the latest record is
// always the highest-scored member.
// Pattern: moot:{instance_name}:case:{session_id}:versions
func VersionIndexKey(instanceName, sessionID string) string {
	return fmt.Sprintf("moot:%s:case:%s:versions", instanceName, sessionID)
}

// ProgressEventsChannel returns the Pub/Sub channel name for workflow
// progress events.
// Pattern: moot:{instance_name}:progress_events
func ProgressEventsChannel(instanceName string) string {
	return fmt.Sprintf("moot:%s:progress_events", instanceName)
}

// VersionScore converts a record version number to a Redis ZSET score.
// Version numbers start at 1 and increment sequentially.
func VersionScore(version int) float64 {
	return float64(version)
}

// VersionFromScore converts a Redis ZSET score back to a version number.
func VersionFromScore(score float64) int {
	return int(score)
}
