package redis

import (
	"fmt"

	"github.com/apexfest/checkin/internal/model"
)

// Key prefix for all check-in data
const keyPrefix = "checkin"

// Key generation functions for each entity type

// subjectKey returns the Redis key for a Subject (JSON, points excluded)
func subjectKey(id model.SubjectID) string {
	return fmt.Sprintf("%s:subject:%s", keyPrefix, id)
}

// subjectPointsKey returns the HASH of subject id -> points
func subjectPointsKey() string {
	return fmt.Sprintf("%s:subject_points", keyPrefix)
}

// subjectsKey returns the LIST of subject ids in creation order
func subjectsKey() string {
	return fmt.Sprintf("%s:subjects", keyPrefix)
}

// subjectPrefixIndexKey returns the sorted set queried with ZRANGEBYLEX for prefix lookup
func subjectPrefixIndexKey() string {
	return fmt.Sprintf("%s:idx:subject_prefix", keyPrefix)
}

// subjectShortKey returns the key claiming an 8-character subject short id
func subjectShortKey(short string) string {
	return fmt.Sprintf("%s:idx:subject_short:%s", keyPrefix, short)
}

// hostKey returns the Redis key for a Host
func hostKey(id model.HostID) string {
	return fmt.Sprintf("%s:host:%s", keyPrefix, id)
}

// hostsKey returns the LIST of host ids in creation order
func hostsKey() string {
	return fmt.Sprintf("%s:hosts", keyPrefix)
}

// hostPrefixIndexKey returns the sorted set for host prefix lookup
func hostPrefixIndexKey() string {
	return fmt.Sprintf("%s:idx:host_prefix", keyPrefix)
}

// hostShortKey returns the key claiming a 4-character host short id
func hostShortKey(short string) string {
	return fmt.Sprintf("%s:idx:host_short:%s", keyPrefix, short)
}

// eventKey returns the Redis key for an Event
func eventKey(id model.EventID) string {
	return fmt.Sprintf("%s:event:%s", keyPrefix, id)
}

// eventsKey returns the LIST of event ids in creation order
func eventsKey() string {
	return fmt.Sprintf("%s:events", keyPrefix)
}

// hostEventsKey returns the LIST of event ids owned by a host
func hostEventsKey(hostID model.HostID) string {
	return fmt.Sprintf("%s:idx:host_events:%s", keyPrefix, hostID)
}

// recordsKey returns the LIST of every participation record (JSON) in insertion order
func recordsKey() string {
	return fmt.Sprintf("%s:records", keyPrefix)
}

// subjectRecordsKey returns the LIST of one subject's records in insertion order
func subjectRecordsKey(subjectID model.SubjectID) string {
	return fmt.Sprintf("%s:idx:subject_records:%s", keyPrefix, subjectID)
}

// latestRecordKey returns the key holding the newest record for a subject/event pair
func latestRecordKey(subjectID model.SubjectID, eventID model.EventID) string {
	return fmt.Sprintf("%s:latest:%s:%s", keyPrefix, subjectID, eventID)
}

// batchKey returns the key marking a submitted batch id
func batchKey(batchID model.BatchID) string {
	return fmt.Sprintf("%s:batch:%s", keyPrefix, batchID)
}
