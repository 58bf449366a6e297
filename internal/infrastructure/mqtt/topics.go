package mqtt

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "ctagg"

// Topics builds the service's MQTT topics under a prefix.
//
//	topics := mqtt.Topics{Prefix: "labor/ctagg"}
//	topics.StoreUpdated()
//	// Returns: "labor/ctagg/events/store_updated"
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// Status returns the retained online/offline status topic.
//
// Example: ctagg/system/status
func (t Topics) Status() string {
	return t.prefix() + "/system/status"
}

// StoreUpdated returns the topic announcing a persisted aggregation run.
//
// Example: ctagg/events/store_updated
func (t Topics) StoreUpdated() string {
	return t.prefix() + "/events/store_updated"
}

// SidecarEdited returns the topic announcing an operator sidecar edit.
//
// Example: ctagg/events/sidecar_edited
func (t Topics) SidecarEdited() string {
	return t.prefix() + "/events/sidecar_edited"
}

// AggregateCommand returns the topic that triggers an aggregation run.
//
// Example: ctagg/command/aggregate
func (t Topics) AggregateCommand() string {
	return t.prefix() + "/command/aggregate"
}
