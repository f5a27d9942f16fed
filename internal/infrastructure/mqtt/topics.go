package mqtt

// TopicPrefixSystem is the base for service-level topics. Device telemetry
// and control topics live under "home/" and are built by package topic.
const TopicPrefixSystem = "homewatch/system"

// Topics provides builders for service-level MQTT topics.
type Topics struct{}

// SystemStatus is where the service announces online/offline (retained, and
// the Last Will topic).
//
// Example: homewatch/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}
