package messaging

// Kafka topics the miner publishes to
const (
	TopicShares = "duco.shares" // one message per submission, protobuf Struct
	TopicStats  = "duco.stats"  // periodic snapshots, JSON
)

// ZMQ topic frames
const (
	ZMQTopicShare = "share"
	ZMQTopicStats = "stats"
)
