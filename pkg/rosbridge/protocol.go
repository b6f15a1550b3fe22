package rosbridge

import "encoding/json"

// Protocol operations.
const (
	opAdvertise       = "advertise"
	opUnadvertise     = "unadvertise"
	opPublish         = "publish"
	opSubscribe       = "subscribe"
	opUnsubscribe     = "unsubscribe"
	opCallService     = "call_service"
	opServiceResponse = "service_response"
	opStatus          = "status"
)

// Message types used by this module (ROS 2 names).
const (
	TypeTwist            = "geometry_msgs/msg/Twist"
	TypeTwistStamped     = "geometry_msgs/msg/TwistStamped"
	TypeDetection2DArray = "vision_msgs/msg/Detection2DArray"
)

type advertiseOp struct {
	Op        string `json:"op"`
	ID        string `json:"id,omitempty"`
	Topic     string `json:"topic"`
	Type      string `json:"type"`
	Latch     bool   `json:"latch,omitempty"`
	QueueSize int    `json:"queue_size,omitempty"`
}

type unadvertiseOp struct {
	Op    string `json:"op"`
	ID    string `json:"id,omitempty"`
	Topic string `json:"topic"`
}

type publishOp struct {
	Op    string `json:"op"`
	ID    string `json:"id,omitempty"`
	Topic string `json:"topic"`
	Msg   any    `json:"msg"`
}

type subscribeOp struct {
	Op           string `json:"op"`
	ID           string `json:"id,omitempty"`
	Topic        string `json:"topic"`
	Type         string `json:"type,omitempty"`
	ThrottleRate int    `json:"throttle_rate,omitempty"`
	QueueLength  int    `json:"queue_length,omitempty"`
}

type unsubscribeOp struct {
	Op    string `json:"op"`
	ID    string `json:"id,omitempty"`
	Topic string `json:"topic"`
}

type callServiceOp struct {
	Op      string `json:"op"`
	ID      string `json:"id"`
	Service string `json:"service"`
	Args    any    `json:"args,omitempty"`
}

// incoming is the union of server-to-client operations.
type incoming struct {
	Op      string          `json:"op"`
	ID      string          `json:"id,omitempty"`
	Topic   string          `json:"topic,omitempty"`
	Msg     json.RawMessage `json:"msg,omitempty"`
	Service string          `json:"service,omitempty"`
	Values  json.RawMessage `json:"values,omitempty"`
	Result  *bool           `json:"result,omitempty"`
	Level   string          `json:"level,omitempty"`
}

type serviceResponse struct {
	values json.RawMessage
	result bool
	err    error
}
