// Package message defines the wire-level message model shared by the RPC,
// service-discovery and topic pub/sub facilities: a closed set of message
// types, per-type JSON body schemas, and the response-code enumeration.
package message

import "fmt"

// MType is the closed set of message types carried in a frame header.
type MType int32

const (
	RPCReq MType = iota
	RPCRsp
	TopicReq
	TopicRsp
	ServiceReq
	ServiceRsp
)

func (t MType) String() string {
	switch t {
	case RPCReq:
		return "RPC_REQ"
	case RPCRsp:
		return "RPC_RSP"
	case TopicReq:
		return "TOPIC_REQ"
	case TopicRsp:
		return "TOPIC_RSP"
	case ServiceReq:
		return "SERVICE_REQ"
	case ServiceRsp:
		return "SERVICE_RSP"
	default:
		return fmt.Sprintf("MType(%d)", int32(t))
	}
}

// ResponseTypeFor maps a *_REQ mtype to the *_RSP mtype that correlates
// with it. Used by the requestor to synthesize a disconnected response of
// the right shape when a connection dies mid-flight.
func ResponseTypeFor(reqType MType) (MType, bool) {
	switch reqType {
	case RPCReq:
		return RPCRsp, true
	case TopicReq:
		return TopicRsp, true
	case ServiceReq:
		return ServiceRsp, true
	default:
		return 0, false
	}
}

// RCode is the closed set of response codes a *_RSP message can carry.
type RCode int32

const (
	OK RCode = iota
	ParseFailed
	BadMsgType
	InvalidMessage
	Disconnected
	InvalidParams
	ServiceNotFound
	InvalidOptype
	TopicNotFound
	InternalError
)

var reasons = map[RCode]string{
	OK:               "ok",
	ParseFailed:      "message body failed to parse",
	BadMsgType:       "unknown message type",
	InvalidMessage:   "message failed structural validation",
	Disconnected:     "connection closed before a response arrived",
	InvalidParams:    "parameters missing or of the wrong type",
	ServiceNotFound:  "no such method registered",
	InvalidOptype:    "unrecognized operation type",
	TopicNotFound:    "no such topic",
	InternalError:    "handler failed or returned a value of the wrong type",
}

// ReasonFor returns a short human-readable reason for an rcode, following
// the source implementation's errReason table. Unknown codes get a generic
// reason rather than panicking, since rcode values cross the wire.
func ReasonFor(rc RCode) string {
	if r, ok := reasons[rc]; ok {
		return r
	}
	return "unknown response code"
}

// TopicOptype is the closed set of operations a TOPIC_REQ can carry.
type TopicOptype int32

const (
	TopicCreate TopicOptype = iota
	TopicRemove
	TopicSubscribe
	TopicCancel
	TopicPublish
)

// ServiceOptype is the closed set of operations a SERVICE_REQ can carry.
type ServiceOptype int32

const (
	ServiceRegistry ServiceOptype = iota
	ServiceDiscovery
	ServiceOnline
	ServiceOffline
	ServiceUnknown
)

// Host is a provider's advertised (ip, port) pair. It is comparable so it
// can be used as a value in equality checks (round-robin caches dedupe
// online notifications this way).
type Host struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

func (h Host) String() string {
	return fmt.Sprintf("%s:%d", h.IP, h.Port)
}
