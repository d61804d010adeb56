package message

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message is the common interface every concrete message variant
// satisfies. The request-id and message-type live outside the JSON body
// (they are frame header fields, see package frame); Serialize/Deserialize
// only ever touch the body.
type Message interface {
	ID() string
	SetID(id string)
	Type() MType
	Serialize() ([]byte, error)
	Deserialize(data []byte) error
	Check() error
}

// base carries the two header fields every concrete type embeds.
type base struct {
	id    string
	mtype MType
}

func (b *base) ID() string        { return b.id }
func (b *base) SetID(id string)   { b.id = id }
func (b *base) Type() MType       { return b.mtype }

// Responder is implemented by every *_RSP message variant. It lets code
// that only knows it holds "some response" (e.g. requestor's disconnect
// synthesis) set the rcode without a type switch over all three variants.
type Responder interface {
	Message
	RCode() RCode
	SetRCode(RCode)
}

// RCodeError adapts a non-ok response code into an error, for callers
// (rpc.Caller, registry.Discovery, topic.Client) that want plain Go error
// handling on top of the wire's rcode.
type RCodeError struct {
	RCode RCode
}

func (e *RCodeError) Error() string {
	return fmt.Sprintf("rcode %d: %s", e.RCode, ReasonFor(e.RCode))
}

// ErrInvalid wraps a structural validation failure from Check(). Callers
// that need the rcode should use InvalidMessage directly; this exists so
// frame decoding can distinguish "parsed fine but invalid" from
// "failed to parse at all".
var ErrInvalid = errors.New("message: invalid")

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// ---- RPC_REQ ----

type rpcRequestBody struct {
	Method     string                 `json:"method"`
	Parameters map[string]interface{} `json:"parameters"`
}

type RPCRequest struct {
	base
	body rpcRequestBody
}

func NewRPCRequest() *RPCRequest {
	return &RPCRequest{base: base{mtype: RPCReq}, body: rpcRequestBody{Parameters: map[string]interface{}{}}}
}

func (m *RPCRequest) Method() string                     { return m.body.Method }
func (m *RPCRequest) SetMethod(method string)             { m.body.Method = method }
func (m *RPCRequest) Parameters() map[string]interface{} { return m.body.Parameters }
func (m *RPCRequest) SetParameters(p map[string]interface{}) {
	if p == nil {
		p = map[string]interface{}{}
	}
	m.body.Parameters = p
}

func (m *RPCRequest) Serialize() ([]byte, error) { return json.Marshal(m.body) }
func (m *RPCRequest) Deserialize(data []byte) error {
	m.body = rpcRequestBody{}
	return json.Unmarshal(data, &m.body)
}
func (m *RPCRequest) Check() error {
	if m.body.Method == "" {
		return invalid("rpc request: method is missing or empty")
	}
	if m.body.Parameters == nil {
		return invalid("rpc request: parameters object is missing")
	}
	return nil
}

// ---- RPC_RSP ----

type rpcResponseBody struct {
	RCode  RCode       `json:"rcode"`
	Result interface{} `json:"result"`
}

type RPCResponse struct {
	base
	body rpcResponseBody
}

func NewRPCResponse() *RPCResponse {
	return &RPCResponse{base: base{mtype: RPCRsp}}
}

func (m *RPCResponse) RCode() RCode             { return m.body.RCode }
func (m *RPCResponse) SetRCode(rc RCode)        { m.body.RCode = rc }
func (m *RPCResponse) Result() interface{}      { return m.body.Result }
func (m *RPCResponse) SetResult(v interface{})  { m.body.Result = v }

func (m *RPCResponse) Serialize() ([]byte, error) { return json.Marshal(m.body) }
func (m *RPCResponse) Deserialize(data []byte) error {
	m.body = rpcResponseBody{}
	return json.Unmarshal(data, &m.body)
}
func (m *RPCResponse) Check() error {
	if m.body.RCode < OK || m.body.RCode > InternalError {
		return invalid("rpc response: rcode %d out of range", m.body.RCode)
	}
	return nil
}

// ---- TOPIC_REQ ----

type topicRequestBody struct {
	TopicKey string      `json:"topic_key"`
	Optype   TopicOptype `json:"optype"`
	TopicMsg string      `json:"topic_msg,omitempty"`
}

type TopicRequest struct {
	base
	body topicRequestBody
}

func NewTopicRequest() *TopicRequest {
	return &TopicRequest{base: base{mtype: TopicReq}}
}

func (m *TopicRequest) TopicKey() string             { return m.body.TopicKey }
func (m *TopicRequest) SetTopicKey(name string)      { m.body.TopicKey = name }
func (m *TopicRequest) Optype() TopicOptype          { return m.body.Optype }
func (m *TopicRequest) SetOptype(op TopicOptype)     { m.body.Optype = op }
func (m *TopicRequest) TopicMsg() string              { return m.body.TopicMsg }
func (m *TopicRequest) SetTopicMsg(msg string)        { m.body.TopicMsg = msg }

func (m *TopicRequest) Serialize() ([]byte, error) { return json.Marshal(m.body) }
func (m *TopicRequest) Deserialize(data []byte) error {
	m.body = topicRequestBody{}
	return json.Unmarshal(data, &m.body)
}
func (m *TopicRequest) Check() error {
	if m.body.TopicKey == "" {
		return invalid("topic request: topic_key is missing or empty")
	}
	if m.body.Optype < TopicCreate || m.body.Optype > TopicPublish {
		return invalid("topic request: optype %d out of range", m.body.Optype)
	}
	if m.body.Optype == TopicPublish && m.body.TopicMsg == "" {
		return invalid("topic request: topic_msg is required for publish")
	}
	return nil
}

// ---- TOPIC_RSP ----

type topicResponseBody struct {
	RCode RCode `json:"rcode"`
}

type TopicResponse struct {
	base
	body topicResponseBody
}

func NewTopicResponse() *TopicResponse {
	return &TopicResponse{base: base{mtype: TopicRsp}}
}

func (m *TopicResponse) RCode() RCode      { return m.body.RCode }
func (m *TopicResponse) SetRCode(rc RCode) { m.body.RCode = rc }

func (m *TopicResponse) Serialize() ([]byte, error) { return json.Marshal(m.body) }
func (m *TopicResponse) Deserialize(data []byte) error {
	m.body = topicResponseBody{}
	return json.Unmarshal(data, &m.body)
}
func (m *TopicResponse) Check() error {
	if m.body.RCode < OK || m.body.RCode > InternalError {
		return invalid("topic response: rcode %d out of range", m.body.RCode)
	}
	return nil
}

// ---- SERVICE_REQ ----

type serviceRequestBody struct {
	Method string        `json:"method"`
	Optype ServiceOptype `json:"optype"`
	Host   *Host         `json:"host,omitempty"`
}

type ServiceRequest struct {
	base
	body serviceRequestBody
}

func NewServiceRequest() *ServiceRequest {
	return &ServiceRequest{base: base{mtype: ServiceReq}}
}

func (m *ServiceRequest) Method() string                 { return m.body.Method }
func (m *ServiceRequest) SetMethod(method string)        { m.body.Method = method }
func (m *ServiceRequest) Optype() ServiceOptype          { return m.body.Optype }
func (m *ServiceRequest) SetOptype(op ServiceOptype)     { m.body.Optype = op }
func (m *ServiceRequest) Host() *Host                    { return m.body.Host }
func (m *ServiceRequest) SetHost(h *Host)                { m.body.Host = h }

func (m *ServiceRequest) Serialize() ([]byte, error) { return json.Marshal(m.body) }
func (m *ServiceRequest) Deserialize(data []byte) error {
	m.body = serviceRequestBody{}
	return json.Unmarshal(data, &m.body)
}
func (m *ServiceRequest) Check() error {
	if m.body.Method == "" {
		return invalid("service request: method is missing or empty")
	}
	if m.body.Optype < ServiceRegistry || m.body.Optype > ServiceOffline {
		return invalid("service request: optype %d out of range", m.body.Optype)
	}
	if m.body.Optype != ServiceDiscovery && m.body.Host == nil {
		return invalid("service request: host is required for optype %v", m.body.Optype)
	}
	return nil
}

// ---- SERVICE_RSP ----

type serviceResponseBody struct {
	RCode  RCode         `json:"rcode"`
	Optype ServiceOptype `json:"optype"`
	Method string        `json:"method,omitempty"`
	Host   []Host        `json:"host,omitempty"`
}

type ServiceResponse struct {
	base
	body serviceResponseBody
}

func NewServiceResponse() *ServiceResponse {
	return &ServiceResponse{base: base{mtype: ServiceRsp}}
}

func (m *ServiceResponse) RCode() RCode             { return m.body.RCode }
func (m *ServiceResponse) SetRCode(rc RCode)        { m.body.RCode = rc }
func (m *ServiceResponse) Optype() ServiceOptype    { return m.body.Optype }
func (m *ServiceResponse) SetOptype(op ServiceOptype) { m.body.Optype = op }
func (m *ServiceResponse) Method() string            { return m.body.Method }
func (m *ServiceResponse) SetMethod(method string)   { m.body.Method = method }
func (m *ServiceResponse) Host() []Host              { return m.body.Host }
func (m *ServiceResponse) SetHost(hosts []Host)       { m.body.Host = hosts }

func (m *ServiceResponse) Serialize() ([]byte, error) { return json.Marshal(m.body) }
func (m *ServiceResponse) Deserialize(data []byte) error {
	m.body = serviceResponseBody{}
	return json.Unmarshal(data, &m.body)
}
func (m *ServiceResponse) Check() error {
	if m.body.RCode < OK || m.body.RCode > InternalError {
		return invalid("service response: rcode %d out of range", m.body.RCode)
	}
	if m.body.Optype < ServiceRegistry || m.body.Optype > ServiceUnknown {
		return invalid("service response: optype %d out of range", m.body.Optype)
	}
	return nil
}

// ErrUnknownType is returned by NewDefault for an mtype outside the closed
// enumeration.
var ErrUnknownType = errors.New("message: unknown message type")

// NewDefault constructs a zero-value instance of the concrete message type
// for mtype. It is the only place the mtype<->concrete-type mapping lives,
// per the factory requirement in the message model design.
func NewDefault(mtype MType) (Message, error) {
	switch mtype {
	case RPCReq:
		return NewRPCRequest(), nil
	case RPCRsp:
		return NewRPCResponse(), nil
	case TopicReq:
		return NewTopicRequest(), nil
	case TopicRsp:
		return NewTopicResponse(), nil
	case ServiceReq:
		return NewServiceRequest(), nil
	case ServiceRsp:
		return NewServiceResponse(), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, mtype)
	}
}
