package rpc

import (
	"testing"

	"github.com/nexusrpc/corerpc/frame"
	"github.com/nexusrpc/corerpc/message"
)

type recordingConn struct {
	id   string
	sent [][]byte
}

func (c *recordingConn) ID() string                   { return c.id }
func (c *recordingConn) Send(data []byte) error        { c.sent = append(c.sent, data); return nil }
func (c *recordingConn) Shutdown() error               { return nil }
func (c *recordingConn) Connected() bool               { return true }
func (c *recordingConn) RemoteHost() (string, int)     { return "", 0 }

func addService() *ServiceManager {
	sm := NewServiceManager()
	sm.Register(NewService("Add").
		Param("num1", TypeIntegral).
		Param("num2", TypeIntegral).
		Returns(TypeIntegral).
		Handle(func(params map[string]interface{}) (interface{}, error) {
			return params["num1"].(float64) + params["num2"].(float64), nil
		}).
		Build())
	return sm
}

func decodeRPCRsp(t *testing.T, data []byte) *message.RPCResponse {
	t.Helper()
	fr := frame.New()
	msg, n, err := fr.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(data) {
		t.Fatalf("decoded %d of %d bytes", n, len(data))
	}
	rsp, ok := msg.(*message.RPCResponse)
	if !ok {
		t.Fatalf("decoded %T, want *message.RPCResponse", msg)
	}
	return rsp
}

func TestHandleRequestOK(t *testing.T) {
	sm := addService()
	conn := &recordingConn{id: "c1"}

	req := message.NewRPCRequest()
	req.SetID("r1")
	req.SetMethod("Add")
	req.SetParameters(map[string]interface{}{"num1": float64(10), "num2": float64(20)})

	sm.HandleRequest(conn, req)

	if len(conn.sent) != 1 {
		t.Fatalf("sent %d frames, want 1", len(conn.sent))
	}
	rsp := decodeRPCRsp(t, conn.sent[0])
	if rsp.RCode() != message.OK {
		t.Fatalf("rcode = %v, want OK", rsp.RCode())
	}
	if rsp.Result() != float64(30) {
		t.Fatalf("result = %v, want 30", rsp.Result())
	}
}

func TestHandleRequestMissingParam(t *testing.T) {
	sm := addService()
	conn := &recordingConn{id: "c2"}

	req := message.NewRPCRequest()
	req.SetID("r2")
	req.SetMethod("Add")
	req.SetParameters(map[string]interface{}{"num1": float64(10)})

	sm.HandleRequest(conn, req)

	rsp := decodeRPCRsp(t, conn.sent[0])
	if rsp.RCode() != message.InvalidParams {
		t.Fatalf("rcode = %v, want InvalidParams", rsp.RCode())
	}
}

func TestHandleRequestUnknownMethod(t *testing.T) {
	sm := addService()
	conn := &recordingConn{id: "c3"}

	req := message.NewRPCRequest()
	req.SetID("r3")
	req.SetMethod("Sub")
	req.SetParameters(map[string]interface{}{"num1": float64(1), "num2": float64(2)})

	sm.HandleRequest(conn, req)

	rsp := decodeRPCRsp(t, conn.sent[0])
	if rsp.RCode() != message.ServiceNotFound {
		t.Fatalf("rcode = %v, want ServiceNotFound", rsp.RCode())
	}
}
