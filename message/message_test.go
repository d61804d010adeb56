package message

import "testing"

func TestRPCRequestCheck(t *testing.T) {
	req := NewRPCRequest()
	if err := req.Check(); err == nil {
		t.Fatal("expected error for missing method")
	}
	req.SetMethod("Add")
	req.SetParameters(map[string]interface{}{"num1": float64(1), "num2": float64(2)})
	if err := req.Check(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRPCRequestRoundTrip(t *testing.T) {
	req := NewRPCRequest()
	req.SetID("abc-123")
	req.SetMethod("Add")
	req.SetParameters(map[string]interface{}{"num1": float64(10), "num2": float64(20)})

	data, err := req.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	got := NewRPCRequest()
	if err := got.Deserialize(data); err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if got.Method() != "Add" {
		t.Fatalf("method = %q, want Add", got.Method())
	}
	if got.Parameters()["num1"] != float64(10) {
		t.Fatalf("num1 = %v, want 10", got.Parameters()["num1"])
	}
}

func TestTopicRequestPublishRequiresMsg(t *testing.T) {
	req := NewTopicRequest()
	req.SetTopicKey("t")
	req.SetOptype(TopicPublish)
	if err := req.Check(); err == nil {
		t.Fatal("expected error for missing topic_msg on publish")
	}
	req.SetTopicMsg("hello")
	if err := req.Check(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestServiceRequestHostRequiredUnlessDiscovery(t *testing.T) {
	req := NewServiceRequest()
	req.SetMethod("foo")
	req.SetOptype(ServiceRegistry)
	if err := req.Check(); err == nil {
		t.Fatal("expected error for missing host on registry")
	}
	req.SetHost(&Host{IP: "1.2.3.4", Port: 9000})
	if err := req.Check(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	disc := NewServiceRequest()
	disc.SetMethod("foo")
	disc.SetOptype(ServiceDiscovery)
	if err := disc.Check(); err != nil {
		t.Fatalf("discovery should not require host: %v", err)
	}
}

func TestNewDefaultUnknownType(t *testing.T) {
	if _, err := NewDefault(MType(99)); err == nil {
		t.Fatal("expected error for unknown mtype")
	}
}

func TestNewDefaultMapping(t *testing.T) {
	cases := []struct {
		mtype MType
		want  MType
	}{
		{RPCReq, RPCReq},
		{RPCRsp, RPCRsp},
		{TopicReq, TopicReq},
		{TopicRsp, TopicRsp},
		{ServiceReq, ServiceReq},
		{ServiceRsp, ServiceRsp},
	}
	for _, c := range cases {
		msg, err := NewDefault(c.mtype)
		if err != nil {
			t.Fatalf("NewDefault(%v): %v", c.mtype, err)
		}
		if msg.Type() != c.want {
			t.Fatalf("NewDefault(%v).Type() = %v, want %v", c.mtype, msg.Type(), c.want)
		}
	}
}
