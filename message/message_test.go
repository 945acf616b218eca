package message

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

type convertParams struct {
	Identifier   string `json:"identifier"`
	InputFormat  string `json:"inputFormat"`
	OutputFormat string `json:"outputFormat"`
}

func TestRequestWireForm(t *testing.T) {
	id := IntID(7)
	req, err := NewRequest(&id, "convertMoleculeIdentifier", convertParams{"methanol", "name", "inchi"})
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}

	want := `{"jsonrpc":"2.0","id":7,"method":"convertMoleculeIdentifier","params":{"identifier":"methanol","inputFormat":"name","outputFormat":"inchi"}}`
	if string(data) != want {
		t.Fatalf("wire form mismatch:\n got  %s\n want %s", data, want)
	}
}

// 通知（notification）没有 id 字段
func TestNotificationOmitsID(t *testing.T) {
	req, err := NewRequest(nil, "kill", nil)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	if !req.IsNotification() {
		t.Fatal("request without id should be a notification")
	}

	data, _ := json.Marshal(req)
	if strings.Contains(string(data), `"id"`) {
		t.Fatalf("notification must not carry an id: %s", data)
	}
	if !strings.Contains(string(data), `"params":{}`) {
		t.Fatalf("nil params should become an empty object: %s", data)
	}
}

func TestRequestParamsMustBeObject(t *testing.T) {
	if _, err := NewRequest(nil, "m", []int{1, 2}); err == nil {
		t.Fatal("expect error for array params")
	}

	req := &Request{JSONRPC: Version, Method: "m", Params: json.RawMessage(`"x"`)}
	if err := req.Validate(); err == nil {
		t.Fatal("expect Validate to reject string params")
	}
}

func TestIDRoundTrip(t *testing.T) {
	for _, id := range []ID{IntID(0), IntID(7), IntID(-3), StringID("abc"), StringID("7")} {
		data, err := json.Marshal(id)
		if err != nil {
			t.Fatalf("marshal %v: %v", id, err)
		}
		var got ID
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if got != id {
			t.Errorf("round trip mismatch: got %v, want %v", got, id)
		}
	}

	// 数字 7 和字符串 "7" 是不同的 id
	if IntID(7) == StringID("7") {
		t.Fatal("numeric and string ids must not compare equal")
	}
}

func TestIDRejectsFraction(t *testing.T) {
	var id ID
	if err := json.Unmarshal([]byte(`1.5`), &id); err == nil {
		t.Fatal("expect error for fractional id")
	}
}

func TestResponseValidate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"result", `{"jsonrpc":"2.0","id":1,"result":"ethanol"}`, false},
		{"null result", `{"jsonrpc":"2.0","id":1,"result":null}`, false},
		{"error", `{"jsonrpc":"2.0","id":1,"error":{"code":-1,"message":"Invalid Molecule Identifier"}}`, false},
		{"both", `{"jsonrpc":"2.0","id":1,"result":1,"error":{"code":1,"message":"x"}}`, true},
		{"neither", `{"jsonrpc":"2.0","id":1}`, true},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"result":1}`, true},
		{"missing version", `{"id":1,"result":1}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp Response
			if err := json.Unmarshal([]byte(tt.input), &resp); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if err := resp.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestErrorResponse(t *testing.T) {
	id := StringID("q1")
	resp := NewErrorResponse(&id, ErrMethodNotFound().WithData(map[string]string{"method": "nope"}))

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), `"result"`) {
		t.Fatalf("error response must not carry a result: %s", data)
	}

	var decoded Response
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	var rpcErr *Error
	if !errors.As(error(decoded.Error), &rpcErr) {
		t.Fatal("decoded error should be *Error")
	}
	if rpcErr.Code != CodeMethodNotFound || rpcErr.Message != "Method not found" {
		t.Fatalf("unexpected error: %+v", rpcErr)
	}
	if string(rpcErr.Data) != `{"method":"nope"}` {
		t.Fatalf("unexpected data: %s", rpcErr.Data)
	}
}

// error 对象必须同时带 code 和 message，零值不能冒充服务端的拒绝
func TestErrorObjectRequiresCodeAndMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"complete", `{"code":-1,"message":"Invalid Molecule Identifier"}`, false},
		{"zero code present", `{"code":0,"message":""}`, false},
		{"empty object", `{}`, true},
		{"missing code", `{"message":"no code"}`, true},
		{"missing message", `{"code":-32603}`, true},
		{"string code", `{"code":"1","message":"x"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e Error
			if err := json.Unmarshal([]byte(tt.input), &e); (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	var resp Response
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":1,"error":{}}`), &resp); err == nil {
		t.Fatal("response with an empty error object must not decode")
	}
}
