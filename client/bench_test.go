package client

import (
	"context"
	"testing"

	"chemrpc/codec"
	"chemrpc/message"
)

// 场景1: 单连接串行调用
func BenchmarkSerialCall(b *testing.B) {
	endpoint := startArith(b)
	cli, err := Dial(context.Background(), endpoint)
	if err != nil {
		b.Fatal(err)
	}
	defer cli.Close()

	args := &Args{A: 1, B: 2}
	reply := &Reply{}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if err := cli.Call(context.Background(), "add", args, reply); err != nil {
			b.Fatal(err)
		}
	}
}

// 场景2: 并发调用，连接池提供多条独立连接
func BenchmarkConcurrentCall(b *testing.B) {
	endpoint := startArith(b)
	pc := NewPooled(endpoint, 8)
	defer pc.Close()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		args := &Args{A: 1, B: 2}
		reply := &Reply{}
		for pb.Next() {
			if err := pc.Call(context.Background(), "add", args, reply); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

// 场景3: 编解码性能（不走 socket）
func BenchmarkCodec(b *testing.B) {
	for _, ct := range []codec.CodecType{codec.CodecTypeJSON, codec.CodecTypeJSONIter} {
		b.Run(ct.String(), func(b *testing.B) {
			cdc := codec.GetCodec(ct)
			id := message.IntID(1)
			req, err := message.NewRequest(&id, "convertMoleculeIdentifier", map[string]string{
				"identifier": "methanol", "inputFormat": "name", "outputFormat": "inchi",
			})
			if err != nil {
				b.Fatal(err)
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				data, _ := cdc.Encode(req)
				var out message.Request
				cdc.Decode(data, &out)
			}
		})
	}
}
