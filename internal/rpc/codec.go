// Package rpc carries the upload and metadata services over gRPC. Messages
// are plain Go structs encoded with a JSON codec, so no generated protobuf
// code is needed and the service descriptors are written by hand. Servers
// pick the codec from the content-subtype, so the proto-encoded health
// service keeps working next to them.
package rpc

import (
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype of the JSON codec
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// CallCodec selects the JSON codec for one call. The generated-style clients
// in this package add it themselves, so a shared connection can still carry
// proto-encoded calls such as health checks.
func CallCodec() grpc.CallOption {
	return grpc.ForceCodec(jsonCodec{})
}
