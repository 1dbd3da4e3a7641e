package rpc

import (
	"context"

	"github.com/maneesh/fileingest/internal/ingest"
	"github.com/maneesh/fileingest/internal/models"
	"google.golang.org/grpc"
)

const uploadFileMethod = "/upload.UploadService/UploadFile"

// UploadServer is the server API of upload.UploadService
type UploadServer interface {
	UploadFile(UploadService_UploadFileServer) error
}

// UploadService_UploadFileServer is the server side of one upload stream
type UploadService_UploadFileServer interface {
	SendAndClose(*models.UploadResult) error
	Recv() (*models.UploadChunk, error)
	grpc.ServerStream
}

type uploadFileServer struct {
	grpc.ServerStream
}

func (x *uploadFileServer) SendAndClose(m *models.UploadResult) error {
	return x.ServerStream.SendMsg(m)
}

func (x *uploadFileServer) Recv() (*models.UploadChunk, error) {
	m := new(models.UploadChunk)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func uploadFileHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(UploadServer).UploadFile(&uploadFileServer{stream})
}

// UploadServiceDesc describes upload.UploadService
var UploadServiceDesc = grpc.ServiceDesc{
	ServiceName: "upload.UploadService",
	HandlerType: (*UploadServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "UploadFile",
			Handler:       uploadFileHandler,
			ClientStreams: true,
		},
	},
	Metadata: "upload.proto",
}

// RegisterUploadServer attaches srv to s
func RegisterUploadServer(s grpc.ServiceRegistrar, srv UploadServer) {
	s.RegisterService(&UploadServiceDesc, srv)
}

// UploadHandler serves upload streams with an ingestion service
type UploadHandler struct {
	svc *ingest.Service
}

// NewUploadHandler wraps svc
func NewUploadHandler(svc *ingest.Service) *UploadHandler {
	return &UploadHandler{svc: svc}
}

// UploadFile hands the stream to the ingestion service and replies once
func (h *UploadHandler) UploadFile(stream UploadService_UploadFileServer) error {
	res, err := h.svc.Ingest(stream.Context(), stream)
	if err != nil {
		return ToStatus(err)
	}
	return stream.SendAndClose(res)
}

// UploadFileClient is the client side of one upload stream
type UploadFileClient interface {
	Send(*models.UploadChunk) error
	CloseAndRecv() (*models.UploadResult, error)
	grpc.ClientStream
}

type uploadFileClient struct {
	grpc.ClientStream
}

func (x *uploadFileClient) Send(m *models.UploadChunk) error {
	return x.ClientStream.SendMsg(m)
}

func (x *uploadFileClient) CloseAndRecv() (*models.UploadResult, error) {
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	m := new(models.UploadResult)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// UploadClient calls upload.UploadService
type UploadClient struct {
	cc grpc.ClientConnInterface
}

// NewUploadClient creates a client over cc
func NewUploadClient(cc grpc.ClientConnInterface) *UploadClient {
	return &UploadClient{cc: cc}
}

// UploadFile opens a new upload stream. Cancelling ctx aborts it.
func (c *UploadClient) UploadFile(ctx context.Context, opts ...grpc.CallOption) (UploadFileClient, error) {
	opts = append([]grpc.CallOption{CallCodec()}, opts...)
	stream, err := c.cc.NewStream(ctx, &UploadServiceDesc.Streams[0], uploadFileMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &uploadFileClient{stream}, nil
}
