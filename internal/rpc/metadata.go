package rpc

import (
	"context"

	"github.com/maneesh/fileingest/internal/metadata"
	"github.com/maneesh/fileingest/internal/models"
	"google.golang.org/grpc"
)

const (
	saveMetadataMethod = "/metadata.MetadataService/SaveMetadata"
	getAllFilesMethod  = "/metadata.MetadataService/GetAllFiles"
)

// MetadataServer is the server API of metadata.MetadataService
type MetadataServer interface {
	SaveMetadata(context.Context, *models.SaveMetadataRequest) (*models.SaveMetadataReply, error)
	GetAllFiles(context.Context, *models.GetAllFilesRequest) (*models.GetAllFilesReply, error)
}

func saveMetadataHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(models.SaveMetadataRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MetadataServer).SaveMetadata(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: saveMetadataMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MetadataServer).SaveMetadata(ctx, req.(*models.SaveMetadataRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getAllFilesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(models.GetAllFilesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MetadataServer).GetAllFiles(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getAllFilesMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MetadataServer).GetAllFiles(ctx, req.(*models.GetAllFilesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// MetadataServiceDesc describes metadata.MetadataService
var MetadataServiceDesc = grpc.ServiceDesc{
	ServiceName: "metadata.MetadataService",
	HandlerType: (*MetadataServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SaveMetadata", Handler: saveMetadataHandler},
		{MethodName: "GetAllFiles", Handler: getAllFilesHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "metadata.proto",
}

// RegisterMetadataServer attaches srv to s
func RegisterMetadataServer(s grpc.ServiceRegistrar, srv MetadataServer) {
	s.RegisterService(&MetadataServiceDesc, srv)
}

// MetadataHandler serves metadata.MetadataService with a metadata service
type MetadataHandler struct {
	svc *metadata.Service
}

// NewMetadataHandler wraps svc
func NewMetadataHandler(svc *metadata.Service) *MetadataHandler {
	return &MetadataHandler{svc: svc}
}

// SaveMetadata persists a record and replies with its id
func (h *MetadataHandler) SaveMetadata(ctx context.Context, req *models.SaveMetadataRequest) (*models.SaveMetadataReply, error) {
	file, err := h.svc.Save(ctx, req)
	if err != nil {
		return nil, ToStatus(err)
	}
	return &models.SaveMetadataReply{Message: metadata.SavedMessage, ID: file.ID}, nil
}

// GetAllFiles returns every stored record
func (h *MetadataHandler) GetAllFiles(ctx context.Context, _ *models.GetAllFilesRequest) (*models.GetAllFilesReply, error) {
	files, err := h.svc.ListAll(ctx)
	if err != nil {
		return nil, ToStatus(err)
	}
	return &models.GetAllFilesReply{Files: files}, nil
}

// MetadataClient calls metadata.MetadataService. It satisfies
// ingest.MetadataSaver.
type MetadataClient struct {
	cc grpc.ClientConnInterface
}

// NewMetadataClient creates a client over cc
func NewMetadataClient(cc grpc.ClientConnInterface) *MetadataClient {
	return &MetadataClient{cc: cc}
}

// SaveMetadata commits a record on the metadata service
func (c *MetadataClient) SaveMetadata(ctx context.Context, req *models.SaveMetadataRequest) (*models.SaveMetadataReply, error) {
	out := new(models.SaveMetadataReply)
	if err := c.cc.Invoke(ctx, saveMetadataMethod, req, out, CallCodec()); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAllFiles lists every record; a nil req is allowed
func (c *MetadataClient) GetAllFiles(ctx context.Context, req *models.GetAllFilesRequest) (*models.GetAllFilesReply, error) {
	if req == nil {
		req = &models.GetAllFilesRequest{}
	}
	out := new(models.GetAllFilesReply)
	if err := c.cc.Invoke(ctx, getAllFilesMethod, req, out, CallCodec()); err != nil {
		return nil, err
	}
	return out, nil
}
