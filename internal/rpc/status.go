package rpc

import (
	"errors"

	"github.com/maneesh/fileingest/internal/ingest"
	"github.com/maneesh/fileingest/internal/metadata"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ToStatus converts a service error into a gRPC status error
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	return status.Error(Code(err), err.Error())
}

// Code picks the gRPC code for a service error
func Code(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, ingest.ErrEmptyPayload),
		errors.Is(err, ingest.ErrMissingFilename),
		errors.Is(err, metadata.ErrInvalidRecord):
		return codes.InvalidArgument
	case errors.Is(err, ingest.ErrBlobWrite):
		return codes.Unavailable
	case errors.Is(err, ingest.ErrMetadataCommit):
		return codes.Aborted
	case errors.Is(err, ingest.ErrStreamAborted):
		return codes.Canceled
	case errors.Is(err, metadata.ErrStore):
		return codes.Unavailable
	}
	if s, ok := status.FromError(err); ok && s.Code() != codes.Unknown {
		return s.Code()
	}
	return codes.Internal
}
