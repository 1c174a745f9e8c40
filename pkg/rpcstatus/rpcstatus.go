// Package rpcstatus translates serrors values into gRPC status codes at
// the operator RPC boundary (spec §6, §7), following the error-to-status
// mapping convention used by the teacher's RPC handlers (e.g.
// go/pkg/hiddenpath/grpc/lookup.go's status.Error(codes.Internal, ...)).
package rpcstatus

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/openr-go/openr/pkg/serrors"
)

// notFounder lets a concrete error opt into codes.NotFound, e.g. an
// unknown area-id or interface name.
type notFounder interface{ NotFound() bool }

// invalidArgumenter lets a concrete error opt into codes.InvalidArgument.
type invalidArgumenter interface{ InvalidArgument() bool }

// ToStatus converts err into a gRPC status error for an OperatorServer
// response. A nil err yields a nil error.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	var nf notFounder
	if errors.As(err, &nf) && nf.NotFound() {
		return status.Error(codes.NotFound, err.Error())
	}
	var inv invalidArgumenter
	if errors.As(err, &inv) && inv.InvalidArgument() {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	if serrors.IsTimeout(err) {
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
