package rpc

import (
	"errors"
	"fmt"

	"github.com/mohitkumar/strand/engine"
	"github.com/mohitkumar/strand/persistence"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func withMessage(st *status.Status, msg string) *status.Status {
	d := &errdetails.LocalizedMessage{
		Locale:  "en-US",
		Message: msg,
	}
	std, err := st.WithDetails(d)
	if err != nil {
		return st
	}
	return std
}

// CommandError is a thread command the engine refused.
type CommandError struct {
	Code    string
	Message string
}

func (e CommandError) GRPCStatus() *status.Status {
	code := codes.FailedPrecondition
	switch e.Code {
	case engine.ThreadNotFound:
		code = codes.NotFound
	case engine.UnknownRepairCtrl, engine.ActionNotFound:
		code = codes.InvalidArgument
	}
	return withMessage(status.New(code, fmt.Sprintf("%s: %s", e.Code, e.Message)), e.Message)
}

func (e CommandError) Error() string {
	return e.GRPCStatus().Err().Error()
}

type StorageLayerError struct{}

func (e StorageLayerError) GRPCStatus() *status.Status {
	msg := "error in underline storage layer"
	return withMessage(status.New(codes.Internal, msg), msg)
}

func (e StorageLayerError) Error() string {
	return e.GRPCStatus().Err().Error()
}

type InvalidRequestError struct {
	Message string
}

func (e InvalidRequestError) GRPCStatus() *status.Status {
	return withMessage(status.New(codes.InvalidArgument, e.Message), e.Message)
}

func (e InvalidRequestError) Error() string {
	return e.GRPCStatus().Err().Error()
}

func toRPCError(err error) error {
	var se engine.ScheduleError
	var sle persistence.StorageLayerError
	switch {
	case errors.As(err, &se):
		return CommandError{Code: se.Code, Message: se.Message}
	case errors.As(err, &sle):
		return StorageLayerError{}
	}
	return status.Error(codes.Unknown, err.Error())
}
