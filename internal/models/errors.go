package models

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	ErrNotFound     = status.Errorf(codes.NotFound, "not found")
	ErrUnauthorized = status.Errorf(codes.Unauthenticated, "unauthorized")

	// Pipeline rejections. Surfaced to the acting client only,
	// never broadcast to other participants.
	ErrMissingTarget       = status.Errorf(codes.InvalidArgument, "missing conversation target")
	ErrBadConversationKey  = status.Errorf(codes.InvalidArgument, "malformed conversation key")
	ErrNotMember           = status.Errorf(codes.PermissionDenied, "not a member of this conversation")
	ErrNotSender           = status.Errorf(codes.PermissionDenied, "only the sender may modify this message")
	ErrNotAllowedToDelete  = status.Errorf(codes.PermissionDenied, "not allowed to delete this message")
	ErrGroupSendRestricted = status.Errorf(codes.PermissionDenied, "only admins may send messages in this group")
)
