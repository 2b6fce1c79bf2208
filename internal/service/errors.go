package service

import (
	"errors"
	"strconv"
	"strings"

	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/pkg/errs"
)

var (
	ErrUserNotFound         = errs.WithCode(errs.KindNotFound, "USER_NOT_FOUND", "user not found")
	ErrConversationNotFound = errs.WithCode(errs.KindNotFound, "CONVERSATION_NOT_FOUND", "conversation not found")
	ErrGroupNotFound        = errs.WithCode(errs.KindNotFound, "GROUP_NOT_FOUND", "group not found")
	ErrMessageNotFound      = errs.WithCode(errs.KindNotFound, "MESSAGE_NOT_FOUND", "message not found")
	ErrReplyNotFound        = errs.WithCode(errs.KindNotFound, "REPLY_NOT_FOUND", "reply target not found")
	ErrMemberNotFound       = errs.WithCode(errs.KindNotFound, "MEMBER_NOT_FOUND", "user is not a member of this group")

	ErrNotParticipant  = errs.WithCode(errs.KindForbidden, "NOT_PARTICIPANT", "you are not a participant of this conversation")
	ErrBlocked         = errs.WithCode(errs.KindForbidden, "BLOCKED", "messaging between these users is blocked")
	ErrNotMessageOwner = errs.WithCode(errs.KindForbidden, "NOT_MESSAGE_OWNER", "only the message sender can perform this action")
	ErrNotAdmin        = errs.WithCode(errs.KindForbidden, "NOT_ADMIN", "only group admins can perform this action")

	ErrInvalidTarget      = errs.WithCode(errs.KindInvalidInput, "INVALID_TARGET", "exactly one of recipient_id or conversation_id is required")
	ErrInvalidReply       = errs.WithCode(errs.KindInvalidInput, "INVALID_REPLY", "reply target belongs to another conversation")
	ErrInvalidMessageID   = errs.WithCode(errs.KindInvalidInput, "INVALID_MESSAGE_ID", "invalid message id")
	ErrInvalidStatus      = errs.WithCode(errs.KindInvalidInput, "INVALID_STATUS", "status must be delivered or read")
	ErrInvalidDeleteType  = errs.WithCode(errs.KindInvalidInput, "INVALID_DELETE_TYPE", "delete type must be forMe or forEveryone")
	ErrInvalidEmoji       = errs.WithCode(errs.KindInvalidInput, "INVALID_EMOJI", "emoji is required")
	ErrInvalidCursor      = errs.WithCode(errs.KindInvalidInput, "INVALID_CURSOR", "invalid cursor")
	ErrNotEditable        = errs.WithCode(errs.KindInvalidInput, "NOT_EDITABLE", "only text and media messages can be edited")
	ErrNotForwardable     = errs.WithCode(errs.KindInvalidInput, "NOT_FORWARDABLE", "system messages cannot be forwarded")
	ErrForwardSetSize     = errs.WithCode(errs.KindInvalidInput, "FORWARD_LIMIT", "forward takes 1 to 5 messages and 1 to 5 conversations")
	ErrVideoTooLong       = errs.WithCode(errs.KindInvalidInput, "VIDEO_TOO_LONG", "videos may be at most 90 seconds long")
	ErrNotMediaType       = errs.WithCode(errs.KindInvalidInput, "INVALID_MEDIA_TYPE", "type must be image, video, audio or document")
	ErrMuteInPast         = errs.WithCode(errs.KindInvalidInput, "MUTE_UNTIL_PAST", "mute requires a future until timestamp")
	ErrGroupSize          = errs.WithCode(errs.KindInvalidInput, "GROUP_SIZE", "a group needs 2 to 20 members")
	ErrGroupNameRequired  = errs.WithCode(errs.KindInvalidInput, "GROUP_NAME_REQUIRED", "group name is required")
	ErrCannotRemoveSelf   = errs.WithCode(errs.KindInvalidInput, "CANNOT_REMOVE_SELF", "use leave to remove yourself")
	ErrInvalidRole        = errs.WithCode(errs.KindInvalidInput, "INVALID_ROLE", "role must be admin or member")
	ErrCannotBlockSelf    = errs.WithCode(errs.KindInvalidInput, "CANNOT_BLOCK_SELF", "you cannot block yourself")

	ErrEmailTaken    = errs.WithCode(errs.KindConflict, "EMAIL_TAKEN", "email already taken")
	ErrUsernameTaken = errs.WithCode(errs.KindConflict, "USERNAME_TAKEN", "username already taken")
	ErrInvalidCreds  = errs.WithCode(errs.KindUnauthorized, "INVALID_CREDENTIALS", "invalid email or password")
	ErrInvalidToken  = errs.WithCode(errs.KindUnauthorized, "UNAUTHORIZED", "invalid or expired token")

	ErrMessageDeleted        = errs.WithCode(errs.KindConflict, "MESSAGE_DELETED", "message was deleted")
	ErrPinLimit              = errs.WithCode(errs.KindConflict, "PIN_LIMIT", "you can pin at most 3 conversations")
	ErrGroupFull             = errs.WithCode(errs.KindConflict, "GROUP_FULL", "a group can have at most 20 members")
	ErrLastAdmin             = errs.WithCode(errs.KindConflict, "LAST_ADMIN", "a group must keep at least one admin")
	ErrEditWindowExpired     = errs.WithCode(errs.KindWindowExpired, "EDIT_WINDOW_EXPIRED", "messages can only be edited within 15 minutes")
	ErrDeletionWindowExpired = errs.WithCode(errs.KindWindowExpired, "DELETION_WINDOW_EXPIRED", "messages can only be deleted for everyone within 60 hours")

	ErrMessageNotPersisted = errs.WithCode(errs.KindTransientRetryable, "MESSAGE_NOT_PERSISTED", "message is not saved yet, retry shortly")
	ErrUploadFailed        = errs.WithCode(errs.KindTransientRetryable, "UPLOAD_FAILED", "media upload failed, retry shortly")
)

const tempIDPrefix = "tmp-"

// CheckMessageID rejects ids that cannot belong to a persisted row.
func CheckMessageID(id int64) error {
	if id <= 0 {
		return ErrInvalidMessageID
	}
	if id > domain.MaxMessageID {
		return ErrMessageNotPersisted
	}
	return nil
}

// ParseMessageID parses a message id received from a client. Client temp
// ids and ids past the persisted range are reported as retryable.
func ParseMessageID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, tempIDPrefix) {
		return 0, ErrMessageNotPersisted
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && numErr.Err == strconv.ErrRange && !strings.HasPrefix(raw, "-") {
			return 0, ErrMessageNotPersisted
		}
		return 0, ErrInvalidMessageID
	}
	return id, CheckMessageID(id)
}

// invalidInput classifies a domain validation error.
func invalidInput(err error) error {
	return &errs.Error{Kind: errs.KindInvalidInput, Code: "INVALID_MESSAGE", Message: err.Error()}
}
