package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Action 管理员对待审帖子的决定
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// TargetStatus 返回该决定对应的终态
func (a Action) TargetStatus() (Status, error) {
	switch a {
	case ActionApprove:
		return StatusApproved, nil
	case ActionReject:
		return StatusRejected, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, string(a))
	}
}

// ActionToken 内联按钮携带的关联令牌 {action, postId}，编码为 "<action>:<postId>"
type ActionToken struct {
	Action Action
	PostID int64
}

func NewActionToken(action Action, postID int64) ActionToken {
	return ActionToken{Action: action, PostID: postID}
}

func (t ActionToken) String() string {
	return string(t.Action) + ":" + strconv.FormatInt(t.PostID, 10)
}

// ParseActionToken 先校验 id 再校验 action：
// 非数字、零或负数 id 返回 ErrInvalidPostID，未知 action 返回 ErrUnknownAction。
func ParseActionToken(data string) (ActionToken, error) {
	action, idStr, ok := strings.Cut(data, ":")
	if !ok {
		return ActionToken{}, ErrInvalidPostID
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return ActionToken{}, ErrInvalidPostID
	}

	t := ActionToken{Action: Action(action), PostID: id}
	if _, err := t.Action.TargetStatus(); err != nil {
		return ActionToken{}, err
	}
	return t, nil
}
