package global

import (
	"errors"

	"PPDesk/tools/errs"
)

type Msg struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

func Success(data any) *Msg {
	return &Msg{
		Code: 200,
		Msg:  "",
		Data: data,
	}
}

// Fail 取错误链上的 CodeError；普通错误按 500 处理。
func Fail(err error) *Msg {
	var ce *errs.CodeError
	if errors.As(err, &ce) {
		msg := ce.Msg
		if ce.Detail != "" {
			msg += ": " + ce.Detail
		}
		return &Msg{Code: ce.Code, Msg: msg}
	}
	if err == nil {
		return Success(nil)
	}
	return &Msg{Code: errs.ServerInternalError, Msg: err.Error()}
}
