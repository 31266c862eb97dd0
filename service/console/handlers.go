package console

import (
	"errors"
	"net/http"
	"strings"

	"PPDesk/global"
	"PPDesk/tools/errs"

	"github.com/gin-gonic/gin"
)

type statusView struct {
	Ticket    string `json:"ticketId"`
	State     string `json:"state"`
	Connected bool   `json:"connected"`
}

type sendReq struct {
	Content string `json:"content"`
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, errs.ErrArgs):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrNoConversation):
		return http.StatusConflict
	case errors.Is(err, errs.ErrSendFailed):
		return http.StatusBadGateway
	case errors.Is(err, errs.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, err error) {
	c.JSON(httpStatus(err), global.Fail(err))
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, global.Success(statusView{
		Ticket:    s.sync.Current(),
		State:     string(s.sync.State()),
		Connected: s.sync.Connected(),
	}))
}

func (s *Server) openConversation(c *gin.Context) {
	if err := s.sync.OpenConversation(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, global.Success(s.sync.Snapshot()))
}

func (s *Server) closeConversation(c *gin.Context) {
	if err := s.sync.CloseConversation(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, global.Success(nil))
}

func (s *Server) messages(c *gin.Context) {
	c.JSON(http.StatusOK, global.Success(s.sync.Messages(c.Param("id"))))
}

func (s *Server) send(c *gin.Context) {
	var req sendReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.ErrArgs.WrapMsg("invalid body", "err", err.Error()))
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		fail(c, errs.ErrArgs.WrapMsg("content is empty"))
		return
	}
	m, err := s.sync.SendMessage(c.Request.Context(), c.Param("id"), req.Content)
	if err != nil {
		// 失败消息已经进入日志（error=true），一并返回
		msg := global.Fail(err)
		msg.Data = m
		c.JSON(httpStatus(err), msg)
		return
	}
	c.JSON(http.StatusOK, global.Success(m))
}
