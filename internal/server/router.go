package server

import (
	"fmt"
	"net"
	"strings"

	"github.com/wpnas/wpnas/internal/log"
	"github.com/wpnas/wpnas/internal/server/models"
	serverPlugins "github.com/wpnas/wpnas/internal/server/plugins"
)

func (s *Server) RouteRequest(conn net.Conn, req models.Request) {
	log.Debugf("wpnas API Request: method=%s id=%v", req.Method, req.ID)

	if strings.HasPrefix(req.Method, "plugins.") {
		serverPlugins.HandleRequest(conn, req, s.plugins)
		return
	}

	if strings.HasPrefix(req.Method, "notices.") {
		if s.notices == nil {
			models.RespondError(conn, req.ID, "notices not initialized")
			return
		}
		s.handleNotices(conn, req)
		return
	}

	switch req.Method {
	case "ping":
		models.Respond(conn, req.ID, "pong")
	default:
		models.RespondError(conn, req.ID, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *Server) handleNotices(conn net.Conn, req models.Request) {
	switch req.Method {
	case "notices.list":
		models.Respond(conn, req.ID, s.notices.List())
	case "notices.dismiss":
		id, err := models.StringParam(req, "id")
		if err != nil {
			models.RespondError(conn, req.ID, err.Error())
			return
		}
		s.notices.Dismiss(id)
		models.Respond(conn, req.ID, models.SuccessResult{Success: true, Message: "dismissed"})
	default:
		models.RespondError(conn, req.ID, fmt.Sprintf("unknown method: %s", req.Method))
	}
}
