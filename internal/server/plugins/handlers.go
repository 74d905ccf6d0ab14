package plugins

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/wpnas/wpnas/internal/dataview"
	"github.com/wpnas/wpnas/internal/errdefs"
	"github.com/wpnas/wpnas/internal/plugins"
	"github.com/wpnas/wpnas/internal/server/models"
)

const actionTimeout = 5 * time.Minute

// Service is what the plugins.* methods operate on.
type Service struct {
	Manager    *plugins.Manager
	Controller *dataview.Controller
}

type PluginInfo struct {
	Slug             string         `json:"slug"`
	Plugin           string         `json:"plugin"`
	Name             string         `json:"name"`
	Author           string         `json:"author,omitempty"`
	Version          string         `json:"version,omitempty"`
	InstalledVersion string         `json:"installedVersion,omitempty"`
	Status           plugins.Status `json:"status"`
	Action           plugins.Action `json:"action"`
	HasUpdate        bool           `json:"hasUpdate,omitempty"`
	Busy             bool           `json:"busy,omitempty"`
	Tags             []string       `json:"tags,omitempty"`
	Homepage         string         `json:"homepage,omitempty"`
	Score            float64        `json:"score,omitempty"`
}

type QueryResult struct {
	Items      []PluginInfo  `json:"items"`
	TotalItems int           `json:"totalItems"`
	TotalPages int           `json:"totalPages"`
	Page       int           `json:"page"`
	HasMore    bool          `json:"hasMore"`
	View       dataview.View `json:"view"`
}

func HandleRequest(conn net.Conn, req models.Request, svc *Service) {
	switch req.Method {
	case "plugins.list":
		handleList(conn, req, svc)
	case "plugins.query":
		handleQuery(conn, req, svc)
	case "plugins.loadMore":
		handleLoadMore(conn, req, svc)
	case "plugins.reset":
		handleReset(conn, req, svc)
	case "plugins.install":
		handleInstall(conn, req, svc)
	case "plugins.activate":
		handleActivate(conn, req, svc)
	case "plugins.reload":
		handleReload(conn, req, svc)
	default:
		models.RespondError(conn, req.ID, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func handleList(conn net.Conn, req models.Request, svc *Service) {
	busy := svc.Manager.BusySet()
	records := svc.Manager.Catalog().Records()

	result := make([]PluginInfo, len(records))
	for i, r := range records {
		result[i] = toInfo(r, busy)
	}
	models.Respond(conn, req.ID, result)
}

func handleQuery(conn net.Conn, req models.Request, svc *Service) {
	view := svc.Controller.View()
	if err := models.DecodeParams(req, &view); err != nil {
		models.RespondError(conn, req.ID, err.Error())
		return
	}
	res := svc.Controller.SetView(view)
	models.Respond(conn, req.ID, toQueryResult(res, svc))
}

func handleLoadMore(conn net.Conn, req models.Request, svc *Service) {
	res, _ := svc.Controller.LoadMore()
	models.Respond(conn, req.ID, toQueryResult(res, svc))
}

func handleReset(conn net.Conn, req models.Request, svc *Service) {
	res := svc.Controller.Reset()
	models.Respond(conn, req.ID, toQueryResult(res, svc))
}

func handleInstall(conn net.Conn, req models.Request, svc *Service) {
	slug, err := models.StringParam(req, "slug")
	if err != nil {
		models.RespondError(conn, req.ID, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	if err := svc.Manager.Install(ctx, slug); err != nil {
		models.RespondError(conn, req.ID, actionError(err, plugins.MsgInstallFailed))
		return
	}

	models.Respond(conn, req.ID, models.SuccessResult{
		Success: true,
		Message: plugins.MsgInstalled,
	})
}

func handleActivate(conn net.Conn, req models.Request, svc *Service) {
	file, err := models.StringParam(req, "plugin")
	if err != nil {
		models.RespondError(conn, req.ID, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	if err := svc.Manager.Activate(ctx, file); err != nil {
		models.RespondError(conn, req.ID, actionError(err, plugins.MsgActivationFailed))
		return
	}

	models.Respond(conn, req.ID, models.SuccessResult{
		Success: true,
		Message: plugins.MsgActivated,
	})
}

func handleReload(conn net.Conn, req models.Request, svc *Service) {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	if err := svc.Manager.Load(ctx); err != nil {
		models.RespondError(conn, req.ID, plugins.MsgLoadFailed)
		return
	}

	models.Respond(conn, req.ID, models.SuccessResult{
		Success: true,
		Message: fmt.Sprintf("loaded %d plugins", svc.Manager.Catalog().Len()),
	})
}

func actionError(err error, fallback string) string {
	if errors.Is(err, errdefs.ErrBusy) || errors.Is(err, errdefs.ErrNotFound) {
		return err.Error()
	}
	return errdefs.UserMessage(err, fallback)
}

func toQueryResult(res dataview.Result, svc *Service) QueryResult {
	busy := svc.Manager.BusySet()
	items := make([]PluginInfo, len(res.Items))
	for i, r := range res.Items {
		items[i] = toInfo(r, busy)
	}
	return QueryResult{
		Items:      items,
		TotalItems: res.TotalItems,
		TotalPages: res.TotalPages,
		Page:       res.Page,
		HasMore:    res.HasMore(),
		View:       svc.Controller.View(),
	}
}

func toInfo(r plugins.Record, busy map[string]bool) PluginInfo {
	return PluginInfo{
		Slug:             r.Slug,
		Plugin:           r.PluginFile,
		Name:             r.Name,
		Author:           r.Author,
		Version:          r.Version,
		InstalledVersion: r.InstalledVersion(),
		Status:           r.Status,
		Action:           r.Action(),
		HasUpdate:        r.HasUpdate(),
		Busy:             busy[r.ID()],
		Tags:             r.Tags,
		Homepage:         r.HomepageURL,
		Score:            r.Score,
	}
}
