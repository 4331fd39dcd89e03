package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"

	"github.com/wanpull/wanpull/common"
	"github.com/wanpull/wanpull/internal/history"
	"github.com/wanpull/wanpull/internal/netif"
	"github.com/wanpull/wanpull/internal/scheduler"
	"github.com/wanpull/wanpull/pkg/logger"
	"github.com/wanpull/wanpull/pkg/wanlib"
)

// RPCConfig holds configuration for the JSON-RPC endpoint.
type RPCConfig struct {
	Secret    string // bearer token, empty disables authentication
	Version   string
	Commit    string
	BuildType string
}

// Deps are the daemon components reachable over RPC. Only Manager is
// required; methods backed by a nil component report an internal error.
type Deps struct {
	Manager    *wanlib.Manager
	Interfaces *netif.Detector
	History    *history.DB
	Triggers   *scheduler.Scheduler
	// SaveState persists the engine snapshot and reports where.
	SaveState func() (*common.SaveResponse, error)
	Notifier  *RPCNotifier
	Log       logger.Logger
}

// RPCServer owns the method table and the HTTP bridge.
type RPCServer struct {
	cfg      RPCConfig
	methods  handler.Map
	bridge   jhttp.Bridge
	manager  *wanlib.Manager
	ifaces   *netif.Detector
	history  *history.DB
	triggers *scheduler.Scheduler
	save     func() (*common.SaveResponse, error)
	notifier *RPCNotifier
	log      logger.Logger
}

func NewRPCServer(cfg *RPCConfig, d Deps) *RPCServer {
	if d.Log == nil {
		d.Log = logger.NewNopLogger()
	}
	rs := &RPCServer{
		cfg:      *cfg,
		manager:  d.Manager,
		ifaces:   d.Interfaces,
		history:  d.History,
		triggers: d.Triggers,
		save:     d.SaveState,
		notifier: d.Notifier,
		log:      d.Log,
	}
	rs.methods = handler.Map{
		common.MethodVersion:         handler.New(rs.systemGetVersion),
		common.MethodInterfacesList:  handler.New(rs.interfacesList),
		common.MethodDownloadAdd:     handler.New(rs.downloadAdd),
		common.MethodDownloadPause:   handler.New(rs.downloadPause),
		common.MethodDownloadResume:  handler.New(rs.downloadResume),
		common.MethodDownloadCancel:  handler.New(rs.downloadCancel),
		common.MethodDownloadRequeue: handler.New(rs.downloadRequeue),
		common.MethodDownloadStatus:  handler.New(rs.downloadStatus),
		common.MethodDownloadList:    handler.New(rs.downloadList),
		common.MethodQueueList:       handler.New(rs.queueList),
		common.MethodQueueMove:       handler.New(rs.queueMove),
		common.MethodQueueRemove:     handler.New(rs.queueRemove),
		common.MethodQueueStartAll:   handler.New(rs.queueStartAll),
		common.MethodQueuePauseAll:   handler.New(rs.queuePauseAll),
		common.MethodHistoryList:     handler.New(rs.historyList),
		common.MethodHistoryClear:    handler.New(rs.historyClear),
		common.MethodTriggerAdd:      handler.New(rs.triggerAdd),
		common.MethodTriggerList:     handler.New(rs.triggerList),
		common.MethodTriggerRemove:   handler.New(rs.triggerRemove),
		common.MethodStateSave:       handler.New(rs.stateSave),
		common.MethodStatsBandwidth:  handler.New(rs.statsBandwidth),
	}
	rs.bridge = jhttp.NewBridge(rs.methods, nil)
	return rs
}

// Handler serves POST requests on RPCPath and websocket upgrades on
// WebSocketPath, both behind the bearer token check.
func (rs *RPCServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(common.RPCPath, requireToken(rs.cfg.Secret, rs.bridge))
	mux.Handle(common.WebSocketPath, requireToken(rs.cfg.Secret, http.HandlerFunc(rs.serveWS)))
	return mux
}

// Close shuts down the jrpc2 bridge, releasing internal goroutines.
func (rs *RPCServer) Close() {
	rs.bridge.Close()
}

func (rs *RPCServer) systemGetVersion(_ context.Context) (*common.VersionResponse, error) {
	return &common.VersionResponse{
		Version:   rs.cfg.Version,
		Commit:    rs.cfg.Commit,
		BuildType: rs.cfg.BuildType,
	}, nil
}

func (rs *RPCServer) interfacesList(ctx context.Context, p *common.InterfacesParams) (*common.InterfacesResponse, error) {
	if rs.ifaces == nil {
		return nil, unavailable("interface discovery")
	}
	var (
		list []wanlib.Interface
		err  error
	)
	if p != nil && p.All {
		list, err = rs.ifaces.ListInterfaces(ctx)
	} else {
		list, err = rs.ifaces.ListReachableInterfaces(ctx)
	}
	if err != nil {
		return nil, rpcError(err)
	}
	if list == nil {
		list = []wanlib.Interface{}
	}
	return &common.InterfacesResponse{Interfaces: list}, nil
}

func (rs *RPCServer) downloadAdd(ctx context.Context, p *common.AddParams) (*common.AddResponse, error) {
	if p == nil || strings.TrimSpace(p.URL) == "" {
		return nil, invalidParams("missing required param: url")
	}
	if p.InterfaceIP == "" {
		return nil, invalidParams("missing required param: interface_ip")
	}
	rate, err := wanlib.ParseRate(p.RateLimit)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	req, err := rs.manager.Enqueue(ctx, wanlib.EnqueueParams{
		URL:             p.URL,
		InterfaceID:     p.InterfaceIP,
		InterfaceName:   p.InterfaceName,
		DestinationPath: p.DestinationPath,
		RateLimit:       rate,
	})
	if err != nil {
		return nil, rpcError(err)
	}
	return &common.AddResponse{ID: req.ID, State: wanlib.StateQueued, Request: req}, nil
}

func (rs *RPCServer) control(p *common.InputTransferID, op func(wanlib.TransferID) (wanlib.TransferState, error)) (*common.StateResponse, error) {
	if p == nil || p.ID == "" {
		return nil, invalidParams("missing required param: id")
	}
	st, err := op(p.ID)
	if err != nil {
		return nil, rpcError(err)
	}
	return &common.StateResponse{ID: p.ID, State: st}, nil
}

func (rs *RPCServer) downloadPause(_ context.Context, p *common.InputTransferID) (*common.StateResponse, error) {
	return rs.control(p, rs.manager.Pause)
}

func (rs *RPCServer) downloadResume(_ context.Context, p *common.InputTransferID) (*common.StateResponse, error) {
	return rs.control(p, rs.manager.Resume)
}

func (rs *RPCServer) downloadCancel(_ context.Context, p *common.InputTransferID) (*common.StateResponse, error) {
	return rs.control(p, rs.manager.Cancel)
}

func (rs *RPCServer) downloadRequeue(_ context.Context, p *common.InputTransferID) (*common.StateResponse, error) {
	return rs.control(p, rs.manager.MoveToQueue)
}

func (rs *RPCServer) downloadStatus(_ context.Context, p *common.InputTransferID) (*wanlib.TransferRecord, error) {
	if p == nil || p.ID == "" {
		return nil, invalidParams("missing required param: id")
	}
	rec, err := rs.manager.Status(p.ID)
	if err != nil {
		return nil, rpcError(err)
	}
	return &rec, nil
}

func (rs *RPCServer) downloadList(_ context.Context) (*common.ListResponse, error) {
	list := rs.manager.List()
	if list == nil {
		list = []wanlib.TransferRecord{}
	}
	return &common.ListResponse{Transfers: list}, nil
}

func (rs *RPCServer) queueList(_ context.Context) (*common.QueueResponse, error) {
	q := rs.manager.Queue()
	if q == nil {
		q = []wanlib.QueueEntry{}
	}
	return &common.QueueResponse{Entries: q}, nil
}

func (rs *RPCServer) queueMove(_ context.Context, p *common.QueueMoveParams) (*common.BoolResponse, error) {
	if p == nil {
		return nil, invalidParams("missing params: from, to")
	}
	if !rs.manager.ReorderQueue(p.From, p.To) {
		return nil, invalidParams(fmt.Sprintf("cannot move queue entry %d to %d", p.From, p.To))
	}
	return &common.BoolResponse{OK: true}, nil
}

func (rs *RPCServer) queueRemove(_ context.Context, p *common.InputTransferID) (*common.BoolResponse, error) {
	if p == nil || p.ID == "" {
		return nil, invalidParams("missing required param: id")
	}
	if !rs.manager.RemoveQueued(p.ID) {
		return nil, rpcError(wanlib.ErrNotFound)
	}
	return &common.BoolResponse{OK: true}, nil
}

func (rs *RPCServer) queueStartAll(_ context.Context) (*common.IDsResponse, error) {
	return &common.IDsResponse{IDs: nonNil(rs.manager.StartAll())}, nil
}

func (rs *RPCServer) queuePauseAll(_ context.Context) (*common.IDsResponse, error) {
	return &common.IDsResponse{IDs: nonNil(rs.manager.PauseAll())}, nil
}

func nonNil(ids []wanlib.TransferID) []wanlib.TransferID {
	if ids == nil {
		return []wanlib.TransferID{}
	}
	return ids
}

func (rs *RPCServer) historyList(ctx context.Context, p *common.HistoryParams) (*common.HistoryResponse, error) {
	if rs.history == nil {
		return nil, unavailable("history")
	}
	limit := 0
	if p != nil {
		limit = p.Limit
	}
	entries, err := rs.history.List(ctx, limit)
	if err != nil {
		return nil, rpcError(err)
	}
	if entries == nil {
		entries = []common.HistoryEntry{}
	}
	return &common.HistoryResponse{Entries: entries}, nil
}

func (rs *RPCServer) historyClear(ctx context.Context) (*common.BoolResponse, error) {
	if rs.history == nil {
		return nil, unavailable("history")
	}
	if _, err := rs.history.Clear(ctx); err != nil {
		return nil, rpcError(err)
	}
	return &common.BoolResponse{OK: true}, nil
}

func (rs *RPCServer) triggerAdd(_ context.Context, p *common.TriggerAddParams) (*common.TriggerInfo, error) {
	if rs.triggers == nil {
		return nil, unavailable("triggers")
	}
	if p == nil {
		return nil, invalidParams("missing params: action, expr")
	}
	t, err := scheduler.NewTrigger(p.Action, p.Expr, time.Now())
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	rs.triggers.Add(t)
	rs.log.Info("trigger %s added: %s %s", t.ID, t.Action, t.Expr())
	info := triggerInfo(t)
	return &info, nil
}

func (rs *RPCServer) triggerList(_ context.Context) (*common.TriggerListResponse, error) {
	if rs.triggers == nil {
		return nil, unavailable("triggers")
	}
	out := []common.TriggerInfo{}
	for _, t := range rs.triggers.List() {
		out = append(out, triggerInfo(t))
	}
	return &common.TriggerListResponse{Triggers: out}, nil
}

func (rs *RPCServer) triggerRemove(_ context.Context, p *common.TriggerRemoveParams) (*common.BoolResponse, error) {
	if rs.triggers == nil {
		return nil, unavailable("triggers")
	}
	if p == nil || p.ID == "" {
		return nil, invalidParams("missing required param: id")
	}
	if !rs.triggers.Remove(p.ID) {
		return nil, &jrpc2.Error{Code: codeNotFound, Message: "trigger not found"}
	}
	return &common.BoolResponse{OK: true}, nil
}

func (rs *RPCServer) stateSave(_ context.Context) (*common.SaveResponse, error) {
	if rs.save == nil {
		return nil, unavailable("state store")
	}
	resp, err := rs.save()
	if err != nil {
		return nil, rpcError(err)
	}
	return resp, nil
}

func (rs *RPCServer) statsBandwidth(_ context.Context) (*wanlib.BandwidthStats, error) {
	st := rs.manager.Bandwidth()
	return &st, nil
}

func triggerInfo(t scheduler.Trigger) common.TriggerInfo {
	return common.TriggerInfo{
		ID:       t.ID,
		Action:   t.Action,
		Expr:     t.Expr(),
		Cron:     t.Cron != "",
		NextFire: t.At,
	}
}

// Custom JSON-RPC error codes.
const (
	codeNotFound      = jrpc2.Code(-32001)
	codeInvalidParams = jrpc2.Code(-32602)
	codeInternal      = jrpc2.Code(-32000)
)

func invalidParams(msg string) error {
	return &jrpc2.Error{Code: codeInvalidParams, Message: msg}
}

func unavailable(what string) error {
	return &jrpc2.Error{Code: codeInternal, Message: what + " is not available"}
}

// rpcError maps engine errors onto JSON-RPC codes.
func rpcError(err error) error {
	switch {
	case errors.Is(err, wanlib.ErrNotFound):
		return &jrpc2.Error{Code: codeNotFound, Message: err.Error()}
	case errors.Is(err, wanlib.ErrNotPaused),
		errors.Is(err, wanlib.ErrUnknownInterface),
		errors.Is(err, wanlib.ErrEmptyURL),
		errors.Is(err, wanlib.ErrUnsupportedScheme),
		errors.Is(err, wanlib.ErrInvalidSourceIP):
		return &jrpc2.Error{Code: codeInvalidParams, Message: err.Error()}
	}
	return &jrpc2.Error{Code: codeInternal, Message: err.Error()}
}
