package wancli

import (
	"context"

	"github.com/wanpull/wanpull/common"
	"github.com/wanpull/wanpull/pkg/wanlib"
)

func (c *Client) Version(ctx context.Context) (*common.VersionResponse, error) {
	return invoke[common.VersionResponse](ctx, c, common.MethodVersion, nil)
}

// Interfaces lists the reachable interfaces, or every IPv4 interface
// when all is set.
func (c *Client) Interfaces(ctx context.Context, all bool) ([]wanlib.Interface, error) {
	res, err := invoke[common.InterfacesResponse](ctx, c, common.MethodInterfacesList, &common.InterfacesParams{All: all})
	if err != nil {
		return nil, err
	}
	return res.Interfaces, nil
}

// Add queues a transfer. It is not started until StartAll.
func (c *Client) Add(ctx context.Context, p *common.AddParams) (*common.AddResponse, error) {
	return invoke[common.AddResponse](ctx, c, common.MethodDownloadAdd, p)
}

func (c *Client) control(ctx context.Context, method string, id wanlib.TransferID) (wanlib.TransferState, error) {
	res, err := invoke[common.StateResponse](ctx, c, method, &common.InputTransferID{ID: id})
	if err != nil {
		return 0, err
	}
	return res.State, nil
}

func (c *Client) Pause(ctx context.Context, id wanlib.TransferID) (wanlib.TransferState, error) {
	return c.control(ctx, common.MethodDownloadPause, id)
}

func (c *Client) Resume(ctx context.Context, id wanlib.TransferID) (wanlib.TransferState, error) {
	return c.control(ctx, common.MethodDownloadResume, id)
}

func (c *Client) Cancel(ctx context.Context, id wanlib.TransferID) (wanlib.TransferState, error) {
	return c.control(ctx, common.MethodDownloadCancel, id)
}

// Requeue moves a paused transfer back to the end of the queue.
func (c *Client) Requeue(ctx context.Context, id wanlib.TransferID) (wanlib.TransferState, error) {
	return c.control(ctx, common.MethodDownloadRequeue, id)
}

func (c *Client) Status(ctx context.Context, id wanlib.TransferID) (*wanlib.TransferRecord, error) {
	return invoke[wanlib.TransferRecord](ctx, c, common.MethodDownloadStatus, &common.InputTransferID{ID: id})
}

// List returns active and queued transfers.
func (c *Client) List(ctx context.Context) ([]wanlib.TransferRecord, error) {
	res, err := invoke[common.ListResponse](ctx, c, common.MethodDownloadList, nil)
	if err != nil {
		return nil, err
	}
	return res.Transfers, nil
}

func (c *Client) Queue(ctx context.Context) ([]wanlib.QueueEntry, error) {
	res, err := invoke[common.QueueResponse](ctx, c, common.MethodQueueList, nil)
	if err != nil {
		return nil, err
	}
	return res.Entries, nil
}

// QueueMove reorders the queue. Out of range indices are rejected with
// CodeInvalidParams.
func (c *Client) QueueMove(ctx context.Context, from, to int) error {
	_, err := invoke[common.BoolResponse](ctx, c, common.MethodQueueMove, &common.QueueMoveParams{From: from, To: to})
	return err
}

func (c *Client) QueueRemove(ctx context.Context, id wanlib.TransferID) error {
	_, err := invoke[common.BoolResponse](ctx, c, common.MethodQueueRemove, &common.InputTransferID{ID: id})
	return err
}

func (c *Client) StartAll(ctx context.Context) ([]wanlib.TransferID, error) {
	res, err := invoke[common.IDsResponse](ctx, c, common.MethodQueueStartAll, nil)
	if err != nil {
		return nil, err
	}
	return res.IDs, nil
}

func (c *Client) PauseAll(ctx context.Context) ([]wanlib.TransferID, error) {
	res, err := invoke[common.IDsResponse](ctx, c, common.MethodQueuePauseAll, nil)
	if err != nil {
		return nil, err
	}
	return res.IDs, nil
}

// History returns the newest limit terminal records, all when limit <= 0.
func (c *Client) History(ctx context.Context, limit int) ([]common.HistoryEntry, error) {
	res, err := invoke[common.HistoryResponse](ctx, c, common.MethodHistoryList, &common.HistoryParams{Limit: limit})
	if err != nil {
		return nil, err
	}
	return res.Entries, nil
}

func (c *Client) HistoryClear(ctx context.Context) error {
	_, err := invoke[common.BoolResponse](ctx, c, common.MethodHistoryClear, nil)
	return err
}

func (c *Client) TriggerAdd(ctx context.Context, action, expr string) (*common.TriggerInfo, error) {
	return invoke[common.TriggerInfo](ctx, c, common.MethodTriggerAdd, &common.TriggerAddParams{Action: action, Expr: expr})
}

func (c *Client) TriggerList(ctx context.Context) ([]common.TriggerInfo, error) {
	res, err := invoke[common.TriggerListResponse](ctx, c, common.MethodTriggerList, nil)
	if err != nil {
		return nil, err
	}
	return res.Triggers, nil
}

func (c *Client) TriggerRemove(ctx context.Context, id string) error {
	_, err := invoke[common.BoolResponse](ctx, c, common.MethodTriggerRemove, &common.TriggerRemoveParams{ID: id})
	return err
}

// SaveState asks the daemon to persist its queue now.
func (c *Client) SaveState(ctx context.Context) (*common.SaveResponse, error) {
	return invoke[common.SaveResponse](ctx, c, common.MethodStateSave, nil)
}

// Bandwidth returns per-interface and total throughput statistics.
func (c *Client) Bandwidth(ctx context.Context) (*wanlib.BandwidthStats, error) {
	return invoke[wanlib.BandwidthStats](ctx, c, common.MethodStatsBandwidth, nil)
}
