package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Subjects served by the custody service.
const (
	SubjectTransferIn  = "custody.transfer.in"
	SubjectTransferOut = "custody.transfer.out"
)

// NATSClient talks to the venue's custody service over NATS
// request-reply. Transfers are synchronous: the request either
// completes before the reply arrives or the reply carries a rejection.
type NATSClient struct {
	nc      *nats.Conn
	timeout time.Duration
}

func NewNATSClient(nc *nats.Conn, timeout time.Duration) *NATSClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NATSClient{nc: nc, timeout: timeout}
}

type transferRequest struct {
	Asset   string `json:"asset"`
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

type transferReply struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

func (c *NATSClient) TransferIn(ctx context.Context, asset string, from uuid.UUID, amount int64) error {
	return c.request(ctx, SubjectTransferIn, asset, from, amount)
}

func (c *NATSClient) TransferOut(ctx context.Context, asset string, to uuid.UUID, amount int64) error {
	return c.request(ctx, SubjectTransferOut, asset, to, amount)
}

func (c *NATSClient) request(ctx context.Context, subject, asset string, account uuid.UUID, amount int64) error {
	data, err := json.Marshal(transferRequest{
		Asset:   asset,
		Account: account.String(),
		Amount:  amount,
	})
	if err != nil {
		return fmt.Errorf("marshal transfer request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.nc.RequestWithContext(reqCtx, subject, data)
	if err != nil {
		return fmt.Errorf("custody request %s: %w", subject, err)
	}

	var reply transferReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return fmt.Errorf("decode custody reply: %w", err)
	}

	if !reply.OK {
		switch reply.Reason {
		case "insufficient_balance":
			return ErrInsufficientBalance
		case "insufficient_allowance":
			return ErrInsufficientAllowance
		default:
			return fmt.Errorf("custody rejected transfer: %s", reply.Reason)
		}
	}

	return nil
}
