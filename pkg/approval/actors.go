package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/example/giftshop/pkg/models"
	"github.com/example/giftshop/pkg/session"
	"go.uber.org/zap"
)

const defaultDecisionTimeout = 30 * time.Second

var ErrDispatcherStopped = errors.New("approval dispatcher stopped")

// Messages
type approveOrder struct {
	ctx     context.Context
	id      session.Identity
	orderID uint
}

type declineOrder struct {
	ctx     context.Context
	id      session.Identity
	orderID uint
}

type approveReply struct {
	result *Result
	err    error
}

type declineReply struct {
	order *models.Order
	err   error
}

// adminActor handles the decisions of one admin, one message at a time.
type adminActor struct {
	workflow *Workflow
	logger   *zap.Logger
}

func (a *adminActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *approveOrder:
		result, err := a.workflow.Approve(msg.ctx, msg.id, msg.orderID)
		ctx.Respond(&approveReply{result: result, err: err})

	case *declineOrder:
		order, err := a.workflow.Decline(msg.ctx, msg.id, msg.orderID)
		ctx.Respond(&declineReply{order: order, err: err})

	case *actor.Started:
		a.logger.Debug("Admin actor started")

	case *actor.Stopped:
		a.logger.Debug("Admin actor stopped")
	}
}

// Dispatcher routes decisions to one actor per admin username, so a single
// admin's approvals never race each other inside this process. The
// conditional updates in Workflow still guard against other processes.
type Dispatcher struct {
	system   *actor.ActorSystem
	workflow *Workflow
	logger   *zap.Logger

	mu      sync.Mutex
	actors  map[string]*actor.PID
	stopped bool
}

func NewDispatcher(workflow *Workflow, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		system:   actor.NewActorSystem(),
		workflow: workflow,
		logger:   logger,
		actors:   make(map[string]*actor.PID),
	}
}

func (d *Dispatcher) Approve(ctx context.Context, id session.Identity, orderID uint) (*Result, error) {
	res, err := d.request(ctx, id, &approveOrder{ctx: ctx, id: id, orderID: orderID})
	if err != nil {
		return nil, err
	}
	reply, ok := res.(*approveReply)
	if !ok {
		return nil, fmt.Errorf("unexpected approval reply %T", res)
	}
	return reply.result, reply.err
}

func (d *Dispatcher) Decline(ctx context.Context, id session.Identity, orderID uint) (*models.Order, error) {
	res, err := d.request(ctx, id, &declineOrder{ctx: ctx, id: id, orderID: orderID})
	if err != nil {
		return nil, err
	}
	reply, ok := res.(*declineReply)
	if !ok {
		return nil, fmt.Errorf("unexpected decline reply %T", res)
	}
	return reply.order, reply.err
}

// Stop stops every admin actor. Later requests fail with
// ErrDispatcherStopped.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for name, pid := range d.actors {
		d.system.Root.Stop(pid)
		delete(d.actors, name)
	}
	d.stopped = true
}

func (d *Dispatcher) request(ctx context.Context, id session.Identity, msg interface{}) (interface{}, error) {
	pid, err := d.actorFor(id.Username)
	if err != nil {
		return nil, err
	}

	timeout := defaultDecisionTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return nil, context.DeadlineExceeded
		}
	}
	return d.system.Root.RequestFuture(pid, msg, timeout).Result()
}

func (d *Dispatcher) actorFor(username string) (*actor.PID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return nil, ErrDispatcherStopped
	}
	if pid, ok := d.actors[username]; ok {
		return pid, nil
	}

	logger := d.logger.With(zap.String("username", username))
	props := actor.PropsFromProducer(func() actor.Actor {
		return &adminActor{workflow: d.workflow, logger: logger}
	})
	pid, err := d.system.Root.SpawnNamed(props, "admin-"+username)
	if err != nil {
		return nil, fmt.Errorf("failed to spawn admin actor: %w", err)
	}
	d.actors[username] = pid
	return pid, nil
}
