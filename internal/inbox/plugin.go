// Package inbox is the bridge a host application talks to: message queries,
// the permission dialog and the live listening switch.
package inbox

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xaenox/bankwatch/internal/models"
	"github.com/xaenox/bankwatch/internal/permission"
	"github.com/xaenox/bankwatch/internal/retrieval"
	"github.com/xaenox/bankwatch/internal/watcher"
)

type MessagesRequest struct {
	Limit int
	Since int64
}

type BankMessagesRequest struct {
	Limit int
	Days  int
}

type MessagesResult struct {
	Messages []models.Message
}

type PermissionResult struct {
	Granted bool
}

type ListenResult struct {
	Success bool
}

type Plugin struct {
	service     *retrieval.Service
	permissions *permission.Manager
	watcher     *watcher.Watcher
	poller      *retrieval.Poller
	logger      *zap.Logger
}

// New wires the plugin. poller may be nil when only live arrivals are wanted.
func New(service *retrieval.Service, permissions *permission.Manager, w *watcher.Watcher, poller *retrieval.Poller, logger *zap.Logger) *Plugin {
	return &Plugin{
		service:     service,
		permissions: permissions,
		watcher:     w,
		poller:      poller,
		logger:      logger,
	}
}

func (p *Plugin) GetMessages(ctx context.Context, req MessagesRequest) (MessagesResult, error) {
	messages, err := p.service.GetMessages(ctx, req.Limit, req.Since)
	if err != nil {
		return MessagesResult{}, err
	}
	return MessagesResult{Messages: messages}, nil
}

func (p *Plugin) GetBankMessages(ctx context.Context, req BankMessagesRequest) (MessagesResult, error) {
	messages, err := p.service.GetBankMessages(ctx, req.Limit, req.Days)
	if err != nil {
		return MessagesResult{}, err
	}
	return MessagesResult{Messages: messages}, nil
}

func (p *Plugin) CheckPermission(ctx context.Context) PermissionResult {
	return PermissionResult{Granted: p.permissions.Granted()}
}

// RequestPermission shows the grant dialog, if one is needed, and waits for
// the answer or for ctx to end.
func (p *Plugin) RequestPermission(ctx context.Context) (PermissionResult, error) {
	granted, err := p.permissions.Request().Wait(ctx)
	if err != nil {
		return PermissionResult{}, fmt.Errorf("waiting for permission: %w", err)
	}
	return PermissionResult{Granted: granted}, nil
}

// StartListening subscribes the watcher and starts the poller. Calling it
// while already listening succeeds without side effects.
func (p *Plugin) StartListening(ctx context.Context) (ListenResult, error) {
	if !p.permissions.Granted() {
		p.logger.Warn("Listening without message access; polling will fail until it is granted")
	}
	if err := p.watcher.Start(ctx); err != nil {
		return ListenResult{Success: false}, err
	}
	if p.poller != nil {
		p.poller.Start()
	}
	return ListenResult{Success: true}, nil
}

func (p *Plugin) StopListening() ListenResult {
	if p.poller != nil {
		p.poller.Stop()
	}
	if err := p.watcher.Stop(); err != nil {
		p.logger.Error("Failed to stop watcher", zap.Error(err))
		return ListenResult{Success: false}
	}
	return ListenResult{Success: true}
}

// Listening reports whether the live watcher is subscribed.
func (p *Plugin) Listening() bool {
	return p.watcher.State() == watcher.Active
}
