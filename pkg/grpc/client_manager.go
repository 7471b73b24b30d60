package grpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/discovery"
	"github.com/example/storefront/pkg/errs"
	"github.com/example/storefront/pkg/procedures"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Discoverer finds instances of a named service.
type Discoverer interface {
	Discover(ctx context.Context, serviceName string) ([]*discovery.ServiceInstance, error)
}

// ClientManager owns the connection to the platform service and implements
// procedures.Caller over it.
type ClientManager struct {
	config    *config.RPCConfig
	discovery Discoverer
	logger    *zap.Logger

	mu   sync.RWMutex
	conn *grpc.ClientConn
}

// NewClientManager creates a manager. disc may be nil when the address is
// configured directly.
func NewClientManager(cfg *config.RPCConfig, disc Discoverer, logger *zap.Logger) *ClientManager {
	return &ClientManager{
		config:    cfg,
		discovery: disc,
		logger:    logger,
	}
}

// Connect resolves the platform service, preferring the configured address
// over service discovery, and dials it.
func (m *ClientManager) Connect(ctx context.Context) error {
	target := m.config.Address
	if target == "" && m.discovery != nil {
		dctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		instances, err := m.discovery.Discover(dctx, m.config.Service)
		if err != nil {
			return fmt.Errorf("failed to discover %s service: %w", m.config.Service, err)
		}
		if len(instances) == 0 {
			return fmt.Errorf("no %s service instances registered", m.config.Service)
		}
		target = instances[0].Addr()
		m.logger.Info("Discovered platform service", zap.String("address", target))
	}
	if target == "" {
		return fmt.Errorf("no address for %s service", m.config.Service)
	}
	return m.ConnectTo(ctx, target, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

// ConnectTo dials target with the given options.
func (m *ClientManager) ConnectTo(ctx context.Context, target string, opts ...grpc.DialOption) error {
	m.logger.Info("Connecting to platform service", zap.String("target", target))

	dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(dctx, target, append(opts, grpc.WithBlock())...)
	if err != nil {
		return fmt.Errorf("failed to connect to platform service: %w", err)
	}

	m.mu.Lock()
	old := m.conn
	m.conn = conn
	m.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	m.logger.Info("Successfully connected to platform service")
	return nil
}

// Call invokes a named procedure on the platform service.
func (m *ClientManager) Call(ctx context.Context, name string, args procedures.Args, out interface{}) error {
	const op = "grpc.ClientManager.Call"

	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()
	if conn == nil {
		return &errs.Error{Code: errs.EUnavailable, Msg: "platform service not connected", Op: op}
	}

	req, err := encodeRequest(name, args)
	if err != nil {
		return &errs.Error{Code: errs.EInvalid, Op: op, Err: err}
	}
	if m.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.Timeout)
		defer cancel()
	}

	resp := &structpb.Value{}
	if err := conn.Invoke(ctx, callMethod, req, resp); err != nil {
		return FromStatus(err, op)
	}
	if err := decodeResult(resp, out); err != nil {
		return &errs.Error{Code: errs.EInternal, Op: op, Err: err}
	}
	return nil
}

// Close closes the connection.
func (m *ClientManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	return err
}

var _ procedures.Caller = (*ClientManager)(nil)
