package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/example/storefront/pkg/config"
	"github.com/spf13/cast"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

const leaseTTL = 30

type ServiceDiscovery struct {
	client *clientv3.Client
	config *config.EtcdConfig
	logger *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

type ServiceInstance struct {
	Name string
	Host string
	Port int
}

func (i *ServiceInstance) Addr() string {
	return net.JoinHostPort(i.Host, cast.ToString(i.Port))
}

func NewServiceDiscovery(cfg *config.EtcdConfig, logger *zap.Logger) (*ServiceDiscovery, error) {
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	return &ServiceDiscovery{
		client: cli,
		config: cfg,
		logger: logger,
	}, nil
}

func instanceKey(prefix string, instance *ServiceInstance) string {
	return fmt.Sprintf("%s%s/%s", prefix, instance.Name, instance.Addr())
}

// Register publishes the instance under a lease that is kept alive until
// Deregister or Close.
func (sd *ServiceDiscovery) Register(ctx context.Context, instance *ServiceInstance) error {
	lease, err := sd.client.Grant(ctx, leaseTTL)
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}

	_, err = sd.client.Put(ctx, instanceKey(sd.config.Prefix, instance), instance.Addr(), clientv3.WithLease(lease.ID))
	if err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	kaCtx, cancel := context.WithCancel(context.Background())
	ch, err := sd.client.KeepAlive(kaCtx, lease.ID)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to keep alive: %w", err)
	}
	sd.mu.Lock()
	sd.cancel = cancel
	sd.mu.Unlock()

	go func() {
		for range ch {
		}
		sd.logger.Info("Service lease keep-alive ended", zap.String("service", instance.Name))
	}()

	sd.logger.Info("Service registered",
		zap.String("service", instance.Name),
		zap.String("address", instance.Addr()))
	return nil
}

// Discover lists the live instances of a service.
func (sd *ServiceDiscovery) Discover(ctx context.Context, serviceName string) ([]*ServiceInstance, error) {
	key := fmt.Sprintf("%s%s/", sd.config.Prefix, serviceName)

	resp, err := sd.client.Get(ctx, key, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to discover service: %w", err)
	}

	instances := make([]*ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		instance, err := ParseInstance(serviceName, string(kv.Value))
		if err != nil {
			sd.logger.Warn("Skipping malformed service entry", zap.String("key", string(kv.Key)), zap.Error(err))
			continue
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

// ParseInstance reads a host:port registration value.
func ParseInstance(name, addr string) (*ServiceInstance, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	p, err := cast.ToIntE(port)
	if err != nil || p <= 0 {
		return nil, fmt.Errorf("invalid port in %q", addr)
	}
	return &ServiceInstance{Name: name, Host: host, Port: p}, nil
}

func (sd *ServiceDiscovery) Deregister(ctx context.Context, instance *ServiceInstance) error {
	sd.stopKeepAlive()
	_, err := sd.client.Delete(ctx, instanceKey(sd.config.Prefix, instance))
	if err != nil {
		return fmt.Errorf("failed to deregister service: %w", err)
	}
	return nil
}

func (sd *ServiceDiscovery) stopKeepAlive() {
	sd.mu.Lock()
	defer sd.mu.Unlock()
	if sd.cancel != nil {
		sd.cancel()
		sd.cancel = nil
	}
}

func (sd *ServiceDiscovery) Close() error {
	sd.stopKeepAlive()
	return sd.client.Close()
}
