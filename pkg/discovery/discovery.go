// Package discovery registers the storefront gateway in etcd and resolves
// the base URLs of the catalog and auth services from it.
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/example/medistore/pkg/config"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

const leaseTTL = 30

type ServiceDiscovery struct {
	client *clientv3.Client
	config *config.EtcdConfig
	logger *zap.Logger
}

type ServiceInstance struct {
	Name string
	Host string
	Port int
	// URL, when set, is registered instead of host:port.
	URL string
}

func (i *ServiceInstance) addr() string {
	if i.URL != "" {
		return i.URL
	}
	return net.JoinHostPort(i.Host, strconv.Itoa(i.Port))
}

func NewServiceDiscovery(cfg *config.EtcdConfig, logger *zap.Logger) (*ServiceDiscovery, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
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
	return fmt.Sprintf("%s%s/%s:%d", prefix, instance.Name, instance.Host, instance.Port)
}

func serviceKey(prefix, name string) string {
	return prefix + name + "/"
}

// Register puts the instance under a leased key and keeps the lease alive
// until ctx is cancelled.
func (sd *ServiceDiscovery) Register(ctx context.Context, instance *ServiceInstance) error {
	lease, err := sd.client.Grant(ctx, leaseTTL)
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}

	key := instanceKey(sd.config.Prefix, instance)
	if _, err := sd.client.Put(ctx, key, instance.addr(), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	ch, err := sd.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return fmt.Errorf("failed to keep alive: %w", err)
	}

	go func() {
		for range ch {
		}
		sd.logger.Info("Service lease ended", zap.String("key", key))
	}()

	sd.logger.Info("Service registered", zap.String("key", key), zap.String("addr", instance.addr()))
	return nil
}

func (sd *ServiceDiscovery) Discover(ctx context.Context, serviceName string) ([]*ServiceInstance, error) {
	resp, err := sd.client.Get(ctx, serviceKey(sd.config.Prefix, serviceName), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to discover service: %w", err)
	}

	instances := make([]*ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		instances = append(instances, parseInstance(serviceName, string(kv.Value)))
	}
	return instances, nil
}

func parseInstance(name, value string) *ServiceInstance {
	if strings.Contains(value, "://") {
		return &ServiceInstance{Name: name, URL: value}
	}
	host, portStr, err := net.SplitHostPort(value)
	if err != nil {
		return &ServiceInstance{Name: name, Host: value}
	}
	port, _ := strconv.Atoi(portStr)
	return &ServiceInstance{Name: name, Host: host, Port: port}
}

// BaseURL is the http base URL an instance is reachable at.
func (i *ServiceInstance) BaseURL() string {
	if i.URL != "" {
		return strings.TrimRight(i.URL, "/")
	}
	if i.Port == 0 {
		return "http://" + i.Host
	}
	return "http://" + net.JoinHostPort(i.Host, strconv.Itoa(i.Port))
}

// Resolve returns the base URL of the first registered instance of name, or
// fallback when none is registered or etcd cannot be reached.
func (sd *ServiceDiscovery) Resolve(ctx context.Context, name, fallback string) string {
	instances, err := sd.Discover(ctx, name)
	if err != nil {
		sd.logger.Warn("Service discovery failed, using configured URL",
			zap.String("service", name), zap.String("url", fallback), zap.Error(err))
		return fallback
	}
	if len(instances) == 0 {
		return fallback
	}
	url := instances[0].BaseURL()
	sd.logger.Info("Service resolved", zap.String("service", name), zap.String("url", url))
	return url
}

func (sd *ServiceDiscovery) Deregister(ctx context.Context, instance *ServiceInstance) error {
	if _, err := sd.client.Delete(ctx, instanceKey(sd.config.Prefix, instance)); err != nil {
		return fmt.Errorf("failed to deregister service: %w", err)
	}
	return nil
}

func (sd *ServiceDiscovery) Close() error {
	return sd.client.Close()
}
