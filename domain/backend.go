package domain

import "context"

// PushChannel is a one-directional, ordered, backend-to-frontend delivery primitive.
// The backend refers to it by ID when it starts pushing captured fragments.
type PushChannel interface {
	// ID returns the identifier handed to the backend in StartProxy.
	ID() string

	// Listen registers the only handler of the channel. The handler is called from a single
	// goroutine in delivery order. The returned stop function detaches the handler and waits
	// for an in-flight delivery to return.
	Listen(ctx context.Context, handler func(CapturedFragment)) (stop func(), err error)

	// Close releases the transport behind the channel. It is safe to call more than once.
	Close() error
}

// ProxyStatus is the backend's view of its running proxies.
type ProxyStatus struct {
	Port         *uint16 // Port of the most recently started proxy, nil if none was started
	RunningCount uint    // Number of proxy servers currently running
}

// BackendEvent is a lifecycle notification pushed by the backend.
type BackendEvent string

const (
	EventProxyStarted BackendEvent = "proxy-started"
	EventProxyStopped BackendEvent = "proxy-stopped"
)

// CertificateService covers the certificate authority commands of the backend.
type CertificateService interface {
	// CheckCAInstalled reports whether the backend's root CA is trusted by the platform.
	// The backend creates the CA on first use.
	CheckCAInstalled(ctx context.Context) (bool, error)

	// InstallCA asks the platform to trust the backend's root CA.
	InstallCA(ctx context.Context) error
}

// ProxyService covers starting, stopping and inspecting the intercepting proxy.
type ProxyService interface {
	// OpenChannel creates a push channel the backend can deliver captured fragments on.
	OpenChannel(ctx context.Context) (PushChannel, error)

	// StartProxy makes the backend listen on port and push fragments on the channel with channelID.
	// Starting on the port that already runs is a no-op, starting on another port replaces the running proxy.
	StartProxy(ctx context.Context, port uint16, channelID string) error

	// StopProxy stops the running proxy. Channel delivery ceases afterwards.
	StopProxy(ctx context.Context) error

	// CheckProxyRunning returns the current proxy status.
	CheckProxyRunning(ctx context.Context) (ProxyStatus, error)

	// CheckPort reports whether port is free to listen on.
	CheckPort(ctx context.Context, port uint16) (bool, error)

	// ListenEvents registers handler for backend lifecycle events until stop is called.
	ListenEvents(ctx context.Context, handler func(BackendEvent)) (stop func(), err error)
}

// Backend is the full command boundary of the native backend process.
type Backend interface {
	CertificateService
	ProxyService
	RuleService
}
