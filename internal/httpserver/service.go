package httpserver

// Service is the lifecycle every component registered with a Server
// follows: set up at startup, polled on every timer tick, torn down at
// shutdown.
type Service interface {
	Initialize() error
	Tick() error
	Shutdown() error
}

// ServiceMap is the immutable-after-Serve registration table handlers
// receive to reach the services they depend on.
type ServiceMap map[string]Service
