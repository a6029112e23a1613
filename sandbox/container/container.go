// Package container is a Docker-backed Engine adapter: it starts a
// component-runtime sidecar container per compiled guest and exchanges
// dflow.GuestToHost / dflow.HostToGuest JSON over an HTTP callback
// channel.
//
// This package never itself interprets an effect — it only transports the
// wire types across the container boundary and hands the decoded
// GuestToHost to whatever dflow.Handlers the caller configured.
package container

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/arclight/dflow"
)

const (
	callbackPath = "/_dflow/dispatch"
	guestPort    = "8900/tcp"
	stopTimeout  = 5 * time.Second
)

// Engine is the dflow.Engine implementation callers construct directly.
// It starts one sidecar container from Image per guest instantiation.
type Engine struct {
	Docker   *client.Client
	Image    string
	Handlers *dflow.Handlers
	Callback *callbackServer
}

// NewEngine connects to the local Docker daemon (respecting DOCKER_HOST
// and friends via client.FromEnv) and starts the shared callback server
// every instantiated guest container dispatches effects through.
func NewEngine(image string, handlers *dflow.Handlers) (*Engine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("container engine: connect docker: %w", err)
	}
	cb := newCallbackServer()
	if err := cb.Start("127.0.0.1:0"); err != nil {
		return nil, fmt.Errorf("container engine: start callback server: %w", err)
	}
	return &Engine{Docker: cli, Image: image, Handlers: handlers, Callback: cb}, nil
}

var _ dflow.Engine = (*Engine)(nil)

// Compile wraps binary in a Component without compiling it; the host
// never links against wasmtime/wazero. The bytes are held in memory only:
// they are not written to disk, mounted, or sent to the container.
func (e *Engine) Compile(ctx context.Context, binary []byte) (dflow.Component, error) {
	return &Component{engine: e, binary: binary}, nil
}

// Component is a guest binary ready to be instantiated in a fresh
// container.
type Component struct {
	engine *Engine
	binary []byte
}

var _ dflow.Component = (*Component)(nil)

// Instantiate starts a new sidecar container from the engine's Image and
// returns a GuestInstance bound to opts.State/opts.Exec via opts.Handlers.
// c.binary is not passed to the container; it runs whatever component its
// image provides.
func (c *Component) Instantiate(ctx context.Context, opts dflow.InstanceOptions) (dflow.GuestInstance, error) {
	executionID := dflow.NewID()
	c.engine.Callback.register(executionID, opts.Handlers, opts.State, opts.Exec)

	env := []string{
		fmt.Sprintf("DFLOW_EXECUTION_ID=%s", executionID),
		fmt.Sprintf("DFLOW_CALLBACK_URL=%s", c.engine.Callback.URL()),
		fmt.Sprintf("DFLOW_FUEL_LIMIT=%d", opts.FuelLimit),
		fmt.Sprintf("DFLOW_YIELD_INTERVAL=%d", opts.YieldInterval),
	}

	portSet, portMap, err := nat.ParsePortSpecs([]string{guestPort})
	if err != nil {
		return nil, fmt.Errorf("container engine: parse port spec: %w", err)
	}

	resp, err := c.engine.Docker.ContainerCreate(ctx,
		&container.Config{
			Image:        c.engine.Image,
			Env:          env,
			ExposedPorts: portSet,
		},
		&container.HostConfig{
			PortBindings: portMap,
			AutoRemove:   true,
		},
		&network.NetworkingConfig{},
		nil,
		"dflow-guest-"+executionID,
	)
	if err != nil {
		c.engine.Callback.deregister(executionID)
		return nil, fmt.Errorf("container engine: create container: %w", err)
	}

	if err := c.engine.Docker.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		c.engine.Callback.deregister(executionID)
		return nil, fmt.Errorf("container engine: start container: %w", err)
	}

	return &Instance{
		engine:      c.engine,
		containerID: resp.ID,
		executionID: executionID,
	}, nil
}

// Instance is one running guest container.
type Instance struct {
	engine      *Engine
	containerID string
	executionID string
}

var _ dflow.GuestInstance = (*Instance)(nil)

// Execute blocks until the container's guest entrypoint returns, reported
// via the container's exit code: 0 means the guest returned Ok(Unit); a
// nonzero exit with a workflow-error payload recorded by the callback
// server means the guest returned Err(WorkflowError); any other nonzero
// exit is a structural failure (AttemptFailedWithoutID).
func (in *Instance) Execute(ctx context.Context) (*dflow.WorkflowError, error) {
	statusCh, errCh := in.engine.Docker.ContainerWait(ctx, in.containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return nil, fmt.Errorf("container engine: wait: %w", err)
	case status := <-statusCh:
		werr := in.engine.Callback.takeWorkflowError(in.executionID)
		if status.StatusCode == 0 {
			return nil, nil
		}
		if werr != nil {
			return werr, nil
		}
		return nil, fmt.Errorf("container engine: guest exited %d with no workflow error recorded", status.StatusCode)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close deregisters the execution and stops the container if it is still
// running (AutoRemove handles deletion).
func (in *Instance) Close(ctx context.Context) error {
	in.engine.Callback.deregister(in.executionID)
	stopCtx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()
	timeoutSecs := int(stopTimeout.Seconds())
	return in.engine.Docker.ContainerStop(stopCtx, in.containerID, container.StopOptions{Timeout: &timeoutSecs})
}

// callbackServer is the HTTP bridge guest containers dispatch effects
// through: a pending-registration map keyed by execution id, one
// registration per in-flight guest instance.
type callbackServer struct {
	mu      sync.RWMutex
	pending map[string]*registration

	srv  *http.Server
	addr string
}

type registration struct {
	handlers *dflow.Handlers
	state    *dflow.State
	exec     *dflow.Execution

	mu          sync.Mutex
	workflowErr *dflow.WorkflowError
}

func newCallbackServer() *callbackServer {
	return &callbackServer{pending: make(map[string]*registration)}
}

func (cs *callbackServer) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("callback server: listen %s: %w", addr, err)
	}
	cs.addr = ln.Addr().String()

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, cs.handleDispatch)
	mux.HandleFunc("/_dflow/fail", cs.handleFail)
	cs.srv = &http.Server{Handler: mux}

	go cs.srv.Serve(ln)
	return nil
}

// URL is the base URL guest containers should POST effects to.
func (cs *callbackServer) URL() string {
	return "http://" + strings.Replace(cs.addr, "127.0.0.1", "host.docker.internal", 1)
}

func (cs *callbackServer) register(executionID string, h *dflow.Handlers, state *dflow.State, exec *dflow.Execution) {
	cs.mu.Lock()
	cs.pending[executionID] = &registration{handlers: h, state: state, exec: exec}
	cs.mu.Unlock()
}

func (cs *callbackServer) deregister(executionID string) {
	cs.mu.Lock()
	delete(cs.pending, executionID)
	cs.mu.Unlock()
}

func (cs *callbackServer) takeWorkflowError(executionID string) *dflow.WorkflowError {
	cs.mu.RLock()
	reg, ok := cs.pending[executionID]
	cs.mu.RUnlock()
	if !ok {
		return nil
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.workflowErr
}

// dispatchEnvelope is the JSON body POSTed by a guest container for one
// effect call.
type dispatchEnvelope struct {
	ExecutionID string            `json:"execution_id"`
	Request     dflow.GuestToHost `json:"request"`
}

func (cs *callbackServer) handleDispatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}
	var env dispatchEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}

	cs.mu.RLock()
	reg, ok := cs.pending[env.ExecutionID]
	cs.mu.RUnlock()
	if !ok {
		http.Error(w, "unknown execution_id: "+env.ExecutionID, http.StatusNotFound)
		return
	}

	reply, err := reg.handlers.Dispatch(r.Context(), reg.state, reg.exec, env.Request)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(reply); err != nil {
		http.Error(w, "encode reply: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(buf.Bytes())
}

// failReport is POSTed once by the guest's runtime shim just before exit,
// carrying the WorkflowError it returned from execute(), so Instance.Execute
// can recover it after the container has already exited.
type failReport struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

func (cs *callbackServer) handleFail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	executionID := r.URL.Query().Get("execution_id")
	var report failReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}

	cs.mu.RLock()
	reg, ok := cs.pending[executionID]
	cs.mu.RUnlock()
	if !ok {
		http.Error(w, "unknown execution_id: "+executionID, http.StatusNotFound)
		return
	}

	reg.mu.Lock()
	reg.workflowErr = dflow.NewWorkflowError(report.ID, fmt.Errorf("%s", report.Error))
	reg.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}
