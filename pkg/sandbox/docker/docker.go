/*
Copyright The SheikhBox Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package docker provisions sandboxes as local Docker containers running
// a VNC desktop, a chromium instance and the boxd daemon.
package docker

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/sheikhbox/sheikhbox/pkg/browser"
	"github.com/sheikhbox/sheikhbox/pkg/browser/playwright"
	"github.com/sheikhbox/sheikhbox/pkg/sandbox"
	"github.com/sheikhbox/sheikhbox/pkg/types"
)

const (
	boxdPort = "8080"
	vncPort  = "5901"
	cdpPort  = "9222"

	healthWaitTimeout = 60 * time.Second
)

// Config carries the container parameters for sandbox provisioning.
type Config struct {
	Image       string
	NamePrefix  string
	NetworkMode string
	VNCPassword string
	TTLMinutes  string
	HTTPProxy   string
	HTTPSProxy  string
	NoProxy     string

	// OpTimeout is the upper bound applied to boxd calls. The reference
	// behaviour allows very long-running sandbox operations.
	OpTimeout time.Duration
}

// ConfigFromEnv reads sandbox parameters from the environment, applying
// the defaults of the reference image.
func ConfigFromEnv() Config {
	cfg := Config{
		Image:       envOr("SHEIKHBOX_SANDBOX_IMAGE", "accetto/ubuntu-vnc-xfce-chromium-g3"),
		NamePrefix:  envOr("SHEIKHBOX_SANDBOX_PREFIX", "sheikhbox-sandbox"),
		NetworkMode: envOr("SHEIKHBOX_SANDBOX_NETWORK", "bridge"),
		VNCPassword: envOr("SHEIKHBOX_SANDBOX_VNC_PW", "password"),
		TTLMinutes:  envOr("SHEIKHBOX_SANDBOX_TTL_MINUTES", "60"),
		HTTPProxy:   os.Getenv("SHEIKHBOX_SANDBOX_HTTP_PROXY"),
		HTTPSProxy:  os.Getenv("SHEIKHBOX_SANDBOX_HTTPS_PROXY"),
		NoProxy:     os.Getenv("SHEIKHBOX_SANDBOX_NO_PROXY"),
		OpTimeout:   10 * time.Minute,
	}
	if v := os.Getenv("SHEIKHBOX_SANDBOX_OP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.OpTimeout = d
		} else {
			klog.Warningf("Invalid SHEIKHBOX_SANDBOX_OP_TIMEOUT %q, using default", v)
		}
	}
	return cfg
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Provisioner creates and reattaches Docker-backed sandboxes.
type Provisioner struct {
	cli    *client.Client
	cfg    Config
	signer *Signer
}

var _ sandbox.Provisioner = (*Provisioner)(nil)

// NewProvisioner builds a Provisioner from the local Docker environment
// and generates the request-signing key pair shared by all sandboxes it
// creates.
func NewProvisioner(cfg Config) (*Provisioner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker: create client: %w", err)
	}

	signer, err := NewSigner()
	if err != nil {
		return nil, fmt.Errorf("docker: create signer: %w", err)
	}

	return &Provisioner{cli: cli, cfg: cfg, signer: signer}, nil
}

// Close releases the Docker client.
func (p *Provisioner) Close() error {
	return p.cli.Close()
}

// Create runs a fresh sandbox container and waits for boxd to come up.
func (p *Provisioner) Create(ctx context.Context) (sandbox.Sandbox, error) {
	name := fmt.Sprintf("%s-%s", p.cfg.NamePrefix, uuid.NewString()[:8])

	pubPEM, err := p.signer.PublicKeyPEM()
	if err != nil {
		return nil, fmt.Errorf("docker: export public key: %w", err)
	}

	env := []string{
		"VNC_PW=" + p.cfg.VNCPassword,
		"SERVICE_TIMEOUT_MINUTES=" + p.cfg.TTLMinutes,
		"BOXD_PUBLIC_KEY=" + base64.StdEncoding.EncodeToString(pubPEM),
	}
	if p.cfg.HTTPProxy != "" {
		env = append(env, "HTTP_PROXY="+p.cfg.HTTPProxy)
	}
	if p.cfg.HTTPSProxy != "" {
		env = append(env, "HTTPS_PROXY="+p.cfg.HTTPSProxy)
	}
	if p.cfg.NoProxy != "" {
		env = append(env, "NO_PROXY="+p.cfg.NoProxy)
	}

	cfg := &container.Config{
		Image: p.cfg.Image,
		Env:   env,
		ExposedPorts: nat.PortSet{
			nat.Port(boxdPort + "/tcp"): {},
			nat.Port(vncPort + "/tcp"):  {},
			nat.Port(cdpPort + "/tcp"):  {},
		},
	}
	hostCfg := &container.HostConfig{
		AutoRemove: true,
	}
	if p.cfg.NetworkMode != "" {
		hostCfg.NetworkMode = container.NetworkMode(p.cfg.NetworkMode)
	}

	resp, err := p.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return nil, fmt.Errorf("docker: create container: %w", err)
	}

	if err := p.cli.ContainerStart(ctx, resp.ID, dockertypes.ContainerStartOptions{}); err != nil {
		return nil, fmt.Errorf("docker: start container: %w", err)
	}

	insp, err := p.cli.ContainerInspect(ctx, resp.ID)
	if err != nil {
		return nil, fmt.Errorf("docker: inspect container: %w", err)
	}
	ip := containerIP(insp.NetworkSettings)
	if ip == "" {
		return nil, fmt.Errorf("docker: container %s has no IP address", name)
	}

	sb := p.newSandbox(name, ip)
	if err := sb.waitReady(ctx); err != nil {
		return nil, fmt.Errorf("docker: sandbox %s not ready: %w", name, err)
	}

	klog.Infof("Provisioned sandbox %s at %s", name, ip)
	return sb, nil
}

// Get reattaches to a running container by name. Used by the lazy
// reattachment path when the in-memory registry has no entry.
func (p *Provisioner) Get(ctx context.Context, id string) (sandbox.Sandbox, error) {
	insp, err := p.cli.ContainerInspect(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("docker: inspect container %s: %w", id, err)
	}
	if insp.State == nil || !insp.State.Running {
		return nil, fmt.Errorf("docker: container %s is not running", id)
	}

	ip := containerIP(insp.NetworkSettings)
	if ip == "" {
		return nil, fmt.Errorf("docker: container %s has no IP address", id)
	}

	return p.newSandbox(id, ip), nil
}

func (p *Provisioner) newSandbox(name, ip string) *Sandbox {
	return &Sandbox{
		name: name,
		ip:   ip,
		cli:  p.cli,
		boxd: &boxdClient{
			baseURL:    fmt.Sprintf("http://%s:%s", ip, boxdPort),
			httpClient: &http.Client{Timeout: p.cfg.OpTimeout},
			signer:     p.signer,
		},
	}
}

// containerIP resolves the container address, falling back to the first
// attached network when the default bridge field is empty.
func containerIP(settings *dockertypes.NetworkSettings) string {
	if settings == nil {
		return ""
	}
	if settings.IPAddress != "" {
		return settings.IPAddress
	}
	for _, netCfg := range settings.Networks {
		if netCfg != nil && netCfg.IPAddress != "" {
			return netCfg.IPAddress
		}
	}
	return ""
}

// Sandbox is a Docker-backed sandbox handle.
type Sandbox struct {
	name string
	ip   string
	cli  *client.Client
	boxd *boxdClient

	br *playwright.Browser
}

var _ sandbox.Sandbox = (*Sandbox)(nil)

// ID returns the container name, which doubles as the session ID.
func (s *Sandbox) ID() string {
	return s.name
}

// VNCURL returns the websocket URL of the in-container VNC server.
func (s *Sandbox) VNCURL() string {
	return fmt.Sprintf("ws://%s:%s", s.ip, vncPort)
}

// Browser returns the browser capability, attached over CDP. The
// instance is cached for the sandbox lifetime and cleaned up on Destroy.
func (s *Sandbox) Browser(ctx context.Context) (browser.Browser, error) {
	if s.br == nil {
		s.br = playwright.New(fmt.Sprintf("http://%s:%s", s.ip, cdpPort))
	}
	return s.br, nil
}

// ExecCommand runs a shell command through boxd.
func (s *Sandbox) ExecCommand(ctx context.Context, sessionID, execDir, command string) types.ToolResult {
	out, err := s.boxd.Execute(ctx, execDir, command)
	if err != nil {
		return types.Failure(fmt.Sprintf("Failed to execute command: %v", err))
	}

	result := types.ToolResult{
		Success: out.ExitCode == 0,
		Data: map[string]any{
			"stdout":    out.Stdout,
			"stderr":    out.Stderr,
			"exit_code": out.ExitCode,
		},
	}
	if !result.Success {
		result.Message = fmt.Sprintf("Command exited with code %d", out.ExitCode)
	}
	return result
}

// FileWrite writes content to a file through boxd.
func (s *Sandbox) FileWrite(ctx context.Context, file, content string) types.ToolResult {
	info, err := s.boxd.WriteFile(ctx, file, content)
	if err != nil {
		return types.Failure(fmt.Sprintf("Failed to write file: %v", err))
	}
	return types.ToolResult{
		Success: true,
		Data: map[string]any{
			"message": fmt.Sprintf("Wrote %d bytes to %s", info.Size, info.Path),
		},
	}
}

// FileRead reads a file through boxd.
func (s *Sandbox) FileRead(ctx context.Context, file string) types.ToolResult {
	data, err := s.boxd.ReadFile(ctx, file)
	if err != nil {
		return types.Failure(fmt.Sprintf("Failed to read file: %v", err))
	}
	return types.ToolResult{
		Success: true,
		Data:    map[string]any{"content": string(data)},
	}
}

// Destroy force-removes the container. The caller treats destruction as
// best-effort.
func (s *Sandbox) Destroy(ctx context.Context) error {
	if s.br != nil {
		if err := s.br.Cleanup(ctx); err != nil {
			klog.V(4).Infof("Browser cleanup for %s: %v", s.name, err)
		}
		s.br = nil
	}

	if err := s.cli.ContainerRemove(ctx, s.name, dockertypes.ContainerRemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("docker: remove container %s: %w", s.name, err)
	}
	klog.Infof("Destroyed sandbox %s", s.name)
	return nil
}

// waitReady polls the boxd health endpoint until the container is
// serving or the wait budget is exhausted.
func (s *Sandbox) waitReady(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, healthWaitTimeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-waitCtx.Done():
			return fmt.Errorf("timeout waiting for boxd health")
		case <-ticker.C:
			probeCtx, probeCancel := context.WithTimeout(waitCtx, 2*time.Second)
			err := s.boxd.Health(probeCtx)
			probeCancel()
			if err == nil {
				return nil
			}
		}
	}
}
