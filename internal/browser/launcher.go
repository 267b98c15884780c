// Package browser optionally launches a managed Chromium container for the
// daemon to attach to, for setups where the user's own browser does not
// expose a debugging port.
package browser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

const chromeImage = "browserless/chrome:latest"

// Instance is a running managed browser.
type Instance struct {
	ContainerID string
	ConnectURL  string
	Port        string
	ProfileDir  string
}

// Launcher starts and stops managed browser containers.
type Launcher struct {
	client     *client.Client
	profileDir string
}

// NewLauncher creates a launcher whose browsers persist their profile under
// profileDir, so the reaped browser keeps cookies and history across runs.
func NewLauncher(profileDir string) (*Launcher, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &Launcher{
		client:     cli,
		profileDir: profileDir,
	}, nil
}

// Launch starts a browser container and waits until its DevTools endpoint
// answers.
func (l *Launcher) Launch(ctx context.Context) (*Instance, error) {
	profileDir := l.profileDir
	if profileDir == "" {
		profileDir = filepath.Join(os.TempDir(), "tabreaper-profile")
	}
	if err := os.MkdirAll(profileDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}

	containerConfig := &container.Config{
		Image: chromeImage,
		Labels: map[string]string{
			"managed-by": "tabreaper",
		},
		Env: []string{
			"CONNECTION_TIMEOUT=-1",
			"KEEP_ALIVE=true",
			"EXIT_ON_HEALTH_FAILURE=false",
		},
		ExposedPorts: nat.PortSet{
			"3000/tcp": struct{}{},
		},
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			"3000/tcp": []nat.PortBinding{
				{
					HostIP:   "127.0.0.1",
					HostPort: "0",
				},
			},
		},
		AutoRemove: false,
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: profileDir,
				Target: "/data",
			},
		},
	}

	resp, err := l.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "tabreaper-browser")
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	if err := l.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	inspect, err := l.client.ContainerInspect(ctx, resp.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}

	bindings := inspect.NetworkSettings.Ports["3000/tcp"]
	if len(bindings) == 0 {
		return nil, fmt.Errorf("container exposed no debugging port")
	}
	port := bindings[0].HostPort

	if err := l.waitForReady(port); err != nil {
		return nil, fmt.Errorf("browser failed to become ready: %w", err)
	}

	return &Instance{
		ContainerID: resp.ID,
		ConnectURL:  fmt.Sprintf("http://localhost:%s", port),
		Port:        port,
		ProfileDir:  profileDir,
	}, nil
}

// Stop stops and removes a managed browser container.
func (l *Launcher) Stop(ctx context.Context, containerID string) error {
	timeout := 10
	stopOptions := container.StopOptions{
		Timeout: &timeout,
	}

	if err := l.client.ContainerStop(ctx, containerID, stopOptions); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}

	if err := l.client.ContainerRemove(ctx, containerID, container.RemoveOptions{}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}

	return nil
}

// IsHealthy reports whether the container is still running.
func (l *Launcher) IsHealthy(ctx context.Context, containerID string) bool {
	inspect, err := l.client.ContainerInspect(ctx, containerID)
	if err != nil {
		return false
	}
	return inspect.State.Running
}

// EnsureImage pulls the browser image if it is not present.
func (l *Launcher) EnsureImage(ctx context.Context) error {
	images, err := l.client.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return err
	}

	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == chromeImage {
				return nil
			}
		}
	}

	reader, err := l.client.ImagePull(ctx, chromeImage, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

// Close releases the docker client.
func (l *Launcher) Close() error {
	return l.client.Close()
}

// waitForReady polls /json/version until the DevTools endpoint answers.
func (l *Launcher) waitForReady(port string) error {
	url := fmt.Sprintf("http://localhost:%s/json/version", port)
	maxRetries := 20

	for i := 0; i < maxRetries; i++ {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == 200 {
				// Let the websocket endpoint settle too.
				time.Sleep(500 * time.Millisecond)
				return nil
			}
		}
		time.Sleep(500 * time.Millisecond)
	}

	return fmt.Errorf("browser did not become ready after %d retries", maxRetries)
}
