// Package server exposes the catalog browser over a unix socket speaking
// newline-delimited JSON requests.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/wpnas/wpnas/internal/dataview"
	"github.com/wpnas/wpnas/internal/log"
	"github.com/wpnas/wpnas/internal/notify"
	"github.com/wpnas/wpnas/internal/plugins"
	"github.com/wpnas/wpnas/internal/server/models"
	serverPlugins "github.com/wpnas/wpnas/internal/server/plugins"
)

const socketPrefix = "wpnas-"

type Server struct {
	plugins *serverPlugins.Service
	notices *notify.Store

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

func New(manager *plugins.Manager, controller *dataview.Controller, notices *notify.Store) *Server {
	return &Server{
		plugins: &serverPlugins.Service{Manager: manager, Controller: controller},
		notices: notices,
		conns:   make(map[net.Conn]struct{}),
	}
}

func getSocketDir() string {
	if runtime := os.Getenv("XDG_RUNTIME_DIR"); runtime != "" {
		return runtime
	}

	if os.Getuid() == 0 {
		if _, err := os.Stat("/run"); err == nil {
			return "/run/wpnas"
		}
		return "/var/run/wpnas"
	}

	return os.TempDir()
}

func GetSocketPath() string {
	return filepath.Join(getSocketDir(), fmt.Sprintf("%s%d.sock", socketPrefix, os.Getpid()))
}

// FindSocket returns the socket of a running server, if any.
func FindSocket() (string, error) {
	dir := getSocketDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		if pid, ok := socketPID(entry.Name()); ok && processAlive(pid) {
			return filepath.Join(dir, entry.Name()), nil
		}
	}
	return "", errors.New("no running wpnas server")
}

func socketPID(name string) (int, bool) {
	if !strings.HasPrefix(name, socketPrefix) || !strings.HasSuffix(name, ".sock") {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, socketPrefix), ".sock"))
	if err != nil {
		return 0, false
	}
	return pid, true
}

// processAlive probes pid with signal 0. EPERM means it exists but belongs to
// someone else.
func processAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

func cleanupStaleSockets() {
	dir := getSocketDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		pid, ok := socketPID(entry.Name())
		if !ok || processAlive(pid) {
			continue
		}
		socketPath := filepath.Join(dir, entry.Name())
		os.Remove(socketPath)
		log.Debugf("Removed stale socket: %s", socketPath)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()

		var req models.Request
		if err := json.Unmarshal(line, &req); err != nil {
			models.RespondError(conn, nil, "invalid json")
			continue
		}

		s.RouteRequest(conn, req)
	}
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

// Serve accepts connections on listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		listener.Close()
		s.mu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		s.track(conn, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(conn, false)
			s.handleConnection(conn)
		}()
	}
}

// Start listens on the per-process socket until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	cleanupStaleSockets()

	socketPath := GetSocketPath()
	if err := os.MkdirAll(filepath.Dir(socketPath), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}
	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return err
	}
	defer os.Remove(socketPath)

	log.Infof("wpnas API Server listening on: %s", socketPath)
	log.Info("Protocol: JSON over Unix socket")
	log.Info("Request format: {\"id\": <any>, \"method\": \"...\", \"params\": {...}}")
	log.Info("Response format: {\"id\": <any>, \"result\": {...}} or {\"id\": <any>, \"error\": \"...\"}")
	log.Info("Available methods:")
	log.Info("  ping - Test connection")
	log.Info("  plugins.list - List all plugins")
	log.Info("  plugins.query - Apply a view (params: search?, sort?, filters?, page?, perPage?)")
	log.Info("  plugins.loadMore - Reveal the next page of the current view")
	log.Info("  plugins.reset - Return to the default view")
	log.Info("  plugins.install - Install or update plugin (params: slug)")
	log.Info("  plugins.activate - Activate plugin (params: plugin)")
	log.Info("  plugins.reload - Refetch the catalog and local status")
	log.Info("  notices.list - List notices")
	log.Info("  notices.dismiss - Dismiss a notice (params: id)")

	return s.Serve(ctx, listener)
}
